package main

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"

	"github.com/Kerhoff/giftpool/internal/api"
	"github.com/Kerhoff/giftpool/internal/config"
	"github.com/Kerhoff/giftpool/internal/handlers"
	"github.com/Kerhoff/giftpool/internal/metrics"
	"github.com/Kerhoff/giftpool/internal/notify"
	"github.com/Kerhoff/giftpool/internal/repository"
	"github.com/Kerhoff/giftpool/internal/repository/memory"
	"github.com/Kerhoff/giftpool/internal/repository/postgres"
	"github.com/Kerhoff/giftpool/internal/service"
	"github.com/Kerhoff/giftpool/internal/telegram"
	"github.com/Kerhoff/giftpool/pkg/logger"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	l := logger.New(cfg.LogLevel)
	l.Info("Starting giftpool...")

	// closers run in reverse order on shutdown
	var closers []io.Closer

	store, err := openStore(cfg, l)
	if err != nil {
		l.Fatalf("Failed to open store: %v", err)
	}
	closers = append(closers, store)

	m := metrics.New()

	backend, err := openPublisher(cfg, l)
	if err != nil {
		l.Fatalf("Failed to create notification publisher: %v", err)
	}
	if c, ok := backend.(io.Closer); ok {
		closers = append(closers, c)
	}
	publisher := notify.NewAsync(backend, cfg.NotifyBuffer, l, m)
	closers = append(closers, publisher)

	svc := service.New(store, l, service.WithPublisher(publisher), service.WithMetrics(m))

	mux := http.NewServeMux()
	mux.Handle("/", api.NewServer(svc, l).Handler())

	var bot *telegram.Bot
	if cfg.TelegramToken != "" {
		bot, err = telegram.NewBot(cfg.TelegramToken, l)
		if err != nil {
			l.Fatalf("Failed to create Telegram bot: %v", err)
		}
		registerCommands(bot, svc, l)
		if cfg.WebhookURL != "" {
			if err := bot.SetWebhook(cfg.WebhookURL); err != nil {
				l.Fatalf("Failed to set Telegram webhook: %v", err)
			}
			mux.Handle("POST /telegram/webhook", bot.WebhookHandler())
		}
	} else {
		l.Warn("TELEGRAM_TOKEN is not set, Telegram bot disabled")
	}

	// Context for graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	metricsServer := &http.Server{
		Addr:              ":" + cfg.PrometheusPort,
		Handler:           metricsMux(m),
		ReadHeaderTimeout: 10 * time.Second,
	}

	for _, srv := range []*http.Server{httpServer, metricsServer} {
		go func(srv *http.Server) {
			l.Infof("HTTP server listening on %s", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				l.Errorf("HTTP server error: %v", err)
				cancel()
			}
		}(srv)
	}

	if bot != nil && cfg.WebhookURL == "" {
		go func() {
			if err := bot.Start(ctx); err != nil {
				l.Errorf("Bot error: %v", err)
			}
		}()
	}

	l.Info("giftpool started successfully")

	<-ctx.Done()
	l.Info("Received shutdown signal...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	var result *multierror.Error
	for _, srv := range []*http.Server{httpServer, metricsServer} {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			result = multierror.Append(result, err)
		}
	}
	for i := len(closers) - 1; i >= 0; i-- {
		if err := closers[i].Close(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	if err := result.ErrorOrNil(); err != nil {
		l.WithError(err).Error("Shutdown finished with errors")
		os.Exit(1)
	}

	l.Info("giftpool stopped")
}

func openStore(cfg *config.Config, l *logrus.Logger) (repository.Store, error) {
	if cfg.StoreBackend == config.StoreMemory {
		l.Warn("Using the in-memory store, data is lost on restart")
		return memory.NewStore(), nil
	}

	db, err := config.NewDatabase(cfg.DatabaseURL, l)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(cfg.MigrationsPath); err != nil {
		_ = db.Close()
		return nil, err
	}
	return postgres.NewStore(db.DB), nil
}

func openPublisher(cfg *config.Config, l *logrus.Logger) (notify.Publisher, error) {
	switch cfg.NotifyBackend {
	case config.NotifyRedis:
		return notify.NewRedisPublisher(cfg.RedisAddr, cfg.RedisChannelPrefix)
	case config.NotifyKafka:
		return notify.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic), nil
	case config.NotifyNone:
		return notify.Nop{}, nil
	default:
		return notify.NewLogPublisher(l), nil
	}
}

func metricsMux(m *metrics.Metrics) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	return mux
}

func registerCommands(bot *telegram.Bot, svc *service.Service, l *logrus.Logger) {
	bot.RegisterCommand("start", handlers.NewStartHandler(svc, l))
	bot.RegisterCommand("help", handlers.NewHelpHandler(l))

	// Wish list handlers
	bot.RegisterCommand("wish", handlers.NewWishAddHandler(svc, l))
	bot.RegisterCommand("wishlist", handlers.NewWishListHandler(svc, l))

	// Reservation handlers
	bot.RegisterCommand("reserve", handlers.NewReserveHandler(svc, l))
	bot.RegisterCommand("bought", handlers.NewBoughtHandler(svc, l))
	bot.RegisterCommand("release", handlers.NewReleaseHandler(svc, l))

	// Shared purchase handlers
	bot.RegisterCommand("pool", handlers.NewPoolHandler(svc, l))
	bot.RegisterCommand("chipin", handlers.NewChipInHandler(svc, l))
}
