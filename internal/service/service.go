package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Kerhoff/giftpool/internal/apperr"
	"github.com/Kerhoff/giftpool/internal/metrics"
	"github.com/Kerhoff/giftpool/internal/models"
	"github.com/Kerhoff/giftpool/internal/notify"
	"github.com/Kerhoff/giftpool/internal/repository"
)

// Service is the central business logic layer. Every coordination operation
// runs inside one store transaction and emits its event only after commit.
type Service struct {
	store     repository.Store
	logger    *logrus.Logger
	publisher notify.Publisher
	metrics   *metrics.Metrics
	now       func() time.Time
}

// Option customizes a Service.
type Option func(*Service)

// WithPublisher sets the notification collaborator.
func WithPublisher(p notify.Publisher) Option {
	return func(s *Service) { s.publisher = p }
}

// WithMetrics enables Prometheus instrumentation.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// New creates a new Service with all required dependencies.
func New(store repository.Store, logger *logrus.Logger, opts ...Option) *Service {
	s := &Service{
		store:     store,
		logger:    logger,
		publisher: notify.Nop{},
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) repos() repository.Repositories {
	return s.store.Repos()
}

// mutate runs fn in a transaction and, once it has committed, publishes the
// event fn produced.
func (s *Service) mutate(ctx context.Context, op string, fields logrus.Fields, fn func(ctx context.Context, repos repository.Repositories) (*models.Event, error)) error {
	start := time.Now()
	var ev *models.Event
	err := s.store.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		var err error
		ev, err = fn(ctx, repos)
		return err
	})
	err = s.finish(op, fields, start, err)
	if err != nil {
		return err
	}

	s.logger.WithFields(fields).WithField("operation", op).Info("Coordination operation committed")
	if ev != nil {
		s.publish(ctx, *ev)
	}
	return nil
}

// read runs a lock-free query.
func (s *Service) read(ctx context.Context, op string, fields logrus.Fields, fn func(ctx context.Context, repos repository.Repositories) error) error {
	start := time.Now()
	return s.finish(op, fields, start, fn(ctx, s.repos()))
}

// finish records metrics and normalizes err: anything without a kind becomes
// Internal and is logged with its cause.
func (s *Service) finish(op string, fields logrus.Fields, start time.Time, err error) error {
	kind := "ok"
	if err != nil {
		kind = string(apperr.KindOf(err))
	}
	s.metrics.ObserveOperation(op, kind, time.Since(start))
	if err == nil {
		return nil
	}

	entry := s.logger.WithFields(fields).WithField("operation", op).WithError(err)
	if apperr.KindOf(err) == apperr.KindInternal {
		entry.Error("Coordination operation failed")
		var appErr *apperr.Error
		if !errors.As(err, &appErr) {
			return apperr.Internal(err)
		}
		return err
	}
	entry.Debug("Coordination operation rejected")
	return err
}

func (s *Service) publish(ctx context.Context, ev models.Event) {
	if err := s.publisher.Publish(ctx, ev.ListID, ev.ActorID, ev.Type, ev); err != nil {
		s.logger.WithError(err).WithFields(logrus.Fields{
			"event_type": ev.Type,
			"list_id":    ev.ListID,
			"item_id":    ev.ItemID,
		}).Warn("Failed to publish event")
	}
}

// loadItem resolves an item and checks that actorID may work on its list.
// With lock set the item row stays locked until the transaction ends.
func loadItem(ctx context.Context, repos repository.Repositories, itemID, actorID int64, lock bool) (*models.WishItem, error) {
	var (
		item *models.WishItem
		err  error
	)
	if lock {
		item, err = repos.WishLists.GetItemForUpdate(ctx, itemID)
	} else {
		item, err = repos.WishLists.GetItem(ctx, itemID)
	}
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, apperr.NotFound("Item not found")
	}
	if err := requireAccess(ctx, repos, item.WishListID, actorID); err != nil {
		return nil, err
	}
	return item, nil
}

func requireAccess(ctx context.Context, repos repository.Repositories, listID, actorID int64) error {
	ok, err := repos.WishLists.CanAccess(ctx, listID, actorID)
	if err != nil {
		return err
	}
	if !ok {
		return apperr.Forbidden("You do not have access to this list")
	}
	return nil
}

// EnsureUser retrieves an existing user by Telegram ID, or creates a new one
// if not found. Changed profile fields are written back.
func (s *Service) EnsureUser(ctx context.Context, telegramID int64, username, firstName, lastName string) (*models.User, error) {
	username = strings.TrimSpace(username)
	firstName = strings.TrimSpace(firstName)
	lastName = strings.TrimSpace(lastName)
	users := s.repos().Users

	user, err := users.GetByTelegramID(ctx, telegramID)
	if err != nil {
		return nil, fmt.Errorf("failed to lookup user (telegram_id=%d): %w", telegramID, err)
	}
	if user == nil {
		created, err := users.Create(ctx, &models.User{
			TelegramID:       telegramID,
			TelegramUsername: username,
			FirstName:        firstName,
			LastName:         lastName,
		})
		switch {
		case err == nil:
			s.logger.Infof("Created new user: %s (telegram_id=%d)", created.DisplayName(), telegramID)
			return created, nil
		case !errors.Is(err, apperr.ErrConflict):
			return nil, fmt.Errorf("failed to create user (telegram_id=%d): %w", telegramID, err)
		}
		// a concurrent first message registered the user
		if user, err = users.GetByTelegramID(ctx, telegramID); err != nil {
			return nil, fmt.Errorf("failed to lookup user (telegram_id=%d): %w", telegramID, err)
		}
		if user == nil {
			return nil, fmt.Errorf("user (telegram_id=%d) missing after create conflict", telegramID)
		}
	}

	if user.TelegramUsername == username && user.FirstName == firstName && user.LastName == lastName {
		return user, nil
	}
	user.TelegramUsername = username
	user.FirstName = firstName
	user.LastName = lastName
	user, err = users.Update(ctx, user)
	if err != nil {
		return nil, fmt.Errorf("failed to update user (telegram_id=%d): %w", telegramID, err)
	}
	s.logger.Infof("Updated user profile: %s (telegram_id=%d)", user.DisplayName(), telegramID)
	return user, nil
}

// EnsureFamily retrieves the family bound to a chat, creating it on first
// contact and following chat renames.
func (s *Service) EnsureFamily(ctx context.Context, chatID int64, chatTitle string) (*models.Family, error) {
	chatTitle = strings.TrimSpace(chatTitle)
	families := s.repos().Families

	family, err := families.GetByChatID(ctx, chatID)
	if err != nil {
		return nil, fmt.Errorf("failed to lookup family (chat_id=%d): %w", chatID, err)
	}
	if family == nil {
		created, err := families.Create(ctx, &models.Family{ChatID: chatID, Name: chatTitle})
		switch {
		case err == nil:
			s.logger.Infof("Created new family: %q (chat_id=%d)", chatTitle, chatID)
			return created, nil
		case !errors.Is(err, apperr.ErrConflict):
			return nil, fmt.Errorf("failed to create family for chat %d: %w", chatID, err)
		}
		if family, err = families.GetByChatID(ctx, chatID); err != nil {
			return nil, fmt.Errorf("failed to lookup family (chat_id=%d): %w", chatID, err)
		}
		if family == nil {
			return nil, fmt.Errorf("family (chat_id=%d) missing after create conflict", chatID)
		}
	}

	if chatTitle != "" && family.Name != chatTitle {
		family.Name = chatTitle
		family, err = families.Update(ctx, family)
		if err != nil {
			return nil, fmt.Errorf("failed to update family %d: %w", family.ID, err)
		}
		s.logger.Infof("Updated family name to %q (family_id=%d)", chatTitle, family.ID)
	}
	return family, nil
}

// EnsureFamilyMember adds userID to the family with the "member" role unless
// already present.
func (s *Service) EnsureFamilyMember(ctx context.Context, familyID, userID int64) error {
	families := s.repos().Families
	members, err := families.GetMembers(ctx, familyID)
	if err != nil {
		return fmt.Errorf("failed to get members for family %d: %w", familyID, err)
	}
	for _, m := range members {
		if m.ID == userID {
			return nil
		}
	}

	if err := families.AddMember(ctx, familyID, userID, "member"); err != nil {
		return fmt.Errorf("failed to add user %d to family %d: %w", userID, familyID, err)
	}
	s.logger.Infof("Added user %d to family %d", userID, familyID)
	return nil
}
