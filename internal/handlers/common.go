package handlers

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/shopspring/decimal"

	"github.com/Kerhoff/giftpool/internal/apperr"
	"github.com/Kerhoff/giftpool/internal/models"
	"github.com/Kerhoff/giftpool/internal/service"
	"github.com/Kerhoff/giftpool/internal/telegram"
)

func reply(bot telegram.Sender, chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdown
	msg.DisableWebPagePreview = true
	bot.Send(msg)
}

// replyPlain skips Markdown so service messages are shown verbatim.
func replyPlain(bot telegram.Sender, chatID int64, text string) {
	bot.Send(tgbotapi.NewMessage(chatID, text))
}

// replyServiceError tells the user why an operation was rejected. Internal
// errors are returned so the router logs them and answers generically.
func replyServiceError(bot telegram.Sender, chatID int64, err error) error {
	if apperr.KindOf(err) == apperr.KindInternal {
		return err
	}
	replyPlain(bot, chatID, "❌ "+apperr.PublicMessage(err))
	return nil
}

// member bootstraps the sender and the chat's family from message metadata.
func member(ctx context.Context, svc *service.Service, message *tgbotapi.Message) (*models.User, *models.Family, error) {
	user, err := svc.EnsureUser(ctx, message.From.ID, message.From.UserName, message.From.FirstName, message.From.LastName)
	if err != nil {
		return nil, nil, fmt.Errorf("ensure user: %w", err)
	}

	chatTitle := message.Chat.Title
	if chatTitle == "" {
		chatTitle = message.From.FirstName + "'s family"
	}
	family, err := svc.EnsureFamily(ctx, message.Chat.ID, chatTitle)
	if err != nil {
		return nil, nil, fmt.Errorf("ensure family: %w", err)
	}
	if err := svc.EnsureFamilyMember(ctx, family.ID, user.ID); err != nil {
		return nil, nil, fmt.Errorf("ensure family member: %w", err)
	}
	return user, family, nil
}

func parseID(raw string) (int64, bool) {
	id, err := strconv.ParseInt(strings.TrimPrefix(raw, "#"), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// parseUnits reads "3x", "x3" or "3" as a unit count.
func parseUnits(raw string) (int, bool) {
	s := strings.TrimSuffix(strings.TrimPrefix(strings.ToLower(raw), "x"), "x")
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return 0, false
	}
	return n, true
}

func isUnits(raw string) bool {
	lower := strings.ToLower(raw)
	return strings.HasPrefix(lower, "x") || strings.HasSuffix(lower, "x")
}

// parseAmount converts a decimal money amount ("12.50", "12,5", "40") into
// minor units. More than two fractional digits is rejected.
func parseAmount(raw string) (int64, error) {
	d, err := decimal.NewFromString(strings.ReplaceAll(strings.TrimSpace(raw), ",", "."))
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q", raw)
	}
	if !d.IsPositive() {
		return 0, fmt.Errorf("amount must be positive")
	}
	cents := d.Shift(2)
	if !cents.Equal(cents.Truncate(0)) {
		return 0, fmt.Errorf("amount %q has more than two decimal places", raw)
	}
	return cents.IntPart(), nil
}

func formatCents(cents int64, currency *string) string {
	s := decimal.New(cents, -2).StringFixed(2)
	if currency != nil {
		s += " " + *currency
	}
	return s
}
