package handlers

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sirupsen/logrus"

	"github.com/Kerhoff/giftpool/internal/service"
	"github.com/Kerhoff/giftpool/internal/telegram"
)

// StartHandler handles the /start command
type StartHandler struct {
	svc    *service.Service
	logger *logrus.Logger
}

// NewStartHandler creates a new start command handler
func NewStartHandler(svc *service.Service, logger *logrus.Logger) *StartHandler {
	return &StartHandler{
		svc:    svc,
		logger: logger,
	}
}

// Handle registers the sender in the chat's family and sends the welcome text.
func (h *StartHandler) Handle(bot telegram.Sender, message *tgbotapi.Message, args []string) error {
	user, family, err := member(context.Background(), h.svc, message)
	if err != nil {
		return err
	}

	welcomeText := fmt.Sprintf(`🎁 *Welcome to giftpool, %s!*

Everyone in *%s* can now see each other's wish lists, quietly reserve gifts and chip in on big ones together. List owners never see who got them what.

*Get started:*
• /wish <item> - Add something to your wish list
• /wishlist - Browse the family's wish lists
• /help - Show all commands`, user.FirstName, family.Name)

	reply(bot, message.Chat.ID, welcomeText)

	h.logger.WithFields(logrus.Fields{
		"chat_id": message.Chat.ID,
		"user_id": user.ID,
	}).Info("Sent start message")

	return nil
}
