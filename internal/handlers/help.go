package handlers

import (
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sirupsen/logrus"

	"github.com/Kerhoff/giftpool/internal/telegram"
)

// HelpHandler handles the /help command
type HelpHandler struct {
	logger *logrus.Logger
}

func NewHelpHandler(logger *logrus.Logger) *HelpHandler {
	return &HelpHandler{logger: logger}
}

func (h *HelpHandler) Handle(bot telegram.Sender, message *tgbotapi.Message, args []string) error {
	helpText := `📚 *giftpool Help*

*Wish Lists:*
• /wish <item> [x qty] - Add to your wish list
• /wishlist - View the family's wish lists

*Gifts:*
• /reserve <id> [qty] - Reserve a gift
• /bought <id> [qty] - Mark a gift as bought
• /release <id> [reservation] - Give a reservation back

*Chipping in:*
• /pool <id> <amount> <currency> - Start a money pool
• /pool <id> <qty>x - Start a pool counted in units
• /chipin <id> <amount> or <qty>x - Contribute to a pool

_The list owner never sees who reserved or chipped in._`

	reply(bot, message.Chat.ID, helpText)

	h.logger.WithFields(logrus.Fields{
		"chat_id": message.Chat.ID,
		"user_id": message.From.ID,
	}).Info("Sent help message")

	return nil
}
