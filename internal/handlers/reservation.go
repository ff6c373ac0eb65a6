package handlers

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sirupsen/logrus"

	"github.com/Kerhoff/giftpool/internal/service"
	"github.com/Kerhoff/giftpool/internal/telegram"
)

// ---------------------------------------------------------------------------
// ReserveHandler – /reserve <id> [qty]
// ---------------------------------------------------------------------------

// ReserveHandler reserves units of a wish item. The reservation is hidden
// from the wish list owner so that it remains a surprise.
type ReserveHandler struct {
	svc    *service.Service
	logger *logrus.Logger
}

// NewReserveHandler creates a new ReserveHandler.
func NewReserveHandler(svc *service.Service, logger *logrus.Logger) *ReserveHandler {
	return &ReserveHandler{svc: svc, logger: logger}
}

// Handle processes the /reserve command.
func (h *ReserveHandler) Handle(bot telegram.Sender, message *tgbotapi.Message, args []string) error {
	if len(args) == 0 {
		reply(bot, message.Chat.ID, "❌ Please provide a wish item ID.\n\nUsage: `/reserve 5` or `/reserve 5 2`\n\n_See item IDs with_ `/wishlist`")
		return nil
	}
	itemID, ok := parseID(args[0])
	if !ok {
		reply(bot, message.Chat.ID, "❌ Invalid ID. Please provide a numeric item ID.")
		return nil
	}
	in := service.ClaimInput{}
	if len(args) > 1 {
		in.Quantity = args[1]
	}

	ctx := context.Background()
	user, _, err := member(ctx, h.svc, message)
	if err != nil {
		return err
	}

	res, err := h.svc.Claim(ctx, itemID, user.ID, in)
	if err != nil {
		return replyServiceError(bot, message.Chat.ID, err)
	}

	reserved := 0
	if res.Reservation != nil {
		reserved = res.Reservation.Quantity
	}
	reply(bot, message.Chat.ID, fmt.Sprintf(
		"🔒 You have reserved %d of item *#%d*. %d left.\n\n_The owner won't see who reserved it._",
		reserved, itemID, res.Status.AvailableQuantity))

	h.logger.WithFields(logrus.Fields{
		"chat_id": message.Chat.ID,
		"user_id": user.ID,
		"item_id": itemID,
	}).Info("Wish item reserved")

	return nil
}

// ---------------------------------------------------------------------------
// BoughtHandler – /bought <id> [qty]
// ---------------------------------------------------------------------------

// BoughtHandler marks a wish item as bought, converting the sender's
// reservation when there is one.
type BoughtHandler struct {
	svc    *service.Service
	logger *logrus.Logger
}

// NewBoughtHandler creates a new BoughtHandler.
func NewBoughtHandler(svc *service.Service, logger *logrus.Logger) *BoughtHandler {
	return &BoughtHandler{svc: svc, logger: logger}
}

// Handle processes the /bought command.
func (h *BoughtHandler) Handle(bot telegram.Sender, message *tgbotapi.Message, args []string) error {
	if len(args) == 0 {
		reply(bot, message.Chat.ID, "❌ Please provide a wish item ID.\nUsage: `/bought 5`")
		return nil
	}
	itemID, ok := parseID(args[0])
	if !ok {
		reply(bot, message.Chat.ID, "❌ Invalid ID. Please provide a numeric item ID.")
		return nil
	}
	in := service.PurchaseInput{}
	if len(args) > 1 {
		in.Quantity = args[1]
	}

	ctx := context.Background()
	user, _, err := member(ctx, h.svc, message)
	if err != nil {
		return err
	}

	res, err := h.svc.Purchase(ctx, itemID, user.ID, in)
	if err != nil {
		return replyServiceError(bot, message.Chat.ID, err)
	}

	text := fmt.Sprintf("✅ Item *#%d* marked as bought.", itemID)
	if res.Status.IsFullyPurchased {
		text += " Nothing left to get!"
	} else if res.Status.AvailableQuantity > 0 {
		text += fmt.Sprintf(" %d still available.", res.Status.AvailableQuantity)
	}
	reply(bot, message.Chat.ID, text)

	h.logger.WithFields(logrus.Fields{
		"chat_id": message.Chat.ID,
		"user_id": user.ID,
		"item_id": itemID,
	}).Info("Wish item bought")

	return nil
}

// ---------------------------------------------------------------------------
// ReleaseHandler – /release <id> [reservation]
// ---------------------------------------------------------------------------

// ReleaseHandler gives one of the sender's reservations back.
type ReleaseHandler struct {
	svc    *service.Service
	logger *logrus.Logger
}

// NewReleaseHandler creates a new ReleaseHandler.
func NewReleaseHandler(svc *service.Service, logger *logrus.Logger) *ReleaseHandler {
	return &ReleaseHandler{svc: svc, logger: logger}
}

// Handle processes the /release command.
func (h *ReleaseHandler) Handle(bot telegram.Sender, message *tgbotapi.Message, args []string) error {
	if len(args) == 0 {
		reply(bot, message.Chat.ID, "❌ Please provide a wish item ID.\nUsage: `/release 5`")
		return nil
	}
	itemID, ok := parseID(args[0])
	if !ok {
		reply(bot, message.Chat.ID, "❌ Invalid ID. Please provide a numeric item ID.")
		return nil
	}
	var in service.ReleaseInput
	if len(args) > 1 {
		id, ok := parseID(args[1])
		if !ok {
			reply(bot, message.Chat.ID, "❌ Invalid reservation ID.")
			return nil
		}
		in.ReservationID = &id
	}

	ctx := context.Background()
	user, _, err := member(ctx, h.svc, message)
	if err != nil {
		return err
	}

	st, err := h.svc.Release(ctx, itemID, user.ID, in)
	if err != nil {
		return replyServiceError(bot, message.Chat.ID, err)
	}

	reply(bot, message.Chat.ID, fmt.Sprintf("↩️ Reservation on item *#%d* released. %d available.", itemID, st.AvailableQuantity))

	h.logger.WithFields(logrus.Fields{
		"chat_id": message.Chat.ID,
		"user_id": user.ID,
		"item_id": itemID,
	}).Info("Wish item released")

	return nil
}
