package handlers

import (
	"context"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sirupsen/logrus"

	"github.com/Kerhoff/giftpool/internal/models"
	"github.com/Kerhoff/giftpool/internal/service"
	"github.com/Kerhoff/giftpool/internal/telegram"
)

func progress(view *models.GroupView) string {
	g := view.Group
	switch {
	case g.IsQuantityBased && g.TargetQuantity != nil:
		return fmt.Sprintf("%d of %d", view.TotalQuantity, *g.TargetQuantity)
	case g.TargetAmountCents != nil:
		return fmt.Sprintf("%s of %s", formatCents(view.TotalAmountCents, nil), formatCents(*g.TargetAmountCents, g.Currency))
	}
	return ""
}

// ---------------------------------------------------------------------------
// PoolHandler – /pool <id> <amount> <currency> | /pool <id> <qty>x
// ---------------------------------------------------------------------------

// PoolHandler starts a shared purchase on a wish item.
type PoolHandler struct {
	svc    *service.Service
	logger *logrus.Logger
}

// NewPoolHandler creates a new PoolHandler.
func NewPoolHandler(svc *service.Service, logger *logrus.Logger) *PoolHandler {
	return &PoolHandler{svc: svc, logger: logger}
}

const poolUsage = "Usage: `/pool 5 120 EUR` or `/pool 5 3x`"

// Handle processes the /pool command.
func (h *PoolHandler) Handle(bot telegram.Sender, message *tgbotapi.Message, args []string) error {
	if len(args) < 2 {
		reply(bot, message.Chat.ID, "❌ Please provide an item ID and a goal.\n"+poolUsage)
		return nil
	}
	itemID, ok := parseID(args[0])
	if !ok {
		reply(bot, message.Chat.ID, "❌ Invalid ID. Please provide a numeric item ID.")
		return nil
	}

	var in service.CreateGroupInput
	if isUnits(args[1]) {
		n, ok := parseUnits(args[1])
		if !ok {
			reply(bot, message.Chat.ID, "❌ Invalid unit count.\n"+poolUsage)
			return nil
		}
		in.IsQuantityBased = true
		in.TargetQuantity = n
	} else {
		if len(args) < 3 {
			reply(bot, message.Chat.ID, "❌ Please provide a currency.\n"+poolUsage)
			return nil
		}
		cents, err := parseAmount(args[1])
		if err != nil {
			replyPlain(bot, message.Chat.ID, "❌ "+err.Error())
			return nil
		}
		in.TargetAmount = cents
		in.Currency = args[2]
	}
	if len(args) > 3 {
		notes := strings.Join(args[3:], " ")
		in.Notes = &notes
	}

	ctx := context.Background()
	user, _, err := member(ctx, h.svc, message)
	if err != nil {
		return err
	}

	view, err := h.svc.CreateGroup(ctx, itemID, user.ID, in)
	if err != nil {
		return replyServiceError(bot, message.Chat.ID, err)
	}

	reply(bot, message.Chat.ID, fmt.Sprintf(
		"🤝 Shared purchase started for item *#%d*! Goal: %s.\n\n_Chip in with_ `/chipin %d <amount>`",
		itemID, progress(view), itemID))

	h.logger.WithFields(logrus.Fields{
		"chat_id":  message.Chat.ID,
		"user_id":  user.ID,
		"item_id":  itemID,
		"group_id": view.Group.ID,
	}).Info("Shared purchase started")

	return nil
}

// ---------------------------------------------------------------------------
// ChipInHandler – /chipin <id> <amount|qty x>
// ---------------------------------------------------------------------------

// ChipInHandler pledges toward the active shared purchase of an item. A
// repeated /chipin replaces the sender's pledge.
type ChipInHandler struct {
	svc    *service.Service
	logger *logrus.Logger
}

// NewChipInHandler creates a new ChipInHandler.
func NewChipInHandler(svc *service.Service, logger *logrus.Logger) *ChipInHandler {
	return &ChipInHandler{svc: svc, logger: logger}
}

// Handle processes the /chipin command.
func (h *ChipInHandler) Handle(bot telegram.Sender, message *tgbotapi.Message, args []string) error {
	if len(args) < 2 {
		reply(bot, message.Chat.ID, "❌ Please provide an item ID and your share.\nUsage: `/chipin 5 25.50` or `/chipin 5 1x`")
		return nil
	}
	itemID, ok := parseID(args[0])
	if !ok {
		reply(bot, message.Chat.ID, "❌ Invalid ID. Please provide a numeric item ID.")
		return nil
	}

	var in service.ContributeInput
	if isUnits(args[1]) {
		n, ok := parseUnits(args[1])
		if !ok {
			reply(bot, message.Chat.ID, "❌ Invalid unit count.")
			return nil
		}
		in.Quantity = n
	} else {
		cents, err := parseAmount(args[1])
		if err != nil {
			replyPlain(bot, message.Chat.ID, "❌ "+err.Error())
			return nil
		}
		in.Amount = cents
	}
	if len(args) > 2 {
		note := strings.Join(args[2:], " ")
		in.Note = &note
	}

	ctx := context.Background()
	user, _, err := member(ctx, h.svc, message)
	if err != nil {
		return err
	}

	view, err := h.svc.Contribute(ctx, itemID, user.ID, in)
	if err != nil {
		return replyServiceError(bot, message.Chat.ID, err)
	}

	text := fmt.Sprintf("💸 Thanks for chipping in on item *#%d*! Progress: %s.", itemID, progress(view))
	if view.Group.Status == models.GroupStatusLocked {
		text += "\n\n🎉 The goal is reached!"
	}
	reply(bot, message.Chat.ID, text)

	h.logger.WithFields(logrus.Fields{
		"chat_id":  message.Chat.ID,
		"user_id":  user.ID,
		"item_id":  itemID,
		"group_id": view.Group.ID,
	}).Info("Contribution recorded")

	return nil
}
