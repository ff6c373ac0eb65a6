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

// ---------------------------------------------------------------------------
// WishAddHandler – /wish <item> [x qty]
// ---------------------------------------------------------------------------

// WishAddHandler handles the /wish command to add an item to the user's
// personal wish list. If the user does not yet have a wish list for this
// family, one is created automatically.
type WishAddHandler struct {
	svc    *service.Service
	logger *logrus.Logger
}

// NewWishAddHandler creates a new WishAddHandler.
func NewWishAddHandler(svc *service.Service, logger *logrus.Logger) *WishAddHandler {
	return &WishAddHandler{svc: svc, logger: logger}
}

// Handle processes the /wish command.
func (h *WishAddHandler) Handle(bot telegram.Sender, message *tgbotapi.Message, args []string) error {
	if len(args) == 0 {
		reply(bot, message.Chat.ID, "❌ Please provide a wish item.\nUsage: `/wish PlayStation 5` or `/wish Socks x3`")
		return nil
	}

	ctx := context.Background()
	user, family, err := member(ctx, h.svc, message)
	if err != nil {
		return err
	}

	qty := 1
	if last := args[len(args)-1]; len(args) > 1 && isUnits(last) {
		if n, ok := parseUnits(last); ok {
			qty = n
			args = args[:len(args)-1]
		}
	}

	item, err := h.svc.AddWish(ctx, user, family.ID, strings.Join(args, " "), qty)
	if err != nil {
		return replyServiceError(bot, message.Chat.ID, err)
	}

	text := fmt.Sprintf("🎁 *Added to your wish list!*\n\n*#%d* %s", item.ID, item.Name)
	if item.Quantity > 1 {
		text += fmt.Sprintf(" (x%d)", item.Quantity)
	}
	reply(bot, message.Chat.ID, text)

	h.logger.WithFields(logrus.Fields{
		"chat_id": message.Chat.ID,
		"user_id": user.ID,
		"item_id": item.ID,
	}).Info("Wish item added")

	return nil
}

// ---------------------------------------------------------------------------
// WishListHandler – /wishlist
// ---------------------------------------------------------------------------

// WishListHandler shows every wish list of the family. Reservation and
// shared purchase progress is hidden on the viewer's own list so surprises
// are not spoiled.
type WishListHandler struct {
	svc    *service.Service
	logger *logrus.Logger
}

// NewWishListHandler creates a new WishListHandler.
func NewWishListHandler(svc *service.Service, logger *logrus.Logger) *WishListHandler {
	return &WishListHandler{svc: svc, logger: logger}
}

// Handle processes the /wishlist command.
func (h *WishListHandler) Handle(bot telegram.Sender, message *tgbotapi.Message, args []string) error {
	ctx := context.Background()
	user, family, err := member(ctx, h.svc, message)
	if err != nil {
		return err
	}

	lists, err := h.svc.FamilyWishLists(ctx, family.ID)
	if err != nil {
		return fmt.Errorf("get wish lists: %w", err)
	}
	if len(lists) == 0 {
		reply(bot, message.Chat.ID, "🎁 *No wish lists yet!*\n\nAdd wishes with `/wish <item>`")
		return nil
	}

	var sb strings.Builder
	sb.WriteString("🎁 *Family Wish Lists*\n\n")

	for _, list := range lists {
		items, err := h.svc.ListReservationsForList(ctx, list.ID, user.ID)
		if err != nil {
			return replyServiceError(bot, message.Chat.ID, err)
		}

		isOwnList := list.UserID == user.ID
		title := list.Name
		if isOwnList {
			title = "Your Wishes"
		} else if list.User != nil {
			title = list.User.DisplayName() + "'s Wishes"
		}

		sb.WriteString(fmt.Sprintf("*%s* (%d items)\n", title, len(items)))
		for _, item := range items {
			sb.WriteString(fmt.Sprintf("  *#%d* %s", item.ItemID, item.ItemName))
			if item.Status.TotalQuantity > 1 {
				sb.WriteString(fmt.Sprintf(" x%d", item.Status.TotalQuantity))
			}
			if !isOwnList {
				sb.WriteString(statusBadge(item))
			}
			sb.WriteString("\n")
		}
		if len(items) == 0 {
			sb.WriteString("  _(empty)_\n")
		}
		sb.WriteString("\n")
	}

	sb.WriteString("_Reserve with_ `/reserve <id>`_, chip in with_ `/chipin <id> <amount>`")
	reply(bot, message.Chat.ID, sb.String())

	h.logger.WithFields(logrus.Fields{
		"chat_id":    message.Chat.ID,
		"list_count": len(lists),
	}).Info("Listed family wish lists")

	return nil
}

// statusBadge summarizes availability and the active shared purchase.
func statusBadge(item models.ItemReservations) string {
	st := item.Status
	var badge string
	switch {
	case st.IsFullyPurchased:
		badge = " ✅"
	case st.IsFullyClaimed:
		badge = " 🔒"
	case st.IsReserved || st.IsPurchased:
		badge = fmt.Sprintf(" (%d of %d left)", st.AvailableQuantity, st.TotalQuantity)
	}
	if st.Reservation != nil {
		badge += " ⭐"
	}

	if g := item.SharedPurchase; g != nil {
		if g.IsQuantityBased && g.TargetQuantity != nil {
			badge += fmt.Sprintf(" 🤝 %d/%d", g.TotalQuantity, *g.TargetQuantity)
		} else if g.TargetAmountCents != nil {
			badge += fmt.Sprintf(" 🤝 %s/%s", formatCents(g.TotalAmountCents, nil), formatCents(*g.TargetAmountCents, g.Currency))
		}
		if g.Status == models.GroupStatusLocked {
			badge += " funded"
		}
	}
	return badge
}
