// Package purchasegroup owns the shared purchase lifecycle:
//
//	open -> locked -> completed | abandoned
//
// locked falls back to open when contributions drop under the goal. Automatic
// recalculation never touches completed or abandoned groups; only an explicit
// reopen leaves a terminal state.
package purchasegroup

import (
	"strings"
	"time"

	"github.com/Kerhoff/giftpool/internal/apperr"
	"github.com/Kerhoff/giftpool/internal/ledger"
	"github.com/Kerhoff/giftpool/internal/models"
	"github.com/Kerhoff/giftpool/internal/quantity"
)

// Goal is a validated goal definition.
type Goal struct {
	TargetAmountCents *int64
	Currency          *string
	IsQuantityBased   bool
	TargetQuantity    *int
}

// GoalInput is the raw goal as received from a caller.
type GoalInput struct {
	TargetAmount    any
	Currency        string
	IsQuantityBased bool
	TargetQuantity  any
}

// ParseGoal validates a goal definition. Monetary goals need a positive
// amount and a three-letter currency; quantity-based goals default their
// target to one unit and may additionally carry a monetary target, which a
// zero amount clears.
func ParseGoal(in GoalInput) (Goal, error) {
	var g Goal
	if in.IsQuantityBased {
		g.IsQuantityBased = true
		target := quantity.DefaultQuantity
		if quantity.Present(in.TargetQuantity) {
			n, err := quantity.Require(in.TargetQuantity, "target_quantity", false)
			if err != nil {
				return Goal{}, err
			}
			target = n
		}
		g.TargetQuantity = &target

		amount, err := quantity.OptionalAmount(in.TargetAmount, "target_amount", true)
		if err != nil {
			return Goal{}, err
		}
		if amount != nil && *amount > 0 {
			cur, err := NormalizeCurrency(in.Currency)
			if err != nil {
				return Goal{}, err
			}
			g.TargetAmountCents = amount
			g.Currency = &cur
		}
		return g, nil
	}

	amount, err := quantity.RequireAmount(in.TargetAmount, "target_amount", false)
	if err != nil {
		return Goal{}, err
	}
	cur, err := NormalizeCurrency(in.Currency)
	if err != nil {
		return Goal{}, err
	}
	g.TargetAmountCents = &amount
	g.Currency = &cur
	return g, nil
}

// NormalizeCurrency upper-cases and validates an ISO-4217 style code.
func NormalizeCurrency(raw string) (string, error) {
	code := strings.ToUpper(strings.TrimSpace(raw))
	if len(code) != 3 {
		return "", apperr.Validation("currency must be a 3-letter code")
	}
	for _, r := range code {
		if r < 'A' || r > 'Z' {
			return "", apperr.Validation("currency must be a 3-letter code")
		}
	}
	return code, nil
}

// New builds an open group for item created by creatorID.
func New(item *models.WishItem, creatorID int64, goal Goal, notes *string, now time.Time) *models.PurchaseGroup {
	return &models.PurchaseGroup{
		ItemID:            item.ID,
		ListID:            item.WishListID,
		CreatedByID:       creatorID,
		Status:            models.GroupStatusOpen,
		TargetAmountCents: goal.TargetAmountCents,
		Currency:          goal.Currency,
		IsQuantityBased:   goal.IsQuantityBased,
		TargetQuantity:    goal.TargetQuantity,
		Notes:             notes,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}

// Recalculate applies the automatic transitions for the given totals and
// reports whether g changed. Running it twice without a change in totals is a
// no-op.
func Recalculate(g *models.PurchaseGroup, totals ledger.Totals, now time.Time) bool {
	if g.Status.IsTerminal() || g.IsDeleted() {
		return false
	}
	if ledger.GoalMet(g, totals) {
		if g.Status == models.GroupStatusLocked && g.LockedAt != nil {
			return false
		}
		g.Status = models.GroupStatusLocked
		if g.LockedAt == nil {
			g.LockedAt = &now
		}
		g.UpdatedAt = now
		return true
	}
	if g.Status == models.GroupStatusLocked {
		g.Status = models.GroupStatusOpen
		g.LockedAt = nil
		g.UpdatedAt = now
		return true
	}
	return false
}

// Transition applies an explicit status change requested by a collaborator.
func Transition(g *models.PurchaseGroup, target models.GroupStatus, totals ledger.Totals, now time.Time) error {
	switch target {
	case models.GroupStatusOpen:
		g.Status = models.GroupStatusOpen
		g.LockedAt = nil
		g.CompletedAt = nil
		g.AbandonedAt = nil
		g.DeletedAt = nil

	case models.GroupStatusLocked:
		if g.Status.IsTerminal() {
			return apperr.Conflict("Shared purchase is already %s", g.Status)
		}
		g.Status = models.GroupStatusLocked
		if g.LockedAt == nil {
			g.LockedAt = &now
		}

	case models.GroupStatusCompleted:
		if g.Status == models.GroupStatusCompleted {
			return nil
		}
		if g.Status == models.GroupStatusAbandoned {
			return apperr.Conflict("Shared purchase was abandoned")
		}
		if !ledger.GoalMet(g, totals) {
			return apperr.Conflict("Shared purchase goal has not been met yet")
		}
		g.Status = models.GroupStatusCompleted
		if g.LockedAt == nil {
			g.LockedAt = &now
		}
		g.CompletedAt = &now

	case models.GroupStatusAbandoned:
		if g.Status == models.GroupStatusCompleted {
			return apperr.Conflict("Shared purchase is already completed")
		}
		if g.Status == models.GroupStatusAbandoned {
			return nil
		}
		g.Status = models.GroupStatusAbandoned
		g.AbandonedAt = &now

	default:
		return apperr.Validation("invalid status %q", target)
	}
	g.UpdatedAt = now
	return nil
}

// MarkDeleted abandons and soft-deletes g.
func MarkDeleted(g *models.PurchaseGroup, now time.Time) {
	g.Status = models.GroupStatusAbandoned
	if g.AbandonedAt == nil {
		g.AbandonedAt = &now
	}
	g.DeletedAt = &now
	g.UpdatedAt = now
}

// CheckContributable gates new or replaced contributions. The item owner may
// only top up a locked group; everyone else may only contribute while open.
func CheckContributable(g *models.PurchaseGroup, actorIsOwner bool) error {
	switch {
	case g.IsDeleted():
		return apperr.NotFound("Shared purchase not found")
	case g.Status.IsTerminal():
		return apperr.Conflict("Shared purchase is %s", g.Status)
	case g.Status == models.GroupStatusLocked && !actorIsOwner:
		return apperr.Conflict("Shared purchase is locked")
	case g.Status == models.GroupStatusOpen && actorIsOwner:
		return apperr.Forbidden("You cannot contribute to a shared purchase for your own item")
	}
	return nil
}
