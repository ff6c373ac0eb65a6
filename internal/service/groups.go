package service

import (
	"context"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/Kerhoff/giftpool/internal/apperr"
	"github.com/Kerhoff/giftpool/internal/ledger"
	"github.com/Kerhoff/giftpool/internal/models"
	"github.com/Kerhoff/giftpool/internal/purchasegroup"
	"github.com/Kerhoff/giftpool/internal/repository"
)

// CreateGroupInput declares the goal of a new shared purchase.
type CreateGroupInput struct {
	TargetAmount    any
	Currency        string
	IsQuantityBased bool
	TargetQuantity  any
	Notes           *string
}

// ManageGroupInput carries optional edits. Nil fields are left unchanged.
type ManageGroupInput struct {
	Status          *string
	Notes           *string
	TargetAmount    any
	Currency        *string
	IsQuantityBased *bool
	TargetQuantity  any
}

func (in ManageGroupInput) editsGoal() bool {
	return in.TargetAmount != nil || in.Currency != nil || in.IsQuantityBased != nil || in.TargetQuantity != nil
}

func groupEvent(t models.EventType, g *models.PurchaseGroup, actorID int64, contributions []*models.Contribution) *models.Event {
	id := g.ID
	ev := models.NewEvent(t, g.ListID, g.ItemID, actorID, &id, ledger.Summarize(g, contributions))
	return &ev
}

// lockGroup resolves a group by id and locks its item then the group row.
// Deleted groups are returned as is; callers decide whether that is an error.
func lockGroup(ctx context.Context, repos repository.Repositories, groupID, actorID int64) (*models.WishItem, *models.PurchaseGroup, error) {
	peek, err := repos.Groups.GetByID(ctx, groupID)
	if err != nil {
		return nil, nil, err
	}
	if peek == nil {
		return nil, nil, apperr.NotFound("Shared purchase not found")
	}
	item, err := loadItem(ctx, repos, peek.ItemID, actorID, true)
	if err != nil {
		return nil, nil, err
	}
	g, err := repos.Groups.GetForUpdate(ctx, groupID)
	if err != nil {
		return nil, nil, err
	}
	if g == nil {
		return nil, nil, apperr.NotFound("Shared purchase not found")
	}
	return item, g, nil
}

// recalculate re-reads the live contributions of g, applies the automatic
// transitions and persists g when they changed it.
func (s *Service) recalculate(ctx context.Context, repos repository.Repositories, g *models.PurchaseGroup) ([]*models.Contribution, error) {
	contributions, err := repos.Contributions.ListByGroup(ctx, g.ID)
	if err != nil {
		return nil, err
	}
	if purchasegroup.Recalculate(g, ledger.Sum(contributions), s.now()) {
		if err := repos.Groups.Update(ctx, g); err != nil {
			return nil, err
		}
	}
	return contributions, nil
}

// CreateGroup starts a shared purchase on an item. The creator's pending
// reservation, if any, is linked to the new group.
func (s *Service) CreateGroup(ctx context.Context, itemID, actorID int64, in CreateGroupInput) (*models.GroupView, error) {
	goal, err := purchasegroup.ParseGoal(purchasegroup.GoalInput{
		TargetAmount:    in.TargetAmount,
		Currency:        in.Currency,
		IsQuantityBased: in.IsQuantityBased,
		TargetQuantity:  in.TargetQuantity,
	})
	if err != nil {
		return nil, err
	}
	fields := logrus.Fields{"item_id": itemID, "actor_id": actorID}

	var out *models.GroupView
	err = s.mutate(ctx, "create_group", fields, func(ctx context.Context, repos repository.Repositories) (*models.Event, error) {
		item, err := loadItem(ctx, repos, itemID, actorID, true)
		if err != nil {
			return nil, err
		}
		if item.IsOwnedBy(actorID) {
			return nil, apperr.Forbidden("You cannot start a shared purchase for your own item")
		}

		existing, err := repos.Groups.GetActiveByItem(ctx, item.ID)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return nil, apperr.Conflict("An active shared purchase already exists for this item")
		}

		g, err := repos.Groups.Create(ctx, purchasegroup.New(item, actorID, goal, trimmed(in.Notes), s.now()))
		if err != nil {
			return nil, err
		}
		fields["group_id"] = g.ID

		rows, err := repos.Reservations.ListActiveByItem(ctx, item.ID)
		if err != nil {
			return nil, err
		}
		if pending := ledger.PendingFor(rows, actorID); pending != nil {
			pending.PurchaseGroupID = &g.ID
			if err := repos.Reservations.Update(ctx, pending); err != nil {
				return nil, err
			}
		}

		out = ledger.Hydrate(g, nil, viewerFor(item, actorID))
		return groupEvent(models.EventGroupCreated, g, actorID, nil), nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// GetGroup returns the active shared purchase of an item, falling back to the
// most recent finished one.
func (s *Service) GetGroup(ctx context.Context, itemID, actorID int64) (*models.GroupView, error) {
	var out *models.GroupView
	err := s.read(ctx, "get_group", logrus.Fields{"item_id": itemID, "actor_id": actorID}, func(ctx context.Context, repos repository.Repositories) error {
		item, err := loadItem(ctx, repos, itemID, actorID, false)
		if err != nil {
			return err
		}
		g, err := repos.Groups.GetActiveByItem(ctx, item.ID)
		if err != nil {
			return err
		}
		if g == nil {
			if g, err = repos.Groups.GetLatestByItem(ctx, item.ID); err != nil {
				return err
			}
		}
		if g == nil {
			return apperr.NotFound("No shared purchase for this item")
		}
		contributions, err := repos.Contributions.ListByGroup(ctx, g.ID)
		if err != nil {
			return err
		}
		out = ledger.Hydrate(g, contributions, viewerFor(item, actorID))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ManageGroup applies field edits and an optional explicit status change.
// Edits are applied first, then the automatic recalculation, then the
// requested transition.
func (s *Service) ManageGroup(ctx context.Context, groupID, actorID int64, in ManageGroupInput) (*models.GroupView, error) {
	var target models.GroupStatus
	if in.Status != nil {
		st, ok := models.ParseGroupStatus(strings.ToLower(strings.TrimSpace(*in.Status)))
		if !ok {
			return nil, apperr.Validation("invalid status %q", *in.Status)
		}
		target = st
	}
	fields := logrus.Fields{"group_id": groupID, "actor_id": actorID}
	if target != "" {
		fields["status"] = target
	}

	var out *models.GroupView
	err := s.mutate(ctx, "manage_group", fields, func(ctx context.Context, repos repository.Repositories) (*models.Event, error) {
		item, g, err := lockGroup(ctx, repos, groupID, actorID)
		if err != nil {
			return nil, err
		}
		fields["item_id"] = item.ID
		if g.IsDeleted() && target != models.GroupStatusOpen {
			return nil, apperr.NotFound("Shared purchase not found")
		}

		now := s.now()
		if in.Notes != nil {
			g.Notes = trimmed(in.Notes)
		}
		if in.editsGoal() {
			goal, err := purchasegroup.ParseGoal(mergeGoal(g, in))
			if err != nil {
				return nil, err
			}
			g.TargetAmountCents = goal.TargetAmountCents
			g.Currency = goal.Currency
			g.IsQuantityBased = goal.IsQuantityBased
			g.TargetQuantity = goal.TargetQuantity
		}
		g.UpdatedAt = now

		contributions, err := repos.Contributions.ListByGroup(ctx, g.ID)
		if err != nil {
			return nil, err
		}
		totals := ledger.Sum(contributions)
		purchasegroup.Recalculate(g, totals, now)

		if target != "" {
			if target == models.GroupStatusOpen && !g.IsActive() {
				other, err := repos.Groups.GetActiveByItem(ctx, g.ItemID)
				if err != nil {
					return nil, err
				}
				if other != nil && other.ID != g.ID {
					return nil, apperr.Conflict("Another shared purchase is already active for this item")
				}
			}
			// An unlock would be undone by the recalculation below while the
			// goal is still met.
			if target == models.GroupStatusOpen && g.Status == models.GroupStatusLocked && ledger.GoalMet(g, totals) {
				return nil, apperr.Conflict("Shared purchase is fully funded; lower the goal or reduce a contribution to reopen it")
			}
			if err := purchasegroup.Transition(g, target, totals, now); err != nil {
				return nil, err
			}
			// A reactivated group relocks at once when it is already funded.
			if target == models.GroupStatusOpen {
				purchasegroup.Recalculate(g, totals, now)
			}
		}

		if err := repos.Groups.Update(ctx, g); err != nil {
			return nil, err
		}

		out = ledger.Hydrate(g, contributions, viewerFor(item, actorID))
		return groupEvent(models.EventGroupUpdated, g, actorID, contributions), nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// mergeGoal overlays the edits in `in` on the current goal of g.
func mergeGoal(g *models.PurchaseGroup, in ManageGroupInput) purchasegroup.GoalInput {
	goal := purchasegroup.GoalInput{
		IsQuantityBased: g.IsQuantityBased,
	}
	if g.TargetAmountCents != nil {
		goal.TargetAmount = *g.TargetAmountCents
	}
	if g.Currency != nil {
		goal.Currency = *g.Currency
	}
	if g.TargetQuantity != nil {
		goal.TargetQuantity = *g.TargetQuantity
	}

	if in.TargetAmount != nil {
		goal.TargetAmount = in.TargetAmount
	}
	if in.Currency != nil {
		goal.Currency = *in.Currency
	}
	if in.IsQuantityBased != nil {
		goal.IsQuantityBased = *in.IsQuantityBased
	}
	if in.TargetQuantity != nil {
		goal.TargetQuantity = in.TargetQuantity
	}
	return goal
}

// DeleteGroup abandons and soft-deletes a group, cancels its contributions
// and detaches reservations pointing at it. Only the group's creator or the
// item owner may delete.
func (s *Service) DeleteGroup(ctx context.Context, groupID, actorID int64) (*models.GroupView, error) {
	fields := logrus.Fields{"group_id": groupID, "actor_id": actorID}

	var out *models.GroupView
	err := s.mutate(ctx, "delete_group", fields, func(ctx context.Context, repos repository.Repositories) (*models.Event, error) {
		item, g, err := lockGroup(ctx, repos, groupID, actorID)
		if err != nil {
			return nil, err
		}
		fields["item_id"] = item.ID
		if g.IsDeleted() {
			return nil, apperr.NotFound("Shared purchase not found")
		}
		if g.CreatedByID != actorID && !item.IsOwnedBy(actorID) {
			return nil, apperr.Forbidden("Only the organizer or the list owner can delete this shared purchase")
		}

		now := s.now()
		purchasegroup.MarkDeleted(g, now)
		if err := repos.Groups.Update(ctx, g); err != nil {
			return nil, err
		}
		cancelled, err := repos.Contributions.CancelAllByGroup(ctx, g.ID, now)
		if err != nil {
			return nil, err
		}
		detached, err := repos.Reservations.DetachGroup(ctx, g.ID)
		if err != nil {
			return nil, err
		}
		fields["cancelled_contributions"] = cancelled
		fields["detached_reservations"] = detached

		out = ledger.Hydrate(g, nil, viewerFor(item, actorID))
		return groupEvent(models.EventGroupDeleted, g, actorID, nil), nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func trimmed(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}
