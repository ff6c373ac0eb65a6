package service

import (
	"context"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/Kerhoff/giftpool/internal/apperr"
	"github.com/Kerhoff/giftpool/internal/ledger"
	"github.com/Kerhoff/giftpool/internal/models"
	"github.com/Kerhoff/giftpool/internal/purchasegroup"
	"github.com/Kerhoff/giftpool/internal/quantity"
	"github.com/Kerhoff/giftpool/internal/repository"
)

// ContributeInput is a pledge toward the active shared purchase of an item.
// A non-empty ExternalName records the pledge on behalf of someone outside
// the app instead of replacing the caller's own contribution.
type ContributeInput struct {
	Amount       any
	Quantity     any
	Fulfilled    bool
	Note         *string
	ExternalName *string
}

// UpdateContributionInput carries optional edits. Nil fields are left
// unchanged.
type UpdateContributionInput struct {
	Amount       any
	Quantity     any
	Status       *string
	Note         *string
	IsExternal   *bool
	ExternalName *string
}

// parseShare validates the amount and unit count of a contribution against
// the kind of goal the group tracks.
func parseShare(g *models.PurchaseGroup, amountIn, qtyIn any) (int64, int, error) {
	if !g.IsQuantityBased {
		amount, err := quantity.RequireAmount(amountIn, "amount", false)
		if err != nil {
			return 0, 0, err
		}
		qty, err := quantity.Optional(qtyIn, "quantity", true)
		if err != nil {
			return 0, 0, err
		}
		if qty == nil {
			return amount, 0, nil
		}
		return amount, *qty, nil
	}

	amount, err := quantity.OptionalAmount(amountIn, "amount", true)
	if err != nil {
		return 0, 0, err
	}
	qty, err := quantity.Optional(qtyIn, "quantity", true)
	if err != nil {
		return 0, 0, err
	}
	var a int64
	var q int
	if amount != nil {
		a = *amount
	}
	if qty != nil {
		q = *qty
	}
	if a == 0 && q == 0 {
		return 0, 0, apperr.Validation("quantity or amount is required")
	}
	return a, q, nil
}

// validateShare checks an edited contribution that still counts.
func validateShare(g *models.PurchaseGroup, c *models.Contribution) error {
	if !c.IsActive() {
		return nil
	}
	if g.IsQuantityBased {
		if c.Quantity < 1 && c.AmountCents < 1 {
			return apperr.Validation("quantity or amount is required")
		}
		return nil
	}
	if c.AmountCents < 1 {
		return apperr.Validation("amount must be at least 1")
	}
	return nil
}

// Contribute pledges toward the active shared purchase of an item, replacing
// the caller's existing contribution in place.
func (s *Service) Contribute(ctx context.Context, itemID, actorID int64, in ContributeInput) (*models.GroupView, error) {
	fields := logrus.Fields{"item_id": itemID, "actor_id": actorID}

	var out *models.GroupView
	err := s.mutate(ctx, "contribute", fields, func(ctx context.Context, repos repository.Repositories) (*models.Event, error) {
		item, err := loadItem(ctx, repos, itemID, actorID, true)
		if err != nil {
			return nil, err
		}

		peek, err := repos.Groups.GetActiveByItem(ctx, item.ID)
		if err != nil {
			return nil, err
		}
		if peek == nil {
			if peek, err = repos.Groups.GetLatestByItem(ctx, item.ID); err != nil {
				return nil, err
			}
		}
		if peek == nil {
			return nil, apperr.NotFound("No shared purchase for this item")
		}
		g, err := repos.Groups.GetForUpdate(ctx, peek.ID)
		if err != nil {
			return nil, err
		}
		if g == nil {
			return nil, apperr.NotFound("No shared purchase for this item")
		}
		fields["group_id"] = g.ID

		if err := purchasegroup.CheckContributable(g, item.IsOwnedBy(actorID)); err != nil {
			return nil, err
		}
		amount, qty, err := parseShare(g, in.Amount, in.Quantity)
		if err != nil {
			return nil, err
		}

		now := s.now()
		status := models.ContributionPledged
		if in.Fulfilled {
			status = models.ContributionFulfilled
		}
		apply := func(c *models.Contribution) {
			c.AmountCents = amount
			c.Quantity = qty
			c.Status = status
			c.Note = trimmed(in.Note)
			c.UpdatedAt = now
			if in.Fulfilled {
				if c.FulfilledAt == nil {
					c.FulfilledAt = &now
				}
			} else {
				c.FulfilledAt = nil
			}
		}

		contributions, err := repos.Contributions.ListByGroup(ctx, g.ID)
		if err != nil {
			return nil, err
		}

		external := trimmed(in.ExternalName)
		existing := ledger.ActiveContributionOf(contributions, actorID)
		switch {
		case external != nil:
			c := &models.Contribution{
				GroupID:      g.ID,
				ItemID:       g.ItemID,
				ListID:       g.ListID,
				CreatedByID:  actorID,
				IsExternal:   true,
				ExternalName: external,
				CreatedAt:    now,
			}
			apply(c)
			if _, err := repos.Contributions.Create(ctx, c); err != nil {
				return nil, err
			}
		case existing != nil:
			apply(existing)
			if err := repos.Contributions.Update(ctx, existing); err != nil {
				return nil, err
			}
		default:
			contributor := actorID
			c := &models.Contribution{
				GroupID:       g.ID,
				ItemID:        g.ItemID,
				ListID:        g.ListID,
				ContributorID: &contributor,
				CreatedByID:   actorID,
				CreatedAt:     now,
			}
			apply(c)
			if _, err := repos.Contributions.Create(ctx, c); err != nil {
				return nil, err
			}
		}

		contributions, err = s.recalculate(ctx, repos, g)
		if err != nil {
			return nil, err
		}
		out = ledger.Hydrate(g, contributions, viewerFor(item, actorID))
		return groupEvent(models.EventContributionUpserted, g, actorID, contributions), nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// lockContribution locks the item and group and resolves a contribution the
// caller may manage.
func lockContribution(ctx context.Context, repos repository.Repositories, groupID, contributionID, actorID int64) (*models.WishItem, *models.PurchaseGroup, *models.Contribution, error) {
	item, g, err := lockGroup(ctx, repos, groupID, actorID)
	if err != nil {
		return nil, nil, nil, err
	}
	if g.IsDeleted() {
		return nil, nil, nil, apperr.NotFound("Shared purchase not found")
	}
	c, err := repos.Contributions.GetByID(ctx, contributionID)
	if err != nil {
		return nil, nil, nil, err
	}
	if c == nil || c.GroupID != g.ID {
		return nil, nil, nil, apperr.NotFound("Contribution not found")
	}
	if !c.IsManagedBy(actorID) {
		return nil, nil, nil, apperr.Forbidden("You can only change your own contribution")
	}
	return item, g, c, nil
}

// UpdateContribution edits a contribution. Setting status to cancelled
// removes it from the group.
func (s *Service) UpdateContribution(ctx context.Context, groupID, contributionID, actorID int64, in UpdateContributionInput) (*models.GroupView, error) {
	var status models.ContributionStatus
	if in.Status != nil {
		st, ok := models.ParseContributionStatus(strings.ToLower(strings.TrimSpace(*in.Status)))
		if !ok {
			return nil, apperr.Validation("invalid status %q", *in.Status)
		}
		status = st
	}
	amount, err := quantity.OptionalAmount(in.Amount, "amount", true)
	if err != nil {
		return nil, err
	}
	qty, err := quantity.Optional(in.Quantity, "quantity", true)
	if err != nil {
		return nil, err
	}
	fields := logrus.Fields{"group_id": groupID, "contribution_id": contributionID, "actor_id": actorID}

	var out *models.GroupView
	err = s.mutate(ctx, "update_contribution", fields, func(ctx context.Context, repos repository.Repositories) (*models.Event, error) {
		item, g, c, err := lockContribution(ctx, repos, groupID, contributionID, actorID)
		if err != nil {
			return nil, err
		}
		fields["item_id"] = g.ItemID

		now := s.now()
		if amount != nil {
			c.AmountCents = *amount
		}
		if qty != nil {
			c.Quantity = *qty
		}
		if in.Note != nil {
			c.Note = trimmed(in.Note)
		}
		if in.IsExternal != nil {
			if *in.IsExternal {
				name := trimmed(in.ExternalName)
				if name == nil {
					name = c.ExternalName
				}
				if name == nil {
					return nil, apperr.Validation("external_name is required for an external contribution")
				}
				c.IsExternal = true
				c.ExternalName = name
				c.ContributorID = nil
			} else if c.IsExternal {
				// taking the pledge over is a contribution of the actor's own
				if err := purchasegroup.CheckContributable(g, item.IsOwnedBy(actorID)); err != nil {
					return nil, err
				}
				live, err := repos.Contributions.ListByGroup(ctx, g.ID)
				if err != nil {
					return nil, err
				}
				if mine := ledger.ActiveContributionOf(live, actorID); mine != nil && mine.ID != c.ID {
					return nil, apperr.Conflict("You already have a contribution in this shared purchase")
				}
				contributor := actorID
				c.IsExternal = false
				c.ExternalName = nil
				c.ContributorID = &contributor
			}
		} else if in.ExternalName != nil && c.IsExternal {
			if name := trimmed(in.ExternalName); name != nil {
				c.ExternalName = name
			}
		}
		if status != "" {
			c.Status = status
			switch status {
			case models.ContributionFulfilled:
				if c.FulfilledAt == nil {
					c.FulfilledAt = &now
				}
			case models.ContributionCancelled:
				c.DeletedAt = &now
			}
		}
		if err := validateShare(g, c); err != nil {
			return nil, err
		}
		c.UpdatedAt = now
		if err := repos.Contributions.Update(ctx, c); err != nil {
			return nil, err
		}

		contributions, err := s.recalculate(ctx, repos, g)
		if err != nil {
			return nil, err
		}
		out = ledger.Hydrate(g, contributions, viewerFor(item, actorID))
		return groupEvent(models.EventContributionUpdated, g, actorID, contributions), nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// DeleteContribution cancels a contribution and recalculates the group.
func (s *Service) DeleteContribution(ctx context.Context, groupID, contributionID, actorID int64) (*models.GroupView, error) {
	fields := logrus.Fields{"group_id": groupID, "contribution_id": contributionID, "actor_id": actorID}

	var out *models.GroupView
	err := s.mutate(ctx, "delete_contribution", fields, func(ctx context.Context, repos repository.Repositories) (*models.Event, error) {
		item, g, c, err := lockContribution(ctx, repos, groupID, contributionID, actorID)
		if err != nil {
			return nil, err
		}
		fields["item_id"] = g.ItemID

		now := s.now()
		c.Status = models.ContributionCancelled
		c.DeletedAt = &now
		c.UpdatedAt = now
		if err := repos.Contributions.Update(ctx, c); err != nil {
			return nil, err
		}

		contributions, err := s.recalculate(ctx, repos, g)
		if err != nil {
			return nil, err
		}
		out = ledger.Hydrate(g, contributions, viewerFor(item, actorID))
		return groupEvent(models.EventContributionCancelled, g, actorID, contributions), nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
