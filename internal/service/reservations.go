package service

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/Kerhoff/giftpool/internal/apperr"
	"github.com/Kerhoff/giftpool/internal/ledger"
	"github.com/Kerhoff/giftpool/internal/models"
	"github.com/Kerhoff/giftpool/internal/quantity"
	"github.com/Kerhoff/giftpool/internal/repository"
)

// ClaimInput is the payload of Claim. Quantity defaults to one unit.
type ClaimInput struct {
	Quantity any
	Message  *string
}

// PurchaseInput is the payload of Purchase. A nil Quantity takes the
// quantity of the caller's pending reservation.
type PurchaseInput struct {
	Quantity any
	Message  *string
}

// ReleaseInput optionally names the reservation to release.
type ReleaseInput struct {
	ReservationID *int64
}

func viewerFor(item *models.WishItem, actorID int64) ledger.Viewer {
	return ledger.Viewer{ID: actorID, IsOwner: item.IsOwnedBy(actorID)}
}

// itemStatus re-reads the active reservations of item and aggregates them.
func itemStatus(ctx context.Context, repos repository.Repositories, item *models.WishItem, viewer ledger.Viewer) (models.ReservationStatus, []*models.Reservation, error) {
	rows, err := repos.Reservations.ListActiveByItem(ctx, item.ID)
	if err != nil {
		return models.ReservationStatus{}, nil, err
	}
	return ledger.ComputeStatus(item, rows, viewer), rows, nil
}

func reservationEvent(t models.EventType, item *models.WishItem, actorID int64, rows []*models.Reservation) *models.Event {
	ev := models.NewEvent(t, item.WishListID, item.ID, actorID, nil, ledger.ComputeStatus(item, rows, ledger.OwnerView))
	return &ev
}

// GetStatus returns the availability snapshot of an item as seen by actorID.
// It takes no locks.
func (s *Service) GetStatus(ctx context.Context, itemID, actorID int64) (*models.ReservationStatus, error) {
	var out models.ReservationStatus
	err := s.read(ctx, "get_status", logrus.Fields{"item_id": itemID, "actor_id": actorID}, func(ctx context.Context, repos repository.Repositories) error {
		item, err := loadItem(ctx, repos, itemID, actorID, false)
		if err != nil {
			return err
		}
		out, _, err = itemStatus(ctx, repos, item, viewerFor(item, actorID))
		return err
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Claim reserves units of an item for actorID. A repeat claim grows the
// caller's pending reservation instead of adding a row.
func (s *Service) Claim(ctx context.Context, itemID, actorID int64, in ClaimInput) (*models.ReservationResult, error) {
	qty := quantity.Normalize(in.Quantity, quantity.DefaultQuantity)
	fields := logrus.Fields{"item_id": itemID, "actor_id": actorID, "quantity": qty}

	var out models.ReservationResult
	err := s.mutate(ctx, "claim", fields, func(ctx context.Context, repos repository.Repositories) (*models.Event, error) {
		item, err := loadItem(ctx, repos, itemID, actorID, true)
		if err != nil {
			return nil, err
		}
		if item.IsOwnedBy(actorID) {
			return nil, apperr.Forbidden("You cannot reserve an item on your own list")
		}
		viewer := viewerFor(item, actorID)

		st, rows, err := itemStatus(ctx, repos, item, viewer)
		if err != nil {
			return nil, err
		}
		if err := ledger.RequireAvailable(st, qty); err != nil {
			return nil, err
		}

		if pending := ledger.PendingFor(rows, actorID); pending != nil {
			pending.Quantity += qty
			if in.Message != nil {
				pending.Message = in.Message
			}
			if err := repos.Reservations.Update(ctx, pending); err != nil {
				return nil, err
			}
		} else {
			owner := item.OwnerID
			if _, err := repos.Reservations.Create(ctx, &models.Reservation{
				ItemID:        item.ID,
				ReservedByID:  actorID,
				ReservedForID: &owner,
				Quantity:      qty,
				Message:       in.Message,
			}); err != nil {
				return nil, err
			}
		}

		out.Status, rows, err = itemStatus(ctx, repos, item, viewer)
		if err != nil {
			return nil, err
		}
		out.Reservation = out.Status.Reservation
		return reservationEvent(models.EventReservationClaimed, item, actorID, rows), nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Purchase marks units as bought. A pending reservation is converted whole;
// without one, a direct purchase is limited by availability.
func (s *Service) Purchase(ctx context.Context, itemID, actorID int64, in PurchaseInput) (*models.ReservationResult, error) {
	fields := logrus.Fields{"item_id": itemID, "actor_id": actorID}

	var out models.ReservationResult
	err := s.mutate(ctx, "purchase", fields, func(ctx context.Context, repos repository.Repositories) (*models.Event, error) {
		item, err := loadItem(ctx, repos, itemID, actorID, true)
		if err != nil {
			return nil, err
		}
		if item.IsOwnedBy(actorID) {
			return nil, apperr.Forbidden("You cannot purchase an item on your own list")
		}
		viewer := viewerFor(item, actorID)

		st, rows, err := itemStatus(ctx, repos, item, viewer)
		if err != nil {
			return nil, err
		}

		now := s.now()
		if pending := ledger.PendingFor(rows, actorID); pending != nil {
			if quantity.Present(in.Quantity) {
				if qty := quantity.Normalize(in.Quantity, quantity.DefaultQuantity); qty != pending.Quantity {
					return nil, apperr.Conflict("You reserved %d item(s) but are purchasing %d; release the reservation and reserve again", pending.Quantity, qty)
				}
			}
			pending.Purchased = true
			pending.PurchasedAt = &now
			if in.Message != nil {
				pending.Message = in.Message
			}
			if err := repos.Reservations.Update(ctx, pending); err != nil {
				return nil, err
			}
		} else {
			qty := quantity.Normalize(in.Quantity, quantity.DefaultQuantity)
			if err := ledger.RequireAvailable(st, qty); err != nil {
				return nil, err
			}
			owner := item.OwnerID
			if _, err := repos.Reservations.Create(ctx, &models.Reservation{
				ItemID:        item.ID,
				ReservedByID:  actorID,
				ReservedForID: &owner,
				Quantity:      qty,
				Purchased:     true,
				PurchasedAt:   &now,
				Message:       in.Message,
			}); err != nil {
				return nil, err
			}
		}

		out.Status, rows, err = itemStatus(ctx, repos, item, viewer)
		if err != nil {
			return nil, err
		}
		out.Reservation = out.Status.Reservation
		return reservationEvent(models.EventReservationPurchased, item, actorID, rows), nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Release soft-deletes one of the caller's reservations, returning its units
// to the pool.
func (s *Service) Release(ctx context.Context, itemID, actorID int64, in ReleaseInput) (*models.ReservationStatus, error) {
	fields := logrus.Fields{"item_id": itemID, "actor_id": actorID}
	if in.ReservationID != nil {
		fields["reservation_id"] = *in.ReservationID
	}

	var out models.ReservationStatus
	err := s.mutate(ctx, "release", fields, func(ctx context.Context, repos repository.Repositories) (*models.Event, error) {
		item, err := loadItem(ctx, repos, itemID, actorID, true)
		if err != nil {
			return nil, err
		}
		viewer := viewerFor(item, actorID)

		_, rows, err := itemStatus(ctx, repos, item, viewer)
		if err != nil {
			return nil, err
		}

		var target *models.Reservation
		if in.ReservationID != nil {
			target, err = repos.Reservations.GetByID(ctx, *in.ReservationID)
			if err != nil {
				return nil, err
			}
			if target == nil || target.ItemID != item.ID || !target.IsActive() {
				return nil, apperr.NotFound("Reservation not found")
			}
			if target.ReservedByID != actorID {
				return nil, apperr.Forbidden("You can only release your own reservation")
			}
		} else {
			mine := ledger.ActiveFor(rows, actorID)
			switch len(mine) {
			case 0:
				return nil, apperr.NotFound("You have no reservation for this item")
			case 1:
				target = mine[0]
			default:
				return nil, apperr.Validation("reservation_id is required when you hold more than one reservation for this item")
			}
		}

		now := s.now()
		target.DeletedAt = &now
		if err := repos.Reservations.Update(ctx, target); err != nil {
			return nil, err
		}

		out, rows, err = itemStatus(ctx, repos, item, viewer)
		if err != nil {
			return nil, err
		}
		return reservationEvent(models.EventReservationReleased, item, actorID, rows), nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// ListReservationsForList returns the status of every item on a list along
// with a summary of each active shared purchase.
func (s *Service) ListReservationsForList(ctx context.Context, listID, actorID int64) ([]models.ItemReservations, error) {
	var out []models.ItemReservations
	err := s.read(ctx, "list_reservations", logrus.Fields{"list_id": listID, "actor_id": actorID}, func(ctx context.Context, repos repository.Repositories) error {
		list, err := repos.WishLists.GetListByID(ctx, listID)
		if err != nil {
			return err
		}
		if list == nil {
			return apperr.NotFound("Wish list not found")
		}
		if err := requireAccess(ctx, repos, listID, actorID); err != nil {
			return err
		}

		items, err := repos.WishLists.GetItems(ctx, listID)
		if err != nil {
			return err
		}
		itemIDs := make([]int64, 0, len(items))
		for _, item := range items {
			itemIDs = append(itemIDs, item.ID)
		}

		reservations, err := repos.Reservations.ListActiveByItems(ctx, itemIDs)
		if err != nil {
			return err
		}
		byItem := make(map[int64][]*models.Reservation, len(items))
		for _, r := range reservations {
			byItem[r.ItemID] = append(byItem[r.ItemID], r)
		}

		groups, err := repos.Groups.ListActiveByItems(ctx, itemIDs)
		if err != nil {
			return err
		}
		groupIDs := make([]int64, 0, len(groups))
		groupByItem := make(map[int64]*models.PurchaseGroup, len(groups))
		for _, g := range groups {
			groupIDs = append(groupIDs, g.ID)
			groupByItem[g.ItemID] = g
		}
		contributions, err := repos.Contributions.ListByGroups(ctx, groupIDs)
		if err != nil {
			return err
		}
		byGroup := make(map[int64][]*models.Contribution, len(groups))
		for _, c := range contributions {
			byGroup[c.GroupID] = append(byGroup[c.GroupID], c)
		}

		out = make([]models.ItemReservations, 0, len(items))
		for _, item := range items {
			entry := models.ItemReservations{
				ItemID:   item.ID,
				ItemName: item.Name,
				Status:   ledger.ComputeStatus(item, byItem[item.ID], viewerFor(item, actorID)),
			}
			if g, ok := groupByItem[item.ID]; ok {
				entry.SharedPurchase = ledger.Summarize(g, byGroup[g.ID])
			}
			out = append(out, entry)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
