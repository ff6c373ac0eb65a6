package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/Kerhoff/giftpool/internal/apperr"
	"github.com/Kerhoff/giftpool/internal/models"
)

type reservationRepository struct {
	store *Store
	tx    *tx
}

func (r *reservationRepository) GetByID(ctx context.Context, id int64) (*models.Reservation, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	return clone(r.store.reservations[id]), nil
}

func (r *reservationRepository) ListActiveByItem(ctx context.Context, itemID int64) ([]*models.Reservation, error) {
	return r.ListActiveByItems(ctx, []int64{itemID})
}

func (r *reservationRepository) ListActiveByItems(ctx context.Context, itemIDs []int64) ([]*models.Reservation, error) {
	if len(itemIDs) == 0 {
		return nil, nil
	}
	want := idSet(itemIDs)

	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	var out []*models.Reservation
	for _, id := range sortedIDs(r.store.reservations, func(res *models.Reservation) bool {
		_, ok := want[res.ItemID]
		return ok && res.IsActive()
	}) {
		out = append(out, clone(r.store.reservations[id]))
	}
	return out, nil
}

// pendingTaken reports whether another pending reservation already exists
// for the same (item, claimant). Callers hold store.mu.
func (r *reservationRepository) pendingTaken(res *models.Reservation) bool {
	if !res.IsPending() {
		return false
	}
	for _, other := range r.store.reservations {
		if other.ID != res.ID && other.ItemID == res.ItemID && other.ReservedByID == res.ReservedByID && other.IsPending() {
			return true
		}
	}
	return false
}

func (r *reservationRepository) Create(ctx context.Context, res *models.Reservation) (*models.Reservation, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	if r.pendingTaken(res) {
		return nil, apperr.Conflict("You already hold a pending reservation for this item")
	}

	now := time.Now()
	res.ID = r.store.nextID()
	res.CreatedAt = now
	res.UpdatedAt = now
	put(r.tx, r.store.reservations, res.ID, clone(res))
	return res, nil
}

func (r *reservationRepository) Update(ctx context.Context, res *models.Reservation) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	if _, ok := r.store.reservations[res.ID]; !ok {
		return fmt.Errorf("reservation with ID %d not found", res.ID)
	}
	if r.pendingTaken(res) {
		return apperr.Conflict("You already hold a pending reservation for this item")
	}
	res.UpdatedAt = time.Now()
	put(r.tx, r.store.reservations, res.ID, clone(res))
	return nil
}

func (r *reservationRepository) DetachGroup(ctx context.Context, groupID int64) (int64, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	now := time.Now()
	var n int64
	for id, res := range r.store.reservations {
		if res.PurchaseGroupID == nil || *res.PurchaseGroupID != groupID {
			continue
		}
		updated := clone(res)
		updated.PurchaseGroupID = nil
		updated.UpdatedAt = now
		put(r.tx, r.store.reservations, id, updated)
		n++
	}
	return n, nil
}
