package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/Kerhoff/giftpool/internal/apperr"
	"github.com/Kerhoff/giftpool/internal/locker"
	"github.com/Kerhoff/giftpool/internal/models"
)

type purchaseGroupRepository struct {
	store *Store
	tx    *tx
}

func (r *purchaseGroupRepository) GetByID(ctx context.Context, id int64) (*models.PurchaseGroup, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	return clone(r.store.groups[id]), nil
}

func (r *purchaseGroupRepository) GetForUpdate(ctx context.Context, id int64) (*models.PurchaseGroup, error) {
	if err := r.tx.lock(ctx, locker.GroupKey(id)); err != nil {
		return nil, fmt.Errorf("failed to lock purchase group: %w", err)
	}
	return r.GetByID(ctx, id)
}

func (r *purchaseGroupRepository) GetActiveByItem(ctx context.Context, itemID int64) (*models.PurchaseGroup, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	return clone(r.activeFor(itemID, 0)), nil
}

// activeFor returns the active group of itemID other than exceptID. Callers
// hold store.mu.
func (r *purchaseGroupRepository) activeFor(itemID, exceptID int64) *models.PurchaseGroup {
	var found *models.PurchaseGroup
	for _, g := range r.store.groups {
		if g.ItemID == itemID && g.ID != exceptID && g.IsActive() {
			if found == nil || g.ID > found.ID {
				found = g
			}
		}
	}
	return found
}

func (r *purchaseGroupRepository) GetLatestByItem(ctx context.Context, itemID int64) (*models.PurchaseGroup, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	var latest *models.PurchaseGroup
	for _, g := range r.store.groups {
		if g.ItemID != itemID || g.IsDeleted() {
			continue
		}
		if latest == nil || g.ID > latest.ID {
			latest = g
		}
	}
	return clone(latest), nil
}

func (r *purchaseGroupRepository) ListActiveByItems(ctx context.Context, itemIDs []int64) ([]*models.PurchaseGroup, error) {
	if len(itemIDs) == 0 {
		return nil, nil
	}
	want := idSet(itemIDs)

	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	var out []*models.PurchaseGroup
	for _, id := range sortedIDs(r.store.groups, func(g *models.PurchaseGroup) bool {
		_, ok := want[g.ItemID]
		return ok && g.IsActive()
	}) {
		out = append(out, clone(r.store.groups[id]))
	}
	return out, nil
}

func (r *purchaseGroupRepository) Create(ctx context.Context, g *models.PurchaseGroup) (*models.PurchaseGroup, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	if g.IsActive() && r.activeFor(g.ItemID, 0) != nil {
		return nil, apperr.Conflict("An active shared purchase already exists for this item")
	}

	g.ID = r.store.nextID()
	if g.CreatedAt.IsZero() {
		g.CreatedAt = time.Now()
	}
	g.UpdatedAt = g.CreatedAt
	put(r.tx, r.store.groups, g.ID, clone(g))
	return g, nil
}

func (r *purchaseGroupRepository) Update(ctx context.Context, g *models.PurchaseGroup) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	if _, ok := r.store.groups[g.ID]; !ok {
		return fmt.Errorf("purchase group with ID %d not found", g.ID)
	}
	if g.IsActive() && r.activeFor(g.ItemID, g.ID) != nil {
		return apperr.Conflict("An active shared purchase already exists for this item")
	}
	put(r.tx, r.store.groups, g.ID, clone(g))
	return nil
}
