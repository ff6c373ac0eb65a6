package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/Kerhoff/giftpool/internal/locker"
	"github.com/Kerhoff/giftpool/internal/models"
)

type wishListRepository struct {
	store *Store
	tx    *tx
}

func (r *wishListRepository) CreateList(ctx context.Context, list *models.WishList) (*models.WishList, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	now := time.Now()
	list.ID = r.store.nextID()
	list.CreatedAt = now
	list.UpdatedAt = now
	put(r.tx, r.store.lists, list.ID, clone(list))
	return list, nil
}

func (r *wishListRepository) GetListByUser(ctx context.Context, userID, familyID int64) (*models.WishList, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	var latest *models.WishList
	for _, l := range r.store.lists {
		if l.UserID != userID || l.FamilyID != familyID {
			continue
		}
		if latest == nil || l.ID > latest.ID {
			latest = l
		}
	}
	return clone(latest), nil
}

func (r *wishListRepository) GetListByID(ctx context.Context, id int64) (*models.WishList, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	return clone(r.store.lists[id]), nil
}

func (r *wishListRepository) GetListsByFamily(ctx context.Context, familyID int64) ([]*models.WishList, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	var out []*models.WishList
	for _, id := range sortedIDs(r.store.lists, func(l *models.WishList) bool { return l.FamilyID == familyID }) {
		out = append(out, clone(r.store.lists[id]))
	}
	return out, nil
}

func (r *wishListRepository) AddItem(ctx context.Context, item *models.WishItem) (*models.WishItem, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	list, ok := r.store.lists[item.WishListID]
	if !ok {
		return nil, fmt.Errorf("failed to add wish item: list %d not found", item.WishListID)
	}
	item.ID = r.store.nextID()
	item.Quantity = item.TotalQuantity()
	item.OwnerID = list.UserID
	item.FamilyID = list.FamilyID
	item.CreatedAt = time.Now()
	put(r.tx, r.store.items, item.ID, clone(item))
	return item, nil
}

func (r *wishListRepository) GetItem(ctx context.Context, id int64) (*models.WishItem, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	return r.joinItem(r.store.items[id]), nil
}

func (r *wishListRepository) GetItemForUpdate(ctx context.Context, id int64) (*models.WishItem, error) {
	if err := r.tx.lock(ctx, locker.ItemKey(id)); err != nil {
		return nil, fmt.Errorf("failed to lock wish item: %w", err)
	}
	return r.GetItem(ctx, id)
}

// joinItem fills the list-derived fields. Callers hold store.mu.
func (r *wishListRepository) joinItem(item *models.WishItem) *models.WishItem {
	if item == nil {
		return nil
	}
	out := clone(item)
	if list, ok := r.store.lists[item.WishListID]; ok {
		out.OwnerID = list.UserID
		out.FamilyID = list.FamilyID
	}
	return out
}

func (r *wishListRepository) GetItems(ctx context.Context, listID int64) ([]*models.WishItem, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	var out []*models.WishItem
	for _, id := range sortedIDs(r.store.items, func(i *models.WishItem) bool { return i.WishListID == listID }) {
		out = append(out, r.joinItem(r.store.items[id]))
	}
	return out, nil
}

func (r *wishListRepository) CanAccess(ctx context.Context, listID, userID int64) (bool, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	list, ok := r.store.lists[listID]
	if !ok {
		return false, nil
	}
	if list.UserID == userID {
		return true, nil
	}
	_, member := r.store.members[list.FamilyID][userID]
	return member, nil
}
