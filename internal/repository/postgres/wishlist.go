package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/Kerhoff/giftpool/internal/dbx"
	"github.com/Kerhoff/giftpool/internal/models"
	"github.com/Kerhoff/giftpool/internal/repository"
)

const (
	listColumns = `id, family_id, user_id, name, created_at, updated_at`

	itemSelect = `
		SELECT i.id, i.wish_list_id, l.user_id AS owner_id, l.family_id,
		       i.name, i.url, i.price, i.notes, i.quantity, i.created_at
		FROM wish_items i
		INNER JOIN wish_lists l ON l.id = i.wish_list_id`
)

type wishListRepository struct {
	db dbx.DBTX
}

// NewWishListRepository creates a new wish list repository
func NewWishListRepository(db dbx.DBTX) repository.WishListRepository {
	return &wishListRepository{db: db}
}

func (r *wishListRepository) CreateList(ctx context.Context, list *models.WishList) (*models.WishList, error) {
	query := `
		INSERT INTO wish_lists (family_id, user_id, name, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, updated_at`

	now := time.Now()
	list.CreatedAt = now
	list.UpdatedAt = now

	err := r.db.QueryRowxContext(ctx, query,
		list.FamilyID,
		list.UserID,
		list.Name,
		list.CreatedAt,
		list.UpdatedAt,
	).Scan(&list.ID, &list.CreatedAt, &list.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create wish list: %w", err)
	}

	return list, nil
}

func (r *wishListRepository) GetListByUser(ctx context.Context, userID, familyID int64) (*models.WishList, error) {
	list := &models.WishList{}
	err := r.db.GetContext(ctx, list, `
		SELECT `+listColumns+`
		FROM wish_lists
		WHERE user_id = $1 AND family_id = $2
		ORDER BY created_at DESC
		LIMIT 1`, userID, familyID)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get wish list by user: %w", err)
	}
	return list, nil
}

func (r *wishListRepository) GetListByID(ctx context.Context, id int64) (*models.WishList, error) {
	list := &models.WishList{}
	err := r.db.GetContext(ctx, list, `SELECT `+listColumns+` FROM wish_lists WHERE id = $1`, id)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get wish list by ID: %w", err)
	}
	return list, nil
}

func (r *wishListRepository) GetListsByFamily(ctx context.Context, familyID int64) ([]*models.WishList, error) {
	var lists []*models.WishList
	err := r.db.SelectContext(ctx, &lists, `
		SELECT `+listColumns+`
		FROM wish_lists
		WHERE family_id = $1
		ORDER BY created_at ASC`, familyID)
	if err != nil {
		return nil, fmt.Errorf("failed to query wish lists by family: %w", err)
	}
	return lists, nil
}

func (r *wishListRepository) AddItem(ctx context.Context, item *models.WishItem) (*models.WishItem, error) {
	query := `
		INSERT INTO wish_items (wish_list_id, name, url, price, notes, quantity, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at`

	item.Quantity = item.TotalQuantity()
	item.CreatedAt = time.Now()

	err := r.db.QueryRowxContext(ctx, query,
		item.WishListID,
		item.Name,
		item.URL,
		item.Price,
		item.Notes,
		item.Quantity,
		item.CreatedAt,
	).Scan(&item.ID, &item.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to add wish item: %w", err)
	}

	return item, nil
}

func (r *wishListRepository) GetItem(ctx context.Context, id int64) (*models.WishItem, error) {
	return r.getItem(ctx, itemSelect+` WHERE i.id = $1`, id)
}

func (r *wishListRepository) GetItemForUpdate(ctx context.Context, id int64) (*models.WishItem, error) {
	return r.getItem(ctx, itemSelect+` WHERE i.id = $1 FOR UPDATE OF i`, id)
}

func (r *wishListRepository) getItem(ctx context.Context, query string, id int64) (*models.WishItem, error) {
	item := &models.WishItem{}
	if err := r.db.GetContext(ctx, item, query, id); err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get wish item: %w", err)
	}
	return item, nil
}

func (r *wishListRepository) GetItems(ctx context.Context, listID int64) ([]*models.WishItem, error) {
	var items []*models.WishItem
	err := r.db.SelectContext(ctx, &items, itemSelect+`
		WHERE i.wish_list_id = $1
		ORDER BY i.created_at ASC, i.id ASC`, listID)
	if err != nil {
		return nil, fmt.Errorf("failed to query wish items: %w", err)
	}
	return items, nil
}

func (r *wishListRepository) CanAccess(ctx context.Context, listID, userID int64) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1
			FROM wish_lists l
			LEFT JOIN family_members fm ON fm.family_id = l.family_id AND fm.user_id = $2
			WHERE l.id = $1 AND (l.user_id = $2 OR fm.user_id IS NOT NULL)
		)`

	var ok bool
	if err := r.db.GetContext(ctx, &ok, query, listID, userID); err != nil {
		return false, fmt.Errorf("failed to check list access: %w", err)
	}
	return ok, nil
}

// int64Array adapts ids for ANY($n) parameters.
func int64Array(ids []int64) interface{} {
	return pq.Array(ids)
}
