package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/Kerhoff/giftpool/internal/dbx"
	"github.com/Kerhoff/giftpool/internal/models"
	"github.com/Kerhoff/giftpool/internal/repository"
)

const groupColumns = `id, item_id, list_id, created_by_id, status, target_amount_cents, currency,
	is_quantity_based, target_quantity, notes, created_at, updated_at,
	locked_at, completed_at, abandoned_at, deleted_at`

const activeGroupFilter = `deleted_at IS NULL AND status IN ('open', 'locked')`

type purchaseGroupRepository struct {
	db dbx.DBTX
}

// NewPurchaseGroupRepository creates a new purchase group repository
func NewPurchaseGroupRepository(db dbx.DBTX) repository.PurchaseGroupRepository {
	return &purchaseGroupRepository{db: db}
}

func (r *purchaseGroupRepository) get(ctx context.Context, what, query string, args ...any) (*models.PurchaseGroup, error) {
	g := &models.PurchaseGroup{}
	if err := r.db.GetContext(ctx, g, query, args...); err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get purchase group %s: %w", what, err)
	}
	return g, nil
}

func (r *purchaseGroupRepository) GetByID(ctx context.Context, id int64) (*models.PurchaseGroup, error) {
	return r.get(ctx, "by ID", `SELECT `+groupColumns+` FROM purchase_groups WHERE id = $1`, id)
}

func (r *purchaseGroupRepository) GetForUpdate(ctx context.Context, id int64) (*models.PurchaseGroup, error) {
	return r.get(ctx, "for update", `SELECT `+groupColumns+` FROM purchase_groups WHERE id = $1 FOR UPDATE`, id)
}

func (r *purchaseGroupRepository) GetActiveByItem(ctx context.Context, itemID int64) (*models.PurchaseGroup, error) {
	return r.get(ctx, "by item", `
		SELECT `+groupColumns+`
		FROM purchase_groups
		WHERE item_id = $1 AND `+activeGroupFilter+`
		ORDER BY id DESC
		LIMIT 1`, itemID)
}

func (r *purchaseGroupRepository) GetLatestByItem(ctx context.Context, itemID int64) (*models.PurchaseGroup, error) {
	return r.get(ctx, "latest", `
		SELECT `+groupColumns+`
		FROM purchase_groups
		WHERE item_id = $1 AND deleted_at IS NULL
		ORDER BY created_at DESC, id DESC
		LIMIT 1`, itemID)
}

func (r *purchaseGroupRepository) ListActiveByItems(ctx context.Context, itemIDs []int64) ([]*models.PurchaseGroup, error) {
	if len(itemIDs) == 0 {
		return nil, nil
	}
	var out []*models.PurchaseGroup
	err := r.db.SelectContext(ctx, &out, `
		SELECT `+groupColumns+`
		FROM purchase_groups
		WHERE item_id = ANY($1) AND `+activeGroupFilter+`
		ORDER BY id ASC`, int64Array(itemIDs))
	if err != nil {
		return nil, fmt.Errorf("failed to query purchase groups for items: %w", err)
	}
	return out, nil
}

func (r *purchaseGroupRepository) Create(ctx context.Context, g *models.PurchaseGroup) (*models.PurchaseGroup, error) {
	query := `
		INSERT INTO purchase_groups (item_id, list_id, created_by_id, status, target_amount_cents, currency,
			is_quantity_based, target_quantity, notes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id`

	if g.CreatedAt.IsZero() {
		g.CreatedAt = time.Now()
	}
	g.UpdatedAt = g.CreatedAt

	err := r.db.QueryRowxContext(ctx, query,
		g.ItemID,
		g.ListID,
		g.CreatedByID,
		g.Status,
		g.TargetAmountCents,
		g.Currency,
		g.IsQuantityBased,
		g.TargetQuantity,
		g.Notes,
		g.CreatedAt,
		g.UpdatedAt,
	).Scan(&g.ID)
	if err != nil {
		if cerr := conflictOnUnique(err, "An active shared purchase already exists for this item"); cerr != err {
			return nil, cerr
		}
		return nil, fmt.Errorf("failed to create purchase group: %w", err)
	}

	return g, nil
}

func (r *purchaseGroupRepository) Update(ctx context.Context, g *models.PurchaseGroup) error {
	query := `
		UPDATE purchase_groups
		SET status = $2, target_amount_cents = $3, currency = $4, is_quantity_based = $5,
			target_quantity = $6, notes = $7, updated_at = $8, locked_at = $9,
			completed_at = $10, abandoned_at = $11, deleted_at = $12
		WHERE id = $1`

	result, err := r.db.ExecContext(ctx, query,
		g.ID,
		g.Status,
		g.TargetAmountCents,
		g.Currency,
		g.IsQuantityBased,
		g.TargetQuantity,
		g.Notes,
		g.UpdatedAt,
		g.LockedAt,
		g.CompletedAt,
		g.AbandonedAt,
		g.DeletedAt,
	)
	if err != nil {
		if cerr := conflictOnUnique(err, "An active shared purchase already exists for this item"); cerr != err {
			return cerr
		}
		return fmt.Errorf("failed to update purchase group: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("purchase group with ID %d not found", g.ID)
	}

	return nil
}
