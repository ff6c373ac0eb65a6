package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/Kerhoff/giftpool/internal/dbx"
	"github.com/Kerhoff/giftpool/internal/models"
	"github.com/Kerhoff/giftpool/internal/repository"
)

const reservationColumns = `id, item_id, reserved_by_id, reserved_for_id, quantity, purchased, message,
	purchase_group_id, purchased_at, created_at, updated_at, deleted_at`

type reservationRepository struct {
	db dbx.DBTX
}

// NewReservationRepository creates a new reservation repository
func NewReservationRepository(db dbx.DBTX) repository.ReservationRepository {
	return &reservationRepository{db: db}
}

func (r *reservationRepository) GetByID(ctx context.Context, id int64) (*models.Reservation, error) {
	res := &models.Reservation{}
	err := r.db.GetContext(ctx, res, `SELECT `+reservationColumns+` FROM reservations WHERE id = $1`, id)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get reservation by ID: %w", err)
	}
	return res, nil
}

func (r *reservationRepository) ListActiveByItem(ctx context.Context, itemID int64) ([]*models.Reservation, error) {
	var out []*models.Reservation
	err := r.db.SelectContext(ctx, &out, `
		SELECT `+reservationColumns+`
		FROM reservations
		WHERE item_id = $1 AND deleted_at IS NULL
		ORDER BY created_at ASC, id ASC`, itemID)
	if err != nil {
		return nil, fmt.Errorf("failed to query reservations: %w", err)
	}
	return out, nil
}

func (r *reservationRepository) ListActiveByItems(ctx context.Context, itemIDs []int64) ([]*models.Reservation, error) {
	if len(itemIDs) == 0 {
		return nil, nil
	}
	var out []*models.Reservation
	err := r.db.SelectContext(ctx, &out, `
		SELECT `+reservationColumns+`
		FROM reservations
		WHERE item_id = ANY($1) AND deleted_at IS NULL
		ORDER BY created_at ASC, id ASC`, int64Array(itemIDs))
	if err != nil {
		return nil, fmt.Errorf("failed to query reservations for items: %w", err)
	}
	return out, nil
}

func (r *reservationRepository) Create(ctx context.Context, res *models.Reservation) (*models.Reservation, error) {
	query := `
		INSERT INTO reservations (item_id, reserved_by_id, reserved_for_id, quantity, purchased, message,
			purchase_group_id, purchased_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id`

	now := time.Now()
	res.CreatedAt = now
	res.UpdatedAt = now

	err := r.db.QueryRowxContext(ctx, query,
		res.ItemID,
		res.ReservedByID,
		res.ReservedForID,
		res.Quantity,
		res.Purchased,
		res.Message,
		res.PurchaseGroupID,
		res.PurchasedAt,
		res.CreatedAt,
		res.UpdatedAt,
	).Scan(&res.ID)
	if err != nil {
		if cerr := conflictOnUnique(err, "You already hold a pending reservation for this item"); cerr != err {
			return nil, cerr
		}
		return nil, fmt.Errorf("failed to create reservation: %w", err)
	}

	return res, nil
}

func (r *reservationRepository) Update(ctx context.Context, res *models.Reservation) error {
	query := `
		UPDATE reservations
		SET quantity = $2, purchased = $3, message = $4, purchase_group_id = $5,
			purchased_at = $6, updated_at = $7, deleted_at = $8
		WHERE id = $1`

	res.UpdatedAt = time.Now()

	result, err := r.db.ExecContext(ctx, query,
		res.ID,
		res.Quantity,
		res.Purchased,
		res.Message,
		res.PurchaseGroupID,
		res.PurchasedAt,
		res.UpdatedAt,
		res.DeletedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update reservation: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("reservation with ID %d not found", res.ID)
	}

	return nil
}

func (r *reservationRepository) DetachGroup(ctx context.Context, groupID int64) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE reservations
		SET purchase_group_id = NULL, updated_at = $2
		WHERE purchase_group_id = $1`, groupID, time.Now())
	if err != nil {
		return 0, fmt.Errorf("failed to detach reservations: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n, nil
}
