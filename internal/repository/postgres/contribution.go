package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/Kerhoff/giftpool/internal/dbx"
	"github.com/Kerhoff/giftpool/internal/models"
	"github.com/Kerhoff/giftpool/internal/repository"
)

const contributionColumns = `id, group_id, item_id, list_id, contributor_id, created_by_id, amount_cents, quantity,
	status, is_external, external_name, note, fulfilled_at, created_at, updated_at, deleted_at`

type contributionRepository struct {
	db dbx.DBTX
}

// NewContributionRepository creates a new contribution repository
func NewContributionRepository(db dbx.DBTX) repository.ContributionRepository {
	return &contributionRepository{db: db}
}

func (r *contributionRepository) GetByID(ctx context.Context, id int64) (*models.Contribution, error) {
	c := &models.Contribution{}
	err := r.db.GetContext(ctx, c, `SELECT `+contributionColumns+` FROM contributions WHERE id = $1 AND deleted_at IS NULL`, id)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get contribution by ID: %w", err)
	}
	return c, nil
}

func (r *contributionRepository) ListByGroup(ctx context.Context, groupID int64) ([]*models.Contribution, error) {
	var out []*models.Contribution
	err := r.db.SelectContext(ctx, &out, `
		SELECT `+contributionColumns+`
		FROM contributions
		WHERE group_id = $1 AND deleted_at IS NULL
		ORDER BY created_at ASC, id ASC`, groupID)
	if err != nil {
		return nil, fmt.Errorf("failed to query contributions: %w", err)
	}
	return out, nil
}

func (r *contributionRepository) ListByGroups(ctx context.Context, groupIDs []int64) ([]*models.Contribution, error) {
	if len(groupIDs) == 0 {
		return nil, nil
	}
	var out []*models.Contribution
	err := r.db.SelectContext(ctx, &out, `
		SELECT `+contributionColumns+`
		FROM contributions
		WHERE group_id = ANY($1) AND deleted_at IS NULL
		ORDER BY created_at ASC, id ASC`, int64Array(groupIDs))
	if err != nil {
		return nil, fmt.Errorf("failed to query contributions for groups: %w", err)
	}
	return out, nil
}

func (r *contributionRepository) Create(ctx context.Context, c *models.Contribution) (*models.Contribution, error) {
	query := `
		INSERT INTO contributions (group_id, item_id, list_id, contributor_id, created_by_id, amount_cents,
			quantity, status, is_external, external_name, note, fulfilled_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING id`

	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}
	c.UpdatedAt = c.CreatedAt

	err := r.db.QueryRowxContext(ctx, query,
		c.GroupID,
		c.ItemID,
		c.ListID,
		c.ContributorID,
		c.CreatedByID,
		c.AmountCents,
		c.Quantity,
		c.Status,
		c.IsExternal,
		c.ExternalName,
		c.Note,
		c.FulfilledAt,
		c.CreatedAt,
		c.UpdatedAt,
	).Scan(&c.ID)
	if err != nil {
		if cerr := conflictOnUnique(err, "You already have an active contribution to this shared purchase"); cerr != err {
			return nil, cerr
		}
		return nil, fmt.Errorf("failed to create contribution: %w", err)
	}

	return c, nil
}

func (r *contributionRepository) Update(ctx context.Context, c *models.Contribution) error {
	query := `
		UPDATE contributions
		SET contributor_id = $2, amount_cents = $3, quantity = $4, status = $5, is_external = $6,
			external_name = $7, note = $8, fulfilled_at = $9, updated_at = $10, deleted_at = $11
		WHERE id = $1`

	result, err := r.db.ExecContext(ctx, query,
		c.ID,
		c.ContributorID,
		c.AmountCents,
		c.Quantity,
		c.Status,
		c.IsExternal,
		c.ExternalName,
		c.Note,
		c.FulfilledAt,
		c.UpdatedAt,
		c.DeletedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update contribution: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("contribution with ID %d not found", c.ID)
	}

	return nil
}

func (r *contributionRepository) CancelAllByGroup(ctx context.Context, groupID int64, at time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE contributions
		SET status = $2, deleted_at = $3, updated_at = $3
		WHERE group_id = $1 AND deleted_at IS NULL`, groupID, models.ContributionCancelled, at)
	if err != nil {
		return 0, fmt.Errorf("failed to cancel contributions: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n, nil
}
