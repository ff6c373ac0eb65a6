package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/Kerhoff/giftpool/internal/dbx"
	"github.com/Kerhoff/giftpool/internal/models"
	"github.com/Kerhoff/giftpool/internal/repository"
)

type familyRepository struct {
	db dbx.DBTX
}

// NewFamilyRepository creates a new family repository
func NewFamilyRepository(db dbx.DBTX) repository.FamilyRepository {
	return &familyRepository{db: db}
}

func (r *familyRepository) Create(ctx context.Context, family *models.Family) (*models.Family, error) {
	query := `
		INSERT INTO families (chat_id, name, created_at, updated_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at, updated_at`

	now := time.Now()
	family.CreatedAt = now
	family.UpdatedAt = now

	err := r.db.QueryRowxContext(ctx, query,
		family.ChatID,
		family.Name,
		family.CreatedAt,
		family.UpdatedAt,
	).Scan(&family.ID, &family.CreatedAt, &family.UpdatedAt)
	if err != nil {
		if cerr := conflictOnUnique(err, "Chat is already registered"); cerr != err {
			return nil, cerr
		}
		return nil, fmt.Errorf("failed to create family: %w", err)
	}

	return family, nil
}

func (r *familyRepository) GetByChatID(ctx context.Context, chatID int64) (*models.Family, error) {
	family := &models.Family{}
	err := r.db.GetContext(ctx, family, `
		SELECT id, chat_id, name, created_at, updated_at
		FROM families
		WHERE chat_id = $1`, chatID)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get family by chat ID: %w", err)
	}
	return family, nil
}

func (r *familyRepository) GetByID(ctx context.Context, id int64) (*models.Family, error) {
	family := &models.Family{}
	err := r.db.GetContext(ctx, family, `
		SELECT id, chat_id, name, created_at, updated_at
		FROM families
		WHERE id = $1`, id)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get family by ID: %w", err)
	}
	return family, nil
}

func (r *familyRepository) AddMember(ctx context.Context, familyID, userID int64, role string) error {
	query := `
		INSERT INTO family_members (family_id, user_id, role, joined_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (family_id, user_id) DO NOTHING`

	if _, err := r.db.ExecContext(ctx, query, familyID, userID, role, time.Now()); err != nil {
		return fmt.Errorf("failed to add family member: %w", err)
	}
	return nil
}

func (r *familyRepository) GetMembers(ctx context.Context, familyID int64) ([]*models.User, error) {
	query := `
		SELECT u.id, u.telegram_id, u.telegram_username, u.first_name, u.last_name, u.is_active, u.created_at, u.updated_at
		FROM users u
		INNER JOIN family_members fm ON fm.user_id = u.id
		WHERE fm.family_id = $1
		ORDER BY fm.joined_at ASC`

	var members []*models.User
	if err := r.db.SelectContext(ctx, &members, query, familyID); err != nil {
		return nil, fmt.Errorf("failed to query family members: %w", err)
	}
	return members, nil
}

func (r *familyRepository) Update(ctx context.Context, family *models.Family) (*models.Family, error) {
	query := `
		UPDATE families
		SET name = $2, updated_at = $3
		WHERE id = $1
		RETURNING updated_at`

	family.UpdatedAt = time.Now()

	err := r.db.QueryRowxContext(ctx, query,
		family.ID,
		family.Name,
		family.UpdatedAt,
	).Scan(&family.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to update family: %w", err)
	}

	return family, nil
}
