package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/Kerhoff/giftpool/internal/apperr"
	"github.com/Kerhoff/giftpool/internal/dbx"
	"github.com/Kerhoff/giftpool/internal/repository"
)

// uniqueViolation is the SQLSTATE for unique_violation.
const uniqueViolation = "23505"

// Store is the Postgres-backed repository.Store. Row locks are taken with
// SELECT ... FOR UPDATE inside WithinTx.
type Store struct {
	db *sqlx.DB
}

// NewStore wraps an open connection pool.
func NewStore(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// NewRepositories binds every repository to q.
func NewRepositories(q dbx.DBTX) repository.Repositories {
	return repository.Repositories{
		Users:         NewUserRepository(q),
		Families:      NewFamilyRepository(q),
		WishLists:     NewWishListRepository(q),
		Reservations:  NewReservationRepository(q),
		Groups:        NewPurchaseGroupRepository(q),
		Contributions: NewContributionRepository(q),
	}
}

func (s *Store) Repos() repository.Repositories {
	return NewRepositories(s.db)
}

func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, repos repository.Repositories) error) error {
	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		return fn(ctx, NewRepositories(tx))
	})
}

func (s *Store) Close() error {
	return s.db.Close()
}

// conflictOnUnique turns a unique index violation into a Conflict carrying
// msg; any other error is returned unchanged.
func conflictOnUnique(err error, msg string) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation {
		return apperr.Conflict("%s", msg)
	}
	return err
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
