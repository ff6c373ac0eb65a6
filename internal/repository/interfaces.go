package repository

import (
	"context"
	"time"

	"github.com/Kerhoff/giftpool/internal/models"
)

// UserRepository defines the interface for user data operations
type UserRepository interface {
	Create(ctx context.Context, user *models.User) (*models.User, error)
	GetByTelegramID(ctx context.Context, telegramID int64) (*models.User, error)
	GetByID(ctx context.Context, id int64) (*models.User, error)
	Update(ctx context.Context, user *models.User) (*models.User, error)
}

// FamilyRepository defines the interface for family data operations
type FamilyRepository interface {
	Create(ctx context.Context, family *models.Family) (*models.Family, error)
	GetByChatID(ctx context.Context, chatID int64) (*models.Family, error)
	GetByID(ctx context.Context, id int64) (*models.Family, error)
	AddMember(ctx context.Context, familyID, userID int64, role string) error
	GetMembers(ctx context.Context, familyID int64) ([]*models.User, error)
	Update(ctx context.Context, family *models.Family) (*models.Family, error)
}

// WishListRepository covers lists, their items and the access capability.
// Item getters join the owning list so OwnerID and FamilyID are populated.
type WishListRepository interface {
	CreateList(ctx context.Context, list *models.WishList) (*models.WishList, error)
	GetListByUser(ctx context.Context, userID, familyID int64) (*models.WishList, error)
	GetListByID(ctx context.Context, id int64) (*models.WishList, error)
	GetListsByFamily(ctx context.Context, familyID int64) ([]*models.WishList, error)
	AddItem(ctx context.Context, item *models.WishItem) (*models.WishItem, error)
	GetItem(ctx context.Context, id int64) (*models.WishItem, error)
	// GetItemForUpdate reads the item and holds its lock until the
	// surrounding transaction ends.
	GetItemForUpdate(ctx context.Context, id int64) (*models.WishItem, error)
	GetItems(ctx context.Context, listID int64) ([]*models.WishItem, error)
	// CanAccess reports whether userID owns the list or belongs to its family.
	CanAccess(ctx context.Context, listID, userID int64) (bool, error)
}

// ReservationRepository stores reservations. List methods return active
// (not released) rows only.
type ReservationRepository interface {
	GetByID(ctx context.Context, id int64) (*models.Reservation, error)
	ListActiveByItem(ctx context.Context, itemID int64) ([]*models.Reservation, error)
	ListActiveByItems(ctx context.Context, itemIDs []int64) ([]*models.Reservation, error)
	Create(ctx context.Context, r *models.Reservation) (*models.Reservation, error)
	Update(ctx context.Context, r *models.Reservation) error
	// DetachGroup clears purchase_group_id on every reservation pointing at
	// groupID and returns how many rows changed.
	DetachGroup(ctx context.Context, groupID int64) (int64, error)
}

// PurchaseGroupRepository stores shared purchase groups. Getters skip
// soft-deleted rows unless stated otherwise.
type PurchaseGroupRepository interface {
	// GetByID returns the group even when it is soft-deleted.
	GetByID(ctx context.Context, id int64) (*models.PurchaseGroup, error)
	// GetForUpdate locks the group row; callers lock the item first.
	GetForUpdate(ctx context.Context, id int64) (*models.PurchaseGroup, error)
	GetActiveByItem(ctx context.Context, itemID int64) (*models.PurchaseGroup, error)
	GetLatestByItem(ctx context.Context, itemID int64) (*models.PurchaseGroup, error)
	ListActiveByItems(ctx context.Context, itemIDs []int64) ([]*models.PurchaseGroup, error)
	Create(ctx context.Context, g *models.PurchaseGroup) (*models.PurchaseGroup, error)
	Update(ctx context.Context, g *models.PurchaseGroup) error
}

// ContributionRepository stores contributions. List methods return live
// (not soft-deleted) rows of any status.
type ContributionRepository interface {
	GetByID(ctx context.Context, id int64) (*models.Contribution, error)
	ListByGroup(ctx context.Context, groupID int64) ([]*models.Contribution, error)
	ListByGroups(ctx context.Context, groupIDs []int64) ([]*models.Contribution, error)
	Create(ctx context.Context, c *models.Contribution) (*models.Contribution, error)
	Update(ctx context.Context, c *models.Contribution) error
	// CancelAllByGroup soft-deletes every live contribution of the group.
	CancelAllByGroup(ctx context.Context, groupID int64, at time.Time) (int64, error)
}

// Repositories bundles every repository bound to one connection or
// transaction.
type Repositories struct {
	Users         UserRepository
	Families      FamilyRepository
	WishLists     WishListRepository
	Reservations  ReservationRepository
	Groups        PurchaseGroupRepository
	Contributions ContributionRepository
}

// Store is a transactional persistence backend.
type Store interface {
	// Repos returns repositories outside any transaction. Reads through them
	// take no locks.
	Repos() Repositories
	// WithinTx runs fn atomically. Any error returned by fn rolls back every
	// write made through the supplied repositories and releases their locks.
	WithinTx(ctx context.Context, fn func(ctx context.Context, repos Repositories) error) error
	Close() error
}
