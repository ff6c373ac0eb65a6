package models

import "time"

// GroupStatus represents the lifecycle state of a shared purchase group
type GroupStatus string

const (
	GroupStatusOpen      GroupStatus = "open"
	GroupStatusLocked    GroupStatus = "locked"
	GroupStatusCompleted GroupStatus = "completed"
	GroupStatusAbandoned GroupStatus = "abandoned"
)

// ParseGroupStatus validates a raw status value.
func ParseGroupStatus(s string) (GroupStatus, bool) {
	switch st := GroupStatus(s); st {
	case GroupStatusOpen, GroupStatusLocked, GroupStatusCompleted, GroupStatusAbandoned:
		return st, true
	}
	return "", false
}

// IsTerminal returns true for completed and abandoned
func (s GroupStatus) IsTerminal() bool {
	return s == GroupStatusCompleted || s == GroupStatusAbandoned
}

// IsActive returns true for open and locked
func (s GroupStatus) IsActive() bool {
	return s == GroupStatusOpen || s == GroupStatusLocked
}

// PurchaseGroup is a pooled-funding effort against one item. The goal is
// either a monetary target (TargetAmountCents + Currency) or, when
// IsQuantityBased is set, a unit count (TargetQuantity).
type PurchaseGroup struct {
	ID                int64       `json:"id" db:"id"`
	ItemID            int64       `json:"item_id" db:"item_id"`
	ListID            int64       `json:"list_id" db:"list_id"`
	CreatedByID       int64       `json:"created_by_id" db:"created_by_id"`
	Status            GroupStatus `json:"status" db:"status"`
	TargetAmountCents *int64      `json:"target_amount_cents" db:"target_amount_cents"`
	Currency          *string     `json:"currency" db:"currency"`
	IsQuantityBased   bool        `json:"is_quantity_based" db:"is_quantity_based"`
	TargetQuantity    *int        `json:"target_quantity" db:"target_quantity"`
	Notes             *string     `json:"notes" db:"notes"`
	CreatedAt         time.Time   `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time   `json:"updated_at" db:"updated_at"`
	LockedAt          *time.Time  `json:"locked_at" db:"locked_at"`
	CompletedAt       *time.Time  `json:"completed_at" db:"completed_at"`
	AbandonedAt       *time.Time  `json:"abandoned_at" db:"abandoned_at"`
	DeletedAt         *time.Time  `json:"deleted_at,omitempty" db:"deleted_at"`
}

// IsActive returns true when the group is open or locked and not deleted
func (g *PurchaseGroup) IsActive() bool {
	return g.DeletedAt == nil && g.Status.IsActive()
}

// IsDeleted returns true once the group has been removed
func (g *PurchaseGroup) IsDeleted() bool {
	return g.DeletedAt != nil
}

// HasAmountGoal returns true when a positive monetary target is configured
func (g *PurchaseGroup) HasAmountGoal() bool {
	return g.TargetAmountCents != nil && *g.TargetAmountCents > 0
}

// HasQuantityGoal returns true for quantity-based groups with a positive target
func (g *PurchaseGroup) HasQuantityGoal() bool {
	return g.IsQuantityBased && g.TargetQuantity != nil && *g.TargetQuantity > 0
}
