package models

import "time"

// ContributionStatus represents the status of a contribution
type ContributionStatus string

const (
	ContributionPledged   ContributionStatus = "pledged"
	ContributionFulfilled ContributionStatus = "fulfilled"
	ContributionCancelled ContributionStatus = "cancelled"
	ContributionExpired   ContributionStatus = "expired"
)

// ParseContributionStatus validates a raw status value.
func ParseContributionStatus(s string) (ContributionStatus, bool) {
	switch st := ContributionStatus(s); st {
	case ContributionPledged, ContributionFulfilled, ContributionCancelled, ContributionExpired:
		return st, true
	}
	return "", false
}

// Counts returns true for statuses that count toward a group's progress
func (s ContributionStatus) Counts() bool {
	return s == ContributionPledged || s == ContributionFulfilled
}

// Contribution is one pledge or fulfillment toward a purchase group.
// ContributorID is nil for external contributors recorded by CreatedByID.
type Contribution struct {
	ID            int64              `json:"id" db:"id"`
	GroupID       int64              `json:"group_id" db:"group_id"`
	ItemID        int64              `json:"item_id" db:"item_id"`
	ListID        int64              `json:"list_id" db:"list_id"`
	ContributorID *int64             `json:"contributor_id" db:"contributor_id"`
	CreatedByID   int64              `json:"created_by_id" db:"created_by_id"`
	AmountCents   int64              `json:"amount_cents" db:"amount_cents"`
	Quantity      int                `json:"quantity" db:"quantity"`
	Status        ContributionStatus `json:"status" db:"status"`
	IsExternal    bool               `json:"is_external" db:"is_external"`
	ExternalName  *string            `json:"external_name,omitempty" db:"external_name"`
	Note          *string            `json:"note,omitempty" db:"note"`
	FulfilledAt   *time.Time         `json:"fulfilled_at,omitempty" db:"fulfilled_at"`
	CreatedAt     time.Time          `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time          `json:"updated_at" db:"updated_at"`
	DeletedAt     *time.Time         `json:"-" db:"deleted_at"`
}

// IsActive returns true if the contribution counts toward the group
func (c *Contribution) IsActive() bool {
	return c.DeletedAt == nil && c.Status.Counts()
}

// IsManagedBy reports whether userID may edit or cancel the contribution.
func (c *Contribution) IsManagedBy(userID int64) bool {
	if c.ContributorID != nil && *c.ContributorID == userID {
		return true
	}
	return c.CreatedByID == userID
}
