package models

import "time"

// ReservationState is the lifecycle variant of a reservation row.
type ReservationState string

const (
	ReservationReserved  ReservationState = "reserved"
	ReservationPurchased ReservationState = "purchased"
	ReservationReleased  ReservationState = "released"
)

// Reservation is one claimant's hold (or purchase) of some units of an item.
// Rows are never removed; DeletedAt marks a released reservation.
type Reservation struct {
	ID              int64      `json:"id" db:"id"`
	ItemID          int64      `json:"item_id" db:"item_id"`
	ReservedByID    int64      `json:"reserved_by_id" db:"reserved_by_id"`
	ReservedForID   *int64     `json:"reserved_for_id,omitempty" db:"reserved_for_id"`
	Quantity        int        `json:"quantity" db:"quantity"`
	Purchased       bool       `json:"purchased" db:"purchased"`
	Message         *string    `json:"message,omitempty" db:"message"`
	PurchaseGroupID *int64     `json:"purchase_group_id,omitempty" db:"purchase_group_id"`
	PurchasedAt     *time.Time `json:"purchased_at,omitempty" db:"purchased_at"`
	CreatedAt       time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at" db:"updated_at"`
	DeletedAt       *time.Time `json:"-" db:"deleted_at"`
}

// State derives the lifecycle variant.
func (r *Reservation) State() ReservationState {
	switch {
	case r.DeletedAt != nil:
		return ReservationReleased
	case r.Purchased:
		return ReservationPurchased
	default:
		return ReservationReserved
	}
}

// IsActive returns true if the reservation still counts toward the item totals
func (r *Reservation) IsActive() bool {
	return r.DeletedAt == nil
}

// IsPending returns true for an active, not yet purchased reservation
func (r *Reservation) IsPending() bool {
	return r.State() == ReservationReserved
}
