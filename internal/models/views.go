package models

import "time"

// ReservationView is a reservation as shown to a particular viewer. Identity
// fields are nil when the viewer is the list owner.
type ReservationView struct {
	ID              int64      `json:"id"`
	ItemID          int64      `json:"item_id"`
	ReservedByID    *int64     `json:"reserved_by_id,omitempty"`
	ReservedForID   *int64     `json:"reserved_for_id,omitempty"`
	Quantity        int        `json:"quantity"`
	Purchased       bool       `json:"purchased"`
	Message         *string    `json:"message,omitempty"`
	PurchaseGroupID *int64     `json:"purchase_group_id,omitempty"`
	PurchasedAt     *time.Time `json:"purchased_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}

// ReservationStatus is the availability snapshot of one item.
type ReservationStatus struct {
	ItemID            int64             `json:"item_id"`
	TotalQuantity     int               `json:"total_quantity"`
	ReservedQuantity  int               `json:"reserved_quantity"`
	PurchasedQuantity int               `json:"purchased_quantity"`
	AvailableQuantity int               `json:"available_quantity"`
	IsReserved        bool              `json:"is_reserved"`
	IsPurchased       bool              `json:"is_purchased"`
	IsFullyClaimed    bool              `json:"is_fully_claimed"`
	IsFullyPurchased  bool              `json:"is_fully_purchased"`
	Claims            []ReservationView `json:"claims"`
	MyReservations    []ReservationView `json:"my_reservations"`
	Reservation       *ReservationView  `json:"reservation,omitempty"`
}

// GroupView is a purchase group hydrated with its live contributions.
type GroupView struct {
	Group                *PurchaseGroup `json:"group"`
	Contributions        []Contribution `json:"contributions"`
	TotalAmountCents     int64          `json:"total_amount_cents"`
	TotalQuantity        int            `json:"total_quantity"`
	RemainingAmountCents *int64         `json:"remaining_amount_cents"`
	RemainingQuantity    *int           `json:"remaining_quantity"`
	ContributorCount     int            `json:"contributor_count"`
	GoalMet              bool           `json:"goal_met"`
	MyContribution       *Contribution  `json:"my_contribution,omitempty"`
}

// GroupSummary is the compact per-item shared purchase projection used by
// list-wide status reads.
type GroupSummary struct {
	ID                int64       `json:"id"`
	Status            GroupStatus `json:"status"`
	TargetAmountCents *int64      `json:"target_amount_cents"`
	Currency          *string     `json:"currency"`
	IsQuantityBased   bool        `json:"is_quantity_based"`
	TargetQuantity    *int        `json:"target_quantity"`
	TotalAmountCents  int64       `json:"total_amount_cents"`
	TotalQuantity     int         `json:"total_quantity"`
	ContributorCount  int         `json:"contributor_count"`
}

// ItemReservations pairs an item's status with its active shared purchase.
type ItemReservations struct {
	ItemID         int64             `json:"item_id"`
	ItemName       string            `json:"item_name"`
	Status         ReservationStatus `json:"status"`
	SharedPurchase *GroupSummary     `json:"shared_purchase,omitempty"`
}

// ReservationResult is returned by claim and purchase.
type ReservationResult struct {
	Reservation *ReservationView  `json:"reservation"`
	Status      ReservationStatus `json:"status"`
}
