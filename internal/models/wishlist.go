package models

import "time"

// WishList represents a personal wish list for a family member
type WishList struct {
	ID        int64      `json:"id" db:"id"`
	FamilyID  int64      `json:"family_id" db:"family_id"`
	UserID    int64      `json:"user_id" db:"user_id"`
	Name      string     `json:"name" db:"name"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt time.Time  `json:"updated_at" db:"updated_at"`
	Items     []WishItem `json:"items,omitempty" db:"-"`
	User      *User      `json:"user,omitempty" db:"-"`
}

// WishItem represents an item in a wish list. OwnerID and FamilyID are joined
// from the owning list; the coordination core never writes items.
type WishItem struct {
	ID         int64     `json:"id" db:"id"`
	WishListID int64     `json:"wish_list_id" db:"wish_list_id"`
	OwnerID    int64     `json:"owner_id" db:"owner_id"`
	FamilyID   int64     `json:"family_id" db:"family_id"`
	Name       string    `json:"name" db:"name"`
	URL        string    `json:"url" db:"url"`
	Price      string    `json:"price" db:"price"`
	Notes      string    `json:"notes" db:"notes"`
	Quantity   int       `json:"quantity" db:"quantity"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}

// TotalQuantity returns the declared quantity, defaulting to 1 when unset.
func (i *WishItem) TotalQuantity() int {
	if i.Quantity < 1 {
		return 1
	}
	return i.Quantity
}

// IsOwnedBy reports whether userID owns the list the item belongs to.
func (i *WishItem) IsOwnedBy(userID int64) bool {
	return i.OwnerID == userID
}
