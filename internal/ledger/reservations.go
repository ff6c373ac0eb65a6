// Package ledger derives availability and funding progress from the full set
// of child rows. Nothing here is cached: every call re-aggregates.
package ledger

import (
	"sort"

	"github.com/Kerhoff/giftpool/internal/apperr"
	"github.com/Kerhoff/giftpool/internal/models"
)

// Viewer identifies who a projection is computed for.
type Viewer struct {
	ID      int64
	IsOwner bool
}

// OwnerView is the projection used for broadcasts: aggregate counts only.
var OwnerView = Viewer{IsOwner: true}

// ComputeStatus aggregates the active reservations of item in one pass and
// projects them for viewer. Inactive rows in reservations are ignored.
func ComputeStatus(item *models.WishItem, reservations []*models.Reservation, viewer Viewer) models.ReservationStatus {
	total := item.TotalQuantity()
	st := models.ReservationStatus{
		ItemID:         item.ID,
		TotalQuantity:  total,
		Claims:         []models.ReservationView{},
		MyReservations: []models.ReservationView{},
	}

	var mine []*models.Reservation
	for _, r := range reservations {
		if r == nil || !r.IsActive() {
			continue
		}
		if r.Purchased {
			st.PurchasedQuantity += r.Quantity
		} else {
			st.ReservedQuantity += r.Quantity
		}
		st.Claims = append(st.Claims, project(r, viewer))
		if !viewer.IsOwner && viewer.ID != 0 && r.ReservedByID == viewer.ID {
			mine = append(mine, r)
			st.MyReservations = append(st.MyReservations, project(r, viewer))
		}
	}

	st.AvailableQuantity = total - st.ReservedQuantity - st.PurchasedQuantity
	if st.AvailableQuantity < 0 {
		st.AvailableQuantity = 0
	}
	st.IsReserved = st.ReservedQuantity > 0
	st.IsPurchased = st.PurchasedQuantity > 0
	st.IsFullyClaimed = st.ReservedQuantity+st.PurchasedQuantity >= total
	st.IsFullyPurchased = st.PurchasedQuantity >= total

	if p := primary(mine); p != nil {
		v := project(p, viewer)
		st.Reservation = &v
	}
	return st
}

// primary picks the claimant's pending reservation, or their most recent
// purchase when nothing is pending.
func primary(mine []*models.Reservation) *models.Reservation {
	var latest *models.Reservation
	for _, r := range mine {
		if r.IsPending() {
			return r
		}
		if latest == nil || r.CreatedAt.After(latest.CreatedAt) {
			latest = r
		}
	}
	return latest
}

func project(r *models.Reservation, viewer Viewer) models.ReservationView {
	v := models.ReservationView{
		ID:              r.ID,
		ItemID:          r.ItemID,
		Quantity:        r.Quantity,
		Purchased:       r.Purchased,
		PurchaseGroupID: r.PurchaseGroupID,
		PurchasedAt:     r.PurchasedAt,
		CreatedAt:       r.CreatedAt,
	}
	if viewer.IsOwner && r.ReservedByID != viewer.ID {
		return v
	}
	by := r.ReservedByID
	v.ReservedByID = &by
	v.ReservedForID = r.ReservedForID
	v.Message = r.Message
	return v
}

// RequireAvailable fails with Conflict when qty exceeds the status' free units.
func RequireAvailable(st models.ReservationStatus, qty int) error {
	if qty > st.AvailableQuantity {
		return apperr.Conflict("Only %d item(s) remain available", st.AvailableQuantity)
	}
	return nil
}

// PendingFor returns userID's active, not yet purchased reservation.
func PendingFor(reservations []*models.Reservation, userID int64) *models.Reservation {
	for _, r := range reservations {
		if r.ReservedByID == userID && r.IsPending() {
			return r
		}
	}
	return nil
}

// ActiveFor returns userID's active reservations, oldest first.
func ActiveFor(reservations []*models.Reservation, userID int64) []*models.Reservation {
	var out []*models.Reservation
	for _, r := range reservations {
		if r.ReservedByID == userID && r.IsActive() {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
