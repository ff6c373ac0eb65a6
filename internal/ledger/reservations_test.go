package ledger

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Kerhoff/giftpool/internal/apperr"
	"github.com/Kerhoff/giftpool/internal/models"
)

const (
	ownerID = int64(1)
	aliceID = int64(2)
	bobID   = int64(3)
)

func ptr[T any](v T) *T { return &v }

func item(qty int) *models.WishItem {
	return &models.WishItem{ID: 10, WishListID: 100, OwnerID: ownerID, Quantity: qty}
}

func res(id, by int64, qty int, purchased bool) *models.Reservation {
	return &models.Reservation{
		ID:            id,
		ItemID:        10,
		ReservedByID:  by,
		ReservedForID: ptr(ownerID),
		Quantity:      qty,
		Purchased:     purchased,
		Message:       ptr("for the birthday"),
		CreatedAt:     time.Unix(id, 0),
	}
}

func TestComputeStatus_Aggregates(t *testing.T) {
	released := res(3, bobID, 5, false)
	released.DeletedAt = ptr(time.Now())

	st := ComputeStatus(item(3), []*models.Reservation{
		res(1, aliceID, 2, false),
		res(2, bobID, 1, true),
		released,
	}, Viewer{ID: bobID})

	assert.Equal(t, 3, st.TotalQuantity)
	assert.Equal(t, 2, st.ReservedQuantity)
	assert.Equal(t, 1, st.PurchasedQuantity)
	assert.Equal(t, 0, st.AvailableQuantity)
	assert.True(t, st.IsReserved)
	assert.True(t, st.IsPurchased)
	assert.True(t, st.IsFullyClaimed)
	assert.False(t, st.IsFullyPurchased)
	assert.Len(t, st.Claims, 2)
	require.Len(t, st.MyReservations, 1)
	require.NotNil(t, st.Reservation)
	assert.Equal(t, int64(2), st.Reservation.ID)
}

func TestComputeStatus_DefaultQuantityAndEmpty(t *testing.T) {
	st := ComputeStatus(item(0), nil, Viewer{ID: aliceID})

	assert.Equal(t, 1, st.TotalQuantity)
	assert.Equal(t, 1, st.AvailableQuantity)
	assert.False(t, st.IsReserved)
	assert.False(t, st.IsFullyClaimed)
	assert.NotNil(t, st.Claims)
	assert.NotNil(t, st.MyReservations)
	assert.Nil(t, st.Reservation)
}

func TestComputeStatus_AvailabilityNeverNegative(t *testing.T) {
	st := ComputeStatus(item(1), []*models.Reservation{
		res(1, aliceID, 2, false),
		res(2, bobID, 2, true),
	}, Viewer{ID: aliceID})

	assert.Equal(t, 0, st.AvailableQuantity)
	assert.True(t, st.IsFullyPurchased)
}

func TestComputeStatus_OwnerSeesAggregatesOnly(t *testing.T) {
	st := ComputeStatus(item(3), []*models.Reservation{
		res(1, aliceID, 2, false),
		res(2, bobID, 1, true),
	}, Viewer{ID: ownerID, IsOwner: true})

	assert.Equal(t, 2, st.ReservedQuantity)
	assert.Equal(t, 1, st.PurchasedQuantity)
	assert.Nil(t, st.Reservation)
	assert.Empty(t, st.MyReservations)
	for _, c := range st.Claims {
		assert.Nil(t, c.ReservedByID)
		assert.Nil(t, c.ReservedForID)
		assert.Nil(t, c.Message)
	}
}

func TestComputeStatus_PrimaryPrefersPending(t *testing.T) {
	st := ComputeStatus(item(5), []*models.Reservation{
		res(1, aliceID, 1, true),
		res(2, aliceID, 2, false),
		res(3, aliceID, 1, true),
	}, Viewer{ID: aliceID})

	require.NotNil(t, st.Reservation)
	assert.Equal(t, int64(2), st.Reservation.ID)
	assert.Equal(t, aliceID, *st.Reservation.ReservedByID)
	assert.Len(t, st.MyReservations, 3)
}

func TestComputeStatus_PrimaryFallsBackToLatestPurchase(t *testing.T) {
	st := ComputeStatus(item(5), []*models.Reservation{
		res(1, aliceID, 1, true),
		res(4, aliceID, 1, true),
	}, Viewer{ID: aliceID})

	require.NotNil(t, st.Reservation)
	assert.Equal(t, int64(4), st.Reservation.ID)
}

func TestRequireAvailable(t *testing.T) {
	st := ComputeStatus(item(3), []*models.Reservation{res(1, aliceID, 2, false)}, Viewer{ID: bobID})

	err := RequireAvailable(st, 2)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperr.ErrConflict))
	assert.Equal(t, "Only 1 item(s) remain available", err.Error())

	assert.NoError(t, RequireAvailable(st, 1))
}

func TestPendingForAndActiveFor(t *testing.T) {
	released := res(4, aliceID, 1, false)
	released.DeletedAt = ptr(time.Now())
	all := []*models.Reservation{res(3, aliceID, 1, true), res(2, aliceID, 2, false), res(1, bobID, 1, false), released}

	p := PendingFor(all, aliceID)
	require.NotNil(t, p)
	assert.Equal(t, int64(2), p.ID)
	assert.Nil(t, PendingFor(all, ownerID))

	active := ActiveFor(all, aliceID)
	require.Len(t, active, 2)
	assert.Equal(t, int64(2), active[0].ID)
	assert.Equal(t, int64(3), active[1].ID)
}
