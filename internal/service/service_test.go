package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Kerhoff/giftpool/internal/apperr"
	"github.com/Kerhoff/giftpool/internal/metrics"
	"github.com/Kerhoff/giftpool/internal/models"
	"github.com/Kerhoff/giftpool/internal/repository"
	"github.com/Kerhoff/giftpool/internal/repository/memory"
	"github.com/Kerhoff/giftpool/pkg/logger"
)

type published struct {
	listID    int64
	excludeID int64
	eventType models.EventType
	event     models.Event
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []published
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, listID, excludeActorID int64, eventType models.EventType, payload any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	ev, _ := payload.(models.Event)
	p.events = append(p.events, published{listID: listID, excludeID: excludeActorID, eventType: eventType, event: ev})
	return p.err
}

func (p *recordingPublisher) types() []models.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]models.EventType, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.eventType)
	}
	return out
}

type env struct {
	svc      *Service
	store    *memory.Store
	pub      *recordingPublisher
	owner    *models.User
	alice    *models.User
	bob      *models.User
	carol    *models.User
	stranger *models.User
	list     *models.WishList
	item     *models.WishItem
}

func newEnv(t *testing.T, itemQty int) *env {
	t.Helper()
	ctx := context.Background()
	store := memory.NewStore()
	repos := store.Repos()

	family, err := repos.Families.Create(ctx, &models.Family{ChatID: -100, Name: "Home"})
	require.NoError(t, err)

	mkUser := func(tgID int64, name string, member bool) *models.User {
		u, err := repos.Users.Create(ctx, &models.User{TelegramID: tgID, FirstName: name})
		require.NoError(t, err)
		if member {
			require.NoError(t, repos.Families.AddMember(ctx, family.ID, u.ID, "member"))
		}
		return u
	}

	e := &env{store: store, pub: &recordingPublisher{}}
	e.owner = mkUser(1, "Olga", true)
	e.alice = mkUser(2, "Alice", true)
	e.bob = mkUser(3, "Bob", true)
	e.carol = mkUser(4, "Carol", true)
	e.stranger = mkUser(5, "Eve", false)

	e.list, err = repos.WishLists.CreateList(ctx, &models.WishList{FamilyID: family.ID, UserID: e.owner.ID, Name: "Birthday"})
	require.NoError(t, err)
	e.item, err = repos.WishLists.AddItem(ctx, &models.WishItem{WishListID: e.list.ID, Name: "Lego", Quantity: itemQty})
	require.NoError(t, err)

	e.svc = New(store, logger.Discard(), WithPublisher(e.pub), WithMetrics(metrics.New()))
	return e
}

func assertKind(t *testing.T, err error, kind apperr.Kind) {
	t.Helper()
	require.Error(t, err)
	assert.Equal(t, kind, apperr.KindOf(err), "unexpected error: %v", err)
}

func strp(s string) *string { return &s }

func TestClaimPurchaseAvailability(t *testing.T) {
	e := newEnv(t, 3)
	ctx := context.Background()

	res, err := e.svc.Claim(ctx, e.item.ID, e.alice.ID, ClaimInput{Quantity: 2})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Status.AvailableQuantity)
	require.NotNil(t, res.Reservation)
	assert.Equal(t, 2, res.Reservation.Quantity)

	_, err = e.svc.Purchase(ctx, e.item.ID, e.bob.ID, PurchaseInput{Quantity: 2})
	assertKind(t, err, apperr.KindConflict)
	assert.Equal(t, "Only 1 item(s) remain available", apperr.PublicMessage(err))

	res, err = e.svc.Purchase(ctx, e.item.ID, e.bob.ID, PurchaseInput{Quantity: 1})
	require.NoError(t, err)
	assert.Equal(t, 0, res.Status.AvailableQuantity)
	assert.Equal(t, 1, res.Status.PurchasedQuantity)
	assert.Equal(t, 2, res.Status.ReservedQuantity)
	assert.True(t, res.Status.IsFullyClaimed)
	assert.False(t, res.Status.IsFullyPurchased)

	_, err = e.svc.Claim(ctx, e.item.ID, e.carol.ID, ClaimInput{})
	assertKind(t, err, apperr.KindConflict)
}

func TestClaim_RepeatGrowsPendingReservation(t *testing.T) {
	e := newEnv(t, 3)
	ctx := context.Background()

	_, err := e.svc.Claim(ctx, e.item.ID, e.alice.ID, ClaimInput{})
	require.NoError(t, err)
	res, err := e.svc.Claim(ctx, e.item.ID, e.alice.ID, ClaimInput{Quantity: "2", Message: strp("for the party")})
	require.NoError(t, err)

	require.Len(t, res.Status.MyReservations, 1)
	assert.Equal(t, 3, res.Status.MyReservations[0].Quantity)
	assert.Equal(t, 0, res.Status.AvailableQuantity)
}

func TestClaim_Rejections(t *testing.T) {
	e := newEnv(t, 1)
	ctx := context.Background()

	_, err := e.svc.Claim(ctx, e.item.ID, e.owner.ID, ClaimInput{})
	assertKind(t, err, apperr.KindForbidden)

	_, err = e.svc.Claim(ctx, e.item.ID, e.stranger.ID, ClaimInput{})
	assertKind(t, err, apperr.KindForbidden)

	_, err = e.svc.Claim(ctx, 9999, e.alice.ID, ClaimInput{})
	assertKind(t, err, apperr.KindNotFound)

	_, err = e.svc.Claim(ctx, e.item.ID, e.alice.ID, ClaimInput{Quantity: 5})
	assertKind(t, err, apperr.KindConflict)

	assert.Empty(t, e.pub.types())
}

func TestClaim_ConcurrentLastUnit(t *testing.T) {
	e := newEnv(t, 1)
	ctx := context.Background()
	repos := e.store.Repos()

	claimants := []int64{e.alice.ID, e.bob.ID, e.carol.ID}
	for i := 0; i < 7; i++ {
		u, err := repos.Users.Create(ctx, &models.User{TelegramID: int64(100 + i), FirstName: fmt.Sprintf("Guest %d", i)})
		require.NoError(t, err)
		require.NoError(t, repos.Families.AddMember(ctx, e.list.FamilyID, u.ID, "member"))
		claimants = append(claimants, u.ID)
	}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		conflicts int
	)
	for _, id := range claimants {
		wg.Add(1)
		go func(userID int64) {
			defer wg.Done()
			_, err := e.svc.Claim(ctx, e.item.ID, userID, ClaimInput{})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, apperr.ErrConflict):
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(id)
	}
	wg.Wait()

	assert.Equal(t, 1, succeeded)
	assert.Equal(t, len(claimants)-1, conflicts)

	st, err := e.svc.GetStatus(ctx, e.item.ID, e.alice.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, st.ReservedQuantity)
	assert.Equal(t, 0, st.AvailableQuantity)
}

func TestPurchase_ConvertsPendingReservation(t *testing.T) {
	e := newEnv(t, 3)
	ctx := context.Background()

	_, err := e.svc.Claim(ctx, e.item.ID, e.alice.ID, ClaimInput{Quantity: 2})
	require.NoError(t, err)

	_, err = e.svc.Purchase(ctx, e.item.ID, e.alice.ID, PurchaseInput{Quantity: 1})
	assertKind(t, err, apperr.KindConflict)

	res, err := e.svc.Purchase(ctx, e.item.ID, e.alice.ID, PurchaseInput{})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Status.PurchasedQuantity)
	assert.Equal(t, 0, res.Status.ReservedQuantity)
	require.NotNil(t, res.Reservation)
	assert.True(t, res.Reservation.Purchased)
	assert.NotNil(t, res.Reservation.PurchasedAt)

	_, err = e.svc.Purchase(ctx, e.item.ID, e.owner.ID, PurchaseInput{})
	assertKind(t, err, apperr.KindForbidden)
}

func TestRelease(t *testing.T) {
	e := newEnv(t, 3)
	ctx := context.Background()

	_, err := e.svc.Release(ctx, e.item.ID, e.alice.ID, ReleaseInput{})
	assertKind(t, err, apperr.KindNotFound)

	claimed, err := e.svc.Claim(ctx, e.item.ID, e.alice.ID, ClaimInput{Quantity: 2})
	require.NoError(t, err)
	bought, err := e.svc.Purchase(ctx, e.item.ID, e.alice.ID, PurchaseInput{})
	require.NoError(t, err)
	_, err = e.svc.Claim(ctx, e.item.ID, e.alice.ID, ClaimInput{})
	require.NoError(t, err)

	_, err = e.svc.Release(ctx, e.item.ID, e.alice.ID, ReleaseInput{})
	assertKind(t, err, apperr.KindValidation)

	_, err = e.svc.Release(ctx, e.item.ID, e.bob.ID, ReleaseInput{ReservationID: &claimed.Reservation.ID})
	assertKind(t, err, apperr.KindForbidden)

	st, err := e.svc.Release(ctx, e.item.ID, e.alice.ID, ReleaseInput{ReservationID: &bought.Reservation.ID})
	require.NoError(t, err)
	assert.Equal(t, 0, st.PurchasedQuantity)
	assert.Equal(t, 1, st.ReservedQuantity)
	assert.Equal(t, 2, st.AvailableQuantity)

	_, err = e.svc.Release(ctx, e.item.ID, e.alice.ID, ReleaseInput{ReservationID: &bought.Reservation.ID})
	assertKind(t, err, apperr.KindNotFound)

	st, err = e.svc.Release(ctx, e.item.ID, e.alice.ID, ReleaseInput{})
	require.NoError(t, err)
	assert.Equal(t, 3, st.AvailableQuantity)
	assert.Nil(t, st.Reservation)
}

func TestGetStatus_OwnerViewIsRedacted(t *testing.T) {
	e := newEnv(t, 2)
	ctx := context.Background()

	_, err := e.svc.Claim(ctx, e.item.ID, e.alice.ID, ClaimInput{Message: strp("surprise")})
	require.NoError(t, err)

	st, err := e.svc.GetStatus(ctx, e.item.ID, e.owner.ID)
	require.NoError(t, err)
	assert.True(t, st.IsReserved)
	assert.Equal(t, 1, st.ReservedQuantity)
	for _, c := range st.Claims {
		assert.Nil(t, c.ReservedByID)
		assert.Nil(t, c.Message)
	}
	assert.Empty(t, st.MyReservations)

	st, err = e.svc.GetStatus(ctx, e.item.ID, e.bob.ID)
	require.NoError(t, err)
	require.Len(t, st.Claims, 1)
	require.NotNil(t, st.Claims[0].ReservedByID)
	assert.Equal(t, e.alice.ID, *st.Claims[0].ReservedByID)

	ev := e.pub.events[0]
	assert.Equal(t, e.list.ID, ev.listID)
	assert.Equal(t, e.alice.ID, ev.excludeID)
	payload, ok := ev.event.Payload.(models.ReservationStatus)
	require.True(t, ok)
	for _, c := range payload.Claims {
		assert.Nil(t, c.ReservedByID)
	}
}

func TestQuantityGroupLocksAndReopens(t *testing.T) {
	e := newEnv(t, 5)
	ctx := context.Background()

	view, err := e.svc.CreateGroup(ctx, e.item.ID, e.alice.ID, CreateGroupInput{IsQuantityBased: true, TargetQuantity: 5})
	require.NoError(t, err)
	groupID := view.Group.ID
	assert.Equal(t, models.GroupStatusOpen, view.Group.Status)

	view, err = e.svc.Contribute(ctx, e.item.ID, e.alice.ID, ContributeInput{Quantity: 2})
	require.NoError(t, err)
	aliceContribution := view.MyContribution
	require.NotNil(t, aliceContribution)

	view, err = e.svc.Contribute(ctx, e.item.ID, e.bob.ID, ContributeInput{Quantity: 2})
	require.NoError(t, err)
	assert.Equal(t, 4, view.TotalQuantity)
	assert.Equal(t, models.GroupStatusOpen, view.Group.Status)
	require.NotNil(t, view.RemainingQuantity)
	assert.Equal(t, 1, *view.RemainingQuantity)
	assert.Nil(t, view.RemainingAmountCents)

	view, err = e.svc.Contribute(ctx, e.item.ID, e.carol.ID, ContributeInput{Quantity: 1})
	require.NoError(t, err)
	assert.Equal(t, models.GroupStatusLocked, view.Group.Status)
	assert.NotNil(t, view.Group.LockedAt)
	assert.True(t, view.GoalMet)

	view, err = e.svc.DeleteContribution(ctx, groupID, aliceContribution.ID, e.alice.ID)
	require.NoError(t, err)
	assert.Equal(t, models.GroupStatusOpen, view.Group.Status)
	assert.Nil(t, view.Group.LockedAt)
	assert.Equal(t, 3, view.TotalQuantity)
	assert.Nil(t, view.MyContribution)
}

func TestMoneyGroupCompletesAndStaysTerminal(t *testing.T) {
	e := newEnv(t, 1)
	ctx := context.Background()

	view, err := e.svc.CreateGroup(ctx, e.item.ID, e.alice.ID, CreateGroupInput{TargetAmount: 10000, Currency: "usd"})
	require.NoError(t, err)
	groupID := view.Group.ID
	require.NotNil(t, view.Group.Currency)
	assert.Equal(t, "USD", *view.Group.Currency)

	_, err = e.svc.ManageGroup(ctx, groupID, e.owner.ID, ManageGroupInput{Status: strp("completed")})
	assertKind(t, err, apperr.KindConflict)

	_, err = e.svc.Contribute(ctx, e.item.ID, e.alice.ID, ContributeInput{Amount: 6000})
	require.NoError(t, err)
	view, err = e.svc.Contribute(ctx, e.item.ID, e.bob.ID, ContributeInput{Amount: 4000})
	require.NoError(t, err)
	assert.Equal(t, models.GroupStatusLocked, view.Group.Status)
	require.NotNil(t, view.RemainingAmountCents)
	assert.Equal(t, int64(0), *view.RemainingAmountCents)
	bobContribution := view.MyContribution
	require.NotNil(t, bobContribution)

	view, err = e.svc.ManageGroup(ctx, groupID, e.owner.ID, ManageGroupInput{Status: strp("completed")})
	require.NoError(t, err)
	assert.Equal(t, models.GroupStatusCompleted, view.Group.Status)
	assert.NotNil(t, view.Group.CompletedAt)

	view, err = e.svc.DeleteContribution(ctx, groupID, bobContribution.ID, e.bob.ID)
	require.NoError(t, err)
	assert.Equal(t, models.GroupStatusCompleted, view.Group.Status)
	assert.Equal(t, int64(6000), view.TotalAmountCents)

	_, err = e.svc.Contribute(ctx, e.item.ID, e.carol.ID, ContributeInput{Amount: 100})
	assertKind(t, err, apperr.KindConflict)
}

func TestContribute_ReplacesInPlace(t *testing.T) {
	e := newEnv(t, 1)
	ctx := context.Background()

	_, err := e.svc.CreateGroup(ctx, e.item.ID, e.alice.ID, CreateGroupInput{TargetAmount: 5000, Currency: "EUR"})
	require.NoError(t, err)

	_, err = e.svc.Contribute(ctx, e.item.ID, e.bob.ID, ContributeInput{Amount: 1000})
	require.NoError(t, err)
	view, err := e.svc.Contribute(ctx, e.item.ID, e.bob.ID, ContributeInput{Amount: 2500, Fulfilled: true, Note: strp(" paid ")})
	require.NoError(t, err)

	assert.Len(t, view.Contributions, 1)
	assert.Equal(t, int64(2500), view.TotalAmountCents)
	require.NotNil(t, view.MyContribution)
	assert.Equal(t, models.ContributionFulfilled, view.MyContribution.Status)
	assert.NotNil(t, view.MyContribution.FulfilledAt)
	require.NotNil(t, view.MyContribution.Note)
	assert.Equal(t, "paid", *view.MyContribution.Note)

	view, err = e.svc.Contribute(ctx, e.item.ID, e.bob.ID, ContributeInput{Amount: 1500, ExternalName: strp("Grandma")})
	require.NoError(t, err)
	assert.Len(t, view.Contributions, 2)
	assert.Equal(t, int64(4000), view.TotalAmountCents)
}

func TestContribute_Gates(t *testing.T) {
	e := newEnv(t, 1)
	ctx := context.Background()

	_, err := e.svc.Contribute(ctx, e.item.ID, e.alice.ID, ContributeInput{Amount: 100})
	assertKind(t, err, apperr.KindNotFound)

	_, err = e.svc.CreateGroup(ctx, e.item.ID, e.alice.ID, CreateGroupInput{TargetAmount: 1000, Currency: "USD"})
	require.NoError(t, err)

	_, err = e.svc.Contribute(ctx, e.item.ID, e.alice.ID, ContributeInput{})
	assertKind(t, err, apperr.KindValidation)

	_, err = e.svc.Contribute(ctx, e.item.ID, e.owner.ID, ContributeInput{Amount: 100})
	assertKind(t, err, apperr.KindForbidden)

	_, err = e.svc.Contribute(ctx, e.item.ID, e.stranger.ID, ContributeInput{Amount: 100})
	assertKind(t, err, apperr.KindForbidden)

	view, err := e.svc.Contribute(ctx, e.item.ID, e.alice.ID, ContributeInput{Amount: 1000})
	require.NoError(t, err)
	assert.Equal(t, models.GroupStatusLocked, view.Group.Status)

	_, err = e.svc.Contribute(ctx, e.item.ID, e.bob.ID, ContributeInput{Amount: 100})
	assertKind(t, err, apperr.KindConflict)

	view, err = e.svc.Contribute(ctx, e.item.ID, e.owner.ID, ContributeInput{Amount: 200})
	require.NoError(t, err)
	assert.Equal(t, int64(1200), view.TotalAmountCents)
	assert.Equal(t, models.GroupStatusLocked, view.Group.Status)
}

func TestCreateGroup_Rules(t *testing.T) {
	e := newEnv(t, 1)
	ctx := context.Background()

	_, err := e.svc.CreateGroup(ctx, e.item.ID, e.owner.ID, CreateGroupInput{TargetAmount: 1000, Currency: "USD"})
	assertKind(t, err, apperr.KindForbidden)

	_, err = e.svc.CreateGroup(ctx, e.item.ID, e.alice.ID, CreateGroupInput{TargetAmount: 1000, Currency: "dollars"})
	assertKind(t, err, apperr.KindValidation)

	_, err = e.svc.CreateGroup(ctx, e.item.ID, e.alice.ID, CreateGroupInput{Currency: "USD"})
	assertKind(t, err, apperr.KindValidation)

	view, err := e.svc.CreateGroup(ctx, e.item.ID, e.alice.ID, CreateGroupInput{IsQuantityBased: true})
	require.NoError(t, err)
	require.NotNil(t, view.Group.TargetQuantity)
	assert.Equal(t, 1, *view.Group.TargetQuantity)

	_, err = e.svc.CreateGroup(ctx, e.item.ID, e.bob.ID, CreateGroupInput{TargetAmount: 1000, Currency: "USD"})
	assertKind(t, err, apperr.KindConflict)
}

func TestManageGroup(t *testing.T) {
	e := newEnv(t, 1)
	ctx := context.Background()

	view, err := e.svc.CreateGroup(ctx, e.item.ID, e.alice.ID, CreateGroupInput{TargetAmount: 5000, Currency: "USD"})
	require.NoError(t, err)
	groupID := view.Group.ID
	_, err = e.svc.Contribute(ctx, e.item.ID, e.bob.ID, ContributeInput{Amount: 3000})
	require.NoError(t, err)

	_, err = e.svc.ManageGroup(ctx, groupID, e.alice.ID, ManageGroupInput{Status: strp("shipped")})
	assertKind(t, err, apperr.KindValidation)

	view, err = e.svc.ManageGroup(ctx, groupID, e.alice.ID, ManageGroupInput{TargetAmount: 3000, Notes: strp("cheaper elsewhere")})
	require.NoError(t, err)
	assert.Equal(t, models.GroupStatusLocked, view.Group.Status)
	require.NotNil(t, view.Group.Notes)
	assert.Equal(t, "cheaper elsewhere", *view.Group.Notes)

	again, err := e.svc.ManageGroup(ctx, groupID, e.alice.ID, ManageGroupInput{})
	require.NoError(t, err)
	assert.Equal(t, view.Group.Status, again.Group.Status)
	assert.Equal(t, view.Group.LockedAt, again.Group.LockedAt)

	view, err = e.svc.ManageGroup(ctx, groupID, e.alice.ID, ManageGroupInput{Status: strp("abandoned")})
	require.NoError(t, err)
	assert.Equal(t, models.GroupStatusAbandoned, view.Group.Status)

	_, err = e.svc.ManageGroup(ctx, groupID, e.alice.ID, ManageGroupInput{Status: strp("locked")})
	assertKind(t, err, apperr.KindConflict)

	view, err = e.svc.ManageGroup(ctx, groupID, e.alice.ID, ManageGroupInput{Status: strp("open")})
	require.NoError(t, err)
	assert.Equal(t, models.GroupStatusLocked, view.Group.Status)
	assert.Nil(t, view.Group.AbandonedAt)

	_, err = e.svc.ManageGroup(ctx, groupID, e.stranger.ID, ManageGroupInput{Notes: strp("hi")})
	assertKind(t, err, apperr.KindForbidden)

	_, err = e.svc.ManageGroup(ctx, 9999, e.alice.ID, ManageGroupInput{})
	assertKind(t, err, apperr.KindNotFound)
}

func TestDeleteGroup_Cascades(t *testing.T) {
	e := newEnv(t, 2)
	ctx := context.Background()
	repos := e.store.Repos()

	claimed, err := e.svc.Claim(ctx, e.item.ID, e.alice.ID, ClaimInput{})
	require.NoError(t, err)
	view, err := e.svc.CreateGroup(ctx, e.item.ID, e.alice.ID, CreateGroupInput{TargetAmount: 9000, Currency: "USD"})
	require.NoError(t, err)
	groupID := view.Group.ID

	linked, err := repos.Reservations.GetByID(ctx, claimed.Reservation.ID)
	require.NoError(t, err)
	require.NotNil(t, linked.PurchaseGroupID)
	assert.Equal(t, groupID, *linked.PurchaseGroupID)

	_, err = e.svc.Contribute(ctx, e.item.ID, e.alice.ID, ContributeInput{Amount: 1000})
	require.NoError(t, err)
	_, err = e.svc.Contribute(ctx, e.item.ID, e.bob.ID, ContributeInput{Amount: 2000})
	require.NoError(t, err)

	_, err = e.svc.DeleteGroup(ctx, groupID, e.bob.ID)
	assertKind(t, err, apperr.KindForbidden)

	view, err = e.svc.DeleteGroup(ctx, groupID, e.owner.ID)
	require.NoError(t, err)
	assert.Equal(t, models.GroupStatusAbandoned, view.Group.Status)
	assert.NotNil(t, view.Group.DeletedAt)
	assert.Empty(t, view.Contributions)

	contributions, err := repos.Contributions.ListByGroup(ctx, groupID)
	require.NoError(t, err)
	assert.Empty(t, contributions)

	detached, err := repos.Reservations.GetByID(ctx, claimed.Reservation.ID)
	require.NoError(t, err)
	assert.Nil(t, detached.PurchaseGroupID)

	_, err = e.svc.GetGroup(ctx, e.item.ID, e.alice.ID)
	assertKind(t, err, apperr.KindNotFound)

	_, err = e.svc.DeleteGroup(ctx, groupID, e.owner.ID)
	assertKind(t, err, apperr.KindNotFound)

	_, err = e.svc.CreateGroup(ctx, e.item.ID, e.bob.ID, CreateGroupInput{IsQuantityBased: true, TargetQuantity: 2})
	require.NoError(t, err)
}

func TestUpdateContribution(t *testing.T) {
	e := newEnv(t, 1)
	ctx := context.Background()

	view, err := e.svc.CreateGroup(ctx, e.item.ID, e.alice.ID, CreateGroupInput{TargetAmount: 5000, Currency: "USD"})
	require.NoError(t, err)
	groupID := view.Group.ID
	view, err = e.svc.Contribute(ctx, e.item.ID, e.bob.ID, ContributeInput{Amount: 1000})
	require.NoError(t, err)
	contributionID := view.MyContribution.ID

	_, err = e.svc.UpdateContribution(ctx, groupID, contributionID, e.carol.ID, UpdateContributionInput{Amount: 2000})
	assertKind(t, err, apperr.KindForbidden)

	_, err = e.svc.UpdateContribution(ctx, groupID, contributionID, e.bob.ID, UpdateContributionInput{Status: strp("bogus")})
	assertKind(t, err, apperr.KindValidation)

	_, err = e.svc.UpdateContribution(ctx, groupID, contributionID, e.bob.ID, UpdateContributionInput{IsExternal: func() *bool { b := true; return &b }()})
	assertKind(t, err, apperr.KindValidation)

	view, err = e.svc.UpdateContribution(ctx, groupID, contributionID, e.bob.ID, UpdateContributionInput{Amount: 5000, Status: strp("fulfilled")})
	require.NoError(t, err)
	assert.Equal(t, models.GroupStatusLocked, view.Group.Status)
	require.NotNil(t, view.MyContribution)
	assert.NotNil(t, view.MyContribution.FulfilledAt)

	external := true
	view, err = e.svc.UpdateContribution(ctx, groupID, contributionID, e.bob.ID, UpdateContributionInput{IsExternal: &external, ExternalName: strp("Uncle Sam")})
	require.NoError(t, err)
	assert.Nil(t, view.MyContribution)
	require.Len(t, view.Contributions, 1)
	assert.True(t, view.Contributions[0].IsExternal)
	assert.Nil(t, view.Contributions[0].ContributorID)

	view, err = e.svc.UpdateContribution(ctx, groupID, contributionID, e.bob.ID, UpdateContributionInput{Status: strp("cancelled")})
	require.NoError(t, err)
	assert.Equal(t, models.GroupStatusOpen, view.Group.Status)
	assert.Empty(t, view.Contributions)

	_, err = e.svc.UpdateContribution(ctx, groupID, contributionID, e.bob.ID, UpdateContributionInput{Amount: 10})
	assertKind(t, err, apperr.KindNotFound)
}

func TestEvents_OnePerCommittedOperation(t *testing.T) {
	e := newEnv(t, 2)
	ctx := context.Background()
	e.pub.err = errors.New("broker down")

	_, err := e.svc.Claim(ctx, e.item.ID, e.alice.ID, ClaimInput{})
	require.NoError(t, err)
	view, err := e.svc.CreateGroup(ctx, e.item.ID, e.bob.ID, CreateGroupInput{TargetAmount: 100, Currency: "USD"})
	require.NoError(t, err)
	_, err = e.svc.Contribute(ctx, e.item.ID, e.carol.ID, ContributeInput{Amount: 100})
	require.NoError(t, err)
	_, err = e.svc.Contribute(ctx, e.item.ID, e.alice.ID, ContributeInput{Amount: 100})
	require.Error(t, err)
	_, err = e.svc.DeleteGroup(ctx, view.Group.ID, e.bob.ID)
	require.NoError(t, err)

	assert.Equal(t, []models.EventType{
		models.EventReservationClaimed,
		models.EventGroupCreated,
		models.EventContributionUpserted,
		models.EventGroupDeleted,
	}, e.pub.types())

	last := e.pub.events[3].event
	require.NotNil(t, last.GroupID)
	assert.Equal(t, view.Group.ID, *last.GroupID)
	assert.Equal(t, e.item.ID, last.ItemID)
	assert.NotEmpty(t, last.ID)
	summary, ok := last.Payload.(*models.GroupSummary)
	require.True(t, ok)
	assert.Equal(t, models.GroupStatusAbandoned, summary.Status)
}

func TestListReservationsForList(t *testing.T) {
	e := newEnv(t, 2)
	ctx := context.Background()

	second, err := e.store.Repos().WishLists.AddItem(ctx, &models.WishItem{WishListID: e.list.ID, Name: "Book"})
	require.NoError(t, err)

	_, err = e.svc.Claim(ctx, e.item.ID, e.alice.ID, ClaimInput{})
	require.NoError(t, err)
	_, err = e.svc.CreateGroup(ctx, second.ID, e.bob.ID, CreateGroupInput{TargetAmount: 2000, Currency: "USD"})
	require.NoError(t, err)
	_, err = e.svc.Contribute(ctx, second.ID, e.bob.ID, ContributeInput{Amount: 500})
	require.NoError(t, err)

	out, err := e.svc.ListReservationsForList(ctx, e.list.ID, e.owner.ID)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, 1, out[0].Status.ReservedQuantity)
	assert.Nil(t, out[0].SharedPurchase)
	require.NotNil(t, out[1].SharedPurchase)
	assert.Equal(t, int64(500), out[1].SharedPurchase.TotalAmountCents)
	assert.Equal(t, 1, out[1].SharedPurchase.ContributorCount)

	_, err = e.svc.ListReservationsForList(ctx, e.list.ID, e.stranger.ID)
	assertKind(t, err, apperr.KindForbidden)
}

func TestWishListHelpers(t *testing.T) {
	e := newEnv(t, 1)
	ctx := context.Background()

	item, err := e.svc.AddWish(ctx, e.alice, e.list.FamilyID, "  Kindle ", 0)
	require.NoError(t, err)
	assert.Equal(t, "Kindle", item.Name)
	assert.Equal(t, 1, item.Quantity)
	assert.Equal(t, e.alice.ID, item.OwnerID)

	again, err := e.svc.EnsureWishList(ctx, e.alice, e.list.FamilyID)
	require.NoError(t, err)
	assert.Equal(t, item.WishListID, again.ID)

	_, err = e.svc.AddWish(ctx, e.alice, e.list.FamilyID, " ", 1)
	assertKind(t, err, apperr.KindValidation)

	lists, err := e.svc.FamilyWishLists(ctx, e.list.FamilyID)
	require.NoError(t, err)
	require.Len(t, lists, 2)
	require.NotNil(t, lists[1].User)
	assert.Equal(t, e.alice.ID, lists[1].User.ID)
}

func TestClaimPurchase_HugeQuantityIsRejected(t *testing.T) {
	e := newEnv(t, 3)
	ctx := context.Background()

	_, err := e.svc.Claim(ctx, e.item.ID, e.alice.ID, ClaimInput{Quantity: 1e12})
	assertKind(t, err, apperr.KindConflict)
	assert.Equal(t, "Only 3 item(s) remain available", apperr.PublicMessage(err))

	_, err = e.svc.Claim(ctx, e.item.ID, e.alice.ID, ClaimInput{Quantity: 1})
	require.NoError(t, err)
	_, err = e.svc.Purchase(ctx, e.item.ID, e.alice.ID, PurchaseInput{Quantity: 5e9})
	assertKind(t, err, apperr.KindConflict)

	_, err = e.svc.Purchase(ctx, e.item.ID, e.bob.ID, PurchaseInput{Quantity: "5000000000"})
	assertKind(t, err, apperr.KindConflict)

	st, err := e.svc.GetStatus(ctx, e.item.ID, e.alice.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, st.ReservedQuantity)
	assert.Equal(t, 0, st.PurchasedQuantity)
	assert.Equal(t, 2, st.AvailableQuantity)
}

func TestGroupViews_OwnerSeesNoContributors(t *testing.T) {
	e := newEnv(t, 1)
	ctx := context.Background()

	_, err := e.svc.CreateGroup(ctx, e.item.ID, e.alice.ID, CreateGroupInput{TargetAmount: 5000, Currency: "USD"})
	require.NoError(t, err)
	_, err = e.svc.Contribute(ctx, e.item.ID, e.alice.ID, ContributeInput{Amount: 2000, Note: strp("from alice")})
	require.NoError(t, err)
	_, err = e.svc.Contribute(ctx, e.item.ID, e.bob.ID, ContributeInput{Amount: 500, ExternalName: strp("Grandma")})
	require.NoError(t, err)

	view, err := e.svc.GetGroup(ctx, e.item.ID, e.owner.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2500), view.TotalAmountCents)
	assert.Zero(t, view.Group.CreatedByID)
	assert.Nil(t, view.MyContribution)
	require.Len(t, view.Contributions, 2)
	for _, c := range view.Contributions {
		assert.Nil(t, c.ContributorID)
		assert.Zero(t, c.CreatedByID)
		assert.Nil(t, c.Note)
		assert.Nil(t, c.ExternalName)
	}

	view, err = e.svc.ManageGroup(ctx, view.Group.ID, e.owner.ID, ManageGroupInput{Notes: strp("ribbon please")})
	require.NoError(t, err)
	assert.Zero(t, view.Group.CreatedByID)
	assert.Nil(t, view.Contributions[0].ContributorID)

	view, err = e.svc.GetGroup(ctx, e.item.ID, e.carol.ID)
	require.NoError(t, err)
	assert.Equal(t, e.alice.ID, view.Group.CreatedByID)
	require.NotNil(t, view.Contributions[0].ContributorID)
	assert.Equal(t, e.alice.ID, *view.Contributions[0].ContributorID)
	require.NotNil(t, view.Contributions[0].Note)
	assert.Equal(t, "from alice", *view.Contributions[0].Note)
}

func TestUpdateContribution_TakingOverExternalPledge(t *testing.T) {
	e := newEnv(t, 1)
	ctx := context.Background()
	notExternal := false

	view, err := e.svc.CreateGroup(ctx, e.item.ID, e.alice.ID, CreateGroupInput{TargetAmount: 5000, Currency: "USD"})
	require.NoError(t, err)
	groupID := view.Group.ID
	view, err = e.svc.Contribute(ctx, e.item.ID, e.bob.ID, ContributeInput{Amount: 5000})
	require.NoError(t, err)
	bobContribution := view.MyContribution.ID
	require.Equal(t, models.GroupStatusLocked, view.Group.Status)

	// the owner may top up a locked group on someone's behalf
	view, err = e.svc.Contribute(ctx, e.item.ID, e.owner.ID, ContributeInput{Amount: 1000, ExternalName: strp("Grandma")})
	require.NoError(t, err)
	var ownerRecorded int64
	for _, c := range view.Contributions {
		if c.IsExternal {
			ownerRecorded = c.ID
		}
	}
	require.NotZero(t, ownerRecorded)

	view, err = e.svc.UpdateContribution(ctx, groupID, bobContribution, e.bob.ID, UpdateContributionInput{Amount: 1000})
	require.NoError(t, err)
	require.Equal(t, models.GroupStatusOpen, view.Group.Status)

	_, err = e.svc.UpdateContribution(ctx, groupID, ownerRecorded, e.owner.ID, UpdateContributionInput{IsExternal: &notExternal})
	assertKind(t, err, apperr.KindForbidden)

	view, err = e.svc.Contribute(ctx, e.item.ID, e.bob.ID, ContributeInput{Amount: 300, ExternalName: strp("Uncle Sam")})
	require.NoError(t, err)
	var bobRecorded int64
	for _, c := range view.Contributions {
		if c.IsExternal && c.CreatedByID == e.bob.ID {
			bobRecorded = c.ID
		}
	}
	require.NotZero(t, bobRecorded)

	_, err = e.svc.UpdateContribution(ctx, groupID, bobRecorded, e.bob.ID, UpdateContributionInput{IsExternal: &notExternal})
	assertKind(t, err, apperr.KindConflict)

	_, err = e.svc.DeleteContribution(ctx, groupID, bobContribution, e.bob.ID)
	require.NoError(t, err)
	view, err = e.svc.UpdateContribution(ctx, groupID, bobRecorded, e.bob.ID, UpdateContributionInput{IsExternal: &notExternal})
	require.NoError(t, err)
	require.NotNil(t, view.MyContribution)
	assert.Equal(t, bobRecorded, view.MyContribution.ID)
	assert.Equal(t, int64(300), view.MyContribution.AmountCents)
}

func TestManageGroup_UnlockFundedGroupConflicts(t *testing.T) {
	e := newEnv(t, 1)
	ctx := context.Background()

	view, err := e.svc.CreateGroup(ctx, e.item.ID, e.alice.ID, CreateGroupInput{TargetAmount: 1000, Currency: "USD"})
	require.NoError(t, err)
	groupID := view.Group.ID
	_, err = e.svc.Contribute(ctx, e.item.ID, e.bob.ID, ContributeInput{Amount: 1000})
	require.NoError(t, err)

	_, err = e.svc.ManageGroup(ctx, groupID, e.alice.ID, ManageGroupInput{Status: strp("open")})
	assertKind(t, err, apperr.KindConflict)

	view, err = e.svc.ManageGroup(ctx, groupID, e.alice.ID, ManageGroupInput{Status: strp("open"), TargetAmount: 2000})
	require.NoError(t, err)
	assert.Equal(t, models.GroupStatusOpen, view.Group.Status)
}

// racingUsers and racingFamilies report "not found" for the first lookups,
// as a request would that lost the race to register the same chat.
type racingUsers struct {
	repository.UserRepository
	misses int
}

func (r *racingUsers) GetByTelegramID(ctx context.Context, telegramID int64) (*models.User, error) {
	if r.misses > 0 {
		r.misses--
		return nil, nil
	}
	return r.UserRepository.GetByTelegramID(ctx, telegramID)
}

type racingFamilies struct {
	repository.FamilyRepository
	misses int
}

func (r *racingFamilies) GetByChatID(ctx context.Context, chatID int64) (*models.Family, error) {
	if r.misses > 0 {
		r.misses--
		return nil, nil
	}
	return r.FamilyRepository.GetByChatID(ctx, chatID)
}

type racingStore struct {
	*memory.Store
	users    *racingUsers
	families *racingFamilies
}

func (s *racingStore) Repos() repository.Repositories {
	repos := s.Store.Repos()
	repos.Users = s.users
	repos.Families = s.families
	return repos
}

func TestEnsure_RecoversFromConcurrentRegistration(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	base := store.Repos()

	existingUser, err := base.Users.Create(ctx, &models.User{TelegramID: 42, FirstName: "Ann"})
	require.NoError(t, err)
	existingFamily, err := base.Families.Create(ctx, &models.Family{ChatID: -5, Name: "Home"})
	require.NoError(t, err)

	racing := &racingStore{
		Store:    store,
		users:    &racingUsers{UserRepository: base.Users, misses: 1},
		families: &racingFamilies{FamilyRepository: base.Families, misses: 1},
	}
	svc := New(racing, logger.Discard())

	user, err := svc.EnsureUser(ctx, 42, "ann", "Ann", "")
	require.NoError(t, err)
	assert.Equal(t, existingUser.ID, user.ID)
	assert.Equal(t, "ann", user.TelegramUsername)

	family, err := svc.EnsureFamily(ctx, -5, "Home")
	require.NoError(t, err)
	assert.Equal(t, existingFamily.ID, family.ID)

	require.NoError(t, svc.EnsureFamilyMember(ctx, family.ID, user.ID))
	require.NoError(t, svc.EnsureFamilyMember(ctx, family.ID, user.ID))
	members, err := base.Families.GetMembers(ctx, family.ID)
	require.NoError(t, err)
	assert.Len(t, members, 1)
}
