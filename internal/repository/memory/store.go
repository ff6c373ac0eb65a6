// Package memory is an in-process repository.Store. Locks taken through the
// ForUpdate getters are per-key and held until the transaction ends; every
// write inside a transaction is journaled so a failed transaction leaves no
// trace.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/Kerhoff/giftpool/internal/locker"
	"github.com/Kerhoff/giftpool/internal/models"
	"github.com/Kerhoff/giftpool/internal/repository"
)

// Store keeps every table in maps guarded by one RWMutex. The mutex only
// protects map access; transactional serialization comes from locks.
type Store struct {
	mu    sync.RWMutex
	locks *locker.Locker
	seq   int64

	users         map[int64]*models.User
	families      map[int64]*models.Family
	members       map[int64]map[int64]*models.FamilyMember
	lists         map[int64]*models.WishList
	items         map[int64]*models.WishItem
	reservations  map[int64]*models.Reservation
	groups        map[int64]*models.PurchaseGroup
	contributions map[int64]*models.Contribution
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		locks:         locker.New(),
		users:         make(map[int64]*models.User),
		families:      make(map[int64]*models.Family),
		members:       make(map[int64]map[int64]*models.FamilyMember),
		lists:         make(map[int64]*models.WishList),
		items:         make(map[int64]*models.WishItem),
		reservations:  make(map[int64]*models.Reservation),
		groups:        make(map[int64]*models.PurchaseGroup),
		contributions: make(map[int64]*models.Contribution),
	}
}

func (s *Store) Repos() repository.Repositories {
	return s.repos(nil)
}

func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, repos repository.Repositories) error) (err error) {
	t := &tx{store: s, held: make(map[string]struct{})}

	defer func() {
		if p := recover(); p != nil {
			t.rollback()
			t.release()
			panic(p)
		}
		if err != nil {
			t.rollback()
		}
		t.release()
	}()

	err = fn(ctx, s.repos(t))
	return err
}

func (s *Store) Close() error { return nil }

func (s *Store) repos(t *tx) repository.Repositories {
	return repository.Repositories{
		Users:         &userRepository{store: s, tx: t},
		Families:      &familyRepository{store: s, tx: t},
		WishLists:     &wishListRepository{store: s, tx: t},
		Reservations:  &reservationRepository{store: s, tx: t},
		Groups:        &purchaseGroupRepository{store: s, tx: t},
		Contributions: &contributionRepository{store: s, tx: t},
	}
}

// nextID must be called with s.mu held for writing.
func (s *Store) nextID() int64 {
	s.seq++
	return s.seq
}

// tx is the journal of one WithinTx call. A nil *tx means autocommit.
type tx struct {
	store   *Store
	undo    []func()
	unlocks []func()
	held    map[string]struct{}
}

// lock acquires key once per transaction. Outside a transaction it is a
// no-op, matching FOR UPDATE without BEGIN.
func (t *tx) lock(ctx context.Context, key string) error {
	if t == nil {
		return nil
	}
	if _, ok := t.held[key]; ok {
		return nil
	}
	unlock, err := t.store.locks.Lock(ctx, key)
	if err != nil {
		return err
	}
	t.held[key] = struct{}{}
	t.unlocks = append(t.unlocks, unlock)
	return nil
}

// journal records how to revert a write. Callers hold store.mu.
func (t *tx) journal(fn func()) {
	if t == nil {
		return
	}
	t.undo = append(t.undo, fn)
}

func (t *tx) rollback() {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	for i := len(t.undo) - 1; i >= 0; i-- {
		t.undo[i]()
	}
	t.undo = nil
}

func (t *tx) release() {
	for i := len(t.unlocks) - 1; i >= 0; i-- {
		t.unlocks[i]()
	}
	t.unlocks = nil
}

// put stores v under id and journals the previous value.
func put[T any](t *tx, m map[int64]*T, id int64, v *T) {
	prev, existed := m[id]
	m[id] = v
	t.journal(func() {
		if existed {
			m[id] = prev
		} else {
			delete(m, id)
		}
	})
}

func sortedIDs[T any](m map[int64]*T, keep func(*T) bool) []int64 {
	ids := make([]int64, 0, len(m))
	for id, v := range m {
		if keep(v) {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func idSet(ids []int64) map[int64]struct{} {
	set := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}
