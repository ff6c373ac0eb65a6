package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/Kerhoff/giftpool/internal/apperr"
	"github.com/Kerhoff/giftpool/internal/models"
)

func clone[T any](v *T) *T {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

type userRepository struct {
	store *Store
	tx    *tx
}

func (r *userRepository) Create(ctx context.Context, user *models.User) (*models.User, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	if user.TelegramID != 0 {
		for _, u := range r.store.users {
			if u.TelegramID == user.TelegramID {
				return nil, apperr.Conflict("User is already registered")
			}
		}
	}

	now := time.Now()
	user.ID = r.store.nextID()
	user.CreatedAt = now
	user.UpdatedAt = now
	user.IsActive = true
	put(r.tx, r.store.users, user.ID, clone(user))
	return user, nil
}

func (r *userRepository) GetByTelegramID(ctx context.Context, telegramID int64) (*models.User, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	for _, u := range r.store.users {
		if telegramID != 0 && u.TelegramID == telegramID {
			return clone(u), nil
		}
	}
	return nil, nil
}

func (r *userRepository) GetByID(ctx context.Context, id int64) (*models.User, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	return clone(r.store.users[id]), nil
}

func (r *userRepository) Update(ctx context.Context, user *models.User) (*models.User, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if _, ok := r.store.users[user.ID]; !ok {
		return nil, fmt.Errorf("failed to update user: user with ID %d not found", user.ID)
	}
	user.UpdatedAt = time.Now()
	put(r.tx, r.store.users, user.ID, clone(user))
	return user, nil
}

type familyRepository struct {
	store *Store
	tx    *tx
}

func (r *familyRepository) Create(ctx context.Context, family *models.Family) (*models.Family, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	for _, f := range r.store.families {
		if f.ChatID == family.ChatID {
			return nil, apperr.Conflict("Chat is already registered")
		}
	}

	now := time.Now()
	family.ID = r.store.nextID()
	family.CreatedAt = now
	family.UpdatedAt = now
	put(r.tx, r.store.families, family.ID, clone(family))
	return family, nil
}

func (r *familyRepository) GetByChatID(ctx context.Context, chatID int64) (*models.Family, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	for _, f := range r.store.families {
		if f.ChatID == chatID {
			return clone(f), nil
		}
	}
	return nil, nil
}

func (r *familyRepository) GetByID(ctx context.Context, id int64) (*models.Family, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	return clone(r.store.families[id]), nil
}

func (r *familyRepository) AddMember(ctx context.Context, familyID, userID int64, role string) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	if _, ok := r.store.families[familyID]; !ok {
		return fmt.Errorf("failed to add family member: family %d not found", familyID)
	}
	byUser, ok := r.store.members[familyID]
	if !ok {
		byUser = make(map[int64]*models.FamilyMember)
		r.store.members[familyID] = byUser
	}
	if _, exists := byUser[userID]; exists {
		return nil
	}
	put(r.tx, byUser, userID, &models.FamilyMember{
		ID:       r.store.nextID(),
		FamilyID: familyID,
		UserID:   userID,
		Role:     role,
		JoinedAt: time.Now(),
	})
	return nil
}

func (r *familyRepository) GetMembers(ctx context.Context, familyID int64) ([]*models.User, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	members := make([]*models.FamilyMember, 0, len(r.store.members[familyID]))
	for _, m := range r.store.members[familyID] {
		members = append(members, m)
	}
	sort.Slice(members, func(i, j int) bool { return members[i].ID < members[j].ID })

	out := make([]*models.User, 0, len(members))
	for _, m := range members {
		if u, ok := r.store.users[m.UserID]; ok {
			out = append(out, clone(u))
		}
	}
	return out, nil
}

func (r *familyRepository) Update(ctx context.Context, family *models.Family) (*models.Family, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if _, ok := r.store.families[family.ID]; !ok {
		return nil, fmt.Errorf("failed to update family: family with ID %d not found", family.ID)
	}
	family.UpdatedAt = time.Now()
	put(r.tx, r.store.families, family.ID, clone(family))
	return family, nil
}
