package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/Kerhoff/giftpool/internal/apperr"
	"github.com/Kerhoff/giftpool/internal/models"
)

type contributionRepository struct {
	store *Store
	tx    *tx
}

func (r *contributionRepository) GetByID(ctx context.Context, id int64) (*models.Contribution, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	c, ok := r.store.contributions[id]
	if !ok || c.DeletedAt != nil {
		return nil, nil
	}
	return clone(c), nil
}

func (r *contributionRepository) ListByGroup(ctx context.Context, groupID int64) ([]*models.Contribution, error) {
	return r.ListByGroups(ctx, []int64{groupID})
}

func (r *contributionRepository) ListByGroups(ctx context.Context, groupIDs []int64) ([]*models.Contribution, error) {
	if len(groupIDs) == 0 {
		return nil, nil
	}
	want := idSet(groupIDs)

	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	var out []*models.Contribution
	for _, id := range sortedIDs(r.store.contributions, func(c *models.Contribution) bool {
		_, ok := want[c.GroupID]
		return ok && c.DeletedAt == nil
	}) {
		out = append(out, clone(r.store.contributions[id]))
	}
	return out, nil
}

// contributorTaken mirrors the one-active-contribution-per-contributor index.
// Callers hold store.mu.
func (r *contributionRepository) contributorTaken(c *models.Contribution) bool {
	if c.ContributorID == nil || !c.IsActive() {
		return false
	}
	for _, other := range r.store.contributions {
		if other.ID != c.ID && other.GroupID == c.GroupID && other.IsActive() &&
			other.ContributorID != nil && *other.ContributorID == *c.ContributorID {
			return true
		}
	}
	return false
}

func (r *contributionRepository) Create(ctx context.Context, c *models.Contribution) (*models.Contribution, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	if r.contributorTaken(c) {
		return nil, apperr.Conflict("You already have an active contribution to this shared purchase")
	}

	c.ID = r.store.nextID()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}
	c.UpdatedAt = c.CreatedAt
	put(r.tx, r.store.contributions, c.ID, clone(c))
	return c, nil
}

func (r *contributionRepository) Update(ctx context.Context, c *models.Contribution) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	if _, ok := r.store.contributions[c.ID]; !ok {
		return fmt.Errorf("contribution with ID %d not found", c.ID)
	}
	if r.contributorTaken(c) {
		return apperr.Conflict("You already have an active contribution to this shared purchase")
	}
	put(r.tx, r.store.contributions, c.ID, clone(c))
	return nil
}

func (r *contributionRepository) CancelAllByGroup(ctx context.Context, groupID int64, at time.Time) (int64, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	var n int64
	for id, c := range r.store.contributions {
		if c.GroupID != groupID || c.DeletedAt != nil {
			continue
		}
		updated := clone(c)
		updated.Status = models.ContributionCancelled
		updated.DeletedAt = &at
		updated.UpdatedAt = at
		put(r.tx, r.store.contributions, id, updated)
		n++
	}
	return n, nil
}
