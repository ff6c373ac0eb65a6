package ledger

import (
	"sort"

	"github.com/Kerhoff/giftpool/internal/models"
)

// Totals is the aggregate of a group's counting contributions.
type Totals struct {
	AmountCents  int64
	Quantity     int
	Contributors int
}

// Sum aggregates contributions whose status is pledged or fulfilled.
func Sum(contributions []*models.Contribution) Totals {
	var t Totals
	for _, c := range contributions {
		if c == nil || !c.IsActive() {
			continue
		}
		t.AmountCents += c.AmountCents
		t.Quantity += c.Quantity
		t.Contributors++
	}
	return t
}

// GoalMet reports whether totals reach the group's monetary goal or, for
// quantity-based groups, its unit goal.
func GoalMet(g *models.PurchaseGroup, t Totals) bool {
	if g.HasAmountGoal() && t.AmountCents >= *g.TargetAmountCents {
		return true
	}
	if g.HasQuantityGoal() && t.Quantity >= *g.TargetQuantity {
		return true
	}
	return false
}

// ActiveContributionOf returns userID's own active contribution in the group.
// External contributions recorded by userID are not considered theirs.
func ActiveContributionOf(contributions []*models.Contribution, userID int64) *models.Contribution {
	for _, c := range contributions {
		if c.IsActive() && !c.IsExternal && c.ContributorID != nil && *c.ContributorID == userID {
			return c
		}
	}
	return nil
}

// Hydrate combines a group with its live contributions and progress, projected
// for viewer. The item owner sees amounts and statuses but not who pledged.
func Hydrate(g *models.PurchaseGroup, contributions []*models.Contribution, viewer Viewer) *models.GroupView {
	t := Sum(contributions)
	view := &models.GroupView{
		Group:            redactGroup(g, viewer),
		Contributions:    []models.Contribution{},
		TotalAmountCents: t.AmountCents,
		TotalQuantity:    t.Quantity,
		ContributorCount: t.Contributors,
		GoalMet:          GoalMet(g, t),
	}

	live := make([]*models.Contribution, 0, len(contributions))
	for _, c := range contributions {
		if c != nil && c.IsActive() {
			live = append(live, c)
		}
	}
	sort.SliceStable(live, func(i, j int) bool {
		if live[i].CreatedAt.Equal(live[j].CreatedAt) {
			return live[i].ID < live[j].ID
		}
		return live[i].CreatedAt.Before(live[j].CreatedAt)
	})
	for _, c := range live {
		view.Contributions = append(view.Contributions, redactContribution(*c, viewer))
	}

	if g.HasAmountGoal() {
		remaining := *g.TargetAmountCents - t.AmountCents
		if remaining < 0 {
			remaining = 0
		}
		view.RemainingAmountCents = &remaining
	}
	if g.IsQuantityBased && g.TargetQuantity != nil {
		remaining := *g.TargetQuantity - t.Quantity
		if remaining < 0 {
			remaining = 0
		}
		view.RemainingQuantity = &remaining
	}

	if viewer.ID != 0 {
		if mine := ActiveContributionOf(contributions, viewer.ID); mine != nil {
			c := *mine
			view.MyContribution = &c
		}
	}
	return view
}

func redactGroup(g *models.PurchaseGroup, viewer Viewer) *models.PurchaseGroup {
	if !viewer.IsOwner || g.CreatedByID == viewer.ID {
		return g
	}
	cp := *g
	cp.CreatedByID = 0
	return &cp
}

// redactContribution hides identity and note from the owner unless the owner
// contributed or recorded the row themselves.
func redactContribution(c models.Contribution, viewer Viewer) models.Contribution {
	if !viewer.IsOwner || c.IsManagedBy(viewer.ID) {
		return c
	}
	c.ContributorID = nil
	c.CreatedByID = 0
	c.ExternalName = nil
	c.Note = nil
	return c
}

// Summarize builds the compact list-wide projection of a group.
func Summarize(g *models.PurchaseGroup, contributions []*models.Contribution) *models.GroupSummary {
	t := Sum(contributions)
	return &models.GroupSummary{
		ID:                g.ID,
		Status:            g.Status,
		TargetAmountCents: g.TargetAmountCents,
		Currency:          g.Currency,
		IsQuantityBased:   g.IsQuantityBased,
		TargetQuantity:    g.TargetQuantity,
		TotalAmountCents:  t.AmountCents,
		TotalQuantity:     t.Quantity,
		ContributorCount:  t.Contributors,
	}
}
