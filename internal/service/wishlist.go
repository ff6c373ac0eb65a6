package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/Kerhoff/giftpool/internal/apperr"
	"github.com/Kerhoff/giftpool/internal/models"
)

// EnsureWishList returns the user's wish list in the family, creating it on
// first use.
func (s *Service) EnsureWishList(ctx context.Context, user *models.User, familyID int64) (*models.WishList, error) {
	lists := s.repos().WishLists
	list, err := lists.GetListByUser(ctx, user.ID, familyID)
	if err != nil {
		return nil, fmt.Errorf("failed to get wish list (user_id=%d): %w", user.ID, err)
	}
	if list != nil {
		return list, nil
	}

	list, err = lists.CreateList(ctx, &models.WishList{
		FamilyID: familyID,
		UserID:   user.ID,
		Name:     user.DisplayName() + "'s Wishes",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create wish list (user_id=%d): %w", user.ID, err)
	}
	s.logger.Infof("Created wish list %d for user %d", list.ID, user.ID)
	return list, nil
}

// AddWish appends an item to the user's wish list in the family.
func (s *Service) AddWish(ctx context.Context, user *models.User, familyID int64, name string, qty int) (*models.WishItem, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperr.Validation("name is required")
	}
	if qty < 1 {
		qty = 1
	}
	list, err := s.EnsureWishList(ctx, user, familyID)
	if err != nil {
		return nil, err
	}
	item, err := s.repos().WishLists.AddItem(ctx, &models.WishItem{
		WishListID: list.ID,
		Name:       name,
		Quantity:   qty,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to add wish item: %w", err)
	}
	return item, nil
}

// FamilyWishLists returns every wish list of the family with its owner set.
func (s *Service) FamilyWishLists(ctx context.Context, familyID int64) ([]*models.WishList, error) {
	repos := s.repos()
	lists, err := repos.WishLists.GetListsByFamily(ctx, familyID)
	if err != nil {
		return nil, fmt.Errorf("failed to get wish lists for family %d: %w", familyID, err)
	}
	for _, list := range lists {
		owner, err := repos.Users.GetByID(ctx, list.UserID)
		if err != nil {
			return nil, fmt.Errorf("failed to get owner of wish list %d: %w", list.ID, err)
		}
		list.User = owner
	}
	return lists, nil
}
