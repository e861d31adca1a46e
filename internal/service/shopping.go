package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/forkcast/backend/internal/models"
)

// categoryToAisle maps ingredient categories to display aisles.
var categoryToAisle = map[string]string{
	"produce": "🥬 Produce",
	"dairy":   "🥛 Dairy",
	"meat":    "🥩 Meat & Seafood",
	"pantry":  "🥫 Pantry",
	"spice":   "🧂 Spices & Seasonings",
	"frozen":  "🧊 Frozen",
	"bakery":  "🍞 Bakery",
	"other":   "📦 Other",
}

const aisleOther = "📦 Other"

// ShoppingService builds aggregated shopping lists from the meal plan.
type ShoppingService struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewShoppingService creates a new shopping list service.
func NewShoppingService(db *gorm.DB, logger *zap.Logger) *ShoppingService {
	return &ShoppingService{db: db, logger: logger}
}

type aggregatedItem struct {
	name     string
	unit     string
	quantity float64
	aisle    string
}

// Generate builds a shopping list from every non-skipped meal planned in the
// week starting at weekOf. Quantities are summed per ingredient and unit;
// ingredients with mismatched units stay as separate line items rather than
// being added together. Pantry staples are excluded by name.
func (s *ShoppingService) Generate(ctx context.Context, weekOf time.Time, name string) (*models.ShoppingList, error) {
	weekEnd := weekOf.AddDate(0, 0, 6)

	var plans []models.MealPlan
	err := s.db.WithContext(ctx).
		Where("date >= ? AND date <= ?", weekOf, weekEnd).
		Where("status <> ?", models.PlanStatusSkipped).
		Find(&plans).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load meal plans: %w", err)
	}

	listName := name
	if listName == "" {
		listName = fmt.Sprintf("Week of %s", weekOf.Format("2006-01-02"))
	}

	planIDs := make(models.JSONStringArray, 0, len(plans))
	for _, p := range plans {
		planIDs = append(planIDs, p.ID.String())
	}

	list := &models.ShoppingList{
		Name:        listName,
		WeekOf:      &weekOf,
		MealPlanIDs: planIDs,
	}

	if len(plans) == 0 {
		if err := s.db.WithContext(ctx).Create(list).Error; err != nil {
			return nil, fmt.Errorf("failed to create shopping list: %w", err)
		}
		s.logger.Info("generated empty shopping list", zap.String("week_of", weekOf.Format("2006-01-02")))
		return list, nil
	}

	// Aggregate ingredients keyed by normalized name and unit.
	aggregated := map[string]*aggregatedItem{}
	for _, plan := range plans {
		var ings []models.RecipeIngredient
		if err := s.db.WithContext(ctx).Where("recipe_id = ?", plan.RecipeID).Find(&ings).Error; err != nil {
			return nil, fmt.Errorf("failed to load recipe ingredients: %w", err)
		}

		for _, ing := range ings {
			ingName := ing.RawText
			aisle := aisleOther

			if ing.IngredientID != nil {
				var normalized models.Ingredient
				err := s.db.WithContext(ctx).First(&normalized, "id = ?", *ing.IngredientID).Error
				if err == nil {
					ingName = normalized.Name
					if a, ok := categoryToAisle[normalized.Category]; ok {
						aisle = a
					}
				} else if err != gorm.ErrRecordNotFound {
					return nil, fmt.Errorf("failed to load ingredient: %w", err)
				}
			}

			unit := strings.TrimSpace(ing.Unit)
			key := normalizeName(ingName) + "|" + strings.ToLower(unit)
			item, ok := aggregated[key]
			if !ok {
				item = &aggregatedItem{name: ingName, unit: unit, aisle: aisle}
				aggregated[key] = item
			}
			if ing.Quantity != nil {
				item.quantity += *ing.Quantity
			}
		}
	}

	var staples []models.PantryStaple
	if err := s.db.WithContext(ctx).Find(&staples).Error; err != nil {
		return nil, fmt.Errorf("failed to load pantry staples: %w", err)
	}
	stapleNames := make(map[string]bool, len(staples))
	for _, p := range staples {
		stapleNames[normalizeName(p.Name)] = true
	}

	items := make([]*aggregatedItem, 0, len(aggregated))
	excluded := 0
	for _, item := range aggregated {
		if stapleNames[normalizeName(item.name)] {
			excluded++
			continue
		}
		items = append(items, item)
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].aisle != items[j].aisle {
			return items[i].aisle < items[j].aisle
		}
		return normalizeName(items[i].name) < normalizeName(items[j].name)
	})

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(list).Error; err != nil {
			return fmt.Errorf("failed to create shopping list: %w", err)
		}
		for _, item := range items {
			var qty *float64
			if item.quantity > 0 {
				q := item.quantity
				qty = &q
			}
			shoppingItem := &models.ShoppingItem{
				ListID:   list.ID,
				Name:     item.name,
				Quantity: qty,
				Unit:     item.unit,
				Aisle:    item.aisle,
			}
			if err := tx.Create(shoppingItem).Error; err != nil {
				return fmt.Errorf("failed to create shopping item: %w", err)
			}
			list.Items = append(list.Items, *shoppingItem)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("generated shopping list",
		zap.String("name", listName),
		zap.Int("meals", len(plans)),
		zap.Int("items", len(items)),
		zap.Int("staples_excluded", excluded))

	return list, nil
}

// normalizeName lowercases and trims an ingredient name so "Onion " and
// "onion" aggregate together.
func normalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// Shopping service errors.
var (
	ErrListNotFound = errors.New("shopping list not found")
	ErrItemNotFound = errors.New("shopping item not found")
)

// ListLists returns all shopping lists, newest first, items included.
func (s *ShoppingService) ListLists(ctx context.Context) ([]models.ShoppingList, error) {
	var lists []models.ShoppingList
	err := s.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("aisle, name") }).
		Order("created_at DESC").
		Find(&lists).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list shopping lists: %w", err)
	}
	return lists, nil
}

// GetList loads one list with its items grouped by aisle order.
func (s *ShoppingService) GetList(ctx context.Context, listID uuid.UUID) (*models.ShoppingList, error) {
	var list models.ShoppingList
	err := s.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("aisle, name") }).
		First(&list, "id = ?", listID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrListNotFound
		}
		return nil, fmt.Errorf("failed to load shopping list: %w", err)
	}
	return &list, nil
}

// CheckItem toggles an item's checked state, recording who and when.
func (s *ShoppingService) CheckItem(ctx context.Context, itemID uuid.UUID, checked bool, userID *uuid.UUID) (*models.ShoppingItem, error) {
	var item models.ShoppingItem
	err := s.db.WithContext(ctx).First(&item, "id = ?", itemID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrItemNotFound
		}
		return nil, fmt.Errorf("failed to load shopping item: %w", err)
	}

	changes := map[string]any{"checked": checked}
	if checked {
		now := time.Now().UTC()
		changes["checked_by"] = userID
		changes["checked_at"] = &now
	} else {
		changes["checked_by"] = nil
		changes["checked_at"] = nil
	}
	if err := s.db.WithContext(ctx).Model(&item).Updates(changes).Error; err != nil {
		return nil, fmt.Errorf("failed to update shopping item: %w", err)
	}
	return &item, nil
}

// AddItem appends a manual line to an existing list.
func (s *ShoppingService) AddItem(ctx context.Context, listID uuid.UUID, name string, quantity *float64, unit string) (*models.ShoppingItem, error) {
	if _, err := s.GetList(ctx, listID); err != nil {
		return nil, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("item name is required")
	}

	// Unknown ingredients land in the catch-all aisle; a missing row is
	// expected, anything else is a real failure.
	aisle := aisleOther
	var ingredient models.Ingredient
	err := s.db.WithContext(ctx).First(&ingredient, "name = ?", normalizeName(name)).Error
	switch {
	case err == nil:
		if mapped, ok := categoryToAisle[ingredient.Category]; ok {
			aisle = mapped
		}
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return nil, fmt.Errorf("failed to look up ingredient: %w", err)
	}

	item := &models.ShoppingItem{
		ListID:   listID,
		Name:     name,
		Quantity: quantity,
		Unit:     unit,
		Aisle:    aisle,
	}
	if err := s.db.WithContext(ctx).Create(item).Error; err != nil {
		return nil, fmt.Errorf("failed to add shopping item: %w", err)
	}
	return item, nil
}

// DeleteList removes a list and its items.
func (s *ShoppingService) DeleteList(ctx context.Context, listID uuid.UUID) error {
	list, err := s.GetList(ctx, listID)
	if err != nil {
		return err
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("list_id = ?", listID).Delete(&models.ShoppingItem{}).Error; err != nil {
			return err
		}
		return tx.Delete(list).Error
	})
	if err != nil {
		return fmt.Errorf("failed to delete shopping list: %w", err)
	}
	return nil
}

// ListStaples returns the pantry staples.
func (s *ShoppingService) ListStaples(ctx context.Context) ([]models.PantryStaple, error) {
	var staples []models.PantryStaple
	err := s.db.WithContext(ctx).Order("name").Find(&staples).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list staples: %w", err)
	}
	return staples, nil
}

// AddStaple registers an always-on-hand ingredient.
func (s *ShoppingService) AddStaple(ctx context.Context, name, category string) (*models.PantryStaple, error) {
	name = normalizeName(name)
	if name == "" {
		return nil, fmt.Errorf("staple name is required")
	}
	if category == "" {
		category = "pantry"
	}
	staple := &models.PantryStaple{Name: name, Category: category}
	err := s.db.WithContext(ctx).Where("name = ?", name).FirstOrCreate(staple).Error
	if err != nil {
		return nil, fmt.Errorf("failed to add staple: %w", err)
	}
	return staple, nil
}

// RemoveStaple deletes a pantry staple by ID.
func (s *ShoppingService) RemoveStaple(ctx context.Context, stapleID uuid.UUID) error {
	result := s.db.WithContext(ctx).Delete(&models.PantryStaple{}, "id = ?", stapleID)
	if result.Error != nil {
		return fmt.Errorf("failed to delete staple: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrItemNotFound
	}
	return nil
}
