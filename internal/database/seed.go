package database

import (
	"fmt"

	"github.com/forkcast/backend/internal/models"
	"gorm.io/gorm"
)

// Seed inserts the default household users, sample dietary rules and common
// pantry staples. Each group is only seeded when its table is empty, so
// user edits and deletions survive restarts.
func Seed(db *gorm.DB) error {
	var userCount int64
	if err := db.Model(&models.User{}).Count(&userCount).Error; err != nil {
		return fmt.Errorf("failed to count users: %w", err)
	}
	if userCount == 0 {
		// Inserted one at a time so created_at orders them: the first two are
		// the household couple picked by the swipe and taste services.
		users := []models.User{
			{Name: "Trevor", AvatarEmoji: "👨‍🍳"},
			{Name: "Emily", AvatarEmoji: "👩‍🍳"},
			{Name: "Carolina", AvatarEmoji: "🌸"},
		}
		for i := range users {
			if err := db.Create(&users[i]).Error; err != nil {
				return fmt.Errorf("failed to seed users: %w", err)
			}
		}
	}

	var ruleCount int64
	if err := db.Model(&models.DietaryRule{}).Count(&ruleCount).Error; err != nil {
		return fmt.Errorf("failed to count dietary rules: %w", err)
	}
	if ruleCount == 0 {
		rules := []models.DietaryRule{
			{
				Name:     "Chicken max 2x per week",
				RuleType: models.RuleTypeProteinMaxPerWeek,
				Config:   models.JSONMap{"protein": "chicken", "max": 2, "period_days": 7},
			},
			{
				Name:     "Salmon at least 1x every 2 weeks",
				RuleType: models.RuleTypeProteinMinPerPeriod,
				Config:   models.JSONMap{"protein": "salmon", "min": 1, "period_days": 14},
			},
			{
				Name:     "Red meat max 2x per week",
				RuleType: models.RuleTypeProteinMaxPerWeek,
				Config:   models.JSONMap{"protein": "beef", "max": 2, "period_days": 7},
			},
			{
				Name:     "No repeat recipes within 14 days",
				RuleType: models.RuleTypeNoRepeatWithinDays,
				Config:   models.JSONMap{"min_days_between_repeat": 14},
			},
			{
				Name:     "At least 2 vegetarian dinners per week",
				RuleType: models.RuleTypeMinTagPerWeek,
				Config:   models.JSONMap{"tag": "vegetarian", "min": 2, "period_days": 7},
			},
		}
		if err := db.Create(&rules).Error; err != nil {
			return fmt.Errorf("failed to seed dietary rules: %w", err)
		}
	}

	var stapleCount int64
	if err := db.Model(&models.PantryStaple{}).Count(&stapleCount).Error; err != nil {
		return fmt.Errorf("failed to count pantry staples: %w", err)
	}
	if stapleCount == 0 {
		defaults := []struct{ name, category string }{
			{"salt", "spice"}, {"black pepper", "spice"}, {"olive oil", "pantry"},
			{"vegetable oil", "pantry"}, {"butter", "dairy"}, {"garlic", "produce"},
			{"onion", "produce"}, {"sugar", "pantry"}, {"flour", "pantry"},
			{"rice", "pantry"}, {"pasta", "pantry"}, {"soy sauce", "pantry"},
			{"vinegar", "pantry"}, {"eggs", "dairy"}, {"milk", "dairy"},
		}
		staples := make([]models.PantryStaple, 0, len(defaults))
		for _, s := range defaults {
			staples = append(staples, models.PantryStaple{Name: s.name, Category: s.category})
		}
		if err := db.Create(&staples).Error; err != nil {
			return fmt.Errorf("failed to seed pantry staples: %w", err)
		}
	}

	return nil
}
