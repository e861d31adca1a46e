package database

import (
	"fmt"

	"github.com/forkcast/backend/internal/models"
	"gorm.io/gorm"
)

// Migrate creates or updates the schema for every model. AutoMigrate is
// additive only, so it is safe to run on every startup.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&models.User{},
		&models.Recipe{},
		&models.Ingredient{},
		&models.RecipeIngredient{},
		&models.RecipeStep{},
		&models.Tag{},
		&models.RecipeTag{},
		&models.Rating{},
		&models.MealPlan{},
		&models.DietaryRule{},
		&models.CalendarEvent{},
		&models.SwipeSession{},
		&models.SwipeCard{},
		&models.SwipeMatch{},
		&models.ShoppingList{},
		&models.ShoppingItem{},
		&models.PantryStaple{},
		&models.TasteProfile{},
		&models.TastePreference{},
		&models.CookingHistory{},
		&models.KrogerToken{},
		&models.ImportLog{},
		&models.GuestMenu{},
		&models.GuestMenuItem{},
		&models.GuestVote{},
		&models.MenuView{},
		&models.MenuPhoto{},
	); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}
