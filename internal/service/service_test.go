package service

import (
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/forkcast/backend/internal/database"
	"github.com/forkcast/backend/internal/models"
)

// setupTestDB opens a fresh in-memory database per test. The unique DSN keeps
// parallel tests from sharing state.
func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	return db
}

func testLogger() *zap.Logger {
	return zap.NewNop()
}

func createTestUser(t *testing.T, db *gorm.DB, name string) *models.User {
	t.Helper()
	user := &models.User{Name: name}
	require.NoError(t, db.Create(user).Error)
	return user
}

// createTestRecipe inserts a recipe and attaches the given tag names using the
// same tag typing the import path uses.
func createTestRecipe(t *testing.T, db *gorm.DB, title string, tags ...string) *models.Recipe {
	t.Helper()
	recipe := &models.Recipe{Title: title, Servings: 4, Difficulty: models.DifficultyMedium}
	require.NoError(t, db.Create(recipe).Error)
	require.NoError(t, attachTags(db, recipe.ID, tags))
	return recipe
}

func addIngredientLine(t *testing.T, db *gorm.DB, recipeID uuid.UUID, name string, quantity float64, unit string) {
	t.Helper()
	canonical, err := getOrCreateIngredient(db, name, "other")
	require.NoError(t, err)
	line := &models.RecipeIngredient{
		RecipeID:     recipeID,
		IngredientID: &canonical.ID,
		RawText:      fmt.Sprintf("%g %s %s", quantity, unit, name),
		Quantity:     &quantity,
		Unit:         unit,
	}
	require.NoError(t, db.Create(line).Error)
}

func planMeal(t *testing.T, db *gorm.DB, recipeID uuid.UUID, date time.Time) *models.MealPlan {
	t.Helper()
	plan := &models.MealPlan{
		Date:     date,
		MealType: "dinner",
		RecipeID: recipeID,
		Status:   models.PlanStatusPlanned,
	}
	require.NoError(t, db.Create(plan).Error)
	return plan
}

func date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}
