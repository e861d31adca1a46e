package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forkcast/backend/internal/models"
)

func TestGenerateAggregatesQuantities(t *testing.T) {
	db := setupTestDB(t)
	svc := NewShoppingService(db, testLogger())
	ctx := context.Background()

	weekOf := date(2026, time.March, 2)
	r1 := createTestRecipe(t, db, "Soup")
	r2 := createTestRecipe(t, db, "Stew")
	addIngredientLine(t, db, r1.ID, "carrot", 2, "cup")
	addIngredientLine(t, db, r2.ID, "carrot", 2, "cup")
	planMeal(t, db, r1.ID, weekOf)
	planMeal(t, db, r2.ID, weekOf.AddDate(0, 0, 1))

	list, err := svc.Generate(ctx, weekOf, "")
	require.NoError(t, err)
	require.Len(t, list.Items, 1)
	assert.Equal(t, "carrot", list.Items[0].Name)
	require.NotNil(t, list.Items[0].Quantity)
	assert.Equal(t, 4.0, *list.Items[0].Quantity)
	assert.Equal(t, "cup", list.Items[0].Unit)
	assert.Equal(t, "Week of 2026-03-02", list.Name)
}

func TestGenerateKeepsMismatchedUnitsSeparate(t *testing.T) {
	db := setupTestDB(t)
	svc := NewShoppingService(db, testLogger())

	weekOf := date(2026, time.March, 2)
	r1 := createTestRecipe(t, db, "Cake")
	r2 := createTestRecipe(t, db, "Bread")
	addIngredientLine(t, db, r1.ID, "flour", 2, "cup")
	addIngredientLine(t, db, r2.ID, "flour", 500, "g")
	planMeal(t, db, r1.ID, weekOf)
	planMeal(t, db, r2.ID, weekOf)

	list, err := svc.Generate(context.Background(), weekOf, "")
	require.NoError(t, err)
	require.Len(t, list.Items, 2)
	units := []string{list.Items[0].Unit, list.Items[1].Unit}
	assert.ElementsMatch(t, []string{"cup", "g"}, units)
}

func TestGenerateExcludesPantryStaples(t *testing.T) {
	db := setupTestDB(t)
	svc := NewShoppingService(db, testLogger())
	ctx := context.Background()

	_, err := svc.AddStaple(ctx, "Olive Oil", "")
	require.NoError(t, err)

	weekOf := date(2026, time.March, 2)
	r := createTestRecipe(t, db, "Pasta")
	addIngredientLine(t, db, r.ID, "olive oil", 2, "tbsp")
	addIngredientLine(t, db, r.ID, "spaghetti", 1, "lb")
	planMeal(t, db, r.ID, weekOf)

	list, err := svc.Generate(ctx, weekOf, "")
	require.NoError(t, err)
	require.Len(t, list.Items, 1)
	assert.Equal(t, "spaghetti", list.Items[0].Name)
}

func TestGenerateSkipsSkippedMeals(t *testing.T) {
	db := setupTestDB(t)
	svc := NewShoppingService(db, testLogger())

	weekOf := date(2026, time.March, 2)
	r := createTestRecipe(t, db, "Curry")
	addIngredientLine(t, db, r.ID, "coconut milk", 1, "can")
	plan := planMeal(t, db, r.ID, weekOf)
	require.NoError(t, db.Model(plan).Update("status", models.PlanStatusSkipped).Error)

	list, err := svc.Generate(context.Background(), weekOf, "")
	require.NoError(t, err)
	assert.Empty(t, list.Items)
}

func TestGenerateEmptyWeek(t *testing.T) {
	db := setupTestDB(t)
	svc := NewShoppingService(db, testLogger())

	list, err := svc.Generate(context.Background(), date(2026, time.March, 2), "Empty week")
	require.NoError(t, err)
	assert.Equal(t, "Empty week", list.Name)
	assert.Empty(t, list.Items)
	assert.Empty(t, list.MealPlanIDs)
}

func TestCheckItemRecordsWhoAndWhen(t *testing.T) {
	db := setupTestDB(t)
	svc := NewShoppingService(db, testLogger())
	ctx := context.Background()

	user := createTestUser(t, db, "Sam")
	weekOf := date(2026, time.March, 2)
	r := createTestRecipe(t, db, "Salad")
	addIngredientLine(t, db, r.ID, "lettuce", 1, "head")
	planMeal(t, db, r.ID, weekOf)

	list, err := svc.Generate(ctx, weekOf, "")
	require.NoError(t, err)
	require.Len(t, list.Items, 1)
	itemID := list.Items[0].ID

	item, err := svc.CheckItem(ctx, itemID, true, &user.ID)
	require.NoError(t, err)

	var stored models.ShoppingItem
	require.NoError(t, db.First(&stored, "id = ?", item.ID).Error)
	assert.True(t, stored.Checked)
	require.NotNil(t, stored.CheckedBy)
	assert.Equal(t, user.ID, *stored.CheckedBy)
	assert.NotNil(t, stored.CheckedAt)

	// Unchecking clears the audit fields.
	_, err = svc.CheckItem(ctx, itemID, false, nil)
	require.NoError(t, err)
	require.NoError(t, db.First(&stored, "id = ?", itemID).Error)
	assert.False(t, stored.Checked)
	assert.Nil(t, stored.CheckedBy)
	assert.Nil(t, stored.CheckedAt)
}

func TestAddItemUsesKnownIngredientAisle(t *testing.T) {
	db := setupTestDB(t)
	svc := NewShoppingService(db, testLogger())
	ctx := context.Background()

	require.NoError(t, db.Create(&models.Ingredient{Name: "milk", Category: "dairy"}).Error)
	list, err := svc.Generate(ctx, date(2026, time.March, 2), "")
	require.NoError(t, err)

	qty := 1.0
	item, err := svc.AddItem(ctx, list.ID, "Milk", &qty, "gal")
	require.NoError(t, err)
	assert.Equal(t, categoryToAisle["dairy"], item.Aisle)

	unknown, err := svc.AddItem(ctx, list.ID, "dragonfruit", nil, "")
	require.NoError(t, err)
	assert.Equal(t, aisleOther, unknown.Aisle)
}

func TestAddItemSurfacesIngredientLookupFailure(t *testing.T) {
	db := setupTestDB(t)
	svc := NewShoppingService(db, testLogger())
	ctx := context.Background()

	list, err := svc.Generate(ctx, date(2026, time.March, 2), "")
	require.NoError(t, err)

	// Only a missing row may fall through to the Other aisle; a broken
	// lookup must not be mistaken for an unknown ingredient.
	require.NoError(t, db.Exec("DROP TABLE ingredients").Error)
	_, err = svc.AddItem(ctx, list.ID, "milk", nil, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to look up ingredient")
}

func TestAddStapleIsIdempotent(t *testing.T) {
	db := setupTestDB(t)
	svc := NewShoppingService(db, testLogger())
	ctx := context.Background()

	first, err := svc.AddStaple(ctx, "Salt", "spice")
	require.NoError(t, err)
	second, err := svc.AddStaple(ctx, "  salt ", "spice")
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	staples, err := svc.ListStaples(ctx)
	require.NoError(t, err)
	assert.Len(t, staples, 1)
}

func TestDeleteListRemovesItems(t *testing.T) {
	db := setupTestDB(t)
	svc := NewShoppingService(db, testLogger())
	ctx := context.Background()

	weekOf := date(2026, time.March, 2)
	r := createTestRecipe(t, db, "Tacos")
	addIngredientLine(t, db, r.ID, "tortillas", 12, "")
	planMeal(t, db, r.ID, weekOf)

	list, err := svc.Generate(ctx, weekOf, "")
	require.NoError(t, err)

	require.NoError(t, svc.DeleteList(ctx, list.ID))

	var items int64
	db.Model(&models.ShoppingItem{}).Where("list_id = ?", list.ID).Count(&items)
	assert.Zero(t, items)
	_, err = svc.GetList(ctx, list.ID)
	assert.ErrorIs(t, err, ErrListNotFound)
}
