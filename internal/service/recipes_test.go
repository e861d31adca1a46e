package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forkcast/backend/internal/models"
)

func TestCreateRecipeWithLinesAndTags(t *testing.T) {
	db := setupTestDB(t)
	svc := NewRecipeService(db, nil, testLogger())
	ctx := context.Background()

	prep, cook := 10, 25
	qty := 1.5
	recipe, err := svc.Create(ctx, RecipeInput{
		Title:       "  Chicken Tinga  ",
		PrepTimeMin: &prep,
		CookTimeMin: &cook,
		Cuisine:     "mexican",
		Ingredients: []ExtractedIngredient{
			{RawText: "1.5 lb chicken thighs", Name: "chicken thighs", Quantity: &qty, Unit: "lb"},
			{RawText: "2 chipotles in adobo", Name: "chipotles in adobo"},
		},
		Steps: []ExtractedStep{
			{Instruction: "Poach the chicken."},
			{Instruction: "Simmer in the sauce."},
		},
		Tags: []string{"chicken", "Mexican"},
	})
	require.NoError(t, err)

	assert.Equal(t, "Chicken Tinga", recipe.Title)
	assert.Equal(t, 4, recipe.Servings)
	assert.Equal(t, models.DifficultyMedium, recipe.Difficulty)
	require.NotNil(t, recipe.TotalTimeMin)
	assert.Equal(t, 35, *recipe.TotalTimeMin)

	require.Len(t, recipe.Ingredients, 2)
	assert.NotNil(t, recipe.Ingredients[0].IngredientID)
	require.Len(t, recipe.Steps, 2)
	assert.Equal(t, 1, recipe.Steps[0].StepNumber)
	assert.Equal(t, 2, recipe.Steps[1].StepNumber)

	names, err := svc.tagNames(ctx, recipe.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"chicken", "mexican"}, names)
}

func TestCreateRecipeRequiresTitle(t *testing.T) {
	db := setupTestDB(t)
	svc := NewRecipeService(db, nil, testLogger())

	_, err := svc.Create(context.Background(), RecipeInput{Title: "   "})
	assert.Error(t, err)
}

func TestListFiltersAndCounts(t *testing.T) {
	db := setupTestDB(t)
	svc := NewRecipeService(db, nil, testLogger())
	ctx := context.Background()

	curry := createTestRecipe(t, db, "Thai Green Curry", "chicken")
	curry.Cuisine = "thai"
	require.NoError(t, db.Save(curry).Error)
	createTestRecipe(t, db, "Beef Chili", "beef")
	archived := createTestRecipe(t, db, "Old Casserole")
	require.NoError(t, svc.Archive(ctx, archived.ID, true))

	// Archived recipes are hidden by default.
	all, total, err := svc.List(ctx, RecipeFilter{})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	assert.Len(t, all, 2)

	withArchived, total, err := svc.List(ctx, RecipeFilter{IncludeArchived: true})
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	assert.Len(t, withArchived, 3)

	bySearch, _, err := svc.List(ctx, RecipeFilter{Search: "curry"})
	require.NoError(t, err)
	require.Len(t, bySearch, 1)
	assert.Equal(t, "Thai Green Curry", bySearch[0].Title)

	byTag, _, err := svc.List(ctx, RecipeFilter{Tag: "beef"})
	require.NoError(t, err)
	require.Len(t, byTag, 1)
	assert.Equal(t, "Beef Chili", byTag[0].Title)

	byCuisine, _, err := svc.List(ctx, RecipeFilter{Cuisine: "Thai"})
	require.NoError(t, err)
	require.Len(t, byCuisine, 1)
}

func TestListIncludesRatingAggregates(t *testing.T) {
	db := setupTestDB(t)
	svc := NewRecipeService(db, nil, testLogger())
	ctx := context.Background()

	user := createTestUser(t, db, "Alex")
	recipe := createTestRecipe(t, db, "Ragu", "beef")
	for _, stars := range []int{4, 5} {
		_, err := svc.Rate(ctx, recipe.ID, user.ID, stars, true, "", nil)
		require.NoError(t, err)
	}
	require.NoError(t, db.Create(&models.CookingHistory{RecipeID: &recipe.ID, CookedAt: date(2026, time.March, 1)}).Error)

	list, _, err := svc.List(ctx, RecipeFilter{})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.InDelta(t, 4.5, list[0].AvgStars, 0.001)
	assert.Equal(t, 1, list[0].TimesMade)
	assert.Contains(t, list[0].TagNames, "beef")
}

func TestUpdateReplacesLinesWholesale(t *testing.T) {
	db := setupTestDB(t)
	svc := NewRecipeService(db, nil, testLogger())
	ctx := context.Background()

	recipe, err := svc.Create(ctx, RecipeInput{
		Title:       "Pancakes",
		Ingredients: []ExtractedIngredient{{RawText: "1 cup flour", Name: "flour"}},
		Steps:       []ExtractedStep{{Instruction: "Mix."}},
	})
	require.NoError(t, err)

	updated, err := svc.Update(ctx, recipe.ID, RecipeInput{
		Ingredients: []ExtractedIngredient{
			{RawText: "1 cup flour", Name: "flour"},
			{RawText: "2 eggs", Name: "eggs"},
		},
		Steps: []ExtractedStep{
			{Instruction: "Whisk the dry ingredients."},
			{Instruction: "Fold in the eggs."},
		},
	}, true, false)
	require.NoError(t, err)
	assert.Len(t, updated.Ingredients, 2)
	assert.Len(t, updated.Steps, 2)
}

func TestArchiveUnknownRecipe(t *testing.T) {
	db := setupTestDB(t)
	svc := NewRecipeService(db, nil, testLogger())

	err := svc.Archive(context.Background(), uuid.New(), true)
	assert.ErrorIs(t, err, ErrRecipeNotFound)
}

func TestRateValidation(t *testing.T) {
	db := setupTestDB(t)
	svc := NewRecipeService(db, nil, testLogger())
	ctx := context.Background()

	user := createTestUser(t, db, "Alex")
	recipe := createTestRecipe(t, db, "Ragu")

	_, err := svc.Rate(ctx, recipe.ID, user.ID, 0, true, "", nil)
	assert.ErrorIs(t, err, ErrInvalidStars)
	_, err = svc.Rate(ctx, recipe.ID, user.ID, 6, true, "", nil)
	assert.ErrorIs(t, err, ErrInvalidStars)
	_, err = svc.Rate(ctx, uuid.New(), user.ID, 4, true, "", nil)
	assert.ErrorIs(t, err, ErrRecipeNotFound)
	_, err = svc.Rate(ctx, recipe.ID, uuid.New(), 4, true, "", nil)
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestRateRefreshesTasteProfile(t *testing.T) {
	db := setupTestDB(t)
	taste := NewTasteService(db, nil, testLogger())
	svc := NewRecipeService(db, taste, testLogger())
	ctx := context.Background()

	user := createTestUser(t, db, "Alex")
	recipe := createTestRecipe(t, db, "Bulgogi", "beef")

	_, err := svc.Rate(ctx, recipe.ID, user.ID, 5, true, "so good", nil)
	require.NoError(t, err)

	var pref models.TastePreference
	err = db.Where("user_id = ? AND dimension = ? AND value = ?", user.ID, "protein", "beef").
		First(&pref).Error
	require.NoError(t, err)
	assert.InDelta(t, 1.0, pref.Score, 0.001)
}

func TestRateWithCookDateFlipsPlannedEntry(t *testing.T) {
	db := setupTestDB(t)
	svc := NewRecipeService(db, nil, testLogger())
	ctx := context.Background()

	user := createTestUser(t, db, "Alex")
	recipe := createTestRecipe(t, db, "Ragu")
	day := date(2026, time.March, 4)
	plan := &models.MealPlan{Date: day, MealType: "dinner", RecipeID: recipe.ID}
	require.NoError(t, db.Create(plan).Error)

	_, err := svc.Rate(ctx, recipe.ID, user.ID, 4, true, "", &day)
	require.NoError(t, err)

	var reloaded models.MealPlan
	require.NoError(t, db.First(&reloaded, "id = ?", plan.ID).Error)
	assert.Equal(t, models.PlanStatusCooked, reloaded.Status)
}

func TestDeleteRecipeCascades(t *testing.T) {
	db := setupTestDB(t)
	svc := NewRecipeService(db, nil, testLogger())
	ctx := context.Background()

	user := createTestUser(t, db, "Alex")
	recipe, err := svc.Create(ctx, RecipeInput{
		Title:       "Moussaka",
		Ingredients: []ExtractedIngredient{{RawText: "2 eggplants", Name: "eggplant"}},
		Steps:       []ExtractedStep{{Instruction: "Layer and bake."}},
		Tags:        []string{"beef"},
	})
	require.NoError(t, err)
	_, err = svc.Rate(ctx, recipe.ID, user.ID, 5, true, "", nil)
	require.NoError(t, err)
	require.NoError(t, db.Create(&models.MealPlan{Date: date(2026, time.March, 4), RecipeID: recipe.ID}).Error)
	require.NoError(t, db.Create(&models.CookingHistory{RecipeID: &recipe.ID, CookedAt: date(2026, time.March, 1)}).Error)

	require.NoError(t, svc.Delete(ctx, recipe.ID))

	_, err = svc.Get(ctx, recipe.ID)
	assert.ErrorIs(t, err, ErrRecipeNotFound)
	for _, model := range []any{
		&models.RecipeIngredient{}, &models.RecipeStep{}, &models.RecipeTag{},
		&models.Rating{}, &models.MealPlan{},
	} {
		var n int64
		require.NoError(t, db.Model(model).Where("recipe_id = ?", recipe.ID).Count(&n).Error)
		assert.Zero(t, n)
	}

	// History survives with the reference nulled.
	var history models.CookingHistory
	require.NoError(t, db.First(&history).Error)
	assert.Nil(t, history.RecipeID)

	assert.ErrorIs(t, svc.Delete(ctx, recipe.ID), ErrRecipeNotFound)
}

func TestRatingHistoryAndStats(t *testing.T) {
	db := setupTestDB(t)
	svc := NewRecipeService(db, nil, testLogger())
	ctx := context.Background()

	alex := createTestUser(t, db, "Alex")
	sam := createTestUser(t, db, "Sam")
	ragu := createTestRecipe(t, db, "Ragu")
	pho := createTestRecipe(t, db, "Pho")

	_, err := svc.Rate(ctx, ragu.ID, alex.ID, 5, true, "", nil)
	require.NoError(t, err)
	_, err = svc.Rate(ctx, pho.ID, alex.ID, 3, false, "", nil)
	require.NoError(t, err)
	_, err = svc.Rate(ctx, ragu.ID, sam.ID, 4, true, "", nil)
	require.NoError(t, err)

	all, err := svc.RatingHistory(ctx, nil, 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	alexOnly, err := svc.RatingHistory(ctx, &alex.ID, 10)
	require.NoError(t, err)
	require.Len(t, alexOnly, 2)
	for _, r := range alexOnly {
		assert.Equal(t, alex.ID, r.UserID)
	}

	capped, err := svc.RatingHistory(ctx, nil, 1)
	require.NoError(t, err)
	assert.Len(t, capped, 1)

	stats, err := svc.RatingStats(ctx, alex.ID)
	require.NoError(t, err)
	assert.Equal(t, "Alex", stats.UserName)
	assert.Equal(t, 2, stats.TotalRatings)
	assert.InDelta(t, 4.0, stats.AvgStars, 0.001)
	assert.InDelta(t, 0.5, stats.WouldMakeAgainPct, 0.001)
	assert.Equal(t, 1, stats.FiveStarCount)
	assert.Equal(t, 2, stats.DistinctRecipes)

	_, err = svc.RatingStats(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrUserNotFound)

	empty, err := svc.RatingStats(ctx, sam.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, empty.TotalRatings)
}

func TestListTagsWithCounts(t *testing.T) {
	db := setupTestDB(t)
	svc := NewRecipeService(db, nil, testLogger())
	ctx := context.Background()

	createTestRecipe(t, db, "Chicken Soup", "chicken")
	createTestRecipe(t, db, "Chicken Pie", "chicken")

	tags, counts, err := svc.ListTags(ctx)
	require.NoError(t, err)
	require.Len(t, tags, 1)
	assert.Equal(t, "chicken", tags[0].Name)
	assert.Equal(t, models.TagTypeProtein, tags[0].Type)
	assert.Equal(t, 2, counts[tags[0].ID])
}
