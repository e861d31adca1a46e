package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forkcast/backend/config"
	"github.com/forkcast/backend/internal/models"
)

func TestNormalizeSlug(t *testing.T) {
	cases := map[string]string{
		"Birthday Dinner 2026": "birthday-dinner-2026",
		"  Taco  Night!  ":     "taco-night",
		"--already-clean--":    "already-clean",
		"NYE Party":            "nye-party",
	}
	for input, want := range cases {
		assert.Equal(t, want, NormalizeSlug(input))
	}
}

func TestCreateMenuDefaultsSlugFromTitle(t *testing.T) {
	db := setupTestDB(t)
	svc := NewGuestMenuService(db, nil, nil, testLogger())
	ctx := context.Background()

	recipe := createTestRecipe(t, db, "Beef Wellington")
	menu, err := svc.Create(ctx, "Holiday Feast", "", "Join us!", "", nil,
		[]MenuItemInput{{RecipeID: recipe.ID, Course: "main"}})
	require.NoError(t, err)
	assert.Equal(t, "holiday-feast", menu.Slug)
	assert.True(t, menu.Active)
	require.Len(t, menu.Items, 1)
	assert.Equal(t, recipe.ID, menu.Items[0].RecipeID)
}

func TestCreateMenuRejectsTakenSlug(t *testing.T) {
	db := setupTestDB(t)
	svc := NewGuestMenuService(db, nil, nil, testLogger())
	ctx := context.Background()

	recipe := createTestRecipe(t, db, "Beef Wellington")
	items := []MenuItemInput{{RecipeID: recipe.ID, Course: "main"}}

	_, err := svc.Create(ctx, "Holiday Feast", "", "", "", nil, items)
	require.NoError(t, err)
	_, err = svc.Create(ctx, "Another Party", "Holiday Feast", "", "", nil, items)
	assert.ErrorIs(t, err, ErrSlugTaken)
}

func TestCreateMenuRejectsShortSlug(t *testing.T) {
	db := setupTestDB(t)
	svc := NewGuestMenuService(db, nil, nil, testLogger())

	recipe := createTestRecipe(t, db, "Beef Wellington")
	_, err := svc.Create(context.Background(), "AB", "", "", "", nil,
		[]MenuItemInput{{RecipeID: recipe.ID}})
	assert.ErrorIs(t, err, ErrInvalidSlug)
}

func TestCreateMenuRejectsUnknownRecipe(t *testing.T) {
	db := setupTestDB(t)
	svc := NewGuestMenuService(db, nil, nil, testLogger())

	_, err := svc.Create(context.Background(), "Ghost Menu", "", "", "", nil,
		[]MenuItemInput{{RecipeID: uuid.New()}})
	assert.ErrorIs(t, err, ErrRecipeNotFound)
}

func TestGetBySlugInactiveMenu(t *testing.T) {
	db := setupTestDB(t)
	svc := NewGuestMenuService(db, nil, nil, testLogger())
	ctx := context.Background()

	recipe := createTestRecipe(t, db, "Beef Wellington")
	menu, err := svc.Create(ctx, "Holiday Feast", "", "", "", nil,
		[]MenuItemInput{{RecipeID: recipe.ID}})
	require.NoError(t, err)

	inactive := false
	_, err = svc.Update(ctx, menu.ID, MenuUpdate{Active: &inactive})
	require.NoError(t, err)

	_, err = svc.GetBySlug(ctx, "holiday-feast")
	assert.ErrorIs(t, err, ErrMenuInactive)

	// Still reachable through the admin path.
	got, err := svc.Get(ctx, menu.ID)
	require.NoError(t, err)
	assert.False(t, got.Active)
}

func TestSlugAvailable(t *testing.T) {
	db := setupTestDB(t)
	svc := NewGuestMenuService(db, nil, nil, testLogger())
	ctx := context.Background()

	recipe := createTestRecipe(t, db, "Beef Wellington")
	_, err := svc.Create(ctx, "Holiday Feast", "", "", "", nil,
		[]MenuItemInput{{RecipeID: recipe.ID}})
	require.NoError(t, err)

	available, normalized, err := svc.SlugAvailable(ctx, "Holiday Feast")
	require.NoError(t, err)
	assert.False(t, available)
	assert.Equal(t, "holiday-feast", normalized)

	available, _, err = svc.SlugAvailable(ctx, "summer bbq")
	require.NoError(t, err)
	assert.True(t, available)
}

func TestVoteReplacesPreviousVotes(t *testing.T) {
	db := setupTestDB(t)
	svc := NewGuestMenuService(db, nil, nil, testLogger())
	ctx := context.Background()

	r1 := createTestRecipe(t, db, "Beef Wellington")
	r2 := createTestRecipe(t, db, "Mushroom Tart")
	menu, err := svc.Create(ctx, "Holiday Feast", "", "", "", nil, []MenuItemInput{
		{RecipeID: r1.ID, Course: "main"},
		{RecipeID: r2.ID, Course: "main"},
	})
	require.NoError(t, err)
	item1, item2 := menu.Items[0].ID, menu.Items[1].ID

	require.NoError(t, svc.Vote(ctx, menu.Slug, "Grandma", []uuid.UUID{item1, item2}))
	votes, err := svc.VotesFor(ctx, menu.Slug, "Grandma")
	require.NoError(t, err)
	assert.Len(t, votes, 2)

	// Changing her mind replaces the earlier picks.
	require.NoError(t, svc.Vote(ctx, menu.Slug, "Grandma", []uuid.UUID{item2}))
	votes, err = svc.VotesFor(ctx, menu.Slug, "Grandma")
	require.NoError(t, err)
	require.Len(t, votes, 1)
	assert.Equal(t, item2, votes[0])
}

func TestVoteRejectsForeignItem(t *testing.T) {
	db := setupTestDB(t)
	svc := NewGuestMenuService(db, nil, nil, testLogger())
	ctx := context.Background()

	recipe := createTestRecipe(t, db, "Beef Wellington")
	menu, err := svc.Create(ctx, "Holiday Feast", "", "", "", nil,
		[]MenuItemInput{{RecipeID: recipe.ID}})
	require.NoError(t, err)

	err = svc.Vote(ctx, menu.Slug, "Grandma", []uuid.UUID{uuid.New()})
	assert.Error(t, err)
}

func TestResultsTallySortedByPopularity(t *testing.T) {
	db := setupTestDB(t)
	svc := NewGuestMenuService(db, nil, nil, testLogger())
	ctx := context.Background()

	r1 := createTestRecipe(t, db, "Beef Wellington")
	r2 := createTestRecipe(t, db, "Mushroom Tart")
	menu, err := svc.Create(ctx, "Holiday Feast", "", "", "", nil, []MenuItemInput{
		{RecipeID: r1.ID, Course: "main"},
		{RecipeID: r2.ID, Course: "main"},
	})
	require.NoError(t, err)
	item1, item2 := menu.Items[0].ID, menu.Items[1].ID

	require.NoError(t, svc.Vote(ctx, menu.Slug, "Grandma", []uuid.UUID{item2}))
	require.NoError(t, svc.Vote(ctx, menu.Slug, "Uncle Joe", []uuid.UUID{item1, item2}))
	require.NoError(t, svc.Vote(ctx, menu.Slug, "Priya", []uuid.UUID{item2}))

	results, err := svc.Results(ctx, menu.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, results.TotalGuests)
	require.Len(t, results.Tally, 2)
	assert.Equal(t, item2, results.Tally[0].ItemID)
	assert.Equal(t, 3, results.Tally[0].VoteCount)
	assert.Equal(t, "Mushroom Tart", results.Tally[0].RecipeTitle)
	assert.Equal(t, 1, results.Tally[1].VoteCount)
	assert.ElementsMatch(t, []string{"Uncle Joe"}, results.Tally[1].Voters)
}

func TestDeleteMenuRemovesItemsAndVotes(t *testing.T) {
	db := setupTestDB(t)
	svc := NewGuestMenuService(db, nil, nil, testLogger())
	ctx := context.Background()

	recipe := createTestRecipe(t, db, "Beef Wellington")
	menu, err := svc.Create(ctx, "Holiday Feast", "", "", "", nil,
		[]MenuItemInput{{RecipeID: recipe.ID}})
	require.NoError(t, err)
	require.NoError(t, svc.Vote(ctx, menu.Slug, "Grandma", []uuid.UUID{menu.Items[0].ID}))
	require.NoError(t, svc.RecordView(ctx, menu.Slug, "10.0.0.1", "Safari", ""))

	require.NoError(t, svc.Delete(ctx, menu.ID))

	var items, votes, views int64
	db.Model(&models.GuestMenuItem{}).Where("menu_id = ?", menu.ID).Count(&items)
	db.Model(&models.GuestVote{}).Where("menu_id = ?", menu.ID).Count(&votes)
	db.Model(&models.MenuView{}).Where("menu_id = ?", menu.ID).Count(&views)
	assert.Zero(t, items)
	assert.Zero(t, votes)
	assert.Zero(t, views)
	_, err = svc.Get(ctx, menu.ID)
	assert.ErrorIs(t, err, ErrMenuNotFound)
}

func TestCreateMenuGeneratesTheme(t *testing.T) {
	db := setupTestDB(t)
	llm := &stubLLM{response: "```json\n" + `{
		"title_font": "Great Vibes",
		"tagline": "An evening of slow-cooked comfort",
		"sections": [
			{"title": "MAINS", "items": ["Beef Wellington"]}
		]
	}` + "\n```"}
	svc := NewGuestMenuService(db, llm, nil, testLogger())
	ctx := context.Background()

	recipe := createTestRecipe(t, db, "Beef Wellington")
	menu, err := svc.Create(ctx, "Holiday Feast", "", "", "cozy winter lodge", nil,
		[]MenuItemInput{{RecipeID: recipe.ID, Course: "main"}})
	require.NoError(t, err)
	assert.Equal(t, "cozy winter lodge", menu.ThemePrompt)
	assert.Equal(t, "Great Vibes", menu.Theme.GetString("title_font", ""))
	assert.Equal(t, "An evening of slow-cooked comfort", menu.Theme.GetString("tagline", ""))
}

func TestThemeFailureDoesNotBlockMenuCreation(t *testing.T) {
	db := setupTestDB(t)
	llm := &stubLLM{err: errors.New("model overloaded")}
	svc := NewGuestMenuService(db, llm, nil, testLogger())

	recipe := createTestRecipe(t, db, "Beef Wellington")
	menu, err := svc.Create(context.Background(), "Holiday Feast", "", "", "art deco", nil,
		[]MenuItemInput{{RecipeID: recipe.ID}})
	require.NoError(t, err)
	assert.Empty(t, menu.Theme)
	assert.Equal(t, "art deco", menu.ThemePrompt)
}

func TestThemeCollectsUnplacedRecipes(t *testing.T) {
	db := setupTestDB(t)
	llm := &stubLLM{response: `{
		"sections": [{"title": "MAINS", "items": ["Beef Wellington"]}]
	}`}
	svc := NewGuestMenuService(db, llm, nil, testLogger())

	r1 := createTestRecipe(t, db, "Beef Wellington")
	r2 := createTestRecipe(t, db, "Mushroom Tart")
	menu, err := svc.Create(context.Background(), "Holiday Feast", "", "", "", nil, []MenuItemInput{
		{RecipeID: r1.ID, Course: "main"},
		{RecipeID: r2.ID, Course: "main"},
	})
	require.NoError(t, err)

	sections := menu.Theme["sections"].([]any)
	require.Len(t, sections, 2)
	overflow := sections[1].(map[string]any)
	assert.Equal(t, "MORE", overflow["title"])
	assert.Equal(t, []any{"Mushroom Tart"}, overflow["items"])
}

func TestRegenerateThemeKeepsOldThemeOnFailure(t *testing.T) {
	db := setupTestDB(t)
	llm := &stubLLM{response: `{"tagline": "first draft", "sections": []}`}
	svc := NewGuestMenuService(db, llm, nil, testLogger())
	ctx := context.Background()

	recipe := createTestRecipe(t, db, "Beef Wellington")
	menu, err := svc.Create(ctx, "Holiday Feast", "", "", "rustic", nil,
		[]MenuItemInput{{RecipeID: recipe.ID}})
	require.NoError(t, err)

	llm.response = `{"tagline": "second draft", "sections": []}`
	newPrompt := "gilded ballroom"
	menu, err = svc.RegenerateTheme(ctx, menu.ID, &newPrompt)
	require.NoError(t, err)
	assert.Equal(t, "gilded ballroom", menu.ThemePrompt)
	assert.Equal(t, "second draft", menu.Theme.GetString("tagline", ""))

	// A failed regeneration keeps the last good theme.
	llm.err = errors.New("model overloaded")
	menu, err = svc.RegenerateTheme(ctx, menu.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, "second draft", menu.Theme.GetString("tagline", ""))
	assert.Equal(t, "gilded ballroom", menu.ThemePrompt)
}

func TestRecordViewUnknownSlugSilentlySkips(t *testing.T) {
	db := setupTestDB(t)
	svc := NewGuestMenuService(db, nil, nil, testLogger())

	require.NoError(t, svc.RecordView(context.Background(), "no-such-menu", "10.0.0.1", "", ""))

	var count int64
	db.Model(&models.MenuView{}).Count(&count)
	assert.Zero(t, count)
}

func TestViewStatsCountsUniqueVisitors(t *testing.T) {
	db := setupTestDB(t)
	svc := NewGuestMenuService(db, nil, nil, testLogger())
	ctx := context.Background()

	recipe := createTestRecipe(t, db, "Beef Wellington")
	menu, err := svc.Create(ctx, "Holiday Feast", "", "", "", nil,
		[]MenuItemInput{{RecipeID: recipe.ID}})
	require.NoError(t, err)

	require.NoError(t, svc.RecordView(ctx, menu.Slug, "10.0.0.1", "Safari", "https://example.com"))
	require.NoError(t, svc.RecordView(ctx, menu.Slug, "10.0.0.1", "Safari", ""))
	require.NoError(t, svc.RecordView(ctx, menu.Slug, "10.0.0.2", "Firefox", ""))
	// Proxied requests without a client address still count as views.
	require.NoError(t, svc.RecordView(ctx, menu.Slug, "", "curl", ""))

	stats, err := svc.Views(ctx, menu.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(4), stats.TotalViews)
	assert.Equal(t, int64(2), stats.UniqueVisitors)
	assert.Len(t, stats.Views, 4)

	_, err = svc.Views(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrMenuNotFound)
}

func TestGuestPhotoUploadAndListing(t *testing.T) {
	db := setupTestDB(t)
	images, err := NewImageService(context.Background(),
		&config.StorageConfig{ImageDir: t.TempDir()}, testLogger())
	require.NoError(t, err)
	svc := NewGuestMenuService(db, nil, images, testLogger())
	ctx := context.Background()

	recipe := createTestRecipe(t, db, "Beef Wellington")
	menu, err := svc.Create(ctx, "Holiday Feast", "", "", "", nil,
		[]MenuItemInput{{RecipeID: recipe.ID, Course: "main"}})
	require.NoError(t, err)

	photo, err := svc.AddPhoto(ctx, menu.Slug, recipe.ID, "  Grandma ", "So flaky!", "image/jpeg", []byte("jpegbytes"))
	require.NoError(t, err)
	assert.Equal(t, "Grandma", photo.GuestName)
	assert.True(t, strings.HasPrefix(photo.URL, "/images/guest_"), photo.URL)

	_, err = svc.AddPhoto(ctx, menu.Slug, uuid.New(), "Grandma", "", "image/png", []byte("x"))
	assert.ErrorIs(t, err, ErrRecipeNotOnMenu)

	public, err := svc.PublicPhotos(ctx, menu.Slug)
	require.NoError(t, err)
	require.Len(t, public, 1)

	detailed, err := svc.MenuPhotos(ctx, menu.ID)
	require.NoError(t, err)
	require.Len(t, detailed, 1)
	assert.Equal(t, "Beef Wellington", detailed[0].RecipeTitle)
	assert.Equal(t, "So flaky!", detailed[0].Caption)
}

func TestAddPhotoWithoutStorage(t *testing.T) {
	db := setupTestDB(t)
	svc := NewGuestMenuService(db, nil, nil, testLogger())

	recipe := createTestRecipe(t, db, "Beef Wellington")
	menu, err := svc.Create(context.Background(), "Holiday Feast", "", "", "", nil,
		[]MenuItemInput{{RecipeID: recipe.ID}})
	require.NoError(t, err)

	_, err = svc.AddPhoto(context.Background(), menu.Slug, recipe.ID, "Grandma", "", "image/jpeg", []byte("x"))
	assert.ErrorIs(t, err, ErrNoPhotoStorage)
}
