package api

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createRecipeViaAPI(t *testing.T, router *gin.Engine, body gin.H) map[string]any {
	t.Helper()
	w := doJSON(t, router, http.MethodPost, "/api/recipes", body)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return decodeBody(t, w)
}

func TestCreateAndGetRecipe(t *testing.T) {
	router, _ := setupTestRouter(t)

	created := createRecipeViaAPI(t, router, gin.H{
		"title":         "Chicken Tacos",
		"prep_time_min": 15,
		"cook_time_min": 20,
		"servings":      4,
		"cuisine":       "Mexican",
		"ingredients": []gin.H{
			{"raw_text": "1 lb chicken thighs", "quantity": 1, "unit": "lb", "name": "chicken thighs"},
			{"raw_text": "8 corn tortillas", "quantity": 8, "name": "corn tortillas"},
		},
		"steps": []gin.H{
			{"instruction": "Season and sear the chicken.", "duration_minutes": 8},
			{"instruction": "Warm the tortillas and assemble."},
		},
		"tags": []string{"chicken", "mexican"},
	})
	require.NotEmpty(t, created["id"])

	w := doJSON(t, router, http.MethodGet, "/api/recipes/"+created["id"].(string), nil)
	require.Equal(t, http.StatusOK, w.Code)

	recipe := decodeBody(t, w)
	assert.Equal(t, "Chicken Tacos", recipe["title"])
	assert.Equal(t, float64(35), recipe["total_time_min"])
	assert.Len(t, recipe["ingredients"].([]any), 2)
	assert.Len(t, recipe["steps"].([]any), 2)
}

func TestCreateRecipeRejectsEmptyTitle(t *testing.T) {
	router, _ := setupTestRouter(t)

	w := doJSON(t, router, http.MethodPost, "/api/recipes", gin.H{"title": "   "})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListRecipesEnvelope(t *testing.T) {
	router, _ := setupTestRouter(t)
	createRecipeViaAPI(t, router, gin.H{"title": "Beef Stew"})
	createRecipeViaAPI(t, router, gin.H{"title": "Thai Green Curry", "cuisine": "Thai"})

	w := doJSON(t, router, http.MethodGet, "/api/recipes", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, float64(2), body["total"])
	assert.Len(t, body["recipes"].([]any), 2)

	w = doJSON(t, router, http.MethodGet, "/api/recipes?cuisine=Thai", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body = decodeBody(t, w)
	assert.Equal(t, float64(1), body["total"])
}

func TestGetRecipeNotFoundAndBadID(t *testing.T) {
	router, _ := setupTestRouter(t)

	w := doJSON(t, router, http.MethodGet, "/api/recipes/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Invalid recipe id", decodeBody(t, w)["error"])

	w = doJSON(t, router, http.MethodGet, "/api/recipes/9f1c6c1e-0000-4000-8000-000000000000", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "Recipe not found", decodeBody(t, w)["error"])
}

func TestArchiveRoundTrip(t *testing.T) {
	router, _ := setupTestRouter(t)
	created := createRecipeViaAPI(t, router, gin.H{"title": "Old Standby"})
	id := created["id"].(string)

	w := doJSON(t, router, http.MethodPost, "/api/recipes/"+id+"/archive", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, decodeBody(t, w)["archived"])

	// archived recipes drop out of the default listing
	w = doJSON(t, router, http.MethodGet, "/api/recipes", nil)
	assert.Equal(t, float64(0), decodeBody(t, w)["total"])

	w = doJSON(t, router, http.MethodPost, "/api/recipes/"+id+"/unarchive", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, decodeBody(t, w)["archived"])

	w = doJSON(t, router, http.MethodGet, "/api/recipes", nil)
	assert.Equal(t, float64(1), decodeBody(t, w)["total"])
}

func TestListTagsWithRecipeCounts(t *testing.T) {
	router, _ := setupTestRouter(t)
	createRecipeViaAPI(t, router, gin.H{"title": "Grilled Chicken", "tags": []string{"chicken"}})
	createRecipeViaAPI(t, router, gin.H{"title": "Chicken Soup", "tags": []string{"chicken", "soup"}})

	w := doJSON(t, router, http.MethodGet, "/api/recipes/tags/all", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var tags []map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &tags))
	counts := map[string]float64{}
	for _, tag := range tags {
		counts[tag["name"].(string)] = tag["recipe_count"].(float64)
	}
	assert.Equal(t, float64(2), counts["chicken"])
	assert.Equal(t, float64(1), counts["soup"])
}

func TestCreateRatingValidation(t *testing.T) {
	router, db := setupTestRouter(t)
	user := seedUser(t, db, "Alice")
	created := createRecipeViaAPI(t, router, gin.H{"title": "Pad Thai"})
	recipeID := created["id"].(string)

	w := doJSON(t, router, http.MethodPost, "/api/ratings", gin.H{
		"recipe_id": recipeID, "user_id": user.ID, "stars": 6,
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Stars must be between 1 and 5", decodeBody(t, w)["error"])

	w = doJSON(t, router, http.MethodPost, "/api/ratings", gin.H{
		"recipe_id": "9f1c6c1e-0000-4000-8000-000000000000", "user_id": user.ID, "stars": 4,
	})
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "Recipe not found", decodeBody(t, w)["error"])

	w = doJSON(t, router, http.MethodPost, "/api/ratings", gin.H{
		"recipe_id": recipeID, "user_id": user.ID, "stars": 5,
		"would_make_again": true, "cooked_at": "2026-03-04",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = doJSON(t, router, http.MethodGet, "/api/ratings/recipe/"+recipeID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var ratings []map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &ratings))
	require.Len(t, ratings, 1)
	assert.Equal(t, float64(5), ratings[0]["stars"])
}

func TestDeleteRecipeEndpoint(t *testing.T) {
	router, db := setupTestRouter(t)
	user := seedUser(t, db, "Alice")
	created := createRecipeViaAPI(t, router, gin.H{
		"title":       "Shakshuka",
		"ingredients": []gin.H{{"raw_text": "6 eggs", "quantity": 6, "name": "eggs"}},
		"steps":       []gin.H{{"instruction": "Simmer the sauce, crack in the eggs."}},
		"tags":        []string{"vegetarian"},
	})
	id := created["id"].(string)

	w := doJSON(t, router, http.MethodPost, "/api/ratings", gin.H{
		"recipe_id": id, "user_id": user.ID, "stars": 4,
	})
	require.Equal(t, http.StatusCreated, w.Code)

	w = doJSON(t, router, http.MethodDelete, "/api/recipes/"+id, nil)
	require.Equal(t, http.StatusNoContent, w.Code)

	w = doJSON(t, router, http.MethodGet, "/api/recipes/"+id, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = doJSON(t, router, http.MethodGet, "/api/ratings/recipe/"+id, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var ratings []map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &ratings))
	assert.Empty(t, ratings)

	w = doJSON(t, router, http.MethodDelete, "/api/recipes/"+id, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRatingHistoryAndStatsEndpoints(t *testing.T) {
	router, db := setupTestRouter(t)
	alice := seedUser(t, db, "Alice")
	ben := seedUser(t, db, "Ben")
	created := createRecipeViaAPI(t, router, gin.H{"title": "Pad Thai"})
	recipeID := created["id"].(string)

	for _, req := range []gin.H{
		{"recipe_id": recipeID, "user_id": alice.ID, "stars": 5, "would_make_again": true},
		{"recipe_id": recipeID, "user_id": ben.ID, "stars": 3, "would_make_again": false},
	} {
		w := doJSON(t, router, http.MethodPost, "/api/ratings", req)
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	}

	w := doJSON(t, router, http.MethodGet, "/api/ratings/history", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var history []map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &history))
	assert.Len(t, history, 2)

	w = doJSON(t, router, http.MethodGet, "/api/ratings/history?user_id="+alice.ID.String(), nil)
	require.Equal(t, http.StatusOK, w.Code)
	history = nil
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &history))
	require.Len(t, history, 1)
	assert.Equal(t, float64(5), history[0]["stars"])

	w = doJSON(t, router, http.MethodGet, "/api/ratings/history?limit=zero", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(t, router, http.MethodGet, "/api/ratings/stats/"+alice.ID.String(), nil)
	require.Equal(t, http.StatusOK, w.Code)
	stats := decodeBody(t, w)
	assert.Equal(t, "Alice", stats["user_name"])
	assert.Equal(t, float64(1), stats["total_ratings"])
	assert.Equal(t, float64(5), stats["avg_stars"])
	assert.Equal(t, float64(1), stats["would_make_again_pct"])

	w = doJSON(t, router, http.MethodGet, "/api/ratings/stats/9f1c6c1e-0000-4000-8000-000000000000", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "User not found", decodeBody(t, w)["error"])
}

func TestCookAlongSession(t *testing.T) {
	router, _ := setupTestRouter(t)
	created := createRecipeViaAPI(t, router, gin.H{
		"title":    "Risotto",
		"servings": 4,
		"ingredients": []gin.H{
			{"raw_text": "1.5 cups arborio rice", "quantity": 1.5, "unit": "cup", "name": "arborio rice"},
		},
		"steps": []gin.H{
			{"instruction": "Toast the rice.", "duration_minutes": 3},
			{"instruction": "Add stock one ladle at a time.", "duration_minutes": 18, "timer_label": "Stir and add stock"},
			{"instruction": "Finish with butter and parmesan."},
		},
	})
	id := created["id"].(string)

	w := doJSON(t, router, http.MethodGet, "/api/cookalong/"+id, nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, float64(3), body["total_steps"])
	assert.Equal(t, float64(1), body["current_step"])

	timers := body["active_timers"].([]any)
	require.Len(t, timers, 2)
	second := timers[1].(map[string]any)
	assert.Equal(t, "Stir and add stock", second["label"])
	assert.Equal(t, float64(18*60), second["duration_seconds"])

	w = doJSON(t, router, http.MethodGet, "/api/cookalong/"+id+"/ingredients?servings_multiplier=2", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body = decodeBody(t, w)
	assert.Equal(t, float64(8), body["adjusted_servings"])
	lines := body["ingredients"].([]any)
	require.Len(t, lines, 1)
	assert.Equal(t, float64(3), lines[0].(map[string]any)["quantity"])
}

func TestCookAlongNoSteps(t *testing.T) {
	router, _ := setupTestRouter(t)
	created := createRecipeViaAPI(t, router, gin.H{"title": "Mystery Dish"})

	w := doJSON(t, router, http.MethodGet, "/api/cookalong/"+created["id"].(string), nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Recipe has no steps for cook-along mode", decodeBody(t, w)["error"])
}
