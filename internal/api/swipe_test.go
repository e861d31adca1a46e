package api

import (
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDuplicateSwipeIsClientError(t *testing.T) {
	router, db := setupTestRouter(t)
	alice := seedUser(t, db, "Alice")
	seedUser(t, db, "Ben")
	created := createRecipeViaAPI(t, router, gin.H{"title": "Ramen"})
	recipeID := created["id"].(string)

	w := doJSON(t, router, http.MethodPost, "/api/swipe/sessions", gin.H{"context": "weekend"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	sessionID := decodeBody(t, w)["id"].(string)

	swipeBody := gin.H{"recipe_id": recipeID, "user_id": alice.ID, "decision": "like"}
	w = doJSON(t, router, http.MethodPost, "/api/swipe/sessions/"+sessionID+"/swipe", swipeBody)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = doJSON(t, router, http.MethodPost, "/api/swipe/sessions/"+sessionID+"/swipe", swipeBody)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Card already swiped", decodeBody(t, w)["error"])
}
