package api

import (
	"bytes"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createMenuViaAPI(t *testing.T, router *gin.Engine) (menuID, slug string, itemIDs []string) {
	t.Helper()

	appetizer := createRecipeViaAPI(t, router, gin.H{"title": "Deviled Eggs"})
	main := createRecipeViaAPI(t, router, gin.H{"title": "Roast Chicken"})

	w := doJSON(t, router, http.MethodPost, "/api/guest-menus", gin.H{
		"title":      "Holiday Feast",
		"event_date": "2026-12-24",
		"items": []gin.H{
			{"recipe_id": appetizer["id"], "course": "Appetizer"},
			{"recipe_id": main["id"], "course": "Main"},
		},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	body := decodeBody(t, w)
	for _, item := range body["items"].([]any) {
		itemIDs = append(itemIDs, item.(map[string]any)["id"].(string))
	}
	return body["id"].(string), body["slug"].(string), itemIDs
}

func TestCreateMenuGeneratesSlug(t *testing.T) {
	router, _ := setupTestRouter(t)

	_, slug, itemIDs := createMenuViaAPI(t, router)
	assert.Equal(t, "holiday-feast", slug)
	assert.Len(t, itemIDs, 2)

	w := doJSON(t, router, http.MethodGet, "/api/guest-menus/check-slug/holiday-feast", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, decodeBody(t, w)["available"])

	w = doJSON(t, router, http.MethodGet, "/api/guest-menus/check-slug/Summer%20BBQ", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, true, body["available"])
	assert.Equal(t, "summer-bbq", body["slug"])
}

func TestPublicMenuAndVoting(t *testing.T) {
	router, _ := setupTestRouter(t)
	menuID, slug, itemIDs := createMenuViaAPI(t, router)

	w := doJSON(t, router, http.MethodGet, "/api/guest-menus/public/"+slug, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Holiday Feast", decodeBody(t, w)["title"])

	w = doJSON(t, router, http.MethodPost, "/api/guest-menus/public/"+slug+"/vote", gin.H{
		"voter_name": "Grandma",
		"item_ids":   []string{itemIDs[0], itemIDs[1]},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, float64(2), decodeBody(t, w)["recorded"])

	w = doJSON(t, router, http.MethodPost, "/api/guest-menus/public/"+slug+"/vote", gin.H{
		"voter_name": "Uncle Joe",
		"item_ids":   []string{itemIDs[1]},
	})
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, router, http.MethodGet, "/api/guest-menus/public/"+slug+"/votes/Grandma", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decodeBody(t, w)["item_ids"].([]any), 2)

	w = doJSON(t, router, http.MethodGet, "/api/guest-menus/"+menuID+"/results", nil)
	require.Equal(t, http.StatusOK, w.Code)
	results := decodeBody(t, w)
	assert.Equal(t, float64(2), results["total_guests"])

	tally := results["tally"].([]any)
	require.Len(t, tally, 2)
	top := tally[0].(map[string]any)
	assert.Equal(t, itemIDs[1], top["item_id"])
	assert.Equal(t, float64(2), top["vote_count"])
}

func TestPublicMenuGoneWhenDeactivated(t *testing.T) {
	router, _ := setupTestRouter(t)
	menuID, slug, _ := createMenuViaAPI(t, router)

	w := doJSON(t, router, http.MethodPut, "/api/guest-menus/"+menuID, gin.H{"active": false})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = doJSON(t, router, http.MethodGet, "/api/guest-menus/public/"+slug, nil)
	assert.Equal(t, http.StatusGone, w.Code)
	assert.Equal(t, "This menu is no longer available", decodeBody(t, w)["error"])

	// admin view still works
	w = doJSON(t, router, http.MethodGet, "/api/guest-menus/"+menuID, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestPublicMenuNotFound(t *testing.T) {
	router, _ := setupTestRouter(t)

	w := doJSON(t, router, http.MethodGet, "/api/guest-menus/public/no-such-menu", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "Menu not found", decodeBody(t, w)["error"])
}

func TestMenuViewTracking(t *testing.T) {
	router, _ := setupTestRouter(t)
	menuID, slug, _ := createMenuViaAPI(t, router)

	req := httptest.NewRequest(http.MethodPost, "/api/guest-menus/public/"+slug+"/view", nil)
	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	req.Header.Set("User-Agent", "Safari")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, decodeBody(t, w)["ok"])

	// Tracking never surfaces errors to the page, even for unknown slugs.
	unknown := doJSON(t, router, http.MethodPost, "/api/guest-menus/public/no-such-menu/view", nil)
	require.Equal(t, http.StatusOK, unknown.Code)
	assert.Equal(t, true, decodeBody(t, unknown)["ok"])

	stats := doJSON(t, router, http.MethodGet, "/api/guest-menus/"+menuID+"/views", nil)
	require.Equal(t, http.StatusOK, stats.Code)
	body := decodeBody(t, stats)
	assert.Equal(t, float64(1), body["total_views"])
	assert.Equal(t, float64(1), body["unique_visitors"])
	views := body["views"].([]any)
	require.Len(t, views, 1)
	view := views[0].(map[string]any)
	// The forwarded chain's first hop is the real client.
	assert.Equal(t, "203.0.113.9", view["ip_address"])
	assert.Equal(t, "Safari", view["user_agent"])
}

func TestGuestPhotoUploadWithoutStorage(t *testing.T) {
	router, _ := setupTestRouter(t)
	_, slug, _ := createMenuViaAPI(t, router)

	w := doJSON(t, router, http.MethodGet, "/api/guest-menus/public/"+slug, nil)
	require.Equal(t, http.StatusOK, w.Code)
	items := decodeBody(t, w)["items"].([]any)
	recipeID := items[0].(map[string]any)["recipe_id"].(string)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("recipe_id", recipeID))
	header := textproto.MIMEHeader{}
	header.Set("Content-Disposition", `form-data; name="file"; filename="dish.jpg"`)
	header.Set("Content-Type", "image/jpeg")
	part, err := mw.CreatePart(header)
	require.NoError(t, err)
	_, err = part.Write([]byte("jpegbytes"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/guest-menus/public/"+slug+"/photos", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code, rec.Body.String())

	// Listing still works, it just has nothing to show.
	list := doJSON(t, router, http.MethodGet, "/api/guest-menus/public/"+slug+"/photos", nil)
	require.Equal(t, http.StatusOK, list.Code)
}

func TestDeleteMenu(t *testing.T) {
	router, _ := setupTestRouter(t)
	menuID, slug, _ := createMenuViaAPI(t, router)

	w := doJSON(t, router, http.MethodDelete, "/api/guest-menus/"+menuID, nil)
	require.Equal(t, http.StatusNoContent, w.Code)

	w = doJSON(t, router, http.MethodGet, "/api/guest-menus/public/"+slug, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
