package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/forkcast/backend/config"
	"github.com/forkcast/backend/internal/database"
	"github.com/forkcast/backend/internal/models"
)

// setupTestRouter builds a full router over an isolated in-memory database.
// Redis, the LLM and the external integrations are left nil so their routes
// degrade the same way they do in a bare deployment.
func setupTestRouter(t *testing.T) (*gin.Engine, *gorm.DB) {
	t.Helper()

	dsn := "file:" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))

	gin.SetMode(gin.TestMode)
	router := gin.New()
	SetupAPI(router, Deps{
		DB:     db,
		Config: &config.Config{},
		Logger: zap.NewNop(),
	})
	return router, db
}

func doJSON(t *testing.T, router *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func seedUser(t *testing.T, db *gorm.DB, name string) *models.User {
	t.Helper()
	user := &models.User{Name: name}
	require.NoError(t, db.Create(user).Error)
	return user
}

func TestHealthEndpoint(t *testing.T) {
	router, _ := setupTestRouter(t)

	w := doJSON(t, router, http.MethodGet, "/api/health", nil)
	require.Equal(t, http.StatusOK, w.Code)

	body := decodeBody(t, w)
	require.Equal(t, "healthy", body["status"])
	checks := body["checks"].(map[string]any)
	require.Equal(t, "up", checks["database"])
	// redis is nil in tests so it must not be reported at all
	_, present := checks["redis"]
	require.False(t, present)
}

func TestListUsers(t *testing.T) {
	router, db := setupTestRouter(t)
	seedUser(t, db, "Alice")
	seedUser(t, db, "Bob")

	w := doJSON(t, router, http.MethodGet, "/api/users", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var users []models.User
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &users))
	require.Len(t, users, 2)
}

func TestGetUserNotFound(t *testing.T) {
	router, _ := setupTestRouter(t)

	w := doJSON(t, router, http.MethodGet, "/api/users/"+uuid.NewString(), nil)
	require.Equal(t, http.StatusNotFound, w.Code)
	require.Equal(t, "User not found", decodeBody(t, w)["error"])
}
