package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/forkcast/backend/internal/models"
	"github.com/forkcast/backend/internal/service"
)

// KrogerHandler connects the household's shared grocery cart. OAuth tokens
// belong to the household, keyed to the longest-standing member.
type KrogerHandler struct {
	db      *gorm.DB
	kroger  *service.KrogerClient
	recipes *service.RecipeService
}

func NewKrogerHandler(db *gorm.DB, kroger *service.KrogerClient, recipes *service.RecipeService) *KrogerHandler {
	return &KrogerHandler{db: db, kroger: kroger, recipes: recipes}
}

func (h *KrogerHandler) RegisterRoutes(router *gin.RouterGroup) {
	kroger := router.Group("/kroger")
	{
		kroger.GET("/connect", h.Connect)
		kroger.GET("/callback", h.Callback)
		kroger.GET("/status", h.Status)
		kroger.GET("/search", h.Search)
		kroger.GET("/match/:id", h.MatchRecipe)
		kroger.POST("/cart/add/:id", h.AddToCart)
	}
}

func (h *KrogerHandler) configured(c *gin.Context) bool {
	if h.kroger == nil || !h.kroger.Configured() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Kroger integration not configured"})
		return false
	}
	return true
}

func (h *KrogerHandler) Connect(c *gin.Context) {
	if !h.configured(c) {
		return
	}
	authURL, err := h.kroger.AuthorizeURL()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to build authorization URL"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"url": authURL})
}

func (h *KrogerHandler) Callback(c *gin.Context) {
	if !h.configured(c) {
		return
	}
	code := c.Query("code")
	if code == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing authorization code"})
		return
	}
	if err := h.kroger.VerifyState(c.Query("state")); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid state parameter"})
		return
	}

	tokens, err := h.kroger.ExchangeCode(c.Request.Context(), code)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "Token exchange failed"})
		return
	}

	var owner models.User
	if err := h.db.Order("created_at").First(&owner).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "No household users found"})
		return
	}

	expiresAt := time.Now().UTC().Add(time.Duration(tokens.ExpiresIn) * time.Second)
	var record models.KrogerToken
	err = h.db.Where("user_id = ?", owner.ID).First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		record = models.KrogerToken{
			UserID:       owner.ID,
			AccessToken:  tokens.AccessToken,
			RefreshToken: tokens.RefreshToken,
			ExpiresAt:    expiresAt,
			StoreID:      h.kroger.StoreID(),
		}
		err = h.db.Create(&record).Error
	} else if err == nil {
		err = h.db.Model(&record).Updates(map[string]any{
			"access_token":  tokens.AccessToken,
			"refresh_token": tokens.RefreshToken,
			"expires_at":    expiresAt,
		}).Error
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to store tokens"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"connected": true, "store_id": record.StoreID})
}

func (h *KrogerHandler) Status(c *gin.Context) {
	configured := h.kroger != nil && h.kroger.Configured()
	status := gin.H{"configured": configured, "connected": false}
	if configured {
		status["store_id"] = h.kroger.StoreID()
		var count int64
		h.db.Model(&models.KrogerToken{}).Count(&count)
		status["connected"] = count > 0
	}
	c.JSON(http.StatusOK, status)
}

func (h *KrogerHandler) Search(c *gin.Context) {
	if !h.configured(c) {
		return
	}
	term := c.Query("term")
	if term == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "term query parameter is required"})
		return
	}
	products, err := h.kroger.SearchProducts(c.Request.Context(), term, h.kroger.StoreID(), 10)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "Product search failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"products": products})
}

func (h *KrogerHandler) recipeIngredientNames(c *gin.Context) (uuid.UUID, []string, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid recipe id"})
		return uuid.Nil, nil, false
	}
	recipe, err := h.recipes.Get(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, service.ErrRecipeNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Recipe not found"})
			return uuid.Nil, nil, false
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load recipe"})
		return uuid.Nil, nil, false
	}

	names := make([]string, 0, len(recipe.Ingredients))
	for _, ing := range recipe.Ingredients {
		var ingredient models.Ingredient
		if ing.IngredientID != nil {
			if err := h.db.First(&ingredient, "id = ?", *ing.IngredientID).Error; err == nil {
				names = append(names, ingredient.Name)
				continue
			}
		}
		if ing.RawText != "" {
			names = append(names, ing.RawText)
		}
	}
	return id, names, true
}

func (h *KrogerHandler) MatchRecipe(c *gin.Context) {
	if !h.configured(c) {
		return
	}
	recipeID, names, ok := h.recipeIngredientNames(c)
	if !ok {
		return
	}
	matches, err := h.kroger.MatchIngredients(c.Request.Context(), names, h.kroger.StoreID())
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "Ingredient matching failed"})
		return
	}
	matched := 0
	for _, m := range matches {
		if m.Matched {
			matched++
		}
	}
	c.JSON(http.StatusOK, gin.H{
		"recipe_id": recipeID,
		"matches":   matches,
		"matched":   matched,
		"total":     len(names),
	})
}

func (h *KrogerHandler) AddToCart(c *gin.Context) {
	if !h.configured(c) {
		return
	}
	_, names, ok := h.recipeIngredientNames(c)
	if !ok {
		return
	}

	var record models.KrogerToken
	if err := h.db.First(&record).Error; err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Kroger account not connected"})
		return
	}

	// Refresh the user token if it expires within 5 minutes.
	if time.Until(record.ExpiresAt) < 5*time.Minute {
		tokens, err := h.kroger.RefreshUserToken(c.Request.Context(), record.RefreshToken)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Token refresh failed, reconnect your Kroger account"})
			return
		}
		record.AccessToken = tokens.AccessToken
		record.RefreshToken = tokens.RefreshToken
		record.ExpiresAt = time.Now().UTC().Add(time.Duration(tokens.ExpiresIn) * time.Second)
		if err := h.db.Save(&record).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to store refreshed tokens"})
			return
		}
	}

	matches, err := h.kroger.MatchIngredients(c.Request.Context(), names, h.kroger.StoreID())
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "Ingredient matching failed"})
		return
	}

	items := []service.CartItem{}
	skipped := []string{}
	for _, m := range matches {
		if m.Matched && m.Product != nil && m.Product.UPC != "" {
			items = append(items, service.CartItem{UPC: m.Product.UPC, Quantity: 1})
		} else {
			skipped = append(skipped, m.Ingredient)
		}
	}
	if len(items) == 0 {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "No ingredients matched store products"})
		return
	}

	if err := h.kroger.AddToCart(c.Request.Context(), record.AccessToken, items); err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "Cart add failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"added": len(items), "skipped": skipped})
}
