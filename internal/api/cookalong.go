package api

import (
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/forkcast/backend/internal/service"
)

// CookAlongHandler serves the step-by-step cooking mode: ordered steps with
// timer metadata and ingredients scaled to the chosen serving size.
type CookAlongHandler struct {
	recipes *service.RecipeService
}

func NewCookAlongHandler(recipes *service.RecipeService) *CookAlongHandler {
	return &CookAlongHandler{recipes: recipes}
}

func (h *CookAlongHandler) RegisterRoutes(router *gin.RouterGroup) {
	cookalong := router.Group("/cookalong")
	{
		cookalong.GET("/:id", h.GetSession)
		cookalong.GET("/:id/ingredients", h.GetScaledIngredients)
	}
}

func (h *CookAlongHandler) recipeAndMultiplier(c *gin.Context) (uuid.UUID, float64, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid recipe id"})
		return uuid.Nil, 0, false
	}
	multiplier := 1.0
	if raw := c.Query("servings_multiplier"); raw != "" {
		parsed, err := strconv.ParseFloat(raw, 64)
		if err != nil || parsed <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid servings_multiplier"})
			return uuid.Nil, 0, false
		}
		multiplier = parsed
	}
	return id, multiplier, true
}

func (h *CookAlongHandler) GetSession(c *gin.Context) {
	id, multiplier, ok := h.recipeAndMultiplier(c)
	if !ok {
		return
	}

	recipe, err := h.recipes.Get(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, service.ErrRecipeNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Recipe not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load recipe"})
		return
	}
	if len(recipe.Steps) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Recipe has no steps for cook-along mode"})
		return
	}

	timers := []gin.H{}
	for _, step := range recipe.Steps {
		if step.DurationMinutes == nil || *step.DurationMinutes <= 0 {
			continue
		}
		label := step.TimerLabel
		if label == "" {
			label = fmt.Sprintf("Step %d", step.StepNumber)
		}
		timers = append(timers, gin.H{
			"step_number":      step.StepNumber,
			"label":            label,
			"duration_minutes": *step.DurationMinutes,
			"duration_seconds": *step.DurationMinutes * 60,
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"recipe_id":           recipe.ID,
		"recipe_title":        recipe.Title,
		"total_steps":         len(recipe.Steps),
		"current_step":        1,
		"steps":               recipe.Steps,
		"active_timers":       timers,
		"servings_multiplier": multiplier,
	})
}

func (h *CookAlongHandler) GetScaledIngredients(c *gin.Context) {
	id, multiplier, ok := h.recipeAndMultiplier(c)
	if !ok {
		return
	}

	recipe, err := h.recipes.Get(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, service.ErrRecipeNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Recipe not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load recipe"})
		return
	}

	scaled := make([]gin.H, 0, len(recipe.Ingredients))
	for _, ing := range recipe.Ingredients {
		var quantity *float64
		if ing.Quantity != nil {
			q := math.Round(*ing.Quantity*multiplier*100) / 100
			quantity = &q
		}
		scaled = append(scaled, gin.H{
			"raw_text":    ing.RawText,
			"quantity":    quantity,
			"unit":        ing.Unit,
			"preparation": ing.Preparation,
			"group":       ing.GroupName,
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"recipe_id":         recipe.ID,
		"original_servings": recipe.Servings,
		"multiplier":        multiplier,
		"adjusted_servings": int(math.Round(float64(recipe.Servings) * multiplier)),
		"ingredients":       scaled,
	})
}
