package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/forkcast/backend/internal/service"
)

type RatingHandler struct {
	recipes *service.RecipeService
	taste   *service.TasteService
}

func NewRatingHandler(recipes *service.RecipeService, taste *service.TasteService) *RatingHandler {
	return &RatingHandler{recipes: recipes, taste: taste}
}

func (h *RatingHandler) RegisterRoutes(router *gin.RouterGroup) {
	ratings := router.Group("/ratings")
	{
		ratings.POST("", h.CreateRating)
		ratings.GET("/recipe/:id", h.RecipeRatings)
		ratings.GET("/history", h.History)
		ratings.GET("/stats/:id", h.UserStats)
	}
}

type ratingRequest struct {
	RecipeID       uuid.UUID `json:"recipe_id" binding:"required"`
	UserID         uuid.UUID `json:"user_id" binding:"required"`
	Stars          int       `json:"stars" binding:"required"`
	WouldMakeAgain *bool     `json:"would_make_again"`
	Notes          string    `json:"notes"`
	CookedAt       string    `json:"cooked_at"`
}

func (h *RatingHandler) CreateRating(c *gin.Context) {
	var req ratingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	wouldMakeAgain := true
	if req.WouldMakeAgain != nil {
		wouldMakeAgain = *req.WouldMakeAgain
	}

	var cookedAt *time.Time
	if req.CookedAt != "" {
		parsed, err := parseDate(req.CookedAt)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid cooked_at, expected YYYY-MM-DD"})
			return
		}
		cookedAt = &parsed
	}

	rating, err := h.recipes.Rate(c.Request.Context(), req.RecipeID, req.UserID, req.Stars, wouldMakeAgain, req.Notes, cookedAt)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrRecipeNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "Recipe not found"})
		case errors.Is(err, service.ErrUserNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		case errors.Is(err, service.ErrInvalidStars):
			c.JSON(http.StatusBadRequest, gin.H{"error": "Stars must be between 1 and 5"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create rating"})
		}
		return
	}
	c.JSON(http.StatusCreated, rating)
}

func (h *RatingHandler) History(c *gin.Context) {
	limit := 50
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid limit"})
			return
		}
		limit = parsed
	}
	var userID *uuid.UUID
	if raw := c.Query("user_id"); raw != "" {
		parsed, err := uuid.Parse(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid user id"})
			return
		}
		userID = &parsed
	}
	ratings, err := h.recipes.RatingHistory(c.Request.Context(), userID, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch rating history"})
		return
	}
	c.JSON(http.StatusOK, ratings)
}

func (h *RatingHandler) UserStats(c *gin.Context) {
	userID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid user id"})
		return
	}
	stats, err := h.recipes.RatingStats(c.Request.Context(), userID)
	if err != nil {
		if errors.Is(err, service.ErrUserNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to compute rating stats"})
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (h *RatingHandler) RecipeRatings(c *gin.Context) {
	recipeID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid recipe id"})
		return
	}
	ratings, err := h.recipes.Ratings(c.Request.Context(), recipeID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch ratings"})
		return
	}
	c.JSON(http.StatusOK, ratings)
}
