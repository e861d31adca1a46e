package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/forkcast/backend/internal/service"
)

type TasteHandler struct {
	taste *service.TasteService
}

func NewTasteHandler(taste *service.TasteService) *TasteHandler {
	return &TasteHandler{taste: taste}
}

func (h *TasteHandler) RegisterRoutes(router *gin.RouterGroup) {
	taste := router.Group("/taste")
	{
		taste.GET("/profile/:id", h.GetProfile)
		taste.POST("/profile/:id/refresh", h.RefreshProfile)
		taste.GET("/profile/:id/insights", h.GetInsights)
		taste.GET("/compare", h.Compare)
	}
}

func (h *TasteHandler) userID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid user id"})
		return uuid.Nil, false
	}
	return id, true
}

func (h *TasteHandler) GetProfile(c *gin.Context) {
	id, ok := h.userID(c)
	if !ok {
		return
	}
	profile, err := h.taste.GetProfile(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, service.ErrUserNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load taste profile"})
		return
	}
	c.JSON(http.StatusOK, profile)
}

func (h *TasteHandler) RefreshProfile(c *gin.Context) {
	id, ok := h.userID(c)
	if !ok {
		return
	}
	preferences, err := h.taste.UpdateProfile(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, service.ErrUserNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to refresh taste profile"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"preferences": preferences})
}

func (h *TasteHandler) GetInsights(c *gin.Context) {
	id, ok := h.userID(c)
	if !ok {
		return
	}
	insights, err := h.taste.GenerateInsights(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, service.ErrUserNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate insights"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"insights": insights})
}

func (h *TasteHandler) Compare(c *gin.Context) {
	comparison, err := h.taste.Compare(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to compare taste profiles"})
		return
	}
	c.JSON(http.StatusOK, comparison)
}
