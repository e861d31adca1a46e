package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/forkcast/backend/internal/service"
)

type SwipeHandler struct {
	swipe *service.SwipeService
}

func NewSwipeHandler(swipe *service.SwipeService) *SwipeHandler {
	return &SwipeHandler{swipe: swipe}
}

func (h *SwipeHandler) RegisterRoutes(router *gin.RouterGroup) {
	swipe := router.Group("/swipe")
	{
		swipe.POST("/sessions", h.CreateSession)
		swipe.GET("/sessions/active", h.ActiveSessions)
		swipe.GET("/sessions/:id", h.GetSession)
		swipe.GET("/sessions/:id/next", h.NextCard)
		swipe.POST("/sessions/:id/swipe", h.Swipe)
		swipe.GET("/sessions/:id/matches", h.Matches)
	}
}

type sessionCreateRequest struct {
	Context    string `json:"context"`
	TargetDate string `json:"target_date"`
	PoolSize   int    `json:"pool_size"`
}

func (h *SwipeHandler) CreateSession(c *gin.Context) {
	var req sessionCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var targetDate *time.Time
	if req.TargetDate != "" {
		parsed, err := parseDate(req.TargetDate)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid target_date, expected YYYY-MM-DD"})
			return
		}
		targetDate = &parsed
	}

	session, err := h.swipe.CreateSession(c.Request.Context(), req.Context, targetDate, req.PoolSize)
	if err != nil {
		if errors.Is(err, service.ErrEmptyPool) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "No recipes match this session context"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create session"})
		return
	}
	c.JSON(http.StatusCreated, session)
}

func (h *SwipeHandler) sessionAndUser(c *gin.Context) (uuid.UUID, uuid.UUID, bool) {
	sessionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid session id"})
		return uuid.Nil, uuid.Nil, false
	}
	userID, err := uuid.Parse(c.Query("user_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id query parameter is required"})
		return uuid.Nil, uuid.Nil, false
	}
	return sessionID, userID, true
}

func (h *SwipeHandler) GetSession(c *gin.Context) {
	sessionID, userID, ok := h.sessionAndUser(c)
	if !ok {
		return
	}
	progress, err := h.swipe.GetProgress(c.Request.Context(), sessionID, userID)
	if err != nil {
		if errors.Is(err, service.ErrSessionNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Session not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load session"})
		return
	}
	c.JSON(http.StatusOK, progress)
}

func (h *SwipeHandler) NextCard(c *gin.Context) {
	sessionID, userID, ok := h.sessionAndUser(c)
	if !ok {
		return
	}
	card, err := h.swipe.GetNextCard(c.Request.Context(), sessionID, userID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrSessionNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "Session not found"})
		case errors.Is(err, service.ErrNoCardsLeft):
			c.JSON(http.StatusOK, gin.H{"done": true})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load next card"})
		}
		return
	}
	c.JSON(http.StatusOK, card)
}

type swipeRequest struct {
	RecipeID uuid.UUID `json:"recipe_id" binding:"required"`
	UserID   uuid.UUID `json:"user_id" binding:"required"`
	Decision string    `json:"decision" binding:"required"`
}

func (h *SwipeHandler) Swipe(c *gin.Context) {
	sessionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid session id"})
		return
	}
	var req swipeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	matched, err := h.swipe.Swipe(c.Request.Context(), sessionID, req.RecipeID, req.UserID, req.Decision)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrSessionNotFound), errors.Is(err, service.ErrCardNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		case errors.Is(err, service.ErrAlreadySwiped):
			c.JSON(http.StatusBadRequest, gin.H{"error": "Card already swiped"})
		case errors.Is(err, service.ErrInvalidDecision):
			c.JSON(http.StatusBadRequest, gin.H{"error": "Decision must be like, dislike, superlike or skip"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to record swipe"})
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{"matched": matched})
}

func (h *SwipeHandler) Matches(c *gin.Context) {
	sessionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid session id"})
		return
	}
	matches, err := h.swipe.GetMatches(c.Request.Context(), sessionID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load matches"})
		return
	}
	c.JSON(http.StatusOK, matches)
}

func (h *SwipeHandler) ActiveSessions(c *gin.Context) {
	sessions, err := h.swipe.ListActiveSessions(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load sessions"})
		return
	}
	c.JSON(http.StatusOK, sessions)
}
