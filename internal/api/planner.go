package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/forkcast/backend/internal/service"
)

type PlannerHandler struct {
	planner *service.PlannerService
	suggest *service.SuggestService
}

func NewPlannerHandler(planner *service.PlannerService, suggest *service.SuggestService) *PlannerHandler {
	return &PlannerHandler{planner: planner, suggest: suggest}
}

func (h *PlannerHandler) RegisterRoutes(router *gin.RouterGroup) {
	planner := router.Group("/planner")
	{
		planner.GET("/week", h.GetWeek)
		planner.POST("", h.CreateEntry)
		planner.PUT("/:id", h.UpdateEntry)
		planner.DELETE("/:id", h.DeleteEntry)
		planner.POST("/suggest", h.Suggest)
		planner.POST("/calendar", h.AddCalendarEvent)
		planner.DELETE("/calendar/:id", h.DeleteCalendarEvent)
		planner.GET("/availability", h.Availability)
		planner.GET("/calendar/ha", h.HAEvents)
	}
}

func parseDate(raw string) (time.Time, error) {
	return time.Parse("2006-01-02", raw)
}

func (h *PlannerHandler) GetWeek(c *gin.Context) {
	start := service.WeekStartFor(time.Now().UTC())
	if raw := c.Query("start"); raw != "" {
		parsed, err := parseDate(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid start date, expected YYYY-MM-DD"})
			return
		}
		start = parsed
	}

	week, err := h.planner.Week(c.Request.Context(), start)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load week plan"})
		return
	}
	c.JSON(http.StatusOK, week)
}

type planEntryRequest struct {
	Date     string    `json:"date" binding:"required"`
	MealType string    `json:"meal_type"`
	RecipeID uuid.UUID `json:"recipe_id" binding:"required"`
	Notes    string    `json:"notes"`
}

func (h *PlannerHandler) CreateEntry(c *gin.Context) {
	var req planEntryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	date, err := parseDate(req.Date)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid date, expected YYYY-MM-DD"})
		return
	}

	plan, evals, err := h.planner.CreateEntry(c.Request.Context(), date, req.MealType, req.RecipeID, req.Notes)
	if err != nil {
		if errors.Is(err, service.ErrRecipeNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Recipe not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create plan entry"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"plan": plan, "rule_evaluations": evals})
}

type planUpdateRequest struct {
	Date     *string    `json:"date"`
	MealType *string    `json:"meal_type"`
	RecipeID *uuid.UUID `json:"recipe_id"`
	Status   *string    `json:"status"`
	Notes    *string    `json:"notes"`
}

func (h *PlannerHandler) UpdateEntry(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid plan id"})
		return
	}
	var req planUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	update := service.PlanUpdate{
		MealType: req.MealType,
		RecipeID: req.RecipeID,
		Status:   req.Status,
		Notes:    req.Notes,
	}
	if req.Date != nil {
		date, err := parseDate(*req.Date)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid date, expected YYYY-MM-DD"})
			return
		}
		update.Date = &date
	}

	plan, err := h.planner.UpdateEntry(c.Request.Context(), id, update)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrPlanNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "Plan entry not found"})
		case errors.Is(err, service.ErrRecipeNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "Recipe not found"})
		default:
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		}
		return
	}
	c.JSON(http.StatusOK, plan)
}

func (h *PlannerHandler) DeleteEntry(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid plan id"})
		return
	}
	if err := h.planner.DeleteEntry(c.Request.Context(), id); err != nil {
		if errors.Is(err, service.ErrPlanNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Plan entry not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete plan entry"})
		return
	}
	c.Status(http.StatusNoContent)
}

type suggestRequest struct {
	WeekStart      string   `json:"week_start" binding:"required"`
	AvailableDates []string `json:"available_dates" binding:"required"`
	Context        string   `json:"context"`
}

func (h *PlannerHandler) Suggest(c *gin.Context) {
	var req suggestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	weekStart, err := parseDate(req.WeekStart)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid week_start, expected YYYY-MM-DD"})
		return
	}
	dates := make([]time.Time, 0, len(req.AvailableDates))
	for _, raw := range req.AvailableDates {
		date, err := parseDate(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid available date, expected YYYY-MM-DD"})
			return
		}
		dates = append(dates, date)
	}

	suggestions, err := h.suggest.Suggest(c.Request.Context(), weekStart, dates, req.Context)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to suggest meals"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"suggestions": suggestions})
}

type calendarEventRequest struct {
	Date             string `json:"date" binding:"required"`
	StartTime        string `json:"start_time"`
	EndTime          string `json:"end_time"`
	Summary          string `json:"summary" binding:"required"`
	IsDinnerConflict bool   `json:"is_dinner_conflict"`
}

func (h *PlannerHandler) AddCalendarEvent(c *gin.Context) {
	var req calendarEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	date, err := parseDate(req.Date)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid date, expected YYYY-MM-DD"})
		return
	}

	event, err := h.planner.AddCalendarEvent(c.Request.Context(), date, req.StartTime, req.EndTime, req.Summary, req.IsDinnerConflict)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create calendar event"})
		return
	}
	c.JSON(http.StatusCreated, event)
}

func (h *PlannerHandler) DeleteCalendarEvent(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid event id"})
		return
	}
	if err := h.planner.DeleteCalendarEvent(c.Request.Context(), id); err != nil {
		if errors.Is(err, service.ErrEventNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Event not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete event"})
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *PlannerHandler) rangeParams(c *gin.Context) (time.Time, time.Time, bool) {
	start, err := parseDate(c.Query("start"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid start date, expected YYYY-MM-DD"})
		return time.Time{}, time.Time{}, false
	}
	end, err := parseDate(c.Query("end"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid end date, expected YYYY-MM-DD"})
		return time.Time{}, time.Time{}, false
	}
	return start, end, true
}

func (h *PlannerHandler) Availability(c *gin.Context) {
	start, end, ok := h.rangeParams(c)
	if !ok {
		return
	}
	availability, err := h.planner.Availability(c.Request.Context(), start, end)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load availability"})
		return
	}
	c.JSON(http.StatusOK, availability)
}

func (h *PlannerHandler) HAEvents(c *gin.Context) {
	start, end, ok := h.rangeParams(c)
	if !ok {
		return
	}
	events, conflicts, err := h.planner.HAEvents(c.Request.Context(), start, end)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "Failed to fetch Home Assistant events"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"events":           events,
		"total":            len(events),
		"dinner_conflicts": conflicts,
	})
}
