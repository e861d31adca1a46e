package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/forkcast/backend/internal/models"
	"github.com/forkcast/backend/internal/service"
)

type RulesHandler struct {
	rules *service.RulesService
	llm   service.LLMClient
}

func NewRulesHandler(rules *service.RulesService, llm service.LLMClient) *RulesHandler {
	return &RulesHandler{rules: rules, llm: llm}
}

func (h *RulesHandler) RegisterRoutes(router *gin.RouterGroup) {
	rules := router.Group("/rules")
	{
		rules.GET("", h.ListRules)
		rules.POST("", h.CreateRule)
		rules.PUT("/:id", h.UpdateRule)
		rules.DELETE("/:id", h.DeleteRule)
		rules.POST("/parse", h.ParseRule)
		rules.POST("/evaluate", h.Evaluate)
		rules.GET("/status", h.WeekStatus)
	}
}

func (h *RulesHandler) ListRules(c *gin.Context) {
	rules, err := h.rules.ListRules(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch rules"})
		return
	}
	c.JSON(http.StatusOK, rules)
}

type ruleCreateRequest struct {
	Name     string         `json:"name" binding:"required"`
	RuleType string         `json:"rule_type" binding:"required"`
	Config   models.JSONMap `json:"config"`
}

func (h *RulesHandler) CreateRule(c *gin.Context) {
	var req ruleCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	rule, err := h.rules.CreateRule(c.Request.Context(), req.Name, req.RuleType, req.Config)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, rule)
}

func (h *RulesHandler) UpdateRule(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid rule id"})
		return
	}
	var update service.RuleUpdate
	if err := c.ShouldBindJSON(&update); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	rule, err := h.rules.UpdateRule(c.Request.Context(), id, update)
	if err != nil {
		if errors.Is(err, service.ErrRuleNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Rule not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update rule"})
		return
	}
	c.JSON(http.StatusOK, rule)
}

func (h *RulesHandler) DeleteRule(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid rule id"})
		return
	}
	if err := h.rules.DeleteRule(c.Request.Context(), id); err != nil {
		if errors.Is(err, service.ErrRuleNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Rule not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete rule"})
		return
	}
	c.Status(http.StatusNoContent)
}

type ruleParseRequest struct {
	Text string `json:"text" binding:"required"`
}

func (h *RulesHandler) ParseRule(c *gin.Context) {
	var req ruleParseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	parsed, err := h.rules.ParseNaturalLanguage(c.Request.Context(), h.llm, req.Text)
	if err != nil {
		if errors.Is(err, service.ErrAIUnavailable) {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "AI not configured"})
			return
		}
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "AI returned an invalid response. Try rephrasing your rule."})
		return
	}
	c.JSON(http.StatusOK, parsed)
}

func (h *RulesHandler) Evaluate(c *gin.Context) {
	recipeID, err := uuid.Parse(c.Query("recipe_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid recipe_id"})
		return
	}
	planDate, err := parseDate(c.Query("plan_date"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid plan_date, expected YYYY-MM-DD"})
		return
	}
	evals, err := h.rules.Evaluate(c.Request.Context(), planDate, recipeID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to evaluate rules"})
		return
	}
	c.JSON(http.StatusOK, evals)
}

func (h *RulesHandler) WeekStatus(c *gin.Context) {
	start := service.WeekStartFor(time.Now().UTC())
	if raw := c.Query("week_start"); raw != "" {
		parsed, err := parseDate(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid week_start, expected YYYY-MM-DD"})
			return
		}
		start = parsed
	}
	statuses, err := h.rules.WeekStatus(c.Request.Context(), start)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load rule status"})
		return
	}
	c.JSON(http.StatusOK, statuses)
}
