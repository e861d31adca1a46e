package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/forkcast/backend/internal/service"
)

type ShoppingHandler struct {
	shopping *service.ShoppingService
}

func NewShoppingHandler(shopping *service.ShoppingService) *ShoppingHandler {
	return &ShoppingHandler{shopping: shopping}
}

func (h *ShoppingHandler) RegisterRoutes(router *gin.RouterGroup) {
	shopping := router.Group("/shopping")
	{
		shopping.GET("/current", h.CurrentList)
		shopping.POST("/generate", h.Generate)
		shopping.GET("/:id", h.GetList)
		shopping.DELETE("/:id", h.DeleteList)
		shopping.PUT("/items/:id", h.UpdateItem)
		shopping.POST("/items", h.AddItem)
		shopping.GET("/pantry/staples", h.ListStaples)
		shopping.POST("/pantry/staples", h.AddStaple)
		shopping.DELETE("/pantry/staples/:id", h.RemoveStaple)
	}
}

func (h *ShoppingHandler) CurrentList(c *gin.Context) {
	lists, err := h.shopping.ListLists(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch shopping lists"})
		return
	}
	if len(lists) == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "No shopping lists yet"})
		return
	}
	c.JSON(http.StatusOK, lists[0])
}

type generateRequest struct {
	WeekOf string `json:"week_of"`
	Name   string `json:"name"`
}

func (h *ShoppingHandler) Generate(c *gin.Context) {
	var req generateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	weekOf := service.WeekStartFor(time.Now().UTC())
	if req.WeekOf != "" {
		parsed, err := parseDate(req.WeekOf)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid week_of, expected YYYY-MM-DD"})
			return
		}
		weekOf = parsed
	}

	list, err := h.shopping.Generate(c.Request.Context(), weekOf, req.Name)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate shopping list"})
		return
	}
	c.JSON(http.StatusCreated, list)
}

func (h *ShoppingHandler) GetList(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid list id"})
		return
	}
	list, err := h.shopping.GetList(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, service.ErrListNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Shopping list not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch shopping list"})
		return
	}
	c.JSON(http.StatusOK, list)
}

func (h *ShoppingHandler) DeleteList(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid list id"})
		return
	}
	if err := h.shopping.DeleteList(c.Request.Context(), id); err != nil {
		if errors.Is(err, service.ErrListNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Shopping list not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete shopping list"})
		return
	}
	c.Status(http.StatusNoContent)
}

type itemUpdateRequest struct {
	Checked bool       `json:"checked"`
	UserID  *uuid.UUID `json:"user_id"`
}

func (h *ShoppingHandler) UpdateItem(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid item id"})
		return
	}
	var req itemUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	item, err := h.shopping.CheckItem(c.Request.Context(), id, req.Checked, req.UserID)
	if err != nil {
		if errors.Is(err, service.ErrItemNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Item not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update item"})
		return
	}
	c.JSON(http.StatusOK, item)
}

type itemAddRequest struct {
	ListID   uuid.UUID `json:"list_id" binding:"required"`
	Name     string    `json:"name" binding:"required"`
	Quantity *float64  `json:"quantity"`
	Unit     string    `json:"unit"`
}

func (h *ShoppingHandler) AddItem(c *gin.Context) {
	var req itemAddRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	item, err := h.shopping.AddItem(c.Request.Context(), req.ListID, req.Name, req.Quantity, req.Unit)
	if err != nil {
		if errors.Is(err, service.ErrListNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Shopping list not found"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, item)
}

func (h *ShoppingHandler) ListStaples(c *gin.Context) {
	staples, err := h.shopping.ListStaples(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch staples"})
		return
	}
	c.JSON(http.StatusOK, staples)
}

type stapleRequest struct {
	Name     string `json:"name" binding:"required"`
	Category string `json:"category"`
}

func (h *ShoppingHandler) AddStaple(c *gin.Context) {
	var req stapleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	staple, err := h.shopping.AddStaple(c.Request.Context(), req.Name, req.Category)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, staple)
}

func (h *ShoppingHandler) RemoveStaple(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid staple id"})
		return
	}
	if err := h.shopping.RemoveStaple(c.Request.Context(), id); err != nil {
		if errors.Is(err, service.ErrItemNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Staple not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete staple"})
		return
	}
	c.Status(http.StatusNoContent)
}
