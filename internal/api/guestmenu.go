package api

import (
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/forkcast/backend/internal/service"
)

type GuestMenuHandler struct {
	menus *service.GuestMenuService
}

func NewGuestMenuHandler(menus *service.GuestMenuService) *GuestMenuHandler {
	return &GuestMenuHandler{menus: menus}
}

func (h *GuestMenuHandler) RegisterRoutes(router *gin.RouterGroup) {
	menus := router.Group("/guest-menus")
	{
		menus.POST("", h.CreateMenu)
		menus.GET("", h.ListMenus)
		menus.GET("/check-slug/:slug", h.CheckSlug)
		menus.GET("/:id", h.GetMenu)
		menus.PUT("/:id", h.UpdateMenu)
		menus.DELETE("/:id", h.DeleteMenu)
		menus.GET("/:id/results", h.Results)
		menus.POST("/:id/regenerate-theme", h.RegenerateTheme)
		menus.GET("/:id/views", h.Views)
		menus.GET("/:id/photos", h.MenuPhotos)

		public := menus.Group("/public")
		{
			public.GET("/:slug", h.PublicMenu)
			public.POST("/:slug/vote", h.Vote)
			public.GET("/:slug/votes/:guest", h.GuestVotes)
			public.POST("/:slug/view", h.RecordView)
			public.POST("/:slug/photos", h.UploadPhoto)
			public.GET("/:slug/photos", h.PublicPhotos)
		}
	}
}

type menuCreateRequest struct {
	Title       string                  `json:"title" binding:"required"`
	Slug        string                  `json:"slug"`
	Description string                  `json:"description"`
	ThemePrompt string                  `json:"theme_prompt"`
	EventDate   string                  `json:"event_date"`
	Items       []service.MenuItemInput `json:"items" binding:"required"`
}

func (h *GuestMenuHandler) CreateMenu(c *gin.Context) {
	var req menuCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var eventDate *time.Time
	if req.EventDate != "" {
		parsed, err := parseDate(req.EventDate)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid event_date, expected YYYY-MM-DD"})
			return
		}
		eventDate = &parsed
	}

	menu, err := h.menus.Create(c.Request.Context(), req.Title, req.Slug, req.Description, req.ThemePrompt, eventDate, req.Items)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrSlugTaken):
			c.JSON(http.StatusConflict, gin.H{"error": "This link name is already taken"})
		case errors.Is(err, service.ErrInvalidSlug):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case errors.Is(err, service.ErrRecipeNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "One or more recipes not found"})
		default:
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		}
		return
	}
	c.JSON(http.StatusCreated, menu)
}

func (h *GuestMenuHandler) ListMenus(c *gin.Context) {
	menus, err := h.menus.List(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch menus"})
		return
	}
	c.JSON(http.StatusOK, menus)
}

func (h *GuestMenuHandler) CheckSlug(c *gin.Context) {
	available, normalized, err := h.menus.SlugAvailable(c.Request.Context(), c.Param("slug"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to check slug"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"available": available, "slug": normalized})
}

func (h *GuestMenuHandler) menuID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid menu id"})
		return uuid.Nil, false
	}
	return id, true
}

func (h *GuestMenuHandler) GetMenu(c *gin.Context) {
	id, ok := h.menuID(c)
	if !ok {
		return
	}
	menu, err := h.menus.Get(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, service.ErrMenuNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Menu not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch menu"})
		return
	}
	c.JSON(http.StatusOK, menu)
}

type menuUpdateRequest struct {
	Title       *string                  `json:"title"`
	Slug        *string                  `json:"slug"`
	Description *string                  `json:"description"`
	EventDate   *string                  `json:"event_date"`
	Active      *bool                    `json:"active"`
	Items       *[]service.MenuItemInput `json:"items"`
}

func (h *GuestMenuHandler) UpdateMenu(c *gin.Context) {
	id, ok := h.menuID(c)
	if !ok {
		return
	}
	var req menuUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	update := service.MenuUpdate{
		Title:       req.Title,
		Slug:        req.Slug,
		Description: req.Description,
		Active:      req.Active,
		Items:       req.Items,
	}
	if req.EventDate != nil {
		parsed, err := parseDate(*req.EventDate)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid event_date, expected YYYY-MM-DD"})
			return
		}
		update.EventDate = &parsed
	}

	menu, err := h.menus.Update(c.Request.Context(), id, update)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrMenuNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "Menu not found"})
		case errors.Is(err, service.ErrSlugTaken):
			c.JSON(http.StatusConflict, gin.H{"error": "This link name is already taken"})
		case errors.Is(err, service.ErrInvalidSlug):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		}
		return
	}
	c.JSON(http.StatusOK, menu)
}

func (h *GuestMenuHandler) DeleteMenu(c *gin.Context) {
	id, ok := h.menuID(c)
	if !ok {
		return
	}
	if err := h.menus.Delete(c.Request.Context(), id); err != nil {
		if errors.Is(err, service.ErrMenuNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Menu not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete menu"})
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *GuestMenuHandler) Results(c *gin.Context) {
	id, ok := h.menuID(c)
	if !ok {
		return
	}
	results, err := h.menus.Results(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, service.ErrMenuNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Menu not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load results"})
		return
	}
	c.JSON(http.StatusOK, results)
}

func (h *GuestMenuHandler) PublicMenu(c *gin.Context) {
	menu, err := h.menus.GetBySlug(c.Request.Context(), c.Param("slug"))
	if err != nil {
		switch {
		case errors.Is(err, service.ErrMenuNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "Menu not found"})
		case errors.Is(err, service.ErrMenuInactive):
			c.JSON(http.StatusGone, gin.H{"error": "This menu is no longer available"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch menu"})
		}
		return
	}
	c.JSON(http.StatusOK, menu)
}

type voteRequest struct {
	VoterName string      `json:"voter_name" binding:"required"`
	ItemIDs   []uuid.UUID `json:"item_ids" binding:"required"`
}

func (h *GuestMenuHandler) Vote(c *gin.Context) {
	var req voteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	err := h.menus.Vote(c.Request.Context(), c.Param("slug"), req.VoterName, req.ItemIDs)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrMenuNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "Menu not found"})
		case errors.Is(err, service.ErrMenuInactive):
			c.JSON(http.StatusGone, gin.H{"error": "This menu is no longer available"})
		default:
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{"recorded": len(req.ItemIDs)})
}

func (h *GuestMenuHandler) GuestVotes(c *gin.Context) {
	itemIDs, err := h.menus.VotesFor(c.Request.Context(), c.Param("slug"), c.Param("guest"))
	if err != nil {
		if errors.Is(err, service.ErrMenuNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Menu not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch votes"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"item_ids": itemIDs})
}

func (h *GuestMenuHandler) RegenerateTheme(c *gin.Context) {
	id, ok := h.menuID(c)
	if !ok {
		return
	}
	var newPrompt *string
	if prompt, set := c.GetQuery("new_prompt"); set {
		newPrompt = &prompt
	}
	menu, err := h.menus.RegenerateTheme(c.Request.Context(), id, newPrompt)
	if err != nil {
		if errors.Is(err, service.ErrMenuNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Menu not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to regenerate theme"})
		return
	}
	c.JSON(http.StatusOK, menu)
}

// RecordView is fire-and-forget from the public page, so it answers ok even
// for slugs that do not exist.
func (h *GuestMenuHandler) RecordView(c *gin.Context) {
	ip := c.ClientIP()
	if forwarded := c.GetHeader("X-Forwarded-For"); forwarded != "" {
		ip = strings.TrimSpace(strings.Split(forwarded, ",")[0])
	}
	err := h.menus.RecordView(c.Request.Context(), c.Param("slug"), ip,
		c.GetHeader("User-Agent"), c.GetHeader("Referer"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to record view"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (h *GuestMenuHandler) Views(c *gin.Context) {
	id, ok := h.menuID(c)
	if !ok {
		return
	}
	stats, err := h.menus.Views(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, service.ErrMenuNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Menu not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load views"})
		return
	}
	c.JSON(http.StatusOK, stats)
}

const maxPhotoBytes = 20 << 20

var allowedPhotoTypes = map[string]bool{
	"image/jpeg": true,
	"image/jpg":  true,
	"image/png":  true,
	"image/webp": true,
	"image/heic": true,
	"image/heif": true,
}

func (h *GuestMenuHandler) UploadPhoto(c *gin.Context) {
	recipeID, err := uuid.Parse(c.PostForm("recipe_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid recipe_id"})
		return
	}

	file, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "A photo file is required"})
		return
	}
	if file.Size > maxPhotoBytes {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Image too large. Max 20MB."})
		return
	}
	contentType := file.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "image/jpeg"
	}
	if !allowedPhotoTypes[contentType] {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unsupported image type: " + contentType})
		return
	}

	src, err := file.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read photo"})
		return
	}
	defer src.Close()
	data, err := io.ReadAll(io.LimitReader(src, maxPhotoBytes))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read photo"})
		return
	}

	photo, err := h.menus.AddPhoto(c.Request.Context(), c.Param("slug"), recipeID,
		c.PostForm("guest_name"), c.PostForm("caption"), contentType, data)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrMenuNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "Menu not found"})
		case errors.Is(err, service.ErrRecipeNotOnMenu):
			c.JSON(http.StatusBadRequest, gin.H{"error": "Recipe not on this menu"})
		case errors.Is(err, service.ErrNoPhotoStorage):
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Photo uploads are not configured"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save photo"})
		}
		return
	}
	c.JSON(http.StatusCreated, photo)
}

func (h *GuestMenuHandler) PublicPhotos(c *gin.Context) {
	photos, err := h.menus.PublicPhotos(c.Request.Context(), c.Param("slug"))
	if err != nil {
		if errors.Is(err, service.ErrMenuNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Menu not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load photos"})
		return
	}
	c.JSON(http.StatusOK, photos)
}

func (h *GuestMenuHandler) MenuPhotos(c *gin.Context) {
	id, ok := h.menuID(c)
	if !ok {
		return
	}
	photos, err := h.menus.MenuPhotos(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, service.ErrMenuNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Menu not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load photos"})
		return
	}
	c.JSON(http.StatusOK, photos)
}
