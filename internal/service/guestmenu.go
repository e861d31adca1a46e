package service

import (
	"context"
	"crypto/md5"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/forkcast/backend/internal/models"
)

// Guest menu service errors.
var (
	ErrMenuNotFound    = errors.New("guest menu not found")
	ErrMenuInactive    = errors.New("guest menu is no longer active")
	ErrSlugTaken       = errors.New("slug is already taken")
	ErrInvalidSlug     = errors.New("slug must be between 3 and 100 characters")
	ErrRecipeNotOnMenu = errors.New("recipe is not on this menu")
	ErrNoPhotoStorage  = errors.New("photo storage is not configured")
)

var slugCleanRe = regexp.MustCompile(`[^a-z0-9]+`)

// GuestMenuService manages shareable menu pages, guest voting, page-view
// tracking and guest photo uploads.
type GuestMenuService struct {
	db     *gorm.DB
	llm    LLMClient
	images *ImageService
	logger *zap.Logger
}

// NewGuestMenuService creates a guest menu service. The LLM and image service
// are optional: without the LLM, menus are created without a visual theme;
// without image storage, photo uploads are rejected.
func NewGuestMenuService(db *gorm.DB, llm LLMClient, images *ImageService, logger *zap.Logger) *GuestMenuService {
	return &GuestMenuService{db: db, llm: llm, images: images, logger: logger}
}

// MenuItemInput describes one course entry when creating or updating a menu.
type MenuItemInput struct {
	RecipeID uuid.UUID `json:"recipe_id"`
	Course   string    `json:"course"`
	Subtext  string    `json:"subtext"`
}

// VoteTally is the per-item result of a menu's voting.
type VoteTally struct {
	ItemID      uuid.UUID `json:"item_id"`
	RecipeID    uuid.UUID `json:"recipe_id"`
	RecipeTitle string    `json:"recipe_title"`
	VoteCount   int       `json:"vote_count"`
	Voters      []string  `json:"voters"`
}

// MenuResults is the full voting summary for a menu.
type MenuResults struct {
	MenuID      uuid.UUID   `json:"menu_id"`
	Title       string      `json:"title"`
	TotalGuests int         `json:"total_guests"`
	Tally       []VoteTally `json:"tally"`
}

// NormalizeSlug converts arbitrary text into a URL-friendly slug.
func NormalizeSlug(text string) string {
	slug := slugCleanRe.ReplaceAllString(strings.ToLower(strings.TrimSpace(text)), "-")
	return strings.Trim(slug, "-")
}

func validateSlug(text string) (string, error) {
	slug := NormalizeSlug(text)
	if len(slug) < 3 || len(slug) > 100 {
		return "", ErrInvalidSlug
	}
	return slug, nil
}

// Create builds a menu from a title, optional custom slug and course items.
// The slug defaults to the slugified title. Theme generation runs before the
// menu is saved but never blocks it: an LLM failure leaves the theme empty.
func (s *GuestMenuService) Create(ctx context.Context, title, slug, description, themePrompt string, eventDate *time.Time, items []MenuItemInput) (*models.GuestMenu, error) {
	if slug == "" {
		slug = title
	}
	normalized, err := validateSlug(slug)
	if err != nil {
		return nil, err
	}

	var existing int64
	err = s.db.WithContext(ctx).Model(&models.GuestMenu{}).
		Where("slug = ?", normalized).
		Count(&existing).Error
	if err != nil {
		return nil, fmt.Errorf("failed to check slug: %w", err)
	}
	if existing > 0 {
		return nil, ErrSlugTaken
	}

	if err := s.validateRecipes(ctx, items); err != nil {
		return nil, err
	}

	menu := &models.GuestMenu{
		Slug:        normalized,
		Title:       title,
		Description: description,
		EventDate:   eventDate,
		Active:      true,
		ThemePrompt: themePrompt,
		Theme:       s.generateTheme(ctx, title, themePrompt, s.recipeTitles(ctx, items)),
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(menu).Error; err != nil {
			return fmt.Errorf("failed to create menu: %w", err)
		}
		for i, item := range items {
			mi := &models.GuestMenuItem{
				MenuID:    menu.ID,
				RecipeID:  item.RecipeID,
				Course:    item.Course,
				Subtext:   item.Subtext,
				SortOrder: i,
			}
			if err := tx.Create(mi).Error; err != nil {
				return fmt.Errorf("failed to create menu item: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("guest menu created",
		zap.String("title", title), zap.String("slug", normalized),
		zap.Int("items", len(items)))
	return s.Get(ctx, menu.ID)
}

func (s *GuestMenuService) validateRecipes(ctx context.Context, items []MenuItemInput) error {
	if len(items) == 0 {
		return fmt.Errorf("at least 1 recipe is required")
	}
	ids := make([]uuid.UUID, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.RecipeID)
	}
	var count int64
	err := s.db.WithContext(ctx).Model(&models.Recipe{}).
		Where("id IN ?", ids).
		Count(&count).Error
	if err != nil {
		return fmt.Errorf("failed to validate recipes: %w", err)
	}
	if int(count) != len(uniqueIDs(ids)) {
		return ErrRecipeNotFound
	}
	return nil
}

// recipeTitles resolves the display titles for the recipes on a menu. A
// lookup failure just means fewer titles in the theme prompt.
func (s *GuestMenuService) recipeTitles(ctx context.Context, items []MenuItemInput) []string {
	ids := make([]uuid.UUID, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.RecipeID)
	}
	var titles []string
	if err := s.db.WithContext(ctx).Model(&models.Recipe{}).
		Where("id IN ?", ids).
		Pluck("title", &titles).Error; err != nil {
		s.logger.Warn("failed to load recipe titles", zap.Error(err))
	}
	return titles
}

// Get loads a menu with its items by ID.
func (s *GuestMenuService) Get(ctx context.Context, menuID uuid.UUID) (*models.GuestMenu, error) {
	var menu models.GuestMenu
	err := s.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("sort_order") }).
		First(&menu, "id = ?", menuID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrMenuNotFound
		}
		return nil, fmt.Errorf("failed to load menu: %w", err)
	}
	return &menu, nil
}

// GetBySlug loads an active menu for the public page. Inactive menus return
// ErrMenuInactive so the handler can answer 410 Gone.
func (s *GuestMenuService) GetBySlug(ctx context.Context, slug string) (*models.GuestMenu, error) {
	var menu models.GuestMenu
	err := s.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("sort_order") }).
		First(&menu, "slug = ?", NormalizeSlug(slug)).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrMenuNotFound
		}
		return nil, fmt.Errorf("failed to load menu: %w", err)
	}
	if !menu.Active {
		return nil, ErrMenuInactive
	}
	return &menu, nil
}

// List returns all menus, newest first.
func (s *GuestMenuService) List(ctx context.Context) ([]models.GuestMenu, error) {
	var menus []models.GuestMenu
	err := s.db.WithContext(ctx).
		Preload("Items").
		Order("created_at DESC").
		Find(&menus).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list menus: %w", err)
	}
	return menus, nil
}

// SlugAvailable reports whether a slug is free, along with its normalized
// form.
func (s *GuestMenuService) SlugAvailable(ctx context.Context, slug string) (bool, string, error) {
	normalized := NormalizeSlug(slug)
	var count int64
	err := s.db.WithContext(ctx).Model(&models.GuestMenu{}).
		Where("slug = ?", normalized).
		Count(&count).Error
	if err != nil {
		return false, normalized, fmt.Errorf("failed to check slug: %w", err)
	}
	return count == 0, normalized, nil
}

// MenuUpdate carries optional field changes for a menu.
type MenuUpdate struct {
	Title       *string          `json:"title"`
	Slug        *string          `json:"slug"`
	Description *string          `json:"description"`
	EventDate   *time.Time       `json:"event_date"`
	Active      *bool            `json:"active"`
	Items       *[]MenuItemInput `json:"items"`
}

// Update applies partial changes. Replacing items preserves nothing from the
// previous list.
func (s *GuestMenuService) Update(ctx context.Context, menuID uuid.UUID, update MenuUpdate) (*models.GuestMenu, error) {
	menu, err := s.Get(ctx, menuID)
	if err != nil {
		return nil, err
	}

	changes := map[string]any{}
	if update.Title != nil {
		changes["title"] = *update.Title
	}
	if update.Slug != nil {
		normalized, err := validateSlug(*update.Slug)
		if err != nil {
			return nil, err
		}
		if normalized != menu.Slug {
			var count int64
			err := s.db.WithContext(ctx).Model(&models.GuestMenu{}).
				Where("slug = ?", normalized).
				Count(&count).Error
			if err != nil {
				return nil, fmt.Errorf("failed to check slug: %w", err)
			}
			if count > 0 {
				return nil, ErrSlugTaken
			}
			changes["slug"] = normalized
		}
	}
	if update.Description != nil {
		changes["description"] = *update.Description
	}
	if update.EventDate != nil {
		changes["event_date"] = *update.EventDate
	}
	if update.Active != nil {
		changes["active"] = *update.Active
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if len(changes) > 0 {
			if err := tx.Model(menu).Updates(changes).Error; err != nil {
				return fmt.Errorf("failed to update menu: %w", err)
			}
		}
		if update.Items != nil {
			if err := s.validateRecipes(ctx, *update.Items); err != nil {
				return err
			}
			if err := tx.Where("menu_id = ?", menuID).Delete(&models.GuestMenuItem{}).Error; err != nil {
				return fmt.Errorf("failed to clear menu items: %w", err)
			}
			for i, item := range *update.Items {
				mi := &models.GuestMenuItem{
					MenuID:    menuID,
					RecipeID:  item.RecipeID,
					Course:    item.Course,
					Subtext:   item.Subtext,
					SortOrder: i,
				}
				if err := tx.Create(mi).Error; err != nil {
					return fmt.Errorf("failed to create menu item: %w", err)
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, menuID)
}

// Delete removes a menu with its items, votes, views and photos.
func (s *GuestMenuService) Delete(ctx context.Context, menuID uuid.UUID) error {
	menu, err := s.Get(ctx, menuID)
	if err != nil {
		return err
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, related := range []any{&models.GuestVote{}, &models.MenuView{}, &models.MenuPhoto{}, &models.GuestMenuItem{}} {
			if err := tx.Where("menu_id = ?", menuID).Delete(related).Error; err != nil {
				return err
			}
		}
		return tx.Delete(menu).Error
	})
	if err != nil {
		return fmt.Errorf("failed to delete menu: %w", err)
	}
	s.logger.Info("guest menu deleted", zap.String("title", menu.Title))
	return nil
}

// Vote records a guest's picks, replacing any previous votes under the same
// name so returning guests can change their mind.
func (s *GuestMenuService) Vote(ctx context.Context, slug, voterName string, itemIDs []uuid.UUID) error {
	menu, err := s.GetBySlug(ctx, slug)
	if err != nil {
		return err
	}

	voterName = strings.TrimSpace(voterName)
	if voterName == "" {
		return fmt.Errorf("voter name is required")
	}

	valid := map[uuid.UUID]bool{}
	for _, item := range menu.Items {
		valid[item.ID] = true
	}
	for _, id := range itemIDs {
		if !valid[id] {
			return fmt.Errorf("item %s is not on this menu", id)
		}
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Where("menu_id = ? AND voter_name = ?", menu.ID, voterName).
			Delete(&models.GuestVote{}).Error
		if err != nil {
			return fmt.Errorf("failed to clear previous votes: %w", err)
		}
		for _, itemID := range itemIDs {
			vote := &models.GuestVote{
				MenuID:    menu.ID,
				ItemID:    itemID,
				VoterName: voterName,
				Vote:      "yes",
			}
			if err := tx.Create(vote).Error; err != nil {
				return fmt.Errorf("failed to record vote: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.Info("guest voted",
		zap.String("menu", menu.Title),
		zap.String("guest", voterName),
		zap.Int("votes", len(itemIDs)))
	return nil
}

// VotesFor returns a guest's current item picks, for pre-selecting on a
// return visit.
func (s *GuestMenuService) VotesFor(ctx context.Context, slug, voterName string) ([]uuid.UUID, error) {
	var menu models.GuestMenu
	err := s.db.WithContext(ctx).First(&menu, "slug = ?", NormalizeSlug(slug)).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrMenuNotFound
		}
		return nil, fmt.Errorf("failed to load menu: %w", err)
	}

	var votes []models.GuestVote
	err = s.db.WithContext(ctx).
		Where("menu_id = ? AND voter_name = ?", menu.ID, strings.TrimSpace(voterName)).
		Find(&votes).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load votes: %w", err)
	}
	ids := make([]uuid.UUID, 0, len(votes))
	for _, v := range votes {
		ids = append(ids, v.ItemID)
	}
	return ids, nil
}

// Results tallies votes per menu item, most popular first.
func (s *GuestMenuService) Results(ctx context.Context, menuID uuid.UUID) (*MenuResults, error) {
	menu, err := s.Get(ctx, menuID)
	if err != nil {
		return nil, err
	}

	results := &MenuResults{MenuID: menu.ID, Title: menu.Title}
	guests := map[string]bool{}
	for _, item := range menu.Items {
		var votes []models.GuestVote
		err := s.db.WithContext(ctx).
			Where("menu_id = ? AND item_id = ?", menuID, item.ID).
			Find(&votes).Error
		if err != nil {
			return nil, fmt.Errorf("failed to load votes: %w", err)
		}

		var recipe models.Recipe
		title := ""
		if err := s.db.WithContext(ctx).First(&recipe, "id = ?", item.RecipeID).Error; err == nil {
			title = recipe.Title
		}

		voters := make([]string, 0, len(votes))
		for _, v := range votes {
			voters = append(voters, v.VoterName)
			guests[v.VoterName] = true
		}
		results.Tally = append(results.Tally, VoteTally{
			ItemID:      item.ID,
			RecipeID:    item.RecipeID,
			RecipeTitle: title,
			VoteCount:   len(votes),
			Voters:      voters,
		})
	}
	sort.Slice(results.Tally, func(i, j int) bool {
		return results.Tally[i].VoteCount > results.Tally[j].VoteCount
	})
	results.TotalGuests = len(guests)
	return results, nil
}

// RecordView logs a public page view. Tracking never fails the page: an
// unknown slug is dropped silently so the client can fire and forget.
func (s *GuestMenuService) RecordView(ctx context.Context, slug, ip, userAgent, referrer string) error {
	var menu models.GuestMenu
	err := s.db.WithContext(ctx).Select("id").First(&menu, "slug = ?", NormalizeSlug(slug)).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		return fmt.Errorf("failed to load menu: %w", err)
	}

	view := &models.MenuView{
		MenuID:    menu.ID,
		IPAddress: ip,
		UserAgent: clip(userAgent, 500),
		Referrer:  clip(referrer, 500),
	}
	if err := s.db.WithContext(ctx).Create(view).Error; err != nil {
		return fmt.Errorf("failed to record view: %w", err)
	}
	return nil
}

// MenuViewStats is the host-facing view summary for a menu.
type MenuViewStats struct {
	MenuID         uuid.UUID         `json:"menu_id"`
	TotalViews     int64             `json:"total_views"`
	UniqueVisitors int64             `json:"unique_visitors"`
	Views          []models.MenuView `json:"views"`
}

// Views returns the view counts and the 50 most recent visits for a menu.
// Unique visitors counts distinct non-empty IP addresses.
func (s *GuestMenuService) Views(ctx context.Context, menuID uuid.UUID) (*MenuViewStats, error) {
	if _, err := s.Get(ctx, menuID); err != nil {
		return nil, err
	}

	stats := &MenuViewStats{MenuID: menuID, Views: []models.MenuView{}}
	err := s.db.WithContext(ctx).Model(&models.MenuView{}).
		Where("menu_id = ?", menuID).
		Count(&stats.TotalViews).Error
	if err != nil {
		return nil, fmt.Errorf("failed to count views: %w", err)
	}
	err = s.db.WithContext(ctx).Model(&models.MenuView{}).
		Where("menu_id = ? AND ip_address <> ''", menuID).
		Distinct("ip_address").
		Count(&stats.UniqueVisitors).Error
	if err != nil {
		return nil, fmt.Errorf("failed to count visitors: %w", err)
	}
	err = s.db.WithContext(ctx).
		Where("menu_id = ?", menuID).
		Order("viewed_at DESC").
		Limit(50).
		Find(&stats.Views).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load views: %w", err)
	}
	return stats, nil
}

// AddPhoto stores a guest's photo of one dish. The recipe must be on the
// menu; the menu stays reachable for uploads even after voting closes.
func (s *GuestMenuService) AddPhoto(ctx context.Context, slug string, recipeID uuid.UUID, guestName, caption, contentType string, data []byte) (*models.MenuPhoto, error) {
	if s.images == nil {
		return nil, ErrNoPhotoStorage
	}

	var menu models.GuestMenu
	err := s.db.WithContext(ctx).
		Preload("Items").
		First(&menu, "slug = ?", NormalizeSlug(slug)).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrMenuNotFound
		}
		return nil, fmt.Errorf("failed to load menu: %w", err)
	}

	onMenu := false
	for _, item := range menu.Items {
		if item.RecipeID == recipeID {
			onMenu = true
			break
		}
	}
	if !onMenu {
		return nil, ErrRecipeNotOnMenu
	}

	// Content-addressed filename so re-uploads of the same shot dedupe.
	hash := md5.Sum(data)
	filename := fmt.Sprintf("guest_%s_%s_%x%s", menu.ID, recipeID, hash[:6], extensionFor(contentType))
	url, err := s.images.Store(ctx, data, filename, contentType)
	if err != nil {
		return nil, fmt.Errorf("failed to store photo: %w", err)
	}

	photo := &models.MenuPhoto{
		MenuID:    menu.ID,
		RecipeID:  recipeID,
		GuestName: clip(strings.TrimSpace(guestName), 100),
		Caption:   clip(strings.TrimSpace(caption), 300),
		URL:       url,
	}
	if err := s.db.WithContext(ctx).Create(photo).Error; err != nil {
		return nil, fmt.Errorf("failed to save photo: %w", err)
	}

	s.logger.Info("guest photo uploaded",
		zap.String("menu", menu.Slug),
		zap.String("guest", photo.GuestName),
		zap.Int("bytes", len(data)))
	return photo, nil
}

// PublicPhotos returns all photos guests have uploaded for a menu, newest
// first.
func (s *GuestMenuService) PublicPhotos(ctx context.Context, slug string) ([]models.MenuPhoto, error) {
	var menu models.GuestMenu
	err := s.db.WithContext(ctx).Select("id").First(&menu, "slug = ?", NormalizeSlug(slug)).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrMenuNotFound
		}
		return nil, fmt.Errorf("failed to load menu: %w", err)
	}
	return s.photosFor(ctx, menu.ID)
}

func (s *GuestMenuService) photosFor(ctx context.Context, menuID uuid.UUID) ([]models.MenuPhoto, error) {
	photos := []models.MenuPhoto{}
	err := s.db.WithContext(ctx).
		Where("menu_id = ?", menuID).
		Order("created_at DESC").
		Find(&photos).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load photos: %w", err)
	}
	return photos, nil
}

// MenuPhotoDetail is the host view of one guest photo, with the dish name.
type MenuPhotoDetail struct {
	models.MenuPhoto
	RecipeTitle string `json:"recipe_title"`
}

// MenuPhotos returns all photos for a menu with their recipe titles.
func (s *GuestMenuService) MenuPhotos(ctx context.Context, menuID uuid.UUID) ([]MenuPhotoDetail, error) {
	if _, err := s.Get(ctx, menuID); err != nil {
		return nil, err
	}
	photos, err := s.photosFor(ctx, menuID)
	if err != nil {
		return nil, err
	}

	details := make([]MenuPhotoDetail, 0, len(photos))
	for _, photo := range photos {
		detail := MenuPhotoDetail{MenuPhoto: photo}
		var recipe models.Recipe
		if err := s.db.WithContext(ctx).Select("title").First(&recipe, "id = ?", photo.RecipeID).Error; err == nil {
			detail.RecipeTitle = recipe.Title
		}
		details = append(details, detail)
	}
	return details, nil
}

func clip(text string, max int) string {
	if len(text) > max {
		return text[:max]
	}
	return text
}

func uniqueIDs(ids []uuid.UUID) []uuid.UUID {
	seen := map[uuid.UUID]bool{}
	out := ids[:0]
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}
