package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/forkcast/backend/internal/models"
)

// Recipe service errors.
var (
	ErrRecipeNotFound = errors.New("recipe not found")
	ErrRatingNotFound = errors.New("rating not found")
	ErrInvalidStars   = errors.New("stars must be between 1 and 5")
)

// RecipeFilter narrows List results. Zero values mean no filtering.
type RecipeFilter struct {
	Search          string
	Tag             string
	Cuisine         string
	Difficulty      string
	IncludeArchived bool
	Limit           int
	Offset          int
}

// RecipeSummary is the list-view shape: the recipe plus aggregates the card
// UI shows.
type RecipeSummary struct {
	models.Recipe
	AvgStars  float64  `json:"avg_stars"`
	TimesMade int      `json:"times_made"`
	TagNames  []string `json:"tag_names"`
}

// RecipeService owns the recipe library: CRUD, tagging and ratings.
type RecipeService struct {
	db     *gorm.DB
	taste  *TasteService
	logger *zap.Logger
}

// NewRecipeService creates a recipe service. taste may be nil in tests that
// don't exercise rating side effects.
func NewRecipeService(db *gorm.DB, taste *TasteService, logger *zap.Logger) *RecipeService {
	return &RecipeService{db: db, taste: taste, logger: logger}
}

// List returns recipes matching the filter, newest first.
func (s *RecipeService) List(ctx context.Context, filter RecipeFilter) ([]RecipeSummary, int64, error) {
	query := s.db.WithContext(ctx).Model(&models.Recipe{})
	if !filter.IncludeArchived {
		query = query.Where("archived = ?", false)
	}
	if filter.Search != "" {
		term := "%" + strings.ToLower(filter.Search) + "%"
		query = query.Where("LOWER(title) LIKE ? OR LOWER(description) LIKE ?", term, term)
	}
	if filter.Cuisine != "" {
		query = query.Where("LOWER(cuisine) = ?", strings.ToLower(filter.Cuisine))
	}
	if filter.Difficulty != "" {
		query = query.Where("difficulty = ?", filter.Difficulty)
	}
	if filter.Tag != "" {
		query = query.Where(
			"id IN (?)",
			s.db.Model(&models.RecipeTag{}).
				Select("recipe_tags.recipe_id").
				Joins("JOIN tags ON tags.id = recipe_tags.tag_id").
				Where("LOWER(tags.name) = ?", strings.ToLower(filter.Tag)),
		)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count recipes: %w", err)
	}

	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var recipes []models.Recipe
	err := query.Order("created_at DESC").Limit(limit).Offset(filter.Offset).Find(&recipes).Error
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list recipes: %w", err)
	}

	summaries := make([]RecipeSummary, 0, len(recipes))
	for _, r := range recipes {
		summary := RecipeSummary{Recipe: r}
		s.db.WithContext(ctx).Model(&models.Rating{}).
			Where("recipe_id = ?", r.ID).
			Select("COALESCE(AVG(stars), 0)").
			Scan(&summary.AvgStars)
		var cooked int64
		s.db.WithContext(ctx).Model(&models.CookingHistory{}).
			Where("recipe_id = ?", r.ID).
			Count(&cooked)
		summary.TimesMade = int(cooked)
		summary.TagNames, _ = s.tagNames(ctx, r.ID)
		summaries = append(summaries, summary)
	}
	return summaries, total, nil
}

func (s *RecipeService) tagNames(ctx context.Context, recipeID uuid.UUID) ([]string, error) {
	var names []string
	err := s.db.WithContext(ctx).Model(&models.Tag{}).
		Joins("JOIN recipe_tags ON recipe_tags.tag_id = tags.id").
		Where("recipe_tags.recipe_id = ?", recipeID).
		Order("tags.name").
		Pluck("tags.name", &names).Error
	return names, err
}

// Get loads a recipe with ingredients and steps.
func (s *RecipeService) Get(ctx context.Context, recipeID uuid.UUID) (*models.Recipe, error) {
	var recipe models.Recipe
	err := s.db.WithContext(ctx).
		Preload("Ingredients", func(db *gorm.DB) *gorm.DB { return db.Order("sort_order") }).
		Preload("Steps", func(db *gorm.DB) *gorm.DB { return db.Order("step_number") }).
		First(&recipe, "id = ?", recipeID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRecipeNotFound
		}
		return nil, fmt.Errorf("failed to load recipe: %w", err)
	}
	return &recipe, nil
}

// RecipeInput is the manual-entry shape for creating or replacing a recipe.
type RecipeInput struct {
	Title       string                `json:"title"`
	Description string                `json:"description"`
	SourceURL   string                `json:"source_url"`
	PrepTimeMin *int                  `json:"prep_time_min"`
	CookTimeMin *int                  `json:"cook_time_min"`
	Servings    int                   `json:"servings"`
	Cuisine     string                `json:"cuisine"`
	Difficulty  string                `json:"difficulty"`
	Notes       string                `json:"notes"`
	Ingredients []ExtractedIngredient `json:"ingredients"`
	Steps       []ExtractedStep       `json:"steps"`
	Tags        []string              `json:"tags"`
	CreatedBy   *uuid.UUID            `json:"created_by"`
}

// Create inserts a manually entered recipe with its lines, steps and tags.
func (s *RecipeService) Create(ctx context.Context, input RecipeInput) (*models.Recipe, error) {
	if strings.TrimSpace(input.Title) == "" {
		return nil, fmt.Errorf("title is required")
	}
	if input.Servings <= 0 {
		input.Servings = 4
	}
	if input.Difficulty == "" {
		input.Difficulty = models.DifficultyMedium
	}

	var totalTime *int
	if input.PrepTimeMin != nil || input.CookTimeMin != nil {
		total := 0
		if input.PrepTimeMin != nil {
			total += *input.PrepTimeMin
		}
		if input.CookTimeMin != nil {
			total += *input.CookTimeMin
		}
		totalTime = &total
	}

	recipe := &models.Recipe{
		Title:        strings.TrimSpace(input.Title),
		Description:  input.Description,
		SourceURL:    input.SourceURL,
		PrepTimeMin:  input.PrepTimeMin,
		CookTimeMin:  input.CookTimeMin,
		TotalTimeMin: totalTime,
		Servings:     input.Servings,
		Cuisine:      input.Cuisine,
		Difficulty:   input.Difficulty,
		Notes:        input.Notes,
		CreatedBy:    input.CreatedBy,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(recipe).Error; err != nil {
			return fmt.Errorf("failed to create recipe: %w", err)
		}
		if err := createRecipeLines(tx, recipe.ID, input.Ingredients, input.Steps); err != nil {
			return err
		}
		return attachTags(tx, recipe.ID, input.Tags)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("recipe created", zap.String("title", recipe.Title))
	return s.Get(ctx, recipe.ID)
}

func createRecipeLines(tx *gorm.DB, recipeID uuid.UUID, ingredients []ExtractedIngredient, steps []ExtractedStep) error {
	for i, ing := range ingredients {
		ri := &models.RecipeIngredient{
			RecipeID:    recipeID,
			RawText:     ing.RawText,
			Quantity:    ing.Quantity,
			Unit:        ing.Unit,
			Preparation: ing.Preparation,
			GroupName:   ing.Group,
			SortOrder:   i,
		}
		if name := strings.TrimSpace(ing.Name); name != "" {
			canonical, err := getOrCreateIngredient(tx, name, "other")
			if err != nil {
				return err
			}
			ri.IngredientID = &canonical.ID
		}
		if ri.RawText == "" {
			ri.RawText = ing.Name
		}
		if err := tx.Create(ri).Error; err != nil {
			return fmt.Errorf("failed to create ingredient line: %w", err)
		}
	}
	for i, step := range steps {
		rs := &models.RecipeStep{
			RecipeID:        recipeID,
			StepNumber:      i + 1,
			Instruction:     step.Instruction,
			DurationMinutes: step.DurationMinutes,
			TimerLabel:      step.TimerLabel,
		}
		if err := tx.Create(rs).Error; err != nil {
			return fmt.Errorf("failed to create step: %w", err)
		}
	}
	return nil
}

func attachTags(tx *gorm.DB, recipeID uuid.UUID, tags []string) error {
	for _, name := range tags {
		name = strings.TrimSpace(strings.ToLower(name))
		if name == "" {
			continue
		}
		tagType := models.TagTypeCustom
		if t, ok := tagTypeMap[name]; ok {
			tagType = t
		}
		tag, err := getOrCreateTag(tx, name, tagType)
		if err != nil {
			return err
		}
		link := &models.RecipeTag{RecipeID: recipeID, TagID: tag.ID}
		err = tx.Where("recipe_id = ? AND tag_id = ?", recipeID, tag.ID).
			FirstOrCreate(link).Error
		if err != nil {
			return fmt.Errorf("failed to attach tag: %w", err)
		}
	}
	return nil
}

// Update applies partial changes to a recipe's own fields. Passing
// ingredients, steps or tags replaces those collections wholesale.
func (s *RecipeService) Update(ctx context.Context, recipeID uuid.UUID, input RecipeInput, replaceLines, replaceTags bool) (*models.Recipe, error) {
	recipe, err := s.Get(ctx, recipeID)
	if err != nil {
		return nil, err
	}

	changes := map[string]any{}
	if strings.TrimSpace(input.Title) != "" {
		changes["title"] = strings.TrimSpace(input.Title)
	}
	if input.Description != "" {
		changes["description"] = input.Description
	}
	if input.SourceURL != "" {
		changes["source_url"] = input.SourceURL
	}
	if input.PrepTimeMin != nil {
		changes["prep_time_min"] = *input.PrepTimeMin
	}
	if input.CookTimeMin != nil {
		changes["cook_time_min"] = *input.CookTimeMin
	}
	if input.Servings > 0 {
		changes["servings"] = input.Servings
	}
	if input.Cuisine != "" {
		changes["cuisine"] = input.Cuisine
	}
	if input.Difficulty != "" {
		changes["difficulty"] = input.Difficulty
	}
	if input.Notes != "" {
		changes["notes"] = input.Notes
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if len(changes) > 0 {
			if err := tx.Model(recipe).Updates(changes).Error; err != nil {
				return fmt.Errorf("failed to update recipe: %w", err)
			}
		}
		if replaceLines {
			if err := tx.Where("recipe_id = ?", recipeID).Delete(&models.RecipeIngredient{}).Error; err != nil {
				return err
			}
			if err := tx.Where("recipe_id = ?", recipeID).Delete(&models.RecipeStep{}).Error; err != nil {
				return err
			}
			if err := createRecipeLines(tx, recipeID, input.Ingredients, input.Steps); err != nil {
				return err
			}
		}
		if replaceTags {
			if err := tx.Where("recipe_id = ?", recipeID).Delete(&models.RecipeTag{}).Error; err != nil {
				return err
			}
			if err := attachTags(tx, recipeID, input.Tags); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, recipeID)
}

// Archive soft-hides a recipe from the library, swipe pools and suggestions.
// Plan history and ratings stay intact.
func (s *RecipeService) Archive(ctx context.Context, recipeID uuid.UUID, archived bool) error {
	result := s.db.WithContext(ctx).Model(&models.Recipe{}).
		Where("id = ?", recipeID).
		Update("archived", archived)
	if result.Error != nil {
		return fmt.Errorf("failed to update recipe: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrRecipeNotFound
	}
	return nil
}

// Delete permanently removes a recipe and every row that points at it:
// ingredients, steps, tag links, ratings, plan entries, swipe state and guest
// menu items. Cooking history keeps its dates but loses the recipe reference.
func (s *RecipeService) Delete(ctx context.Context, recipeID uuid.UUID) error {
	if _, err := s.Get(ctx, recipeID); err != nil {
		return err
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		itemIDs := tx.Model(&models.GuestMenuItem{}).
			Select("id").Where("recipe_id = ?", recipeID)
		if err := tx.Where("item_id IN (?)", itemIDs).Delete(&models.GuestVote{}).Error; err != nil {
			return err
		}
		children := []any{
			&models.GuestMenuItem{},
			&models.SwipeMatch{},
			&models.SwipeCard{},
			&models.MealPlan{},
			&models.Rating{},
			&models.RecipeTag{},
			&models.RecipeStep{},
			&models.RecipeIngredient{},
		}
		for _, child := range children {
			if err := tx.Where("recipe_id = ?", recipeID).Delete(child).Error; err != nil {
				return err
			}
		}
		err := tx.Model(&models.CookingHistory{}).
			Where("recipe_id = ?", recipeID).
			Update("recipe_id", nil).Error
		if err != nil {
			return err
		}
		return tx.Delete(&models.Recipe{}, "id = ?", recipeID).Error
	})
	if err != nil {
		return fmt.Errorf("failed to delete recipe: %w", err)
	}
	s.logger.Info("deleted recipe", zap.String("recipe_id", recipeID.String()))
	return nil
}

// ListTags returns all tags with usage counts.
func (s *RecipeService) ListTags(ctx context.Context) ([]models.Tag, map[uuid.UUID]int, error) {
	var tags []models.Tag
	err := s.db.WithContext(ctx).Order("type, name").Find(&tags).Error
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list tags: %w", err)
	}
	counts := make(map[uuid.UUID]int, len(tags))
	for _, tag := range tags {
		var n int64
		s.db.WithContext(ctx).Model(&models.RecipeTag{}).
			Where("tag_id = ?", tag.ID).
			Count(&n)
		counts[tag.ID] = int(n)
	}
	return tags, counts, nil
}

// Rate records a user's rating for a recipe and refreshes the user's taste
// profile. Ratings accumulate: re-rating a recipe adds a new row, keeping the
// household's full opinion history.
func (s *RecipeService) Rate(ctx context.Context, recipeID, userID uuid.UUID, stars int, wouldMakeAgain bool, notes string, cookedAt *time.Time) (*models.Rating, error) {
	if stars < 1 || stars > 5 {
		return nil, ErrInvalidStars
	}
	if _, err := s.Get(ctx, recipeID); err != nil {
		return nil, err
	}
	var user models.User
	if err := s.db.WithContext(ctx).First(&user, "id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to load user: %w", err)
	}

	rating := &models.Rating{
		RecipeID:       recipeID,
		UserID:         userID,
		Stars:          stars,
		WouldMakeAgain: wouldMakeAgain,
		Notes:          notes,
		CookedAt:       cookedAt,
	}
	if err := s.db.WithContext(ctx).Create(rating).Error; err != nil {
		return nil, fmt.Errorf("failed to create rating: %w", err)
	}

	// A rating with a cook date confirms the meal happened: flip the
	// matching planned entry and log the cook.
	if cookedAt != nil {
		day := time.Date(cookedAt.Year(), cookedAt.Month(), cookedAt.Day(), 0, 0, 0, 0, time.UTC)
		err := s.db.WithContext(ctx).Model(&models.MealPlan{}).
			Where("recipe_id = ? AND date = ? AND status = ?", recipeID, day, models.PlanStatusPlanned).
			Update("status", models.PlanStatusCooked).Error
		if err != nil {
			s.logger.Warn("failed to mark plan entry cooked after rating",
				zap.String("recipe_id", recipeID.String()), zap.Error(err))
		}
		if s.taste != nil {
			if _, err := s.taste.RecordCooking(ctx, recipeID, day, []uuid.UUID{userID}); err != nil {
				s.logger.Warn("failed to record cooking history after rating",
					zap.String("user", user.Name), zap.Error(err))
			}
			return rating, nil
		}
	}

	if s.taste != nil {
		if _, err := s.taste.UpdateProfile(ctx, userID); err != nil {
			s.logger.Warn("taste profile refresh failed after rating",
				zap.String("user", user.Name), zap.Error(err))
		}
	}
	return rating, nil
}

// RatingHistory lists recent ratings across the whole library, newest first,
// optionally scoped to one user.
func (s *RecipeService) RatingHistory(ctx context.Context, userID *uuid.UUID, limit int) ([]models.Rating, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	query := s.db.WithContext(ctx).Model(&models.Rating{})
	if userID != nil {
		query = query.Where("user_id = ?", *userID)
	}
	var ratings []models.Rating
	err := query.Order("created_at DESC").Limit(limit).Find(&ratings).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list rating history: %w", err)
	}
	return ratings, nil
}

// UserRatingStats aggregates one user's rating behaviour.
type UserRatingStats struct {
	UserID            uuid.UUID `json:"user_id"`
	UserName          string    `json:"user_name"`
	TotalRatings      int       `json:"total_ratings"`
	AvgStars          float64   `json:"avg_stars"`
	WouldMakeAgainPct float64   `json:"would_make_again_pct"`
	FiveStarCount     int       `json:"five_star_count"`
	DistinctRecipes   int       `json:"distinct_recipes"`
}

// RatingStats summarises a user's ratings for the profile screen.
func (s *RecipeService) RatingStats(ctx context.Context, userID uuid.UUID) (*UserRatingStats, error) {
	var user models.User
	if err := s.db.WithContext(ctx).First(&user, "id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to load user: %w", err)
	}

	stats := &UserRatingStats{UserID: userID, UserName: user.Name}
	base := s.db.WithContext(ctx).Model(&models.Rating{}).Where("user_id = ?", userID)

	var total int64
	if err := base.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, fmt.Errorf("failed to count ratings: %w", err)
	}
	stats.TotalRatings = int(total)
	if total == 0 {
		return stats, nil
	}

	base.Session(&gorm.Session{}).Select("COALESCE(AVG(stars), 0)").Scan(&stats.AvgStars)

	var again int64
	base.Session(&gorm.Session{}).Where("would_make_again = ?", true).Count(&again)
	stats.WouldMakeAgainPct = float64(again) / float64(total)

	var fives int64
	base.Session(&gorm.Session{}).Where("stars = 5").Count(&fives)
	stats.FiveStarCount = int(fives)

	var distinct int64
	s.db.WithContext(ctx).Model(&models.Rating{}).
		Where("user_id = ?", userID).
		Distinct("recipe_id").
		Count(&distinct)
	stats.DistinctRecipes = int(distinct)
	return stats, nil
}

// Ratings lists a recipe's ratings, newest first.
func (s *RecipeService) Ratings(ctx context.Context, recipeID uuid.UUID) ([]models.Rating, error) {
	var ratings []models.Rating
	err := s.db.WithContext(ctx).
		Where("recipe_id = ?", recipeID).
		Order("created_at DESC").
		Find(&ratings).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list ratings: %w", err)
	}
	return ratings, nil
}
