package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/forkcast/backend/internal/models"
)

// MealSuggestion is one proposed dinner for one date.
type MealSuggestion struct {
	Date        string    `json:"date"`
	RecipeID    uuid.UUID `json:"recipe_id"`
	RecipeTitle string    `json:"recipe_title"`
	Reason      string    `json:"reason"`
}

// SuggestService proposes meals for open dinner slots using the language
// model, falling back to random picks when no model is configured.
type SuggestService struct {
	db     *gorm.DB
	llm    LLMClient
	rules  *RulesService
	logger *zap.Logger
}

// NewSuggestService creates a suggestion engine.
func NewSuggestService(db *gorm.DB, llm LLMClient, rules *RulesService, logger *zap.Logger) *SuggestService {
	return &SuggestService{db: db, llm: llm, rules: rules, logger: logger}
}

type recipeSummary struct {
	ID           uuid.UUID
	Title        string
	Tags         []string
	AvgRating    float64
	CookCount    int
	Cuisine      string
	Difficulty   string
	TotalTimeMin *int
}

// Suggest picks one recipe per available date, steering the model with the
// recipe library, the active dietary rules, the last three weeks of meals and
// the household taste profiles.
func (s *SuggestService) Suggest(ctx context.Context, weekStart time.Time, availableDates []time.Time, context_ string) ([]MealSuggestion, error) {
	recipes, err := s.recipeSummaries(ctx)
	if err != nil {
		return nil, err
	}
	if len(recipes) == 0 {
		return []MealSuggestion{}, nil
	}
	if s.llm == nil {
		return s.randomSuggestions(ctx, availableDates)
	}

	rules, err := s.rules.activeRules(ctx)
	if err != nil {
		return nil, err
	}
	recentMeals, err := s.recentMeals(ctx, weekStart, 21)
	if err != nil {
		return nil, err
	}
	tasteData, err := s.tasteData(ctx)
	if err != nil {
		return nil, err
	}

	prompt := s.buildPrompt(recipes, rules, availableDates, recentMeals, tasteData, context_)
	raw, err := s.llm.GenerateContent(ctx, prompt)
	if err != nil {
		s.logger.Error("suggestion generation failed, using random fallback", zap.Error(err))
		return s.randomSuggestions(ctx, availableDates)
	}

	var suggestions []MealSuggestion
	if err := json.Unmarshal([]byte(stripCodeFence(raw)), &suggestions); err != nil {
		s.logger.Error("suggestion response was not valid JSON, using random fallback", zap.Error(err))
		return s.randomSuggestions(ctx, availableDates)
	}

	// Drop hallucinated recipe IDs.
	known := make(map[uuid.UUID]bool, len(recipes))
	for _, r := range recipes {
		known[r.ID] = true
	}
	validated := suggestions[:0]
	for _, sug := range suggestions {
		if known[sug.RecipeID] {
			validated = append(validated, sug)
		} else {
			s.logger.Warn("model suggested unknown recipe", zap.String("recipe_id", sug.RecipeID.String()))
		}
	}

	s.logger.Info("meal suggestions generated", zap.Int("count", len(validated)))
	return validated, nil
}

func (s *SuggestService) buildPrompt(recipes []recipeSummary, rules []models.DietaryRule, availableDates []time.Time, recentMeals []string, tasteData map[string]any, context_ string) string {
	var recipeLines []string
	for i, r := range recipes {
		if i >= 100 {
			break
		}
		timeStr := "?"
		if r.TotalTimeMin != nil {
			timeStr = fmt.Sprintf("%d min", *r.TotalTimeMin)
		}
		recipeLines = append(recipeLines, fmt.Sprintf(
			"  ID %s: %s [%s] (avg rating: %.1f, times cooked: %d, %s)",
			r.ID, r.Title, strings.Join(r.Tags, ", "), r.AvgRating, r.CookCount, timeStr))
	}

	rulesText := "  No rules defined."
	if len(rules) > 0 {
		var ruleLines []string
		for _, r := range rules {
			configJSON, _ := json.Marshal(r.Config)
			ruleLines = append(ruleLines, fmt.Sprintf("  - %s: %s", r.Name, configJSON))
		}
		rulesText = strings.Join(ruleLines, "\n")
	}

	recentText := "  No recent meals."
	if len(recentMeals) > 0 {
		recentText = strings.Join(recentMeals, "\n")
	}

	dates := make([]string, 0, len(availableDates))
	for _, d := range availableDates {
		dates = append(dates, d.Format("2006-01-02"))
	}

	tasteText := "No taste data yet."
	if len(tasteData) > 0 {
		if b, err := json.MarshalIndent(tasteData, "", "  "); err == nil {
			tasteText = string(b)
		}
	}

	contextLine := ""
	if context_ != "" {
		contextLine = "CONTEXT: " + context_
	}

	return fmt.Sprintf(`You are a meal planning assistant. Suggest dinner recipes for these available dates.

AVAILABLE DATES: %s
%s

RECIPE LIBRARY (pick from these only):
%s

DIETARY RULES (must follow):
%s

RECENT MEALS (avoid repeats, ensure variety):
%s

TASTE PREFERENCES:
%s

INSTRUCTIONS:
1. Pick one recipe for each available date
2. Follow ALL dietary rules strictly
3. Avoid repeating recipes from recent meals
4. Maximize variety in proteins, cuisines, and cooking styles
5. Consider the context (weeknight = easy/quick, weekend = can be ambitious)
6. Prefer higher-rated recipes
7. Give a brief reason for each pick

Return ONLY a JSON array:
[
  {"date": "2026-02-09", "recipe_id": "<recipe uuid>", "recipe_title": "Lemon Herb Salmon", "reason": "Haven't had fish in 10 days, and you both rated this 5 stars"}
]`,
		strings.Join(dates, ", "), contextLine,
		strings.Join(recipeLines, "\n"), rulesText, recentText, tasteText)
}

func (s *SuggestService) recipeSummaries(ctx context.Context) ([]recipeSummary, error) {
	var recipes []models.Recipe
	err := s.db.WithContext(ctx).
		Preload("Tags").
		Where("archived = ?", false).
		Order("title").
		Find(&recipes).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load recipes: %w", err)
	}

	summaries := make([]recipeSummary, 0, len(recipes))
	for _, r := range recipes {
		tags := make([]string, 0, len(r.Tags))
		for _, t := range r.Tags {
			tags = append(tags, t.Name)
		}

		var avg struct{ Avg float64 }
		err := s.db.WithContext(ctx).Model(&models.Rating{}).
			Select("COALESCE(AVG(stars), 0) AS avg").
			Where("recipe_id = ?", r.ID).
			Scan(&avg).Error
		if err != nil {
			return nil, fmt.Errorf("failed to load ratings: %w", err)
		}

		var cookCount int64
		err = s.db.WithContext(ctx).Model(&models.CookingHistory{}).
			Where("recipe_id = ?", r.ID).
			Count(&cookCount).Error
		if err != nil {
			return nil, fmt.Errorf("failed to count cooks: %w", err)
		}

		summaries = append(summaries, recipeSummary{
			ID:           r.ID,
			Title:        r.Title,
			Tags:         tags,
			AvgRating:    avg.Avg,
			CookCount:    int(cookCount),
			Cuisine:      r.Cuisine,
			Difficulty:   r.Difficulty,
			TotalTimeMin: r.TotalTimeMin,
		})
	}
	return summaries, nil
}

func (s *SuggestService) recentMeals(ctx context.Context, reference time.Time, daysBack int) ([]string, error) {
	start := reference.AddDate(0, 0, -daysBack)
	var plans []models.MealPlan
	err := s.db.WithContext(ctx).
		Where("date >= ? AND date <= ?", start, reference).
		Where("status <> ?", models.PlanStatusSkipped).
		Order("date DESC").
		Find(&plans).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load recent meals: %w", err)
	}

	lines := make([]string, 0, len(plans))
	for _, plan := range plans {
		var recipe models.Recipe
		if err := s.db.WithContext(ctx).Preload("Tags").First(&recipe, "id = ?", plan.RecipeID).Error; err != nil {
			continue
		}
		tags := make([]string, 0, len(recipe.Tags))
		for _, t := range recipe.Tags {
			tags = append(tags, t.Name)
		}
		lines = append(lines, fmt.Sprintf("  %s: %s [%s]",
			plan.Date.Format("2006-01-02"), recipe.Title, strings.Join(tags, ", ")))
	}
	return lines, nil
}

func (s *SuggestService) tasteData(ctx context.Context) (map[string]any, error) {
	var profiles []models.TasteProfile
	if err := s.db.WithContext(ctx).Find(&profiles).Error; err != nil {
		return nil, fmt.Errorf("failed to load taste profiles: %w", err)
	}

	data := map[string]any{}
	for _, p := range profiles {
		var user models.User
		if err := s.db.WithContext(ctx).First(&user, "id = ?", p.UserID).Error; err != nil {
			continue
		}
		prefs := map[string]any{}
		if p.Preferences != nil {
			prefs = p.Preferences
		}
		data[user.Name] = prefs
	}
	return data, nil
}

func (s *SuggestService) randomSuggestions(ctx context.Context, availableDates []time.Time) ([]MealSuggestion, error) {
	var recipes []models.Recipe
	err := s.db.WithContext(ctx).
		Where("archived = ?", false).
		Order("RANDOM()").
		Limit(len(availableDates)).
		Find(&recipes).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load random recipes: %w", err)
	}

	suggestions := make([]MealSuggestion, 0, len(recipes))
	for i, r := range recipes {
		if i >= len(availableDates) {
			break
		}
		suggestions = append(suggestions, MealSuggestion{
			Date:        availableDates[i].Format("2006-01-02"),
			RecipeID:    r.ID,
			RecipeTitle: r.Title,
			Reason:      "Random suggestion (AI unavailable)",
		})
	}
	return suggestions, nil
}
