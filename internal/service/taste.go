package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/forkcast/backend/internal/models"
)

// ErrUserNotFound is returned when a taste operation references an unknown user.
var ErrUserNotFound = errors.New("user not found")

// TasteInsight is one generated observation about a user's cooking patterns.
type TasteInsight struct {
	Category string         `json:"category"`
	Message  string         `json:"message"`
	Data     map[string]any `json:"data"`
}

// TasteProfileView is the assembled profile returned to clients.
type TasteProfileView struct {
	UserID      uuid.UUID      `json:"user_id"`
	UserName    string         `json:"user_name"`
	Preferences map[string]any `json:"preferences"`
	Insights    []string       `json:"insights"`
}

// TasteComparisonItem scores one dimension/value pair for both partners.
type TasteComparisonItem struct {
	Dimension string  `json:"dimension"`
	Value     string  `json:"value"`
	ScoreA    float64 `json:"score_a"`
	ScoreB    float64 `json:"score_b"`
	Diff      float64 `json:"diff"`
}

// TasteService learns per-user preferences from ratings and cooking history.
// Scores live on a 0-1 scale: a 5-star rating contributes 1.0, a 1-star 0.0,
// and not wanting to make the dish again halves the contribution.
type TasteService struct {
	db     *gorm.DB
	llm    LLMClient
	logger *zap.Logger
}

// NewTasteService creates a new taste service. llm may be nil, in which case
// insight generation returns nothing.
func NewTasteService(db *gorm.DB, llm LLMClient, logger *zap.Logger) *TasteService {
	return &TasteService{db: db, llm: llm, logger: logger}
}

// UpdateProfile recomputes a user's preference map from all of their ratings.
// Dimensions come from tag types plus the recipe's cuisine and difficulty
// fields; each value's score is the mean contribution across ratings.
func (s *TasteService) UpdateProfile(ctx context.Context, userID uuid.UUID) (map[string]any, error) {
	var user models.User
	if err := s.db.WithContext(ctx).First(&user, "id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to load user: %w", err)
	}

	var ratings []models.Rating
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&ratings).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load ratings: %w", err)
	}
	if len(ratings) == 0 {
		return map[string]any{}, nil
	}

	type bucket struct {
		total float64
		count int
	}
	dims := map[string]map[string]*bucket{
		"cuisine": {}, "protein": {}, "effort": {}, "dietary": {},
	}
	add := func(dimension, value string, score float64) {
		values, ok := dims[dimension]
		if !ok {
			return
		}
		b, ok := values[value]
		if !ok {
			b = &bucket{}
			values[value] = b
		}
		b.total += score
		b.count++
	}

	for _, rating := range ratings {
		var recipe models.Recipe
		err := s.db.WithContext(ctx).Preload("Tags").First(&recipe, "id = ?", rating.RecipeID).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				continue
			}
			return nil, fmt.Errorf("failed to load rated recipe: %w", err)
		}

		score := float64(rating.Stars-1) / 4.0
		if !rating.WouldMakeAgain {
			score *= 0.5
		}

		for _, tag := range recipe.Tags {
			add(tag.Type, tag.Name, score)
		}
		if recipe.Cuisine != "" {
			add("cuisine", strings.ToLower(recipe.Cuisine), score)
		}
		if recipe.Difficulty != "" {
			add("effort", strings.ToLower(recipe.Difficulty), score)
		}
	}

	preferences := map[string]any{}
	for dimension, values := range dims {
		if len(values) == 0 {
			continue
		}
		scores := map[string]any{}
		for value, b := range values {
			avg := b.total / float64(b.count)
			scores[value] = math.Round(avg*1000) / 1000
			if err := s.upsertPreference(ctx, userID, dimension, value, avg, b.count); err != nil {
				return nil, err
			}
		}
		preferences[dimension] = scores
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var profile models.TasteProfile
		err := tx.Where("user_id = ?", userID).First(&profile).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			profile = models.TasteProfile{UserID: userID, Preferences: preferences}
			return tx.Create(&profile).Error
		case err != nil:
			return err
		default:
			return tx.Model(&profile).Update("preferences", models.JSONMap(preferences)).Error
		}
	})
	if err != nil {
		return nil, fmt.Errorf("failed to save taste profile: %w", err)
	}

	s.logger.Info("taste profile updated",
		zap.String("user", user.Name),
		zap.Int("ratings", len(ratings)))
	return preferences, nil
}

func (s *TasteService) upsertPreference(ctx context.Context, userID uuid.UUID, dimension, value string, score float64, count int) error {
	var pref models.TastePreference
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND dimension = ? AND value = ?", userID, dimension, value).
		First(&pref).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		pref = models.TastePreference{
			UserID: userID, Dimension: dimension, Value: value,
			Score: score, SampleCount: count,
		}
		if err := s.db.WithContext(ctx).Create(&pref).Error; err != nil {
			return fmt.Errorf("failed to create taste preference: %w", err)
		}
		return nil
	case err != nil:
		return fmt.Errorf("failed to load taste preference: %w", err)
	default:
		return s.db.WithContext(ctx).Model(&pref).
			Updates(map[string]any{"score": score, "sample_count": count}).Error
	}
}

// GetProfile returns a user's taste profile, computing it on first access.
func (s *TasteService) GetProfile(ctx context.Context, userID uuid.UUID) (*TasteProfileView, error) {
	var user models.User
	if err := s.db.WithContext(ctx).First(&user, "id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to load user: %w", err)
	}

	view := &TasteProfileView{
		UserID:      userID,
		UserName:    user.Name,
		Preferences: map[string]any{},
		Insights:    []string{},
	}

	var profile models.TasteProfile
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).First(&profile).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		prefs, err := s.UpdateProfile(ctx, userID)
		if err != nil {
			return nil, err
		}
		view.Preferences = prefs
		return view, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load taste profile: %w", err)
	}

	if profile.Preferences != nil {
		view.Preferences = profile.Preferences
	}
	view.Insights = append(view.Insights, profile.Insights...)
	return view, nil
}

// GenerateInsights asks the language model for observations about the user's
// cooking patterns and stores them on the profile.
func (s *TasteService) GenerateInsights(ctx context.Context, userID uuid.UUID) ([]TasteInsight, error) {
	var user models.User
	if err := s.db.WithContext(ctx).First(&user, "id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	if s.llm == nil {
		return []TasteInsight{}, nil
	}

	profile, err := s.GetProfile(ctx, userID)
	if err != nil {
		return nil, err
	}

	type ratedRecipe struct {
		Recipe         string  `json:"recipe"`
		Stars          int     `json:"stars"`
		WouldMakeAgain bool    `json:"would_make_again"`
		CookedAt       *string `json:"cooked_at"`
	}
	var ratings []models.Rating
	err = s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(20).
		Find(&ratings).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load ratings: %w", err)
	}
	rated := make([]ratedRecipe, 0, len(ratings))
	for _, r := range ratings {
		var recipe models.Recipe
		if err := s.db.WithContext(ctx).First(&recipe, "id = ?", r.RecipeID).Error; err != nil {
			continue
		}
		rr := ratedRecipe{Recipe: recipe.Title, Stars: r.Stars, WouldMakeAgain: r.WouldMakeAgain}
		if r.CookedAt != nil {
			d := r.CookedAt.Format("2006-01-02")
			rr.CookedAt = &d
		}
		rated = append(rated, rr)
	}

	type cookedEntry struct {
		Recipe string `json:"recipe"`
		Date   string `json:"date"`
	}
	var history []models.CookingHistory
	err = s.db.WithContext(ctx).
		Where("cooked_at >= ?", time.Now().AddDate(0, 0, -30)).
		Order("cooked_at DESC").
		Find(&history).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load cooking history: %w", err)
	}
	cooked := make([]cookedEntry, 0, len(history))
	for _, h := range history {
		if h.RecipeID == nil {
			continue
		}
		var recipe models.Recipe
		if err := s.db.WithContext(ctx).First(&recipe, "id = ?", *h.RecipeID).Error; err != nil {
			continue
		}
		cooked = append(cooked, cookedEntry{Recipe: recipe.Title, Date: h.CookedAt.Format("2006-01-02")})
	}

	prefsJSON, _ := json.MarshalIndent(profile.Preferences, "", "  ")
	ratingsJSON, _ := json.MarshalIndent(rated, "", "  ")
	historyJSON, _ := json.MarshalIndent(cooked, "", "  ")

	prompt := fmt.Sprintf(`You're analyzing cooking preferences for %s. Based on their data, generate 3-5 fun, actionable insights.

Taste Preferences (0-1 scores):
%s

Recent Ratings (newest first):
%s

Cooking History (last 30 days):
%s

Return a JSON array of objects:
[
  {"category": "observation|suggestion|trend", "message": "You both love Thai food but only cooked it twice this month!", "data": {}}
]

Be specific, friendly, and reference actual data. Return ONLY the JSON array.`,
		user.Name, prefsJSON, ratingsJSON, historyJSON)

	raw, err := s.llm.GenerateContent(ctx, prompt)
	if err != nil {
		s.logger.Error("insight generation failed", zap.Error(err))
		return []TasteInsight{}, nil
	}

	var insights []TasteInsight
	if err := json.Unmarshal([]byte(stripCodeFence(raw)), &insights); err != nil {
		s.logger.Error("insight response was not valid JSON", zap.Error(err))
		return []TasteInsight{}, nil
	}

	messages := make(models.JSONStringArray, 0, len(insights))
	for _, in := range insights {
		messages = append(messages, in.Message)
	}
	err = s.db.WithContext(ctx).Model(&models.TasteProfile{}).
		Where("user_id = ?", userID).
		Update("insights", messages).Error
	if err != nil {
		return nil, fmt.Errorf("failed to save insights: %w", err)
	}

	s.logger.Info("taste insights generated",
		zap.String("user", user.Name),
		zap.Int("count", len(insights)))
	return insights, nil
}

// TasteComparison contrasts the two partners' preference maps.
type TasteComparison struct {
	Profiles      map[string]map[string]any `json:"profiles"`
	Agreements    []TasteComparisonItem     `json:"agreements"`
	Disagreements []TasteComparisonItem     `json:"disagreements"`
}

// Compare lines up the two partners' scores per dimension/value. Pairs within
// 0.2 of each other count as agreements; pairs more than 0.4 apart as
// disagreements. Only the top ten of each are returned.
func (s *TasteService) Compare(ctx context.Context) (*TasteComparison, error) {
	var partners []models.User
	if err := s.db.WithContext(ctx).Order("created_at, id").Limit(2).Find(&partners).Error; err != nil {
		return nil, fmt.Errorf("failed to load partners: %w", err)
	}
	if len(partners) < 2 {
		return nil, fmt.Errorf("need at least 2 users to compare")
	}

	profiles := map[string]map[string]any{}
	prefsByUser := make([]map[string]any, 2)
	for i, user := range partners {
		view, err := s.GetProfile(ctx, user.ID)
		if err != nil {
			return nil, err
		}
		profiles[user.Name] = view.Preferences
		prefsByUser[i] = view.Preferences
	}

	var agreements, disagreements []TasteComparisonItem
	for dimension := range union(prefsByUser[0], prefsByUser[1]) {
		d1 := dimensionScores(prefsByUser[0], dimension)
		d2 := dimensionScores(prefsByUser[1], dimension)
		for value := range unionFloat(d1, d2) {
			s1, s2 := d1[value], d2[value]
			diff := math.Abs(s1 - s2)
			item := TasteComparisonItem{
				Dimension: dimension,
				Value:     value,
				ScoreA:    math.Round(s1*100) / 100,
				ScoreB:    math.Round(s2*100) / 100,
				Diff:      math.Round(diff*100) / 100,
			}
			if diff < 0.2 {
				agreements = append(agreements, item)
			} else if diff > 0.4 {
				disagreements = append(disagreements, item)
			}
		}
	}

	sortByDiff(agreements, false)
	sortByDiff(disagreements, true)
	if len(agreements) > 10 {
		agreements = agreements[:10]
	}
	if len(disagreements) > 10 {
		disagreements = disagreements[:10]
	}

	return &TasteComparison{
		Profiles:      profiles,
		Agreements:    agreements,
		Disagreements: disagreements,
	}, nil
}

// RecordCooking logs that a recipe was cooked and refreshes the taste
// profile of everyone who ate it.
func (s *TasteService) RecordCooking(ctx context.Context, recipeID uuid.UUID, cookedAt time.Time, userIDs []uuid.UUID) (*models.CookingHistory, error) {
	cookedBy := make(models.JSONStringArray, 0, len(userIDs))
	for _, id := range userIDs {
		cookedBy = append(cookedBy, id.String())
	}
	entry := &models.CookingHistory{
		RecipeID: &recipeID,
		CookedAt: cookedAt,
		CookedBy: cookedBy,
	}
	if err := s.db.WithContext(ctx).Create(entry).Error; err != nil {
		return nil, fmt.Errorf("failed to record cooking: %w", err)
	}

	for _, id := range userIDs {
		if _, err := s.UpdateProfile(ctx, id); err != nil && !errors.Is(err, ErrUserNotFound) {
			s.logger.Error("failed to refresh taste profile after cooking",
				zap.String("user_id", id.String()), zap.Error(err))
		}
	}
	return entry, nil
}

func union(a, b map[string]any) map[string]bool {
	out := map[string]bool{}
	for k := range a {
		out[k] = true
	}
	for k := range b {
		out[k] = true
	}
	return out
}

func unionFloat(a, b map[string]float64) map[string]bool {
	out := map[string]bool{}
	for k := range a {
		out[k] = true
	}
	for k := range b {
		out[k] = true
	}
	return out
}

// dimensionScores extracts the value→score map for one dimension, tolerating
// the float64/map[string]any shapes JSON round-trips produce.
func dimensionScores(prefs map[string]any, dimension string) map[string]float64 {
	out := map[string]float64{}
	raw, ok := prefs[dimension]
	if !ok {
		return out
	}
	values, ok := raw.(map[string]any)
	if !ok {
		return out
	}
	for value, score := range values {
		if f, ok := score.(float64); ok {
			out[value] = f
		}
	}
	return out
}

func sortByDiff(items []TasteComparisonItem, descending bool) {
	sort.Slice(items, func(i, j int) bool {
		if descending {
			return items[i].Diff > items[j].Diff
		}
		return items[i].Diff < items[j].Diff
	})
}
