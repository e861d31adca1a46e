// Package service contains the business logic behind the API handlers.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/forkcast/backend/internal/models"
)

// Rule evaluation statuses.
const (
	RuleStatusOK       = "ok"
	RuleStatusWarning  = "warning"
	RuleStatusViolated = "violated"
	RuleStatusError    = "error"
)

// RuleEvaluation is the verdict of one rule against a proposed plan entry.
type RuleEvaluation struct {
	RuleID   uuid.UUID      `json:"rule_id"`
	RuleName string         `json:"rule_name"`
	Status   string         `json:"status"`
	Message  string         `json:"message"`
	Details  map[string]any `json:"details"`
}

// RulesService evaluates dietary rules against the meal plan. Rules are
// advisory only: a violated rule never blocks scheduling.
type RulesService struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewRulesService creates a new rules service.
func NewRulesService(db *gorm.DB, logger *zap.Logger) *RulesService {
	return &RulesService{db: db, logger: logger}
}

// Evaluate runs every active rule against the proposal of cooking recipeID on
// planDate. A rule that fails to evaluate yields a status of "error" rather
// than aborting the whole evaluation.
func (s *RulesService) Evaluate(ctx context.Context, planDate time.Time, recipeID uuid.UUID) ([]RuleEvaluation, error) {
	rules, err := s.activeRules(ctx)
	if err != nil {
		return nil, err
	}

	evals := make([]RuleEvaluation, 0, len(rules))
	for _, rule := range rules {
		eval, err := s.evaluateRule(ctx, rule, planDate, recipeID)
		if err != nil {
			s.logger.Error("rule evaluation failed",
				zap.String("rule", rule.Name), zap.Error(err))
			eval = RuleEvaluation{
				RuleID:   rule.ID,
				RuleName: rule.Name,
				Status:   RuleStatusError,
				Message:  fmt.Sprintf("Error evaluating rule: %v", err),
				Details:  map[string]any{},
			}
		}
		evals = append(evals, eval)
	}
	return evals, nil
}

// WeekStatus reports how each active rule stands for the week starting at
// weekStart, considering only meals already on the plan.
func (s *RulesService) WeekStatus(ctx context.Context, weekStart time.Time) ([]RuleEvaluation, error) {
	rules, err := s.activeRules(ctx)
	if err != nil {
		return nil, err
	}
	weekEnd := weekStart.AddDate(0, 0, 6)

	statuses := make([]RuleEvaluation, 0, len(rules))
	for _, rule := range rules {
		status, err := s.weekStatusForRule(ctx, rule, weekStart, weekEnd)
		if err != nil {
			s.logger.Error("rule status failed",
				zap.String("rule", rule.Name), zap.Error(err))
			status = RuleEvaluation{
				RuleID:   rule.ID,
				RuleName: rule.Name,
				Status:   RuleStatusError,
				Message:  err.Error(),
			}
		}
		statuses = append(statuses, status)
	}
	return statuses, nil
}

func (s *RulesService) activeRules(ctx context.Context) ([]models.DietaryRule, error) {
	var rules []models.DietaryRule
	if err := s.db.WithContext(ctx).Where("active = ?", true).Find(&rules).Error; err != nil {
		return nil, fmt.Errorf("failed to load active rules: %w", err)
	}
	return rules, nil
}

func (s *RulesService) evaluateRule(ctx context.Context, rule models.DietaryRule, planDate time.Time, recipeID uuid.UUID) (RuleEvaluation, error) {
	switch rule.RuleType {
	case models.RuleTypeProteinMaxPerWeek:
		return s.evalProteinMax(ctx, rule, planDate, recipeID)
	case models.RuleTypeProteinMinPerPeriod:
		return s.evalProteinMin(ctx, rule, planDate, recipeID)
	case models.RuleTypeNoRepeatWithinDays:
		return s.evalNoRepeat(ctx, rule, planDate, recipeID)
	case models.RuleTypeMinTagPerWeek:
		return s.evalMinTag(ctx, rule, planDate, recipeID)
	case models.RuleTypeMaxTagPerWeek:
		return s.evalMaxTag(ctx, rule, planDate, recipeID)
	default:
		// Unknown rule types must not block planning.
		return RuleEvaluation{
			RuleID:   rule.ID,
			RuleName: rule.Name,
			Status:   RuleStatusOK,
			Message:  fmt.Sprintf("Unknown rule type: %s", rule.RuleType),
			Details:  map[string]any{},
		}, nil
	}
}

func (s *RulesService) evalProteinMax(ctx context.Context, rule models.DietaryRule, planDate time.Time, recipeID uuid.UUID) (RuleEvaluation, error) {
	protein := rule.Config.GetString("protein", "")
	maxCount := rule.Config.GetInt("max", 2)
	periodDays := rule.Config.GetInt("period_days", 7)

	start := planDate.AddDate(0, 0, -periodDays)
	count, err := s.countTagInPlan(ctx, protein, start, planDate)
	if err != nil {
		return RuleEvaluation{}, err
	}

	hasProtein, err := s.recipeHasTag(ctx, recipeID, protein)
	if err != nil {
		return RuleEvaluation{}, err
	}
	if hasProtein {
		count++
	}

	details := map[string]any{"protein": protein, "count": count, "max": maxCount, "period_days": periodDays}
	switch {
	case count > maxCount:
		return RuleEvaluation{
			RuleID: rule.ID, RuleName: rule.Name, Status: RuleStatusViolated,
			Message: fmt.Sprintf("%s would appear %dx in %d days (max %d)", title(protein), count, periodDays, maxCount),
			Details: details,
		}, nil
	case count == maxCount:
		return RuleEvaluation{
			RuleID: rule.ID, RuleName: rule.Name, Status: RuleStatusWarning,
			Message: fmt.Sprintf("%s at limit: %dx in %d days (max %d)", title(protein), count, periodDays, maxCount),
			Details: details,
		}, nil
	default:
		return RuleEvaluation{
			RuleID: rule.ID, RuleName: rule.Name, Status: RuleStatusOK,
			Message: fmt.Sprintf("%s: %d/%d in %d days", title(protein), count, maxCount, periodDays),
			Details: details,
		}, nil
	}
}

func (s *RulesService) evalProteinMin(ctx context.Context, rule models.DietaryRule, planDate time.Time, recipeID uuid.UUID) (RuleEvaluation, error) {
	protein := rule.Config.GetString("protein", "")
	minCount := rule.Config.GetInt("min", 1)
	periodDays := rule.Config.GetInt("period_days", 14)

	start := planDate.AddDate(0, 0, -periodDays)
	count, err := s.countTagInPlan(ctx, protein, start, planDate)
	if err != nil {
		return RuleEvaluation{}, err
	}

	hasProtein, err := s.recipeHasTag(ctx, recipeID, protein)
	if err != nil {
		return RuleEvaluation{}, err
	}
	if hasProtein {
		count++
	}

	details := map[string]any{"protein": protein, "count": count, "min": minCount, "period_days": periodDays}
	if count < minCount {
		return RuleEvaluation{
			RuleID: rule.ID, RuleName: rule.Name, Status: RuleStatusWarning,
			Message: fmt.Sprintf("%s only %dx in last %d days (need %d+)", title(protein), count, periodDays, minCount),
			Details: details,
		}, nil
	}
	return RuleEvaluation{
		RuleID: rule.ID, RuleName: rule.Name, Status: RuleStatusOK,
		Message: fmt.Sprintf("%s: %d/%d+ in %d days", title(protein), count, minCount, periodDays),
		Details: details,
	}, nil
}

func (s *RulesService) evalNoRepeat(ctx context.Context, rule models.DietaryRule, planDate time.Time, recipeID uuid.UUID) (RuleEvaluation, error) {
	minDays := rule.Config.GetInt("min_days_between_repeat", 14)
	start := planDate.AddDate(0, 0, -minDays)

	var recent []models.MealPlan
	err := s.db.WithContext(ctx).
		Where("recipe_id = ?", recipeID).
		Where("date >= ? AND date <= ?", start, planDate).
		Where("status <> ?", models.PlanStatusSkipped).
		Find(&recent).Error
	if err != nil {
		return RuleEvaluation{}, fmt.Errorf("failed to query recent plans: %w", err)
	}

	if len(recent) > 0 {
		last := recent[0].Date
		for _, p := range recent[1:] {
			if p.Date.After(last) {
				last = p.Date
			}
		}
		daysSince := int(planDate.Sub(last).Hours() / 24)
		return RuleEvaluation{
			RuleID: rule.ID, RuleName: rule.Name, Status: RuleStatusViolated,
			Message: fmt.Sprintf("This recipe was planned %d days ago (minimum gap: %d days)", daysSince, minDays),
			Details: map[string]any{"last_date": last.Format("2006-01-02"), "days_since": daysSince, "min_days": minDays},
		}, nil
	}
	return RuleEvaluation{
		RuleID: rule.ID, RuleName: rule.Name, Status: RuleStatusOK,
		Message: fmt.Sprintf("Not repeated within %d days", minDays),
		Details: map[string]any{"min_days": minDays},
	}, nil
}

func (s *RulesService) evalMinTag(ctx context.Context, rule models.DietaryRule, planDate time.Time, recipeID uuid.UUID) (RuleEvaluation, error) {
	tag := rule.Config.GetString("tag", "")
	minCount := rule.Config.GetInt("min", 2)
	periodDays := rule.Config.GetInt("period_days", 7)

	start := planDate.AddDate(0, 0, -periodDays)
	count, err := s.countTagInPlan(ctx, tag, start, planDate)
	if err != nil {
		return RuleEvaluation{}, err
	}

	hasTag, err := s.recipeHasTag(ctx, recipeID, tag)
	if err != nil {
		return RuleEvaluation{}, err
	}
	if hasTag {
		count++
	}

	details := map[string]any{"tag": tag, "count": count, "min": minCount}
	if count < minCount {
		return RuleEvaluation{
			RuleID: rule.ID, RuleName: rule.Name, Status: RuleStatusWarning,
			Message: fmt.Sprintf("'%s' only %dx in %d days (want %d+)", tag, count, periodDays, minCount),
			Details: details,
		}, nil
	}
	return RuleEvaluation{
		RuleID: rule.ID, RuleName: rule.Name, Status: RuleStatusOK,
		Message: fmt.Sprintf("'%s': %d/%d+", tag, count, minCount),
		Details: details,
	}, nil
}

func (s *RulesService) evalMaxTag(ctx context.Context, rule models.DietaryRule, planDate time.Time, recipeID uuid.UUID) (RuleEvaluation, error) {
	tag := rule.Config.GetString("tag", "")
	maxCount := rule.Config.GetInt("max", 2)
	periodDays := rule.Config.GetInt("period_days", 7)

	start := planDate.AddDate(0, 0, -periodDays)
	count, err := s.countTagInPlan(ctx, tag, start, planDate)
	if err != nil {
		return RuleEvaluation{}, err
	}

	hasTag, err := s.recipeHasTag(ctx, recipeID, tag)
	if err != nil {
		return RuleEvaluation{}, err
	}
	if hasTag {
		count++
	}

	details := map[string]any{"tag": tag, "count": count, "max": maxCount, "period_days": periodDays}
	switch {
	case count > maxCount:
		return RuleEvaluation{
			RuleID: rule.ID, RuleName: rule.Name, Status: RuleStatusViolated,
			Message: fmt.Sprintf("'%s' would appear %dx in %d days (max %d)", tag, count, periodDays, maxCount),
			Details: details,
		}, nil
	case count == maxCount:
		return RuleEvaluation{
			RuleID: rule.ID, RuleName: rule.Name, Status: RuleStatusWarning,
			Message: fmt.Sprintf("'%s' at limit: %dx in %d days (max %d)", tag, count, periodDays, maxCount),
			Details: details,
		}, nil
	default:
		return RuleEvaluation{
			RuleID: rule.ID, RuleName: rule.Name, Status: RuleStatusOK,
			Message: fmt.Sprintf("'%s': %d/%d in %d days", tag, count, maxCount, periodDays),
			Details: details,
		}, nil
	}
}

func (s *RulesService) weekStatusForRule(ctx context.Context, rule models.DietaryRule, weekStart, weekEnd time.Time) (RuleEvaluation, error) {
	switch rule.RuleType {
	case models.RuleTypeProteinMaxPerWeek:
		protein := rule.Config.GetString("protein", "")
		maxCount := rule.Config.GetInt("max", 2)
		count, err := s.countTagInPlan(ctx, protein, weekStart, weekEnd)
		if err != nil {
			return RuleEvaluation{}, err
		}
		return RuleEvaluation{
			RuleID: rule.ID, RuleName: rule.Name,
			Status:  thresholdStatus(count, maxCount),
			Message: fmt.Sprintf("%s: %d/%d", title(protein), count, maxCount),
		}, nil

	case models.RuleTypeProteinMinPerPeriod:
		protein := rule.Config.GetString("protein", "")
		minCount := rule.Config.GetInt("min", 1)
		periodDays := rule.Config.GetInt("period_days", 14)
		start := weekStart.AddDate(0, 0, -periodDays)
		count, err := s.countTagInPlan(ctx, protein, start, weekEnd)
		if err != nil {
			return RuleEvaluation{}, err
		}
		status := RuleStatusOK
		if count < minCount {
			status = RuleStatusWarning
		}
		return RuleEvaluation{
			RuleID: rule.ID, RuleName: rule.Name, Status: status,
			Message: fmt.Sprintf("%s: %d/%d+ in %dd", title(protein), count, minCount, periodDays),
		}, nil

	case models.RuleTypeMinTagPerWeek:
		tag := rule.Config.GetString("tag", "")
		minCount := rule.Config.GetInt("min", 2)
		count, err := s.countTagInPlan(ctx, tag, weekStart, weekEnd)
		if err != nil {
			return RuleEvaluation{}, err
		}
		status := RuleStatusOK
		if count < minCount {
			status = RuleStatusWarning
		}
		return RuleEvaluation{
			RuleID: rule.ID, RuleName: rule.Name, Status: status,
			Message: fmt.Sprintf("'%s': %d/%d+", tag, count, minCount),
		}, nil

	case models.RuleTypeMaxTagPerWeek:
		tag := rule.Config.GetString("tag", "")
		maxCount := rule.Config.GetInt("max", 2)
		count, err := s.countTagInPlan(ctx, tag, weekStart, weekEnd)
		if err != nil {
			return RuleEvaluation{}, err
		}
		return RuleEvaluation{
			RuleID: rule.ID, RuleName: rule.Name,
			Status:  thresholdStatus(count, maxCount),
			Message: fmt.Sprintf("'%s': %d/%d", tag, count, maxCount),
		}, nil

	default:
		return RuleEvaluation{RuleID: rule.ID, RuleName: rule.Name, Status: RuleStatusOK}, nil
	}
}

// countTagInPlan counts non-skipped plan entries in [start, end] whose recipe
// carries the given tag. Protein rules use the same tag table as everything
// else, so a single counter serves both.
func (s *RulesService) countTagInPlan(ctx context.Context, tagName string, start, end time.Time) (int, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&models.MealPlan{}).
		Joins("JOIN recipe_tags ON recipe_tags.recipe_id = meal_plans.recipe_id").
		Joins("JOIN tags ON tags.id = recipe_tags.tag_id").
		Where("tags.name = ?", strings.ToLower(tagName)).
		Where("meal_plans.date >= ? AND meal_plans.date <= ?", start, end).
		Where("meal_plans.status <> ?", models.PlanStatusSkipped).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count tagged plans: %w", err)
	}
	return int(count), nil
}

func (s *RulesService) recipeHasTag(ctx context.Context, recipeID uuid.UUID, tagName string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&models.RecipeTag{}).
		Joins("JOIN tags ON tags.id = recipe_tags.tag_id").
		Where("recipe_tags.recipe_id = ?", recipeID).
		Where("tags.name = ?", strings.ToLower(tagName)).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to check recipe tag: %w", err)
	}
	return count > 0, nil
}

func thresholdStatus(count, max int) string {
	switch {
	case count > max:
		return RuleStatusViolated
	case count == max:
		return RuleStatusWarning
	default:
		return RuleStatusOK
	}
}

// title uppercases the first letter for user-facing rule messages.
func title(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// Rule management errors.
var ErrRuleNotFound = errors.New("rule not found")

var validRuleTypes = map[string]bool{
	models.RuleTypeProteinMaxPerWeek:   true,
	models.RuleTypeProteinMinPerPeriod: true,
	models.RuleTypeNoRepeatWithinDays:  true,
	models.RuleTypeMinTagPerWeek:       true,
	models.RuleTypeMaxTagPerWeek:       true,
}

// ListRules returns every rule, active or not.
func (s *RulesService) ListRules(ctx context.Context) ([]models.DietaryRule, error) {
	var rules []models.DietaryRule
	err := s.db.WithContext(ctx).Order("created_at").Find(&rules).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list rules: %w", err)
	}
	return rules, nil
}

// CreateRule adds a household rule.
func (s *RulesService) CreateRule(ctx context.Context, name, ruleType string, config models.JSONMap) (*models.DietaryRule, error) {
	if strings.TrimSpace(name) == "" {
		return nil, fmt.Errorf("rule name is required")
	}
	if !validRuleTypes[ruleType] {
		return nil, fmt.Errorf("unknown rule type %q", ruleType)
	}
	if config == nil {
		config = models.JSONMap{}
	}
	rule := &models.DietaryRule{
		Name:     strings.TrimSpace(name),
		RuleType: ruleType,
		Config:   config,
		Active:   true,
	}
	if err := s.db.WithContext(ctx).Create(rule).Error; err != nil {
		return nil, fmt.Errorf("failed to create rule: %w", err)
	}
	s.logger.Info("dietary rule created", zap.String("name", rule.Name), zap.String("type", ruleType))
	return rule, nil
}

// RuleUpdate carries optional field changes for a rule.
type RuleUpdate struct {
	Name   *string         `json:"name"`
	Config *models.JSONMap `json:"config"`
	Active *bool           `json:"active"`
}

// UpdateRule applies partial changes. The rule type is immutable; delete and
// recreate to change it.
func (s *RulesService) UpdateRule(ctx context.Context, ruleID uuid.UUID, update RuleUpdate) (*models.DietaryRule, error) {
	var rule models.DietaryRule
	err := s.db.WithContext(ctx).First(&rule, "id = ?", ruleID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRuleNotFound
		}
		return nil, fmt.Errorf("failed to load rule: %w", err)
	}

	changes := map[string]any{}
	if update.Name != nil && strings.TrimSpace(*update.Name) != "" {
		changes["name"] = strings.TrimSpace(*update.Name)
	}
	if update.Config != nil {
		changes["config"] = *update.Config
	}
	if update.Active != nil {
		changes["active"] = *update.Active
	}
	if len(changes) > 0 {
		if err := s.db.WithContext(ctx).Model(&rule).Updates(changes).Error; err != nil {
			return nil, fmt.Errorf("failed to update rule: %w", err)
		}
	}
	return &rule, nil
}

// DeleteRule removes a rule permanently.
func (s *RulesService) DeleteRule(ctx context.Context, ruleID uuid.UUID) error {
	result := s.db.WithContext(ctx).Delete(&models.DietaryRule{}, "id = ?", ruleID)
	if result.Error != nil {
		return fmt.Errorf("failed to delete rule: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrRuleNotFound
	}
	return nil
}

// ErrAIUnavailable is returned when an AI-backed operation runs without a
// configured language model.
var ErrAIUnavailable = errors.New("AI not configured")

// ParsedRule is the structured form of a natural-language rule description.
type ParsedRule struct {
	Success     bool           `json:"success"`
	Name        string         `json:"name,omitempty"`
	RuleType    string         `json:"rule_type,omitempty"`
	Config      models.JSONMap `json:"config,omitempty"`
	Explanation string         `json:"explanation,omitempty"`
	Error       string         `json:"error,omitempty"`
}

const ruleParsePrompt = `You are a dietary rule parser for a meal planning app called Forkcast.

Convert the user's natural language rule into a structured JSON rule. The app supports these rule types:

1. **protein_max_per_week** — Limit a protein/ingredient to X times per period
   Config: {"protein": "chicken", "max": 2, "period_days": 7}

2. **protein_min_per_period** — Require a protein/ingredient at least X times per period
   Config: {"protein": "salmon", "min": 1, "period_days": 14}

3. **no_repeat_within_days** — Don't repeat the same recipe within X days
   Config: {"min_days_between_repeat": 14}

4. **min_tag_per_week** — Require at least X meals with a tag per period
   Config: {"tag": "vegetarian", "min": 2, "period_days": 7}

5. **max_tag_per_week** — Limit meals with a tag to X per period
   Config: {"tag": "pasta", "max": 2, "period_days": 7}

Notes:
- "protein" values are tag names on recipes (chicken, beef, salmon, pork, tofu, shrimp, etc.)
- "tag" values can be cuisine types (italian, mexican, asian), dietary labels (vegetarian, vegan, gluten-free), meal styles (comfort-food, quick, soup), or ingredients (pasta, rice)
- "per week" = period_days: 7, "per 2 weeks" / "every other week" = period_days: 14, "per month" = period_days: 30
- For limits use max types, for minimums use min types
- If the user's request doesn't map to any rule type, set rule_type to "unsupported"

User's rule: %q

Respond with ONLY valid JSON (no markdown, no explanation):
{
  "name": "Human-readable rule name",
  "rule_type": "one of the types above",
  "config": {...},
  "explanation": "Brief explanation of what this rule does"
}`

// ParseNaturalLanguage turns a phrase like "no more than 3 pasta dishes per
// week" into a rule the engine can evaluate. An unsupported phrase comes back
// with Success=false rather than an error.
func (s *RulesService) ParseNaturalLanguage(ctx context.Context, llm LLMClient, text string) (*ParsedRule, error) {
	if llm == nil {
		return nil, ErrAIUnavailable
	}
	s.logger.Info("parsing natural language rule", zap.String("text", text))

	raw, err := llm.GenerateContent(ctx, fmt.Sprintf(ruleParsePrompt, text))
	if err != nil {
		return nil, fmt.Errorf("rule parsing failed: %w", err)
	}

	var parsed struct {
		Name        string         `json:"name"`
		RuleType    string         `json:"rule_type"`
		Config      models.JSONMap `json:"config"`
		Explanation string         `json:"explanation"`
	}
	if err := json.Unmarshal([]byte(stripCodeFence(raw)), &parsed); err != nil {
		return nil, fmt.Errorf("model returned invalid rule JSON: %w", err)
	}

	if parsed.RuleType == "unsupported" || !validRuleTypes[parsed.RuleType] {
		msg := parsed.Explanation
		if msg == "" {
			msg = "Could not understand this as a dietary rule"
		}
		return &ParsedRule{Success: false, Error: msg}, nil
	}

	s.logger.Info("rule parsed",
		zap.String("name", parsed.Name),
		zap.String("type", parsed.RuleType))
	return &ParsedRule{
		Success:     true,
		Name:        parsed.Name,
		RuleType:    parsed.RuleType,
		Config:      parsed.Config,
		Explanation: parsed.Explanation,
	}, nil
}
