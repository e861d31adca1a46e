package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forkcast/backend/internal/models"
)

func TestProteinMaxRule(t *testing.T) {
	db := setupTestDB(t)
	svc := NewRulesService(db, testLogger())
	ctx := context.Background()

	_, err := svc.CreateRule(ctx, "Chicken limit", models.RuleTypeProteinMaxPerWeek,
		models.JSONMap{"protein": "chicken", "max": float64(2), "period_days": float64(7)})
	require.NoError(t, err)

	chicken := createTestRecipe(t, db, "Chicken Parm", "chicken")
	beef := createTestRecipe(t, db, "Beef Stew", "beef")
	planDate := date(2026, time.March, 6)

	// Nothing planned yet: adding a chicken dish is fine.
	evals, err := svc.Evaluate(ctx, planDate, chicken.ID)
	require.NoError(t, err)
	require.Len(t, evals, 1)
	assert.Equal(t, RuleStatusOK, evals[0].Status)

	// One chicken meal already on the plan puts the proposal at the limit.
	planMeal(t, db, chicken.ID, date(2026, time.March, 2))
	evals, err = svc.Evaluate(ctx, planDate, chicken.ID)
	require.NoError(t, err)
	assert.Equal(t, RuleStatusWarning, evals[0].Status)

	// Two already planned: a third chicken dish violates.
	planMeal(t, db, chicken.ID, date(2026, time.March, 4))
	evals, err = svc.Evaluate(ctx, planDate, chicken.ID)
	require.NoError(t, err)
	assert.Equal(t, RuleStatusViolated, evals[0].Status)
	assert.Contains(t, evals[0].Message, "Chicken")

	// A beef dish doesn't count against the chicken rule.
	evals, err = svc.Evaluate(ctx, planDate, beef.ID)
	require.NoError(t, err)
	assert.Equal(t, RuleStatusWarning, evals[0].Status)
}

func TestProteinMaxIgnoresSkippedMeals(t *testing.T) {
	db := setupTestDB(t)
	svc := NewRulesService(db, testLogger())
	ctx := context.Background()

	_, err := svc.CreateRule(ctx, "Chicken limit", models.RuleTypeProteinMaxPerWeek,
		models.JSONMap{"protein": "chicken", "max": float64(2)})
	require.NoError(t, err)

	chicken := createTestRecipe(t, db, "Chicken Tacos", "chicken")
	skipped := planMeal(t, db, chicken.ID, date(2026, time.March, 2))
	require.NoError(t, db.Model(skipped).Update("status", models.PlanStatusSkipped).Error)

	evals, err := svc.Evaluate(ctx, date(2026, time.March, 6), chicken.ID)
	require.NoError(t, err)
	assert.Equal(t, RuleStatusOK, evals[0].Status)
}

func TestNoRepeatRule(t *testing.T) {
	db := setupTestDB(t)
	svc := NewRulesService(db, testLogger())
	ctx := context.Background()

	_, err := svc.CreateRule(ctx, "No repeats", models.RuleTypeNoRepeatWithinDays,
		models.JSONMap{"min_days_between_repeat": float64(14)})
	require.NoError(t, err)

	recipe := createTestRecipe(t, db, "Lasagna")
	planMeal(t, db, recipe.ID, date(2026, time.March, 1))

	// Planned 9 days ago, inside the 14 day window.
	evals, err := svc.Evaluate(ctx, date(2026, time.March, 10), recipe.ID)
	require.NoError(t, err)
	require.Len(t, evals, 1)
	assert.Equal(t, RuleStatusViolated, evals[0].Status)
	assert.Equal(t, 9, evals[0].Details["days_since"])

	// Outside the window.
	evals, err = svc.Evaluate(ctx, date(2026, time.March, 20), recipe.ID)
	require.NoError(t, err)
	assert.Equal(t, RuleStatusOK, evals[0].Status)

	// A different recipe is never a repeat.
	other := createTestRecipe(t, db, "Pad Thai")
	evals, err = svc.Evaluate(ctx, date(2026, time.March, 10), other.ID)
	require.NoError(t, err)
	assert.Equal(t, RuleStatusOK, evals[0].Status)
}

func TestMinTagRuleWarnsWhenUnderTarget(t *testing.T) {
	db := setupTestDB(t)
	svc := NewRulesService(db, testLogger())
	ctx := context.Background()

	_, err := svc.CreateRule(ctx, "Veggie nights", models.RuleTypeMinTagPerWeek,
		models.JSONMap{"tag": "vegetarian", "min": float64(2), "period_days": float64(7)})
	require.NoError(t, err)

	veggie := createTestRecipe(t, db, "Mushroom Risotto", "vegetarian")
	steak := createTestRecipe(t, db, "Steak Frites", "beef")

	evals, err := svc.Evaluate(ctx, date(2026, time.March, 6), steak.ID)
	require.NoError(t, err)
	assert.Equal(t, RuleStatusWarning, evals[0].Status)

	planMeal(t, db, veggie.ID, date(2026, time.March, 2))
	evals, err = svc.Evaluate(ctx, date(2026, time.March, 6), veggie.ID)
	require.NoError(t, err)
	assert.Equal(t, RuleStatusOK, evals[0].Status)
}

func TestUnknownRuleTypeDoesNotBlock(t *testing.T) {
	db := setupTestDB(t)
	svc := NewRulesService(db, testLogger())
	ctx := context.Background()

	rule := &models.DietaryRule{
		Name:     "Mystery",
		RuleType: "lunar_phase_alignment",
		Config:   models.JSONMap{},
		Active:   true,
	}
	require.NoError(t, db.Create(rule).Error)

	recipe := createTestRecipe(t, db, "Anything")
	evals, err := svc.Evaluate(ctx, date(2026, time.March, 6), recipe.ID)
	require.NoError(t, err)
	require.Len(t, evals, 1)
	assert.Equal(t, RuleStatusOK, evals[0].Status)
	assert.Contains(t, evals[0].Message, "Unknown rule type")
}

func TestWeekStatusCountsOnlyPlannedMeals(t *testing.T) {
	db := setupTestDB(t)
	svc := NewRulesService(db, testLogger())
	ctx := context.Background()

	_, err := svc.CreateRule(ctx, "Pasta cap", models.RuleTypeMaxTagPerWeek,
		models.JSONMap{"tag": "pasta", "max": float64(2)})
	require.NoError(t, err)

	pasta := createTestRecipe(t, db, "Cacio e Pepe", "pasta")
	weekStart := date(2026, time.March, 2)

	statuses, err := svc.WeekStatus(ctx, weekStart)
	require.NoError(t, err)
	require.Len(t, statuses, 1)
	assert.Equal(t, RuleStatusOK, statuses[0].Status)

	planMeal(t, db, pasta.ID, weekStart)
	planMeal(t, db, pasta.ID, weekStart.AddDate(0, 0, 2))
	statuses, err = svc.WeekStatus(ctx, weekStart)
	require.NoError(t, err)
	assert.Equal(t, RuleStatusWarning, statuses[0].Status)

	planMeal(t, db, pasta.ID, weekStart.AddDate(0, 0, 4))
	statuses, err = svc.WeekStatus(ctx, weekStart)
	require.NoError(t, err)
	assert.Equal(t, RuleStatusViolated, statuses[0].Status)
}

func TestCreateRuleRejectsUnknownType(t *testing.T) {
	db := setupTestDB(t)
	svc := NewRulesService(db, testLogger())

	_, err := svc.CreateRule(context.Background(), "Bad", "no_such_type", nil)
	assert.Error(t, err)
}

func TestUpdateRuleTogglesActive(t *testing.T) {
	db := setupTestDB(t)
	svc := NewRulesService(db, testLogger())
	ctx := context.Background()

	rule, err := svc.CreateRule(ctx, "Chicken limit", models.RuleTypeProteinMaxPerWeek,
		models.JSONMap{"protein": "chicken", "max": float64(1)})
	require.NoError(t, err)

	inactive := false
	_, err = svc.UpdateRule(ctx, rule.ID, RuleUpdate{Active: &inactive})
	require.NoError(t, err)

	chicken := createTestRecipe(t, db, "Roast Chicken", "chicken")
	planMeal(t, db, chicken.ID, date(2026, time.March, 2))

	// Inactive rules are not evaluated at all.
	evals, err := svc.Evaluate(ctx, date(2026, time.March, 4), chicken.ID)
	require.NoError(t, err)
	assert.Empty(t, evals)
}

type stubLLM struct {
	response string
	err      error
}

func (s *stubLLM) GenerateContent(ctx context.Context, prompt string) (string, error) {
	return s.response, s.err
}

func (s *stubLLM) GenerateFromImage(ctx context.Context, prompt, format string, data []byte) (string, error) {
	return s.response, s.err
}

func (s *stubLLM) Close() error { return nil }

func TestParseNaturalLanguage(t *testing.T) {
	db := setupTestDB(t)
	svc := NewRulesService(db, testLogger())
	ctx := context.Background()

	llm := &stubLLM{response: "```json\n" + `{
		"name": "Limit pasta",
		"rule_type": "max_tag_per_week",
		"config": {"tag": "pasta", "max": 2, "period_days": 7},
		"explanation": "No more than 2 pasta dishes per week"
	}` + "\n```"}

	parsed, err := svc.ParseNaturalLanguage(ctx, llm, "no more than 2 pasta dishes a week")
	require.NoError(t, err)
	assert.True(t, parsed.Success)
	assert.Equal(t, models.RuleTypeMaxTagPerWeek, parsed.RuleType)
	assert.Equal(t, "pasta", parsed.Config.GetString("tag", ""))
}

func TestParseNaturalLanguageUnsupported(t *testing.T) {
	db := setupTestDB(t)
	svc := NewRulesService(db, testLogger())

	llm := &stubLLM{response: `{"rule_type": "unsupported", "explanation": "Not a dietary rule"}`}
	parsed, err := svc.ParseNaturalLanguage(context.Background(), llm, "make my kitchen bigger")
	require.NoError(t, err)
	assert.False(t, parsed.Success)
	assert.Equal(t, "Not a dietary rule", parsed.Error)
}

func TestParseNaturalLanguageWithoutLLM(t *testing.T) {
	db := setupTestDB(t)
	svc := NewRulesService(db, testLogger())

	_, err := svc.ParseNaturalLanguage(context.Background(), nil, "anything")
	assert.ErrorIs(t, err, ErrAIUnavailable)
}
