package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/forkcast/backend/internal/models"
)

// Planner service errors.
var (
	ErrPlanNotFound  = errors.New("plan entry not found")
	ErrEventNotFound = errors.New("calendar event not found")
)

// PlanEntry is a meal plan row joined with its recipe's display fields.
type PlanEntry struct {
	ID          uuid.UUID `json:"id"`
	Date        string    `json:"date"`
	MealType    string    `json:"meal_type"`
	RecipeID    uuid.UUID `json:"recipe_id"`
	RecipeTitle string    `json:"recipe_title"`
	RecipeImage string    `json:"recipe_image"`
	Status      string    `json:"status"`
	Notes       string    `json:"notes"`
}

// DayEvent merges local calendar rows and Home Assistant events into one
// shape for the week view.
type DayEvent struct {
	ID               *uuid.UUID `json:"id"`
	Date             string     `json:"date"`
	StartTime        string     `json:"start_time,omitempty"`
	EndTime          string     `json:"end_time,omitempty"`
	Summary          string     `json:"summary"`
	IsDinnerConflict bool       `json:"is_dinner_conflict"`
	Source           string     `json:"source"`
	Calendar         string     `json:"calendar,omitempty"`
	Location         string     `json:"location,omitempty"`
	AllDay           bool       `json:"all_day"`
}

// WeekDay is one night of the week plan.
type WeekDay struct {
	Date           string      `json:"date"`
	DayName        string      `json:"day_name"`
	Available      bool        `json:"available"`
	Meals          []PlanEntry `json:"meals"`
	CalendarEvents []DayEvent  `json:"calendar_events"`
}

// WeekPlan is the full planner week view.
type WeekPlan struct {
	WeekStart  string           `json:"week_start"`
	WeekEnd    string           `json:"week_end"`
	Days       []WeekDay        `json:"days"`
	RuleStatus []RuleEvaluation `json:"rule_status"`
}

// DayAvailability reports whether a night is free for dinner.
type DayAvailability struct {
	Date      string     `json:"date"`
	Available bool       `json:"available"`
	Events    []DayEvent `json:"events"`
}

// PlannerService owns the meal plan and the calendar around it.
type PlannerService struct {
	db     *gorm.DB
	rules  *RulesService
	ha     *HACalendarService
	taste  *TasteService
	logger *zap.Logger
}

// NewPlannerService creates a planner. ha and taste may be nil when those
// integrations are not configured.
func NewPlannerService(db *gorm.DB, rules *RulesService, ha *HACalendarService, taste *TasteService, logger *zap.Logger) *PlannerService {
	return &PlannerService{db: db, rules: rules, ha: ha, taste: taste, logger: logger}
}

const dateLayout = "2006-01-02"

// WeekStartFor returns the Monday of the week containing t.
func WeekStartFor(t time.Time) time.Time {
	offset := (int(t.Weekday()) + 6) % 7
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return day.AddDate(0, 0, -offset)
}

// Week builds the day-by-day view for one week: meals, merged calendar
// events, per-night availability and the household rule status.
func (s *PlannerService) Week(ctx context.Context, start time.Time) (*WeekPlan, error) {
	weekEnd := start.AddDate(0, 0, 6)

	var plans []models.MealPlan
	err := s.db.WithContext(ctx).
		Where("date >= ? AND date <= ?", start, weekEnd).
		Order("date").
		Find(&plans).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load meal plans: %w", err)
	}

	var localEvents []models.CalendarEvent
	err = s.db.WithContext(ctx).
		Where("date >= ? AND date <= ?", start, weekEnd).
		Order("date").
		Find(&localEvents).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load calendar events: %w", err)
	}

	var haEvents []HAEvent
	if s.ha != nil {
		haEvents, err = s.ha.FetchEvents(ctx, start, weekEnd)
		if err != nil {
			s.logger.Warn("home assistant calendar fetch failed", zap.Error(err))
			haEvents = nil
		}
	}

	ruleStatus, err := s.rules.WeekStatus(ctx, start)
	if err != nil {
		return nil, err
	}

	days := make([]WeekDay, 0, 7)
	totalMeals := 0
	for i := 0; i < 7; i++ {
		d := start.AddDate(0, 0, i)
		dateStr := d.Format(dateLayout)

		meals := []PlanEntry{}
		for _, p := range plans {
			if p.Date.Format(dateLayout) != dateStr {
				continue
			}
			entry := PlanEntry{
				ID:       p.ID,
				Date:     dateStr,
				MealType: p.MealType,
				RecipeID: p.RecipeID,
				Status:   p.Status,
				Notes:    p.Notes,
			}
			var recipe models.Recipe
			if err := s.db.WithContext(ctx).First(&recipe, "id = ?", p.RecipeID).Error; err == nil {
				entry.RecipeTitle = recipe.Title
				entry.RecipeImage = recipe.ImageURL
			} else {
				entry.RecipeTitle = "Unknown"
			}
			meals = append(meals, entry)
		}
		totalMeals += len(meals)

		events := []DayEvent{}
		hasConflict := false
		for _, e := range localEvents {
			if e.Date.Format(dateLayout) != dateStr {
				continue
			}
			id := e.ID
			events = append(events, DayEvent{
				ID:               &id,
				Date:             dateStr,
				StartTime:        e.StartTime,
				EndTime:          e.EndTime,
				Summary:          e.Summary,
				IsDinnerConflict: e.IsDinnerConflict,
				Source:           e.Source,
			})
			if e.IsDinnerConflict {
				hasConflict = true
			}
		}
		for _, e := range haEvents {
			if e.Date != dateStr {
				continue
			}
			events = append(events, DayEvent{
				Date:             e.Date,
				StartTime:        e.StartTime,
				EndTime:          e.EndTime,
				Summary:          e.Summary,
				IsDinnerConflict: e.IsDinnerConflict,
				Source:           "homeassistant",
				Calendar:         e.Calendar,
				Location:         e.Location,
				AllDay:           e.AllDay,
			})
			if e.IsDinnerConflict {
				hasConflict = true
			}
		}

		days = append(days, WeekDay{
			Date:           dateStr,
			DayName:        d.Weekday().String(),
			Available:      !hasConflict,
			Meals:          meals,
			CalendarEvents: events,
		})
	}

	available := 0
	for _, d := range days {
		if d.Available {
			available++
		}
	}
	s.logger.Info("week plan loaded",
		zap.String("week_start", start.Format(dateLayout)),
		zap.Int("meals", totalMeals),
		zap.Int("available_nights", available))

	return &WeekPlan{
		WeekStart:  start.Format(dateLayout),
		WeekEnd:    weekEnd.Format(dateLayout),
		Days:       days,
		RuleStatus: ruleStatus,
	}, nil
}

// CreateEntry schedules a recipe on a date after checking the household
// rules. Violations don't block the entry; they come back alongside it so
// the UI can warn.
func (s *PlannerService) CreateEntry(ctx context.Context, date time.Time, mealType string, recipeID uuid.UUID, notes string) (*models.MealPlan, []RuleEvaluation, error) {
	var recipe models.Recipe
	err := s.db.WithContext(ctx).First(&recipe, "id = ?", recipeID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, ErrRecipeNotFound
		}
		return nil, nil, fmt.Errorf("failed to load recipe: %w", err)
	}

	evals, err := s.rules.Evaluate(ctx, date, recipeID)
	if err != nil {
		return nil, nil, err
	}
	for _, e := range evals {
		if e.Status == RuleStatusViolated {
			s.logger.Warn("rule violated by plan entry",
				zap.String("rule", e.RuleName),
				zap.String("recipe", recipe.Title),
				zap.String("date", date.Format(dateLayout)))
		}
	}

	if mealType == "" {
		mealType = "dinner"
	}
	plan := &models.MealPlan{
		Date:     date,
		MealType: mealType,
		RecipeID: recipeID,
		Status:   models.PlanStatusPlanned,
		Notes:    notes,
	}
	if err := s.db.WithContext(ctx).Create(plan).Error; err != nil {
		return nil, nil, fmt.Errorf("failed to create plan entry: %w", err)
	}

	s.logger.Info("meal planned",
		zap.String("recipe", recipe.Title),
		zap.String("date", date.Format(dateLayout)))
	return plan, evals, nil
}

// PlanUpdate carries optional field changes for a plan entry.
type PlanUpdate struct {
	Date     *time.Time `json:"date"`
	MealType *string    `json:"meal_type"`
	RecipeID *uuid.UUID `json:"recipe_id"`
	Status   *string    `json:"status"`
	Notes    *string    `json:"notes"`
}

// UpdateEntry applies partial changes. Moving an entry to cooked records the
// meal in the household cooking history.
func (s *PlannerService) UpdateEntry(ctx context.Context, planID uuid.UUID, update PlanUpdate) (*models.MealPlan, error) {
	var plan models.MealPlan
	err := s.db.WithContext(ctx).First(&plan, "id = ?", planID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPlanNotFound
		}
		return nil, fmt.Errorf("failed to load plan entry: %w", err)
	}

	wasCooked := plan.Status == models.PlanStatusCooked

	changes := map[string]any{}
	if update.Date != nil {
		changes["date"] = *update.Date
	}
	if update.MealType != nil {
		changes["meal_type"] = *update.MealType
	}
	if update.RecipeID != nil {
		var recipe models.Recipe
		if err := s.db.WithContext(ctx).First(&recipe, "id = ?", *update.RecipeID).Error; err != nil {
			return nil, ErrRecipeNotFound
		}
		changes["recipe_id"] = *update.RecipeID
	}
	if update.Status != nil {
		switch *update.Status {
		case models.PlanStatusPlanned, models.PlanStatusCooked, models.PlanStatusSkipped:
		default:
			return nil, fmt.Errorf("invalid status %q", *update.Status)
		}
		changes["status"] = *update.Status
	}
	if update.Notes != nil {
		changes["notes"] = *update.Notes
	}

	if len(changes) > 0 {
		if err := s.db.WithContext(ctx).Model(&plan).Updates(changes).Error; err != nil {
			return nil, fmt.Errorf("failed to update plan entry: %w", err)
		}
	}

	if s.taste != nil && !wasCooked && plan.Status == models.PlanStatusCooked {
		var userIDs []uuid.UUID
		var users []models.User
		if err := s.db.WithContext(ctx).Order("created_at").Find(&users).Error; err == nil {
			for _, u := range users {
				userIDs = append(userIDs, u.ID)
			}
		}
		if _, err := s.taste.RecordCooking(ctx, plan.RecipeID, plan.Date, userIDs); err != nil {
			s.logger.Warn("failed to record cooking history", zap.Error(err))
		}
	}

	return &plan, nil
}

// DeleteEntry removes a meal from the plan.
func (s *PlannerService) DeleteEntry(ctx context.Context, planID uuid.UUID) error {
	result := s.db.WithContext(ctx).Delete(&models.MealPlan{}, "id = ?", planID)
	if result.Error != nil {
		return fmt.Errorf("failed to delete plan entry: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrPlanNotFound
	}
	return nil
}

// AddCalendarEvent records a manual calendar entry.
func (s *PlannerService) AddCalendarEvent(ctx context.Context, date time.Time, startTime, endTime, summary string, isDinnerConflict bool) (*models.CalendarEvent, error) {
	event := &models.CalendarEvent{
		Date:             date,
		StartTime:        startTime,
		EndTime:          endTime,
		Summary:          summary,
		IsDinnerConflict: isDinnerConflict,
		Source:           "manual",
	}
	if err := s.db.WithContext(ctx).Create(event).Error; err != nil {
		return nil, fmt.Errorf("failed to create calendar event: %w", err)
	}
	s.logger.Info("calendar event added",
		zap.String("summary", summary),
		zap.String("date", date.Format(dateLayout)))
	return event, nil
}

// DeleteCalendarEvent removes a local calendar event.
func (s *PlannerService) DeleteCalendarEvent(ctx context.Context, eventID uuid.UUID) error {
	result := s.db.WithContext(ctx).Delete(&models.CalendarEvent{}, "id = ?", eventID)
	if result.Error != nil {
		return fmt.Errorf("failed to delete calendar event: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrEventNotFound
	}
	return nil
}

// Availability reports the free dinner nights between start and end from
// local calendar events.
func (s *PlannerService) Availability(ctx context.Context, start, end time.Time) ([]DayAvailability, error) {
	var events []models.CalendarEvent
	err := s.db.WithContext(ctx).
		Where("date >= ? AND date <= ?", start, end).
		Order("date").
		Find(&events).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load calendar events: %w", err)
	}

	var out []DayAvailability
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		dateStr := d.Format(dateLayout)
		dayEvents := []DayEvent{}
		hasConflict := false
		for _, e := range events {
			if e.Date.Format(dateLayout) != dateStr {
				continue
			}
			id := e.ID
			dayEvents = append(dayEvents, DayEvent{
				ID:               &id,
				Date:             dateStr,
				StartTime:        e.StartTime,
				EndTime:          e.EndTime,
				Summary:          e.Summary,
				IsDinnerConflict: e.IsDinnerConflict,
				Source:           e.Source,
			})
			if e.IsDinnerConflict {
				hasConflict = true
			}
		}
		out = append(out, DayAvailability{
			Date:      dateStr,
			Available: !hasConflict,
			Events:    dayEvents,
		})
	}
	return out, nil
}

// HAEvents fetches Home Assistant calendar events for a date range, with a
// dinner conflict total.
func (s *PlannerService) HAEvents(ctx context.Context, start, end time.Time) ([]HAEvent, int, error) {
	if s.ha == nil {
		return []HAEvent{}, 0, nil
	}
	events, err := s.ha.FetchEvents(ctx, start, end)
	if err != nil {
		return nil, 0, err
	}
	conflicts := 0
	for _, e := range events {
		if e.IsDinnerConflict {
			conflicts++
		}
	}
	return events, conflicts, nil
}
