package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Meal plan entry statuses.
const (
	PlanStatusPlanned = "planned"
	PlanStatusCooked  = "cooked"
	PlanStatusSkipped = "skipped"
)

// MealPlan schedules one recipe on one date. Status moves planned→cooked when
// the meal is rated, or planned→skipped manually; skipped entries are ignored
// by the rules engine and the shopping generator.
type MealPlan struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Date      time.Time `gorm:"type:date;not null;index:ix_meal_plan_date" json:"date"`
	MealType  string    `gorm:"size:20;default:dinner" json:"meal_type"`
	RecipeID  uuid.UUID `gorm:"type:uuid;not null" json:"recipe_id"`
	Status    string    `gorm:"size:20;default:planned" json:"status"`
	Notes     string    `gorm:"type:text" json:"notes"`
	CreatedAt time.Time `json:"created_at"`
}

func (MealPlan) TableName() string {
	return "meal_plans"
}

func (m *MealPlan) BeforeCreate(tx *gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	return nil
}

// Dietary rule types.
const (
	RuleTypeProteinMaxPerWeek   = "protein_max_per_week"
	RuleTypeProteinMinPerPeriod = "protein_min_per_period"
	RuleTypeNoRepeatWithinDays  = "no_repeat_within_days"
	RuleTypeMinTagPerWeek       = "min_tag_per_week"
	RuleTypeMaxTagPerWeek       = "max_tag_per_week"
)

// DietaryRule is a household-level constraint evaluated against proposed and
// existing meal plan entries. Config keys depend on the rule type, e.g.
// {"protein": "chicken", "max": 2, "period_days": 7}.
type DietaryRule struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Name      string    `gorm:"size:200;not null" json:"name"`
	RuleType  string    `gorm:"size:50;not null" json:"rule_type"`
	Config    JSONMap   `gorm:"type:jsonb;not null;default:'{}'" json:"config"`
	Active    bool      `gorm:"default:true" json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

func (DietaryRule) TableName() string {
	return "dietary_rules"
}

func (r *DietaryRule) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}

// CalendarEvent is a local or synced calendar entry. Dinner conflicts mark a
// night as unavailable in the week planner.
type CalendarEvent struct {
	ID               uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Date             time.Time `gorm:"type:date;not null;index:ix_calendar_date" json:"date"`
	StartTime        string    `gorm:"size:10" json:"start_time"`
	EndTime          string    `gorm:"size:10" json:"end_time"`
	Summary          string    `gorm:"size:500" json:"summary"`
	IsDinnerConflict bool      `gorm:"default:false" json:"is_dinner_conflict"`
	Source           string    `gorm:"size:50;default:manual" json:"source"`
	SyncedAt         time.Time `gorm:"autoCreateTime" json:"synced_at"`
}

func (CalendarEvent) TableName() string {
	return "calendar_events"
}

func (e *CalendarEvent) BeforeCreate(tx *gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return nil
}
