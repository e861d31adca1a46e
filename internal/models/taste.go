package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// TasteProfile is the rolled-up preference map for one user, e.g.
// {"cuisines": {"italian": 0.9}, "proteins": {"salmon": 0.8}}, plus
// AI-generated insight strings.
type TasteProfile struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	UserID      uuid.UUID `gorm:"type:uuid;uniqueIndex;not null" json:"user_id"`
	Preferences JSONMap   `gorm:"type:jsonb;default:'{}'" json:"preferences"`
	Insights    JSONStringArray `gorm:"type:jsonb;default:'[]'" json:"insights"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (TasteProfile) TableName() string {
	return "taste_profiles"
}

func (p *TasteProfile) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}

// TastePreference is one learned data point on one dimension
// (cuisine/protein/effort/dietary).
type TastePreference struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	UserID      uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:uq_taste_pref;index:ix_taste_pref_user" json:"user_id"`
	Dimension   string    `gorm:"size:50;not null;uniqueIndex:uq_taste_pref" json:"dimension"`
	Value       string    `gorm:"size:100;not null;uniqueIndex:uq_taste_pref" json:"value"`
	Score       float64   `gorm:"not null" json:"score"`
	SampleCount int       `gorm:"default:1" json:"sample_count"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (TastePreference) TableName() string {
	return "taste_preferences"
}

func (p *TastePreference) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}

// CookingHistory records every time a recipe was cooked; the taste learner
// and suggestion engine read it.
type CookingHistory struct {
	ID        uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	RecipeID  *uuid.UUID      `gorm:"type:uuid;index:ix_cooking_history_recipe" json:"recipe_id"`
	CookedAt  time.Time       `gorm:"type:date;not null;index:ix_cooking_history_date" json:"cooked_at"`
	CookedBy  JSONStringArray `gorm:"type:jsonb;default:'[]'" json:"cooked_by"`
	Notes     string          `gorm:"type:text" json:"notes"`
	CreatedAt time.Time       `json:"created_at"`
}

func (CookingHistory) TableName() string {
	return "cooking_history"
}

func (h *CookingHistory) BeforeCreate(tx *gorm.DB) error {
	if h.ID == uuid.Nil {
		h.ID = uuid.New()
	}
	return nil
}
