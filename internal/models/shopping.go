package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ShoppingList is a generated artifact: the aggregated ingredients of one
// week's non-skipped meal plans, minus pantry staples.
type ShoppingList struct {
	ID          uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	Name        string          `gorm:"size:200" json:"name"`
	WeekOf      *time.Time      `gorm:"type:date" json:"week_of"`
	MealPlanIDs JSONStringArray `gorm:"type:jsonb;default:'[]'" json:"meal_plan_ids"`
	CreatedAt   time.Time       `json:"created_at"`

	Items []ShoppingItem `gorm:"foreignKey:ListID;constraint:OnDelete:CASCADE" json:"items,omitempty"`
}

func (ShoppingList) TableName() string {
	return "shopping_lists"
}

func (l *ShoppingList) BeforeCreate(tx *gorm.DB) error {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	return nil
}

// ShoppingItem is one aggregated line on a list, grouped by aisle.
type ShoppingItem struct {
	ID           uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	ListID       uuid.UUID  `gorm:"type:uuid;not null;index" json:"list_id"`
	IngredientID *uuid.UUID `gorm:"type:uuid" json:"ingredient_id"`
	Name         string     `gorm:"size:300;not null" json:"name"`
	Quantity     *float64   `json:"quantity"`
	Unit         string     `gorm:"size:50" json:"unit"`
	Aisle        string     `gorm:"size:100;default:Other" json:"aisle"`
	Checked      bool       `gorm:"default:false" json:"checked"`
	CheckedBy    *uuid.UUID `gorm:"type:uuid" json:"checked_by"`
	CheckedAt    *time.Time `json:"checked_at"`
}

func (ShoppingItem) TableName() string {
	return "shopping_items"
}

func (i *ShoppingItem) BeforeCreate(tx *gorm.DB) error {
	if i.ID == uuid.Nil {
		i.ID = uuid.New()
	}
	return nil
}

// PantryStaple is an ingredient assumed always on hand; generated lists
// never include it.
type PantryStaple struct {
	ID       uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Name     string    `gorm:"size:200;uniqueIndex;not null" json:"name"`
	Category string    `gorm:"size:50;default:pantry" json:"category"`
}

func (PantryStaple) TableName() string {
	return "pantry_staples"
}

func (p *PantryStaple) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}
