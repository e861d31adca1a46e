package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Recipe difficulty levels.
const (
	DifficultyEasy   = "easy"
	DifficultyMedium = "medium"
	DifficultyHard   = "hard"
)

// Recipe is the core library entity. Ingredients, steps and tags cascade
// on delete.
type Recipe struct {
	ID           uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	Title        string     `gorm:"size:500;not null;index" json:"title"`
	Description  string     `gorm:"type:text" json:"description"`
	SourceURL    string     `gorm:"type:text" json:"source_url"`
	ImageURL     string     `gorm:"type:text" json:"image_url"`
	ImagePath    string     `gorm:"size:500" json:"image_path"`
	PrepTimeMin  *int       `json:"prep_time_min"`
	CookTimeMin  *int       `json:"cook_time_min"`
	TotalTimeMin *int       `json:"total_time_min"`
	Servings     int        `gorm:"default:4" json:"servings"`
	Cuisine      string     `gorm:"size:100;index" json:"cuisine"`
	Difficulty   string     `gorm:"size:20;default:medium" json:"difficulty"`
	Notes        string     `gorm:"type:text" json:"notes"`
	OriginalText string     `gorm:"type:text" json:"original_text"`
	Archived     bool       `gorm:"default:false" json:"archived"`
	CreatedBy    *uuid.UUID `gorm:"type:uuid" json:"created_by"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`

	Ingredients []RecipeIngredient `gorm:"foreignKey:RecipeID;constraint:OnDelete:CASCADE" json:"ingredients,omitempty"`
	Steps       []RecipeStep       `gorm:"foreignKey:RecipeID;constraint:OnDelete:CASCADE" json:"steps,omitempty"`
	Tags        []Tag              `gorm:"many2many:recipe_tags;joinForeignKey:RecipeID;joinReferences:TagID" json:"-"`
	Ratings     []Rating           `gorm:"foreignKey:RecipeID;constraint:OnDelete:CASCADE" json:"-"`
}

func (Recipe) TableName() string {
	return "recipes"
}

func (r *Recipe) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}

// Ingredient is the canonical pantry-level ingredient. Category drives aisle
// grouping on generated shopping lists.
type Ingredient struct {
	ID       uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Name     string    `gorm:"size:200;uniqueIndex;not null" json:"name"`
	Category string    `gorm:"size:50;default:other" json:"category"`
}

func (Ingredient) TableName() string {
	return "ingredients"
}

func (i *Ingredient) BeforeCreate(tx *gorm.DB) error {
	if i.ID == uuid.Nil {
		i.ID = uuid.New()
	}
	return nil
}

// RecipeIngredient is one ingredient line on a recipe, keeping the original
// text alongside the parsed quantity/unit and the canonical ingredient link.
type RecipeIngredient struct {
	ID           uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	RecipeID     uuid.UUID  `gorm:"type:uuid;not null;index" json:"recipe_id"`
	IngredientID *uuid.UUID `gorm:"type:uuid" json:"ingredient_id"`
	RawText      string     `gorm:"size:500;not null" json:"raw_text"`
	Quantity     *float64   `json:"quantity"`
	Unit         string     `gorm:"size:50" json:"unit"`
	Preparation  string     `gorm:"size:200" json:"preparation"`
	GroupName    string     `gorm:"size:200" json:"group_name"`
	SortOrder    int        `gorm:"default:0" json:"sort_order"`
}

func (RecipeIngredient) TableName() string {
	return "recipe_ingredients"
}

func (ri *RecipeIngredient) BeforeCreate(tx *gorm.DB) error {
	if ri.ID == uuid.Nil {
		ri.ID = uuid.New()
	}
	return nil
}

// RecipeStep is one ordered instruction, with optional timer metadata for
// cook-along mode.
type RecipeStep struct {
	ID              uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	RecipeID        uuid.UUID `gorm:"type:uuid;not null;index" json:"recipe_id"`
	StepNumber      int       `gorm:"not null" json:"step_number"`
	Instruction     string    `gorm:"type:text;not null" json:"instruction"`
	DurationMinutes *int      `json:"duration_minutes"`
	TimerLabel      string    `gorm:"size:100" json:"timer_label"`
}

func (RecipeStep) TableName() string {
	return "recipe_steps"
}

func (rs *RecipeStep) BeforeCreate(tx *gorm.DB) error {
	if rs.ID == uuid.Nil {
		rs.ID = uuid.New()
	}
	return nil
}

// Tag types used by the rules engine and taste learner.
const (
	TagTypeCuisine = "cuisine"
	TagTypeProtein = "protein"
	TagTypeEffort  = "effort"
	TagTypeDietary = "dietary"
	TagTypeCustom  = "custom"
)

// Tag is a typed label. Protein tags are the unit of dietary-rule accounting.
type Tag struct {
	ID    uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Name  string    `gorm:"size:100;not null;uniqueIndex:uq_tag_name_type" json:"name"`
	Type  string    `gorm:"size:50;default:custom;uniqueIndex:uq_tag_name_type" json:"type"`
	Color string    `gorm:"size:7;default:#6B7280" json:"color"`
}

func (Tag) TableName() string {
	return "tags"
}

func (t *Tag) BeforeCreate(tx *gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return nil
}

// RecipeTag joins recipes and tags. The composite key doubles as the join
// table for the Recipe.Tags association.
type RecipeTag struct {
	RecipeID uuid.UUID `gorm:"type:uuid;primaryKey" json:"recipe_id"`
	TagID    uuid.UUID `gorm:"type:uuid;primaryKey" json:"tag_id"`
}

func (RecipeTag) TableName() string {
	return "recipe_tags"
}

// Rating is one user's verdict after cooking a recipe. Feeds taste learning.
type Rating struct {
	ID             uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	RecipeID       uuid.UUID  `gorm:"type:uuid;not null;index:ix_ratings_recipe_user" json:"recipe_id"`
	UserID         uuid.UUID  `gorm:"type:uuid;not null;index:ix_ratings_recipe_user" json:"user_id"`
	Stars          int        `gorm:"not null" json:"stars"`
	WouldMakeAgain bool       `gorm:"default:true" json:"would_make_again"`
	Notes          string     `gorm:"type:text" json:"notes"`
	CookedAt       *time.Time `gorm:"type:date" json:"cooked_at"`
	CreatedAt      time.Time  `json:"created_at"`
}

func (Rating) TableName() string {
	return "ratings"
}

func (r *Rating) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}
