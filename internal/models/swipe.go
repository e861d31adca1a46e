package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Swipe session statuses and decisions.
const (
	SessionStatusActive    = "active"
	SessionStatusCompleted = "completed"

	DecisionLike      = "like"
	DecisionDislike   = "dislike"
	DecisionSkip      = "skip"
	DecisionSuperlike = "superlike"
)

// SwipeContexts recognized when building a session's recipe pool.
const (
	ContextWeeknight = "weeknight"
	ContextQuick     = "quick"
	ContextDateNight = "date_night"
	ContextWeekend   = "weekend"
)

// SwipeSession owns the cards and matches for one round of recipe picking.
// The session is completed once no card in it remains undecided.
type SwipeSession struct {
	ID         uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	Context    string          `gorm:"size:100;default:dinner" json:"context"`
	Status     string          `gorm:"size:20;default:active" json:"status"`
	TargetDate *time.Time      `gorm:"type:date" json:"target_date"`
	RecipePool JSONStringArray `gorm:"type:jsonb;default:'[]'" json:"recipe_pool"`
	CreatedAt  time.Time       `json:"created_at"`

	Cards   []SwipeCard  `gorm:"foreignKey:SessionID;constraint:OnDelete:CASCADE" json:"-"`
	Matches []SwipeMatch `gorm:"foreignKey:SessionID;constraint:OnDelete:CASCADE" json:"-"`
}

func (SwipeSession) TableName() string {
	return "swipe_sessions"
}

func (s *SwipeSession) BeforeCreate(tx *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}

// SwipeCard is one user's pending decision on one recipe within a session.
// Decision stays nil until the user swipes; a second swipe on the same card
// is a client error.
type SwipeCard struct {
	ID        uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	SessionID uuid.UUID  `gorm:"type:uuid;not null;uniqueIndex:uq_swipe_card" json:"session_id"`
	RecipeID  uuid.UUID  `gorm:"type:uuid;not null;uniqueIndex:uq_swipe_card" json:"recipe_id"`
	UserID    uuid.UUID  `gorm:"type:uuid;not null;uniqueIndex:uq_swipe_card" json:"user_id"`
	Decision  *string    `gorm:"size:20" json:"decision"`
	SwipedAt  *time.Time `json:"swiped_at"`
	CreatedAt time.Time  `json:"created_at"`
}

func (SwipeCard) TableName() string {
	return "swipe_cards"
}

func (c *SwipeCard) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}

// SwipeMatch records a mutual like within a session. The unique index on
// (session_id, recipe_id) makes the match insert race-safe: concurrent swipes
// from both users can each observe the other's like, but only one row lands.
type SwipeMatch struct {
	ID             uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	SessionID      uuid.UUID  `gorm:"type:uuid;not null;uniqueIndex:uq_swipe_match" json:"session_id"`
	RecipeID       uuid.UUID  `gorm:"type:uuid;not null;uniqueIndex:uq_swipe_match" json:"recipe_id"`
	MatchedAt      time.Time  `gorm:"autoCreateTime" json:"matched_at"`
	PlannedForDate *time.Time `gorm:"type:date" json:"planned_for_date"`
}

func (SwipeMatch) TableName() string {
	return "swipe_matches"
}

func (m *SwipeMatch) BeforeCreate(tx *gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	return nil
}
