package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// KrogerToken stores one user's Kroger OAuth tokens. Refreshed in place when
// the access token approaches expiry.
type KrogerToken struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	UserID       uuid.UUID `gorm:"type:uuid;uniqueIndex;not null" json:"user_id"`
	AccessToken  string    `gorm:"type:text;not null" json:"-"`
	RefreshToken string    `gorm:"type:text;not null" json:"-"`
	ExpiresAt    time.Time `gorm:"not null" json:"expires_at"`
	StoreID      string    `gorm:"size:20" json:"store_id"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (KrogerToken) TableName() string {
	return "kroger_tokens"
}

func (t *KrogerToken) BeforeCreate(tx *gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return nil
}

// Import statuses.
const (
	ImportStatusPending = "pending"
	ImportStatusSuccess = "success"
	ImportStatusFailed  = "failed"
)

// ImportLog is the audit trail for every recipe import attempt.
type ImportLog struct {
	ID               uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	URL              string     `gorm:"type:text;not null" json:"url"`
	Status           string     `gorm:"size:20;default:pending" json:"status"`
	RecipeID         *uuid.UUID `gorm:"type:uuid" json:"recipe_id"`
	Error            string     `gorm:"type:text" json:"error"`
	ExtractionMethod string     `gorm:"size:50" json:"extraction_method"`
	DurationMs       *int64     `json:"duration_ms"`
	CreatedAt        time.Time  `json:"created_at"`
}

func (ImportLog) TableName() string {
	return "import_log"
}

func (l *ImportLog) BeforeCreate(tx *gorm.DB) error {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	return nil
}
