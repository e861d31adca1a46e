package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// User is a household member. There is no authentication layer; users are
// picked by id when rating and swiping.
type User struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Name        string    `gorm:"size:100;uniqueIndex;not null" json:"name"`
	AvatarEmoji string    `gorm:"size:10;default:👤" json:"avatar_emoji"`
	CreatedAt   time.Time `json:"created_at"`
}

func (User) TableName() string {
	return "users"
}

func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return nil
}
