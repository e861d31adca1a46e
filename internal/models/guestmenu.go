package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GuestMenu is a shareable themed menu page identified by slug. Inactive
// menus answer 410 on the public route.
type GuestMenu struct {
	ID          uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	Slug        string     `gorm:"size:100;uniqueIndex;not null" json:"slug"`
	Title       string     `gorm:"size:200;not null" json:"title"`
	Description string     `gorm:"type:text" json:"description"`
	EventDate   *time.Time `gorm:"type:date" json:"event_date"`
	Active      bool       `gorm:"default:true" json:"active"`
	ThemePrompt string     `gorm:"size:500" json:"theme_prompt"`
	Theme       JSONMap    `gorm:"type:jsonb" json:"theme"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`

	Items []GuestMenuItem `gorm:"foreignKey:MenuID;constraint:OnDelete:CASCADE" json:"items,omitempty"`
}

func (GuestMenu) TableName() string {
	return "guest_menus"
}

func (m *GuestMenu) BeforeCreate(tx *gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	return nil
}

// GuestMenuItem puts one recipe on a menu, under a course heading.
type GuestMenuItem struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	MenuID    uuid.UUID `gorm:"type:uuid;not null;index" json:"menu_id"`
	RecipeID  uuid.UUID `gorm:"type:uuid;not null" json:"recipe_id"`
	Course    string    `gorm:"size:100" json:"course"`
	Subtext   string    `gorm:"size:300" json:"subtext"`
	SortOrder int       `gorm:"default:0" json:"sort_order"`
}

func (GuestMenuItem) TableName() string {
	return "guest_menu_items"
}

func (i *GuestMenuItem) BeforeCreate(tx *gorm.DB) error {
	if i.ID == uuid.Nil {
		i.ID = uuid.New()
	}
	return nil
}

// GuestVote is one guest's vote on one menu item.
type GuestVote struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	MenuID    uuid.UUID `gorm:"type:uuid;not null;index" json:"menu_id"`
	ItemID    uuid.UUID `gorm:"type:uuid;not null;index" json:"item_id"`
	VoterName string    `gorm:"size:100;not null" json:"voter_name"`
	Vote      string    `gorm:"size:20;default:yes" json:"vote"`
	CreatedAt time.Time `json:"created_at"`
}

func (GuestVote) TableName() string {
	return "guest_votes"
}

func (v *GuestVote) BeforeCreate(tx *gorm.DB) error {
	if v.ID == uuid.Nil {
		v.ID = uuid.New()
	}
	return nil
}

// MenuView records one visit to a menu's public page. IP, user agent and
// referrer come from the request and may be empty.
type MenuView struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	MenuID    uuid.UUID `gorm:"type:uuid;not null;index" json:"menu_id"`
	IPAddress string    `gorm:"size:64" json:"ip_address"`
	UserAgent string    `gorm:"size:500" json:"user_agent"`
	Referrer  string    `gorm:"size:500" json:"referrer"`
	ViewedAt  time.Time `gorm:"autoCreateTime" json:"viewed_at"`
}

func (MenuView) TableName() string {
	return "guest_menu_views"
}

func (v *MenuView) BeforeCreate(tx *gorm.DB) error {
	if v.ID == uuid.Nil {
		v.ID = uuid.New()
	}
	return nil
}

// MenuPhoto is a photo a guest attached to one dish on the public page.
type MenuPhoto struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	MenuID    uuid.UUID `gorm:"type:uuid;not null;index" json:"menu_id"`
	RecipeID  uuid.UUID `gorm:"type:uuid;not null" json:"recipe_id"`
	GuestName string    `gorm:"size:100" json:"guest_name"`
	Caption   string    `gorm:"size:300" json:"caption"`
	URL       string    `gorm:"size:500;not null" json:"url"`
	CreatedAt time.Time `json:"created_at"`
}

func (MenuPhoto) TableName() string {
	return "guest_menu_photos"
}

func (p *MenuPhoto) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}
