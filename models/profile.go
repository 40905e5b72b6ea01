package models

import "time"

// Profile represents a user's profile (one-to-one with User)
type Profile struct {
	ID        uint `gorm:"primaryKey"`
	CreatedAt time.Time
	UpdatedAt time.Time
	DeletedAt *time.Time `gorm:"index"`
	// Active indicates whether the profile is active. Defaults to true.
	Active bool   `gorm:"default:true;not null"`
	UserID uint   `gorm:"uniqueIndex;not null"` // one-to-one relation
	User   User   `gorm:"foreignKey:UserID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"-"`
	Name   string `gorm:"size:255;not null"` // player name, mandatory
	Email  string `gorm:"size:255"`
	// PreferredRunType is used for submissions that do not state a run type.
	PreferredRunType string `gorm:"size:16;default:farming"`
	// ScreenDir is the folder the ingest tool watches for this player, if any.
	ScreenDir string `gorm:"size:512"`
}
