package models

import (
	"time"
)

// RunScreen is a screenshot a run was recognized from.
type RunScreen struct {
	ID           uint `gorm:"primaryKey"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
	RunID        uint      `gorm:"index;not null"`
	StorageKey   string    `gorm:"size:64;not null;uniqueIndex"` // key in the blob store
	FileName     string    `gorm:"size:255;not null"`
	ContentType  string    `gorm:"size:128"`
	Size         int64     `gorm:"not null;default:0"`
	LastModified time.Time `gorm:"index"`
	// OCRFailed marks screenshots that could not be read; they are kept for review.
	OCRFailed    bool   `gorm:"default:false"`
	FailedReason string `gorm:"size:255"`
}
