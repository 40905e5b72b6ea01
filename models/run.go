package models

import (
	"time"

	"towerstats/pkg/runs"
)

// Run is one recorded game run: the header used for listing and summaries,
// plus every parsed statistic.
type Run struct {
	ID                  uint `gorm:"primaryKey"`
	CreatedAt           time.Time
	UpdatedAt           time.Time
	UserID              uint         `gorm:"index:idx_runs_user_recorded,priority:1;not null"`
	User                User         `gorm:"foreignKey:UserID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"-"`
	Recorded            time.Time    `gorm:"index:idx_runs_user_recorded,priority:2;not null"`
	RunType             runs.RunType `gorm:"size:16;index;not null;default:farming"`
	Tier                float64      `gorm:"not null"`
	Wave                float64      `gorm:"not null"`
	RealTime            float64      `gorm:"not null"` // seconds
	RealTimeHours       *float64
	CoinsPerHour        *float64
	CellsPerHour        *float64
	RerollShardsPerHour *float64
	Values              runs.ParsedValues `gorm:"column:stats;serializer:json;type:jsonb;not null"`
	Screens             []RunScreen       `gorm:"foreignKey:RunID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;"`
}

// Header returns the summary fields of r.
func (r Run) Header() runs.Header {
	return runs.Header{
		Recorded:            r.Recorded,
		RunType:             r.RunType,
		Tier:                r.Tier,
		Wave:                r.Wave,
		RealTime:            r.RealTime,
		RealTimeHours:       r.RealTimeHours,
		CoinsPerHour:        r.CoinsPerHour,
		CellsPerHour:        r.CellsPerHour,
		RerollShardsPerHour: r.RerollShardsPerHour,
	}
}

// ApplyHeader copies a derived header onto r.
func (r *Run) ApplyHeader(h runs.Header) {
	r.Recorded = h.Recorded
	r.RunType = h.RunType
	r.Tier = h.Tier
	r.Wave = h.Wave
	r.RealTime = h.RealTime
	r.RealTimeHours = h.RealTimeHours
	r.CoinsPerHour = h.CoinsPerHour
	r.CellsPerHour = h.CellsPerHour
	r.RerollShardsPerHour = h.RerollShardsPerHour
}
