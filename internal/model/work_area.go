package model

import (
	"time"

	"site-attendance-backend/internal/geo"
)

// WorkArea is a named, geofenced zone on a project where attendance can be
// recorded. The catalog is owned by project configuration; this service only
// reads it during resolution and evaluation.
type WorkArea struct {
	ID           string  `gorm:"primaryKey;size:64" json:"id"`
	ProjectID    string  `gorm:"index;size:64;not null" json:"project_id"`
	Name         string  `gorm:"size:256;not null" json:"name"`
	Latitude     float64 `gorm:"not null" json:"latitude"`
	Longitude    float64 `gorm:"not null" json:"longitude"`
	RadiusMeters float64 `gorm:"not null" json:"radius_meters"`
	ScanCode     string  `gorm:"size:128" json:"scan_code,omitempty"`

	CreatedAt time.Time `json:"-"`
	UpdatedAt time.Time `json:"-"`

	// Associations
	Aliases []AreaAlias `gorm:"foreignKey:AreaID;constraint:OnDelete:CASCADE" json:"aliases,omitempty"`
}

// Center returns the area's geofence center.
func (a WorkArea) Center() geo.Coordinate {
	return geo.Coordinate{Latitude: a.Latitude, Longitude: a.Longitude}
}

// AreaAlias is a secondary handle for a work area, such as a legacy code or
// an alternative display name.
type AreaAlias struct {
	ID     int64  `gorm:"primaryKey;autoIncrement" json:"-"`
	AreaID string `gorm:"index;size:64;not null" json:"-"`
	Alias  string `gorm:"size:256;not null" json:"alias"`
}
