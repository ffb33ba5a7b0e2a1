package model

import "time"

// AttendanceSession is one person's attendance record for one site-local
// calendar day on one project. It is created open at check-in and closed
// exactly once at check-out; closed sessions are never reopened.
type AttendanceSession struct {
	ID        string `gorm:"primaryKey;size:36" json:"id"`
	PersonID  string `gorm:"size:64;not null;uniqueIndex:idx_sessions_person_project_date" json:"person_id"`
	ProjectID string `gorm:"size:64;not null;uniqueIndex:idx_sessions_person_project_date" json:"project_id"`
	Date      string `gorm:"size:10;not null;uniqueIndex:idx_sessions_person_project_date" json:"date"`

	AreaID *string `gorm:"size:64;index" json:"area_id,omitempty"`

	CheckInAt         time.Time `gorm:"not null" json:"check_in_at"`
	CheckInLatitude   *float64  `json:"check_in_latitude,omitempty"`
	CheckInLongitude  *float64  `json:"check_in_longitude,omitempty"`
	CheckInDistanceM  *float64  `json:"check_in_distance_m,omitempty"`
	CheckInWithinArea *bool     `json:"check_in_within_area,omitempty"`

	CheckOutAt         *time.Time `json:"check_out_at,omitempty"`
	CheckOutLatitude   *float64   `json:"check_out_latitude,omitempty"`
	CheckOutLongitude  *float64   `json:"check_out_longitude,omitempty"`
	CheckOutDistanceM  *float64   `json:"check_out_distance_m,omitempty"`
	CheckOutWithinArea *bool      `json:"check_out_within_area,omitempty"`

	WorkedHours *float64 `json:"worked_hours,omitempty"`

	CreatedAt time.Time `json:"-"`
	UpdatedAt time.Time `json:"-"`
}

// Closed reports whether the session has been checked out.
func (s *AttendanceSession) Closed() bool {
	return s.CheckOutAt != nil
}

// OutOfArea reports whether either recorded verdict fell outside the
// geofence. Sessions without a verdict are never out of area.
func (s *AttendanceSession) OutOfArea() bool {
	if s.CheckInWithinArea != nil && !*s.CheckInWithinArea {
		return true
	}
	if s.CheckOutWithinArea != nil && !*s.CheckOutWithinArea {
		return true
	}
	return false
}
