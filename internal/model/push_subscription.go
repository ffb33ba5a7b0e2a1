package model

import "time"

// PushSubscription holds a supervisor's browser push subscription for
// out-of-area attendance alerts on one project.
type PushSubscription struct {
	Endpoint  string    `gorm:"primaryKey"`
	ProjectID string    `gorm:"index;size:64;not null"`
	P256DH    string    `gorm:"column:p256dh;not null"`
	Auth      string    `gorm:"not null"`
	CreatedAt time.Time `gorm:"not null"`
}
