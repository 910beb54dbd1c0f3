package model

import "time"

// Status is a reminder's confirmation state.
type Status string

const (
	// StatusPending means the dose is scheduled, or its notification has
	// fired and the system is awaiting physical or manual confirmation.
	StatusPending Status = "pending"
	// StatusTaken means the compartment was opened in time.
	StatusTaken Status = "taken"
	// StatusMissed means the dose window elapsed without the compartment opening.
	StatusMissed Status = "missed"
)

// Valid reports whether s is one of the known reminder states.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusTaken, StatusMissed:
		return true
	}
	return false
}

// Reminder represents one weekly (day, slot) dose commitment for a user.
// A user holds at most one reminder per (day, slot) pair; CellID is
// always derived from that pair.
type Reminder struct {
	ID           string    `gorm:"primaryKey"`
	UserID       string    `gorm:"not null;uniqueIndex:idx_user_day_slot;index"`
	Day          string    `gorm:"not null;uniqueIndex:idx_user_day_slot"`
	Slot         string    `gorm:"not null;uniqueIndex:idx_user_day_slot"`
	Time         string    `gorm:"not null"` // wall clock "HH:MM", 24-hour
	MedicineName string    `gorm:"type:text"`
	Status       Status    `gorm:"not null;default:pending"`
	CellID       string    `gorm:"index;not null"`
	CreatedAt    time.Time `gorm:"autoCreateTime"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime"`
}
