package model

import "time"

// CellState is the latest device-reported state for one physical
// compartment. Writes merge field-by-field and last write wins.
type CellState struct {
	CellID    string    `gorm:"primaryKey"`
	State     Status    `gorm:"not null"`
	Timestamp time.Time `gorm:"not null"`
	DeviceID  *string
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

// DeviceEventLog is the append-only record of every raw sensor report
// accepted by the ingestor. Rows are never mutated or deleted here;
// retention is an operational concern.
type DeviceEventLog struct {
	ID         uint      `gorm:"primaryKey"`
	CellID     string    `gorm:"index;not null"`
	Event      Status    `gorm:"not null"`
	Timestamp  time.Time `gorm:"not null"`
	DeviceID   *string
	UserID     *string
	Source     string    `gorm:"not null"` // "http" or "mqtt"
	ReceivedAt time.Time `gorm:"autoCreateTime"`
}
