package models

import "time"

// AgentLog stores best-effort lifecycle events posted by devices.
type AgentLog struct {
	ID          uint   `gorm:"primaryKey"`
	DeviceID    string `gorm:"index;size:191"`
	Event       string `gorm:"size:64"`
	PackageName string `gorm:"size:191"`
	Content     string `gorm:"type:text"`
	CreatedAt   time.Time
}
