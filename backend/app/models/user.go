package models

import "time"

const (
	RoleAdmin    = "admin"
	RoleOperator = "operator"
	RoleDevice   = "device"
)

type User struct {
	ID           uint   `gorm:"primaryKey"`
	Username     string `gorm:"uniqueIndex;size:191;not null"`
	PasswordHash string `gorm:"size:255;not null"`
	Role         string `gorm:"size:32;not null;default:operator"`
	// DeviceID binds a device account to the one device it may act for.
	DeviceID  string `gorm:"size:191"`
	CreatedAt time.Time
	UpdatedAt time.Time
}
