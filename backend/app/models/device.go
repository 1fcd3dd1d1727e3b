package models

import "time"

type Device struct {
	ID         uint   `gorm:"primaryKey"`
	UUID       string `gorm:"uniqueIndex;size:191;not null"`
	Name       string `gorm:"size:255"`
	LastSeenAt *time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// InstalledPackage is one row of a device's latest self-reported snapshot.
type InstalledPackage struct {
	ID          uint   `gorm:"primaryKey"`
	DeviceID    string `gorm:"size:191;not null;uniqueIndex:uniq_installed_pkg"`
	PackageName string `gorm:"size:191;not null;uniqueIndex:uniq_installed_pkg"`
	VersionCode int64  `gorm:"not null"`
	ReportedAt  time.Time
}
