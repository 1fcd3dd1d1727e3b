package models

import "time"

// Release is an uploaded artifact version. Rows are immutable once created.
type Release struct {
	ID          uint      `gorm:"primaryKey"`
	AppID       string    `gorm:"size:191;index"`
	PackageName string    `gorm:"size:191;not null;uniqueIndex:uniq_release_pkg_ver"`
	VersionCode int64     `gorm:"not null;uniqueIndex:uniq_release_pkg_ver"`
	DisplayName string    `gorm:"size:255"`
	SHA256      string    `gorm:"size:64;not null"`
	FileSize    int64     `gorm:"not null"`
	ObjectName  string    `gorm:"size:255;not null"` // content-addressed name in object storage
	AutoUpdate  bool      `gorm:"not null;default:false"`
	Changelog   string    `gorm:"type:text"`
	UploadedAt  time.Time `gorm:"index"`

	// SignerFingerprint, when set, is the expected package signing certificate.
	SignerFingerprint string `gorm:"size:128"`
}

// NewerThan orders releases of one package: higher version code wins, ties go to the latest upload.
func (r Release) NewerThan(o Release) bool {
	if r.VersionCode != o.VersionCode {
		return r.VersionCode > o.VersionCode
	}
	return r.UploadedAt.After(o.UploadedAt)
}
