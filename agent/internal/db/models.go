package db

import "time"

type Token struct {
	ID        uint   `gorm:"primaryKey"`
	Value     string `gorm:"size:8192"`
	CreatedAt time.Time
}

// KV holds JSON-encoded runtime state under a fixed key.
type KV struct {
	Key       string `gorm:"column:name;primaryKey;size:191"`
	Value     string `gorm:"type:text"`
	UpdatedAt time.Time
}

func (KV) TableName() string { return "runtime_state" }

// LogRecord is one structured queue log line. Only the newest records up to
// the configured capacity are kept.
type LogRecord struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	At          time.Time `gorm:"index" json:"at"`
	Level       string    `gorm:"size:16" json:"level"`
	ItemID      string    `gorm:"size:64;index" json:"itemId,omitempty"`
	PackageName string    `gorm:"size:191" json:"packageName,omitempty"`
	VersionCode int64     `json:"versionCode,omitempty"`
	Stage       string    `gorm:"size:32" json:"stage,omitempty"`
	Attempts    int       `json:"attempts,omitempty"`
	// Code is the error class of a failed attempt.
	Code    string `gorm:"size:32;index" json:"code,omitempty"`
	Message string `gorm:"size:1024" json:"message"`
	// Metadata is a JSON object with the typed error fields.
	Metadata string `gorm:"type:text" json:"metadata,omitempty"`
}
