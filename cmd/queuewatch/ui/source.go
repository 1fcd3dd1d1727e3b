package ui

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Item is the subset of a persisted queue item the observer shows.
type Item struct {
	ID             string `json:"id"`
	PackageName    string `json:"packageName"`
	DisplayName    string `json:"displayName"`
	VersionCode    int64  `json:"versionCode"`
	Classification string `json:"classification"`
	Stage          string `json:"stage"`
	Attempts       int    `json:"attempts"`
	FailureMessage string `json:"failureMessage"`
	BytesDone      int64  `json:"bytesDone"`
	BytesTotal     int64  `json:"bytesTotal"`
}

type Snapshot struct {
	Items    []Item `json:"items"`
	ActiveID string `json:"activeId"`
	Running  bool   `json:"running"`
	Halted   bool   `json:"halted"`
	Policy   struct {
		Failure    string `json:"failure"`
		MaxRetries int    `json:"maxRetries"`
	} `json:"policy"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type LogLine struct {
	ID          uint
	At          time.Time
	Level       string
	PackageName string
	Stage       string
	Attempts    int
	Code        string
	Message     string
}

func (LogLine) TableName() string { return "log_records" }

type kvRow struct {
	Name  string
	Value string
}

func (kvRow) TableName() string { return "runtime_state" }

// Source loads the current queue state.
type Source interface {
	Load(logLimit int) (Snapshot, []LogLine, error)
}

// DBSource reads the agent database without writing to it.
type DBSource struct {
	db *gorm.DB
}

func OpenDB(path string) (*DBSource, error) {
	dsn := fmt.Sprintf("file:%s?mode=ro&_busy_timeout=5000", path)
	gdb, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, err
	}
	return &DBSource{db: gdb}, nil
}

func (s *DBSource) Load(logLimit int) (Snapshot, []LogLine, error) {
	var snap Snapshot
	var row kvRow
	err := s.db.Where("name = ?", "queue").First(&row).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
	case err != nil:
		return snap, nil, err
	default:
		if err := json.Unmarshal([]byte(row.Value), &snap); err != nil {
			return snap, nil, fmt.Errorf("decode queue state: %w", err)
		}
	}
	var logs []LogLine
	if err := s.db.Order("id DESC").Limit(logLimit).Find(&logs).Error; err != nil {
		return snap, nil, err
	}
	return snap, logs, nil
}
