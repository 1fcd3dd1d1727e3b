package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"fleetpush/agent/internal/db"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Keys used in the runtime state table.
const (
	KeyQueue     = "queue"
	KeyInventory = "inventory"
	KeyReported  = "reported_commands"
)

// Store is the device-side Runtime State Store: JSON values by key plus a
// bounded structured log.
type Store struct {
	mu       sync.Mutex
	db       *gorm.DB
	capacity int
	now      func() time.Time
}

func NewStore(gdb *gorm.DB, logCapacity int) *Store {
	if logCapacity <= 0 {
		logCapacity = 500
	}
	return &Store{db: gdb, capacity: logCapacity, now: time.Now}
}

func (s *Store) Put(key string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	row := db.KV{Key: key, Value: string(b), UpdatedAt: s.now()}
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&row).Error
}

// Get decodes the value stored under key into v and reports whether one existed.
func (s *Store) Get(key string, v any) (bool, error) {
	var row db.KV
	err := s.db.Where("name = ?", key).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal([]byte(row.Value), v); err != nil {
		return false, fmt.Errorf("decode %s: %w", key, err)
	}
	return true, nil
}

// AppendLog stores rec and trims the log to the newest capacity entries.
func (s *Store) AppendLog(rec db.LogRecord) error {
	if rec.At.IsZero() {
		rec.At = s.now()
	}
	rec.ID = 0
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&rec).Error; err != nil {
			return err
		}
		return tx.Where("id <= ?", int64(rec.ID)-int64(s.capacity)).Delete(&db.LogRecord{}).Error
	})
}

// Logs returns up to limit records, newest first.
func (s *Store) Logs(limit int) ([]db.LogRecord, error) {
	if limit <= 0 || limit > s.capacity {
		limit = s.capacity
	}
	var out []db.LogRecord
	err := s.db.Order("id DESC").Limit(limit).Find(&out).Error
	return out, err
}

// Inventory returns the installed version code per package.
func (s *Store) Inventory() (map[string]int64, error) {
	inv := map[string]int64{}
	if _, err := s.Get(KeyInventory, &inv); err != nil {
		return nil, err
	}
	return inv, nil
}

// RecordInstalled sets the installed version of pkg. Older versions never
// replace a newer one.
func (s *Store) RecordInstalled(pkg string, versionCode int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	inv, err := s.Inventory()
	if err != nil {
		return err
	}
	if cur, ok := inv[pkg]; ok && cur >= versionCode {
		return nil
	}
	inv[pkg] = versionCode
	return s.Put(KeyInventory, inv)
}
