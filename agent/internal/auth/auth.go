package auth

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"fleetpush/agent/internal/client"
	"fleetpush/agent/internal/db"

	"gorm.io/gorm"
)

var ErrNoToken = errors.New("no stored token")

type Credentials struct {
	Username string
	Password string
}

// Loginer exchanges credentials for a token.
type Loginer interface {
	Login(ctx context.Context, username, password string) (client.TokenResponse, error)
}

// Manager keeps the current access token in memory and persists it to the
// token file and the agent database.
type Manager struct {
	path  string
	db    *gorm.DB
	creds Credentials
	token atomic.Value // string
}

func NewManager(path string, gdb *gorm.DB, creds Credentials) *Manager {
	return &Manager{path: path, db: gdb, creds: creds}
}

// Token returns the current token or "".
func (m *Manager) Token() string {
	if v, ok := m.token.Load().(string); ok {
		return v
	}
	return ""
}

// Load reads the token file, falling back to the newest token row.
func (m *Manager) Load() (string, error) {
	if b, err := os.ReadFile(m.path); err == nil {
		if tok := strings.TrimSpace(string(b)); tok != "" {
			m.token.Store(tok)
			return tok, nil
		}
	}
	if m.db != nil {
		var row db.Token
		err := m.db.Order("id DESC").First(&row).Error
		if err == nil && row.Value != "" {
			m.token.Store(row.Value)
			return row.Value, nil
		}
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return "", err
		}
	}
	return "", ErrNoToken
}

func (m *Manager) save(tok string) error {
	if err := os.MkdirAll(filepath.Dir(m.path), 0o755); err != nil {
		return fmt.Errorf("mkdir token dir: %w", err)
	}
	if err := os.WriteFile(m.path, []byte(tok), 0o600); err != nil {
		return err
	}
	if m.db != nil {
		return m.db.Create(&db.Token{Value: tok}).Error
	}
	return nil
}

// Clear drops the in-memory and persisted tokens.
func (m *Manager) Clear() error {
	m.token.Store("")
	if m.db != nil {
		if err := m.db.Where("1 = 1").Delete(&db.Token{}).Error; err != nil {
			return err
		}
	}
	if err := os.Remove(m.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// Ensure uses a stored token when there is one and logs in otherwise.
func (m *Manager) Ensure(ctx context.Context, l Loginer) (string, error) {
	if tok, err := m.Load(); err == nil {
		return tok, nil
	}
	return m.Refresh(ctx, l)
}

// Refresh logs in with the configured credentials and stores the new token.
func (m *Manager) Refresh(ctx context.Context, l Loginer) (string, error) {
	if m.creds.Username == "" {
		return "", errors.New("no credentials configured for login")
	}
	tr, err := l.Login(ctx, m.creds.Username, m.creds.Password)
	if err != nil {
		return "", fmt.Errorf("login: %w", err)
	}
	if err := m.save(tr.AccessToken); err != nil {
		return "", fmt.Errorf("store token: %w", err)
	}
	m.token.Store(tr.AccessToken)
	return tr.AccessToken, nil
}
