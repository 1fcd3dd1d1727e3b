package session

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("session not found")

type Session struct {
	ID        string    `json:"id"`
	UserID    uint      `json:"user_id"`
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	DeviceID  string    `json:"device_id,omitempty"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Store tracks live login sessions. A token whose session is gone is rejected
// even if its signature and expiry are still valid.
type Store interface {
	Init(ctx context.Context, s Session) error
	Lookup(ctx context.Context, id string) (Session, error)
	Invalidate(ctx context.Context, id string) error
	// Expire drops sessions whose ExpiresAt is before now and reports how many went.
	Expire(ctx context.Context, now time.Time) (int, error)
}
