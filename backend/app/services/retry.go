package services

import (
	"context"
	"errors"
	"fleetpush/backend/app/repo"
	"strings"
	"time"

	"github.com/codeGROOVE-dev/retry"
	"gorm.io/gorm"
)

const (
	storeAttempts   = 3
	storeBaseDelay  = 20 * time.Millisecond
	storeMaxBackoff = 200 * time.Millisecond
)

// withStoreRetry reruns fn, which must open its own transaction, when the
// store reports lock contention or a duplicate key.
func withStoreRetry(ctx context.Context, fn func() error) error {
	return retry.Do(fn,
		retry.Context(ctx),
		retry.Attempts(storeAttempts),
		retry.Delay(storeBaseDelay),
		retry.MaxDelay(storeMaxBackoff),
		retry.LastErrorOnly(true),
		retry.RetryIf(isTransientStoreError),
	)
}

func isTransientStoreError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, repo.ErrClaimRace) || errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, s := range []string{"deadlock", "lock wait timeout", "database is locked", "could not serialize", "duplicate entry"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}
