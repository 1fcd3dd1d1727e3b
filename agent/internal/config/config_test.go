package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaultsWithoutFile(t *testing.T) {
	c, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "reuse", c.ResumePolicy)
	assert.Equal(t, 30*time.Minute, c.ItemTimeout)
	assert.Equal(t, "retry-then-continue", c.FailurePolicy)
	assert.Equal(t, 2, c.MaxRetries)
}

func TestLoadOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agent.yaml")
	yaml := "agent:\n  device_id: dev-7\n  backend:\n    url: http://fleet:9400/\n  queue:\n    failure_policy: stop-on-failure\n    max_retries: 0\n    item_timeout: 90s\n  download:\n    resume_policy: discard\n"
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "dev-7", c.DeviceID)
	assert.Equal(t, "http://fleet:9400", c.BackendURL)
	assert.Equal(t, "stop-on-failure", c.FailurePolicy)
	assert.Equal(t, 0, c.MaxRetries)
	assert.Equal(t, 90*time.Second, c.ItemTimeout)
	assert.Equal(t, "discard", c.ResumePolicy)
}
