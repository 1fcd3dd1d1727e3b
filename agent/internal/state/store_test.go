package state

import (
	"fmt"
	"path/filepath"
	"testing"

	"fleetpush/agent/internal/db"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T, capacity int) *Store {
	t.Helper()
	gdb, err := db.Open(filepath.Join(t.TempDir(), "agent.db"))
	require.NoError(t, err)
	return NewStore(gdb, capacity)
}

func TestPutGet(t *testing.T) {
	s := newStore(t, 10)
	var inv map[string]int64
	ok, err := s.Get(KeyInventory, &inv)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Put(KeyInventory, map[string]int64{"com.app.a": 5}))
	require.NoError(t, s.Put(KeyInventory, map[string]int64{"com.app.a": 7}))
	ok, err = s.Get(KeyInventory, &inv)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(7), inv["com.app.a"])
}

func TestLogRingKeepsNewest(t *testing.T) {
	s := newStore(t, 3)
	for i := 0; i < 5; i++ {
		require.NoError(t, s.AppendLog(db.LogRecord{Level: "info", Message: fmt.Sprintf("line %d", i)}))
	}
	logs, err := s.Logs(0)
	require.NoError(t, err)
	require.Len(t, logs, 3)
	assert.Equal(t, "line 4", logs[0].Message)
	assert.Equal(t, "line 2", logs[2].Message)
}

func TestRecordInstalledKeepsNewest(t *testing.T) {
	s := newStore(t, 10)
	inv, err := s.Inventory()
	require.NoError(t, err)
	assert.Empty(t, inv)

	require.NoError(t, s.RecordInstalled("com.app.a", 7))
	require.NoError(t, s.RecordInstalled("com.app.a", 5))
	require.NoError(t, s.RecordInstalled("com.app.b", 1))

	inv, err = s.Inventory()
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"com.app.a": 7, "com.app.b": 1}, inv)
}
