package ui

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

const queueJSON = `{"items":[
 {"id":"a","packageName":"com.app.a","versionCode":7,"classification":"update","stage":"success","attempts":1},
 {"id":"b","packageName":"com.app.b","versionCode":2,"classification":"new-install","stage":"downloading","attempts":2,"bytesDone":50,"bytesTotal":200},
 {"id":"c","packageName":"com.app.c","versionCode":1,"classification":"new-install","stage":"failed","attempts":3,"failureMessage":"sha256 mismatch"}
],"activeId":"b","running":true,"policy":{"failure":"retry-then-continue","maxRetries":2}}`

func seedDB(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "agent.db")
	gdb, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, gdb.AutoMigrate(&kvRow{}, &LogLine{}))
	require.NoError(t, gdb.Create(&kvRow{Name: "queue", Value: queueJSON}).Error)
	require.NoError(t, gdb.Create(&LogLine{At: time.Now(), Level: "error", PackageName: "com.app.c", Attempts: 3, Message: "failed after 3 attempts"}).Error)
	require.NoError(t, gdb.Create(&LogLine{At: time.Now(), Level: "info", PackageName: "com.app.b", Attempts: 2, Message: "downloading"}).Error)
	sqlDB, err := gdb.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())
	return path
}

func TestDBSourceLoadsQueueAndLogs(t *testing.T) {
	src, err := OpenDB(seedDB(t))
	require.NoError(t, err)

	snap, logs, err := src.Load(10)
	require.NoError(t, err)
	require.Len(t, snap.Items, 3)
	assert.Equal(t, "b", snap.ActiveID)
	assert.True(t, snap.Running)
	require.Len(t, logs, 2)
	assert.Equal(t, "downloading", logs[0].Message)
}

func TestModelRendersActiveItemAndFailures(t *testing.T) {
	src, err := OpenDB(seedDB(t))
	require.NoError(t, err)
	m := NewModel(src, time.Second)

	next, _ := m.Update(m.load())
	got := next.(Model)
	require.NoError(t, got.Err)
	assert.Equal(t, 1, got.Table.Cursor())

	rows := got.Table.Rows()
	require.Len(t, rows, 3)
	assert.Equal(t, ">", rows[1][0])
	assert.Equal(t, "downloading 25%", rows[1][4])
	assert.Equal(t, "sha256 mismatch", rows[2][6])

	view := got.View()
	assert.Contains(t, view, "com.app.c")
	assert.Contains(t, view, "retry-then-continue")
	assert.Contains(t, view, "failed after 3 attempts")
}

type failingSource struct{}

func (failingSource) Load(int) (Snapshot, []LogLine, error) {
	return Snapshot{}, nil, errors.New("database is locked")
}

func TestModelShowsLoadError(t *testing.T) {
	m := NewModel(failingSource{}, time.Second)
	next, _ := m.Update(m.load())
	assert.Contains(t, next.View(), "database is locked")

	_, cmd := next.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	require.NotNil(t, cmd)
	assert.Equal(t, tea.Quit(), cmd())
}

func TestHaltedStatus(t *testing.T) {
	m := NewModel(failingSource{}, time.Second)
	m.apply(Snapshot{Halted: true}, nil)
	assert.Contains(t, m.View(), "halted on failure")
}
