package services

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"unicode/utf8"

	"fleetpush/backend/app/models"
	"fleetpush/backend/app/repo"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCommandService(t *testing.T) *CommandService {
	gdb := newTestDB(t)
	return NewCommandService(repo.NewCommandRepository(gdb), repo.NewDeviceRepository(gdb))
}

func TestPull_ClaimsPendingThenEmpty(t *testing.T) {
	s := newCommandService(t)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, err := s.Create(ctx, "dev-1", models.CommandInstall, json.RawMessage(`{"packageName":"com.app.a"}`))
		require.NoError(t, err)
	}
	_, err := s.Create(ctx, "dev-2", models.CommandReboot, nil)
	require.NoError(t, err)

	got, err := s.Pull(ctx, "dev-1", 5)
	require.NoError(t, err)
	require.Len(t, got, 3)
	for i, c := range got {
		assert.Equal(t, models.CommandRunning, c.Status)
		assert.NotNil(t, c.StartedAt)
		if i > 0 {
			assert.Less(t, got[i-1].ID, c.ID)
		}
	}

	again, err := s.Pull(ctx, "dev-1", 5)
	require.NoError(t, err)
	assert.NotNil(t, again)
	assert.Empty(t, again)

	other, err := s.Pull(ctx, "dev-2", 5)
	require.NoError(t, err)
	assert.Len(t, other, 1)
}

func TestPull_RespectsMaxAndFIFO(t *testing.T) {
	s := newCommandService(t)
	ctx := context.Background()
	var ids []uint
	for i := 0; i < 4; i++ {
		c, err := s.Create(ctx, "dev-1", models.CommandUpdate, nil)
		require.NoError(t, err)
		ids = append(ids, c.ID)
	}
	first, err := s.Pull(ctx, "dev-1", 2)
	require.NoError(t, err)
	require.Len(t, first, 2)
	assert.Equal(t, ids[0], first[0].ID)
	assert.Equal(t, ids[1], first[1].ID)

	_, err = s.Pull(ctx, "dev-1", 0)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestPull_ConcurrentClaimsNeverOverlap(t *testing.T) {
	s := newCommandService(t)
	ctx := context.Background()
	const total = 40
	for i := 0; i < total; i++ {
		_, err := s.Create(ctx, "dev-1", models.CommandInstall, nil)
		require.NoError(t, err)
	}

	var (
		mu   sync.Mutex
		seen = map[uint]int{}
		wg   sync.WaitGroup
	)
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				got, err := s.Pull(ctx, "dev-1", 3)
				if !assert.NoError(t, err) || len(got) == 0 {
					return
				}
				mu.Lock()
				for _, c := range got {
					seen[c.ID]++
				}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Len(t, seen, total)
	for id, n := range seen {
		assert.Equal(t, 1, n, "command %d claimed %d times", id, n)
	}
}

func TestReportResult_ForwardOnly(t *testing.T) {
	s := newCommandService(t)
	ctx := context.Background()
	c, err := s.Create(ctx, "dev-1", models.CommandInstall, nil)
	require.NoError(t, err)
	_, err = s.Pull(ctx, "dev-1", 1)
	require.NoError(t, err)

	msg := "downloading"
	upd, err := s.ReportResult(ctx, "dev-1", c.ID, models.CommandRunning, &msg, nil)
	require.NoError(t, err)
	assert.Nil(t, upd.FinishedAt)

	code := 0
	done, err := s.ReportResult(ctx, "dev-1", c.ID, models.CommandSuccess, nil, &code)
	require.NoError(t, err)
	assert.Equal(t, models.CommandSuccess, done.Status)
	require.NotNil(t, done.FinishedAt)
	require.NotNil(t, done.ResultCode)
	assert.Equal(t, 0, *done.ResultCode)

	_, err = s.ReportResult(ctx, "dev-1", c.ID, models.CommandFailed, nil, nil)
	assert.ErrorIs(t, err, ErrClaimConflict)

	_, err = s.ReportResult(ctx, "dev-1", c.ID, models.CommandPending, nil, nil)
	assert.ErrorIs(t, err, ErrInvalidStatus)
}

func TestReportResult_OtherDeviceIsNotFound(t *testing.T) {
	s := newCommandService(t)
	ctx := context.Background()
	c, err := s.Create(ctx, "dev-1", models.CommandInstall, nil)
	require.NoError(t, err)

	_, err = s.ReportResult(ctx, "dev-2", c.ID, models.CommandFailed, nil, nil)
	assert.ErrorIs(t, err, ErrCommandNotFound)
	_, err = s.ReportResult(ctx, "dev-1", 9999, models.CommandFailed, nil, nil)
	assert.ErrorIs(t, err, ErrCommandNotFound)

	list, err := s.List(ctx, "dev-1", true)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, models.CommandPending, list[0].Status)
}

func TestCreate_Validation(t *testing.T) {
	s := newCommandService(t)
	ctx := context.Background()
	_, err := s.Create(ctx, "", models.CommandInstall, nil)
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = s.Create(ctx, "dev-1", "format-disk", nil)
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = s.Create(ctx, "dev-1", models.CommandInstall, json.RawMessage(`{`))
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestTruncateKeepsRunesWhole(t *testing.T) {
	cases := []struct {
		in   string
		n    int
		want string
	}{
		{"hello", 10, "hello"},
		{"héllo", 2, "h"},
		{"a€b", 3, "a"},
		{"a€b", 4, "a€"},
		{"ab�zzz", 5, "ab�"},
		{"日本語", 7, "日本"},
	}
	for _, tc := range cases {
		got := truncate(tc.in, tc.n)
		assert.Equal(t, tc.want, got, "truncate(%q, %d)", tc.in, tc.n)
		assert.True(t, utf8.ValidString(got))
		assert.LessOrEqual(t, len(got), tc.n)
	}
}
