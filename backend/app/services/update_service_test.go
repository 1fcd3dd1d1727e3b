package services

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"fleetpush/backend/app/models"
	"fleetpush/backend/app/repo"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func urlFor(r models.Release) string { return "http://files/" + r.ObjectName }

func TestEvaluate_SilentUpdate(t *testing.T) {
	latest := map[string]models.Release{
		"com.app.a": {PackageName: "com.app.a", VersionCode: 7, AutoUpdate: true, SHA256: "aa", FileSize: 10, ObjectName: "aa.apk"},
	}
	got := Evaluate(map[string]int64{"com.app.a": 5}, latest, FlavorSilent, urlFor)
	require.Len(t, got, 1)
	assert.Equal(t, int64(5), got[0].InstalledVersionCode)
	assert.Equal(t, int64(7), got[0].TargetVersionCode)
	assert.Equal(t, "http://files/aa.apk", got[0].DownloadURL)
}

func TestEvaluate_Flavors(t *testing.T) {
	latest := map[string]models.Release{
		"com.app.a": {PackageName: "com.app.a", VersionCode: 7, AutoUpdate: false},
		"com.app.b": {PackageName: "com.app.b", VersionCode: 3, AutoUpdate: true},
		"com.app.c": {PackageName: "com.app.c", VersionCode: 2, AutoUpdate: true},
	}
	installed := map[string]int64{"com.app.a": 5, "com.app.c": 2}

	silent := Evaluate(installed, latest, FlavorSilent, urlFor)
	require.Len(t, silent, 1)
	assert.Equal(t, "com.app.b", silent[0].PackageName)
	assert.Equal(t, NotInstalled, silent[0].InstalledVersionCode)

	catalog := Evaluate(installed, latest, FlavorCatalog, urlFor)
	require.Len(t, catalog, 2)
	assert.Equal(t, "com.app.a", catalog[0].PackageName)
	assert.Equal(t, "com.app.b", catalog[1].PackageName)
}

func newUpdateService(t *testing.T) (*UpdateService, *repo.ReleaseRepository, *repo.DeviceRepository) {
	gdb := newTestDB(t)
	devices := repo.NewDeviceRepository(gdb)
	releases := repo.NewReleaseRepository(gdb)
	cmds := NewCommandService(repo.NewCommandRepository(gdb), devices)
	return NewUpdateService(devices, releases, cmds, "http://fleet.local"), releases, devices
}

func TestCheck_ReplacesSnapshot(t *testing.T) {
	s, releases, devices := newUpdateService(t)
	ctx := context.Background()
	require.NoError(t, releases.Create(ctx, &models.Release{PackageName: "com.app.a", VersionCode: 7, AutoUpdate: true, SHA256: "ab", FileSize: 1, ObjectName: "ab.apk", UploadedAt: time.Now()}))

	got, err := s.Check(ctx, "dev-1", map[string]int64{"com.app.a": 5, "com.app.z": 1}, FlavorSilent)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "http://fleet.local/artifacts/ab.apk", got[0].DownloadURL)

	_, err = s.Check(ctx, "dev-1", map[string]int64{"com.app.a": 7}, FlavorSilent)
	require.NoError(t, err)
	snap, err := devices.Installed(ctx, "dev-1")
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"com.app.a": 7}, snap)
}

func TestPushSilent_CreatesInstallAndUpdate(t *testing.T) {
	s, releases, _ := newUpdateService(t)
	ctx := context.Background()
	now := time.Now()
	require.NoError(t, releases.Create(ctx, &models.Release{PackageName: "com.app.a", VersionCode: 7, AutoUpdate: true, SHA256: "a1", FileSize: 1, ObjectName: "a1", UploadedAt: now}))
	require.NoError(t, releases.Create(ctx, &models.Release{PackageName: "com.app.b", VersionCode: 2, AutoUpdate: true, SHA256: "b1", FileSize: 1, ObjectName: "b1", UploadedAt: now}))
	_, err := s.Check(ctx, "dev-1", map[string]int64{"com.app.a": 5}, FlavorCatalog)
	require.NoError(t, err)

	cmds, err := s.PushSilent(ctx, "dev-1")
	require.NoError(t, err)
	require.Len(t, cmds, 2)
	assert.Equal(t, models.CommandUpdate, cmds[0].Type)
	assert.Equal(t, models.CommandInstall, cmds[1].Type)

	var c Candidate
	require.NoError(t, json.Unmarshal([]byte(cmds[0].Payload), &c))
	assert.Equal(t, int64(7), c.TargetVersionCode)
}
