package services

import (
	"context"
	"strings"
	"testing"

	"fleetpush/backend/app/models"
	"fleetpush/backend/app/repo"
	"fleetpush/backend/app/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sum = "2CF24DBA5FB0A30E26E83B2AC5B9E29E1B161E5C1FA7425E73043362938B9824"

func TestRegisterRelease(t *testing.T) {
	ctx := context.Background()
	objects, err := storage.NewFSStore(t.TempDir())
	require.NoError(t, err)
	_, err = objects.Put(ctx, "hello.apk", strings.NewReader("hello"))
	require.NoError(t, err)
	s := NewReleaseService(repo.NewReleaseRepository(newTestDB(t)), objects)

	rel := models.Release{PackageName: "com.app.a", VersionCode: 1, SHA256: sum, FileSize: 5, ObjectName: "hello.apk"}
	got, err := s.Register(ctx, rel)
	require.NoError(t, err)
	assert.Equal(t, strings.ToLower(sum), got.SHA256)
	assert.False(t, got.UploadedAt.IsZero())

	_, err = s.Register(ctx, rel)
	assert.ErrorIs(t, err, ErrReleaseExists)

	rel.VersionCode = 2
	rel.FileSize = 6
	_, err = s.Register(ctx, rel)
	assert.ErrorIs(t, err, ErrInvalidInput)

	rel.FileSize = 5
	rel.ObjectName = "missing.apk"
	_, err = s.Register(ctx, rel)
	assert.ErrorIs(t, err, ErrArtifactMissing)
}
