package storage

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFSStorePutStatOpen(t *testing.T) {
	ctx := context.Background()
	s, err := NewFSStore(t.TempDir())
	require.NoError(t, err)

	info, err := s.Put(ctx, "app-7.bin", strings.NewReader("payload"))
	require.NoError(t, err)
	assert.Equal(t, int64(7), info.Size)

	obj, info, err := s.Open(ctx, "app-7.bin")
	require.NoError(t, err)
	defer obj.Close()
	b, err := io.ReadAll(obj)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(b))
	assert.Equal(t, "app-7.bin", info.Name)
}

func TestFSStoreRejectsTraversal(t *testing.T) {
	s, err := NewFSStore(t.TempDir())
	require.NoError(t, err)

	_, err = s.Stat(context.Background(), "../etc/passwd")
	assert.ErrorIs(t, err, ErrObjectNotFound)
	_, err = s.Stat(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrObjectNotFound)
}
