package download

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type artifactServer struct {
	*httptest.Server
	mu          sync.Mutex
	ranges      []string
	ignoreRange bool
}

func newArtifactServer(t *testing.T, data []byte) *artifactServer {
	s := &artifactServer{}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.ranges = append(s.ranges, r.Header.Get("Range"))
		ignore := s.ignoreRange
		s.mu.Unlock()
		if ignore {
			r.Header.Del("Range")
		}
		http.ServeContent(w, r, "a.bin", time.Unix(0, 0), bytes.NewReader(data))
	}))
	t.Cleanup(s.Close)
	return s
}

func (s *artifactServer) lastRange() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ranges[len(s.ranges)-1]
}

func payload() []byte { return []byte(strings.Repeat("0123456789", 500)) }

func TestFetch_ResumesPartialWithRange(t *testing.T) {
	data := payload()
	srv := newArtifactServer(t, data)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.bin.part"), data[:1200], 0o644))

	f, err := NewFetcher(dir, Options{Resume: ResumeReuse})
	require.NoError(t, err)
	var last int64
	art, err := f.FetchVerified(context.Background(), srv.URL, "a.bin", Expect{Size: int64(len(data)), SHA256: digest(data)}, func(done, total int64) { last = done }, nil)
	require.NoError(t, err)
	assert.Equal(t, "bytes=1200-", srv.lastRange())
	assert.Equal(t, int64(len(data)), last)
	got, err := os.ReadFile(art.Path)
	require.NoError(t, err)
	assert.Equal(t, data, got)
	assert.NoFileExists(t, filepath.Join(dir, "a.bin.part"))
}

func TestFetch_DiscardPolicyStartsOver(t *testing.T) {
	data := payload()
	srv := newArtifactServer(t, data)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.bin.part"), []byte("garbage"), 0o644))

	f, err := NewFetcher(dir, Options{Resume: ResumeDiscard})
	require.NoError(t, err)
	_, err = f.FetchVerified(context.Background(), srv.URL, "a.bin", Expect{Size: int64(len(data)), SHA256: digest(data)}, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "", srv.lastRange())
}

func TestFetch_FullReplyRestartsFromZero(t *testing.T) {
	data := payload()
	srv := newArtifactServer(t, data)
	srv.ignoreRange = true
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.bin.part"), data[:100], 0o644))

	f, err := NewFetcher(dir, Options{})
	require.NoError(t, err)
	art, err := f.FetchVerified(context.Background(), srv.URL, "a.bin", Expect{Size: int64(len(data)), SHA256: digest(data)}, nil, nil)
	require.NoError(t, err)
	got, err := os.ReadFile(art.Path)
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestFetch_RangeNotSatisfiable(t *testing.T) {
	data := payload()
	srv := newArtifactServer(t, data[:50])
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.bin.part"), data[:100], 0o644))

	f, err := NewFetcher(dir, Options{})
	require.NoError(t, err)
	_, err = f.Fetch(context.Background(), srv.URL, "a.bin", 0, nil)
	var te *TransportError
	require.ErrorAs(t, err, &te)
	assert.NoFileExists(t, filepath.Join(dir, "a.bin.part"))
}

func TestFetchVerified_IntegrityFailureRemovesFiles(t *testing.T) {
	data := payload()
	srv := newArtifactServer(t, data)
	dir := t.TempDir()
	f, err := NewFetcher(dir, Options{})
	require.NoError(t, err)

	_, err = f.FetchVerified(context.Background(), srv.URL, "a.bin", Expect{Size: int64(len(data)), SHA256: digest([]byte("other"))}, nil, nil)
	var ie *IntegrityError
	require.ErrorAs(t, err, &ie)
	assert.NoFileExists(t, filepath.Join(dir, "a.bin"))
	assert.NoFileExists(t, filepath.Join(dir, "a.bin.part"))
}

func TestFetch_StalledTransferIsTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "100")
		_, _ = w.Write([]byte("partial"))
		w.(http.Flusher).Flush()
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	}))
	t.Cleanup(srv.Close)

	f, err := NewFetcher(t.TempDir(), Options{ReadTimeout: 100 * time.Millisecond})
	require.NoError(t, err)
	_, err = f.Fetch(context.Background(), srv.URL, "a.bin", 100, nil)
	var te *TransportError
	require.ErrorAs(t, err, &te)
}

func TestFetch_HTTPErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	t.Cleanup(srv.Close)
	f, err := NewFetcher(t.TempDir(), Options{})
	require.NoError(t, err)
	_, err = f.Fetch(context.Background(), srv.URL, "a.bin", 0, nil)
	var te *TransportError
	assert.ErrorAs(t, err, &te)
}
