package installer

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"fleetpush/agent/internal/download"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingExecutor struct{ calls int }

func (r *recordingExecutor) Execute(context.Context, Job, Hooks) (Result, error) {
	r.calls++
	return Result{}, nil
}

func TestAutoSelectsByProbeAtCallTime(t *testing.T) {
	native, fallback := &recordingExecutor{}, &recordingExecutor{}
	capable := false
	a := &Auto{Native: native, Fallback: fallback, Probe: func() bool { return capable }}

	_, _ = a.Execute(context.Background(), Job{}, Hooks{})
	capable = true
	_, _ = a.Execute(context.Background(), Job{}, Hooks{})
	_, _ = a.Execute(context.Background(), Job{}, Hooks{})

	assert.Equal(t, 1, fallback.calls)
	assert.Equal(t, 2, native.calls)
}

func serveArtifact(t *testing.T, data []byte) (string, download.Expect) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.ServeContent(w, r, "pkg", time.Unix(0, 0), bytes.NewReader(data))
	}))
	t.Cleanup(srv.Close)
	sum := sha256.Sum256(data)
	return srv.URL, download.Expect{Size: int64(len(data)), SHA256: hex.EncodeToString(sum[:])}
}

func TestFallbackStagesAndPrompts(t *testing.T) {
	url, exp := serveArtifact(t, []byte("package body"))
	f, err := download.NewFetcher(t.TempDir(), download.Options{})
	require.NoError(t, err)
	pending := t.TempDir()
	fb := &Fallback{Fetcher: f, Prompter: DirPrompter{Dir: pending}}

	var stages []Stage
	res, err := fb.Execute(context.Background(), Job{ItemID: "i1", PackageName: "com.app.a", VersionCode: 7, URL: url, Expect: exp},
		Hooks{OnStage: func(s Stage) { stages = append(stages, s) }})
	require.NoError(t, err)
	assert.Equal(t, PendingUserAction, res.Outcome)
	assert.Equal(t, []Stage{StageDownloading, StageVerifying, StageInstalling}, stages)
	assert.FileExists(t, filepath.Join(pending, "com.app.a-7.json"))
	assert.FileExists(t, res.Artifact.Path)
}

func TestFallbackIntegrityFailureSkipsPrompt(t *testing.T) {
	url, exp := serveArtifact(t, []byte("package body"))
	exp.SHA256 = "00" + exp.SHA256[2:]
	f, err := download.NewFetcher(t.TempDir(), download.Options{})
	require.NoError(t, err)
	pending := t.TempDir()
	fb := &Fallback{Fetcher: f, Prompter: DirPrompter{Dir: pending}}

	_, err = fb.Execute(context.Background(), Job{PackageName: "com.app.a", VersionCode: 7, URL: url, Expect: exp}, Hooks{})
	var ie *download.IntegrityError
	require.ErrorAs(t, err, &ie)
	entries, _ := os.ReadDir(pending)
	assert.Empty(t, entries)
}
