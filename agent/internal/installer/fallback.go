package installer

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"fleetpush/agent/internal/download"
)

// Prompter hands a verified artifact to a user-facing install action.
type Prompter interface {
	Prompt(ctx context.Context, job Job, art download.Artifact) error
}

// Fallback verifies at application level and leaves installation to the
// user; it always ends in PendingUserAction.
type Fallback struct {
	Fetcher  *download.Fetcher
	Prompter Prompter
}

func (f *Fallback) Execute(ctx context.Context, job Job, hooks Hooks) (Result, error) {
	art, err := fetchAndVerify(ctx, f.Fetcher, job, hooks)
	if err != nil {
		return Result{}, err
	}
	hooks.stage(StageInstalling)
	if err := f.Prompter.Prompt(ctx, job, art); err != nil {
		return Result{}, &InstallerError{Code: -1, Output: err.Error()}
	}
	return Result{Artifact: art, Outcome: PendingUserAction}, nil
}

// DirPrompter drops a JSON install request next to the artifact in Dir for the
// desktop session to pick up.
type DirPrompter struct {
	Dir string
}

type installRequest struct {
	ItemID      string    `json:"itemId"`
	PackageName string    `json:"packageName"`
	VersionCode int64     `json:"versionCode"`
	Path        string    `json:"path"`
	SHA256      string    `json:"sha256"`
	RequestedAt time.Time `json:"requestedAt"`
}

func (p DirPrompter) Prompt(_ context.Context, job Job, art download.Artifact) error {
	if err := os.MkdirAll(p.Dir, 0o755); err != nil {
		return err
	}
	b, err := json.MarshalIndent(installRequest{
		ItemID:      job.ItemID,
		PackageName: job.PackageName,
		VersionCode: job.VersionCode,
		Path:        art.Path,
		SHA256:      art.SHA256,
		RequestedAt: time.Now().UTC(),
	}, "", "  ")
	if err != nil {
		return err
	}
	name := filepath.Join(p.Dir, fmt.Sprintf("%s-%d.json", job.PackageName, job.VersionCode))
	tmp := name + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, name)
}
