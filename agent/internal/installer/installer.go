package installer

import (
	"context"
	"fmt"

	"fleetpush/agent/internal/download"
)

type Stage string

const (
	StageDownloading Stage = "downloading"
	StageVerifying   Stage = "verifying"
	StageInstalling  Stage = "installing"
)

type Outcome int

const (
	Installed Outcome = iota
	// PendingUserAction means the package is staged and waits for the user
	// to confirm the platform install prompt.
	PendingUserAction
)

func (o Outcome) String() string {
	if o == PendingUserAction {
		return "pending-user-action"
	}
	return "installed"
}

type Job struct {
	ItemID      string
	PackageName string
	VersionCode int64
	URL         string
	Expect      download.Expect
}

// FileName is the local artifact name for the job.
func (j Job) FileName() string {
	return fmt.Sprintf("%s-%d.pkg", j.PackageName, j.VersionCode)
}

type Result struct {
	Artifact download.Artifact
	Outcome  Outcome
}

// Hooks report progress back to the caller. Both may be nil.
type Hooks struct {
	OnStage    func(Stage)
	OnProgress download.Progress
}

func (h Hooks) stage(s Stage) {
	if h.OnStage != nil {
		h.OnStage(s)
	}
}

// Executor fetches, verifies and installs one package. Errors are
// *download.TransportError, *download.IntegrityError or *InstallerError.
type Executor interface {
	Execute(ctx context.Context, job Job, hooks Hooks) (Result, error)
}

// InstallerError is a rejection by the platform installer.
type InstallerError struct {
	Code   int
	Output string
}

func (e *InstallerError) Error() string {
	if e.Output == "" {
		return fmt.Sprintf("installer exited with code %d", e.Code)
	}
	return fmt.Sprintf("installer exited with code %d: %s", e.Code, e.Output)
}

func fetchAndVerify(ctx context.Context, f *download.Fetcher, job Job, hooks Hooks) (download.Artifact, error) {
	hooks.stage(StageDownloading)
	return f.FetchVerified(ctx, job.URL, job.FileName(), job.Expect, hooks.OnProgress, func() { hooks.stage(StageVerifying) })
}
