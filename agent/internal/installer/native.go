package installer

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"strconv"
	"strings"

	"fleetpush/agent/internal/download"
)

// ExitNeedsUser is the installer exit code for "staged, waiting for the user".
const ExitNeedsUser = 10

// Native runs the platform installer binary as one coordinated
// fetch, verify and install unit. It needs root and an executable Bin.
type Native struct {
	Fetcher *download.Fetcher
	Bin     string
}

func (n *Native) Execute(ctx context.Context, job Job, hooks Hooks) (Result, error) {
	art, err := fetchAndVerify(ctx, n.Fetcher, job, hooks)
	if err != nil {
		return Result{}, err
	}
	hooks.stage(StageInstalling)
	cmd := exec.CommandContext(ctx, n.Bin, art.Path, job.PackageName, strconv.FormatInt(job.VersionCode, 10))
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	err = cmd.Run()
	var exitErr *exec.ExitError
	switch {
	case err == nil:
		return Result{Artifact: art, Outcome: Installed}, nil
	case errors.As(err, &exitErr) && exitErr.ExitCode() == ExitNeedsUser:
		return Result{Artifact: art, Outcome: PendingUserAction}, nil
	case errors.As(err, &exitErr):
		return Result{}, &InstallerError{Code: exitErr.ExitCode(), Output: trimOutput(out.String())}
	case ctx.Err() != nil:
		return Result{}, &download.TransportError{Op: "install", Err: ctx.Err()}
	default:
		return Result{}, &InstallerError{Code: -1, Output: err.Error()}
	}
}

func trimOutput(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > 512 {
		s = s[len(s)-512:]
	}
	return s
}
