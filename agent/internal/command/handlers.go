package command

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"

	"fleetpush/agent/internal/client"
	"fleetpush/agent/internal/queue"
)

// Queue is the part of the install queue controller used by handlers.
type Queue interface {
	Enqueue(ctx context.Context, reqs ...queue.Request) ([]queue.Item, error)
	Start(ctx context.Context) error
	SetPolicy(ctx context.Context, p queue.Policy) error
}

type Inventory interface {
	Inventory() (map[string]int64, error)
}

// RequestFromCandidate turns an update candidate into a queue request.
func RequestFromCandidate(c client.Candidate, installed map[string]int64) queue.Request {
	return queue.Request{
		PackageName:       c.PackageName,
		DisplayName:       c.DisplayName,
		VersionCode:       c.TargetVersionCode,
		URL:               c.DownloadURL,
		SHA256:            c.SHA256,
		Size:              c.FileSize,
		SignerFingerprint: c.SignerFingerprint,
		Classification:    queue.Classify(installed, c.PackageName, c.TargetVersionCode),
	}
}

// InstallHandler serves install and update commands whose payload is a
// candidate. The command stays running until the queue item finishes.
type InstallHandler struct {
	Queue     Queue
	Inventory Inventory
}

func (h InstallHandler) Handle(ctx context.Context, cmd client.Command) (Result, error) {
	var c client.Candidate
	if err := json.Unmarshal(cmd.Payload, &c); err != nil {
		return Result{}, fmt.Errorf("decode payload: %w", err)
	}
	switch {
	case c.PackageName == "":
		return Result{}, errors.New("payload missing packageName")
	case c.TargetVersionCode <= 0:
		return Result{}, errors.New("payload missing targetVersionCode")
	case c.DownloadURL == "":
		return Result{}, errors.New("payload missing downloadUrl")
	case c.SHA256 == "":
		return Result{}, errors.New("payload missing sha256")
	}
	installed, err := h.Inventory.Inventory()
	if err != nil {
		return Result{}, fmt.Errorf("read inventory: %w", err)
	}
	req := RequestFromCandidate(c, installed)
	if req.Classification == queue.Latest {
		return Result{Message: fmt.Sprintf("%s %d already installed", c.PackageName, installed[c.PackageName])}, nil
	}
	req.CommandID = cmd.ID
	if _, err := h.Queue.Enqueue(ctx, req); err != nil {
		return Result{}, err
	}
	if err := h.Queue.Start(ctx); err != nil {
		return Result{}, err
	}
	return Result{Deferred: true}, nil
}

type policyPayload struct {
	FailurePolicy string `json:"failurePolicy"`
	MaxRetries    *int   `json:"maxRetries"`
}

// PolicyHandler applies a queue failure policy sent by an operator.
type PolicyHandler struct {
	Queue Queue
	// Default supplies maxRetries when the payload leaves it out.
	Default queue.Policy
}

func (h PolicyHandler) Handle(ctx context.Context, cmd client.Command) (Result, error) {
	var p policyPayload
	if err := json.Unmarshal(cmd.Payload, &p); err != nil {
		return Result{}, fmt.Errorf("decode payload: %w", err)
	}
	fp, err := queue.ParseFailurePolicy(p.FailurePolicy)
	if err != nil {
		return Result{}, err
	}
	pol := queue.Policy{Failure: fp, MaxRetries: h.Default.MaxRetries}
	if p.MaxRetries != nil {
		pol.MaxRetries = *p.MaxRetries
	}
	if err := h.Queue.SetPolicy(ctx, pol); err != nil {
		return Result{}, err
	}
	return Result{Message: fmt.Sprintf("policy %s with %d retries", pol.Failure, pol.MaxRetries)}, nil
}

// RebootHandler reports success and then runs the configured reboot command.
type RebootHandler struct {
	Cmd []string
}

func (h RebootHandler) Handle(ctx context.Context, cmd client.Command) (Result, error) {
	if len(h.Cmd) == 0 {
		return Result{}, errors.New("no reboot command configured")
	}
	return Result{
		Message: "rebooting",
		Then:    func() error { return exec.Command(h.Cmd[0], h.Cmd[1:]...).Run() },
	}, nil
}
