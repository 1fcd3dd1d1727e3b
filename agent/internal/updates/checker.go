package updates

import (
	"context"
	"errors"
	"time"

	"fleetpush/agent/internal/client"
	"fleetpush/agent/internal/command"
	"fleetpush/agent/internal/queue"

	"github.com/rs/zerolog"
)

type API interface {
	CheckUpdates(ctx context.Context, inventory map[string]int64) ([]client.Candidate, error)
}

// Checker reports the local inventory to the backend on an interval and,
// when Auto is set, queues the silent candidates it gets back.
type Checker struct {
	API       API
	Inventory command.Inventory
	Queue     command.Queue
	Interval  time.Duration
	Auto      bool
	Log       zerolog.Logger
}

func (c *Checker) Run(ctx context.Context) error {
	interval := c.Interval
	if interval <= 0 {
		interval = time.Hour
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		if _, err := c.CheckOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
			c.Log.Error().Err(err).Msg("update check failed")
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}
}

// CheckOnce returns the items it queued.
func (c *Checker) CheckOnce(ctx context.Context) ([]queue.Item, error) {
	inv, err := c.Inventory.Inventory()
	if err != nil {
		return nil, err
	}
	cands, err := c.API.CheckUpdates(ctx, inv)
	if err != nil {
		return nil, err
	}
	c.Log.Info().Int("installed", len(inv)).Int("candidates", len(cands)).Msg("update check")
	if !c.Auto || len(cands) == 0 {
		return nil, nil
	}
	reqs := make([]queue.Request, 0, len(cands))
	for _, cand := range cands {
		if !cand.AutoUpdate {
			continue
		}
		reqs = append(reqs, command.RequestFromCandidate(cand, inv))
	}
	if len(reqs) == 0 {
		return nil, nil
	}
	items, err := c.Queue.Enqueue(ctx, reqs...)
	if err != nil {
		return nil, err
	}
	if len(items) > 0 {
		if err := c.Queue.Start(ctx); err != nil {
			return items, err
		}
	}
	return items, nil
}
