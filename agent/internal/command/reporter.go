package command

import (
	"context"
	"errors"
	"fmt"
	"time"

	"fleetpush/agent/internal/client"
	"fleetpush/agent/internal/queue"
	"fleetpush/agent/internal/state"

	"github.com/rs/zerolog"
)

// Snapshotter gives the reporter the full queue state to reconcile against.
type Snapshotter interface {
	Snapshot(ctx context.Context) (queue.Snapshot, error)
}

// Ledger persists which command results the backend has accepted.
type Ledger interface {
	Put(key string, v any) error
	Get(key string, v any) (bool, error)
}

// Reporter closes the loop for deferred commands: it watches queue events and
// reports the outcome of every command attached to an item. A report is only
// recorded once the backend accepted or rejected it; anything else is retried
// when the queue is reconciled on the next tick.
type Reporter struct {
	API   API
	Queue Snapshotter
	Store Ledger
	// Interval between reconciliations; zero means 30 seconds.
	Interval time.Duration
	// OnInstalled is called once per item that reaches success.
	OnInstalled func(pkg string, versionCode int64)
	Log         zerolog.Logger

	reported  map[uint]queue.Stage
	installed map[string]bool
}

// Run reconciles once against the queue, then consumes events from a queue
// subscription until it closes, reconciling on every tick.
func (r *Reporter) Run(ctx context.Context, events <-chan queue.Event) error {
	r.load()
	interval := r.Interval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	r.Reconcile(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if ev.Item.ID != "" {
				r.handle(ctx, ev.Item)
			}
		case <-t.C:
			r.Reconcile(ctx)
		}
	}
}

// Reconcile reports every finished or waiting item whose commands have no
// accepted result yet, and forgets commands whose items were cleared.
func (r *Reporter) Reconcile(ctx context.Context) {
	if r.Queue == nil {
		return
	}
	if r.reported == nil {
		r.load()
	}
	snap, err := r.Queue.Snapshot(ctx)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			r.Log.Error().Err(err).Msg("read queue for reconcile failed")
		}
		return
	}
	live := map[uint]bool{}
	for _, it := range snap.Items {
		for _, id := range it.CommandIDs {
			live[id] = true
		}
		r.handle(ctx, it)
	}
	pruned := false
	for id := range r.reported {
		if !live[id] {
			delete(r.reported, id)
			pruned = true
		}
	}
	if pruned {
		r.save()
	}
}

func (r *Reporter) load() {
	r.reported = map[uint]queue.Stage{}
	r.installed = map[string]bool{}
	if r.Store == nil {
		return
	}
	if _, err := r.Store.Get(state.KeyReported, &r.reported); err != nil {
		r.Log.Error().Err(err).Msg("load reported commands failed")
		r.reported = map[uint]queue.Stage{}
	}
}

func (r *Reporter) save() {
	if r.Store == nil {
		return
	}
	if err := r.Store.Put(state.KeyReported, r.reported); err != nil {
		r.Log.Error().Err(err).Msg("persist reported commands failed")
	}
}

func (r *Reporter) handle(ctx context.Context, it queue.Item) {
	if r.reported == nil {
		r.load()
	}
	var res client.Result
	switch it.Stage {
	case queue.StageSuccess:
		res = succeeded(fmt.Sprintf("installed %s %d", it.PackageName, it.VersionCode))
	case queue.StageFailed:
		msg := fmt.Sprintf("failed after %d attempts: %s", it.Attempts, it.FailureMessage)
		res = failed(msg)
	case queue.StagePendingUserAction:
		msg := "waiting for user confirmation"
		res = client.Result{Status: "running", Message: &msg}
	default:
		return
	}
	if it.Stage == queue.StageSuccess && r.OnInstalled != nil && !r.installed[it.ID] {
		r.installed[it.ID] = true
		r.OnInstalled(it.PackageName, it.VersionCode)
	}
	changed := false
	for _, id := range it.CommandIDs {
		if r.reported[id] == it.Stage {
			continue
		}
		err := r.API.ReportResult(ctx, id, res)
		switch {
		case err == nil:
			r.Log.Info().Uint("command", id).Str("status", res.Status).Str("package", it.PackageName).Msg("command result reported")
		case client.IsRejected(err):
			r.Log.Warn().Err(err).Uint("command", id).Msg("result rejected by backend")
		default:
			r.Log.Error().Err(err).Uint("command", id).Msg("report result failed, will retry")
			continue
		}
		r.reported[id] = it.Stage
		changed = true
	}
	if changed {
		r.save()
	}
}
