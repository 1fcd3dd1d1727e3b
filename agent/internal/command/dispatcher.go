package command

import (
	"context"
	"errors"
	"fmt"
	"time"

	"fleetpush/agent/internal/client"

	"github.com/rs/zerolog"
)

// API is the part of the backend client the dispatcher and poller use.
type API interface {
	Pull(ctx context.Context, max int) ([]client.Command, error)
	ReportResult(ctx context.Context, commandID uint, res client.Result) error
}

// Dispatcher runs pulled commands through the registry and reports
// immediate outcomes.
type Dispatcher struct {
	reg *Registry
	api API
	log zerolog.Logger
}

func NewDispatcher(reg *Registry, api API, log zerolog.Logger) *Dispatcher {
	return &Dispatcher{reg: reg, api: api, log: log}
}

func (d *Dispatcher) Dispatch(ctx context.Context, cmd client.Command) {
	log := d.log.With().Uint("command", cmd.ID).Str("type", cmd.Type).Logger()
	h, ok := d.reg.Get(cmd.Type)
	if !ok {
		log.Error().Msg("unknown command type")
		d.report(ctx, cmd.ID, failed(fmt.Sprintf("unknown command type %q", cmd.Type)))
		return
	}
	res, err := h.Handle(ctx, cmd)
	if err != nil {
		log.Error().Err(err).Msg("command failed")
		d.report(ctx, cmd.ID, failed(err.Error()))
		return
	}
	if res.Deferred {
		log.Info().Msg("command accepted")
		return
	}
	log.Info().Str("message", res.Message).Msg("command completed")
	d.report(ctx, cmd.ID, succeeded(res.Message))
	if res.Then != nil {
		if err := res.Then(); err != nil {
			log.Error().Err(err).Msg("post-report action failed")
		}
	}
}

func (d *Dispatcher) report(ctx context.Context, id uint, res client.Result) {
	err := d.api.ReportResult(ctx, id, res)
	switch {
	case err == nil:
	case client.IsNotFound(err), client.IsConflict(err):
		d.log.Warn().Err(err).Uint("command", id).Msg("result rejected by backend")
	default:
		d.log.Error().Err(err).Uint("command", id).Msg("report result failed")
	}
}

// Poller pulls commands on a fixed interval.
type Poller struct {
	API        API
	Dispatcher *Dispatcher
	Interval   time.Duration
	Max        int
	// OnUnauthorized is called when the backend rejects the token.
	OnUnauthorized func(ctx context.Context) error
	Log            zerolog.Logger
}

func (p *Poller) Run(ctx context.Context) error {
	interval := p.Interval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		if _, err := p.PollOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
			p.Log.Error().Err(err).Msg("command poll failed")
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}
}

// PollOnce claims up to Max commands and dispatches them in order.
func (p *Poller) PollOnce(ctx context.Context) (int, error) {
	cmds, err := p.API.Pull(ctx, max(p.Max, 1))
	if client.IsUnauthorized(err) && p.OnUnauthorized != nil {
		if rerr := p.OnUnauthorized(ctx); rerr != nil {
			return 0, fmt.Errorf("refresh token: %w", rerr)
		}
		cmds, err = p.API.Pull(ctx, max(p.Max, 1))
	}
	if err != nil {
		return 0, err
	}
	for _, cmd := range cmds {
		p.Dispatcher.Dispatch(ctx, cmd)
	}
	return len(cmds), nil
}

func failed(msg string) client.Result {
	return client.Result{Status: "failed", Message: &msg}
}

func succeeded(msg string) client.Result {
	res := client.Result{Status: "success"}
	if msg != "" {
		res.Message = &msg
	}
	return res
}
