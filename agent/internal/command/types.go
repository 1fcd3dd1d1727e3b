package command

import (
	"context"
	"sync"

	"fleetpush/agent/internal/client"
)

const (
	TypeInstall     = "install"
	TypeUpdate      = "update"
	TypeReboot      = "reboot"
	TypeApplyPolicy = "apply-policy"
)

// Result is what a handler reports for a command it accepted.
type Result struct {
	// Deferred leaves the command running; its result is reported later
	// by the queue reporter.
	Deferred bool
	Message  string
	// Then runs after the success report has been sent.
	Then func() error
}

type Handler interface {
	Handle(ctx context.Context, cmd client.Command) (Result, error)
}

type HandlerFunc func(ctx context.Context, cmd client.Command) (Result, error)

func (f HandlerFunc) Handle(ctx context.Context, cmd client.Command) (Result, error) {
	return f(ctx, cmd)
}

// Registry maps command type to handler.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

func NewRegistry() *Registry { return &Registry{handlers: map[string]Handler{}} }

func (r *Registry) Register(typ string, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[typ] = h
}

func (r *Registry) Get(typ string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[typ]
	return h, ok
}
