package telemetry

//go:generate mockgen -destination=mocks/mock_sink.go -package=mocks fleetpush/agent/internal/telemetry Sink

import (
	"context"
	"fmt"
	"time"

	"fleetpush/agent/internal/client"
)

const (
	DownloadStarted  = "download-started"
	DownloadFinished = "download-finished"
	InstallRequested = "install-requested"
	InstallSuccess   = "install-success"
	InstallFailed    = "install-failed"
)

type Event struct {
	Name        string    `json:"name"`
	ItemID      string    `json:"itemId"`
	PackageName string    `json:"packageName"`
	VersionCode int64     `json:"versionCode"`
	Detail      string    `json:"detail,omitempty"`
	At          time.Time `json:"at"`
}

// Sink receives best-effort lifecycle events. Callers log errors and move on.
type Sink interface {
	Emit(ctx context.Context, ev Event) error
}

type Nop struct{}

func (Nop) Emit(context.Context, Event) error { return nil }

// HTTPSink posts events to the backend device event endpoint.
type HTTPSink struct {
	Client *client.Client
}

func (s HTTPSink) Emit(ctx context.Context, ev Event) error {
	detail := ev.Detail
	if detail == "" {
		detail = fmt.Sprintf("item=%s version=%d", ev.ItemID, ev.VersionCode)
	} else {
		detail = fmt.Sprintf("item=%s version=%d %s", ev.ItemID, ev.VersionCode, detail)
	}
	return s.Client.PostEvent(ctx, client.Event{Event: ev.Name, PackageName: ev.PackageName, Detail: detail})
}
