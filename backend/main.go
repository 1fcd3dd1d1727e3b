package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"fleetpush/backend/app/session"
	"fleetpush/backend/global"
	"fleetpush/backend/initialize"
	"fleetpush/backend/server"
)

func main() {
	configPath := flag.String("config", "config.yaml", "Path to backend config file")
	flag.Parse()

	app, err := initialize.Build(*configPath)
	if err != nil {
		global.Logger.Fatal().Err(err).Msg("build backend")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go sweepSessions(ctx, app.Sessions, time.Minute)

	if err := server.Run(ctx, app.Cfg.HTTP.Host, app.Cfg.HTTP.Port, app.Router, 15*time.Second); err != nil {
		global.Logger.Fatal().Err(err).Msg("http server stopped")
	}
	global.Logger.Info().Msg("backend stopped")
}

func sweepSessions(ctx context.Context, store session.Store, every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			n, err := store.Expire(ctx, now)
			if err != nil {
				global.Logger.Warn().Err(err).Msg("session sweep failed")
			} else if n > 0 {
				global.Logger.Debug().Int("expired", n).Msg("sessions swept")
			}
		}
	}
}
