package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"fleetpush/agent/internal/auth"
	"fleetpush/agent/internal/client"
	"fleetpush/agent/internal/command"
	"fleetpush/agent/internal/config"
	"fleetpush/agent/internal/db"
	"fleetpush/agent/internal/download"
	"fleetpush/agent/internal/installer"
	"fleetpush/agent/internal/logger"
	"fleetpush/agent/internal/monitor"
	"fleetpush/agent/internal/queue"
	"fleetpush/agent/internal/state"
	"fleetpush/agent/internal/telemetry"
	"fleetpush/agent/internal/updates"
)

func main() {
	cfgPath := flag.String("config", "config/agent.yaml", "Path to configuration file")
	flag.Parse()

	if err := run(*cfgPath); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintln(os.Stderr, "agent:", err)
		os.Exit(1)
	}
}

func run(cfgPath string) error {
	cfg, err := config.Init(cfgPath)
	if err != nil {
		return err
	}
	if err := logger.Init(cfg.LogPath); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	deviceID := deviceIdentity(cfg)
	logger.Infof("Agent starting for device %s, backend %s", deviceID, cfg.BackendURL)

	adb, err := db.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open state db: %w", err)
	}
	store := state.NewStore(adb, cfg.LogCapacity)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tokens := auth.NewManager(config.TokenFilePath(), adb, auth.Credentials{Username: cfg.Username, Password: cfg.Password})
	api := client.New(cfg.BackendURL, deviceID, tokens.Token, cfg.ReadTimeout)
	if _, err := tokens.Ensure(ctx, api); err != nil {
		return err
	}
	refresh := func(ctx context.Context) error {
		logger.Warnf("Token rejected, logging in again")
		_ = tokens.Clear()
		_, err := tokens.Refresh(ctx, api)
		return err
	}

	resume, err := download.ParseResumePolicy(cfg.ResumePolicy)
	if err != nil {
		return err
	}
	opts := download.Options{
		Resume:         resume,
		ConnectTimeout: cfg.ConnectTimeout,
		ReadTimeout:    cfg.ReadTimeout,
	}
	if len(cfg.SignerCmd) > 0 {
		opts.Signer = download.ExecSigner{Cmd: cfg.SignerCmd}
	}
	fetcher, err := download.NewFetcher(cfg.DownloadDir, opts)
	if err != nil {
		return err
	}
	exec := installer.NewAuto(
		&installer.Native{Fetcher: fetcher, Bin: cfg.InstallerBin},
		&installer.Fallback{Fetcher: fetcher, Prompter: installer.DirPrompter{Dir: cfg.PendingDir}},
	)

	policy, err := monitor.PolicyFromConfig(cfg)
	if err != nil {
		return err
	}
	q := queue.New(exec, store, telemetry.HTTPSink{Client: api}, queue.Options{
		Policy:      policy,
		ItemTimeout: cfg.ItemTimeout,
		Logger:      logger.With("queue"),
	})

	var wg sync.WaitGroup
	goRun := func(name string, f func() error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := f(); err != nil && !errors.Is(err, context.Canceled) {
				logger.Errorf("%s stopped: %v", name, err)
			}
		}()
	}
	goRun("queue", func() error { return q.Run(ctx) })

	events, unsubscribe, err := q.Subscribe(ctx, 256)
	if err != nil {
		return err
	}
	defer unsubscribe()
	reporter := &command.Reporter{
		API:      api,
		Queue:    q,
		Store:    store,
		Interval: cfg.PollInterval,
		OnInstalled: func(pkg string, versionCode int64) {
			if err := store.RecordInstalled(pkg, versionCode); err != nil {
				logger.Errorf("Record installed %s %d: %v", pkg, versionCode, err)
			}
		},
		Log: logger.With("reporter"),
	}
	goRun("reporter", func() error { return reporter.Run(ctx, events) })

	reg := command.NewRegistry()
	install := command.InstallHandler{Queue: q, Inventory: store}
	reg.Register(command.TypeInstall, install)
	reg.Register(command.TypeUpdate, install)
	reg.Register(command.TypeApplyPolicy, command.PolicyHandler{Queue: q, Default: policy})
	reg.Register(command.TypeReboot, command.RebootHandler{Cmd: cfg.RebootCmd})
	poller := &command.Poller{
		API:            api,
		Dispatcher:     command.NewDispatcher(reg, api, logger.With("command")),
		Interval:       cfg.PollInterval,
		Max:            cfg.PollMax,
		OnUnauthorized: refresh,
		Log:            logger.With("poller"),
	}
	goRun("poller", func() error { return poller.Run(ctx) })

	checker := &updates.Checker{
		API:       api,
		Inventory: store,
		Queue:     q,
		Interval:  cfg.UpdateInterval,
		Auto:      cfg.AutoUpdate,
		Log:       logger.With("updates"),
	}
	goRun("update checker", func() error { return checker.Run(ctx) })

	if w, err := monitor.NewConfigWatcher(cfgPath, logger.With("config")); err != nil {
		logger.Warnf("Config watcher disabled: %v", err)
	} else {
		goRun("config watcher", func() error { return w.Run(ctx, monitor.PolicyReloader(ctx, q, logger.With("config"))) })
	}

	<-ctx.Done()
	logger.Info("Shutdown signal received, waiting for workers")
	wg.Wait()
	return nil
}

// deviceIdentity prefers the configured id, then the machine id, then the hostname.
func deviceIdentity(cfg config.AppConfig) string {
	if cfg.DeviceID != "" {
		return cfg.DeviceID
	}
	if b, err := os.ReadFile("/etc/machine-id"); err == nil {
		if id := strings.TrimSpace(string(b)); id != "" {
			return id
		}
	}
	host, _ := os.Hostname()
	return host
}
