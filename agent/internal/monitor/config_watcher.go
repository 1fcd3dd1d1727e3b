package monitor

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"fleetpush/agent/internal/config"
	"fleetpush/agent/internal/queue"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

const defaultDebounce = 200 * time.Millisecond

// ConfigWatcher reloads the agent config file whenever it changes on disk.
// The parent directory is watched so editors that replace the file are seen.
type ConfigWatcher struct {
	path     string
	watcher  *fsnotify.Watcher
	Debounce time.Duration
	log      zerolog.Logger
}

func NewConfigWatcher(path string, log zerolog.Logger) (*ConfigWatcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := w.Add(filepath.Dir(abs)); err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("watch %s: %w", filepath.Dir(abs), err)
	}
	return &ConfigWatcher{path: filepath.Clean(abs), watcher: w, Debounce: defaultDebounce, log: log}, nil
}

// Run calls onChange with the reloaded config after each burst of changes.
// It returns when ctx is done and closes the underlying watcher.
func (w *ConfigWatcher) Run(ctx context.Context, onChange func(config.AppConfig)) error {
	defer w.watcher.Close()
	var (
		timer *time.Timer
		fire  <-chan time.Time
	)
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return ctx.Err()
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != w.path || !ev.Has(fsnotify.Write|fsnotify.Create|fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.Debounce)
			} else {
				timer.Reset(w.Debounce)
			}
			fire = timer.C
		case <-fire:
			fire = nil
			cfg, err := config.Load(w.path)
			if err != nil {
				w.log.Error().Err(err).Str("path", w.path).Msg("reload config failed")
				continue
			}
			w.log.Info().Str("path", w.path).Msg("config reloaded")
			onChange(cfg)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.log.Error().Err(err).Msg("config watcher error")
		}
	}
}

type PolicySetter interface {
	SetPolicy(ctx context.Context, p queue.Policy) error
}

// PolicyFromConfig builds the queue failure policy from the agent config.
func PolicyFromConfig(cfg config.AppConfig) (queue.Policy, error) {
	fp, err := queue.ParseFailurePolicy(cfg.FailurePolicy)
	if err != nil {
		return queue.Policy{}, err
	}
	if cfg.MaxRetries < 0 {
		return queue.Policy{}, fmt.Errorf("max_retries must be >= 0, got %d", cfg.MaxRetries)
	}
	return queue.Policy{Failure: fp, MaxRetries: cfg.MaxRetries}, nil
}

// PolicyReloader returns an onChange callback that forwards policy changes
// to the queue.
func PolicyReloader(ctx context.Context, q PolicySetter, log zerolog.Logger) func(config.AppConfig) {
	return func(cfg config.AppConfig) {
		p, err := PolicyFromConfig(cfg)
		if err != nil {
			log.Error().Err(err).Msg("ignoring invalid queue policy")
			return
		}
		if err := q.SetPolicy(ctx, p); err != nil {
			log.Error().Err(err).Msg("apply queue policy failed")
		}
	}
}
