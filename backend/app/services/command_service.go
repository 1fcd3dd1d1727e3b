package services

import (
	"context"
	"encoding/json"
	"errors"
	"fleetpush/backend/app/metrics"
	"fleetpush/backend/app/models"
	"fleetpush/backend/app/repo"
	"fleetpush/backend/global"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"
)

var (
	ErrCommandNotFound = errors.New("command not found")
	// ErrClaimConflict is returned for a command that is already claimed or
	// finished. Callers must not retry it.
	ErrClaimConflict = errors.New("command already claimed or finished")
	ErrInvalidStatus = errors.New("invalid command status")
	ErrInvalidInput  = errors.New("invalid input")
)

const maxResultMessage = 1024

type CommandService struct {
	commands *repo.CommandRepository
	devices  *repo.DeviceRepository
	now      func() time.Time
}

func NewCommandService(commands *repo.CommandRepository, devices *repo.DeviceRepository) *CommandService {
	return &CommandService{commands: commands, devices: devices, now: func() time.Time { return time.Now().UTC() }}
}

// Create stores a pending command and marks the device as seen.
func (s *CommandService) Create(ctx context.Context, deviceID string, typ models.CommandType, payload json.RawMessage) (*models.Command, error) {
	if deviceID == "" {
		return nil, fmt.Errorf("%w: missing device id", ErrInvalidInput)
	}
	if !typ.Valid() {
		return nil, fmt.Errorf("%w: unknown command type %q", ErrInvalidInput, typ)
	}
	if len(payload) == 0 {
		payload = json.RawMessage("{}")
	}
	if !json.Valid(payload) {
		return nil, fmt.Errorf("%w: payload is not valid JSON", ErrInvalidInput)
	}
	now := s.now()
	if err := withStoreRetry(ctx, func() error { return s.devices.Touch(ctx, deviceID, now) }); err != nil {
		return nil, fmt.Errorf("touch device: %w", err)
	}
	cmd := &models.Command{
		DeviceID:  deviceID,
		Type:      typ,
		Payload:   string(payload),
		Status:    models.CommandPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := withStoreRetry(ctx, func() error {
		cmd.ID = 0
		return s.commands.Create(ctx, cmd)
	}); err != nil {
		return nil, fmt.Errorf("create command: %w", err)
	}
	metrics.CommandsCreated.WithLabelValues(string(typ)).Inc()
	global.Logger.Info().Str("device", deviceID).Uint("command", cmd.ID).Str("type", string(typ)).Msg("command created")
	return cmd, nil
}

// Pull claims up to max of the device's oldest pending commands. Concurrent
// pulls never return the same command; no pending work yields an empty slice.
func (s *CommandService) Pull(ctx context.Context, deviceID string, max int) ([]models.Command, error) {
	if deviceID == "" || max < 1 {
		return nil, fmt.Errorf("%w: device id and max >= 1 required", ErrInvalidInput)
	}
	metrics.PullCalls.Inc()
	timer := prometheus.NewTimer(metrics.PullHistogram)
	defer timer.ObserveDuration()

	var claimed []models.Command
	err := withStoreRetry(ctx, func() error {
		var err error
		claimed, err = s.commands.Claim(ctx, deviceID, max, s.now())
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("claim commands: %w", err)
	}
	if err := s.devices.Touch(ctx, deviceID, s.now()); err != nil {
		global.Logger.Warn().Err(err).Str("device", deviceID).Msg("update last seen failed")
	}
	if claimed == nil {
		claimed = []models.Command{}
	}
	if len(claimed) > 0 {
		metrics.CommandsClaimed.Add(float64(len(claimed)))
		global.Logger.Info().Str("device", deviceID).Int("count", len(claimed)).Msg("commands claimed")
	}
	return claimed, nil
}

// ReportResult moves a command owned by deviceID forward. finishedAt is set
// only for terminal statuses.
func (s *CommandService) ReportResult(ctx context.Context, deviceID string, id uint, status models.CommandStatus, message *string, code *int) (*models.Command, error) {
	if status == models.CommandPending || !status.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}
	var out *models.Command
	err := withStoreRetry(ctx, func() error {
		var err error
		out, err = s.commands.Transition(ctx, deviceID, id, func(cmd *models.Command) error {
			if !cmd.Status.CanMoveTo(status) {
				return fmt.Errorf("%w: %s -> %s", ErrClaimConflict, cmd.Status, status)
			}
			now := s.now()
			cmd.Status = status
			cmd.UpdatedAt = now
			if cmd.StartedAt == nil {
				cmd.StartedAt = &now
			}
			if status.Terminal() {
				cmd.FinishedAt = &now
			}
			if message != nil {
				msg := truncate(*message, maxResultMessage)
				cmd.ResultMessage = &msg
			}
			if code != nil {
				cmd.ResultCode = code
			}
			return nil
		})
		return err
	})
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		metrics.ResultsReported.WithLabelValues(string(status), "not_found").Inc()
		return nil, ErrCommandNotFound
	case errors.Is(err, ErrClaimConflict):
		metrics.ResultsReported.WithLabelValues(string(status), "conflict").Inc()
		return nil, err
	case err != nil:
		return nil, err
	}
	metrics.ResultsReported.WithLabelValues(string(status), "ok").Inc()
	global.Logger.Info().Str("device", deviceID).Uint("command", id).Str("status", string(status)).Msg("command result reported")
	return out, nil
}

func (s *CommandService) List(ctx context.Context, deviceID string, includeFinished bool) ([]models.Command, error) {
	return s.commands.ListByDevice(ctx, deviceID, includeFinished)
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for i := 0; i < utf8.UTFMax-1 && n > 0 && !utf8.RuneStart(s[n]); i++ {
		n--
	}
	return s[:n]
}
