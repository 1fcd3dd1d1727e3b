package repo

import (
	"context"
	"errors"
	"fleetpush/backend/app/models"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrClaimRace means rows selected under lock no longer matched when updated.
// The transaction is rolled back and nothing changes state.
var ErrClaimRace = errors.New("claimed rows changed before update")

type CommandRepository struct {
	db *gorm.DB
}

func NewCommandRepository(db *gorm.DB) *CommandRepository {
	return &CommandRepository{db: db}
}

func (r *CommandRepository) Create(ctx context.Context, cmd *models.Command) error {
	return r.db.WithContext(ctx).Create(cmd).Error
}

// Claim locks up to max of the oldest pending commands of one device and moves
// exactly those rows to running, all inside one transaction.
func (r *CommandRepository) Claim(ctx context.Context, deviceID string, max int, now time.Time) ([]models.Command, error) {
	var claimed []models.Command
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("device_id = ? AND status = ?", deviceID, models.CommandPending).
			Order("created_at ASC").Order("id ASC").
			Limit(max).
			Find(&claimed).Error; err != nil {
			return err
		}
		if len(claimed) == 0 {
			return nil
		}
		ids := make([]uint, 0, len(claimed))
		for _, c := range claimed {
			ids = append(ids, c.ID)
		}
		res := tx.Model(&models.Command{}).
			Where("id IN ? AND status = ?", ids, models.CommandPending).
			Updates(map[string]any{
				"status":     models.CommandRunning,
				"started_at": now,
				"updated_at": now,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected != int64(len(ids)) {
			return ErrClaimRace
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	for i := range claimed {
		claimed[i].Status = models.CommandRunning
		claimed[i].StartedAt = &now
		claimed[i].UpdatedAt = now
	}
	return claimed, nil
}

// Transition locks one command owned by deviceID, lets apply mutate it and
// saves it. A command owned by another device is reported as gorm.ErrRecordNotFound.
func (r *CommandRepository) Transition(ctx context.Context, deviceID string, id uint, apply func(*models.Command) error) (*models.Command, error) {
	var cmd models.Command
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ? AND device_id = ?", id, deviceID).
			First(&cmd).Error; err != nil {
			return err
		}
		if err := apply(&cmd); err != nil {
			return err
		}
		return tx.Save(&cmd).Error
	})
	if err != nil {
		return nil, err
	}
	return &cmd, nil
}

func (r *CommandRepository) FindByID(ctx context.Context, id uint) (*models.Command, error) {
	var cmd models.Command
	if err := r.db.WithContext(ctx).First(&cmd, id).Error; err != nil {
		return nil, err
	}
	return &cmd, nil
}

// ListByDevice returns the command history of a device; without includeFinished only pending/running rows.
func (r *CommandRepository) ListByDevice(ctx context.Context, deviceID string, includeFinished bool) ([]models.Command, error) {
	q := r.db.WithContext(ctx).Where("device_id = ?", deviceID)
	if !includeFinished {
		q = q.Where("status IN ?", []models.CommandStatus{models.CommandPending, models.CommandRunning})
	}
	var cmds []models.Command
	if err := q.Order("created_at ASC").Order("id ASC").Find(&cmds).Error; err != nil {
		return nil, err
	}
	return cmds, nil
}
