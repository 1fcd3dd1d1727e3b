package repo

import (
	"context"
	"fleetpush/backend/app/models"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type DeviceRepository struct{ db *gorm.DB }

func NewDeviceRepository(db *gorm.DB) *DeviceRepository { return &DeviceRepository{db: db} }

func (r *DeviceRepository) FindByUUID(ctx context.Context, uuid string) (*models.Device, error) {
	var d models.Device
	if err := r.db.WithContext(ctx).Where("uuid = ?", uuid).First(&d).Error; err != nil {
		return nil, err
	}
	return &d, nil
}

// Touch upserts the device row and its last-seen marker.
func (r *DeviceRepository) Touch(ctx context.Context, uuid string, now time.Time) error {
	return touch(r.db.WithContext(ctx), uuid, now)
}

func touch(tx *gorm.DB, uuid string, now time.Time) error {
	d := models.Device{UUID: uuid, LastSeenAt: &now, CreatedAt: now, UpdatedAt: now}
	return tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "uuid"}},
		DoUpdates: clause.AssignmentColumns([]string{"last_seen_at", "updated_at"}),
	}).Create(&d).Error
}

// ReplaceInstalled swaps the stored package snapshot of a device for pkgs.
func (r *DeviceRepository) ReplaceInstalled(ctx context.Context, uuid string, pkgs map[string]int64, now time.Time) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := touch(tx, uuid, now); err != nil {
			return err
		}
		if err := tx.Where("device_id = ?", uuid).Delete(&models.InstalledPackage{}).Error; err != nil {
			return err
		}
		if len(pkgs) == 0 {
			return nil
		}
		rows := make([]models.InstalledPackage, 0, len(pkgs))
		for name, code := range pkgs {
			rows = append(rows, models.InstalledPackage{DeviceID: uuid, PackageName: name, VersionCode: code, ReportedAt: now})
		}
		return tx.Create(&rows).Error
	})
}

func (r *DeviceRepository) Installed(ctx context.Context, uuid string) (map[string]int64, error) {
	var rows []models.InstalledPackage
	if err := r.db.WithContext(ctx).Where("device_id = ?", uuid).Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(rows))
	for _, p := range rows {
		out[p.PackageName] = p.VersionCode
	}
	return out, nil
}
