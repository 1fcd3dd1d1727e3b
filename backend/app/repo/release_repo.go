package repo

import (
	"context"
	"fleetpush/backend/app/models"

	"gorm.io/gorm"
)

type ReleaseRepository struct{ db *gorm.DB }

func NewReleaseRepository(db *gorm.DB) *ReleaseRepository { return &ReleaseRepository{db: db} }

func (r *ReleaseRepository) Create(ctx context.Context, rel *models.Release) error {
	return r.db.WithContext(ctx).Create(rel).Error
}

func (r *ReleaseRepository) CountByVersion(ctx context.Context, pkg string, versionCode int64) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&models.Release{}).
		Where("package_name = ? AND version_code = ?", pkg, versionCode).
		Count(&n).Error
	return n, err
}

// Latest returns the newest release of every package in the catalog.
func (r *ReleaseRepository) Latest(ctx context.Context) (map[string]models.Release, error) {
	var all []models.Release
	if err := r.db.WithContext(ctx).Order("package_name ASC").Find(&all).Error; err != nil {
		return nil, err
	}
	out := make(map[string]models.Release)
	for _, rel := range all {
		if cur, ok := out[rel.PackageName]; !ok || rel.NewerThan(cur) {
			out[rel.PackageName] = rel
		}
	}
	return out, nil
}
