package repo

import (
	"context"
	"fleetpush/backend/app/models"

	"gorm.io/gorm"
)

type AgentLogRepository struct{ db *gorm.DB }

func NewAgentLogRepository(db *gorm.DB) *AgentLogRepository { return &AgentLogRepository{db: db} }

func (r *AgentLogRepository) Create(ctx context.Context, l *models.AgentLog) error {
	return r.db.WithContext(ctx).Create(l).Error
}

func (r *AgentLogRepository) LatestByDevice(ctx context.Context, deviceID string, limit int) ([]models.AgentLog, error) {
	if limit <= 0 {
		limit = 1
	}
	var logs []models.AgentLog
	err := r.db.WithContext(ctx).Where("device_id = ?", deviceID).Order("id DESC").Limit(limit).Find(&logs).Error
	return logs, err
}
