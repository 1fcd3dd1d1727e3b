package services

import (
	"context"
	"fleetpush/backend/app/models"
	"fleetpush/backend/app/repo"
)

type AgentLogService struct{ repo *repo.AgentLogRepository }

func NewAgentLogService(r *repo.AgentLogRepository) *AgentLogService {
	return &AgentLogService{repo: r}
}

func (s *AgentLogService) Create(ctx context.Context, deviceID, event, pkg, content string) error {
	l := models.AgentLog{DeviceID: deviceID, Event: event, PackageName: pkg, Content: content}
	return s.repo.Create(ctx, &l)
}

func (s *AgentLogService) Latest(ctx context.Context, deviceID string, limit int) ([]models.AgentLog, error) {
	return s.repo.LatestByDevice(ctx, deviceID, limit)
}
