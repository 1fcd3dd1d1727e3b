package services

import (
	"context"
	"encoding/hex"
	"errors"
	"fleetpush/backend/app/models"
	"fleetpush/backend/app/repo"
	"fleetpush/backend/app/storage"
	"fmt"
	"strings"
	"time"
)

var (
	ErrReleaseExists   = errors.New("release already exists")
	ErrArtifactMissing = errors.New("artifact not found in object storage")
)

type ReleaseService struct {
	releases *repo.ReleaseRepository
	objects  storage.ObjectStore
	now      func() time.Time
}

func NewReleaseService(releases *repo.ReleaseRepository, objects storage.ObjectStore) *ReleaseService {
	return &ReleaseService{releases: releases, objects: objects, now: func() time.Time { return time.Now().UTC() }}
}

// Register records release metadata for a binary already in object storage.
// The stored object must match the declared size.
func (s *ReleaseService) Register(ctx context.Context, rel models.Release) (*models.Release, error) {
	rel.SHA256 = strings.ToLower(strings.TrimSpace(rel.SHA256))
	if rel.PackageName == "" || rel.VersionCode < 0 || rel.FileSize <= 0 {
		return nil, fmt.Errorf("%w: package name, version code and file size are required", ErrInvalidInput)
	}
	if b, err := hex.DecodeString(rel.SHA256); err != nil || len(b) != 32 {
		return nil, fmt.Errorf("%w: sha256 must be 64 hex characters", ErrInvalidInput)
	}
	if rel.ObjectName == "" {
		rel.ObjectName = rel.SHA256
	}
	info, err := s.objects.Stat(ctx, rel.ObjectName)
	if errors.Is(err, storage.ErrObjectNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrArtifactMissing, rel.ObjectName)
	}
	if err != nil {
		return nil, err
	}
	if info.Size != rel.FileSize {
		return nil, fmt.Errorf("%w: object is %d bytes, release declares %d", ErrInvalidInput, info.Size, rel.FileSize)
	}
	n, err := s.releases.CountByVersion(ctx, rel.PackageName, rel.VersionCode)
	if err != nil {
		return nil, err
	}
	if n > 0 {
		return nil, ErrReleaseExists
	}
	rel.ID = 0
	rel.UploadedAt = s.now()
	if err := s.releases.Create(ctx, &rel); err != nil {
		return nil, err
	}
	return &rel, nil
}
