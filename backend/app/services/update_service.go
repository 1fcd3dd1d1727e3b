package services

import (
	"context"
	"encoding/json"
	"fleetpush/backend/app/metrics"
	"fleetpush/backend/app/models"
	"fleetpush/backend/app/repo"
	"fmt"
	"sort"
	"time"
)

// NotInstalled is the version code assumed for packages missing from a report.
const NotInstalled int64 = -1

type Flavor int

const (
	// FlavorSilent only offers releases flagged for unattended auto update.
	FlavorSilent Flavor = iota
	// FlavorCatalog offers every newer release, for user-browsable stores.
	FlavorCatalog
)

func (f Flavor) String() string {
	if f == FlavorCatalog {
		return "catalog"
	}
	return "silent"
}

type Candidate struct {
	PackageName          string `json:"packageName"`
	AppID                string `json:"appId,omitempty"`
	DisplayName          string `json:"displayName,omitempty"`
	InstalledVersionCode int64  `json:"installedVersionCode"`
	TargetVersionCode    int64  `json:"targetVersionCode"`
	DownloadURL          string `json:"downloadUrl"`
	SHA256               string `json:"sha256"`
	FileSize             int64  `json:"fileSize"`
	AutoUpdate           bool   `json:"autoUpdate"`
	Changelog            string `json:"changelog,omitempty"`
	SignerFingerprint    string `json:"signerFingerprint,omitempty"`
}

// Evaluate returns, sorted by package name, every latest release whose version
// code is above the installed one.
func Evaluate(installed map[string]int64, latest map[string]models.Release, flavor Flavor, urlFor func(models.Release) string) []Candidate {
	out := make([]Candidate, 0)
	for pkg, rel := range latest {
		current, ok := installed[pkg]
		if !ok {
			current = NotInstalled
		}
		if rel.VersionCode <= current {
			continue
		}
		if flavor == FlavorSilent && !rel.AutoUpdate {
			continue
		}
		out = append(out, Candidate{
			PackageName:          pkg,
			AppID:                rel.AppID,
			DisplayName:          rel.DisplayName,
			InstalledVersionCode: current,
			TargetVersionCode:    rel.VersionCode,
			DownloadURL:          urlFor(rel),
			SHA256:               rel.SHA256,
			FileSize:             rel.FileSize,
			AutoUpdate:           rel.AutoUpdate,
			Changelog:            rel.Changelog,
			SignerFingerprint:    rel.SignerFingerprint,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PackageName < out[j].PackageName })
	return out
}

type UpdateService struct {
	devices  *repo.DeviceRepository
	releases *repo.ReleaseRepository
	commands *CommandService
	baseURL  string
	now      func() time.Time
}

func NewUpdateService(devices *repo.DeviceRepository, releases *repo.ReleaseRepository, commands *CommandService, baseURL string) *UpdateService {
	return &UpdateService{devices: devices, releases: releases, commands: commands, baseURL: baseURL, now: func() time.Time { return time.Now().UTC() }}
}

func (s *UpdateService) DownloadURL(rel models.Release) string {
	return s.baseURL + "/artifacts/" + rel.ObjectName
}

// Check replaces the device snapshot with installed and evaluates it.
func (s *UpdateService) Check(ctx context.Context, deviceID string, installed map[string]int64, flavor Flavor) ([]Candidate, error) {
	if deviceID == "" {
		return nil, fmt.Errorf("%w: missing device id", ErrInvalidInput)
	}
	if err := withStoreRetry(ctx, func() error {
		return s.devices.ReplaceInstalled(ctx, deviceID, installed, s.now())
	}); err != nil {
		return nil, fmt.Errorf("store installed snapshot: %w", err)
	}
	latest, err := s.releases.Latest(ctx)
	if err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}
	cands := Evaluate(installed, latest, flavor, s.DownloadURL)
	metrics.UpdateChecks.WithLabelValues(flavor.String()).Inc()
	metrics.UpdateCandidates.Observe(float64(len(cands)))
	return cands, nil
}

// PushSilent evaluates the stored snapshot of a device and creates one command
// per silent candidate: install when absent, update otherwise.
func (s *UpdateService) PushSilent(ctx context.Context, deviceID string) ([]models.Command, error) {
	installed, err := s.devices.Installed(ctx, deviceID)
	if err != nil {
		return nil, fmt.Errorf("load installed snapshot: %w", err)
	}
	latest, err := s.releases.Latest(ctx)
	if err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}
	cands := Evaluate(installed, latest, FlavorSilent, s.DownloadURL)
	out := make([]models.Command, 0, len(cands))
	for _, c := range cands {
		payload, err := json.Marshal(c)
		if err != nil {
			return out, err
		}
		typ := models.CommandUpdate
		if c.InstalledVersionCode == NotInstalled {
			typ = models.CommandInstall
		}
		cmd, err := s.commands.Create(ctx, deviceID, typ, payload)
		if err != nil {
			return out, err
		}
		out = append(out, *cmd)
	}
	return out, nil
}
