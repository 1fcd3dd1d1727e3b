package dto

import "fleetpush/backend/app/services"

type InstalledPackage struct {
	PackageName string `json:"packageName"`
	VersionCode int64  `json:"versionCode"`
}

type UpdateCheckRequest struct {
	Installed []InstalledPackage `json:"installed"`
}

func (r UpdateCheckRequest) Snapshot() map[string]int64 {
	out := make(map[string]int64, len(r.Installed))
	for _, p := range r.Installed {
		if p.PackageName == "" {
			continue
		}
		out[p.PackageName] = p.VersionCode
	}
	return out
}

type UpdateCheckResponse struct {
	Updates []services.Candidate `json:"updates"`
}

type PushUpdatesResponse struct {
	Commands []Command `json:"commands"`
}
