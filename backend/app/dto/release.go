package dto

import "fleetpush/backend/app/models"

type RegisterReleaseRequest struct {
	AppID       string `json:"appId"`
	PackageName string `json:"packageName"`
	VersionCode int64  `json:"versionCode"`
	DisplayName string `json:"displayName"`
	SHA256      string `json:"sha256"`
	FileSize    int64  `json:"fileSize"`
	ObjectName  string `json:"objectName"`
	AutoUpdate  bool   `json:"autoUpdate"`
	Changelog   string `json:"changelog"`

	SignerFingerprint string `json:"signerFingerprint"`
}

func (r RegisterReleaseRequest) Model() models.Release {
	return models.Release{
		AppID:       r.AppID,
		PackageName: r.PackageName,
		VersionCode: r.VersionCode,
		DisplayName: r.DisplayName,
		SHA256:      r.SHA256,
		FileSize:    r.FileSize,
		ObjectName:  r.ObjectName,
		AutoUpdate:  r.AutoUpdate,
		Changelog:   r.Changelog,

		SignerFingerprint: r.SignerFingerprint,
	}
}
