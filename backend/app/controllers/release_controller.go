package controllers

import (
	"fleetpush/backend/app/dto"
	"fleetpush/backend/app/services"
	"fleetpush/backend/app/storage"
	"fleetpush/backend/global"
	"fmt"
	"net/http"
)

type ReleaseController struct {
	Releases *services.ReleaseService
	Objects  storage.ObjectStore
}

func NewReleaseController(s *services.ReleaseService, objects storage.ObjectStore) *ReleaseController {
	return &ReleaseController{Releases: s, Objects: objects}
}

// Register handles POST /admin/releases.
func (c *ReleaseController) Register(w http.ResponseWriter, r *http.Request) {
	var req dto.RegisterReleaseRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	rel, err := c.Releases.Register(r.Context(), req.Model())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	global.Logger.Info().Str("package", rel.PackageName).Int64("version", rel.VersionCode).Bool("auto", rel.AutoUpdate).Msg("release registered")
	writeJSON(w, http.StatusCreated, rel)
}

// Download handles GET /artifacts/{name}. The object name is content addressed,
// so it doubles as a strong ETag.
func (c *ReleaseController) Download(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	obj, info, err := c.Objects.Open(r.Context(), name)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	defer obj.Close()
	w.Header().Set("ETag", fmt.Sprintf("%q", name))
	w.Header().Set("Content-Type", "application/octet-stream")
	http.ServeContent(w, r, name, info.ModTime, obj)
}
