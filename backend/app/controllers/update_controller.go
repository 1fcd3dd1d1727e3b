package controllers

import (
	"fleetpush/backend/app/dto"
	"fleetpush/backend/app/services"
	"net/http"
)

type UpdateController struct{ Updates *services.UpdateService }

func NewUpdateController(s *services.UpdateService) *UpdateController {
	return &UpdateController{Updates: s}
}

// Check handles POST /devices/{deviceID}/updates/check (auto-update releases only).
func (c *UpdateController) Check(w http.ResponseWriter, r *http.Request) {
	c.evaluate(w, r, services.FlavorSilent)
}

// Catalog handles POST /devices/{deviceID}/updates/catalog.
func (c *UpdateController) Catalog(w http.ResponseWriter, r *http.Request) {
	c.evaluate(w, r, services.FlavorCatalog)
}

func (c *UpdateController) evaluate(w http.ResponseWriter, r *http.Request, flavor services.Flavor) {
	var req dto.UpdateCheckRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	cands, err := c.Updates.Check(r.Context(), r.PathValue("deviceID"), req.Snapshot(), flavor)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.UpdateCheckResponse{Updates: cands})
}

// Push handles POST /admin/devices/{deviceID}/push-updates.
func (c *UpdateController) Push(w http.ResponseWriter, r *http.Request) {
	cmds, err := c.Updates.PushSilent(r.Context(), r.PathValue("deviceID"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, dto.PushUpdatesResponse{Commands: dto.FromCommands(cmds)})
}
