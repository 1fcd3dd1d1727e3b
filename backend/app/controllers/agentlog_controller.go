package controllers

import (
	"fleetpush/backend/app/dto"
	"fleetpush/backend/app/services"
	"net/http"
	"strconv"
)

type AgentLogController struct{ Logs *services.AgentLogService }

func NewAgentLogController(s *services.AgentLogService) *AgentLogController {
	return &AgentLogController{Logs: s}
}

// Post handles POST /devices/{deviceID}/events.
func (c *AgentLogController) Post(w http.ResponseWriter, r *http.Request) {
	var ev dto.DeviceEvent
	if err := decode(r, &ev); err != nil || ev.Event == "" {
		writeError(w, http.StatusBadRequest, "event is required")
		return
	}
	if err := c.Logs.Create(r.Context(), r.PathValue("deviceID"), ev.Event, ev.PackageName, ev.Detail); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

// GetLatest handles GET /admin/devices/{deviceID}/events?limit=N.
func (c *AgentLogController) GetLatest(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 {
		limit = 50
	}
	logs, err := c.Logs.Latest(r.Context(), r.PathValue("deviceID"), limit)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	out := make([]dto.DeviceEventRecord, 0, len(logs))
	for _, l := range logs {
		out = append(out, dto.DeviceEventRecord{ID: l.ID, Event: l.Event, PackageName: l.PackageName, Detail: l.Content, CreatedAt: l.CreatedAt.UnixMilli()})
	}
	writeJSON(w, http.StatusOK, out)
}
