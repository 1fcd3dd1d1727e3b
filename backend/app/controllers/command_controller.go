package controllers

import (
	"fleetpush/backend/app/dto"
	"fleetpush/backend/app/models"
	"fleetpush/backend/app/services"
	"net/http"
	"strconv"
)

const maxPull = 100

type CommandController struct {
	Commands       *services.CommandService
	DefaultPullMax int
}

func NewCommandController(s *services.CommandService, defaultPullMax int) *CommandController {
	return &CommandController{Commands: s, DefaultPullMax: defaultPullMax}
}

// Create handles POST /admin/commands.
func (c *CommandController) Create(w http.ResponseWriter, r *http.Request) {
	var req dto.CreateCommandRequest
	if err := decode(r, &req); err != nil || req.DeviceID == "" || req.Type == "" {
		writeError(w, http.StatusBadRequest, "device_id and type are required")
		return
	}
	cmd, err := c.Commands.Create(r.Context(), req.DeviceID, models.CommandType(req.Type), req.Payload)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, dto.FromCommand(*cmd))
}

// List handles GET /admin/commands?deviceid=...&include_finished=true|false.
func (c *CommandController) List(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("deviceid")
	if id == "" {
		writeError(w, http.StatusBadRequest, "deviceid is required")
		return
	}
	includeFinished := r.URL.Query().Get("include_finished") == "true"
	cmds, err := c.Commands.List(r.Context(), id, includeFinished)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.FromCommands(cmds))
}

// Pull handles POST /devices/{deviceID}/commands/pull.
func (c *CommandController) Pull(w http.ResponseWriter, r *http.Request) {
	var req dto.PullRequest
	if err := decodeOptional(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	n := req.Max
	if n <= 0 {
		n = c.DefaultPullMax
	}
	n = min(max(n, 1), maxPull)
	cmds, err := c.Commands.Pull(r.Context(), r.PathValue("deviceID"), n)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"commands": dto.FromCommands(cmds)})
}

// Result handles POST /devices/{deviceID}/commands/{commandID}/result.
func (c *CommandController) Result(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(r.PathValue("commandID"), 10, 64)
	if err != nil {
		writeError(w, http.StatusNotFound, services.ErrCommandNotFound.Error())
		return
	}
	var req dto.ResultRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	cmd, err := c.Commands.ReportResult(r.Context(), r.PathValue("deviceID"), uint(id), models.CommandStatus(req.Status), req.Message, req.Code)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.FromCommand(*cmd))
}
