package controllers

import (
	"errors"
	"fleetpush/backend/app/dto"
	"fleetpush/backend/app/services"
	"net/http"
)

type AdminController struct{ Users *services.UserService }

func NewAdminController(users *services.UserService) *AdminController {
	return &AdminController{Users: users}
}

func (c *AdminController) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req dto.CreateUserRequest
	if err := decodeOptional(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	err := c.Users.CreateUser(r.Context(), req.Username, req.Password, req.Role, req.DeviceID)
	switch {
	case errors.Is(err, services.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, "username, password and a valid role are required")
	case err != nil:
		writeError(w, http.StatusConflict, "user already exists")
	default:
		w.WriteHeader(http.StatusCreated)
	}
}
