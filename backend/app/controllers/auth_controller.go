package controllers

import (
	"fleetpush/backend/app/dto"
	jwtutil "fleetpush/backend/app/jwt"
	"fleetpush/backend/app/middleware"
	"fleetpush/backend/app/models"
	"fleetpush/backend/app/services"
	"fleetpush/backend/app/session"
	"fleetpush/backend/global"
	"net/http"
)

type AuthController struct {
	Users    *services.UserService
	Signer   *jwtutil.Signer
	Sessions session.Store
}

func NewAuthController(users *services.UserService, signer *jwtutil.Signer, sessions session.Store) *AuthController {
	return &AuthController{Users: users, Signer: signer, Sessions: sessions}
}

func (c *AuthController) Login(w http.ResponseWriter, r *http.Request) {
	var req dto.LoginRequest
	if err := decodeOptional(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Username == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "missing credentials")
		return
	}
	u, err := c.Users.ValidateCredentials(r.Context(), req.Username, req.Password)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	if u.Role == models.RoleDevice && req.DeviceID != "" && req.DeviceID != u.DeviceID {
		writeError(w, http.StatusForbidden, "account is bound to another device")
		return
	}
	token, claims, err := c.Signer.Sign(u.ID, u.Username, u.Role, u.DeviceID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "token error")
		return
	}
	sess := session.Session{
		ID:        claims.SessionID(),
		UserID:    u.ID,
		Username:  u.Username,
		Role:      u.Role,
		DeviceID:  u.DeviceID,
		ExpiresAt: claims.ExpiresAt.Time,
	}
	if err := c.Sessions.Init(r.Context(), sess); err != nil {
		global.Logger.Error().Err(err).Str("user", u.Username).Msg("create session failed")
		writeError(w, http.StatusInternalServerError, "session error")
		return
	}
	global.Logger.Info().Str("user", u.Username).Str("role", u.Role).Msg("login")
	writeJSON(w, http.StatusOK, dto.TokenResponse{AccessToken: token, ExpiresAt: sess.ExpiresAt.Unix(), DeviceID: u.DeviceID})
}

func (c *AuthController) Logout(w http.ResponseWriter, r *http.Request) {
	claims := middleware.GetClaims(r.Context())
	if err := c.Sessions.Invalidate(r.Context(), claims.SessionID()); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
