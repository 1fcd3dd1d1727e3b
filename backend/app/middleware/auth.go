package middleware

import (
	jwtutil "fleetpush/backend/app/jwt"
	"fleetpush/backend/app/models"
	"fleetpush/backend/app/session"
	"fleetpush/backend/global"
	"net/http"
	"strings"
)

type ctxKey int

const ClaimsKey ctxKey = 1

type Auth struct {
	Signer   *jwtutil.Signer
	Sessions session.Store
}

func (a *Auth) authenticate(r *http.Request) (*jwtutil.Claims, bool) {
	authz := r.Header.Get("Authorization")
	if !strings.HasPrefix(authz, "Bearer ") {
		return nil, false
	}
	claims, err := a.Signer.Parse(strings.TrimPrefix(authz, "Bearer "))
	if err != nil {
		return nil, false
	}
	if _, err := a.Sessions.Lookup(r.Context(), claims.SessionID()); err != nil {
		global.Logger.Debug().Err(err).Str("user", claims.Username).Msg("session rejected")
		return nil, false
	}
	return claims, true
}

func (a *Auth) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := a.authenticate(r)
		if !ok {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		ctx := WithClaims(r.Context(), claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (a *Auth) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := a.authenticate(r)
		if !ok {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if claims.Role != models.RoleAdmin {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		ctx := WithClaims(r.Context(), claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireDevice lets through admins and the device account whose DeviceID
// matches the {deviceID} path value.
func (a *Auth) RequireDevice(next http.Handler) http.Handler {
	return a.RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims := GetClaims(r.Context())
		if claims.Role != models.RoleAdmin && (claims.DeviceID == "" || claims.DeviceID != r.PathValue("deviceID")) {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	}))
}
