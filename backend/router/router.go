package router

import (
	"fleetpush/backend/app/controllers"
	"fleetpush/backend/app/middleware"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Controllers struct {
	HTTP     *controllers.HTTPController
	Auth     *controllers.AuthController
	Admin    *controllers.AdminController
	Commands *controllers.CommandController
	Updates  *controllers.UpdateController
	Releases *controllers.ReleaseController
	Events   *controllers.AgentLogController
}

func NewRouter(c Controllers, mw *middleware.Auth) http.Handler {
	mux := http.NewServeMux()
	h := func(pattern string, handler http.Handler) { middleware.Handle(mux, pattern, handler) }
	fn := func(f http.HandlerFunc) http.Handler { return f }

	// public
	h("GET /ping", fn(c.HTTP.Ping))
	h("POST /login", fn(c.Auth.Login))
	h("GET /metrics", promhttp.Handler())
	h("GET /artifacts/{name}", fn(c.Releases.Download))
	h("POST /logout", mw.RequireAuth(fn(c.Auth.Logout)))

	// admin-only endpoints
	h("POST /admin/users", mw.RequireAdmin(fn(c.Admin.CreateUser)))
	h("POST /admin/commands", mw.RequireAdmin(fn(c.Commands.Create)))
	h("GET /admin/commands", mw.RequireAdmin(fn(c.Commands.List)))
	h("POST /admin/releases", mw.RequireAdmin(fn(c.Releases.Register)))
	h("POST /admin/devices/{deviceID}/push-updates", mw.RequireAdmin(fn(c.Updates.Push)))
	h("GET /admin/devices/{deviceID}/events", mw.RequireAdmin(fn(c.Events.GetLatest)))

	// device endpoints
	h("POST /devices/{deviceID}/commands/pull", mw.RequireDevice(fn(c.Commands.Pull)))
	h("POST /devices/{deviceID}/commands/{commandID}/result", mw.RequireDevice(fn(c.Commands.Result)))
	h("POST /devices/{deviceID}/updates/check", mw.RequireDevice(fn(c.Updates.Check)))
	h("POST /devices/{deviceID}/updates/catalog", mw.RequireDevice(fn(c.Updates.Catalog)))
	h("POST /devices/{deviceID}/events", mw.RequireDevice(fn(c.Events.Post)))

	return middleware.Logging(mux)
}
