package initialize

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"fleetpush/backend/app/db"
	"fleetpush/backend/app/dto"
	"fleetpush/backend/app/session"
	"fleetpush/backend/app/storage"
	"fleetpush/backend/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testServer struct {
	t       *testing.T
	srv     *httptest.Server
	objects *storage.FSStore
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	dir := t.TempDir()
	gdb, err := db.OpenSQLite(filepath.Join(dir, "backend.db"))
	require.NoError(t, err)
	objects, err := storage.NewFSStore(filepath.Join(dir, "artifacts"))
	require.NoError(t, err)

	var cfg config.Config
	cfg.JWT.Secret = "test"
	cfg.JWT.Issuer = "fleetpush"
	cfg.JWT.ExpMin = 5
	cfg.Pull.Max = 10
	cfg.Admin.Username = "admin"
	cfg.Admin.Password = "secret"

	srv := httptest.NewUnstartedServer(nil)
	cfg.PublicURL = "http://" + srv.Listener.Addr().String()
	app, err := Wire(cfg, gdb, session.NewMemoryStore(), objects)
	require.NoError(t, err)
	srv.Config.Handler = app.Router
	srv.Start()
	t.Cleanup(srv.Close)
	return &testServer{t: t, srv: srv, objects: objects}
}

func (s *testServer) do(method, path, token string, body any) (int, []byte) {
	s.t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(s.t, err)
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, s.srv.URL+path, rd)
	require.NoError(s.t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := s.srv.Client().Do(req)
	require.NoError(s.t, err)
	defer resp.Body.Close()
	out, err := io.ReadAll(resp.Body)
	require.NoError(s.t, err)
	return resp.StatusCode, out
}

func (s *testServer) login(user, pass string) string {
	code, body := s.do(http.MethodPost, "/login", "", dto.LoginRequest{Username: user, Password: pass})
	require.Equal(s.t, http.StatusOK, code, string(body))
	var tok dto.TokenResponse
	require.NoError(s.t, json.Unmarshal(body, &tok))
	return tok.AccessToken
}

func TestCommandFlowOverHTTP(t *testing.T) {
	s := newTestServer(t)
	admin := s.login("admin", "secret")

	code, _ := s.do(http.MethodPost, "/admin/users", admin, dto.CreateUserRequest{Username: "dev-1", Password: "pw", Role: "device", DeviceID: "dev-1"})
	require.Equal(t, http.StatusCreated, code)
	device := s.login("dev-1", "pw")

	code, _ = s.do(http.MethodPost, "/admin/commands", device, dto.CreateCommandRequest{DeviceID: "dev-1", Type: "reboot"})
	assert.Equal(t, http.StatusForbidden, code)

	code, body := s.do(http.MethodPost, "/admin/commands", admin, dto.CreateCommandRequest{DeviceID: "dev-1", Type: "reboot"})
	require.Equal(t, http.StatusCreated, code, string(body))
	var created dto.Command
	require.NoError(t, json.Unmarshal(body, &created))
	assert.Equal(t, "pending", created.Status)

	code, _ = s.do(http.MethodPost, "/devices/dev-2/commands/pull", device, dto.PullRequest{Max: 5})
	assert.Equal(t, http.StatusForbidden, code)

	code, body = s.do(http.MethodPost, "/devices/dev-1/commands/pull", device, dto.PullRequest{Max: 5})
	require.Equal(t, http.StatusOK, code)
	var pulled struct {
		Commands []dto.Command `json:"commands"`
	}
	require.NoError(t, json.Unmarshal(body, &pulled))
	require.Len(t, pulled.Commands, 1)
	assert.Equal(t, "running", pulled.Commands[0].Status)

	code, body = s.do(http.MethodPost, "/devices/dev-1/commands/pull", device, nil)
	require.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"commands":[]}`, string(body))

	resultPath := fmt.Sprintf("/devices/dev-1/commands/%d/result", created.ID)
	code, _ = s.do(http.MethodPost, resultPath, device, dto.ResultRequest{Status: "success"})
	assert.Equal(t, http.StatusOK, code)
	code, _ = s.do(http.MethodPost, resultPath, device, dto.ResultRequest{Status: "failed"})
	assert.Equal(t, http.StatusConflict, code)
	code, _ = s.do(http.MethodPost, "/devices/dev-1/commands/424242/result", device, dto.ResultRequest{Status: "failed"})
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = s.do(http.MethodPost, "/logout", device, nil)
	assert.Equal(t, http.StatusNoContent, code)
	code, _ = s.do(http.MethodPost, "/devices/dev-1/commands/pull", device, nil)
	assert.Equal(t, http.StatusUnauthorized, code)
}

func TestReleaseAndArtifactOverHTTP(t *testing.T) {
	s := newTestServer(t)
	admin := s.login("admin", "secret")
	name := "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824.apk"
	_, err := s.objects.Put(context.Background(), name, strings.NewReader("hello"))
	require.NoError(t, err)

	rel := dto.RegisterReleaseRequest{PackageName: "com.app.a", VersionCode: 7, SHA256: strings.TrimSuffix(name, ".apk"), FileSize: 5, ObjectName: name, AutoUpdate: true}
	code, body := s.do(http.MethodPost, "/admin/releases", admin, rel)
	require.Equal(t, http.StatusCreated, code, string(body))
	code, _ = s.do(http.MethodPost, "/admin/releases", admin, rel)
	assert.Equal(t, http.StatusConflict, code)

	code, body = s.do(http.MethodPost, "/devices/dev-9/updates/check", admin, dto.UpdateCheckRequest{Installed: []dto.InstalledPackage{{PackageName: "com.app.a", VersionCode: 5}}})
	require.Equal(t, http.StatusOK, code)
	var check dto.UpdateCheckResponse
	require.NoError(t, json.Unmarshal(body, &check))
	require.Len(t, check.Updates, 1)
	assert.Equal(t, int64(7), check.Updates[0].TargetVersionCode)
	assert.Equal(t, s.srv.URL+"/artifacts/"+name, check.Updates[0].DownloadURL)

	req, err := http.NewRequest(http.MethodGet, check.Updates[0].DownloadURL, nil)
	require.NoError(t, err)
	req.Header.Set("Range", "bytes=2-")
	resp, err := s.srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	part, _ := io.ReadAll(resp.Body)
	assert.Equal(t, http.StatusPartialContent, resp.StatusCode)
	assert.Equal(t, "llo", string(part))
	assert.Equal(t, `"`+name+`"`, resp.Header.Get("ETag"))

	code, _ = s.do(http.MethodGet, "/artifacts/nope.apk", "", nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestDeviceEventsAndMetrics(t *testing.T) {
	s := newTestServer(t)
	admin := s.login("admin", "secret")
	code, _ := s.do(http.MethodPost, "/admin/users", admin, dto.CreateUserRequest{Username: "dev-1", Password: "pw", Role: "device", DeviceID: "dev-1"})
	require.Equal(t, http.StatusCreated, code)
	device := s.login("dev-1", "pw")

	code, _ = s.do(http.MethodPost, "/devices/dev-1/events", device, dto.DeviceEvent{})
	assert.Equal(t, http.StatusBadRequest, code)
	for _, ev := range []string{"download-started", "install-success"} {
		code, _ = s.do(http.MethodPost, "/devices/dev-1/events", device, dto.DeviceEvent{Event: ev, PackageName: "com.app.a"})
		require.Equal(t, http.StatusCreated, code)
	}

	code, _ = s.do(http.MethodGet, "/admin/devices/dev-1/events", device, nil)
	assert.Equal(t, http.StatusForbidden, code)
	code, body := s.do(http.MethodGet, "/admin/devices/dev-1/events?limit=1", admin, nil)
	require.Equal(t, http.StatusOK, code)
	var events []dto.DeviceEventRecord
	require.NoError(t, json.Unmarshal(body, &events))
	require.Len(t, events, 1)
	assert.Equal(t, "install-success", events[0].Event)

	code, _ = s.do(http.MethodPost, "/devices/dev-1/commands/pull", device, nil)
	require.Equal(t, http.StatusOK, code)
	code, body = s.do(http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(body), "fleetpush_commands_pull_total")
}

func TestMalformedBodiesAreRejected(t *testing.T) {
	s := newTestServer(t)
	admin := s.login("admin", "secret")
	post := func(path, token, body string) int {
		req, err := http.NewRequest(http.MethodPost, s.srv.URL+path, strings.NewReader(body))
		require.NoError(t, err)
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		resp, err := s.srv.Client().Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		return resp.StatusCode
	}

	assert.Equal(t, http.StatusBadRequest, post("/login", "", `{"username":`))
	assert.Equal(t, http.StatusBadRequest, post("/admin/users", admin, `not json`))
	assert.Equal(t, http.StatusBadRequest, post("/devices/dev-1/commands/pull", admin, `{"max":"five"}`))
	assert.Equal(t, http.StatusOK, post("/devices/dev-1/commands/pull", admin, ``))
}
