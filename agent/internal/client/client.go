package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/codeGROOVE-dev/retry"
)

const (
	maxRetries     = 3
	initialBackoff = 500 * time.Millisecond
	maxBackoff     = 5 * time.Second
)

// StatusError is a non-2xx reply from the backend.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string { return fmt.Sprintf("backend returned %d: %s", e.Code, e.Body) }

// IsNotFound reports a 404, which for command results means the command is
// not owned by this device or no longer exists.
func IsNotFound(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code == http.StatusNotFound
}

func IsUnauthorized(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code == http.StatusUnauthorized
}

func IsConflict(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code == http.StatusConflict
}

// IsRejected reports a 4xx reply that will not change on retry. Auth
// failures and throttling are excluded.
func IsRejected(err error) bool {
	var se *StatusError
	if !errors.As(err, &se) || se.Code < 400 || se.Code > 499 {
		return false
	}
	switch se.Code {
	case http.StatusUnauthorized, http.StatusForbidden, http.StatusRequestTimeout, http.StatusTooManyRequests:
		return false
	}
	return true
}

// Client talks to the backend on behalf of one device.
type Client struct {
	base     string
	deviceID string
	http     *http.Client
	token    func() string
}

func New(base, deviceID string, token func() string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{base: base, deviceID: deviceID, token: token, http: &http.Client{Timeout: timeout}}
}

func (c *Client) DeviceID() string { return c.deviceID }

func (c *Client) devicePath(suffix string) string {
	return "/devices/" + url.PathEscape(c.deviceID) + suffix
}

// do sends one JSON request, retrying network errors and 5xx replies.
// 4xx replies are returned at once.
func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body []byte
	if in != nil {
		var err error
		if body, err = json.Marshal(in); err != nil {
			return err
		}
	}
	return retry.Do(func() error {
		req, err := http.NewRequestWithContext(ctx, method, c.base+path, bytes.NewReader(body))
		if err != nil {
			return retry.Unrecoverable(err)
		}
		req.Header.Set("Content-Type", "application/json")
		if tok := c.token(); tok != "" {
			req.Header.Set("Authorization", "Bearer "+tok)
		}
		resp, err := c.http.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode >= 300 {
			b, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
			se := &StatusError{Code: resp.StatusCode, Body: string(bytes.TrimSpace(b))}
			if resp.StatusCode < 500 {
				return retry.Unrecoverable(se)
			}
			return se
		}
		if out == nil {
			return nil
		}
		return json.NewDecoder(resp.Body).Decode(out)
	},
		retry.Context(ctx),
		retry.Attempts(maxRetries),
		retry.Delay(initialBackoff),
		retry.MaxDelay(maxBackoff),
		retry.LastErrorOnly(true),
	)
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	DeviceID string `json:"device_id,omitempty"`
}

type TokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresAt   int64  `json:"expires_at"`
	DeviceID    string `json:"device_id"`
}

func (c *Client) Login(ctx context.Context, username, password string) (TokenResponse, error) {
	var tr TokenResponse
	err := c.do(ctx, http.MethodPost, "/login", loginRequest{Username: username, Password: password, DeviceID: c.deviceID}, &tr)
	if err == nil && tr.AccessToken == "" {
		err = errors.New("invalid login response")
	}
	return tr, err
}

type Command struct {
	ID      uint            `json:"id"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
	Status  string          `json:"status"`
}

func (c *Client) Pull(ctx context.Context, max int) ([]Command, error) {
	var out struct {
		Commands []Command `json:"commands"`
	}
	err := c.do(ctx, http.MethodPost, c.devicePath("/commands/pull"), map[string]int{"max": max}, &out)
	return out.Commands, err
}

type Result struct {
	Status  string  `json:"status"`
	Message *string `json:"message,omitempty"`
	Code    *int    `json:"code,omitempty"`
}

func (c *Client) ReportResult(ctx context.Context, commandID uint, res Result) error {
	return c.do(ctx, http.MethodPost, c.devicePath(fmt.Sprintf("/commands/%d/result", commandID)), res, nil)
}

// Candidate mirrors one entry of the update-check reply.
type Candidate struct {
	PackageName          string `json:"packageName"`
	AppID                string `json:"appId,omitempty"`
	DisplayName          string `json:"displayName,omitempty"`
	InstalledVersionCode int64  `json:"installedVersionCode"`
	TargetVersionCode    int64  `json:"targetVersionCode"`
	DownloadURL          string `json:"downloadUrl"`
	SHA256               string `json:"sha256"`
	FileSize             int64  `json:"fileSize"`
	AutoUpdate           bool   `json:"autoUpdate"`
	Changelog            string `json:"changelog,omitempty"`
	SignerFingerprint    string `json:"signerFingerprint,omitempty"`
}

type installed struct {
	PackageName string `json:"packageName"`
	VersionCode int64  `json:"versionCode"`
}

// CheckUpdates reports the inventory and returns silent-flavor candidates.
func (c *Client) CheckUpdates(ctx context.Context, inventory map[string]int64) ([]Candidate, error) {
	return c.check(ctx, "/updates/check", inventory)
}

// Catalog reports the inventory and returns every newer release.
func (c *Client) Catalog(ctx context.Context, inventory map[string]int64) ([]Candidate, error) {
	return c.check(ctx, "/updates/catalog", inventory)
}

func (c *Client) check(ctx context.Context, suffix string, inventory map[string]int64) ([]Candidate, error) {
	req := struct {
		Installed []installed `json:"installed"`
	}{Installed: make([]installed, 0, len(inventory))}
	for name, code := range inventory {
		req.Installed = append(req.Installed, installed{PackageName: name, VersionCode: code})
	}
	var out struct {
		Updates []Candidate `json:"updates"`
	}
	err := c.do(ctx, http.MethodPost, c.devicePath(suffix), req, &out)
	return out.Updates, err
}

type Event struct {
	Event       string `json:"event"`
	PackageName string `json:"packageName,omitempty"`
	Detail      string `json:"detail,omitempty"`
}

func (c *Client) PostEvent(ctx context.Context, ev Event) error {
	return c.do(ctx, http.MethodPost, c.devicePath("/events"), ev, nil)
}
