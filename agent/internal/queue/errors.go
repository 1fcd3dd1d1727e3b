package queue

import (
	"encoding/json"
	"errors"

	"fleetpush/agent/internal/download"
	"fleetpush/agent/internal/installer"
)

// Error classes recorded on failed items and in the structured log.
const (
	CodeTransport   = "transport"
	CodeIntegrity   = "integrity"
	CodeInstaller   = "installer"
	CodeInterrupted = "interrupted"
	CodeDeclined    = "declined"
	CodeUnknown     = "unknown"
)

var (
	errInterrupted = errors.New("interrupted, retries exhausted")
	errDeclined    = errors.New("declined by user")
)

// ErrorCode classifies an attempt failure.
func ErrorCode(err error) string {
	var (
		te *download.TransportError
		ie *download.IntegrityError
		xe *installer.InstallerError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &te):
		return CodeTransport
	case errors.As(err, &ie):
		return CodeIntegrity
	case errors.As(err, &xe):
		return CodeInstaller
	case errors.Is(err, errInterrupted):
		return CodeInterrupted
	case errors.Is(err, errDeclined):
		return CodeDeclined
	}
	return CodeUnknown
}

// errorMetadata returns the typed fields of err as a JSON object, or "" when
// err carries none.
func errorMetadata(err error) string {
	var (
		te *download.TransportError
		ie *download.IntegrityError
		xe *installer.InstallerError
		md map[string]any
	)
	switch {
	case errors.As(err, &te):
		md = map[string]any{"op": te.Op}
	case errors.As(err, &ie):
		md = map[string]any{"check": ie.Check, "expected": ie.Expected, "actual": ie.Actual}
	case errors.As(err, &xe):
		md = map[string]any{"exitCode": xe.Code, "output": xe.Output}
	default:
		return ""
	}
	b, jerr := json.Marshal(md)
	if jerr != nil {
		return ""
	}
	return string(b)
}
