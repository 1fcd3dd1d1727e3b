package download

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"strconv"
	"strings"
)

// Expect describes the artifact a download must produce.
type Expect struct {
	Size   int64
	SHA256 string
	// SignerFingerprint, when set, must match what the SignerResolver reports.
	SignerFingerprint string
}

// Artifact is a verified file.
type Artifact struct {
	Path   string `json:"path"`
	Size   int64  `json:"size"`
	SHA256 string `json:"sha256"`
}

// SignerResolver extracts the signing certificate fingerprint of a package file.
type SignerResolver interface {
	Fingerprint(path string) (string, error)
}

// Verify checks size, then SHA-256, then signer. Nothing is waived: an
// expected signer that cannot be resolved fails like a mismatch.
func Verify(path string, exp Expect, signer SignerResolver) (Artifact, error) {
	f, err := os.Open(path)
	if err != nil {
		return Artifact{}, &TransportError{Op: "open artifact", Err: err}
	}
	defer f.Close()
	fi, err := f.Stat()
	if err != nil {
		return Artifact{}, &TransportError{Op: "stat artifact", Err: err}
	}
	if exp.Size > 0 && fi.Size() != exp.Size {
		return Artifact{}, &IntegrityError{Check: "size", Expected: strconv.FormatInt(exp.Size, 10), Actual: strconv.FormatInt(fi.Size(), 10)}
	}
	h := sha256.New()
	n, err := io.Copy(h, f)
	if err != nil {
		return Artifact{}, &TransportError{Op: "hash artifact", Err: err}
	}
	sum := hex.EncodeToString(h.Sum(nil))
	if !strings.EqualFold(sum, strings.TrimSpace(exp.SHA256)) {
		return Artifact{}, &IntegrityError{Check: "sha256", Expected: strings.ToLower(exp.SHA256), Actual: sum}
	}
	if want := strings.TrimSpace(exp.SignerFingerprint); want != "" {
		got := "unavailable"
		if signer != nil {
			if fp, err := signer.Fingerprint(path); err == nil {
				got = fp
			}
		}
		if !strings.EqualFold(normalizeFingerprint(got), normalizeFingerprint(want)) {
			return Artifact{}, &IntegrityError{Check: "signer", Expected: want, Actual: got}
		}
	}
	return Artifact{Path: path, Size: n, SHA256: sum}, nil
}

func normalizeFingerprint(s string) string {
	return strings.ReplaceAll(strings.TrimSpace(s), ":", "")
}
