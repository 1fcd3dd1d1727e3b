package download

import (
	"bytes"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// ExecSigner resolves a fingerprint by running Cmd with the artifact path
// appended. The first non-empty stdout line is the fingerprint.
type ExecSigner struct {
	Cmd []string
}

func (s ExecSigner) Fingerprint(path string) (string, error) {
	if len(s.Cmd) == 0 {
		return "", errors.New("no signer command configured")
	}
	args := append(append([]string(nil), s.Cmd[1:]...), path)
	var stdout, stderr bytes.Buffer
	cmd := exec.Command(s.Cmd[0], args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("%s: %w: %s", s.Cmd[0], err, strings.TrimSpace(stderr.String()))
	}
	for _, line := range strings.Split(stdout.String(), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			return line, nil
		}
	}
	return "", fmt.Errorf("%s printed no fingerprint", s.Cmd[0])
}
