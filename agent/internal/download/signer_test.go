//go:build linux || darwin

package download

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecSignerReadsFirstLine(t *testing.T) {
	dir := t.TempDir()
	script := filepath.Join(dir, "fp.sh")
	require.NoError(t, os.WriteFile(script, []byte("#!/bin/sh\necho\necho AB:CD:EF\n"), 0o755))

	fp, err := ExecSigner{Cmd: []string{script}}.Fingerprint("/tmp/pkg")
	require.NoError(t, err)
	assert.Equal(t, "AB:CD:EF", fp)
}

func TestVerifyUsesExecSigner(t *testing.T) {
	dir := t.TempDir()
	script := filepath.Join(dir, "fp.sh")
	require.NoError(t, os.WriteFile(script, []byte("#!/bin/sh\necho abcdef\n"), 0o755))
	art := filepath.Join(dir, "pkg")
	require.NoError(t, os.WriteFile(art, []byte("hello"), 0o644))

	exp := Expect{Size: 5, SHA256: "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824", SignerFingerprint: "AB:CD:EF"}
	_, err := Verify(art, exp, ExecSigner{Cmd: []string{script}})
	require.NoError(t, err)

	exp.SignerFingerprint = "00:11"
	_, err = Verify(art, exp, ExecSigner{Cmd: []string{script}})
	var ie *IntegrityError
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, "signer", ie.Check)

	_, err = Verify(art, exp, ExecSigner{Cmd: []string{"/nonexistent/signer"}})
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, "unavailable", ie.Actual)
}
