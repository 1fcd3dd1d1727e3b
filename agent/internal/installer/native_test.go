//go:build linux || darwin

package installer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"fleetpush/agent/internal/download"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fakeInstaller(t *testing.T, exit int) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "install.sh")
	script := fmt.Sprintf("#!/bin/sh\necho installing \"$2\" \"$3\"\nexit %d\n", exit)
	require.NoError(t, os.WriteFile(p, []byte(script), 0o755))
	return p
}

func TestNativeExitCodes(t *testing.T) {
	url, exp := serveArtifact(t, []byte("native body"))
	job := Job{PackageName: "com.app.a", VersionCode: 3, URL: url, Expect: exp}

	cases := []struct {
		exit    int
		outcome Outcome
		wantErr bool
	}{
		{0, Installed, false},
		{ExitNeedsUser, PendingUserAction, false},
		{3, 0, true},
	}
	for _, tc := range cases {
		t.Run(fmt.Sprintf("exit-%d", tc.exit), func(t *testing.T) {
			f, err := download.NewFetcher(t.TempDir(), download.Options{})
			require.NoError(t, err)
			n := &Native{Fetcher: f, Bin: fakeInstaller(t, tc.exit)}
			res, err := n.Execute(context.Background(), job, Hooks{})
			if tc.wantErr {
				var ie *InstallerError
				require.ErrorAs(t, err, &ie)
				assert.Equal(t, tc.exit, ie.Code)
				assert.Contains(t, ie.Output, "installing com.app.a 3")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.outcome, res.Outcome)
		})
	}
}

func TestCanInstallNativelyNeedsExecutable(t *testing.T) {
	assert.False(t, CanInstallNatively(""))
	assert.False(t, CanInstallNatively(filepath.Join(t.TempDir(), "missing")))
}
