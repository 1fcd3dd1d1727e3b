//go:build linux || darwin

package installer

import "golang.org/x/sys/unix"

// CanInstallNatively reports whether the process runs as root and bin is executable.
func CanInstallNatively(bin string) bool {
	if bin == "" || unix.Geteuid() != 0 {
		return false
	}
	return unix.Access(bin, unix.X_OK) == nil
}
