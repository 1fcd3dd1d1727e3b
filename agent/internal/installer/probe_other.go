//go:build !linux && !darwin

package installer

func CanInstallNatively(string) bool { return false }
