//go:build linux || darwin

package download

import (
	"fmt"

	"golang.org/x/sys/unix"
)

func ensureSpace(dir string, need int64) error {
	var st unix.Statfs_t
	if err := unix.Statfs(dir, &st); err != nil {
		return fmt.Errorf("statfs %s: %w", dir, err)
	}
	free := int64(st.Bavail) * int64(st.Bsize)
	if free < need {
		return fmt.Errorf("need %d bytes in %s, %d available", need, dir, free)
	}
	return nil
}
