//go:build darwin

package storage

import (
	"fmt"

	"golang.org/x/sys/unix"
)

func journalFilesystem(dir string) (string, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(dir, &st); err != nil {
		return "", fmt.Errorf("inspect journal directory %q: %w", dir, err)
	}
	return unix.ByteSliceToString(st.Fstypename[:]), nil
}
