//go:build unix

package health

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// DiskUsage is the capacity of the filesystem holding a path.
type DiskUsage struct {
	TotalBytes uint64
	FreeBytes  uint64
}

// Disk reports the capacity of the filesystem that holds path.
func Disk(path string) (DiskUsage, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return DiskUsage{}, fmt.Errorf("statfs %s: %w", path, err)
	}
	bsize := uint64(st.Bsize) //nolint:gosec // block size is never negative
	return DiskUsage{
		TotalBytes: st.Blocks * bsize,
		FreeBytes:  st.Bavail * bsize,
	}, nil
}
