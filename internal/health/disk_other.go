//go:build !unix

package health

import "errors"

// DiskUsage is the capacity of the filesystem holding a path.
type DiskUsage struct {
	TotalBytes uint64
	FreeBytes  uint64
}

// Disk is not supported on this platform.
func Disk(string) (DiskUsage, error) {
	return DiskUsage{}, errors.New("disk usage not supported on this platform")
}
