//go:build unix

package stream

import "golang.org/x/sys/unix"

func platformFreeSpaceMB(path string) (float64, bool) {
	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return 0, false
	}
	freeBytes := stat.Bavail * uint64(stat.Bsize)
	return float64(freeBytes) / (1024 * 1024), true
}
