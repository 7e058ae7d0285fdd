package stream

import "os"

// freeSpaceMB reports free space at path in megabytes. The second return
// value is false when the OS does not expose free-space statistics (spec
// §6), in which case the writer must assume sufficient space.
var freeSpaceMB = platformFreeSpaceMB

func statPathExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
