//go:build !linux && !darwin && !freebsd && !netbsd && !windows

package position

import (
	"os"
	"time"
)

// fileCreated falls back to the modification time where no change time is exposed.
func fileCreated(info os.FileInfo) time.Time {
	return info.ModTime()
}
