//go:build windows

package position

import (
	"os"
	"syscall"
	"time"
)

// fileCreated returns the file creation time.
func fileCreated(info os.FileInfo) time.Time {
	attrs, ok := info.Sys().(*syscall.Win32FileAttributeData)
	if !ok {
		return info.ModTime()
	}
	return time.Unix(0, attrs.CreationTime.Nanoseconds())
}
