//go:build linux

package position

import (
	"os"
	"syscall"
	"time"
)

// fileCreated returns the inode change time, which is what "creation time"
// means for capture files on Linux.
func fileCreated(info os.FileInfo) time.Time {
	st, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return info.ModTime()
	}
	sec, nsec := st.Ctim.Unix()
	return time.Unix(sec, nsec)
}
