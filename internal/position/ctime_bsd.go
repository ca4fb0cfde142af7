//go:build darwin || freebsd || netbsd

package position

import (
	"os"
	"syscall"
	"time"
)

// fileCreated returns the birth time, or the inode change time when the
// filesystem does not record one.
func fileCreated(info os.FileInfo) time.Time {
	st, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return info.ModTime()
	}
	sec, nsec := st.Birthtimespec.Unix()
	if sec <= 0 && nsec <= 0 {
		sec, nsec = st.Ctimespec.Unix()
	}
	return time.Unix(sec, nsec)
}
