//go:build darwin

package snapshot

import (
	"os"
	"syscall"
	"time"
)

// createdAt returns the file birth time, which macOS does track.
func createdAt(info os.FileInfo) time.Time {
	if st, ok := info.Sys().(*syscall.Stat_t); ok {
		return time.Unix(st.Birthtimespec.Sec, st.Birthtimespec.Nsec)
	}
	return info.ModTime()
}
