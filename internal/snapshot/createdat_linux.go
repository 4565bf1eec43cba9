//go:build linux

package snapshot

import (
	"os"
	"syscall"
	"time"
)

// createdAt approximates file creation time. Unix does not expose birth time
// portably, so the inode change time is used; for freshly written session
// logs the two are effectively the same.
func createdAt(info os.FileInfo) time.Time {
	if st, ok := info.Sys().(*syscall.Stat_t); ok {
		return time.Unix(st.Ctim.Sec, st.Ctim.Nsec)
	}
	return info.ModTime()
}
