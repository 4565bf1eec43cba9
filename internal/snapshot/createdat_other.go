//go:build !linux && !darwin

package snapshot

import (
	"os"
	"time"
)

func createdAt(info os.FileInfo) time.Time {
	return info.ModTime()
}
