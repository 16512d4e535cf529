//go:build unix

package registry

import (
	"os"
	"sync"

	"github.com/marmos91/omnifs/internal/logger"
	"golang.org/x/sys/unix"
)

// DetectOwner returns the uid/gid new files are created with, read from the
// owner of a scratch temp file. It falls back to the process ids. The result
// is computed once per process.
var DetectOwner = sync.OnceValues(detectOwner)

func detectOwner() (uint32, uint32) {
	f, err := os.CreateTemp("", "omnifs-owner-*")
	if err != nil {
		logger.Debug("owner detection: temp file failed, using process ids: %v", err)
		return uint32(unix.Getuid()), uint32(unix.Getgid())
	}
	name := f.Name()
	defer func() { _ = os.Remove(name) }()
	_ = f.Close()

	var st unix.Stat_t
	if err := unix.Stat(name, &st); err != nil {
		logger.Debug("owner detection: stat failed, using process ids: %v", err)
		return uint32(unix.Getuid()), uint32(unix.Getgid())
	}
	return st.Uid, st.Gid
}
