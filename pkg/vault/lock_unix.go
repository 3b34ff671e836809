//go:build !windows

package vault

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// acquireLock takes an advisory flock on the lock file, shared for reads
// and exclusive for mutations. The call blocks until the lock is granted.
func acquireLock(path string, exclusive bool) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, FileMode)
	if err != nil {
		return nil, fmt.Errorf("vault: failed to open lock file: %w", err)
	}
	how := unix.LOCK_SH
	if exclusive {
		how = unix.LOCK_EX
	}
	if err := unix.Flock(int(f.Fd()), how); err != nil {
		f.Close()
		return nil, fmt.Errorf("vault: failed to acquire file lock: %w", err)
	}
	return f, nil
}

func releaseLock(f *os.File) {
	if f == nil {
		return
	}
	unix.Flock(int(f.Fd()), unix.LOCK_UN)
	f.Close()
}
