//go:build windows

package mcp

import (
	"os"
)

// openPolicyFile opens the policy file on Windows. O_NOFOLLOW does not
// exist there; creating symlinks requires elevated privileges, so the
// permission check remains the primary control.
func openPolicyFile(path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_RDONLY, 0)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrPolicyNotFound
		}
		return nil, err
	}
	return f, nil
}

// checkFileOwnership is a no-op on Windows, which tracks ownership through
// ACLs rather than POSIX uids.
func checkFileOwnership(_ os.FileInfo) error {
	return nil
}
