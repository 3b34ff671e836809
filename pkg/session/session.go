// Package session holds the derived vault key between command invocations.
//
// The key lives in a single file inside a volatile directory (tmpfs or the
// user runtime dir), so it disappears on host restart and is never written
// to durable storage. Expiration is lazy: it is evaluated only when Load is
// called, never by a background timer. A session that has outlived its
// timeout therefore keeps its key resident until the next operation checks
// it. The model assumes a single trusted user on the host.
package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/vecna-vault/vecna/pkg/crypto"
)

const (
	// DefaultTimeout is how long a cached key stays valid without an
	// explicit lock.
	DefaultTimeout = 900 * time.Second

	// CacheFileName is the name of the session entry inside the volatile
	// directory.
	CacheFileName = "vecna-session.json"

	// FileMode restricts the entry to the owning user.
	FileMode = 0600
)

// Sentinel errors returned by Load.
var (
	// ErrAbsent indicates no session entry exists.
	ErrAbsent = errors.New("session: no active session")

	// ErrExpired indicates the entry outlived its timeout; the entry is
	// cleared as a side effect of observing this.
	ErrExpired = errors.New("session: session expired")

	// ErrCacheUnavailable indicates no writable volatile directory exists.
	ErrCacheUnavailable = errors.New("session: volatile storage unavailable")
)

// entry is the on-disk shape of a cached session.
type entry struct {
	Key       []byte    `json:"key"`
	CreatedAt time.Time `json:"created_at"`
	Timeout   float64   `json:"timeout_seconds"`
}

// Cache stores the derived key in a volatile directory with a bounded
// lifetime. It is an explicit object rather than a process global so tests
// can point it at a throwaway directory and a fake clock.
type Cache struct {
	dir string
	now func() time.Time
}

// New returns a Cache rooted at the default volatile directory for the
// platform. It fails with ErrCacheUnavailable when no candidate directory
// is writable.
func New() (*Cache, error) {
	dir, err := volatileDir()
	if err != nil {
		return nil, err
	}
	return NewAt(dir), nil
}

// NewAt returns a Cache rooted at dir. The caller is responsible for the
// volatility of dir; this entry point exists for tests and non-standard
// setups.
func NewAt(dir string) *Cache {
	return &Cache{dir: dir, now: time.Now}
}

// SetClock replaces the cache's time source. Tests use this to step past
// the timeout without sleeping.
func (c *Cache) SetClock(now func() time.Time) {
	c.now = now
}

// Path returns the location of the session entry file.
func (c *Cache) Path() string {
	return filepath.Join(c.dir, CacheFileName)
}

// Store writes the key and the current timestamp to the volatile store,
// overwriting any prior session. The key slice is copied; callers may wipe
// their copy afterwards.
func (c *Cache) Store(key []byte, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	e := entry{
		Key:       append([]byte(nil), key...),
		CreatedAt: c.now(),
		Timeout:   timeout.Seconds(),
	}
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("session: failed to marshal entry: %w", err)
	}
	defer crypto.SecureWipe(data)
	defer crypto.SecureWipe(e.Key)

	if err := os.WriteFile(c.Path(), data, FileMode); err != nil {
		return fmt.Errorf("session: failed to write entry: %w", err)
	}
	return nil
}

// Load returns the cached key if one exists and has not expired.
//
// Expiry is computed here and only here: elapsed = now - created_at. When
// elapsed exceeds the timeout the entry is cleared and ErrExpired is
// returned. A missing entry yields ErrAbsent.
func (c *Cache) Load() ([]byte, error) {
	data, err := os.ReadFile(c.Path())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrAbsent
		}
		return nil, fmt.Errorf("session: failed to read entry: %w", err)
	}

	var e entry
	if err := json.Unmarshal(data, &e); err != nil {
		// Unparseable entries are treated as absent after clearing them.
		_ = c.Clear()
		return nil, ErrAbsent
	}

	elapsed := c.now().Sub(e.CreatedAt)
	if elapsed > time.Duration(e.Timeout*float64(time.Second)) {
		crypto.SecureWipe(e.Key)
		if err := c.Clear(); err != nil {
			return nil, err
		}
		return nil, ErrExpired
	}

	return e.Key, nil
}

// Remaining reports how much of the session window is left. Like Load it
// evaluates expiry lazily and clears an entry it finds expired. The key is
// not returned.
func (c *Cache) Remaining() (time.Duration, error) {
	data, err := os.ReadFile(c.Path())
	if err != nil {
		if os.IsNotExist(err) {
			return 0, ErrAbsent
		}
		return 0, fmt.Errorf("session: failed to read entry: %w", err)
	}

	var e entry
	if err := json.Unmarshal(data, &e); err != nil {
		_ = c.Clear()
		return 0, ErrAbsent
	}
	crypto.SecureWipe(e.Key)

	timeout := time.Duration(e.Timeout * float64(time.Second))
	elapsed := c.now().Sub(e.CreatedAt)
	if elapsed > timeout {
		if err := c.Clear(); err != nil {
			return 0, err
		}
		return 0, ErrExpired
	}
	return timeout - elapsed, nil
}

// Clear removes the cached entry. Clearing an already-absent entry is not
// an error.
func (c *Cache) Clear() error {
	err := os.Remove(c.Path())
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("session: failed to clear entry: %w", err)
	}
	return nil
}

// volatileDir picks the volatile storage area for the session entry. On
// Linux tmpfs at /dev/shm is preferred, then the user runtime dir, then the
// system temp dir. All candidates are cleared on host restart.
func volatileDir() (string, error) {
	var candidates []string
	if runtime.GOOS == "linux" {
		candidates = append(candidates, "/dev/shm")
	}
	if rd := os.Getenv("XDG_RUNTIME_DIR"); rd != "" {
		candidates = append(candidates, rd)
	}
	candidates = append(candidates, os.TempDir())

	for _, dir := range candidates {
		info, err := os.Stat(dir)
		if err != nil || !info.IsDir() {
			continue
		}
		if !writable(dir) {
			continue
		}
		return dir, nil
	}
	return "", ErrCacheUnavailable
}

// writable probes dir by creating and removing a scratch file.
func writable(dir string) bool {
	f, err := os.CreateTemp(dir, "vecna-probe-*")
	if err != nil {
		return false
	}
	name := f.Name()
	f.Close()
	os.Remove(name)
	return true
}
