// Package vault implements the vecna secret store engine: the encrypted
// container codec, the record store, and the session state machine that
// gates every operation on a non-expired cached key.
//
// The engine holds no plaintext between operations. Each call checks the
// session, decrypts the container into a transient RecordStore, runs, and
// for mutations seals a fresh container and replaces the file atomically.
package vault

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/vecna-vault/vecna/pkg/audit"
	"github.com/vecna-vault/vecna/pkg/crypto"
	"github.com/vecna-vault/vecna/pkg/session"
)

// Constants
const (
	ContainerFileName = "vault.enc"
	LockFileName      = "vault.lock"
	AuditFileName     = "audit.db"
	FileMode          = 0600 // Owner read/write only
	DirMode           = 0700 // Owner read/write/execute only
)

// Options configures a Vault engine.
type Options struct {
	// Iterations is the PBKDF2 iteration count used when initializing a
	// new container. Existing containers use the count persisted in their
	// header. Zero means crypto.DefaultIterations.
	Iterations int

	// SessionTimeout bounds the session key lifetime. Zero means
	// session.DefaultTimeout.
	SessionTimeout time.Duration

	// Audit receives the operation log. Nil disables audit logging.
	Audit *audit.Logger
}

// Vault manages a single container file and the session gating its access.
type Vault struct {
	dir   string
	cache *session.Cache
	opts  Options
	audit *audit.Logger
	mu    sync.Mutex // serializes operations within this process
}

// New creates a Vault engine for the container directory. The session
// cache is injected so tests can substitute a throwaway volatile store.
func New(dir string, cache *session.Cache, opts Options) *Vault {
	if opts.Iterations <= 0 {
		opts.Iterations = crypto.DefaultIterations
	}
	if opts.SessionTimeout <= 0 {
		opts.SessionTimeout = session.DefaultTimeout
	}
	return &Vault{
		dir:   dir,
		cache: cache,
		opts:  opts,
		audit: opts.Audit,
	}
}

// Path returns the container file path.
func (v *Vault) Path() string {
	return filepath.Join(v.dir, ContainerFileName)
}

// Dir returns the vault directory.
func (v *Vault) Dir() string {
	return v.dir
}

// Exists reports whether a container has been initialized.
func (v *Vault) Exists() bool {
	_, err := os.Stat(v.Path())
	return err == nil
}

// Init creates a new encrypted container holding an empty record store.
// The engine stays Locked afterwards; callers that want the original CLI's
// init-then-unlocked behavior call Unlock with the same password.
func (v *Vault) Init(password []byte) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.Exists() {
		return ErrAlreadyInitialized
	}

	if err := os.MkdirAll(v.dir, DirMode); err != nil {
		return fmt.Errorf("vault: failed to create vault directory: %w", err)
	}

	salt, err := crypto.GenerateSalt()
	if err != nil {
		return err
	}
	kdf := KDFParams{
		Algorithm:  KDFAlgorithm,
		Iterations: v.opts.Iterations,
		Salt:       salt,
	}

	key := crypto.DeriveKey(password, salt, kdf.Iterations)
	defer crypto.SecureWipe(key)

	container, err := sealContainer(NewRecordStore(), key, kdf)
	if err != nil {
		return err
	}
	data, err := container.Bytes()
	if err != nil {
		return err
	}

	lock, err := acquireLock(v.lockPath(), true)
	if err != nil {
		return err
	}
	defer releaseLock(lock)

	// Re-check under the lock so two concurrent inits cannot both write.
	if v.Exists() {
		return ErrAlreadyInitialized
	}
	if err := atomicWriteFile(v.Path(), data, FileMode); err != nil {
		return err
	}

	v.setAuditKey(key)
	v.logSuccess(audit.OpVaultInit, "")
	return nil
}

// Unlock derives a key from the stored salt, verifies it against the
// container, and caches it for the configured timeout. A wrong password and
// a damaged container both report ErrAuthFailed with no session cached;
// storage failures surface as themselves.
func (v *Vault) Unlock(password []byte) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	lock, err := acquireLock(v.lockPath(), false)
	if err != nil {
		return err
	}
	defer releaseLock(lock)

	container, err := readContainerFile(v.Path())
	if err != nil {
		mapped := mapReadError(err)
		if errors.Is(mapped, ErrAuthFailed) {
			// Structural damage is indistinguishable from tampering.
			v.logError(audit.OpVaultUnlockFailed, "", err)
		}
		return mapped
	}

	key := crypto.DeriveKey(password, container.Header.KDF.Salt, container.Header.KDF.Iterations)

	if _, err := openContainer(container, key); err != nil {
		crypto.SecureWipe(key)
		v.logError(audit.OpVaultUnlockFailed, "", err)
		return ErrAuthFailed
	}

	if err := v.cache.Store(key, v.opts.SessionTimeout); err != nil {
		crypto.SecureWipe(key)
		return err
	}

	v.setAuditKey(key)
	v.logSuccess(audit.OpVaultUnlock, "")
	crypto.SecureWipe(key)
	return nil
}

// Lock clears the session unconditionally. Locking an already-locked
// vault succeeds.
func (v *Vault) Lock() error {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.logSuccess(audit.OpVaultLock, "")
	return v.cache.Clear()
}

// Status describes the vault for presentation.
type Status struct {
	Initialized bool
	Unlocked    bool
	Remaining   time.Duration
}

// Status reports initialization and session state. Asking for status
// counts as a session query, so it triggers lazy expiry like any other
// operation.
func (v *Vault) Status() Status {
	st := Status{Initialized: v.Exists()}
	remaining, err := v.cache.Remaining()
	if err == nil {
		st.Unlocked = true
		st.Remaining = remaining
	}
	return st
}

// lockPath returns the advisory lock file path. The lock file is separate
// from the container because the container inode changes on every rename.
func (v *Vault) lockPath() string {
	return filepath.Join(v.dir, LockFileName)
}

// mapReadError classifies a container read failure. Structural damage is
// collapsed into ErrAuthFailed, indistinguishable from a wrong password.
// Storage failures keep their identity: the medium failing is not evidence
// about the password, and the caller needs the real cause.
func mapReadError(err error) error {
	switch {
	case errors.Is(err, ErrVaultNotFound):
		return ErrVaultNotFound
	case errors.Is(err, errInvalidMagic),
		errors.Is(err, errHeaderCorrupted),
		errors.Is(err, errUnsupportedVersion):
		return ErrAuthFailed
	default:
		return err
	}
}

// sessionKey fetches the cached key, mapping absence and expiry to the
// single ErrLocked the state machine exposes.
func (v *Vault) sessionKey() ([]byte, error) {
	key, err := v.cache.Load()
	if err != nil {
		if errors.Is(err, session.ErrAbsent) || errors.Is(err, session.ErrExpired) {
			return nil, fmt.Errorf("%w: %v", ErrLocked, err)
		}
		return nil, err
	}
	return key, nil
}

// view runs a read-only operation against a freshly decrypted record
// store under a shared lock.
func (v *Vault) view(op func(*RecordStore) error) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	key, err := v.sessionKey()
	if err != nil {
		return err
	}
	defer crypto.SecureWipe(key)
	v.setAuditKey(key)

	lock, err := acquireLock(v.lockPath(), false)
	if err != nil {
		return err
	}
	defer releaseLock(lock)

	store, err := v.openStore(key)
	if err != nil {
		return err
	}
	return op(store)
}

// mutate runs a mutating operation under an exclusive lock spanning
// read-decrypt-mutate-encrypt-write, then seals with a fresh nonce and
// replaces the container atomically. If anything fails before the rename
// the prior container stays authoritative.
func (v *Vault) mutate(op func(*RecordStore) error) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	key, err := v.sessionKey()
	if err != nil {
		return err
	}
	defer crypto.SecureWipe(key)
	v.setAuditKey(key)

	lock, err := acquireLock(v.lockPath(), true)
	if err != nil {
		return err
	}
	defer releaseLock(lock)

	container, err := readContainerFile(v.Path())
	if err != nil {
		return mapReadError(err)
	}
	store, err := openContainer(container, key)
	if err != nil {
		return ErrAuthFailed
	}

	if err := op(store); err != nil {
		return err
	}

	sealed, err := sealContainer(store, key, container.Header.KDF)
	if err != nil {
		return err
	}
	data, err := sealed.Bytes()
	if err != nil {
		return err
	}
	return atomicWriteFile(v.Path(), data, FileMode)
}

// openStore reads and decrypts the container. Callers hold the file lock.
func (v *Vault) openStore(key []byte) (*RecordStore, error) {
	container, err := readContainerFile(v.Path())
	if err != nil {
		return nil, mapReadError(err)
	}
	store, err := openContainer(container, key)
	if err != nil {
		return nil, ErrAuthFailed
	}
	return store, nil
}

// AddCredential inserts a credential and persists the container.
func (v *Vault) AddCredential(rec CredentialRecord) error {
	err := v.mutate(func(s *RecordStore) error {
		return s.AddCredential(rec, time.Now().UTC())
	})
	v.logOutcome(audit.OpCredentialAdd, rec.Name, err)
	return err
}

// GetCredential returns the named credential.
func (v *Vault) GetCredential(name string) (*CredentialRecord, error) {
	var rec *CredentialRecord
	err := v.view(func(s *RecordStore) error {
		var err error
		rec, err = s.GetCredential(name)
		return err
	})
	v.logOutcome(audit.OpCredentialGet, name, err)
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// UpdateCredential merges a partial update into the named credential and
// persists the container.
func (v *Vault) UpdateCredential(name string, upd CredentialUpdate) error {
	err := v.mutate(func(s *RecordStore) error {
		return s.UpdateCredential(name, upd, time.Now().UTC())
	})
	v.logOutcome(audit.OpCredentialUpdate, name, err)
	return err
}

// DeleteCredential removes the named credential and persists the container.
func (v *Vault) DeleteCredential(name string) error {
	err := v.mutate(func(s *RecordStore) error {
		return s.DeleteCredential(name)
	})
	v.logOutcome(audit.OpCredentialDelete, name, err)
	return err
}

// ListCredentials returns credentials ordered by name, optionally filtered
// by tag intersection.
func (v *Vault) ListCredentials(tagFilter []string) ([]*CredentialRecord, error) {
	var out []*CredentialRecord
	err := v.view(func(s *RecordStore) error {
		out = s.ListCredentials(tagFilter)
		return nil
	})
	v.logOutcome(audit.OpCredentialList, "", err)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// AddAlias inserts an alias and persists the container.
func (v *Vault) AddAlias(rec AliasRecord) error {
	err := v.mutate(func(s *RecordStore) error {
		return s.AddAlias(rec, time.Now().UTC())
	})
	v.logOutcome(audit.OpAliasAdd, rec.Name, err)
	return err
}

// GetAlias returns the named alias.
func (v *Vault) GetAlias(name string) (*AliasRecord, error) {
	var rec *AliasRecord
	err := v.view(func(s *RecordStore) error {
		var err error
		rec, err = s.GetAlias(name)
		return err
	})
	v.logOutcome(audit.OpAliasGet, name, err)
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// UpdateAlias merges a partial update into the named alias and persists
// the container.
func (v *Vault) UpdateAlias(name string, upd AliasUpdate) error {
	err := v.mutate(func(s *RecordStore) error {
		return s.UpdateAlias(name, upd, time.Now().UTC())
	})
	v.logOutcome(audit.OpAliasUpdate, name, err)
	return err
}

// DeleteAlias removes the named alias and persists the container.
func (v *Vault) DeleteAlias(name string) error {
	err := v.mutate(func(s *RecordStore) error {
		return s.DeleteAlias(name)
	})
	v.logOutcome(audit.OpAliasDelete, name, err)
	return err
}

// ListAliases returns aliases ordered by name, optionally tag-filtered.
func (v *Vault) ListAliases(tagFilter []string) ([]*AliasRecord, error) {
	var out []*AliasRecord
	err := v.view(func(s *RecordStore) error {
		out = s.ListAliases(tagFilter)
		return nil
	})
	v.logOutcome(audit.OpAliasList, "", err)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// RefreshAuditKey rederives the audit logger's HMAC key from the live
// session. Commands that read or verify the audit log without performing
// a vault operation first call this to arm the logger.
func (v *Vault) RefreshAuditKey() error {
	v.mu.Lock()
	defer v.mu.Unlock()

	key, err := v.sessionKey()
	if err != nil {
		return err
	}
	defer crypto.SecureWipe(key)
	v.setAuditKey(key)
	return nil
}

// Audit logging is best-effort: a failing audit store never blocks a vault
// operation, it only warns on stderr.

func (v *Vault) setAuditKey(key []byte) {
	if v.audit == nil {
		return
	}
	if err := v.audit.SetHMACKey(key); err != nil {
		fmt.Fprintf(os.Stderr, "warning: failed to initialize audit logger: %v\n", err)
	}
}

func (v *Vault) logSuccess(op, name string) {
	if v.audit == nil {
		return
	}
	if err := v.audit.LogSuccess(op, name); err != nil {
		fmt.Fprintf(os.Stderr, "warning: failed to write audit log: %v\n", err)
	}
}

func (v *Vault) logError(op, name string, cause error) {
	if v.audit == nil {
		return
	}
	if err := v.audit.LogError(op, name, cause); err != nil {
		fmt.Fprintf(os.Stderr, "warning: failed to write audit log: %v\n", err)
	}
}

func (v *Vault) logOutcome(op, name string, cause error) {
	if cause != nil {
		// Locked sessions never reach the audit log's HMAC key, so skip.
		if errors.Is(cause, ErrLocked) {
			return
		}
		v.logError(op, name, cause)
		return
	}
	v.logSuccess(op, name)
}
