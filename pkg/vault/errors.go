package vault

import "errors"

// Errors
var (
	// ErrAlreadyInitialized indicates a container already exists at the
	// vault path.
	ErrAlreadyInitialized = errors.New("vault: vault already initialized at this path")

	// ErrVaultNotFound indicates no container exists at the vault path.
	ErrVaultNotFound = errors.New("vault: vault not found at this path")

	// ErrAuthFailed indicates the container could not be opened. A wrong
	// master password and a corrupted or tampered container both surface
	// as this single error; callers must not be able to tell which.
	ErrAuthFailed = errors.New("vault: authentication failed: wrong password or corrupted vault")

	// ErrLocked indicates no valid session key is available. It covers
	// both "never unlocked" and "session expired"; the caller resolves it
	// by unlocking again.
	ErrLocked = errors.New("vault: vault is locked, unlock required")

	// ErrNotFound indicates no record with the given name exists in the
	// namespace.
	ErrNotFound = errors.New("vault: record not found")

	// ErrDuplicateName indicates a record with the given name already
	// exists in the namespace.
	ErrDuplicateName = errors.New("vault: record name already exists")

	// ErrInvalidName indicates an empty or otherwise unusable record name.
	ErrInvalidName = errors.New("vault: invalid record name")
)
