// Package audit records vault operations in a local SQLite database with
// an HMAC chain for tamper detection. Record names never appear in
// plaintext, only as HMACs keyed from the vault master key, so the audit
// trail leaks nothing when the vault is locked.
package audit

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/crypto/hkdf"
	_ "modernc.org/sqlite"
)

// Operation types
const (
	OpVaultInit         = "vault.init"
	OpVaultUnlock       = "vault.unlock"
	OpVaultUnlockFailed = "vault.unlock_failed"
	OpVaultLock         = "vault.lock"

	OpCredentialAdd    = "credential.add"
	OpCredentialGet    = "credential.get"
	OpCredentialUpdate = "credential.update"
	OpCredentialDelete = "credential.delete"
	OpCredentialList   = "credential.list"

	OpAliasAdd    = "alias.add"
	OpAliasGet    = "alias.get"
	OpAliasUpdate = "alias.update"
	OpAliasDelete = "alias.delete"
	OpAliasList   = "alias.list"

	// Read-only tool surface
	OpCredentialExists    = "credential.exists"
	OpCredentialGetMasked = "credential.get_masked"
)

// Result values
const (
	ResultSuccess = "success"
	ResultError   = "error"
)

// genesisHash seeds the chain before the first event.
const genesisHash = "genesis"

// timestampLayout is RFC 3339 with a fixed nine-digit fraction. RFC3339Nano
// trims trailing zeros, which breaks the lexicographic ordering the prune
// cutoff comparison relies on; the fixed width keeps string order equal to
// chronological order.
const timestampLayout = "2006-01-02T15:04:05.000000000Z07:00"

// ErrKeyNotSet is returned when logging before SetHMACKey.
var ErrKeyNotSet = errors.New("audit: HMAC key not set")

// Event is one audit record as stored.
type Event struct {
	Sequence  int64  `json:"seq"`
	ID        string `json:"id"`
	Timestamp string `json:"ts"` // RFC 3339, fixed nine-digit fraction
	Operation string `json:"op"`
	SessionID string `json:"session"`
	NameHMAC  string `json:"name_hmac,omitempty"`
	Result    string `json:"result"`
	Error     string `json:"error,omitempty"`
	PrevHash  string `json:"prev"`
	HMAC      string `json:"hmac"`
}

// Logger appends HMAC-chained events to a SQLite database.
type Logger struct {
	db        *sql.DB
	mu        sync.Mutex
	hmacKey   []byte
	keySet    bool
	sequence  int64
	prevHash  string
	sessionID string
}

const schema = `
CREATE TABLE IF NOT EXISTS events (
	seq       INTEGER PRIMARY KEY,
	id        TEXT NOT NULL,
	ts        TEXT NOT NULL,
	op        TEXT NOT NULL,
	session   TEXT NOT NULL DEFAULT '',
	name_hmac TEXT NOT NULL DEFAULT '',
	result    TEXT NOT NULL,
	error     TEXT NOT NULL DEFAULT '',
	prev_hash TEXT NOT NULL,
	hmac      TEXT NOT NULL
);
`

// Open creates or opens the audit database at path.
func Open(path string) (*Logger, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("audit: failed to open database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("audit: failed to initialize schema: %w", err)
	}
	return &Logger{
		db:        db,
		prevHash:  genesisHash,
		sessionID: generateSessionID(),
	}, nil
}

// Close closes the underlying database.
func (l *Logger) Close() error {
	return l.db.Close()
}

// SetHMACKey derives the logging key from the vault master key via
// HKDF-SHA256 and resumes the chain from the last stored event. Calling
// it again with the same master key is a no-op.
func (l *Logger) SetHMACKey(masterKey []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	reader := hkdf.New(sha256.New, masterKey, nil, []byte("vecna-audit-v1"))
	key := make([]byte, 32)
	if _, err := reader.Read(key); err != nil {
		return fmt.Errorf("audit: failed to derive HMAC key: %w", err)
	}
	if l.keySet && hmac.Equal(l.hmacKey, key) {
		return nil
	}
	l.hmacKey = key
	l.keySet = true

	row := l.db.QueryRow(`SELECT seq, hmac FROM events ORDER BY seq DESC LIMIT 1`)
	var seq int64
	var last string
	switch err := row.Scan(&seq, &last); {
	case errors.Is(err, sql.ErrNoRows):
		l.sequence = 0
		l.prevHash = genesisHash
	case err != nil:
		return fmt.Errorf("audit: failed to load chain state: %w", err)
	default:
		l.sequence = seq
		l.prevHash = last
	}
	return nil
}

// LogSuccess records a successful operation.
func (l *Logger) LogSuccess(op, name string) error {
	return l.log(op, name, ResultSuccess, "")
}

// LogError records a failed operation.
func (l *Logger) LogError(op, name string, cause error) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	return l.log(op, name, ResultError, msg)
}

func (l *Logger) log(op, name, result, errMsg string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.keySet {
		return ErrKeyNotSet
	}

	ev := Event{
		Sequence:  l.sequence + 1,
		ID:        generateEventID(),
		Timestamp: time.Now().UTC().Format(timestampLayout),
		Operation: op,
		SessionID: l.sessionID,
		Result:    result,
		Error:     errMsg,
		PrevHash:  l.prevHash,
	}
	if name != "" {
		ev.NameHMAC = l.nameHMAC(name)
	}
	ev.HMAC = l.eventHMAC(&ev)

	_, err := l.db.Exec(
		`INSERT INTO events (seq, id, ts, op, session, name_hmac, result, error, prev_hash, hmac)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.Sequence, ev.ID, ev.Timestamp, ev.Operation, ev.SessionID, ev.NameHMAC,
		ev.Result, ev.Error, ev.PrevHash, ev.HMAC,
	)
	if err != nil {
		return fmt.Errorf("audit: failed to write event: %w", err)
	}

	l.sequence = ev.Sequence
	l.prevHash = ev.HMAC
	return nil
}

// nameHMAC maps a record name to a stable keyed digest.
func (l *Logger) nameHMAC(name string) string {
	mac := hmac.New(sha256.New, l.hmacKey)
	mac.Write([]byte(name))
	return hex.EncodeToString(mac.Sum(nil))
}

// eventHMAC covers every significant field plus the chain position.
func (l *Logger) eventHMAC(ev *Event) string {
	data := fmt.Sprintf("%d|%s|%s|%s|%s|%s|%s|%s|%s",
		ev.Sequence, ev.ID, ev.Timestamp, ev.Operation, ev.SessionID,
		ev.NameHMAC, ev.Result, ev.Error, ev.PrevHash)
	mac := hmac.New(sha256.New, l.hmacKey)
	mac.Write([]byte(data))
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifyResult reports the outcome of a chain verification.
type VerifyResult struct {
	Valid        bool     `json:"valid"`
	RecordsTotal int      `json:"records_total"`
	Errors       []string `json:"errors,omitempty"`
}

// Verify walks the chain from the first event checking sequence
// continuity, prev-hash linkage, and each record's HMAC.
func (l *Logger) Verify() (*VerifyResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.keySet {
		return nil, ErrKeyNotSet
	}

	rows, err := l.db.Query(
		`SELECT seq, id, ts, op, session, name_hmac, result, error, prev_hash, hmac
		 FROM events ORDER BY seq ASC`)
	if err != nil {
		return nil, fmt.Errorf("audit: failed to read events: %w", err)
	}
	defer rows.Close()

	result := &VerifyResult{Valid: true}
	expectedPrev := genesisHash
	var expectedSeq int64 = 1

	for rows.Next() {
		var ev Event
		if err := rows.Scan(&ev.Sequence, &ev.ID, &ev.Timestamp, &ev.Operation, &ev.SessionID,
			&ev.NameHMAC, &ev.Result, &ev.Error, &ev.PrevHash, &ev.HMAC); err != nil {
			return nil, fmt.Errorf("audit: failed to scan event: %w", err)
		}
		result.RecordsTotal++

		// Pruning removes the head of the chain. Anchor verification on
		// the oldest surviving record instead of failing it.
		if result.RecordsTotal == 1 && ev.Sequence > 1 {
			expectedSeq = ev.Sequence
			expectedPrev = ev.PrevHash
		}

		if ev.Sequence != expectedSeq {
			result.Valid = false
			result.Errors = append(result.Errors, fmt.Sprintf(
				"sequence gap at record %s: expected %d, got %d",
				ev.ID, expectedSeq, ev.Sequence))
		}
		if ev.PrevHash != expectedPrev {
			result.Valid = false
			result.Errors = append(result.Errors, fmt.Sprintf(
				"chain broken at record %s: expected prev %s, got %s",
				ev.ID, expectedPrev, ev.PrevHash))
		}
		if want := l.eventHMAC(&ev); ev.HMAC != want {
			result.Valid = false
			result.Errors = append(result.Errors, fmt.Sprintf(
				"HMAC mismatch at record %s: possible tampering", ev.ID))
		}

		expectedPrev = ev.HMAC
		expectedSeq = ev.Sequence + 1
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("audit: failed to read events: %w", err)
	}
	return result, nil
}

// ListEvents returns the most recent events, oldest first. limit of zero
// means all. since, when non-zero, drops events at or before that time.
func (l *Logger) ListEvents(limit int, since time.Time) ([]Event, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	rows, err := l.db.Query(
		`SELECT seq, id, ts, op, session, name_hmac, result, error, prev_hash, hmac
		 FROM events ORDER BY seq ASC`)
	if err != nil {
		return nil, fmt.Errorf("audit: failed to read events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var ev Event
		if err := rows.Scan(&ev.Sequence, &ev.ID, &ev.Timestamp, &ev.Operation, &ev.SessionID,
			&ev.NameHMAC, &ev.Result, &ev.Error, &ev.PrevHash, &ev.HMAC); err != nil {
			return nil, fmt.Errorf("audit: failed to scan event: %w", err)
		}
		if !since.IsZero() {
			ts, err := time.Parse(time.RFC3339Nano, ev.Timestamp)
			if err != nil || !ts.After(since) {
				continue
			}
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("audit: failed to read events: %w", err)
	}

	if limit > 0 && len(events) > limit {
		events = events[len(events)-limit:]
	}
	return events, nil
}

// Prune deletes events older than the given duration and returns the
// number removed. Verification of earlier history is no longer possible
// after a prune, so the chain restarts from the oldest surviving event.
func (l *Logger) Prune(olderThan time.Duration) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := time.Now().UTC().Add(-olderThan).Format(timestampLayout)
	res, err := l.db.Exec(`DELETE FROM events WHERE ts < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("audit: failed to prune events: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

func generateSessionID() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("session-%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(b)
}

// generateEventID builds a time-sortable unique identifier from a
// millisecond timestamp prefix and 10 random bytes.
func generateEventID() string {
	ts := time.Now().UnixMilli()
	tsBytes := make([]byte, 6)
	for i := 5; i >= 0; i-- {
		tsBytes[i] = byte(ts & 0xFF)
		ts >>= 8
	}
	randBytes := make([]byte, 10)
	if _, err := rand.Read(randBytes); err != nil {
		return fmt.Sprintf("%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(append(tsBytes, randBytes...))
}
