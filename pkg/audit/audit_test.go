package audit

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

var testMasterKey = []byte("0123456789abcdef0123456789abcdef")

func newTestLogger(t *testing.T) *Logger {
	t.Helper()
	l, err := Open(filepath.Join(t.TempDir(), "audit.db"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { l.Close() })
	if err := l.SetHMACKey(testMasterKey); err != nil {
		t.Fatalf("SetHMACKey() error = %v", err)
	}
	return l
}

func TestLogRequiresKey(t *testing.T) {
	l, err := Open(filepath.Join(t.TempDir(), "audit.db"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer l.Close()

	if err := l.LogSuccess(OpVaultUnlock, ""); !errors.Is(err, ErrKeyNotSet) {
		t.Errorf("LogSuccess() error = %v, want ErrKeyNotSet", err)
	}
}

func TestChainVerifies(t *testing.T) {
	l := newTestLogger(t)

	if err := l.LogSuccess(OpVaultUnlock, ""); err != nil {
		t.Fatalf("LogSuccess() error = %v", err)
	}
	if err := l.LogSuccess(OpCredentialAdd, "github"); err != nil {
		t.Fatalf("LogSuccess() error = %v", err)
	}
	if err := l.LogError(OpCredentialGet, "missing", errors.New("record not found")); err != nil {
		t.Fatalf("LogError() error = %v", err)
	}

	result, err := l.Verify()
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if !result.Valid {
		t.Errorf("Verify() invalid: %v", result.Errors)
	}
	if result.RecordsTotal != 3 {
		t.Errorf("RecordsTotal = %d, want 3", result.RecordsTotal)
	}
}

func TestNameNeverStoredInPlaintext(t *testing.T) {
	l := newTestLogger(t)

	if err := l.LogSuccess(OpCredentialGet, "github"); err != nil {
		t.Fatalf("LogSuccess() error = %v", err)
	}

	events, err := l.ListEvents(0, time.Time{})
	if err != nil {
		t.Fatalf("ListEvents() error = %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("ListEvents() returned %d events, want 1", len(events))
	}
	if strings.Contains(events[0].NameHMAC, "github") {
		t.Error("record name stored in plaintext")
	}
	if len(events[0].NameHMAC) != 64 {
		t.Errorf("NameHMAC length = %d, want 64 hex chars", len(events[0].NameHMAC))
	}
}

func TestVerifyDetectsTampering(t *testing.T) {
	l := newTestLogger(t)

	for i := 0; i < 3; i++ {
		if err := l.LogSuccess(OpCredentialList, ""); err != nil {
			t.Fatalf("LogSuccess() error = %v", err)
		}
	}

	if _, err := l.db.Exec(`UPDATE events SET op = ? WHERE seq = 2`, OpCredentialDelete); err != nil {
		t.Fatalf("tamper update error = %v", err)
	}

	result, err := l.Verify()
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if result.Valid {
		t.Error("Verify() accepted a tampered record")
	}
}

func TestVerifyDetectsDeletedRecord(t *testing.T) {
	l := newTestLogger(t)

	for i := 0; i < 3; i++ {
		if err := l.LogSuccess(OpCredentialList, ""); err != nil {
			t.Fatalf("LogSuccess() error = %v", err)
		}
	}

	if _, err := l.db.Exec(`DELETE FROM events WHERE seq = 2`); err != nil {
		t.Fatalf("tamper delete error = %v", err)
	}

	result, err := l.Verify()
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if result.Valid {
		t.Error("Verify() accepted a chain with a deleted record")
	}
}

func TestChainResumesAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.db")

	l1, err := Open(path)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if err := l1.SetHMACKey(testMasterKey); err != nil {
		t.Fatalf("SetHMACKey() error = %v", err)
	}
	if err := l1.LogSuccess(OpVaultInit, ""); err != nil {
		t.Fatalf("LogSuccess() error = %v", err)
	}
	l1.Close()

	l2, err := Open(path)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer l2.Close()
	if err := l2.SetHMACKey(testMasterKey); err != nil {
		t.Fatalf("SetHMACKey() error = %v", err)
	}
	if err := l2.LogSuccess(OpVaultUnlock, ""); err != nil {
		t.Fatalf("LogSuccess() error = %v", err)
	}

	result, err := l2.Verify()
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if !result.Valid {
		t.Errorf("Verify() invalid after reopen: %v", result.Errors)
	}
	if result.RecordsTotal != 2 {
		t.Errorf("RecordsTotal = %d, want 2", result.RecordsTotal)
	}
}

func TestListEventsLimit(t *testing.T) {
	l := newTestLogger(t)

	for i := 0; i < 5; i++ {
		if err := l.LogSuccess(OpCredentialList, ""); err != nil {
			t.Fatalf("LogSuccess() error = %v", err)
		}
	}

	events, err := l.ListEvents(2, time.Time{})
	if err != nil {
		t.Fatalf("ListEvents() error = %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("ListEvents(2) returned %d events", len(events))
	}
	if events[0].Sequence != 4 || events[1].Sequence != 5 {
		t.Errorf("ListEvents(2) sequences = %d, %d, want 4, 5",
			events[0].Sequence, events[1].Sequence)
	}
}

func TestEventsCarrySessionID(t *testing.T) {
	l := newTestLogger(t)

	if err := l.LogSuccess(OpVaultUnlock, ""); err != nil {
		t.Fatalf("LogSuccess() error = %v", err)
	}
	if err := l.LogSuccess(OpCredentialList, ""); err != nil {
		t.Fatalf("LogSuccess() error = %v", err)
	}

	events, err := l.ListEvents(0, time.Time{})
	if err != nil {
		t.Fatalf("ListEvents() error = %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("ListEvents() returned %d events, want 2", len(events))
	}
	if events[0].SessionID == "" {
		t.Error("SessionID empty")
	}
	if events[0].SessionID != events[1].SessionID {
		t.Errorf("SessionID differs within one logger: %q vs %q",
			events[0].SessionID, events[1].SessionID)
	}

	// The HMAC covers the session field, so rewriting it is tampering.
	if _, err := l.db.Exec(`UPDATE events SET session = 'forged' WHERE seq = 1`); err != nil {
		t.Fatalf("tamper update error = %v", err)
	}
	result, err := l.Verify()
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if result.Valid {
		t.Error("Verify() accepted a forged session id")
	}
}

func TestTimestampStringOrderMatchesTimeOrder(t *testing.T) {
	l := newTestLogger(t)

	if err := l.LogSuccess(OpVaultUnlock, ""); err != nil {
		t.Fatalf("LogSuccess() error = %v", err)
	}
	events, err := l.ListEvents(0, time.Time{})
	if err != nil {
		t.Fatalf("ListEvents() error = %v", err)
	}
	want := len(time.Time{}.UTC().Format(timestampLayout))
	if got := len(events[0].Timestamp); got != want {
		t.Errorf("Timestamp %q length = %d, want fixed width %d", events[0].Timestamp, got, want)
	}

	// Sub-second fractions must not sort before whole seconds: the prune
	// cutoff is compared as a string in SQL.
	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	times := []time.Time{
		base,
		base.Add(500 * time.Millisecond),
		base.Add(time.Second),
		base.Add(time.Second + time.Nanosecond),
	}
	for i := 1; i < len(times); i++ {
		earlier := times[i-1].Format(timestampLayout)
		later := times[i].Format(timestampLayout)
		if earlier >= later {
			t.Errorf("%q does not sort before %q", earlier, later)
		}
	}
}

func TestPrune(t *testing.T) {
	l := newTestLogger(t)

	for i := 0; i < 3; i++ {
		if err := l.LogSuccess(OpCredentialList, ""); err != nil {
			t.Fatalf("LogSuccess() error = %v", err)
		}
	}

	// Nothing is older than a day yet.
	n, err := l.Prune(24 * time.Hour)
	if err != nil {
		t.Fatalf("Prune() error = %v", err)
	}
	if n != 0 {
		t.Errorf("Prune(24h) removed %d events, want 0", n)
	}

	// Everything is older than a zero-length retention.
	n, err = l.Prune(0)
	if err != nil {
		t.Fatalf("Prune() error = %v", err)
	}
	if n != 3 {
		t.Errorf("Prune(0) removed %d events, want 3", n)
	}
}
