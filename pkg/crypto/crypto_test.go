package crypto

import (
	"bytes"
	"crypto/rand"
	"errors"
	"testing"
)

// testIterations keeps key derivation fast in tests while staying above
// the enforced floor.
const testIterations = MinIterations

func TestDeriveKey(t *testing.T) {
	password := []byte("test-password-123")
	salt := make([]byte, SaltLength)
	if _, err := rand.Read(salt); err != nil {
		t.Fatalf("failed to generate salt: %v", err)
	}

	key := DeriveKey(password, salt, testIterations)
	if len(key) != KeyLength {
		t.Errorf("DeriveKey() returned key of length %d, want %d", len(key), KeyLength)
	}

	// Same password + salt + iterations must be deterministic.
	key2 := DeriveKey(password, salt, testIterations)
	if !bytes.Equal(key, key2) {
		t.Error("DeriveKey() with same inputs should produce identical keys")
	}

	differentKey := DeriveKey([]byte("different-password"), salt, testIterations)
	if bytes.Equal(key, differentKey) {
		t.Error("DeriveKey() with different password should produce different key")
	}

	differentSalt := make([]byte, SaltLength)
	if _, err := rand.Read(differentSalt); err != nil {
		t.Fatalf("failed to generate salt: %v", err)
	}
	differentKey = DeriveKey(password, differentSalt, testIterations)
	if bytes.Equal(key, differentKey) {
		t.Error("DeriveKey() with different salt should produce different key")
	}

	differentIters := DeriveKey(password, salt, testIterations+1)
	if bytes.Equal(key, differentIters) {
		t.Error("DeriveKey() with different iteration count should produce different key")
	}
}

func TestDeriveKeyIterationFloor(t *testing.T) {
	password := []byte("pw")
	salt := make([]byte, SaltLength)

	// Below-floor counts are raised to MinIterations, not honored.
	low := DeriveKey(password, salt, 1)
	floor := DeriveKey(password, salt, MinIterations)
	if !bytes.Equal(low, floor) {
		t.Error("DeriveKey() should clamp iteration counts below MinIterations")
	}
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	key := make([]byte, KeyLength)
	if _, err := rand.Read(key); err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}

	plaintext := []byte("secret data to encrypt")
	aad := []byte("header bytes")

	ciphertext, nonce, err := Encrypt(key, plaintext, aad)
	if err != nil {
		t.Fatalf("Encrypt() error = %v", err)
	}

	if len(nonce) != NonceLength {
		t.Errorf("Encrypt() nonce length = %d, want %d", len(nonce), NonceLength)
	}
	if bytes.Equal(ciphertext, plaintext) {
		t.Error("Encrypt() ciphertext should not equal plaintext")
	}

	decrypted, err := Decrypt(key, ciphertext, nonce, aad)
	if err != nil {
		t.Fatalf("Decrypt() error = %v", err)
	}
	if !bytes.Equal(decrypted, plaintext) {
		t.Errorf("Decrypt() = %q, want %q", decrypted, plaintext)
	}
}

func TestEncryptFreshNonce(t *testing.T) {
	key := make([]byte, KeyLength)
	plaintext := []byte("same input")

	_, nonce1, err := Encrypt(key, plaintext, nil)
	if err != nil {
		t.Fatalf("Encrypt() error = %v", err)
	}
	_, nonce2, err := Encrypt(key, plaintext, nil)
	if err != nil {
		t.Fatalf("Encrypt() error = %v", err)
	}
	if bytes.Equal(nonce1, nonce2) {
		t.Error("Encrypt() must generate a fresh nonce on every call")
	}
}

func TestDecryptFailures(t *testing.T) {
	key := make([]byte, KeyLength)
	if _, err := rand.Read(key); err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}
	plaintext := []byte("payload")
	aad := []byte("aad")

	ciphertext, nonce, err := Encrypt(key, plaintext, aad)
	if err != nil {
		t.Fatalf("Encrypt() error = %v", err)
	}

	t.Run("wrong key", func(t *testing.T) {
		wrongKey := make([]byte, KeyLength)
		if _, err := rand.Read(wrongKey); err != nil {
			t.Fatalf("failed to generate key: %v", err)
		}
		if _, err := Decrypt(wrongKey, ciphertext, nonce, aad); !errors.Is(err, ErrDecryptionFailed) {
			t.Errorf("Decrypt() with wrong key error = %v, want ErrDecryptionFailed", err)
		}
	})

	t.Run("tampered ciphertext", func(t *testing.T) {
		for i := range ciphertext {
			tampered := bytes.Clone(ciphertext)
			tampered[i] ^= 0x01
			if _, err := Decrypt(key, tampered, nonce, aad); !errors.Is(err, ErrDecryptionFailed) {
				t.Fatalf("Decrypt() with bit %d flipped error = %v, want ErrDecryptionFailed", i, err)
			}
		}
	})

	t.Run("tampered aad", func(t *testing.T) {
		if _, err := Decrypt(key, ciphertext, nonce, []byte("other")); !errors.Is(err, ErrDecryptionFailed) {
			t.Errorf("Decrypt() with wrong aad error = %v, want ErrDecryptionFailed", err)
		}
	})

	t.Run("short ciphertext", func(t *testing.T) {
		if _, err := Decrypt(key, []byte{0x01}, nonce, aad); !errors.Is(err, ErrCiphertextTooShort) {
			t.Errorf("Decrypt() with short ciphertext error = %v, want ErrCiphertextTooShort", err)
		}
	})

	t.Run("bad key length", func(t *testing.T) {
		if _, err := Decrypt(key[:16], ciphertext, nonce, aad); !errors.Is(err, ErrInvalidKeyLength) {
			t.Errorf("Decrypt() with short key error = %v, want ErrInvalidKeyLength", err)
		}
	})

	t.Run("bad nonce length", func(t *testing.T) {
		if _, err := Decrypt(key, ciphertext, nonce[:8], aad); !errors.Is(err, ErrInvalidNonceLength) {
			t.Errorf("Decrypt() with short nonce error = %v, want ErrInvalidNonceLength", err)
		}
	})
}

func TestSecureWipe(t *testing.T) {
	b := []byte{1, 2, 3, 4}
	SecureWipe(b)
	for i, v := range b {
		if v != 0 {
			t.Errorf("SecureWipe() left byte %d = %d, want 0", i, v)
		}
	}
}
