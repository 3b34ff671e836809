// Package crypto provides the cryptographic primitives for vecna.
//
// It implements PBKDF2-HMAC-SHA256 key derivation and AES-256-GCM
// authenticated encryption. Key derivation is deliberately slow so that
// probing a password costs far more than the AEAD trial decryption that
// follows it.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"runtime"

	"golang.org/x/crypto/pbkdf2"
)

const (
	// KeyLength is the length of derived encryption keys in bytes (256 bits).
	KeyLength = 32

	// SaltLength is the length of KDF salts in bytes.
	SaltLength = 16

	// NonceLength is the length of GCM nonces in bytes (96 bits).
	NonceLength = 12

	// DefaultIterations is the default PBKDF2 iteration count.
	DefaultIterations = 200_000

	// MinIterations is the lowest iteration count the vault will accept,
	// so a tampered or misconfigured header cannot weaken derivation.
	MinIterations = 100_000
)

// Sentinel errors returned by crypto functions.
var (
	// ErrInvalidKeyLength indicates the key is not 32 bytes.
	ErrInvalidKeyLength = errors.New("crypto: invalid key length, must be 32 bytes")

	// ErrInvalidNonceLength indicates the nonce is not 12 bytes.
	ErrInvalidNonceLength = errors.New("crypto: invalid nonce length, must be 12 bytes")

	// ErrDecryptionFailed indicates decryption or authentication tag
	// verification failed. Wrong keys and corrupted ciphertexts both
	// surface as this error and cannot be told apart.
	ErrDecryptionFailed = errors.New("crypto: decryption failed, authentication tag verification failed")

	// ErrCiphertextTooShort indicates the ciphertext is shorter than the GCM tag.
	ErrCiphertextTooShort = errors.New("crypto: ciphertext too short")
)

// DeriveKey derives a 256-bit encryption key from a password using
// PBKDF2-HMAC-SHA256. Deterministic: the same password, salt and iteration
// count always yield the same key, which is how a password is verified
// without ever being stored.
//
// The salt should be SaltLength bytes of cryptographically secure random
// data. Iteration counts below MinIterations are raised to it.
func DeriveKey(password, salt []byte, iterations int) []byte {
	if iterations < MinIterations {
		iterations = MinIterations
	}
	return pbkdf2.Key(password, salt, iterations, KeyLength, sha256.New)
}

// GenerateSalt returns SaltLength bytes of cryptographically secure random data.
func GenerateSalt() ([]byte, error) {
	salt := make([]byte, SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("crypto: failed to generate salt: %w", err)
	}
	return salt, nil
}

// Encrypt encrypts plaintext using AES-256-GCM with additional
// authenticated data. A fresh random 12-byte nonce is generated for every
// call; the authentication tag is appended to the ciphertext by GCM.
func Encrypt(key, plaintext, aad []byte) (ciphertext, nonce []byte, err error) {
	if len(key) != KeyLength {
		return nil, nil, ErrInvalidKeyLength
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, nil, fmt.Errorf("crypto: failed to create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, nil, fmt.Errorf("crypto: failed to create GCM: %w", err)
	}

	nonce = make([]byte, NonceLength)
	if _, err := rand.Read(nonce); err != nil {
		return nil, nil, fmt.Errorf("crypto: failed to generate nonce: %w", err)
	}

	ciphertext = gcm.Seal(nil, nonce, plaintext, aad)

	return ciphertext, nonce, nil
}

// Decrypt decrypts ciphertext using AES-256-GCM, verifying the
// authentication tag and the additional authenticated data. Any
// verification failure is reported as ErrDecryptionFailed.
func Decrypt(key, ciphertext, nonce, aad []byte) ([]byte, error) {
	if len(key) != KeyLength {
		return nil, ErrInvalidKeyLength
	}

	if len(nonce) != NonceLength {
		return nil, ErrInvalidNonceLength
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("crypto: failed to create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("crypto: failed to create GCM: %w", err)
	}

	if len(ciphertext) < gcm.Overhead() {
		return nil, ErrCiphertextTooShort
	}

	plaintext, err := gcm.Open(nil, nonce, ciphertext, aad)
	if err != nil {
		return nil, ErrDecryptionFailed
	}

	return plaintext, nil
}

// SecureWipe overwrites a byte slice with zeros in a way that prevents
// compiler optimization from removing the operation.
func SecureWipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
	// runtime.KeepAlive ensures the writes are not optimized away since b
	// is still "in use" after the loop.
	runtime.KeepAlive(b)
}
