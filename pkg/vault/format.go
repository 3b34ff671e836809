package vault

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/vecna-vault/vecna/pkg/crypto"
)

// Magic number for vault container files: "VECNAVLT"
var MagicNumber = [8]byte{'V', 'E', 'C', 'N', 'A', 'V', 'L', 'T'}

// FormatVersion is the current container format version.
const FormatVersion = 1

// KDFAlgorithm identifies the key derivation in use. Only PBKDF2-HMAC-SHA256
// exists today; the field keeps the header self-describing for migrations.
const KDFAlgorithm = "pbkdf2-sha256"

// Container codec errors. These are internal to the engine: Unlock and the
// gated operations collapse them into ErrAuthFailed so a caller probing the
// vault cannot distinguish a malformed header from a tag mismatch.
var (
	errInvalidMagic       = errors.New("vault: invalid container: magic number mismatch")
	errUnsupportedVersion = errors.New("vault: unsupported container format version")
	errHeaderCorrupted    = errors.New("vault: container header corrupted")
)

// maxHeaderLen bounds the length-prefixed header read.
const maxHeaderLen = 1024 * 1024

// KDFParams describes how the encryption key is derived from the master
// password. Persisted in the clear; none of it is secret.
type KDFParams struct {
	Algorithm  string `json:"algorithm"`
	Iterations int    `json:"iterations"`
	Salt       []byte `json:"salt"`
}

// Header is the unencrypted container header. The nonce changes on every
// seal; reusing one under the same key would void the AEAD guarantees.
type Header struct {
	Version int       `json:"version"`
	KDF     KDFParams `json:"kdf"`
	Nonce   []byte    `json:"nonce"`
}

// aad returns the additional authenticated data for the container: the
// format version and KDF parameters. The nonce is omitted because GCM
// authenticates it implicitly. json.Marshal of identical struct values is
// byte-stable, so seal and open compute the same bytes independently.
func (h Header) aad() ([]byte, error) {
	aad, err := json.Marshal(struct {
		Version int       `json:"version"`
		KDF     KDFParams `json:"kdf"`
	}{h.Version, h.KDF})
	if err != nil {
		return nil, fmt.Errorf("vault: failed to marshal aad: %w", err)
	}
	return aad, nil
}

// Container is a parsed encrypted vault file: the header plus the AEAD
// ciphertext (authentication tag included).
type Container struct {
	Header     Header
	Ciphertext []byte
}

// sealContainer serializes a record store and encrypts it under key with a
// fresh random nonce, carrying the KDF parameters forward into the new
// header. The version and KDF parameters are bound as AEAD associated
// data, so editing them in the file fails authentication.
func sealContainer(store *RecordStore, key []byte, kdf KDFParams) (*Container, error) {
	plaintext, err := json.Marshal(store)
	if err != nil {
		return nil, fmt.Errorf("vault: failed to serialize records: %w", err)
	}
	defer crypto.SecureWipe(plaintext)

	header := Header{Version: FormatVersion, KDF: kdf}
	aad, err := header.aad()
	if err != nil {
		return nil, err
	}

	ciphertext, nonce, err := crypto.Encrypt(key, plaintext, aad)
	if err != nil {
		return nil, fmt.Errorf("vault: failed to encrypt records: %w", err)
	}
	header.Nonce = nonce

	return &Container{Header: header, Ciphertext: ciphertext}, nil
}

// openContainer verifies and decrypts a container into a record store.
// Every failure mode (wrong key, flipped bits, malformed payload) surfaces
// as an error the engine maps to the single ErrAuthFailed.
func openContainer(c *Container, key []byte) (*RecordStore, error) {
	aad, err := c.Header.aad()
	if err != nil {
		return nil, err
	}

	plaintext, err := crypto.Decrypt(key, c.Ciphertext, c.Header.Nonce, aad)
	if err != nil {
		return nil, err
	}
	defer crypto.SecureWipe(plaintext)

	var store RecordStore
	if err := json.Unmarshal(plaintext, &store); err != nil {
		return nil, fmt.Errorf("vault: failed to decode records: %w", err)
	}
	store.normalize()
	return &store, nil
}

// WriteTo writes the container in its on-disk framing: magic, uint32
// big-endian header length, header JSON, ciphertext.
func (c *Container) WriteTo(w io.Writer) (int64, error) {
	headerBytes, err := json.Marshal(c.Header)
	if err != nil {
		return 0, fmt.Errorf("vault: failed to marshal header: %w", err)
	}

	var n int64

	written, err := w.Write(MagicNumber[:])
	n += int64(written)
	if err != nil {
		return n, fmt.Errorf("vault: failed to write magic number: %w", err)
	}

	if err := binary.Write(w, binary.BigEndian, uint32(len(headerBytes))); err != nil {
		return n, fmt.Errorf("vault: failed to write header length: %w", err)
	}
	n += 4

	written, err = w.Write(headerBytes)
	n += int64(written)
	if err != nil {
		return n, fmt.Errorf("vault: failed to write header: %w", err)
	}

	written, err = w.Write(c.Ciphertext)
	n += int64(written)
	if err != nil {
		return n, fmt.Errorf("vault: failed to write ciphertext: %w", err)
	}

	return n, nil
}

// Bytes returns the container in its on-disk framing.
func (c *Container) Bytes() ([]byte, error) {
	var buf bytes.Buffer
	if _, err := c.WriteTo(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// truncated reports whether a read failed because the data ran out, as
// opposed to the medium failing. Truncation is structural damage; any other
// read error is a storage problem and must keep its identity.
func truncated(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF)
}

// ReadContainer parses the on-disk framing. It validates only structure,
// never authenticity: that is the codec's decrypt step.
func ReadContainer(r io.Reader) (*Container, error) {
	var magic [8]byte
	if _, err := io.ReadFull(r, magic[:]); err != nil {
		if truncated(err) {
			return nil, fmt.Errorf("%w: %v", errInvalidMagic, err)
		}
		return nil, fmt.Errorf("vault: failed to read container: %w", err)
	}
	if magic != MagicNumber {
		return nil, errInvalidMagic
	}

	var headerLen uint32
	if err := binary.Read(r, binary.BigEndian, &headerLen); err != nil {
		if truncated(err) {
			return nil, fmt.Errorf("%w: %v", errHeaderCorrupted, err)
		}
		return nil, fmt.Errorf("vault: failed to read container: %w", err)
	}
	if headerLen > maxHeaderLen {
		return nil, errHeaderCorrupted
	}

	headerBytes := make([]byte, headerLen)
	if _, err := io.ReadFull(r, headerBytes); err != nil {
		if truncated(err) {
			return nil, fmt.Errorf("%w: %v", errHeaderCorrupted, err)
		}
		return nil, fmt.Errorf("vault: failed to read container: %w", err)
	}

	var header Header
	if err := json.Unmarshal(headerBytes, &header); err != nil {
		return nil, fmt.Errorf("%w: %v", errHeaderCorrupted, err)
	}
	if header.Version > FormatVersion {
		return nil, fmt.Errorf("%w: got %d, max supported %d",
			errUnsupportedVersion, header.Version, FormatVersion)
	}

	ciphertext, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("vault: failed to read ciphertext: %w", err)
	}

	return &Container{Header: header, Ciphertext: ciphertext}, nil
}

// readContainerFile reads and parses the container at path.
func readContainerFile(path string) (*Container, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrVaultNotFound
		}
		return nil, fmt.Errorf("vault: failed to open container: %w", err)
	}
	defer f.Close()

	return ReadContainer(f)
}

// atomicWriteFile persists data by writing a temporary file in the target
// directory, flushing it to the medium, and renaming it into place. A crash
// at any point leaves either the old file or the new file, never a mix.
func atomicWriteFile(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".vecna-*")
	if err != nil {
		return fmt.Errorf("vault: failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() {
		tmp.Close()
		os.Remove(tmpPath)
	}()

	if err := tmp.Chmod(perm); err != nil {
		return fmt.Errorf("vault: failed to set permissions: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		return fmt.Errorf("vault: failed to write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("vault: failed to sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("vault: failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("vault: failed to replace container: %w", err)
	}
	return nil
}
