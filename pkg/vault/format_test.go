package vault

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/vecna-vault/vecna/pkg/crypto"
)

func testKDF(t *testing.T) (KDFParams, []byte) {
	t.Helper()
	salt, err := crypto.GenerateSalt()
	if err != nil {
		t.Fatalf("GenerateSalt() error = %v", err)
	}
	kdf := KDFParams{
		Algorithm:  KDFAlgorithm,
		Iterations: crypto.MinIterations,
		Salt:       salt,
	}
	key := crypto.DeriveKey([]byte("correct horse"), salt, kdf.Iterations)
	return kdf, key
}

func testStore(t *testing.T) *RecordStore {
	t.Helper()
	store := NewRecordStore()
	err := store.AddCredential(CredentialRecord{
		Name:     "github",
		Username: "octocat",
		Password: "hunter2",
		Tags:     []string{"work"},
	}, time.Now().UTC())
	if err != nil {
		t.Fatalf("AddCredential() error = %v", err)
	}
	err = store.AddAlias(AliasRecord{
		Name:    "deploy",
		Command: "ssh prod ./deploy.sh",
	}, time.Now().UTC())
	if err != nil {
		t.Fatalf("AddAlias() error = %v", err)
	}
	return store
}

func TestContainerRoundTrip(t *testing.T) {
	kdf, key := testKDF(t)
	store := testStore(t)

	container, err := sealContainer(store, key, kdf)
	if err != nil {
		t.Fatalf("sealContainer() error = %v", err)
	}

	data, err := container.Bytes()
	if err != nil {
		t.Fatalf("Bytes() error = %v", err)
	}

	parsed, err := ReadContainer(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("ReadContainer() error = %v", err)
	}
	if parsed.Header.Version != FormatVersion {
		t.Errorf("Version = %d, want %d", parsed.Header.Version, FormatVersion)
	}
	if parsed.Header.KDF.Algorithm != KDFAlgorithm {
		t.Errorf("Algorithm = %q, want %q", parsed.Header.KDF.Algorithm, KDFAlgorithm)
	}
	if parsed.Header.KDF.Iterations != kdf.Iterations {
		t.Errorf("Iterations = %d, want %d", parsed.Header.KDF.Iterations, kdf.Iterations)
	}

	got, err := openContainer(parsed, key)
	if err != nil {
		t.Fatalf("openContainer() error = %v", err)
	}
	rec, err := got.GetCredential("github")
	if err != nil {
		t.Fatalf("GetCredential() error = %v", err)
	}
	if rec.Username != "octocat" || rec.Password != "hunter2" {
		t.Errorf("credential = %q/%q, want octocat/hunter2", rec.Username, rec.Password)
	}
	if _, err := got.GetAlias("deploy"); err != nil {
		t.Errorf("GetAlias() error = %v", err)
	}
}

func TestFreshNoncePerSeal(t *testing.T) {
	kdf, key := testKDF(t)
	store := testStore(t)

	c1, err := sealContainer(store, key, kdf)
	if err != nil {
		t.Fatalf("sealContainer() error = %v", err)
	}
	c2, err := sealContainer(store, key, kdf)
	if err != nil {
		t.Fatalf("sealContainer() error = %v", err)
	}
	if bytes.Equal(c1.Header.Nonce, c2.Header.Nonce) {
		t.Error("two seals produced the same nonce")
	}
	if bytes.Equal(c1.Ciphertext, c2.Ciphertext) {
		t.Error("two seals produced the same ciphertext")
	}
}

func TestReadContainerRejectsBadMagic(t *testing.T) {
	kdf, key := testKDF(t)
	container, err := sealContainer(testStore(t), key, kdf)
	if err != nil {
		t.Fatalf("sealContainer() error = %v", err)
	}
	data, err := container.Bytes()
	if err != nil {
		t.Fatalf("Bytes() error = %v", err)
	}

	data[0] ^= 0xFF
	if _, err := ReadContainer(bytes.NewReader(data)); !errors.Is(err, errInvalidMagic) {
		t.Errorf("ReadContainer() error = %v, want errInvalidMagic", err)
	}
}

func TestReadContainerRejectsTruncation(t *testing.T) {
	kdf, key := testKDF(t)
	container, err := sealContainer(testStore(t), key, kdf)
	if err != nil {
		t.Fatalf("sealContainer() error = %v", err)
	}
	data, err := container.Bytes()
	if err != nil {
		t.Fatalf("Bytes() error = %v", err)
	}

	// Cut inside the header region.
	if _, err := ReadContainer(bytes.NewReader(data[:20])); err == nil {
		t.Error("ReadContainer() accepted a truncated header")
	}
}

func TestReadContainerRejectsFutureVersion(t *testing.T) {
	kdf, key := testKDF(t)
	container, err := sealContainer(testStore(t), key, kdf)
	if err != nil {
		t.Fatalf("sealContainer() error = %v", err)
	}
	container.Header.Version = FormatVersion + 1
	data, err := container.Bytes()
	if err != nil {
		t.Fatalf("Bytes() error = %v", err)
	}

	if _, err := ReadContainer(bytes.NewReader(data)); !errors.Is(err, errUnsupportedVersion) {
		t.Errorf("ReadContainer() error = %v, want errUnsupportedVersion", err)
	}
}

func TestOpenContainerRejectsTamperedCiphertext(t *testing.T) {
	kdf, key := testKDF(t)
	container, err := sealContainer(testStore(t), key, kdf)
	if err != nil {
		t.Fatalf("sealContainer() error = %v", err)
	}

	container.Ciphertext[len(container.Ciphertext)/2] ^= 0x01
	if _, err := openContainer(container, key); !errors.Is(err, crypto.ErrDecryptionFailed) {
		t.Errorf("openContainer() error = %v, want ErrDecryptionFailed", err)
	}
}

func TestOpenContainerRejectsTamperedHeader(t *testing.T) {
	kdf, key := testKDF(t)
	container, err := sealContainer(testStore(t), key, kdf)
	if err != nil {
		t.Fatalf("sealContainer() error = %v", err)
	}

	// Iterations are bound as associated data, so lowering them in the
	// header must break authentication even though decryption would
	// otherwise use the original key.
	container.Header.KDF.Iterations--
	if _, err := openContainer(container, key); !errors.Is(err, crypto.ErrDecryptionFailed) {
		t.Errorf("openContainer() error = %v, want ErrDecryptionFailed", err)
	}
}

func TestOpenContainerRejectsWrongKey(t *testing.T) {
	kdf, key := testKDF(t)
	container, err := sealContainer(testStore(t), key, kdf)
	if err != nil {
		t.Fatalf("sealContainer() error = %v", err)
	}

	wrong := crypto.DeriveKey([]byte("incorrect horse"), kdf.Salt, kdf.Iterations)
	if _, err := openContainer(container, wrong); !errors.Is(err, crypto.ErrDecryptionFailed) {
		t.Errorf("openContainer() error = %v, want ErrDecryptionFailed", err)
	}
}
