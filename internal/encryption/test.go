package encryption

import (
	"bytes"
	"fmt"
	"io"

	"bm-go/internal/bm"
)

// testMarker prefixes every payload sealed by TestEncryptor.
var testMarker = []byte("BMENC\x00\x00\x00")

// TestEncryptor is a keyless Encryptor for tests and `type = "test"`
// configs. Sealed exports are the payload behind testMarker, so they never
// pass for a raw database. After Setup, Unlock checks the passphrase.
type TestEncryptor struct {
	passphrase string
}

var _ bm.Encryptor = (*TestEncryptor)(nil)

func NewTestEncryptor() *TestEncryptor {
	return &TestEncryptor{}
}

// Setup records the passphrase later required by Unlock.
func (e *TestEncryptor) Setup(passphrase string) error {
	if passphrase == "" {
		return fmt.Errorf("passphrase is required")
	}
	e.passphrase = passphrase
	return nil
}

func (e *TestEncryptor) IsConfigured() bool { return true }

func (e *TestEncryptor) Encrypt(r io.Reader, w io.Writer) error {
	if _, err := io.Copy(w, io.MultiReader(bytes.NewReader(testMarker), r)); err != nil {
		return fmt.Errorf("sealing payload: %w", err)
	}
	return nil
}

func (e *TestEncryptor) Unlock(passphrase string) (bm.DecryptionContext, error) {
	if e.passphrase != "" && passphrase != e.passphrase {
		return nil, fmt.Errorf("wrong passphrase")
	}
	return testDecrypter{}, nil
}

// testDecrypter opens payloads sealed by TestEncryptor.
type testDecrypter struct{}

func (testDecrypter) Decrypt(r io.Reader, w io.Writer) error {
	marker := make([]byte, len(testMarker))
	if _, err := io.ReadFull(r, marker); err != nil {
		return fmt.Errorf("reading marker: %w", err)
	}
	if !bytes.Equal(marker, testMarker) {
		return fmt.Errorf("payload was not sealed by the test encryptor")
	}
	if _, err := io.Copy(w, r); err != nil {
		return fmt.Errorf("opening payload: %w", err)
	}
	return nil
}
