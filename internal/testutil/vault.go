package testutil

import (
	"fmt"
	"io"
	"sync"

	"bm-go/internal/bm"
	"bm-go/internal/vault"
)

// NewTestVault creates a new in-memory vault for testing.
func NewTestVault() *RecordingVault {
	return &RecordingVault{MemoryVault: vault.NewMemoryVault("test-vault")}
}

// RecordingVault wraps a MemoryVault, counting successful Puts and failing
// them on demand.
type RecordingVault struct {
	*vault.MemoryVault

	mu      sync.Mutex
	puts    int
	failPut error
}

func (v *RecordingVault) Put(key string, r io.Reader, size int64) error {
	v.mu.Lock()
	fail := v.failPut
	v.mu.Unlock()
	if fail != nil {
		io.Copy(io.Discard, r)
		return fmt.Errorf("put %s: %w", key, fail)
	}

	if err := v.MemoryVault.Put(key, r, size); err != nil {
		return err
	}
	v.mu.Lock()
	v.puts++
	v.mu.Unlock()
	return nil
}

// Puts returns the number of successful Put calls.
func (v *RecordingVault) Puts() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.puts
}

// FailPuts makes every later Put return err. A nil err restores normal
// behavior.
func (v *RecordingVault) FailPuts(err error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.failPut = err
}

var _ bm.Vault = (*RecordingVault)(nil)
