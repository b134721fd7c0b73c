// Package staging holds candidates captured outside an editing session
// until universal add consumes them.
package staging

import (
	"context"
	"fmt"
	"sync"
	"time"

	"bm-go/internal/bm"
)

// DefaultTTL is how long a staged batch can be popped after Stage.
const DefaultTTL = 5 * time.Minute

// Buffer implements bm.StagedBuffer. The latest batch is kept in memory and
// mirrored to a stagingStore; reads try memory first, then the mirror.
// This implementation is safe for concurrent use.
type Buffer struct {
	store stagingStore
	clock bm.Clock
	ttl   time.Duration

	mu  sync.Mutex
	mem *stagedBatch
}

var _ bm.StagedBuffer = (*Buffer)(nil)

// NewMemoryBuffer creates a buffer whose mirror lives in memory.
// A non-positive ttl uses DefaultTTL.
func NewMemoryBuffer(clock bm.Clock, ttl time.Duration) *Buffer {
	return newBuffer(&memoryStore{}, clock, ttl)
}

// NewFileSystemBuffer creates a buffer mirrored to staged.json in dir.
// A non-positive ttl uses DefaultTTL.
func NewFileSystemBuffer(dir string, clock bm.Clock, ttl time.Duration) (*Buffer, error) {
	store, err := newFileStore(dir)
	if err != nil {
		return nil, err
	}
	return newBuffer(store, clock, ttl), nil
}

func newBuffer(store stagingStore, clock bm.Clock, ttl time.Duration) *Buffer {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Buffer{store: store, clock: clock, ttl: ttl}
}

// Stage replaces the buffer contents with items and restarts the expiry
// window. Items without a url are dropped; an empty result clears the buffer.
func (b *Buffer) Stage(ctx context.Context, items []bm.Candidate) error {
	items = normalize(items)

	b.mu.Lock()
	defer b.mu.Unlock()

	if len(items) == 0 {
		return b.clearLocked()
	}

	batch := &stagedBatch{Items: items, ExpiresAt: b.clock.Now().Add(b.ttl)}
	if err := b.store.Save(batch); err != nil {
		return fmt.Errorf("saving staged batch: %w", err)
	}
	b.mem = batch
	return nil
}

// Pop returns the staged candidates and clears the buffer. An expired
// batch is cleared and nil is returned.
func (b *Buffer) Pop(ctx context.Context) ([]bm.Candidate, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	batch, err := b.currentLocked()
	if err != nil {
		return nil, err
	}
	if err := b.clearLocked(); err != nil {
		return nil, err
	}
	if batch == nil {
		return nil, nil
	}
	return batch.Items, nil
}

// Peek returns the staged candidates without consuming them.
func (b *Buffer) Peek(ctx context.Context) ([]bm.Candidate, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	batch, err := b.currentLocked()
	if err != nil || batch == nil {
		return nil, err
	}
	return append([]bm.Candidate(nil), batch.Items...), nil
}

// Clear drops the buffer contents.
func (b *Buffer) Clear(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.clearLocked()
}

// currentLocked returns the live batch from memory, falling back to the
// mirror. Expired batches read as nil.
func (b *Buffer) currentLocked() (*stagedBatch, error) {
	batch := b.mem
	if batch == nil {
		stored, err := b.store.Load()
		if err != nil {
			return nil, fmt.Errorf("loading staged batch: %w", err)
		}
		batch = stored
	}
	if batch == nil || batch.expired(b.clock.Now()) {
		return nil, nil
	}
	return batch, nil
}

func (b *Buffer) clearLocked() error {
	b.mem = nil
	if err := b.store.Clear(); err != nil {
		return fmt.Errorf("clearing staged batch: %w", err)
	}
	return nil
}
