package staging

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"bm-go/internal/bm"
	"bm-go/internal/config"
)

// stubClock is a minimal clock for staging tests.
type stubClock struct {
	mu  sync.Mutex
	now time.Time
}

func newStubClock() *stubClock {
	return &stubClock{now: time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)}
}

func (c *stubClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *stubClock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

var tabs = []bm.Candidate{
	{Title: "Go", URL: "https://go.dev"},
	{Title: "SQLite", URL: "https://sqlite.org"},
}

func TestBuffer(t *testing.T) {
	ctx := context.Background()

	buffers := map[string]func(t *testing.T, clock bm.Clock) *Buffer{
		"memory": func(t *testing.T, clock bm.Clock) *Buffer {
			return NewMemoryBuffer(clock, time.Minute)
		},
		"filesystem": func(t *testing.T, clock bm.Clock) *Buffer {
			b, err := NewFileSystemBuffer(t.TempDir(), clock, time.Minute)
			if err != nil {
				t.Fatalf("NewFileSystemBuffer() error = %v", err)
			}
			return b
		},
	}

	for name, newBuf := range buffers {
		t.Run(name, func(t *testing.T) {
			t.Run("pop consumes once", func(t *testing.T) {
				b := newBuf(t, newStubClock())
				if err := b.Stage(ctx, tabs); err != nil {
					t.Fatalf("Stage() error = %v", err)
				}

				got, err := b.Pop(ctx)
				if err != nil {
					t.Fatalf("Pop() error = %v", err)
				}
				if diff := cmp.Diff(tabs, got); diff != "" {
					t.Errorf("Pop() mismatch (-want +got):\n%s", diff)
				}

				got, err = b.Pop(ctx)
				if err != nil {
					t.Fatalf("second Pop() error = %v", err)
				}
				if got != nil {
					t.Errorf("second Pop() = %v, want nil", got)
				}
			})

			t.Run("peek does not consume", func(t *testing.T) {
				b := newBuf(t, newStubClock())
				if err := b.Stage(ctx, tabs); err != nil {
					t.Fatalf("Stage() error = %v", err)
				}
				for i := 0; i < 2; i++ {
					got, err := b.Peek(ctx)
					if err != nil {
						t.Fatalf("Peek() error = %v", err)
					}
					if len(got) != len(tabs) {
						t.Errorf("Peek() call %d returned %d items, want %d", i, len(got), len(tabs))
					}
				}
			})

			t.Run("stage replaces the previous batch", func(t *testing.T) {
				b := newBuf(t, newStubClock())
				if err := b.Stage(ctx, tabs); err != nil {
					t.Fatalf("Stage() error = %v", err)
				}
				next := []bm.Candidate{{Title: "Next", URL: "https://next.example"}}
				if err := b.Stage(ctx, next); err != nil {
					t.Fatalf("Stage() error = %v", err)
				}
				got, err := b.Pop(ctx)
				if err != nil {
					t.Fatalf("Pop() error = %v", err)
				}
				if diff := cmp.Diff(next, got); diff != "" {
					t.Errorf("Pop() mismatch (-want +got):\n%s", diff)
				}
			})

			t.Run("expired batch is dropped", func(t *testing.T) {
				clock := newStubClock()
				b := newBuf(t, clock)
				if err := b.Stage(ctx, tabs); err != nil {
					t.Fatalf("Stage() error = %v", err)
				}

				clock.advance(time.Minute)

				got, err := b.Pop(ctx)
				if err != nil {
					t.Fatalf("Pop() error = %v", err)
				}
				if got != nil {
					t.Errorf("Pop() = %v after expiry, want nil", got)
				}
			})

			t.Run("clear", func(t *testing.T) {
				b := newBuf(t, newStubClock())
				if err := b.Stage(ctx, tabs); err != nil {
					t.Fatalf("Stage() error = %v", err)
				}
				if err := b.Clear(ctx); err != nil {
					t.Fatalf("Clear() error = %v", err)
				}
				got, err := b.Peek(ctx)
				if err != nil {
					t.Fatalf("Peek() error = %v", err)
				}
				if got != nil {
					t.Errorf("Peek() = %v after Clear, want nil", got)
				}
			})
		})
	}
}

func TestBuffer_Normalize(t *testing.T) {
	ctx := context.Background()
	b := NewMemoryBuffer(newStubClock(), 0)

	err := b.Stage(ctx, []bm.Candidate{
		{Title: "No URL"},
		{URL: "  https://untitled.example  "},
		{Title: "Kept", URL: "https://kept.example"},
	})
	if err != nil {
		t.Fatalf("Stage() error = %v", err)
	}

	got, err := b.Pop(ctx)
	if err != nil {
		t.Fatalf("Pop() error = %v", err)
	}
	want := []bm.Candidate{
		{Title: "https://untitled.example", URL: "https://untitled.example"},
		{Title: "Kept", URL: "https://kept.example"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Pop() mismatch (-want +got):\n%s", diff)
	}
}

func TestBuffer_EmptyStageClears(t *testing.T) {
	ctx := context.Background()
	b := NewMemoryBuffer(newStubClock(), 0)
	if err := b.Stage(ctx, tabs); err != nil {
		t.Fatalf("Stage() error = %v", err)
	}
	if err := b.Stage(ctx, []bm.Candidate{{Title: "blank"}}); err != nil {
		t.Fatalf("Stage() error = %v", err)
	}
	got, err := b.Peek(ctx)
	if err != nil {
		t.Fatalf("Peek() error = %v", err)
	}
	if got != nil {
		t.Errorf("Peek() = %v, want nil", got)
	}
}

func TestFileSystemBuffer_Mirror(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	clock := newStubClock()

	first, err := NewFileSystemBuffer(dir, clock, time.Minute)
	if err != nil {
		t.Fatalf("NewFileSystemBuffer() error = %v", err)
	}
	if err := first.Stage(ctx, tabs); err != nil {
		t.Fatalf("Stage() error = %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, stagedFile)); err != nil {
		t.Fatalf("mirror file missing: %v", err)
	}

	// A second process sees the batch through the mirror.
	second, err := NewFileSystemBuffer(dir, clock, time.Minute)
	if err != nil {
		t.Fatalf("NewFileSystemBuffer() error = %v", err)
	}
	got, err := second.Pop(ctx)
	if err != nil {
		t.Fatalf("Pop() error = %v", err)
	}
	if diff := cmp.Diff(tabs, got); diff != "" {
		t.Errorf("Pop() mismatch (-want +got):\n%s", diff)
	}

	if _, err := os.Stat(filepath.Join(dir, stagedFile)); !os.IsNotExist(err) {
		t.Errorf("mirror file still present after Pop, stat error = %v", err)
	}
}

func TestFileSystemBuffer_CorruptMirror(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, stagedFile), []byte("{"), 0600); err != nil {
		t.Fatal(err)
	}
	b, err := NewFileSystemBuffer(dir, newStubClock(), time.Minute)
	if err != nil {
		t.Fatalf("NewFileSystemBuffer() error = %v", err)
	}
	if _, err := b.Peek(context.Background()); err == nil {
		t.Error("Peek() expected error for a corrupt mirror")
	}
}

func TestNewBufferFromConfig(t *testing.T) {
	clock := newStubClock()

	t.Run("memory", func(t *testing.T) {
		b, err := NewBufferFromConfig(config.StagingConfig{Type: "memory"}, clock)
		if err != nil {
			t.Fatalf("NewBufferFromConfig() error = %v", err)
		}
		if b.ttl != DefaultTTL {
			t.Errorf("ttl = %v, want %v", b.ttl, DefaultTTL)
		}
	})

	t.Run("filesystem", func(t *testing.T) {
		cfg := config.StagingConfig{
			Type:       "filesystem",
			StagingDir: filepath.Join(t.TempDir(), "staging"),
			TTL:        config.Duration{Duration: time.Minute},
		}
		b, err := NewBufferFromConfig(cfg, clock)
		if err != nil {
			t.Fatalf("NewBufferFromConfig() error = %v", err)
		}
		if b.ttl != time.Minute {
			t.Errorf("ttl = %v, want %v", b.ttl, time.Minute)
		}
		if _, err := os.Stat(cfg.StagingDir); err != nil {
			t.Errorf("staging dir not created: %v", err)
		}
	})

	t.Run("filesystem without dir", func(t *testing.T) {
		if _, err := NewBufferFromConfig(config.StagingConfig{Type: "filesystem"}, clock); err == nil {
			t.Error("NewBufferFromConfig() expected error without staging_dir")
		}
	})

	t.Run("unknown type", func(t *testing.T) {
		if _, err := NewBufferFromConfig(config.StagingConfig{Type: "redis"}, clock); err == nil {
			t.Error("NewBufferFromConfig() expected error for unknown type")
		}
	})
}
