package testutil

import (
	"bm-go/internal/bm"
	"bm-go/internal/staging"
)

// NewTestBuffer creates an in-memory staged buffer with the default TTL.
func NewTestBuffer(clock bm.Clock) *staging.Buffer {
	return staging.NewMemoryBuffer(clock, staging.DefaultTTL)
}
