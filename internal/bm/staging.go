package bm

import "context"

// Candidate is a title/url pair supplied by a capture source.
type Candidate struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}

// StagedProvider is the read side of the staged buffer.
type StagedProvider interface {
	// Pop returns the staged candidates and clears the buffer. Expired or
	// empty buffers return nil.
	Pop(ctx context.Context) ([]Candidate, error)

	// Peek returns the staged candidates without consuming them.
	Peek(ctx context.Context) ([]Candidate, error)
}

// StagedBuffer is a short-lived holding area filled by a capture trigger
// and consumed at most once by UniversalAdd.
type StagedBuffer interface {
	StagedProvider

	// Stage replaces the buffer contents and restarts the expiry window.
	Stage(ctx context.Context, items []Candidate) error

	// Clear drops the buffer contents.
	Clear(ctx context.Context) error
}
