package app

import "time"

// Operation tracks the CLI command being run. Its ID tags every log line the
// command writes; Status is logged when the app closes.
type Operation struct {
	ID        string
	Operation string
	StartedAt time.Time
	Status    string // "success" or "error"
}

// NewOperation creates an operation started at the given time.
func NewOperation(operation string, startedAt time.Time) *Operation {
	return &Operation{
		ID:        startedAt.UTC().Format("20060102T150405Z"),
		Operation: operation,
		StartedAt: startedAt,
		Status:    "success",
	}
}

// Fail marks the operation as failed.
func (op *Operation) Fail() {
	op.Status = "error"
}

// Failed returns true if Fail was called.
func (op *Operation) Failed() bool {
	return op.Status == "error"
}
