package staging

// stagingStore is the durable mirror behind a Buffer. It survives the
// in-memory copy being lost, for example across CLI invocations.
// Concurrency is managed by the caller (Buffer.mu), so stores
// do not need to be safe for concurrent use.
type stagingStore interface {
	// Load returns the stored batch, or nil when nothing is stored.
	Load() (*stagedBatch, error)

	// Save replaces the stored batch.
	Save(b *stagedBatch) error

	// Clear removes the stored batch. Clearing an empty store is not an error.
	Clear() error
}
