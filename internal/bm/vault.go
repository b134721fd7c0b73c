package bm

import "io"

// SnapshotKey is the vault key under which the database snapshot is stored.
const SnapshotKey = "bm_sqlite_db"

// Vault is the durable key->bytes store that holds the database snapshot.
// All operations use io.Reader/io.Writer for streaming.
type Vault interface {
	// Put stores the bytes read from r under key, replacing any previous value.
	// size is the number of bytes that will be read from r.
	Put(key string, r io.Reader, size int64) error

	// Get writes the value stored under key to w. It returns an error
	// wrapping ErrNotFound when the key does not exist.
	Get(key string, w io.Writer) error

	// Exists reports whether a value is stored under key.
	Exists(key string) (bool, error)

	// ValidateSetup verifies that the vault is accessible and properly configured.
	ValidateSetup() error
}
