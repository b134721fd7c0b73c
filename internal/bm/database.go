package bm

import (
	"context"
	"io"
	"time"

	"bm-go/internal/codec"
	"bm-go/internal/database/sqlc"
)

// Database provides an interface for the relational store that holds
// documents, their flattened nodes, the tag catalog and settings.
// Find methods return nil (and no error) when the record does not exist.
type Database interface {
	// Document operations

	CreateDocument(ctx context.Context, id, title string, createdAt time.Time) (*sqlc.Document, error)
	FindDocument(ctx context.Context, id string) (*sqlc.Document, error)

	// ListDocuments returns all documents, newest first.
	ListDocuments(ctx context.Context) ([]*sqlc.Document, error)

	// RenameDocument reports whether a document with the id existed.
	RenameDocument(ctx context.Context, id, title string) (bool, error)

	// DeleteDocument removes the document and, by cascade, all of its nodes.
	DeleteDocument(ctx context.Context, id string) error

	// Node operations

	// ReplaceNodes deletes every row of the document and inserts rows in a
	// single transaction.
	ReplaceNodes(ctx context.Context, docID string, rows []codec.Row) error

	// LoadRows returns the document's rows ordered for codec.Rebuild.
	LoadRows(ctx context.Context, docID string) ([]codec.Row, error)

	// Tag catalog

	CreateTag(ctx context.Context, tag sqlc.Tag) (*sqlc.Tag, error)
	ListTags(ctx context.Context) ([]*sqlc.Tag, error)

	// DeleteTag removes the tag and every reference to it from nodes.
	DeleteTag(ctx context.Context, id string) error

	// Settings

	GetSetting(ctx context.Context, key string) (string, bool, error)
	SetSetting(ctx context.Context, key, value string) error

	// Whole-store operations

	// Snapshot writes a consistent copy of the whole database file to w.
	Snapshot(ctx context.Context, w io.Writer) (int64, error)

	// Replace swaps the contents of the database for the SQLite file read
	// from r. The swap is atomic: on error the old contents remain.
	Replace(ctx context.Context, r io.Reader) error

	// CheckMigrations verifies the schema is at the latest version.
	CheckMigrations() error

	// Close closes the database connection.
	Close() error
}
