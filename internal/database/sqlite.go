package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"bm-go/internal/bm"
	"bm-go/internal/codec"
	"bm-go/internal/database/migrations"
	"bm-go/internal/database/sqlc"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

// tables lists every application table in foreign-key order: parents first.
var tables = []string{"documents", "settings", "tags", "nodes", "node_tags"}

// SQLiteDatabase implements the Database interface using SQLite.
type SQLiteDatabase struct {
	db      *sql.DB
	queries *sqlc.Queries
	path    string
}

// NewSQLiteDatabase opens the database at path and migrates it to the
// latest schema. path can be a file path or ":memory:".
func NewSQLiteDatabase(path string) (*SQLiteDatabase, error) {
	db, err := OpenConnection(path)
	if err != nil {
		return nil, err
	}

	if err := migrations.MigrateUp(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating database: %w", err)
	}

	return &SQLiteDatabase{
		db:      db,
		queries: sqlc.New(db),
		path:    path,
	}, nil
}

// NewSQLiteDatabaseFromDB wraps an existing database connection.
// The caller is responsible for ensuring the connection is properly configured.
func NewSQLiteDatabaseFromDB(db *sql.DB) *SQLiteDatabase {
	return &SQLiteDatabase{
		db:      db,
		queries: sqlc.New(db),
		path:    "",
	}
}

// OpenConnection opens and configures a SQLite database connection.
// This is exported for use in tools and tests that need a properly configured SQLite connection.
// path can be a file path or ":memory:" for in-memory database.
func OpenConnection(path string) (*sql.DB, error) {
	// Foreign keys are off by default in SQLite and the pragma is
	// per-connection, so it goes in the DSN.
	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Every connection to ":memory:" is a separate database.
	if path == MemoryPath {
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return db, nil
}

// Document operations

func (s *SQLiteDatabase) CreateDocument(ctx context.Context, id, title string, createdAt time.Time) (*sqlc.Document, error) {
	doc, err := s.queries.InsertDocument(ctx, sqlc.InsertDocumentParams{
		ID:        id,
		Title:     title,
		CreatedAt: createdAt,
	})
	if err != nil {
		return nil, fmt.Errorf("inserting document: %w", err)
	}
	return &doc, nil
}

func (s *SQLiteDatabase) FindDocument(ctx context.Context, id string) (*sqlc.Document, error) {
	doc, err := s.queries.GetDocumentByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("finding document: %w", err)
	}
	return &doc, nil
}

func (s *SQLiteDatabase) ListDocuments(ctx context.Context) ([]*sqlc.Document, error) {
	docs, err := s.queries.ListDocuments(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing documents: %w", err)
	}

	result := make([]*sqlc.Document, len(docs))
	for i := range docs {
		result[i] = &docs[i]
	}
	return result, nil
}

func (s *SQLiteDatabase) RenameDocument(ctx context.Context, id, title string) (bool, error) {
	n, err := s.queries.UpdateDocumentTitle(ctx, sqlc.UpdateDocumentTitleParams{
		Title: title,
		ID:    id,
	})
	if err != nil {
		return false, fmt.Errorf("renaming document: %w", err)
	}
	return n > 0, nil
}

func (s *SQLiteDatabase) DeleteDocument(ctx context.Context, id string) error {
	if err := s.queries.DeleteDocumentByID(ctx, id); err != nil {
		return fmt.Errorf("deleting document: %w", err)
	}
	return nil
}

// Node operations

// ReplaceNodes atomically swaps the document's row-set: every existing row
// is deleted, then rows and their tag links are inserted.
func (s *SQLiteDatabase) ReplaceNodes(ctx context.Context, docID string, rows []codec.Row) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	qtx := s.queries.WithTx(tx)

	// node_tags rows go with their nodes by cascade.
	if err := qtx.DeleteNodesByDocID(ctx, docID); err != nil {
		return fmt.Errorf("deleting nodes: %w", err)
	}

	for _, r := range rows {
		err := qtx.InsertNode(ctx, sqlc.InsertNodeParams{
			ID:          r.ID,
			DocID:       docID,
			ParentID:    r.ParentID,
			Title:       r.Title,
			Url:         r.URL,
			OrderIndex:  r.OrderIndex,
			OfflineID:   r.OfflineID,
			OfflinePath: r.OfflinePath,
			Mime:        r.MIME,
			Comment:     r.Comment,
		})
		if err != nil {
			return fmt.Errorf("inserting node %s: %w", r.ID, err)
		}

		for pos, tagID := range r.Tags {
			err := qtx.InsertNodeTag(ctx, sqlc.InsertNodeTagParams{
				DocID:    docID,
				NodeID:   r.ID,
				TagID:    tagID,
				Position: int64(pos),
			})
			if err != nil {
				return fmt.Errorf("tagging node %s: %w", r.ID, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// LoadRows returns the document's rows ordered top-level first, then by
// parent and sibling position.
func (s *SQLiteDatabase) LoadRows(ctx context.Context, docID string) ([]codec.Row, error) {
	nodes, err := s.queries.GetNodesByDocID(ctx, docID)
	if err != nil {
		return nil, fmt.Errorf("loading nodes: %w", err)
	}
	links, err := s.queries.GetNodeTagsByDocID(ctx, docID)
	if err != nil {
		return nil, fmt.Errorf("loading node tags: %w", err)
	}

	tags := make(map[string][]string)
	for _, l := range links {
		tags[l.NodeID] = append(tags[l.NodeID], l.TagID)
	}

	rows := make([]codec.Row, len(nodes))
	for i, n := range nodes {
		rows[i] = codec.Row{
			ID:          n.ID,
			DocID:       n.DocID,
			ParentID:    n.ParentID,
			Title:       n.Title,
			URL:         n.Url,
			OrderIndex:  n.OrderIndex,
			OfflineID:   n.OfflineID,
			OfflinePath: n.OfflinePath,
			MIME:        n.Mime,
			Comment:     n.Comment,
			Tags:        tags[n.ID],
		}
	}
	return rows, nil
}

// Tag catalog

func (s *SQLiteDatabase) CreateTag(ctx context.Context, tag sqlc.Tag) (*sqlc.Tag, error) {
	created, err := s.queries.InsertTag(ctx, sqlc.InsertTagParams{
		ID:          tag.ID,
		Name:        tag.Name,
		Color:       tag.Color,
		Description: tag.Description,
		CreatedAt:   tag.CreatedAt,
		UpdatedAt:   tag.UpdatedAt,
	})
	if err != nil {
		return nil, fmt.Errorf("inserting tag: %w", err)
	}
	return &created, nil
}

func (s *SQLiteDatabase) ListTags(ctx context.Context) ([]*sqlc.Tag, error) {
	tags, err := s.queries.ListTags(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing tags: %w", err)
	}

	result := make([]*sqlc.Tag, len(tags))
	for i := range tags {
		result[i] = &tags[i]
	}
	return result, nil
}

func (s *SQLiteDatabase) DeleteTag(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	qtx := s.queries.WithTx(tx)
	if err := qtx.DeleteNodeTagsByTagID(ctx, id); err != nil {
		return fmt.Errorf("removing tag from nodes: %w", err)
	}
	if err := qtx.DeleteTagByID(ctx, id); err != nil {
		return fmt.Errorf("deleting tag: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// Settings

func (s *SQLiteDatabase) GetSetting(ctx context.Context, key string) (string, bool, error) {
	value, err := s.queries.GetSetting(ctx, key)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("reading setting: %w", err)
	}
	return value, true, nil
}

func (s *SQLiteDatabase) SetSetting(ctx context.Context, key, value string) error {
	if err := s.queries.UpsertSetting(ctx, sqlc.UpsertSettingParams{Key: key, Value: value}); err != nil {
		return fmt.Errorf("writing setting: %w", err)
	}
	return nil
}

// Whole-store operations

// Path returns the database file path (or ":memory:" for in-memory databases).
func (s *SQLiteDatabase) Path() string {
	return s.path
}

// CheckMigrations verifies the database schema is up-to-date.
func (s *SQLiteDatabase) CheckMigrations() error {
	return migrations.CheckDBMigrationStatus(s.db)
}

// BackupTo creates a complete copy of the database at destPath using VACUUM INTO.
// destPath must not exist.
func (s *SQLiteDatabase) BackupTo(ctx context.Context, destPath string) error {
	_, err := s.db.ExecContext(ctx, "VACUUM INTO ?", destPath)
	if err != nil {
		return fmt.Errorf("backing up database: %w", err)
	}
	return nil
}

// Snapshot writes a copy of the database file to w.
func (s *SQLiteDatabase) Snapshot(ctx context.Context, w io.Writer) (int64, error) {
	dir, err := os.MkdirTemp("", "bm-snapshot-*")
	if err != nil {
		return 0, fmt.Errorf("creating temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	path := filepath.Join(dir, "snapshot.db")
	if err := s.BackupTo(ctx, path); err != nil {
		return 0, err
	}

	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("opening snapshot: %w", err)
	}
	defer f.Close()

	n, err := io.Copy(w, f)
	if err != nil {
		return n, fmt.Errorf("copying snapshot: %w", err)
	}
	return n, nil
}

// Replace swaps every table's contents for those of the SQLite file read
// from r. The incoming file is migrated to the current schema first, then
// copied over inside one transaction, so a failure leaves the old contents.
func (s *SQLiteDatabase) Replace(ctx context.Context, r io.Reader) error {
	dir, err := os.MkdirTemp("", "bm-import-*")
	if err != nil {
		return fmt.Errorf("creating temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	path := filepath.Join(dir, "import.db")
	if err := writeFile(path, r); err != nil {
		return err
	}

	incoming, err := OpenConnection(path)
	if err != nil {
		return err
	}
	if err := migrations.MigrateUp(incoming); err != nil {
		incoming.Close()
		return fmt.Errorf("migrating incoming database: %w", err)
	}
	if err := incoming.Close(); err != nil {
		return fmt.Errorf("closing incoming database: %w", err)
	}

	// ATTACH is per connection, so pin one for the whole copy.
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("acquiring connection: %w", err)
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, "ATTACH DATABASE ? AS incoming", path); err != nil {
		return fmt.Errorf("attaching incoming database: %w", err)
	}
	defer conn.ExecContext(context.Background(), "DETACH DATABASE incoming")

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	for i := len(tables) - 1; i >= 0; i-- {
		if _, err := tx.ExecContext(ctx, "DELETE FROM main."+tables[i]); err != nil {
			return fmt.Errorf("clearing %s: %w", tables[i], err)
		}
	}
	for _, t := range tables {
		if _, err := tx.ExecContext(ctx, "INSERT INTO main."+t+" SELECT * FROM incoming."+t); err != nil {
			return fmt.Errorf("copying %s: %w", t, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteDatabase) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func writeFile(path string, r io.Reader) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", path, err)
	}
	return nil
}

// Compile-time check that SQLiteDatabase implements bm.Database interface
var _ bm.Database = (*SQLiteDatabase)(nil)
