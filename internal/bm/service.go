package bm

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"bm-go/internal/codec"
	"bm-go/internal/database/sqlc"
	"bm-go/internal/model"
	"bm-go/internal/tree"
)

// DefaultDocumentTitle is used when a document is created or renamed with a
// blank title.
const DefaultDocumentTitle = "Untitled"

// BMService is the orchestration layer that coordinates the database, the
// vault and the staged buffer to perform the operations needed by the CLI.
type BMService struct {
	database  Database
	vault     Vault
	staged    StagedBuffer
	encryptor Encryptor
	logger    Logger
	clock     Clock
	idgen     IDGenerator

	// writeMu serializes every write to the database and the vault so a
	// snapshot never interleaves with another commit.
	writeMu sync.Mutex
	status  *statusBroadcaster
}

// NewBMService creates a new BMService with the provided dependencies.
// staged and encryptor may be nil when the caller does not need them.
func NewBMService(database Database, vault Vault, staged StagedBuffer, encryptor Encryptor, logger Logger, clock Clock, idgen IDGenerator) *BMService {
	return &BMService{
		database:  database,
		vault:     vault,
		staged:    staged,
		encryptor: encryptor,
		logger:    logger,
		clock:     clock,
		idgen:     idgen,
		status:    newStatusBroadcaster(Backend),
	}
}

// CreateDocument creates an empty document and persists it.
func (s *BMService) CreateDocument(ctx context.Context, title string) (*model.Document, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	row, err := s.database.CreateDocument(ctx, s.idgen.New(), normalizeTitle(title), s.clock.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("creating document: %w", err)
	}
	if err := s.persist(ctx); err != nil {
		return nil, err
	}

	s.logger.Info("document created", "doc", row.ID, "title", row.Title)
	return toDocument(row, nil), nil
}

// RenameDocument changes a document's title. It returns nil when the
// document does not exist.
func (s *BMService) RenameDocument(ctx context.Context, id, title string) (*model.Document, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	found, err := s.database.RenameDocument(ctx, id, normalizeTitle(title))
	if err != nil {
		return nil, fmt.Errorf("renaming document: %w", err)
	}
	if !found {
		return nil, nil
	}
	if err := s.persist(ctx); err != nil {
		return nil, err
	}
	return s.loadDocument(ctx, id)
}

// DeleteDocument removes a document and all of its nodes.
func (s *BMService) DeleteDocument(ctx context.Context, id string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := s.database.DeleteDocument(ctx, id); err != nil {
		return fmt.Errorf("deleting document: %w", err)
	}
	if err := s.persist(ctx); err != nil {
		return err
	}

	s.logger.Info("document deleted", "doc", id)
	return nil
}

// ListDocuments returns every document, newest first, without nodes.
func (s *BMService) ListDocuments(ctx context.Context) ([]*model.Document, error) {
	rows, err := s.database.ListDocuments(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing documents: %w", err)
	}
	docs := make([]*model.Document, len(rows))
	for i, row := range rows {
		docs[i] = toDocument(row, nil)
	}
	return docs, nil
}

// LoadDocument returns the document with its forest, or nil when it does
// not exist.
func (s *BMService) LoadDocument(ctx context.Context, id string) (*model.Document, error) {
	return s.loadDocument(ctx, id)
}

// Commit persists forest as the complete contents of the document: the
// document's rows are replaced, the database snapshot is exported to the
// vault and the status channel advances. It returns the document as
// reloaded from the store, or nil when the document no longer exists.
//
// When the rows are stored but the export fails, Commit returns the
// reloaded document together with an error wrapping ErrNotPersisted.
func (s *BMService) Commit(ctx context.Context, docID string, forest []model.TreeNode) (*model.Document, error) {
	if err := tree.Validate(forest); err != nil {
		return nil, fmt.Errorf("validating forest: %w", err)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	row, err := s.database.FindDocument(ctx, docID)
	if err != nil {
		return nil, fmt.Errorf("finding document: %w", err)
	}
	if row == nil {
		s.logger.Warn("commit for missing document dropped", "doc", docID)
		return nil, nil
	}

	rows := codec.Flatten(docID, forest)
	if err := s.database.ReplaceNodes(ctx, docID, rows); err != nil {
		return nil, fmt.Errorf("replacing nodes: %w", err)
	}
	if perr := s.persist(ctx); perr != nil {
		doc, err := s.loadDocument(ctx, docID)
		if err != nil {
			return nil, errors.Join(perr, err)
		}
		return doc, perr
	}

	s.logger.Debug("document committed", "doc", docID, "nodes", len(rows))
	return s.loadDocument(ctx, docID)
}

// CreateTag adds a tag to the catalog.
func (s *BMService) CreateTag(ctx context.Context, name, color, description string) (*model.Tag, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("tag name is required")
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	now := s.clock.Now().UTC()
	row, err := s.database.CreateTag(ctx, sqlc.Tag{
		ID:          s.idgen.New(),
		Name:        name,
		Color:       color,
		Description: description,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
	if err != nil {
		return nil, fmt.Errorf("creating tag: %w", err)
	}
	if err := s.persist(ctx); err != nil {
		return nil, err
	}
	return toTag(row), nil
}

// ListTags returns the tag catalog ordered by name.
func (s *BMService) ListTags(ctx context.Context) ([]*model.Tag, error) {
	rows, err := s.database.ListTags(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing tags: %w", err)
	}
	tags := make([]*model.Tag, len(rows))
	for i, row := range rows {
		tags[i] = toTag(row)
	}
	return tags, nil
}

// DeleteTag removes a tag from the catalog and from every node.
func (s *BMService) DeleteTag(ctx context.Context, id string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := s.database.DeleteTag(ctx, id); err != nil {
		return fmt.Errorf("deleting tag: %w", err)
	}
	return s.persist(ctx)
}

// GetSetting returns a stored setting and whether it was present.
func (s *BMService) GetSetting(ctx context.Context, key string) (string, bool, error) {
	value, ok, err := s.database.GetSetting(ctx, key)
	if err != nil {
		return "", false, fmt.Errorf("reading setting %s: %w", key, err)
	}
	return value, ok, nil
}

// SetSetting stores a setting.
func (s *BMService) SetSetting(ctx context.Context, key, value string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := s.database.SetSetting(ctx, key, value); err != nil {
		return fmt.Errorf("writing setting %s: %w", key, err)
	}
	return s.persist(ctx)
}

// persist exports the database snapshot to the vault and advances the
// status channel. The caller must hold writeMu.
func (s *BMService) persist(ctx context.Context) error {
	var buf bytes.Buffer
	if _, err := s.database.Snapshot(ctx, &buf); err != nil {
		s.status.setPersisted(false)
		return fmt.Errorf("snapshotting database: %w: %w", ErrNotPersisted, err)
	}
	if err := s.vault.Put(SnapshotKey, &buf, int64(buf.Len())); err != nil {
		s.status.setPersisted(false)
		return fmt.Errorf("writing snapshot to vault: %w: %w", ErrNotPersisted, err)
	}
	s.status.saved(s.clock.Now())
	return nil
}

func (s *BMService) loadDocument(ctx context.Context, id string) (*model.Document, error) {
	row, err := s.database.FindDocument(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("finding document: %w", err)
	}
	if row == nil {
		return nil, nil
	}
	rows, err := s.database.LoadRows(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("loading nodes: %w", err)
	}
	if orphans := codec.Orphans(rows); len(orphans) > 0 {
		s.logger.Warn("orphaned rows ignored", "doc", id, "count", len(orphans))
	}
	return toDocument(row, codec.Rebuild(rows)), nil
}

func normalizeTitle(title string) string {
	title = strings.TrimSpace(title)
	if title == "" {
		return DefaultDocumentTitle
	}
	return title
}

func toDocument(row *sqlc.Document, nodes []model.TreeNode) *model.Document {
	return &model.Document{
		ID:        row.ID,
		Title:     row.Title,
		CreatedAt: row.CreatedAt,
		Nodes:     nodes,
	}
}

func toTag(row *sqlc.Tag) *model.Tag {
	return &model.Tag{
		ID:          row.ID,
		Name:        row.Name,
		Color:       row.Color,
		Description: row.Description,
		CreatedAt:   row.CreatedAt,
		UpdatedAt:   row.UpdatedAt,
	}
}
