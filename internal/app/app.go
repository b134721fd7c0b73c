package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"bm-go/internal/bm"
	"bm-go/internal/config"
	"bm-go/internal/database"
	"bm-go/internal/encryption"
	"bm-go/internal/model"
	"bm-go/internal/staging"
	"bm-go/internal/tree"
	"bm-go/internal/vault"
)

// BMApp is the application layer between the CLI and BMService.
// It constructs all dependencies from config, exposes high-level operations
// that accept raw CLI arguments, and flushes and closes everything on Close.
type BMApp struct {
	db        bm.Database
	staged    *staging.Buffer
	encryptor bm.Encryptor
	service   *bm.BMService
	session   *bm.Session
	idgen     bm.IDGenerator
	op        *Operation
	logger    *slog.Logger
	logFile   *os.File
}

// NewBMApp creates a fully wired BMApp from the given config.
// operation identifies the CLI command being run (e.g. "CreateDocument", "UniversalAdd").
// The caller must call Close when done.
func NewBMApp(ctx context.Context, cfg *config.Config, operation string) (*BMApp, error) {
	if len(cfg.Vaults) == 0 {
		return nil, fmt.Errorf("no vaults configured")
	}

	clock := bm.RealClock{}
	op := NewOperation(operation, clock.Now())
	logger, logFile, err := newLogger(cfg.LogDir, op.ID, parseLevel(getLogLevel()))
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}
	closeLog := func() { logFile.Close() }

	v, err := vault.NewVaultFromConfig(ctx, cfg.Vaults[0])
	if err != nil {
		closeLog()
		return nil, fmt.Errorf("creating vault: %w", err)
	}

	staged, err := staging.NewBufferFromConfig(cfg.Staging, clock)
	if err != nil {
		closeLog()
		return nil, fmt.Errorf("creating staged buffer: %w", err)
	}

	db, err := database.NewDatabaseFromConfig(cfg.Database)
	if err != nil {
		closeLog()
		return nil, fmt.Errorf("creating database: %w", err)
	}

	if err := db.CheckMigrations(); err != nil {
		db.Close()
		closeLog()
		return nil, fmt.Errorf("database schema out of date: %w", err)
	}

	enc, err := encryption.NewEncryptorFromConfig(cfg.Encryption)
	if err != nil {
		db.Close()
		closeLog()
		return nil, fmt.Errorf("creating encryptor: %w", err)
	}

	idgen := bm.UUIDGenerator{}
	svc := bm.NewBMService(db, v, staged, enc, &slogAdapter{l: logger}, clock, idgen)

	// An empty working database is seeded from the vault snapshot.
	docs, err := svc.ListDocuments(ctx)
	if err != nil {
		db.Close()
		closeLog()
		return nil, err
	}
	if len(docs) == 0 {
		if _, err := svc.Restore(ctx); err != nil {
			db.Close()
			closeLog()
			return nil, fmt.Errorf("restoring from vault: %w", err)
		}
	}
	svc.RefreshPersisted()

	logger.Debug("operation started", "operation", op.Operation, "host", cfg.HostID)

	return &BMApp{
		db:        db,
		staged:    staged,
		encryptor: enc,
		service:   svc,
		session:   bm.NewSession(svc, bm.RealScheduler{}, cfg.Autosave.DebounceOrDefault()),
		idgen:     idgen,
		op:        op,
		logger:    logger,
		logFile:   logFile,
	}, nil
}

// track marks the operation failed when err is non-nil and returns err.
func (a *BMApp) track(err error) error {
	if err != nil {
		a.op.Fail()
	}
	return err
}

// CreateDocument creates an empty document.
func (a *BMApp) CreateDocument(ctx context.Context, title string) (*model.Document, error) {
	doc, err := a.service.CreateDocument(ctx, title)
	return doc, a.track(err)
}

// RenameDocument changes the title of an existing document.
func (a *BMApp) RenameDocument(ctx context.Context, id, title string) (*model.Document, error) {
	doc, err := a.service.RenameDocument(ctx, id, title)
	if err == nil && doc == nil {
		err = fmt.Errorf("document %s: %w", id, bm.ErrNotFound)
	}
	return doc, a.track(err)
}

// DeleteDocument removes a document and all of its nodes.
func (a *BMApp) DeleteDocument(ctx context.Context, id string) error {
	return a.track(a.service.DeleteDocument(ctx, id))
}

// ListDocuments returns every document without nodes.
func (a *BMApp) ListDocuments(ctx context.Context) ([]*model.Document, error) {
	return a.service.ListDocuments(ctx)
}

// ShowDocument returns a document's forest narrowed by a search query and a
// depth limit. An empty query and a non-positive depth leave it whole.
func (a *BMApp) ShowDocument(ctx context.Context, id, query string, depth int) (*model.Document, error) {
	doc, err := a.service.LoadDocument(ctx, id)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, fmt.Errorf("document %s: %w", id, bm.ErrNotFound)
	}
	doc.Nodes = tree.FilterByDepth(tree.Filter(doc.Nodes, query), depth)
	return doc, nil
}

// AddNode creates a bookmark, or a folder when url is empty, as the first
// child of parentID. It returns the new node's ID.
func (a *BMApp) AddNode(ctx context.Context, docID, parentID, title, url string) (string, error) {
	title, url = strings.TrimSpace(title), strings.TrimSpace(url)
	if title == "" {
		title = url
	}
	if title == "" {
		return "", fmt.Errorf("a title or url is required")
	}

	node := model.TreeNode{ID: a.idgen.New(), Title: title, URL: url}
	_, err := a.edit(ctx, docID, func(forest []model.TreeNode) ([]model.TreeNode, error) {
		if parentID != tree.Root && !tree.Contains(forest, parentID) {
			return nil, fmt.Errorf("parent %s: %w", parentID, bm.ErrNotFound)
		}
		return tree.InsertChild(forest, parentID, node), nil
	})
	if err != nil {
		return "", err
	}
	return node.ID, nil
}

// RemoveNodes deletes nodes and their subtrees.
func (a *BMApp) RemoveNodes(ctx context.Context, docID string, ids []string) error {
	_, err := a.edit(ctx, docID, func(forest []model.TreeNode) ([]model.TreeNode, error) {
		if err := requireNodes(forest, ids); err != nil {
			return nil, err
		}
		return tree.RemoveNodes(forest, ids), nil
	})
	return err
}

// MoveNodes moves nodes under parentID. The outcome reports whether the
// nodes went to the top level instead.
func (a *BMApp) MoveNodes(ctx context.Context, docID string, ids []string, parentID string) (tree.Outcome, error) {
	var outcome tree.Outcome
	_, err := a.edit(ctx, docID, func(forest []model.TreeNode) ([]model.TreeNode, error) {
		if err := requireNodes(forest, ids); err != nil {
			return nil, err
		}
		res := tree.MoveMultiple(forest, ids, parentID)
		outcome = res.Outcome
		return res.Forest, nil
	})
	return outcome, err
}

// CommentNode sets the comment of a node. An empty comment clears it.
func (a *BMApp) CommentNode(ctx context.Context, docID, nodeID, comment string) error {
	_, err := a.edit(ctx, docID, func(forest []model.TreeNode) ([]model.TreeNode, error) {
		if err := requireNodes(forest, []string{nodeID}); err != nil {
			return nil, err
		}
		return tree.UpdateComment(forest, nodeID, comment), nil
	})
	return err
}

// TagNode replaces the tags of a node. Tags are given by name and must exist
// in the catalog.
func (a *BMApp) TagNode(ctx context.Context, docID, nodeID string, names []string) error {
	ids := make([]string, 0, len(names))
	for _, name := range names {
		tag, err := a.findTag(ctx, name)
		if err != nil {
			return a.track(err)
		}
		ids = append(ids, tag.ID)
	}

	_, err := a.edit(ctx, docID, func(forest []model.TreeNode) ([]model.TreeNode, error) {
		if err := requireNodes(forest, []string{nodeID}); err != nil {
			return nil, err
		}
		return tree.UpdateNode(forest, nodeID, func(n model.TreeNode) model.TreeNode {
			n.Tags = ids
			return n
		}), nil
	})
	return err
}

// CreateTag adds a tag to the catalog.
func (a *BMApp) CreateTag(ctx context.Context, name, color, description string) (*model.Tag, error) {
	tag, err := a.service.CreateTag(ctx, name, color, description)
	return tag, a.track(err)
}

// ListTags returns the tag catalog.
func (a *BMApp) ListTags(ctx context.Context) ([]*model.Tag, error) {
	return a.service.ListTags(ctx)
}

// DeleteTag removes the tag with the given name.
func (a *BMApp) DeleteTag(ctx context.Context, name string) error {
	tag, err := a.findTag(ctx, name)
	if err != nil {
		return a.track(err)
	}
	return a.track(a.service.DeleteTag(ctx, tag.ID))
}

// GetSetting returns a stored setting and whether it was present.
func (a *BMApp) GetSetting(ctx context.Context, key string) (string, bool, error) {
	return a.service.GetSetting(ctx, key)
}

// SetSetting stores a setting.
func (a *BMApp) SetSetting(ctx context.Context, key, value string) error {
	return a.track(a.service.SetSetting(ctx, key, value))
}

// Stage replaces the staged buffer with items.
func (a *BMApp) Stage(ctx context.Context, items []bm.Candidate) error {
	return a.track(a.staged.Stage(ctx, items))
}

// AddOptions are the CLI inputs of a universal add.
type AddOptions struct {
	DocID    string
	ParentID string
	Select   []string // "docID:nodeID"
	Move     bool
	Current  *bm.Candidate
}

// Probe reports what UniversalAdd would add without consuming anything.
func (a *BMApp) Probe(ctx context.Context, opts AddOptions) (bm.Probe, error) {
	sel, err := a.selection(ctx, opts.Select)
	if err != nil {
		return bm.Probe{}, err
	}
	return a.service.HasItemsToAdd(ctx, sel, opts.Current), nil
}

// UniversalAdd adds the selection, the staged items or the current item to
// a document.
func (a *BMApp) UniversalAdd(ctx context.Context, opts AddOptions) (*bm.AddResult, error) {
	sel, err := a.selection(ctx, opts.Select)
	if err != nil {
		return nil, a.track(err)
	}
	if err := a.activate(ctx, opts.DocID); err != nil {
		return nil, a.track(err)
	}

	res, err := a.session.UniversalAdd(ctx, bm.AddRequest{
		TargetDocID: opts.DocID,
		ParentID:    opts.ParentID,
		Selection:   sel,
		Current:     opts.Current,
		Move:        opts.Move,
	})
	if err != nil {
		return nil, a.track(err)
	}
	if len(res.Leftovers) > 0 {
		a.op.Fail()
	}
	return res, nil
}

// Export serializes the whole store into a backup envelope.
func (a *BMApp) Export(ctx context.Context, encrypt bool) ([]byte, error) {
	data, err := a.service.ExportSnapshot(ctx, encrypt)
	return data, a.track(err)
}

// Import replaces the whole store with a backup envelope. passphrase is
// called only when the envelope is encrypted.
func (a *BMApp) Import(ctx context.Context, data []byte, passphrase func() (string, error)) error {
	var env bm.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return a.track(fmt.Errorf("%w: %v", bm.ErrInvalidBackup, err))
	}

	var dec bm.DecryptionContext
	if env.Encrypted {
		if passphrase == nil {
			return a.track(fmt.Errorf("backup is encrypted: passphrase required"))
		}
		p, err := passphrase()
		if err != nil {
			return a.track(fmt.Errorf("reading passphrase: %w", err))
		}
		dec, err = a.encryptor.Unlock(p)
		if err != nil {
			return a.track(fmt.Errorf("unlocking private key: %w", err))
		}
	}
	return a.track(a.session.ImportSnapshot(ctx, data, dec))
}

// Status returns the persistence status.
func (a *BMApp) Status() bm.Status {
	return a.service.Status()
}

// Close flushes pending edits, closes the database and logs the outcome of
// the operation.
func (a *BMApp) Close() error {
	var firstErr error

	if err := a.session.Close(context.Background()); err != nil {
		a.op.Fail()
		firstErr = fmt.Errorf("flushing pending changes: %w", err)
	}

	if err := a.db.Close(); err != nil {
		if firstErr == nil {
			firstErr = fmt.Errorf("closing database: %w", err)
		}
	}

	a.logger.Info("operation finished",
		"operation", a.op.Operation,
		"status", a.op.Status,
		"duration", time.Since(a.op.StartedAt).Truncate(time.Millisecond),
	)

	if a.logFile != nil {
		a.logFile.Close()
	}

	return firstErr
}

// edit applies fn to the live forest of docID and commits the result.
func (a *BMApp) edit(ctx context.Context, docID string, fn func([]model.TreeNode) ([]model.TreeNode, error)) (*model.Document, error) {
	if err := a.activate(ctx, docID); err != nil {
		return nil, a.track(err)
	}

	next, err := fn(a.session.Forest())
	if err != nil {
		return nil, a.track(err)
	}
	if err := a.session.Apply(func([]model.TreeNode) []model.TreeNode { return next }); err != nil {
		return nil, a.track(err)
	}
	if err := a.session.Flush(ctx); err != nil {
		return nil, a.track(err)
	}
	return a.session.Document(), nil
}

// activate makes docID the session's active document, flushing the previous
// one first.
func (a *BMApp) activate(ctx context.Context, docID string) error {
	if a.session.ActiveID() == docID {
		return nil
	}
	if err := a.session.Flush(ctx); err != nil {
		return err
	}
	_, err := a.session.Open(ctx, docID)
	return err
}

// selection resolves "docID:nodeID" references against the stored
// documents, remembering each node's title and url.
func (a *BMApp) selection(ctx context.Context, refs []string) (*bm.Selection, error) {
	sel := bm.NewSelection()
	docs := make(map[string]*model.Document)

	for _, ref := range refs {
		docID, nodeID, ok := strings.Cut(ref, ":")
		if !ok || docID == "" || nodeID == "" {
			return nil, fmt.Errorf("invalid selection %q: want DOC:NODE", ref)
		}

		doc, seen := docs[docID]
		if !seen {
			var err error
			if doc, err = a.service.LoadDocument(ctx, docID); err != nil {
				return nil, err
			}
			docs[docID] = doc
		}
		if doc == nil {
			return nil, fmt.Errorf("document %s: %w", docID, bm.ErrNotFound)
		}

		node, found := tree.Find(doc.Nodes, nodeID)
		if !found {
			return nil, fmt.Errorf("node %s in document %s: %w", nodeID, docID, bm.ErrNotFound)
		}
		sel.Add(bm.SelectionEntry{DocumentID: docID, NodeID: nodeID, Title: node.Title, URL: node.URL})
	}
	return sel, nil
}

func (a *BMApp) findTag(ctx context.Context, name string) (*model.Tag, error) {
	tags, err := a.service.ListTags(ctx)
	if err != nil {
		return nil, err
	}
	for _, tag := range tags {
		if tag.Name == name {
			return tag, nil
		}
	}
	return nil, fmt.Errorf("tag %q: %w", name, bm.ErrNotFound)
}

func requireNodes(forest []model.TreeNode, ids []string) error {
	for _, id := range ids {
		if !tree.Contains(forest, id) {
			return fmt.Errorf("node %s: %w", id, bm.ErrNotFound)
		}
	}
	return nil
}
