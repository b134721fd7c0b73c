package bm

import (
	"context"
	"fmt"
	"sync"
	"time"

	"bm-go/internal/model"
	"bm-go/internal/tree"
)

// DefaultDebounce is the quiet period after the last edit before autosave
// commits.
const DefaultDebounce = 200 * time.Millisecond

// SaveState is the autosave state of the active document.
type SaveState int

const (
	Clean SaveState = iota
	Dirty
	SaveScheduled
)

func (s SaveState) String() string {
	switch s {
	case Clean:
		return "clean"
	case Dirty:
		return "dirty"
	case SaveScheduled:
		return "save-scheduled"
	default:
		return fmt.Sprintf("SaveState(%d)", int(s))
	}
}

// Session owns the in-memory forest of the active document and commits it
// after a debounce window. Only one document is active at a time.
type Session struct {
	svc       *BMService
	scheduler Scheduler
	debounce  time.Duration

	// saveMu orders commits so a later snapshot is never overwritten by an
	// earlier one. It is always taken before mu.
	saveMu sync.Mutex

	mu     sync.Mutex
	doc    *model.Document
	forest []model.TreeNode
	state  SaveState
	timer  Timer
	// token identifies the latest schedule. A fire whose token is stale is
	// dropped.
	token uint64
}

// NewSession creates a session with no active document. A zero debounce
// uses DefaultDebounce.
func NewSession(svc *BMService, scheduler Scheduler, debounce time.Duration) *Session {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Session{
		svc:       svc,
		scheduler: scheduler,
		debounce:  debounce,
	}
}

// Open makes the document active. Its freshly loaded forest starts Clean.
// A save still pending for the previous document is cancelled and
// discarded; call Flush first to keep those edits.
func (s *Session) Open(ctx context.Context, docID string) (*model.Document, error) {
	doc, err := s.svc.LoadDocument(ctx, docID)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, fmt.Errorf("document %s: %w", docID, ErrNotFound)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.doc != nil && s.state != Clean {
		s.svc.logger.Warn("discarding unsaved changes", "doc", s.doc.ID, "state", s.state.String())
	}
	s.cancelLocked()
	s.installLocked(doc)
	return copyDocument(doc), nil
}

// Close flushes pending changes and deactivates the document.
func (s *Session) Close(ctx context.Context) error {
	err := s.Flush(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelLocked()
	s.doc = nil
	s.forest = nil
	s.state = Clean
	return err
}

// Apply replaces the active forest with fn's result and schedules a save.
// Edits arriving within the debounce window coalesce into one commit.
func (s *Session) Apply(fn func([]model.TreeNode) []model.TreeNode) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.doc == nil {
		return ErrNoActiveDocument
	}
	s.forest = fn(s.forest)
	s.scheduleLocked()
	return nil
}

// Flush commits the active forest now if it has unsaved changes.
func (s *Session) Flush(ctx context.Context) error {
	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	s.mu.Lock()
	if s.doc == nil || s.state == Clean {
		s.mu.Unlock()
		return nil
	}
	s.cancelLocked()
	docID, token, forest := s.doc.ID, s.token, s.forest
	s.mu.Unlock()

	return s.commit(ctx, docID, token, forest)
}

// Document returns a copy of the active document with the in-memory
// forest, or nil when no document is open.
func (s *Session) Document() *model.Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.doc == nil {
		return nil
	}
	doc := *s.doc
	doc.Nodes = tree.Clone(s.forest)
	return &doc
}

// Forest returns the active in-memory forest. Callers must treat it as
// immutable.
func (s *Session) Forest() []model.TreeNode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.forest
}

// State returns the autosave state of the active document.
func (s *Session) State() SaveState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// ActiveID returns the active document id, or "" when none is open.
func (s *Session) ActiveID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.doc == nil {
		return ""
	}
	return s.doc.ID
}

// UniversalAdd flushes the active document, runs BMService.UniversalAdd
// with the live forest and installs the committed result without marking
// the session dirty.
func (s *Session) UniversalAdd(ctx context.Context, req AddRequest) (*AddResult, error) {
	if err := s.Flush(ctx); err != nil {
		return nil, fmt.Errorf("flushing active document: %w", err)
	}

	s.mu.Lock()
	if s.doc != nil {
		if req.Forests == nil {
			req.Forests = make(map[string][]model.TreeNode)
		}
		if _, ok := req.Forests[s.doc.ID]; !ok {
			req.Forests[s.doc.ID] = s.forest
		}
	}
	s.mu.Unlock()

	res, err := s.svc.UniversalAdd(ctx, req)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.doc != nil {
		if doc, ok := res.Documents[s.doc.ID]; ok {
			s.cancelLocked()
			s.installLocked(doc)
		}
	}
	return res, nil
}

// ImportSnapshot imports data through the service and reopens the active
// document from the imported store. Pending edits are discarded.
func (s *Session) ImportSnapshot(ctx context.Context, data []byte, dec DecryptionContext) error {
	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	s.mu.Lock()
	s.cancelLocked()
	s.mu.Unlock()

	if err := s.svc.ImportSnapshot(ctx, data, dec); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.doc == nil {
		return nil
	}
	doc, err := s.svc.LoadDocument(ctx, s.doc.ID)
	if err != nil {
		return err
	}
	if doc == nil {
		s.doc, s.forest, s.state = nil, nil, Clean
		return nil
	}
	s.installLocked(doc)
	return nil
}

// scheduleLocked supersedes any pending timer with a new one bound to the
// active document and a fresh token.
func (s *Session) scheduleLocked() {
	if s.timer != nil {
		s.timer.Stop()
	}
	s.token++
	docID, token := s.doc.ID, s.token
	s.state = SaveScheduled
	s.timer = s.scheduler.AfterFunc(s.debounce, func() {
		s.fire(docID, token)
	})
}

// cancelLocked stops the pending timer and invalidates its token. The
// state is left alone.
func (s *Session) cancelLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.token++
	if s.state == SaveScheduled {
		s.state = Dirty
	}
}

func (s *Session) installLocked(doc *model.Document) {
	s.doc = &model.Document{ID: doc.ID, Title: doc.Title, CreatedAt: doc.CreatedAt}
	s.forest = doc.Nodes
	s.state = Clean
}

// fire runs on the scheduler's goroutine. The document id and token are
// checked here, not when the timer was set.
func (s *Session) fire(docID string, token uint64) {
	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	s.mu.Lock()
	if s.doc == nil || s.doc.ID != docID || s.token != token || s.state != SaveScheduled {
		s.mu.Unlock()
		s.svc.logger.Debug("stale autosave dropped", "doc", docID)
		return
	}
	s.timer = nil
	forest := s.forest
	s.mu.Unlock()

	if err := s.commit(context.Background(), docID, token, forest); err != nil {
		s.svc.logger.Error("autosave failed", "doc", docID, "error", err)
	}
}

// commit writes forest and settles the state if no newer edit arrived in
// the meantime. The caller must hold saveMu.
func (s *Session) commit(ctx context.Context, docID string, token uint64, forest []model.TreeNode) error {
	doc, err := s.svc.Commit(ctx, docID, forest)

	s.mu.Lock()
	defer s.mu.Unlock()
	current := s.doc != nil && s.doc.ID == docID && s.token == token

	if err != nil {
		if current {
			s.state = Dirty
		}
		return err
	}
	if doc == nil {
		s.svc.logger.Warn("active document disappeared", "doc", docID)
		if current {
			s.doc, s.forest, s.state = nil, nil, Clean
		}
		return nil
	}
	if current {
		s.doc.Title = doc.Title
		s.state = Clean
	}
	return nil
}

func copyDocument(doc *model.Document) *model.Document {
	out := *doc
	out.Nodes = tree.Clone(doc.Nodes)
	return &out
}
