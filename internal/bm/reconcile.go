package bm

import (
	"context"
	"errors"
	"fmt"

	"bm-go/internal/model"
	"bm-go/internal/tree"
)

// Source tells which tier produced the items to add.
type Source string

const (
	SourceSelection Source = "selection"
	SourceStaged    Source = "staged"
	SourceCurrent   Source = "current"
)

// Item is one resolved candidate for insertion.
type Item struct {
	ID         string
	Title      string
	URL        string
	Source     Source
	DocumentID string // set for selection items
	NodeID     string // set for selection items
	Children   []model.TreeNode

	Comment string
	Tags    []string
	Offline *model.OfflineCopy

	// resolved is true when the node was found in a loaded document.
	resolved bool
}

// TreeNode returns the item as a node, keeping its id.
func (it Item) TreeNode() model.TreeNode {
	return model.TreeNode{
		ID:       it.ID,
		Title:    it.Title,
		URL:      it.URL,
		Children: it.Children,
		Comment:  it.Comment,
		Tags:     it.Tags,
		Offline:  it.Offline,
	}
}

// ForestLookup returns the live forest of a document and whether the
// document is loaded.
type ForestLookup func(ctx context.Context, docID string) ([]model.TreeNode, bool, error)

// ResolveParams are the inputs of one reconciliation.
type ResolveParams struct {
	Selection *Selection
	Forests   ForestLookup
	Current   *Candidate
}

// Probe is the result of HasItemsToAdd.
type Probe struct {
	HasItems bool
	Count    int
	Source   Source
}

// Reconciler picks what to add from three tiers in strict priority: the
// explicit selection, then the staged buffer, then the current item. The
// first non-empty tier wins and tiers are never merged.
type Reconciler struct {
	staged StagedProvider
	idgen  IDGenerator
	logger Logger
}

// NewReconciler creates a Reconciler. staged may be nil.
func NewReconciler(staged StagedProvider, idgen IDGenerator, logger Logger) *Reconciler {
	return &Reconciler{staged: staged, idgen: idgen, logger: logger}
}

// ResolveItemsToAdd returns the items of the winning tier. Reading the
// staged tier consumes it, so the staged buffer is only touched when the
// selection is empty.
func (r *Reconciler) ResolveItemsToAdd(ctx context.Context, p ResolveParams) ([]Item, error) {
	if p.Selection.Len() > 0 {
		return r.resolveSelection(ctx, p)
	}

	if r.staged != nil {
		staged, err := r.staged.Pop(ctx)
		if err != nil {
			r.logger.Warn("reading staged items failed", "error", err)
		}
		if items := r.candidateItems(staged, SourceStaged); len(items) > 0 {
			return items, nil
		}
	}

	if p.Current != nil {
		return r.candidateItems([]Candidate{*p.Current}, SourceCurrent), nil
	}
	return nil, nil
}

// HasItemsToAdd reports what ResolveItemsToAdd would pick without
// consuming the staged buffer.
func (r *Reconciler) HasItemsToAdd(ctx context.Context, p ResolveParams) Probe {
	if n := p.Selection.Len(); n > 0 {
		return Probe{HasItems: true, Count: n, Source: SourceSelection}
	}
	if r.staged != nil {
		staged, err := r.staged.Peek(ctx)
		if err != nil {
			r.logger.Warn("checking staged items failed", "error", err)
		}
		if n := len(r.candidateItems(staged, SourceStaged)); n > 0 {
			return Probe{HasItems: true, Count: n, Source: SourceStaged}
		}
	}
	if p.Current != nil && p.Current.URL != "" {
		return Probe{HasItems: true, Count: 1, Source: SourceCurrent}
	}
	return Probe{}
}

func (r *Reconciler) resolveSelection(ctx context.Context, p ResolveParams) ([]Item, error) {
	var items []Item
	for _, e := range p.Selection.Entries() {
		var forest []model.TreeNode
		loaded := false
		if p.Forests != nil {
			var err error
			forest, loaded, err = p.Forests(ctx, e.DocumentID)
			if err != nil {
				return nil, fmt.Errorf("loading document %s: %w", e.DocumentID, err)
			}
		}

		if !loaded {
			r.logger.Debug("selected document not loaded, using stored title", "doc", e.DocumentID, "node", e.NodeID)
			items = append(items, Item{
				ID:         e.NodeID,
				Title:      e.Title,
				URL:        e.URL,
				Source:     SourceSelection,
				DocumentID: e.DocumentID,
				NodeID:     e.NodeID,
			})
			continue
		}

		node, ok := tree.Find(forest, e.NodeID)
		if !ok {
			r.logger.Warn("selected node not found", "doc", e.DocumentID, "node", e.NodeID)
			continue
		}
		items = append(items, Item{
			ID:         node.ID,
			Title:      node.Title,
			URL:        node.URL,
			Source:     SourceSelection,
			DocumentID: e.DocumentID,
			NodeID:     e.NodeID,
			Children:   node.Children,
			Comment:    node.Comment,
			Tags:       node.Tags,
			Offline:    node.Offline,
			resolved:   true,
		})
	}
	return dropNested(items), nil
}

// dropNested removes selection items lying inside another selected subtree
// of the same document. The ancestor's copy already carries them.
func dropNested(items []Item) []Item {
	below := make(map[string]map[string]struct{})
	for _, it := range items {
		if !it.resolved {
			continue
		}
		ids := below[it.DocumentID]
		if ids == nil {
			ids = make(map[string]struct{})
			below[it.DocumentID] = ids
		}
		for _, c := range it.Children {
			for id := range tree.DescendantIDs(c) {
				ids[id] = struct{}{}
			}
		}
	}

	kept := items[:0]
	for _, it := range items {
		if _, nested := below[it.DocumentID][it.NodeID]; it.resolved && nested {
			continue
		}
		kept = append(kept, it)
	}
	return kept
}

func (r *Reconciler) candidateItems(candidates []Candidate, source Source) []Item {
	var items []Item
	for _, c := range candidates {
		if c.URL == "" {
			continue
		}
		title := c.Title
		if title == "" {
			title = c.URL
		}
		items = append(items, Item{ID: r.idgen.New(), Title: title, URL: c.URL, Source: source})
	}
	return items
}

// SourceDescription returns a short human description of count items from
// source.
func SourceDescription(source Source, count int) string {
	switch source {
	case SourceSelection:
		if count == 1 {
			return "selected bookmark"
		}
		return fmt.Sprintf("selected bookmarks (%d)", count)
	case SourceStaged:
		if count == 1 {
			return "staged tab"
		}
		return fmt.Sprintf("staged tabs (%d)", count)
	case SourceCurrent:
		return "current tab"
	default:
		return "items"
	}
}

// AddRequest describes one universal add.
type AddRequest struct {
	TargetDocID string
	ParentID    string // tree.Root for the top level
	Selection   *Selection
	Current     *Candidate

	// Move deletes the selected originals after the copies are committed.
	// It has no effect on staged or current items.
	Move bool

	// Forests overrides the stored forest of loaded documents, keyed by
	// document id. Documents missing here are read from the database.
	Forests map[string][]model.TreeNode
}

// Leftover records originals that could not be deleted after a move.
type Leftover struct {
	DocumentID string
	NodeIDs    []string
	Err        error
}

// AddResult describes a completed universal add.
type AddResult struct {
	Source     Source
	Count      int      // number of items added
	AddedIDs   []string // ids of the inserted copies, in insertion order
	ParentID   string   // where the copies went
	Redirected bool     // the requested parent was invalid; copies went to the top level

	// Documents holds every document committed by the add, as reloaded
	// from the store.
	Documents map[string]*model.Document

	// NotPersisted is set when the changes are stored in the database but
	// the vault export failed; the next successful save exports them.
	NotPersisted bool

	// Leftovers lists originals that remain after a move because their
	// deletion failed. The copies exist either way.
	Leftovers []Leftover
}

// ResolveItemsToAdd resolves items against the stored documents, with
// forests overriding the stored forest of loaded documents.
func (s *BMService) ResolveItemsToAdd(ctx context.Context, sel *Selection, current *Candidate, forests map[string][]model.TreeNode) ([]Item, error) {
	return s.reconciler().ResolveItemsToAdd(ctx, ResolveParams{
		Selection: sel,
		Forests:   s.forestLookup(forests),
		Current:   current,
	})
}

// HasItemsToAdd reports whether UniversalAdd would find anything to add.
func (s *BMService) HasItemsToAdd(ctx context.Context, sel *Selection, current *Candidate) Probe {
	return s.reconciler().HasItemsToAdd(ctx, ResolveParams{Selection: sel, Current: current})
}

// UniversalAdd inserts the items of the winning tier under req.ParentID in
// the target document as one block, prepended and in resolution order.
// Every item is inserted as a deep copy with fresh ids.
//
// With req.Move, selected originals are deleted only after the copies are
// committed: from the committed target snapshot by stable id for
// intra-document moves, then from every other source document in turn.
// Failed deletes are logged and reported in Leftovers, never as an error.
func (s *BMService) UniversalAdd(ctx context.Context, req AddRequest) (*AddResult, error) {
	lookup := s.forestLookup(req.Forests)

	items, err := s.reconciler().ResolveItemsToAdd(ctx, ResolveParams{
		Selection: req.Selection,
		Forests:   lookup,
		Current:   req.Current,
	})
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, ErrNothingToAdd
	}
	source := items[0].Source

	target, ok, err := lookup(ctx, req.TargetDocID)
	if err != nil {
		s.restage(ctx, items)
		return nil, fmt.Errorf("loading target document: %w", err)
	}
	if !ok {
		s.restage(ctx, items)
		return nil, fmt.Errorf("target document %s: %w", req.TargetDocID, ErrNotFound)
	}

	move := req.Move && source == SourceSelection

	// A move whose target sits inside a moved subtree would delete its own
	// copies; such targets and missing ones fall back to the top level.
	forbidden := make(map[string]struct{})
	if move {
		for _, it := range items {
			if it.DocumentID != req.TargetDocID || !it.resolved {
				continue
			}
			if n, ok := tree.Find(target, it.NodeID); ok {
				for id := range tree.DescendantIDs(n) {
					forbidden[id] = struct{}{}
				}
			}
		}
	}
	res := &AddResult{
		Source:    source,
		Count:     len(items),
		ParentID:  req.ParentID,
		Documents: make(map[string]*model.Document),
	}
	if tree.CheckTarget(target, forbidden, req.ParentID) == tree.Redirected {
		s.logger.Warn("add target invalid, inserting at top level", "doc", req.TargetDocID, "parent", req.ParentID)
		res.ParentID = tree.Root
		res.Redirected = true
	}

	copies := make([]model.TreeNode, len(items))
	for i, it := range items {
		if it.Source == SourceSelection {
			copies[i] = tree.Duplicate(it.TreeNode(), s.idgen.New)
		} else {
			copies[i] = it.TreeNode()
		}
		res.AddedIDs = append(res.AddedIDs, copies[i].ID)
	}

	doc, err := s.Commit(ctx, req.TargetDocID, tree.InsertChildren(target, res.ParentID, copies))
	if err != nil && !stored(doc, err) {
		s.restage(ctx, items)
		return nil, fmt.Errorf("committing copies: %w", err)
	}
	if err != nil {
		// Copies are stored, so the staged items stay consumed.
		s.logger.Warn("copies stored but not exported", "doc", req.TargetDocID, "error", err)
		res.NotPersisted = true
	}
	if doc == nil {
		s.restage(ctx, items)
		return nil, fmt.Errorf("target document %s: %w", req.TargetDocID, ErrNotFound)
	}
	res.Documents[doc.ID] = doc
	s.logger.Info("items added", "doc", doc.ID, "source", string(source), "count", len(items), "move", move)

	if move {
		s.deleteOriginals(ctx, req, items, doc, lookup, res)
	}
	if source == SourceSelection {
		req.Selection.Clear()
	}
	return res, nil
}

// deleteOriginals removes moved originals. The target document goes first,
// against its committed snapshot; the other documents follow one commit
// each, in selection order.
func (s *BMService) deleteOriginals(ctx context.Context, req AddRequest, items []Item, committed *model.Document, lookup ForestLookup, res *AddResult) {
	var order []string
	byDoc := make(map[string][]string)
	for _, it := range items {
		if !it.resolved {
			continue
		}
		if _, seen := byDoc[it.DocumentID]; !seen {
			order = append(order, it.DocumentID)
		}
		byDoc[it.DocumentID] = append(byDoc[it.DocumentID], it.NodeID)
	}

	if ids, ok := byDoc[req.TargetDocID]; ok {
		doc, err := s.Commit(ctx, committed.ID, tree.RemoveNodes(committed.Nodes, ids))
		s.recordDelete(req.TargetDocID, ids, doc, err, res)
	}

	for _, docID := range order {
		if docID == req.TargetDocID {
			continue
		}
		ids := byDoc[docID]
		forest, ok, err := lookup(ctx, docID)
		if err == nil && !ok {
			err = fmt.Errorf("document %s: %w", docID, ErrNotFound)
		}
		if err != nil {
			s.recordDelete(docID, ids, nil, err, res)
			continue
		}
		doc, err := s.Commit(ctx, docID, tree.RemoveNodes(forest, ids))
		s.recordDelete(docID, ids, doc, err, res)
	}
}

func (s *BMService) recordDelete(docID string, ids []string, doc *model.Document, err error, res *AddResult) {
	if stored(doc, err) {
		s.logger.Warn("originals deleted but not exported", "doc", docID, "error", err)
		res.NotPersisted = true
		err = nil
	}
	if err == nil && doc == nil {
		err = fmt.Errorf("document %s: %w", docID, ErrNotFound)
	}
	if err != nil {
		s.logger.Error("deleting moved originals failed, duplicates remain", "doc", docID, "nodes", ids, "error", err)
		res.Leftovers = append(res.Leftovers, Leftover{DocumentID: docID, NodeIDs: ids, Err: err})
		return
	}
	res.Documents[docID] = doc
}

// stored reports whether a failed Commit still wrote its rows.
func stored(doc *model.Document, err error) bool {
	return err != nil && doc != nil && errors.Is(err, ErrNotPersisted)
}

// restage puts consumed staged items back after a failed add.
func (s *BMService) restage(ctx context.Context, items []Item) {
	if s.staged == nil || len(items) == 0 || items[0].Source != SourceStaged {
		return
	}
	candidates := make([]Candidate, len(items))
	for i, it := range items {
		candidates[i] = Candidate{Title: it.Title, URL: it.URL}
	}
	if err := s.staged.Stage(ctx, candidates); err != nil {
		s.logger.Error("restaging items failed", "count", len(candidates), "error", err)
	}
}

// forestLookup reads forests from overrides first, then from the database.
func (s *BMService) forestLookup(overrides map[string][]model.TreeNode) ForestLookup {
	return func(ctx context.Context, docID string) ([]model.TreeNode, bool, error) {
		if forest, ok := overrides[docID]; ok {
			return forest, true, nil
		}
		doc, err := s.loadDocument(ctx, docID)
		if err != nil {
			return nil, false, err
		}
		if doc == nil {
			return nil, false, nil
		}
		return doc.Nodes, true, nil
	}
}

func (s *BMService) reconciler() *Reconciler {
	return NewReconciler(s.staged, s.idgen, s.logger)
}
