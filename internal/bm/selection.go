package bm

// SelectionEntry is one node picked by the user in an open document.
// Title and URL are the values seen when the node was picked; they are used
// when the document is no longer loaded.
type SelectionEntry struct {
	DocumentID string
	NodeID     string
	Title      string
	URL        string
}

type selectionKey struct {
	docID  string
	nodeID string
}

// Selection is an ordered set of SelectionEntry keyed by document and node
// id. The zero value is empty and ready to use. A nil *Selection behaves as
// an empty selection for reads.
type Selection struct {
	entries []SelectionEntry
}

// NewSelection returns a selection holding entries, duplicates removed.
func NewSelection(entries ...SelectionEntry) *Selection {
	s := &Selection{}
	for _, e := range entries {
		s.Add(e)
	}
	return s
}

// Add appends e unless an entry with the same key is present. It reports
// whether e was added.
func (s *Selection) Add(e SelectionEntry) bool {
	if s.indexOf(e.DocumentID, e.NodeID) >= 0 {
		return false
	}
	s.entries = append(s.entries, e)
	return true
}

// Remove drops the entry for the node. It reports whether it was present.
func (s *Selection) Remove(docID, nodeID string) bool {
	i := s.indexOf(docID, nodeID)
	if i < 0 {
		return false
	}
	s.entries = append(s.entries[:i:i], s.entries[i+1:]...)
	return true
}

// Toggle adds e when absent and removes it otherwise. It reports whether the
// node is selected afterwards.
func (s *Selection) Toggle(e SelectionEntry) bool {
	if s.Remove(e.DocumentID, e.NodeID) {
		return false
	}
	return s.Add(e)
}

// Contains reports whether the node is selected.
func (s *Selection) Contains(docID, nodeID string) bool {
	return s.indexOf(docID, nodeID) >= 0
}

// Entries returns a copy of the entries in selection order.
func (s *Selection) Entries() []SelectionEntry {
	if s == nil || len(s.entries) == 0 {
		return nil
	}
	return append([]SelectionEntry(nil), s.entries...)
}

// Len returns the number of selected nodes.
func (s *Selection) Len() int {
	if s == nil {
		return 0
	}
	return len(s.entries)
}

// Clear empties the selection.
func (s *Selection) Clear() {
	if s != nil {
		s.entries = nil
	}
}

// ClearDocument removes every entry that belongs to docID.
func (s *Selection) ClearDocument(docID string) {
	if s == nil {
		return
	}
	kept := s.entries[:0]
	for _, e := range s.entries {
		if e.DocumentID != docID {
			kept = append(kept, e)
		}
	}
	s.entries = kept
}

func (s *Selection) indexOf(docID, nodeID string) int {
	if s == nil {
		return -1
	}
	key := selectionKey{docID, nodeID}
	for i, e := range s.entries {
		if (selectionKey{e.DocumentID, e.NodeID}) == key {
			return i
		}
	}
	return -1
}
