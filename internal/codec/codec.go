// Package codec converts between nested bookmark forests and the flat
// row-set stored in the relational database.
package codec

import (
	"database/sql"
	"sort"

	"bm-go/internal/model"
)

// Row is one node as stored in the nodes table.
type Row struct {
	ID          string
	DocID       string
	ParentID    sql.NullString // invalid for top-level nodes
	Title       string
	URL         sql.NullString
	OrderIndex  int64 // position among siblings, 0-based
	OfflineID   sql.NullInt64
	OfflinePath sql.NullString
	MIME        sql.NullString
	Comment     sql.NullString
	Tags        []string // tag IDs, stored in node_tags
}

// Flatten walks the forest depth-first and emits one row per node. Each row
// records the ID of its immediate container and its index among siblings.
func Flatten(docID string, forest []model.TreeNode) []Row {
	var rows []Row
	var walk func(nodes []model.TreeNode, parent sql.NullString)
	walk = func(nodes []model.TreeNode, parent sql.NullString) {
		for i, n := range nodes {
			rows = append(rows, toRow(docID, parent, int64(i), n))
			if len(n.Children) > 0 {
				walk(n.Children, sql.NullString{String: n.ID, Valid: true})
			}
		}
	}
	walk(forest, sql.NullString{})
	return rows
}

// Rebuild reassembles a forest from rows. Rows must be grouped so that,
// within each parent, they appear in sibling order; SortRows produces such an
// order. Rows whose parent is not in the set are orphans and are dropped
// together with their descendants.
func Rebuild(rows []Row) []model.TreeNode {
	children := make(map[string][]int) // parent ID -> row indexes, "" for top level
	for i, r := range rows {
		children[r.ParentID.String] = append(children[r.ParentID.String], i)
	}

	var build func(parent string, path map[string]bool) []model.TreeNode
	build = func(parent string, path map[string]bool) []model.TreeNode {
		idx := children[parent]
		if len(idx) == 0 {
			return nil
		}
		out := make([]model.TreeNode, 0, len(idx))
		for _, i := range idx {
			r := rows[i]
			if path[r.ID] {
				// A parent cycle can only come from corrupt rows; cut it here.
				continue
			}
			path[r.ID] = true
			n := fromRow(r)
			n.Children = build(r.ID, path)
			delete(path, r.ID)
			out = append(out, n)
		}
		return out
	}

	// Rows pointing at an unknown parent are never reached from the top level.
	return build("", make(map[string]bool))
}

// SortRows orders rows the way Rebuild expects: top-level rows first, then by
// parent ID, then by sibling position.
func SortRows(rows []Row) {
	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if a.ParentID.Valid != b.ParentID.Valid {
			return !a.ParentID.Valid
		}
		if a.ParentID.String != b.ParentID.String {
			return a.ParentID.String < b.ParentID.String
		}
		return a.OrderIndex < b.OrderIndex
	})
}

// Orphans returns the rows whose parent ID is set but absent from rows.
func Orphans(rows []Row) []Row {
	known := make(map[string]bool, len(rows))
	for _, r := range rows {
		known[r.ID] = true
	}
	var out []Row
	for _, r := range rows {
		if r.ParentID.Valid && !known[r.ParentID.String] {
			out = append(out, r)
		}
	}
	return out
}

func toRow(docID string, parent sql.NullString, index int64, n model.TreeNode) Row {
	r := Row{
		ID:         n.ID,
		DocID:      docID,
		ParentID:   parent,
		Title:      n.Title,
		URL:        nullString(n.URL),
		OrderIndex: index,
		Comment:    nullString(n.Comment),
	}
	if len(n.Tags) > 0 {
		r.Tags = append([]string(nil), n.Tags...)
	}
	if n.Offline != nil {
		r.OfflineID = sql.NullInt64{Int64: n.Offline.ID, Valid: true}
		r.OfflinePath = nullString(n.Offline.Path)
		r.MIME = nullString(n.Offline.MIME)
	}
	return r
}

func fromRow(r Row) model.TreeNode {
	n := model.TreeNode{
		ID:      r.ID,
		Title:   r.Title,
		URL:     r.URL.String,
		Comment: r.Comment.String,
	}
	if len(r.Tags) > 0 {
		n.Tags = append([]string(nil), r.Tags...)
	}
	if r.OfflineID.Valid || r.OfflinePath.Valid || r.MIME.Valid {
		n.Offline = &model.OfflineCopy{
			ID:   r.OfflineID.Int64,
			Path: r.OfflinePath.String,
			MIME: r.MIME.String,
		}
	}
	return n
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
