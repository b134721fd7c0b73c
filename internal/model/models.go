package model

import "time"

// TreeNode is one folder or link in a bookmark document.
// A node may carry a URL and children at the same time; whether it is a leaf
// depends only on its children.
type TreeNode struct {
	ID       string // unique within a document
	Title    string
	URL      string     // empty when the node is a plain folder
	Children []TreeNode // manual order, most recently added first
	Comment  string
	Tags     []string     // tag IDs
	Offline  *OfflineCopy // nil when no offline copy was captured
}

// OfflineCopy describes a locally saved copy of the page a node points to.
// Only metadata is stored; the file itself lives outside the store.
type OfflineCopy struct {
	ID   int64  // download identifier assigned by the capturing host
	Path string // location of the saved file
	MIME string
}

// Document is a named forest of TreeNodes.
type Document struct {
	ID        string // UUID
	Title     string
	CreatedAt time.Time
	Nodes     []TreeNode
}

// Tag is a label that can be attached to any node.
type Tag struct {
	ID          string // UUID
	Name        string
	Color       string
	Description string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
