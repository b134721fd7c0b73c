// Package tree implements the pure mutation algebra over bookmark forests.
//
// A forest is an ordered []model.TreeNode. Every function treats its input as
// an immutable value: the result is a new forest that shares untouched
// subtrees with the input, so callers must never modify a forest in place.
package tree

import (
	"errors"
	"fmt"
	"strings"

	"bm-go/internal/model"
)

// Root is the parent ID that addresses the top level of a forest.
const Root = ""

// ErrDuplicateID is returned by Validate when two nodes share an ID.
var ErrDuplicateID = errors.New("duplicate node id")

// Find returns the node with the given ID.
func Find(forest []model.TreeNode, id string) (model.TreeNode, bool) {
	for i := range forest {
		if forest[i].ID == id {
			return forest[i], true
		}
		if n, ok := Find(forest[i].Children, id); ok {
			return n, true
		}
	}
	return model.TreeNode{}, false
}

// Contains reports whether a node with the given ID exists anywhere in the forest.
func Contains(forest []model.TreeNode, id string) bool {
	_, ok := Find(forest, id)
	return ok
}

// Walk visits every node depth-first, parents before children. parentID is
// Root for top-level nodes. Returning false from fn stops the walk.
func Walk(forest []model.TreeNode, fn func(n model.TreeNode, parentID string, depth int) bool) {
	walk(forest, Root, 0, fn)
}

func walk(nodes []model.TreeNode, parentID string, depth int, fn func(model.TreeNode, string, int) bool) bool {
	for _, n := range nodes {
		if !fn(n, parentID, depth) {
			return false
		}
		if !walk(n.Children, n.ID, depth+1, fn) {
			return false
		}
	}
	return true
}

// IDs returns every node ID in the forest in depth-first order.
func IDs(forest []model.TreeNode) []string {
	var ids []string
	Walk(forest, func(n model.TreeNode, _ string, _ int) bool {
		ids = append(ids, n.ID)
		return true
	})
	return ids
}

// Count returns the total number of nodes in the forest.
func Count(forest []model.TreeNode) int {
	total := 0
	for _, n := range forest {
		total += 1 + Count(n.Children)
	}
	return total
}

// Depth returns the number of levels in the forest (0 for an empty forest).
func Depth(forest []model.TreeNode) int {
	deepest := 0
	for _, n := range forest {
		if d := 1 + Depth(n.Children); d > deepest {
			deepest = d
		}
	}
	return deepest
}

// IsLeaf reports whether n has no children. A node with a URL may still have
// children, so the URL says nothing about leafness.
func IsLeaf(n model.TreeNode) bool {
	return len(n.Children) == 0
}

// DescendantIDs returns the IDs of n and every node below it.
func DescendantIDs(n model.TreeNode) map[string]struct{} {
	ids := make(map[string]struct{})
	collectIDs(n, ids)
	return ids
}

func collectIDs(n model.TreeNode, into map[string]struct{}) {
	into[n.ID] = struct{}{}
	for _, c := range n.Children {
		collectIDs(c, into)
	}
}

// Validate checks that node IDs are non-empty and pairwise distinct.
func Validate(forest []model.TreeNode) error {
	seen := make(map[string]struct{})
	var err error
	Walk(forest, func(n model.TreeNode, _ string, _ int) bool {
		if n.ID == "" {
			err = fmt.Errorf("node %q has an empty id", n.Title)
			return false
		}
		if _, dup := seen[n.ID]; dup {
			err = fmt.Errorf("%w: %s", ErrDuplicateID, n.ID)
			return false
		}
		seen[n.ID] = struct{}{}
		return true
	})
	return err
}

// Duplicate returns a deep copy of n in which every node of the subtree gets
// a fresh ID from newID. Title, URL, comment, tags and offline metadata are kept.
func Duplicate(n model.TreeNode, newID func() string) model.TreeNode {
	out := copyNode(n)
	out.ID = newID()
	if len(n.Children) > 0 {
		out.Children = make([]model.TreeNode, len(n.Children))
		for i, c := range n.Children {
			out.Children[i] = Duplicate(c, newID)
		}
	}
	return out
}

// Clone returns a deep copy of the forest that shares no memory with it.
func Clone(forest []model.TreeNode) []model.TreeNode {
	if forest == nil {
		return nil
	}
	out := make([]model.TreeNode, len(forest))
	for i, n := range forest {
		out[i] = copyNode(n)
		out[i].Children = Clone(n.Children)
	}
	return out
}

// copyNode copies n with its own tags slice and offline record. Children
// are shared.
func copyNode(n model.TreeNode) model.TreeNode {
	if n.Tags != nil {
		n.Tags = append([]string(nil), n.Tags...)
	}
	if n.Offline != nil {
		off := *n.Offline
		n.Offline = &off
	}
	return n
}

// Filter keeps nodes whose title or URL contains query (case-insensitive)
// together with every ancestor of such a node. An empty query returns the
// forest unchanged.
func Filter(forest []model.TreeNode, query string) []model.TreeNode {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return forest
	}
	return filter(forest, q)
}

func filter(nodes []model.TreeNode, q string) []model.TreeNode {
	var out []model.TreeNode
	for _, n := range nodes {
		kids := filter(n.Children, q)
		hit := strings.Contains(strings.ToLower(n.Title), q) ||
			strings.Contains(strings.ToLower(n.URL), q)
		if hit || len(kids) > 0 {
			n.Children = kids
			out = append(out, n)
		}
	}
	return out
}

// FilterByDepth keeps the top levels of the forest and drops everything
// below. levels <= 0 returns the forest unchanged.
func FilterByDepth(forest []model.TreeNode, levels int) []model.TreeNode {
	if levels <= 0 {
		return forest
	}
	return truncate(forest, levels)
}

func truncate(nodes []model.TreeNode, levels int) []model.TreeNode {
	if len(nodes) == 0 {
		return nodes
	}
	out := make([]model.TreeNode, len(nodes))
	for i, n := range nodes {
		if levels == 1 {
			n.Children = nil
		} else {
			n.Children = truncate(n.Children, levels-1)
		}
		out[i] = n
	}
	return out
}
