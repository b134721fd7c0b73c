package tree

import "bm-go/internal/model"

// InsertChild prepends child to the children of parentID, or to the top level
// when parentID is Root. If parentID does not exist the forest is returned
// unchanged.
func InsertChild(forest []model.TreeNode, parentID string, child model.TreeNode) []model.TreeNode {
	return InsertChildren(forest, parentID, []model.TreeNode{child})
}

// InsertChildren prepends children as one block, keeping their order.
// The unknown-parent contract is the same as InsertChild.
func InsertChildren(forest []model.TreeNode, parentID string, children []model.TreeNode) []model.TreeNode {
	if len(children) == 0 {
		return forest
	}
	if parentID == Root {
		return prepend(forest, children...)
	}
	return UpdateNode(forest, parentID, func(p model.TreeNode) model.TreeNode {
		p.Children = prepend(p.Children, children...)
		return p
	})
}

// RemoveNode removes the node with the given ID and its whole subtree.
func RemoveNode(forest []model.TreeNode, id string) []model.TreeNode {
	_, rest, _ := ExtractNode(forest, id)
	return rest
}

// RemoveNodes removes every listed node by ID. IDs already gone, including
// those inside a subtree removed earlier in the list, are ignored.
func RemoveNodes(forest []model.TreeNode, ids []string) []model.TreeNode {
	for _, id := range ids {
		forest = RemoveNode(forest, id)
	}
	return forest
}

// UpdateNode replaces the node with the given ID by fn(node). fn receives a
// copy whose children, tags and offline record it may modify freely. The
// forest is returned unchanged when id is absent.
func UpdateNode(forest []model.TreeNode, id string, fn func(model.TreeNode) model.TreeNode) []model.TreeNode {
	out, _ := update(forest, id, fn)
	return out
}

// UpdateComment sets the comment of a single node.
func UpdateComment(forest []model.TreeNode, id, comment string) []model.TreeNode {
	return UpdateNode(forest, id, func(n model.TreeNode) model.TreeNode {
		n.Comment = comment
		return n
	})
}

func update(nodes []model.TreeNode, id string, fn func(model.TreeNode) model.TreeNode) ([]model.TreeNode, bool) {
	for i := range nodes {
		if nodes[i].ID == id {
			n := copyNode(nodes[i])
			n.Children = append([]model.TreeNode(nil), n.Children...)
			out := append([]model.TreeNode(nil), nodes...)
			out[i] = fn(n)
			return out, true
		}
		if children, ok := update(nodes[i].Children, id, fn); ok {
			out := append([]model.TreeNode(nil), nodes...)
			out[i].Children = children
			return out, true
		}
	}
	return nodes, false
}

// ExtractNode removes the node with the given ID and returns it along with
// the remaining forest. ok is false, and rest is the input, when id is absent.
func ExtractNode(forest []model.TreeNode, id string) (node model.TreeNode, rest []model.TreeNode, ok bool) {
	for i := range forest {
		if forest[i].ID == id {
			rest = make([]model.TreeNode, 0, len(forest)-1)
			rest = append(rest, forest[:i]...)
			rest = append(rest, forest[i+1:]...)
			return forest[i], rest, true
		}
		if n, children, found := ExtractNode(forest[i].Children, id); found {
			rest = append([]model.TreeNode(nil), forest...)
			rest[i].Children = children
			return n, rest, true
		}
	}
	return model.TreeNode{}, forest, false
}

// ExtractNodes extracts each ID in turn. Later IDs are searched in the
// remainder left by earlier ones, so a node that sits inside an already
// extracted subtree travels with that subtree instead of being pulled out.
func ExtractNodes(forest []model.TreeNode, ids []string) (extracted []model.TreeNode, rest []model.TreeNode) {
	rest = forest
	for _, id := range ids {
		n, r, ok := ExtractNode(rest, id)
		if !ok {
			continue
		}
		extracted = append(extracted, n)
		rest = r
	}
	return extracted, rest
}

func prepend(list []model.TreeNode, nodes ...model.TreeNode) []model.TreeNode {
	out := make([]model.TreeNode, 0, len(nodes)+len(list))
	out = append(out, nodes...)
	return append(out, list...)
}
