package tree

import "bm-go/internal/model"

// Outcome tells how a structural edit was carried out.
type Outcome int

const (
	// Applied means the edit happened exactly as requested.
	Applied Outcome = iota
	// Redirected means the requested target was invalid (missing, or inside
	// the moved subtree) and the nodes were placed at the top level instead.
	Redirected
	// Unchanged means there was nothing to move.
	Unchanged
)

func (o Outcome) String() string {
	switch o {
	case Applied:
		return "applied"
	case Redirected:
		return "redirected"
	case Unchanged:
		return "unchanged"
	default:
		return "unknown"
	}
}

// Result is the forest produced by a move together with how it was applied.
type Result struct {
	Forest  []model.TreeNode
	Outcome Outcome
}

// CheckTarget decides whether parentID is a valid destination in forest for
// nodes whose subtrees cover forbidden. Root is always valid.
func CheckTarget(forest []model.TreeNode, forbidden map[string]struct{}, parentID string) Outcome {
	if parentID == Root {
		return Applied
	}
	if _, ok := forbidden[parentID]; ok {
		return Redirected
	}
	if !Contains(forest, parentID) {
		return Redirected
	}
	return Applied
}

// Move relocates the subtree rooted at id under parentID, prepending it.
// A move never loses data: when parentID is a descendant of id, or does not
// exist, the subtree goes to the top level and the outcome is Redirected.
func Move(forest []model.TreeNode, id, parentID string) Result {
	node, rest, ok := ExtractNode(forest, id)
	if !ok {
		return Result{Forest: forest, Outcome: Unchanged}
	}
	if CheckTarget(rest, DescendantIDs(node), parentID) == Redirected {
		return Result{Forest: prepend(rest, node), Outcome: Redirected}
	}
	return Result{Forest: InsertChild(rest, parentID, node), Outcome: Applied}
}

// MoveNode is Move without the outcome.
func MoveNode(forest []model.TreeNode, id, parentID string) []model.TreeNode {
	return Move(forest, id, parentID).Forest
}

// MoveMultiple extracts ids in order and inserts every extracted subtree under
// parentID, each one prepended in turn. The target is checked against the
// union of all extracted subtrees; an invalid target sends everything to the
// top level.
func MoveMultiple(forest []model.TreeNode, ids []string, parentID string) Result {
	extracted, rest := ExtractNodes(forest, ids)
	if len(extracted) == 0 {
		return Result{Forest: forest, Outcome: Unchanged}
	}

	forbidden := make(map[string]struct{})
	for _, n := range extracted {
		collectIDs(n, forbidden)
	}

	outcome := CheckTarget(rest, forbidden, parentID)
	target := parentID
	if outcome == Redirected {
		target = Root
	}
	for _, n := range extracted {
		rest = InsertChild(rest, target, n)
	}
	return Result{Forest: rest, Outcome: outcome}
}

// MoveMultipleNodes is MoveMultiple without the outcome.
func MoveMultipleNodes(forest []model.TreeNode, ids []string, parentID string) []model.TreeNode {
	return MoveMultiple(forest, ids, parentID).Forest
}
