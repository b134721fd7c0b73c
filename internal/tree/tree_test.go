package tree

import (
	"errors"
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"bm-go/internal/model"
)

// n builds a folder node with the given children.
func n(id string, children ...model.TreeNode) model.TreeNode {
	return model.TreeNode{ID: id, Title: "title " + id, Children: children}
}

// link builds a node with a URL and optional children.
func link(id, url string, children ...model.TreeNode) model.TreeNode {
	return model.TreeNode{ID: id, Title: "title " + id, URL: url, Children: children}
}

// sampleForest returns:
//
//	a
//	  a1
//	    a1x
//	  a2
//	b (link with children)
//	  b1
//	c
func sampleForest() []model.TreeNode {
	return []model.TreeNode{
		n("a", n("a1", n("a1x")), n("a2")),
		link("b", "https://b.example", n("b1")),
		n("c"),
	}
}

func diffForest(want, got []model.TreeNode) string {
	return cmp.Diff(want, got, cmpopts.EquateEmpty())
}

// assertNoSelfAncestor fails if any node appears below itself or an ID repeats.
func assertNoSelfAncestor(t *testing.T, forest []model.TreeNode) {
	t.Helper()
	var visit func(nodes []model.TreeNode, path map[string]bool)
	visit = func(nodes []model.TreeNode, path map[string]bool) {
		for _, node := range nodes {
			if path[node.ID] {
				t.Fatalf("node %s is its own ancestor", node.ID)
			}
			path[node.ID] = true
			visit(node.Children, path)
			delete(path, node.ID)
		}
	}
	visit(forest, map[string]bool{})
	if err := Validate(forest); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
}

func TestFind(t *testing.T) {
	forest := sampleForest()

	got, ok := Find(forest, "a1x")
	if !ok {
		t.Fatal("Find(a1x) not found")
	}
	if got.Title != "title a1x" {
		t.Errorf("Find(a1x).Title = %q, want %q", got.Title, "title a1x")
	}

	if _, ok := Find(forest, "missing"); ok {
		t.Error("Find(missing) = found, want not found")
	}
}

func TestCountDepthIDs(t *testing.T) {
	forest := sampleForest()

	if got := Count(forest); got != 7 {
		t.Errorf("Count() = %d, want 7", got)
	}
	if got := Depth(forest); got != 3 {
		t.Errorf("Depth() = %d, want 3", got)
	}
	want := []string{"a", "a1", "a1x", "a2", "b", "b1", "c"}
	if diff := cmp.Diff(want, IDs(forest)); diff != "" {
		t.Errorf("IDs() mismatch (-want +got):\n%s", diff)
	}
}

func TestIsLeaf(t *testing.T) {
	if IsLeaf(link("b", "https://b.example", n("b1"))) {
		t.Error("IsLeaf(link with children) = true, want false")
	}
	if !IsLeaf(n("folder")) {
		t.Error("IsLeaf(empty folder) = false, want true")
	}
	if !IsLeaf(link("l", "https://l.example")) {
		t.Error("IsLeaf(plain link) = false, want true")
	}
}

func TestValidate(t *testing.T) {
	t.Run("accepts unique ids", func(t *testing.T) {
		if err := Validate(sampleForest()); err != nil {
			t.Errorf("Validate() error = %v", err)
		}
	})

	t.Run("rejects duplicate ids", func(t *testing.T) {
		forest := []model.TreeNode{n("a", n("x")), n("x")}
		err := Validate(forest)
		if !errors.Is(err, ErrDuplicateID) {
			t.Errorf("Validate() error = %v, want ErrDuplicateID", err)
		}
	})

	t.Run("rejects empty ids", func(t *testing.T) {
		if err := Validate([]model.TreeNode{n("")}); err == nil {
			t.Error("Validate() expected error for empty id")
		}
	})
}

func TestDuplicate(t *testing.T) {
	counter := 0
	newID := func() string {
		counter++
		return fmt.Sprintf("new-%d", counter)
	}

	src := link("b", "https://b.example", n("b1"))
	src.Comment = "keep me"
	src.Tags = []string{"t1"}
	src.Offline = &model.OfflineCopy{ID: 7, Path: "/tmp/b.mhtml", MIME: "multipart/related"}

	dup := Duplicate(src, newID)

	if dup.ID != "new-1" || dup.Children[0].ID != "new-2" {
		t.Errorf("Duplicate() ids = %s/%s, want new-1/new-2", dup.ID, dup.Children[0].ID)
	}
	if dup.URL != src.URL || dup.Comment != src.Comment || dup.Title != src.Title {
		t.Errorf("Duplicate() lost fields: %+v", dup)
	}

	dup.Tags[0] = "changed"
	dup.Offline.Path = "/elsewhere"
	if src.Tags[0] != "t1" || src.Offline.Path != "/tmp/b.mhtml" {
		t.Error("Duplicate() shares memory with the source node")
	}
}

func TestFilter(t *testing.T) {
	forest := sampleForest()

	got := Filter(forest, "A1X")
	want := []model.TreeNode{n("a", n("a1", n("a1x")))}
	if diff := diffForest(want, got); diff != "" {
		t.Errorf("Filter(title) mismatch (-want +got):\n%s", diff)
	}

	got = Filter(forest, "b.example")
	want = []model.TreeNode{link("b", "https://b.example")}
	if diff := diffForest(want, got); diff != "" {
		t.Errorf("Filter(url) mismatch (-want +got):\n%s", diff)
	}

	if diff := diffForest(forest, Filter(forest, "  ")); diff != "" {
		t.Errorf("Filter(blank) changed the forest:\n%s", diff)
	}
}

func TestFilterByDepth(t *testing.T) {
	forest := sampleForest()

	got := FilterByDepth(forest, 1)
	want := []model.TreeNode{n("a"), link("b", "https://b.example"), n("c")}
	if diff := diffForest(want, got); diff != "" {
		t.Errorf("FilterByDepth(1) mismatch (-want +got):\n%s", diff)
	}

	if d := Depth(FilterByDepth(forest, 2)); d != 2 {
		t.Errorf("Depth(FilterByDepth(2)) = %d, want 2", d)
	}
	if Count(forest) != 7 {
		t.Error("FilterByDepth() modified the input forest")
	}
	if diff := diffForest(forest, FilterByDepth(forest, 0)); diff != "" {
		t.Errorf("FilterByDepth(0) changed the forest:\n%s", diff)
	}
}
