package bm_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"bm-go/internal/bm"
	"bm-go/internal/model"
	"bm-go/internal/testutil"
	"bm-go/internal/tree"
)

func titles(nodes []model.TreeNode) []string {
	var out []string
	for _, n := range nodes {
		out = append(out, n.Title)
	}
	return out
}

func selected(doc *model.Document, ids ...string) *bm.Selection {
	sel := bm.NewSelection()
	for _, id := range ids {
		n, _ := tree.Find(doc.Nodes, id)
		sel.Add(bm.SelectionEntry{DocumentID: doc.ID, NodeID: id, Title: n.Title, URL: n.URL})
	}
	return sel
}

func (f *fixture) stage(t *testing.T, items ...bm.Candidate) {
	t.Helper()
	if err := f.buffer.Stage(context.Background(), items); err != nil {
		t.Fatalf("Stage() error = %v", err)
	}
}

func TestBMService_UniversalAdd_Tiers(t *testing.T) {
	ctx := context.Background()

	t.Run("selection wins over staged", func(t *testing.T) {
		f := newFixture(t)
		doc := f.createDocument(t, "Doc", []model.TreeNode{link("a", "A", "https://a.example")})
		f.stage(t, bm.Candidate{Title: "Staged", URL: "https://staged.example"})
		sel := selected(doc, "a")

		res, err := f.svc.UniversalAdd(ctx, bm.AddRequest{TargetDocID: doc.ID, Selection: sel})
		if err != nil {
			t.Fatalf("UniversalAdd() error = %v", err)
		}
		if res.Source != bm.SourceSelection {
			t.Errorf("Source = %q, want %q", res.Source, bm.SourceSelection)
		}
		got := res.Documents[doc.ID].Nodes
		if diff := cmp.Diff([]string{"A", "A"}, titles(got)); diff != "" {
			t.Errorf("titles mismatch (-want +got):\n%s", diff)
		}
		if got[0].ID == "a" || got[0].ID != res.AddedIDs[0] {
			t.Errorf("copy id = %q, want fresh id %q", got[0].ID, res.AddedIDs[0])
		}
		if sel.Len() != 0 {
			t.Errorf("selection Len() = %d after add, want 0", sel.Len())
		}

		staged, err := f.buffer.Peek(ctx)
		if err != nil {
			t.Fatalf("Peek() error = %v", err)
		}
		if len(staged) != 1 {
			t.Errorf("staged = %v, want the staged item untouched", staged)
		}
	})

	t.Run("staged items are consumed", func(t *testing.T) {
		f := newFixture(t)
		doc := f.createDocument(t, "Doc", nil)
		f.stage(t,
			bm.Candidate{URL: "https://untitled.example"},
			bm.Candidate{Title: "Titled", URL: "https://titled.example"},
			bm.Candidate{Title: "No URL"},
		)

		res, err := f.svc.UniversalAdd(ctx, bm.AddRequest{
			TargetDocID: doc.ID,
			Current:     &bm.Candidate{Title: "Current", URL: "https://current.example"},
		})
		if err != nil {
			t.Fatalf("UniversalAdd() error = %v", err)
		}
		if res.Source != bm.SourceStaged {
			t.Errorf("Source = %q, want %q", res.Source, bm.SourceStaged)
		}
		if res.Count != 2 {
			t.Errorf("Count = %d, want 2", res.Count)
		}
		want := []string{"https://untitled.example", "Titled"}
		if diff := cmp.Diff(want, titles(res.Documents[doc.ID].Nodes)); diff != "" {
			t.Errorf("titles mismatch (-want +got):\n%s", diff)
		}

		staged, err := f.buffer.Peek(ctx)
		if err != nil {
			t.Fatalf("Peek() error = %v", err)
		}
		if len(staged) != 0 {
			t.Errorf("staged = %v after add, want empty", staged)
		}
	})

	t.Run("current item is the last resort", func(t *testing.T) {
		f := newFixture(t)
		doc := f.createDocument(t, "Doc", nil)

		res, err := f.svc.UniversalAdd(ctx, bm.AddRequest{
			TargetDocID: doc.ID,
			Current:     &bm.Candidate{Title: "Current", URL: "https://current.example"},
		})
		if err != nil {
			t.Fatalf("UniversalAdd() error = %v", err)
		}
		if res.Source != bm.SourceCurrent {
			t.Errorf("Source = %q, want %q", res.Source, bm.SourceCurrent)
		}
		nodes := res.Documents[doc.ID].Nodes
		if len(nodes) != 1 || nodes[0].URL != "https://current.example" {
			t.Errorf("Nodes = %v, want the current item", nodes)
		}
	})

	t.Run("nothing to add", func(t *testing.T) {
		f := newFixture(t)
		doc := f.createDocument(t, "Doc", nil)
		before := f.vault.Puts()

		_, err := f.svc.UniversalAdd(ctx, bm.AddRequest{TargetDocID: doc.ID, Selection: bm.NewSelection()})
		if !errors.Is(err, bm.ErrNothingToAdd) {
			t.Fatalf("UniversalAdd() error = %v, want %v", err, bm.ErrNothingToAdd)
		}
		if got := f.vault.Puts(); got != before {
			t.Errorf("Puts() = %d, want %d", got, before)
		}
	})

	t.Run("missing target restages staged items", func(t *testing.T) {
		f := newFixture(t)
		f.stage(t, bm.Candidate{Title: "Keep", URL: "https://keep.example"})

		_, err := f.svc.UniversalAdd(ctx, bm.AddRequest{TargetDocID: "missing"})
		if !errors.Is(err, bm.ErrNotFound) {
			t.Fatalf("UniversalAdd() error = %v, want %v", err, bm.ErrNotFound)
		}
		staged, err := f.buffer.Peek(ctx)
		if err != nil {
			t.Fatalf("Peek() error = %v", err)
		}
		want := []bm.Candidate{{Title: "Keep", URL: "https://keep.example"}}
		if diff := cmp.Diff(want, staged); diff != "" {
			t.Errorf("staged mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("failed export keeps stored staged items consumed", func(t *testing.T) {
		f := newFixture(t)
		doc := f.createDocument(t, "Doc", nil)
		f.stage(t, bm.Candidate{Title: "S", URL: "https://s.example"})
		f.vault.FailPuts(errors.New("offline"))

		res, err := f.svc.UniversalAdd(ctx, bm.AddRequest{TargetDocID: doc.ID})
		if err != nil {
			t.Fatalf("UniversalAdd() error = %v", err)
		}
		if !res.NotPersisted {
			t.Error("NotPersisted = false, want true")
		}
		if f.svc.Status().Persisted {
			t.Error("Status().Persisted = true after failed export")
		}

		f.vault.FailPuts(nil)
		if _, err := f.svc.UniversalAdd(ctx, bm.AddRequest{TargetDocID: doc.ID}); !errors.Is(err, bm.ErrNothingToAdd) {
			t.Errorf("second UniversalAdd() error = %v, want %v", err, bm.ErrNothingToAdd)
		}
		stored, err := f.svc.LoadDocument(ctx, doc.ID)
		if err != nil {
			t.Fatalf("LoadDocument() error = %v", err)
		}
		if diff := cmp.Diff([]string{"S"}, titles(stored.Nodes)); diff != "" {
			t.Errorf("titles mismatch (-want +got):\n%s", diff)
		}
	})
}

func TestBMService_UniversalAdd_Placement(t *testing.T) {
	ctx := context.Background()

	t.Run("prepends the block under the parent", func(t *testing.T) {
		f := newFixture(t)
		doc := f.createDocument(t, "Doc", []model.TreeNode{
			folder("f", "Folder", link("old", "Old", "https://old.example")),
		})
		f.stage(t,
			bm.Candidate{Title: "One", URL: "https://one.example"},
			bm.Candidate{Title: "Two", URL: "https://two.example"},
		)

		res, err := f.svc.UniversalAdd(ctx, bm.AddRequest{TargetDocID: doc.ID, ParentID: "f"})
		if err != nil {
			t.Fatalf("UniversalAdd() error = %v", err)
		}
		if res.Redirected {
			t.Error("Redirected = true, want false")
		}
		parent, _ := tree.Find(res.Documents[doc.ID].Nodes, "f")
		if diff := cmp.Diff([]string{"One", "Two", "Old"}, titles(parent.Children)); diff != "" {
			t.Errorf("children mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("missing parent falls back to the top level", func(t *testing.T) {
		f := newFixture(t)
		doc := f.createDocument(t, "Doc", []model.TreeNode{link("a", "A", "https://a.example")})

		res, err := f.svc.UniversalAdd(ctx, bm.AddRequest{
			TargetDocID: doc.ID,
			ParentID:    "nope",
			Current:     &bm.Candidate{Title: "Current", URL: "https://current.example"},
		})
		if err != nil {
			t.Fatalf("UniversalAdd() error = %v", err)
		}
		if !res.Redirected || res.ParentID != tree.Root {
			t.Errorf("Redirected, ParentID = %v, %q, want true, root", res.Redirected, res.ParentID)
		}
		if diff := cmp.Diff([]string{"Current", "A"}, titles(res.Documents[doc.ID].Nodes)); diff != "" {
			t.Errorf("titles mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("uses the live forest of a loaded document", func(t *testing.T) {
		f := newFixture(t)
		doc := f.createDocument(t, "Doc", nil)
		live := []model.TreeNode{link("unsaved", "Unsaved", "https://unsaved.example")}

		res, err := f.svc.UniversalAdd(ctx, bm.AddRequest{
			TargetDocID: doc.ID,
			Current:     &bm.Candidate{Title: "Current", URL: "https://current.example"},
			Forests:     map[string][]model.TreeNode{doc.ID: live},
		})
		if err != nil {
			t.Fatalf("UniversalAdd() error = %v", err)
		}
		if diff := cmp.Diff([]string{"Current", "Unsaved"}, titles(res.Documents[doc.ID].Nodes)); diff != "" {
			t.Errorf("titles mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("copies carry the whole subtree with fresh ids", func(t *testing.T) {
		f := newFixture(t)
		doc := f.createDocument(t, "Doc", []model.TreeNode{
			folder("f", "Folder", link("a", "A", "https://a.example")),
		})

		res, err := f.svc.UniversalAdd(ctx, bm.AddRequest{TargetDocID: doc.ID, Selection: selected(doc, "f")})
		if err != nil {
			t.Fatalf("UniversalAdd() error = %v", err)
		}
		nodes := res.Documents[doc.ID].Nodes
		if len(nodes) != 2 {
			t.Fatalf("len(Nodes) = %d, want 2", len(nodes))
		}
		if err := tree.Validate(nodes); err != nil {
			t.Errorf("Validate() error = %v", err)
		}
		if got := tree.Count(nodes); got != 4 {
			t.Errorf("Count() = %d, want 4", got)
		}
	})
}

func TestBMService_UniversalAdd_Move(t *testing.T) {
	ctx := context.Background()

	t.Run("moves siblings into a folder", func(t *testing.T) {
		f := newFixture(t)
		doc := f.createDocument(t, "Doc", []model.TreeNode{
			folder("f", "Folder"),
			link("a", "A", "https://a.example"),
			link("b", "B", "https://b.example"),
		})

		res, err := f.svc.UniversalAdd(ctx, bm.AddRequest{
			TargetDocID: doc.ID,
			ParentID:    "f",
			Selection:   selected(doc, "a", "b"),
			Move:        true,
		})
		if err != nil {
			t.Fatalf("UniversalAdd() error = %v", err)
		}
		if len(res.Leftovers) != 0 {
			t.Errorf("Leftovers = %v, want none", res.Leftovers)
		}

		stored, err := f.svc.LoadDocument(ctx, doc.ID)
		if err != nil {
			t.Fatalf("LoadDocument() error = %v", err)
		}
		if diff := cmp.Diff([]string{"Folder"}, titles(stored.Nodes)); diff != "" {
			t.Errorf("top level mismatch (-want +got):\n%s", diff)
		}
		if diff := cmp.Diff([]string{"A", "B"}, titles(stored.Nodes[0].Children)); diff != "" {
			t.Errorf("folder children mismatch (-want +got):\n%s", diff)
		}
		if tree.Contains(stored.Nodes, "a") || tree.Contains(stored.Nodes, "b") {
			t.Error("originals still present after move")
		}
	})

	t.Run("descendant selected with its ancestor is copied once", func(t *testing.T) {
		f := newFixture(t)
		src := f.createDocument(t, "Source", []model.TreeNode{
			folder("a", "A", link("b", "B", "https://b.example")),
			link("c", "C", "https://c.example"),
		})
		dst := f.createDocument(t, "Target", nil)

		res, err := f.svc.UniversalAdd(ctx, bm.AddRequest{
			TargetDocID: dst.ID,
			Selection:   selected(src, "a", "b"),
			Move:        true,
		})
		if err != nil {
			t.Fatalf("UniversalAdd() error = %v", err)
		}
		if res.Count != 1 || len(res.Leftovers) != 0 {
			t.Errorf("UniversalAdd() = Count %d, Leftovers %v, want 1 and none", res.Count, res.Leftovers)
		}

		moved := res.Documents[dst.ID].Nodes
		if diff := cmp.Diff([]string{"A"}, titles(moved)); diff != "" {
			t.Errorf("target mismatch (-want +got):\n%s", diff)
		}
		if got := tree.Count(moved); got != 2 {
			t.Errorf("Count() = %d, want 2 (A and one B)", got)
		}
		if diff := cmp.Diff([]string{"C"}, titles(res.Documents[src.ID].Nodes)); diff != "" {
			t.Errorf("source mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("target inside a moved subtree is redirected", func(t *testing.T) {
		f := newFixture(t)
		doc := f.createDocument(t, "Doc", []model.TreeNode{
			folder("f", "Folder", folder("g", "Inner")),
		})

		res, err := f.svc.UniversalAdd(ctx, bm.AddRequest{
			TargetDocID: doc.ID,
			ParentID:    "g",
			Selection:   selected(doc, "f"),
			Move:        true,
		})
		if err != nil {
			t.Fatalf("UniversalAdd() error = %v", err)
		}
		if !res.Redirected {
			t.Error("Redirected = false, want true")
		}

		nodes := res.Documents[doc.ID].Nodes
		if len(nodes) != 1 {
			t.Fatalf("len(Nodes) = %d, want 1", len(nodes))
		}
		if nodes[0].ID == "f" || nodes[0].Title != "Folder" {
			t.Errorf("top level = %+v, want a fresh copy of the folder", nodes[0])
		}
		if diff := cmp.Diff([]string{"Inner"}, titles(nodes[0].Children)); diff != "" {
			t.Errorf("children mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("moves across documents", func(t *testing.T) {
		f := newFixture(t)
		src := f.createDocument(t, "Source", []model.TreeNode{
			link("a", "A", "https://a.example"),
			link("keep", "Keep", "https://keep.example"),
		})
		dst := f.createDocument(t, "Target", nil)

		res, err := f.svc.UniversalAdd(ctx, bm.AddRequest{
			TargetDocID: dst.ID,
			Selection:   selected(src, "a"),
			Move:        true,
		})
		if err != nil {
			t.Fatalf("UniversalAdd() error = %v", err)
		}
		if diff := cmp.Diff([]string{"A"}, titles(res.Documents[dst.ID].Nodes)); diff != "" {
			t.Errorf("target mismatch (-want +got):\n%s", diff)
		}
		if diff := cmp.Diff([]string{"Keep"}, titles(res.Documents[src.ID].Nodes)); diff != "" {
			t.Errorf("source mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("unloaded selection uses stored values", func(t *testing.T) {
		f := newFixture(t)
		dst := f.createDocument(t, "Target", nil)
		sel := bm.NewSelection(bm.SelectionEntry{
			DocumentID: "closed",
			NodeID:     "n",
			Title:      "Remembered",
			URL:        "https://remembered.example",
		})

		res, err := f.svc.UniversalAdd(ctx, bm.AddRequest{TargetDocID: dst.ID, Selection: sel, Move: true})
		if err != nil {
			t.Fatalf("UniversalAdd() error = %v", err)
		}
		nodes := res.Documents[dst.ID].Nodes
		if len(nodes) != 1 || nodes[0].Title != "Remembered" || nodes[0].ID == "n" {
			t.Errorf("Nodes = %+v, want a fresh copy titled Remembered", nodes)
		}
		if len(res.Leftovers) != 0 {
			t.Errorf("Leftovers = %v, want none", res.Leftovers)
		}
	})

	t.Run("failed delete is reported as a leftover", func(t *testing.T) {
		f := newFixture(t)
		dst := f.createDocument(t, "Target", nil)
		ghost := []model.TreeNode{link("a", "A", "https://a.example")}
		sel := bm.NewSelection(bm.SelectionEntry{DocumentID: "ghost", NodeID: "a", Title: "A"})

		res, err := f.svc.UniversalAdd(ctx, bm.AddRequest{
			TargetDocID: dst.ID,
			Selection:   sel,
			Move:        true,
			Forests:     map[string][]model.TreeNode{"ghost": ghost},
		})
		if err != nil {
			t.Fatalf("UniversalAdd() error = %v", err)
		}
		if len(res.Leftovers) != 1 {
			t.Fatalf("len(Leftovers) = %d, want 1", len(res.Leftovers))
		}
		left := res.Leftovers[0]
		if left.DocumentID != "ghost" || !errors.Is(left.Err, bm.ErrNotFound) {
			t.Errorf("Leftover = %+v, want ghost with ErrNotFound", left)
		}
		if diff := cmp.Diff([]string{"A"}, titles(res.Documents[dst.ID].Nodes)); diff != "" {
			t.Errorf("target mismatch (-want +got):\n%s", diff)
		}
	})
}

func TestBMService_HasItemsToAdd(t *testing.T) {
	ctx := context.Background()
	current := &bm.Candidate{Title: "Current", URL: "https://current.example"}

	t.Run("selection", func(t *testing.T) {
		f := newFixture(t)
		sel := bm.NewSelection(
			bm.SelectionEntry{DocumentID: "d", NodeID: "a"},
			bm.SelectionEntry{DocumentID: "d", NodeID: "b"},
		)
		want := bm.Probe{HasItems: true, Count: 2, Source: bm.SourceSelection}
		if got := f.svc.HasItemsToAdd(ctx, sel, current); got != want {
			t.Errorf("HasItemsToAdd() = %+v, want %+v", got, want)
		}
	})

	t.Run("staged is not consumed", func(t *testing.T) {
		f := newFixture(t)
		f.stage(t, bm.Candidate{URL: "https://x.example"}, bm.Candidate{URL: "https://y.example"})

		want := bm.Probe{HasItems: true, Count: 2, Source: bm.SourceStaged}
		for i := 0; i < 2; i++ {
			if got := f.svc.HasItemsToAdd(ctx, nil, current); got != want {
				t.Errorf("HasItemsToAdd() call %d = %+v, want %+v", i, got, want)
			}
		}
	})

	t.Run("current", func(t *testing.T) {
		f := newFixture(t)
		want := bm.Probe{HasItems: true, Count: 1, Source: bm.SourceCurrent}
		if got := f.svc.HasItemsToAdd(ctx, nil, current); got != want {
			t.Errorf("HasItemsToAdd() = %+v, want %+v", got, want)
		}
	})

	t.Run("nothing", func(t *testing.T) {
		f := newFixture(t)
		if got := f.svc.HasItemsToAdd(ctx, nil, &bm.Candidate{Title: "blank"}); got.HasItems {
			t.Errorf("HasItemsToAdd() = %+v, want no items", got)
		}
	})
}

func TestReconciler_ResolveItemsToAdd(t *testing.T) {
	ctx := context.Background()
	forests := map[string][]model.TreeNode{
		"d": {link("a", "A", "https://a.example")},
	}
	lookup := func(_ context.Context, docID string) ([]model.TreeNode, bool, error) {
		forest, ok := forests[docID]
		return forest, ok, nil
	}

	t.Run("skips selected nodes missing from a loaded document", func(t *testing.T) {
		r := bm.NewReconciler(nil, testutil.NewStubIDGenerator(), bm.NewNopLogger())
		sel := bm.NewSelection(
			bm.SelectionEntry{DocumentID: "d", NodeID: "gone"},
			bm.SelectionEntry{DocumentID: "d", NodeID: "a"},
		)

		items, err := r.ResolveItemsToAdd(ctx, bm.ResolveParams{Selection: sel, Forests: lookup})
		if err != nil {
			t.Fatalf("ResolveItemsToAdd() error = %v", err)
		}
		if len(items) != 1 || items[0].NodeID != "a" || items[0].URL != "https://a.example" {
			t.Errorf("items = %+v, want only a", items)
		}
	})

	t.Run("lookup errors are returned", func(t *testing.T) {
		r := bm.NewReconciler(nil, testutil.NewStubIDGenerator(), bm.NewNopLogger())
		boom := errors.New("boom")
		failing := func(context.Context, string) ([]model.TreeNode, bool, error) { return nil, false, boom }

		_, err := r.ResolveItemsToAdd(ctx, bm.ResolveParams{
			Selection: bm.NewSelection(bm.SelectionEntry{DocumentID: "d", NodeID: "a"}),
			Forests:   failing,
		})
		if !errors.Is(err, boom) {
			t.Errorf("ResolveItemsToAdd() error = %v, want %v", err, boom)
		}
	})

	t.Run("empty tiers resolve to nothing", func(t *testing.T) {
		r := bm.NewReconciler(nil, testutil.NewStubIDGenerator(), bm.NewNopLogger())
		items, err := r.ResolveItemsToAdd(ctx, bm.ResolveParams{})
		if err != nil {
			t.Fatalf("ResolveItemsToAdd() error = %v", err)
		}
		if len(items) != 0 {
			t.Errorf("items = %+v, want none", items)
		}
	})
}

func TestSourceDescription(t *testing.T) {
	tests := []struct {
		source bm.Source
		count  int
		want   string
	}{
		{bm.SourceSelection, 1, "selected bookmark"},
		{bm.SourceSelection, 3, "selected bookmarks (3)"},
		{bm.SourceStaged, 1, "staged tab"},
		{bm.SourceStaged, 2, "staged tabs (2)"},
		{bm.SourceCurrent, 1, "current tab"},
		{bm.Source("other"), 4, "items"},
	}

	for _, tt := range tests {
		if got := bm.SourceDescription(tt.source, tt.count); got != tt.want {
			t.Errorf("SourceDescription(%q, %d) = %q, want %q", tt.source, tt.count, got, tt.want)
		}
	}
}
