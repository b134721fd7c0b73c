package bm_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"bm-go/internal/bm"
	"bm-go/internal/model"
	"bm-go/internal/testutil"
	"bm-go/internal/tree"
)

type fixture struct {
	svc    *bm.BMService
	vault  *testutil.RecordingVault
	clock  *testutil.StubClock
	buffer bm.StagedBuffer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clock := testutil.FixedClock()
	vault := testutil.NewTestVault()
	buffer := testutil.NewTestBuffer(clock)
	svc := bm.NewBMService(
		testutil.NewTestDatabase(t),
		vault,
		buffer,
		testutil.NewTestEncryptor(),
		bm.NewNopLogger(),
		clock,
		testutil.NewStubIDGenerator(),
	)
	return &fixture{svc: svc, vault: vault, clock: clock, buffer: buffer}
}

func (f *fixture) createDocument(t *testing.T, title string, forest []model.TreeNode) *model.Document {
	t.Helper()
	ctx := context.Background()
	doc, err := f.svc.CreateDocument(ctx, title)
	if err != nil {
		t.Fatalf("CreateDocument() error = %v", err)
	}
	if forest == nil {
		return doc
	}
	doc, err = f.svc.Commit(ctx, doc.ID, forest)
	if err != nil {
		t.Fatalf("Commit() error = %v", err)
	}
	return doc
}

func folder(id, title string, children ...model.TreeNode) model.TreeNode {
	return model.TreeNode{ID: id, Title: title, Children: children}
}

func link(id, title, url string) model.TreeNode {
	return model.TreeNode{ID: id, Title: title, URL: url}
}

var equateEmpty = cmpopts.EquateEmpty()

func TestBMService_CreateDocument(t *testing.T) {
	t.Run("uses default title for blank input", func(t *testing.T) {
		f := newFixture(t)
		doc := f.createDocument(t, "   ", nil)

		if doc.Title != bm.DefaultDocumentTitle {
			t.Errorf("Title = %q, want %q", doc.Title, bm.DefaultDocumentTitle)
		}
		if !doc.CreatedAt.Equal(f.clock.Now()) {
			t.Errorf("CreatedAt = %v, want %v", doc.CreatedAt, f.clock.Now())
		}
		if len(doc.Nodes) != 0 {
			t.Errorf("Nodes = %v, want empty", doc.Nodes)
		}
	})

	t.Run("writes a snapshot to the vault", func(t *testing.T) {
		f := newFixture(t)
		f.createDocument(t, "Reading", nil)

		if got := f.vault.Puts(); got != 1 {
			t.Errorf("Puts() = %d, want 1", got)
		}
		exists, err := f.vault.Exists(bm.SnapshotKey)
		if err != nil {
			t.Fatalf("Exists() error = %v", err)
		}
		if !exists {
			t.Error("snapshot key missing from vault")
		}
	})
}

func TestBMService_Documents(t *testing.T) {
	ctx := context.Background()

	t.Run("lists documents", func(t *testing.T) {
		f := newFixture(t)
		f.createDocument(t, "One", nil)
		f.clock.Advance(1)
		f.createDocument(t, "Two", nil)

		docs, err := f.svc.ListDocuments(ctx)
		if err != nil {
			t.Fatalf("ListDocuments() error = %v", err)
		}
		var titles []string
		for _, d := range docs {
			titles = append(titles, d.Title)
		}
		if diff := cmp.Diff([]string{"Two", "One"}, titles); diff != "" {
			t.Errorf("titles mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("renames a document", func(t *testing.T) {
		f := newFixture(t)
		doc := f.createDocument(t, "Old", []model.TreeNode{link("a", "A", "https://a.example")})

		renamed, err := f.svc.RenameDocument(ctx, doc.ID, "New")
		if err != nil {
			t.Fatalf("RenameDocument() error = %v", err)
		}
		if renamed.Title != "New" {
			t.Errorf("Title = %q, want %q", renamed.Title, "New")
		}
		if len(renamed.Nodes) != 1 {
			t.Errorf("len(Nodes) = %d, want 1", len(renamed.Nodes))
		}
	})

	t.Run("rename of missing document returns nil", func(t *testing.T) {
		f := newFixture(t)
		doc, err := f.svc.RenameDocument(ctx, "missing", "New")
		if err != nil {
			t.Fatalf("RenameDocument() error = %v", err)
		}
		if doc != nil {
			t.Errorf("RenameDocument() = %v, want nil", doc)
		}
	})

	t.Run("deletes a document and its nodes", func(t *testing.T) {
		f := newFixture(t)
		doc := f.createDocument(t, "Gone", []model.TreeNode{link("a", "A", "https://a.example")})

		if err := f.svc.DeleteDocument(ctx, doc.ID); err != nil {
			t.Fatalf("DeleteDocument() error = %v", err)
		}
		loaded, err := f.svc.LoadDocument(ctx, doc.ID)
		if err != nil {
			t.Fatalf("LoadDocument() error = %v", err)
		}
		if loaded != nil {
			t.Errorf("LoadDocument() = %v, want nil", loaded)
		}
	})
}

func TestBMService_Commit(t *testing.T) {
	ctx := context.Background()

	t.Run("round-trips a forest", func(t *testing.T) {
		f := newFixture(t)
		forest := []model.TreeNode{
			folder("f1", "Work",
				link("a", "Docs", "https://docs.example"),
				folder("f2", "Empty"),
			),
			{
				ID:      "b",
				Title:   "Paper",
				URL:     "https://paper.example",
				Comment: "read later",
				Tags:    []string{"t2", "t1"},
				Offline: &model.OfflineCopy{ID: 7, Path: "offline/paper.pdf", MIME: "application/pdf"},
			},
		}
		doc := f.createDocument(t, "Doc", forest)

		if diff := cmp.Diff(forest, doc.Nodes, equateEmpty); diff != "" {
			t.Errorf("committed forest mismatch (-want +got):\n%s", diff)
		}

		loaded, err := f.svc.LoadDocument(ctx, doc.ID)
		if err != nil {
			t.Fatalf("LoadDocument() error = %v", err)
		}
		if diff := cmp.Diff(forest, loaded.Nodes, equateEmpty); diff != "" {
			t.Errorf("loaded forest mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("replaces previous contents", func(t *testing.T) {
		f := newFixture(t)
		doc := f.createDocument(t, "Doc", []model.TreeNode{link("a", "A", "https://a.example")})

		next := []model.TreeNode{link("b", "B", "https://b.example")}
		got, err := f.svc.Commit(ctx, doc.ID, next)
		if err != nil {
			t.Fatalf("Commit() error = %v", err)
		}
		if diff := cmp.Diff(next, got.Nodes, equateEmpty); diff != "" {
			t.Errorf("forest mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("rejects duplicate ids", func(t *testing.T) {
		f := newFixture(t)
		doc := f.createDocument(t, "Doc", nil)
		before := f.vault.Puts()

		_, err := f.svc.Commit(ctx, doc.ID, []model.TreeNode{
			folder("x", "X", link("x", "dup", "https://dup.example")),
		})
		if !errors.Is(err, tree.ErrDuplicateID) {
			t.Fatalf("Commit() error = %v, want %v", err, tree.ErrDuplicateID)
		}
		if got := f.vault.Puts(); got != before {
			t.Errorf("Puts() = %d, want %d", got, before)
		}
	})

	t.Run("missing document is dropped", func(t *testing.T) {
		f := newFixture(t)
		doc, err := f.svc.Commit(ctx, "missing", []model.TreeNode{link("a", "A", "https://a.example")})
		if err != nil {
			t.Fatalf("Commit() error = %v", err)
		}
		if doc != nil {
			t.Errorf("Commit() = %v, want nil", doc)
		}
		if got := f.vault.Puts(); got != 0 {
			t.Errorf("Puts() = %d, want 0", got)
		}
	})

	t.Run("vault failure returns the stored document", func(t *testing.T) {
		f := newFixture(t)
		doc := f.createDocument(t, "Doc", nil)
		f.vault.FailPuts(errors.New("disk full"))

		got, err := f.svc.Commit(ctx, doc.ID, []model.TreeNode{link("a", "A", "https://a.example")})
		if !errors.Is(err, bm.ErrNotPersisted) {
			t.Fatalf("Commit() error = %v, want %v", err, bm.ErrNotPersisted)
		}
		if got == nil || !tree.Contains(got.Nodes, "a") {
			t.Errorf("Commit() = %v, want the stored document", got)
		}
	})
}

func TestBMService_Tags(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	if _, err := f.svc.CreateTag(ctx, "  ", "", ""); err == nil {
		t.Error("CreateTag() expected error for blank name")
	}

	tag, err := f.svc.CreateTag(ctx, " reading ", "#ff0000", "to read")
	if err != nil {
		t.Fatalf("CreateTag() error = %v", err)
	}
	if tag.Name != "reading" {
		t.Errorf("Name = %q, want %q", tag.Name, "reading")
	}
	if _, err := f.svc.CreateTag(ctx, "reading", "", ""); err == nil {
		t.Error("CreateTag() expected error for duplicate name")
	}

	tags, err := f.svc.ListTags(ctx)
	if err != nil {
		t.Fatalf("ListTags() error = %v", err)
	}
	if len(tags) != 1 {
		t.Fatalf("len(ListTags()) = %d, want 1", len(tags))
	}

	if err := f.svc.DeleteTag(ctx, tag.ID); err != nil {
		t.Fatalf("DeleteTag() error = %v", err)
	}
	tags, err = f.svc.ListTags(ctx)
	if err != nil {
		t.Fatalf("ListTags() error = %v", err)
	}
	if len(tags) != 0 {
		t.Errorf("len(ListTags()) = %d, want 0", len(tags))
	}
}

func TestBMService_Settings(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	if _, ok, err := f.svc.GetSetting(ctx, "theme"); err != nil || ok {
		t.Fatalf("GetSetting() = _, %v, %v, want false, nil", ok, err)
	}
	if err := f.svc.SetSetting(ctx, "theme", "dark"); err != nil {
		t.Fatalf("SetSetting() error = %v", err)
	}
	value, ok, err := f.svc.GetSetting(ctx, "theme")
	if err != nil {
		t.Fatalf("GetSetting() error = %v", err)
	}
	if !ok || value != "dark" {
		t.Errorf("GetSetting() = %q, %v, want %q, true", value, ok, "dark")
	}
}

func TestBMService_Status(t *testing.T) {
	t.Run("starts unpersisted", func(t *testing.T) {
		f := newFixture(t)
		st := f.svc.Status()
		if st.Backend != bm.Backend {
			t.Errorf("Backend = %q, want %q", st.Backend, bm.Backend)
		}
		if st.Persisted {
			t.Error("Persisted = true, want false")
		}
		if st.LastSaveAt != nil {
			t.Errorf("LastSaveAt = %v, want nil", st.LastSaveAt)
		}
	})

	t.Run("subscribers see every save", func(t *testing.T) {
		f := newFixture(t)
		var seen []bm.Status
		unsubscribe := f.svc.Subscribe(func(st bm.Status) { seen = append(seen, st) })

		if len(seen) != 1 {
			t.Fatalf("len(seen) = %d after Subscribe, want 1", len(seen))
		}

		f.createDocument(t, "Doc", nil)
		if len(seen) != 2 {
			t.Fatalf("len(seen) = %d after save, want 2", len(seen))
		}
		last := seen[1]
		if !last.Persisted {
			t.Error("Persisted = false after save, want true")
		}
		if last.LastSaveAt == nil || !last.LastSaveAt.Equal(f.clock.Now()) {
			t.Errorf("LastSaveAt = %v, want %v", last.LastSaveAt, f.clock.Now())
		}

		unsubscribe()
		f.createDocument(t, "Other", nil)
		if len(seen) != 2 {
			t.Errorf("len(seen) = %d after unsubscribe, want 2", len(seen))
		}
	})

	t.Run("failed save clears persisted", func(t *testing.T) {
		f := newFixture(t)
		f.createDocument(t, "Doc", nil)
		f.vault.FailPuts(errors.New("offline"))

		if _, err := f.svc.CreateDocument(context.Background(), "Other"); err == nil {
			t.Fatal("CreateDocument() expected error")
		}
		st := f.svc.Status()
		if st.Persisted {
			t.Error("Persisted = true after failed save, want false")
		}
		if st.LastSaveAt == nil {
			t.Error("LastSaveAt = nil, want time of last successful save")
		}

		f.vault.FailPuts(nil)
		if st := f.svc.RefreshPersisted(); !st.Persisted {
			t.Error("RefreshPersisted().Persisted = false, want true")
		}
	})
}
