package journal

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/starford/wstore/internal/fileservice"
	"github.com/starford/wstore/internal/models"
	"github.com/starford/wstore/internal/pathres"
	"github.com/starford/wstore/internal/storage"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "journal.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func TestSchemaCreation(t *testing.T) {
	db := testDB(t)
	var count int
	for _, table := range []string{"entries", "snapshot"} {
		if err := db.conn.QueryRow(`SELECT count(*) FROM ` + table).Scan(&count); err != nil {
			t.Fatalf("%s table missing: %v", table, err)
		}
	}
}

func TestRecordUpdatesSnapshot(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	if err := db.Record(ctx, models.Change{Path: "a.txt", Op: models.OpCreated, Size: 1, Checksum: "c1", Source: "http"}); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if cs, _ := db.Checksum(ctx, "a.txt"); cs != "c1" {
		t.Errorf("checksum = %q, want c1", cs)
	}

	_ = db.Record(ctx, models.Change{Path: "a.txt", Op: models.OpUpdated, Size: 2, Checksum: "c2", Source: "http"})
	if cs, _ := db.Checksum(ctx, "a.txt"); cs != "c2" {
		t.Errorf("checksum after update = %q, want c2", cs)
	}

	_ = db.Record(ctx, models.Change{Path: "a.txt", Op: models.OpDeleted, Source: "http"})
	if cs, err := db.Checksum(ctx, "a.txt"); cs != "" || err != nil {
		t.Errorf("checksum after delete = %q, %v", cs, err)
	}
}

func TestRecentNewestFirst(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	_ = db.Record(ctx, models.Change{Path: "a.txt", Op: models.OpCreated, Checksum: "1", Source: "http"})
	_ = db.Record(ctx, models.Change{Path: "b.txt", Op: models.OpCreated, Checksum: "2", Source: "mcp"})
	_ = db.Record(ctx, models.Change{Path: "a.txt", Op: models.OpDeleted, Source: "http"})

	all, err := db.Recent(ctx, "", 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("len = %d, want 3", len(all))
	}
	if all[0].Path != "a.txt" || all[0].Op != models.OpDeleted {
		t.Errorf("newest = %+v", all[0])
	}
	if all[0].ID == "" || all[0].ID == all[1].ID {
		t.Errorf("ids not unique: %q %q", all[0].ID, all[1].ID)
	}
	if all[0].At.IsZero() {
		t.Error("missing timestamp")
	}

	onlyA, _ := db.Recent(ctx, "a.txt", 10)
	if len(onlyA) != 2 {
		t.Errorf("a.txt entries = %d, want 2", len(onlyA))
	}
	limited, _ := db.Recent(ctx, "", 1)
	if len(limited) != 1 {
		t.Errorf("limited = %d, want 1", len(limited))
	}
}

func TestSnapshotSubtree(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	for _, p := range []string{"docs/a.txt", "docs/sub/b.txt", "docs_old/c.txt", "docsx.txt", "d%cs/e.txt"} {
		_ = db.Record(ctx, models.Change{Path: p, Op: models.OpCreated, Checksum: "x"})
	}

	snap, err := db.Snapshot(ctx, "docs")
	if err != nil {
		t.Fatal(err)
	}
	if len(snap) != 2 {
		t.Errorf("docs subtree = %v", snap)
	}
	if _, ok := snap["docs_old/c.txt"]; ok {
		t.Error("LIKE wildcard matched docs_old")
	}

	all, _ := db.Snapshot(ctx, "")
	if len(all) != 5 {
		t.Errorf("whole tree = %d entries, want 5", len(all))
	}
}

func TestReconcile(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	root := t.TempDir()
	res, err := pathres.New(root)
	if err != nil {
		t.Fatal(err)
	}
	tree := fileservice.NewService(res, storage.NewEngine())
	r := NewReconciler(db, tree, db, discardLogger())

	_ = os.MkdirAll(filepath.Join(root, "sub"), 0o755)
	_ = os.WriteFile(filepath.Join(root, "a.txt"), []byte("a"), 0o644)
	_ = os.WriteFile(filepath.Join(root, "sub", "b.txt"), []byte("b"), 0o644)

	n, err := r.Reconcile(ctx, "", "reconcile")
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if n != 2 {
		t.Errorf("first pass changes = %d, want 2", n)
	}

	if n, _ := r.Reconcile(ctx, "", "reconcile"); n != 0 {
		t.Errorf("idempotent pass changes = %d, want 0", n)
	}

	_ = os.WriteFile(filepath.Join(root, "a.txt"), []byte("changed"), 0o644)
	_ = os.Remove(filepath.Join(root, "sub", "b.txt"))

	n, err = r.Reconcile(ctx, "", "reconcile")
	if err != nil || n != 2 {
		t.Fatalf("second pass = %d, %v", n, err)
	}
	entries, _ := db.Recent(ctx, "", 2)
	ops := map[string]models.Op{}
	for _, e := range entries {
		ops[e.Path] = e.Op
		if e.Source != "reconcile" {
			t.Errorf("source = %q", e.Source)
		}
	}
	if ops["a.txt"] != models.OpUpdated || ops["sub/b.txt"] != models.OpDeleted {
		t.Errorf("ops = %v", ops)
	}
}

func TestReconcileRemovedDirectory(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	root := t.TempDir()
	res, _ := pathres.New(root)
	r := NewReconciler(db, fileservice.NewService(res, storage.NewEngine()), db, discardLogger())

	_ = os.MkdirAll(filepath.Join(root, "gone"), 0o755)
	_ = os.WriteFile(filepath.Join(root, "gone", "x.txt"), []byte("x"), 0o644)
	_, _ = r.Reconcile(ctx, "", "reconcile")

	_ = os.RemoveAll(filepath.Join(root, "gone"))
	n, err := r.Reconcile(ctx, "gone", "watcher")
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if n != 1 {
		t.Errorf("changes = %d, want 1", n)
	}
	if cs, _ := db.Checksum(ctx, "gone/x.txt"); cs != "" {
		t.Error("snapshot still tracks removed file")
	}
}
