package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/starford/wstore/internal/journal"
	"github.com/starford/wstore/internal/models"
	"github.com/starford/wstore/internal/storage"
	"github.com/starford/wstore/internal/testutil"
)

type fakeReconciler struct {
	mu    sync.Mutex
	calls []string
}

func (f *fakeReconciler) Reconcile(_ context.Context, rel, source string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, source+":"+rel)
	return 1, nil
}

func (f *fakeReconciler) saw(call string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.calls {
		if c == call {
			return true
		}
	}
	return false
}

// eventually polls fn every tick until it returns true or timeout elapses.
func eventually(t *testing.T, timeout, tick time.Duration, fn func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(tick)
	}
	t.Error(msg)
}

func startWatch(t *testing.T, root string, r Reconciler) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = Watch(ctx, root, r, 50*time.Millisecond, testutil.QuietLogger())
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	time.Sleep(100 * time.Millisecond)
}

func TestWatcher_NewFileReconciled(t *testing.T) {
	root := t.TempDir()
	r := &fakeReconciler{}
	startWatch(t, root, r)

	_ = os.WriteFile(filepath.Join(root, "new.txt"), []byte("x"), 0o644)

	eventually(t, 5*time.Second, 25*time.Millisecond, func() bool {
		return r.saw("watcher:new.txt")
	}, "new file not reconciled")
}

func TestWatcher_NewDirectoryWatched(t *testing.T) {
	root := t.TempDir()
	r := &fakeReconciler{}
	startWatch(t, root, r)

	sub := filepath.Join(root, "sub")
	_ = os.Mkdir(sub, 0o755)
	eventually(t, 5*time.Second, 25*time.Millisecond, func() bool {
		return r.saw("watcher:sub")
	}, "new dir not reconciled")

	// Give the watcher time to add the new dir, then write inside it.
	time.Sleep(100 * time.Millisecond)
	_ = os.WriteFile(filepath.Join(sub, "inner.txt"), []byte("y"), 0o644)
	eventually(t, 5*time.Second, 25*time.Millisecond, func() bool {
		return r.saw("watcher:sub/inner.txt")
	}, "file in new dir not reconciled")
}

func TestWatcher_TempFilesIgnored(t *testing.T) {
	root := t.TempDir()
	r := &fakeReconciler{}
	startWatch(t, root, r)

	tmp := filepath.Join(root, storage.TempPrefix+"abc")
	_ = os.WriteFile(tmp, []byte("x"), 0o644)
	_ = os.Remove(tmp)
	_ = os.WriteFile(filepath.Join(root, "marker.txt"), []byte("m"), 0o644)

	eventually(t, 5*time.Second, 25*time.Millisecond, func() bool {
		return r.saw("watcher:marker.txt")
	}, "marker not reconciled")
	if r.saw("watcher:" + storage.TempPrefix + "abc") {
		t.Error("temp file was reconciled")
	}
}

func TestWatcher_JournalsOutOfBandEdits(t *testing.T) {
	db := testutil.TestJournal(t)
	tree, root := testutil.TestService(t)
	startWatch(t, root, journal.NewReconciler(db, tree, db, testutil.QuietLogger()))

	target := filepath.Join(root, "edited.txt")
	_ = os.WriteFile(target, []byte("v1"), 0o644)
	eventually(t, 5*time.Second, 25*time.Millisecond, func() bool {
		cs, _ := db.Checksum(context.Background(), "edited.txt")
		return cs != ""
	}, "out-of-band create not journaled")

	_ = os.Remove(target)
	eventually(t, 5*time.Second, 25*time.Millisecond, func() bool {
		entries, _ := db.Recent(context.Background(), "edited.txt", 1)
		return len(entries) == 1 && entries[0].Op == models.OpDeleted && entries[0].Source == Source
	}, "out-of-band delete not journaled")
}

func TestRelPath(t *testing.T) {
	root := filepath.Join(string(filepath.Separator), "srv", "store")
	cases := []struct {
		abs  string
		want string
		ok   bool
	}{
		{root, "", true},
		{filepath.Join(root, "a", "b.txt"), "a/b.txt", true},
		{filepath.Join(root, "..", "other"), "", false},
		{filepath.Join(root, "..dots"), "..dots", true},
	}
	for _, tc := range cases {
		got, ok := relPath(root, tc.abs)
		if got != tc.want || ok != tc.ok {
			t.Errorf("relPath(%q) = %q, %v; want %q, %v", tc.abs, got, ok, tc.want, tc.ok)
		}
	}
}
