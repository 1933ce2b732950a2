package fileservice

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/starford/wstore/internal/apperr"
	"github.com/starford/wstore/internal/checksum"
	"github.com/starford/wstore/internal/models"
	"github.com/starford/wstore/internal/pathres"
	"github.com/starford/wstore/internal/storage"
)

type memRecorder struct {
	mu      sync.Mutex
	changes []models.Change
	err     error
}

func (m *memRecorder) Record(_ context.Context, c models.Change) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.changes = append(m.changes, c)
	return m.err
}

func testService(t *testing.T, opts ...Option) *Service {
	t.Helper()
	res, err := pathres.New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	return NewService(res, storage.NewEngine(), opts...)
}

func TestMutationsAreRecorded(t *testing.T) {
	rec := &memRecorder{}
	svc := testService(t, WithRecorder(rec), WithSource("test"))
	ctx := context.Background()

	if err := svc.Create(ctx, "a/b.txt", []byte("one")); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := svc.Upsert(ctx, "a/b.txt", []byte("two")); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if err := svc.Delete(ctx, "a/b.txt"); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	if len(rec.changes) != 3 {
		t.Fatalf("changes = %+v", rec.changes)
	}
	want := []models.Op{models.OpCreated, models.OpUpdated, models.OpDeleted}
	for i, c := range rec.changes {
		if c.Op != want[i] || c.Path != "a/b.txt" || c.Source != "test" {
			t.Errorf("change %d = %+v", i, c)
		}
	}
	if rec.changes[1].Checksum != checksum.Sum([]byte("two")) || rec.changes[1].Size != 3 {
		t.Errorf("upsert change = %+v", rec.changes[1])
	}
}

func TestFailedMutationsNotRecorded(t *testing.T) {
	rec := &memRecorder{}
	svc := testService(t, WithRecorder(rec))
	ctx := context.Background()

	_ = svc.Create(ctx, "x.txt", []byte("1"))
	if err := svc.Create(ctx, "x.txt", []byte("2")); !errors.Is(err, apperr.ErrAlreadyExists) {
		t.Fatalf("err = %v", err)
	}
	if err := svc.Delete(ctx, "missing.txt"); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("err = %v", err)
	}
	if err := svc.Upsert(ctx, "../escape.txt", []byte("x")); !errors.Is(err, apperr.ErrInvalidPath) {
		t.Fatalf("err = %v", err)
	}
	if len(rec.changes) != 1 {
		t.Errorf("changes = %+v, want only the first create", rec.changes)
	}
}

func TestRecorderFailureDoesNotFailWrite(t *testing.T) {
	rec := &memRecorder{err: errors.New("journal down")}
	svc := testService(t, WithRecorder(rec))
	ctx := context.Background()

	if err := svc.Upsert(ctx, "ok.txt", []byte("x")); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	got, err := svc.Read(ctx, "ok.txt")
	if err != nil || string(got.Content) != "x" {
		t.Errorf("Read = %v, %v", got, err)
	}
}

func TestReadInvalidPath(t *testing.T) {
	svc := testService(t)
	if _, err := svc.Read(context.Background(), "../../etc/passwd"); !errors.Is(err, apperr.ErrInvalidPath) {
		t.Errorf("err = %v, want ErrInvalidPath", err)
	}
}
