package journal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/starford/wstore/internal/apperr"
	"github.com/starford/wstore/internal/fileservice"
	"github.com/starford/wstore/internal/models"
)

// Walker lists the files stored at or below a relative path.
type Walker interface {
	Walk(ctx context.Context, rel string) ([]models.FileMetadata, error)
}

// Reconciler brings the snapshot in line with what is on disk and reports
// every difference as a change.
type Reconciler struct {
	db     *DB
	tree   Walker
	rec    fileservice.Recorder
	logger *slog.Logger
}

// NewReconciler creates a Reconciler. Changes go to rec, which is expected
// to include db so the snapshot follows.
func NewReconciler(db *DB, tree Walker, rec fileservice.Recorder, logger *slog.Logger) *Reconciler {
	return &Reconciler{db: db, tree: tree, rec: rec, logger: logger}
}

// Reconcile compares the subtree at rel with the snapshot:
//   - files missing from the snapshot are recorded as created
//   - files whose checksum changed are recorded as updated
//   - snapshot entries with no file on disk are recorded as deleted
//
// It returns the number of changes recorded.
func (r *Reconciler) Reconcile(ctx context.Context, rel, source string) (int, error) {
	metas, err := r.tree.Walk(ctx, rel)
	if err != nil && !errors.Is(err, apperr.ErrNotFound) {
		return 0, fmt.Errorf("journal: reconcile %q: %w", rel, err)
	}

	known, err := r.db.Snapshot(ctx, rel)
	if err != nil {
		return 0, err
	}

	changed := 0
	disk := make(map[string]struct{}, len(metas))
	for _, m := range metas {
		disk[m.Path] = struct{}{}

		prev, tracked := known[m.Path]
		if tracked && prev == m.Checksum {
			continue
		}
		op := models.OpUpdated
		if !tracked {
			op = models.OpCreated
		}
		if r.record(ctx, models.Change{Path: m.Path, Op: op, Size: m.Size, Checksum: m.Checksum, Source: source}) {
			changed++
		}
	}

	// Remove stale entries.
	for p := range known {
		if _, ok := disk[p]; ok {
			continue
		}
		if r.record(ctx, models.Change{Path: p, Op: models.OpDeleted, Source: source}) {
			changed++
		}
	}

	return changed, nil
}

func (r *Reconciler) record(ctx context.Context, c models.Change) bool {
	if err := r.rec.Record(ctx, c); err != nil {
		r.logger.Warn("reconcile: record failed",
			slog.String("path", c.Path),
			slog.String("op", string(c.Op)),
			slog.String("error", err.Error()))
		return false
	}
	r.logger.Debug("reconcile: recorded", slog.String("path", c.Path), slog.String("op", string(c.Op)))
	return true
}
