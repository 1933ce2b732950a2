package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"syscall"

	"golang.org/x/sync/semaphore"

	"github.com/starford/wstore/internal/apperr"
	"github.com/starford/wstore/internal/checksum"
	"github.com/starford/wstore/internal/contenttype"
	"github.com/starford/wstore/internal/models"
	"github.com/starford/wstore/internal/pathres"
)

// TempPrefix marks in-flight writes. Such files are hidden from listings and walks.
const TempPrefix = pathres.TempPrefix

// DefaultMaxConcurrentIO bounds simultaneous filesystem operations when no limit is given.
const DefaultMaxConcurrentIO = 64

// IsTemp reports whether name is an in-flight write.
func IsTemp(name string) bool {
	return pathres.IsTemp(name)
}

// Engine implements Provider on the local file system.
type Engine struct {
	sem      *semaphore.Weighted
	dirMode  os.FileMode
	fileMode os.FileMode
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithMaxConcurrentIO limits how many filesystem operations run at once.
func WithMaxConcurrentIO(n int) EngineOption {
	return func(e *Engine) {
		if n > 0 {
			e.sem = semaphore.NewWeighted(int64(n))
		}
	}
}

// NewEngine creates a storage engine.
func NewEngine(opts ...EngineOption) *Engine {
	e := &Engine{
		sem:      semaphore.NewWeighted(DefaultMaxConcurrentIO),
		dirMode:  0o755,
		fileMode: 0o644,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) acquire(ctx context.Context) (func(), error) {
	if err := e.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("storage: acquire io slot: %w: %w", apperr.ErrIO, err)
	}
	return func() { e.sem.Release(1) }, nil
}

// Read returns the file bytes with an inferred content type, or the sorted
// child names when p is a directory.
func (e *Engine) Read(ctx context.Context, p pathres.Resolved) (*models.Resource, error) {
	release, err := e.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	info, err := os.Stat(p.Abs)
	if err != nil {
		if isNotExist(err) {
			return nil, fmt.Errorf("storage: read %s: %w", p.Rel, apperr.ErrNotFound)
		}
		return nil, fmt.Errorf("storage: stat %s: %w: %w", p.Rel, apperr.ErrIO, err)
	}

	if info.IsDir() {
		entries, err := os.ReadDir(p.Abs)
		if err != nil {
			return nil, fmt.Errorf("storage: list %s: %w: %w", p.Rel, apperr.ErrDirectoryRead, err)
		}
		names := make([]string, 0, len(entries))
		for _, ent := range entries {
			if IsTemp(ent.Name()) {
				continue
			}
			names = append(names, ent.Name())
		}
		return &models.Resource{Path: p.Rel, Kind: models.KindDirectory, Children: names}, nil
	}

	data, err := os.ReadFile(p.Abs)
	if err != nil {
		if isNotExist(err) {
			return nil, fmt.Errorf("storage: read %s: %w", p.Rel, apperr.ErrNotFound)
		}
		return nil, fmt.Errorf("storage: read %s: %w: %w", p.Rel, apperr.ErrIO, err)
	}
	return &models.Resource{
		Path:        p.Rel,
		Kind:        models.KindFile,
		Content:     data,
		ContentType: contenttype.ForPath(p.Rel),
	}, nil
}

// Create writes content to p, failing with apperr.ErrAlreadyExists if a file
// or directory occupies it. The content is staged in a temp file and
// hard-linked into place, so a racing writer can never be clobbered.
func (e *Engine) Create(ctx context.Context, p pathres.Resolved, content []byte) error {
	release, err := e.acquire(ctx)
	if err != nil {
		return err
	}
	defer release()

	if _, err := os.Lstat(p.Abs); err == nil {
		return fmt.Errorf("storage: create %s: %w", p.Rel, apperr.ErrAlreadyExists)
	} else if !isNotExist(err) {
		return fmt.Errorf("storage: create %s: %w: %w", p.Rel, apperr.ErrIO, err)
	}

	dir := filepath.Dir(p.Abs)
	if err := e.ensureParents(dir); err != nil {
		return fmt.Errorf("storage: create %s: %w: %w", p.Rel, apperr.ErrIO, err)
	}
	tmpName, err := e.writeTemp(dir, content)
	if err != nil {
		return fmt.Errorf("storage: create %s: %w: %w", p.Rel, apperr.ErrIO, err)
	}
	defer os.Remove(tmpName)

	if err := os.Link(tmpName, p.Abs); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return fmt.Errorf("storage: create %s: %w", p.Rel, apperr.ErrAlreadyExists)
		}
		return fmt.Errorf("storage: create %s: %w: %w", p.Rel, apperr.ErrIO, err)
	}
	return nil
}

// Upsert atomically writes content to p: tmp file -> fsync -> rename.
func (e *Engine) Upsert(ctx context.Context, p pathres.Resolved, content []byte) error {
	release, err := e.acquire(ctx)
	if err != nil {
		return err
	}
	defer release()

	if info, err := os.Lstat(p.Abs); err == nil && info.IsDir() {
		return fmt.Errorf("storage: upsert %s: %w: %w", p.Rel, apperr.ErrIO, syscall.EISDIR)
	}
	dir := filepath.Dir(p.Abs)
	if err := e.ensureParents(dir); err != nil {
		return fmt.Errorf("storage: upsert %s: %w: %w", p.Rel, apperr.ErrIO, err)
	}
	tmpName, err := e.writeTemp(dir, content)
	if err != nil {
		return fmt.Errorf("storage: upsert %s: %w: %w", p.Rel, apperr.ErrIO, err)
	}
	if err := os.Rename(tmpName, p.Abs); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("storage: upsert %s: %w: %w", p.Rel, apperr.ErrIO, err)
	}
	return nil
}

// Delete removes the file at p. Directories are never removed; a directory
// path reports apperr.ErrNotFound because no file lives there.
func (e *Engine) Delete(ctx context.Context, p pathres.Resolved) error {
	release, err := e.acquire(ctx)
	if err != nil {
		return err
	}
	defer release()

	info, err := os.Lstat(p.Abs)
	if err != nil {
		if isNotExist(err) {
			return fmt.Errorf("storage: delete %s: %w", p.Rel, apperr.ErrNotFound)
		}
		return fmt.Errorf("storage: delete %s: %w: %w", p.Rel, apperr.ErrIO, err)
	}
	if info.IsDir() {
		return fmt.Errorf("storage: delete %s: is a directory: %w", p.Rel, apperr.ErrNotFound)
	}
	if err := os.Remove(p.Abs); err != nil {
		if isNotExist(err) {
			return fmt.Errorf("storage: delete %s: %w", p.Rel, apperr.ErrNotFound)
		}
		return fmt.Errorf("storage: delete %s: %w: %w", p.Rel, apperr.ErrIO, err)
	}
	return nil
}

// Walk returns metadata for every regular file under p, or for p itself when
// it is a file. Paths are relative to the storage root.
func (e *Engine) Walk(ctx context.Context, p pathres.Resolved) ([]models.FileMetadata, error) {
	release, err := e.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	if _, err := os.Lstat(p.Abs); err != nil {
		if isNotExist(err) {
			return nil, fmt.Errorf("storage: walk %s: %w", p.Rel, apperr.ErrNotFound)
		}
		return nil, fmt.Errorf("storage: walk %s: %w: %w", p.Rel, apperr.ErrDirectoryRead, err)
	}

	var out []models.FileMetadata
	err = filepath.WalkDir(p.Abs, func(abs string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() || !d.Type().IsRegular() || IsTemp(d.Name()) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		sum, size, err := checksum.File(abs)
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(p.Abs, abs)
		if err != nil {
			return err
		}
		out = append(out, models.FileMetadata{
			Path:      path.Join(p.Rel, filepath.ToSlash(rel)),
			Size:      size,
			Checksum:  sum,
			UpdatedAt: info.ModTime(),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("storage: walk %s: %w: %w", p.Rel, apperr.ErrDirectoryRead, err)
	}
	return out, nil
}

// ensureParents creates the parent chain of a file. It is idempotent.
func (e *Engine) ensureParents(dir string) error {
	return os.MkdirAll(dir, e.dirMode)
}

// writeTemp stages content in dir and returns the synced, closed temp file name.
func (e *Engine) writeTemp(dir string, content []byte) (string, error) {
	tmp, err := os.CreateTemp(dir, TempPrefix+"*")
	if err != nil {
		return "", fmt.Errorf("create temp: %w", err)
	}
	tmpName := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(content); err != nil {
		return "", fmt.Errorf("write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return "", fmt.Errorf("fsync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close temp: %w", err)
	}
	if err := os.Chmod(tmpName, e.fileMode); err != nil {
		return "", fmt.Errorf("chmod temp: %w", err)
	}
	success = true
	return tmpName, nil
}

func isNotExist(err error) bool {
	return errors.Is(err, fs.ErrNotExist) || errors.Is(err, syscall.ENOTDIR)
}
