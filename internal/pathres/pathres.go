// Package pathres maps client-supplied relative paths onto absolute paths
// confined under a storage root.
package pathres

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/starford/wstore/internal/apperr"
)

// TempPrefix marks in-flight writes inside the root. Client paths may not
// use it in any segment, so a stored file can never pass for one.
const TempPrefix = ".wstore-tmp-"

// IsTemp reports whether the base name of name is an in-flight write.
func IsTemp(name string) bool {
	return strings.HasPrefix(filepath.Base(name), TempPrefix)
}

// Resolved is a path that has passed confinement checks. Only a Resolver
// produces values with a non-empty Abs.
type Resolved struct {
	// Rel is the normalized slash-separated path relative to the root ("" for the root).
	Rel string
	// Abs is the absolute filesystem path.
	Abs string
}

// IsRoot reports whether the path names the storage root itself.
func (p Resolved) IsRoot() bool { return p.Rel == "" }

// Resolver resolves relative paths against a fixed root.
type Resolver struct {
	root     string
	realRoot string
}

// New creates a Resolver rooted at root. The directory must already exist.
func New(root string) (*Resolver, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("pathres: resolve root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("pathres: stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("pathres: root is not a directory: %s", abs)
	}
	real, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return nil, fmt.Errorf("pathres: eval root: %w", err)
	}
	return &Resolver{root: abs, realRoot: real}, nil
}

// Root returns the absolute storage root.
func (r *Resolver) Root() string { return r.root }

// Resolve normalizes rel and returns its location under the root. It fails
// with apperr.ErrInvalidPath for absolute paths, ".." segments, reserved temp
// names, NUL bytes and symlinks that lead outside the root.
func (r *Resolver) Resolve(rel string) (Resolved, error) {
	if strings.ContainsRune(rel, 0) {
		return Resolved{}, invalid(rel, "NUL not allowed")
	}
	if strings.HasPrefix(rel, "/") || filepath.IsAbs(rel) || filepath.VolumeName(rel) != "" {
		return Resolved{}, invalid(rel, "absolute paths not allowed")
	}
	slashed := filepath.ToSlash(rel)
	for _, seg := range strings.Split(slashed, "/") {
		if seg == ".." {
			return Resolved{}, invalid(rel, ".. segment not allowed")
		}
		if strings.HasPrefix(seg, TempPrefix) {
			return Resolved{}, invalid(rel, "reserved name")
		}
	}

	clean := strings.TrimPrefix(path.Clean("/"+slashed), "/")
	abs := filepath.Join(r.root, filepath.FromSlash(clean))
	if !within(r.root, abs) {
		return Resolved{}, invalid(rel, "path escapes root")
	}
	if err := r.checkSymlinks(abs); err != nil {
		return Resolved{}, invalid(rel, err.Error())
	}
	return Resolved{Rel: clean, Abs: abs}, nil
}

// checkSymlinks evaluates the deepest existing ancestor of abs (abs included)
// and verifies it still lies under the real root.
func (r *Resolver) checkSymlinks(abs string) error {
	p := abs
	for {
		real, err := filepath.EvalSymlinks(p)
		if err == nil {
			if !within(r.realRoot, real) {
				return errors.New("symlink escapes root")
			}
			return nil
		}
		if !errors.Is(err, fs.ErrNotExist) && !errors.Is(err, syscall.ENOTDIR) {
			return err
		}
		parent := filepath.Dir(p)
		if parent == p || !within(r.root, parent) {
			return nil
		}
		p = parent
	}
}

func within(root, p string) bool {
	rel, err := filepath.Rel(root, p)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) && !filepath.IsAbs(rel)
}

func invalid(rel, reason string) error {
	return fmt.Errorf("pathres: %q: %s: %w", rel, reason, apperr.ErrInvalidPath)
}
