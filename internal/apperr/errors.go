// Package apperr defines the error kinds shared by the storage engine, the
// access gate and the request router.
package apperr

import (
	"errors"
	"io/fs"
	"net/http"
	"os"
	"syscall"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrAlreadyExists   = errors.New("already exists")
	ErrUnauthorized    = errors.New("unauthorized")
	ErrInvalidPath     = errors.New("invalid path")
	ErrIO              = errors.New("io failure")
	ErrDirectoryRead   = errors.New("directory read failure")
	ErrPayloadTooLarge = errors.New("payload too large")
)

// Status maps an error kind to its HTTP status code.
func Status(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrAlreadyExists):
		return http.StatusConflict
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, ErrInvalidPath):
		return http.StatusBadRequest
	case errors.Is(err, ErrPayloadTooLarge):
		return http.StatusRequestEntityTooLarge
	default:
		return http.StatusInternalServerError
	}
}

// Detail returns a client-safe description of an I/O failure: the OS-level
// cause without the absolute paths that fs.PathError and os.LinkError carry.
func Detail(err error) string {
	var pe *fs.PathError
	if errors.As(err, &pe) {
		return pe.Err.Error()
	}
	var le *os.LinkError
	if errors.As(err, &le) {
		return le.Err.Error()
	}
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return errno.Error()
	}
	return ErrIO.Error()
}
