// Package storage owns all filesystem access beneath the storage root.
package storage

import (
	"context"

	"github.com/starford/wstore/internal/models"
	"github.com/starford/wstore/internal/pathres"
)

// Provider is the interface for storage operations on resolved paths.
type Provider interface {
	// Read returns file content or, for a directory, its immediate child names.
	Read(ctx context.Context, p pathres.Resolved) (*models.Resource, error)
	// Create writes content only if nothing occupies p yet.
	Create(ctx context.Context, p pathres.Resolved, content []byte) error
	// Upsert writes content whether or not p already exists.
	Upsert(ctx context.Context, p pathres.Resolved, content []byte) error
	// Delete removes the file at p.
	Delete(ctx context.Context, p pathres.Resolved) error
	// Walk returns metadata for every file under p, recursively.
	Walk(ctx context.Context, p pathres.Resolved) ([]models.FileMetadata, error)
}

// Verify *Engine satisfies Provider at compile time.
var _ Provider = (*Engine)(nil)
