// Package fileservice coordinates path resolution, storage operations and
// change recording for the transports (HTTP router, MCP server).
package fileservice

import (
	"context"
	"log/slog"

	"github.com/starford/wstore/internal/checksum"
	"github.com/starford/wstore/internal/models"
	"github.com/starford/wstore/internal/pathres"
	"github.com/starford/wstore/internal/storage"
)

// Recorder is notified after every successful mutation.
type Recorder interface {
	Record(ctx context.Context, c models.Change) error
}

// Service resolves client paths and runs storage operations on them.
type Service struct {
	resolver *pathres.Resolver
	store    storage.Provider
	recorder Recorder
	source   string
	logger   *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithRecorder attaches a change recorder.
func WithRecorder(r Recorder) Option {
	return func(s *Service) {
		s.recorder = r
	}
}

// WithSource labels recorded changes with the originating transport.
func WithSource(source string) Option {
	return func(s *Service) {
		s.source = source
	}
}

// WithLogger sets the logger used for recorder failures.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		s.logger = l
	}
}

// NewService creates a new file service.
func NewService(resolver *pathres.Resolver, store storage.Provider, opts ...Option) *Service {
	s := &Service{
		resolver: resolver,
		store:    store,
		source:   "http",
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Read returns the file or directory listing at rel.
func (s *Service) Read(ctx context.Context, rel string) (*models.Resource, error) {
	p, err := s.resolver.Resolve(rel)
	if err != nil {
		return nil, err
	}
	return s.store.Read(ctx, p)
}

// Create writes content at rel if nothing exists there yet.
func (s *Service) Create(ctx context.Context, rel string, content []byte) error {
	p, err := s.resolver.Resolve(rel)
	if err != nil {
		return err
	}
	if err := s.store.Create(ctx, p, content); err != nil {
		return err
	}
	s.record(ctx, p.Rel, models.OpCreated, content)
	return nil
}

// Upsert writes content at rel, replacing any existing file.
func (s *Service) Upsert(ctx context.Context, rel string, content []byte) error {
	p, err := s.resolver.Resolve(rel)
	if err != nil {
		return err
	}
	if err := s.store.Upsert(ctx, p, content); err != nil {
		return err
	}
	s.record(ctx, p.Rel, models.OpUpdated, content)
	return nil
}

// Delete removes the file at rel.
func (s *Service) Delete(ctx context.Context, rel string) error {
	p, err := s.resolver.Resolve(rel)
	if err != nil {
		return err
	}
	if err := s.store.Delete(ctx, p); err != nil {
		return err
	}
	s.record(ctx, p.Rel, models.OpDeleted, nil)
	return nil
}

// Walk returns metadata for every file under rel.
func (s *Service) Walk(ctx context.Context, rel string) ([]models.FileMetadata, error) {
	p, err := s.resolver.Resolve(rel)
	if err != nil {
		return nil, err
	}
	return s.store.Walk(ctx, p)
}

// record never fails the mutation: the file system is the source of truth.
func (s *Service) record(ctx context.Context, rel string, op models.Op, content []byte) {
	if s.recorder == nil {
		return
	}
	c := models.Change{Path: rel, Op: op, Source: s.source}
	if op != models.OpDeleted {
		c.Size = int64(len(content))
		c.Checksum = checksum.Sum(content)
	}
	if err := s.recorder.Record(ctx, c); err != nil {
		s.logger.Warn("record change failed",
			slog.String("path", rel),
			slog.String("op", string(op)),
			slog.String("error", err.Error()))
	}
}
