// Package maintenance runs scheduled housekeeping over the storage root.
package maintenance

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/starford/wstore/internal/storage"
)

// DefaultTempMaxAge is the age after which an in-flight temp file is considered orphaned.
const DefaultTempMaxAge = time.Hour

// Sweeper removes temp files left behind by interrupted writes.
type Sweeper struct {
	root   string
	maxAge time.Duration
	logger *slog.Logger
	now    func() time.Time
}

// NewSweeper creates a Sweeper for root.
func NewSweeper(root string, maxAge time.Duration, logger *slog.Logger) *Sweeper {
	if maxAge <= 0 {
		maxAge = DefaultTempMaxAge
	}
	return &Sweeper{root: root, maxAge: maxAge, logger: logger, now: time.Now}
}

// Sweep deletes temp files older than the max age anywhere under the root
// and returns how many were removed.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	cutoff := s.now().Add(-s.maxAge)
	removed := 0

	err := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			// Entries can vanish while we walk.
			if errors.Is(walkErr, fs.ErrNotExist) {
				return nil
			}
			return walkErr
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() || !storage.IsTemp(d.Name()) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		if info.ModTime().After(cutoff) {
			return nil
		}
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			s.logger.Warn("sweep: remove failed", slog.String("path", path), slog.String("error", err.Error()))
			return nil
		}
		removed++
		return nil
	})
	if err != nil {
		return removed, fmt.Errorf("maintenance: sweep %s: %w", s.root, err)
	}
	return removed, nil
}

// Run sweeps once, then on every tick of schedule (standard 5-field cron
// syntax or a descriptor such as "@hourly") until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context, schedule string) error {
	c := cron.New()
	if _, err := c.AddFunc(schedule, func() { s.sweepAndLog(ctx) }); err != nil {
		return fmt.Errorf("maintenance: schedule %q: %w", schedule, err)
	}

	s.logger.Info("sweeper: scheduled",
		slog.String("schedule", schedule),
		slog.String("max_age", s.maxAge.String()))
	s.sweepAndLog(ctx)

	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
	s.logger.Info("sweeper: stopped")
	return nil
}

func (s *Sweeper) sweepAndLog(ctx context.Context) {
	n, err := s.Sweep(ctx)
	if err != nil {
		s.logger.Warn("sweep failed", slog.String("error", err.Error()))
		return
	}
	if n > 0 {
		s.logger.Info("sweep: removed orphaned temp files", slog.Int("count", n))
	}
}

// ValidateSchedule reports whether schedule parses as a cron expression.
func ValidateSchedule(schedule string) error {
	if _, err := cron.ParseStandard(schedule); err != nil {
		return fmt.Errorf("invalid cron schedule %q: %w", schedule, err)
	}
	return nil
}
