package fileservice

import (
	"context"
	"errors"

	"github.com/starford/wstore/internal/models"
)

// MultiRecorder fans each change out to every recorder in order.
// Nil entries are skipped.
func MultiRecorder(recorders ...Recorder) Recorder {
	var rs multiRecorder
	for _, r := range recorders {
		if r != nil {
			rs = append(rs, r)
		}
	}
	return rs
}

type multiRecorder []Recorder

func (m multiRecorder) Record(ctx context.Context, c models.Change) error {
	var errs []error
	for _, r := range m {
		if err := r.Record(ctx, c); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
