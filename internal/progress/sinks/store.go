package sinks

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/site-discovery-crawler/internal/crawler"
	"github.com/JakeFAU/site-discovery-crawler/internal/progress"
)

// ProgressWriter is the slice of crawler.JobStore the sink needs.
type ProgressWriter interface {
	UpdateProgress(ctx context.Context, jobID string, progress crawler.Progress) error
}

// StoreSink persists the latest frontier snapshot of each job. A batch is
// collapsed to one write per job so a fast crawl does not write per page.
type StoreSink struct {
	store  ProgressWriter
	logger *zap.Logger
}

// NewStoreSink constructs a StoreSink over store.
func NewStoreSink(store ProgressWriter, logger *zap.Logger) *StoreSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StoreSink{store: store, logger: logger}
}

// Consume writes the last progress snapshot seen per job. Jobs whose terminal
// event is in the batch are written too so late snapshots cannot trail the
// final one. Missing jobs are skipped; other store errors are returned.
func (s *StoreSink) Consume(ctx context.Context, batch []progress.Event) error {
	if s == nil || s.store == nil {
		return nil
	}
	latest := make(map[string]crawler.Progress)
	var order []string
	for _, evt := range batch {
		if evt.Stage != progress.StageJobProgress && !evt.Stage.Terminal() {
			continue
		}
		if _, ok := latest[evt.JobID]; !ok {
			order = append(order, evt.JobID)
		}
		latest[evt.JobID] = evt.Progress
	}

	for _, jobID := range order {
		err := s.store.UpdateProgress(ctx, jobID, latest[jobID])
		if errors.Is(err, crawler.ErrJobNotFound) {
			s.logger.Debug("progress for unknown job", zap.String("job_id", jobID))
			continue
		}
		if err != nil {
			return fmt.Errorf("update progress for job %s: %w", jobID, err)
		}
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *StoreSink) Close(context.Context) error {
	return nil
}
