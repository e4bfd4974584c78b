// Package reaper purges objects whose last access falls outside the
// retention window. Documents and workspaces are swept independently;
// purging a workspace never cascades to the objects its entries reference.
package reaper

import (
	"context"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/moltmd/moltd/internal/logging"
	"github.com/moltmd/moltd/internal/server/repositories/objects"
)

// Reaper runs the expiry sweep over both object kinds.
type Reaper struct {
	documents  objects.Repository
	workspaces objects.Repository
	logger     logging.Logger
}

// New constructs a reaper over the two repositories.
func New(documents, workspaces objects.Repository, logger logging.Logger) *Reaper {
	return &Reaper{documents: documents, workspaces: workspaces, logger: logger}
}

// SweepResult reports how many objects of each kind were purged.
type SweepResult struct {
	Documents  int64
	Workspaces int64
}

// Sweep deletes every object not accessed within retention. The two kinds
// are purged concurrently; a failure on one side does not undo the other,
// since purges are independent and retryable.
func (r *Reaper) Sweep(ctx context.Context, retention time.Duration) (*SweepResult, error) {
	cutoff := time.Now().Add(-retention)

	var docs, workspaces atomic.Int64
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		n, err := r.documents.PurgeBefore(ctx, cutoff)
		docs.Store(n)
		return err
	})
	g.Go(func() error {
		n, err := r.workspaces.PurgeBefore(ctx, cutoff)
		workspaces.Store(n)
		return err
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}

	result := &SweepResult{Documents: docs.Load(), Workspaces: workspaces.Load()}
	r.logger.Info(ctx, "expiry sweep finished",
		"documents_purged", result.Documents,
		"workspaces_purged", result.Workspaces,
		"cutoff", cutoff)
	return result, nil
}

// Run sweeps on every tick until ctx is cancelled. Scheduling lives here
// in the wiring; the operation contract is Sweep.
func (r *Reaper) Run(ctx context.Context, interval, retention time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := r.Sweep(ctx, retention); err != nil {
				r.logger.Error(ctx, "expiry sweep failed", "error", err.Error())
			}
		}
	}
}
