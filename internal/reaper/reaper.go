// Package reaper is the periodic sweep that terminates stuck jobs, deletes
// orphaned submissions, and expires consumed terminal rows. It compares
// wall-clock created_at timestamps rather than in-memory timers, so a
// process restart never loses a watchdog.
package reaper

import (
	"context"
	"time"

	"github.com/MichaelFKogan/CreatorAIStudio-sub007/internal/domain"
	"github.com/MichaelFKogan/CreatorAIStudio-sub007/internal/infra"
	"github.com/MichaelFKogan/CreatorAIStudio-sub007/internal/jobstore"
	"github.com/MichaelFKogan/CreatorAIStudio-sub007/internal/reconcile"
)

const timeoutMessage = "Generation timed out"

// Reaper sweeps the pending job store on a fixed interval.
type Reaper struct {
	store   jobstore.Store
	archive jobstore.Archive
	rmap    reconcile.Map
	logger  *infra.Logger

	stuckTimeout time.Duration
	orphanGrace  time.Duration
	retentionAge time.Duration

	now func() time.Time
}

// New builds a reaper from the configured windows.
func New(store jobstore.Store, archive jobstore.Archive, rmap reconcile.Map, cfg *infra.Config, logger *infra.Logger) *Reaper {
	return &Reaper{
		store:        store,
		archive:      archive,
		rmap:         rmap,
		logger:       logger,
		stuckTimeout: cfg.StuckTimeout,
		orphanGrace:  cfg.OrphanGrace,
		retentionAge: cfg.RetentionAge,
		now:          time.Now,
	}
}

// Run sweeps on every tick until the context is cancelled.
func (r *Reaper) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Sweep(ctx)
		}
	}
}

// Sweep runs one pass: time out stuck jobs, reap orphans, expire old
// terminal rows. Each stage logs and continues on failure so one bad stage
// cannot starve the others.
func (r *Reaper) Sweep(ctx context.Context) {
	r.sweepStuck(ctx)

	if n, err := r.store.ReapOrphaned(ctx, r.now().Add(-r.orphanGrace)); err != nil {
		r.logger.Error().Err(err).Msg("reaper: orphan sweep failed")
	} else if n > 0 {
		r.logger.Info().Int64("deleted", n).Msg("reaper: removed orphaned jobs")
	}

	terminal := []domain.JobStatus{domain.JobStatusCompleted, domain.JobStatusFailed}
	if n, err := r.store.CleanupByAge(ctx, terminal, r.now().Add(-r.retentionAge)); err != nil {
		r.logger.Error().Err(err).Msg("reaper: retention sweep failed")
	} else if n > 0 {
		r.logger.Info().Int64("deleted", n).Msg("reaper: expired terminal jobs")
	}
}

// sweepStuck archives a timeout failure for every job stuck past the hard
// timeout, then deletes the pending row. The archive write comes first: a
// row is only deleted once its failure record exists, so a crash between
// the two steps leaves a record and a row, never a silent disappearance.
func (r *Reaper) sweepStuck(ctx context.Context) {
	stuck, err := r.store.ListStuck(ctx, r.now().Add(-r.stuckTimeout))
	if err != nil {
		r.logger.Error().Err(err).Msg("reaper: stuck listing failed")
		return
	}
	for i := range stuck {
		job := &stuck[i]
		rec := domain.ArchiveFromJob(job, timeoutMessage)
		if err := r.archive.Record(ctx, rec); err != nil {
			r.logger.Error().
				Str("task_id", job.TaskID).
				Err(err).
				Msg("reaper: archive failed, keeping pending row")
			continue
		}
		if err := r.store.Delete(ctx, job.TaskID); err != nil {
			r.logger.Error().
				Str("task_id", job.TaskID).
				Err(err).
				Msg("reaper: delete after archive failed")
			continue
		}
		if r.rmap != nil {
			_ = r.rmap.Remove(ctx, job.TaskID)
		}
		r.logger.Info().
			Str("task_id", job.TaskID).
			Str("provider", string(job.Provider)).
			Float64("cost", job.Metadata.Cost).
			Msg("reaper: archived timed out job")
	}
}
