package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/admissions-hub/admissions-hub/internal/domain/admission"
	"github.com/admissions-hub/admissions-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// SYNC CATALOG JOB
// ══════════════════════════════════════════════════════════════════════════════

// SyncCatalogJob refreshes the catalog attributes of every stored program.
// Criteria are re-derived only when the attribute fingerprint changes;
// manually configured criteria are never overwritten.
type SyncCatalogJob struct {
	catalog   admission.CatalogLookup
	programs  admission.ProgramRepository
	publisher shared.EventPublisher
	logger    *slog.Logger

	lastStats atomic.Pointer[SyncStats]
}

// SyncStats summarises one catalog refresh.
type SyncStats struct {
	StartedAt time.Time
	Duration  time.Duration
	Fetched   int
	Updated   int
	Unchanged int
	Missing   int
	Failed    int
}

// NewSyncCatalogJob creates the job.
func NewSyncCatalogJob(
	catalog admission.CatalogLookup,
	programs admission.ProgramRepository,
	publisher shared.EventPublisher,
	logger *slog.Logger,
) *SyncCatalogJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &SyncCatalogJob{
		catalog:   catalog,
		programs:  programs,
		publisher: publisher,
		logger:    logger,
	}
}

// Name returns the job name.
func (j *SyncCatalogJob) Name() string {
	return "sync_catalog"
}

// Description returns a human-readable description.
func (j *SyncCatalogJob) Description() string {
	return "Refreshes program attributes and derived criteria from the public catalog"
}

// Run executes the refresh.
func (j *SyncCatalogJob) Run(ctx context.Context) error {
	stats := &SyncStats{StartedAt: time.Now()}

	cards, err := j.catalog.ListPrograms(ctx)
	if err != nil {
		return fmt.Errorf("sync_catalog: fetch catalog: %w", err)
	}
	stats.Fetched = len(cards)

	byID := make(map[shared.ProgramID]admission.CatalogProgram, len(cards))
	for _, c := range cards {
		byID[c.ID] = c
	}

	stored, err := j.programs.ListAll(ctx)
	if err != nil {
		return fmt.Errorf("sync_catalog: list programs: %w", err)
	}

	for i := range stored {
		if err := ctx.Err(); err != nil {
			return err
		}

		p := &stored[i]
		card, ok := byID[p.ID]
		if !ok {
			stats.Missing++
			continue
		}

		before := p.Attributes.Fingerprint()
		p.UpdateAttributes(card.Attributes())
		if p.Attributes.Fingerprint() == before {
			stats.Unchanged++
			continue
		}

		if err := j.programs.Upsert(ctx, p); err != nil {
			stats.Failed++
			j.logger.Error("failed to save program", "program_id", p.ID, "error", err)
			continue
		}
		stats.Updated++
	}

	stats.Duration = time.Since(stats.StartedAt)
	j.lastStats.Store(stats)

	if j.publisher != nil {
		if err := j.publisher.Publish(shared.NewCatalogSyncedEvent(stats.Fetched, stats.Updated, stats.Unchanged)); err != nil {
			j.logger.Warn("failed to publish catalog synced event", "error", err)
		}
	}

	j.logger.Info("catalog sync completed",
		"duration", stats.Duration.String(),
		"fetched", stats.Fetched,
		"updated", stats.Updated,
		"unchanged", stats.Unchanged,
		"missing", stats.Missing,
		"failed", stats.Failed,
	)

	if stats.Failed > 0 {
		return fmt.Errorf("sync_catalog: %d programs could not be saved", stats.Failed)
	}
	return nil
}

// LastStats returns the stats of the last completed refresh, or nil.
func (j *SyncCatalogJob) LastStats() *SyncStats {
	return j.lastStats.Load()
}
