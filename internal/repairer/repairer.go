// Package repairer consumes queued defects one at a time and applies
// the catalog fix under the configured safety constraints.
package repairer

import (
	"context"
	"log"
	"time"

	"github.com/ukdeo/Self-Healing-Database/internal/backup"
	"github.com/ukdeo/Self-Healing-Database/internal/queue"
	"github.com/ukdeo/Self-Healing-Database/internal/rules"
	"github.com/ukdeo/Self-Healing-Database/internal/state"
	"github.com/ukdeo/Self-Healing-Database/internal/store"
	"github.com/ukdeo/Self-Healing-Database/pkg/models"
)

// Options control the safety behavior of the repair loop.
type Options struct {
	// AutoFix gates whether fixes run at all. When off, defects are
	// drained from the queue and marked failed without touching the
	// store. DryRun overrides the gate: simulated fixes are harmless.
	AutoFix bool

	// DryRun makes fixers log intended changes instead of applying
	// them. Counters still advance so a dry run previews real volume.
	DryRun bool

	// BackupBeforeFix snapshots affected documents before any
	// destructive fix. Dry runs never back up, nothing will change.
	BackupBeforeFix bool

	// FixDelay paces consecutive fixes.
	FixDelay time.Duration
}

// Repairer is the single fix worker. One Repairer per engine, so at
// most one fix is ever in flight.
type Repairer struct {
	store   store.Store
	catalog *rules.Catalog
	queue   *queue.WorkQueue
	state   *state.State
	backups *backup.Service
	history state.HistoryStore // nil when persistence is disabled
	opts    Options
}

// New returns a Repairer ready to run. history may be nil.
func New(st store.Store, catalog *rules.Catalog, q *queue.WorkQueue, s *state.State, backups *backup.Service, history state.HistoryStore, opts Options) *Repairer {
	return &Repairer{
		store:   st,
		catalog: catalog,
		queue:   q,
		state:   s,
		backups: backups,
		history: history,
		opts:    opts,
	}
}

// Run consumes the queue until the context is cancelled. A fix in
// progress finishes before Run returns.
func (r *Repairer) Run(ctx context.Context) {
	log.Printf("repairer: starting, auto_fix=%t dry_run=%t backup_before_fix=%t",
		r.opts.AutoFix, r.opts.DryRun, r.opts.BackupBeforeFix)
	for {
		rec, ok := r.queue.Pop(ctx)
		if !ok {
			log.Printf("repairer: stopping")
			return
		}
		r.handle(ctx, rec)

		select {
		case <-ctx.Done():
			log.Printf("repairer: stopping")
			return
		case <-time.After(r.opts.FixDelay):
		}
	}
}

// handle runs one defect through the fix pipeline and records the
// outcome. The queue slot for the defect key is released on every path
// so the defect can be re-detected later.
//
// A fix that has started always runs to completion: shutdown
// cancellation is stripped from the store-call context so a backup
// that succeeded is never followed by half-applied deletes.
func (r *Repairer) handle(ctx context.Context, rec *models.DefectRecord) {
	ctx = context.WithoutCancel(ctx)
	defer r.queue.Release(rec.Key())

	if !rec.MarkFixing() {
		log.Printf("repairer: skipping %s in terminal state %s", rec.ID, rec.Status)
		return
	}
	r.state.SetCurrentlyFixing(*rec)
	defer r.state.ClearCurrentlyFixing()

	// Dry run wins over the auto-fix gate: nothing will change either
	// way, and a dry run should preview the full fix volume.
	if !r.opts.AutoFix && !r.opts.DryRun {
		r.fail(ctx, rec, "auto fix is disabled")
		return
	}

	if r.needsBackup(rec) {
		name, err := r.backups.Backup(ctx, rec.Collection, rec.DocumentIDs)
		if err != nil {
			r.fail(ctx, rec, "backup failed: "+err.Error())
			return
		}
		r.state.Logf(models.LevelInfo, "backed up %d documents from %s to %s",
			len(rec.DocumentIDs), rec.Collection, name)
	}

	if err := r.catalog.Fix(ctx, r.store, rec, r.opts.DryRun); err != nil {
		r.fail(ctx, rec, err.Error())
		return
	}

	rec.MarkFixed(time.Now().UTC())
	r.state.RecordFixed(*rec)
	if r.opts.DryRun {
		r.state.Logf(models.LevelInfo, "dry run, would fix %s: %s", rec.Kind, rec.Description)
	} else {
		r.state.Logf(models.LevelInfo, "fixed %s: %s", rec.Kind, rec.Description)
	}
	r.persist(ctx, rec)
}

// fail marks a defect failed and records it.
func (r *Repairer) fail(ctx context.Context, rec *models.DefectRecord, reason string) {
	rec.MarkFailed(reason)
	r.state.RecordFailed(*rec)
	r.state.Logf(models.LevelError, "fix failed for %s %s: %s", rec.Kind, rec.Subject, reason)
	r.persist(ctx, rec)
}

// needsBackup reports whether this defect warrants a backup first.
// Only destructive fixes with known affected documents qualify, and
// never in dry-run mode since nothing will change.
func (r *Repairer) needsBackup(rec *models.DefectRecord) bool {
	return r.opts.BackupBeforeFix &&
		!r.opts.DryRun &&
		rules.Destructive(rec.Kind) &&
		len(rec.DocumentIDs) > 0
}

// persist writes the defect outcome to the history store when one is
// configured. History is best effort, a write failure never blocks the
// repair loop.
func (r *Repairer) persist(ctx context.Context, rec *models.DefectRecord) {
	if r.history == nil {
		return
	}
	if err := r.history.Record(ctx, rec); err != nil {
		log.Printf("repairer: history write for %s failed: %v", rec.ID, err)
	}
}
