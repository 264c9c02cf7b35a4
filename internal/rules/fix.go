package rules

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/ukdeo/Self-Healing-Database/internal/store"
	"github.com/ukdeo/Self-Healing-Database/pkg/models"
)

// Suffix of the collection orphaned documents are archived into.
const orphanArchiveSuffix = "_orphaned"

// fixDuplicates keeps the earliest document of a duplicate group and
// deletes the rest. A copy that vanished since detection is fine; any
// other delete failure fails the fix.
func (c *Catalog) fixDuplicates(ctx context.Context, st store.Store, rec *models.DefectRecord, dryRun bool) error {
	if len(rec.DocumentIDs) < 2 {
		return fmt.Errorf("rules: duplicate record %s carries %d document ids, need at least 2", rec.ID, len(rec.DocumentIDs))
	}
	keep, extras := rec.DocumentIDs[0], rec.DocumentIDs[1:]
	if dryRun {
		log.Printf("rules: dry run, would keep %s/%s and delete %d duplicates of %q",
			rec.Collection, keep, len(extras), rec.Subject)
		return nil
	}

	deleted := 0
	for _, id := range extras {
		err := st.Delete(ctx, rec.Collection, id)
		if errors.Is(err, store.ErrNotFound) {
			log.Printf("rules: duplicate %s/%s already gone", rec.Collection, id)
			continue
		}
		if err != nil {
			return fmt.Errorf("rules: delete duplicate %s/%s: %w", rec.Collection, id, err)
		}
		deleted++
	}
	log.Printf("rules: removed %d duplicates of %s %q, kept %s", deleted, rec.Field, rec.Subject, keep)
	return nil
}

// fixOrphan moves the orphaned document into the archive collection,
// stamped with the reason and time, then removes the original.
func (c *Catalog) fixOrphan(ctx context.Context, st store.Store, rec *models.DefectRecord, dryRun bool) error {
	archive := rec.Collection + orphanArchiveSuffix
	if dryRun {
		log.Printf("rules: dry run, would archive %s/%s to %s", rec.Collection, rec.Subject, archive)
		return nil
	}

	doc, err := st.FindByID(ctx, rec.Collection, rec.Subject)
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("rules: orphan %s/%s vanished before fix", rec.Collection, rec.Subject)
	}
	if err != nil {
		return fmt.Errorf("rules: load orphan %s/%s: %w", rec.Collection, rec.Subject, err)
	}

	archived := doc.Clone()
	archived["_original_id"] = rec.Subject
	archived["_archive_reason"] = string(models.KindOrphanedDocument)
	archived["_archived_at"] = time.Now().UTC()
	if err := st.Insert(ctx, archive, []store.Document{archived}); err != nil {
		return fmt.Errorf("rules: archive orphan %s/%s: %w", rec.Collection, rec.Subject, err)
	}
	if err := st.Delete(ctx, rec.Collection, rec.Subject); err != nil && !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("rules: remove archived orphan %s/%s: %w", rec.Collection, rec.Subject, err)
	}
	log.Printf("rules: archived orphan %s/%s to %s", rec.Collection, rec.Subject, archive)
	return nil
}

// fixMissingField deletes the document that lacks its required field.
func (c *Catalog) fixMissingField(ctx context.Context, st store.Store, rec *models.DefectRecord, dryRun bool) error {
	if dryRun {
		log.Printf("rules: dry run, would delete %s/%s missing %q", rec.Collection, rec.Subject, rec.Field)
		return nil
	}
	err := st.Delete(ctx, rec.Collection, rec.Subject)
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("rules: document %s/%s vanished before fix", rec.Collection, rec.Subject)
	}
	if err != nil {
		return fmt.Errorf("rules: delete %s/%s: %w", rec.Collection, rec.Subject, err)
	}
	log.Printf("rules: deleted %s/%s missing required field %q", rec.Collection, rec.Subject, rec.Field)
	return nil
}

// fixInvalidValue normalizes the enum field to its default value.
func (c *Catalog) fixInvalidValue(ctx context.Context, st store.Store, rec *models.DefectRecord, dryRun bool) error {
	if dryRun {
		log.Printf("rules: dry run, would set %s/%s %s to %q", rec.Collection, rec.Subject, rec.Field, rec.DefaultValue)
		return nil
	}
	err := st.SetField(ctx, rec.Collection, rec.Subject, rec.Field, rec.DefaultValue)
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("rules: document %s/%s vanished before fix", rec.Collection, rec.Subject)
	}
	if err != nil {
		return fmt.Errorf("rules: set %s/%s %s: %w", rec.Collection, rec.Subject, rec.Field, err)
	}
	log.Printf("rules: reset %s/%s %s to %q", rec.Collection, rec.Subject, rec.Field, rec.DefaultValue)
	return nil
}

// fixMissingIndex creates the missing index. Non-destructive, so no
// backup is taken first.
func (c *Catalog) fixMissingIndex(ctx context.Context, st store.Store, rec *models.DefectRecord, dryRun bool) error {
	if dryRun {
		log.Printf("rules: dry run, would create index on %s.%s", rec.Collection, rec.Field)
		return nil
	}
	name, err := st.CreateIndex(ctx, rec.Collection, rec.Field)
	if err != nil {
		return fmt.Errorf("rules: create index on %s.%s: %w", rec.Collection, rec.Field, err)
	}
	log.Printf("rules: created index %s on %s.%s", name, rec.Collection, rec.Field)
	return nil
}
