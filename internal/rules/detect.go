package rules

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"

	"github.com/ukdeo/Self-Healing-Database/internal/store"
	"github.com/ukdeo/Self-Healing-Database/pkg/models"
)

// detectDuplicates groups the duplicate collection by its key field and
// flags every value that appears on more than one document. Documents
// without the key field are the missing-field rule's territory and are
// skipped here.
func (c *Catalog) detectDuplicates(ctx context.Context, st store.Store) ([]models.DefectRecord, error) {
	docs, err := st.FindAll(ctx, c.cfg.DuplicateCollection)
	if err != nil {
		return nil, fmt.Errorf("rules: scan %s for duplicates: %w", c.cfg.DuplicateCollection, err)
	}

	groups := make(map[string][]string)
	for _, doc := range docs {
		id := doc.ID()
		if id == "" {
			log.Printf("rules: skipping %s document without id during duplicate scan", c.cfg.DuplicateCollection)
			continue
		}
		key, ok := doc.StringField(c.cfg.DuplicateKey)
		if !ok || key == "" {
			continue
		}
		groups[key] = append(groups[key], id)
	}

	var found []models.DefectRecord
	for key, ids := range groups {
		if len(ids) < 2 {
			continue
		}
		// Ids sort in creation order, so the first entry is the
		// earliest document and survives the fix.
		sort.Strings(ids)
		rec := newRecord(models.KindDuplicateRecord, c.cfg.DuplicateCollection, key,
			fmt.Sprintf("duplicate %s %q found %d times", c.cfg.DuplicateKey, key, len(ids)))
		rec.Field = c.cfg.DuplicateKey
		rec.DocumentIDs = ids
		found = append(found, rec)
	}
	sort.Slice(found, func(i, j int) bool { return found[i].Subject < found[j].Subject })
	return found, nil
}

// detectOrphans flags documents whose foreign key references no
// document in the target collection. Documents without the foreign key
// are skipped; an empty target collection means every reference is
// orphaned.
func (c *Catalog) detectOrphans(ctx context.Context, st store.Store) ([]models.DefectRecord, error) {
	targets, err := st.FindAll(ctx, c.cfg.OrphanTargetCollection)
	if err != nil {
		return nil, fmt.Errorf("rules: scan %s for orphan targets: %w", c.cfg.OrphanTargetCollection, err)
	}
	valid := make(map[string]bool, len(targets))
	for _, doc := range targets {
		if key, ok := doc.StringField(c.cfg.OrphanTargetKey); ok && key != "" {
			valid[key] = true
		}
	}

	docs, err := st.FindAll(ctx, c.cfg.OrphanCollection)
	if err != nil {
		return nil, fmt.Errorf("rules: scan %s for orphans: %w", c.cfg.OrphanCollection, err)
	}

	var found []models.DefectRecord
	for _, doc := range docs {
		id := doc.ID()
		if id == "" {
			log.Printf("rules: skipping %s document without id during orphan scan", c.cfg.OrphanCollection)
			continue
		}
		ref, ok := doc.StringField(c.cfg.OrphanForeignKey)
		if !ok || ref == "" {
			continue
		}
		if valid[ref] {
			continue
		}
		rec := newRecord(models.KindOrphanedDocument, c.cfg.OrphanCollection, id,
			fmt.Sprintf("%s %s references non-existent %s %q", c.cfg.OrphanCollection, id, c.cfg.OrphanTargetKey, ref))
		rec.Field = c.cfg.OrphanForeignKey
		rec.DocumentIDs = []string{id}
		found = append(found, rec)
	}
	return found, nil
}

// detectMissingFields flags documents where the required field is
// absent, null, or an empty string. At most DetectLimit defects are
// yielded per cycle.
func (c *Catalog) detectMissingFields(ctx context.Context, st store.Store) ([]models.DefectRecord, error) {
	docs, err := st.FindAll(ctx, c.cfg.RequiredCollection)
	if err != nil {
		return nil, fmt.Errorf("rules: scan %s for missing fields: %w", c.cfg.RequiredCollection, err)
	}

	var found []models.DefectRecord
	for _, doc := range docs {
		if len(found) >= c.cfg.DetectLimit {
			break
		}
		id := doc.ID()
		if id == "" {
			log.Printf("rules: skipping %s document without id during missing-field scan", c.cfg.RequiredCollection)
			continue
		}
		if !fieldEmpty(doc, c.cfg.RequiredField) {
			continue
		}
		rec := newRecord(models.KindMissingField, c.cfg.RequiredCollection, id,
			fmt.Sprintf("%s %s is missing required field %q", c.cfg.RequiredCollection, id, c.cfg.RequiredField))
		rec.Field = c.cfg.RequiredField
		rec.DocumentIDs = []string{id}
		found = append(found, rec)
	}
	return found, nil
}

// detectInvalidValues flags documents whose enum field holds a value
// outside the allowed set. A missing or non-string value is invalid
// too, since the fix can normalize it to the default. At most
// DetectLimit defects are yielded per cycle.
func (c *Catalog) detectInvalidValues(ctx context.Context, st store.Store) ([]models.DefectRecord, error) {
	docs, err := st.FindAll(ctx, c.cfg.EnumCollection)
	if err != nil {
		return nil, fmt.Errorf("rules: scan %s for invalid values: %w", c.cfg.EnumCollection, err)
	}

	allowed := make(map[string]bool, len(c.cfg.AllowedValues))
	for _, v := range c.cfg.AllowedValues {
		allowed[v] = true
	}

	var found []models.DefectRecord
	for _, doc := range docs {
		if len(found) >= c.cfg.DetectLimit {
			break
		}
		id := doc.ID()
		if id == "" {
			log.Printf("rules: skipping %s document without id during invalid-value scan", c.cfg.EnumCollection)
			continue
		}
		value, ok := doc.StringField(c.cfg.EnumField)
		if ok && allowed[value] {
			continue
		}
		rec := newRecord(models.KindInvalidValue, c.cfg.EnumCollection, id,
			fmt.Sprintf("%s %s has invalid %s %q", c.cfg.EnumCollection, id, c.cfg.EnumField, value))
		rec.Field = c.cfg.EnumField
		rec.DefaultValue = c.cfg.DefaultValue
		rec.DocumentIDs = []string{id}
		found = append(found, rec)
	}
	return found, nil
}

// detectMissingIndexes inspects recent slow operations and flags
// collection fields that drove a slow scan without an index. One defect
// per collection.field, however many slow samples point at it.
func (c *Catalog) detectMissingIndexes(ctx context.Context, st store.Store) ([]models.DefectRecord, error) {
	ops, err := st.SlowOperations(ctx, c.cfg.SlowQueryThreshold, c.cfg.SlowQueryWindow)
	if err != nil {
		return nil, fmt.Errorf("rules: read slow operations: %w", err)
	}

	seen := make(map[string]bool)
	var found []models.DefectRecord
	for _, op := range ops {
		if op.Collection == "" || op.Field == "" {
			continue
		}
		if internalCollection(op.Collection) {
			continue
		}
		subject := op.Collection + "." + op.Field
		if seen[subject] {
			continue
		}
		seen[subject] = true

		indexed, err := st.HasIndex(ctx, op.Collection, op.Field)
		if err != nil {
			log.Printf("rules: index check for %s failed: %v", subject, err)
			continue
		}
		if indexed {
			continue
		}
		rec := newRecord(models.KindMissingIndex, op.Collection, subject,
			fmt.Sprintf("slow %s on %s took %dms, field %q has no index",
				op.Operation, op.Collection, op.Duration.Milliseconds(), op.Field))
		rec.Field = op.Field
		found = append(found, rec)
	}
	return found, nil
}

// fieldEmpty reports whether a field is absent, null, or an empty
// string.
func fieldEmpty(doc store.Document, field string) bool {
	v, present := doc[field]
	if !present || v == nil {
		return true
	}
	s, isString := v.(string)
	return isString && s == ""
}

// internalCollection reports whether a collection is produced by the
// engine itself and should never be flagged for indexing.
func internalCollection(name string) bool {
	return strings.Contains(name, "_backup_") || strings.HasSuffix(name, "_orphaned")
}
