// Package rules implements the rule catalog: one (detect, fix) pair per
// defect kind.
//
// Detectors run read-only scans against the store capability and yield
// defect records; fixers consume one record at a time and repair it.
// Dispatch is an exhaustive switch over the closed DefectKind set, so a
// new rule is a compile-time-visible extension, not a string lookup.
package rules

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ukdeo/Self-Healing-Database/internal/store"
	"github.com/ukdeo/Self-Healing-Database/pkg/models"
)

// Config carries the per-rule parameters and enable flags. Defaults
// mirror the reference deployment: a users collection keyed by email
// and an orders collection referencing it.
type Config struct {
	// duplicate_record: group DuplicateCollection by DuplicateKey.
	DuplicateCollection string
	DuplicateKey        string

	// orphaned_document: OrphanCollection.OrphanForeignKey must match
	// some OrphanTargetCollection.OrphanTargetKey.
	OrphanCollection       string
	OrphanForeignKey       string
	OrphanTargetCollection string
	OrphanTargetKey        string

	// missing_field: RequiredField must be present, non-null and
	// non-empty on every document of RequiredCollection.
	RequiredCollection string
	RequiredField      string

	// invalid_value: EnumCollection.EnumField must be one of
	// AllowedValues; fixes set DefaultValue.
	EnumCollection string
	EnumField      string
	AllowedValues  []string
	DefaultValue   string

	// missing_index: profiler samples at or above SlowQueryThreshold
	// within SlowQueryWindow on an unindexed field.
	SlowQueryThreshold time.Duration
	SlowQueryWindow    time.Duration

	// DetectLimit caps how many missing_field / invalid_value defects
	// one cycle yields, bounding queue pressure per pass.
	DetectLimit int

	// Enabled switches individual rules off. A kind absent from the
	// map counts as enabled.
	Disabled map[models.DefectKind]bool
}

// DefaultConfig returns the reference rule parameters.
func DefaultConfig() Config {
	return Config{
		DuplicateCollection:    "users",
		DuplicateKey:           "email",
		OrphanCollection:       "orders",
		OrphanForeignKey:       "user_email",
		OrphanTargetCollection: "users",
		OrphanTargetKey:        "email",
		RequiredCollection:     "users",
		RequiredField:          "email",
		EnumCollection:         "orders",
		EnumField:              "status",
		AllowedValues:          []string{"pending", "processing", "completed", "cancelled"},
		DefaultValue:           "pending",
		SlowQueryThreshold:     2 * time.Second,
		SlowQueryWindow:        time.Hour,
		DetectLimit:            10,
		Disabled:               make(map[models.DefectKind]bool),
	}
}

// Validate checks the config for internal consistency.
func (c Config) Validate() error {
	if c.DuplicateCollection == "" || c.DuplicateKey == "" {
		return fmt.Errorf("rules: duplicate rule needs a collection and key")
	}
	if c.OrphanCollection == "" || c.OrphanForeignKey == "" ||
		c.OrphanTargetCollection == "" || c.OrphanTargetKey == "" {
		return fmt.Errorf("rules: orphan rule needs source and target collection/key")
	}
	if c.RequiredCollection == "" || c.RequiredField == "" {
		return fmt.Errorf("rules: missing-field rule needs a collection and field")
	}
	if c.EnumCollection == "" || c.EnumField == "" || len(c.AllowedValues) == 0 {
		return fmt.Errorf("rules: invalid-value rule needs a collection, field and allowed set")
	}
	valid := false
	for _, v := range c.AllowedValues {
		if v == c.DefaultValue {
			valid = true
			break
		}
	}
	if !valid {
		return fmt.Errorf("rules: default value %q is not in the allowed set", c.DefaultValue)
	}
	if c.SlowQueryThreshold <= 0 || c.SlowQueryWindow <= 0 {
		return fmt.Errorf("rules: slow-query threshold and window must be positive")
	}
	if c.DetectLimit <= 0 {
		return fmt.Errorf("rules: detect limit must be positive")
	}
	return nil
}

// Catalog is the fixed set of rules, parameterized by Config.
type Catalog struct {
	cfg Config
}

// NewCatalog validates the config and returns a Catalog.
func NewCatalog(cfg Config) (*Catalog, error) {
	if cfg.Disabled == nil {
		cfg.Disabled = make(map[models.DefectKind]bool)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Catalog{cfg: cfg}, nil
}

// EnabledKinds returns the enabled defect kinds in detection order.
func (c *Catalog) EnabledKinds() []models.DefectKind {
	var kinds []models.DefectKind
	for _, kind := range models.Kinds {
		if !c.cfg.Disabled[kind] {
			kinds = append(kinds, kind)
		}
	}
	return kinds
}

// Severity returns the fixed severity for a defect kind.
func Severity(kind models.DefectKind) models.Severity {
	switch kind {
	case models.KindOrphanedDocument, models.KindMissingField:
		return models.SeverityHigh
	case models.KindDuplicateRecord, models.KindInvalidValue:
		return models.SeverityMedium
	case models.KindMissingIndex:
		return models.SeverityLow
	default:
		return models.SeverityMedium
	}
}

// Destructive reports whether a kind's fix mutates or removes existing
// documents and therefore requires a backup first. Creating an index is
// the only non-destructive fix.
func Destructive(kind models.DefectKind) bool {
	switch kind {
	case models.KindDuplicateRecord, models.KindOrphanedDocument,
		models.KindMissingField, models.KindInvalidValue:
		return true
	case models.KindMissingIndex:
		return false
	default:
		return true
	}
}

// Detect runs the detector for one kind and returns the defects found.
func (c *Catalog) Detect(ctx context.Context, st store.Store, kind models.DefectKind) ([]models.DefectRecord, error) {
	switch kind {
	case models.KindDuplicateRecord:
		return c.detectDuplicates(ctx, st)
	case models.KindOrphanedDocument:
		return c.detectOrphans(ctx, st)
	case models.KindMissingField:
		return c.detectMissingFields(ctx, st)
	case models.KindInvalidValue:
		return c.detectInvalidValues(ctx, st)
	case models.KindMissingIndex:
		return c.detectMissingIndexes(ctx, st)
	default:
		return nil, fmt.Errorf("rules: unknown defect kind %q", kind)
	}
}

// Fix repairs one defect record. With dryRun set, fixers make no
// mutating store calls but log what they would have done and still
// return success, so dry-run and live mode share one control flow.
func (c *Catalog) Fix(ctx context.Context, st store.Store, rec *models.DefectRecord, dryRun bool) error {
	switch rec.Kind {
	case models.KindDuplicateRecord:
		return c.fixDuplicates(ctx, st, rec, dryRun)
	case models.KindOrphanedDocument:
		return c.fixOrphan(ctx, st, rec, dryRun)
	case models.KindMissingField:
		return c.fixMissingField(ctx, st, rec, dryRun)
	case models.KindInvalidValue:
		return c.fixInvalidValue(ctx, st, rec, dryRun)
	case models.KindMissingIndex:
		return c.fixMissingIndex(ctx, st, rec, dryRun)
	default:
		return fmt.Errorf("rules: unknown defect kind %q", rec.Kind)
	}
}

// newRecord builds a defect record in the queued state.
func newRecord(kind models.DefectKind, collection, subject, description string) models.DefectRecord {
	return models.DefectRecord{
		ID:          uuid.NewString(),
		Kind:        kind,
		Severity:    Severity(kind),
		Collection:  collection,
		Subject:     subject,
		Description: description,
		Status:      models.StatusQueued,
		DetectedAt:  time.Now().UTC(),
	}
}
