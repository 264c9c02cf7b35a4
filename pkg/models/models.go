// Package models defines the core data structures of the self-healing engine.
//
// A DefectRecord describes one detected data-integrity problem and flows
// from the scanner through the work queue to the repairer. The remaining
// types describe the activity log and the read-only status snapshot served
// to dashboard observers.
package models

import (
	"fmt"
	"time"
)

// DefectKind identifies one of the known classes of data-integrity defects.
// The set is closed: every dispatch over DefectKind is an exhaustive switch
// with a default arm returning an error, so adding a kind means touching
// each switch.
type DefectKind string

const (
	KindDuplicateRecord  DefectKind = "duplicate_record"
	KindOrphanedDocument DefectKind = "orphaned_document"
	KindMissingField     DefectKind = "missing_field"
	KindInvalidValue     DefectKind = "invalid_value"
	KindMissingIndex     DefectKind = "missing_index"
)

// Kinds lists all defect kinds in detection order.
var Kinds = []DefectKind{
	KindDuplicateRecord,
	KindOrphanedDocument,
	KindMissingField,
	KindInvalidValue,
	KindMissingIndex,
}

// Severity ranks how urgent a defect is. Severity is fixed per kind,
// never per instance.
type Severity string

const (
	SeverityHigh   Severity = "high"
	SeverityMedium Severity = "medium"
	SeverityLow    Severity = "low"
)

// DefectStatus represents the lifecycle state of a defect record.
// Transitions are monotonic: queued -> fixing -> fixed|failed.
type DefectStatus string

const (
	StatusQueued DefectStatus = "queued"
	StatusFixing DefectStatus = "fixing"
	StatusFixed  DefectStatus = "fixed"
	StatusFailed DefectStatus = "failed"
)

// DefectRecord is one detected data-integrity problem instance.
//
// Kind, Collection and Subject form the deduplication key: the scanner
// never enqueues a record whose key is already queued or being fixed.
// Status is the only mutable field.
type DefectRecord struct {
	ID          string       `json:"id"`
	Kind        DefectKind   `json:"kind"`
	Severity    Severity     `json:"severity"`
	Collection  string       `json:"collection"`
	Subject     string       `json:"subject"`
	Description string       `json:"description"`
	Status      DefectStatus `json:"status"`
	DetectedAt  time.Time    `json:"detected_at"`
	FixedAt     *time.Time   `json:"fixed_at,omitempty"`

	// DocumentIDs lists the documents the fixer acts on. For duplicates
	// it holds the whole group in creation order; for single-document
	// defects it holds exactly one id; for missing_index it is empty.
	DocumentIDs []string `json:"document_ids,omitempty"`

	// Field carries the kind-specific field name: the natural key for
	// duplicates, the absent field for missing_field, the out-of-range
	// field for invalid_value, the field to index for missing_index.
	Field string `json:"field,omitempty"`

	// DefaultValue is the replacement value for invalid_value fixes.
	DefaultValue string `json:"default_value,omitempty"`

	// FailureReason records why a fix attempt failed, if it did.
	FailureReason string `json:"failure_reason,omitempty"`
}

// Key returns the (kind, collection, subject) deduplication key.
func (r *DefectRecord) Key() string {
	return fmt.Sprintf("%s/%s/%s", r.Kind, r.Collection, r.Subject)
}

// Terminal reports whether the record has reached a final state.
func (r *DefectRecord) Terminal() bool {
	return r.Status == StatusFixed || r.Status == StatusFailed
}

// MarkFixing moves the record into the fixing state. It is a no-op on
// records that already reached a terminal state.
func (r *DefectRecord) MarkFixing() bool {
	if r.Terminal() {
		return false
	}
	r.Status = StatusFixing
	return true
}

// MarkFixed moves the record into the fixed state and stamps FixedAt
// exactly once. Terminal records are never regressed.
func (r *DefectRecord) MarkFixed(at time.Time) bool {
	if r.Terminal() {
		return false
	}
	r.Status = StatusFixed
	r.FixedAt = &at
	return true
}

// MarkFailed moves the record into the failed state with a reason.
// Terminal records are never regressed.
func (r *DefectRecord) MarkFailed(reason string) bool {
	if r.Terminal() {
		return false
	}
	r.Status = StatusFailed
	r.FailureReason = reason
	return true
}

// ActivityLevel classifies an activity-log entry.
type ActivityLevel string

const (
	LevelInfo    ActivityLevel = "info"
	LevelWarning ActivityLevel = "warning"
	LevelError   ActivityLevel = "error"
)

// ActivityEntry is one timestamped event in the bounded activity log.
type ActivityEntry struct {
	Timestamp time.Time     `json:"timestamp"`
	Level     ActivityLevel `json:"level"`
	Message   string        `json:"message"`
}

// FixerStatus describes what the repairer is currently doing.
type FixerStatus string

const (
	FixerIdle   FixerStatus = "idle"
	FixerFixing FixerStatus = "fixing"
)

// StatusSnapshot is the consistent, read-only view of shared state served
// by the status endpoint. It is assembled under the state lock so a
// reader never observes counters from two different cycles mixed together.
type StatusSnapshot struct {
	ConnectionHealthy bool            `json:"connection_healthy"`
	TotalDetected     int64           `json:"total_detected"`
	TotalFixed        int64           `json:"total_fixed"`
	TotalFailed       int64           `json:"total_failed"`
	DetectionCycles   int64           `json:"detection_cycles"`
	QueueDepth        int             `json:"queue_depth"`
	FixerStatus       FixerStatus     `json:"fixer_status"`
	CurrentlyFixing   *DefectRecord   `json:"currently_fixing,omitempty"`
	StartTime         time.Time       `json:"start_time"`
	LastCheck         *time.Time      `json:"last_check,omitempty"`
	LastFix           *time.Time      `json:"last_fix,omitempty"`
	RecentDetected    []DefectRecord  `json:"recent_detected"`
	RecentFixed       []DefectRecord  `json:"recent_fixed"`
	ActivityLog       []ActivityEntry `json:"activity_log"`
}
