package types

import "time"

// SnapshotKind represents the granularity of an inventory snapshot report
type SnapshotKind string

const (
	KindMarketplaceTotals SnapshotKind = "marketplace-totals"
	KindPerLocation       SnapshotKind = "per-location"
)

// IsValid reports whether the snapshot kind is one of the supported kinds
func (k SnapshotKind) IsValid() bool {
	return k == KindMarketplaceTotals || k == KindPerLocation
}

// BatchStatus represents the lifecycle status of an inventory batch
type BatchStatus string

const (
	BatchRequested  BatchStatus = "requested"
	BatchProcessing BatchStatus = "processing"
	BatchCompleted  BatchStatus = "completed"
	BatchFailed     BatchStatus = "failed"
)

// IsTerminal reports whether the batch status is a terminal state.
// No transition ever leaves a terminal state.
func (s BatchStatus) IsTerminal() bool {
	return s == BatchCompleted || s == BatchFailed
}

// MatchStatus represents whether an inventory row resolved to an internal variant
type MatchStatus string

const (
	RowMatched   MatchStatus = "matched"
	RowUnmatched MatchStatus = "unmatched"
)

// RawRow is one line of a downloaded inventory report, as field -> value.
// The field set is dictated by the external channel; only the keys below are
// interpreted by the matcher, everything else is carried opaquely.
type RawRow map[string]string

// Raw row field keys recognized by the ingestion matcher
const (
	FieldExternalSku  = "sku"
	FieldAsin         = "asin"
	FieldFnsku        = "fnsku"
	FieldLocationCode = "location_code"
	FieldAvailable    = "available"
	FieldInbound      = "inbound"
	FieldReserved     = "reserved"
)

// Row-level error flags recorded during ingestion
const (
	RowErrMissingSku  = "missing_external_sku"
	RowErrBadQuantity = "invalid_quantity"
)

// ImportOutcomeStatus classifies the result of one bulk mapping import row
type ImportOutcomeStatus string

const (
	ImportUpserted ImportOutcomeStatus = "upserted"
	ImportSkipped  ImportOutcomeStatus = "skipped"
	ImportError    ImportOutcomeStatus = "error"
)

// PollResult is what a single poll of a batch reports back to the caller
type PollResult struct {
	BatchID        string      `json:"batchId"`
	Status         BatchStatus `json:"status"`
	Message        string      `json:"message,omitempty"`
	RowCount       int         `json:"rowCount"`
	MatchedCount   int         `json:"matchedCount"`
	UnmatchedCount int         `json:"unmatchedCount"`
}

// StringPtr returns a pointer to the given string
func StringPtr(s string) *string {
	return &s
}

// IntPtr returns a pointer to the given int
func IntPtr(i int) *int {
	return &i
}

// TimePtr returns a pointer to the given time
func TimePtr(t time.Time) *time.Time {
	return &t
}
