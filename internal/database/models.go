package database

import (
	"time"
)

// Batch represents one external inventory report pull and its lifecycle state
type Batch struct {
	ID               string     `json:"id"`             // prefixed CUID2 (batch_...)
	Channel          string     `json:"channel"`        // sales channel key (e.g. amazon-sc)
	MarketplaceID    string     `json:"marketplace_id"` // channel-native marketplace id
	SnapshotKind     string     `json:"snapshot_kind"`  // 'marketplace-totals' | 'per-location'
	ReportHandle     *string    `json:"report_handle"`  // external report handle, set once assigned
	Status           string     `json:"status"`         // 'requested', 'processing', 'completed', 'failed'
	RowCount         int        `json:"row_count"`
	MatchedCount     int        `json:"matched_count"`
	UnmatchedCount   int        `json:"unmatched_count"`
	LastError        *string    `json:"last_error"`
	RawStatusPayload []byte     `json:"raw_status_payload"` // opaque external status JSON, diagnostics only
	RequestedAt      time.Time  `json:"requested_at"`
	CompletedAt      *time.Time `json:"completed_at"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// InventoryRow represents one line of a batch's downloaded inventory data
type InventoryRow struct {
	ID            string    `json:"id"` // prefixed CUID2 (row_...)
	BatchID       string    `json:"batch_id"`
	ExternalSku   string    `json:"external_sku"`   // channel-native, as downloaded
	NormalizedSku string    `json:"normalized_sku"` // lookup key used for matching
	Asin          *string   `json:"asin"`
	Fnsku         *string   `json:"fnsku"`
	LocationCode  *string   `json:"location_code"` // present only for per-location snapshots
	AvailableQty  int       `json:"available_qty"`
	InboundQty    int       `json:"inbound_qty"`
	ReservedQty   int       `json:"reserved_qty"`
	MatchStatus   string    `json:"match_status"` // 'matched' | 'unmatched'
	VariantID     *string   `json:"variant_id"`   // internal variant, set iff matched
	ErrorFlags    []string  `json:"error_flags"`  // row-level ingestion errors
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// HasErrors reports whether the row was flagged during ingestion.
// Flagged rows keep their zeroed quantities and stay in every aggregate.
func (r *InventoryRow) HasErrors() bool {
	return len(r.ErrorFlags) > 0
}

// ChannelSkuMapping binds one external SKU to one internal variant.
// Unique per (channel, marketplace_id, normalized_sku) among active rows.
type ChannelSkuMapping struct {
	ID            string    `json:"id"` // prefixed CUID2 (map_...)
	Channel       string    `json:"channel"`
	MarketplaceID string    `json:"marketplace_id"`
	ExternalSku   string    `json:"external_sku"`   // raw, as entered
	NormalizedSku string    `json:"normalized_sku"` // the actual lookup key
	Asin          *string   `json:"asin"`
	Fnsku         *string   `json:"fnsku"`
	VariantID     string    `json:"variant_id"`
	Active        bool      `json:"active"`
	Notes         *string   `json:"notes"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// LocationMapping binds an external location code to a geography label.
// A location code with rows but no mapping is a valid "unmapped" state.
type LocationMapping struct {
	ID             string    `json:"id"` // prefixed CUID2 (loc_...)
	Channel        string    `json:"channel"`
	MarketplaceID  string    `json:"marketplace_id"`
	LocationCode   string    `json:"location_code"`
	NormalizedCode string    `json:"normalized_code"`
	StateCode      *string   `json:"state_code"`
	StateName      *string   `json:"state_name"`
	City           *string   `json:"city"`
	DisplayName    *string   `json:"display_name"`
	Active         bool      `json:"active"`
	Notes          *string   `json:"notes"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// BatchCounts holds the recounted row totals for a batch
type BatchCounts struct {
	RowCount       int `json:"rowCount"`
	MatchedCount   int `json:"matchedCount"`
	UnmatchedCount int `json:"unmatchedCount"`
}

// RowMatchState is the narrow slice of an inventory row the rematch engine reads
type RowMatchState struct {
	ID            string
	NormalizedSku string
	MatchStatus   string
	VariantID     *string
}

// RowMatchUpdate is one row's recomputed classification
type RowMatchUpdate struct {
	ID          string
	MatchStatus string
	VariantID   *string
}

// PollTask represents one scheduled poll of a batch in the poll queue
type PollTask struct {
	ID          string     `json:"id"`
	BatchID     string     `json:"batch_id"`
	Status      string     `json:"status"` // 'pending', 'claimed', 'done'
	Attempt     int        `json:"attempt"`
	NextPollAt  time.Time  `json:"next_poll_at"`
	Deadline    time.Time  `json:"deadline"` // give-up point for the poll loop, not the batch
	ClaimedBy   *string    `json:"claimed_by"`
	ClaimedAt   *time.Time `json:"claimed_at"`
	LastMessage *string    `json:"last_message"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}
