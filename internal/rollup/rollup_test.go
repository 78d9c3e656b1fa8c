package rollup

import (
	"testing"

	"github.com/channelsync/inventory-service/internal/database"
	"github.com/channelsync/inventory-service/internal/types"
)

func row(sku, location string, matched bool, available, inbound, reserved int) database.InventoryRow {
	r := database.InventoryRow{
		ExternalSku:  sku,
		AvailableQty: available,
		InboundQty:   inbound,
		ReservedQty:  reserved,
		MatchStatus:  string(types.RowUnmatched),
		ErrorFlags:   []string{},
	}
	if matched {
		r.MatchStatus = string(types.RowMatched)
		r.VariantID = types.StringPtr("var_" + sku)
	}
	if location != "" {
		r.LocationCode = types.StringPtr(location)
	}
	return r
}

func TestLocationRollupGroupsAndSums(t *testing.T) {
	rows := []database.InventoryRow{
		row("A", "PHX3", true, 10, 2, 1),
		row("B", "PHX3", false, 5, 0, 0),
		row("C", "AVP1", true, 3, 1, 0),
	}
	locations := map[string]database.LocationMapping{
		"PHX3": {
			NormalizedCode: "PHX3",
			StateCode:      types.StringPtr("AZ"),
			StateName:      types.StringPtr("Arizona"),
			City:           types.StringPtr("Phoenix"),
		},
	}

	result := LocationRollup(rows, locations)

	if len(result) != 2 {
		t.Fatalf("expected 2 locations, got %d", len(result))
	}

	// Sorted by code: AVP1 before PHX3.
	avp := result[0]
	if avp.LocationCode != "AVP1" || !avp.Unmapped {
		t.Errorf("AVP1 should be first and unmapped, got %+v", avp)
	}
	if avp.RowCount != 1 || avp.MatchedCount != 1 || avp.AvailableTotal != 3 {
		t.Errorf("AVP1 aggregates wrong: %+v", avp)
	}

	phx := result[1]
	if phx.Unmapped {
		t.Error("PHX3 has a mapping, should not be unmapped")
	}
	if phx.DisplayLabel != "Phoenix, Arizona" {
		t.Errorf("PHX3 label = %q", phx.DisplayLabel)
	}
	if phx.RowCount != 2 || phx.MatchedCount != 1 || phx.UnmatchedCount != 1 {
		t.Errorf("PHX3 counts wrong: %+v", phx)
	}
	if phx.AvailableTotal != 15 || phx.InboundTotal != 2 || phx.ReservedTotal != 1 {
		t.Errorf("PHX3 sums wrong: %+v", phx)
	}
}

func TestLocationRollupSumsMatchUnderlyingRows(t *testing.T) {
	rows := []database.InventoryRow{
		row("A", "PHX3", true, 10, 2, 1),
		row("B", "PHX3", false, 5, 0, 3),
		row("C", "AVP1", false, 7, 4, 0),
		row("D", "", true, 2, 0, 0),
	}
	rows[1].ErrorFlags = []string{types.RowErrBadQuantity}

	result := LocationRollup(rows, nil)

	wantAvailable, wantInbound, wantReserved := 0, 0, 0
	for _, r := range rows {
		wantAvailable += r.AvailableQty
		wantInbound += r.InboundQty
		wantReserved += r.ReservedQty
	}

	gotAvailable, gotInbound, gotReserved, gotRows := 0, 0, 0, 0
	for _, loc := range result {
		gotAvailable += loc.AvailableTotal
		gotInbound += loc.InboundTotal
		gotReserved += loc.ReservedTotal
		gotRows += loc.RowCount
	}

	if gotAvailable != wantAvailable || gotInbound != wantInbound || gotReserved != wantReserved {
		t.Errorf("rollup sums %d/%d/%d diverge from row sums %d/%d/%d",
			gotAvailable, gotInbound, gotReserved, wantAvailable, wantInbound, wantReserved)
	}
	if gotRows != len(rows) {
		t.Errorf("rollup row count %d, want %d", gotRows, len(rows))
	}
}

func TestLocationRollupNilLocationBucket(t *testing.T) {
	rows := []database.InventoryRow{
		row("A", "", true, 4, 0, 0),
		row("B", "", false, 1, 0, 0),
	}

	result := LocationRollup(rows, nil)

	if len(result) != 1 {
		t.Fatalf("expected one bucket, got %d", len(result))
	}
	if result[0].LocationCode != "" {
		t.Errorf("marketplace-totals rows should aggregate under an empty code, got %q", result[0].LocationCode)
	}
	if result[0].RowCount != 2 || result[0].AvailableTotal != 5 {
		t.Errorf("bucket aggregates wrong: %+v", result[0])
	}
}

func TestLocationRollupCountsErroredRows(t *testing.T) {
	bad := row("", "PHX3", false, 0, 0, 0)
	bad.ErrorFlags = []string{types.RowErrMissingSku}
	rows := []database.InventoryRow{bad, row("A", "PHX3", true, 8, 0, 0)}

	result := LocationRollup(rows, nil)

	if len(result) != 1 {
		t.Fatalf("expected one location, got %d", len(result))
	}
	if result[0].ErroredCount != 1 {
		t.Errorf("errored count = %d, want 1", result[0].ErroredCount)
	}
	if result[0].RowCount != 2 {
		t.Errorf("flagged rows still count, got %d rows", result[0].RowCount)
	}
}

func TestLocationSkuRollupGroupsMatchedByVariant(t *testing.T) {
	// Two external SKUs mapped to the same variant collapse into one line.
	first := row("ACME-OLD", "PHX3", true, 3, 0, 0)
	second := row("ACME-NEW", "PHX3", true, 4, 1, 0)
	shared := types.StringPtr("var_shared")
	first.VariantID = shared
	second.VariantID = shared
	unmatched := row("MYSTERY-1", "PHX3", false, 2, 0, 0)
	elsewhere := row("ACME-OLD", "AVP1", true, 9, 0, 0)

	result := LocationSkuRollup([]database.InventoryRow{first, second, unmatched, elsewhere}, "phx3")

	if len(result) != 2 {
		t.Fatalf("expected 2 SKU lines, got %d", len(result))
	}

	variantLine := result[0]
	if variantLine.VariantID == nil || *variantLine.VariantID != "var_shared" {
		t.Fatalf("expected the variant line first, got %+v", variantLine)
	}
	if variantLine.RowCount != 2 || variantLine.AvailableTotal != 7 || variantLine.InboundTotal != 1 {
		t.Errorf("variant aggregates wrong: %+v", variantLine)
	}

	skuLine := result[1]
	if skuLine.ExternalSku != "MYSTERY-1" || skuLine.UnmatchedCount != 1 {
		t.Errorf("unmatched line wrong: %+v", skuLine)
	}
}

func TestLocationSkuRollupNormalizesTheCode(t *testing.T) {
	rows := []database.InventoryRow{row("A", "PHX3", true, 1, 0, 0)}

	if got := LocationSkuRollup(rows, " phx3 "); len(got) != 1 {
		t.Errorf("lower case padded code should select PHX3 rows, got %d lines", len(got))
	}
	if got := LocationSkuRollup(rows, "AVP1"); len(got) != 0 {
		t.Errorf("other codes should select nothing, got %d lines", len(got))
	}
}

func TestLocationSkuRollupEmptyCodeSelectsTotalsRows(t *testing.T) {
	rows := []database.InventoryRow{
		row("A", "", true, 6, 0, 0),
		row("B", "PHX3", true, 2, 0, 0),
	}

	result := LocationSkuRollup(rows, "")
	if len(result) != 1 {
		t.Fatalf("expected only the locationless row, got %d lines", len(result))
	}
	if result[0].AvailableTotal != 6 {
		t.Errorf("aggregates wrong: %+v", result[0])
	}
}

func TestLocationLabelFallbacks(t *testing.T) {
	tests := []struct {
		name     string
		loc      database.LocationMapping
		expected string
	}{
		{"Display name wins", database.LocationMapping{DisplayName: types.StringPtr("Phoenix Hub"), City: types.StringPtr("Phoenix")}, "Phoenix Hub"},
		{"City and state name", database.LocationMapping{City: types.StringPtr("Phoenix"), StateName: types.StringPtr("Arizona")}, "Phoenix, Arizona"},
		{"City and state code", database.LocationMapping{City: types.StringPtr("Phoenix"), StateCode: types.StringPtr("AZ")}, "Phoenix, AZ"},
		{"State only", database.LocationMapping{StateCode: types.StringPtr("AZ")}, "AZ"},
		{"Nothing", database.LocationMapping{}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := locationLabel(tt.loc); got != tt.expected {
				t.Errorf("locationLabel = %q, want %q", got, tt.expected)
			}
		})
	}
}
