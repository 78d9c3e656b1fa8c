package ingest

import (
	"testing"

	"github.com/channelsync/inventory-service/internal/types"
)

func TestParseQuantity(t *testing.T) {
	tests := []struct {
		name  string
		input string
		value int
		ok    bool
	}{
		{"Plain number", "42", 42, true},
		{"Zero", "0", 0, true},
		{"Empty is zero", "", 0, true},
		{"Whitespace only is zero", "  ", 0, true},
		{"Padded number", " 7 ", 7, true},
		{"Negative is invalid", "-1", 0, false},
		{"Non-numeric is invalid", "lots", 0, false},
		{"Float is invalid", "3.5", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			value, ok := ParseQuantity(tt.input)
			if value != tt.value || ok != tt.ok {
				t.Errorf("ParseQuantity(%q) = (%d, %v), want (%d, %v)", tt.input, value, ok, tt.value, tt.ok)
			}
		})
	}
}

func TestMatchRow(t *testing.T) {
	skuMap := map[string]string{"acme-widget-l": "var_1"}

	status, variantID := MatchRow("acme-widget-l", skuMap)
	if status != types.RowMatched {
		t.Errorf("expected matched, got %s", status)
	}
	if variantID == nil || *variantID != "var_1" {
		t.Errorf("expected variant var_1, got %v", variantID)
	}

	status, variantID = MatchRow("unknown-sku", skuMap)
	if status != types.RowUnmatched || variantID != nil {
		t.Errorf("expected unmatched with nil variant, got %s %v", status, variantID)
	}

	status, variantID = MatchRow("", skuMap)
	if status != types.RowUnmatched || variantID != nil {
		t.Errorf("empty SKU should be unmatched, got %s %v", status, variantID)
	}
}

func TestBuildRowMatched(t *testing.T) {
	skuMap := map[string]string{"acme-widget-l": "var_1"}
	raw := types.RawRow{
		types.FieldExternalSku: " ACME-WIDGET-L ",
		types.FieldAsin:        "B00TEST123",
		types.FieldAvailable:   "12",
		types.FieldInbound:     "3",
		types.FieldReserved:    "",
	}

	row := BuildRow(raw, types.KindMarketplaceTotals, skuMap)

	if row.ExternalSku != "ACME-WIDGET-L" {
		t.Errorf("external SKU should keep raw casing, got %q", row.ExternalSku)
	}
	if row.NormalizedSku != "acme-widget-l" {
		t.Errorf("normalized SKU = %q", row.NormalizedSku)
	}
	if row.MatchStatus != string(types.RowMatched) {
		t.Errorf("match status = %q", row.MatchStatus)
	}
	if row.VariantID == nil || *row.VariantID != "var_1" {
		t.Errorf("variant id = %v", row.VariantID)
	}
	if row.Asin == nil || *row.Asin != "B00TEST123" {
		t.Errorf("asin = %v", row.Asin)
	}
	if row.AvailableQty != 12 || row.InboundQty != 3 || row.ReservedQty != 0 {
		t.Errorf("quantities = %d/%d/%d", row.AvailableQty, row.InboundQty, row.ReservedQty)
	}
	if len(row.ErrorFlags) != 0 {
		t.Errorf("expected no error flags, got %v", row.ErrorFlags)
	}
	if row.HasErrors() {
		t.Error("HasErrors should be false")
	}
}

func TestBuildRowMissingSku(t *testing.T) {
	raw := types.RawRow{
		types.FieldExternalSku: "   ",
		types.FieldAvailable:   "5",
	}

	row := BuildRow(raw, types.KindMarketplaceTotals, map[string]string{})

	if !row.HasErrors() {
		t.Fatal("row without an external SKU should be flagged")
	}
	if row.ErrorFlags[0] != types.RowErrMissingSku {
		t.Errorf("flag = %v", row.ErrorFlags)
	}
	if row.MatchStatus != string(types.RowUnmatched) {
		t.Errorf("match status = %q", row.MatchStatus)
	}
	if row.AvailableQty != 5 {
		t.Errorf("valid quantities still parse, got %d", row.AvailableQty)
	}
}

func TestBuildRowInvalidQuantity(t *testing.T) {
	skuMap := map[string]string{"acme-widget-l": "var_1"}
	raw := types.RawRow{
		types.FieldExternalSku: "ACME-WIDGET-L",
		types.FieldAvailable:   "-4",
		types.FieldInbound:     "oops",
		types.FieldReserved:    "2",
	}

	row := BuildRow(raw, types.KindMarketplaceTotals, skuMap)

	if len(row.ErrorFlags) != 1 || row.ErrorFlags[0] != types.RowErrBadQuantity {
		t.Errorf("expected a single invalid_quantity flag, got %v", row.ErrorFlags)
	}
	if row.AvailableQty != 0 || row.InboundQty != 0 {
		t.Errorf("invalid quantities should be zeroed, got %d/%d", row.AvailableQty, row.InboundQty)
	}
	if row.ReservedQty != 2 {
		t.Errorf("valid quantity should survive, got %d", row.ReservedQty)
	}
	if row.MatchStatus != string(types.RowMatched) {
		t.Error("quantity problems must not affect matching")
	}
}

func TestBuildRowLocationCode(t *testing.T) {
	raw := types.RawRow{
		types.FieldExternalSku:  "ACME-WIDGET-L",
		types.FieldLocationCode: " phx3 ",
	}

	perLocation := BuildRow(raw, types.KindPerLocation, map[string]string{})
	if perLocation.LocationCode == nil || *perLocation.LocationCode != "PHX3" {
		t.Errorf("per-location row should carry the normalized code, got %v", perLocation.LocationCode)
	}

	totals := BuildRow(raw, types.KindMarketplaceTotals, map[string]string{})
	if totals.LocationCode != nil {
		t.Errorf("marketplace-totals row should not carry a location, got %v", totals.LocationCode)
	}
}

func TestBuildRowErrorFlagsNeverNil(t *testing.T) {
	row := BuildRow(types.RawRow{types.FieldExternalSku: "x"}, types.KindMarketplaceTotals, nil)
	if row.ErrorFlags == nil {
		t.Error("ErrorFlags must be an empty slice, not nil")
	}
}
