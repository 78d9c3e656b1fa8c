// Package ingest turns downloaded report rows into classified inventory rows
// and lands them together with the batch's completion in one transaction.
package ingest

import (
	"strconv"
	"strings"

	"github.com/channelsync/inventory-service/internal/database"
	"github.com/channelsync/inventory-service/internal/mappings"
	"github.com/channelsync/inventory-service/internal/pkg/cuid2"
	"github.com/channelsync/inventory-service/internal/types"
)

// MatchRow classifies one normalized SKU against an active mapping snapshot.
// The lookup is the entire matching algorithm; anything fuzzier belongs in an
// operator-created mapping, not here.
func MatchRow(normalizedSku string, skuMap map[string]string) (types.MatchStatus, *string) {
	if normalizedSku == "" {
		return types.RowUnmatched, nil
	}
	if variantID, ok := skuMap[normalizedSku]; ok {
		return types.RowMatched, types.StringPtr(variantID)
	}
	return types.RowUnmatched, nil
}

// ParseQuantity parses a report quantity field. Empty means zero, which
// channels emit routinely. Negative and non-numeric values are invalid.
func ParseQuantity(raw string) (int, bool) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return 0, true
	}
	n, err := strconv.Atoi(trimmed)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

// BuildRow converts one raw report row into a persistable inventory row.
// Rows are never rejected here: a malformed row is stored with error flags
// and zeroed quantities so operators can see exactly what the channel sent.
func BuildRow(raw types.RawRow, kind types.SnapshotKind, skuMap map[string]string) database.InventoryRow {
	row := database.InventoryRow{
		ID:         cuid2.GeneratePrefixedId("row", cuid2.PrefixedIdOptions{TimeSortable: true}),
		ErrorFlags: []string{},
	}

	row.ExternalSku = strings.TrimSpace(raw[types.FieldExternalSku])
	row.NormalizedSku = mappings.NormalizeExternalSku(row.ExternalSku)
	if row.NormalizedSku == "" {
		row.ErrorFlags = append(row.ErrorFlags, types.RowErrMissingSku)
	}

	if asin := strings.TrimSpace(raw[types.FieldAsin]); asin != "" {
		row.Asin = types.StringPtr(asin)
	}
	if fnsku := strings.TrimSpace(raw[types.FieldFnsku]); fnsku != "" {
		row.Fnsku = types.StringPtr(fnsku)
	}
	if kind == types.KindPerLocation {
		if code := mappings.NormalizeLocationCode(raw[types.FieldLocationCode]); code != "" {
			row.LocationCode = types.StringPtr(code)
		}
	}

	badQty := false
	row.AvailableQty, badQty = parseInto(raw[types.FieldAvailable], badQty)
	row.InboundQty, badQty = parseInto(raw[types.FieldInbound], badQty)
	row.ReservedQty, badQty = parseInto(raw[types.FieldReserved], badQty)
	if badQty {
		row.ErrorFlags = append(row.ErrorFlags, types.RowErrBadQuantity)
	}

	status, variantID := MatchRow(row.NormalizedSku, skuMap)
	row.MatchStatus = string(status)
	row.VariantID = variantID
	return row
}

func parseInto(raw string, alreadyBad bool) (int, bool) {
	n, ok := ParseQuantity(raw)
	return n, alreadyBad || !ok
}
