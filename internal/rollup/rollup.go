// Package rollup computes on-demand aggregates over a batch's rows. Nothing
// here is persisted or maintained incrementally; every request recomputes
// from the rows as they are at that moment, so a rollup taken mid-rematch may
// see a transitional mix of classifications.
package rollup

import (
	"sort"

	"github.com/channelsync/inventory-service/internal/database"
	"github.com/channelsync/inventory-service/internal/mappings"
	"github.com/channelsync/inventory-service/internal/types"
)

// LocationRow is one location's aggregate within a batch. Rows without a
// location code (marketplace-totals snapshots) aggregate under an empty code.
type LocationRow struct {
	LocationCode   string  `json:"locationCode"`
	DisplayLabel   string  `json:"displayLabel,omitempty"`
	StateCode      *string `json:"stateCode,omitempty"`
	City           *string `json:"city,omitempty"`
	Unmapped       bool    `json:"unmapped"`
	RowCount       int     `json:"rowCount"`
	MatchedCount   int     `json:"matchedCount"`
	UnmatchedCount int     `json:"unmatchedCount"`
	ErroredCount   int     `json:"erroredCount"`
	AvailableTotal int     `json:"availableTotal"`
	InboundTotal   int     `json:"inboundTotal"`
	ReservedTotal  int     `json:"reservedTotal"`
}

// SkuRow is one SKU's aggregate within a single location. Matched rows group
// by resolved variant id, unmatched rows by their raw external SKU, so a
// variant sold under several external SKUs collapses into one line while
// unmatched SKUs stay individually visible for correction.
type SkuRow struct {
	VariantID      *string `json:"variantId,omitempty"`
	ExternalSku    string  `json:"externalSku,omitempty"`
	RowCount       int     `json:"rowCount"`
	UnmatchedCount int     `json:"unmatchedCount"`
	AvailableTotal int     `json:"availableTotal"`
	InboundTotal   int     `json:"inboundTotal"`
	ReservedTotal  int     `json:"reservedTotal"`
}

// LocationRollup aggregates a batch's rows per location code. Every location
// present in the rows appears, mapped or not; quantity sums over the result
// always equal the sums over the underlying rows.
func LocationRollup(rows []database.InventoryRow, locations map[string]database.LocationMapping) []LocationRow {
	byCode := make(map[string]*LocationRow)
	order := make([]string, 0)

	for _, row := range rows {
		code := ""
		if row.LocationCode != nil {
			code = *row.LocationCode
		}

		agg, ok := byCode[code]
		if !ok {
			agg = &LocationRow{LocationCode: code, Unmapped: true}
			if loc, found := locations[code]; found {
				agg.Unmapped = false
				agg.StateCode = loc.StateCode
				agg.City = loc.City
				agg.DisplayLabel = locationLabel(loc)
			}
			byCode[code] = agg
			order = append(order, code)
		}

		agg.RowCount++
		switch row.MatchStatus {
		case string(types.RowMatched):
			agg.MatchedCount++
		default:
			agg.UnmatchedCount++
		}
		if row.HasErrors() {
			agg.ErroredCount++
		}
		agg.AvailableTotal += row.AvailableQty
		agg.InboundTotal += row.InboundQty
		agg.ReservedTotal += row.ReservedQty
	}

	sort.Strings(order)
	result := make([]LocationRow, 0, len(order))
	for _, code := range order {
		result = append(result, *byCode[code])
	}
	return result
}

// LocationSkuRollup aggregates one location's rows per SKU. An empty location
// code selects the rows without a location, matching LocationRollup's
// grouping for marketplace-totals snapshots.
func LocationSkuRollup(rows []database.InventoryRow, locationCode string) []SkuRow {
	normalized := mappings.NormalizeLocationCode(locationCode)

	type key struct {
		variantID string
		sku       string
	}
	byKey := make(map[key]*SkuRow)
	order := make([]key, 0)

	for _, row := range rows {
		code := ""
		if row.LocationCode != nil {
			code = *row.LocationCode
		}
		if code != normalized {
			continue
		}

		var k key
		if row.MatchStatus == string(types.RowMatched) && row.VariantID != nil {
			k = key{variantID: *row.VariantID}
		} else {
			k = key{sku: row.ExternalSku}
		}

		agg, ok := byKey[k]
		if !ok {
			agg = &SkuRow{ExternalSku: k.sku}
			if k.variantID != "" {
				agg.VariantID = types.StringPtr(k.variantID)
			}
			byKey[k] = agg
			order = append(order, k)
		}

		agg.RowCount++
		if row.MatchStatus != string(types.RowMatched) {
			agg.UnmatchedCount++
		}
		agg.AvailableTotal += row.AvailableQty
		agg.InboundTotal += row.InboundQty
		agg.ReservedTotal += row.ReservedQty
	}

	sort.Slice(order, func(i, j int) bool {
		if order[i].variantID != order[j].variantID {
			return order[i].variantID < order[j].variantID
		}
		return order[i].sku < order[j].sku
	})
	result := make([]SkuRow, 0, len(order))
	for _, k := range order {
		result = append(result, *byKey[k])
	}
	return result
}

func locationLabel(loc database.LocationMapping) string {
	if loc.DisplayName != nil && *loc.DisplayName != "" {
		return *loc.DisplayName
	}
	label := ""
	if loc.City != nil && *loc.City != "" {
		label = *loc.City
	}
	if loc.StateName != nil && *loc.StateName != "" {
		if label != "" {
			label += ", "
		}
		label += *loc.StateName
	} else if loc.StateCode != nil && *loc.StateCode != "" {
		if label != "" {
			label += ", "
		}
		label += *loc.StateCode
	}
	return label
}
