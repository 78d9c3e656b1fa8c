package mappings

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/channelsync/inventory-service/internal/catalog"
	"github.com/channelsync/inventory-service/internal/types"
)

// ImportRow is one row of a bulk mapping submission, from CSV, XLSX or the
// JSON import endpoint. Either VariantID or InternalSku must be present; when
// only InternalSku is given the importer resolves it via the catalog.
type ImportRow struct {
	ExternalSku string  `json:"externalSku"`
	VariantID   string  `json:"variantId,omitempty"`
	InternalSku string  `json:"internalSku,omitempty"`
	Asin        *string `json:"asin,omitempty"`
	Fnsku       *string `json:"fnsku,omitempty"`
	Notes       *string `json:"notes,omitempty"`
	Active      *string `json:"active,omitempty"` // bool token, defaults to true
}

// ImportOutcome is the per-row verdict of a bulk import
type ImportOutcome struct {
	RowNumber   int                       `json:"rowNumber"`
	ExternalSku string                    `json:"externalSku"`
	Status      types.ImportOutcomeStatus `json:"status"`
	Reason      string                    `json:"reason,omitempty"`
}

// ImportResult summarizes a bulk import run
type ImportResult struct {
	Total    int             `json:"total"`
	Upserted int             `json:"upserted"`
	Skipped  int             `json:"skipped"`
	Errors   int             `json:"errors"`
	Outcomes []ImportOutcome `json:"outcomes"`
}

// BulkWriter is the slice of the mapping store the importer writes through
type BulkWriter interface {
	BulkUpsertSkuMappings(ctx context.Context, inputs []SkuMappingInput) (int, error)
}

// Importer validates and applies bulk mapping submissions. Valid rows are
// applied even when other rows in the same submission fail validation.
type Importer struct {
	store    BulkWriter
	resolver catalog.Resolver
}

// NewImporter creates a bulk mapping importer
func NewImporter(store BulkWriter, resolver catalog.Resolver) *Importer {
	return &Importer{store: store, resolver: resolver}
}

// Import validates every row, resolves internal SKUs in one catalog call,
// upserts the valid rows in a single transaction and reports a per-row
// outcome. Duplicate normalized SKUs within one submission keep the first
// occurrence; later duplicates are skipped so the outcome is deterministic
// regardless of database write order.
func (imp *Importer) Import(ctx context.Context, companyID, channel, marketplaceID string, rows []ImportRow) (*ImportResult, error) {
	result := &ImportResult{
		Total:    len(rows),
		Outcomes: make([]ImportOutcome, 0, len(rows)),
	}

	variantBySku, err := imp.resolveInternalSkus(ctx, companyID, rows)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	inputs := make([]SkuMappingInput, 0, len(rows))
	pending := make([]*ImportOutcome, 0, len(rows))

	for i, row := range rows {
		outcome := ImportOutcome{
			RowNumber:   i + 1,
			ExternalSku: row.ExternalSku,
		}

		normalized := NormalizeExternalSku(row.ExternalSku)
		if normalized == "" {
			outcome.Status = types.ImportError
			outcome.Reason = "external SKU is required"
			result.Outcomes = append(result.Outcomes, outcome)
			result.Errors++
			continue
		}

		variantID := row.VariantID
		if variantID == "" && row.InternalSku != "" {
			variantID = variantBySku[strings.TrimSpace(row.InternalSku)]
			if variantID == "" {
				outcome.Status = types.ImportError
				outcome.Reason = fmt.Sprintf("internal SKU %q not found in catalog", row.InternalSku)
				result.Outcomes = append(result.Outcomes, outcome)
				result.Errors++
				continue
			}
		}
		if variantID == "" {
			outcome.Status = types.ImportError
			outcome.Reason = "either variant id or internal SKU is required"
			result.Outcomes = append(result.Outcomes, outcome)
			result.Errors++
			continue
		}

		active := true
		if row.Active != nil && *row.Active != "" {
			parsed, ok := ParseBoolToken(*row.Active)
			if !ok {
				outcome.Status = types.ImportError
				outcome.Reason = fmt.Sprintf("unrecognized active value %q", *row.Active)
				result.Outcomes = append(result.Outcomes, outcome)
				result.Errors++
				continue
			}
			active = parsed
		}

		if seen[normalized] {
			outcome.Status = types.ImportSkipped
			outcome.Reason = "duplicate of an earlier row in this submission"
			result.Outcomes = append(result.Outcomes, outcome)
			result.Skipped++
			continue
		}
		seen[normalized] = true

		inputs = append(inputs, SkuMappingInput{
			Channel:       channel,
			MarketplaceID: marketplaceID,
			ExternalSku:   row.ExternalSku,
			VariantID:     variantID,
			Asin:          row.Asin,
			Fnsku:         row.Fnsku,
			Notes:         row.Notes,
			Active:        active,
		})
		outcome.Status = types.ImportUpserted
		result.Outcomes = append(result.Outcomes, outcome)
		pending = append(pending, &result.Outcomes[len(result.Outcomes)-1])
	}

	if len(inputs) > 0 {
		applied, err := imp.store.BulkUpsertSkuMappings(ctx, inputs)
		if err != nil {
			for _, o := range pending {
				o.Status = types.ImportError
				o.Reason = "database write failed"
			}
			result.Errors += len(pending)
			return result, fmt.Errorf("bulk mapping import failed: %w", err)
		}
		result.Upserted = applied
	}

	log.Info().
		Str("channel", channel).
		Str("marketplace_id", marketplaceID).
		Int("total", result.Total).
		Int("upserted", result.Upserted).
		Int("skipped", result.Skipped).
		Int("errors", result.Errors).
		Msg("Bulk mapping import finished")

	return result, nil
}

// resolveInternalSkus collects the internal SKUs of rows without an explicit
// variant id and resolves them in one batched catalog call
func (imp *Importer) resolveInternalSkus(ctx context.Context, companyID string, rows []ImportRow) (map[string]string, error) {
	wanted := make([]string, 0)
	seen := make(map[string]bool)
	for _, row := range rows {
		sku := strings.TrimSpace(row.InternalSku)
		if row.VariantID != "" || sku == "" || seen[sku] {
			continue
		}
		seen[sku] = true
		wanted = append(wanted, sku)
	}
	if len(wanted) == 0 {
		return nil, nil
	}
	if imp.resolver == nil {
		return nil, fmt.Errorf("catalog resolver is not configured, rows with internal SKUs cannot be imported")
	}

	refs, err := imp.resolver.ResolveVariantsBySku(ctx, companyID, wanted)
	if err != nil {
		return nil, fmt.Errorf("catalog resolution failed: %w", err)
	}

	bySku := make(map[string]string, len(refs))
	for _, ref := range refs {
		bySku[ref.Sku] = ref.VariantID
	}
	return bySku, nil
}
