package mappings

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/channelsync/inventory-service/internal/database"
	"github.com/channelsync/inventory-service/internal/pkg/cuid2"
)

// Store is the single source of truth for external -> internal identity.
// Read by the matcher and rematch engine, written by operators and the bulk
// importer. Writes are serialized per normalized key by the partial unique
// index on active mappings; concurrent upserts are last-writer-wins.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a mapping store backed by the given pool
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// SkuMappingInput is the operator-supplied content of one SKU mapping upsert
type SkuMappingInput struct {
	Channel       string  `json:"channel"`
	MarketplaceID string  `json:"marketplaceId"`
	ExternalSku   string  `json:"externalSku"`
	VariantID     string  `json:"variantId"`
	Asin          *string `json:"asin,omitempty"`
	Fnsku         *string `json:"fnsku,omitempty"`
	Notes         *string `json:"notes,omitempty"`
	Active        bool    `json:"active"`
}

const skuMappingColumns = `
	id, channel, marketplace_id, external_sku, normalized_sku, asin, fnsku,
	variant_id, active, notes, created_at, updated_at
`

func scanSkuMapping(row pgx.Row) (*database.ChannelSkuMapping, error) {
	var m database.ChannelSkuMapping
	err := row.Scan(
		&m.ID, &m.Channel, &m.MarketplaceID, &m.ExternalSku, &m.NormalizedSku, &m.Asin, &m.Fnsku,
		&m.VariantID, &m.Active, &m.Notes, &m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// UpsertSkuMapping inserts or updates the mapping keyed by normalized SKU.
// Changing the variant on an existing mapping is the normal "fix a wrong
// mapping" path; callers are expected to trigger a rematch afterward.
// An input with Active false deactivates the existing active mapping; the
// partial unique index only arbitrates active rows, so an inactive insert
// would slip past it and leave the old mapping matching.
func (s *Store) UpsertSkuMapping(ctx context.Context, in SkuMappingInput) (*database.ChannelSkuMapping, error) {
	normalized := NormalizeExternalSku(in.ExternalSku)
	if normalized == "" {
		return nil, fmt.Errorf("external SKU is required")
	}
	if in.VariantID == "" {
		return nil, fmt.Errorf("variant id is required")
	}

	if !in.Active {
		mapping, err := scanSkuMapping(s.pool.QueryRow(ctx, `
			UPDATE channel_sku_mappings
			SET active = false,
			    notes = COALESCE($4, notes),
			    updated_at = NOW()
			WHERE channel = $1 AND marketplace_id = $2 AND normalized_sku = $3 AND active
			RETURNING `+skuMappingColumns,
			in.Channel, in.MarketplaceID, normalized, in.Notes))
		if err == pgx.ErrNoRows {
			return nil, fmt.Errorf("no active mapping for %q to deactivate", in.ExternalSku)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to deactivate mapping for %q: %w", in.ExternalSku, err)
		}
		return mapping, nil
	}

	id := cuid2.GeneratePrefixedId("map", cuid2.PrefixedIdOptions{TimeSortable: true})

	mapping, err := scanSkuMapping(s.pool.QueryRow(ctx, `
		INSERT INTO channel_sku_mappings (
			id, channel, marketplace_id, external_sku, normalized_sku, asin, fnsku,
			variant_id, active, notes, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW(), NOW())
		ON CONFLICT (channel, marketplace_id, normalized_sku) WHERE active DO UPDATE SET
			external_sku = EXCLUDED.external_sku,
			asin = COALESCE(EXCLUDED.asin, channel_sku_mappings.asin),
			fnsku = COALESCE(EXCLUDED.fnsku, channel_sku_mappings.fnsku),
			variant_id = EXCLUDED.variant_id,
			active = EXCLUDED.active,
			notes = COALESCE(EXCLUDED.notes, channel_sku_mappings.notes),
			updated_at = NOW()
		RETURNING `+skuMappingColumns,
		id, in.Channel, in.MarketplaceID, in.ExternalSku, normalized, in.Asin, in.Fnsku,
		in.VariantID, in.Active, in.Notes))
	if err != nil {
		return nil, fmt.Errorf("failed to upsert sku mapping for %q: %w", in.ExternalSku, err)
	}
	return mapping, nil
}

// BulkUpsertSkuMappings applies a set of validated mapping rows in one
// transaction. Rows either all land or none do; per-row validation happens
// in the importer before this is called.
func (s *Store) BulkUpsertSkuMappings(ctx context.Context, inputs []SkuMappingInput) (int, error) {
	if len(inputs) == 0 {
		return 0, nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin bulk upsert: %w", err)
	}
	defer tx.Rollback(ctx)

	applied := 0
	for _, in := range inputs {
		normalized := NormalizeExternalSku(in.ExternalSku)

		// Inactive rows deactivate in place for the same reason as in
		// UpsertSkuMapping: the unique index never arbitrates them.
		if !in.Active {
			_, err := tx.Exec(ctx, `
				UPDATE channel_sku_mappings
				SET active = false,
				    notes = COALESCE($4, notes),
				    updated_at = NOW()
				WHERE channel = $1 AND marketplace_id = $2 AND normalized_sku = $3 AND active
			`, in.Channel, in.MarketplaceID, normalized, in.Notes)
			if err != nil {
				return 0, fmt.Errorf("failed to deactivate mapping for %q: %w", in.ExternalSku, err)
			}
			applied++
			continue
		}

		id := cuid2.GeneratePrefixedId("map", cuid2.PrefixedIdOptions{TimeSortable: true})
		_, err := tx.Exec(ctx, `
			INSERT INTO channel_sku_mappings (
				id, channel, marketplace_id, external_sku, normalized_sku, asin, fnsku,
				variant_id, active, notes, created_at, updated_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW(), NOW())
			ON CONFLICT (channel, marketplace_id, normalized_sku) WHERE active DO UPDATE SET
				external_sku = EXCLUDED.external_sku,
				asin = COALESCE(EXCLUDED.asin, channel_sku_mappings.asin),
				fnsku = COALESCE(EXCLUDED.fnsku, channel_sku_mappings.fnsku),
				variant_id = EXCLUDED.variant_id,
				active = EXCLUDED.active,
				notes = COALESCE(EXCLUDED.notes, channel_sku_mappings.notes),
				updated_at = NOW()
		`, id, in.Channel, in.MarketplaceID, in.ExternalSku, normalized, in.Asin, in.Fnsku,
			in.VariantID, in.Active, in.Notes)
		if err != nil {
			return 0, fmt.Errorf("failed to upsert mapping for %q: %w", in.ExternalSku, err)
		}
		applied++
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("failed to commit bulk upsert: %w", err)
	}
	return applied, nil
}

// Resolve returns the internal variant id an external SKU maps to, or nil if
// no active mapping exists. Only active mappings are ever considered.
func (s *Store) Resolve(ctx context.Context, channel, marketplaceID, externalSku string) (*string, error) {
	normalized := NormalizeExternalSku(externalSku)
	if normalized == "" {
		return nil, nil
	}

	var variantID string
	err := s.pool.QueryRow(ctx, `
		SELECT variant_id
		FROM channel_sku_mappings
		WHERE channel = $1 AND marketplace_id = $2 AND normalized_sku = $3 AND active
	`, channel, marketplaceID, normalized).Scan(&variantID)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve sku %q: %w", externalSku, err)
	}
	return &variantID, nil
}

// ActiveSkuMap loads the full active mapping snapshot for one channel and
// marketplace, keyed by normalized SKU. The matcher and rematch engine work
// from this snapshot so a whole batch is classified against one consistent
// view of the mappings.
func (s *Store) ActiveSkuMap(ctx context.Context, channel, marketplaceID string) (map[string]string, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT normalized_sku, variant_id
		FROM channel_sku_mappings
		WHERE channel = $1 AND marketplace_id = $2 AND active
	`, channel, marketplaceID)
	if err != nil {
		return nil, fmt.Errorf("failed to load active sku mappings: %w", err)
	}
	defer rows.Close()

	skuMap := make(map[string]string)
	for rows.Next() {
		var sku, variantID string
		if err := rows.Scan(&sku, &variantID); err != nil {
			return nil, err
		}
		skuMap[sku] = variantID
	}
	return skuMap, rows.Err()
}

// SkuMappingFilter narrows ListSkuMappings results
type SkuMappingFilter struct {
	Channel       string
	MarketplaceID string
	ActiveOnly    bool
	Search        string // free text over external sku, asin, fnsku, notes
	Limit         int
	Offset        int
}

// ListSkuMappings returns mappings matching the filter plus a total count
func (s *Store) ListSkuMappings(ctx context.Context, f SkuMappingFilter) ([]database.ChannelSkuMapping, int, error) {
	if f.Limit <= 0 {
		f.Limit = 50
	}

	where := ` WHERE channel = $1 AND marketplace_id = $2`
	args := []any{f.Channel, f.MarketplaceID}
	if f.ActiveOnly {
		where += ` AND active`
	}
	if f.Search != "" {
		args = append(args, "%"+RemoveDiacritics(f.Search)+"%")
		where += fmt.Sprintf(` AND (external_sku ILIKE $%d OR asin ILIKE $%d OR fnsku ILIKE $%d OR notes ILIKE $%d)`,
			len(args), len(args), len(args), len(args))
	}

	var total int
	if err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM channel_sku_mappings`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count sku mappings: %w", err)
	}

	args = append(args, f.Limit, f.Offset)
	query := `SELECT ` + skuMappingColumns + ` FROM channel_sku_mappings` + where +
		fmt.Sprintf(` ORDER BY updated_at DESC LIMIT $%d OFFSET $%d`, len(args)-1, len(args))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list sku mappings: %w", err)
	}
	defer rows.Close()

	result := make([]database.ChannelSkuMapping, 0, f.Limit)
	for rows.Next() {
		m, err := scanSkuMapping(rows)
		if err != nil {
			return nil, 0, err
		}
		result = append(result, *m)
	}
	return result, total, rows.Err()
}

// DeactivateSkuMapping soft-deletes a mapping. The row is retained for audit
// and excluded from matching from here on.
func (s *Store) DeactivateSkuMapping(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE channel_sku_mappings
		SET active = false, updated_at = NOW()
		WHERE id = $1
	`, id)
	if err != nil {
		return fmt.Errorf("failed to deactivate mapping %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("mapping %s not found", id)
	}
	return nil
}

// LocationMappingInput is the operator-supplied content of one location upsert
type LocationMappingInput struct {
	Channel       string  `json:"channel"`
	MarketplaceID string  `json:"marketplaceId"`
	LocationCode  string  `json:"locationCode"`
	StateCode     *string `json:"stateCode,omitempty"`
	StateName     *string `json:"stateName,omitempty"`
	City          *string `json:"city,omitempty"`
	DisplayName   *string `json:"displayName,omitempty"`
	Notes         *string `json:"notes,omitempty"`
	Active        bool    `json:"active"`
}

const locationMappingColumns = `
	id, channel, marketplace_id, location_code, normalized_code, state_code,
	state_name, city, display_name, active, notes, created_at, updated_at
`

func scanLocationMapping(row pgx.Row) (*database.LocationMapping, error) {
	var m database.LocationMapping
	err := row.Scan(
		&m.ID, &m.Channel, &m.MarketplaceID, &m.LocationCode, &m.NormalizedCode, &m.StateCode,
		&m.StateName, &m.City, &m.DisplayName, &m.Active, &m.Notes, &m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// UpsertLocationMapping inserts or updates a location mapping keyed by
// normalized location code. As with SKU mappings, Active false deactivates
// the existing active row in place.
func (s *Store) UpsertLocationMapping(ctx context.Context, in LocationMappingInput) (*database.LocationMapping, error) {
	normalized := NormalizeLocationCode(in.LocationCode)
	if normalized == "" {
		return nil, fmt.Errorf("location code is required")
	}

	if !in.Active {
		mapping, err := scanLocationMapping(s.pool.QueryRow(ctx, `
			UPDATE location_mappings
			SET active = false,
			    notes = COALESCE($4, notes),
			    updated_at = NOW()
			WHERE channel = $1 AND marketplace_id = $2 AND normalized_code = $3 AND active
			RETURNING `+locationMappingColumns,
			in.Channel, in.MarketplaceID, normalized, in.Notes))
		if err == pgx.ErrNoRows {
			return nil, fmt.Errorf("no active location mapping for %q to deactivate", in.LocationCode)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to deactivate location mapping for %q: %w", in.LocationCode, err)
		}
		return mapping, nil
	}

	id := cuid2.GeneratePrefixedId("loc", cuid2.PrefixedIdOptions{TimeSortable: true})

	mapping, err := scanLocationMapping(s.pool.QueryRow(ctx, `
		INSERT INTO location_mappings (
			id, channel, marketplace_id, location_code, normalized_code, state_code,
			state_name, city, display_name, active, notes, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NOW(), NOW())
		ON CONFLICT (channel, marketplace_id, normalized_code) WHERE active DO UPDATE SET
			location_code = EXCLUDED.location_code,
			state_code = EXCLUDED.state_code,
			state_name = EXCLUDED.state_name,
			city = EXCLUDED.city,
			display_name = EXCLUDED.display_name,
			active = EXCLUDED.active,
			notes = COALESCE(EXCLUDED.notes, location_mappings.notes),
			updated_at = NOW()
		RETURNING `+locationMappingColumns,
		id, in.Channel, in.MarketplaceID, in.LocationCode, normalized, in.StateCode,
		in.StateName, in.City, in.DisplayName, in.Active, in.Notes))
	if err != nil {
		return nil, fmt.Errorf("failed to upsert location mapping for %q: %w", in.LocationCode, err)
	}
	return mapping, nil
}

// ListLocationMappings returns all location mappings for a channel/marketplace
func (s *Store) ListLocationMappings(ctx context.Context, channel, marketplaceID string, activeOnly bool) ([]database.LocationMapping, error) {
	query := `SELECT ` + locationMappingColumns + `
		FROM location_mappings
		WHERE channel = $1 AND marketplace_id = $2`
	if activeOnly {
		query += ` AND active`
	}
	query += ` ORDER BY normalized_code`

	rows, err := s.pool.Query(ctx, query, channel, marketplaceID)
	if err != nil {
		return nil, fmt.Errorf("failed to list location mappings: %w", err)
	}
	defer rows.Close()

	result := make([]database.LocationMapping, 0)
	for rows.Next() {
		m, err := scanLocationMapping(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *m)
	}
	return result, rows.Err()
}

// ActiveLocationMap loads active location mappings keyed by normalized code,
// used by the rollup aggregator to label locations.
func (s *Store) ActiveLocationMap(ctx context.Context, channel, marketplaceID string) (map[string]database.LocationMapping, error) {
	mappings, err := s.ListLocationMappings(ctx, channel, marketplaceID, true)
	if err != nil {
		return nil, err
	}

	byCode := make(map[string]database.LocationMapping, len(mappings))
	for _, m := range mappings {
		byCode[m.NormalizedCode] = m
	}
	return byCode, nil
}
