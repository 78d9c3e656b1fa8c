package mappings

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/channelsync/inventory-service/internal/types"
)

func setupMappingsTestDB(t *testing.T) (*pgxpool.Pool, func()) {
	if testing.Short() {
		t.Skip("skipping database test in short mode (requires Docker)")
	}

	ctx := context.Background()

	container, err := postgres.Run(ctx, "postgres:16-alpine",
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	require.NoError(t, err, "Failed to start postgres container")

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err, "Failed to get connection string")

	config, err := pgxpool.ParseConfig(connStr)
	require.NoError(t, err)

	pool, err := pgxpool.NewWithConfig(ctx, config)
	require.NoError(t, err, "Failed to create connection pool")

	err = runMappingsTestMigrations(ctx, pool)
	require.NoError(t, err, "Failed to run migrations")

	cleanup := func() {
		pool.Close()
		testcontainers.TerminateContainer(container)
	}

	return pool, cleanup
}

func runMappingsTestMigrations(ctx context.Context, db *pgxpool.Pool) error {
	schema := `
	CREATE TABLE IF NOT EXISTS channel_sku_mappings (
		id TEXT PRIMARY KEY,
		channel TEXT NOT NULL,
		marketplace_id TEXT NOT NULL,
		external_sku TEXT NOT NULL,
		normalized_sku TEXT NOT NULL,
		asin TEXT,
		fnsku TEXT,
		variant_id TEXT NOT NULL,
		active BOOLEAN NOT NULL DEFAULT true,
		notes TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_sku_mappings_active_key
		ON channel_sku_mappings(channel, marketplace_id, normalized_sku) WHERE active;

	CREATE TABLE IF NOT EXISTS location_mappings (
		id TEXT PRIMARY KEY,
		channel TEXT NOT NULL,
		marketplace_id TEXT NOT NULL,
		location_code TEXT NOT NULL,
		normalized_code TEXT NOT NULL,
		state_code TEXT,
		state_name TEXT,
		city TEXT,
		display_name TEXT,
		active BOOLEAN NOT NULL DEFAULT true,
		notes TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_location_mappings_active_key
		ON location_mappings(channel, marketplace_id, normalized_code) WHERE active;
	`
	_, err := db.Exec(ctx, schema)
	return err
}

func TestUpsertSkuMappingKeyedByNormalizedSku(t *testing.T) {
	pool, cleanup := setupMappingsTestDB(t)
	defer cleanup()
	ctx := context.Background()

	store := NewStore(pool)

	first, err := store.UpsertSkuMapping(ctx, SkuMappingInput{
		Channel:       "amazon-sc",
		MarketplaceID: "ATVPDKIKX0DER",
		ExternalSku:   "ACME-WIDGET-L",
		VariantID:     "var_1",
		Active:        true,
	})
	require.NoError(t, err)
	assert.Equal(t, "acme-widget-l", first.NormalizedSku)

	// Different raw casing, same normalized key: updates in place.
	second, err := store.UpsertSkuMapping(ctx, SkuMappingInput{
		Channel:       "amazon-sc",
		MarketplaceID: "ATVPDKIKX0DER",
		ExternalSku:   "acme-widget-l",
		VariantID:     "var_2",
		Active:        true,
	})
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID, "upsert must not create a second active mapping")
	assert.Equal(t, "var_2", second.VariantID)

	variantID, err := store.Resolve(ctx, "amazon-sc", "ATVPDKIKX0DER", "  ACME-WIDGET-L ")
	require.NoError(t, err)
	require.NotNil(t, variantID)
	assert.Equal(t, "var_2", *variantID)
}

func TestDeactivateIsSoftDelete(t *testing.T) {
	pool, cleanup := setupMappingsTestDB(t)
	defer cleanup()
	ctx := context.Background()

	store := NewStore(pool)

	mapping, err := store.UpsertSkuMapping(ctx, SkuMappingInput{
		Channel:       "amazon-sc",
		MarketplaceID: "ATVPDKIKX0DER",
		ExternalSku:   "ACME-WIDGET-L",
		VariantID:     "var_1",
		Active:        true,
	})
	require.NoError(t, err)

	require.NoError(t, store.DeactivateSkuMapping(ctx, mapping.ID))

	// Resolution no longer sees it.
	variantID, err := store.Resolve(ctx, "amazon-sc", "ATVPDKIKX0DER", "ACME-WIDGET-L")
	require.NoError(t, err)
	assert.Nil(t, variantID)

	// The row is retained for audit.
	all, total, err := store.ListSkuMappings(ctx, SkuMappingFilter{
		Channel:       "amazon-sc",
		MarketplaceID: "ATVPDKIKX0DER",
	})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.False(t, all[0].Active)

	// Remapping the SKU later creates a fresh active row next to the
	// deactivated one.
	_, err = store.UpsertSkuMapping(ctx, SkuMappingInput{
		Channel:       "amazon-sc",
		MarketplaceID: "ATVPDKIKX0DER",
		ExternalSku:   "ACME-WIDGET-L",
		VariantID:     "var_3",
		Active:        true,
	})
	require.NoError(t, err)

	_, total, err = store.ListSkuMappings(ctx, SkuMappingFilter{
		Channel:       "amazon-sc",
		MarketplaceID: "ATVPDKIKX0DER",
	})
	require.NoError(t, err)
	assert.Equal(t, 2, total)

	active, _, err := store.ListSkuMappings(ctx, SkuMappingFilter{
		Channel:       "amazon-sc",
		MarketplaceID: "ATVPDKIKX0DER",
		ActiveOnly:    true,
	})
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "var_3", active[0].VariantID)
}

func TestActiveSkuMapScopedByChannelAndMarketplace(t *testing.T) {
	pool, cleanup := setupMappingsTestDB(t)
	defer cleanup()
	ctx := context.Background()

	store := NewStore(pool)

	for _, in := range []SkuMappingInput{
		{Channel: "amazon-sc", MarketplaceID: "ATVPDKIKX0DER", ExternalSku: "A", VariantID: "var_a", Active: true},
		{Channel: "amazon-sc", MarketplaceID: "A2EUQ1WTGCTBG2", ExternalSku: "A", VariantID: "var_other_market", Active: true},
		{Channel: "amazon-sc", MarketplaceID: "ATVPDKIKX0DER", ExternalSku: "B", VariantID: "var_b", Active: true},
	} {
		_, err := store.UpsertSkuMapping(ctx, in)
		require.NoError(t, err)
	}

	skuMap, err := store.ActiveSkuMap(ctx, "amazon-sc", "ATVPDKIKX0DER")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"a": "var_a", "b": "var_b"}, skuMap)
}

func TestBulkUpsertSkuMappingsIsAtomic(t *testing.T) {
	pool, cleanup := setupMappingsTestDB(t)
	defer cleanup()
	ctx := context.Background()

	store := NewStore(pool)

	applied, err := store.BulkUpsertSkuMappings(ctx, []SkuMappingInput{
		{Channel: "amazon-sc", MarketplaceID: "ATVPDKIKX0DER", ExternalSku: "A", VariantID: "var_a", Active: true},
		{Channel: "amazon-sc", MarketplaceID: "ATVPDKIKX0DER", ExternalSku: "B", VariantID: "var_b", Active: true},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, applied)

	skuMap, err := store.ActiveSkuMap(ctx, "amazon-sc", "ATVPDKIKX0DER")
	require.NoError(t, err)
	assert.Len(t, skuMap, 2)
}

func TestUpsertWithActiveFalseDeactivatesExistingMapping(t *testing.T) {
	pool, cleanup := setupMappingsTestDB(t)
	defer cleanup()
	ctx := context.Background()

	store := NewStore(pool)

	original, err := store.UpsertSkuMapping(ctx, SkuMappingInput{
		Channel:       "amazon-sc",
		MarketplaceID: "ATVPDKIKX0DER",
		ExternalSku:   "ACME-WIDGET-L",
		VariantID:     "var_1",
		Active:        true,
	})
	require.NoError(t, err)

	deactivated, err := store.UpsertSkuMapping(ctx, SkuMappingInput{
		Channel:       "amazon-sc",
		MarketplaceID: "ATVPDKIKX0DER",
		ExternalSku:   "acme-widget-l",
		VariantID:     "var_1",
		Active:        false,
	})
	require.NoError(t, err)
	assert.Equal(t, original.ID, deactivated.ID, "deactivation must hit the existing row, not insert a new one")
	assert.False(t, deactivated.Active)

	variantID, err := store.Resolve(ctx, "amazon-sc", "ATVPDKIKX0DER", "ACME-WIDGET-L")
	require.NoError(t, err)
	assert.Nil(t, variantID, "a deactivated mapping must stop matching")

	_, total, err := store.ListSkuMappings(ctx, SkuMappingFilter{
		Channel:       "amazon-sc",
		MarketplaceID: "ATVPDKIKX0DER",
	})
	require.NoError(t, err)
	assert.Equal(t, 1, total, "deactivation must not leave a shadow inactive row behind")

	// With nothing active left, another inactive upsert has nothing to touch.
	_, err = store.UpsertSkuMapping(ctx, SkuMappingInput{
		Channel:       "amazon-sc",
		MarketplaceID: "ATVPDKIKX0DER",
		ExternalSku:   "ACME-WIDGET-L",
		VariantID:     "var_1",
		Active:        false,
	})
	require.Error(t, err)
}

func TestBulkUpsertWithActiveFalseDeactivates(t *testing.T) {
	pool, cleanup := setupMappingsTestDB(t)
	defer cleanup()
	ctx := context.Background()

	store := NewStore(pool)

	_, err := store.UpsertSkuMapping(ctx, SkuMappingInput{
		Channel:       "amazon-sc",
		MarketplaceID: "ATVPDKIKX0DER",
		ExternalSku:   "ACME-WIDGET-L",
		VariantID:     "var_1",
		Active:        true,
	})
	require.NoError(t, err)

	applied, err := store.BulkUpsertSkuMappings(ctx, []SkuMappingInput{
		{Channel: "amazon-sc", MarketplaceID: "ATVPDKIKX0DER", ExternalSku: "ACME-WIDGET-L", VariantID: "var_1", Active: false},
		{Channel: "amazon-sc", MarketplaceID: "ATVPDKIKX0DER", ExternalSku: "NEW-SKU", VariantID: "var_2", Active: true},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, applied)

	skuMap, err := store.ActiveSkuMap(ctx, "amazon-sc", "ATVPDKIKX0DER")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"new-sku": "var_2"}, skuMap,
		"an imported inactive row must deactivate the existing mapping")

	_, total, err := store.ListSkuMappings(ctx, SkuMappingFilter{
		Channel:       "amazon-sc",
		MarketplaceID: "ATVPDKIKX0DER",
	})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
}

func TestListSkuMappingsSearch(t *testing.T) {
	pool, cleanup := setupMappingsTestDB(t)
	defer cleanup()
	ctx := context.Background()

	store := NewStore(pool)

	_, err := store.UpsertSkuMapping(ctx, SkuMappingInput{
		Channel:       "amazon-sc",
		MarketplaceID: "ATVPDKIKX0DER",
		ExternalSku:   "ACME-WIDGET-L",
		VariantID:     "var_1",
		Asin:          types.StringPtr("B00TEST123"),
		Active:        true,
	})
	require.NoError(t, err)
	_, err = store.UpsertSkuMapping(ctx, SkuMappingInput{
		Channel:       "amazon-sc",
		MarketplaceID: "ATVPDKIKX0DER",
		ExternalSku:   "OTHER-1",
		VariantID:     "var_2",
		Active:        true,
	})
	require.NoError(t, err)

	bySku, total, err := store.ListSkuMappings(ctx, SkuMappingFilter{
		Channel:       "amazon-sc",
		MarketplaceID: "ATVPDKIKX0DER",
		Search:        "widget",
	})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, bySku, 1)
	assert.Equal(t, "ACME-WIDGET-L", bySku[0].ExternalSku)

	byAsin, total, err := store.ListSkuMappings(ctx, SkuMappingFilter{
		Channel:       "amazon-sc",
		MarketplaceID: "ATVPDKIKX0DER",
		Search:        "B00TEST",
	})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Equal(t, bySku[0].ID, byAsin[0].ID)
}

func TestLocationMappings(t *testing.T) {
	pool, cleanup := setupMappingsTestDB(t)
	defer cleanup()
	ctx := context.Background()

	store := NewStore(pool)

	first, err := store.UpsertLocationMapping(ctx, LocationMappingInput{
		Channel:       "amazon-sc",
		MarketplaceID: "ATVPDKIKX0DER",
		LocationCode:  " phx3 ",
		StateCode:     types.StringPtr("AZ"),
		City:          types.StringPtr("Phoenix"),
		Active:        true,
	})
	require.NoError(t, err)
	assert.Equal(t, "PHX3", first.NormalizedCode)

	// Same normalized code updates in place.
	second, err := store.UpsertLocationMapping(ctx, LocationMappingInput{
		Channel:       "amazon-sc",
		MarketplaceID: "ATVPDKIKX0DER",
		LocationCode:  "PHX3",
		StateCode:     types.StringPtr("AZ"),
		City:          types.StringPtr("Phoenix"),
		DisplayName:   types.StringPtr("Phoenix Hub"),
		Active:        true,
	})
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	byCode, err := store.ActiveLocationMap(ctx, "amazon-sc", "ATVPDKIKX0DER")
	require.NoError(t, err)
	require.Contains(t, byCode, "PHX3")
	require.NotNil(t, byCode["PHX3"].DisplayName)
	assert.Equal(t, "Phoenix Hub", *byCode["PHX3"].DisplayName)
}
