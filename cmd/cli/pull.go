package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/channelsync/inventory-service/internal/catalog"
	"github.com/channelsync/inventory-service/internal/channel"
	"github.com/channelsync/inventory-service/internal/database"
	internalhttp "github.com/channelsync/inventory-service/internal/http"
	"github.com/channelsync/inventory-service/internal/http/ratelimit"
	"github.com/channelsync/inventory-service/internal/ingest"
	"github.com/channelsync/inventory-service/internal/lifecycle"
	"github.com/channelsync/inventory-service/internal/mappings"
	"github.com/channelsync/inventory-service/internal/types"
)

var (
	pullChannel     string
	pullMarketplace string
	pullKind        string
	pullWait        time.Duration
)

// pullCmd represents the pull command
var pullCmd = &cobra.Command{
	Use:   "pull",
	Short: "Request an inventory snapshot and poll it to completion",
	Long: `Request a fresh inventory report from the external channel and poll it
until the report completes, fails, or the wait budget runs out. On completion
the rows are classified against the active SKU mappings and persisted.

A batch that is still processing when the budget runs out stays pollable; run
pull with --wait 0 and poll it through the HTTP API instead.`,
	Example: `  inventory-service pull
  inventory-service pull --channel amazon-sc --marketplace ATVPDKIKX0DER --kind per-location
  inventory-service pull --wait 20m`,
	RunE: runPull,
}

func init() {
	rootCmd.AddCommand(pullCmd)

	pullCmd.Flags().StringVar(&pullChannel, "channel", "", "Sales channel key (defaults to configured channel)")
	pullCmd.Flags().StringVar(&pullMarketplace, "marketplace", "", "Marketplace id (defaults to configured marketplace)")
	pullCmd.Flags().StringVar(&pullKind, "kind", string(types.KindMarketplaceTotals), "Snapshot kind: marketplace-totals or per-location")
	pullCmd.Flags().DurationVar(&pullWait, "wait", 0, "Max wall clock for polling (defaults to configured value)")
}

func runPull(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	channelKey := pullChannel
	if channelKey == "" {
		channelKey = cfg.Channel.DefaultChannel
	}
	marketplaceID := pullMarketplace
	if marketplaceID == "" {
		marketplaceID = cfg.Channel.DefaultMarket
	}
	kind := types.SnapshotKind(pullKind)
	if !kind.IsValid() {
		return fmt.Errorf("invalid snapshot kind %q", pullKind)
	}

	manager := buildManager()

	batch, err := manager.RequestSnapshot(ctx, channelKey, marketplaceID, kind)
	if err != nil {
		return fmt.Errorf("snapshot request failed: %w", err)
	}
	logger.Info().Str("batch_id", batch.ID).Msg("Snapshot requested, polling")

	maxWait := pullWait
	if maxWait == 0 {
		maxWait = cfg.Channel.PollMaxWall
	}

	result, err := manager.RunPollLoop(ctx, batch.ID, maxWait)
	if err != nil {
		return fmt.Errorf("polling failed: %w", err)
	}

	switch result.Status {
	case types.BatchCompleted:
		logger.Info().
			Int("rows", result.RowCount).
			Int("matched", result.MatchedCount).
			Int("unmatched", result.UnmatchedCount).
			Msg("Snapshot ingested")
	case types.BatchFailed:
		return fmt.Errorf("channel reported failure for batch %s: %s", batch.ID, result.Message)
	default:
		logger.Warn().
			Str("batch_id", batch.ID).
			Msg("Report still processing, poll again later via the API")
	}
	return nil
}

// buildManager wires a lifecycle manager from the loaded config
func buildManager() *lifecycle.Manager {
	pool := database.Pool()
	repo := database.NewBatchRepo(pool)
	store := mappings.NewStore(pool)

	rateConfig := ratelimit.Config{
		RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
		MaxRetries:        cfg.RateLimit.MaxRetries,
		InitialBackoffMs:  cfg.RateLimit.InitialBackoffMs,
		MaxBackoffMs:      cfg.RateLimit.MaxBackoffMs,
	}
	var headers map[string]string
	if cfg.Channel.APIKey != "" {
		headers = map[string]string{"Authorization": "Bearer " + cfg.Channel.APIKey}
	}
	reports := channel.NewClient(internalhttp.NewClient(rateConfig, headers), cfg.Channel.BaseURL)

	return lifecycle.NewManager(repo, ingest.NewService(store, repo), reports)
}

// buildResolver wires a catalog resolver from the loaded config
func buildResolver() catalog.Resolver {
	if cfg.Catalog.BaseURL == "" {
		return nil
	}
	return catalog.NewHTTPResolver(internalhttp.NewClientDefault(), cfg.Catalog.BaseURL)
}
