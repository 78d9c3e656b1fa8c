package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/channelsync/inventory-service/internal/database"
	"github.com/channelsync/inventory-service/internal/mappings"
	"github.com/channelsync/inventory-service/internal/rematch"
)

var (
	rematchSku     string
	rematchChannel string
	rematchMarket  string
)

// rematchCmd represents the rematch command
var rematchCmd = &cobra.Command{
	Use:   "rematch [batchId]",
	Short: "Reclassify a batch's rows against current SKU mappings",
	Long: `Recompute match status for a batch's persisted rows using the active SKU
mappings, without re-downloading anything from the channel. With --sku only
the rows carrying that external SKU are touched. Without a batch id the most
recent completed batch for the channel is rematched.`,
	Example: `  inventory-service rematch batch_abc123
  inventory-service rematch batch_abc123 --sku "ACME-WIDGET-L"
  inventory-service rematch --channel amazon-sc`,
	Args: cobra.MaximumNArgs(1),
	RunE: runRematch,
}

func init() {
	rootCmd.AddCommand(rematchCmd)

	rematchCmd.Flags().StringVar(&rematchSku, "sku", "", "Only rematch rows with this external SKU")
	rematchCmd.Flags().StringVar(&rematchChannel, "channel", "", "Channel for latest-batch lookup (defaults to configured channel)")
	rematchCmd.Flags().StringVar(&rematchMarket, "marketplace", "", "Marketplace for latest-batch lookup (defaults to configured marketplace)")
}

func runRematch(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	pool := database.Pool()
	repo := database.NewBatchRepo(pool)
	engine := rematch.NewEngine(repo, mappings.NewStore(pool))

	var batchID string
	if len(args) > 0 {
		batchID = args[0]
	} else {
		channelKey := rematchChannel
		if channelKey == "" {
			channelKey = cfg.Channel.DefaultChannel
		}
		marketplaceID := rematchMarket
		if marketplaceID == "" {
			marketplaceID = cfg.Channel.DefaultMarket
		}
		latest, err := repo.LatestBatchWithRows(ctx, channelKey, marketplaceID)
		if err != nil {
			return fmt.Errorf("failed to look up latest batch: %w", err)
		}
		if latest == nil {
			return fmt.Errorf("no completed batch with rows for channel %s, marketplace %s", channelKey, marketplaceID)
		}
		batchID = latest.ID
		logger.Info().Str("batch_id", batchID).Msg("Rematching latest completed batch")
	}

	var result *rematch.Result
	var err error
	if rematchSku != "" {
		result, err = engine.RematchExternalSku(ctx, batchID, rematchSku)
	} else {
		result, err = engine.RematchBatch(ctx, batchID)
	}
	if err != nil {
		return fmt.Errorf("rematch failed: %w", err)
	}

	logger.Info().
		Int("rows_examined", result.RowsExamined).
		Int("rows_changed", result.RowsChanged).
		Int("matched", result.Counts.MatchedCount).
		Int("unmatched", result.Counts.UnmatchedCount).
		Msg("Rematch finished")
	return nil
}
