package main

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/xuri/excelize/v2"

	"github.com/channelsync/inventory-service/internal/database"
	"github.com/channelsync/inventory-service/internal/mappings"
	"github.com/channelsync/inventory-service/internal/types"
)

var (
	importChannel     string
	importMarketplace string
)

// importCmd represents the import command
var importCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Bulk import SKU mappings from a CSV or XLSX file",
	Long: `Import SKU mappings in bulk from a spreadsheet. The first row must be a
header; recognized columns are external_sku, variant_id, internal_sku, asin,
fnsku, notes and active. Rows with an internal_sku but no variant_id are
resolved through the catalog service.

Each row gets its own outcome; invalid rows never block the valid ones.`,
	Example: `  inventory-service import mappings.csv --channel amazon-sc --marketplace ATVPDKIKX0DER
  inventory-service import corrections.xlsx`,
	Args: cobra.ExactArgs(1),
	RunE: runImport,
}

func init() {
	rootCmd.AddCommand(importCmd)

	importCmd.Flags().StringVar(&importChannel, "channel", "", "Sales channel key (defaults to configured channel)")
	importCmd.Flags().StringVar(&importMarketplace, "marketplace", "", "Marketplace id (defaults to configured marketplace)")
}

func runImport(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	path := args[0]

	channelKey := importChannel
	if channelKey == "" {
		channelKey = cfg.Channel.DefaultChannel
	}
	marketplaceID := importMarketplace
	if marketplaceID == "" {
		marketplaceID = cfg.Channel.DefaultMarket
	}

	var records [][]string
	var err error
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		records, err = readCsvFile(path)
	case ".xlsx":
		records, err = readXlsxFile(path)
	default:
		return fmt.Errorf("unsupported file type %q, expected .csv or .xlsx", filepath.Ext(path))
	}
	if err != nil {
		return err
	}

	rows, err := recordsToImportRows(records)
	if err != nil {
		return err
	}
	logger.Info().Int("rows", len(rows)).Str("file", path).Msg("Importing mappings")

	pool := database.Pool()
	importer := mappings.NewImporter(mappings.NewStore(pool), buildResolver())

	result, err := importer.Import(ctx, cfg.Catalog.CompanyID, channelKey, marketplaceID, rows)
	if err != nil {
		return fmt.Errorf("import failed: %w", err)
	}

	printImportResult(result)
	return nil
}

func readCsvFile(path string) ([][]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return records, nil
}

func readXlsxFile(path string) ([][]string, error) {
	file, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer file.Close()

	sheets := file.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("%s contains no sheets", path)
	}

	records, err := file.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %q: %w", sheets[0], err)
	}
	return records, nil
}

// recordsToImportRows maps header-driven spreadsheet records to import rows
func recordsToImportRows(records [][]string) ([]mappings.ImportRow, error) {
	if len(records) < 2 {
		return nil, fmt.Errorf("file must have a header row and at least one data row")
	}

	colIndex := make(map[string]int)
	for i, name := range records[0] {
		colIndex[strings.ToLower(strings.TrimSpace(name))] = i
	}
	if _, ok := colIndex["external_sku"]; !ok {
		return nil, fmt.Errorf("header is missing the external_sku column")
	}

	cell := func(record []string, column string) string {
		idx, ok := colIndex[column]
		if !ok || idx >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[idx])
	}
	cellPtr := func(record []string, column string) *string {
		if v := cell(record, column); v != "" {
			return types.StringPtr(v)
		}
		return nil
	}

	rows := make([]mappings.ImportRow, 0, len(records)-1)
	for _, record := range records[1:] {
		rows = append(rows, mappings.ImportRow{
			ExternalSku: cell(record, "external_sku"),
			VariantID:   cell(record, "variant_id"),
			InternalSku: cell(record, "internal_sku"),
			Asin:        cellPtr(record, "asin"),
			Fnsku:       cellPtr(record, "fnsku"),
			Notes:       cellPtr(record, "notes"),
			Active:      cellPtr(record, "active"),
		})
	}
	return rows, nil
}

func printImportResult(result *mappings.ImportResult) {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ROW\tEXTERNAL SKU\tSTATUS\tREASON")
	for _, outcome := range result.Outcomes {
		if outcome.Status == types.ImportUpserted {
			continue
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", outcome.RowNumber, outcome.ExternalSku, outcome.Status, outcome.Reason)
	}
	w.Flush()

	fmt.Printf("\n%d total: %d upserted, %d skipped, %d errors\n",
		result.Total, result.Upserted, result.Skipped, result.Errors)
}
