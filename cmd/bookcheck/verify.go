// Copyright Dasan Software Lab, 2026. All rights reserved.

package main

import (
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dasanlab/bookcheck/internal/batch"
	"github.com/dasanlab/bookcheck/internal/catalog"
	"github.com/dasanlab/bookcheck/internal/holdings"
	"github.com/dasanlab/bookcheck/internal/xlsx"
)

var verifyCmd = &cobra.Command{
	Use:   "verify <input.xlsx>",
	Short: "Verify holdings for every row of an input spreadsheet",
	Long: `Verify reads a spreadsheet of (school, title, author, publisher) rows,
resolves each book to an ISBN-13, searches holdings partitions for it, and
writes a result spreadsheet with the existence verdict per row. Partial
output is checkpointed to an intermediate file during the run.`,
	Args: cobra.ExactArgs(1),
	RunE: runVerify,
}

func init() {
	verifyCmd.Flags().String("output", "", "output spreadsheet path (default: <input>_결과.xlsx)")
	verifyCmd.Flags().String("region", "", "home region queried first (e.g. 대전)")
	verifyCmd.Flags().String("partition-file", "", "YAML file overriding the partition list")
	verifyCmd.Flags().Float64("threshold", 0, "similarity threshold for catalog matches")
	verifyCmd.Flags().Int("checkpoint-every", 0, "rows between partial-output writes")
	verifyCmd.Flags().Int("concurrency", 0, "partitions searched at once")

	rootCmd.AddCommand(verifyCmd)
}

func runVerify(cmd *cobra.Command, args []string) error {
	log, err := newLogger()
	if err != nil {
		return err
	}
	defer log.Sync()

	cfg := pipelineConfig()
	if cfg.Catalog.TTBKey == "" {
		return fmt.Errorf("no Aladin TTB key: set catalog.ttb_key, BOOKCHECK_TTB_KEY, or .secrets/aladin-ttb-key")
	}

	if v, _ := cmd.Flags().GetFloat64("threshold"); v > 0 {
		cfg.Catalog.Threshold = v
	}
	if v, _ := cmd.Flags().GetInt("checkpoint-every"); v > 0 {
		cfg.Batch.CheckpointEvery = v
	}
	if v, _ := cmd.Flags().GetInt("concurrency"); v > 0 {
		cfg.Holdings.Concurrency = v
	}
	if v, _ := cmd.Flags().GetString("region"); v != "" {
		cfg.Batch.Region = v
	}

	if path, _ := cmd.Flags().GetString("partition-file"); path != "" {
		pf, err := holdings.LoadPartitionFile(path)
		if err != nil {
			return err
		}
		cfg.Holdings.Partitions = pf.PartitionsFor(cfg.Batch.Region)
	}

	inputPath := args[0]
	outputPath, _ := cmd.Flags().GetString("output")
	if outputPath == "" {
		ext := ".xlsx"
		outputPath = strings.TrimSuffix(inputPath, ext) + "_결과" + ext
	}

	rows, err := xlsx.ReadInput(inputPath)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return fmt.Errorf("%s has no data rows", inputPath)
	}

	partitions := cfg.Holdings.Partitions
	if len(partitions) == 0 {
		partitions = holdings.PartitionsFor(cfg.Batch.Region)
	}

	httpClient := &http.Client{Timeout: cfg.Catalog.Timeout}
	resolver := catalog.NewClient(httpClient, cfg.Catalog, log)
	searcher := holdings.NewClient(&http.Client{Timeout: cfg.Holdings.Timeout}, cfg.Holdings, log)

	orch := batch.New(resolver, searcher, nil, cfg.Catalog.Threshold, partitions, cfg.Batch, log)
	orch.Progress = func(done, total int) {
		fmt.Fprintf(os.Stderr, "\rprocessed %d/%d", done, total)
		if done == total {
			fmt.Fprintln(os.Stderr)
		}
	}

	sink := xlsx.Writer{OutputPath: outputPath}
	records, runErr := orch.Run(cmd.Context(), rows, sink)

	if len(records) > 0 {
		if err := xlsx.WriteOutput(outputPath, records); err != nil {
			return err
		}
	}
	if runErr != nil {
		return runErr
	}

	held := 0
	for _, rec := range records {
		if rec.Exists {
			held++
		}
	}
	stats := orch.Cache().Stats()
	log.Info("verification finished",
		zap.String("output", outputPath),
		zap.Int("rows", len(records)),
		zap.Int("held", held),
		zap.Int("isbn_entries", stats.ISBNEntries),
		zap.Int("holdings_entries", stats.HoldingsEntries))
	fmt.Printf("verified %d rows, %d held, results in %s\n", len(records), held, outputPath)
	return nil
}
