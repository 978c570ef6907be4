// Copyright Dasan Software Lab, 2026. All rights reserved.

package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"

	"github.com/spf13/cobra"

	"github.com/dasanlab/bookcheck/internal/holdings"
)

var holdingsCmd = &cobra.Command{
	Use:   "holdings <isbn13> <school>",
	Short: "Check whether a school holds an ISBN",
	Long: `Holdings searches the Read365 service across regional partitions for an
ISBN-13 and reports whether any holding record belongs to the named school.
The home region's partition is searched first when --region is given.`,
	Args: cobra.ExactArgs(2),
	RunE: runHoldings,
}

func init() {
	holdingsCmd.Flags().String("region", "", "home region queried first (e.g. 대전)")
	holdingsCmd.Flags().Bool("json", false, "output the full decision as JSON")

	rootCmd.AddCommand(holdingsCmd)
}

func runHoldings(cmd *cobra.Command, args []string) error {
	log, err := newLogger()
	if err != nil {
		return err
	}
	defer log.Sync()

	cfg := pipelineConfig()
	isbn, school := args[0], args[1]

	region, _ := cmd.Flags().GetString("region")
	partitions := cfg.Holdings.Partitions
	if len(partitions) == 0 {
		partitions = holdings.PartitionsFor(region)
	}

	client := holdings.NewClient(&http.Client{Timeout: cfg.Holdings.Timeout}, cfg.Holdings, log)
	dec := client.Resolve(cmd.Context(), isbn, school, partitions)

	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(dec)
	}

	if dec.Exists {
		fmt.Printf("✅ %s holds %s (%d copies nationwide)\n", dec.MatchedSchool, isbn, dec.MatchCount)
		return nil
	}
	fmt.Printf("❌ %s does not hold %s (%s)\n", school, isbn, dec.Reason)
	return nil
}
