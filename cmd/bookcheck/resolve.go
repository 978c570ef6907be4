// Copyright Dasan Software Lab, 2026. All rights reserved.

package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"

	"github.com/spf13/cobra"

	"github.com/dasanlab/bookcheck/internal/catalog"
)

var resolveCmd = &cobra.Command{
	Use:   "resolve <title>",
	Short: "Resolve a title/author pair to an ISBN-13",
	Long: `Resolve searches the Aladin catalog for a title, scores every candidate
against the query by weighted title and author similarity, and prints the
ISBN-13 of the best match above the threshold.`,
	Args: cobra.ExactArgs(1),
	RunE: runResolve,
}

func init() {
	resolveCmd.Flags().String("author", "", "author name used in candidate scoring")
	resolveCmd.Flags().Float64("threshold", 0, "similarity threshold (default 0.6)")
	resolveCmd.Flags().Bool("json", false, "output the full resolution as JSON")

	rootCmd.AddCommand(resolveCmd)
}

func runResolve(cmd *cobra.Command, args []string) error {
	log, err := newLogger()
	if err != nil {
		return err
	}
	defer log.Sync()

	cfg := pipelineConfig()
	if cfg.Catalog.TTBKey == "" {
		return fmt.Errorf("no Aladin TTB key: set catalog.ttb_key, BOOKCHECK_TTB_KEY, or .secrets/aladin-ttb-key")
	}

	threshold := cfg.Catalog.Threshold
	if v, _ := cmd.Flags().GetFloat64("threshold"); v > 0 {
		threshold = v
	}
	author, _ := cmd.Flags().GetString("author")

	client := catalog.NewClient(&http.Client{Timeout: cfg.Catalog.Timeout}, cfg.Catalog, log)
	res, err := client.ResolveISBN(cmd.Context(), args[0], author, threshold)
	if err != nil {
		return err
	}

	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}

	if !res.OK() {
		return fmt.Errorf("no match: %s", res.Reason)
	}
	fmt.Println(res.ISBN13)
	return nil
}
