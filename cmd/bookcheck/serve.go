// Copyright Dasan Software Lab, 2026. All rights reserved.

package main

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dasanlab/bookcheck/internal/catalog"
	"github.com/dasanlab/bookcheck/internal/holdings"
	"github.com/dasanlab/bookcheck/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the verification pipeline over HTTP",
	Long: `Serve starts the job API: spreadsheet upload, background verification
jobs with progress and result download, and direct single-book search
endpoints.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().String("addr", "", "listen address (default :8300)")

	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	log, err := newLogger()
	if err != nil {
		return err
	}
	defer log.Sync()

	cfg := pipelineConfig()
	if cfg.Catalog.TTBKey == "" {
		return fmt.Errorf("no Aladin TTB key: set catalog.ttb_key, BOOKCHECK_TTB_KEY, or .secrets/aladin-ttb-key")
	}
	if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
		cfg.Server.Addr = addr
	}

	jobs, err := server.NewJobStore(cfg.Server.JobsDSN)
	if err != nil {
		return err
	}
	defer jobs.Close()

	resolver := catalog.NewClient(&http.Client{Timeout: cfg.Catalog.Timeout}, cfg.Catalog, log)
	searcher := holdings.NewClient(&http.Client{Timeout: cfg.Holdings.Timeout}, cfg.Holdings, log)
	srv := server.New(cfg, resolver, searcher, jobs, log)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Listen()
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case <-sig:
		log.Info("shutting down server")
		return srv.Shutdown()
	}
}
