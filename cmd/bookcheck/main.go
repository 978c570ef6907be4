// Copyright Dasan Software Lab, 2026. All rights reserved.

// Package main is the entry point for the bookcheck CLI. It verifies
// whether school libraries hold specific books by resolving ISBNs against
// the Aladin catalog and searching Read365 holdings partitions.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/dasanlab/bookcheck/internal/logging"
	"github.com/dasanlab/bookcheck/internal/secrets"
	"github.com/dasanlab/bookcheck/pkg/types"
)

// version is set at build time via ldflags.
var version = "dev"

// loadedSecrets holds API keys loaded from .secrets/ at startup.
var loadedSecrets map[string]string

// rootCmd is the base command for the bookcheck CLI.
var rootCmd = &cobra.Command{
	Use:   "bookcheck",
	Short: "Verify school library book holdings",
	Long: `bookcheck answers one question per input row: does this school's library
hold this book? It resolves each title/author pair to an ISBN-13 through the
Aladin catalog, then searches the Read365 holdings service across regional
partitions for that ISBN at the named school.

Each stage is a subcommand: verify processes a whole spreadsheet, resolve and
holdings answer single lookups, and serve exposes the pipeline over HTTP.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// .env values become ordinary environment variables picked up by
		// viper's AutomaticEnv.
		_ = godotenv.Load()

		s, err := secrets.Load(".secrets/")
		if err != nil {
			return err
		}
		loadedSecrets = s
		if len(s) > 0 {
			keys := make([]string, 0, len(s))
			for k := range s {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			fmt.Fprintf(os.Stderr, "Loaded secrets: %v\n", keys)
		}
		return nil
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().String("config", "", "config file (default: ./bookcheck.yaml or ~/.config/bookcheck/config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "console", "log format (console, json)")
}

func initConfig() {
	cfgFile, _ := rootCmd.PersistentFlags().GetString("config")
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("bookcheck")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(filepath.Join(home, ".config", "bookcheck"))
		}
	}

	viper.SetDefault("catalog.timeout", 12*time.Second)
	viper.SetDefault("catalog.max_results", 20)
	viper.SetDefault("catalog.threshold", 0.6)
	viper.SetDefault("catalog.max_attempts", 3)
	viper.SetDefault("holdings.timeout", 30*time.Second)
	viper.SetDefault("holdings.page_size", 100)
	viper.SetDefault("holdings.page_delay", 100*time.Millisecond)
	viper.SetDefault("holdings.concurrency", 1)
	viper.SetDefault("holdings.max_attempts", 3)
	viper.SetDefault("batch.checkpoint_every", 10)
	viper.SetDefault("server.addr", ":8300")
	viper.SetDefault("server.upload_dir", "uploads")
	viper.SetDefault("server.output_dir", "outputs")

	viper.SetEnvPrefix("BOOKCHECK")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// newLogger builds the process logger from the persistent flags.
func newLogger() (*zap.Logger, error) {
	level, _ := rootCmd.PersistentFlags().GetString("log-level")
	format, _ := rootCmd.PersistentFlags().GetString("log-format")
	return logging.New(level, format)
}

// pipelineConfig assembles the stage configurations from viper and the
// loaded secrets. The TTB key lookup order is config file, environment,
// then the .secrets/ directory.
func pipelineConfig() types.PipelineConfig {
	var cfg types.PipelineConfig

	cfg.Catalog.Timeout = viper.GetDuration("catalog.timeout")
	cfg.Catalog.UserAgent = "bookcheck/" + version
	cfg.Catalog.TTBKey = viper.GetString("catalog.ttb_key")
	cfg.Catalog.MaxResults = viper.GetInt("catalog.max_results")
	cfg.Catalog.Threshold = viper.GetFloat64("catalog.threshold")
	cfg.Catalog.MaxAttempts = viper.GetInt("catalog.max_attempts")
	if cfg.Catalog.TTBKey == "" {
		cfg.Catalog.TTBKey = viper.GetString("ttb_key")
	}
	if cfg.Catalog.TTBKey == "" {
		cfg.Catalog.TTBKey = loadedSecrets[secrets.AladinTTBKey]
	}

	cfg.Holdings.Timeout = viper.GetDuration("holdings.timeout")
	cfg.Holdings.UserAgent = cfg.Catalog.UserAgent
	cfg.Holdings.PageSize = viper.GetInt("holdings.page_size")
	cfg.Holdings.PageDelay = viper.GetDuration("holdings.page_delay")
	cfg.Holdings.Partitions = viper.GetStringSlice("holdings.partitions")
	cfg.Holdings.Concurrency = viper.GetInt("holdings.concurrency")
	cfg.Holdings.MaxAttempts = viper.GetInt("holdings.max_attempts")

	cfg.Batch.CheckpointEvery = viper.GetInt("batch.checkpoint_every")
	cfg.Batch.Region = viper.GetString("batch.region")

	cfg.Server.Addr = viper.GetString("server.addr")
	cfg.Server.UploadDir = viper.GetString("server.upload_dir")
	cfg.Server.OutputDir = viper.GetString("server.output_dir")
	cfg.Server.JobsDSN = viper.GetString("server.jobs_dsn")

	return cfg
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
