// Command sparkload ingests one wave of campaign CSV uploads into the
// warehouse: campaign metrics plus the naming-taxonomy key file.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"sparkload/internal/metrics"
	ddmetrics "sparkload/internal/metrics/datadog"
	"sparkload/internal/pipeline"
	"sparkload/internal/storage"

	// registered store backends
	_ "sparkload/internal/storage/postgres"
	_ "sparkload/internal/storage/sqlite"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "sparkload",
		Short:         "Campaign-data ingestion pipeline",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newIngestCmd())
	return root
}

type ingestFlags struct {
	campaign string
	naming   string

	client   string
	platform string
	year     int
	wave     int
	grain    string

	backend    string
	dsn        string
	archiveDir string

	datadog     bool
	datadogTags string

	verbose bool
}

func newIngestCmd() *cobra.Command {
	var f ingestFlags

	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Ingest one wave: campaign file plus naming-key file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runIngest(cmd.Context(), f)
		},
	}

	cmd.Flags().StringVar(&f.campaign, "campaign", "", "path to the campaign-data CSV (required)")
	cmd.Flags().StringVar(&f.naming, "naming", "", "path to the naming-key CSV (required)")
	cmd.Flags().StringVar(&f.client, "client", "", "client identifier (required)")
	cmd.Flags().StringVar(&f.platform, "platform", "", "platform identifier, e.g. facebook (required)")
	cmd.Flags().IntVar(&f.year, "year", 0, "project year (required)")
	cmd.Flags().IntVar(&f.wave, "wave", 0, "wave number (required)")
	cmd.Flags().StringVar(&f.grain, "grain", "", "campaign upsert key: ad_name (default) or ad_set_name")
	cmd.Flags().StringVar(&f.backend, "backend", "postgres", "storage backend: postgres or sqlite")
	cmd.Flags().StringVar(&f.dsn, "dsn", "", "backend DSN, environment variables are expanded (required)")
	cmd.Flags().StringVar(&f.archiveDir, "archive-dir", "", "copy inputs here under canonical archive names")
	cmd.Flags().BoolVar(&f.datadog, "datadog", false, "submit run metrics to Datadog")
	cmd.Flags().StringVar(&f.datadogTags, "datadog-tags", "", "extra Datadog tags, e.g. env:prod,team:media")
	cmd.Flags().BoolVar(&f.verbose, "verbose", false, "debug logging")

	for _, req := range []string{"campaign", "naming", "client", "platform", "year", "wave", "dsn"} {
		_ = cmd.MarkFlagRequired(req)
	}
	return cmd
}

func runIngest(ctx context.Context, f ingestFlags) error {
	logger, err := newLogger(f.verbose)
	if err != nil {
		return err
	}
	defer logger.Sync()

	store, err := storage.Open(ctx, storage.Config{
		Kind: f.backend,
		DSN:  os.ExpandEnv(f.dsn),
	})
	if err != nil {
		return fmt.Errorf("open %s store: %w", f.backend, err)
	}
	defer store.Close()

	var backend metrics.Backend = metrics.Nop{}
	if f.datadog {
		dd, err := ddmetrics.NewBackend(ctx, ddmetrics.Options{
			Tags: ddmetrics.ParseTagsCSV(f.datadogTags),
		})
		if err != nil {
			return fmt.Errorf("datadog metrics init: %w", err)
		}
		defer dd.Close()
		backend = dd
	}

	res, runErr := pipeline.NewRunner(store, logger, backend).Run(ctx, pipeline.Params{
		Tenant: storage.Tenant{
			Client:   f.client,
			Platform: f.platform,
			Year:     f.year,
			Wave:     f.wave,
			Grain:    f.grain,
		},
		CampaignPath: f.campaign,
		NamingPath:   f.naming,
		ArchiveDir:   f.archiveDir,
	})

	// the structured result goes to stdout either way
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(res); err != nil {
		return err
	}
	return runErr
}

func newLogger(verbose bool) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.OutputPaths = []string{"stderr"}
	if verbose {
		cfg = zap.NewDevelopmentConfig()
		cfg.OutputPaths = []string{"stderr"}
	}
	return cfg.Build()
}
