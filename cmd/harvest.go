package cmd

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/vgassen/tuchtrecht-harvester/internal/config"
	"github.com/vgassen/tuchtrecht-harvester/internal/fetcher"
	"github.com/vgassen/tuchtrecht-harvester/internal/harvest"
	"github.com/vgassen/tuchtrecht-harvester/internal/normalize"
	"github.com/vgassen/tuchtrecht-harvester/internal/publish"
	"github.com/vgassen/tuchtrecht-harvester/internal/scrub"
	"github.com/vgassen/tuchtrecht-harvester/internal/shard"
	"github.com/vgassen/tuchtrecht-harvester/internal/sru"
	"github.com/vgassen/tuchtrecht-harvester/internal/visited"
	"github.com/vgassen/tuchtrecht-harvester/internal/watermark"
)

// newHarvestCmd creates and configures the 'harvest' subcommand.
func newHarvestCmd() *cobra.Command {
	var (
		reset      bool
		limit      int
		maxRecords int
		outputDir  string
		noScrub    bool
	)

	cmd := &cobra.Command{
		Use:   "harvest",
		Short: "Run one incremental harvest pass",
		Long: `Enumerates rulings newer than the persisted watermark, fetches and
normalizes each new document, and appends the results to bounded JSONL
shards. Finalized shards are published when a dataset repository is
configured.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck // best-effort flush

			if cmd.Flags().Changed("max-records") {
				cfg.Harvest.MaxRecords = maxRecords
			}
			if cmd.Flags().Changed("limit") {
				cfg.Harvest.MaxRecords = limit
			}
			if cmd.Flags().Changed("output-dir") {
				cfg.Output.Dir = outputDir
			}
			if noScrub {
				cfg.Harvest.Scrub = false
			}

			return runHarvest(cmd.Context(), cfg, reset, logger)
		},
	}

	cmd.Flags().BoolVar(&reset, "reset", false, "ignore the watermark and crawl the full backlog")
	cmd.Flags().IntVar(&limit, "limit", 0, "cap on new records processed this run (0 = config default)")
	cmd.Flags().IntVar(&maxRecords, "max-records", 0, "alias for --limit")
	cmd.Flags().StringVar(&outputDir, "output-dir", "", "directory where JSONL shards are stored")
	cmd.Flags().BoolVar(&noScrub, "no-scrub", false, "disable name anonymization")

	return cmd
}

func runHarvest(ctx context.Context, cfg config.Config, reset bool, logger *zap.Logger) error {
	runID := uuid.NewString()[:8]
	logger = logger.With(zap.String("run_id", runID))

	if cfg.Metrics.ListenAddr != "" {
		srv, err := harvest.StartMetricsServer(cfg.Metrics.ListenAddr, logger)
		if err != nil {
			return err
		}
		defer srv.Close() //nolint:errcheck // process exits right after
	}

	// A configured dataset repo without a token is an unrecoverable
	// startup failure; detect it before any network work begins.
	var publisher harvest.Publisher
	if cfg.Publish.Repo != "" {
		client, err := publish.New(publish.Config{
			Endpoint:   cfg.Publish.Endpoint,
			Repo:       cfg.Publish.Repo,
			Token:      cfg.Publish.Token,
			Private:    cfg.Publish.Private,
			PathPrefix: cfg.Publish.PathPrefix,
			RunID:      runID,
		}, logger)
		if err != nil {
			return err
		}
		publisher = client
	}

	tracker := watermark.New(cfg.Watermark.Path)
	if reset {
		if err := tracker.Clear(); err != nil {
			return err
		}
	}

	visitedLog, err := visited.Open(cfg.Visited.Path)
	if err != nil {
		return err
	}
	logger.Info("visited log loaded",
		zap.String("path", cfg.Visited.Path),
		zap.Int("known_ids", visitedLog.Len()))

	writer, err := shard.NewWriter(cfg.Output.Dir, cfg.Output.RecordsPerShard, logger)
	if err != nil {
		return err
	}

	throttle := harvest.NewRateThrottle(cfg.Throttle.RequestsPerSecond, cfg.Throttle.Burst)
	enumerator := sru.New(sru.Config{
		BaseURL:     cfg.Source.BaseURL,
		FrontendURL: cfg.Source.FrontendURL,
		Query:       cfg.Source.Query,
		PageSize:    cfg.Source.PageSize,
		UserAgent:   cfg.Source.UserAgent,
		Timeout:     cfg.HTTPTimeout(),
	}, throttle, logger)

	var scrubber harvest.Scrubber
	if cfg.Harvest.Scrub {
		scrubber = scrub.New()
	}

	driver := harvest.NewDriver(
		enumerator,
		fetcher.New(fetcher.Config{
			UserAgent: cfg.Source.UserAgent,
			Timeout:   cfg.HTTPTimeout(),
		}),
		normalize.New(cfg.Harvest.MinLength),
		scrubber,
		visitedLog,
		writer,
		tracker,
		harvest.NewRetryPolicy(cfg.HTTP.MaxRetries, cfg.BackoffInitial(), cfg.BackoffMax()),
		throttle,
		harvest.SystemClock{},
		harvest.DriverConfig{
			MaxRecords:       cfg.Harvest.MaxRecords,
			VisitedBatchSize: cfg.Visited.BatchSize,
			Reset:            reset,
			RunID:            runID,
		},
		logger,
	)

	stats, err := driver.Run(ctx)
	if err != nil {
		return fmt.Errorf("harvest run: %w", err)
	}

	if publisher == nil || stats.Processed == 0 {
		return nil
	}
	if client, ok := publisher.(*publish.Client); ok {
		if err := client.EnsureRepo(ctx); err != nil {
			return err
		}
	}
	for _, path := range writer.Touched() {
		if err := publisher.PublishShard(ctx, path); err != nil {
			return fmt.Errorf("publish shard %s: %w", path, err)
		}
	}
	return nil
}
