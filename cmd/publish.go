package cmd

import (
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/vgassen/tuchtrecht-harvester/internal/publish"
	"github.com/vgassen/tuchtrecht-harvester/internal/shard"
)

// newPublishCmd creates the 'publish' subcommand, which uploads every
// local shard to the configured dataset repository. It is the manual
// counterpart of the upload that 'harvest' performs at run end.
func newPublishCmd() *cobra.Command {
	var outputDir string

	cmd := &cobra.Command{
		Use:   "publish",
		Short: "Upload all local shards to the dataset repository",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck // best-effort flush

			if cmd.Flags().Changed("output-dir") {
				cfg.Output.Dir = outputDir
			}

			client, err := publish.New(publish.Config{
				Endpoint:   cfg.Publish.Endpoint,
				Repo:       cfg.Publish.Repo,
				Token:      cfg.Publish.Token,
				Private:    cfg.Publish.Private,
				PathPrefix: cfg.Publish.PathPrefix,
				RunID:      uuid.NewString()[:8],
			}, logger)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			if err := client.EnsureRepo(ctx); err != nil {
				return err
			}

			paths, err := shard.List(cfg.Output.Dir)
			if err != nil {
				return err
			}
			if len(paths) == 0 {
				logger.Info("no shards to publish", zap.String("dir", cfg.Output.Dir))
				return nil
			}
			for _, path := range paths {
				if err := client.PublishShard(ctx, path); err != nil {
					return err
				}
			}
			logger.Info("publish complete", zap.Int("shards", len(paths)))
			return nil
		},
	}

	cmd.Flags().StringVar(&outputDir, "output-dir", "", "directory where JSONL shards are stored")

	return cmd
}
