package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"novel-memory-api/internal/infrastructure/persistence/postgres"
	"novel-memory-api/pkg/logger"
)

type migrateCommander struct {
	flags     *globalFlags
	withStory bool
}

func newMigrateCmd(flags *globalFlags) *cobra.Command {
	cmder := &migrateCommander{flags: flags}

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the memory tables in PostgreSQL",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmder.run(cmd.Context())
		},
	}
	cmd.Flags().BoolVar(&cmder.withStory, "with-story", false, "Also create chapters/characters/world_settings for standalone deployments")
	return cmd
}

func (c *migrateCommander) run(ctx context.Context) error {
	cfg, err := c.flags.loadConfig()
	if err != nil {
		return err
	}
	if cfg.Storage.Driver == "memory" {
		return fmt.Errorf("storage driver is memory, nothing to migrate")
	}

	client, err := postgres.NewClient(&cfg.Database.Postgres)
	if err != nil {
		return err
	}
	defer func() { _ = client.Close() }()

	withStory := c.withStory || cfg.Database.Postgres.MigrateStory
	if err := client.AutoMigrate(ctx, withStory); err != nil {
		return err
	}
	logger.Info(ctx, "migration finished", "with_story", withStory)
	return nil
}
