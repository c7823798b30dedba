package main

import (
	"fmt"
	"log/slog"
	"strconv"

	"github.com/spf13/cobra"

	"feedwatch/internal/infra/db"
	"feedwatch/internal/observability/logging"
	feedUC "feedwatch/internal/usecase/feed"
)

type commandContext struct {
	logger *slog.Logger
}

func newCommandContext() *commandContext {
	return &commandContext{logger: logging.NewTextLogger()}
}

// withStore opens the store for one command and closes it afterwards.
func (c *commandContext) withStore(cmd *cobra.Command, fn func(*db.Store) error) error {
	store, err := db.OpenStore(cmd.Context(), c.logger, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			c.logger.Warn("failed to close store", slog.Any("error", err))
		}
	}()
	return fn(store)
}

// withFeeds opens the store and wraps it in the feed service.
func (c *commandContext) withFeeds(cmd *cobra.Command, fn func(*feedUC.Service) error) error {
	return c.withStore(cmd, func(store *db.Store) error {
		return fn(feedUC.NewService(store.Feeds, db.DecodeFeeds, c.logger))
	})
}

func newRootCommand() *cobra.Command {
	ctx := newCommandContext()

	rootCmd := &cobra.Command{
		Use:           "feedctl",
		Short:         "Manage feedwatch feeds",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.AddCommand(newListCommand(ctx))
	rootCmd.AddCommand(newAddCommand(ctx))
	rootCmd.AddCommand(newImportCommand(ctx))
	for _, cmd := range newStateCommands(ctx) {
		rootCmd.AddCommand(cmd)
	}
	rootCmd.AddCommand(newDeleteCommand(ctx))
	rootCmd.AddCommand(newDiscoverCommand(ctx))
	rootCmd.AddCommand(newCleanupCommand(ctx))

	return rootCmd
}

func parseFeedID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid feed id %q", raw)
	}
	return id, nil
}
