package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"feedwatch/internal/infra/db"
	"feedwatch/internal/infra/fetcher"
	"feedwatch/internal/infra/scraper"
	"feedwatch/internal/usecase/discovery"
	feedUC "feedwatch/internal/usecase/feed"
	"feedwatch/internal/usecase/retention"
)

func newDiscoverCommand(ctx *commandContext) *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "discover <id>",
		Short: "Probe the feed's site for alternative feed URLs and store them",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseFeedID(args[0])
			if err != nil {
				return err
			}
			return ctx.withStore(cmd, func(store *db.Store) error {
				f, err := feedUC.NewService(store.Feeds, nil, ctx.logger).Get(cmd.Context(), id)
				if err != nil {
					return err
				}

				fetchCfg := fetcher.LoadConfigFromEnv(ctx.logger, nil)
				svc := discovery.NewService(store.Feeds, fetcher.NewChain(fetchCfg), scraper.NewFeedParser(), ctx.logger)

				runCtx, cancel := context.WithTimeout(cmd.Context(), timeout)
				defer cancel()
				found, err := svc.Discover(runCtx, f)
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				if len(found) == 0 {
					fmt.Fprintf(out, "No alternatives found for feed %d\n", id)
					return nil
				}
				fmt.Fprintf(out, "Found %d alternative(s) for feed %d:\n  %s\n", len(found), id, strings.Join(found, "\n  "))
				return nil
			})
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", discovery.DefaultTimeout, "Overall discovery timeout")
	return cmd
}

func newCleanupCommand(ctx *commandContext) *cobra.Command {
	var maxItems int64
	var batchSize int

	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Delete the oldest items beyond the retention cap",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(cmd, func(store *db.Store) error {
				deleted, err := retention.NewService(store.Items, maxItems, batchSize, ctx.logger).Enforce(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d item(s)\n", deleted)
				return nil
			})
		},
	}
	cmd.Flags().Int64Var(&maxItems, "max-items", retention.DefaultMaxItems, "Items to keep")
	cmd.Flags().IntVar(&batchSize, "batch-size", retention.DefaultBatchSize, "Items deleted per statement")
	return cmd
}
