package main

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"feedwatch/internal/domain/entity"
	feedUC "feedwatch/internal/usecase/feed"
)

func newListCommand(ctx *commandContext) *cobra.Command {
	var statusFilter string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List feeds with their status and failure counters",
		RunE: func(cmd *cobra.Command, args []string) error {
			if statusFilter != "" && !entity.FeedStatus(statusFilter).Valid() {
				return fmt.Errorf("unknown status %q", statusFilter)
			}
			return ctx.withFeeds(cmd, func(svc *feedUC.Service) error {
				feeds, err := svc.List(cmd.Context())
				if err != nil {
					return err
				}
				rows := buildFeedRows(feeds, entity.FeedStatus(statusFilter))
				if len(rows) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No feeds")
					return nil
				}
				fmt.Fprint(cmd.OutOrStdout(), renderTable(
					[]string{"ID", "Name", "Status", "Active", "Failures", "Last Success", "URL"},
					rows,
					[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignRight, alignLeft, alignLeft},
				))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&statusFilter, "status", "", "Only show feeds in this status")
	return cmd
}

func buildFeedRows(feeds []*entity.Feed, status entity.FeedStatus) [][]string {
	sort.Slice(feeds, func(i, j int) bool { return feeds[i].ID < feeds[j].ID })

	rows := make([][]string, 0, len(feeds))
	for _, f := range feeds {
		if status != "" && f.Status != status {
			continue
		}
		active := "yes"
		if !f.Active {
			active = "no"
		}
		rows = append(rows, []string{
			strconv.FormatInt(f.ID, 10),
			f.Name,
			string(f.Status),
			active,
			fmt.Sprintf("%d/%d", f.ConsecutiveFailures, f.TotalFailures),
			formatTime(f.LastSuccessAt),
			f.URL,
		})
	}
	return rows
}

func formatTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04")
}

func newAddCommand(ctx *commandContext) *cobra.Command {
	var in feedUC.CreateInput

	cmd := &cobra.Command{
		Use:   "add <name> <url>",
		Short: "Register a feed",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			in.Name, in.URL = args[0], args[1]
			return ctx.withFeeds(cmd, func(svc *feedUC.Service) error {
				f, err := svc.Create(cmd.Context(), in)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Registered feed %d (%s)\n", f.ID, f.URL)
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&in.IntervalMinutes, "interval", entity.DefaultIntervalMinutes, "Poll interval in minutes")
	cmd.Flags().IntVar(&in.TimeoutSeconds, "timeout", 0, "Per-attempt timeout in seconds (0 uses the worker default)")
	cmd.Flags().BoolVar(&in.RequiresHeavy, "heavy", false, "Always use the heavy fetch path")
	return cmd
}

func newImportCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file.yaml>",
		Short: "Register every feed listed in a YAML file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			file, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("open %s: %w", args[0], err)
			}
			defer file.Close()

			return ctx.withFeeds(cmd, func(svc *feedUC.Service) error {
				res, err := svc.Import(cmd.Context(), file)
				if res != nil {
					fmt.Fprintf(cmd.OutOrStdout(), "Imported %d feed(s), skipped %d already registered\n",
						len(res.Created), len(res.Skipped))
				}
				return err
			})
		},
	}
}

// newStateCommands builds pause, resume and deactivate, which share a shape.
func newStateCommands(ctx *commandContext) []*cobra.Command {
	specs := []struct {
		use   string
		short string
		verb  string
		apply func(c context.Context, svc *feedUC.Service, id int64) error
	}{
		{"pause <id>", "Stop polling a feed until it is resumed", "Paused",
			func(c context.Context, svc *feedUC.Service, id int64) error { return svc.Pause(c, id) }},
		{"resume <id>", "Resume a paused, blocked or unreachable feed", "Resumed",
			func(c context.Context, svc *feedUC.Service, id int64) error { return svc.Resume(c, id) }},
		{"deactivate <id>", "Deactivate a feed and drop its schedule", "Deactivated",
			func(c context.Context, svc *feedUC.Service, id int64) error { return svc.Deactivate(c, id) }},
	}

	cmds := make([]*cobra.Command, 0, len(specs))
	for _, spec := range specs {
		cmds = append(cmds, &cobra.Command{
			Use:   spec.use,
			Short: spec.short,
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				id, err := parseFeedID(args[0])
				if err != nil {
					return err
				}
				return ctx.withFeeds(cmd, func(svc *feedUC.Service) error {
					if err := spec.apply(cmd.Context(), svc, id); err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "%s feed %d\n", spec.verb, id)
					return nil
				})
			},
		})
	}
	return cmds
}

func newDeleteCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a feed and its items",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseFeedID(args[0])
			if err != nil {
				return err
			}
			return ctx.withFeeds(cmd, func(svc *feedUC.Service) error {
				if err := svc.Delete(cmd.Context(), id); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted feed %d\n", id)
				return nil
			})
		},
	}
}
