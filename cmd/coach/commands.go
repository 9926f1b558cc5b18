package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"CoachChat/internal/coach"

	"github.com/spf13/cobra"
)

func newOnboardCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "onboard",
		Short: "Open the onboarding chat",
		Long: `Open the onboarding chat. A session is created on first use and
restored on later runs. Input closes once onboarding is complete.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(ctx context.Context, app *coach.App) error {
				return app.RunOnboarding(ctx)
			})
		},
	}
}

func newWeekCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "week <n>",
		Short: "Open the chat for a course week",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			week, err := strconv.Atoi(args[0])
			if err != nil || week < 1 {
				return fmt.Errorf("invalid week %q", args[0])
			}
			return opts.withApp(cmd, func(ctx context.Context, app *coach.App) error {
				return app.RunWeekly(ctx, week)
			})
		},
	}
}

func newStateCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "state",
		Short: "Show the session state and gate status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(ctx context.Context, app *coach.App) error {
				return app.ShowState(ctx)
			})
		},
	}
}

func newCourseCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "course",
		Short: "Show the course with your plan topics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(ctx context.Context, app *coach.App) error {
				return app.ShowCourse(ctx)
			})
		},
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "complete <week>",
		Short: "Mark a course week as completed",
		Long: `Mark a course week as completed. The first locked unit of the
following week unlocks. Progress is kept in the local database.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			week, err := strconv.Atoi(args[0])
			if err != nil || week < 1 {
				return fmt.Errorf("invalid week %q", args[0])
			}
			return opts.withApp(cmd, func(ctx context.Context, app *coach.App) error {
				return app.CompleteWeek(ctx, week)
			})
		},
	})
	return cmd
}

func newResetCmd(opts *rootOptions) *cobra.Command {
	var startNew bool

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Forget the current session",
		Long: `Forget the current session. Stored transcripts are kept and can
still be listed with 'coach export --list'.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(ctx context.Context, app *coach.App) error {
				return app.Reset(ctx, startNew)
			})
		},
	}
	cmd.Flags().BoolVar(&startNew, "new", false, "Create a new session right away")
	return cmd
}

func newExportCmd(opts *rootOptions) *cobra.Command {
	var (
		surface string
		week    int
		format  string
		out     string
		list    bool
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export a stored transcript",
		Long: `Export the stored transcript of the current session (json, yaml, md).

Use --surface week with --week to export a weekly chat, or --list to see
every transcript kept locally.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(ctx context.Context, app *coach.App) error {
				if list {
					keys, err := app.HistoryKeys(ctx)
					if err != nil {
						return err
					}
					for _, key := range keys {
						fmt.Fprintln(cmd.OutOrStdout(), key)
					}
					return nil
				}

				var w io.Writer = cmd.OutOrStdout()
				if out != "" {
					f, err := os.Create(out)
					if err != nil {
						return fmt.Errorf("failed to create output file: %w", err)
					}
					w = f
					if err := app.Export(ctx, w, surface, week, format); err != nil {
						return errors.Join(err, f.Close())
					}
					return f.Close()
				}
				return app.Export(ctx, w, surface, week, format)
			})
		},
	}
	cmd.Flags().StringVar(&surface, "surface", "onboarding", "Transcript to export (onboarding, week)")
	cmd.Flags().IntVar(&week, "week", 0, "Course week when --surface is week")
	cmd.Flags().StringVarP(&format, "format", "f", "json", "Export format (json, yaml, md)")
	cmd.Flags().StringVarP(&out, "out", "o", "", "Write to a file instead of stdout")
	cmd.Flags().BoolVar(&list, "list", false, "List stored transcript keys")
	return cmd
}
