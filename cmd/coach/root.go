package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"CoachChat/internal/coach"
	"CoachChat/internal/config"

	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "unknown"
)

type rootOptions struct {
	configPath string
	baseURL    string
	token      string
	tokenFile  string
	dataDir    string
	ephemeral  bool
	verbose    bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "coach",
		Short: "Chat with your coach from the terminal",
		Long: `A terminal client for the coaching backend.

Start with the onboarding chat. Once the backend has produced your plan and
moved the session to week 1, the weekly chats and the course overview unlock.

Quick Start:
  coach onboard                 # Introduce yourself and build a plan
  coach state                   # Show the raw session state
  coach course                  # Show the 12-week course
  coach week 1                  # Chat about week 1
  coach export --format md      # Export the onboarding transcript`,
		Version:       fmt.Sprintf("%s (commit: %s)", version, commit),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", "", "Path to config.yaml (default <data-dir>/config.yaml)")
	flags.StringVar(&opts.baseURL, "base-url", "", "Coaching backend base URL")
	flags.StringVar(&opts.token, "token", "", "Bearer token for the backend")
	flags.StringVar(&opts.tokenFile, "token-file", "", "File holding the bearer token")
	flags.StringVar(&opts.dataDir, "data-dir", "", "Directory for the local database and logs")
	flags.BoolVar(&opts.ephemeral, "ephemeral", false, "Keep all local state in memory")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "Enable debug logging")
	cmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	cmd.AddCommand(
		newOnboardCmd(opts),
		newWeekCmd(opts),
		newStateCmd(opts),
		newCourseCmd(opts),
		newResetCmd(opts),
		newExportCmd(opts),
		newDevServerCmd(),
	)
	return cmd
}

// loadConfig reads the config file and environment, applies flags and validates the result
func (o *rootOptions) loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Read(o.configPath, o.dataDir)
	if err != nil {
		return nil, err
	}

	changed := cmd.Flags().Changed
	if changed("base-url") {
		cfg.BaseURL = o.baseURL
	}
	if changed("token") {
		cfg.Token = o.token
	}
	if changed("token-file") {
		cfg.Token = ""
		cfg.TokenFile = o.tokenFile
	}
	if o.verbose {
		cfg.Debug = true
	}
	cfg.Ephemeral = o.ephemeral

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// withApp builds the App for one command run and closes it afterwards
func (o *rootOptions) withApp(cmd *cobra.Command, fn func(ctx context.Context, app *coach.App) error) error {
	cfg, err := o.loadConfig(cmd)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := coach.New(ctx, cfg, coach.Options{
		In:  cmd.InOrStdin(),
		Out: cmd.OutOrStdout(),
	})
	if err != nil {
		return err
	}
	defer app.Close()

	return fn(ctx, app)
}

// Execute runs the root command and exits non-zero on failure
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
