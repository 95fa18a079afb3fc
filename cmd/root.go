package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/rcw-statute-crawler/internal/config"
	"github.com/JakeFAU/rcw-statute-crawler/internal/crawler"
	"github.com/JakeFAU/rcw-statute-crawler/internal/logging"
	"github.com/JakeFAU/rcw-statute-crawler/internal/server"
)

// appKeyType is the key for storing the App in the context.
type appKeyType string

const appKey appKeyType = "app"

// App defines the application interface that commands will use.
// Tests inject a fake through newApp.
type App interface {
	Crawl(ctx context.Context) (server.RunResult, error)
	Summary(ctx context.Context) (server.Summary, error)
	ResumePoint(ctx context.Context) crawler.ResumptionTarget
	Logger() *zap.Logger
	Close(ctx context.Context)
}

// newApp is the application factory. It's a variable so tests can replace it.
var newApp = func(ctx context.Context, cfgPath string) (App, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}
	return server.Build(ctx, cfg)
}

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	var cfgFile string
	cmd := &cobra.Command{
		Use:   "statute-crawler",
		Short: "A resumable crawler for the Revised Code of Washington.",
		Long: `statute-crawler walks the RCW title, chapter and section listings and stores
the plain text of every statute. Interrupted crawls resume at the last chapter
they entered, and statutes already stored are never fetched twice.`,
		SilenceUsage: true,

		// Builds the application once flags are parsed and hands it to the subcommand.
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := newApp(cmd.Context(), cfgFile)
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, appInstance))
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (env STATUTE_* overrides apply either way)")

	cmd.AddCommand(newCrawlCmd(), newResumePointCmd(), newStatsCmd())
	return cmd
}

func resolveApp(ctx context.Context) (App, error) {
	appInstance, ok := ctx.Value(appKey).(App)
	if !ok || appInstance == nil {
		return nil, errors.New("application services not initialized")
	}
	return appInstance, nil
}

// withApp resolves the App for run and closes it afterwards, even on error.
func withApp(run func(cmd *cobra.Command, app App) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		appInstance, err := resolveApp(cmd.Context())
		if err != nil {
			return err
		}
		defer appInstance.Close(context.WithoutCancel(cmd.Context()))
		return run(cmd, appInstance)
	}
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		logger, lerr := logging.New(false)
		if lerr != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		logger.Fatal("Command execution failed", zap.Error(err))
	}
}
