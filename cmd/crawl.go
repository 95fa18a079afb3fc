package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/rcw-statute-crawler/internal/crawler"
)

// newCrawlCmd creates the 'crawl' subcommand, which runs one resumable crawl.
func newCrawlCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "crawl",
		Short: "Crawls the code, resuming where the last run stopped",
		Long: `Recovers the last recorded title and chapter, fast-forwards to it and
stores every statute not yet in the store. SIGINT or SIGTERM stops the crawl
cleanly and records an interrupted checkpoint.`,
		RunE: withApp(runCrawlCommand),
	}
}

func runCrawlCommand(cmd *cobra.Command, appInstance App) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return crawl(ctx, appInstance)
}

func crawl(ctx context.Context, appInstance App) error {
	result, err := appInstance.Crawl(ctx)
	if err != nil {
		return fmt.Errorf("run crawler: %w", err)
	}
	if result.Status == crawler.RunFailed {
		return fmt.Errorf("crawl %s failed", result.RunID)
	}
	appInstance.Logger().Info("Crawl command finished.",
		zap.String("status", string(result.Status)),
		zap.Int("saved", result.Stats.StatutesSaved),
	)
	return nil
}
