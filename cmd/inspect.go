package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

// newResumePointCmd creates the 'resume-point' subcommand.
func newResumePointCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resume-point",
		Short: "Prints the title and chapter the next crawl would start from",
		RunE: withApp(func(cmd *cobra.Command, appInstance App) error {
			return writeJSON(cmd, appInstance.ResumePoint(cmd.Context()))
		}),
	}
}

// newStatsCmd creates the 'stats' subcommand.
func newStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Prints the stored statute count and the latest checkpoint",
		RunE: withApp(func(cmd *cobra.Command, appInstance App) error {
			summary, err := appInstance.Summary(cmd.Context())
			if err != nil {
				return fmt.Errorf("read summary: %w", err)
			}
			return writeJSON(cmd, summary)
		}),
	}
}

func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
