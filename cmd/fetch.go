package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/denysvitali/tweetvault/pkg/pipeline"
)

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Fetch bookmarks and save them as JSON",
	Long: `Fetch bookmarks from X with a session cookie, or normalize an existing export,
and write them as JSON that "classify" and "sync --input" accept.`,
	PreRunE: func(cmd *cobra.Command, args []string) error {
		return bindFlags(cmd, sourceFlagKeys)
	},
	RunE: runFetch,
}

func init() {
	rootCmd.AddCommand(fetchCmd)

	addSourceFlags(fetchCmd)
	fetchCmd.Flags().StringP("output", "o", "bookmarks.json", "File to write the bookmarks to")
}

func runFetch(cmd *cobra.Command, args []string) error {
	cfg, cleanup, err := loadConfig()
	if err != nil {
		return err
	}
	defer cleanup()

	out, _ := cmd.Flags().GetString("output")

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	bookmarks, err := pipeline.New(logger).Fetch(ctx, pipelineOptions(cmd, cfg), progressPrinter(cmd.ErrOrStderr()))
	if err != nil {
		return err
	}
	if len(bookmarks) == 0 {
		return pipeline.ErrNoBookmarks
	}

	if err := pipeline.SaveJSON(out, bookmarks); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Saved %d bookmarks to %s\n", len(bookmarks), out)
	return nil
}
