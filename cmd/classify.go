package cmd

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/denysvitali/tweetvault/pkg/pipeline"
)

var classifyCmd = &cobra.Command{
	Use:   "classify",
	Short: "Classify a bookmarks JSON file with AI",
	Long: `Read bookmarks written by "fetch" (or any supported export) and write the
classification result as JSON for "generate".`,
	PreRunE: func(cmd *cobra.Command, args []string) error {
		return bindFlags(cmd, aiFlagKeys)
	},
	RunE: runClassify,
}

func init() {
	rootCmd.AddCommand(classifyCmd)

	addAIFlags(classifyCmd)
	classifyCmd.Flags().StringP("input", "i", "", "Bookmarks JSON file")
	classifyCmd.Flags().StringP("output", "o", "classified.json", "File to write the classification to")
}

func runClassify(cmd *cobra.Command, args []string) error {
	cfg, cleanup, err := loadConfig()
	if err != nil {
		return err
	}
	defer cleanup()

	input, _ := cmd.Flags().GetString("input")
	out, _ := cmd.Flags().GetString("output")
	if input == "" {
		return errors.New("an input file is required, use --input")
	}

	opts := pipelineOptions(cmd, cfg)
	opts.Fetch.JSONPath = input
	opts.Fetch.Cookie = ""

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	p := pipeline.New(logger)
	progress := progressPrinter(cmd.ErrOrStderr())

	bookmarks, err := p.Fetch(ctx, opts, progress)
	if err != nil {
		return err
	}
	if len(bookmarks) == 0 {
		return pipeline.ErrNoBookmarks
	}

	res, err := p.Classify(ctx, opts, bookmarks, progress)
	if err != nil {
		return err
	}

	if err := pipeline.SaveJSON(out, res); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Classified %d bookmarks into %d categories, saved to %s\n", len(res.Items), len(res.Categories), out)
	return nil
}
