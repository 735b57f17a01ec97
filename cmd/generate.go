package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/denysvitali/tweetvault/internal/models"
	"github.com/denysvitali/tweetvault/pkg/pipeline"
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Write an Obsidian vault from a classification JSON file",
	PreRunE: func(cmd *cobra.Command, args []string) error {
		return bindFlags(cmd, vaultFlagKeys)
	},
	RunE: runGenerate,
}

func init() {
	rootCmd.AddCommand(generateCmd)

	addVaultFlags(generateCmd)
	generateCmd.Flags().StringP("input", "i", "", "Classification JSON file written by classify")
	generateCmd.Flags().Bool("no-index", false, "Skip the _index.md notes")
	generateCmd.Flags().Bool("no-media", false, "Leave media links out of the notes")
}

func runGenerate(cmd *cobra.Command, args []string) error {
	cfg, cleanup, err := loadConfig()
	if err != nil {
		return err
	}
	defer cleanup()

	input, _ := cmd.Flags().GetString("input")
	if input == "" {
		return errors.New("an input file is required, use --input")
	}

	data, err := os.ReadFile(input)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", input, err)
	}
	var classified models.ClassificationResult
	if err := json.Unmarshal(data, &classified); err != nil {
		return fmt.Errorf("failed to parse %s: %w", input, err)
	}

	opts := pipelineOptions(cmd, cfg)
	if noIndex, _ := cmd.Flags().GetBool("no-index"); noIndex {
		opts.Output.CreateIndex = false
	}
	if noMedia, _ := cmd.Flags().GetBool("no-media"); noMedia {
		opts.Output.IncludeMedia = false
	}

	vault, err := pipeline.New(logger).Generate(cmd.Context(), opts, classified.Items, progressPrinter(cmd.ErrOrStderr()))
	if err != nil {
		return err
	}

	printSummary(cmd.OutOrStdout(), vault, vault.CategoriesCreated)
	return nil
}
