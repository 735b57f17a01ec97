package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/denysvitali/tweetvault/internal/models"
	"github.com/denysvitali/tweetvault/pkg/classifier"
	"github.com/denysvitali/tweetvault/pkg/config"
	"github.com/denysvitali/tweetvault/pkg/pipeline"
)

var (
	sourceFlagKeys = map[string]string{
		"fetch.cookie":    "cookie",
		"fetch.json_path": "input",
		"fetch.limit":     "limit",
	}
	aiFlagKeys = map[string]string{
		"ai.provider":     "provider",
		"ai.api_key":      "api-key",
		"ai.model":        "model",
		"ai.base_url":     "base-url",
		"output.language": "language",
	}
	vaultFlagKeys = map[string]string{
		"output.dir":        "output",
		"output.vault_name": "name",
	}
)

func addSourceFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("cookie", "c", "", "X session cookie string (must contain ct0)")
	cmd.Flags().StringP("input", "i", "", "Import bookmarks from a JSON file instead of fetching")
	cmd.Flags().IntP("limit", "l", 100, "Maximum number of bookmarks to fetch")
}

func addAIFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("provider", "p", "claude", fmt.Sprintf("AI provider (%s)", strings.Join(classifier.Providers(), ", ")))
	cmd.Flags().StringP("api-key", "k", "", "API key for the AI provider")
	cmd.Flags().StringP("model", "m", "", "Model name (defaults per provider)")
	cmd.Flags().String("base-url", "", "Custom base URL for the provider API")
	cmd.Flags().String("language", "en", "Language for the summaries")
	cmd.Flags().StringSlice("categories", nil, "Comma-separated list of categories to use")
	cmd.Flags().Bool("no-cache", false, "Skip the classification cache")
}

func addVaultFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("output", "o", "./tweetvault-output", "Output directory for the vault")
	cmd.Flags().StringP("name", "n", "TweetVault", "Vault name")
}

// pipelineOptions maps the effective config plus command-only flags onto pipeline options
func pipelineOptions(cmd *cobra.Command, cfg *config.Config) pipeline.Options {
	opts := pipeline.Options{
		Fetch:  cfg.Fetch,
		AI:     cfg.AI,
		Output: cfg.Output,
		Cache:  cfg.Cache,
	}

	if categories, err := cmd.Flags().GetStringSlice("categories"); err == nil {
		opts.Categories = categories
	}
	if noCache, err := cmd.Flags().GetBool("no-cache"); err == nil && noCache {
		opts.Cache.Enabled = false
	}
	return opts
}

func progressPrinter(w io.Writer) pipeline.ProgressFunc {
	return func(p models.SyncProgress) {
		fmt.Fprintf(w, "Step %d/%d: %s\n", p.Step, p.Total, p.Detail)
	}
}

// printSummary writes the lines the desktop bridge scrapes from stdout. The bridge
// takes the first line holding each marker, so the counted lines go before the
// directory line, which may contain either marker.
func printSummary(w io.Writer, vault *models.GenerateResult, categories []string) {
	fmt.Fprintf(w, "\nGenerated %d files\n", vault.FilesCreated)
	fmt.Fprintf(w, "Categories: %s\n", strings.Join(categories, ", "))
	fmt.Fprintf(w, "Done! Vault created at: %s\n", vault.OutputDir)
}
