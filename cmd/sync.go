package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/denysvitali/tweetvault/pkg/pipeline"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Fetch, classify and write bookmarks into an Obsidian vault",
	Long: `Run the whole pipeline: fetch bookmarks from X (or import a JSON export),
classify them with the configured AI provider and generate the vault.

Progress is reported on stderr as "Step n/3: ..." lines. The summary on stdout
is stable and read by the desktop bridge.`,
	PreRunE: func(cmd *cobra.Command, args []string) error {
		if err := bindFlags(cmd, sourceFlagKeys); err != nil {
			return err
		}
		if err := bindFlags(cmd, aiFlagKeys); err != nil {
			return err
		}
		return bindFlags(cmd, vaultFlagKeys)
	},
	RunE: runSync,
}

func init() {
	rootCmd.AddCommand(syncCmd)

	addSourceFlags(syncCmd)
	addAIFlags(syncCmd)
	addVaultFlags(syncCmd)
	syncCmd.Flags().String("save-classified", "", "Also write the classification result as JSON to this path")
}

func runSync(cmd *cobra.Command, args []string) error {
	cfg, cleanup, err := loadConfig()
	if err != nil {
		return err
	}
	defer cleanup()

	opts := pipelineOptions(cmd, cfg)
	opts.SaveClassified, _ = cmd.Flags().GetString("save-classified")

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	res, err := pipeline.New(logger).Run(ctx, opts, progressPrinter(cmd.ErrOrStderr()))
	if err != nil {
		return err
	}

	printSummary(cmd.OutOrStdout(), res.Vault, res.Classification.Categories)
	return nil
}
