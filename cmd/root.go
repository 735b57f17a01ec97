package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/denysvitali/tweetvault/pkg/config"
	"github.com/denysvitali/tweetvault/pkg/telemetry"
)

// Version is set at build time with -ldflags
var Version = "dev"

var (
	cfgFile string
	logger  = logrus.New()
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "tweetvault",
	Short: "Turn X bookmarks into an AI-organized Obsidian vault",
	Long: `TweetVault fetches your X (Twitter) bookmarks, classifies them with an LLM
provider of your choice and writes them as an Obsidian vault, one folder per category.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.tweetvault/config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "warn", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")

	_ = viper.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("log.json", rootCmd.PersistentFlags().Lookup("log-json"))
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		if dir, err := config.Dir(); err == nil {
			viper.AddConfigPath(dir)
		}
		viper.SetConfigName("config")
	}

	viper.SetEnvPrefix("TWEETVAULT")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		logger.Debugf("Using config file: %s", viper.ConfigFileUsed())
	} else if cfgFile == "" {
		readLocalConfig()
	}

	setupLogging()
}

// readLocalConfig falls back to ./.tweetvault.{yaml,yml,json} in the working directory
func readLocalConfig() {
	for _, ext := range []string{"yaml", "yml", "json"} {
		path := ".tweetvault." + ext
		if _, err := os.Stat(path); err != nil {
			continue
		}
		viper.SetConfigFile(filepath.Clean(path))
		if err := viper.ReadInConfig(); err != nil {
			logger.Warnf("Failed to read %s: %v", path, err)
		}
		return
	}
}

func setupLogging() {
	logger.SetOutput(os.Stderr)

	level, err := logrus.ParseLevel(viper.GetString("log.level"))
	if err != nil {
		logger.Warnf("Invalid log level '%s', using 'warn'", viper.GetString("log.level"))
		level = logrus.WarnLevel
	}
	logger.SetLevel(level)

	if viper.GetBool("log.json") {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
		})
	}
}

// GetLogger returns the process logger
func GetLogger() *logrus.Logger {
	return logger
}

// loadConfig resolves the effective configuration and starts telemetry when enabled.
// The returned cleanup must always be called.
func loadConfig() (*config.Config, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, func() {}, fmt.Errorf("failed to load configuration: %w", err)
	}

	cleanup, err := telemetry.Initialize(cfg.Telemetry, Version, logger)
	if err != nil {
		logger.Warnf("Failed to initialize telemetry: %v", err)
		cleanup = func() {}
	}
	return cfg, cleanup, nil
}

// bindFlags binds command flags to config keys. It runs in PreRunE because several
// commands share a key through differently scoped flags.
func bindFlags(cmd *cobra.Command, keys map[string]string) error {
	for key, flag := range keys {
		if err := viper.BindPFlag(key, cmd.Flags().Lookup(flag)); err != nil {
			return fmt.Errorf("failed to bind --%s: %w", flag, err)
		}
	}
	return nil
}
