package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/denysvitali/tweetvault/pkg/bridge"
	"github.com/denysvitali/tweetvault/pkg/server"
)

// serverCmd represents the server command
var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the HTTP bridge for the desktop app",
	Long: `Start the HTTP server the desktop host talks to. Each sync request runs
this binary's sync command in a subprocess and reports its progress.`,
	RunE: runServer,
}

func init() {
	rootCmd.AddCommand(serverCmd)

	serverCmd.Flags().Int("port", 8765, "Port to listen on")
	serverCmd.Flags().String("session-api-key", "", "API key for session authentication")
	serverCmd.Flags().StringSlice("allowed-origins", []string{"*"}, "Origins allowed by CORS")
	serverCmd.Flags().Bool("enable-telemetry", false, "Enable OpenTelemetry tracing")
	serverCmd.Flags().String("otel-endpoint", "", "OpenTelemetry endpoint (if empty, uses auto-export)")

	_ = viper.BindPFlag("server.port", serverCmd.Flags().Lookup("port"))
	_ = viper.BindPFlag("server.session_api_key", serverCmd.Flags().Lookup("session-api-key"))
	_ = viper.BindPFlag("server.allowed_origins", serverCmd.Flags().Lookup("allowed-origins"))
	_ = viper.BindPFlag("telemetry.enabled", serverCmd.Flags().Lookup("enable-telemetry"))
	_ = viper.BindPFlag("telemetry.endpoint", serverCmd.Flags().Lookup("otel-endpoint"))
}

func runServer(cmd *cobra.Command, args []string) error {
	logger := GetLogger()
	logger.Info("Starting TweetVault bridge server")

	cfg, cleanup, err := loadConfig()
	if err != nil {
		return err
	}
	defer cleanup()

	b, err := bridge.New(cfg.Bridge, logger)
	if err != nil {
		return fmt.Errorf("failed to create bridge: %w", err)
	}

	srv, err := server.New(cfg, b, Version, logger)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- srv.Start()
	}()

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server error: %w", err)
	case sig := <-interrupt:
		logger.Infof("Received signal %v, shutting down...", sig)

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			logger.Errorf("Server shutdown error: %v", err)
			return err
		}

		logger.Info("Server stopped gracefully")
		return nil
	}
}
