package bridge

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/denysvitali/tweetvault/internal/models"
	"github.com/denysvitali/tweetvault/pkg/config"
)

// ErrBusy is returned when a sync is requested while another one is still running
var ErrBusy = errors.New("a sync is already running")

var errBridgeTimeout = errors.New("bridge timeout")

// ProgressFunc receives progress reported by the CLI while it runs
type ProgressFunc func(models.SyncProgress)

// Bridge forwards sync requests from the desktop host to the CLI
type Bridge struct {
	command []string
	timeout time.Duration
	runner  Runner
	logger  *logrus.Logger
	tracer  trace.Tracer
	running atomic.Bool
}

// New creates a bridge that launches cfg.Command
func New(cfg config.BridgeConfig, logger *logrus.Logger) (*Bridge, error) {
	return NewWithRunner(cfg, ExecRunner{}, logger)
}

// NewWithRunner creates a bridge using a custom process runner
func NewWithRunner(cfg config.BridgeConfig, runner Runner, logger *logrus.Logger) (*Bridge, error) {
	if len(cfg.Command) == 0 || cfg.Command[0] == "" {
		return nil, fmt.Errorf("bridge command is not specified")
	}
	return &Bridge{
		command: cfg.Command,
		timeout: cfg.Timeout,
		runner:  runner,
		logger:  logger,
		tracer:  otel.Tracer("tweetvault"),
	}, nil
}

// firedTimeout reports the deadline that stopped the run: the bridge's own
// timeout, or the caller's deadline measured from the start of the run.
func (b *Bridge) firedTimeout(ctx, runCtx context.Context, started time.Time) time.Duration {
	if errors.Is(context.Cause(runCtx), errBridgeTimeout) {
		return b.timeout
	}
	if deadline, ok := ctx.Deadline(); ok {
		return deadline.Sub(started).Round(time.Millisecond)
	}
	return time.Since(started).Round(time.Millisecond)
}

// Syncing reports whether a sync is in flight
func (b *Bridge) Syncing() bool {
	return b.running.Load()
}

// SyncBookmarks runs the CLI's sync command for cfg and scrapes its summary
func (b *Bridge) SyncBookmarks(ctx context.Context, cfg models.SyncConfig, onProgress ProgressFunc) (*models.SyncResult, error) {
	ctx, span := b.tracer.Start(ctx, "sync_bookmarks")
	defer span.End()

	span.SetAttributes(
		attribute.String("provider", cfg.Provider),
		attribute.String("output_dir", cfg.OutputDir),
	)

	args, err := BuildArgs(cfg)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	if !b.running.CompareAndSwap(false, true) {
		return nil, ErrBusy
	}
	defer b.running.Store(false)

	log := b.logger.WithFields(logrus.Fields{
		"job_id":     uuid.NewString(),
		"provider":   cfg.Provider,
		"output_dir": cfg.OutputDir,
	})

	runCtx := ctx
	if b.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeoutCause(ctx, b.timeout, errBridgeTimeout)
		defer cancel()
	}

	name := b.command[0]
	fullArgs := append(append([]string{}, b.command[1:]...), args...)
	log.Infof("Running CLI: %s %v", name, redactArgs(fullArgs))

	started := time.Now()
	out, err := b.runner.Run(runCtx, name, fullArgs, func(line string) {
		log.Debugf("CLI stderr: %s", line)
		if p, ok := ParseProgress(line); ok && onProgress != nil {
			onProgress(p)
		}
	})
	if err != nil {
		span.RecordError(err)
		log.Errorf("Failed to run CLI: %v", err)
		return nil, fmt.Errorf("failed to run CLI: %w", err)
	}

	span.SetAttributes(
		attribute.Int("exit_code", out.ExitCode),
		attribute.Int("pid", out.PID),
	)

	if out.ExitCode != 0 {
		cliErr := &CLIError{
			ExitCode: out.ExitCode,
			Stderr:   out.Stderr,
			TimedOut: out.TimedOut,
		}
		if out.TimedOut {
			cliErr.Timeout = b.firedTimeout(ctx, runCtx, started)
		}
		span.RecordError(cliErr)
		log.WithField("exit_code", out.ExitCode).Warn("CLI exited unsuccessfully")
		return nil, cliErr
	}

	result := ParseOutput(out.Stdout)
	result.OutputDir = cfg.OutputDir

	log.WithFields(logrus.Fields{
		"files_created": result.FilesCreated,
		"categories":    len(result.Categories),
		"duration":      time.Since(started),
	}).Info("Sync finished")

	return &result, nil
}
