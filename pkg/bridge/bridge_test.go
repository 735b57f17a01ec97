package bridge

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/denysvitali/tweetvault/internal/models"
	"github.com/denysvitali/tweetvault/pkg/config"
)

func newTestBridge(t *testing.T, script string, timeout time.Duration) *Bridge {
	logger := logrus.New()
	logger.SetOutput(io.Discard) // Discard logs during tests

	// sh -c <script> <$0> <args...>
	b, err := New(config.BridgeConfig{
		Command: []string{"sh", "-c", script, "tweetvault"},
		Timeout: timeout,
	}, logger)
	require.NoError(t, err)
	return b
}

func TestSyncBookmarks(t *testing.T) {
	ctx := context.Background()
	cfg := models.SyncConfig{
		Provider:  "claude",
		APIKey:    "sk-test",
		InputPath: "bookmarks.json",
		OutputDir: "/tmp/vault",
	}

	t.Run("successful sync", func(t *testing.T) {
		script := `
echo "Step 1/3: Imported 4 bookmarks" >&2
echo "Step 3/3: Generated 7 files" >&2
echo
echo "Done! Vault created at: /tmp/vault"
echo "Generated 7 files"
echo "Categories: Tech, AI/ML, Design"
`
		b := newTestBridge(t, script, 0)

		var mu sync.Mutex
		var progress []models.SyncProgress
		res, err := b.SyncBookmarks(ctx, cfg, func(p models.SyncProgress) {
			mu.Lock()
			defer mu.Unlock()
			progress = append(progress, p)
		})
		require.NoError(t, err)

		assert.Equal(t, uint32(7), res.FilesCreated)
		assert.Equal(t, []string{"Tech", "AI/ML", "Design"}, res.Categories)
		assert.Equal(t, "/tmp/vault", res.OutputDir)

		require.Len(t, progress, 2)
		assert.Equal(t, models.SyncProgress{Step: 1, Total: 3, Detail: "Imported 4 bookmarks"}, progress[0])
		assert.Equal(t, 3, progress[1].Step)
		assert.False(t, b.Syncing())
	})

	t.Run("arguments are forwarded", func(t *testing.T) {
		// Echo the received argv back in the categories line
		b := newTestBridge(t, `IFS=,; echo "Categories: $*"`, 0)

		res, err := b.SyncBookmarks(ctx, cfg, nil)
		require.NoError(t, err)
		assert.Equal(t, []string{
			"sync", "--input", "bookmarks.json", "--provider", "claude",
			"--api-key", "sk-test", "--output", "/tmp/vault",
		}, res.Categories)
		assert.Equal(t, uint32(0), res.FilesCreated)
	})

	t.Run("no input source", func(t *testing.T) {
		b := newTestBridge(t, `echo should-not-run; exit 1`, 0)

		res, err := b.SyncBookmarks(ctx, models.SyncConfig{Provider: "claude", OutputDir: "out"}, nil)
		assert.Nil(t, res)
		assert.ErrorIs(t, err, ErrNoInputSource)
	})

	t.Run("non-zero exit surfaces stderr", func(t *testing.T) {
		b := newTestBridge(t, `echo "API key required for claude" >&2; exit 1`, 0)

		res, err := b.SyncBookmarks(ctx, cfg, nil)
		assert.Nil(t, res)

		var cliErr *CLIError
		require.True(t, errors.As(err, &cliErr))
		assert.Equal(t, 1, cliErr.ExitCode)
		assert.Equal(t, "CLI error: API key required for claude", err.Error())
	})

	t.Run("timeout", func(t *testing.T) {
		b := newTestBridge(t, `exec sleep 5`, 200*time.Millisecond)

		_, err := b.SyncBookmarks(ctx, cfg, nil)
		var cliErr *CLIError
		require.True(t, errors.As(err, &cliErr))
		assert.True(t, cliErr.TimedOut)
		assert.Equal(t, timeoutExitCode, cliErr.ExitCode)
		assert.Equal(t, "CLI error: timed out after 200ms", err.Error())
	})

	t.Run("caller deadline", func(t *testing.T) {
		b := newTestBridge(t, `exec sleep 5`, time.Minute)

		callerCtx, cancel := context.WithTimeout(ctx, 200*time.Millisecond)
		defer cancel()

		_, err := b.SyncBookmarks(callerCtx, cfg, nil)
		var cliErr *CLIError
		require.True(t, errors.As(err, &cliErr))
		assert.True(t, cliErr.TimedOut)
		assert.Positive(t, cliErr.Timeout)
		assert.LessOrEqual(t, cliErr.Timeout, 200*time.Millisecond)
		assert.NotContains(t, err.Error(), "1m0s")
	})

	t.Run("missing executable", func(t *testing.T) {
		logger := logrus.New()
		logger.SetOutput(io.Discard)
		b, err := New(config.BridgeConfig{Command: []string{"/nonexistent/tweetvault-cli"}}, logger)
		require.NoError(t, err)

		_, err = b.SyncBookmarks(ctx, cfg, nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to run CLI")
	})
}

type blockingRunner struct {
	started chan struct{}
	release chan struct{}
}

func (r *blockingRunner) Run(ctx context.Context, name string, args []string, onStderrLine func(string)) (*RunOutput, error) {
	close(r.started)
	<-r.release
	return &RunOutput{Stdout: "Generated 1 files\n"}, nil
}

func TestSyncBookmarksRejectsConcurrentRuns(t *testing.T) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	runner := &blockingRunner{started: make(chan struct{}), release: make(chan struct{})}
	b, err := NewWithRunner(config.BridgeConfig{Command: []string{"tweetvault"}}, runner, logger)
	require.NoError(t, err)

	cfg := models.SyncConfig{Provider: "ollama", Cookie: "ct0=x", OutputDir: "out"}

	done := make(chan error, 1)
	go func() {
		_, err := b.SyncBookmarks(context.Background(), cfg, nil)
		done <- err
	}()

	<-runner.started
	assert.True(t, b.Syncing())

	_, err = b.SyncBookmarks(context.Background(), cfg, nil)
	assert.ErrorIs(t, err, ErrBusy)

	close(runner.release)
	assert.NoError(t, <-done)
	assert.False(t, b.Syncing())
}

func TestNewRequiresCommand(t *testing.T) {
	_, err := New(config.BridgeConfig{}, logrus.New())
	assert.Error(t, err)
}
