package server_test

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/denysvitali/tweetvault/internal/models"
	"github.com/denysvitali/tweetvault/pkg/bridge"
	"github.com/denysvitali/tweetvault/pkg/config"
	"github.com/denysvitali/tweetvault/pkg/server"
)

type fakeSyncer struct {
	progress []models.SyncProgress
	result   *models.SyncResult
	err      error
	busy     atomic.Bool
	got      models.SyncConfig
}

func (f *fakeSyncer) SyncBookmarks(ctx context.Context, cfg models.SyncConfig, onProgress bridge.ProgressFunc) (*models.SyncResult, error) {
	f.got = cfg
	if _, err := bridge.BuildArgs(cfg); err != nil {
		return nil, err
	}
	for _, p := range f.progress {
		if onProgress != nil {
			onProgress(p)
		}
	}
	return f.result, f.err
}

func (f *fakeSyncer) Syncing() bool {
	return f.busy.Load()
}

func setupTestServer(t *testing.T, syncer server.Syncer) *server.Server {
	t.Helper()
	cfg := &config.Config{
		Output: config.OutputConfig{Dir: t.TempDir()},
		Server: config.ServerConfig{
			Port:           8765,
			SessionAPIKey:  "test-key",
			AllowedOrigins: []string{"tauri://localhost"},
		},
	}
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	srv, err := server.New(cfg, syncer, "test", logger)
	require.NoError(t, err, "Failed to create server")
	return srv
}

func createAuthenticatedRequest(t *testing.T, method, url string, body io.Reader) *http.Request {
	t.Helper()
	req, err := http.NewRequest(method, url, body)
	require.NoError(t, err)
	req.Header.Set("X-Session-API-Key", "test-key")
	req.Header.Set("Content-Type", "application/json")
	return req
}

func jsonBody(t *testing.T, v any) io.Reader {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return bytes.NewReader(data)
}

func TestHandleAlive(t *testing.T) {
	srv := setupTestServer(t, &fakeSyncer{})

	rr := httptest.NewRecorder()
	srv.Engine().ServeHTTP(rr, createAuthenticatedRequest(t, http.MethodGet, "/alive", nil))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rr.Body.String())
}

func TestHandleServerInfo(t *testing.T) {
	syncer := &fakeSyncer{}
	syncer.busy.Store(true)
	srv := setupTestServer(t, syncer)

	rr := httptest.NewRecorder()
	srv.Engine().ServeHTTP(rr, createAuthenticatedRequest(t, http.MethodGet, "/server_info", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	var resp models.ServerInfoResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, "test", resp.Version)
	assert.True(t, resp.Syncing)
	assert.Zero(t, resp.IdleTime)
	assert.GreaterOrEqual(t, resp.Uptime, 0.0)
	assert.GreaterOrEqual(t, resp.Resources.CPUCount, 1)
}

func TestAuthAndCORS(t *testing.T) {
	srv := setupTestServer(t, &fakeSyncer{})

	t.Run("missing key", func(t *testing.T) {
		req, err := http.NewRequest(http.MethodGet, "/alive", nil)
		require.NoError(t, err)

		rr := httptest.NewRecorder()
		srv.Engine().ServeHTTP(rr, req)
		assert.Equal(t, http.StatusForbidden, rr.Code)
		assert.JSONEq(t, `{"error":"Invalid API Key"}`, rr.Body.String())
	})

	t.Run("preflight skips auth", func(t *testing.T) {
		req, err := http.NewRequest(http.MethodOptions, "/sync_bookmarks", nil)
		require.NoError(t, err)
		req.Header.Set("Origin", "tauri://localhost")

		rr := httptest.NewRecorder()
		srv.Engine().ServeHTTP(rr, req)
		assert.Equal(t, http.StatusNoContent, rr.Code)
		assert.Equal(t, "tauri://localhost", rr.Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("unknown origin", func(t *testing.T) {
		req := createAuthenticatedRequest(t, http.MethodGet, "/alive", nil)
		req.Header.Set("Origin", "https://evil.example")

		rr := httptest.NewRecorder()
		srv.Engine().ServeHTTP(rr, req)
		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Empty(t, rr.Header().Get("Access-Control-Allow-Origin"))
	})
}

func TestHandleSyncBookmarks(t *testing.T) {
	request := models.SyncConfig{Provider: "openai", APIKey: "sk", InputPath: "/tmp/b.json", OutputDir: "/tmp/vault"}

	t.Run("success", func(t *testing.T) {
		syncer := &fakeSyncer{result: &models.SyncResult{FilesCreated: 4, Categories: []string{"Tech"}, OutputDir: "/tmp/vault"}}
		srv := setupTestServer(t, syncer)

		rr := httptest.NewRecorder()
		srv.Engine().ServeHTTP(rr, createAuthenticatedRequest(t, http.MethodPost, "/sync_bookmarks", jsonBody(t, request)))

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.JSONEq(t, `{"files_created":4,"categories":["Tech"],"output_dir":"/tmp/vault"}`, rr.Body.String())
		assert.Equal(t, request, syncer.got)
	})

	cases := []struct {
		name   string
		req    models.SyncConfig
		err    error
		status int
	}{
		{"no input source", models.SyncConfig{Provider: "openai", OutputDir: "/tmp/vault"}, nil, http.StatusBadRequest},
		{"busy", request, bridge.ErrBusy, http.StatusConflict},
		{"cli failure", request, &bridge.CLIError{ExitCode: 1, Stderr: "boom"}, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := setupTestServer(t, &fakeSyncer{err: tc.err})

			rr := httptest.NewRecorder()
			srv.Engine().ServeHTTP(rr, createAuthenticatedRequest(t, http.MethodPost, "/sync_bookmarks", jsonBody(t, tc.req)))
			assert.Equal(t, tc.status, rr.Code)

			var resp models.ErrorResponse
			require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
			assert.NotEmpty(t, resp.Error)
		})
	}

	t.Run("invalid json", func(t *testing.T) {
		srv := setupTestServer(t, &fakeSyncer{})
		rr := httptest.NewRecorder()
		srv.Engine().ServeHTTP(rr, createAuthenticatedRequest(t, http.MethodPost, "/sync_bookmarks", strings.NewReader("invalid-json")))
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})
}

type sseFrame struct {
	event string
	data  string
}

func readSSE(t *testing.T, body io.Reader) []sseFrame {
	t.Helper()
	var frames []sseFrame
	var cur sseFrame
	scanner := bufio.NewScanner(body)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "event:"):
			cur.event = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			cur.data = strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		case line == "" && cur.event != "":
			frames = append(frames, cur)
			cur = sseFrame{}
		}
	}
	require.NoError(t, scanner.Err())
	return frames
}

func TestHandleSyncBookmarksStream(t *testing.T) {
	request := models.SyncConfig{Provider: "ollama", Cookie: "ct0=a", OutputDir: "/tmp/vault"}

	post := func(t *testing.T, srv *server.Server, req models.SyncConfig) *http.Response {
		ts := httptest.NewServer(srv.Engine())
		t.Cleanup(ts.Close)

		httpReq := createAuthenticatedRequest(t, http.MethodPost, ts.URL+"/sync_bookmarks/stream", jsonBody(t, req))
		resp, err := http.DefaultClient.Do(httpReq)
		require.NoError(t, err)
		t.Cleanup(func() { resp.Body.Close() })
		return resp
	}

	t.Run("progress then result", func(t *testing.T) {
		syncer := &fakeSyncer{
			progress: []models.SyncProgress{
				{Step: 1, Total: 3, Detail: "Fetching bookmarks..."},
				{Step: 3, Total: 3, Detail: "Generated 2 files"},
			},
			result: &models.SyncResult{FilesCreated: 2, Categories: []string{"AI"}},
		}
		resp := post(t, setupTestServer(t, syncer), request)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Contains(t, resp.Header.Get("Content-Type"), "text/event-stream")

		frames := readSSE(t, resp.Body)
		require.Len(t, frames, 3)
		assert.Equal(t, "progress", frames[0].event)
		assert.JSONEq(t, `{"step":1,"total":3,"detail":"Fetching bookmarks..."}`, frames[0].data)
		assert.Equal(t, "progress", frames[1].event)
		assert.Equal(t, "result", frames[2].event)
		assert.JSONEq(t, `{"files_created":2,"categories":["AI"],"output_dir":""}`, frames[2].data)
	})

	t.Run("failure arrives as error event", func(t *testing.T) {
		syncer := &fakeSyncer{err: &bridge.CLIError{ExitCode: 2, Stderr: "bad cookie"}}
		resp := post(t, setupTestServer(t, syncer), request)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		frames := readSSE(t, resp.Body)
		require.Len(t, frames, 1)
		assert.Equal(t, "error", frames[0].event)
		assert.Contains(t, frames[0].data, "bad cookie")
	})

	t.Run("no input source", func(t *testing.T) {
		resp := post(t, setupTestServer(t, &fakeSyncer{}), models.SyncConfig{Provider: "ollama"})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("busy", func(t *testing.T) {
		syncer := &fakeSyncer{}
		syncer.busy.Store(true)
		resp := post(t, setupTestServer(t, syncer), request)
		assert.Equal(t, http.StatusConflict, resp.StatusCode)
	})
}

// blockingSyncer holds every sync until release is closed and never reports
// itself busy, so only the server's own reservation can turn a request away
type blockingSyncer struct {
	once    sync.Once
	started chan struct{}
	release chan struct{}
	calls   atomic.Int32
}

func (b *blockingSyncer) SyncBookmarks(ctx context.Context, cfg models.SyncConfig, onProgress bridge.ProgressFunc) (*models.SyncResult, error) {
	b.calls.Add(1)
	b.once.Do(func() { close(b.started) })
	<-b.release
	return &models.SyncResult{FilesCreated: 1, Categories: []string{}}, nil
}

func (b *blockingSyncer) Syncing() bool {
	return false
}

func TestConcurrentSyncsGetConflict(t *testing.T) {
	syncer := &blockingSyncer{started: make(chan struct{}), release: make(chan struct{})}
	ts := httptest.NewServer(setupTestServer(t, syncer).Engine())
	defer ts.Close()

	request := models.SyncConfig{Provider: "ollama", InputPath: "/tmp/b.json", OutputDir: "/tmp/vault"}

	streamReq := createAuthenticatedRequest(t, http.MethodPost, ts.URL+"/sync_bookmarks/stream", jsonBody(t, request))
	first := make(chan *http.Response, 1)
	go func() {
		resp, err := http.DefaultClient.Do(streamReq)
		if assert.NoError(t, err) {
			first <- resp
		} else {
			close(first)
		}
	}()
	<-syncer.started

	for _, path := range []string{"/sync_bookmarks/stream", "/sync_bookmarks"} {
		resp, err := http.DefaultClient.Do(createAuthenticatedRequest(t, http.MethodPost, ts.URL+path, jsonBody(t, request)))
		require.NoError(t, err)
		assert.Equal(t, http.StatusConflict, resp.StatusCode, path)
		resp.Body.Close()
	}

	close(syncer.release)
	resp, ok := <-first
	require.True(t, ok)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	frames := readSSE(t, resp.Body)
	require.Len(t, frames, 1)
	assert.Equal(t, "result", frames[0].event)
	assert.Equal(t, int32(1), syncer.calls.Load())
}

func TestHandleVault(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "tech"), 0755))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "AI_ML"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "_index.md"), []byte("x"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "Readme.md"), []byte("x"), 0644))

	srv := setupTestServer(t, &fakeSyncer{})

	rr := httptest.NewRecorder()
	srv.Engine().ServeHTTP(rr, createAuthenticatedRequest(t, http.MethodGet, "/vault?output_dir="+dir, nil))
	require.Equal(t, http.StatusOK, rr.Code)

	var listing models.VaultListing
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &listing))
	assert.Equal(t, dir, listing.OutputDir)
	assert.Equal(t, []string{"AI_ML/", "tech/", "_index.md", "Readme.md"}, listing.Entries)

	rr = httptest.NewRecorder()
	srv.Engine().ServeHTTP(rr, createAuthenticatedRequest(t, http.MethodGet, "/vault?output_dir="+filepath.Join(dir, "missing"), nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &listing))
	assert.Empty(t, listing.Entries)
	assert.NotNil(t, listing.Entries)
}
