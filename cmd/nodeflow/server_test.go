package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/BaSui01/nodeflow/config"
	"github.com/BaSui01/nodeflow/testutil"
	"github.com/BaSui01/nodeflow/testutil/fixtures"
)

var namespaceSeq uint64

// newTestServer 每次使用独立的指标前缀，避免重复注册
func newTestServer(t *testing.T, mutate func(cfg *config.Config)) *Server {
	t.Helper()
	metricsNamespace = fmt.Sprintf("nodeflow_test_%d", atomic.AddUint64(&namespaceSeq, 1))

	cfg := config.DefaultConfig()
	cfg.Store.Driver = "memory"
	cfg.Server.HTTPPort = 0
	cfg.Server.MetricsPort = 0
	cfg.Workflow.LoadOnStart = false
	if mutate != nil {
		mutate(cfg)
	}

	s, err := NewServer(cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { s.close(context.Background()) })
	return s
}

func get(t *testing.T, ts *httptest.Server, path string, header http.Header) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, ts.URL+path, nil)
	require.NoError(t, err)
	for k, v := range header {
		req.Header[k] = v
	}
	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func TestServer_RoutesAndAuth(t *testing.T) {
	s := newTestServer(t, func(cfg *config.Config) {
		cfg.Server.APIKeys = []string{"editor-key"}
	})
	ts := httptest.NewServer(s.buildHandler(t.Context(), s.routes()))
	t.Cleanup(ts.Close)

	authed := http.Header{"X-Api-Key": []string{"editor-key"}}

	tests := []struct {
		name       string
		path       string
		header     http.Header
		wantStatus int
	}{
		{"health is public", "/health", nil, http.StatusOK},
		{"ready is public", "/readyz", nil, http.StatusOK},
		{"version is public", "/version", nil, http.StatusOK},
		{"workflow requires key", "/workflow", nil, http.StatusUnauthorized},
		{"workflow with key", "/workflow", authed, http.StatusOK},
		{"nodes with key", "/workflow/nodes", authed, http.StatusOK},
		{"unknown execution", "/workflow/executions/missing", authed, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := get(t, ts, tt.path, tt.header)
			assert.Equal(t, tt.wantStatus, resp.StatusCode)
			assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))
			assert.Equal(t, "DENY", resp.Header.Get("X-Frame-Options"))
		})
	}
}

func TestServer_ListsBuiltinNodes(t *testing.T) {
	s := newTestServer(t, nil)
	ts := httptest.NewServer(s.buildHandler(t.Context(), s.routes()))
	t.Cleanup(ts.Close)

	resp := get(t, ts, "/workflow/nodes", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Data []struct {
			Name string `json:"name"`
		} `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	names := make([]string, 0, len(body.Data))
	for _, n := range body.Data {
		names = append(names, n.Name)
	}
	assert.ElementsMatch(t, []string{
		"event_listener", "interval", "random", "set", "wait", "send_chat", "condition", "log",
	}, names)
}

func TestServer_LoadPersisted(t *testing.T) {
	s := newTestServer(t, nil)

	// 没有保存的文档时保持空图
	s.loadPersisted(t.Context())
	assert.Nil(t, s.engine.Active())

	require.NoError(t, s.store.Save(t.Context(), []byte(fixtures.GreeterDocument)))
	s.loadPersisted(t.Context())
	require.NotNil(t, s.engine.Active())
	assert.Equal(t, "greeter", s.engine.Active().Name())
	assert.Equal(t, 2, s.engine.Active().Len())
}

func TestServer_LoadPersistedInvalidDocumentDoesNotFail(t *testing.T) {
	s := newTestServer(t, nil)
	require.NoError(t, s.store.Save(t.Context(), []byte(fixtures.UnknownTypeDocument)))

	s.loadPersisted(t.Context())
	assert.Nil(t, s.engine.Active())
}

func TestServer_WatcherReloadsDocument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "workflow.json")
	require.NoError(t, os.WriteFile(path, []byte(fixtures.EmptyDocument), 0o644))

	s := newTestServer(t, func(cfg *config.Config) {
		cfg.Store.Driver = "file"
		cfg.Store.Path = path
		cfg.Workflow.Watch = true
		cfg.Workflow.WatchInterval = 20 * time.Millisecond
	})
	require.NoError(t, s.startWatcher(t.Context()))

	require.NoError(t, os.WriteFile(path, []byte(fixtures.GreeterDocument), 0o644))
	testutil.AssertEventuallyTrue(t, func() bool {
		g := s.engine.Active()
		return g != nil && g.Name() == "greeter"
	}, 3*time.Second)

	// 无效文档不替换当前图
	require.NoError(t, os.WriteFile(path, []byte(fixtures.UnknownTypeDocument), 0o644))
	testutil.AssertNeverTrue(t, func() bool {
		g := s.engine.Active()
		return g == nil || g.Name() != "greeter"
	}, 300*time.Millisecond)
}

func TestNewServer_UnknownStoreDriver(t *testing.T) {
	metricsNamespace = fmt.Sprintf("nodeflow_test_%d", atomic.AddUint64(&namespaceSeq, 1))
	cfg := config.DefaultConfig()
	cfg.Store.Driver = "etcd"

	_, err := NewServer(cfg, zaptest.NewLogger(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to open workflow store")
}

func TestServer_RunStopsOnCancel(t *testing.T) {
	s := newTestServer(t, func(cfg *config.Config) {
		cfg.Server.ShutdownTimeout = time.Second
	})

	ctx, cancel := context.WithCancel(testutil.TestContext(t))
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}

// =============================================================================
// 子命令
// =============================================================================

func TestRunValidate(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "good.json")
	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(good, []byte(fixtures.GreeterDocument), 0o644))
	require.NoError(t, os.WriteFile(bad, []byte(fixtures.UnknownTypeDocument), 0o644))

	var out bytes.Buffer
	require.NoError(t, runValidate([]string{good}, &out))
	assert.Contains(t, out.String(), "OK (2 nodes)")

	assert.Error(t, runValidate([]string{bad}, &out))
	assert.Error(t, runValidate(nil, &out))
	assert.Error(t, runValidate([]string{filepath.Join(dir, "missing.json")}, &out))
}

func TestRunNodes(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, runNodes(&out))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 9)
	assert.True(t, strings.HasPrefix(lines[0], "TYPE"))
	assert.Contains(t, out.String(), "send_chat")
}

func TestPrintVersion(t *testing.T) {
	var out bytes.Buffer
	printVersion(&out)

	var v map[string]string
	require.NoError(t, json.Unmarshal(out.Bytes(), &v))
	assert.Equal(t, Version, v["version"])
	assert.Contains(t, v, "git_commit")
}

func TestRunHealthCheck(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	t.Cleanup(ts.Close)

	var out bytes.Buffer
	require.NoError(t, runHealthCheck([]string{"--addr", ts.URL}, &out))
	assert.Equal(t, "OK\n", out.String())

	assert.Error(t, runHealthCheck([]string{"--addr", ts.URL + "/nope"}, &out))
}

func TestInitLogger(t *testing.T) {
	for _, format := range []string{"json", "console"} {
		logger := initLogger(config.LogConfig{Level: "debug", Format: format, OutputPaths: []string{"stderr"}})
		require.NotNil(t, logger)
		assert.True(t, logger.Core().Enabled(-1))
	}
	logger := initLogger(config.LogConfig{Level: "bogus"})
	assert.False(t, logger.Core().Enabled(-1))
}
