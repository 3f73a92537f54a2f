package handlers

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/BaSui01/nodeflow/testutil/fixtures"
	"github.com/BaSui01/nodeflow/workflow"
	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingStreams struct {
	mu     sync.Mutex
	active map[string]int
	total  map[string]int
}

func newCountingStreams() *countingStreams {
	return &countingStreams{active: map[string]int{}, total: map[string]int{}}
}

func (c *countingStreams) StreamConnected(transport string) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.active[transport]++
	c.total[transport]++
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.active[transport]--
	}
}

func (c *countingStreams) get(transport string) (active, total int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active[transport], c.total[transport]
}

// readSSE 读取下一个完整的 SSE 事件（忽略注释行）
func readSSE(t *testing.T, r *bufio.Reader) (event, data string) {
	t.Helper()
	for {
		line, err := r.ReadString('\n')
		require.NoError(t, err)
		line = strings.TrimRight(line, "\n")
		switch {
		case line == "":
			if event != "" || data != "" {
				return event, data
			}
		case strings.HasPrefix(line, "event: "):
			event = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			data = strings.TrimPrefix(line, "data: ")
		}
	}
}

func TestWorkflowHandler_SSE(t *testing.T) {
	streams := newCountingStreams()
	f := newWorkflowFixture(t, false, WithStreamMetrics(streams), WithKeepAlive(50*time.Millisecond))
	srv := httptest.NewServer(f.mux)
	defer srv.Close()

	baseline := f.engine.Observers().Len()

	ctx, cancel := context.WithCancel(context.Background())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/workflow/events", nil)
	require.NoError(t, err)
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	event, data := readSSE(t, reader)
	assert.Equal(t, "hello", event)
	assert.JSONEq(t, `{"version":0}`, data)
	assert.Equal(t, baseline+1, f.engine.Observers().Len())

	_, err = f.engine.LoadBytes(context.Background(), []byte(fixtures.GreeterDocument))
	require.NoError(t, err)

	event, data = readSSE(t, reader)
	assert.Equal(t, string(workflow.NotifyGraphLoaded), event)
	assert.Contains(t, data, `"graph_version"`)

	active, total := streams.get("sse")
	assert.Equal(t, 1, active)
	assert.Equal(t, 1, total)

	cancel()
	assert.Eventually(t, func() bool {
		return f.engine.Observers().Len() == baseline
	}, 2*time.Second, 10*time.Millisecond, "subscriber must be removed on disconnect")
	assert.Eventually(t, func() bool {
		active, _ := streams.get("sse")
		return active == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestWorkflowHandler_SSEKeepAlive(t *testing.T) {
	f := newWorkflowFixture(t, false, WithKeepAlive(20*time.Millisecond))
	srv := httptest.NewServer(f.mux)
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL + "/workflow/events")
	require.NoError(t, err)
	defer resp.Body.Close()

	reader := bufio.NewReader(resp.Body)
	readSSE(t, reader) // hello
	line, err := reader.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, ": keep-alive\n", line)
}

func TestWorkflowHandler_WebSocket(t *testing.T) {
	streams := newCountingStreams()
	f := newWorkflowFixture(t, false, WithStreamMetrics(streams))
	srv := httptest.NewServer(f.mux)
	defer srv.Close()

	baseline := f.engine.Observers().Len()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/workflow/events/ws"
	conn, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	defer conn.CloseNow()

	require.Eventually(t, func() bool {
		return f.engine.Observers().Len() == baseline+1
	}, 2*time.Second, 10*time.Millisecond)

	_, err = f.engine.LoadBytes(context.Background(), []byte(fixtures.GreeterDocument))
	require.NoError(t, err)

	var n workflow.Notification
	require.NoError(t, wsjson.Read(ctx, conn, &n))
	assert.Equal(t, workflow.NotifyGraphLoaded, n.Kind)
	assert.Equal(t, f.engine.Version(), n.GraphVersion)

	_, total := streams.get("websocket")
	assert.Equal(t, 1, total)

	require.NoError(t, conn.Close(websocket.StatusNormalClosure, "bye"))
	assert.Eventually(t, func() bool {
		return f.engine.Observers().Len() == baseline
	}, 2*time.Second, 10*time.Millisecond)
}

func TestWorkflowHandler_WebSocketRejectsPlainRequest(t *testing.T) {
	f := newWorkflowFixture(t, false)
	w, _ := f.do(t, http.MethodGet, "/workflow/events/ws", "")
	assert.GreaterOrEqual(t, w.Code, 400)
}
