package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/BaSui01/nodeflow/types"
	"github.com/BaSui01/nodeflow/workflow"
	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"go.uber.org/zap"
)

// =============================================================================
// 📡 通知流（SSE / WebSocket）
// =============================================================================

// HandleEvents 以 SSE 推送执行通知。客户端断开时订阅随请求 context 一起移除。
func (h *WorkflowHandler) HandleEvents(w http.ResponseWriter, r *http.Request) {
	rc := http.NewResponseController(w)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	// 长连接不受服务器 WriteTimeout 限制
	if err := rc.SetWriteDeadline(time.Time{}); err != nil && !errors.Is(err, http.ErrNotSupported) {
		h.logger.Debug("clear write deadline failed", zap.Error(err))
	}

	w.WriteHeader(http.StatusOK)
	if err := rc.Flush(); err != nil {
		h.logger.Warn("streaming not supported by response writer", zap.Error(err))
		return
	}

	disconnected := h.streams.StreamConnected("sse")
	defer disconnected()

	ctx := r.Context()
	events := h.engine.Observers().Subscribe(ctx, h.streamBuffer)
	requestID, _ := types.RequestID(ctx)
	h.logger.Debug("sse subscriber attached", zap.String("request_id", requestID))

	fmt.Fprintf(w, "retry: 3000\nevent: hello\ndata: {\"version\":%d}\n\n", h.engine.Version())
	if err := rc.Flush(); err != nil {
		return
	}

	ticker := time.NewTicker(h.keepAlive)
	defer ticker.Stop()

	var seq uint64
	for {
		select {
		case <-ctx.Done():
			h.logger.Debug("sse subscriber detached", zap.String("request_id", requestID))
			return
		case n, ok := <-events:
			if !ok {
				return
			}
			data, err := json.Marshal(n)
			if err != nil {
				h.logger.Error("encode notification failed", zap.Error(err))
				continue
			}
			seq++
			if _, err := fmt.Fprintf(w, "id: %d\nevent: %s\ndata: %s\n\n", seq, n.Kind, data); err != nil {
				return
			}
			if err := rc.Flush(); err != nil {
				return
			}
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
				return
			}
			if err := rc.Flush(); err != nil {
				return
			}
		}
	}
}

// HandleEventsWS 以 WebSocket 推送同样的通知，每条一个 JSON 文本帧。
// 客户端发来的消息被忽略。
func (h *WorkflowHandler) HandleEventsWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.originPatterns,
	})
	if err != nil {
		// Accept 已经写出了错误响应
		h.logger.Warn("websocket accept failed", zap.Error(err))
		return
	}
	defer conn.CloseNow()

	disconnected := h.streams.StreamConnected("websocket")
	defer disconnected()

	ctx := conn.CloseRead(r.Context())
	events := h.engine.Observers().Subscribe(ctx, h.streamBuffer)

	ticker := time.NewTicker(h.keepAlive)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case n, ok := <-events:
			if !ok {
				return
			}
			if err := h.writeWS(ctx, conn, n); err != nil {
				h.logger.Debug("websocket write failed", zap.Error(err))
				return
			}
		case <-ticker.C:
			pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err := conn.Ping(pctx)
			cancel()
			if err != nil {
				return
			}
		}
	}
}

func (h *WorkflowHandler) writeWS(ctx context.Context, conn *websocket.Conn, n workflow.Notification) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return wsjson.Write(ctx, conn, n)
}
