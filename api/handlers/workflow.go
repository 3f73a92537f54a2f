package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/BaSui01/nodeflow/api"
	"github.com/BaSui01/nodeflow/types"
	"github.com/BaSui01/nodeflow/workflow"
	"go.uber.org/zap"
)

// =============================================================================
// 🧩 工作流编辑器 Handler
// =============================================================================

// StreamMetrics 记录实时流连接数
type StreamMetrics interface {
	StreamConnected(transport string) (disconnected func())
}

type nopStreamMetrics struct{}

func (nopStreamMetrics) StreamConnected(string) func() { return func() {} }

// WorkflowHandler 暴露工作流引擎给外部编辑器
type WorkflowHandler struct {
	engine *workflow.Engine
	logger *zap.Logger

	streams        StreamMetrics
	streamBuffer   int
	keepAlive      time.Duration
	originPatterns []string
}

// WorkflowOption configures a WorkflowHandler.
type WorkflowOption func(*WorkflowHandler)

// WithStreamMetrics 设置流连接指标
func WithStreamMetrics(m StreamMetrics) WorkflowOption {
	return func(h *WorkflowHandler) {
		if m != nil {
			h.streams = m
		}
	}
}

// WithStreamBuffer 设置每个订阅者的通知缓冲
func WithStreamBuffer(n int) WorkflowOption {
	return func(h *WorkflowHandler) { h.streamBuffer = n }
}

// WithKeepAlive 设置 SSE 心跳和 WebSocket ping 间隔
func WithKeepAlive(d time.Duration) WorkflowOption {
	return func(h *WorkflowHandler) { h.keepAlive = d }
}

// WithOriginPatterns 允许跨域的 WebSocket 来源
func WithOriginPatterns(patterns ...string) WorkflowOption {
	return func(h *WorkflowHandler) { h.originPatterns = append(h.originPatterns, patterns...) }
}

// NewWorkflowHandler 创建工作流处理器
func NewWorkflowHandler(engine *workflow.Engine, logger *zap.Logger, opts ...WorkflowOption) *WorkflowHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &WorkflowHandler{
		engine:       engine,
		logger:       logger.With(zap.String("component", "workflow_handler")),
		streams:      nopStreamMetrics{},
		streamBuffer: 64,
		keepAlive:    15 * time.Second,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Register 注册全部工作流路由
func (h *WorkflowHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /workflow", h.HandleGet)
	mux.HandleFunc("POST /workflow", h.HandleSave)
	mux.HandleFunc("POST /workflow/load", h.HandleLoad)
	mux.HandleFunc("POST /workflow/validate", h.HandleValidate)
	mux.HandleFunc("GET /workflow/version", h.HandleVersion)
	mux.HandleFunc("GET /workflow/nodes", h.HandleListNodes)
	mux.HandleFunc("GET /workflow/nodes/{id}/autocomplete", h.HandleAutocomplete)
	mux.HandleFunc("GET /workflow/executions", h.HandleListExecutions)
	mux.HandleFunc("GET /workflow/executions/{id}", h.HandleGetExecution)
	mux.HandleFunc("GET /workflow/events", h.HandleEvents)
	mux.HandleFunc("GET /workflow/events/ws", h.HandleEventsWS)
}

// HandleListNodes 返回节点类型目录
func (h *WorkflowHandler) HandleListNodes(w http.ResponseWriter, r *http.Request) {
	list := h.engine.Registry().List()
	infos := make([]workflow.NodeTypeInfo, 0, len(list))
	for _, nt := range list {
		infos = append(infos, nt.Info())
	}
	WriteSuccess(w, infos)
}

// HandleAutocomplete 返回字段候选值。{id} 可以是节点类型名或当前图中的节点 id。
func (h *WorkflowHandler) HandleAutocomplete(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	opts, err := h.engine.Autocomplete(r.PathValue("id"), q.Get("field"), q.Get("input"))
	if err != nil {
		WriteFailure(w, err, h.logger)
		return
	}
	WriteSuccess(w, opts)
}

// HandleVersion 返回当前图的加载时间戳
func (h *WorkflowHandler) HandleVersion(w http.ResponseWriter, r *http.Request) {
	WriteSuccess(w, api.VersionResponse{Version: h.engine.Version()})
}

// HandleGet 返回运行中的图；没有时返回已保存文档；都没有时返回空文档。
// ?format=yaml 直接输出 YAML。
func (h *WorkflowHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	resp := api.DocumentResponse{Source: "active", Version: h.engine.Version()}
	if h.engine.Active() != nil {
		resp.Document = h.engine.Serialize()
	} else {
		doc, err := h.engine.Persisted(r.Context())
		switch {
		case err == nil:
			resp.Source = "persisted"
			resp.Document = doc
		case errors.Is(err, workflow.ErrDocumentNotFound):
			resp.Source = "empty"
			resp.Document = &workflow.Document{Nodes: []workflow.NodeDocument{}}
		default:
			WriteError(w, storageError("failed to read saved workflow", err), h.logger)
			return
		}
	}

	if r.URL.Query().Get("format") == "yaml" {
		data, err := resp.Document.ToYAML()
		if err != nil {
			WriteFailure(w, err, h.logger)
			return
		}
		w.Header().Set("Content-Type", "application/yaml; charset=utf-8")
		w.Header().Set("X-Workflow-Source", resp.Source)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(data)
		return
	}
	WriteSuccess(w, resp)
}

// HandleSave 校验并保存文档，不加载
func (h *WorkflowHandler) HandleSave(w http.ResponseWriter, r *http.Request) {
	if !h.engine.HasStore() {
		WriteError(w, types.NewError(types.ErrServiceUnavailable, "no document store configured"), h.logger)
		return
	}
	doc, ok := h.readDocument(w, r)
	if !ok {
		return
	}
	if err := h.engine.Validate(doc); err != nil {
		WriteFailure(w, err, h.logger)
		return
	}
	if err := h.engine.Save(r.Context(), doc); err != nil {
		WriteError(w, storageError("failed to save workflow", err), h.logger)
		return
	}
	h.logger.Info("workflow document saved", zap.Int("nodes", len(doc.Nodes)))
	WriteSuccess(w, api.SaveResponse{Saved: true, Nodes: len(doc.Nodes)})
}

// HandleLoad 加载并安装文档。失败时原来的图保持运行。?save=true 加载成功后同时保存。
func (h *WorkflowHandler) HandleLoad(w http.ResponseWriter, r *http.Request) {
	doc, ok := h.readDocument(w, r)
	if !ok {
		return
	}
	g, err := h.engine.Load(r.Context(), doc)
	if err != nil {
		WriteFailure(w, err, h.logger)
		return
	}

	resp := api.LoadResponse{
		Version:  g.Version(),
		Name:     g.Name(),
		Nodes:    g.Len(),
		Document: g.Document(),
	}
	if save, _ := strconv.ParseBool(r.URL.Query().Get("save")); save {
		if !h.engine.HasStore() {
			WriteError(w, types.NewError(types.ErrServiceUnavailable, "workflow loaded but no document store configured"), h.logger)
			return
		}
		if err := h.engine.Save(r.Context(), resp.Document); err != nil {
			WriteError(w, storageError("workflow loaded but saving failed", err), h.logger)
			return
		}
		resp.Saved = true
	}
	WriteSuccess(w, resp)
}

// HandleValidate 试加载：解析并按注册表构建，但不安装
func (h *WorkflowHandler) HandleValidate(w http.ResponseWriter, r *http.Request) {
	data, ok := ReadBody(w, r, h.logger)
	if !ok {
		return
	}
	doc, err := workflow.ParseDocument(data)
	if err == nil {
		err = h.engine.Validate(doc)
	}
	resp := api.ValidateResponse{Valid: err == nil}
	if err != nil {
		var loadErr *workflow.LoadError
		if !errors.As(err, &loadErr) {
			WriteFailure(w, err, h.logger)
			return
		}
		resp.Error = loadErr.Error()
		resp.Node = loadErr.Node
		resp.Field = loadErr.Field
	}
	WriteSuccess(w, resp)
}

// HandleListExecutions 返回最近的事件轨迹。?limit=N&status=failed
func (h *WorkflowHandler) HandleListExecutions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit := 50
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			WriteError(w, types.NewInvalidRequestError("limit must be a non-negative integer"), h.logger)
			return
		}
		limit = n
	}

	var traces []workflow.EventTrace
	if status := q.Get("status"); status != "" {
		traces = h.engine.History().ListByStatus(workflow.TraceStatus(status))
		if limit > 0 && len(traces) > limit {
			traces = traces[:limit]
		}
	} else {
		traces = h.engine.History().List(limit)
	}
	if traces == nil {
		traces = []workflow.EventTrace{}
	}
	WriteSuccess(w, api.ExecutionListResponse{Executions: traces, Total: h.engine.History().Len()})
}

// HandleGetExecution 返回单个事件轨迹
func (h *WorkflowHandler) HandleGetExecution(w http.ResponseWriter, r *http.Request) {
	tr, ok := h.engine.History().Get(r.PathValue("id"))
	if !ok {
		WriteError(w, types.NewNotFoundError("execution not found"), h.logger)
		return
	}
	WriteSuccess(w, tr)
}

func (h *WorkflowHandler) readDocument(w http.ResponseWriter, r *http.Request) (*workflow.Document, bool) {
	data, ok := ReadBody(w, r, h.logger)
	if !ok {
		return nil, false
	}
	doc, err := workflow.ParseDocument(data)
	if err != nil {
		WriteFailure(w, err, h.logger)
		return nil, false
	}
	return doc, true
}

func storageError(message string, err error) *types.Error {
	return types.NewError(types.ErrStorage, message).WithCause(err).WithRetryable(true)
}
