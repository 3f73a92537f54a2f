package api

import (
	"github.com/BaSui01/nodeflow/workflow"
)

// =============================================================================
// 工作流编辑器 DTO
// =============================================================================

// VersionResponse 当前图的版本号（未加载时为 0）
type VersionResponse struct {
	Version int64 `json:"version"`
}

// DocumentResponse 工作流文档及其来源
type DocumentResponse struct {
	// 来源：active（运行中的图）、persisted（已保存文档）、empty
	Source   string             `json:"source" example:"active"`
	Version  int64              `json:"version"`
	Document *workflow.Document `json:"document"`
}

// LoadResponse 加载成功后的图信息
type LoadResponse struct {
	Version int64  `json:"version"`
	Name    string `json:"name,omitempty"`
	Nodes   int    `json:"nodes"`
	// 加载后是否同时持久化（?save=true）
	Saved    bool               `json:"saved"`
	Document *workflow.Document `json:"document"`
}

// SaveResponse 文档已保存
type SaveResponse struct {
	Saved bool `json:"saved"`
	Nodes int  `json:"nodes"`
}

// ValidateResponse 试加载结果
type ValidateResponse struct {
	Valid bool   `json:"valid"`
	Error string `json:"error,omitempty"`
	Node  string `json:"node,omitempty"`
	Field string `json:"field,omitempty"`
}

// ExecutionListResponse 最近的事件执行轨迹
type ExecutionListResponse struct {
	Executions []workflow.EventTrace `json:"executions"`
	Total      int                   `json:"total"`
}

// =============================================================================
// 错误类型
// =============================================================================

// ErrorResponse 错误响应
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail 错误详情
type ErrorDetail struct {
	Code       string `json:"code" example:"LOAD_FAILED"`
	Message    string `json:"message" example:"load workflow: node \"a\": unknown node type"`
	HTTPStatus int    `json:"http_status,omitempty" example:"422"`
	Retryable  bool   `json:"retryable,omitempty" example:"false"`
}
