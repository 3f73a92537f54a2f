// 版权所有 2024 NodeFlow Authors. 保留所有权利。
// 此源代码的使用由 MIT 许可规范，该许可可以
// 在 LICENSE 文件中找到。

/*
Package handlers 提供 NodeFlow HTTP API 的请求处理器实现。

# 概述

handlers 包把工作流引擎暴露给外部编辑器：节点目录、字段自动补全、
文档读取/保存/加载/试加载、执行历史，以及 SSE 与 WebSocket 两种
实时通知流。所有 Handler 都是标准 net/http 处理函数，路由使用
Go 1.22 的方法+路径模式注册。

# 核心类型

  - WorkflowHandler - 工作流编辑器端点，Register 一次性挂载到 ServeMux
  - HealthHandler   - /health、/healthz、/ready、/version
  - Response        - 统一 JSON 响应结构（success + data + error + timestamp）
  - ResponseWriter  - 捕获状态码与字节数，透传 Flush/Hijack

# 错误映射

LoadError → 422 LOAD_FAILED；未知节点/字段 → 404 NOT_FOUND；
请求体问题 → 400 INVALID_REQUEST；存储失败 → 503 STORAGE_FAILED；
其余 → 500 INTERNAL_ERROR（不回显内部原因）。
*/
package handlers
