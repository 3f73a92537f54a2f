// 版权所有 2024 NodeFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 metrics 提供基于 Prometheus 的指标采集能力，覆盖 HTTP、工作流引擎、
调度器、文档存储与数据库连接池。

# 概述

本包通过 Collector 统一注册和记录 Prometheus 指标，使用 promauto
自动注册机制，避免手动管理 Registry。所有指标按 namespace 隔离。
Collector 实现了 workflow.MetricsRecorder，可直接传给 workflow.NewEngine。

# 主要能力

  - HTTP 指标：请求总数、请求耗时、请求/响应体大小，状态码归类为 2xx/3xx/4xx/5xx。
  - 工作流指标：事件结果、节点执行次数与耗时、图加载结果、活动图节点数、
    观察者数量与丢弃的通知、SSE/WebSocket 推送连接数。
  - 调度器指标：按调度类型统计任务执行、拒绝与 panic。
  - 存储指标：按驱动统计 load/save/ping 次数与耗时。
  - 数据库指标：活跃/空闲连接数 Gauge。
*/
package metrics
