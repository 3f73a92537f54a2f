// Copyright (c) NodeFlow Authors.
// Licensed under the MIT License.

/*
Package main 提供 NodeFlow 服务端程序入口。

# 概述

cmd/nodeflow 把工作流引擎、文档存储与编辑器 HTTP API 组装为一个
可执行程序，并提供离线校验、节点目录、数据库迁移、健康检查和版本
查询等子命令。

# 核心类型

  - Server        - 组装遥测、指标、存储、引擎与 handlers，管理 API 与 Metrics 双端口
  - Middleware    - HTTP 中间件函数签名 func(http.Handler) http.Handler
  - Authenticator - 单一认证方式，Authenticate 组合多个，任一通过即放行

# 主要能力

  - 子命令：serve、validate、nodes、migrate、version、health
  - 中间件链：Recovery、RequestID、SecurityHeaders、RequestLogger、
    Metrics、OTelTracing、CORS、RateLimiter（基于 IP）、认证
    （X-API-Key / JWT Bearer）
  - 启动时加载已保存的工作流；file 存储可开启文档热重载
  - 优雅关闭：信号 → 关闭监听 → 停止 watcher → 关闭引擎 → 关闭存储 → 刷新遥测
  - 构建注入：Version、BuildTime、GitCommit 通过 ldflags 设置
*/
package main
