// 版权所有 2024 NodeFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 server 提供 HTTP/HTTPS 服务器生命周期管理。

# 概述

Manager 封装 net/http.Server，统一管理监听、服务、关闭与错误传播。
nodeflow 进程同时运行两个 Manager：工作流 API 与 Prometheus metrics，
二者由 errgroup 托管，任一失败或收到信号时一起优雅关闭。

# 核心类型

  - Manager：持有 http.Server、net.Listener 与异步错误通道，
    提供 Start/Run/Shutdown 生命周期方法。
  - Config：监听地址、读写与空闲超时、最大请求头大小、
    优雅关闭超时以及可选的 *tls.Config。

# 主要能力

  - 非阻塞启动：Start 在后台 goroutine 中运行服务。
  - 阻塞运行：Run 直到 context 结束或服务失败，再执行优雅关闭。
  - TLS：Config.TLS 非空时使用 tls.NewListener 包装监听。
  - 状态查询：Addr 返回实际监听地址（便于 :0 随机端口）。
*/
package server
