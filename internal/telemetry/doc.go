// Package telemetry 封装 OpenTelemetry SDK 初始化逻辑，
// 为 NodeFlow 的工作流引擎与 HTTP 服务提供 TracerProvider 和 MeterProvider。
// 当遥测功能禁用时使用 noop 实现，不连接任何外部服务。
package telemetry
