// Package pool 提供有界的 goroutine 工作池，供调度器执行定时任务。
package pool
