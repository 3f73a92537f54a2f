// Package config 提供 NodeFlow 的配置管理功能。
//
// 配置按 默认值 → YAML 文件 → NODEFLOW_ 前缀环境变量 的顺序叠加，
// FileWatcher 负责监听工作流文档文件并在内容变化时触发重载。
package config
