// Copyright (c) NodeFlow Authors.
// Licensed under the MIT License.

/*
Package types 提供 nodeflow 各层共享的基础类型。

types 不依赖任何内部包，供 workflow、api、cmd 使用：

  - Error / ErrorCode - 结构化错误，含 HTTP 状态码与 Retryable 标记
  - Context 传播：WithRequestID / WithUserID / WithRoles / WithEventID
*/
package types
