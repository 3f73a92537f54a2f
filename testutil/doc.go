// Copyright 2026 NodeFlow Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license.

/*
Package testutil 提供 NodeFlow 测试的共享工具和辅助函数。

# 概述

testutil 本身只依赖标准库；fixtures 与 mocks 放在子包中。

# 核心能力

  - 上下文辅助: TestContext / TestContextWithTimeout，自动注册 Cleanup
  - 异步断言: AssertEventuallyTrue / AssertNeverTrue，用于文档热加载与推送流
  - 等待工具: WaitFor / WaitForChannel

# 子包

  - testutil/fixtures: 预置工作流文档（JSON / YAML）
  - testutil/mocks: MockDocumentStore（错误注入与调用记录）、
    MockPlayer（基于 testify/mock）

# 使用示例

	ctx := testutil.TestContext(t)
	s := mocks.NewMockDocumentStore().WithSaveError(errors.New("disk full"))
	engine := workflow.NewEngine(workflow.Options{Store: s})
*/
package testutil
