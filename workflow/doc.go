// Copyright (c) NodeFlow Authors.
// Licensed under the MIT License.

/*
Package workflow 提供基于节点图的事件驱动自动化引擎。

# 概述

一个工作流由若干节点组成，节点之间通过有序的输出槽位连接。发射器节点
（EventListener、Interval）在外部事件或定时器触发时创建 Event，Event
携带自己的变量表沿出边逐个节点传播。每个节点通过字段（Field）读取输入、
写入输出，并返回 Result 决定下一步：继续、选择分支、延迟继续或停止。

# 核心类型

  - Value / Kind          - 带类型标签的变量值
  - FieldDescriptor       - 字段描述（类型、单位、默认值、选项、约束）
  - Consumer / Producer   - 字段在运行时的读取端与写入端
  - NodeType / Registry   - 节点类型目录与工厂
  - Node / Base           - 节点生命周期（Unbound → Initialized → Running）
  - Event / Result        - 单次执行的变量作用域与传播指令
  - Scheduler / Handle    - 固定频率、固定延迟与一次性任务调度
  - Document / Graph      - 可序列化的图描述与运行中的图实例
  - Engine                - 原子安装、版本、持久化与观察者
  - HistoryStore          - 最近事件的执行轨迹

# 加载语义

Engine.Load 先完整构建并校验新图，再停止旧图、初始化新图；任何一步失败
都会保留旧图继续运行，错误以 LoadError 返回并指明节点与字段。
*/
package workflow
