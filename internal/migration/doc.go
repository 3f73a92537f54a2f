// 版权所有 2024 NodeFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 migration 管理工作流文档表的 Schema 迁移，支持 PostgreSQL、
MySQL 与 SQLite，基于 golang-migrate 实现。

# 概述

各方言的 SQL 文件通过 embed.FS 内嵌（migrations/<方言>/），
创建 workflow_documents 与 workflow_revisions 两张表。
`nodeflow migrate` 子命令通过 CLI 调用本包；未使用迁移时，
SQL 存储后端也可以用 GORM AutoMigrate 建表。

# 核心类型

  - Migrator / DefaultMigrator：Up、Down、Goto、Force、Version、
    Status、Info、Close。
  - CLI：把子命令映射为迁移操作并格式化输出。

SQLite 使用纯 Go 的 glebarez/go-sqlite 连接，由 golang-migrate 的
sqlite3 驱动包装，不依赖 cgo。
*/
package migration
