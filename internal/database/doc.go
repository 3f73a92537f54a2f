// 版权所有 2024 NodeFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 database 提供基于 GORM 的数据库连接池管理，供工作流文档的
SQL 存储后端使用。

# 核心类型

  - PoolManager：持有 GORM DB 与底层 sql.DB，提供 Ping、Stats、
    事务与带重试的事务。后台健康检查定时探活，并通过
    WithStatsHook 把连接数上报给 Prometheus。
  - PoolConfig：最大空闲/打开连接数、连接生命周期与健康检查间隔。

# 驱动

Dialector 按 database.driver 选择 postgres、mysql 或纯 Go 的
glebarez/sqlite 方言。SQLite 连接池固定为单连接。
*/
package database
