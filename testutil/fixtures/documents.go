// =============================================================================
// 📄 工作流文档样例
// =============================================================================
// 供 handlers、store、命令行测试复用的文档
//
// 使用方法:
//
//	_, err := engine.LoadBytes(ctx, []byte(fixtures.GreeterDocument))
// =============================================================================
package fixtures

// GreeterDocument 玩家加入时写一条日志（2 个节点）
const GreeterDocument = `{
  "name": "greeter",
  "nodes": [
    {"id": "join", "type": "event_listener", "fields": {"event": "player.join"}, "outputs": ["log"]},
    {"id": "log", "type": "log", "fields": {"message": "hello"}}
  ]
}`

// GreeterYAML 与 GreeterDocument 相同的 YAML 形式
const GreeterYAML = `name: greeter
nodes:
  - id: join
    type: event_listener
    fields:
      event: player.join
    outputs: [log]
  - id: log
    type: log
    fields:
      message: hello
`

// CoinFlipDocument 每 50ms 掷一次硬币，按结果分支到两个日志节点（5 个节点）
const CoinFlipDocument = `{
  "name": "coin-flip",
  "nodes": [
    {"id": "tick", "type": "interval", "fields": {"interval": "50ms", "type": "DELAY"}, "outputs": ["roll"]},
    {"id": "roll", "type": "random", "fields": {"output": "coin"}, "outputs": ["branch"]},
    {"id": "branch", "type": "condition", "fields": {"expression": "coin >= 0.5"}, "outputs": ["heads", "tails"]},
    {"id": "heads", "type": "log", "fields": {"message": "heads"}},
    {"id": "tails", "type": "log", "fields": {"message": "tails"}}
  ]
}`

// DelayedGreetingDocument 玩家加入 100ms 后发送聊天（3 个节点）
const DelayedGreetingDocument = `{
  "name": "delayed-greeting",
  "nodes": [
    {"id": "join", "type": "event_listener", "fields": {"event": "player.join"}, "outputs": ["pause"]},
    {"id": "pause", "type": "wait", "fields": {"second": "100ms"}, "outputs": ["say"]},
    {"id": "say", "type": "send_chat", "fields": {"player": {"variable": "event"}, "message": "welcome back"}}
  ]
}`

// EmptyDocument 没有节点的文档
const EmptyDocument = `{"nodes":[]}`

// UnknownTypeDocument 引用未注册节点类型，加载失败
const UnknownTypeDocument = `{"nodes":[{"id":"x","type":"teleport"}]}`

// DanglingOutputDocument 输出指向不存在的节点，加载失败
const DanglingOutputDocument = `{"nodes":[{"id":"log","type":"log","fields":{"message":"hi"},"outputs":["ghost"]}]}`
