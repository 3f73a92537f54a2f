// =============================================================================
// NodeFlow 主入口
// =============================================================================
// 完整服务入口点，包含工作流引擎、编辑器 HTTP API、健康检查、Prometheus 指标
//
// 使用方法:
//
//	nodeflow serve                        # 启动服务
//	nodeflow serve --config config.yaml   # 指定配置文件
//	nodeflow validate workflow.json       # 离线校验工作流文档
//	nodeflow nodes                        # 列出节点类型
//	nodeflow version                      # 显示版本信息
//	nodeflow health                       # 健康检查
//	nodeflow migrate up                   # 运行数据库迁移
//	nodeflow migrate status               # 查看迁移状态
// =============================================================================

package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/BaSui01/nodeflow/config"
	"github.com/BaSui01/nodeflow/host"
	"github.com/BaSui01/nodeflow/internal/migration"
	"github.com/BaSui01/nodeflow/internal/tlsutil"
	"github.com/BaSui01/nodeflow/workflow"
	"github.com/BaSui01/nodeflow/workflow/nodes"
)

// =============================================================================
// 📦 版本信息（构建时注入）
// =============================================================================

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// =============================================================================
// 🎯 主函数
// =============================================================================

func main() {
	if len(os.Args) < 2 {
		printUsage(os.Stdout)
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(os.Args[2:])
	case "validate":
		err = runValidate(os.Args[2:], os.Stdout)
	case "nodes":
		err = runNodes(os.Stdout)
	case "migrate":
		err = runMigrate(os.Args[2:])
	case "version":
		printVersion(os.Stdout)
	case "health":
		err = runHealthCheck(os.Args[2:], os.Stdout)
	case "help", "-h", "--help":
		printUsage(os.Stdout)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		printUsage(os.Stderr)
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// =============================================================================
// 🖥️ serve 命令
// =============================================================================

func runServe(args []string) error {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	_ = fs.Parse(args)

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}

	logger := initLogger(cfg.Log)
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting NodeFlow",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
		zap.String("git_commit", GitCommit),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv, err := NewServer(cfg, logger)
	if err != nil {
		return err
	}
	if err := srv.Run(ctx); err != nil {
		logger.Error("NodeFlow stopped with error", zap.Error(err))
		return err
	}
	logger.Info("NodeFlow stopped")
	return nil
}

// loadConfig 加载并验证配置
func loadConfig(path string) (*config.Config, error) {
	loader := config.NewLoader()
	if path != "" {
		loader = loader.WithConfigPath(path)
	}
	cfg, err := loader.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// =============================================================================
// ✅ validate / nodes 命令
// =============================================================================

// runValidate 离线构建文档，不安装、不订阅任何宿主事件
func runValidate(args []string, out io.Writer) error {
	if len(args) != 1 {
		return errors.New("usage: nodeflow validate <file>")
	}
	doc, err := workflow.LoadDocumentFile(args[0])
	if err != nil {
		return err
	}

	engine := workflow.NewEngine(workflow.Options{
		Registry: nodes.Registry(),
		Host:     host.NewLocal(nil),
	})
	defer engine.Close()

	if err := engine.Validate(doc); err != nil {
		return err
	}
	fmt.Fprintf(out, "%s: OK (%d nodes)\n", args[0], len(doc.Nodes))
	return nil
}

func runNodes(out io.Writer) error {
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TYPE\tGROUP\tFIELDS\tOUTPUTS")
	for _, t := range nodes.Registry().List() {
		info := t.Info()
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\n", info.Name, info.Group, len(info.Fields), info.DefaultOutputCount)
	}
	return tw.Flush()
}

// =============================================================================
// 🗄️ migrate 命令
// =============================================================================

func runMigrate(args []string) error {
	fs := flag.NewFlagSet("migrate", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	_ = fs.Parse(args)

	cfg, err := config.NewLoader().WithConfigPath(*configPath).Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	m, err := migration.NewMigratorFromDatabaseConfig(cfg.Database)
	if err != nil {
		return err
	}
	defer m.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return migration.NewCLI(m).Run(ctx, fs.Args())
}

// =============================================================================
// 🏥 健康检查命令
// =============================================================================

func runHealthCheck(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("health", flag.ExitOnError)
	addr := fs.String("addr", "http://localhost:8080", "Server address")
	insecure := fs.Bool("insecure", false, "Skip TLS certificate verification")
	_ = fs.Parse(args)

	client := tlsutil.SecureHTTPClient(5*time.Second, *insecure)
	resp, err := client.Get(*addr + "/health")
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check failed: status %d", resp.StatusCode)
	}

	fmt.Fprintln(out, "OK")
	return nil
}

// =============================================================================
// 📋 版本和帮助
// =============================================================================

func printVersion(out io.Writer) {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	_ = enc.Encode(map[string]string{
		"version":    Version,
		"build_time": BuildTime,
		"git_commit": GitCommit,
	})
}

func printUsage(out io.Writer) {
	fmt.Fprintln(out, `NodeFlow - Event-driven workflow engine

Usage:
  nodeflow <command> [options]

Commands:
  serve      Start the NodeFlow server
  validate   Validate a workflow document without loading it
  nodes      List the registered node types
  migrate    Database migration commands
  version    Show version information
  health     Check server health
  help       Show this help message

Options for 'serve':
  --config <path>   Path to configuration file (YAML)

Migration subcommands:
  migrate [--config <path>] up         Apply all pending migrations
  migrate [--config <path>] down       Rollback the last migration
  migrate [--config <path>] status     Show migration status
  migrate [--config <path>] version    Show current migration version
  migrate [--config <path>] info       Show migration summary
  migrate [--config <path>] goto <v>   Migrate to a specific version
  migrate [--config <path>] force <v>  Force set migration version

Examples:
  nodeflow serve --config /etc/nodeflow/config.yaml
  nodeflow validate workflow.yaml
  nodeflow migrate --config config.yaml up
  nodeflow health --addr http://localhost:8080`)
}

// =============================================================================
// 🔧 日志初始化
// =============================================================================

func initLogger(cfg config.LogConfig) *zap.Logger {
	var level zapcore.Level
	switch cfg.Level {
	case "debug":
		level = zapcore.DebugLevel
	case "warn":
		level = zapcore.WarnLevel
	case "error":
		level = zapcore.ErrorLevel
	default:
		level = zapcore.InfoLevel
	}

	var encoderConfig zapcore.EncoderConfig
	encoding := "json"
	if cfg.Format == "console" {
		encoding = "console"
		encoderConfig = zap.NewDevelopmentEncoderConfig()
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		encoderConfig = zap.NewProductionEncoderConfig()
		encoderConfig.TimeKey = "timestamp"
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	outputs := cfg.OutputPaths
	if len(outputs) == 0 {
		outputs = []string{"stdout"}
	}

	zapConfig := zap.Config{
		Level:             zap.NewAtomicLevelAt(level),
		Development:       encoding == "console",
		Encoding:          encoding,
		EncoderConfig:     encoderConfig,
		OutputPaths:       outputs,
		ErrorOutputPaths:  []string{"stderr"},
		DisableCaller:     !cfg.EnableCaller,
		DisableStacktrace: !cfg.EnableStacktrace,
	}

	logger, err := zapConfig.Build()
	if err != nil {
		// 回退到基本 logger
		logger, _ = zap.NewProduction()
	}
	return logger
}
