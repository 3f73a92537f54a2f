package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/BaSui01/nodeflow/api/handlers"
	"github.com/BaSui01/nodeflow/config"
	"github.com/BaSui01/nodeflow/host"
	"github.com/BaSui01/nodeflow/internal/metrics"
	"github.com/BaSui01/nodeflow/internal/pool"
	"github.com/BaSui01/nodeflow/internal/server"
	"github.com/BaSui01/nodeflow/internal/store"
	"github.com/BaSui01/nodeflow/internal/telemetry"
	"github.com/BaSui01/nodeflow/internal/tlsutil"
	"github.com/BaSui01/nodeflow/workflow"
	"github.com/BaSui01/nodeflow/workflow/nodes"
)

// =============================================================================
// 🖥️ Server 结构
// =============================================================================

// metricsNamespace Prometheus 指标前缀
var metricsNamespace = "nodeflow"

// Server 是 NodeFlow 的主服务器
type Server struct {
	cfg    *config.Config
	logger *zap.Logger

	telemetry *telemetry.Providers
	collector *metrics.Collector
	store     store.Store
	host      *host.Local
	engine    *workflow.Engine

	healthHandler   *handlers.HealthHandler
	workflowHandler *handlers.WorkflowHandler

	// 服务器管理器
	httpConfig     server.Config
	httpManager    *server.Manager
	metricsManager *server.Manager

	watcher *config.FileWatcher
}

// NewServer 创建服务器并初始化全部组件，失败时释放已创建的资源
func NewServer(cfg *config.Config, logger *zap.Logger) (*Server, error) {
	s := &Server{cfg: cfg, logger: logger}
	if err := s.init(); err != nil {
		s.close(context.Background())
		return nil, err
	}
	return s, nil
}

// =============================================================================
// 🔧 初始化流程
// =============================================================================

func (s *Server) init() error {
	var err error

	// 1. OpenTelemetry
	s.telemetry, err = telemetry.Init(s.cfg.Telemetry, Version, s.logger)
	if err != nil {
		// Providers 为 nil 时 Tracer 回退到全局 provider
		s.logger.Warn("failed to initialize telemetry, tracing disabled", zap.Error(err))
	}

	// 2. 指标收集器
	s.collector = metrics.NewCollector(metricsNamespace, s.logger)

	// 3. 文档存储
	s.store, err = store.Open(s.cfg, s.collector, s.logger)
	if err != nil {
		return fmt.Errorf("failed to open workflow store: %w", err)
	}

	// 4. 工作流引擎
	s.host = host.NewLocal(s.logger)
	s.engine = workflow.NewEngine(workflow.Options{
		Registry: nodes.Registry(),
		Host:     s.host,
		Store:    s.store,
		Logger:   s.logger,
		Metrics:  s.collector,
		Tracer:   s.telemetry.Tracer("nodeflow/workflow"),
		Scheduler: workflow.SchedulerConfig{Pool: pool.Config{
			MaxWorkers: s.cfg.Workflow.SchedulerWorkers,
			QueueSize:  s.cfg.Workflow.SchedulerQueueSize,
		}},
		MaxHops:     s.cfg.Workflow.MaxHops,
		HistorySize: s.cfg.Workflow.HistorySize,
	})

	// 5. Handlers
	s.initHandlers()

	// 6. HTTP 服务器
	if err := s.initHTTPServer(); err != nil {
		return err
	}
	s.initMetricsServer()
	return nil
}

// initHandlers 初始化所有 handlers
func (s *Server) initHandlers() {
	s.healthHandler = handlers.NewHealthHandler(s.logger)
	s.healthHandler.RegisterCheck(handlers.NewPingCheck("store:"+s.store.Driver(), s.store.Ping))

	opts := []handlers.WorkflowOption{
		handlers.WithStreamMetrics(s.collector),
		handlers.WithStreamBuffer(s.cfg.Workflow.StreamBuffer),
	}
	if len(s.cfg.Server.CORSAllowedOrigins) > 0 {
		opts = append(opts, handlers.WithOriginPatterns(s.cfg.Server.CORSAllowedOrigins...))
	}
	s.workflowHandler = handlers.NewWorkflowHandler(s.engine, s.logger, opts...)

	s.logger.Info("Handlers initialized")
}

// =============================================================================
// 🌐 HTTP 服务器
// =============================================================================

// skipAuthPaths 不需要认证的探活端点
var skipAuthPaths = []string{"/health", "/healthz", "/ready", "/readyz", "/version", "/metrics"}

// routes 构建 API 路由
func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.healthHandler.HandleHealth)
	mux.HandleFunc("GET /healthz", s.healthHandler.HandleHealth)
	mux.HandleFunc("GET /ready", s.healthHandler.HandleReady)
	mux.HandleFunc("GET /readyz", s.healthHandler.HandleReady)
	mux.HandleFunc("GET /version", s.healthHandler.HandleVersion(Version, BuildTime, GitCommit))

	s.workflowHandler.Register(mux)
	return mux
}

// buildHandler 组装中间件链；ctx 控制限流器清理协程的生命周期
func (s *Server) buildHandler(ctx context.Context, mux http.Handler) http.Handler {
	chain := []Middleware{
		Recovery(s.logger),
		RequestID(),
		SecurityHeaders(),
		RequestLogger(s.logger),
		MetricsMiddleware(s.collector),
		OTelTracing(s.telemetry.Tracer("nodeflow/http")),
		CORS(s.cfg.Server.CORSAllowedOrigins),
	}
	if s.cfg.Server.RateLimitRPS > 0 {
		chain = append(chain, RateLimiter(ctx, float64(s.cfg.Server.RateLimitRPS), s.cfg.Server.RateLimitBurst, s.logger))
	}
	// 两种认证同时配置时任一通过即可
	var auths []Authenticator
	if len(s.cfg.Server.APIKeys) > 0 {
		auths = append(auths, APIKeyAuthenticator(s.cfg.Server.APIKeys, s.cfg.Server.AllowQueryAPIKey))
	}
	if s.cfg.Server.JWT.Enabled() {
		auths = append(auths, JWTAuthenticator(s.cfg.Server.JWT, s.logger))
	}
	if len(auths) > 0 {
		chain = append(chain, Authenticate(skipAuthPaths, s.logger, auths...))
	} else {
		s.logger.Warn("no API keys or JWT secret configured, editor API is unauthenticated")
	}
	return Chain(mux, chain...)
}

// initHTTPServer 准备 API 监听配置；handler 依赖运行期 ctx，在 Run 中组装
func (s *Server) initHTTPServer() error {
	s.httpConfig = server.Config{
		Name:            "api",
		Addr:            fmt.Sprintf(":%d", s.cfg.Server.HTTPPort),
		ReadTimeout:     s.cfg.Server.ReadTimeout,
		WriteTimeout:    s.cfg.Server.WriteTimeout,
		IdleTimeout:     2 * s.cfg.Server.ReadTimeout,
		MaxHeaderBytes:  1 << 20, // 1 MB
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
	}
	if s.cfg.Server.TLSCertFile != "" {
		tlsConfig, err := tlsutil.ServerTLSConfig(s.cfg.Server.TLSCertFile, s.cfg.Server.TLSKeyFile)
		if err != nil {
			return fmt.Errorf("failed to load TLS certificate: %w", err)
		}
		s.httpConfig.TLS = tlsConfig
	}
	return nil
}

// =============================================================================
// 📊 Metrics 服务器
// =============================================================================

func (s *Server) initMetricsServer() {
	if s.cfg.Server.MetricsPort == 0 {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	s.metricsManager = server.NewManager(mux, server.Config{
		Name:            "metrics",
		Addr:            fmt.Sprintf(":%d", s.cfg.Server.MetricsPort),
		ReadTimeout:     s.cfg.Server.ReadTimeout,
		WriteTimeout:    s.cfg.Server.WriteTimeout,
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
	}, s.logger)
}

// =============================================================================
// 🚀 运行
// =============================================================================

// Run 加载已保存的工作流，启动全部监听，阻塞直到 ctx 结束后优雅关闭
func (s *Server) Run(ctx context.Context) error {
	defer s.close(ctx)

	if s.cfg.Workflow.LoadOnStart {
		s.loadPersisted(ctx)
	}

	if s.cfg.Workflow.Watch {
		if err := s.startWatcher(ctx); err != nil {
			return err
		}
	}

	g, gctx := errgroup.WithContext(ctx)

	s.httpManager = server.NewManager(s.buildHandler(gctx, s.routes()), s.httpConfig, s.logger)
	g.Go(func() error { return s.httpManager.Run(gctx) })
	if s.metricsManager != nil {
		g.Go(func() error { return s.metricsManager.Run(gctx) })
	}

	s.logger.Info("All servers started",
		zap.Int("http_port", s.cfg.Server.HTTPPort),
		zap.Int("metrics_port", s.cfg.Server.MetricsPort),
		zap.String("store", s.store.Driver()),
		zap.Bool("watch", s.cfg.Workflow.Watch),
	)
	return g.Wait()
}

// loadPersisted 启动时安装已保存的文档；没有文档或文档无效都不阻止启动
func (s *Server) loadPersisted(ctx context.Context) {
	g, err := s.engine.LoadPersisted(ctx)
	switch {
	case errors.Is(err, workflow.ErrDocumentNotFound):
		s.logger.Info("no saved workflow, starting with an empty graph")
	case err != nil:
		s.logger.Error("failed to load saved workflow", zap.Error(err))
	default:
		s.logger.Info("saved workflow loaded",
			zap.Int("nodes", g.Len()),
			zap.Int64("version", g.Version()))
	}
}

// startWatcher 文件存储的文档被外部修改时自动重载
func (s *Server) startWatcher(ctx context.Context) error {
	w, err := config.NewFileWatcher([]string{s.cfg.Store.Path},
		config.WithPollInterval(s.cfg.Workflow.WatchInterval),
		config.WithWatcherLogger(s.logger))
	if err != nil {
		return fmt.Errorf("failed to create document watcher: %w", err)
	}
	w.OnChange(func(ev config.FileEvent) {
		if ev.Op == config.FileOpRemove {
			s.logger.Warn("workflow document removed, keeping active graph", zap.String("path", ev.Path))
			return
		}
		if _, err := s.engine.LoadBytes(ctx, ev.Data); err != nil {
			s.logger.Error("failed to reload workflow document", zap.String("path", ev.Path), zap.Error(err))
			return
		}
		s.logger.Info("workflow document reloaded", zap.String("path", ev.Path))
	})
	if err := w.Start(ctx); err != nil {
		return fmt.Errorf("failed to start document watcher: %w", err)
	}
	s.watcher = w
	return nil
}

// =============================================================================
// 🛑 关闭流程
// =============================================================================

// close 按依赖逆序释放资源：watcher → 引擎 → 存储 → 遥测
func (s *Server) close(ctx context.Context) {
	s.logger.Info("Starting graceful shutdown...")

	var errs []error
	if s.watcher != nil {
		errs = append(errs, s.watcher.Stop())
	}
	if s.engine != nil {
		s.engine.Close()
	}
	if s.store != nil {
		errs = append(errs, s.store.Close())
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	errs = append(errs, s.telemetry.Shutdown(shutdownCtx))

	if err := errors.Join(errs...); err != nil {
		s.logger.Error("shutdown completed with errors", zap.Error(err))
		return
	}
	s.logger.Info("Graceful shutdown completed")
}
