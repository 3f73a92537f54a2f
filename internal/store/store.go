package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/BaSui01/nodeflow/config"
	"github.com/BaSui01/nodeflow/internal/database"
	"github.com/BaSui01/nodeflow/workflow"
	"go.uber.org/zap"
)

// ErrNotFound is returned by Load when nothing was saved yet.
var ErrNotFound = workflow.ErrDocumentNotFound

// Store persists the editor's workflow document.
type Store interface {
	workflow.DocumentStore
	// Driver names the backend for logs and metrics.
	Driver() string
	Ping(ctx context.Context) error
	Close() error
}

// Recorder receives per-operation store metrics.
type Recorder interface {
	RecordStoreOperation(driver, operation string, err error, duration time.Duration)
}

// DBStatsRecorder receives connection pool gauges of the SQL backend.
type DBStatsRecorder interface {
	RecordDBConnections(database string, open, idle int)
}

// Open builds the backend selected by cfg.Store.Driver. rec may be nil.
func Open(cfg *config.Config, rec Recorder, logger *zap.Logger) (Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	var (
		s   Store
		err error
	)
	switch cfg.Store.Driver {
	case "memory":
		s = NewMemory()
	case "file":
		s, err = NewFile(cfg.Store.Path)
	case "database":
		var opts []database.PoolOption
		if dbRec, ok := rec.(DBStatsRecorder); ok {
			driver := cfg.Database.Driver
			opts = append(opts, database.WithStatsHook(func(st database.PoolStats) {
				dbRec.RecordDBConnections(driver, st.OpenConnections, st.Idle)
			}))
		}
		var pool *database.PoolManager
		pool, err = database.Open(cfg.Database, logger, opts...)
		if err != nil {
			break
		}
		s, err = NewSQL(pool, SQLOptions{Name: cfg.Store.Name, AutoMigrate: cfg.Database.AutoMigrate}, logger)
		if err != nil {
			_ = pool.Close()
		}
	case "redis":
		s, err = NewRedis(cfg.Redis, cfg.Store.Name, logger)
	default:
		err = fmt.Errorf("unsupported store driver %q", cfg.Store.Driver)
	}
	if err != nil {
		return nil, err
	}

	logger.Info("workflow store opened",
		zap.String("component", "store"),
		zap.String("driver", s.Driver()))

	if cfg.Store.Timeout > 0 || rec != nil {
		s = Instrument(s, rec, cfg.Store.Timeout)
	}
	return s, nil
}

// Instrument wraps s with a per-operation timeout and metrics.
func Instrument(s Store, rec Recorder, timeout time.Duration) Store {
	return &instrumented{Store: s, rec: rec, timeout: timeout}
}

type instrumented struct {
	Store
	rec     Recorder
	timeout time.Duration
}

func (i *instrumented) do(ctx context.Context, op string, fn func(context.Context) error) error {
	if i.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, i.timeout)
		defer cancel()
	}
	start := time.Now()
	err := fn(ctx)
	if i.rec != nil {
		// 未保存过文档不是存储故障
		recErr := err
		if op == "load" && errors.Is(err, ErrNotFound) {
			recErr = nil
		}
		i.rec.RecordStoreOperation(i.Store.Driver(), op, recErr, time.Since(start))
	}
	return err
}

func (i *instrumented) Load(ctx context.Context) ([]byte, error) {
	var data []byte
	err := i.do(ctx, "load", func(ctx context.Context) error {
		var err error
		data, err = i.Store.Load(ctx)
		return err
	})
	return data, err
}

func (i *instrumented) Save(ctx context.Context, data []byte) error {
	return i.do(ctx, "save", func(ctx context.Context) error { return i.Store.Save(ctx, data) })
}

func (i *instrumented) Ping(ctx context.Context) error {
	return i.do(ctx, "ping", i.Store.Ping)
}

// Unwrap returns the wrapped backend.
func (i *instrumented) Unwrap() Store { return i.Store }
