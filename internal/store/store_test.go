package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/BaSui01/nodeflow/config"
	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const sampleDoc = `{"nodes":[{"id":"a","type":"Log","fields":{"message":"hi"}}],"connections":[]}`

type opRecord struct {
	driver, op string
	err        error
}

type fakeRecorder struct {
	mu  sync.Mutex
	ops []opRecord
	db  int
}

func (f *fakeRecorder) RecordStoreOperation(driver, op string, err error, _ time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ops = append(f.ops, opRecord{driver, op, err})
}

func (f *fakeRecorder) RecordDBConnections(string, int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.db++
}

func (f *fakeRecorder) snapshot() []opRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]opRecord(nil), f.ops...)
}

// exerciseStore runs the behaviour every backend shares.
func exerciseStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	_, err := s.Load(ctx)
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.Save(ctx, []byte(sampleDoc)))
	got, err := s.Load(ctx)
	require.NoError(t, err)
	assert.JSONEq(t, sampleDoc, string(got))

	require.NoError(t, s.Save(ctx, []byte(`{"nodes":[],"connections":[]}`)))
	got, err = s.Load(ctx)
	require.NoError(t, err)
	assert.JSONEq(t, `{"nodes":[],"connections":[]}`, string(got))

	assert.NoError(t, s.Ping(ctx))
}

func TestMemory(t *testing.T) {
	m := NewMemory()
	exerciseStore(t, m)
	assert.Equal(t, "memory", m.Driver())
	assert.NoError(t, m.Close())
}

func TestMemory_SaveCopiesInput(t *testing.T) {
	m := NewMemory()
	buf := []byte(`{"a":1}`)
	require.NoError(t, m.Save(context.Background(), buf))
	buf[2] = 'b'
	got, err := m.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, string(got))
}

func TestFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "workflow.json")
	f, err := NewFile(path)
	require.NoError(t, err)
	assert.Equal(t, "file", f.Driver())
	assert.Equal(t, path, f.Path())
	exerciseStore(t, f)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	require.Len(t, entries, 1, "temporary files must not be left behind")
	assert.Equal(t, "workflow.json", entries[0].Name())
}

func TestFile_YAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "workflow.yaml")
	f, err := NewFile(path)
	require.NoError(t, err)
	require.NoError(t, f.Save(context.Background(), []byte(sampleDoc)))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotEqual(t, byte('{'), raw[0])
	assert.Contains(t, string(raw), "nodes:")
}

func TestFile_SaveHonoursContext(t *testing.T) {
	f, err := NewFile(filepath.Join(t.TempDir(), "workflow.json"))
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, f.Save(ctx, []byte(sampleDoc)), context.Canceled)
}

func TestNewFile_RequiresPath(t *testing.T) {
	_, err := NewFile("")
	assert.Error(t, err)
}

func TestRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := config.DefaultRedisConfig()
	cfg.Addr = mr.Addr()

	r, err := NewRedis(cfg, "main", zaptest.NewLogger(t))
	require.NoError(t, err)
	defer r.Close()

	assert.Equal(t, "redis", r.Driver())
	assert.Equal(t, "nodeflow:workflow:main", r.Key())
	exerciseStore(t, r)

	rev, err := r.Revision(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), rev)
	assert.True(t, mr.Exists("nodeflow:workflow:main"))
}

func TestRedis_ConnectFailure(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := config.DefaultRedisConfig()
	cfg.Addr = mr.Addr()
	mr.Close()

	_, err := NewRedis(cfg, "main", nil)
	assert.Error(t, err)
}

func TestRedis_LoadError(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := config.DefaultRedisConfig()
	cfg.Addr = mr.Addr()
	r, err := NewRedis(cfg, "", nil)
	require.NoError(t, err)
	defer r.Close()

	mr.SetError("ERR backend unavailable")
	_, err = r.Load(context.Background())
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrNotFound))
}

func TestOpen(t *testing.T) {
	t.Run("memory", func(t *testing.T) {
		cfg := config.DefaultConfig()
		cfg.Store.Driver = "memory"
		cfg.Store.Timeout = 0
		s, err := Open(cfg, nil, zaptest.NewLogger(t))
		require.NoError(t, err)
		assert.IsType(t, &Memory{}, s)
	})

	t.Run("file with timeout is instrumented", func(t *testing.T) {
		cfg := config.DefaultConfig()
		cfg.Store.Path = filepath.Join(t.TempDir(), "wf.json")
		s, err := Open(cfg, nil, nil)
		require.NoError(t, err)
		require.IsType(t, &instrumented{}, s)
		assert.IsType(t, &File{}, s.(*instrumented).Unwrap())
		assert.Equal(t, "file", s.Driver())
	})

	t.Run("database", func(t *testing.T) {
		cfg := config.DefaultConfig()
		cfg.Store.Driver = "database"
		cfg.Database.Driver = "sqlite"
		cfg.Database.Name = filepath.Join(t.TempDir(), "nodeflow.db")
		rec := &fakeRecorder{}
		s, err := Open(cfg, rec, nil)
		require.NoError(t, err)
		defer s.Close()
		exerciseStore(t, s)
		assert.NotEmpty(t, rec.snapshot())
	})

	t.Run("redis", func(t *testing.T) {
		mr := miniredis.RunT(t)
		cfg := config.DefaultConfig()
		cfg.Store.Driver = "redis"
		cfg.Redis.Addr = mr.Addr()
		s, err := Open(cfg, nil, nil)
		require.NoError(t, err)
		defer s.Close()
		assert.Equal(t, "redis", s.Driver())
	})

	t.Run("unknown driver", func(t *testing.T) {
		cfg := config.DefaultConfig()
		cfg.Store.Driver = "etcd"
		_, err := Open(cfg, nil, nil)
		assert.ErrorContains(t, err, "unsupported store driver")
	})
}

type slowStore struct {
	Memory
}

func (s *slowStore) Save(ctx context.Context, _ []byte) error {
	<-ctx.Done()
	return ctx.Err()
}

func TestInstrument(t *testing.T) {
	rec := &fakeRecorder{}
	s := Instrument(NewMemory(), rec, time.Second)
	ctx := context.Background()

	_, err := s.Load(ctx)
	require.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, s.Save(ctx, []byte(sampleDoc)))
	require.NoError(t, s.Ping(ctx))

	ops := rec.snapshot()
	require.Len(t, ops, 3)
	assert.Equal(t, opRecord{"memory", "load", nil}, ops[0])
	assert.Equal(t, opRecord{"memory", "save", nil}, ops[1])
	assert.Equal(t, opRecord{"memory", "ping", nil}, ops[2])
}

func TestInstrument_Timeout(t *testing.T) {
	rec := &fakeRecorder{}
	s := Instrument(&slowStore{}, rec, 20*time.Millisecond)

	err := s.Save(context.Background(), []byte(sampleDoc))
	require.ErrorIs(t, err, context.DeadlineExceeded)
	ops := rec.snapshot()
	require.Len(t, ops, 1)
	assert.ErrorIs(t, ops[0].err, context.DeadlineExceeded)
}
