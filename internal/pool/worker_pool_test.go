package pool

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/nodeflow/testutil"
)

func TestWorkerPool_RunsTasks(t *testing.T) {
	p := New(Config{MaxWorkers: 4, QueueSize: 64}, nil)
	defer p.Close()

	var wg sync.WaitGroup
	var count atomic.Int32
	for i := 0; i < 20; i++ {
		wg.Add(1)
		require.NoError(t, p.Submit(Task{Name: "inc", Run: func() {
			defer wg.Done()
			count.Add(1)
		}}))
	}
	wg.Wait()

	assert.Equal(t, int32(20), count.Load())
	assert.LessOrEqual(t, p.Stats().Workers, 4)
}

func TestWorkerPool_PanicHandler(t *testing.T) {
	got := make(chan string, 1)
	p := New(Config{MaxWorkers: 1, QueueSize: 4, PanicHandler: func(task string, r any) {
		got <- task
	}}, nil)
	defer p.Close()

	require.NoError(t, p.Submit(Task{Name: "boom", Run: func() { panic("x") }}))

	name, ok := testutil.WaitForChannel(got, time.Second)
	require.True(t, ok, "panic handler not called")
	assert.Equal(t, "boom", name)

	// worker 在 panic 后仍然可用
	done := make(chan struct{})
	require.NoError(t, p.Submit(Task{Name: "ok", Run: func() { close(done) }}))
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("pool stopped after panic")
	}
	assert.Equal(t, int64(1), p.Stats().Panicked)
}

func TestWorkerPool_QueueFull(t *testing.T) {
	block := make(chan struct{})
	p := New(Config{MaxWorkers: 1, QueueSize: 1}, nil)
	defer func() {
		close(block)
		p.Close()
	}()

	started := make(chan struct{})
	require.NoError(t, p.Submit(Task{Name: "block", Run: func() {
		close(started)
		<-block
	}}))
	<-started
	require.NoError(t, p.Submit(Task{Name: "queued", Run: func() {}}))

	err := p.Submit(Task{Name: "overflow", Run: func() {}})
	assert.ErrorIs(t, err, ErrPoolFull)
	assert.Equal(t, int64(1), p.Stats().Rejected)
}

func TestWorkerPool_SubmitAfterClose(t *testing.T) {
	p := New(DefaultConfig(), nil)
	p.Close()
	p.Close()

	assert.ErrorIs(t, p.Submit(Task{Name: "late", Run: func() {}}), ErrPoolClosed)
}
