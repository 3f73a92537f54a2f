// =============================================================================
// 💾 MockDocumentStore - 工作流文档存储模拟实现
// =============================================================================
// 用于测试的文档存储模拟，支持错误注入和调用计数
//
// 使用方法:
//
//	st := mocks.NewMockDocumentStore().WithSaveError(errors.New("disk full"))
//	engine := workflow.NewEngine(workflow.Options{Store: st, ...})
// =============================================================================
package mocks

import (
	"context"
	"sync"

	"github.com/BaSui01/nodeflow/workflow"
)

// =============================================================================
// 🎯 MockDocumentStore 结构
// =============================================================================

// MockDocumentStore 是 store.Store 的模拟实现
type MockDocumentStore struct {
	mu sync.Mutex

	data []byte

	// 错误注入
	loadErr error
	saveErr error
	pingErr error

	// 调用记录
	loadCalls int
	saveCalls int
	pingCalls int
	closed    bool
}

// =============================================================================
// 🔧 构造函数和 Builder 方法
// =============================================================================

// NewMockDocumentStore 创建空的 MockDocumentStore
func NewMockDocumentStore() *MockDocumentStore {
	return &MockDocumentStore{}
}

// WithData 预设已保存的文档
func (m *MockDocumentStore) WithData(data []byte) *MockDocumentStore {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data = append([]byte(nil), data...)
	return m
}

// WithLoadError 设置 Load 方法的错误
func (m *MockDocumentStore) WithLoadError(err error) *MockDocumentStore {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loadErr = err
	return m
}

// WithSaveError 设置 Save 方法的错误
func (m *MockDocumentStore) WithSaveError(err error) *MockDocumentStore {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saveErr = err
	return m
}

// WithPingError 设置 Ping 方法的错误
func (m *MockDocumentStore) WithPingError(err error) *MockDocumentStore {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pingErr = err
	return m
}

// =============================================================================
// 🎯 Store 接口实现
// =============================================================================

// Load 返回已保存的文档，从未保存时返回 workflow.ErrDocumentNotFound
func (m *MockDocumentStore) Load(ctx context.Context) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.loadCalls++

	if m.loadErr != nil {
		return nil, m.loadErr
	}
	if m.data == nil {
		return nil, workflow.ErrDocumentNotFound
	}
	return append([]byte(nil), m.data...), nil
}

// Save 保存文档
func (m *MockDocumentStore) Save(ctx context.Context, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.saveCalls++

	if m.saveErr != nil {
		return m.saveErr
	}
	m.data = append([]byte{}, data...)
	return nil
}

func (m *MockDocumentStore) Driver() string { return "mock" }

func (m *MockDocumentStore) Ping(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pingCalls++
	return m.pingErr
}

func (m *MockDocumentStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// =============================================================================
// 📊 调用统计
// =============================================================================

// Data 返回当前保存的文档副本
func (m *MockDocumentStore) Data() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]byte(nil), m.data...)
}

// LoadCalls 获取 Load 调用次数
func (m *MockDocumentStore) LoadCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loadCalls
}

// SaveCalls 获取 Save 调用次数
func (m *MockDocumentStore) SaveCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saveCalls
}

// PingCalls 获取 Ping 调用次数
func (m *MockDocumentStore) PingCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pingCalls
}

// Closed 是否已调用 Close
func (m *MockDocumentStore) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}
