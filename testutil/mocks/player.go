package mocks

import (
	"github.com/stretchr/testify/mock"
)

// MockPlayer 是 host.Player 的 testify 模拟实现
//
//	p := mocks.NewMockPlayer("p1", "alice", "en_us")
//	p.On("SendMessage", "hi").Return(nil)
type MockPlayer struct {
	mock.Mock

	id, name, locale string
}

// NewMockPlayer 创建带固定身份的 MockPlayer；SendMessage 需通过 On 设置
func NewMockPlayer(id, name, locale string) *MockPlayer {
	return &MockPlayer{id: id, name: name, locale: locale}
}

func (p *MockPlayer) ID() string     { return p.id }
func (p *MockPlayer) Name() string   { return p.name }
func (p *MockPlayer) Locale() string { return p.locale }

func (p *MockPlayer) SendMessage(text string) error {
	args := p.Called(text)
	return args.Error(0)
}
