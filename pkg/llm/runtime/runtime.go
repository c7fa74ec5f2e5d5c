// Package runtime 定义插件与宿主运行时之间的边界
//
// 宿主提供设置、系统提示词与用量事件接收；[Memory] 是进程内实现，
// 供命令行工具与测试使用。
package runtime

import (
	"context"
	"maps"
	"sync"

	"github.com/lwmacct/251217-go-plugin-openai/pkg/llm"
)

// Runtime 宿主运行时
type Runtime interface {
	// GetSetting 返回设置值，未设置时返回空字符串
	GetSetting(key string) string

	// SystemPrompt 返回宿主角色的系统提示词，可为空
	SystemPrompt() string

	// EmitModelUsed 接收一次模型用量事件
	EmitModelUsed(ctx context.Context, event *llm.ModelUsedEvent) error
}

// ═══════════════════════════════════════════════════════════════════════════
// Memory 运行时
// ═══════════════════════════════════════════════════════════════════════════

// Memory 进程内运行时，记录所有用量事件
type Memory struct {
	mu           sync.RWMutex
	settings     map[string]string
	systemPrompt string
	emitErr      error
	events       []llm.ModelUsedEvent
}

// Option Memory 选项
type Option func(*Memory)

// WithSettings 设置初始设置（会复制）
func WithSettings(s map[string]string) Option {
	return func(m *Memory) {
		maps.Copy(m.settings, s)
	}
}

// WithSystemPrompt 设置系统提示词
func WithSystemPrompt(prompt string) Option {
	return func(m *Memory) {
		m.systemPrompt = prompt
	}
}

// WithEmitError 让 EmitModelUsed 记录事件后返回指定错误
func WithEmitError(err error) Option {
	return func(m *Memory) {
		m.emitErr = err
	}
}

// NewMemory 创建进程内运行时
func NewMemory(opts ...Option) *Memory {
	m := &Memory{
		settings: make(map[string]string),
		events:   make([]llm.ModelUsedEvent, 0),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// GetSetting 实现 Runtime
func (m *Memory) GetSetting(key string) string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.settings[key]
}

// SetSetting 设置单个键，空值等同删除
func (m *Memory) SetSetting(key, value string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if value == "" {
		delete(m.settings, key)
		return
	}
	m.settings[key] = value
}

// SystemPrompt 实现 Runtime
func (m *Memory) SystemPrompt() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.systemPrompt
}

// EmitModelUsed 实现 Runtime
func (m *Memory) EmitModelUsed(_ context.Context, event *llm.ModelUsedEvent) error {
	if event == nil {
		return nil
	}
	m.mu.Lock()
	m.events = append(m.events, *event)
	err := m.emitErr
	m.mu.Unlock()
	return err
}

// Events 返回已记录事件的副本
func (m *Memory) Events() []llm.ModelUsedEvent {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make([]llm.ModelUsedEvent, len(m.events))
	copy(result, m.events)
	return result
}

// LastEvent 返回最后一个事件，没有时返回 nil
func (m *Memory) LastEvent() *llm.ModelUsedEvent {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.events) == 0 {
		return nil
	}
	ev := m.events[len(m.events)-1]
	return &ev
}

// Reset 清空事件记录
func (m *Memory) Reset() {
	m.mu.Lock()
	m.events = make([]llm.ModelUsedEvent, 0)
	m.mu.Unlock()
}

var _ Runtime = (*Memory)(nil)
