package notify

import (
	"context"
	"errors"
	"sync"
)

var errMemoryClosed = errors.New("事件通道已关闭")

// Memory 使用带缓冲的 channel 保存事件，适用于测试与单进程嵌入。
// 缓冲区满时 Publish 阻塞直到 ctx 结束。
type Memory struct {
	ch     chan Event
	mu     sync.RWMutex
	closed bool
}

// NewMemory 创建内存发布者。
func NewMemory(size int) *Memory {
	if size <= 0 {
		size = 64
	}
	return &Memory{ch: make(chan Event, size)}
}

// Publish 投递事件。
func (m *Memory) Publish(ctx context.Context, evt Event) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return errMemoryClosed
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case m.ch <- evt:
		return nil
	}
}

// Events 返回只读事件通道，Close 之后通道被关闭。
func (m *Memory) Events() <-chan Event {
	return m.ch
}

// Close 关闭事件通道。
func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.closed {
		close(m.ch)
		m.closed = true
	}
	return nil
}
