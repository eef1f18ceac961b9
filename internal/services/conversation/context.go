// Package conversation 维护通话上下文并驱动生成引擎与工具调度
package conversation

import (
	"sync"

	"ai_voice_bot/internal/models"
)

// Context 对话上下文，按轮数限制的滑动窗口
type Context struct {
	mu          sync.RWMutex
	maxMessages int
	messages    []models.Message
}

// NewContext 创建对话上下文，每轮包含来电者和助手各一条消息
func NewContext(maxTurns int) *Context {
	if maxTurns <= 0 {
		maxTurns = 10
	}
	return &Context{
		maxMessages: maxTurns * 2,
		messages:    make([]models.Message, 0, maxTurns*2),
	}
}

// Add 追加一条消息，超出窗口时丢弃最早的消息
func (c *Context) Add(role models.Role, text string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.messages = append(c.messages, models.Message{Role: role, Text: text})
	if overflow := len(c.messages) - c.maxMessages; overflow > 0 {
		c.messages = append(c.messages[:0], c.messages[overflow:]...)
	}
}

// Messages 按插入顺序返回消息副本
func (c *Context) Messages() []models.Message {
	c.mu.RLock()
	defer c.mu.RUnlock()

	history := make([]models.Message, len(c.messages))
	copy(history, c.messages)
	return history
}

// Len 当前消息数
func (c *Context) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.messages)
}

// Max 窗口容量
func (c *Context) Max() int {
	return c.maxMessages
}

// Clear 清空上下文
func (c *Context) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = c.messages[:0]
}
