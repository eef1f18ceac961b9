package session

import (
	"errors"
	"log"
	"sync"

	"ai_voice_bot/internal/models"
)

// ErrSessionExists 同一通话ID已有会话
var ErrSessionExists = errors.New("会话已存在")

// Factory 为新的通话构建会话
type Factory func(callID string, transport models.Transport) *Session

// NewFactory 使用共享依赖构建会话
func NewFactory(deps Deps, opts Options) Factory {
	return func(callID string, transport models.Transport) *Session {
		return NewSession(callID, transport, deps, opts)
	}
}

// Registry 通话ID到会话的映射，每个通话ID同一时刻最多一个会话
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session
	factory  Factory
}

// NewRegistry 创建会话注册表
func NewRegistry(factory Factory) *Registry {
	return &Registry{
		sessions: make(map[string]*Session),
		factory:  factory,
	}
}

// GetOrCreate 返回已有会话，不存在时创建并注册
func (r *Registry) GetOrCreate(callID string, transport models.Transport) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.sessions[callID]; ok {
		return s
	}
	return r.register(callID, transport)
}

// Create 创建并注册会话，通话ID已有会话时返回 ErrSessionExists
func (r *Registry) Create(callID string, transport models.Transport) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[callID]; ok {
		return nil, ErrSessionExists
	}
	return r.register(callID, transport), nil
}

// register 调用方持有锁
func (r *Registry) register(callID string, transport models.Transport) *Session {
	s := r.factory(callID, transport)
	s.release = func() { r.release(callID, s) }
	r.sessions[callID] = s
	log.Printf("[%s] 创建会话，当前会话数: %d", callID, len(r.sessions))
	return s
}

// Get 查找会话
func (r *Registry) Get(callID string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[callID]
	return s, ok
}

// Remove 移除会话，不存在时为空操作
func (r *Registry) Remove(callID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, callID)
}

// release 仅在注册的仍是该会话时移除
func (r *Registry) release(callID string, s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if current, ok := r.sessions[callID]; ok && current == s {
		delete(r.sessions, callID)
		log.Printf("[%s] 移除会话，当前会话数: %d", callID, len(r.sessions))
	}
}

// Len 当前会话数
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// CloseAll 清理所有会话，用于服务关闭
func (r *Registry) CloseAll() {
	r.mu.Lock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.mu.Unlock()

	var wg sync.WaitGroup
	for _, s := range sessions {
		wg.Add(1)
		go func(s *Session) {
			defer wg.Done()
			s.Cleanup()
		}(s)
	}
	wg.Wait()
	log.Printf("已关闭 %d 个会话", len(sessions))
}
