package session

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"ai_voice_bot/internal/models"
)

// journal 会话的持久化队列：有界队列 + 独立写入协程，按入队顺序落库
type journal struct {
	callID  string
	store   models.CallStore
	timeout time.Duration

	mu      sync.Mutex
	closed  bool
	queue   chan func(ctx context.Context) error
	dropped atomic.Int64
	done    chan struct{}
}

func newJournal(callID string, store models.CallStore, size int, timeout time.Duration) *journal {
	if size <= 0 {
		size = 64
	}
	j := &journal{
		callID:  callID,
		store:   store,
		timeout: timeout,
		queue:   make(chan func(ctx context.Context) error, size),
		done:    make(chan struct{}),
	}
	if store == nil {
		j.closed = true
		close(j.done)
		return j
	}
	go j.run()
	return j
}

// enqueue 非阻塞入队，队列满或已关闭时丢弃
func (j *journal) enqueue(fn func(ctx context.Context) error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		return
	}

	select {
	case j.queue <- fn:
	default:
		n := j.dropped.Add(1)
		log.Printf("[%s] 持久化队列已满，丢弃本条记录，累计丢弃 %d 条", j.callID, n)
	}
}

// Dropped 丢弃的记录条数
func (j *journal) Dropped() int64 {
	return j.dropped.Load()
}

// close 停止接收并限时等待剩余记录写完
func (j *journal) close(wait time.Duration) {
	j.mu.Lock()
	if !j.closed {
		j.closed = true
		close(j.queue)
	}
	j.mu.Unlock()

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-j.done:
	case <-timer.C:
		log.Printf("[%s] 等待持久化队列写完超时(%v)", j.callID, wait)
	}
}

func (j *journal) run() {
	defer close(j.done)
	for fn := range j.queue {
		j.write(fn)
	}
}

func (j *journal) write(fn func(ctx context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()
	if err := fn(ctx); err != nil {
		log.Printf("[%s] 持久化失败: %v", j.callID, err)
	}
}
