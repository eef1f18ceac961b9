// Package metrics 异步上报每轮对话的耗时指标
package metrics

import (
	"context"
	"log"
	"sync/atomic"
	"time"

	"ai_voice_bot/internal/models"
)

// Reporter 指标上报器：有界队列 + 独立消费协程
type Reporter struct {
	sink    models.MetricsSink
	queue   chan models.LatencyRecord
	timeout time.Duration
	dropped atomic.Int64
	done    chan struct{}
}

// NewReporter 创建指标上报器
func NewReporter(sink models.MetricsSink, queueSize int, writeTimeout time.Duration) *Reporter {
	if queueSize <= 0 {
		queueSize = 256
	}
	return &Reporter{
		sink:    sink,
		queue:   make(chan models.LatencyRecord, queueSize),
		timeout: writeTimeout,
		done:    make(chan struct{}),
	}
}

// Emit 非阻塞入队，队列满时丢弃并记录日志
func (r *Reporter) Emit(rec models.LatencyRecord) {
	select {
	case r.queue <- rec:
	default:
		n := r.dropped.Add(1)
		log.Printf("[%s] 指标队列已满，丢弃本条指标，累计丢弃 %d 条", rec.CallID, n)
	}
}

// Dropped 丢弃的指标条数
func (r *Reporter) Dropped() int64 {
	return r.dropped.Load()
}

// Run 消费队列直到ctx取消，取消后写完队列中剩余的指标
func (r *Reporter) Run(ctx context.Context) {
	defer close(r.done)

	for {
		select {
		case rec := <-r.queue:
			r.write(rec)
		case <-ctx.Done():
			for {
				select {
				case rec := <-r.queue:
					r.write(rec)
				default:
					return
				}
			}
		}
	}
}

// Done Run退出后关闭
func (r *Reporter) Done() <-chan struct{} {
	return r.done
}

func (r *Reporter) write(rec models.LatencyRecord) {
	log.Printf("[%s] 耗时统计: llm=%s tts=%s total=%s 工具轮次=%d",
		rec.CallID, formatMs(rec.LLMMs), formatMs(rec.TTSMs), formatMs(rec.TotalMs), rec.ToolRounds)

	if r.sink == nil {
		return
	}

	ctx := context.Background()
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}
	if err := r.sink.RecordMetrics(ctx, rec); err != nil {
		log.Printf("[%s] 写入指标失败: %v", rec.CallID, err)
	}
}

func formatMs(ms *int64) string {
	if ms == nil {
		return "-"
	}
	return (time.Duration(*ms) * time.Millisecond).String()
}
