// Package recognition 把阻塞的流式语音识别与通话协程解耦
package recognition

import (
	"context"
	"errors"
	"log"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"ai_voice_bot/internal/models"
)

// errRotate 主动轮换识别流
var errRotate = errors.New("识别流到达最长时长")

// Options 识别桥参数
type Options struct {
	QueueSize         int           // 入站音频队列长度
	PollInterval      time.Duration // 工作协程检查停止标志的间隔
	JoinTimeout       time.Duration // 关闭时等待工作协程的上限
	RestartBackoff    time.Duration // 识别流异常后的重启间隔
	MaxStreamDuration time.Duration // 单次识别流最长时长，<=0 不轮换
}

func (o *Options) setDefaults() {
	if o.QueueSize <= 0 {
		o.QueueSize = 1024
	}
	if o.PollInterval <= 0 {
		o.PollInterval = 100 * time.Millisecond
	}
	if o.JoinTimeout <= 0 {
		o.JoinTimeout = 3 * time.Second
	}
	if o.RestartBackoff <= 0 {
		o.RestartBackoff = 500 * time.Millisecond
	}
}

// Bridge 识别桥：入站音频通道和出站转写通道，由一个后台工作协程连接识别引擎
type Bridge struct {
	callID     string
	recognizer models.Recognizer
	opts       Options

	audio       chan []byte
	transcripts chan string

	stopping atomic.Bool
	disabled atomic.Bool
	dropped  atomic.Int64
	opens    atomic.Int64

	// pending 发送失败的音频分片，只由工作协程访问，重开流后先发送
	pending []byte

	mu        sync.Mutex
	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once
}

// NewBridge 创建识别桥
func NewBridge(callID string, recognizer models.Recognizer, opts Options) *Bridge {
	opts.setDefaults()
	return &Bridge{
		callID:      callID,
		recognizer:  recognizer,
		opts:        opts,
		audio:       make(chan []byte, opts.QueueSize),
		transcripts: make(chan string, 64),
	}
}

// Start 打开第一个识别流并启动工作协程，识别引擎不可用时进入禁用状态
func (b *Bridge) Start(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.done != nil || b.stopping.Load() {
		return nil
	}
	if b.recognizer == nil {
		log.Printf("[%s] 未配置语音识别，识别桥禁用", b.callID)
		b.disabled.Store(true)
		return nil
	}

	workerCtx, cancel := context.WithCancel(ctx)
	stream, err := b.recognizer.OpenStream(workerCtx)
	if err != nil {
		cancel()
		log.Printf("[%s] 语音识别不可用，识别桥禁用: %v", b.callID, err)
		b.disabled.Store(true)
		return err
	}
	b.opens.Add(1)

	b.cancel = cancel
	b.done = make(chan struct{})
	go b.run(workerCtx, stream)

	log.Printf("[%s] 识别桥已启动", b.callID)
	return nil
}

// Disabled 识别桥是否处于禁用状态
func (b *Bridge) Disabled() bool {
	return b.disabled.Load()
}

// Dropped 因队列满被丢弃的音频字节数
func (b *Bridge) Dropped() int64 {
	return b.dropped.Load()
}

// Opens 已打开的识别流数量
func (b *Bridge) Opens() int64 {
	return b.opens.Load()
}

// PushAudio 入队音频，不阻塞调用方
func (b *Bridge) PushAudio(chunk []byte) {
	if len(chunk) == 0 || b.disabled.Load() || b.stopping.Load() {
		return
	}

	select {
	case b.audio <- chunk:
	default:
		total := b.dropped.Add(int64(len(chunk)))
		log.Printf("[%s] 识别音频队列已满，丢弃 %d 字节，累计 %d 字节", b.callID, len(chunk), total)
	}
}

// PollTranscript 取出下一条转写结果，timeout<=0 时立即返回
func (b *Bridge) PollTranscript(timeout time.Duration) (string, bool) {
	if timeout <= 0 {
		select {
		case text := <-b.transcripts:
			return text, true
		default:
			return "", false
		}
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case text := <-b.transcripts:
		return text, true
	case <-timer.C:
		return "", false
	}
}

// Close 设置停止标志并在限定时间内等待工作协程退出，可重复调用
func (b *Bridge) Close() {
	b.closeOnce.Do(func() {
		b.stopping.Store(true)

		b.mu.Lock()
		cancel, done := b.cancel, b.done
		b.mu.Unlock()

		if cancel != nil {
			cancel()
		}
		if done == nil {
			return
		}

		timer := time.NewTimer(b.opts.JoinTimeout)
		defer timer.Stop()

		select {
		case <-done:
			log.Printf("[%s] 识别桥已关闭", b.callID)
		case <-timer.C:
			log.Printf("[%s] 等待识别工作协程退出超时(%v)，继续关闭", b.callID, b.opts.JoinTimeout)
		}
	})
}

// run 工作协程：持续运行识别流，异常或到期时重新打开
func (b *Bridge) run(ctx context.Context, stream models.RecognitionStream) {
	defer close(b.done)

	for {
		err := b.serve(ctx, stream)
		if b.stopping.Load() || ctx.Err() != nil {
			return
		}

		switch {
		case errors.Is(err, errRotate), errors.Is(err, models.ErrStreamExpired):
			log.Printf("[%s] 识别流到期，重新打开", b.callID)
		default:
			log.Printf("[%s] 识别流异常，%v 后重启: %v", b.callID, b.opts.RestartBackoff, err)
			if !b.sleep(ctx, b.opts.RestartBackoff) {
				return
			}
		}

		stream = b.reopen(ctx)
		if stream == nil {
			return
		}
	}
}

// reopen 重新打开识别流直到成功或停止
func (b *Bridge) reopen(ctx context.Context) models.RecognitionStream {
	for {
		stream, err := b.recognizer.OpenStream(ctx)
		if err == nil {
			b.opens.Add(1)
			return stream
		}
		log.Printf("[%s] 重新打开识别流失败: %v", b.callID, err)
		if !b.sleep(ctx, b.opts.RestartBackoff) {
			return nil
		}
	}
}

// serve 在一个识别流上收发，直到流结束、出错、到期或停止
func (b *Bridge) serve(ctx context.Context, stream models.RecognitionStream) error {
	streamCtx := ctx
	if b.opts.MaxStreamDuration > 0 {
		var cancel context.CancelFunc
		streamCtx, cancel = context.WithTimeout(ctx, b.opts.MaxStreamDuration)
		defer cancel()
	}

	recvDone := make(chan error, 1)
	go func() {
		for {
			text, err := stream.Recv()
			if err != nil {
				recvDone <- err
				return
			}
			b.publish(ctx, text)
		}
	}()

	if b.pending != nil {
		if err := stream.Send(b.pending); err != nil {
			b.closeStream(stream, recvDone)
			return err
		}
		b.pending = nil
	}

	ticker := time.NewTicker(b.opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case chunk := <-b.audio:
			if err := stream.Send(chunk); err != nil {
				b.pending = chunk
				b.closeStream(stream, recvDone)
				return err
			}
		case err := <-recvDone:
			stream.Close()
			return err
		case <-ticker.C:
			if b.stopping.Load() {
				b.closeStream(stream, recvDone)
				return nil
			}
		case <-streamCtx.Done():
			b.closeStream(stream, recvDone)
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return errRotate
		}
	}
}

// closeStream 关闭识别流并限时等待接收协程退出
func (b *Bridge) closeStream(stream models.RecognitionStream, recvDone <-chan error) {
	if err := stream.Close(); err != nil {
		log.Printf("[%s] 关闭识别流失败: %v", b.callID, err)
	}

	timer := time.NewTimer(b.opts.JoinTimeout)
	defer timer.Stop()

	select {
	case <-recvDone:
	case <-timer.C:
		log.Printf("[%s] 等待识别接收协程退出超时", b.callID)
	}
}

// publish 按识别顺序投递最终转写
func (b *Bridge) publish(ctx context.Context, text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	select {
	case b.transcripts <- text:
	case <-ctx.Done():
	}
}

func (b *Bridge) sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return !b.stopping.Load()
	}
}
