// Package session 管理单通电话的生命周期以及进程内的会话注册表
package session

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"ai_voice_bot/internal/models"
	"ai_voice_bot/internal/services/conversation"
	"ai_voice_bot/internal/services/recognition"
	"ai_voice_bot/internal/services/synthesis"
)

// DefaultGreeting 默认开场白
const DefaultGreeting = "Hello! How can I help you today?"

// State 会话生命周期状态
type State int

const (
	StateCreated State = iota
	StateConnected
	StateActive
	StateStopping
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateConnected:
		return "connected"
	case StateActive:
		return "active"
	case StateStopping:
		return "stopping"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Deps 会话依赖的外部组件，由所有会话共享
type Deps struct {
	Generator   models.Generator
	Tools       conversation.ToolExecutor
	Recognizer  models.Recognizer
	Synthesizer models.SpeechSynthesizer
	Metrics     conversation.MetricsEmitter
	Store       models.CallStore
}

// Options 会话参数
type Options struct {
	Greeting     string
	Conversation conversation.Options
	Recognition  recognition.Options
	Synthesis    synthesis.Options
	PollInterval time.Duration // 轮询转写结果的等待上限
	JoinTimeout  time.Duration // 关闭时等待对话协程的上限
	StoreTimeout time.Duration // 单次持久化的超时
	JournalSize  int           // 持久化队列长度
}

// Session 一通电话：一个对话引擎绑定一个传输连接
type Session struct {
	callID    string
	transport models.Transport
	engine    *conversation.Engine
	bridge    *recognition.Bridge
	speaker   *synthesis.Adapter
	store     models.CallStore
	journal   *journal
	opts      Options

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	state    State
	turnDone chan struct{}

	cleanupOnce sync.Once
	release     func()
}

// NewSession 创建会话，不执行任何IO
func NewSession(callID string, transport models.Transport, deps Deps, opts Options) *Session {
	if opts.PollInterval <= 0 {
		opts.PollInterval = 100 * time.Millisecond
	}
	if opts.JoinTimeout <= 0 {
		opts.JoinTimeout = 3 * time.Second
	}
	if opts.StoreTimeout <= 0 {
		opts.StoreTimeout = 5 * time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		callID:    callID,
		transport: transport,
		store:     deps.Store,
		opts:      opts,
		ctx:       ctx,
		cancel:    cancel,
		state:     StateCreated,
	}

	s.journal = newJournal(callID, deps.Store, opts.JournalSize, opts.StoreTimeout)
	s.speaker = synthesis.NewAdapter(deps.Synthesizer, transport, callID, opts.Synthesis)
	s.bridge = recognition.NewBridge(callID, deps.Recognizer, opts.Recognition)
	s.engine = conversation.NewEngine(callID, conversation.Deps{
		Generator: deps.Generator,
		Tools:     deps.Tools,
		Speaker:   s.speaker,
		Metrics:   deps.Metrics,
		Journal:   s.saveMessage,
	}, opts.Conversation)

	return s
}

// CallID 通话ID
func (s *Session) CallID() string {
	return s.callID
}

// State 当前生命周期状态
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Engine 对话引擎
func (s *Session) Engine() *conversation.Engine {
	return s.engine
}

// Bridge 识别桥
func (s *Session) Bridge() *recognition.Bridge {
	return s.bridge
}

// OnConnected 处理connected事件
func (s *Session) OnConnected() {
	s.mu.Lock()
	if s.state == StateCreated {
		s.state = StateConnected
	}
	s.mu.Unlock()
	log.Printf("[%s] 媒体流已连接", s.callID)
}

// OnStart 处理start事件：记录通话、启动识别桥并开始对话协程
func (s *Session) OnStart(start *models.StartPayload) {
	s.mu.Lock()
	if s.state >= StateActive {
		s.mu.Unlock()
		log.Printf("[%s] 忽略重复的start事件", s.callID)
		return
	}
	s.state = StateActive
	s.turnDone = make(chan struct{})
	s.mu.Unlock()

	if start != nil {
		s.speaker.SetStreamSid(start.StreamSid)
		log.Printf("[%s] 媒体流开始: streamSid=%s, format=%+v", s.callID, start.StreamSid, start.MediaFormat)
	}

	s.journal.enqueue(func(ctx context.Context) error {
		return s.store.CallStarted(ctx, s.callID)
	})

	if err := s.bridge.Start(s.ctx); err != nil {
		log.Printf("[%s] 识别桥启动失败，通话继续: %v", s.callID, err)
	}

	go s.converse()
}

// OnAudio 处理一段已解码的来电音频
func (s *Session) OnAudio(audio []byte) {
	s.bridge.PushAudio(audio)
}

// OnStop 处理stop事件
func (s *Session) OnStop() {
	s.mu.Lock()
	if s.state < StateStopping {
		s.state = StateStopping
	}
	s.mu.Unlock()
	log.Printf("[%s] 媒体流结束", s.callID)
}

// Cleanup 释放会话资源并从注册表移除，可重复调用
func (s *Session) Cleanup() {
	s.cleanupOnce.Do(func() {
		s.mu.Lock()
		started := s.turnDone != nil
		s.state = StateClosed
		turnDone := s.turnDone
		s.mu.Unlock()

		s.cancel()
		s.bridge.Close()

		if turnDone != nil {
			timer := time.NewTimer(s.opts.JoinTimeout)
			select {
			case <-turnDone:
			case <-timer.C:
				log.Printf("[%s] 等待对话协程退出超时(%v)", s.callID, s.opts.JoinTimeout)
			}
			timer.Stop()
		}

		s.journal.close(s.opts.JoinTimeout)
		if started {
			s.withStore(func(ctx context.Context) error {
				return s.store.CallEnded(ctx, s.callID)
			})
		}

		if err := s.transport.Close(); err != nil {
			log.Printf("[%s] 关闭连接失败: %v", s.callID, err)
		}
		if s.release != nil {
			s.release()
		}
		log.Printf("[%s] 会话已清理", s.callID)
	})
}

// converse 对话协程：播放开场白，然后按顺序处理每条转写
func (s *Session) converse() {
	defer close(s.turnDone)

	if s.opts.Greeting != "" {
		if err := s.speaker.Speak(s.ctx, s.opts.Greeting); err != nil {
			s.abort("播放开场白失败", err)
			return
		}
	}

	for s.ctx.Err() == nil {
		transcript, ok := s.bridge.PollTranscript(s.opts.PollInterval)
		if !ok {
			continue
		}

		if _, err := s.engine.HandleUserInput(s.ctx, transcript); err != nil {
			if errors.Is(err, conversation.ErrEmptyTranscript) {
				continue
			}
			s.abort("发送回复失败", err)
			return
		}
	}
}

// abort 出站连接不可用时结束会话，Cleanup 会等待对话协程退出，因此在独立协程中执行
func (s *Session) abort(what string, err error) {
	if s.ctx.Err() != nil {
		return
	}
	log.Printf("[%s] %s，结束会话: %v", s.callID, what, err)
	go s.Cleanup()
}

// saveMessage 对话消息进入持久化队列，不阻塞对话协程
func (s *Session) saveMessage(role models.Role, text string) {
	s.journal.enqueue(func(ctx context.Context) error {
		return s.store.SaveMessage(ctx, s.callID, role, text, "")
	})
}

func (s *Session) withStore(fn func(ctx context.Context) error) {
	if s.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.opts.StoreTimeout)
	defer cancel()
	if err := fn(ctx); err != nil {
		log.Printf("[%s] 持久化失败: %v", s.callID, err)
	}
}
