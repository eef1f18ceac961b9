package conversation

import (
	"context"
	"errors"
	"log"
	"strings"
	"sync"
	"time"

	"ai_voice_bot/internal/models"
)

const (
	// DefaultMaxToolRounds 单轮最多连续工具调度次数
	DefaultMaxToolRounds = 3

	// FallbackReply 没有生成任何文本时的回复
	FallbackReply = "I'm sorry, I couldn't process that."

	// TroubleReply 生成引擎调用失败时的回复
	TroubleReply = "I'm having trouble processing that. Could you repeat?"
)

// ErrEmptyTranscript 转写文本为空
var ErrEmptyTranscript = errors.New("转写文本为空")

// State 对话状态
type State int

const (
	StateAwaitingInput State = iota
	StateGenerating
	StateExecutingTool
	StateResponding
)

func (s State) String() string {
	switch s {
	case StateAwaitingInput:
		return "awaiting_input"
	case StateGenerating:
		return "generating"
	case StateExecutingTool:
		return "executing_tool"
	case StateResponding:
		return "responding"
	default:
		return "unknown"
	}
}

// ToolExecutor 工具调度
type ToolExecutor interface {
	Execute(ctx context.Context, inv models.ToolInvocation) models.ToolResult
}

// Speaker 语音合成及出站播放
type Speaker interface {
	Synthesize(ctx context.Context, text string) []byte
	Stream(audio []byte) error
}

// MetricsEmitter 非阻塞的指标上报
type MetricsEmitter interface {
	Emit(rec models.LatencyRecord)
}

// Journal 对话消息记录，调用方负责吞掉持久化错误
type Journal func(role models.Role, text string)

// Deps 对话引擎依赖
type Deps struct {
	Generator models.Generator
	Tools     ToolExecutor
	Speaker   Speaker
	Metrics   MetricsEmitter
	Journal   Journal
}

// Options 对话引擎参数
type Options struct {
	MaxTurns      int
	MaxToolRounds int
}

// TurnResult 一轮对话的结果
type TurnResult struct {
	Reply      string
	ToolRounds int
	Latency    models.LatencyRecord
}

// Engine 单通电话的对话引擎
type Engine struct {
	callID    string
	deps      Deps
	history   *Context
	maxRounds int

	mu    sync.RWMutex
	state State
}

// NewEngine 创建对话引擎
func NewEngine(callID string, deps Deps, opts Options) *Engine {
	maxRounds := opts.MaxToolRounds
	if maxRounds <= 0 {
		maxRounds = DefaultMaxToolRounds
	}
	return &Engine{
		callID:    callID,
		deps:      deps,
		history:   NewContext(opts.MaxTurns),
		maxRounds: maxRounds,
		state:     StateAwaitingInput,
	}
}

// State 当前状态
func (e *Engine) State() State {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state
}

func (e *Engine) setState(s State) {
	e.mu.Lock()
	e.state = s
	e.mu.Unlock()
}

// History 对话上下文
func (e *Engine) History() *Context {
	return e.history
}

// HandleUserInput 处理一次用户输入：生成、工具调度、合成并播放回复
func (e *Engine) HandleUserInput(ctx context.Context, transcript string) (*TurnResult, error) {
	transcript = strings.TrimSpace(transcript)
	if transcript == "" {
		return nil, ErrEmptyTranscript
	}

	log.Printf("[%s] 用户说: %s", e.callID, transcript)
	turnStart := time.Now()

	e.history.Add(models.RoleCaller, transcript)
	e.journal(models.RoleCaller, transcript)

	reply, rounds, firstGen, toolRounds := e.generateReply(ctx, transcript)

	e.setState(StateResponding)
	e.history.Add(models.RoleAssistant, reply)
	e.journal(models.RoleAssistant, reply)
	log.Printf("[%s] 助手回复: %s", e.callID, reply)

	ttsStart := time.Now()
	audio := e.deps.Speaker.Synthesize(ctx, reply)
	ttsElapsed := time.Since(ttsStart)
	streamErr := e.deps.Speaker.Stream(audio)

	total := time.Since(turnStart)
	e.setState(StateAwaitingInput)

	rec := models.LatencyRecord{
		CallID:            e.callID,
		LLMMs:             models.Millis(firstGen + toolRounds),
		TTSMs:             models.Millis(ttsElapsed),
		TotalMs:           models.Millis(total),
		FirstGenerationMs: firstGen.Milliseconds(),
		ToolRoundsMs:      toolRounds.Milliseconds(),
		ToolRounds:        rounds,
		CreatedAt:         time.Now(),
	}
	if e.deps.Metrics != nil {
		e.deps.Metrics.Emit(rec)
	}

	return &TurnResult{Reply: reply, ToolRounds: rounds, Latency: rec}, streamErr
}

// generateReply 调用生成引擎并执行有上限的工具调度循环
func (e *Engine) generateReply(ctx context.Context, transcript string) (reply string, rounds int, firstGen, toolRounds time.Duration) {
	e.setState(StateGenerating)
	start := time.Now()
	outcome, err := e.deps.Generator.Generate(ctx, e.history.Messages(), transcript)
	firstGen = time.Since(start)
	if err != nil {
		log.Printf("[%s] 生成回复失败: %v", e.callID, err)
		return TroubleReply, 0, firstGen, 0
	}

	var exchanges []models.ToolExchange
	for outcome.IsToolRequest() && rounds < e.maxRounds {
		rounds++
		inv := *outcome.Tool()

		e.setState(StateExecutingTool)
		log.Printf("[%s] 工具调用 %d: %s(%v)", e.callID, rounds, inv.Name, inv.Args)
		result := models.ToolError("no tools available")
		if e.deps.Tools != nil {
			result = e.deps.Tools.Execute(ctx, inv)
		}
		exchanges = append(exchanges, models.ToolExchange{Invocation: inv, Result: result})

		e.setState(StateGenerating)
		start = time.Now()
		outcome, err = e.deps.Generator.SubmitToolResults(ctx, e.history.Messages(), exchanges)
		toolRounds += time.Since(start)
		if err != nil {
			log.Printf("[%s] 回传工具结果失败: %v", e.callID, err)
			return TroubleReply, rounds, firstGen, toolRounds
		}
	}

	if outcome.IsToolRequest() {
		log.Printf("[%s] 工具调度达到上限 %d 轮，强制结束本轮", e.callID, e.maxRounds)
	}

	reply = strings.TrimSpace(outcome.Text())
	if reply == "" {
		reply = FallbackReply
	}
	return reply, rounds, firstGen, toolRounds
}

func (e *Engine) journal(role models.Role, text string) {
	if e.deps.Journal != nil {
		e.deps.Journal(role, text)
	}
}
