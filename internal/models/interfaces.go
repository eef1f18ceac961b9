package models

import (
	"context"
	"errors"
)

// ErrStreamExpired 识别引擎的单次流式会话达到最长时长
var ErrStreamExpired = errors.New("recognition stream expired")

// Generator 文本生成引擎
type Generator interface {
	// Generate 基于对话历史和最新转写生成回复或工具调用
	Generate(ctx context.Context, history []Message, transcript string) (Outcome, error)

	// SubmitToolResults 回传本轮已完成的工具调用结果，获取下一步结果
	SubmitToolResults(ctx context.Context, history []Message, exchanges []ToolExchange) (Outcome, error)
}

// Recognizer 流式语音识别引擎
type Recognizer interface {
	// OpenStream 打开一次流式识别会话
	OpenStream(ctx context.Context) (RecognitionStream, error)
}

// RecognitionStream 一次流式识别会话，Recv为阻塞调用
type RecognitionStream interface {
	Send(audio []byte) error
	// Recv 返回下一条最终转写结果
	Recv() (string, error)
	Close() error
}

// SpeechSynthesizer 语音合成引擎
type SpeechSynthesizer interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
}

// CallStore 通话记录持久化
type CallStore interface {
	CallStarted(ctx context.Context, callID string) error
	CallEnded(ctx context.Context, callID string) error
	SaveMessage(ctx context.Context, callID string, role Role, text, intent string) error
	MetricsSink
}

// MetricsSink 耗时指标接收方
type MetricsSink interface {
	RecordMetrics(ctx context.Context, rec LatencyRecord) error
}

// Transport 通话的双向音频传输连接
type Transport interface {
	SendJSON(v any) error
	Close() error
}
