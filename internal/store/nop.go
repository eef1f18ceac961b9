package store

import (
	"context"

	"ai_voice_bot/internal/models"
)

// Nop 未配置数据库时使用，丢弃所有记录
type Nop struct{}

func (Nop) CallStarted(ctx context.Context, callID string) error { return nil }

func (Nop) CallEnded(ctx context.Context, callID string) error { return nil }

func (Nop) SaveMessage(ctx context.Context, callID string, role models.Role, text, intent string) error {
	return nil
}

func (Nop) RecordMetrics(ctx context.Context, rec models.LatencyRecord) error { return nil }

var (
	_ models.CallStore = Nop{}
	_ models.CallStore = (*Postgres)(nil)
)
