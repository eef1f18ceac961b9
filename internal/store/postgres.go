// Package store 持久化通话、对话消息和耗时指标
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"

	"ai_voice_bot/internal/models"
)

// Postgres 基于PostgreSQL的通话记录存储
type Postgres struct {
	pool *pgxpool.Pool
}

// Open 连接数据库
func Open(ctx context.Context, url string, maxConns int32) (*Postgres, error) {
	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("解析数据库地址失败: %v", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("创建数据库连接池失败: %v", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("连接数据库失败: %v", err)
	}

	return &Postgres{pool: pool}, nil
}

// Migrate 执行数据库迁移
func (p *Postgres) Migrate(ctx context.Context) error {
	db := stdlib.OpenDBFromPool(p.pool)
	defer db.Close()
	return Migrate(ctx, db)
}

// Close 关闭连接池
func (p *Postgres) Close() {
	p.pool.Close()
}

// CallStarted 记录通话开始
func (p *Postgres) CallStarted(ctx context.Context, callID string) error {
	_, err := p.pool.Exec(ctx,
		`INSERT INTO calls (call_sid, start_time, status) VALUES ($1, $2, 'active')
		 ON CONFLICT (call_sid) DO NOTHING`,
		callID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("记录通话开始失败: %v", err)
	}
	return nil
}

// CallEnded 记录通话结束并计算时长
func (p *Postgres) CallEnded(ctx context.Context, callID string) error {
	tag, err := p.pool.Exec(ctx,
		`UPDATE calls
		    SET end_time = $2::TIMESTAMPTZ,
		        duration = EXTRACT(EPOCH FROM ($2::TIMESTAMPTZ - start_time))::INTEGER,
		        status = 'completed'
		  WHERE call_sid = $1`,
		callID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("记录通话结束失败: %v", err)
	}
	if tag.RowsAffected() == 0 {
		log.Printf("[%s] 结束通话时未找到通话记录", callID)
	}
	return nil
}

// SaveMessage 记录一条对话消息
func (p *Postgres) SaveMessage(ctx context.Context, callID string, role models.Role, text, intent string) error {
	_, err := p.pool.Exec(ctx,
		`INSERT INTO conversations (call_sid, timestamp, role, message, intent) VALUES ($1, $2, $3, $4, $5)`,
		callID, time.Now().UTC(), string(role), text, nullable(intent))
	if err != nil {
		return fmt.Errorf("记录对话消息失败: %v", err)
	}
	return nil
}

// RecordMetrics 记录一轮对话的耗时
func (p *Postgres) RecordMetrics(ctx context.Context, rec models.LatencyRecord) error {
	payload, err := json.Marshal(metricsPayload(rec))
	if err != nil {
		return fmt.Errorf("序列化指标失败: %v", err)
	}

	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	_, err = p.pool.Exec(ctx,
		`INSERT INTO call_metrics (id, call_sid, stt_latency, llm_latency, tts_latency, total_latency, payload, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		uuid.New(), rec.CallID, rec.STTMs, rec.LLMMs, rec.TTSMs, rec.TotalMs, payload, createdAt.UTC())
	if err != nil {
		return fmt.Errorf("记录耗时指标失败: %v", err)
	}
	return nil
}

// metricsPayload 指标明细
func metricsPayload(rec models.LatencyRecord) map[string]any {
	return map[string]any{
		"first_generation_ms": rec.FirstGenerationMs,
		"tool_rounds_ms":      rec.ToolRoundsMs,
		"tool_rounds":         rec.ToolRounds,
	}
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
