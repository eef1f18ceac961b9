// Package synthesis 把回复文本合成为音频并按帧发送到媒体流
package synthesis

import (
	"context"
	"encoding/base64"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"ai_voice_bot/internal/models"
)

// Options 合成参数
type Options struct {
	ChunkSize int
	Timeout   time.Duration
}

// Adapter 语音合成适配器，绑定一路通话的传输连接
type Adapter struct {
	synth     models.SpeechSynthesizer
	transport models.Transport
	chunkSize int
	timeout   time.Duration

	mu        sync.RWMutex
	streamSid string
}

// NewAdapter 创建合成适配器，streamSid 默认为通话ID
func NewAdapter(synth models.SpeechSynthesizer, transport models.Transport, streamSid string, opts Options) *Adapter {
	chunkSize := opts.ChunkSize
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return &Adapter{
		synth:     synth,
		transport: transport,
		chunkSize: chunkSize,
		timeout:   opts.Timeout,
		streamSid: streamSid,
	}
}

// SetStreamSid 使用传输层在start事件中给出的streamSid
func (a *Adapter) SetStreamSid(sid string) {
	if sid == "" {
		return
	}
	a.mu.Lock()
	a.streamSid = sid
	a.mu.Unlock()
}

// StreamSid 出站帧使用的streamSid
func (a *Adapter) StreamSid() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.streamSid
}

// Synthesize 合成音频，空文本或合成失败时返回空
func (a *Adapter) Synthesize(ctx context.Context, text string) []byte {
	text = strings.TrimSpace(text)
	if text == "" || a.synth == nil {
		return nil
	}

	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	audio, err := a.synth.Synthesize(ctx, text)
	if err != nil {
		log.Printf("语音合成失败: %v", err)
		return nil
	}
	return audio
}

// Stream 把音频分片编码为media帧发送，空音频发送一个空payload帧
func (a *Adapter) Stream(audio []byte) error {
	sid := a.StreamSid()

	if len(audio) == 0 {
		return a.send(sid, "")
	}

	for i, chunk := range Chunk(audio, a.chunkSize) {
		if err := a.send(sid, base64.StdEncoding.EncodeToString(chunk)); err != nil {
			return fmt.Errorf("发送第%d个音频分片失败: %w", i+1, err)
		}
	}
	return nil
}

// Speak 合成并发送
func (a *Adapter) Speak(ctx context.Context, text string) error {
	return a.Stream(a.Synthesize(ctx, text))
}

func (a *Adapter) send(sid, payload string) error {
	return a.transport.SendJSON(models.StreamFrame{
		Event:     models.EventMedia,
		StreamSid: sid,
		Media:     &models.MediaPayload{Payload: payload},
	})
}
