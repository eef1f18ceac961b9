// Package cartesia 提供 Cartesia 流式语音识别与语音合成客户端
package cartesia

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"ai_voice_bot/internal/models"
)

// APIVersion Cartesia接口版本
const APIVersion = "2025-04-16"

// RecognizerConfig 流式识别配置
type RecognizerConfig struct {
	APIKey     string
	URL        string // wss://api.cartesia.ai/stt/websocket
	Model      string
	Language   string
	Encoding   string
	SampleRate int
}

// Recognizer Cartesia流式识别，每次OpenStream建立一条WebSocket连接
type Recognizer struct {
	config RecognizerConfig
	dialer *websocket.Dialer
}

// NewRecognizer 创建流式识别客户端
func NewRecognizer(config RecognizerConfig) *Recognizer {
	return &Recognizer{
		config: config,
		dialer: &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
	}
}

// OpenStream 建立识别连接
func (r *Recognizer) OpenStream(ctx context.Context) (models.RecognitionStream, error) {
	u, err := url.Parse(r.config.URL)
	if err != nil {
		return nil, fmt.Errorf("解析识别服务地址失败: %v", err)
	}

	q := u.Query()
	q.Set("model", r.config.Model)
	q.Set("language", r.config.Language)
	q.Set("encoding", r.config.Encoding)
	q.Set("sample_rate", strconv.Itoa(r.config.SampleRate))
	u.RawQuery = q.Encode()

	headers := http.Header{}
	headers.Set("X-API-Key", r.config.APIKey)
	headers.Set("Cartesia-Version", APIVersion)

	conn, resp, err := r.dialer.DialContext(ctx, u.String(), headers)
	if err != nil {
		if resp != nil {
			defer resp.Body.Close()
			body, _ := io.ReadAll(resp.Body)
			return nil, fmt.Errorf("连接识别服务失败(状态码 %d): %s", resp.StatusCode, string(body))
		}
		return nil, fmt.Errorf("连接识别服务失败: %v", err)
	}

	return &sttStream{conn: conn}, nil
}

// sttMessage 识别服务消息
type sttMessage struct {
	Type    string `json:"type"` // transcript / flush_done / done / error
	Text    string `json:"text"`
	IsFinal bool   `json:"is_final"`
	Error   string `json:"error"`
	Message string `json:"message"`
}

// sttStream 一条识别连接
type sttStream struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
	closed  atomic.Bool
}

// Send 发送一段音频
func (s *sttStream) Send(audio []byte) error {
	if s.closed.Load() {
		return fmt.Errorf("识别连接已关闭")
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteMessage(websocket.BinaryMessage, audio)
}

// Recv 阻塞直到收到下一条最终转写
func (s *sttStream) Recv() (string, error) {
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseGoingAway) {
				return "", fmt.Errorf("%w: %v", models.ErrStreamExpired, err)
			}
			if s.closed.Load() || websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return "", io.EOF
			}
			return "", fmt.Errorf("读取识别结果失败: %v", err)
		}

		var msg sttMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}

		switch msg.Type {
		case "transcript":
			if msg.IsFinal && msg.Text != "" {
				return msg.Text, nil
			}
		case "done":
			return "", io.EOF
		case "error":
			detail := msg.Error
			if detail == "" {
				detail = msg.Message
			}
			return "", fmt.Errorf("识别服务返回错误: %s", detail)
		}
	}
}

// Close 通知服务结束并关闭连接，可重复调用
func (s *sttStream) Close() error {
	if s.closed.Swap(true) {
		return nil
	}

	s.writeMu.Lock()
	s.conn.WriteMessage(websocket.TextMessage, []byte("done"))
	s.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	s.writeMu.Unlock()

	return s.conn.Close()
}
