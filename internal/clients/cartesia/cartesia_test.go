package cartesia

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"

	"ai_voice_bot/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSynthesizer_Synthesize(t *testing.T) {
	var got ttsRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/tts/bytes", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		assert.Equal(t, APIVersion, r.Header.Get("Cartesia-Version"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		if got.Transcript == "fail" {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte("overloaded"))
			return
		}
		w.Write([]byte{0xff, 0x7f, 0x00})
	}))
	defer server.Close()

	s := NewSynthesizer(SynthesizerConfig{
		APIKey:     "test-key",
		BaseURL:    server.URL + "/",
		Model:      "sonic-2",
		VoiceID:    "voice-1",
		Encoding:   "pcm_mulaw",
		SampleRate: 8000,
	})

	audio, err := s.Synthesize(context.Background(), "Hello there")
	require.NoError(t, err)
	assert.Equal(t, []byte{0xff, 0x7f, 0x00}, audio)
	assert.Equal(t, "sonic-2", got.ModelID)
	assert.Equal(t, "Hello there", got.Transcript)
	assert.Equal(t, ttsVoice{Mode: "id", ID: "voice-1"}, got.Voice)
	assert.Equal(t, ttsOutputFormat{Container: "raw", Encoding: "pcm_mulaw", SampleRate: 8000}, got.OutputFormat)

	_, err = s.Synthesize(context.Background(), "fail")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}

// newSTTServer 模拟识别服务：收到音频后先回一个中间结果再回最终结果
func newSTTServer(t *testing.T, handle func(conn *websocket.Conn)) *httptest.Server {
	upgrader := websocket.Upgrader{}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "ink-whisper", r.URL.Query().Get("model"))
		assert.Equal(t, "pcm_mulaw", r.URL.Query().Get("encoding"))
		assert.Equal(t, "8000", r.URL.Query().Get("sample_rate"))
		assert.Equal(t, "test-key", r.Header.Get("X-API-Key"))
		assert.NotContains(t, r.URL.RawQuery, "test-key", "密钥不能出现在URL中")
		assert.Empty(t, r.URL.Query().Get("api_key"))

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("升级WebSocket失败: %v", err)
			return
		}
		defer conn.Close()
		handle(conn)
	}))
}

func newTestRecognizer(server *httptest.Server) *Recognizer {
	return NewRecognizer(RecognizerConfig{
		APIKey:     "test-key",
		URL:        "ws" + strings.TrimPrefix(server.URL, "http"),
		Model:      "ink-whisper",
		Language:   "en",
		Encoding:   "pcm_mulaw",
		SampleRate: 8000,
	})
}

func TestRecognizer_Stream(t *testing.T) {
	server := newSTTServer(t, func(conn *websocket.Conn) {
		msgType, data, err := conn.ReadMessage()
		if err != nil || msgType != websocket.BinaryMessage || len(data) != 160 {
			t.Errorf("音频帧错误: type=%d len=%d err=%v", msgType, len(data), err)
			return
		}
		conn.WriteJSON(map[string]any{"type": "transcript", "text": "check", "is_final": false})
		conn.WriteJSON(map[string]any{"type": "transcript", "text": "check order one two three", "is_final": true})
		conn.WriteJSON(map[string]any{"type": "done"})
		conn.ReadMessage()
	})
	defer server.Close()

	stream, err := newTestRecognizer(server).OpenStream(context.Background())
	require.NoError(t, err)
	defer stream.Close()

	require.NoError(t, stream.Send(make([]byte, 160)))

	text, err := stream.Recv()
	require.NoError(t, err)
	assert.Equal(t, "check order one two three", text)

	_, err = stream.Recv()
	assert.ErrorIs(t, err, io.EOF)

	require.NoError(t, stream.Close())
	require.NoError(t, stream.Close())
	assert.Error(t, stream.Send([]byte{1}))
}

func TestRecognizer_Errors(t *testing.T) {
	tests := []struct {
		name    string
		handle  func(conn *websocket.Conn)
		wantErr error
		wantMsg string
	}{
		{
			name: "服务返回错误",
			handle: func(conn *websocket.Conn) {
				conn.WriteJSON(map[string]any{"type": "error", "message": "invalid api key"})
				conn.ReadMessage()
			},
			wantMsg: "invalid api key",
		},
		{
			name: "服务端关闭连接",
			handle: func(conn *websocket.Conn) {
				conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "max duration"))
				conn.ReadMessage()
			},
			wantErr: models.ErrStreamExpired,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := newSTTServer(t, tt.handle)
			defer server.Close()

			stream, err := newTestRecognizer(server).OpenStream(context.Background())
			require.NoError(t, err)
			defer stream.Close()

			_, err = stream.Recv()
			require.Error(t, err)
			if tt.wantErr != nil {
				assert.True(t, errors.Is(err, tt.wantErr))
			}
			if tt.wantMsg != "" {
				assert.Contains(t, err.Error(), tt.wantMsg)
			}
		})
	}
}

func TestRecognizer_Unreachable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte("bad key"))
	}))
	defer server.Close()

	_, err := newTestRecognizer(server).OpenStream(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}
