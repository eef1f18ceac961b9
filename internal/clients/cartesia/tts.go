package cartesia

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// SynthesizerConfig 语音合成配置
type SynthesizerConfig struct {
	APIKey     string
	BaseURL    string // https://api.cartesia.ai
	Model      string
	VoiceID    string
	Language   string
	Encoding   string
	SampleRate int
}

// Synthesizer Cartesia语音合成，输出原始音频字节
type Synthesizer struct {
	config SynthesizerConfig
	client *http.Client
}

type ttsRequest struct {
	ModelID      string          `json:"model_id"`
	Transcript   string          `json:"transcript"`
	Voice        ttsVoice        `json:"voice"`
	OutputFormat ttsOutputFormat `json:"output_format"`
	Language     string          `json:"language,omitempty"`
}

type ttsVoice struct {
	Mode string `json:"mode"`
	ID   string `json:"id"`
}

type ttsOutputFormat struct {
	Container  string `json:"container"`
	Encoding   string `json:"encoding"`
	SampleRate int    `json:"sample_rate"`
}

// NewSynthesizer 创建语音合成客户端
func NewSynthesizer(config SynthesizerConfig) *Synthesizer {
	return &Synthesizer{
		config: config,
		client: &http.Client{},
	}
}

// Synthesize 合成一段文本
func (s *Synthesizer) Synthesize(ctx context.Context, text string) ([]byte, error) {
	body, err := json.Marshal(ttsRequest{
		ModelID:    s.config.Model,
		Transcript: text,
		Voice:      ttsVoice{Mode: "id", ID: s.config.VoiceID},
		OutputFormat: ttsOutputFormat{
			Container:  "raw",
			Encoding:   s.config.Encoding,
			SampleRate: s.config.SampleRate,
		},
		Language: s.config.Language,
	})
	if err != nil {
		return nil, fmt.Errorf("序列化合成请求失败: %v", err)
	}

	url := strings.TrimRight(s.config.BaseURL, "/") + "/tts/bytes"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("创建合成请求失败: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.config.APIKey)
	req.Header.Set("Cartesia-Version", APIVersion)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("发送合成请求失败: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		errBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("合成服务返回错误(状态码 %d): %s", resp.StatusCode, string(errBody))
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("读取合成音频失败: %v", err)
	}
	return audio, nil
}
