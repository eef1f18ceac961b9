// Package config 提供配置加载和管理功能
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config 应用程序配置结构
type Config struct {
	Environment  string             `yaml:"environment"`
	Debug        bool               `yaml:"debug"`
	Server       ServerConfig       `yaml:"server"`
	Twilio       TwilioConfig       `yaml:"twilio"`
	LLM          LLMConfig          `yaml:"llm"`
	Ollama       OllamaConfig       `yaml:"ollama"`
	Cartesia     CartesiaConfig     `yaml:"cartesia"`
	Recognition  RecognitionConfig  `yaml:"recognition"`
	Synthesis    SynthesisConfig    `yaml:"synthesis"`
	Conversation ConversationConfig `yaml:"conversation"`
	Database     DatabaseConfig     `yaml:"database"`
	Metrics      MetricsConfig      `yaml:"metrics"`
	WebSocket    WebSocketConfig    `yaml:"websocket"`
}

// ServerConfig HTTP服务器配置
type ServerConfig struct {
	Host          string `yaml:"host"`            // 服务器监听地址
	Port          int    `yaml:"port"`            // 服务器监听端口
	PublicBaseURL string `yaml:"public_base_url"` // 对外可访问的地址，用于生成媒体流URL
}

// TwilioConfig Twilio配置
type TwilioConfig struct {
	AccountSID  string `yaml:"account_sid"`
	AuthToken   string `yaml:"auth_token"`
	PhoneNumber string `yaml:"phone_number"`
	HoldMessage string `yaml:"hold_message"` // 媒体流建立前播报的提示语
}

// LLMConfig 文本生成配置
type LLMConfig struct {
	Provider        string  `yaml:"provider"` // gemini 或 ollama
	APIKey          string  `yaml:"api_key"`
	Model           string  `yaml:"model"`
	Temperature     float32 `yaml:"temperature"`
	TopP            float32 `yaml:"top_p"`
	TopK            float32 `yaml:"top_k"`
	MaxOutputTokens int32   `yaml:"max_output_tokens"`
}

// OllamaConfig Ollama配置
type OllamaConfig struct {
	Host      string `yaml:"host"`       // Ollama服务器地址
	Model     string `yaml:"model"`      // 模型名称
	MaxTokens int    `yaml:"max_tokens"` // 最大生成token数
}

// CartesiaConfig Cartesia语音服务配置
type CartesiaConfig struct {
	APIKey   string `yaml:"api_key"`
	BaseURL  string `yaml:"base_url"`
	STTURL   string `yaml:"stt_url"`
	STTModel string `yaml:"stt_model"`
	TTSModel string `yaml:"tts_model"`
	VoiceID  string `yaml:"voice_id"`
	Language string `yaml:"language"`
}

// RecognitionConfig 语音识别桥配置
type RecognitionConfig struct {
	SampleRate        int           `yaml:"sample_rate"`         // 采样率
	Encoding          string        `yaml:"encoding"`            // 音频编码
	QueueSize         int           `yaml:"queue_size"`          // 音频队列长度
	PollInterval      time.Duration `yaml:"poll_interval"`       // 工作协程取音频的等待上限
	JoinTimeout       time.Duration `yaml:"join_timeout"`        // 关闭时等待工作协程的时间
	RestartBackoff    time.Duration `yaml:"restart_backoff"`     // 识别流重启间隔
	MaxStreamDuration time.Duration `yaml:"max_stream_duration"` // 单次识别流最长时长
}

// SynthesisConfig 语音合成配置
type SynthesisConfig struct {
	SampleRate int           `yaml:"sample_rate"`
	Encoding   string        `yaml:"encoding"`
	ChunkSize  int           `yaml:"chunk_size"` // 出站音频分片大小（字节）
	Timeout    time.Duration `yaml:"timeout"`
}

// ConversationConfig 对话引擎配置
type ConversationConfig struct {
	MaxTurns      int           `yaml:"max_turns"`       // 上下文保留的轮数
	MaxToolRounds int           `yaml:"max_tool_rounds"` // 单轮最多工具调度次数
	ToolTimeout   time.Duration `yaml:"tool_timeout"`    // 单次工具调用超时
	Greeting      string        `yaml:"greeting"`        // 开场白
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	URL          string        `yaml:"url"`     // 为空时不落库
	Migrate      bool          `yaml:"migrate"` // 启动时执行迁移
	MaxConns     int32         `yaml:"max_conns"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// MetricsConfig 指标上报配置
type MetricsConfig struct {
	QueueSize int `yaml:"queue_size"`
}

// WebSocketConfig WebSocket配置
type WebSocketConfig struct {
	ReadBufferSize  int           `yaml:"read_buffer_size"`  // 读缓冲区大小
	WriteBufferSize int           `yaml:"write_buffer_size"` // 写缓冲区大小
	ReadLimit       int64         `yaml:"read_limit"`        // 单帧最大字节数
	WriteTimeout    time.Duration `yaml:"write_timeout"`     // 写超时
}

// Load 从文件加载配置，文件不存在时使用默认配置
func Load(filename string) (*Config, error) {
	var config Config

	data, err := os.ReadFile(filename)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("解析配置文件失败: %v", err)
		}
	case os.IsNotExist(err):
		// 允许只用环境变量启动
	default:
		return nil, fmt.Errorf("读取配置文件失败: %v", err)
	}

	applyEnv(&config)
	setDefaults(&config)

	// 验证配置
	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("配置验证失败: %w", err)
	}

	return &config, nil
}

// applyEnv 用环境变量覆盖密钥等敏感配置
func applyEnv(config *Config) {
	overrides := map[string]*string{
		"ENVIRONMENT":         &config.Environment,
		"HOST":                &config.Server.Host,
		"PUBLIC_BASE_URL":     &config.Server.PublicBaseURL,
		"TWILIO_ACCOUNT_SID":  &config.Twilio.AccountSID,
		"TWILIO_AUTH_TOKEN":   &config.Twilio.AuthToken,
		"TWILIO_PHONE_NUMBER": &config.Twilio.PhoneNumber,
		"LLM_PROVIDER":        &config.LLM.Provider,
		"GEMINI_API_KEY":      &config.LLM.APIKey,
		"OLLAMA_HOST":         &config.Ollama.Host,
		"CARTESIA_API_KEY":    &config.Cartesia.APIKey,
		"DATABASE_URL":        &config.Database.URL,
	}
	for key, target := range overrides {
		if v := os.Getenv(key); v != "" {
			*target = v
		}
	}

	if v := os.Getenv("PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			config.Server.Port = port
		}
	}
	if v := os.Getenv("DEBUG"); v != "" {
		config.Debug = v == "1" || strings.EqualFold(v, "true")
	}
}

// setDefaults 设置默认值
func setDefaults(config *Config) {
	if config.Environment == "" {
		config.Environment = "development"
	}
	if config.Server.Host == "" {
		config.Server.Host = "0.0.0.0"
	}
	if config.Server.Port == 0 {
		config.Server.Port = 8000
	}
	if config.Twilio.HoldMessage == "" {
		config.Twilio.HoldMessage = "Connecting you to our AI assistant. Please hold a moment."
	}

	if config.LLM.Provider == "" {
		config.LLM.Provider = "gemini"
	}
	if config.LLM.Model == "" {
		config.LLM.Model = "gemini-2.0-flash"
	}
	if config.LLM.Temperature == 0 {
		config.LLM.Temperature = 0.7
	}
	if config.LLM.TopP == 0 {
		config.LLM.TopP = 0.8
	}
	if config.LLM.TopK == 0 {
		config.LLM.TopK = 40
	}
	if config.LLM.MaxOutputTokens == 0 {
		config.LLM.MaxOutputTokens = 150
	}
	if config.Ollama.Host == "" {
		config.Ollama.Host = "http://localhost:11434"
	}
	if config.Ollama.Model == "" {
		config.Ollama.Model = "llama3.1"
	}
	if config.Ollama.MaxTokens == 0 {
		config.Ollama.MaxTokens = 150
	}

	if config.Cartesia.BaseURL == "" {
		config.Cartesia.BaseURL = "https://api.cartesia.ai"
	}
	if config.Cartesia.STTURL == "" {
		config.Cartesia.STTURL = "wss://api.cartesia.ai/stt/websocket"
	}
	if config.Cartesia.STTModel == "" {
		config.Cartesia.STTModel = "ink-whisper"
	}
	if config.Cartesia.TTSModel == "" {
		config.Cartesia.TTSModel = "sonic-2"
	}
	if config.Cartesia.Language == "" {
		config.Cartesia.Language = "en"
	}

	if config.Recognition.SampleRate == 0 {
		config.Recognition.SampleRate = 8000
	}
	if config.Recognition.Encoding == "" {
		config.Recognition.Encoding = "pcm_mulaw"
	}
	if config.Recognition.QueueSize == 0 {
		config.Recognition.QueueSize = 1024
	}
	if config.Recognition.PollInterval == 0 {
		config.Recognition.PollInterval = 100 * time.Millisecond
	}
	if config.Recognition.JoinTimeout == 0 {
		config.Recognition.JoinTimeout = 3 * time.Second
	}
	if config.Recognition.RestartBackoff == 0 {
		config.Recognition.RestartBackoff = 500 * time.Millisecond
	}
	if config.Recognition.MaxStreamDuration == 0 {
		config.Recognition.MaxStreamDuration = 290 * time.Second
	}

	if config.Synthesis.SampleRate == 0 {
		config.Synthesis.SampleRate = 8000
	}
	if config.Synthesis.Encoding == "" {
		config.Synthesis.Encoding = "pcm_mulaw"
	}
	if config.Synthesis.ChunkSize == 0 {
		config.Synthesis.ChunkSize = 3200
	}
	if config.Synthesis.Timeout == 0 {
		config.Synthesis.Timeout = 10 * time.Second
	}

	if config.Conversation.MaxTurns == 0 {
		config.Conversation.MaxTurns = 10
	}
	if config.Conversation.MaxToolRounds == 0 {
		config.Conversation.MaxToolRounds = 3
	}
	if config.Conversation.ToolTimeout == 0 {
		config.Conversation.ToolTimeout = 5 * time.Second
	}
	if config.Conversation.Greeting == "" {
		config.Conversation.Greeting = "Hello! How can I help you today?"
	}

	if config.Database.MaxConns == 0 {
		config.Database.MaxConns = 4
	}
	if config.Database.WriteTimeout == 0 {
		config.Database.WriteTimeout = 5 * time.Second
	}
	if config.Metrics.QueueSize == 0 {
		config.Metrics.QueueSize = 256
	}

	if config.WebSocket.ReadBufferSize == 0 {
		config.WebSocket.ReadBufferSize = 1024
	}
	if config.WebSocket.WriteBufferSize == 0 {
		config.WebSocket.WriteBufferSize = 1024
	}
	if config.WebSocket.ReadLimit == 0 {
		config.WebSocket.ReadLimit = 1024 * 1024 // 1MB
	}
	if config.WebSocket.WriteTimeout == 0 {
		config.WebSocket.WriteTimeout = 5 * time.Second
	}
}

// validateConfig 验证配置是否有效
func validateConfig(config *Config) error {
	if config.Server.Port <= 0 {
		return ErrInvalidPort
	}

	switch config.LLM.Provider {
	case "gemini", "ollama":
	default:
		return fmt.Errorf("%w: %s", ErrUnknownProvider, config.LLM.Provider)
	}

	if config.Synthesis.ChunkSize <= 0 {
		return ErrInvalidChunkSize
	}
	if config.Conversation.MaxTurns <= 0 {
		return ErrInvalidMaxTurns
	}
	if config.Conversation.MaxToolRounds <= 0 {
		return ErrInvalidToolRounds
	}

	if base := config.Server.PublicBaseURL; base != "" && strings.HasSuffix(base, "/") {
		config.Server.PublicBaseURL = strings.TrimRight(base, "/")
	}

	return nil
}

// Addr 返回服务监听地址
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// StreamURL 生成媒体流应连接的WebSocket地址
func (c *Config) StreamURL(callSid string) string {
	base := c.Server.PublicBaseURL
	if base == "" {
		base = fmt.Sprintf("http://%s:%d", c.Server.Host, c.Server.Port)
	}

	var url string
	switch {
	case strings.HasPrefix(base, "https://"):
		url = "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		url = "ws://" + strings.TrimPrefix(base, "http://")
	default:
		url = "wss://" + base
	}

	url += "/ws/audio-stream"
	if callSid != "" {
		url += "/" + callSid
	}
	return url
}
