package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"ai_voice_bot/internal/models"
)

// Config Ollama客户端配置
type Config struct {
	Host         string  // Ollama服务器地址（完整URL）
	Model        string  // 使用的模型名称
	SystemPrompt string  // 系统提示词
	Options      Options // 生成选项
}

// Client Ollama客户端
type Client struct {
	config Config
	client *http.Client
	tools  []Tool
}

// ChatMessage 对话消息
type ChatMessage struct {
	Role      string     `json:"role"`                 // system/user/assistant/tool
	Content   string     `json:"content"`              // 消息内容
	ToolCalls []ToolCall `json:"tool_calls,omitempty"` // 模型发起的工具调用
	ToolName  string     `json:"tool_name,omitempty"`  // 工具结果对应的工具名称
}

// ToolCall 工具调用
type ToolCall struct {
	Function ToolCallFunction `json:"function"`
}

// ToolCallFunction 工具调用的函数名和参数
type ToolCallFunction struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// Tool 工具声明
type Tool struct {
	Type     string       `json:"type"` // 固定为function
	Function ToolFunction `json:"function"`
}

// ToolFunction 函数声明
type ToolFunction struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  ToolParameters `json:"parameters"`
}

// ToolParameters 函数参数的JSON Schema
type ToolParameters struct {
	Type       string                  `json:"type"`
	Properties map[string]ToolProperty `json:"properties"`
	Required   []string                `json:"required,omitempty"`
}

// ToolProperty 单个参数
type ToolProperty struct {
	Type        string `json:"type"`
	Description string `json:"description,omitempty"`
}

// ChatRequest 对话请求参数
type ChatRequest struct {
	Model    string        `json:"model"`           // 模型名称
	Messages []ChatMessage `json:"messages"`        // 消息列表
	Tools    []Tool        `json:"tools,omitempty"` // 可用工具
	Stream   bool          `json:"stream"`          // 是否流式输出
	Options  *Options      `json:"options,omitempty"`
}

// Options 生成选项
type Options struct {
	Temperature float32 `json:"temperature,omitempty"` // 温度参数
	TopP        float32 `json:"top_p,omitempty"`       // Top-p采样
	TopK        int     `json:"top_k,omitempty"`       // Top-k采样
	NumPredict  int     `json:"num_predict,omitempty"` // 最大生成token数
}

// ChatResponse 对话响应
type ChatResponse struct {
	Model           string      `json:"model"`             // 模型名称
	CreatedAt       string      `json:"created_at"`        // 创建时间
	Message         ChatMessage `json:"message"`           // 生成的消息
	Done            bool        `json:"done"`              // 是否完成
	TotalDuration   int64       `json:"total_duration"`    // 总耗时(纳秒)
	LoadDuration    int64       `json:"load_duration"`     // 加载耗时(纳秒)
	PromptEvalCount int         `json:"prompt_eval_count"` // 提示词评估数量
	EvalCount       int         `json:"eval_count"`        // 评估数量
	EvalDuration    int64       `json:"eval_duration"`     // 评估耗时(纳秒)
}

// NewClient 创建新的Ollama客户端
func NewClient(config Config, specs []models.ToolSpec) *Client {
	return &Client{
		config: config,
		client: &http.Client{},
		tools:  ToolDeclarations(specs),
	}
}

// Chat 发送一次非流式对话请求
func (c *Client) Chat(ctx context.Context, messages []ChatMessage) (*ChatResponse, error) {
	reqBody := ChatRequest{
		Model:    c.config.Model,
		Messages: messages,
		Tools:    c.tools,
		Stream:   false,
	}
	if c.config.Options != (Options{}) {
		opts := c.config.Options
		reqBody.Options = &opts
	}

	// 序列化请求体
	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("序列化请求失败: %v", err)
	}

	url := fmt.Sprintf("%s/api/chat", strings.TrimRight(c.config.Host, "/"))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("创建请求失败: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("发送请求失败: %v", err)
	}
	defer resp.Body.Close()

	// 检查响应状态码
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("服务器返回错误: %s", string(body))
	}

	var response ChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("解析响应失败: %v", err)
	}

	return &response, nil
}

// Generate 基于对话历史和最新转写生成回复或工具调用
func (c *Client) Generate(ctx context.Context, history []models.Message, transcript string) (models.Outcome, error) {
	resp, err := c.Chat(ctx, c.buildMessages(history, transcript))
	if err != nil {
		return models.Outcome{}, err
	}
	return ParseMessage(resp.Message), nil
}

// SubmitToolResults 回传本轮全部工具调用结果
func (c *Client) SubmitToolResults(ctx context.Context, history []models.Message, exchanges []models.ToolExchange) (models.Outcome, error) {
	messages := c.buildMessages(history, "")
	for _, ex := range exchanges {
		result, err := json.Marshal(ex.Result)
		if err != nil {
			return models.Outcome{}, fmt.Errorf("序列化工具结果失败: %v", err)
		}
		messages = append(messages,
			ChatMessage{
				Role:      "assistant",
				ToolCalls: []ToolCall{{Function: ToolCallFunction{Name: ex.Invocation.Name, Arguments: ex.Invocation.Args}}},
			},
			ChatMessage{Role: "tool", Content: string(result), ToolName: ex.Invocation.Name},
		)
	}

	resp, err := c.Chat(ctx, messages)
	if err != nil {
		return models.Outcome{}, err
	}
	return ParseMessage(resp.Message), nil
}

func (c *Client) buildMessages(history []models.Message, transcript string) []ChatMessage {
	messages := make([]ChatMessage, 0, len(history)+2)
	if c.config.SystemPrompt != "" {
		messages = append(messages, ChatMessage{Role: "system", Content: c.config.SystemPrompt})
	}
	for _, msg := range history {
		role := "user"
		if msg.Role == models.RoleAssistant {
			role = "assistant"
		}
		messages = append(messages, ChatMessage{Role: role, Content: msg.Text})
	}

	if transcript == "" {
		return messages
	}
	if n := len(history); n > 0 && history[n-1].Role == models.RoleCaller && history[n-1].Text == transcript {
		return messages
	}
	return append(messages, ChatMessage{Role: "user", Content: transcript})
}

// ParseMessage 优先取工具调用，否则取文本
func ParseMessage(msg ChatMessage) models.Outcome {
	for _, call := range msg.ToolCalls {
		if call.Function.Name != "" {
			return models.ToolOutcome(models.ToolInvocation{Name: call.Function.Name, Args: call.Function.Arguments})
		}
	}
	return models.TextOutcome(strings.TrimSpace(msg.Content))
}

// ToolDeclarations 把工具声明转换为Ollama工具格式
func ToolDeclarations(specs []models.ToolSpec) []Tool {
	tools := make([]Tool, 0, len(specs))
	for _, spec := range specs {
		params := ToolParameters{
			Type:       "object",
			Properties: make(map[string]ToolProperty, len(spec.Parameters)),
		}
		for _, p := range spec.Parameters {
			params.Properties[p.Name] = ToolProperty{Type: p.Type, Description: p.Description}
			if p.Required {
				params.Required = append(params.Required, p.Name)
			}
		}
		tools = append(tools, Tool{
			Type:     "function",
			Function: ToolFunction{Name: spec.Name, Description: spec.Description, Parameters: params},
		})
	}
	return tools
}
