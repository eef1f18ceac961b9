// Package gemini 基于 Gemini 的文本生成引擎，支持函数调用
package gemini

import (
	"context"
	"fmt"
	"log"
	"strings"

	"google.golang.org/genai"

	"ai_voice_bot/internal/config"
	"ai_voice_bot/internal/models"
)

// Config Gemini客户端配置
type Config struct {
	APIKey          string
	Model           string
	SystemPrompt    string
	Temperature     float32
	TopP            float32
	TopK            float32
	MaxOutputTokens int32
}

// Client Gemini生成引擎，无状态，可在多个会话间共享
type Client struct {
	config Config
	client *genai.Client
	tools  []*genai.Tool
}

// NewClient 创建Gemini客户端，未配置APIKey时只返回固定回复
func NewClient(ctx context.Context, cfg Config, specs []models.ToolSpec) (*Client, error) {
	c := &Client{
		config: cfg,
		tools:  ToolDeclarations(specs),
	}
	if cfg.APIKey == "" {
		log.Printf("未配置GEMINI_API_KEY，生成引擎将返回默认回复")
		return c, nil
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("创建Gemini客户端失败: %v", err)
	}
	c.client = client
	return c, nil
}

// Configured 是否已配置密钥
func (c *Client) Configured() bool {
	return c.client != nil
}

// Generate 基于对话历史和最新转写生成回复或工具调用
func (c *Client) Generate(ctx context.Context, history []models.Message, transcript string) (models.Outcome, error) {
	if !c.Configured() {
		return models.TextOutcome(config.NotConfiguredReply), nil
	}
	return c.generate(ctx, BuildContents(history, transcript))
}

// SubmitToolResults 回传本轮全部工具调用结果
func (c *Client) SubmitToolResults(ctx context.Context, history []models.Message, exchanges []models.ToolExchange) (models.Outcome, error) {
	if !c.Configured() {
		return models.TextOutcome(config.NotConfiguredReply), nil
	}
	contents := BuildContents(history, "")
	contents = append(contents, ExchangeContents(exchanges)...)
	return c.generate(ctx, contents)
}

func (c *Client) generate(ctx context.Context, contents []*genai.Content) (models.Outcome, error) {
	resp, err := c.client.Models.GenerateContent(ctx, c.config.Model, contents, c.generateConfig())
	if err != nil {
		return models.Outcome{}, fmt.Errorf("调用Gemini失败: %v", err)
	}
	return ParseResponse(resp), nil
}

func (c *Client) generateConfig() *genai.GenerateContentConfig {
	cfg := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(c.config.Temperature),
		TopP:            genai.Ptr(c.config.TopP),
		TopK:            genai.Ptr(c.config.TopK),
		MaxOutputTokens: c.config.MaxOutputTokens,
		Tools:           c.tools,
	}
	if c.config.SystemPrompt != "" {
		cfg.SystemInstruction = genai.NewContentFromText(c.config.SystemPrompt, genai.RoleUser)
	}
	return cfg
}

// BuildContents 把对话历史转换为Gemini的消息列表，转写不是最后一条来电消息时追加
func BuildContents(history []models.Message, transcript string) []*genai.Content {
	contents := make([]*genai.Content, 0, len(history)+1)
	for _, msg := range history {
		contents = append(contents, &genai.Content{
			Role:  roleOf(msg.Role),
			Parts: []*genai.Part{{Text: msg.Text}},
		})
	}

	if transcript == "" {
		return contents
	}
	if n := len(history); n > 0 && history[n-1].Role == models.RoleCaller && history[n-1].Text == transcript {
		return contents
	}
	return append(contents, &genai.Content{
		Role:  string(genai.RoleUser),
		Parts: []*genai.Part{{Text: transcript}},
	})
}

// ExchangeContents 每次工具调用转换为一条模型函数调用和一条函数响应
func ExchangeContents(exchanges []models.ToolExchange) []*genai.Content {
	contents := make([]*genai.Content, 0, len(exchanges)*2)
	for _, ex := range exchanges {
		contents = append(contents,
			&genai.Content{
				Role: string(genai.RoleModel),
				Parts: []*genai.Part{{
					FunctionCall: &genai.FunctionCall{Name: ex.Invocation.Name, Args: ex.Invocation.Args},
				}},
			},
			&genai.Content{
				Role: string(genai.RoleUser),
				Parts: []*genai.Part{{
					FunctionResponse: &genai.FunctionResponse{Name: ex.Invocation.Name, Response: responseOf(ex.Result)},
				}},
			},
		)
	}
	return contents
}

// ParseResponse 优先取函数调用，否则取文本
func ParseResponse(resp *genai.GenerateContentResponse) models.Outcome {
	if resp == nil {
		return models.TextOutcome("")
	}
	if calls := resp.FunctionCalls(); len(calls) > 0 && calls[0].Name != "" {
		return models.ToolOutcome(models.ToolInvocation{Name: calls[0].Name, Args: calls[0].Args})
	}
	return models.TextOutcome(strings.TrimSpace(resp.Text()))
}

// ToolDeclarations 把工具声明转换为Gemini函数声明
func ToolDeclarations(specs []models.ToolSpec) []*genai.Tool {
	if len(specs) == 0 {
		return nil
	}

	decls := make([]*genai.FunctionDeclaration, 0, len(specs))
	for _, spec := range specs {
		schema := &genai.Schema{
			Type:       genai.TypeObject,
			Properties: make(map[string]*genai.Schema, len(spec.Parameters)),
		}
		for _, p := range spec.Parameters {
			schema.Properties[p.Name] = &genai.Schema{Type: typeOf(p.Type), Description: p.Description}
			if p.Required {
				schema.Required = append(schema.Required, p.Name)
			}
		}
		decls = append(decls, &genai.FunctionDeclaration{
			Name:        spec.Name,
			Description: spec.Description,
			Parameters:  schema,
		})
	}
	return []*genai.Tool{{FunctionDeclarations: decls}}
}

func responseOf(result models.ToolResult) map[string]any {
	if result.IsError() {
		return map[string]any{"error": result.Err}
	}
	return map[string]any{"result": result.Payload}
}

func roleOf(role models.Role) string {
	if role == models.RoleAssistant {
		return string(genai.RoleModel)
	}
	return string(genai.RoleUser)
}

func typeOf(t string) genai.Type {
	switch t {
	case "number":
		return genai.TypeNumber
	case "integer":
		return genai.TypeInteger
	case "boolean":
		return genai.TypeBoolean
	default:
		return genai.TypeString
	}
}
