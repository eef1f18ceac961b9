package models

import (
	"encoding/json"
	"errors"
)

// ErrUnknownTool 工具名称未注册
var ErrUnknownTool = errors.New("unknown tool")

// ToolInvocation 生成引擎发起的工具调用
type ToolInvocation struct {
	Name string         `json:"name"` // 工具名称
	Args map[string]any `json:"args"` // 调用参数
}

// ToolResult 工具调用结果，成功时携带Payload，失败时携带Err
type ToolResult struct {
	Payload any    `json:"-"`
	Err     string `json:"-"`
}

// ToolSuccess 构建成功结果
func ToolSuccess(payload any) ToolResult {
	return ToolResult{Payload: payload}
}

// ToolError 构建错误结果
func ToolError(message string) ToolResult {
	return ToolResult{Err: message}
}

// IsError 是否为错误结果
func (r ToolResult) IsError() bool {
	return r.Err != ""
}

// Value 返回回传给生成引擎的结构化内容
func (r ToolResult) Value() any {
	if r.IsError() {
		return map[string]any{"error": r.Err}
	}
	return r.Payload
}

// MarshalJSON 错误结果序列化为 {"error": "..."}
func (r ToolResult) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.Value())
}

// ToolExchange 一轮工具调度：调用及其结果
type ToolExchange struct {
	Invocation ToolInvocation
	Result     ToolResult
}

// Outcome 生成结果，要么是文本，要么是工具调用请求
type Outcome struct {
	text string
	tool *ToolInvocation
}

// TextOutcome 文本结果
func TextOutcome(text string) Outcome {
	return Outcome{text: text}
}

// ToolOutcome 工具调用请求
func ToolOutcome(inv ToolInvocation) Outcome {
	return Outcome{tool: &inv}
}

// IsToolRequest 是否为工具调用请求
func (o Outcome) IsToolRequest() bool {
	return o.tool != nil
}

// Text 文本内容，工具调用请求时为空
func (o Outcome) Text() string {
	return o.text
}

// Tool 工具调用，文本结果时为nil
func (o Outcome) Tool() *ToolInvocation {
	return o.tool
}

// ToolParameter 工具参数声明
type ToolParameter struct {
	Name        string
	Type        string // string / number / boolean
	Description string
	Required    bool
}

// ToolSpec 暴露给生成引擎的工具声明
type ToolSpec struct {
	Name        string
	Description string
	Parameters  []ToolParameter
}
