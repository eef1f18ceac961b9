package ollama_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"ai_voice_bot/internal/clients/ollama"
	"ai_voice_bot/internal/models"
)

var testSpecs = []models.ToolSpec{{
	Name:        "check_order_status",
	Description: "Check the status of a customer order",
	Parameters:  []models.ToolParameter{{Name: "order_number", Type: "string", Required: true}},
}}

func TestClient_Generate(t *testing.T) {
	// 创建测试服务器
	var got ollama.ChatRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// 检查请求方法和路径
		if r.Method != "POST" || r.URL.Path != "/api/chat" {
			t.Errorf("无效的请求: %s %s", r.Method, r.URL.Path)
		}

		// 检查Content-Type
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("期望Content-Type为application/json，实际收到%s", r.Header.Get("Content-Type"))
		}

		// 解析请求体
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("解析请求体失败: %v", err)
		}

		// 返回模拟响应
		resp := ollama.ChatResponse{
			Model:     "test-model",
			CreatedAt: time.Now().Format(time.RFC3339),
			Message:   ollama.ChatMessage{Role: "assistant", Content: " How can I help? "},
			Done:      true,
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	client := ollama.NewClient(ollama.Config{
		Host:         server.URL,
		Model:        "test-model",
		SystemPrompt: "be brief",
		Options:      ollama.Options{Temperature: 0.7, NumPredict: 150},
	}, testSpecs)

	history := []models.Message{
		{Role: models.RoleCaller, Text: "hi"},
	}
	outcome, err := client.Generate(context.Background(), history, "hi")
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if outcome.IsToolRequest() || outcome.Text() != "How can I help?" {
		t.Errorf("Generate() = %+v, want text", outcome)
	}

	if got.Model != "test-model" || got.Stream {
		t.Errorf("请求参数错误: model=%s stream=%v", got.Model, got.Stream)
	}
	if len(got.Messages) != 2 || got.Messages[0].Role != "system" || got.Messages[1].Content != "hi" {
		t.Errorf("请求消息错误: %+v", got.Messages)
	}
	if len(got.Tools) != 1 || got.Tools[0].Function.Name != "check_order_status" {
		t.Errorf("请求工具错误: %+v", got.Tools)
	}
	if got.Tools[0].Function.Parameters.Required[0] != "order_number" {
		t.Errorf("必填参数错误: %+v", got.Tools[0].Function.Parameters)
	}
	if got.Options == nil || got.Options.NumPredict != 150 {
		t.Errorf("生成选项错误: %+v", got.Options)
	}
}

func TestClient_ToolRound(t *testing.T) {
	var got ollama.ChatRequest
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("解析请求体失败: %v", err)
		}

		var resp ollama.ChatResponse
		if calls == 1 {
			resp.Message = ollama.ChatMessage{
				Role: "assistant",
				ToolCalls: []ollama.ToolCall{{Function: ollama.ToolCallFunction{
					Name:      "check_order_status",
					Arguments: map[string]any{"order_number": "12345"},
				}}},
			}
		} else {
			resp.Message = ollama.ChatMessage{Role: "assistant", Content: "Your order has shipped."}
		}
		resp.Done = true
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	client := ollama.NewClient(ollama.Config{Host: server.URL, Model: "test-model"}, testSpecs)
	history := []models.Message{{Role: models.RoleCaller, Text: "check order 12345"}}

	outcome, err := client.Generate(context.Background(), history, "check order 12345")
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if !outcome.IsToolRequest() || outcome.Tool().Name != "check_order_status" {
		t.Fatalf("期望工具调用，实际收到 %+v", outcome)
	}
	if outcome.Tool().Args["order_number"] != "12345" {
		t.Errorf("工具参数错误: %+v", outcome.Tool().Args)
	}

	exchanges := []models.ToolExchange{{
		Invocation: *outcome.Tool(),
		Result:     models.ToolSuccess(map[string]any{"status": "shipped"}),
	}}
	outcome, err = client.SubmitToolResults(context.Background(), history, exchanges)
	if err != nil {
		t.Fatalf("SubmitToolResults() error = %v", err)
	}
	if outcome.Text() != "Your order has shipped." {
		t.Errorf("SubmitToolResults() = %q", outcome.Text())
	}

	// 用户消息 + 模型工具调用 + 工具结果
	if len(got.Messages) != 3 {
		t.Fatalf("期望3条消息，实际收到%d条", len(got.Messages))
	}
	if got.Messages[1].Role != "assistant" || len(got.Messages[1].ToolCalls) != 1 {
		t.Errorf("工具调用消息错误: %+v", got.Messages[1])
	}
	if got.Messages[2].Role != "tool" || got.Messages[2].Content != `{"status":"shipped"}` {
		t.Errorf("工具结果消息错误: %+v", got.Messages[2])
	}
}

func TestClient_GenerateErrors(t *testing.T) {
	// 创建测试服务器处理错误情况
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// 返回500错误
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("服务器内部错误"))
	}))
	defer server.Close()

	client := ollama.NewClient(ollama.Config{Host: server.URL, Model: "test-model"}, nil)
	if _, err := client.Generate(context.Background(), nil, "测试错误处理"); err == nil {
		t.Error("期望收到错误，但没有收到")
	}

	// 测试无效的服务器地址
	invalidClient := ollama.NewClient(ollama.Config{Host: "http://invalid-server.invalid", Model: "test-model"}, nil)
	if _, err := invalidClient.Generate(context.Background(), nil, "测试无效服务器"); err == nil {
		t.Error("期望收到错误，但没有收到")
	}
}
