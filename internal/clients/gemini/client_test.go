package gemini

import (
	"context"
	"testing"

	"google.golang.org/genai"

	"ai_voice_bot/internal/config"
	"ai_voice_bot/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_NotConfigured(t *testing.T) {
	c, err := NewClient(context.Background(), Config{Model: "gemini-2.0-flash"}, nil)
	require.NoError(t, err)
	assert.False(t, c.Configured())

	outcome, err := c.Generate(context.Background(), nil, "hello")
	require.NoError(t, err)
	assert.Equal(t, config.NotConfiguredReply, outcome.Text())

	outcome, err = c.SubmitToolResults(context.Background(), nil, nil)
	require.NoError(t, err)
	assert.Equal(t, config.NotConfiguredReply, outcome.Text())
}

func TestBuildContents(t *testing.T) {
	history := []models.Message{
		{Role: models.RoleCaller, Text: "hi"},
		{Role: models.RoleAssistant, Text: "hello"},
		{Role: models.RoleCaller, Text: "check order 12345"},
	}

	tests := []struct {
		name       string
		transcript string
		wantLen    int
	}{
		{name: "转写已在历史末尾", transcript: "check order 12345", wantLen: 3},
		{name: "转写不在历史中", transcript: "something else", wantLen: 4},
		{name: "没有转写", transcript: "", wantLen: 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			contents := BuildContents(history, tt.transcript)
			require.Len(t, contents, tt.wantLen)
			assert.Equal(t, "user", contents[0].Role)
			assert.Equal(t, "model", contents[1].Role)
			assert.Equal(t, "hello", contents[1].Parts[0].Text)
			last := contents[len(contents)-1]
			assert.Equal(t, "user", last.Role)
		})
	}
}

func TestExchangeContents(t *testing.T) {
	exchanges := []models.ToolExchange{
		{
			Invocation: models.ToolInvocation{Name: "check_order_status", Args: map[string]any{"order_number": "12345"}},
			Result:     models.ToolSuccess(map[string]any{"status": "shipped"}),
		},
		{
			Invocation: models.ToolInvocation{Name: "nonexistent_tool"},
			Result:     models.ToolError("unknown tool nonexistent_tool"),
		},
	}

	contents := ExchangeContents(exchanges)
	require.Len(t, contents, 4)

	call := contents[0].Parts[0].FunctionCall
	require.NotNil(t, call)
	assert.Equal(t, "model", contents[0].Role)
	assert.Equal(t, "check_order_status", call.Name)
	assert.Equal(t, "12345", call.Args["order_number"])

	resp := contents[1].Parts[0].FunctionResponse
	require.NotNil(t, resp)
	assert.Equal(t, "check_order_status", resp.Name)
	assert.Equal(t, map[string]any{"status": "shipped"}, resp.Response["result"])

	errResp := contents[3].Parts[0].FunctionResponse
	require.NotNil(t, errResp)
	assert.Equal(t, "unknown tool nonexistent_tool", errResp.Response["error"])
}

func TestParseResponse(t *testing.T) {
	tests := []struct {
		name     string
		resp     *genai.GenerateContentResponse
		wantTool string
		wantText string
	}{
		{
			name: "函数调用",
			resp: &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{
				Content: &genai.Content{Role: "model", Parts: []*genai.Part{{
					FunctionCall: &genai.FunctionCall{Name: "book_appointment", Args: map[string]any{"date": "Friday"}},
				}}},
			}}},
			wantTool: "book_appointment",
		},
		{
			name: "文本",
			resp: &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{
				Content: &genai.Content{Role: "model", Parts: []*genai.Part{{Text: " Your order has shipped. "}}},
			}}},
			wantText: "Your order has shipped.",
		},
		{name: "空响应", resp: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			outcome := ParseResponse(tt.resp)
			if tt.wantTool != "" {
				require.True(t, outcome.IsToolRequest())
				assert.Equal(t, tt.wantTool, outcome.Tool().Name)
				return
			}
			assert.False(t, outcome.IsToolRequest())
			assert.Equal(t, tt.wantText, outcome.Text())
		})
	}
}

func TestToolDeclarations(t *testing.T) {
	specs := []models.ToolSpec{{
		Name:        "book_appointment",
		Description: "Book an appointment for a customer",
		Parameters: []models.ToolParameter{
			{Name: "date", Type: "string", Required: true},
			{Name: "party_size", Type: "integer"},
		},
	}}

	tools := ToolDeclarations(specs)
	require.Len(t, tools, 1)
	require.Len(t, tools[0].FunctionDeclarations, 1)

	decl := tools[0].FunctionDeclarations[0]
	assert.Equal(t, "book_appointment", decl.Name)
	assert.Equal(t, genai.TypeObject, decl.Parameters.Type)
	assert.Equal(t, []string{"date"}, decl.Parameters.Required)
	assert.Equal(t, genai.TypeInteger, decl.Parameters.Properties["party_size"].Type)

	assert.Nil(t, ToolDeclarations(nil))
}
