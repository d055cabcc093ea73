package anthropic

import (
	"encoding/json"
	"testing"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/workspaced/convo/model"
	"github.com/workspaced/convo/tool"
)

func TestConvertMessagesLiftsSystemPrompt(t *testing.T) {
	system, params := convertMessages([]model.Message{
		{Role: model.RoleSystem, Content: "base prompt"},
		{Role: model.RoleSystem, Content: "pinned context"},
		{Role: model.RoleUser, Content: "hello"},
	})

	if system != "base prompt\n\npinned context" {
		t.Errorf("system = %q", system)
	}
	if len(params) != 1 {
		t.Fatalf("expected 1 message param, got %d", len(params))
	}
	if params[0].Role != anthropic.MessageParamRoleUser {
		t.Errorf("role = %q", params[0].Role)
	}
	if block := params[0].Content[0]; block.OfText == nil || block.OfText.Text != "hello" {
		t.Errorf("content block: %+v", block)
	}
}

func TestConvertMessagesToolRound(t *testing.T) {
	args := json.RawMessage(`{"code":"2+2"}`)
	_, params := convertMessages([]model.Message{
		{Role: model.RoleUser, Content: "compute"},
		{
			Role:    model.RoleAssistant,
			Content: "Running it.",
			ToolCalls: []model.ToolCall{
				{ID: "call_1", Name: "execute_code", Arguments: args},
			},
		},
		{Role: model.RoleTool, ToolCallID: "call_1", Content: "4"},
		{Role: model.RoleTool, ToolCallID: "call_2", Content: "done"},
	})

	if len(params) != 3 {
		t.Fatalf("expected 3 message params, got %d", len(params))
	}

	assistant := params[1]
	if assistant.Role != anthropic.MessageParamRoleAssistant {
		t.Errorf("assistant role = %q", assistant.Role)
	}
	if len(assistant.Content) != 2 {
		t.Fatalf("assistant blocks = %d, want text + tool use", len(assistant.Content))
	}
	toolUse := assistant.Content[1].OfToolUse
	if toolUse == nil || toolUse.ID != "call_1" || toolUse.Name != "execute_code" {
		t.Errorf("tool use block: %+v", assistant.Content[1])
	}

	// Consecutive tool results fold into one user message.
	results := params[2]
	if results.Role != anthropic.MessageParamRoleUser {
		t.Errorf("tool results role = %q", results.Role)
	}
	if len(results.Content) != 2 {
		t.Fatalf("tool result blocks = %d", len(results.Content))
	}
	first := results.Content[0].OfToolResult
	if first == nil || first.ToolUseID != "call_1" {
		t.Errorf("first tool result: %+v", results.Content[0])
	}
}

func TestConvertMessagesAssistantWithoutContentSkipped(t *testing.T) {
	_, params := convertMessages([]model.Message{
		{Role: model.RoleUser, Content: "hi"},
		{Role: model.RoleAssistant, Content: ""},
	})
	if len(params) != 1 {
		t.Errorf("expected the empty assistant message to be dropped, got %d params", len(params))
	}
}

func TestConvertTools(t *testing.T) {
	defs := []model.ToolDefinition{
		{
			Name:        "generate_image",
			Description: "Generates an image from a prompt.",
			InputSchema: tool.Schema{
				Type: "object",
				Properties: map[string]tool.Property{
					"prompt": {Type: "string", Description: "image prompt"},
					"style":  {Type: "string", Enum: []string{"photo", "sketch"}},
				},
				Required: []string{"prompt"},
			},
		},
	}

	tools := convertTools(defs)
	if len(tools) != 1 {
		t.Fatalf("expected 1 tool, got %d", len(tools))
	}
	tp := tools[0].OfTool
	if tp == nil || tp.Name != "generate_image" {
		t.Fatalf("tool param: %+v", tools[0])
	}
	if tp.InputSchema.Type != "object" {
		t.Errorf("schema type = %q", tp.InputSchema.Type)
	}
	props, ok := tp.InputSchema.Properties.(map[string]any)
	if !ok {
		t.Fatalf("properties type %T", tp.InputSchema.Properties)
	}
	style, _ := props["style"].(map[string]any)
	if style == nil || len(style["enum"].([]string)) != 2 {
		t.Errorf("style property: %+v", props["style"])
	}
	if len(tp.InputSchema.Required) != 1 || tp.InputSchema.Required[0] != "prompt" {
		t.Errorf("required = %v", tp.InputSchema.Required)
	}
}

func TestBuildParams(t *testing.T) {
	req := model.Request{
		Model: "claude-sonnet-4-5-20250929",
		Messages: []model.Message{
			{Role: model.RoleSystem, Content: "be brief"},
			{Role: model.RoleUser, Content: "hi"},
		},
		Temperature: 0.7,
	}

	params := buildParams(req)
	if params.Model != "claude-sonnet-4-5-20250929" {
		t.Errorf("model = %q", params.Model)
	}
	if params.MaxTokens != defaultMaxTokens {
		t.Errorf("MaxTokens = %d, want default when unset", params.MaxTokens)
	}
	if len(params.System) != 1 || params.System[0].Text != "be brief" {
		t.Errorf("system = %+v", params.System)
	}
	if !params.Temperature.Valid() || params.Temperature.Value != 0.7 {
		t.Errorf("temperature = %+v", params.Temperature)
	}

	req.Temperature = 0
	req.MaxTokens = 1024
	params = buildParams(req)
	if params.MaxTokens != 1024 {
		t.Errorf("MaxTokens = %d", params.MaxTokens)
	}
	if params.Temperature.Valid() {
		t.Errorf("temperature should be unset at zero, got %+v", params.Temperature)
	}
}
