package genai

import (
	"encoding/json"
	"testing"

	"github.com/openai/openai-go"
)

func TestToModelToolCalls(t *testing.T) {
	calls := []openai.ChatCompletionMessageToolCall{
		{
			ID: "call-1",
			Function: openai.ChatCompletionMessageToolCallFunction{
				Name:      "select_service",
				Arguments: `{"service_id":"svc-1"}`,
			},
		},
		{
			ID: "call-2",
			Function: openai.ChatCompletionMessageToolCallFunction{
				Name:      "query_availability",
				Arguments: `{"date":"2026-09-07","staff_id":""}`,
			},
		},
	}

	out := toModelToolCalls(calls)
	if len(out) != 2 {
		t.Fatalf("got %d tool calls, want 2", len(out))
	}
	if out[0].ID != "call-1" || out[0].Function.Name != "select_service" {
		t.Errorf("first call = %+v", out[0])
	}
	for i, tc := range out {
		if !json.Valid(tc.Function.Arguments) {
			t.Errorf("call %d arguments are not valid JSON: %s", i, tc.Function.Arguments)
		}
	}
	var parsed struct {
		ServiceID string `json:"service_id"`
	}
	if err := json.Unmarshal(out[0].Function.Arguments, &parsed); err != nil {
		t.Fatalf("unmarshal arguments: %v", err)
	}
	if parsed.ServiceID != "svc-1" {
		t.Errorf("service_id = %q, want svc-1", parsed.ServiceID)
	}
}

func TestToModelToolCallsEmpty(t *testing.T) {
	if out := toModelToolCalls(nil); out != nil {
		t.Errorf("got %v, want nil", out)
	}
}
