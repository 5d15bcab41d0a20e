// Package llm provides the completion provider client.
package llm

// Message represents a chat message for the completion provider.
type Message struct {
	Role       string     `json:"role"` // system, user, assistant, tool
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"` // For tool responses
}

// ToolCall represents a tool invocation requested by the model.
type ToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"` // always "function"
	Function FunctionCall `json:"function"`
}

// FunctionCall carries the tool name and its arguments.
//
// Arguments stays a raw JSON string end-to-end: the model can emit
// malformed JSON, and that has to surface as a tool-execution error at
// dispatch time, not as a decode failure here.
type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ChatRequest is a provider-neutral completion request.
type ChatRequest struct {
	Messages    []Message
	Tools       []map[string]any
	Temperature float64
	MaxTokens   int // 0 means provider default
}

// ChatResponse is the unified response from the completion provider.
// Wire format conversion happens at the provider boundary (openai.go).
type ChatResponse struct {
	Model        string
	Message      Message
	FinishReason string

	// Token usage (provider-neutral)
	InputTokens  int
	OutputTokens int
}

// HasToolCalls reports whether the model requested tool invocations.
func (r *ChatResponse) HasToolCalls() bool {
	return len(r.Message.ToolCalls) > 0
}
