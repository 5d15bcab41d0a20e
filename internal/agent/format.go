package agent

import (
	"github.com/docent-ai/docent/internal/llm"
	"github.com/docent-ai/docent/internal/prompts"
	"github.com/docent-ai/docent/internal/store"
)

// projectMessages turns persisted history into the provider message
// sequence. Only user and assistant turns project; tool traffic exists
// solely in the loop's in-memory transcript, and anything else in old
// rows is skipped rather than risking a provider validation error.
func projectMessages(history []store.Message, withSystem bool) []llm.Message {
	out := make([]llm.Message, 0, len(history)+1)
	if withSystem {
		out = append(out, llm.Message{Role: "system", Content: prompts.System})
	}
	for _, msg := range history {
		if msg.Role != store.RoleUser && msg.Role != store.RoleAssistant {
			continue
		}
		out = append(out, llm.Message{Role: msg.Role, Content: msg.Content})
	}
	return out
}

// assistantToolCallMessage rebuilds the assistant turn that requested
// tool calls, for the in-loop transcript.
func assistantToolCallMessage(resp *llm.ChatResponse) llm.Message {
	return llm.Message{
		Role:      "assistant",
		Content:   resp.Message.Content,
		ToolCalls: resp.Message.ToolCalls,
	}
}

// toolResultMessage pairs a tool's output with the call that requested
// it.
func toolResultMessage(callID, result string) llm.Message {
	return llm.Message{
		Role:       "tool",
		Content:    result,
		ToolCallID: callID,
	}
}
