package history

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/docent-ai/docent/internal/llm"
	"github.com/docent-ai/docent/internal/prompts"
	"github.com/docent-ai/docent/internal/store"
)

const (
	summaryTemperature = 0.3
	summaryMaxTokens   = 200
)

// startRegeneration kicks off a background summarization of old,
// superseding any in-flight one for the session. When prev covers a
// prefix of old the regeneration is incremental; otherwise it
// summarizes from scratch.
func (m *Manager) startRegeneration(sessionID string, old []store.Message, prev *store.Summary) {
	task, ctx := m.registry.Start(sessionID)

	mode := "full"
	if prev != nil && prev.MessageCount > 0 {
		mode = "incremental"
	}
	m.logger.Info("starting background summarization",
		"session", sessionID, "mode", mode, "messages", len(old))

	go m.regenerate(ctx, task, sessionID, old, prev)
}

func (m *Manager) regenerate(ctx context.Context, task *Task, sessionID string, old []store.Message, prev *store.Summary) {
	text, err := m.generateSummary(ctx, old, prev)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			m.logger.Debug("summarization superseded", "session", sessionID)
		} else {
			m.logger.Error("summarization failed", "session", sessionID, "error", err)
		}
		task.Fail(err)
		return
	}

	// Background work runs on the plain handle, never a request
	// transaction.
	if _, err := m.store.UpsertSummary(ctx, m.store.DB(), sessionID, len(old), text); err != nil {
		m.logger.Error("summary write failed", "session", sessionID, "error", err)
		task.Fail(err)
		return
	}

	m.logger.Info("summary cached", "session", sessionID, "covers", len(old))
	task.Complete(text)
}

// generateSummary asks the provider for a summary of the old turns.
// Only user and assistant turns carry conversational content worth
// summarizing; tool results are transient.
func (m *Manager) generateSummary(ctx context.Context, old []store.Message, prev *store.Summary) (string, error) {
	relevant := make([]store.Message, 0, len(old))
	for _, msg := range old {
		if msg.Role == store.RoleUser || msg.Role == store.RoleAssistant {
			relevant = append(relevant, msg)
		}
	}
	if len(relevant) == 0 {
		return "", errors.New("no summarizable messages")
	}

	var req llm.ChatRequest
	if prev != nil && prev.MessageCount > 0 && prev.MessageCount < len(relevant) {
		newText := formatMessages(relevant[prev.MessageCount:])
		req = llm.ChatRequest{
			Messages: []llm.Message{
				{Role: "user", Content: prompts.IncrementalSummary(prev.SummaryText, newText)},
			},
			Temperature: summaryTemperature,
			MaxTokens:   summaryMaxTokens,
		}
	} else {
		req = llm.ChatRequest{
			Messages: []llm.Message{
				{Role: "system", Content: prompts.SummarySystem()},
				{Role: "user", Content: prompts.SummaryUser(formatMessages(relevant))},
			},
			Temperature: summaryTemperature,
			MaxTokens:   summaryMaxTokens,
		}
	}

	resp, err := m.client.Chat(ctx, req)
	if err != nil {
		return "", fmt.Errorf("summary completion: %w", err)
	}
	text := strings.TrimSpace(resp.Message.Content)
	if text == "" {
		return "", errors.New("provider returned empty summary")
	}
	return text, nil
}

// formatMessages renders turns as "role: content" lines for the
// summarization prompt.
func formatMessages(msgs []store.Message) string {
	var b strings.Builder
	for _, msg := range msgs {
		fmt.Fprintf(&b, "%s: %s\n", msg.Role, msg.Content)
	}
	return strings.TrimRight(b.String(), "\n")
}
