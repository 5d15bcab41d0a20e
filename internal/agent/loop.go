// Package agent runs the bounded tool-calling conversation loop.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/docent-ai/docent/internal/history"
	"github.com/docent-ai/docent/internal/llm"
	"github.com/docent-ai/docent/internal/prompts"
	"github.com/docent-ai/docent/internal/store"
	"github.com/docent-ai/docent/internal/tools"
)

const (
	// maxIterations caps provider round trips per user turn. Hitting the
	// cap degrades to a fallback answer instead of erroring.
	maxIterations = 5

	chatTemperature = 0.7
)

// ErrProvider wraps completion-provider failures so callers can map
// them to an upstream outage rather than an internal error.
var ErrProvider = errors.New("completion provider")

// Event is a progress notification emitted while a turn is processed.
type Event struct {
	Type    string `json:"type"` // tool_call, tool_result, final
	Tool    string `json:"tool,omitempty"`
	Args    string `json:"args,omitempty"`
	Content string `json:"content,omitempty"`
}

// EventFunc observes loop progress. May be nil.
type EventFunc func(Event)

// Loop processes user turns: it persists the turn, optimizes history,
// and drives the provider through tool calls until a final answer.
type Loop struct {
	store   *store.Store
	client  llm.Client
	tools   *tools.Registry
	history *history.Manager
	logger  *slog.Logger
}

// New creates an agent loop.
func New(st *store.Store, client llm.Client, registry *tools.Registry, hist *history.Manager, logger *slog.Logger) *Loop {
	return &Loop{
		store:   st,
		client:  client,
		tools:   registry,
		history: hist,
		logger:  logger.With("component", "agent"),
	}
}

// ProcessTurn handles one user message and returns the persisted
// assistant reply. The user turn and the assistant turn commit
// atomically: a provider or persistence failure rolls everything back
// and the session is left as if the turn never happened. Tool traffic
// is never persisted; it lives only in the loop's in-memory transcript.
func (l *Loop) ProcessTurn(ctx context.Context, sessionID, userContent string, observe EventFunc) (*store.Message, error) {
	tx, err := l.store.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin turn: %w", err)
	}
	defer tx.Rollback()

	if _, err := l.store.GetSession(ctx, tx, sessionID); err != nil {
		return nil, err
	}

	if _, err := l.store.AppendMessage(ctx, tx, sessionID, store.RoleUser, userContent); err != nil {
		return nil, fmt.Errorf("persist user turn: %w", err)
	}

	hist, optimized, err := l.history.Optimize(ctx, tx, sessionID)
	if err != nil {
		return nil, err
	}
	l.logger.Debug("processing turn",
		"session", sessionID, "history", len(hist), "optimized", optimized)

	final, err := l.run(ctx, sessionID, projectMessages(hist, true), observe)
	if err != nil {
		return nil, err
	}

	reply, err := l.store.AppendMessage(ctx, tx, sessionID, store.RoleAssistant, final)
	if err != nil {
		return nil, fmt.Errorf("persist assistant turn: %w", err)
	}
	if err := l.store.TouchSession(ctx, tx, sessionID); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit turn: %w", err)
	}

	if observe != nil {
		observe(Event{Type: "final", Content: final})
	}
	return reply, nil
}

// run drives the provider until it stops requesting tools or the
// iteration cap is hit.
func (l *Loop) run(ctx context.Context, sessionID string, messages []llm.Message, observe EventFunc) (string, error) {
	for i := 0; i < maxIterations; i++ {
		resp, err := l.client.Chat(ctx, llm.ChatRequest{
			Messages:    messages,
			Tools:       l.tools.List(),
			Temperature: chatTemperature,
		})
		if err != nil {
			return "", fmt.Errorf("%w: %w", ErrProvider, err)
		}

		if !resp.HasToolCalls() {
			return resp.Message.Content, nil
		}

		l.logger.Info("model requested tools",
			"session", sessionID, "iteration", i+1, "calls", len(resp.Message.ToolCalls))
		messages = append(messages, assistantToolCallMessage(resp))

		// Calls execute sequentially in the order the model requested
		// them; each result joins the in-memory transcript only.
		for _, call := range resp.Message.ToolCalls {
			if observe != nil {
				observe(Event{Type: "tool_call", Tool: call.Function.Name, Args: call.Function.Arguments})
			}
			result := l.tools.Execute(ctx, call.Function.Name, call.Function.Arguments)
			if observe != nil {
				observe(Event{Type: "tool_result", Tool: call.Function.Name, Content: result})
			}
			messages = append(messages, toolResultMessage(call.ID, result))
		}
	}

	l.logger.Warn("iteration cap reached", "session", sessionID, "cap", maxIterations)
	return prompts.IterationExhaustedFallback, nil
}
