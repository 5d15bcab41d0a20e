package agent

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/docent-ai/docent/internal/history"
	"github.com/docent-ai/docent/internal/kb"
	"github.com/docent-ai/docent/internal/llm"
	"github.com/docent-ai/docent/internal/prompts"
	"github.com/docent-ai/docent/internal/store"
	"github.com/docent-ai/docent/internal/tools"

	_ "modernc.org/sqlite"
)

// scriptedClient replays a fixed sequence of responses. When the script
// runs out it repeats the last entry.
type scriptedClient struct {
	script   []*llm.ChatResponse
	err      error
	calls    int
	requests []llm.ChatRequest
}

func (c *scriptedClient) Chat(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	c.calls++
	c.requests = append(c.requests, req)
	if c.err != nil {
		return nil, c.err
	}
	i := c.calls - 1
	if i >= len(c.script) {
		i = len(c.script) - 1
	}
	return c.script[i], nil
}

func (c *scriptedClient) Ping(ctx context.Context) error { return nil }

func textResponse(content string) *llm.ChatResponse {
	return &llm.ChatResponse{Message: llm.Message{Role: "assistant", Content: content}}
}

func toolCallResponse(id, name, args string) *llm.ChatResponse {
	return &llm.ChatResponse{Message: llm.Message{
		Role: "assistant",
		ToolCalls: []llm.ToolCall{{
			ID:       id,
			Type:     "function",
			Function: llm.FunctionCall{Name: name, Arguments: args},
		}},
	}}
}

type fixture struct {
	loop   *Loop
	store  *store.Store
	client *scriptedClient
}

func newFixture(t *testing.T, client *scriptedClient, kbFiles map[string]string) *fixture {
	t.Helper()
	logger := slog.New(slog.DiscardHandler)

	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	st := store.New(db, logger)
	if err := st.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	kbDir := t.TempDir()
	for name, content := range kbFiles {
		if err := os.WriteFile(filepath.Join(kbDir, name), []byte(content), 0o644); err != nil {
			t.Fatalf("write kb file: %v", err)
		}
	}
	svc, err := kb.NewService(kbDir, logger)
	if err != nil {
		t.Fatalf("kb.NewService: %v", err)
	}

	registry := tools.NewRegistry(logger)
	tools.RegisterSearchKB(registry, svc)

	hist := history.NewManager(st, client, history.NewTaskRegistry(), logger)
	return &fixture{
		loop:   New(st, client, registry, hist, logger),
		store:  st,
		client: client,
	}
}

func (f *fixture) newSession(t *testing.T) string {
	t.Helper()
	sess, err := f.store.CreateSession(context.Background(), f.store.DB(), "", "test")
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	return sess.ID
}

func TestProcessTurnWithToolRoundTrip(t *testing.T) {
	client := &scriptedClient{script: []*llm.ChatResponse{
		toolCallResponse("call_1", "search_kb", `{"query": "return policy"}`),
		textResponse("Returns are accepted within 30 days."),
	}}
	f := newFixture(t, client, map[string]string{
		"policy.txt": "Returns accepted within 30 days of purchase.",
	})
	id := f.newSession(t)
	ctx := context.Background()

	reply, err := f.loop.ProcessTurn(ctx, id, "What is the return policy?", nil)
	if err != nil {
		t.Fatalf("ProcessTurn: %v", err)
	}
	if reply.Role != store.RoleAssistant {
		t.Errorf("reply role = %q", reply.Role)
	}
	if reply.Content != "Returns are accepted within 30 days." {
		t.Errorf("reply = %q", reply.Content)
	}
	if client.calls != 2 {
		t.Errorf("provider calls = %d, want 2", client.calls)
	}

	// Persisted transcript: only the user and assistant turns. Tool
	// traffic stays in memory.
	msgs, err := f.store.MessagesBySession(ctx, f.store.DB(), id)
	if err != nil {
		t.Fatalf("MessagesBySession: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("persisted %d messages, want 2", len(msgs))
	}
	if msgs[0].Role != store.RoleUser || msgs[1].Role != store.RoleAssistant {
		t.Errorf("roles = %s, %s", msgs[0].Role, msgs[1].Role)
	}

	// The second provider request carried the tool exchange in memory.
	second := client.requests[1]
	last := second.Messages[len(second.Messages)-1]
	if last.Role != "tool" || last.ToolCallID != "call_1" {
		t.Errorf("last message = %+v", last)
	}
	if !strings.Contains(last.Content, "=== policy.txt ===") {
		t.Errorf("tool result = %q", last.Content)
	}
}

func TestProcessTurnNoTools(t *testing.T) {
	client := &scriptedClient{script: []*llm.ChatResponse{textResponse("Hello!")}}
	f := newFixture(t, client, nil)
	id := f.newSession(t)
	ctx := context.Background()

	reply, err := f.loop.ProcessTurn(ctx, id, "Hi", nil)
	if err != nil {
		t.Fatalf("ProcessTurn: %v", err)
	}
	if reply.Content != "Hello!" {
		t.Errorf("reply = %q", reply.Content)
	}

	msgs, _ := f.store.MessagesBySession(ctx, f.store.DB(), id)
	if len(msgs) != 2 {
		t.Errorf("persisted %d messages, want user + assistant", len(msgs))
	}

	// First request: system directive then the user turn.
	first := client.requests[0]
	if first.Messages[0].Role != "system" || first.Messages[0].Content != prompts.System {
		t.Errorf("first message = %+v", first.Messages[0])
	}
	if first.Temperature != chatTemperature {
		t.Errorf("temperature = %v", first.Temperature)
	}
	if len(first.Tools) != 1 {
		t.Errorf("tool catalog = %d entries", len(first.Tools))
	}
}

func TestProcessTurnIterationCap(t *testing.T) {
	// The model never stops asking for tools.
	client := &scriptedClient{script: []*llm.ChatResponse{
		toolCallResponse("call_x", "search_kb", `{"query": "loop"}`),
	}}
	f := newFixture(t, client, nil)
	id := f.newSession(t)
	ctx := context.Background()

	reply, err := f.loop.ProcessTurn(ctx, id, "spin", nil)
	if err != nil {
		t.Fatalf("ProcessTurn: %v", err)
	}
	if client.calls != maxIterations {
		t.Errorf("provider calls = %d, want %d", client.calls, maxIterations)
	}
	if reply.Content != prompts.IterationExhaustedFallback {
		t.Errorf("reply = %q, want fallback", reply.Content)
	}

	// Only the user turn and the fallback assistant turn persist.
	msgs, _ := f.store.MessagesBySession(ctx, f.store.DB(), id)
	if len(msgs) != 2 {
		t.Errorf("persisted %d messages, want 2", len(msgs))
	}
}

func TestProcessTurnToolErrorKeepsLooping(t *testing.T) {
	client := &scriptedClient{script: []*llm.ChatResponse{
		toolCallResponse("call_1", "no_such_tool", `{}`),
		textResponse("I could not find that."),
	}}
	f := newFixture(t, client, nil)
	id := f.newSession(t)

	reply, err := f.loop.ProcessTurn(context.Background(), id, "try", nil)
	if err != nil {
		t.Fatalf("tool failure must not fail the turn: %v", err)
	}
	if reply.Content != "I could not find that." {
		t.Errorf("reply = %q", reply.Content)
	}

	// The model saw the unknown-tool text as the tool result.
	second := client.requests[1]
	last := second.Messages[len(second.Messages)-1]
	if last.Role != "tool" || !strings.Contains(last.Content, "Unknown tool") {
		t.Errorf("tool turn = %+v, want unknown-tool text", last)
	}
}

func TestProcessTurnProviderFailureRollsBack(t *testing.T) {
	client := &scriptedClient{err: errors.New("provider down")}
	f := newFixture(t, client, nil)
	id := f.newSession(t)
	ctx := context.Background()

	_, err := f.loop.ProcessTurn(ctx, id, "hello", nil)
	if err == nil {
		t.Fatal("expected provider error")
	}
	if !errors.Is(err, ErrProvider) {
		t.Errorf("err = %v, want ErrProvider in chain", err)
	}

	// The user turn must not survive the rollback.
	msgs, err := f.store.MessagesBySession(ctx, f.store.DB(), id)
	if err != nil {
		t.Fatalf("MessagesBySession: %v", err)
	}
	if len(msgs) != 0 {
		t.Errorf("persisted %d messages after failed turn, want 0", len(msgs))
	}
}

func TestProcessTurnUnknownSession(t *testing.T) {
	client := &scriptedClient{script: []*llm.ChatResponse{textResponse("hi")}}
	f := newFixture(t, client, nil)

	_, err := f.loop.ProcessTurn(context.Background(), "nope", "hello", nil)
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestProcessTurnEmitsEvents(t *testing.T) {
	client := &scriptedClient{script: []*llm.ChatResponse{
		toolCallResponse("call_1", "search_kb", `{"query": "q"}`),
		textResponse("done"),
	}}
	f := newFixture(t, client, nil)
	id := f.newSession(t)

	var events []Event
	_, err := f.loop.ProcessTurn(context.Background(), id, "go", func(e Event) {
		events = append(events, e)
	})
	if err != nil {
		t.Fatalf("ProcessTurn: %v", err)
	}

	types := make([]string, len(events))
	for i, e := range events {
		types[i] = e.Type
	}
	want := []string{"tool_call", "tool_result", "final"}
	if fmt.Sprint(types) != fmt.Sprint(want) {
		t.Errorf("event types = %v, want %v", types, want)
	}
	if events[0].Tool != "search_kb" {
		t.Errorf("tool_call event tool = %q", events[0].Tool)
	}
	if events[2].Content != "done" {
		t.Errorf("final event content = %q", events[2].Content)
	}
}
