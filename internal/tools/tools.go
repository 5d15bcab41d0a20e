// Package tools defines the tools available to the agent.
//
// Tool execution never fails: every error condition (unknown tool,
// malformed arguments, handler failure) is converted into descriptive
// result text. The model always receives a tool response it can reason
// about, and the loop never stalls waiting for one.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
)

// Tool represents a callable tool.
type Tool struct {
	Name        string                                                         `json:"name"`
	Description string                                                         `json:"description"`
	Parameters  map[string]any                                                 `json:"parameters"`
	Handler     func(ctx context.Context, args map[string]any) (string, error) `json:"-"`
}

// Registry holds available tools.
type Registry struct {
	tools  map[string]*Tool
	logger *slog.Logger
}

// NewRegistry creates an empty tool registry.
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		tools:  make(map[string]*Tool),
		logger: logger.With("component", "tools"),
	}
}

// Register adds a tool to the registry.
func (r *Registry) Register(t *Tool) {
	r.tools[t.Name] = t
}

// Get retrieves a tool by name.
func (r *Registry) Get(name string) *Tool {
	return r.tools[name]
}

// Names returns the sorted registered tool names.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// List returns the tool catalog in the provider's function format.
func (r *Registry) List() []map[string]any {
	var result []map[string]any
	for _, name := range r.Names() {
		t := r.tools[name]
		result = append(result, map[string]any{
			"type": "function",
			"function": map[string]any{
				"name":        t.Name,
				"description": t.Description,
				"parameters":  t.Parameters,
			},
		})
	}
	return result
}

// Execute runs a tool by name with raw JSON arguments and always
// returns result text. Unknown names, malformed argument JSON, and
// handler errors all come back as descriptive text, never as a failure.
func (r *Registry) Execute(ctx context.Context, name, argsJSON string) string {
	r.logger.Info("executing tool", "tool", name)

	tool := r.tools[name]
	if tool == nil {
		r.logger.Error("unknown tool requested", "tool", name)
		return fmt.Sprintf("Error: Unknown tool '%s'. Available tools: %s",
			name, joinNames(r.Names()))
	}

	var args map[string]any
	if argsJSON != "" {
		if err := json.Unmarshal([]byte(argsJSON), &args); err != nil {
			r.logger.Error("invalid tool arguments", "tool", name, "error", err)
			return "Error: Invalid tool arguments (malformed JSON). Please try again with valid JSON."
		}
	}

	result, err := tool.Handler(ctx, args)
	if err != nil {
		r.logger.Error("tool execution failed", "tool", name, "error", err)
		return fmt.Sprintf("Error executing tool '%s': %v", name, err)
	}
	return result
}

func joinNames(names []string) string {
	if len(names) == 0 {
		return "(none)"
	}
	out := names[0]
	for _, n := range names[1:] {
		out += ", " + n
	}
	return out
}
