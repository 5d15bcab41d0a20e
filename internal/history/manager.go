package history

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/docent-ai/docent/internal/llm"
	"github.com/docent-ai/docent/internal/store"
)

const (
	// SummarizeThreshold is the turn count above which a history is
	// optimized instead of sent verbatim.
	SummarizeThreshold = 20

	// MaxRecent is how many of the newest turns are always kept verbatim.
	MaxRecent = 10

	// MaxToolResults caps how many tool-result turns survive pruning,
	// newest first.
	MaxToolResults = 3

	// ResummarizeThreshold is how many turns may accumulate past a cached
	// summary's coverage before the summary is considered stale.
	ResummarizeThreshold = 10

	// DefaultTaskWait bounds how long a request waits for an in-flight
	// regeneration before proceeding without it.
	DefaultTaskWait = 5 * time.Second
)

// Manager optimizes a session's history before it is projected into a
// provider request. Long histories are pruned and their older portion
// replaced by a cached summary; missing or stale summaries are
// regenerated in the background so the request path never blocks on the
// provider for more than a bounded wait.
type Manager struct {
	store    *store.Store
	client   llm.Client
	registry *TaskRegistry
	logger   *slog.Logger

	// taskWait is overridable so tests don't sit out the full window.
	taskWait time.Duration
}

// NewManager creates a history manager.
func NewManager(st *store.Store, client llm.Client, registry *TaskRegistry, logger *slog.Logger) *Manager {
	return &Manager{
		store:    st,
		client:   client,
		registry: registry,
		logger:   logger.With("component", "history"),
		taskWait: DefaultTaskWait,
	}
}

// Optimize loads a session's history and returns the turn set to build
// the provider request from, plus whether the set was optimized.
//
// Histories at or below SummarizeThreshold come back verbatim. Longer
// ones are pruned of stale tool results, split into an old and a recent
// portion, and the old portion replaced by a summary when one is
// available. When no summary can be resolved in time the full pruned
// set is returned and a regeneration runs in the background for the
// next call.
func (m *Manager) Optimize(ctx context.Context, q store.Querier, sessionID string) ([]store.Message, bool, error) {
	messages, err := m.store.MessagesBySession(ctx, q, sessionID)
	if err != nil {
		return nil, false, fmt.Errorf("load history: %w", err)
	}

	if len(messages) <= SummarizeThreshold {
		return messages, false, nil
	}

	// Pruning alone may bring the history back under the threshold, in
	// which case no summarization is needed this turn.
	pruned := pruneToolResults(messages, MaxToolResults)
	if len(pruned) <= SummarizeThreshold {
		return pruned, false, nil
	}

	old := pruned[:len(pruned)-MaxRecent]
	recent := pruned[len(pruned)-MaxRecent:]

	m.logger.Debug("optimizing history",
		"session", sessionID, "total", len(messages), "pruned", len(pruned), "old", len(old))

	summary, ok := m.resolveSummary(ctx, q, sessionID, old)
	if !ok {
		// No summary this turn. The model sees the pruned set; the next
		// call picks up the background result.
		return pruned, true, nil
	}

	return spliceSummary(summary, recent), true, nil
}

// resolveSummary implements cache-or-generate: a fresh cached summary
// is used as is; otherwise an in-flight regeneration is awaited for a
// bounded window, and failing that a new one is started.
func (m *Manager) resolveSummary(ctx context.Context, q store.Querier, sessionID string, old []store.Message) (string, bool) {
	cached, err := m.store.SummaryBySession(ctx, q, sessionID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			m.logger.Warn("summary lookup failed", "session", sessionID, "error", err)
		}
		cached = nil
	}

	if cached != nil && len(old)-cached.MessageCount < ResummarizeThreshold {
		m.logger.Debug("using cached summary",
			"session", sessionID, "covers", cached.MessageCount, "old", len(old))
		return cached.SummaryText, true
	}

	if text, ok := m.registry.Wait(ctx, sessionID, m.taskWait); ok {
		return text, true
	}

	m.startRegeneration(sessionID, old, cached)
	return "", false
}

// pruneToolResults drops all but the newest keep tool-result turns.
func pruneToolResults(messages []store.Message, keep int) []store.Message {
	kept := 0
	drop := make(map[int]bool)
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role != store.RoleTool {
			continue
		}
		if kept < keep {
			kept++
			continue
		}
		drop[i] = true
	}
	if len(drop) == 0 {
		return messages
	}

	out := make([]store.Message, 0, len(messages)-len(drop))
	for i, msg := range messages {
		if !drop[i] {
			out = append(out, msg)
		}
	}
	return out
}

// spliceSummary prefixes the summary onto the first recent turn when
// that turn is from the user, so the model reads it as conversation
// context rather than as its own words. A non-user first turn means
// the recent set is returned unchanged.
func spliceSummary(summary string, recent []store.Message) []store.Message {
	if len(recent) == 0 || recent[0].Role != store.RoleUser {
		return recent
	}

	out := make([]store.Message, len(recent))
	copy(out, recent)
	out[0].Content = fmt.Sprintf("[Context from earlier in conversation: %s]\n\n%s",
		summary, recent[0].Content)
	return out
}
