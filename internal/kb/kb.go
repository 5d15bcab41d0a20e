// Package kb provides the knowledge base: a directory of plain-text,
// markdown, and HTML articles the agent can search and serve.
//
// Search is deliberately dumb: it returns every article and lets the
// model filter for relevance through reasoning. Semantic ranking is out
// of scope here.
package kb

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// Item is a single knowledge article.
type Item struct {
	Name    string `json:"name"`    // filename, e.g. "returns-policy.txt"
	Content string `json:"content"` // plain text (HTML sources are reduced)
}

// supported file extensions, checked lowercase.
var supportedExts = map[string]bool{
	".txt":  true,
	".md":   true,
	".html": true,
	".htm":  true,
}

// Service loads and caches knowledge articles from a directory.
type Service struct {
	dir    string
	logger *slog.Logger

	mu       sync.RWMutex
	items    []Item
	modStamp string // concatenated name+mtime fingerprint of the last load
}

// NewService creates a knowledge base over dir, creating it if missing.
func NewService(dir string, logger *slog.Logger) (*Service, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create knowledge base dir: %w", err)
	}
	s := &Service{
		dir:    dir,
		logger: logger.With("component", "kb"),
	}
	s.logger.Info("knowledge base directory", "dir", dir)
	return s, nil
}

// Search returns articles for a query. The query is used for logging
// only; relevance filtering is the model's job. Returns an empty slice
// when the directory holds no readable articles. Never returns an error
// to the tool layer; load failures yield whatever loaded.
func (s *Service) Search(ctx context.Context, query string) []Item {
	s.logger.Info("knowledge base search", "query", query)

	items := s.load()
	if len(items) == 0 {
		s.logger.Warn("no knowledge articles found", "dir", s.dir)
	}
	return items
}

// Names returns the sorted article names.
func (s *Service) Names() []string {
	items := s.load()
	names := make([]string, 0, len(items))
	for _, it := range items {
		names = append(names, it.Name)
	}
	return names
}

// Get returns one article by name, or false when absent.
func (s *Service) Get(name string) (Item, bool) {
	// Reject path traversal; article names are bare filenames.
	if name != filepath.Base(name) {
		return Item{}, false
	}
	for _, it := range s.load() {
		if it.Name == name {
			return it, true
		}
	}
	return Item{}, false
}

// load returns the cached items, reloading when the directory contents
// changed since the last scan.
func (s *Service) load() []Item {
	stamp := s.fingerprint()

	s.mu.RLock()
	if stamp == s.modStamp && s.modStamp != "" {
		items := s.items
		s.mu.RUnlock()
		return items
	}
	s.mu.RUnlock()

	items := s.scan()

	s.mu.Lock()
	s.items = items
	s.modStamp = stamp
	s.mu.Unlock()

	return items
}

// fingerprint captures names and mtimes of all supported files so the
// cache invalidates when anything is added, removed, or edited.
func (s *Service) fingerprint() string {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return ""
	}

	var b strings.Builder
	for _, e := range entries {
		if e.IsDir() || !supportedExts[strings.ToLower(filepath.Ext(e.Name()))] {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		fmt.Fprintf(&b, "%s:%d;", e.Name(), info.ModTime().UnixNano())
	}
	return b.String()
}

func (s *Service) scan() []Item {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		s.logger.Error("failed to read knowledge base dir", "dir", s.dir, "error", err)
		return nil
	}

	var items []Item
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if !supportedExts[ext] {
			continue
		}

		raw, err := os.ReadFile(filepath.Join(s.dir, e.Name()))
		if err != nil {
			s.logger.Error("failed to read knowledge article",
				"file", e.Name(), "error", err)
			continue
		}

		content := string(raw)
		if ext == ".html" || ext == ".htm" {
			content = ExtractText(content)
		}

		items = append(items, Item{Name: e.Name(), Content: content})
		s.logger.Debug("loaded knowledge article", "file", e.Name())
	}

	sort.Slice(items, func(i, j int) bool { return items[i].Name < items[j].Name })

	s.logger.Info("knowledge base loaded", "articles", len(items))
	return items
}
