package api

import (
	"net/http"

	"github.com/docent-ai/docent/internal/kb"
)

func (s *Server) handleKBList(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{
		"items": s.kb.Names(),
	}, s.logger)
}

func (s *Server) handleKBGet(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	item, ok := s.kb.Get(name)
	if !ok {
		s.errorResponse(w, http.StatusNotFound, "knowledge base item not found")
		return
	}

	if r.URL.Query().Get("format") == "html" {
		html, err := kb.RenderHTML(item)
		if err != nil {
			s.errorResponse(w, http.StatusInternalServerError, "render failed")
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if _, err := w.Write([]byte(html)); err != nil {
			s.logger.Debug("failed to write HTML response", "error", err)
		}
		return
	}

	writeJSON(w, item, s.logger)
}
