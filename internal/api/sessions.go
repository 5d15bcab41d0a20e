package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/docent-ai/docent/internal/agent"
	"github.com/docent-ai/docent/internal/store"
)

type sessionCreateRequest struct {
	Name string `json:"name,omitempty"`
}

func (s *Server) handleSessionCreate(w http.ResponseWriter, r *http.Request) {
	var req sessionCreateRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.errorResponse(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}
	if req.Name == "" {
		req.Name = "New Conversation"
	}

	sess, err := s.store.CreateSession(r.Context(), s.store.DB(), "", req.Name)
	if err != nil {
		s.logger.Error("session create failed", "error", err)
		s.errorResponse(w, http.StatusInternalServerError, "failed to create session")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	writeJSON(w, sess, s.logger)
}

func (s *Server) handleSessionList(w http.ResponseWriter, r *http.Request) {
	limit := parseIntParam(r, "limit", 50)
	offset := parseIntParam(r, "offset", 0)

	sessions, err := s.store.ListSessions(r.Context(), s.store.DB(), limit, offset)
	if err != nil {
		s.logger.Error("session list failed", "error", err)
		s.errorResponse(w, http.StatusInternalServerError, "failed to list sessions")
		return
	}

	writeJSON(w, map[string]any{
		"sessions": sessions,
		"count":    len(sessions),
	}, s.logger)
}

func (s *Server) handleSessionGet(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	sess, err := s.store.GetSession(r.Context(), s.store.DB(), id)
	if errors.Is(err, store.ErrNotFound) {
		s.errorResponse(w, http.StatusNotFound, "session not found")
		return
	}
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, "failed to load session")
		return
	}
	writeJSON(w, sess, s.logger)
}

type sessionRenameRequest struct {
	Name string `json:"name"`
}

func (s *Server) handleSessionRename(w http.ResponseWriter, r *http.Request) {
	var req sessionRenameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" {
		s.errorResponse(w, http.StatusBadRequest, "name is required")
		return
	}

	id := r.PathValue("id")
	err := s.store.RenameSession(r.Context(), s.store.DB(), id, req.Name)
	if errors.Is(err, store.ErrNotFound) {
		s.errorResponse(w, http.StatusNotFound, "session not found")
		return
	}
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, "failed to rename session")
		return
	}

	sess, err := s.store.GetSession(r.Context(), s.store.DB(), id)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, "failed to load session")
		return
	}
	writeJSON(w, sess, s.logger)
}

func (s *Server) handleSessionDelete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	err := s.store.DeleteSession(r.Context(), s.store.DB(), id)
	if errors.Is(err, store.ErrNotFound) {
		s.errorResponse(w, http.StatusNotFound, "session not found")
		return
	}
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, "failed to delete session")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := s.store.GetSession(r.Context(), s.store.DB(), id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.errorResponse(w, http.StatusNotFound, "session not found")
			return
		}
		s.errorResponse(w, http.StatusInternalServerError, "failed to load session")
		return
	}

	msgs, err := s.store.MessagesBySession(r.Context(), s.store.DB(), id)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, "failed to load messages")
		return
	}

	writeJSON(w, map[string]any{
		"messages": msgs,
		"count":    len(msgs),
	}, s.logger)
}

type chatRequest struct {
	Message string `json:"message"`
}

type chatResponse struct {
	SessionID string `json:"session_id"`
	Response  string `json:"response"`
	MessageID string `json:"message_id"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Message == "" {
		s.errorResponse(w, http.StatusBadRequest, "message is required")
		return
	}

	id := r.PathValue("id")
	reply, err := s.loop.ProcessTurn(r.Context(), id, req.Message, nil)
	if errors.Is(err, store.ErrNotFound) {
		s.errorResponse(w, http.StatusNotFound, "session not found")
		return
	}
	if errors.Is(err, agent.ErrProvider) {
		s.logger.Error("chat turn failed", "session", id, "error", err)
		s.errorResponse(w, http.StatusBadGateway, "completion provider unavailable")
		return
	}
	if err != nil {
		s.logger.Error("chat turn failed", "session", id, "error", err)
		s.errorResponse(w, http.StatusInternalServerError, "failed to process message")
		return
	}

	writeJSON(w, chatResponse{
		SessionID: id,
		Response:  reply.Content,
		MessageID: reply.ID,
	}, s.logger)
}
