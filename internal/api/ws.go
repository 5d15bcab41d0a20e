package api

import (
	"errors"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/docent-ai/docent/internal/agent"
	"github.com/docent-ai/docent/internal/store"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
}

// wsInbound is a chat message sent by the client over the socket.
type wsInbound struct {
	Message string `json:"message"`
}

// wsOutbound wraps loop events and errors for the client.
type wsOutbound struct {
	Type    string `json:"type"` // tool_call, tool_result, final, error
	Tool    string `json:"tool,omitempty"`
	Args    string `json:"args,omitempty"`
	Content string `json:"content,omitempty"`
}

// handleChatSocket streams turn progress over a websocket. Each inbound
// message runs one turn; tool_call and tool_result events arrive as the
// loop executes, then a final event with the reply.
func (s *Server) handleChatSocket(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := s.store.GetSession(r.Context(), s.store.DB(), id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.errorResponse(w, http.StatusNotFound, "session not found")
			return
		}
		s.errorResponse(w, http.StatusInternalServerError, "failed to load session")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()
	s.logger.Info("websocket connected", "session", id)

	// Events come from the loop goroutine; gorilla connections allow
	// one concurrent writer.
	var writeMu sync.Mutex
	send := func(msg wsOutbound) {
		writeMu.Lock()
		defer writeMu.Unlock()
		if err := conn.WriteJSON(msg); err != nil {
			s.logger.Debug("websocket write failed", "session", id, "error", err)
		}
	}

	for {
		var in wsInbound
		if err := conn.ReadJSON(&in); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Debug("websocket closed", "session", id, "error", err)
			}
			return
		}
		if in.Message == "" {
			send(wsOutbound{Type: "error", Content: "message is required"})
			continue
		}

		_, err := s.loop.ProcessTurn(r.Context(), id, in.Message, func(e agent.Event) {
			send(wsOutbound{Type: e.Type, Tool: e.Tool, Args: e.Args, Content: e.Content})
		})
		if err != nil {
			s.logger.Error("websocket turn failed", "session", id, "error", err)
			send(wsOutbound{Type: "error", Content: "failed to process message"})
		}
	}
}
