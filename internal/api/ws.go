package api

import (
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/dmaher/parley/internal/agent"
	"github.com/dmaher/parley/internal/store"
)

// wsFrame is one streamed event on the turn socket. Type is one of
// "tool_start", "tool_result", "final", or "error".
type wsFrame struct {
	Type           string        `json:"type"`
	Tool           string        `json:"tool,omitempty"`
	Call           *ToolCallView `json:"call,omitempty"`
	Response       string        `json:"response,omitempty"`
	ConversationID string        `json:"conversation_id,omitempty"`
	Round          int           `json:"round,omitempty"`
	Error          string        `json:"error,omitempty"`
}

// handleAgentWS streams one turn over a WebSocket: the client sends a single
// AgentRequest, the server replies with tool progress frames and a final
// frame, then closes.
func (s *Server) handleAgentWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	conn.SetReadLimit(64 * 1024)
	conn.SetReadDeadline(time.Now().Add(30 * time.Second))

	var req AgentRequest
	if err := conn.ReadJSON(&req); err != nil {
		s.writeWSError(conn, "invalid request frame")
		return
	}
	if req.Query == "" {
		s.writeWSError(conn, "query must not be empty")
		return
	}

	// Events arrive from the turn goroutine; writes are serialized here.
	var writeMu sync.Mutex
	send := func(f wsFrame) {
		writeMu.Lock()
		defer writeMu.Unlock()
		if err := conn.WriteJSON(f); err != nil {
			s.log.Debug().Err(err).Msg("websocket write failed")
		}
	}

	result, err := s.agent.HandleTurnStream(r.Context(), req.ConversationID, req.Query, func(ev agent.TurnEvent) {
		frame := wsFrame{Type: ev.Kind, Tool: ev.Tool, Round: ev.Round}
		if ev.Call != nil {
			v := ToolCallView{
				ToolName:   ev.Call.Name,
				ToolInput:  ev.Call.Input,
				ToolOutput: renderToolOutput(ev.Call.Result),
			}
			frame.Call = &v
		}
		if ev.Kind != "final" {
			send(frame)
		}
	})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.writeWSError(conn, "conversation not found")
		} else {
			s.log.Error().Err(err).Msg("streamed turn failed")
			s.writeWSError(conn, "internal error")
		}
		return
	}

	send(wsFrame{
		Type:           "final",
		Response:       result.Response,
		ConversationID: result.ConversationID,
		Round:          result.Rounds,
	})

	conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

func (s *Server) writeWSError(conn *websocket.Conn, message string) {
	conn.WriteJSON(wsFrame{Type: "error", Error: message})
	conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, message))
}
