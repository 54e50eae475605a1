package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/dmaher/parley/internal/domain"
	"github.com/dmaher/parley/internal/store"
)

// AgentRequest is the body of POST /api/agent. An empty ConversationID
// starts a new conversation.
type AgentRequest struct {
	Query          string `json:"query"`
	ConversationID string `json:"conversation_id,omitempty"`
}

// AgentResponse is the reply to a completed turn.
type AgentResponse struct {
	Response       string         `json:"response"`
	ConversationID string         `json:"conversation_id"`
	ToolCalls      []ToolCallView `json:"tool_calls"`
}

// ToolCallView is the wire rendering of one resolved tool call.
type ToolCallView struct {
	ToolName   string         `json:"tool_name"`
	ToolInput  map[string]any `json:"tool_input"`
	ToolOutput string         `json:"tool_output"`
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status           string `json:"status"`
	APIKeyConfigured bool   `json:"api_key_configured"`
}

// handleAgent runs one turn and returns the assistant's answer.
func (s *Server) handleAgent(w http.ResponseWriter, r *http.Request) {
	var req AgentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		writeError(w, http.StatusBadRequest, "query must not be empty")
		return
	}

	result, err := s.agent.HandleTurn(r.Context(), req.ConversationID, req.Query)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "conversation not found")
			return
		}
		s.log.Error().Err(err).Msg("turn failed")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, AgentResponse{
		Response:       result.Response,
		ConversationID: result.ConversationID,
		ToolCalls:      toolCallViews(result.ToolCalls),
	})
}

// handleDeleteConversation removes a conversation. Always 204: deleting an
// unknown id is a no-op.
func (s *Server) handleDeleteConversation(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.agent.DeleteConversation(id); err != nil {
		s.log.Error().Err(err).Str("conversationId", id).Msg("delete failed")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleHealth reports liveness and whether model credentials are present.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:           "ok",
		APIKeyConfigured: s.agent.Ready(),
	})
}

// handleNotFound returns a 404 for unknown routes.
func handleNotFound(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusNotFound)
	json.NewEncoder(w).Encode(map[string]string{
		"error": "not found",
		"path":  r.URL.Path,
	})
}

func toolCallViews(calls []domain.ToolCall) []ToolCallView {
	views := make([]ToolCallView, 0, len(calls))
	for _, c := range calls {
		views = append(views, ToolCallView{
			ToolName:   c.Name,
			ToolInput:  c.Input,
			ToolOutput: renderToolOutput(c.Result),
		})
	}
	return views
}

func renderToolOutput(r domain.ToolResult) string {
	if r.Failed() {
		return fmt.Sprintf("Error (%s): %s", r.Failure.Kind, r.Failure.Message)
	}
	return fmt.Sprintf("%v", r.Value)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
