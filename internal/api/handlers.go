package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/kestrel-forensics/kestrel/internal/model"
	"github.com/kestrel-forensics/kestrel/internal/parser"
	"github.com/kestrel-forensics/kestrel/internal/stats"
	"github.com/kestrel-forensics/kestrel/internal/store"
)

// ParserInfo is the wire shape of one registered parser.
type ParserInfo struct {
	Platform    string   `json:"platform"`
	Extensions  []string `json:"extensions"`
	Description string   `json:"description"`
}

// PreviewRequest asks for a parse without persistence.
type PreviewRequest struct {
	Path   string `json:"path"`
	Parser string `json:"parser,omitempty"` // platform name; empty means detect
}

// PreviewResponse carries the parse result and its statistics.
type PreviewResponse struct {
	Platform      string               `json:"platform"`
	Conversations []model.Conversation `json:"conversations"`
	SkippedRows   int                  `json:"skipped_rows"`
	Stats         stats.Stats          `json:"stats"`
}

// IngestRequest asks for a full ingest of one export file.
type IngestRequest struct {
	Path string `json:"path"`
}

// TagRequest assigns or removes one message tag.
type TagRequest struct {
	ConversationID string `json:"conversation_id"`
	MessageID      string `json:"message_id"`
	Tag            string `json:"tag"`
}

func (s *Server) listParsers(w http.ResponseWriter, r *http.Request) {
	var out []ParserInfo
	for _, p := range s.registry.AvailableParsers() {
		out = append(out, ParserInfo{
			Platform:    p.PlatformName(),
			Extensions:  p.FileExtensions(),
			Description: p.FileDescription(),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) listFilters(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.registry.FileFilters())
}

func (s *Server) preview(w http.ResponseWriter, r *http.Request) {
	var req PreviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: %v", err)
		return
	}
	if req.Path == "" {
		writeError(w, http.StatusBadRequest, "path is required")
		return
	}

	var p parser.Parser
	if req.Parser != "" {
		if p = s.registry.ParserByName(req.Parser); p == nil {
			writeError(w, http.StatusBadRequest, "unknown parser: %s", req.Parser)
			return
		}
	} else if p = s.registry.DetectParser(req.Path); p == nil {
		writeError(w, http.StatusUnprocessableEntity, "no parser recognizes %s", req.Path)
		return
	}

	parsed, err := p.ParseFile(req.Path)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "parse failed: %v", err)
		return
	}

	writeJSON(w, http.StatusOK, PreviewResponse{
		Platform:      p.PlatformName(),
		Conversations: parsed.Conversations,
		SkippedRows:   parsed.SkippedRows,
		Stats:         stats.Calculate(parsed.Conversations),
	})
}

func (s *Server) ingestFile(w http.ResponseWriter, r *http.Request) {
	var req IngestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: %v", err)
		return
	}
	if req.Path == "" {
		writeError(w, http.StatusBadRequest, "path is required")
		return
	}

	res, err := s.runner.ProcessFile(r.Context(), req.Path)
	if err != nil {
		if errors.Is(err, parser.ErrUnrecognizedFormat) {
			writeError(w, http.StatusUnprocessableEntity, "%v", err)
			return
		}
		writeError(w, http.StatusInternalServerError, "ingest failed: %v", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) listConversations(w http.ResponseWriter, r *http.Request) {
	if !s.requireStore(w) {
		return
	}

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid limit: %v", err)
			return
		}
		limit = n
	}

	rows, err := s.store.ListConversations(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "list conversations: %v", err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func (s *Server) getConversation(w http.ResponseWriter, r *http.Request) {
	if !s.requireStore(w) {
		return
	}

	key := chi.URLParam(r, "id")
	row, msgs, err := s.store.GetConversation(r.Context(), key)
	if err != nil {
		writeError(w, http.StatusNotFound, "conversation %s: %v", key, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"conversation": row,
		"messages":     msgs,
	})
}

func (s *Server) assignTag(w http.ResponseWriter, r *http.Request) {
	if !s.requireStore(w) {
		return
	}

	var req TagRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: %v", err)
		return
	}
	if req.ConversationID == "" || req.MessageID == "" || req.Tag == "" {
		writeError(w, http.StatusBadRequest, "conversation_id, message_id, and tag are required")
		return
	}

	id, err := s.store.AssignMessageTag(r.Context(), req.ConversationID, req.MessageID, req.Tag)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "assign tag: %v", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": id.String()})
}

func (s *Server) removeTag(w http.ResponseWriter, r *http.Request) {
	if !s.requireStore(w) {
		return
	}

	var req TagRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: %v", err)
		return
	}

	err := s.store.RemoveMessageTag(r.Context(), req.ConversationID, req.MessageID, req.Tag)
	if errors.Is(err, store.ErrTagNotAssigned) {
		writeError(w, http.StatusNotFound, "tag not assigned")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "remove tag: %v", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "removed"})
}

func (s *Server) listTags(w http.ResponseWriter, r *http.Request) {
	if !s.requireStore(w) {
		return
	}

	key := chi.URLParam(r, "conversation_id")
	assignments, err := s.store.ListConversationTags(r.Context(), key)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "list tags: %v", err)
		return
	}
	writeJSON(w, http.StatusOK, assignments)
}
