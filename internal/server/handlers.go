package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/KaranKendre11/VibeOPS/internal/core/domain"
	"github.com/KaranKendre11/VibeOPS/internal/core/ports"
	"github.com/KaranKendre11/VibeOPS/internal/stream"
)

const (
	runIDHeader    = "X-Run-ID"
	serviceName    = "vibe-devops-backend"
	maxChatBody    = 1 << 20
	defaultPageLen = 50
	maxPageLen     = 500
)

// ChatRequest is the body of POST /api/chat.
type ChatRequest struct {
	Content  string       `json:"content"`
	Type     string       `json:"type"`
	Metadata *ChatContext `json:"metadata,omitempty"`
}

type ChatContext struct {
	ConversationHistory []domain.Turn `json:"conversation_history"`
}

func (req *ChatRequest) validate() error {
	if strings.TrimSpace(req.Content) == "" {
		return errors.New("content is required")
	}
	switch req.Type {
	case "", "text", "file":
	default:
		return fmt.Errorf("unsupported message type %q", req.Type)
	}
	return nil
}

func (req *ChatRequest) history() []domain.Turn {
	if req.Metadata == nil {
		return nil
	}
	return req.Metadata.ConversationHistory
}

// RunList is the response of GET /api/deployments.
type RunList struct {
	Runs   []*domain.Run `json:"runs"`
	Limit  int           `json:"limit"`
	Offset int           `json:"offset"`
}

// handleChat streams one pipeline run. The pipeline context is detached
// from the request: when the client goes away the run continues to the end
// and the remaining frames are drained without being written.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxChatBody)).Decode(&req); err != nil {
		AddError(r.Context(), err)
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := req.validate(); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	ctx := context.WithoutCancel(r.Context())
	events := s.deps.Pipeline.Run(ctx, req.Content, req.history())
	runID, events := s.deps.Recorder.Record(ctx, req.Content, events)
	AddLogField(r.Context(), "run_id", runID)

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	if runID != "" {
		h.Set(runIDHeader, runID)
	}
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	writing := true
	for frame := range stream.Frames(events) {
		if !writing {
			continue
		}
		if r.Context().Err() != nil {
			writing = false
			AddLogField(r.Context(), "disconnected", "true")
			continue
		}
		if _, err := w.Write(frame); err != nil {
			writing = false
			AddError(r.Context(), err)
			continue
		}
		flusher.Flush()
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": serviceName,
	})
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"message": "Vibe DevOps GCP API",
		"version": s.deps.Version,
		"status":  "running",
	})
}

func (s *Server) handleResources(w http.ResponseWriter, r *http.Request) {
	if s.deps.Inventory == nil {
		writeError(w, http.StatusServiceUnavailable, "inventory is disabled")
		return
	}
	snap, err := s.deps.Inventory.ListResources(r.Context())
	if err != nil {
		AddError(r.Context(), err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	if s.deps.Runs == nil {
		writeError(w, http.StatusNotFound, "run history is disabled")
		return
	}
	limit, err := queryInt(r, "limit", defaultPageLen)
	if err != nil || limit <= 0 {
		writeError(w, http.StatusBadRequest, "invalid limit")
		return
	}
	limit = min(limit, maxPageLen)
	offset, err := queryInt(r, "offset", 0)
	if err != nil || offset < 0 {
		writeError(w, http.StatusBadRequest, "invalid offset")
		return
	}

	runs, err := s.deps.Runs.ListRuns(r.Context(), ports.ListOptions{Limit: limit, Offset: offset})
	if err != nil {
		AddError(r.Context(), err)
		writeError(w, http.StatusInternalServerError, "failed to list runs")
		return
	}
	if runs == nil {
		runs = []*domain.Run{}
	}
	writeJSON(w, http.StatusOK, RunList{Runs: runs, Limit: limit, Offset: offset})
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	if s.deps.Runs == nil {
		writeError(w, http.StatusNotFound, "run history is disabled")
		return
	}
	run, err := s.deps.Runs.GetRun(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.storeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// handleRunEvents replays the stored events of a run as a JSON array, each
// element exactly as it was streamed.
func (s *Server) handleRunEvents(w http.ResponseWriter, r *http.Request) {
	if s.deps.Runs == nil {
		writeError(w, http.StatusNotFound, "run history is disabled")
		return
	}
	events, err := s.deps.Runs.ListEvents(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.storeError(w, r, err)
		return
	}
	payloads := make([]json.RawMessage, 0, len(events))
	for _, ev := range events {
		payloads = append(payloads, ev.Payload)
	}
	writeJSON(w, http.StatusOK, payloads)
}

func (s *Server) storeError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, ports.ErrNotFound) {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}
	AddError(r.Context(), err)
	writeError(w, http.StatusInternalServerError, "failed to read run")
}

func queryInt(r *http.Request, key string, def int) (int, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def, nil
	}
	return strconv.Atoi(v)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// writeError uses the {"detail": ...} shape the frontend already parses.
func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}
