package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/custodia-labs/docqa/internal/core/domain"
	"github.com/custodia-labs/docqa/internal/core/ports/driving"
)

type retrieveRequest struct {
	Query  string `json:"query"`
	K      int    `json:"k"`
	Filter string `json:"filter"`
	Mode   string `json:"mode"`
}

type passage struct {
	ChunkID    string    `json:"chunk_id"`
	Source     string    `json:"source"`
	DocType    string    `json:"doc_type"`
	Headers    []string  `json:"headers,omitempty"`
	Score      float64   `json:"score"`
	Content    string    `json:"content"`
	LastUpdate time.Time `json:"last_update"`
}

type retrieveResponse struct {
	Query    string    `json:"query"`
	Mode     string    `json:"mode"`
	Degraded bool      `json:"degraded"`
	Passages []passage `json:"passages"`
}

type messageRequest struct {
	Text string `json:"text"`
}

type turn struct {
	Question string    `json:"question"`
	Answer   string    `json:"answer"`
	At       time.Time `json:"at"`
}

func (s *Server) handleRetrieve(w http.ResponseWriter, r *http.Request) {
	if s.retrieval == nil {
		jsonError(w, "retrieval is not configured", http.StatusServiceUnavailable)
		return
	}

	var req retrieveRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.K == 0 {
		req.K = domain.DefaultTopK
	}
	filter, err := domain.ParseFilter(req.Filter)
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}

	result, err := s.retrieval.Retrieve(r.Context(), req.Query, domain.RetrieveOptions{
		K:      req.K,
		Filter: filter,
		Mode:   domain.SearchMode(req.Mode),
	})
	if err != nil {
		s.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, retrieveResponse{
		Query:    result.Query,
		Mode:     result.Mode.String(),
		Degraded: result.Degraded,
		Passages: toPassages(result.Items),
	})
}

func (s *Server) handleStartSession(w http.ResponseWriter, r *http.Request) {
	if s.sessions == nil {
		jsonError(w, "answering is not configured", http.StatusServiceUnavailable)
		return
	}
	sess, err := s.sessions.Start(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": sess.ID()})
}

func (s *Server) handleEndSession(w http.ResponseWriter, r *http.Request) {
	if s.sessions == nil {
		jsonError(w, "answering is not configured", http.StatusServiceUnavailable)
		return
	}
	if err := s.sessions.End(chi.URLParam(r, "sessionID")); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	history := sess.History()
	out := make([]turn, len(history))
	for i, t := range history {
		out[i] = turn{Question: t.Question, Answer: t.Answer, At: t.At}
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": sess.ID(), "turns": out})
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	if err := sess.Reset(); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleMessage starts a turn and streams it as server-sent events:
// "token" events carry fragments, then exactly one "done" or "error"
// event ends the stream.
func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	var req messageRequest
	if !s.decode(w, r, &req) {
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		jsonError(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	stream, err := sess.Send(r.Context(), req.Text)
	if err != nil {
		s.writeError(w, err)
		return
	}
	defer stream.Close()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	for {
		tok, err := stream.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			answer := stream.Answer()
			writeEvent(w, "error", map[string]any{"error": err.Error(), "partial": answer.Text})
			flusher.Flush()
			return
		}
		writeEvent(w, "token", map[string]string{"text": tok})
		flusher.Flush()
	}

	answer := stream.Answer()
	writeEvent(w, "done", map[string]any{
		"answer":   answer.Text,
		"grounded": answer.Grounded,
		"sources":  toPassages(answer.Sources),
	})
	flusher.Flush()
}

func (s *Server) session(w http.ResponseWriter, r *http.Request) (driving.Session, bool) {
	if s.sessions == nil {
		jsonError(w, "answering is not configured", http.StatusServiceUnavailable)
		return nil, false
	}
	sess, err := s.sessions.Get(chi.URLParam(r, "sessionID"))
	if err != nil {
		s.writeError(w, err)
		return nil, false
	}
	return sess, true
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		jsonError(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return false
	}
	return true
}

// writeError maps domain errors to status codes.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	code := statusFor(err)
	if code >= http.StatusInternalServerError {
		s.log.Error("request failed", "error", err)
	}
	jsonError(w, err.Error(), code)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrUsage), errors.Is(err, domain.ErrInvalidFilter):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrTurnInProgress):
		return http.StatusConflict
	case errors.Is(err, domain.ErrSessionClosed):
		return http.StatusGone
	case errors.Is(err, domain.ErrRetrieval), errors.Is(err, domain.ErrEmbedding):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func toPassages(items []domain.ScoredChunk) []passage {
	out := make([]passage, len(items))
	for i := range items {
		c := items[i].Chunk
		out[i] = passage{
			ChunkID:    c.ID,
			Source:     c.Source,
			DocType:    c.DocType,
			Headers:    c.Headers,
			Score:      items[i].Score,
			Content:    c.Content,
			LastUpdate: c.LastUpdate,
		}
	}
	return out
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func jsonError(w http.ResponseWriter, msg string, code int) {
	writeJSON(w, code, map[string]string{"error": msg})
}

// writeEvent writes one SSE event. JSON never contains a raw newline, so
// the payload always fits one data line.
func writeEvent(w io.Writer, event string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		data = []byte(fmt.Sprintf(`{"error":%q}`, err.Error()))
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, strings.TrimSpace(string(data)))
}
