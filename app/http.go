package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/smallnest/tenantflow/chatagent"
	"github.com/smallnest/tenantflow/ingestion"
	"github.com/smallnest/tenantflow/llm"
	"github.com/smallnest/tenantflow/log"
	"github.com/smallnest/tenantflow/spamtriage"
	"github.com/smallnest/tenantflow/store"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 8 << 20

// Service is what the HTTP driver needs from the application.
type Service interface {
	Run(ctx context.Context, req ChatRequest) (string, error)
	RunStream(ctx context.Context, req ChatRequest) (*TextStream, error)
	RunSpamTriage(ctx context.Context, item spamtriage.Item) (spamtriage.Decision, error)
	RunIngestion(ctx context.Context, kind ingestion.Kind, records []ingestion.Record) (ingestion.Result, error)
	ThreadHistory(ctx context.Context, threadID string) ([]chatagent.Message, error)
	DeleteThread(ctx context.Context, threadID string) (bool, error)
}

var _ Service = (*App)(nil)

type server struct {
	svc    Service
	logger log.Logger
}

// NewHandler exposes svc over HTTP. metrics, when not nil, is served on
// /metrics.
func NewHandler(svc Service, metrics http.Handler, logger log.Logger) http.Handler {
	s := &server{svc: svc, logger: log.OrDefault(logger)}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Route("/v1", func(r chi.Router) {
		r.Post("/chat", s.chat)
		r.Post("/chat/stream", s.chatStream)
		r.Post("/spam", s.spam)
		r.Post("/ingest/{kind}", s.ingest)
		r.Get("/threads/{id}", s.threadHistory)
		r.Delete("/threads/{id}", s.deleteThread)
	})
	if metrics != nil {
		r.Method(http.MethodGet, "/metrics", metrics)
	}
	return r
}

type chatResponse struct {
	Answer   string `json:"answer"`
	ThreadID string `json:"thread_id"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *server) fail(w http.ResponseWriter, r *http.Request, status int, err error) {
	if status >= http.StatusInternalServerError {
		s.logger.Error("http: %s %s: %v", r.Method, r.URL.Path, err)
	} else {
		s.logger.Debug("http: %s %s: %v", r.Method, r.URL.Path, err)
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrEmptyMessage), errors.Is(err, llm.ErrUnknownProvider), errors.Is(err, ingestion.ErrUnknownKind):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrCheckpointNotFound):
		return http.StatusNotFound
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

func (s *server) chatRequest(w http.ResponseWriter, r *http.Request) (ChatRequest, bool) {
	var req ChatRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.fail(w, r, http.StatusBadRequest, err)
		return req, false
	}
	if req.ThreadID == "" {
		req.ThreadID = uuid.NewString()
	}
	return req, true
}

func (s *server) chat(w http.ResponseWriter, r *http.Request) {
	req, ok := s.chatRequest(w, r)
	if !ok {
		return
	}
	answer, err := s.svc.Run(r.Context(), req)
	if err != nil {
		s.fail(w, r, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, chatResponse{Answer: answer, ThreadID: req.ThreadID})
}

type streamDelta struct {
	Delta string `json:"delta"`
}

// chatStream sends the answer as server-sent events: one data event per
// delta, then a done event carrying the thread id, or an error event.
func (s *server) chatStream(w http.ResponseWriter, r *http.Request) {
	req, ok := s.chatRequest(w, r)
	if !ok {
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.fail(w, r, http.StatusInternalServerError, errors.New("streaming unsupported"))
		return
	}

	stream, err := s.svc.RunStream(r.Context(), req)
	if err != nil {
		s.fail(w, r, statusFor(err), err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	for d := range stream.Deltas() {
		data, _ := json.Marshal(streamDelta{Delta: d})
		fmt.Fprintf(w, "data: %s\n\n", data)
		flusher.Flush()
	}
	if err := stream.Err(); err != nil {
		s.logger.Warn("http: chat stream for thread %s failed: %v", req.ThreadID, err)
		data, _ := json.Marshal(errorResponse{Error: err.Error()})
		fmt.Fprintf(w, "event: error\ndata: %s\n\n", data)
	} else {
		data, _ := json.Marshal(map[string]string{"thread_id": req.ThreadID})
		fmt.Fprintf(w, "event: done\ndata: %s\n\n", data)
	}
	flusher.Flush()
}

// spam always answers with a decision; a failed run yields the
// SYSTEM_ERROR decision.
func (s *server) spam(w http.ResponseWriter, r *http.Request) {
	var item spamtriage.Item
	if err := decodeJSON(w, r, &item); err != nil {
		s.fail(w, r, http.StatusBadRequest, err)
		return
	}
	decision, err := s.svc.RunSpamTriage(r.Context(), item)
	if err != nil {
		s.logger.Warn("http: spam triage of %q failed: %v", item.ID, err)
	}
	writeJSON(w, http.StatusOK, decision)
}

type ingestRequest struct {
	Records []ingestion.Record `json:"records"`
}

// ingest accepts text/csv or a JSON body {"records": [...]}. The result is
// returned even when the run failed.
func (s *server) ingest(w http.ResponseWriter, r *http.Request) {
	kind, err := ingestion.ParseKind(chi.URLParam(r, "kind"))
	if err != nil {
		s.fail(w, r, http.StatusBadRequest, err)
		return
	}

	var records []ingestion.Record
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mediaType {
	case "text/csv":
		if records, err = ingestion.ParseCSV(body); err != nil {
			s.fail(w, r, http.StatusBadRequest, err)
			return
		}
	default:
		var req ingestRequest
		dec := json.NewDecoder(body)
		dec.UseNumber()
		if err := dec.Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			s.fail(w, r, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
			return
		}
		records = req.Records
	}

	result, err := s.svc.RunIngestion(r.Context(), kind, records)
	status := http.StatusOK
	if err != nil {
		s.logger.Warn("http: ingestion of %d %s records failed: %v", len(records), kind, err)
		status = statusFor(err)
	}
	writeJSON(w, status, result)
}

type threadResponse struct {
	ThreadID string              `json:"thread_id"`
	Messages []chatagent.Message `json:"messages"`
}

func (s *server) threadHistory(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	messages, err := s.svc.ThreadHistory(r.Context(), id)
	if err != nil {
		s.fail(w, r, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, threadResponse{ThreadID: id, Messages: messages})
}

func (s *server) deleteThread(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	deleted, err := s.svc.DeleteThread(r.Context(), id)
	if err != nil {
		s.fail(w, r, statusFor(err), err)
		return
	}
	status := http.StatusOK
	if !deleted {
		status = http.StatusNotFound
	}
	writeJSON(w, status, map[string]bool{"deleted": deleted})
}
