// Package server exposes the HTTP surface of the service. Handlers are
// thin: they validate and decode, call the answering service, and map
// error kinds onto status codes.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"ragserver/internal/domain"
)

// RAG is the server-facing subset of the answering service.
type RAG interface {
	Ingest(ctx context.Context, documents []domain.Document) (domain.IngestResult, error)
	Answer(ctx context.Context, sessionID, query string) (domain.Answer, error)
	ClearSession(ctx context.Context, sessionID string) error
}

type Server struct {
	svc    RAG
	logger *zap.Logger
	router *mux.Router
}

// New builds the router. Passing a registry mounts /metrics; nil skips it.
func New(svc RAG, logger *zap.Logger, registry *prometheus.Registry) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{svc: svc, logger: logger, router: mux.NewRouter()}
	s.router.HandleFunc("/ingest", s.handleIngest).Methods(http.MethodPost)
	s.router.HandleFunc("/chat", s.handleChat).Methods(http.MethodPost)
	s.router.HandleFunc("/sessions/{id}/history", s.handleClearHistory).Methods(http.MethodDelete)
	s.router.HandleFunc("/sessions/{id}/history", s.handleGetHistory).Methods(http.MethodGet)
	s.router.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	if registry != nil {
		s.router.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	}
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

type ingestArticle struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Content     string `json:"content"`
	Source      string `json:"source"`
	PublishedAt string `json:"publishedAt"`
}

type ingestRequest struct {
	Articles []ingestArticle `json:"articles"`
}

type chatRequest struct {
	SessionID string `json:"sessionId"`
	Query     string `json:"query"`
}

type errorResponse struct {
	Error string `json:"error"`
	Stage string `json:"stage,omitempty"`
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	var req ingestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body", "")
		return
	}
	documents := make([]domain.Document, 0, len(req.Articles))
	for _, a := range req.Articles {
		doc := domain.Document{ID: a.ID, Title: a.Title, Content: a.Content, Source: a.Source}
		if a.PublishedAt != "" {
			ts, err := time.Parse(time.RFC3339, a.PublishedAt)
			if err != nil {
				s.writeError(w, http.StatusBadRequest, fmt.Sprintf("article %s: invalid publishedAt: %v", a.ID, err), "")
				return
			}
			doc.PublishedAt = ts
		}
		documents = append(documents, doc)
	}
	res, err := s.svc.Ingest(r.Context(), documents)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	if res.Failures == nil {
		res.Failures = []domain.IngestFailure{}
	}
	s.writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body", "")
		return
	}
	answer, err := s.svc.Answer(r.Context(), req.SessionID, req.Query)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	if answer.Sources == nil {
		answer.Sources = []domain.Source{}
	}
	s.writeJSON(w, http.StatusOK, answer)
}

func (s *Server) handleClearHistory(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]
	if err := s.svc.ClearSession(r.Context(), sessionID); err != nil {
		s.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGetHistory(w http.ResponseWriter, r *http.Request) {
	s.writeError(w, http.StatusNotImplemented, "chat history retrieval is not implemented", "")
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrValidation):
		s.writeError(w, http.StatusBadRequest, err.Error(), "")
	case errors.Is(err, domain.ErrDimensionMismatch):
		s.writeError(w, http.StatusInternalServerError, err.Error(), "")
	case errors.Is(err, domain.ErrEmbeddingProvider):
		s.writeError(w, http.StatusBadGateway, err.Error(), "embedding")
	case errors.Is(err, domain.ErrVectorStore):
		s.writeError(w, http.StatusBadGateway, err.Error(), "vectorstore")
	case errors.Is(err, domain.ErrGenerationRefused):
		s.writeError(w, http.StatusUnprocessableEntity, err.Error(), "generation")
	case errors.Is(err, domain.ErrGenerationProvider):
		s.writeError(w, http.StatusBadGateway, err.Error(), "generation")
	default:
		s.logger.Error("unhandled service error", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "internal error", "")
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message, stage string) {
	s.writeJSON(w, status, errorResponse{Error: message, Stage: stage})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("writing response failed", zap.Error(err))
	}
}
