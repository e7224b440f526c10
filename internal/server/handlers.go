package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/hyperjump/docqa/internal/errs"
	"github.com/hyperjump/docqa/internal/generator"
	"github.com/hyperjump/docqa/internal/keyword"
	"github.com/hyperjump/docqa/internal/models"
	"github.com/hyperjump/docqa/internal/qa"
	"go.uber.org/zap"
)

const (
	maxBodyBytes       = 1 << 20
	defaultSearchLimit = 10
	maxSearchLimit     = 100
)

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	var req models.AskRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	answer, err := s.service.Ask(r.Context(), req.Query)
	if err != nil {
		s.respondFailure(w, r, "ask failed", err)
		return
	}
	// Echo the query as received.
	s.respondJSON(w, http.StatusOK, models.AskResponse{Query: req.Query, Answer: answer.Text})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// statusResponse is the index status plus the settings that shaped it.
type statusResponse struct {
	qa.Status
	Config map[string]interface{} `json:"config"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	st := s.service.Status()
	configInfo := map[string]interface{}{
		"k": st.K,
	}
	if s.config != nil {
		configInfo["chunk_window_size"] = s.config.Chunking.WindowSize
		configInfo["chunk_overlap"] = s.config.Chunking.OverlapOrDefault()
		configInfo["embedding_provider"] = s.config.Embedding.Provider
		configInfo["generator_model"] = s.config.Generator.Model
		configInfo["generator_base_url"] = s.config.Generator.BaseURL
		configInfo["request_timeout"] = s.config.Server.RequestTimeout.String()
	}
	s.respondJSON(w, http.StatusOK, statusResponse{Status: st, Config: configInfo})
}

func (s *Server) handleChunkSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := strings.TrimSpace(q.Get("q"))
	if query == "" {
		s.respondError(w, http.StatusBadRequest, "q is required")
		return
	}
	limit := defaultSearchLimit
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			s.respondError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxSearchLimit)
	}
	var opts keyword.SearchOptions
	if raw := q.Get("fuzzy"); raw != "" {
		fuzzy, err := strconv.ParseBool(raw)
		if err != nil {
			s.respondError(w, http.StatusBadRequest, "fuzzy must be a boolean")
			return
		}
		opts.FuzzyEnabled = fuzzy
	}
	if raw := q.Get("phrase_boost"); raw != "" {
		boost, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			s.respondError(w, http.StatusBadRequest, "phrase_boost must be a number")
			return
		}
		opts.PhraseBoost = boost
	}
	resp, err := s.service.SearchChunks(r.Context(), query, limit, q.Get("mode"), &opts)
	if err != nil {
		s.respondFailure(w, r, "chunk search failed", err)
		return
	}
	s.respondJSON(w, http.StatusOK, resp)
}

// statusFor maps a pipeline error to the response status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, errs.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, errs.ErrGeneration):
		if errs.CauseOf(err) == generator.CauseNetwork {
			return http.StatusServiceUnavailable
		}
		return http.StatusBadGateway
	case errors.Is(err, errs.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) respondFailure(w http.ResponseWriter, r *http.Request, msg string, err error) {
	status := statusFor(err)
	fields := []zap.Field{
		zap.String("request_id", middleware.GetReqID(r.Context())),
		zap.Int("status", status),
		zap.Error(err),
	}
	if status >= http.StatusInternalServerError {
		s.logger.Error(msg, fields...)
	} else {
		s.logger.Debug(msg, fields...)
	}
	s.respondError(w, status, err.Error())
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
