package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/hyperjump/kensaku/internal/search"
	"github.com/hyperjump/kensaku/internal/storage"
)

func (s *Server) handleCollections(w http.ResponseWriter, r *http.Request) {
	names, err := s.service.Collections(r.Context())
	if err != nil {
		s.logger.Error("collection listing failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, names)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req search.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Vectors) == 0 {
		s.respondError(w, http.StatusBadRequest, "at least one query vector required")
		return
	}
	// The wire format has no way to ask for the full ranking: limits
	// that are absent, zero, or negative all fall back to the default.
	limit := req.Limit
	if limit <= 0 {
		limit = s.config.Search.DefaultLimit
	}
	if s.config.Search.MaxLimit > 0 && limit > s.config.Search.MaxLimit {
		limit = s.config.Search.MaxLimit
	}
	s.logger.Debug("search request",
		zap.String("collection", req.Collection.String()),
		zap.Int("vectors", len(req.Vectors)),
		zap.Int("limit", limit))

	var resp search.Response
	for _, vec := range req.Vectors {
		results, err := s.service.Search(r.Context(), req.Collection, vec, limit)
		if err != nil {
			s.respondSearchError(w, err)
			return
		}
		resp.Data = append(resp.Data, results...)
	}
	if resp.Data == nil {
		resp.Data = []search.Result{}
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) respondSearchError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, search.ErrUnknownCollection):
		s.respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, search.ErrDimensionMismatch):
		s.respondError(w, http.StatusBadRequest, err.Error())
	default:
		s.logger.Error("search failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
	}
}

type retrieveRequest struct {
	Query string `json:"query"`
}

func (s *Server) handleRetrieve(w http.ResponseWriter, r *http.Request) {
	if s.retriever == nil {
		s.respondError(w, http.StatusServiceUnavailable, "retrieval is not configured")
		return
	}
	var req retrieveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Query == "" {
		s.respondError(w, http.StatusBadRequest, "query must not be empty")
		return
	}
	s.logger.Debug("retrieve request", zap.String("query", req.Query))
	bundle, err := s.retriever.Retrieve(r.Context(), req.Query)
	if err != nil {
		s.logger.Error("retrieval failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, bundle)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	itemCount, err := s.storage.CountItems(ctx)
	if err != nil {
		s.logger.Error("status: count items failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	chunkCount, err := s.storage.CountChunks(ctx)
	if err != nil {
		s.logger.Error("status: count chunks failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	snippetCount, err := s.storage.CountSnippets(ctx)
	if err != nil {
		s.logger.Error("status: count snippets failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	names, err := s.service.Collections(ctx)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	resp := map[string]interface{}{
		"items":       itemCount,
		"chunks":      chunkCount,
		"snippets":    snippetCount,
		"collections": names,
	}
	diskBytes, err := storage.DiskUsageBytes(
		s.config.Storage.DatabasePath,
		s.config.Storage.VectorPath,
	)
	if err == nil {
		resp["disk_usage_bytes"] = diskBytes
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error("failed to encode response", zap.Error(err))
	}
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
