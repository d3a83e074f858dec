package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"royal/batch"
	"royal/internal"
	"royal/logger"
	"royal/metrics"
	"royal/parser"
	"royal/types"
)

// Reason values for request-level failures, alongside the parser's own reasons
const (
	reasonInvalidRequest  = "invalid_request"
	reasonBodyTooLarge    = "body_too_large"
	reasonStoreDisabled   = "store_disabled"
	reasonStoreError      = "store_error"
	reasonUnknownCharset  = "unknown_charset"
	reasonMessageNotFound = "not_found"
)

// JSON sends a JSON response with the given status code
func (s *Server) JSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Warn(logger.ComponentServer, logger.CategoryError, "Failed to write response", map[string]interface{}{"error": err.Error()})
	}
}

// Error sends a JSON error response with the given status code
func (s *Server) Error(w http.ResponseWriter, status int, message, reason string) {
	s.JSON(w, status, types.ErrorResponse{Error: message, Reason: reason})
}

// handleRoot provides basic information about the service
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	s.JSON(w, http.StatusOK, types.ServiceInfo{
		Service: "Royal message parser",
		Version: s.version,
		Status:  "running",
		Endpoints: []string{
			"GET /health - Health check",
			"GET /metrics - Prometheus metrics",
			"POST /v1/parse - Parse one message tag-stream",
			"POST /v1/parse/batch - Parse a multi-message script",
			"GET /v1/messages/{id} - Look up stored messages by ID",
			"GET /v1/stats - Stored message counts by box type",
		},
	})
}

// handleHealth reports service health, including the store when configured
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := types.HealthResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}

	if s.store != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()

		resp.Checks = map[string]string{"store": "pass"}
		if err := s.store.Ping(ctx); err != nil {
			resp.Status = "degraded"
			resp.Checks["store"] = "fail: " + err.Error()
			s.JSON(w, http.StatusServiceUnavailable, resp)
			return
		}
	}

	s.JSON(w, http.StatusOK, resp)
}

// handleParse parses a single message. JSON bodies are decoded as a
// ParseRequest; any other content type is taken as the raw tag-stream.
func (s *Server) handleParse(w http.ResponseWriter, r *http.Request) {
	var req types.ParseRequest

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.bodyError(w, err)
			return
		}
	} else {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			s.bodyError(w, err)
			return
		}
		req.Input = string(body)
	}

	if result := s.validator.ValidateParse(req); !result.IsValid {
		s.log.Debug(logger.ComponentServer, logger.CategoryValidation, "Rejected parse request", map[string]interface{}{
			"request_id": chimw.GetReqID(r.Context()),
			"problems":   result.Problems,
		})
		s.Error(w, http.StatusBadRequest, result.Message(), reasonInvalidRequest)
		return
	}

	start := time.Now()
	msg, err := s.parserFor(r, &req).Parse(req.Input)
	metrics.ObserveParse(msg, err, time.Since(start))

	if err != nil {
		s.Error(w, http.StatusUnprocessableEntity, err.Error(), string(parser.ReasonOf(err)))
		return
	}
	s.JSON(w, http.StatusOK, msg)
}

// handleBatch parses a plain-text multi-message script. Per-record failures are
// reported in the results; the request itself only fails on unreadable input.
func (s *Server) handleBatch(w http.ResponseWriter, r *http.Request) {
	requestID := chimw.GetReqID(r.Context())

	requested := r.URL.Query().Get("charset")
	if strings.TrimSpace(requested) == "" {
		requested = s.cfg.Batch.Charset
	}
	charset, _ := s.validator.NormalizeCharset(requested)
	body, err := batch.DecodeReader(r.Body, charset)
	if err != nil {
		s.Error(w, http.StatusBadRequest, err.Error(), reasonUnknownCharset)
		return
	}

	source := "http:" + requestID
	ctx := internal.WithRunID(internal.WithSource(r.Context(), source), requestID)

	resp := types.BatchResponse{Results: []types.BatchItem{}}
	var storeErr error
	summary, err := batch.Run(ctx, body, s.parserFor(r, nil), batch.Options{
		Separator: s.cfg.Batch.JoinSeparator,
		Logger:    s.log.With("request_id", requestID),
	}, func(ctx context.Context, result batch.Result) error {
		resp.Results = append(resp.Results, types.NewBatchItem(result))
		if s.store != nil && result.Message != nil {
			storeErr = s.store.Save(ctx, source, result.Record.Index, result.Message)
			return storeErr
		}
		return nil
	})
	if storeErr != nil {
		s.log.Error(logger.ComponentStore, logger.CategoryError, "Failed to store batch results", map[string]interface{}{
			"request_id": requestID,
			"error":      storeErr.Error(),
		})
		s.Error(w, http.StatusInternalServerError, "failed to store results", reasonStoreError)
		return
	}
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			s.bodyError(w, maxErr)
			return
		}
		s.log.Error(logger.ComponentServer, logger.CategoryError, "Batch request failed", map[string]interface{}{
			"request_id": requestID,
			"error":      err.Error(),
		})
		s.Error(w, http.StatusBadRequest, err.Error(), reasonInvalidRequest)
		return
	}

	resp.Summary = summary
	s.JSON(w, http.StatusOK, resp)
}

// handleLookup returns every stored message with the given ID
func (s *Server) handleLookup(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		s.Error(w, http.StatusNotFound, "message store is not configured", reasonStoreDisabled)
		return
	}

	id := chi.URLParam(r, "id")
	found, err := s.store.FindByMessageID(r.Context(), id)
	if err != nil {
		s.log.Error(logger.ComponentStore, logger.CategoryError, "Lookup failed", map[string]interface{}{
			"message_id": id,
			"error":      err.Error(),
		})
		s.Error(w, http.StatusInternalServerError, "lookup failed", reasonStoreError)
		return
	}
	if len(found) == 0 {
		s.Error(w, http.StatusNotFound, fmt.Sprintf("no stored message %s", id), reasonMessageNotFound)
		return
	}

	messages := make([]types.StoredMessage, 0, len(found))
	for _, m := range found {
		messages = append(messages, types.StoredMessage{Source: m.Source, Record: m.Record, Message: m.Message})
	}
	s.JSON(w, http.StatusOK, messages)
}

// handleStats returns stored message counts per box type
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		s.Error(w, http.StatusNotFound, "message store is not configured", reasonStoreDisabled)
		return
	}

	counts, err := s.store.CountByBoxType(r.Context())
	if err != nil {
		s.Error(w, http.StatusInternalServerError, "stats failed", reasonStoreError)
		return
	}
	s.JSON(w, http.StatusOK, map[string]interface{}{"by_box_type": counts})
}

// bodyError maps body read/decode failures to 413 or 400
func (s *Server) bodyError(w http.ResponseWriter, err error) {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		s.Error(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("request body exceeds %d bytes", maxErr.Limit), reasonBodyTooLarge)
		return
	}
	s.Error(w, http.StatusBadRequest, "invalid request body: "+err.Error(), reasonInvalidRequest)
}
