package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/deepgram/readme-relay/internal/connections"
	"github.com/deepgram/readme-relay/internal/domain/profile/models"
	"github.com/deepgram/readme-relay/internal/metrics"
	"github.com/deepgram/readme-relay/internal/services/relay"
	"github.com/deepgram/readme-relay/pkg/httpext"
	"github.com/deepgram/readme-relay/pkg/logger"
	"github.com/google/uuid"
)

const (
	// RelayStatusTrailer reports whether the document ran to completion.
	RelayStatusTrailer = "X-Relay-Status"
	RequestIDHeader    = "X-Request-Id"

	maxRequestBody = 1 << 20
)

// HandleGenerate streams a generated profile README back as plain text
// fragments, flushing each one as soon as the upstream produces it.
func HandleGenerate(relayService *relay.Relay, conns *connections.Manager, w http.ResponseWriter, r *http.Request) {
	logger.Debug(logger.HANDLER, "Starting generate handler")

	req, ok := decodeProfileRequest(w, r)
	if !ok {
		metrics.RecordRequest("http", "bad_request")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		logger.Error(logger.HANDLER, "Response writer does not support flushing")
		httpext.JsonError(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	requestID := uuid.NewString()
	w.Header().Set(RequestIDHeader, requestID)

	stream, err := relayService.Open(r.Context(), requestID, req)
	if err != nil {
		logger.Error(logger.HANDLER, "Failed to open relay %s: %v", requestID, err)
		metrics.RecordRequest("http", "upstream_unavailable")
		httpext.JsonError(w, "Failed to generate profile", http.StatusInternalServerError)
		return
	}

	conns.Add(stream.ID(), stream)
	defer conns.Remove(stream.ID())

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	h.Set("Trailer", RelayStatusTrailer)
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	result := stream.Forward(func(chunk []byte) error {
		if _, err := w.Write(chunk); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	})

	h.Set(RelayStatusTrailer, result.State.String())
	metrics.RecordRequest("http", result.State.String())
	logger.Debug(logger.HANDLER, "Generate %s finished: %s (%s)", stream.ID(), result.State, result.Reason)
}

func decodeProfileRequest(w http.ResponseWriter, r *http.Request) (*models.ProfileRequest, bool) {
	var req models.ProfileRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody)).Decode(&req); err != nil {
		logger.Error(logger.HANDLER, "Failed to decode generate request: %v", err)
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			httpext.JsonError(w, "Request body too large", http.StatusRequestEntityTooLarge)
			return nil, false
		}
		httpext.JsonError(w, "Invalid request format", http.StatusBadRequest)
		return nil, false
	}

	if err := req.Validate(); err != nil {
		logger.Error(logger.HANDLER, "Invalid generate request: %v", err)
		httpext.JsonErrorWithDetails(w, http.StatusBadRequest, httpext.ErrorResponse{
			Error:  "Invalid request",
			Fields: httpext.FieldErrors(err),
		})
		return nil, false
	}

	return &req, true
}
