package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/deepgram/readme-relay/internal/connections"
	"github.com/deepgram/readme-relay/pkg/logger"
)

type healthResponse struct {
	Status  string `json:"status"`
	Streams int    `json:"streams"`
}

// HandleHealth reports liveness and the number of relays in flight
func HandleHealth(conns *connections.Manager, w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(healthResponse{Status: "ok", Streams: conns.Count()}); err != nil {
		logger.Error(logger.HANDLER, "Failed to encode health response: %v", err)
	}
}
