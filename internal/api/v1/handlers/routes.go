package handlers

import (
	"net/http"
	"strings"

	v1mware "github.com/deepgram/readme-relay/internal/api/v1/middleware"
	"github.com/deepgram/readme-relay/internal/services"
	"github.com/deepgram/readme-relay/pkg/httpext"
	"github.com/gorilla/mux"
)

func RegisterV1Routes(router *mux.Router, services *services.Services) {
	cfg := services.GetConfig()
	upgrader := NewUpgrader(cfg.AllowedOrigins)

	// v1 routes
	v1 := router.PathPrefix("/v1").Subrouter()
	v1.Use(v1mware.RateLimit("global", cfg.GetRateLimit("global"), services.GetLimiter("global")))

	generate := v1mware.RateLimit("generate", cfg.GetRateLimit("generate"), services.GetLimiter("generate"))

	v1.Handle("/generate", generate(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		HandleGenerate(services.GetRelay(), services.GetConnectionManager(), w, r)
	}))).Methods("POST")
	v1.Handle("/generate/ws", generate(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		HandleGenerateWebSocket(services.GetRelay(), services.GetConnectionManager(), upgrader, w, r)
	}))).Methods("GET")

	// mux answers 404 for a method mismatch inside a subrouter, so the
	// remaining methods are caught explicitly after the real routes.
	v1.HandleFunc("/generate", HandleMethodNotAllowed(http.MethodPost))
	v1.HandleFunc("/generate/ws", HandleMethodNotAllowed(http.MethodGet))
}

// HandleMethodNotAllowed rejects a request with 405 and the allowed methods.
func HandleMethodNotAllowed(allowed ...string) http.HandlerFunc {
	allow := strings.Join(allowed, ", ")
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Allow", allow)
		httpext.JsonError(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}
