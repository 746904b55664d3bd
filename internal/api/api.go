// Package api exposes the front desk over HTTP and as MCP tools for
// supervisors.
package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/frontdesk/internal/speech"
)

const maxRequestBodySize = 1 << 20 // 1MB

// Deps holds everything the HTTP handlers need. Speech, Audio, Tokens and
// RateLimiter are optional.
type Deps struct {
	Ledger      Ledger
	Policy      Answerer
	Speech      speech.Synthesizer
	Audio       *speech.AudioStore
	Tokens      TokenIssuer
	RateLimiter *RateLimiter
	// LiveKitURL is handed to clients with each token so they know where to connect.
	LiveKitURL string
	Logger     *slog.Logger
}

func (d Deps) logger() *slog.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return slog.Default()
}

// NewHandler returns the HTTP surface of the front desk.
func NewHandler(deps Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(CORS)

	r.Get("/health", handleHealth)

	if deps.RateLimiter != nil {
		r.With(deps.RateLimiter.Middleware).Post("/call", handleCall(deps))
	} else {
		r.Post("/call", handleCall(deps))
	}
	r.Get("/audio/{filename}", handleAudio(deps))

	r.Get("/requests", handleListRequests(deps))
	r.Get("/requests/{id}", handleGetRequest(deps))
	r.Post("/requests/{id}/resolve", handleResolve(deps))
	r.Get("/learned", handleLearned(deps))
	r.Post("/clear", handleClear(deps))

	r.Get("/livekit/token/{identity}/{room}", handleToken(deps))

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}

func parseIntParam(r *http.Request, key string, defaultVal, maxVal int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return defaultVal
	}
	if maxVal > 0 && v > maxVal {
		return maxVal
	}
	return v
}
