package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/kalambet/frontdesk/internal/escalation"
	"github.com/kalambet/frontdesk/internal/ledger"
	"github.com/kalambet/frontdesk/internal/livekit"
	"github.com/kalambet/frontdesk/internal/speech"
)

const synthesisTimeout = 20 * time.Second

// Ledger is the subset of *ledger.Ledger the transport needs.
type Ledger interface {
	PendingRequests() []ledger.Request
	Requests(status ledger.Status) []ledger.Request
	Request(id string) (ledger.Request, error)
	ResolveRequest(id, answer string) (ledger.Request, error)
	LearnedAnswers() map[string]string
	ClearAll() error
}

// Answerer decides the reply to a caller question.
type Answerer interface {
	Answer(ctx context.Context, question, callerID string) (escalation.Answer, error)
}

// TokenIssuer mints LiveKit room tokens.
type TokenIssuer interface {
	Token(identity, room string) (string, error)
}

type CallRequest struct {
	CallerID string `json:"caller_id"`
	Question string `json:"question"`
}

type CallResponse struct {
	ResponseText string `json:"response_text"`
	AudioFile    string `json:"audio_file,omitempty"`
	Escalated    bool   `json:"escalated"`
	RequestID    string `json:"request_id,omitempty"`
}

type ResolveRequest struct {
	Answer string `json:"answer"`
}

type ResolveResponse struct {
	Message  string `json:"message"`
	ID       string `json:"id"`
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

func handleCall(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req CallRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if strings.TrimSpace(req.Question) == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "question is required")
			return
		}
		if req.CallerID == "" {
			req.CallerID = uuid.NewString()
		}

		ans, err := deps.Policy.Answer(r.Context(), req.Question, req.CallerID)
		if err != nil {
			if errors.Is(err, escalation.ErrEmptyQuestion) {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "question is required")
				return
			}
			deps.logger().Error("answering call failed", "caller_id", req.CallerID, "error", err)
			httpError(w, http.StatusInternalServerError, "api_error", "failed to answer call: %v", err)
			return
		}

		writeJSON(w, http.StatusOK, CallResponse{
			ResponseText: ans.Text,
			AudioFile:    renderAudio(r.Context(), deps, req.CallerID, ans.Text),
			Escalated:    ans.Escalated,
			RequestID:    ans.RequestID,
		})
	}
}

// renderAudio synthesizes text for the caller and returns the URL path of
// the stored file, or "" when no audio could be produced.
func renderAudio(ctx context.Context, deps Deps, callerID, text string) string {
	if deps.Speech == nil || deps.Audio == nil {
		return ""
	}
	ctx, cancel := context.WithTimeout(ctx, synthesisTimeout)
	defer cancel()

	data, err := deps.Speech.Synthesize(ctx, text)
	if err != nil {
		if !errors.Is(err, speech.ErrDisabled) {
			deps.logger().Warn("speech synthesis failed", "caller_id", callerID, "error", err)
		}
		return ""
	}
	name, err := deps.Audio.Save(callerID, deps.Speech.Format(), data)
	if err != nil {
		deps.logger().Warn("saving audio failed", "caller_id", callerID, "error", err)
		return ""
	}
	return "/audio/" + name
}

func handleAudio(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if deps.Audio == nil {
			httpError(w, http.StatusNotFound, "not_found", "file not found")
			return
		}
		path, err := deps.Audio.Path(chi.URLParam(r, "filename"))
		if err != nil {
			httpError(w, http.StatusNotFound, "not_found", "file not found")
			return
		}
		info, err := os.Stat(path)
		if err != nil || info.IsDir() {
			httpError(w, http.StatusNotFound, "not_found", "file not found")
			return
		}
		http.ServeFile(w, r, path)
	}
}

// handleListRequests returns pending requests. ?status=all|resolved|unresolved
// lists history instead.
func handleListRequests(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var reqs []ledger.Request
		switch status := r.URL.Query().Get("status"); status {
		case "", string(ledger.StatusPending):
			reqs = deps.Ledger.PendingRequests()
		case "all":
			reqs = deps.Ledger.Requests("")
		case string(ledger.StatusResolved), string(ledger.StatusUnresolved):
			reqs = deps.Ledger.Requests(ledger.Status(status))
		default:
			httpError(w, http.StatusBadRequest, "invalid_request_error", "unknown status %q", status)
			return
		}
		if limit := parseIntParam(r, "limit", 0, 1000); limit > 0 && len(reqs) > limit {
			reqs = reqs[:limit]
		}
		if reqs == nil {
			reqs = []ledger.Request{}
		}
		writeJSON(w, http.StatusOK, reqs)
	}
}

func handleGetRequest(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, err := deps.Ledger.Request(chi.URLParam(r, "id"))
		if err != nil {
			writeLedgerError(w, deps, err)
			return
		}
		writeJSON(w, http.StatusOK, req)
	}
}

func handleResolve(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var body ResolveRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}

		id := chi.URLParam(r, "id")
		req, err := deps.Ledger.ResolveRequest(id, body.Answer)
		if err != nil && !errors.Is(err, ledger.ErrPersistence) {
			writeLedgerError(w, deps, err)
			return
		}

		deps.logger().Info("request resolved", "request_id", req.ID, "question", req.Question)
		writeJSON(w, http.StatusOK, ResolveResponse{
			Message:  "Request resolved",
			ID:       req.ID,
			Question: req.Question,
			Answer:   body.Answer,
		})
	}
}

func handleLearned(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, deps.Ledger.LearnedAnswers())
	}
}

func handleClear(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := deps.Ledger.ClearAll(); err != nil {
			deps.logger().Warn("clear not persisted", "error", err)
		}
		writeJSON(w, http.StatusOK, map[string]string{"message": "All data cleared successfully!"})
	}
}

func handleToken(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if deps.Tokens == nil {
			httpError(w, http.StatusServiceUnavailable, "unavailable", "livekit is not configured")
			return
		}
		token, err := deps.Tokens.Token(chi.URLParam(r, "identity"), chi.URLParam(r, "room"))
		if err != nil {
			if errors.Is(err, livekit.ErrNotConfigured) {
				httpError(w, http.StatusServiceUnavailable, "unavailable", "livekit is not configured")
				return
			}
			httpError(w, http.StatusInternalServerError, "api_error", "failed to issue token: %v", err)
			return
		}
		resp := map[string]string{"token": token}
		if deps.LiveKitURL != "" {
			resp["url"] = deps.LiveKitURL
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// writeLedgerError maps ledger errors onto HTTP status codes.
func writeLedgerError(w http.ResponseWriter, deps Deps, err error) {
	switch {
	case errors.Is(err, ledger.ErrNotFound):
		httpError(w, http.StatusNotFound, "not_found", "%v", err)
	case errors.Is(err, ledger.ErrInvalidState):
		// Only pending requests are resolvable; the type tells it apart from an unknown id.
		httpError(w, http.StatusNotFound, "invalid_state", "%v", err)
	case errors.Is(err, ledger.ErrEmptyAnswer):
		httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
	default:
		deps.logger().Error("ledger operation failed", "error", err)
		httpError(w, http.StatusInternalServerError, "api_error", "%v", err)
	}
}
