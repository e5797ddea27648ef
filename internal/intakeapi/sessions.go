package intakeapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/linnemanlabs/doula/internal/triage"
)

// maxUtteranceLen bounds a single patient message.
const maxUtteranceLen = 4000

type utteranceRequest struct {
	Text string `json:"text"`
}

func (a *API) handleStartSession(w http.ResponseWriter, r *http.Request) {
	result, err := a.svc.Start(r.Context())
	if err != nil {
		a.logger.Error(r.Context(), err, "failed to start session")
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}

	span := trace.SpanFromContext(r.Context())
	span.SetAttributes(attribute.String("doula.session.id", result.ID))

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"session_id": result.ID,
		"prompt":     result.Reply,
	})
}

func (a *API) handleUtterance(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	span := trace.SpanFromContext(r.Context())
	span.SetAttributes(attribute.String("doula.session.id", id))

	var req utteranceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid payload"}`, http.StatusBadRequest)
		return
	}
	text := strings.TrimSpace(req.Text)
	if text == "" {
		http.Error(w, `{"error":"text is required"}`, http.StatusBadRequest)
		return
	}
	if len(text) > maxUtteranceLen {
		http.Error(w, `{"error":"text too long"}`, http.StatusBadRequest)
		return
	}

	result, err := a.svc.Message(r.Context(), id, text)
	switch {
	case errors.Is(err, triage.ErrSessionNotFound):
		http.Error(w, `{"error":"not found"}`, http.StatusNotFound)
		return
	case errors.Is(err, triage.ErrSessionTerminal):
		http.Error(w, `{"error":"session is closed"}`, http.StatusConflict)
		return
	case err != nil:
		a.logger.Error(r.Context(), err, "failed to process utterance", "session_id", id)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}

	span.SetAttributes(attribute.String("doula.session.state", string(result.State)))

	resp := map[string]any{
		"session_id": id,
		"state":      result.State,
		"prompt":     result.Reply,
	}
	if result.Report != nil {
		resp["report"] = result.Report
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}
