// Package intakeapi exposes the patient intake dialogue over HTTP.
package intakeapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/go-chi/chi/v5"
	"github.com/linnemanlabs/go-core/log"
	"github.com/linnemanlabs/go-core/xerrors"

	"github.com/linnemanlabs/doula/internal/triage"
)

// defaultRecentLimit caps the session listing when no limit is given.
const defaultRecentLimit = 50

// IntakeService defines the business operations intakeapi needs.
type IntakeService interface {
	Start(ctx context.Context) (*triage.StartResult, error)
	Message(ctx context.Context, id, text string) (*triage.TurnResult, error)
	Get(ctx context.Context, id string) (*triage.Session, bool, error)
	Report(ctx context.Context, id string) (*triage.Report, bool, error)
	Recent(ctx context.Context, limit int) ([]*triage.Session, error)
}

// API holds dependencies for HTTP handlers.
type API struct {
	logger log.Logger
	svc    IntakeService
}

// New creates a new API handler.
func New(logger log.Logger, svc IntakeService) *API {
	if logger == nil {
		logger = log.Nop()
	}
	if svc == nil {
		panic(xerrors.New("intake service is required"))
	}
	return &API{
		logger: logger,
		svc:    svc,
	}
}

// RegisterRoutes attaches API endpoints to the router.
func (a *API) RegisterRoutes(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/sessions", a.handleStartSession)
		r.Get("/sessions", a.handleListSessions)
		r.Post("/sessions/{id}/utterances", a.handleUtterance)
		r.Get("/sessions/{id}", a.handleGetSession)
		r.Get("/sessions/{id}/report", a.handleGetReport)
	})
}

// sessionSnapshot is the read-side view of a session exposed to staff.
type sessionSnapshot struct {
	ID          string           `json:"session_id"`
	State       triage.State     `json:"state"`
	Turns       int              `json:"turns"`
	AskedSlot   string           `json:"asked_slot,omitempty"`
	Urgency     triage.Urgency   `json:"urgency,omitempty"`
	Specialty   triage.Specialty `json:"specialty,omitempty"`
	ReviewFlag  bool             `json:"review_flag"`
	CreatedAt   time.Time        `json:"created_at"`
	LastInputAt time.Time        `json:"last_input_at"`
	CompletedAt *time.Time       `json:"completed_at,omitempty"`
}

func snapshot(sess *triage.Session) sessionSnapshot {
	s := sessionSnapshot{
		ID:          sess.ID,
		State:       sess.State,
		Turns:       len(sess.Transcript),
		AskedSlot:   sess.AskedSlot,
		ReviewFlag:  sess.ReviewFlag,
		CreatedAt:   sess.CreatedAt,
		LastInputAt: sess.LastInputAt,
	}
	if sess.Classification != nil {
		s.Urgency = sess.Classification.Urgency
		s.Specialty = sess.Classification.Specialty
	}
	if !sess.CompletedAt.IsZero() {
		t := sess.CompletedAt
		s.CompletedAt = &t
	}
	return s
}

func (a *API) handleGetSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	span := trace.SpanFromContext(r.Context())
	span.SetAttributes(attribute.String("doula.session.id", id))

	sess, ok, err := a.svc.Get(r.Context(), id)
	if err != nil {
		a.logger.Error(r.Context(), err, "failed to get session", "session_id", id)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	if !ok {
		http.Error(w, `{"error":"not found"}`, http.StatusNotFound)
		return
	}

	span.SetAttributes(attribute.String("doula.session.state", string(sess.State)))

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(snapshot(sess))
}

func (a *API) handleGetReport(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	span := trace.SpanFromContext(r.Context())
	span.SetAttributes(attribute.String("doula.session.id", id))

	report, ok, err := a.svc.Report(r.Context(), id)
	if err != nil {
		a.logger.Error(r.Context(), err, "failed to get report", "session_id", id)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	if !ok {
		http.Error(w, `{"error":"not found"}`, http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(report)
}

func (a *API) handleListSessions(w http.ResponseWriter, r *http.Request) {
	limit := defaultRecentLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			http.Error(w, `{"error":"invalid limit"}`, http.StatusBadRequest)
			return
		}
		if n < limit {
			limit = n
		}
	}

	sessions, err := a.svc.Recent(r.Context(), limit)
	if err != nil {
		a.logger.Error(r.Context(), err, "failed to list sessions")
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}

	snapshots := make([]sessionSnapshot, 0, len(sessions))
	for _, sess := range sessions {
		snapshots = append(snapshots, snapshot(sess))
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"sessions": snapshots})
}
