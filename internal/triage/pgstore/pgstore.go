// Package pgstore provides a PostgreSQL implementation of triage.Store.
package pgstore

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/linnemanlabs/doula/internal/triage"
)

var tracer = otel.Tracer("github.com/linnemanlabs/doula/internal/triage/pgstore")

//go:embed schema.sql
var schema string

// Store persists intake sessions in PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// New applies the schema on the given pool and returns a ready Store. The
// pool's lifecycle belongs to the caller.
func New(ctx context.Context, pool *pgxpool.Pool) (*Store, error) {
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("ping: %w", err)
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{pool: pool}, nil
}

const sessionColumns = `id, state, slots, transcript, symptoms, classification,
	passages, report, asked_slot, review_flag, created_at, last_input_at, completed_at`

// Get retrieves a session by ID.
func (s *Store) Get(ctx context.Context, id string) (*triage.Session, bool, error) {
	ctx, span := tracer.Start(ctx, "pgstore.Get", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "SELECT"),
	))
	defer span.End()

	query := `SELECT ` + sessionColumns + ` FROM intake_sessions WHERE id = $1`
	sess, err := scanSessionRow(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, false, err
	}
	if sess == nil {
		return nil, false, nil
	}
	return sess, true, nil
}

// Put inserts or updates a session.
func (s *Store) Put(ctx context.Context, sess *triage.Session) error {
	ctx, span := tracer.Start(ctx, "pgstore.Put", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "UPSERT"),
	))
	defer span.End()

	slotsJSON, err := json.Marshal(sess.Slots)
	if err != nil {
		return fmt.Errorf("marshal slots: %w", err)
	}
	transcriptJSON, err := json.Marshal(sess.Transcript)
	if err != nil {
		return fmt.Errorf("marshal transcript: %w", err)
	}
	symptomsJSON, err := json.Marshal(sess.Symptoms)
	if err != nil {
		return fmt.Errorf("marshal symptoms: %w", err)
	}
	passagesJSON, err := json.Marshal(sess.Passages)
	if err != nil {
		return fmt.Errorf("marshal passages: %w", err)
	}

	var classificationJSON, reportJSON []byte
	if sess.Classification != nil {
		if classificationJSON, err = json.Marshal(sess.Classification); err != nil {
			return fmt.Errorf("marshal classification: %w", err)
		}
	}
	if sess.Report != nil {
		if reportJSON, err = json.Marshal(sess.Report); err != nil {
			return fmt.Errorf("marshal report: %w", err)
		}
	}

	var completedAt *time.Time
	if !sess.CompletedAt.IsZero() {
		completedAt = &sess.CompletedAt
	}

	query := `INSERT INTO intake_sessions (
		id, state, slots, transcript, symptoms, classification,
		passages, report, asked_slot, review_flag, created_at, last_input_at, completed_at
	) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
	ON CONFLICT (id) DO UPDATE SET
		state          = EXCLUDED.state,
		slots          = EXCLUDED.slots,
		transcript     = EXCLUDED.transcript,
		symptoms       = EXCLUDED.symptoms,
		classification = EXCLUDED.classification,
		passages       = EXCLUDED.passages,
		report         = EXCLUDED.report,
		asked_slot     = EXCLUDED.asked_slot,
		review_flag    = EXCLUDED.review_flag,
		last_input_at  = EXCLUDED.last_input_at,
		completed_at   = EXCLUDED.completed_at`

	_, err = s.pool.Exec(ctx, query,
		sess.ID, string(sess.State), slotsJSON, transcriptJSON, symptomsJSON, classificationJSON,
		passagesJSON, reportJSON, sess.AskedSlot, sess.ReviewFlag,
		sess.CreatedAt, sess.LastInputAt, completedAt,
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("upsert session: %w", err)
	}
	return nil
}

// ListIdle returns non-terminal sessions whose last patient input predates
// the cutoff.
func (s *Store) ListIdle(ctx context.Context, cutoff time.Time) ([]*triage.Session, error) {
	ctx, span := tracer.Start(ctx, "pgstore.ListIdle", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "SELECT"),
	))
	defer span.End()

	query := `SELECT ` + sessionColumns + ` FROM intake_sessions
		WHERE state NOT IN ('done', 'abandoned') AND last_input_at < $1
		ORDER BY last_input_at`
	return s.list(ctx, span, query, cutoff)
}

// ListRecent returns up to limit sessions, newest first.
func (s *Store) ListRecent(ctx context.Context, limit int) ([]*triage.Session, error) {
	ctx, span := tracer.Start(ctx, "pgstore.ListRecent", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "SELECT"),
	))
	defer span.End()

	query := `SELECT ` + sessionColumns + ` FROM intake_sessions ORDER BY created_at DESC LIMIT $1`
	return s.list(ctx, span, query, limit)
}

func (s *Store) list(ctx context.Context, span trace.Span, query string, args ...any) ([]*triage.Session, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	var out []*triage.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}
		out = append(out, sess)
	}
	if err := rows.Err(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return out, nil
}

// scanSessionRow scans a single row into a triage.Session. Returns (nil, nil)
// when no row is found.
func scanSessionRow(row pgx.Row) (*triage.Session, error) {
	sess, err := scanSession(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return sess, nil
}

func scanSession(row pgx.Row) (*triage.Session, error) {
	var (
		sess               triage.Session
		state              string
		slotsJSON          []byte
		transcriptJSON     []byte
		symptomsJSON       []byte
		classificationJSON []byte
		passagesJSON       []byte
		reportJSON         []byte
		completedAt        *time.Time
	)

	err := row.Scan(
		&sess.ID, &state, &slotsJSON, &transcriptJSON, &symptomsJSON, &classificationJSON,
		&passagesJSON, &reportJSON, &sess.AskedSlot, &sess.ReviewFlag,
		&sess.CreatedAt, &sess.LastInputAt, &completedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan: %w", err)
	}

	sess.State = triage.State(state)
	if completedAt != nil {
		sess.CompletedAt = *completedAt
	}

	sess.Slots = triage.NewSlotSet()
	if err := json.Unmarshal(slotsJSON, sess.Slots); err != nil {
		return nil, fmt.Errorf("unmarshal slots: %w", err)
	}
	if sess.Slots.Values == nil {
		sess.Slots.Values = make(map[string]string)
	}
	if err := json.Unmarshal(transcriptJSON, &sess.Transcript); err != nil {
		return nil, fmt.Errorf("unmarshal transcript: %w", err)
	}
	if err := json.Unmarshal(symptomsJSON, &sess.Symptoms); err != nil {
		return nil, fmt.Errorf("unmarshal symptoms: %w", err)
	}
	if err := json.Unmarshal(passagesJSON, &sess.Passages); err != nil {
		return nil, fmt.Errorf("unmarshal passages: %w", err)
	}
	if len(classificationJSON) > 0 {
		sess.Classification = &triage.Classification{}
		if err := json.Unmarshal(classificationJSON, sess.Classification); err != nil {
			return nil, fmt.Errorf("unmarshal classification: %w", err)
		}
	}
	if len(reportJSON) > 0 {
		sess.Report = &triage.Report{}
		if err := json.Unmarshal(reportJSON, sess.Report); err != nil {
			return nil, fmt.Errorf("unmarshal report: %w", err)
		}
	}
	return &sess, nil
}
