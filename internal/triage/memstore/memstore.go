// Package memstore provides an in-memory implementation of triage.Store.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/linnemanlabs/doula/internal/triage"
)

// Store holds intake sessions in memory. Suitable for dev/testing.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*triage.Session // session ID -> session
}

// New initializes a new in-memory Store.
func New() *Store {
	return &Store{
		sessions: make(map[string]*triage.Session),
	}
}

// Get retrieves a session by its ID. Returns a copy.
func (s *Store) Get(_ context.Context, id string) (*triage.Session, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, false, nil
	}
	return copySession(sess), true, nil
}

// Put stores a copy of the session.
func (s *Store) Put(_ context.Context, sess *triage.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.ID] = copySession(sess)
	return nil
}

// ListIdle returns non-terminal sessions whose last patient input predates
// the cutoff.
func (s *Store) ListIdle(_ context.Context, cutoff time.Time) ([]*triage.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*triage.Session
	for _, sess := range s.sessions {
		if !sess.State.Terminal() && sess.LastInputAt.Before(cutoff) {
			out = append(out, copySession(sess))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastInputAt.Before(out[j].LastInputAt) })
	return out, nil
}

// ListRecent returns up to limit sessions, newest first.
func (s *Store) ListRecent(_ context.Context, limit int) ([]*triage.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*triage.Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, copySession(sess))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// copySession deep-copies the mutable parts so callers cannot reach the
// stored state.
func copySession(sess *triage.Session) *triage.Session {
	cp := *sess
	cp.Transcript = append([]triage.Turn(nil), sess.Transcript...)
	cp.Symptoms = append([]triage.Symptom(nil), sess.Symptoms...)
	cp.Passages = append([]triage.Passage(nil), sess.Passages...)
	if sess.Slots != nil {
		slots := triage.NewSlotSet()
		for k, v := range sess.Slots.Values {
			slots.Values[k] = v
		}
		cp.Slots = slots
	}
	if sess.Classification != nil {
		c := *sess.Classification
		c.RedFlags = append([]string(nil), sess.Classification.RedFlags...)
		cp.Classification = &c
	}
	if sess.Report != nil {
		r := *sess.Report
		r.Symptoms = append([]triage.Symptom(nil), sess.Report.Symptoms...)
		r.Citations = append([]triage.Passage(nil), sess.Report.Citations...)
		if sess.Report.Assignment != nil {
			a := *sess.Report.Assignment
			r.Assignment = &a
		}
		cp.Report = &r
	}
	return &cp
}
