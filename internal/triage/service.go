package triage

import (
	"context"
	"sync"
	"time"

	"github.com/linnemanlabs/go-core/log"
	"github.com/oklog/ulid/v2"
)

// DefaultIdleTimeout is how long a session may sit without patient input
// before the reaper marks it abandoned.
const DefaultIdleTimeout = 30 * time.Minute

// Notifier delivers finished reports to clinic staff.
type Notifier interface {
	Send(ctx context.Context, report *Report) error
}

// StartResult is the outcome of opening a new intake session.
type StartResult struct {
	ID    string
	Reply string
}

// TurnResult is the outcome of one patient message.
type TurnResult struct {
	Reply  string
	State  State
	Report *Report
}

// Service is the business boundary for intake operations. It owns session
// lifecycle and serializes processing per session so concurrent messages for
// the same patient cannot interleave inside the engine.
type Service struct {
	store       Store
	engine      *Engine
	notifier    Notifier
	logger      log.Logger
	idleTimeout time.Duration

	mu      sync.Mutex
	handles map[string]*sessionHandle
}

type sessionHandle struct {
	mu sync.Mutex
}

// ServiceOption customizes a Service.
type ServiceOption func(*Service)

// WithNotifier routes finished reports to the given notifier.
func WithNotifier(n Notifier) ServiceOption {
	return func(s *Service) { s.notifier = n }
}

// WithIdleTimeout overrides the abandonment cutoff.
func WithIdleTimeout(d time.Duration) ServiceOption {
	return func(s *Service) { s.idleTimeout = d }
}

// NewService creates an intake service.
func NewService(store Store, engine *Engine, logger log.Logger, opts ...ServiceOption) *Service {
	s := &Service{
		store:       store,
		engine:      engine,
		logger:      logger,
		idleTimeout: DefaultIdleTimeout,
		handles:     make(map[string]*sessionHandle),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start opens a new session and returns the assistant's greeting.
func (s *Service) Start(ctx context.Context) (*StartResult, error) {
	now := time.Now()
	sess := &Session{
		ID:          ulid.Make().String(),
		State:       StateCollecting,
		Slots:       NewSlotSet(),
		CreatedAt:   now,
		LastInputAt: now,
	}
	reply := s.engine.Start(sess)

	if err := s.store.Put(ctx, sess); err != nil {
		return nil, err
	}
	s.logger.Info(ctx, "session started", "session_id", sess.ID)
	return &StartResult{ID: sess.ID, Reply: reply}, nil
}

// Message applies one patient utterance to a session. Messages for the same
// session are processed one at a time; a message for a closed session returns
// ErrSessionTerminal.
func (s *Service) Message(ctx context.Context, id, text string) (*TurnResult, error) {
	h := s.handle(id)
	h.mu.Lock()
	defer h.mu.Unlock()

	sess, ok, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		// Drop the handle minted above so bad ids cannot grow the map.
		s.release(id)
		return nil, ErrSessionNotFound
	}
	if sess.State.Terminal() {
		return nil, ErrSessionTerminal
	}

	reply, err := s.engine.Step(ctx, sess, text)
	if err != nil {
		return nil, err
	}
	if err := s.store.Put(ctx, sess); err != nil {
		return nil, err
	}

	if sess.State == StateDone && s.notifier != nil {
		// Staff notification must not block or inherit the request deadline.
		go s.notify(context.WithoutCancel(ctx), sess.Report)
	}
	if sess.State.Terminal() {
		defer s.release(sess.ID)
	}

	return &TurnResult{Reply: reply, State: sess.State, Report: sess.Report}, nil
}

// Get retrieves a session by ID.
func (s *Service) Get(ctx context.Context, id string) (*Session, bool, error) {
	return s.store.Get(ctx, id)
}

// Report returns the finished report for a session, or false when the
// session has not completed yet.
func (s *Service) Report(ctx context.Context, id string) (*Report, bool, error) {
	sess, ok, err := s.store.Get(ctx, id)
	if err != nil || !ok {
		return nil, false, err
	}
	if sess.Report == nil {
		return nil, false, nil
	}
	return sess.Report, true, nil
}

// Recent lists the most recently created sessions for the ops surface.
func (s *Service) Recent(ctx context.Context, limit int) ([]*Session, error) {
	return s.store.ListRecent(ctx, limit)
}

// RunReaper marks idle sessions abandoned until ctx is cancelled. Run it in
// its own goroutine.
func (s *Service) RunReaper(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s.reapIdle(ctx)
		}
	}
}

func (s *Service) reapIdle(ctx context.Context) {
	cutoff := time.Now().Add(-s.idleTimeout)
	idle, err := s.store.ListIdle(ctx, cutoff)
	if err != nil {
		s.logger.Error(ctx, err, "idle session scan failed")
		return
	}
	for _, sess := range idle {
		h := s.handle(sess.ID)
		h.mu.Lock()
		// Re-read under the session lock; a message may have landed since
		// the scan.
		cur, ok, err := s.store.Get(ctx, sess.ID)
		if err != nil || !ok || cur.State.Terminal() || cur.LastInputAt.After(cutoff) {
			h.mu.Unlock()
			continue
		}
		cur.State = StateAbandoned
		cur.CompletedAt = time.Now()
		if err := s.store.Put(ctx, cur); err != nil {
			s.logger.Error(ctx, err, "failed to mark session abandoned", "session_id", cur.ID)
		} else {
			s.logger.Info(ctx, "session abandoned", "session_id", cur.ID, "last_input", cur.LastInputAt.Format(time.RFC3339))
		}
		h.mu.Unlock()
		s.release(cur.ID)
	}
}

func (s *Service) notify(ctx context.Context, report *Report) {
	if err := s.notifier.Send(ctx, report); err != nil {
		s.logger.Error(ctx, err, "report notification failed", "session_id", report.SessionID)
	}
}

func (s *Service) handle(id string) *sessionHandle {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.handles[id]
	if !ok {
		h = &sessionHandle{}
		s.handles[id] = h
	}
	return h
}

func (s *Service) release(id string) {
	s.mu.Lock()
	delete(s.handles, id)
	s.mu.Unlock()
}
