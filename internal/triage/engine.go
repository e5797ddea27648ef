package triage

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/linnemanlabs/go-core/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

// RetrievalK is how many handbook passages are requested per case.
const RetrievalK = 4

// Retriever fetches reference handbook passages for a symptom query.
type Retriever interface {
	Search(ctx context.Context, query string, k int) ([]Passage, error)
}

// RosterProvider supplies the current physician roster with availability.
type RosterProvider interface {
	CurrentRoster(ctx context.Context) ([]Physician, error)
}

// EngineHooks are optional callbacks for observability. Nil fields are
// skipped.
type EngineHooks struct {
	OnLLMCall  func(inputTokens, outputTokens int, duration float64)
	OnClassify func(source string)
	OnRetrieve func(hits int, duration float64)
	OnAssign   func(outcome string)
	OnComplete func(e *CompleteEvent)
}

// CompleteEvent summarizes a finished session for metrics.
type CompleteEvent struct {
	State    State
	Urgency  Urgency
	Source   ClassSource
	Turns    int
	Duration float64
	Review   bool
}

// Engine drives one session through the intake state machine: slot
// collection, classification, handbook retrieval, physician assignment, and
// report assembly. It is pure orchestration; persistence belongs to the
// Service.
type Engine struct {
	classifier *Classifier
	retriever  Retriever
	roster     RosterProvider
	logger     log.Logger
	hooks      EngineHooks
	now        func() time.Time
}

// NewEngine creates an engine with the given dependencies.
func NewEngine(classifier *Classifier, retriever Retriever, roster RosterProvider, logger log.Logger, hooks EngineHooks) *Engine {
	return &Engine{
		classifier: classifier,
		retriever:  retriever,
		roster:     roster,
		logger:     logger,
		hooks:      hooks,
		now:        time.Now,
	}
}

// Start primes a fresh session with the greeting and first question.
func (e *Engine) Start(sess *Session) string {
	now := e.now()
	next, _ := sess.Slots.NextMissingRequired()
	sess.AskedSlot = next
	sess.State = StateCollecting

	reply := "Hello, I'm the intake assistant for the clinic. I'll ask a few questions to get you to the right physician. " + PromptFor(next)
	sess.AppendTurn(SpeakerAssistant, reply, now)
	return reply
}

// Step processes one patient utterance and returns the assistant's reply.
// Red-flag language short-circuits straight to an emergency report no matter
// which slot was being collected.
func (e *Engine) Step(ctx context.Context, sess *Session, input string) (string, error) {
	if sess.State.Terminal() {
		return "", ErrSessionTerminal
	}

	now := e.now()
	sess.AppendTurn(SpeakerPatient, input, now)
	sess.LastInputAt = now

	L := e.logger.With("session_id", sess.ID)

	// Emergency language anywhere in the dialogue ends intake immediately.
	// Unanswered administrative slots render as "not provided". Retrieval
	// still runs best-effort so the report can carry citations, but the
	// refinement pass is skipped.
	if cls, ok := RuleClassify(input, sess.Slots.Value(SlotPregnancyWeek)); ok {
		L.Warn(ctx, "red flags in patient input", "red_flags", strings.Join(cls.RedFlags, "; "))
		sess.AddSymptoms(ExtractSymptoms(input))
		sess.ApplyClassification(cls)
		if e.hooks.OnClassify != nil {
			e.hooks.OnClassify(string(SourceRule))
		}
		sess.State = StateRetrieving
		e.retrieve(ctx, sess, L)
		return e.finalize(ctx, sess, L), nil
	}

	if sess.State == StateCollecting {
		if reply, done := e.collect(ctx, sess, input, now, L); !done {
			return reply, nil
		}
	}

	return e.finish(ctx, sess, L), nil
}

// collect fills the slot the assistant last asked about and asks the next
// one. It returns done=true once the form is complete.
func (e *Engine) collect(ctx context.Context, sess *Session, input string, now time.Time, L log.Logger) (string, bool) {
	if sess.AskedSlot != "" {
		if err := sess.Slots.Set(sess.AskedSlot, input); err != nil {
			ve, _ := err.(*ValidationError)
			reason := "I didn't catch that"
			if ve != nil {
				reason = ve.Reason
			}
			L.Info(ctx, "slot answer rejected", "slot", sess.AskedSlot, "reason", reason)
			reply := "Sorry, " + reason + ". " + PromptFor(sess.AskedSlot)
			sess.AppendTurn(SpeakerAssistant, reply, now)
			return reply, false
		}
		if sess.AskedSlot == SlotChiefComplaint || sess.AskedSlot == SlotSymptomDetail {
			sess.AddSymptoms(ExtractSymptoms(input))
		}
		absorb(sess, sess.AskedSlot, input)
		L.Info(ctx, "slot filled", "slot", sess.AskedSlot)
	}

	next, ok := sess.Slots.NextMissingRequired()
	if !ok {
		sess.AskedSlot = ""
		return "", true
	}
	sess.AskedSlot = next
	reply := PromptFor(next)
	sess.AppendTurn(SpeakerAssistant, reply, now)
	return reply, false
}

var (
	absorbDateRE  = regexp.MustCompile(`\b\d{4}-\d{2}-\d{2}\b`)
	absorbPhoneRE = regexp.MustCompile(`\d{7,}`)
)

// absorb opportunistically fills still-missing slots from phrasing in an
// answer given for a different question, so the patient is not re-asked for
// details already volunteered. The slot just answered is left alone.
func absorb(sess *Session, asked, input string) {
	if asked != SlotPregnancyWeek && !sess.Slots.Filled(SlotPregnancyWeek) {
		lower := strings.ToLower(input)
		if notPregnantRE.MatchString(lower) {
			sess.Slots.Values[SlotPregnancyWeek] = ValueNA
		} else if m := pregnancyWeekRE.FindStringSubmatch(lower); m != nil {
			if v, problem := validatePregnancyWeek(m[0]); problem == "" {
				sess.Slots.Values[SlotPregnancyWeek] = v
			}
		}
	}
	if asked != SlotDOB && !sess.Slots.Filled(SlotDOB) {
		if m := absorbDateRE.FindString(input); m != "" {
			if v, problem := validateDOB(m); problem == "" {
				sess.Slots.Values[SlotDOB] = v
			}
		}
	}
	if asked != SlotPhone && !sess.Slots.Filled(SlotPhone) {
		if m := absorbPhoneRE.FindString(input); m != "" {
			sess.Slots.Values[SlotPhone] = m
		}
	}
}

// finish runs classification, retrieval, refinement, and finalization once
// the form is complete. Retrieval runs for every urgency tier; the refinement
// pass is skipped for emergencies.
func (e *Engine) finish(ctx context.Context, sess *Session, L log.Logger) string {
	sess.State = StateClassifying
	cls, review := e.classifier.Classify(ctx, sess)
	sess.ApplyClassification(cls)
	if review {
		sess.ReviewFlag = true
	}
	L.Info(ctx, "session classified",
		"urgency", string(cls.Urgency),
		"specialty", string(cls.Specialty),
		"source", string(cls.Source),
		"confidence", cls.Confidence,
	)

	sess.State = StateRetrieving
	e.retrieve(ctx, sess, L)

	if sess.Classification.Urgency != UrgencyEmergency && len(sess.Passages) > 0 {
		if refined, ok := e.classifier.Refine(ctx, sess); ok {
			// A refinement pass may sharpen the call but never weaken it:
			// confidence does not drop, and ApplyClassification keeps
			// urgency from de-escalating.
			if refined.Confidence < sess.Classification.Confidence {
				refined.Confidence = sess.Classification.Confidence
			}
			sess.ApplyClassification(refined)
			L.Info(ctx, "classification refined with citations",
				"urgency", string(sess.Classification.Urgency),
				"specialty", string(sess.Classification.Specialty),
				"revision", sess.Classification.Revision,
			)
		}
	}

	return e.finalize(ctx, sess, L)
}

// retrieve fetches handbook citations. A retrieval failure degrades the
// report to zero citations rather than failing the session.
func (e *Engine) retrieve(ctx context.Context, sess *Session, L log.Logger) {
	query := sessionNarrative(sess)
	for _, sym := range sess.Symptoms {
		query += " " + strings.ReplaceAll(sym.Tag, "_", " ")
	}

	ctx, span := otel.Tracer("doula/triage").Start(ctx, "handbook.search")
	defer span.End()
	span.SetAttributes(attribute.String("doula.session.id", sess.ID))

	start := e.now()
	passages, err := e.retriever.Search(ctx, query, RetrievalK)
	if err != nil {
		span.RecordError(err)
		L.Error(ctx, err, "handbook retrieval failed, continuing without citations")
		return
	}
	span.SetAttributes(attribute.Int("doula.retrieval.hits", len(passages)))
	sess.Passages = passages
	if e.hooks.OnRetrieve != nil {
		e.hooks.OnRetrieve(len(passages), time.Since(start).Seconds())
	}
	L.Info(ctx, "handbook passages retrieved", "hits", len(passages))
}

// finalize assigns a physician (emergencies go straight to the ER message),
// assembles the report, and closes the session.
func (e *Engine) finalize(ctx context.Context, sess *Session, L log.Logger) string {
	sess.State = StateFinalizing
	now := e.now()

	var physician *Physician
	outcome := AssignNone
	if sess.Classification.Urgency != UrgencyEmergency {
		roster, err := e.roster.CurrentRoster(ctx)
		if err != nil {
			L.Error(ctx, err, "roster unavailable, report needs manual scheduling")
			sess.ReviewFlag = true
		} else {
			physician, outcome = Assign(now, sess.Classification.Specialty, sess.Classification.Urgency, sess.Slots.Value(SlotInsurance), roster)
		}
		if e.hooks.OnAssign != nil {
			e.hooks.OnAssign(string(outcome))
		}
		if outcome == AssignNone {
			sess.ReviewFlag = true
		}
	}

	sess.Report = AssembleReport(sess, physician, outcome, now)
	sess.State = StateDone
	sess.CompletedAt = now

	reply := sess.Report.Summary()
	sess.AppendTurn(SpeakerAssistant, reply, now)

	if e.hooks.OnComplete != nil {
		e.hooks.OnComplete(&CompleteEvent{
			State:    sess.State,
			Urgency:  sess.Classification.Urgency,
			Source:   sess.Classification.Source,
			Turns:    len(sess.Transcript),
			Duration: now.Sub(sess.CreatedAt).Seconds(),
			Review:   sess.ReviewFlag,
		})
	}
	L.Info(ctx, "session complete",
		"urgency", string(sess.Classification.Urgency),
		"outcome", string(outcome),
		"review", sess.ReviewFlag,
		"turns", len(sess.Transcript),
	)
	return reply
}
