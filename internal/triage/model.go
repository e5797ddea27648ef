package triage

import (
	"strings"
	"time"
)

// State tracks where a session is in the intake lifecycle.
type State string

const (
	// StateCollecting means the dialogue manager is still filling slots.
	StateCollecting State = "collecting"

	// StateClassifying means enough slots are filled to derive urgency/specialty.
	StateClassifying State = "classifying"

	// StateRetrieving means handbook passages are being fetched for refinement.
	StateRetrieving State = "retrieving"

	// StateFinalizing means physician assignment and report assembly are running.
	StateFinalizing State = "finalizing"

	// StateDone means a report was produced. Terminal.
	StateDone State = "done"

	// StateAbandoned means the patient went silent past the idle timeout. Terminal.
	StateAbandoned State = "abandoned"
)

// Terminal reports whether no further input is accepted in this state.
func (s State) Terminal() bool {
	return s == StateDone || s == StateAbandoned
}

// Urgency is the triage tier assigned to a case.
type Urgency string

const (
	UrgencyEmergency Urgency = "emergency"
	UrgencyUrgent    Urgency = "urgent"
	UrgencyRoutine   Urgency = "routine"
)

// rank orders urgencies for the escalation-only rule. Higher is more urgent.
func (u Urgency) rank() int {
	switch u {
	case UrgencyEmergency:
		return 2
	case UrgencyUrgent:
		return 1
	default:
		return 0
	}
}

// AtLeast reports whether u is at least as urgent as other.
func (u Urgency) AtLeast(other Urgency) bool {
	return u.rank() >= other.rank()
}

// Valid reports whether u is one of the enumerated tiers.
func (u Urgency) Valid() bool {
	return u == UrgencyEmergency || u == UrgencyUrgent || u == UrgencyRoutine
}

// Specialty is an OB/GYN subspecialty code from the closed referral set.
type Specialty string

const (
	SpecialtyMaternalFetal Specialty = "maternal_fetal"
	SpecialtyUrogynecology Specialty = "urogynecology"
	SpecialtyGynOncology   Specialty = "gynecologic_oncology"
	SpecialtyReproEndo     Specialty = "reproductive_endo"
	SpecialtyMinInvasive   Specialty = "minimally_invasive"
	SpecialtyGeneralOBGYN  Specialty = "general_obgyn"
)

var specialtyNames = map[Specialty]string{
	SpecialtyMaternalFetal: "Maternal-Fetal Medicine (High-Risk Pregnancy)",
	SpecialtyUrogynecology: "Urogynecology & Pelvic Reconstructive Medicine",
	SpecialtyGynOncology:   "Gynecologic Oncology",
	SpecialtyReproEndo:     "Reproductive Endocrinology & Infertility",
	SpecialtyMinInvasive:   "Complex/Minimally Invasive Gynecologic Surgery",
	SpecialtyGeneralOBGYN:  "General OB/GYN",
}

// Valid reports whether s is one of the enumerated referral codes.
func (s Specialty) Valid() bool {
	_, ok := specialtyNames[s]
	return ok
}

// Display returns the human-readable subspecialty name.
func (s Specialty) Display() string {
	if name, ok := specialtyNames[s]; ok {
		return name
	}
	return specialtyNames[SpecialtyGeneralOBGYN]
}

// Specialties returns the closed referral set in a stable order.
func Specialties() []Specialty {
	return []Specialty{
		SpecialtyMaternalFetal,
		SpecialtyUrogynecology,
		SpecialtyGynOncology,
		SpecialtyReproEndo,
		SpecialtyMinInvasive,
		SpecialtyGeneralOBGYN,
	}
}

// ClassSource records which layer produced a classification.
type ClassSource string

const (
	// SourceRule means a deterministic red-flag rule fired.
	SourceRule ClassSource = "rule"

	// SourceLLM means the generation capability returned a valid in-domain answer.
	SourceLLM ClassSource = "llm"

	// SourceFallback means the keyword heuristics or the safe default were used.
	SourceFallback ClassSource = "fallback"
)

// Symptom is a normalized tag drawn from the patient's free-text narrative,
// with severity and onset modifiers where they could be extracted.
type Symptom struct {
	Tag      string `json:"tag"`
	Severity string `json:"severity,omitempty"` // "severe" or "mild"
	Onset    string `json:"onset,omitempty"`    // e.g. "3 days", "sudden"
}

// Passage is a retrieved excerpt from the reference handbook.
type Passage struct {
	Page    int     `json:"page"`
	Excerpt string  `json:"excerpt"`
	Score   float64 `json:"score"`
}

// Classification is the urgency/specialty determination for a session.
// Later revisions supersede earlier ones; urgency never decreases across
// revisions (escalation only).
type Classification struct {
	Urgency    Urgency     `json:"urgency"`
	Specialty  Specialty   `json:"specialty"`
	Confidence float64     `json:"confidence"`
	Source     ClassSource `json:"source"`
	Reasoning  string      `json:"reasoning,omitempty"`
	RedFlags   []string    `json:"red_flags,omitempty"`
	Revision   int         `json:"revision"`
}

// Physician is a read-only roster entry supplied by the roster provider.
type Physician struct {
	Name          string      `json:"name"`
	Specialties   []Specialty `json:"specialties"`
	Insurances    []string    `json:"insurances,omitempty"`
	NextAvailable time.Time   `json:"next_available"`
}

// Covers reports whether the physician practices the given subspecialty.
func (p *Physician) Covers(s Specialty) bool {
	for _, ps := range p.Specialties {
		if ps == s {
			return true
		}
	}
	return false
}

// AcceptsInsurance reports whether the physician accepts the given provider.
// An empty or NA insurance always matches.
func (p *Physician) AcceptsInsurance(insurance string) bool {
	if insurance == "" || insurance == ValueNA {
		return true
	}
	for _, ins := range p.Insurances {
		if strings.EqualFold(ins, insurance) {
			return true
		}
	}
	return false
}

// Turn is one utterance in the session transcript.
type Turn struct {
	Speaker   string    `json:"speaker"` // "patient" or "assistant"
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

const (
	SpeakerPatient   = "patient"
	SpeakerAssistant = "assistant"
)

// Session is one patient intake conversation. All mutation happens through
// the Engine and Service; a Session is never shared across goroutines without
// the per-session serialization the Service provides.
type Session struct {
	ID             string          `json:"id"`
	State          State           `json:"state"`
	Transcript     []Turn          `json:"transcript,omitempty"`
	Slots          *SlotSet        `json:"slots"`
	Symptoms       []Symptom       `json:"symptoms,omitempty"`
	Classification *Classification `json:"classification,omitempty"`
	Passages       []Passage       `json:"passages,omitempty"`
	Report         *Report         `json:"report,omitempty"`
	AskedSlot      string          `json:"asked_slot,omitempty"`
	ReviewFlag     bool            `json:"review_flag,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	LastInputAt    time.Time       `json:"last_input_at"`
	CompletedAt    time.Time       `json:"completed_at,omitempty"`
}

// AppendTurn records an utterance on the transcript.
func (s *Session) AppendTurn(speaker, text string, at time.Time) {
	s.Transcript = append(s.Transcript, Turn{Speaker: speaker, Text: text, Timestamp: at})
}

// AddSymptoms merges newly extracted symptoms, deduplicating by tag. A new
// occurrence of a known tag fills in modifiers the old one was missing.
func (s *Session) AddSymptoms(found []Symptom) {
	for _, sym := range found {
		merged := false
		for i := range s.Symptoms {
			if s.Symptoms[i].Tag != sym.Tag {
				continue
			}
			if s.Symptoms[i].Severity == "" {
				s.Symptoms[i].Severity = sym.Severity
			}
			if s.Symptoms[i].Onset == "" {
				s.Symptoms[i].Onset = sym.Onset
			}
			merged = true
			break
		}
		if !merged {
			s.Symptoms = append(s.Symptoms, sym)
		}
	}
}

// ApplyClassification records a new classification revision. Urgency is
// escalation-only: if the new pass would lower the tier established by an
// earlier revision, the earlier tier (and its red flags) is retained while
// specialty, confidence, and reasoning still update.
func (s *Session) ApplyClassification(c Classification) {
	if prev := s.Classification; prev != nil {
		c.Revision = prev.Revision + 1
		if !c.Urgency.AtLeast(prev.Urgency) {
			c.Urgency = prev.Urgency
			c.RedFlags = append(append([]string(nil), prev.RedFlags...), c.RedFlags...)
		}
	} else {
		c.Revision = 1
	}
	s.Classification = &c
}
