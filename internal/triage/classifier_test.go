package triage

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/linnemanlabs/go-core/log"
)

func classifySession(complaint, detail, pregnancyWeek string) *Session {
	sess := newTestSession()
	sess.Slots.Values[SlotChiefComplaint] = complaint
	sess.Slots.Values[SlotSymptomDetail] = detail
	sess.Slots.Values[SlotPregnancyWeek] = pregnancyWeek
	sess.AddSymptoms(ExtractSymptoms(complaint + " " + detail))
	return sess
}

func TestClassify_ValidLLMAnswer(t *testing.T) {
	t.Parallel()

	provider := &mockProvider{
		responses: []*GenResponse{{
			Text:  `{"urgency":"urgent","specialty":"gynecologic_oncology","confidence":0.75,"reasoning":"Suspicious findings"}`,
			Usage: Usage{InputTokens: 50, OutputTokens: 20},
		}},
	}
	c := NewClassifier(provider, log.Nop(), EngineHooks{})

	cls, review := c.Classify(context.Background(), classifySession("I found a lump", "about a week ago", ValueNA))

	if review {
		t.Error("valid answer should not need review")
	}
	if cls.Urgency != UrgencyUrgent {
		t.Errorf("urgency = %q, want urgent", cls.Urgency)
	}
	if cls.Specialty != SpecialtyGynOncology {
		t.Errorf("specialty = %q, want gynecologic_oncology", cls.Specialty)
	}
	if cls.Source != SourceLLM {
		t.Errorf("source = %q, want llm", cls.Source)
	}
	if provider.calls() != 1 {
		t.Errorf("provider calls = %d, want 1", provider.calls())
	}
}

func TestClassify_JSONEmbeddedInProse(t *testing.T) {
	t.Parallel()

	provider := &mockProvider{
		responses: []*GenResponse{{
			Text: "Here is my assessment:\n```json\n{\"urgency\":\"routine\",\"specialty\":\"reproductive_endo\",\"confidence\":0.8,\"reasoning\":\"Fertility workup\"}\n```\nLet me know if you need more.",
		}},
	}
	c := NewClassifier(provider, log.Nop(), EngineHooks{})

	cls, review := c.Classify(context.Background(), classifySession("trying to conceive for a year", "no luck so far", ValueNA))

	if review {
		t.Error("answer with extractable JSON should not need review")
	}
	if cls.Specialty != SpecialtyReproEndo {
		t.Errorf("specialty = %q, want reproductive_endo", cls.Specialty)
	}
}

func TestClassify_OutOfDomainThenValid(t *testing.T) {
	t.Parallel()

	provider := &mockProvider{
		responses: []*GenResponse{
			{Text: `{"urgency":"routine","specialty":"dermatology","confidence":0.9,"reasoning":"skin"}`},
			{Text: `{"urgency":"routine","specialty":"general_obgyn","confidence":0.7,"reasoning":"routine"}`},
		},
	}
	c := NewClassifier(provider, log.Nop(), EngineHooks{})

	cls, review := c.Classify(context.Background(), classifySession("itching", "two weeks", ValueNA))

	if review {
		t.Error("corrective retry succeeded, no review needed")
	}
	if cls.Specialty != SpecialtyGeneralOBGYN {
		t.Errorf("specialty = %q, want general_obgyn", cls.Specialty)
	}
	if provider.calls() != 2 {
		t.Errorf("provider calls = %d, want 2", provider.calls())
	}
}

func TestClassify_OutOfDomainTwiceUsesSafeDefault(t *testing.T) {
	t.Parallel()

	provider := &mockProvider{
		responses: []*GenResponse{
			{Text: `{"urgency":"asap","specialty":"general_obgyn","confidence":0.9,"reasoning":"x"}`},
			{Text: `not json at all`},
		},
	}
	c := NewClassifier(provider, log.Nop(), EngineHooks{})

	cls, review := c.Classify(context.Background(), classifySession("itching", "two weeks", ValueNA))

	if !review {
		t.Error("double rejection must flag review")
	}
	if cls.Urgency != UrgencyRoutine || cls.Specialty != SpecialtyGeneralOBGYN {
		t.Errorf("got %q/%q, want routine/general_obgyn safe default", cls.Urgency, cls.Specialty)
	}
	if cls.Source != SourceFallback {
		t.Errorf("source = %q, want fallback", cls.Source)
	}
	if cls.Confidence != 0.3 {
		t.Errorf("confidence = %v, want 0.3", cls.Confidence)
	}
}

func TestClassify_TransportErrorThenSuccess(t *testing.T) {
	t.Parallel()

	provider := &mockProvider{
		errs: []error{errors.New("connection reset")},
		responses: []*GenResponse{
			nil,
			{Text: `{"urgency":"routine","specialty":"minimally_invasive","confidence":0.7,"reasoning":"fibroids"}`},
		},
	}
	c := NewClassifier(provider, log.Nop(), EngineHooks{})

	cls, review := c.Classify(context.Background(), classifySession("fibroid follow-up", "diagnosed last year", ValueNA))

	if review {
		t.Error("retry succeeded, no review needed")
	}
	if cls.Specialty != SpecialtyMinInvasive {
		t.Errorf("specialty = %q, want minimally_invasive", cls.Specialty)
	}
	if provider.calls() != 2 {
		t.Errorf("provider calls = %d, want 2", provider.calls())
	}
}

func TestClassify_TransportErrorTwiceUsesHeuristics(t *testing.T) {
	t.Parallel()

	provider := &mockProvider{
		errs: []error{errors.New("timeout"), errors.New("timeout")},
	}
	c := NewClassifier(provider, log.Nop(), EngineHooks{})

	cls, review := c.Classify(context.Background(), classifySession("I keep leaking urine", "for months now", ValueNA))

	if !review {
		t.Error("provider outage must flag review")
	}
	if cls.Source != SourceFallback {
		t.Errorf("source = %q, want fallback", cls.Source)
	}
	if cls.Specialty != SpecialtyUrogynecology {
		t.Errorf("specialty = %q, want urogynecology from heuristics", cls.Specialty)
	}
}

func TestClassify_RedFlagsSkipProvider(t *testing.T) {
	t.Parallel()

	provider := &mockProvider{}
	c := NewClassifier(provider, log.Nop(), EngineHooks{})

	cls, review := c.Classify(context.Background(), classifySession("sudden severe headache and blurred vision", "started an hour ago", "32"))

	if review {
		t.Error("rule classification should not need review")
	}
	if cls.Urgency != UrgencyEmergency {
		t.Errorf("urgency = %q, want emergency", cls.Urgency)
	}
	if cls.Specialty != SpecialtyMaternalFetal {
		t.Errorf("specialty = %q, want maternal_fetal for a pregnant patient", cls.Specialty)
	}
	if provider.calls() != 0 {
		t.Errorf("provider calls = %d, want 0", provider.calls())
	}
}

func TestRefine_IncludesPassagesInPrompt(t *testing.T) {
	t.Parallel()

	provider := &mockProvider{
		responses: []*GenResponse{{
			Text:  `{"urgency":"urgent","specialty":"maternal_fetal","confidence":0.9,"reasoning":"Handbook guidance"}`,
			Usage: Usage{InputTokens: 200, OutputTokens: 40},
		}},
	}
	c := NewClassifier(provider, log.Nop(), EngineHooks{})

	sess := classifySession("spotting", "started this morning", "32")
	sess.Passages = []Passage{{Page: 77, Excerpt: "Third-trimester spotting guidance", Score: 0.88}}

	cls, ok := c.Refine(context.Background(), sess)
	if !ok {
		t.Fatal("expected a refined classification")
	}
	if cls.Specialty != SpecialtyMaternalFetal {
		t.Errorf("specialty = %q, want maternal_fetal", cls.Specialty)
	}
	if !strings.Contains(provider.prompt(0), "p.77: Third-trimester spotting guidance") {
		t.Errorf("prompt missing the passage: %q", provider.prompt(0))
	}
}

func TestRefine_NoPassagesSkipsProvider(t *testing.T) {
	t.Parallel()

	provider := &mockProvider{}
	c := NewClassifier(provider, log.Nop(), EngineHooks{})

	if _, ok := c.Refine(context.Background(), classifySession("spotting", "this morning", "32")); ok {
		t.Error("refinement without passages should report false")
	}
	if provider.calls() != 0 {
		t.Errorf("provider calls = %d, want 0", provider.calls())
	}
}

func TestRefine_SingleShotOnFailure(t *testing.T) {
	t.Parallel()

	provider := &mockProvider{errs: []error{errors.New("timeout")}}
	c := NewClassifier(provider, log.Nop(), EngineHooks{})

	sess := classifySession("spotting", "this morning", "32")
	sess.Passages = []Passage{{Page: 77, Excerpt: "x", Score: 0.5}}

	if _, ok := c.Refine(context.Background(), sess); ok {
		t.Error("transport failure should report false")
	}
	if provider.calls() != 1 {
		t.Errorf("provider calls = %d, want 1 with no retry", provider.calls())
	}
}

func TestParseTriageAnswer_ConfidenceClamped(t *testing.T) {
	t.Parallel()

	cls, ok := parseTriageAnswer(`{"urgency":"routine","specialty":"general_obgyn","confidence":1.7,"reasoning":"x"}`)
	if !ok {
		t.Fatal("expected valid parse")
	}
	if cls.Confidence != 1 {
		t.Errorf("confidence = %v, want clamped to 1", cls.Confidence)
	}

	cls, ok = parseTriageAnswer(`{"urgency":"routine","specialty":"general_obgyn","confidence":-0.2,"reasoning":"x"}`)
	if !ok {
		t.Fatal("expected valid parse")
	}
	if cls.Confidence != 0 {
		t.Errorf("confidence = %v, want clamped to 0", cls.Confidence)
	}
}
