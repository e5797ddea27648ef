package triage

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/linnemanlabs/go-core/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const classifyTokens = 1024

// Classifier derives urgency and subspecialty for a session. The
// deterministic red-flag layer runs first; everything else goes to the LLM,
// whose answer must stay inside the closed enumerations. An out-of-domain
// answer gets one corrective retry, then the safe default. A transport error
// gets one retry, then the keyword heuristics.
type Classifier struct {
	provider Provider
	logger   log.Logger
	hooks    EngineHooks
}

// NewClassifier creates a classifier over the given provider.
func NewClassifier(provider Provider, logger log.Logger, hooks EngineHooks) *Classifier {
	return &Classifier{provider: provider, logger: logger, hooks: hooks}
}

// llmTriage is the JSON shape the provider is asked to return.
type llmTriage struct {
	Urgency    string  `json:"urgency"`
	Specialty  string  `json:"specialty"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning"`
}

// Classify returns the classification for a session and whether the case
// needs human review (set when neither LLM pass produced a usable answer).
func (c *Classifier) Classify(ctx context.Context, sess *Session) (Classification, bool) {
	narrative := sessionNarrative(sess)
	pregnancyWeek := sess.Slots.Value(SlotPregnancyWeek)

	if cls, ok := RuleClassify(narrative, pregnancyWeek); ok {
		c.logger.Info(ctx, "red flag classification",
			"session_id", sess.ID,
			"red_flags", len(cls.RedFlags),
		)
		c.emitClassify(string(SourceRule))
		return cls, false
	}

	prompt := buildTriagePrompt(sess, narrative)

	resp, err := c.generate(ctx, prompt)
	if err != nil {
		c.logger.Warn(ctx, "llm classify failed, retrying", "session_id", sess.ID, "error", err.Error())
		resp, err = c.generate(ctx, prompt)
	}
	if err != nil {
		c.logger.Error(ctx, err, "llm classify unavailable, using heuristics", "session_id", sess.ID)
		cls := FallbackClassify(narrative, pregnancyWeek)
		c.emitClassify(string(SourceFallback))
		return cls, true
	}

	if cls, ok := parseTriageAnswer(resp.Text); ok {
		c.emitClassify(string(SourceLLM))
		return cls, false
	}

	// One corrective retry with the violation spelled out.
	c.logger.Warn(ctx, "llm answer outside enumerations, retrying", "session_id", sess.ID)
	strict := prompt + "\n\nYour previous answer was not valid. Respond with ONLY the JSON object, no prose, using exactly the listed urgency and specialty values."
	resp, err = c.generate(ctx, strict)
	if err == nil {
		if cls, ok := parseTriageAnswer(resp.Text); ok {
			c.emitClassify(string(SourceLLM))
			return cls, false
		}
	}

	c.logger.Warn(ctx, "llm classification rejected twice, using safe default", "session_id", sess.ID)
	c.emitClassify(string(SourceFallback))
	return Classification{
		Urgency:    UrgencyRoutine,
		Specialty:  SpecialtyGeneralOBGYN,
		Confidence: 0.3,
		Source:     SourceFallback,
		Reasoning:  "Automatic classification unavailable; defaulted pending review",
	}, true
}

// Refine re-runs the LLM layer with retrieved handbook passages folded into
// the prompt. It is single-shot: any transport failure or out-of-domain
// answer returns false and the caller keeps the earlier classification.
func (c *Classifier) Refine(ctx context.Context, sess *Session) (Classification, bool) {
	if len(sess.Passages) == 0 {
		return Classification{}, false
	}

	prompt := buildTriagePrompt(sess, sessionNarrative(sess))
	resp, err := c.generate(ctx, prompt)
	if err != nil {
		c.logger.Warn(ctx, "refinement pass failed, keeping initial classification", "session_id", sess.ID, "error", err.Error())
		return Classification{}, false
	}
	cls, ok := parseTriageAnswer(resp.Text)
	if !ok {
		c.logger.Warn(ctx, "refinement answer outside enumerations, keeping initial classification", "session_id", sess.ID)
		return Classification{}, false
	}
	c.emitClassify(string(SourceLLM))
	return cls, true
}

func (c *Classifier) generate(ctx context.Context, prompt string) (*GenResponse, error) {
	tracer := otel.Tracer("doula/triage")
	ctx, span := tracer.Start(ctx, "llm.classify", trace.WithAttributes(
		attribute.String("gen_ai.operation.name", "llm.classify"),
	))
	defer span.End()

	start := time.Now()
	resp, err := c.provider.Generate(ctx, &GenRequest{
		MaxTokens: classifyTokens,
		System:    triageSystemPrompt,
		Prompt:    prompt,
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	span.SetAttributes(
		attribute.Int("gen_ai.usage.input_tokens", resp.Usage.InputTokens),
		attribute.Int("gen_ai.usage.output_tokens", resp.Usage.OutputTokens),
	)
	if c.hooks.OnLLMCall != nil {
		c.hooks.OnLLMCall(resp.Usage.InputTokens, resp.Usage.OutputTokens, time.Since(start).Seconds())
	}
	return resp, nil
}

func (c *Classifier) emitClassify(source string) {
	if c.hooks.OnClassify != nil {
		c.hooks.OnClassify(source)
	}
}

const triageSystemPrompt = `You are an expert OB/GYN triage specialist. You classify patient intake summaries for a clinic scheduler. Return valid JSON only.`

func buildTriagePrompt(sess *Session, narrative string) string {
	var codes []string
	for _, s := range Specialties() {
		codes = append(codes, string(s))
	}
	var tags []string
	for _, sym := range sess.Symptoms {
		t := sym.Tag
		if sym.Severity != "" {
			t += " (" + sym.Severity + ")"
		}
		if sym.Onset != "" {
			t += " [" + sym.Onset + "]"
		}
		tags = append(tags, t)
	}
	prompt := fmt.Sprintf(`Return ONLY JSON with keys: specialty, urgency ("emergency"|"urgent"|"routine"), confidence (0-1), reasoning.

Patient narrative: %s
Extracted symptoms: %s
Date of birth: %s
Pregnancy week: %s
Menstrual cycle length: %s
Last menstrual period: %s

Allowed specialty values: %s.`,
		narrative,
		strings.Join(tags, ", "),
		sess.Slots.Value(SlotDOB),
		sess.Slots.Value(SlotPregnancyWeek),
		sess.Slots.Value(SlotCycleLength),
		sess.Slots.Value(SlotLastPeriod),
		strings.Join(codes, ", "),
	)

	if len(sess.Passages) > 0 {
		var b strings.Builder
		b.WriteString(prompt)
		b.WriteString("\n\nReference handbook excerpts:\n")
		for _, p := range sess.Passages {
			fmt.Fprintf(&b, "- p.%d: %s\n", p.Page, p.Excerpt)
		}
		prompt = b.String()
	}
	return prompt
}

var jsonObjectRE = regexp.MustCompile(`(?s)\{.*\}`)

// parseTriageAnswer extracts and validates the provider's JSON. Answers
// with urgency or specialty outside the closed sets are rejected.
func parseTriageAnswer(text string) (Classification, bool) {
	raw := text
	if !json.Valid([]byte(raw)) {
		m := jsonObjectRE.FindString(text)
		if m == "" {
			return Classification{}, false
		}
		raw = m
	}

	var ans llmTriage
	if err := json.Unmarshal([]byte(raw), &ans); err != nil {
		return Classification{}, false
	}

	urgency := Urgency(strings.ToLower(strings.TrimSpace(ans.Urgency)))
	if !urgency.Valid() {
		return Classification{}, false
	}
	specialty := Specialty(strings.ToLower(strings.TrimSpace(ans.Specialty)))
	if !specialty.Valid() {
		return Classification{}, false
	}

	conf := ans.Confidence
	if conf < 0 {
		conf = 0
	}
	if conf > 1 {
		conf = 1
	}

	return Classification{
		Urgency:    urgency,
		Specialty:  specialty,
		Confidence: conf,
		Source:     SourceLLM,
		Reasoning:  strings.TrimSpace(ans.Reasoning),
	}, true
}

// sessionNarrative joins the complaint slots into one classification input.
func sessionNarrative(sess *Session) string {
	parts := []string{}
	if v := sess.Slots.Value(SlotChiefComplaint); v != "" && v != ValueNA {
		parts = append(parts, v)
	}
	if v := sess.Slots.Value(SlotSymptomDetail); v != "" && v != ValueNA {
		parts = append(parts, v)
	}
	return strings.Join(parts, ". ")
}
