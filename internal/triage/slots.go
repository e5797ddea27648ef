package triage

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// ValueNA marks a slot the patient declined to answer. Optional slots accept
// it; required slots re-prompt instead.
const ValueNA = "NA"

// Slot names, in the order the intake dialogue asks them.
const (
	SlotName           = "name"
	SlotDOB            = "date_of_birth"
	SlotPhone          = "phone"
	SlotChiefComplaint = "chief_complaint"
	SlotSymptomDetail  = "symptom_detail"
	SlotCycleLength    = "menstrual_cycle"
	SlotLastPeriod     = "last_menstrual_period"
	SlotPregnancyWeek  = "pregnancy_week"
	SlotAllergies      = "allergies"
	SlotInsurance      = "insurance"
)

type slotDef struct {
	name     string
	prompt   string
	required bool
	validate func(raw string) (string, string) // normalized value, problem description
}

var slotOrder = []slotDef{
	{
		name:     SlotName,
		prompt:   "To get started, may I have your full name?",
		required: true,
		validate: validateName,
	},
	{
		name:     SlotDOB,
		prompt:   "What is your date of birth? (for example 1990-04-17)",
		required: true,
		validate: validateDOB,
	},
	{
		name:     SlotPhone,
		prompt:   "What is the best phone number to reach you at?",
		required: true,
		validate: validatePhone,
	},
	{
		name:     SlotChiefComplaint,
		prompt:   "What brings you in today? Please describe your main concern in your own words.",
		required: true,
		validate: validateFreeText,
	},
	{
		name:     SlotSymptomDetail,
		prompt:   "How long has this been going on, and how severe would you say it is?",
		required: true,
		validate: validateFreeText,
	},
	{
		name:     SlotCycleLength,
		prompt:   "What is your usual menstrual cycle length in days? (for example 28; say \"NA\" if not applicable)",
		validate: validateCycleLength,
	},
	{
		name:     SlotLastPeriod,
		prompt:   "When was the first day of your last menstrual period? You can say \"skip\" if you'd rather not answer.",
		validate: validateLastPeriod,
	},
	{
		name:     SlotPregnancyWeek,
		prompt:   "If applicable, how many weeks pregnant are you? (for example \"12 weeks\", or say \"not pregnant\")",
		validate: validatePregnancyWeek,
	},
	{
		name:   SlotAllergies,
		prompt: "Do you have any medication allergies? If none, just say \"none\".",
	},
	{
		name:   SlotInsurance,
		prompt: "Lastly, what insurance provider do you have, if any?",
	},
}

// skipTokens are answers treated as a declined optional slot.
var skipTokens = map[string]bool{
	"skip":              true,
	"na":                true,
	"n/a":               true,
	"prefer not to say": true,
	"decline":           true,
	"rather not say":    true,
}

// SlotSet holds the intake form values keyed by slot name.
type SlotSet struct {
	Values map[string]string `json:"values"`
}

// NewSlotSet returns an empty slot set.
func NewSlotSet() *SlotSet {
	return &SlotSet{Values: make(map[string]string)}
}

// Filled reports whether the named slot has a value (including NA).
func (ss *SlotSet) Filled(name string) bool {
	_, ok := ss.Values[name]
	return ok
}

// Value returns the stored value for a slot, or "" if unfilled.
func (ss *SlotSet) Value(name string) string {
	return ss.Values[name]
}

// Set validates and stores a patient answer for the named slot. A rejected
// answer returns a *ValidationError describing what to re-ask.
func (ss *SlotSet) Set(name, raw string) error {
	def, ok := findSlot(name)
	if !ok {
		return &ValidationError{Slot: name, Reason: "unknown field"}
	}

	answer := strings.TrimSpace(raw)
	if skipTokens[strings.ToLower(answer)] {
		if def.required {
			return &ValidationError{Slot: name, Reason: "this field is needed to book your visit"}
		}
		ss.Values[name] = ValueNA
		return nil
	}
	if answer == "" {
		return &ValidationError{Slot: name, Reason: "empty answer"}
	}

	if def.validate != nil {
		normalized, problem := def.validate(answer)
		if problem != "" {
			return &ValidationError{Slot: name, Reason: problem}
		}
		answer = normalized
	}

	ss.Values[name] = answer
	return nil
}

// NextMissingRequired returns the first slot in ask order that has no value
// yet, and false once the form is complete.
func (ss *SlotSet) NextMissingRequired() (string, bool) {
	for _, def := range slotOrder {
		if !ss.Filled(def.name) {
			return def.name, true
		}
	}
	return "", false
}

// PromptFor returns the question text for a slot.
func PromptFor(name string) string {
	if def, ok := findSlot(name); ok {
		return def.prompt
	}
	return ""
}

// Snapshot returns a copy of all stored values.
func (ss *SlotSet) Snapshot() map[string]string {
	out := make(map[string]string, len(ss.Values))
	for k, v := range ss.Values {
		out[k] = v
	}
	return out
}

func findSlot(name string) (slotDef, bool) {
	for _, def := range slotOrder {
		if def.name == name {
			return def, true
		}
	}
	return slotDef{}, false
}

var phoneDigits = regexp.MustCompile(`\d`)

func validateName(raw string) (string, string) {
	if len(strings.Fields(raw)) < 2 {
		return "", "please give your first and last name"
	}
	return raw, ""
}

var dobLayouts = []string{"2006-01-02", "01/02/2006", "1/2/2006", "January 2, 2006", "Jan 2, 2006", "2 January 2006"}

func validateDOB(raw string) (string, string) {
	for _, layout := range dobLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			if t.After(time.Now()) {
				return "", "that date is in the future"
			}
			return t.Format("2006-01-02"), ""
		}
	}
	return "", "please give your birth date, for example 1990-04-17"
}

func validatePhone(raw string) (string, string) {
	digits := phoneDigits.FindAllString(raw, -1)
	if len(digits) < 7 || len(digits) > 15 {
		return "", "please give a phone number with area code"
	}
	return raw, ""
}

func validateFreeText(raw string) (string, string) {
	if len(raw) < 3 {
		return "", "please tell me a little more"
	}
	return raw, ""
}

// lastPeriodWindow bounds how far back a last-menstrual-period date may be.
const lastPeriodWindow = 2 * 365 * 24 * time.Hour

func validateLastPeriod(raw string) (string, string) {
	for _, layout := range dobLayouts {
		t, err := time.Parse(layout, raw)
		if err != nil {
			continue
		}
		now := time.Now()
		if t.After(now) {
			return "", "that date is in the future"
		}
		if t.Before(now.Add(-lastPeriodWindow)) {
			return "", "that date is more than two years ago; please double-check it"
		}
		return t.Format("2006-01-02"), ""
	}
	return "", "please give the date, for example 2026-08-01"
}

var cycleDaysRE = regexp.MustCompile(`^(\d{1,2})\s*(days?)?$`)

func validateCycleLength(raw string) (string, string) {
	m := cycleDaysRE.FindStringSubmatch(strings.ToLower(raw))
	if m == nil {
		return "", "please give the cycle length in days, for example 28"
	}
	days, _ := strconv.Atoi(m[1])
	if days < 15 || days > 60 {
		return "", "please give a cycle length between 15 and 60 days"
	}
	return strconv.Itoa(days), ""
}

var (
	notPregnantRE   = regexp.MustCompile(`\bnot\s+pregnant\b`)
	pregnancyWeekRE = regexp.MustCompile(`(\d{1,2})\s*(weeks?|w)\b`)
	bareWeekRE      = regexp.MustCompile(`^\d{1,2}$`)
)

func validatePregnancyWeek(raw string) (string, string) {
	lower := strings.ToLower(raw)
	switch lower {
	case "no", "n", "nope":
		return ValueNA, ""
	}
	if notPregnantRE.MatchString(lower) {
		return ValueNA, ""
	}

	var digits string
	if m := pregnancyWeekRE.FindStringSubmatch(lower); m != nil {
		digits = m[1]
	} else if bareWeekRE.MatchString(lower) {
		digits = lower
	}
	if digits != "" {
		week, _ := strconv.Atoi(digits)
		if week >= 1 && week <= 44 {
			return strconv.Itoa(week), ""
		}
		return "", "that week number doesn't look right; please check it"
	}
	return "", "please give the number of weeks, for example \"12 weeks\", or say \"not pregnant\""
}

// WeekOf parses a stored pregnancy-week value. It returns false for NA,
// unfilled, or non-numeric values.
func WeekOf(v string) (int, bool) {
	week, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return week, true
}
