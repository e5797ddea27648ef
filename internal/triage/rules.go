package triage

import "strings"

// redFlagTable maps narrative keywords to the clinical warning they indicate.
// Any hit routes the case to the emergency tier without consulting the LLM.
var redFlagTable = []struct {
	phrase string
	flag   string
}{
	{"heavy bleeding", "Severe hemorrhage"},
	{"hemorrhage", "Severe hemorrhage"},
	{"severe pain", "Severe abdominal pain"},
	{"chest pain", "Chest pain (possible PE)"},
	{"shortness of breath", "Respiratory distress"},
	{"can't breathe", "Respiratory distress"},
	{"cant breathe", "Respiratory distress"},
	{"difficulty breathing", "Respiratory distress"},
	{"fainting", "Syncope/loss of consciousness"},
	{"fainted", "Syncope/loss of consciousness"},
	{"passed out", "Syncope/loss of consciousness"},
	{"seizure", "Seizure activity"},
	{"severe headache", "Severe headache (preeclampsia)"},
	{"vision changes", "Visual disturbances (preeclampsia)"},
	{"blurred vision", "Visual disturbances (preeclampsia)"},
}

// pregnancyDangerWords past 20 weeks indicate preterm labor or pregnancy
// complications.
var pregnancyDangerWords = []string{"bleeding", "fluid", "contractions", "pain"}

// DetectRedFlags scans the narrative for emergency indicators. The pregnancy
// rule also fires when the patient is more than 20 weeks pregnant and reports
// bleeding, fluid loss, contractions, or pain.
func DetectRedFlags(narrative, pregnancyWeek string) []string {
	lower := strings.ToLower(narrative)

	var flags []string
	seen := make(map[string]bool)
	for _, entry := range redFlagTable {
		if !strings.Contains(lower, entry.phrase) || seen[entry.flag] {
			continue
		}
		seen[entry.flag] = true
		flags = append(flags, entry.flag)
	}

	if week, ok := WeekOf(pregnancyWeek); ok && week > 20 {
		for _, w := range pregnancyDangerWords {
			if strings.Contains(lower, w) {
				flags = append(flags, "Possible preterm labor/complications")
				break
			}
		}
	}
	return flags
}

// RuleClassify applies the deterministic emergency layer. It returns a
// classification and true only when a red flag fired; all other cases fall
// through to the LLM layer.
func RuleClassify(narrative, pregnancyWeek string) (Classification, bool) {
	flags := DetectRedFlags(narrative, pregnancyWeek)
	if len(flags) == 0 {
		return Classification{}, false
	}
	spec := SpecialtyGeneralOBGYN
	if _, pregnant := WeekOf(pregnancyWeek); pregnant {
		spec = SpecialtyMaternalFetal
	}
	return Classification{
		Urgency:    UrgencyEmergency,
		Specialty:  spec,
		Confidence: 1.0,
		Source:     SourceRule,
		Reasoning:  "Immediate medical attention required",
		RedFlags:   flags,
	}, true
}

// FallbackClassify is the keyword heuristic used when the LLM layer is
// unavailable or keeps answering outside the allowed enumerations.
func FallbackClassify(narrative, pregnancyWeek string) Classification {
	s := strings.ToLower(narrative)

	if _, pregnant := WeekOf(pregnancyWeek); pregnant {
		return Classification{
			Urgency: UrgencyUrgent, Specialty: SpecialtyMaternalFetal,
			Confidence: 0.8, Source: SourceFallback,
			Reasoning: "Pregnancy-related complaint",
		}
	}
	if containsAny(s, "mass", "lump", "abnormal pap", "bleeding after menopause", "pelvic mass") {
		return Classification{
			Urgency: UrgencyUrgent, Specialty: SpecialtyGynOncology,
			Confidence: 0.75, Source: SourceFallback,
			Reasoning: "Suspicious findings",
		}
	}
	if containsAny(s, "incontinence", "prolapse", "leaking urine", "bladder") {
		return Classification{
			Urgency: UrgencyRoutine, Specialty: SpecialtyUrogynecology,
			Confidence: 0.85, Source: SourceFallback,
			Reasoning: "Pelvic floor disorder",
		}
	}
	if containsAny(s, "infertility", "can't get pregnant", "trying to conceive", "pcos") {
		return Classification{
			Urgency: UrgencyRoutine, Specialty: SpecialtyReproEndo,
			Confidence: 0.8, Source: SourceFallback,
			Reasoning: "Reproductive endocrine issue",
		}
	}
	if containsAny(s, "fibroid", "endometriosis", "ovarian cyst", "heavy periods") {
		return Classification{
			Urgency: UrgencyRoutine, Specialty: SpecialtyMinInvasive,
			Confidence: 0.7, Source: SourceFallback,
			Reasoning: "Likely surgical condition",
		}
	}
	return Classification{
		Urgency: UrgencyRoutine, Specialty: SpecialtyGeneralOBGYN,
		Confidence: 0.6, Source: SourceFallback,
		Reasoning: "Routine care",
	}
}
