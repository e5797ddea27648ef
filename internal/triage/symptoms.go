package triage

import (
	"regexp"
	"strings"
)

// symptomVocab maps narrative keywords to normalized symptom tags. Multi-word
// phrases are matched before shorter ones so "heavy bleeding" does not also
// register plain "bleeding".
var symptomVocab = []struct {
	phrase string
	tag    string
}{
	{"heavy bleeding", "heavy_bleeding"},
	{"hemorrhage", "heavy_bleeding"},
	{"bleeding after menopause", "postmenopausal_bleeding"},
	{"postmenopausal bleeding", "postmenopausal_bleeding"},
	{"spotting", "spotting"},
	{"bleeding", "vaginal_bleeding"},
	{"severe headache", "severe_headache"},
	{"headache", "headache"},
	{"blurred vision", "vision_changes"},
	{"vision changes", "vision_changes"},
	{"chest pain", "chest_pain"},
	{"shortness of breath", "breathing_difficulty"},
	{"can't breathe", "breathing_difficulty"},
	{"cant breathe", "breathing_difficulty"},
	{"difficulty breathing", "breathing_difficulty"},
	{"fainting", "syncope"},
	{"fainted", "syncope"},
	{"passed out", "syncope"},
	{"seizure", "seizure"},
	{"contractions", "contractions"},
	{"fluid leaking", "fluid_leak"},
	{"leaking fluid", "fluid_leak"},
	{"pelvic pain", "pelvic_pain"},
	{"abdominal pain", "abdominal_pain"},
	{"cramping", "cramping"},
	{"cramps", "cramping"},
	{"pelvic mass", "pelvic_mass"},
	{"lump", "mass"},
	{"mass", "mass"},
	{"abnormal pap", "abnormal_pap"},
	{"incontinence", "incontinence"},
	{"leaking urine", "incontinence"},
	{"prolapse", "prolapse"},
	{"bladder", "bladder_symptoms"},
	{"infertility", "infertility"},
	{"trying to conceive", "infertility"},
	{"can't get pregnant", "infertility"},
	{"pcos", "pcos"},
	{"fibroid", "fibroids"},
	{"endometriosis", "endometriosis"},
	{"ovarian cyst", "ovarian_cyst"},
	{"heavy periods", "heavy_periods"},
	{"irregular periods", "irregular_periods"},
	{"missed period", "missed_period"},
	{"discharge", "discharge"},
	{"itching", "itching"},
	{"fever", "fever"},
	{"nausea", "nausea"},
	{"vomiting", "vomiting"},
	{"pain", "pain"},
}

var (
	onsetRE  = regexp.MustCompile(`(?i)\b(\d+)\s*(hour|hr|day|week|month|year)s?\b`)
	suddenRE = regexp.MustCompile(`(?i)\b(sudden(?:ly)?|just (?:started|now)|out of nowhere)\b`)
)

// ExtractSymptoms scans a free-text narrative for known symptom keywords and
// returns normalized tags with any severity and onset modifiers found in the
// same text. Duplicate tags are collapsed.
func ExtractSymptoms(text string) []Symptom {
	lower := strings.ToLower(text)

	severity := ""
	switch {
	case containsAny(lower, "severe", "unbearable", "worst", "excruciating", "extreme"):
		severity = "severe"
	case containsAny(lower, "mild", "slight", "minor", "a little"):
		severity = "mild"
	}

	onset := ""
	if m := onsetRE.FindStringSubmatch(text); m != nil {
		onset = strings.ToLower(m[1] + " " + m[2] + "s")
		if m[1] == "1" {
			onset = strings.ToLower(m[1] + " " + m[2])
		}
	} else if suddenRE.MatchString(text) {
		onset = "sudden"
	}

	var out []Symptom
	seen := make(map[string]bool)
	consumed := lower
	for _, entry := range symptomVocab {
		if !strings.Contains(consumed, entry.phrase) {
			continue
		}
		consumed = strings.ReplaceAll(consumed, entry.phrase, " ")
		if seen[entry.tag] {
			continue
		}
		seen[entry.tag] = true
		out = append(out, Symptom{Tag: entry.tag, Severity: severity, Onset: onset})
	}
	return out
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
