package triage

import (
	"strings"
	"testing"
	"time"
)

func reportSession() *Session {
	sess := newTestSession()
	sess.Slots.Values = map[string]string{
		SlotName:           "Jane Doe",
		SlotDOB:            "1990-04-17",
		SlotPhone:          "555-123-4567",
		SlotChiefComplaint: "incontinence when I sneeze",
		SlotSymptomDetail:  "about 3 months now",
		SlotCycleLength:    "28",
		SlotLastPeriod:     ValueNA,
		SlotPregnancyWeek:  ValueNA,
		SlotAllergies:      "penicillin",
		SlotInsurance:      "Aetna",
	}
	sess.Symptoms = []Symptom{{Tag: "incontinence", Onset: "3 months"}}
	sess.Classification = &Classification{
		Urgency:    UrgencyRoutine,
		Specialty:  SpecialtyUrogynecology,
		Confidence: 0.85,
		Source:     SourceLLM,
		Reasoning:  "Pelvic floor disorder",
		Revision:   1,
	}
	sess.Passages = []Passage{{Page: 212, Excerpt: "Stress incontinence", Score: 0.81}}
	return sess
}

func TestAssembleReport_Routine(t *testing.T) {
	t.Parallel()

	sess := reportSession()
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	phys := &Physician{Name: "Dr. Priya Shah", NextAvailable: now.Add(72 * time.Hour)}

	r := AssembleReport(sess, phys, AssignMatched, now)

	if r.SessionID != sess.ID {
		t.Errorf("session id = %q, want %q", r.SessionID, sess.ID)
	}
	if r.Patient.Name != "Jane Doe" {
		t.Errorf("patient name = %q, want Jane Doe", r.Patient.Name)
	}
	if r.Patient.LastPeriod != notProvided {
		t.Errorf("last period = %q, want %q for NA", r.Patient.LastPeriod, notProvided)
	}
	if r.Patient.CycleLength != "28" {
		t.Errorf("cycle length = %q, want 28", r.Patient.CycleLength)
	}
	if r.Patient.PregnancyWeek != notProvided {
		t.Errorf("pregnancy week = %q, want %q for NA", r.Patient.PregnancyWeek, notProvided)
	}
	if r.Assignment == nil || r.Assignment.PhysicianName != "Dr. Priya Shah" {
		t.Fatalf("assignment = %+v, want Dr. Priya Shah", r.Assignment)
	}
	if r.Assignment.Specialty != SpecialtyUrogynecology.Display() {
		t.Errorf("assignment specialty = %q, want display name", r.Assignment.Specialty)
	}
	if len(r.Citations) != 1 || r.Citations[0].Page != 212 {
		t.Errorf("citations = %v, want page 212", r.Citations)
	}
	if !r.GeneratedAt.Equal(now) {
		t.Errorf("generated at = %v, want %v", r.GeneratedAt, now)
	}

	summary := r.Summary()
	for _, want := range []string{"Jane", "Dr. Priya Shah", "routine", "p.212", "insurance card"} {
		if !strings.Contains(summary, want) {
			t.Errorf("summary missing %q:\n%s", want, summary)
		}
	}
}

func TestAssembleReport_EmergencySkipsAssignment(t *testing.T) {
	t.Parallel()

	sess := newTestSession()
	sess.Slots.Values[SlotChiefComplaint] = "heavy bleeding"
	sess.Classification = &Classification{
		Urgency:    UrgencyEmergency,
		Specialty:  SpecialtyGeneralOBGYN,
		Confidence: 1.0,
		Source:     SourceRule,
		RedFlags:   []string{"Severe hemorrhage"},
		Revision:   1,
	}

	r := AssembleReport(sess, nil, AssignNone, time.Now())

	if r.Assignment != nil {
		t.Error("emergency report should carry no assignment")
	}
	if r.Patient.Name != notProvided {
		t.Errorf("patient name = %q, want %q", r.Patient.Name, notProvided)
	}

	summary := r.Summary()
	for _, want := range []string{"911", "emergency room", "Severe hemorrhage"} {
		if !strings.Contains(summary, want) {
			t.Errorf("summary missing %q:\n%s", want, summary)
		}
	}
	if strings.Contains(summary, "Appointment") {
		t.Error("emergency summary must not mention appointments")
	}
}

func TestReportSummary_NoPhysician(t *testing.T) {
	t.Parallel()

	sess := reportSession()
	r := AssembleReport(sess, nil, AssignNone, time.Now())

	summary := r.Summary()
	if !strings.Contains(summary, "manual scheduling required") {
		t.Errorf("summary should flag manual scheduling:\n%s", summary)
	}
	if !strings.Contains(summary, "staff will call you") {
		t.Errorf("summary should promise a callback:\n%s", summary)
	}
}

func TestReportSummary_NoCitations(t *testing.T) {
	t.Parallel()

	sess := reportSession()
	sess.Passages = nil
	phys := &Physician{Name: "Dr. Kim", NextAvailable: time.Now().Add(24 * time.Hour)}

	summary := AssembleReport(sess, phys, AssignMatched, time.Now()).Summary()
	if !strings.Contains(summary, "No supporting references found") {
		t.Errorf("summary should note the empty reference list:\n%s", summary)
	}
	if strings.Contains(summary, "References from our clinical handbook") {
		t.Errorf("summary must not render an empty references section:\n%s", summary)
	}
}

func TestReportSummary_FallbackNotes(t *testing.T) {
	t.Parallel()

	sess := reportSession()
	phys := &Physician{Name: "Dr. Kim", NextAvailable: time.Now().Add(24 * time.Hour)}

	summary := AssembleReport(sess, phys, AssignGeneralFallback, time.Now()).Summary()
	if !strings.Contains(summary, "general OB/GYN") {
		t.Errorf("fallback summary should explain the generalist booking:\n%s", summary)
	}

	summary = AssembleReport(sess, phys, AssignNoInsuranceMatch, time.Now()).Summary()
	if !strings.Contains(summary, "insurance network") {
		t.Errorf("out-of-network summary should warn the patient:\n%s", summary)
	}
}

func TestAssembleReport_Pure(t *testing.T) {
	t.Parallel()

	sess := reportSession()
	now := time.Now()
	r := AssembleReport(sess, nil, AssignNone, now)

	// Mutating the report must not reach back into the session.
	r.Symptoms[0].Tag = "mutated"
	r.Citations[0].Page = 999
	if sess.Symptoms[0].Tag != "incontinence" {
		t.Error("report symptoms must be a copy")
	}
	if sess.Passages[0].Page != 212 {
		t.Error("report citations must be a copy")
	}
}
