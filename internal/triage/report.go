package triage

import (
	"fmt"
	"strings"
	"time"
)

// notProvided renders unanswered or declined slots in the report.
const notProvided = "not provided"

// PatientInfo is the administrative section of a report.
type PatientInfo struct {
	Name          string `json:"name"`
	DOB           string `json:"date_of_birth"`
	Phone         string `json:"phone"`
	Insurance     string `json:"insurance"`
	Allergies     string `json:"allergies"`
	CycleLength   string `json:"menstrual_cycle"`
	LastPeriod    string `json:"last_menstrual_period"`
	PregnancyWeek string `json:"pregnancy_week"`
}

// Assignment is the scheduling section of a report.
type Assignment struct {
	PhysicianName string        `json:"physician_name,omitempty"`
	Specialty     string        `json:"specialty"`
	ScheduledAt   time.Time     `json:"scheduled_at,omitempty"`
	Outcome       AssignOutcome `json:"outcome"`
}

// Report is the final triage artifact for a session.
type Report struct {
	SessionID      string         `json:"session_id"`
	Patient        PatientInfo    `json:"patient"`
	Narrative      string         `json:"narrative"`
	Symptoms       []Symptom      `json:"symptoms,omitempty"`
	Classification Classification `json:"classification"`
	Assignment     *Assignment    `json:"assignment,omitempty"`
	Citations      []Passage      `json:"citations,omitempty"`
	ReviewFlag     bool           `json:"review_flag,omitempty"`
	GeneratedAt    time.Time      `json:"generated_at"`
}

// AssembleReport builds the report for a classified session. It is pure:
// everything comes from its arguments. Emergency cases carry no physician
// assignment; the summary directs the patient to emergency care instead.
func AssembleReport(sess *Session, physician *Physician, outcome AssignOutcome, now time.Time) *Report {
	r := &Report{
		SessionID:   sess.ID,
		Narrative:   sessionNarrative(sess),
		Symptoms:    append([]Symptom(nil), sess.Symptoms...),
		Citations:   append([]Passage(nil), sess.Passages...),
		ReviewFlag:  sess.ReviewFlag,
		GeneratedAt: now,
		Patient: PatientInfo{
			Name:          slotOrDefault(sess, SlotName),
			DOB:           slotOrDefault(sess, SlotDOB),
			Phone:         slotOrDefault(sess, SlotPhone),
			Insurance:     slotOrDefault(sess, SlotInsurance),
			Allergies:     slotOrDefault(sess, SlotAllergies),
			CycleLength:   slotOrDefault(sess, SlotCycleLength),
			LastPeriod:    slotOrDefault(sess, SlotLastPeriod),
			PregnancyWeek: slotOrDefault(sess, SlotPregnancyWeek),
		},
	}
	if sess.Classification != nil {
		r.Classification = *sess.Classification
	}

	if r.Classification.Urgency == UrgencyEmergency {
		return r
	}

	asg := &Assignment{
		Specialty: r.Classification.Specialty.Display(),
		Outcome:   outcome,
	}
	if physician != nil {
		asg.PhysicianName = physician.Name
		asg.ScheduledAt = physician.NextAvailable
	}
	r.Assignment = asg
	return r
}

// Summary renders the report as the message shown to the patient.
func (r *Report) Summary() string {
	var b strings.Builder

	if r.Classification.Urgency == UrgencyEmergency {
		fmt.Fprintf(&b, "URGENT: %s, based on what you've described you need immediate emergency care.\n", firstName(r.Patient.Name))
		if len(r.Classification.RedFlags) > 0 {
			b.WriteString("Warning signs detected:\n")
			for _, f := range r.Classification.RedFlags {
				fmt.Fprintf(&b, "  - %s\n", f)
			}
		}
		b.WriteString("Please call 911 or go to your nearest emergency room now. Do not wait for an appointment.")
		return b.String()
	}

	fmt.Fprintf(&b, "Thank you, %s. Here is your intake summary.\n\n", firstName(r.Patient.Name))
	fmt.Fprintf(&b, "Concern: %s\n", r.Narrative)
	fmt.Fprintf(&b, "Assessment: %s priority, %s (confidence %.0f%%)\n",
		r.Classification.Urgency, r.Classification.Specialty.Display(), r.Classification.Confidence*100)
	if r.Classification.Reasoning != "" {
		fmt.Fprintf(&b, "Clinical note: %s\n", r.Classification.Reasoning)
	}

	if asg := r.Assignment; asg != nil {
		switch asg.Outcome {
		case AssignNone:
			b.WriteString("\nUnassigned; manual scheduling required. Our staff will call you to arrange care.\n")
		default:
			fmt.Fprintf(&b, "\nAppointment: %s on %s\n", asg.PhysicianName, asg.ScheduledAt.Format("Monday, January 2 at 3:04 PM"))
			if asg.Outcome == AssignGeneralFallback {
				b.WriteString("No subspecialist was available soon enough, so you are booked with a general OB/GYN who can refer you onward.\n")
			}
			if asg.Outcome == AssignNoInsuranceMatch {
				b.WriteString("Please note this physician may be outside your insurance network.\n")
			}
		}
	}

	if len(r.Citations) > 0 {
		b.WriteString("\nReferences from our clinical handbook:\n")
		for _, p := range r.Citations {
			fmt.Fprintf(&b, "  - p.%d: %s\n", p.Page, p.Excerpt)
		}
	} else {
		b.WriteString("\nNo supporting references found.\n")
	}

	b.WriteString("\nPlease bring your insurance card and a photo ID. Contact our office to reschedule.")
	return b.String()
}

func slotOrDefault(sess *Session, name string) string {
	v := sess.Slots.Value(name)
	if v == "" || v == ValueNA {
		return notProvided
	}
	return v
}

func firstName(full string) string {
	if full == notProvided || full == "" {
		return "patient"
	}
	if i := strings.IndexByte(full, ' '); i > 0 {
		return full[:i]
	}
	return full
}
