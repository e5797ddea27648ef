package triage

import "time"

// AssignOutcome describes how a physician match was made.
type AssignOutcome string

const (
	// AssignMatched means a physician covering the subspecialty and
	// accepting the patient's insurance was found inside the horizon.
	AssignMatched AssignOutcome = "matched"

	// AssignNoInsuranceMatch means subspecialty coverage was found but no
	// covering physician accepts the patient's insurance.
	AssignNoInsuranceMatch AssignOutcome = "no_insurance_match"

	// AssignGeneralFallback means nobody covers the subspecialty inside
	// the horizon, so a general OB/GYN was booked instead.
	AssignGeneralFallback AssignOutcome = "general_fallback"

	// AssignNone means no physician at all is available inside the horizon.
	AssignNone AssignOutcome = "none_available"
)

// horizonFor returns how far ahead the scheduler may look for each tier.
func horizonFor(u Urgency) time.Duration {
	switch u {
	case UrgencyEmergency:
		return 24 * time.Hour
	case UrgencyUrgent:
		return 7 * 24 * time.Hour
	default:
		return 14 * 24 * time.Hour
	}
}

// Assign picks the earliest-available physician for the given subspecialty
// within the urgency horizon. Physicians accepting the patient's insurance
// are preferred; when the subspecialty has no availability at all, general
// OB/GYN coverage is tried before giving up. Ties on availability break by
// roster order so repeated runs over the same roster agree.
func Assign(now time.Time, spec Specialty, urgency Urgency, insurance string, roster []Physician) (*Physician, AssignOutcome) {
	deadline := now.Add(horizonFor(urgency))

	if p := earliest(roster, spec, insurance, deadline, true); p != nil {
		return p, AssignMatched
	}
	if p := earliest(roster, spec, insurance, deadline, false); p != nil {
		return p, AssignNoInsuranceMatch
	}
	if spec != SpecialtyGeneralOBGYN {
		if p := earliest(roster, SpecialtyGeneralOBGYN, insurance, deadline, true); p != nil {
			return p, AssignGeneralFallback
		}
		if p := earliest(roster, SpecialtyGeneralOBGYN, insurance, deadline, false); p != nil {
			return p, AssignGeneralFallback
		}
	}
	return nil, AssignNone
}

func earliest(roster []Physician, spec Specialty, insurance string, deadline time.Time, matchInsurance bool) *Physician {
	var best *Physician
	for i := range roster {
		p := &roster[i]
		if !p.Covers(spec) || p.NextAvailable.After(deadline) {
			continue
		}
		if matchInsurance && !p.AcceptsInsurance(insurance) {
			continue
		}
		// Equal availability keeps the earlier roster entry.
		if best == nil || p.NextAvailable.Before(best.NextAvailable) {
			best = p
		}
	}
	if best == nil {
		return nil
	}
	cp := *best
	return &cp
}
