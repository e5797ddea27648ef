// Package roster supplies the physician roster with concrete availability.
//
// Physicians are defined with a weekly schedule of slot times. The provider
// expands that into the earliest upcoming appointment for each physician at
// query time, optionally refreshing the definitions from the practice
// management service first.
package roster

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"sort"
	"time"

	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/doula/internal/triage"
)

// searchDays is how far ahead the weekly schedule is expanded. It covers
// the longest scheduling horizon used for assignment.
const searchDays = 15

// Doctor is a roster entry as configured or served by the practice
// management service: a weekly schedule keyed by short weekday name.
type Doctor struct {
	Name           string              `json:"name"`
	Subspecialties []string            `json:"subspecialties"`
	Insurances     []string            `json:"insurances"`
	Schedule       map[string][]string `json:"schedule"`
}

type rosterResponse struct {
	Doctors []Doctor `json:"doctors"`
}

// Provider expands doctor definitions into triage roster entries. With an
// endpoint configured it refreshes the definitions per call and falls back
// to the built-in roster when the service is unreachable.
type Provider struct {
	endpoint   string
	httpClient *http.Client
	logger     log.Logger
	now        func() time.Time
}

// New creates a roster provider. An empty endpoint means the built-in
// roster is always used.
func New(endpoint string, logger log.Logger) *Provider {
	return &Provider{
		endpoint:   endpoint,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     logger,
		now:        time.Now,
	}
}

// CurrentRoster returns all physicians with a known upcoming slot, sorted
// by earliest availability.
func (p *Provider) CurrentRoster(ctx context.Context) ([]triage.Physician, error) {
	doctors := DefaultDoctors()
	if p.endpoint != "" {
		fetched, err := p.fetch(ctx)
		if err != nil {
			p.logger.Warn(ctx, "roster fetch failed, using built-in roster", "error", err)
		} else if len(fetched) > 0 {
			doctors = fetched
		}
	}
	return Expand(doctors, p.now()), nil
}

func (p *Provider) fetch(ctx context.Context) ([]Doctor, error) {
	u, err := url.Parse(p.endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid endpoint: %w", err)
	}
	u.Path = path.Join(u.Path, "api/v1/roster")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("roster fetch failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20)) // 1 MB
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("roster service returned %d: %s", resp.StatusCode, string(body))
	}

	var rr rosterResponse
	if err := json.Unmarshal(body, &rr); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return rr.Doctors, nil
}

// Expand converts doctor definitions into triage roster entries, resolving
// each weekly schedule to the earliest slot at or after now. Doctors whose
// schedule yields no slot within the search window are omitted, as are
// doctors with no recognized subspecialty.
func Expand(doctors []Doctor, now time.Time) []triage.Physician {
	out := make([]triage.Physician, 0, len(doctors))
	for _, d := range doctors {
		specs := make([]triage.Specialty, 0, len(d.Subspecialties))
		for _, s := range d.Subspecialties {
			spec := triage.Specialty(s)
			if spec.Valid() {
				specs = append(specs, spec)
			}
		}
		if len(specs) == 0 {
			continue
		}

		next, ok := nextSlot(d.Schedule, now)
		if !ok {
			continue
		}

		out = append(out, triage.Physician{
			Name:          d.Name,
			Specialties:   specs,
			Insurances:    append([]string(nil), d.Insurances...),
			NextAvailable: next,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].NextAvailable.Equal(out[j].NextAvailable) {
			return out[i].NextAvailable.Before(out[j].NextAvailable)
		}
		return out[i].Name < out[j].Name
	})
	return out
}

var weekdayNames = map[time.Weekday]string{
	time.Monday:    "Mon",
	time.Tuesday:   "Tue",
	time.Wednesday: "Wed",
	time.Thursday:  "Thu",
	time.Friday:    "Fri",
	time.Saturday:  "Sat",
	time.Sunday:    "Sun",
}

// nextSlot walks the next searchDays days and returns the first schedule
// slot at or after now. Malformed slot times are skipped.
func nextSlot(schedule map[string][]string, now time.Time) (time.Time, bool) {
	var best time.Time
	for i := range searchDays {
		day := now.AddDate(0, 0, i)
		times, ok := schedule[weekdayNames[day.Weekday()]]
		if !ok {
			continue
		}
		for _, t := range times {
			parsed, err := time.Parse("15:04", t)
			if err != nil {
				continue
			}
			slot := time.Date(day.Year(), day.Month(), day.Day(), parsed.Hour(), parsed.Minute(), 0, 0, day.Location())
			if slot.Before(now) {
				continue
			}
			if best.IsZero() || slot.Before(best) {
				best = slot
			}
		}
		if !best.IsZero() {
			return best, true
		}
	}
	return time.Time{}, false
}

// DefaultDoctors returns the built-in roster of eleven physicians used when
// no practice management service is configured.
func DefaultDoctors() []Doctor {
	return []Doctor{
		{
			Name:           "Dr. Alice Smith",
			Subspecialties: []string{"general_obgyn", "maternal_fetal"},
			Insurances:     []string{"aetna", "uhc", "bcbs"},
			Schedule: map[string][]string{
				"Mon": {"09:00", "10:00", "14:00", "15:00"},
				"Tue": {"09:00", "10:00", "11:00"},
				"Thu": {"09:00", "14:00", "15:00", "16:00"},
			},
		},
		{
			Name:           "Dr. Brian Lee",
			Subspecialties: []string{"general_obgyn", "minimally_invasive"},
			Insurances:     []string{"aetna", "cigna"},
			Schedule: map[string][]string{
				"Tue": {"10:00", "11:00", "14:00"},
				"Wed": {"09:00", "10:00", "14:00", "15:00"},
				"Fri": {"09:00", "10:00", "11:00"},
			},
		},
		{
			Name:           "Dr. Carol Chen",
			Subspecialties: []string{"general_obgyn", "urogynecology"},
			Insurances:     []string{"aetna", "uhc", "medicare"},
			Schedule: map[string][]string{
				"Mon": {"10:00", "11:00", "15:00"},
				"Wed": {"09:00", "14:00", "15:00", "16:00"},
				"Fri": {"09:00", "10:00", "14:00"},
			},
		},
		{
			Name:           "Dr. David Patel",
			Subspecialties: []string{"maternal_fetal"},
			Insurances:     []string{"aetna", "uhc", "bcbs", "cigna"},
			Schedule: map[string][]string{
				"Mon": {"09:00", "10:00", "11:00", "14:00"},
				"Tue": {"09:00", "14:00", "15:00"},
			},
		},
		{
			Name:           "Dr. Emily Johnson",
			Subspecialties: []string{"gynecologic_oncology"},
			Insurances:     []string{"aetna", "bcbs", "medicare"},
			Schedule: map[string][]string{
				"Wed": {"09:00", "10:00", "14:00"},
				"Thu": {"09:00", "10:00", "11:00", "14:00"},
			},
		},
		{
			Name:           "Dr. Frank Garcia",
			Subspecialties: []string{"reproductive_endo"},
			Insurances:     []string{"uhc", "cigna"},
			Schedule: map[string][]string{
				"Wed": {"10:00", "11:00", "15:00", "16:00"},
			},
		},
		{
			Name:           "Dr. Grace Wong",
			Subspecialties: []string{"general_obgyn", "minimally_invasive"},
			Insurances:     []string{"aetna", "bcbs"},
			Schedule: map[string][]string{
				"Thu": {"10:00", "11:00", "14:00", "15:00"},
			},
		},
		{
			Name:           "Dr. Hannah Kim",
			Subspecialties: []string{"general_obgyn", "maternal_fetal"},
			Insurances:     []string{"aetna", "uhc", "bcbs", "medicare"},
			Schedule: map[string][]string{
				"Sat": {"09:00", "10:00", "11:00"},
			},
		},
		{
			Name:           "Dr. Kevin Miller",
			Subspecialties: []string{"general_obgyn"},
			Insurances:     []string{"uhc", "cigna", "bcbs"},
			Schedule: map[string][]string{
				"Mon": {"14:00", "15:00", "16:00"},
				"Fri": {"09:00", "10:00", "14:00"},
			},
		},
		{
			Name:           "Dr. Linda Lopez",
			Subspecialties: []string{"urogynecology"},
			Insurances:     []string{"aetna", "medicare"},
			Schedule: map[string][]string{
				"Sat": {"09:00", "10:00"},
			},
		},
		{
			Name:           "Dr. Michael Zhang",
			Subspecialties: []string{"general_obgyn", "reproductive_endo"},
			Insurances:     []string{"aetna", "uhc", "cigna"},
			Schedule: map[string][]string{
				"Tue": {"14:00", "15:00", "16:00"},
			},
		},
	}
}
