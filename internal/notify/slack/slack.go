// Package slack sends completed triage reports to Slack via incoming
// webhooks, for the care coordination channel.
package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/linnemanlabs/doula/internal/triage"
)

const (
	maxNarrativeLen = 2000
	httpTimeout     = 10 * time.Second
)

// Notifier posts triage reports to a Slack webhook.
type Notifier struct {
	webhookURL string
	client     *http.Client
}

// New creates a new Slack notifier. If webhookURL is empty, Send is a no-op.
func New(webhookURL string) *Notifier {
	return &Notifier{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: httpTimeout},
	}
}

// Send posts a completed triage report to the configured Slack webhook.
// If no webhook URL is configured, it returns nil immediately.
func (n *Notifier) Send(ctx context.Context, report *triage.Report) error {
	if n.webhookURL == "" {
		return nil
	}

	msg := buildMessage(report)

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("slack: marshal message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("slack: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req) //nolint:gosec // G704: webhookURL is from trusted config, not user input
	if err != nil {
		return fmt.Errorf("slack: post webhook: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("slack: webhook returned %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}

func buildMessage(r *triage.Report) map[string]any {
	blocks := []map[string]any{
		headerBlock(r),
		{"type": "divider"},
		fieldsBlock(r),
		{"type": "divider"},
		narrativeBlock(r),
	}
	if a := assignmentBlock(r); a != nil {
		blocks = append(blocks, map[string]any{"type": "divider"}, a)
	}
	blocks = append(blocks, map[string]any{"type": "divider"}, contextBlock(r))

	return map[string]any{"blocks": blocks}
}

func headerBlock(r *triage.Report) map[string]any {
	title := "Intake Complete"
	if r.ReviewFlag {
		title = "Intake Complete (needs review)"
	}
	text := fmt.Sprintf("%s %s: %s", urgencyEmoji(r.Classification.Urgency), title, r.Patient.Name)

	return map[string]any{
		"type": "header",
		"text": map[string]any{
			"type": "plain_text",
			"text": text,
		},
	}
}

func fieldsBlock(r *triage.Report) map[string]any {
	fields := []map[string]any{
		{
			"type": "mrkdwn",
			"text": fmt.Sprintf("*Urgency:* %s", r.Classification.Urgency),
		},
		{
			"type": "mrkdwn",
			"text": fmt.Sprintf("*Subspecialty:* %s", r.Classification.Specialty.Display()),
		},
		{
			"type": "mrkdwn",
			"text": fmt.Sprintf("*Confidence:* %.2f", r.Classification.Confidence),
		},
		{
			"type": "mrkdwn",
			"text": fmt.Sprintf("*Source:* %s", r.Classification.Source),
		},
		{
			"type": "mrkdwn",
			"text": fmt.Sprintf("*Insurance:* %s", r.Patient.Insurance),
		},
		{
			"type": "mrkdwn",
			"text": fmt.Sprintf("*Citations:* %d", len(r.Citations)),
		},
	}

	return map[string]any{
		"type":   "section",
		"fields": fields,
	}
}

func narrativeBlock(r *triage.Report) map[string]any {
	text := truncate(r.Narrative, maxNarrativeLen)
	if text == "" {
		text = "_No narrative recorded._"
	}
	if len(r.Classification.RedFlags) > 0 {
		text += "\n\n*Red flags:* " + strings.Join(r.Classification.RedFlags, "; ")
	}

	return map[string]any{
		"type": "section",
		"text": map[string]any{
			"type": "mrkdwn",
			"text": fmt.Sprintf("*Narrative*\n\n%s", text),
		},
	}
}

func assignmentBlock(r *triage.Report) map[string]any {
	a := r.Assignment
	if a == nil {
		return nil
	}

	var text string
	switch a.Outcome {
	case triage.AssignNone:
		text = "_No physician available within the scheduling window._"
	default:
		text = fmt.Sprintf("*Appointment:* %s (%s) on %s",
			a.PhysicianName, a.Specialty, a.ScheduledAt.Format("Mon Jan 2 at 15:04"))
		if a.Outcome == triage.AssignNoInsuranceMatch {
			text += "\n_Out of the patient's insurance network._"
		}
		if a.Outcome == triage.AssignGeneralFallback {
			text += "\n_General OB/GYN fallback; subspecialist unavailable._"
		}
	}

	return map[string]any{
		"type": "section",
		"text": map[string]any{
			"type": "mrkdwn",
			"text": text,
		},
	}
}

func contextBlock(r *triage.Report) map[string]any {
	elements := []map[string]any{
		{
			"type": "mrkdwn",
			"text": fmt.Sprintf("doula • session %s • %s", r.SessionID, r.GeneratedAt.UTC().Format("2006-01-02 15:04 UTC")),
		},
	}

	return map[string]any{
		"type":     "context",
		"elements": elements,
	}
}

func urgencyEmoji(u triage.Urgency) string {
	switch u {
	case triage.UrgencyEmergency:
		return "\U0001f534" // red circle
	case triage.UrgencyUrgent:
		return "\U0001f7e1" // yellow circle
	default:
		return "\U0001f7e2" // green circle
	}
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit-3] + "..."
}
