package slack

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/linnemanlabs/doula/internal/triage"
)

func sampleReport() *triage.Report {
	return &triage.Report{
		SessionID: "01JN123",
		Patient: triage.PatientInfo{
			Name:      "Jane Doe",
			Insurance: "Aetna",
		},
		Narrative: "Sharp pelvic pain for two days.",
		Classification: triage.Classification{
			Urgency:    triage.UrgencyUrgent,
			Specialty:  triage.SpecialtyMaternalFetal,
			Confidence: 0.82,
			Source:     triage.SourceLLM,
		},
		Assignment: &triage.Assignment{
			PhysicianName: "Dr. David Patel",
			Specialty:     "Maternal-Fetal Medicine",
			ScheduledAt:   time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC),
			Outcome:       triage.AssignMatched,
		},
		Citations:   []triage.Passage{{Page: 212, Excerpt: "x", Score: 0.9}},
		GeneratedAt: time.Date(2026, 2, 26, 14, 23, 0, 0, time.UTC),
	}
}

func TestSend_PostsToWebhook(t *testing.T) {
	t.Parallel()

	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("content-type = %q, want application/json", r.Header.Get("Content-Type"))
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := New(srv.URL)
	if err := n.Send(context.Background(), sampleReport()); err != nil {
		t.Fatalf("Send: %v", err)
	}

	blocks, ok := got["blocks"].([]any)
	if !ok {
		t.Fatal("expected blocks array in payload")
	}

	// header, divider, fields, divider, narrative, divider, assignment,
	// divider, context = 9 blocks
	if len(blocks) != 9 {
		t.Errorf("blocks count = %d, want 9", len(blocks))
	}

	header := blocks[0].(map[string]any)
	headerText := header["text"].(map[string]any)["text"].(string)
	if !strings.Contains(headerText, "Jane Doe") {
		t.Errorf("header text = %q, want to contain Jane Doe", headerText)
	}
	if !strings.Contains(headerText, "\U0001f7e1") {
		t.Errorf("header should contain yellow circle for urgent")
	}
}

func TestSend_NoOpWithoutURL(t *testing.T) {
	t.Parallel()

	n := New("")
	if err := n.Send(context.Background(), &triage.Report{}); err != nil {
		t.Fatalf("Send with empty URL should be no-op, got: %v", err)
	}
}

func TestSend_OmitsAssignmentBlockWhenAbsent(t *testing.T) {
	t.Parallel()

	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	report := sampleReport()
	report.Assignment = nil
	report.Classification.Urgency = triage.UrgencyEmergency
	report.Classification.RedFlags = []string{"Severe hemorrhage"}

	n := New(srv.URL)
	if err := n.Send(context.Background(), report); err != nil {
		t.Fatalf("Send: %v", err)
	}

	blocks := got["blocks"].([]any)
	// header, divider, fields, divider, narrative, divider, context = 7 blocks
	if len(blocks) != 7 {
		t.Errorf("blocks count = %d, want 7", len(blocks))
	}

	narrative := blocks[4].(map[string]any)
	text := narrative["text"].(map[string]any)["text"].(string)
	if !strings.Contains(text, "Severe hemorrhage") {
		t.Errorf("narrative = %q, want red flags listed", text)
	}
}

func TestSend_TruncatesLongNarrative(t *testing.T) {
	t.Parallel()

	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	report := sampleReport()
	report.Narrative = strings.Repeat("x", 4000)

	n := New(srv.URL)
	if err := n.Send(context.Background(), report); err != nil {
		t.Fatalf("Send: %v", err)
	}

	blocks := got["blocks"].([]any)
	narrative := blocks[4].(map[string]any)
	text := narrative["text"].(map[string]any)["text"].(string)

	if len(text) > maxNarrativeLen+len("*Narrative*\n\n") {
		t.Errorf("narrative text length = %d, expected <= %d", len(text), maxNarrativeLen+len("*Narrative*\n\n"))
	}
	if !strings.HasSuffix(text, "...") {
		t.Error("expected truncated narrative to end with ...")
	}
}

func TestUrgencyEmoji(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		urgency triage.Urgency
		want    string
	}{
		{"emergency", triage.UrgencyEmergency, "\U0001f534"},
		{"urgent", triage.UrgencyUrgent, "\U0001f7e1"},
		{"routine", triage.UrgencyRoutine, "\U0001f7e2"},
		{"empty", triage.Urgency(""), "\U0001f7e2"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := urgencyEmoji(tt.urgency); got != tt.want {
				t.Errorf("urgencyEmoji(%q) = %q, want %q", tt.urgency, got, tt.want)
			}
		})
	}
}

func FuzzSlackBuild(f *testing.F) {
	f.Add("Jane Doe", "Sharp pelvic pain.", "Aetna")
	f.Add("", "", "")
	f.Add("<@U123> mention", "*bold* _italic_ ~strike~", "uhc")
	f.Add("name\x00\x01\x02", "narrative\ttab", "ins\nline")
	f.Add(strings.Repeat("A", 5000), strings.Repeat("x", 10000), "medicare")

	f.Fuzz(func(t *testing.T, name, narrative, insurance string) {
		report := &triage.Report{
			SessionID: "fuzz-id",
			Patient:   triage.PatientInfo{Name: name, Insurance: insurance},
			Narrative: narrative,
			Classification: triage.Classification{
				Urgency:   triage.UrgencyRoutine,
				Specialty: triage.SpecialtyGeneralOBGYN,
			},
			GeneratedAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		}

		// Must not panic
		msg := buildMessage(report)

		// Must produce valid JSON
		data, err := json.Marshal(msg)
		if err != nil {
			t.Fatalf("buildMessage produced non-marshalable output: %v", err)
		}

		var decoded map[string]any
		if err := json.Unmarshal(data, &decoded); err != nil {
			t.Fatalf("buildMessage JSON does not round-trip: %v", err)
		}

		blocks, ok := decoded["blocks"].([]any)
		if !ok {
			t.Fatal("expected blocks array")
		}
		if len(blocks) != 7 {
			t.Fatalf("blocks count = %d, want 7", len(blocks))
		}
	})
}

func TestSend_NonOKStatus(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("internal error"))
	}))
	defer srv.Close()

	n := New(srv.URL)
	err := n.Send(context.Background(), sampleReport())
	if err == nil {
		t.Fatal("expected error on non-OK status")
	}
	if !strings.Contains(err.Error(), "500") {
		t.Errorf("error = %q, want to contain status code 500", err.Error())
	}
}
