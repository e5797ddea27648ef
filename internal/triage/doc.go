// Package triage provides the business boundary for Doula's patient intake
// system. It defines the Service (session lifecycle, per-session
// serialization, idle reaping), Engine (dialogue state machine and
// orchestration), Classifier (rule layer plus validated LLM layer), Store
// interface (persistence), and domain models.
package triage
