package triage

import "context"

// Provider is the interface for any LLM backend.
type Provider interface {
	Generate(ctx context.Context, req *GenRequest) (*GenResponse, error)
}

// GenRequest is a single-turn generation request.
type GenRequest struct {
	MaxTokens int
	System    string
	Prompt    string
}

// GenResponse is the provider's answer text plus accounting.
type GenResponse struct {
	Text       string
	StopReason StopReason
	Usage      Usage
}

// StopReason indicates why the provider stopped generating.
type StopReason string

const (
	StopEnd       StopReason = "end_turn"
	StopMaxTokens StopReason = "max_tokens"
)

type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}
