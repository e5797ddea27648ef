// Package claude implements triage.Provider on the Anthropic Messages API.
package claude

import (
	"context"
	"fmt"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/linnemanlabs/doula/internal/triage"
)

const requestTimeout = 120 * time.Second

// Client implements the Provider interface for the Claude API.
type Client struct {
	client anthropic.Client
	model  string
}

// New creates a new Claude client with the given API key and model name.
func New(apiKey, model string) *Client {
	return &Client{
		client: anthropic.NewClient(
			option.WithAPIKey(apiKey),
			option.WithRequestTimeout(requestTimeout),
		),
		model:  model,
	}
}

// Generate sends a single-turn request and returns the text answer.
func (c *Client) Generate(ctx context.Context, req *triage.GenRequest) (*triage.GenResponse, error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: int64(req.MaxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt)),
		},
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}

	msg, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("claude api: %w", err)
	}
	return fromSDKResponse(msg), nil
}

// fromSDKResponse flattens the SDK message into the provider response,
// concatenating all text blocks.
func fromSDKResponse(msg *anthropic.Message) *triage.GenResponse {
	var text string
	for _, block := range msg.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}

	stop := triage.StopReason(msg.StopReason)
	switch msg.StopReason {
	case anthropic.StopReasonEndTurn:
		stop = triage.StopEnd
	case anthropic.StopReasonMaxTokens:
		stop = triage.StopMaxTokens
	}

	return &triage.GenResponse{
		Text:       text,
		StopReason: stop,
		Usage: triage.Usage{
			InputTokens:  int(msg.Usage.InputTokens),
			OutputTokens: int(msg.Usage.OutputTokens),
		},
	}
}
