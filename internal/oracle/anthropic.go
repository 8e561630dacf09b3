package oracle

import (
	"context"

	"github.com/sells-group/permit-cli/pkg/anthropic"
)

// AnthropicClient generates replies with Claude.
type AnthropicClient struct {
	client    anthropic.Client
	model     string
	maxTokens int64
}

// NewAnthropicClient wraps an anthropic.Client.
func NewAnthropicClient(client anthropic.Client, model string, maxTokens int64) *AnthropicClient {
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	return &AnthropicClient{client: client, model: model, maxTokens: maxTokens}
}

// Generate sends prompt with the fixed system instructions for format.
// Temperature is pinned to zero so identical prompts give stable replies.
func (a *AnthropicClient) Generate(ctx context.Context, prompt string, format Format) (string, error) {
	req := anthropic.TextRequest(a.model, a.maxTokens, systemPrompt(format), prompt)
	zero := 0.0
	req.Temperature = &zero

	resp, err := a.client.CreateMessage(ctx, req)
	if err != nil {
		return "", Unavailable("anthropic", err)
	}
	resp.Usage.LogCost(a.model, format.String())
	return resp.Text(), nil
}
