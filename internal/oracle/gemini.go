package oracle

import (
	"context"
	"errors"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/sells-group/permit-cli/internal/resilience"
)

// contentGenerator is the subset of genai.Models used here.
type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// GeminiClient generates replies with Google Gemini.
type GeminiClient struct {
	models contentGenerator
	model  string
}

// NewGeminiClient creates a Gemini API client.
func NewGeminiClient(ctx context.Context, apiKey, model string) (*GeminiClient, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, eris.Wrap(err, "oracle: create gemini client")
	}
	if model == "" {
		model = "gemini-2.5-flash"
	}
	return &GeminiClient{models: client.Models, model: model}, nil
}

// Generate sends prompt to Gemini. Structured requests set the JSON response
// MIME type so the model emits bare JSON.
func (g *GeminiClient) Generate(ctx context.Context, prompt string, format Format) (string, error) {
	cfg := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(systemPrompt(format), genai.RoleUser),
		Temperature:       genai.Ptr[float32](0),
	}
	if format == FormatStructured {
		cfg.ResponseMIMEType = "application/json"
	}

	resp, err := g.models.GenerateContent(ctx, g.model, genai.Text(prompt), cfg)
	if err != nil {
		return "", Unavailable("gemini", classifyGemini(err))
	}
	if resp.UsageMetadata != nil {
		zap.L().Info("gemini: usage",
			zap.String("model", g.model),
			zap.String("step", format.String()),
			zap.Int32("input_tokens", resp.UsageMetadata.PromptTokenCount),
			zap.Int32("output_tokens", resp.UsageMetadata.CandidatesTokenCount),
		)
	}
	return resp.Text(), nil
}

func classifyGemini(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) && resilience.TransientStatus(apiErr.Code) {
		return resilience.NewTransientError(err, apiErr.Code)
	}
	return err
}
