// Package oracle is the boundary to the external generative text service.
// Everything it returns is untrusted text: callers parse structured replies
// through ExtractObject/ExtractArray and treat every failure as recoverable.
package oracle

import (
	"context"
)

// Format is the shape of reply a prompt asks for.
type Format int

const (
	// FormatText asks for a bare value with no commentary.
	FormatText Format = iota
	// FormatStructured asks for a JSON object or array.
	FormatStructured
)

func (f Format) String() string {
	switch f {
	case FormatText:
		return "text"
	case FormatStructured:
		return "structured"
	default:
		return "unknown"
	}
}

// Client generates text for a prompt. Implementations return errors that
// match ErrUnavailable when the service cannot be reached in time.
type Client interface {
	Generate(ctx context.Context, prompt string, format Format) (string, error)
}

// ClientFunc adapts a function to Client.
type ClientFunc func(ctx context.Context, prompt string, format Format) (string, error)

// Generate calls f.
func (f ClientFunc) Generate(ctx context.Context, prompt string, format Format) (string, error) {
	return f(ctx, prompt, format)
}

const systemStructured = `You are a building permit analyst for US jurisdictions.
Reply with a single JSON value and nothing else: no prose, no markdown fences.`

const systemText = `You are a building permit analyst for US jurisdictions.
Reply with exactly the requested value on one line: no quotes, no explanation, no markdown.`

// systemPrompt returns the fixed instructions for a format. They are the
// same for every call so providers can cache them.
func systemPrompt(f Format) string {
	if f == FormatStructured {
		return systemStructured
	}
	return systemText
}
