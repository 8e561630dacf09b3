package anthropic

// BuildCachedSystemBlocks returns a single system block with a 1-hour cache
// breakpoint. The permit oracle's instructions are identical across calls in
// a run, so every call after the first reads them from the prompt cache.
func BuildCachedSystemBlocks(text string) []SystemBlock {
	return []SystemBlock{
		{
			Text:         text,
			CacheControl: &CacheControl{TTL: "1h"},
		},
	}
}

// TextRequest builds a one-turn request with a cached system prompt.
func TextRequest(model string, maxTokens int64, system, prompt string) MessageRequest {
	req := MessageRequest{
		Model:     model,
		MaxTokens: maxTokens,
		Messages:  []Message{{Role: "user", Content: prompt}},
	}
	if system != "" {
		req.System = BuildCachedSystemBlocks(system)
	}
	return req
}
