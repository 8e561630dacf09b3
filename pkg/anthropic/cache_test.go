package anthropic

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildCachedSystemBlocks(t *testing.T) {
	blocks := BuildCachedSystemBlocks("You determine building permits.")

	require.Len(t, blocks, 1)
	assert.Equal(t, "You determine building permits.", blocks[0].Text)
	require.NotNil(t, blocks[0].CacheControl)
	assert.Equal(t, "1h", blocks[0].CacheControl.TTL)
}

func TestTextRequest(t *testing.T) {
	req := TextRequest("claude-sonnet-4-5-20250929", 1024, "sys", "prompt")
	assert.Equal(t, "claude-sonnet-4-5-20250929", req.Model)
	assert.Equal(t, int64(1024), req.MaxTokens)
	require.Len(t, req.Messages, 1)
	assert.Equal(t, "user", req.Messages[0].Role)
	assert.Equal(t, "prompt", req.Messages[0].Content)
	require.Len(t, req.System, 1)
	assert.Equal(t, "1h", req.System[0].CacheControl.TTL)
}

func TestTextRequest_NoSystem(t *testing.T) {
	req := TextRequest("m", 10, "", "prompt")
	assert.Empty(t, req.System)
}
