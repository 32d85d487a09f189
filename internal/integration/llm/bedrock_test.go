package llm

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/futig/zoning-qa/internal/entity"
	pkgRetry "github.com/futig/zoning-qa/internal/pkg/retry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeInvoker struct {
	input *bedrockruntime.InvokeModelInput
	body  []byte
	err   error
}

func (f *fakeInvoker) InvokeModel(_ context.Context, in *bedrockruntime.InvokeModelInput, _ ...func(*bedrockruntime.Options)) (
	*bedrockruntime.InvokeModelOutput, error,
) {
	f.input = in
	if f.err != nil {
		return nil, f.err
	}
	return &bedrockruntime.InvokeModelOutput{Body: f.body}, nil
}

func TestBedrockConnector_Generate(t *testing.T) {
	inv := &fakeInvoker{body: []byte(`{
		"content": [{"type": "text", "text": "Three stories [1]."}],
		"stop_reason": "end_turn",
		"usage": {"input_tokens": 30, "output_tokens": 4}
	}`)}
	c := NewBedrockConnector(inv, zap.NewNop())

	res, err := c.Generate(context.Background(), entity.LLMCompletionRequest{
		Model:        "anthropic.claude-3-haiku-20240307-v1:0",
		SystemPrompt: "system rules",
		UserPrompt:   "question",
	})
	require.NoError(t, err)
	require.True(t, res.OK)
	assert.Equal(t, "Three stories [1].", res.Value.Text)
	assert.Equal(t, 34, *res.Value.TotalTokens)

	var sent claudeMessageRequest
	require.NoError(t, json.Unmarshal(inv.input.Body, &sent))
	assert.Equal(t, anthropicVersion, sent.AnthropicVersion)
	assert.Equal(t, defaultMaxTokens, sent.MaxTokens)
	assert.Equal(t, "system rules", sent.System)
	require.Len(t, sent.Messages, 1)
	assert.Equal(t, "question", sent.Messages[0].Content)
}

func TestBedrockConnector_Generate_Errors(t *testing.T) {
	c := NewBedrockConnector(&fakeInvoker{err: &types.ModelTimeoutException{}}, zap.NewNop())
	_, err := c.Generate(context.Background(), entity.LLMCompletionRequest{Model: "m"})
	assert.True(t, pkgRetry.IsTransient(err))

	c = NewBedrockConnector(&fakeInvoker{err: &types.ValidationException{}}, zap.NewNop())
	_, err = c.Generate(context.Background(), entity.LLMCompletionRequest{Model: "m"})
	assert.False(t, pkgRetry.IsTransient(err))
}

func TestParseClaudeMessage(t *testing.T) {
	assert.Equal(t, entity.CompletionErrorMalformed, parseClaudeMessage([]byte(`{`)).ErrorKind)
	assert.Equal(t, entity.CompletionErrorNoChoices, parseClaudeMessage([]byte(`{"content": []}`)).ErrorKind)
	assert.Equal(t, entity.CompletionErrorEmptyContent, parseClaudeMessage([]byte(`{"content": [{"type": "tool_use"}]}`)).ErrorKind)
	assert.Equal(t, entity.CompletionErrorRefused, parseClaudeMessage([]byte(`{"content": [], "stop_reason": "refusal"}`)).ErrorKind)
}
