package llm

import (
	"context"
	"strings"

	"github.com/futig/zoning-qa/internal/entity"
	"github.com/grpc-ecosystem/go-grpc-middleware/logging/zap/ctxzap"
	"go.uber.org/zap"
)

// MockConnector answers extractively by quoting the first excerpt of the
// prompt context
type MockConnector struct {
	logger *zap.Logger
}

func NewMockConnector(logger *zap.Logger) *MockConnector {
	return &MockConnector{
		logger: logger,
	}
}

func (m *MockConnector) Generate(ctx context.Context, req entity.LLMCompletionRequest) (entity.CompletionResult, error) {
	ctxzap.Info(ctx, "[MOCK] generating answer via LLM")

	excerpt := firstExcerpt(req.UserPrompt)
	answer := "The provided documents do not contain enough information to answer this question."
	if excerpt != "" {
		answer = "According to the zoning documents [1]: " + excerpt
	}

	prompt := len(strings.Fields(req.SystemPrompt)) + len(strings.Fields(req.UserPrompt))
	completion := len(strings.Fields(answer))
	total := prompt + completion

	ctxzap.Info(ctx, "[MOCK] answer generated", zap.Int("answer_length", len(answer)))
	return entity.CompletionOK(entity.LLMCompletion{
		Text:             answer,
		PromptTokens:     &prompt,
		CompletionTokens: &completion,
		TotalTokens:      &total,
	}), nil
}

// firstExcerpt returns the body lines following the "[1]" header
func firstExcerpt(prompt string) string {
	lines := strings.Split(prompt, "\n")
	for i, line := range lines {
		if !strings.HasPrefix(line, "[1]") {
			continue
		}
		var body []string
		for _, l := range lines[i+1:] {
			if strings.TrimSpace(l) == "" {
				break
			}
			body = append(body, strings.TrimSpace(l))
		}
		return strings.Join(body, " ")
	}
	return ""
}
