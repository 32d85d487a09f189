package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/futig/zoning-qa/internal/entity"
	"github.com/futig/zoning-qa/internal/integration/common"
	"github.com/grpc-ecosystem/go-grpc-middleware/logging/zap/ctxzap"
	"go.uber.org/zap"
)

const (
	anthropicVersion = "bedrock-2023-05-31"
	defaultMaxTokens = 1024
)

// BedrockConnector generates answers with Claude models on Bedrock
type BedrockConnector struct {
	client common.InvokeModelAPI
	logger *zap.Logger
}

func NewBedrockConnector(client common.InvokeModelAPI, logger *zap.Logger) *BedrockConnector {
	return &BedrockConnector{
		client: client,
		logger: logger,
	}
}

type claudeMessageRequest struct {
	AnthropicVersion string          `json:"anthropic_version"`
	MaxTokens        int             `json:"max_tokens"`
	Temperature      float64         `json:"temperature"`
	System           string          `json:"system,omitempty"`
	Messages         []claudeMessage `json:"messages"`
}

type claudeMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type claudeMessageResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
	Usage      *struct {
		InputTokens  *int `json:"input_tokens"`
		OutputTokens *int `json:"output_tokens"`
	} `json:"usage"`
}

func (c *BedrockConnector) Generate(ctx context.Context, req entity.LLMCompletionRequest) (entity.CompletionResult, error) {
	ctxzap.Info(ctx, "generating answer via bedrock", zap.String("model", req.Model))

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	body, err := json.Marshal(claudeMessageRequest{
		AnthropicVersion: anthropicVersion,
		MaxTokens:        maxTokens,
		Temperature:      req.Temperature,
		System:           req.SystemPrompt,
		Messages:         []claudeMessage{{Role: "user", Content: req.UserPrompt}},
	})
	if err != nil {
		return entity.CompletionResult{}, fmt.Errorf("marshal claude request: %w", err)
	}

	out, err := c.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(req.Model),
		Body:        body,
		Accept:      aws.String("application/json"),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return entity.CompletionResult{}, common.ClassifyBedrockError(err)
	}

	return parseClaudeMessage(out.Body), nil
}

func parseClaudeMessage(raw []byte) entity.CompletionResult {
	var resp claudeMessageResponse
	if len(raw) == 0 || json.Unmarshal(raw, &resp) != nil {
		return entity.CompletionFailed(entity.CompletionErrorMalformed)
	}

	if resp.StopReason == "refusal" {
		return entity.CompletionFailed(entity.CompletionErrorRefused)
	}
	if len(resp.Content) == 0 {
		return entity.CompletionFailed(entity.CompletionErrorNoChoices)
	}

	var sb strings.Builder
	for _, part := range resp.Content {
		if part.Type == "text" {
			sb.WriteString(part.Text)
		}
	}
	if sb.Len() == 0 {
		return entity.CompletionFailed(entity.CompletionErrorEmptyContent)
	}

	completion := entity.LLMCompletion{Text: sb.String()}
	if resp.Usage != nil {
		completion.PromptTokens = resp.Usage.InputTokens
		completion.CompletionTokens = resp.Usage.OutputTokens
		if resp.Usage.InputTokens != nil && resp.Usage.OutputTokens != nil {
			total := *resp.Usage.InputTokens + *resp.Usage.OutputTokens
			completion.TotalTokens = &total
		}
	}

	return entity.CompletionOK(completion)
}
