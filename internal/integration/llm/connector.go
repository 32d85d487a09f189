package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/futig/zoning-qa/internal/config"
	"github.com/futig/zoning-qa/internal/entity"
	"github.com/futig/zoning-qa/internal/integration/common"
	pkghttp "github.com/futig/zoning-qa/pkg/http"
	"github.com/grpc-ecosystem/go-grpc-middleware/logging/zap/ctxzap"
	"go.uber.org/zap"
)

// Connector calls an OpenAI-compatible chat completions endpoint
type Connector struct {
	config    config.LLMConfig
	connector *pkghttp.Connector
	logger    *zap.Logger
}

func NewConnector(
	cfg config.LLMConfig,
	logger *zap.Logger,
) (*Connector, error) {
	conn, err := common.NewBaseConnector(cfg.HTTPClientConfig, logger)
	if err != nil {
		return nil, err
	}

	return &Connector{
		connector: conn,
		config:    cfg,
		logger:    logger,
	}, nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message *struct {
			Content *string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     *int `json:"prompt_tokens"`
		CompletionTokens *int `json:"completion_tokens"`
		TotalTokens      *int `json:"total_tokens"`
	} `json:"usage"`
}

// Generate requests one completion. Transport failures are returned as
// errors, anything wrong with the payload as a failed CompletionResult.
func (c *Connector) Generate(ctx context.Context, req entity.LLMCompletionRequest) (entity.CompletionResult, error) {
	ctxzap.Info(ctx, "generating answer via LLM service", zap.String("model", req.Model))

	messages := make([]chatMessage, 0, 2)
	if req.SystemPrompt != "" {
		messages = append(messages, chatMessage{Role: "system", Content: req.SystemPrompt})
	}
	messages = append(messages, chatMessage{Role: "user", Content: req.UserPrompt})

	var raw json.RawMessage
	err := c.connector.DoRequest(ctx, http.MethodPost, c.config.Endpoint, &chatRequest{
		Model:       req.Model,
		Messages:    messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}, &raw)
	if err != nil {
		if errors.Is(err, pkghttp.ErrDecodeResponse) {
			return entity.CompletionFailed(entity.CompletionErrorMalformed), nil
		}
		return entity.CompletionResult{}, err
	}

	result := parseChatCompletion(raw)
	if result.OK {
		ctxzap.Info(ctx, "answer generated successfully", zap.Int("answer_length", len(result.Value.Text)))
	} else {
		ctxzap.Warn(ctx, "LLM returned an unusable completion", zap.String("error_kind", string(result.ErrorKind)))
	}

	return result, nil
}

func parseChatCompletion(raw []byte) entity.CompletionResult {
	var resp chatResponse
	if len(raw) == 0 || json.Unmarshal(raw, &resp) != nil {
		return entity.CompletionFailed(entity.CompletionErrorMalformed)
	}

	if len(resp.Choices) == 0 {
		return entity.CompletionFailed(entity.CompletionErrorNoChoices)
	}

	choice := resp.Choices[0]
	if choice.FinishReason == "content_filter" {
		return entity.CompletionFailed(entity.CompletionErrorRefused)
	}
	if choice.Message == nil || choice.Message.Content == nil || *choice.Message.Content == "" {
		return entity.CompletionFailed(entity.CompletionErrorEmptyContent)
	}

	completion := entity.LLMCompletion{Text: *choice.Message.Content}
	if resp.Usage != nil {
		completion.PromptTokens = resp.Usage.PromptTokens
		completion.CompletionTokens = resp.Usage.CompletionTokens
		completion.TotalTokens = resp.Usage.TotalTokens
	}

	return entity.CompletionOK(completion)
}
