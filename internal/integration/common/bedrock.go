package common

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/futig/zoning-qa/internal/entity"
)

// InvokeModelAPI is the part of the Bedrock runtime client the connectors use
type InvokeModelAPI interface {
	InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error)
}

// NewBedrockClient loads the default AWS credential chain for region.
// Missing credentials fail here, before any model is invoked.
func NewBedrockClient(ctx context.Context, region string) (*bedrockruntime.Client, error) {
	if region == "" {
		return nil, fmt.Errorf("%w: bedrock region is not set", entity.ErrConfiguration)
	}

	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("%w: load aws config: %v", entity.ErrConfiguration, err)
	}

	if _, err := cfg.Credentials.Retrieve(ctx); err != nil {
		return nil, fmt.Errorf("%w: aws credentials: %v", entity.ErrMissingAPIKey, err)
	}

	return bedrockruntime.NewFromConfig(cfg), nil
}

// TransientError marks a provider failure worth retrying
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string   { return e.Err.Error() }
func (e *TransientError) Unwrap() error   { return e.Err }
func (e *TransientError) Temporary() bool { return true }

// ClassifyBedrockError wraps throttling and server-side failures so that
// retry policies pick them up
func ClassifyBedrockError(err error) error {
	if err == nil {
		return nil
	}

	var (
		throttling  *types.ThrottlingException
		internal    *types.InternalServerException
		unavailable *types.ServiceUnavailableException
		notReady    *types.ModelNotReadyException
		modelTime   *types.ModelTimeoutException
	)
	switch {
	case errors.As(err, &throttling),
		errors.As(err, &internal),
		errors.As(err, &unavailable),
		errors.As(err, &notReady),
		errors.As(err, &modelTime):
		return &TransientError{Err: err}
	}
	return err
}
