package validator

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/futig/zoning-qa/internal/entity"
)

// ValidateQuestion checks a query before any provider is called
func (v *Validator) ValidateQuestion(municipalityID, question string, opts entity.AskOptions) error {
	if err := v.ValidateMunicipalityID(municipalityID); err != nil {
		return err
	}

	if strings.TrimSpace(question) == "" {
		return fmt.Errorf("%w: question", entity.ErrMissingField)
	}
	if n := utf8.RuneCountInString(question); n > v.cfg.MaxQuestionLength {
		return fmt.Errorf("%w: question is %d characters (max %d)", entity.ErrInvalidParameter, n, v.cfg.MaxQuestionLength)
	}

	if opts.TopK != nil {
		if *opts.TopK < 1 {
			return fmt.Errorf("%w: top_k must be >= 1, got %d", entity.ErrInvalidParameter, *opts.TopK)
		}
		if *opts.TopK > v.cfg.MaxTopK {
			return fmt.Errorf("%w: top_k must be <= %d, got %d", entity.ErrInvalidParameter, v.cfg.MaxTopK, *opts.TopK)
		}
	}

	return nil
}
