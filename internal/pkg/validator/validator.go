package validator

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/futig/zoning-qa/internal/config"
	"github.com/futig/zoning-qa/internal/entity"
)

// Validator checks request input against configured limits
type Validator struct {
	cfg config.LimitsConfig
}

func New(cfg config.LimitsConfig) *Validator {
	return &Validator{cfg: cfg}
}

// ValidateMunicipalityID accepts printable identifiers without slashes
func (v *Validator) ValidateMunicipalityID(id string) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("%w: municipality_id", entity.ErrMissingField)
	}
	if len(id) > 100 {
		return fmt.Errorf("%w: municipality_id is longer than 100 bytes", entity.ErrInvalidParameter)
	}
	for _, r := range id {
		if r == '/' || !unicode.IsPrint(r) || unicode.IsSpace(r) {
			return fmt.Errorf("%w: municipality_id contains %q", entity.ErrInvalidParameter, r)
		}
	}
	return nil
}
