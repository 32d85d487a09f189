package validator

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/futig/zoning-qa/internal/entity"
)

// ValidateIngest checks an ingestion request. Empty text is rejected so that
// a failed extraction never wipes a previously indexed document.
func (v *Validator) ValidateIngest(req *entity.IngestDocumentRequest) error {
	if err := v.ValidateMunicipalityID(req.MunicipalityID); err != nil {
		return err
	}

	title := strings.TrimSpace(req.DocumentTitle)
	if title == "" {
		return fmt.Errorf("%w: title", entity.ErrMissingField)
	}
	if len(title) > v.cfg.MaxTitleLength {
		return fmt.Errorf("%w: title is %d bytes (max %d)", entity.ErrInvalidParameter, len(title), v.cfg.MaxTitleLength)
	}

	if strings.TrimSpace(req.RawText) == "" {
		return fmt.Errorf("%w: text", entity.ErrMissingField)
	}
	if len(req.RawText) > v.cfg.MaxDocumentBytes {
		return fmt.Errorf("%w: text is %d bytes (max %d)", entity.ErrInvalidParameter, len(req.RawText), v.cfg.MaxDocumentBytes)
	}
	if !utf8.ValidString(req.RawText) {
		return fmt.Errorf("%w: text is not valid UTF-8", entity.ErrInvalidParameter)
	}

	return nil
}
