package entity

import "fmt"

type ResultFormat string

const (
	FormatMarkdown ResultFormat = "markdown"
	FormatDOCX     ResultFormat = "docx"
	FormatPDF      ResultFormat = "pdf"
)

var ErrInvalidFormat = fmt.Errorf("%w: invalid format", ErrValidation)

func (f ResultFormat) IsValid() bool {
	switch f {
	case FormatMarkdown, FormatDOCX, FormatPDF:
		return true
	default:
		return false
	}
}

// AnswerReport is an answer rendered for download
type AnswerReport struct {
	MunicipalityID string
	Question       string
	Answer         *AnswerResponse
}
