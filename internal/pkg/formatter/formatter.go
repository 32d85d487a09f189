package formatter

import (
	"fmt"
	"strings"

	"github.com/futig/zoning-qa/internal/entity"
)

const baseTitle = "Zoning answer"

type Formatter interface {
	Format(report *entity.AnswerReport) ([]byte, error)
	ContentType() string
	FileExtension() string
}

type Factory struct{}

func NewFactory() *Factory {
	return &Factory{}
}

func (f *Factory) Create(format entity.ResultFormat) (Formatter, error) {
	switch format {
	case entity.FormatMarkdown:
		return NewMarkdownFormatter(), nil
	case entity.FormatDOCX:
		return NewDOCXFormatter(), nil
	case entity.FormatPDF:
		return NewPDFFormatter(), nil
	default:
		return nil, fmt.Errorf("%w: unsupported format %q", entity.ErrInvalidFormat, format)
	}
}

// section is one headed block of a report, shared by every format
type section struct {
	heading string
	body    []string
}

func sections(r *entity.AnswerReport) []section {
	meta := r.Answer.Metadata
	out := []section{
		{heading: "Question", body: []string{r.Question}},
		{heading: "Answer", body: []string{r.Answer.Answer}},
	}

	sources := make([]string, 0, len(r.Answer.Sources))
	for i, s := range r.Answer.Sources {
		sources = append(sources, fmt.Sprintf("[%d] %s (chunk %d, similarity %.3f)\n%s",
			i+1, s.DocumentTitle, s.ChunkIndex, s.Similarity, strings.TrimSpace(s.ChunkText)))
	}
	if len(sources) > 0 {
		out = append(out, section{heading: "Sources", body: sources})
	}

	details := []string{
		"Municipality: " + r.MunicipalityID,
		fmt.Sprintf("Phase: %s, model: %s", meta.Phase, meta.Model),
		fmt.Sprintf("Average similarity: %.3f", meta.AvgSimilarity),
	}
	if meta.GenerationFailed {
		details = append(details, "Generation failed: "+meta.GenerationError)
	}
	return append(out, section{heading: "Details", body: details})
}
