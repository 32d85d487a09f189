package formatter

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/futig/zoning-qa/internal/entity"
)

const (
	markdownContentType   = "text/markdown; charset=utf-8"
	markdownFileExtension = ".md"
)

type MarkdownFormatter struct{}

func NewMarkdownFormatter() *MarkdownFormatter {
	return &MarkdownFormatter{}
}

func (mf *MarkdownFormatter) Format(report *entity.AnswerReport) ([]byte, error) {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "# %s\n", baseTitle)

	for _, s := range sections(report) {
		fmt.Fprintf(&buf, "\n## %s\n\n", s.heading)
		for _, p := range s.body {
			// quote multi-line source excerpts so they stay one block
			if strings.Contains(p, "\n") {
				head, rest, _ := strings.Cut(p, "\n")
				fmt.Fprintf(&buf, "%s\n\n> %s\n\n", head, strings.ReplaceAll(rest, "\n", "\n> "))
				continue
			}
			fmt.Fprintf(&buf, "%s\n\n", p)
		}
	}
	return append(bytes.TrimRight(buf.Bytes(), "\n"), '\n'), nil
}

func (mf *MarkdownFormatter) ContentType() string {
	return markdownContentType
}

func (mf *MarkdownFormatter) FileExtension() string {
	return markdownFileExtension
}
