package synthesizer

import (
	"fmt"
	"strings"

	"github.com/futig/zoning-qa/internal/entity"
)

const systemPrompt = `You answer questions about municipal zoning codes.
Use only the numbered context excerpts supplied with the question and no outside knowledge.
Cite the excerpts you rely on with their markers, for example [1] or [2].
If the excerpts do not contain the answer, say that the provided documents do not contain enough information.`

// BuildPrompt numbers sources in the given order. Marker [n] refers to
// sources[n-1].
func BuildPrompt(question string, sources []entity.RetrievedSource) (system, user string) {
	var sb strings.Builder

	sb.WriteString("Context:\n")
	for i, src := range sources {
		fmt.Fprintf(&sb, "[%d] %s (chunk %d)\n", i+1, src.DocumentTitle, src.ChunkIndex)
		sb.WriteString(strings.TrimSpace(src.ChunkText))
		sb.WriteString("\n\n")
	}

	sb.WriteString("Question: ")
	sb.WriteString(strings.TrimSpace(question))

	return systemPrompt, sb.String()
}
