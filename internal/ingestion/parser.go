package ingestion

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/futig/zoning-qa/internal/entity"
)

const documentExt = ".txt"

// ParseFile reads one plain text document. The title is the file name
// without its extension.
func ParseFile(path, municipalityID, phase string) (*entity.IngestDocumentRequest, error) {
	path = strings.TrimSpace(path)

	ext := filepath.Ext(path)
	if ext != documentExt {
		return nil, fmt.Errorf("unsupported file type %s (expected %s)", ext, documentExt)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file %s: %w", path, err)
	}
	if !utf8.Valid(content) {
		return nil, fmt.Errorf("file %s is not valid UTF-8", path)
	}

	return &entity.IngestDocumentRequest{
		MunicipalityID: municipalityID,
		DocumentTitle:  strings.TrimSuffix(filepath.Base(path), ext),
		RawText:        string(content),
		Phase:          phase,
	}, nil
}

// LoadDir parses every *.txt file directly under dir, sorted by name.
// Empty files are returned as is and rejected per document at ingestion.
func LoadDir(dir, municipalityID, phase string) ([]*entity.IngestDocumentRequest, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*"+documentExt))
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", dir, err)
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no %s files in %s", documentExt, dir)
	}
	sort.Strings(paths)

	reqs := make([]*entity.IngestDocumentRequest, 0, len(paths))
	for _, path := range paths {
		req, err := ParseFile(path, municipalityID, phase)
		if err != nil {
			return nil, err
		}
		reqs = append(reqs, req)
	}
	return reqs, nil
}
