package ingestion

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestParseFile(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "Zoning Code.txt", "Code 13c1 permits residential use up to three stories.")

	req, err := ParseFile(path, "401", "p1")
	require.NoError(t, err)
	assert.Equal(t, "Zoning Code", req.DocumentTitle)
	assert.Equal(t, "401", req.MunicipalityID)
	assert.Equal(t, "p1", req.Phase)
	assert.Contains(t, req.RawText, "13c1")

	_, err = ParseFile(writeFile(t, dir, "map.pdf", "%PDF"), "401", "p1")
	assert.Error(t, err)

	_, err = ParseFile(writeFile(t, dir, "bad.txt", "\xff\xfe"), "401", "p1")
	assert.Error(t, err)

	_, err = ParseFile(filepath.Join(dir, "missing.txt"), "401", "p1")
	assert.Error(t, err)
}

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "b-setbacks.txt", "Front setback is twenty feet.")
	writeFile(t, dir, "a-uses.txt", "Residential use is permitted.")
	writeFile(t, dir, "empty.txt", "")
	writeFile(t, dir, "notes.md", "ignored")

	reqs, err := LoadDir(dir, "401", "")
	require.NoError(t, err)
	require.Len(t, reqs, 3)
	assert.Equal(t, "a-uses", reqs[0].DocumentTitle)
	assert.Equal(t, "b-setbacks", reqs[1].DocumentTitle)
	assert.Equal(t, "empty", reqs[2].DocumentTitle)
	assert.Empty(t, reqs[2].RawText)

	_, err = LoadDir(t.TempDir(), "401", "")
	assert.Error(t, err)
}
