package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/risk-sentinel/sentinel-cli/internal/model"
)

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestReadStatementsJSONArray(t *testing.T) {
	path := writeTemp(t, "batch.json", `[
		{"source_id": "s1", "source_type": "documentation", "text": "the model may leak personal data", "origin_ref": "doc-1", "timestamp": "2026-01-01T00:00:00Z"},
		{"source_id": "s1", "source_type": "incident", "text": "chatbot fabricated a citation", "origin_ref": "inc-1", "timestamp": "2026-01-02T00:00:00Z"}
	]`)

	statements, err := readStatements(path)
	require.NoError(t, err)
	require.Len(t, statements, 2)
	assert.Equal(t, model.SourceDocumentation, statements[0].SourceType)
	assert.Equal(t, "doc-1", statements[0].OriginRef)
	assert.Equal(t, time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC), statements[1].Timestamp)
}

func TestReadStatementsJSONL(t *testing.T) {
	path := writeTemp(t, "batch.jsonl",
		`{"source_id": "s1", "source_type": "documentation", "text": "known bias in hiring contexts", "origin_ref": "doc-1"}

{"source_id": "s1", "source_type": "incident", "text": "deepfake audio used in a scam", "origin_ref": "inc-1"}
`)

	statements, err := readStatements(path)
	require.NoError(t, err)
	require.Len(t, statements, 2)
	assert.Equal(t, "inc-1", statements[1].OriginRef)
}

func TestReadStatementsBadLine(t *testing.T) {
	path := writeTemp(t, "bad.jsonl", `{"source_id": "s1"}
{not json}`)

	_, err := readStatements(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 2")
}

func TestReadStatementsEmptyFile(t *testing.T) {
	path := writeTemp(t, "empty.json", "")

	statements, err := readStatements(path)
	require.NoError(t, err)
	assert.Empty(t, statements)
}

func TestReadStatementsMissingFile(t *testing.T) {
	_, err := readStatements(filepath.Join(t.TempDir(), "nope.json"))
	assert.Error(t, err)
}

func TestValidateStatement(t *testing.T) {
	valid := model.RawRiskStatement{
		SourceID:   "s1",
		SourceType: model.SourceIncident,
		Text:       "the model leaked credentials",
		OriginRef:  "inc-9",
	}
	assert.NoError(t, validateStatement(valid))

	badSource := valid
	badSource.SourceType = "rumor"
	assert.Error(t, validateStatement(badSource))

	blank := valid
	blank.Text = "   "
	assert.Error(t, validateStatement(blank))

	noRef := valid
	noRef.OriginRef = ""
	assert.Error(t, validateStatement(noRef))
}
