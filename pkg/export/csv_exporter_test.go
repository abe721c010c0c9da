package export

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCSVExporterRender(t *testing.T) {
	sheet := Sheet{
		Title:   "ignored by csv",
		Columns: []string{"Run", "Student Name", "Status"},
		Rows: [][]string{
			{"1", "Alice", "pending"},
			{"2", "Bob"}, // short row padded to column count
		},
	}

	out, err := NewCSVExporter().Render(sheet)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "Run,Student Name,Status", lines[0])
	assert.Equal(t, "1,Alice,pending", lines[1])
	assert.Equal(t, "2,Bob,", lines[2])
}

func TestCSVExporterRequiresColumns(t *testing.T) {
	_, err := NewCSVExporter().Render(Sheet{})
	assert.Error(t, err)
}

func TestPDFExporterRendersDocument(t *testing.T) {
	sheet := Sheet{
		Title:   "Algebra - 2026-09-01",
		Columns: []string{"Run", "Student Name"},
		Rows:    [][]string{{"1", "Alice"}},
	}

	out, err := NewPDFExporter().Render(sheet)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(out), "%PDF"))
}
