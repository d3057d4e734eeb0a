package datasets

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/richpaul1/promptopt/pkg/errors"
)

func writeDataset(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadJSON(t *testing.T) {
	path := writeDataset(t, "examples.json", `[
		{"id": "ex-1", "query": "How do I reset my password?", "expected_response": "Use the reset link."},
		{"question": "Where are my invoices?", "answer": "Under billing history."},
		{"query": "", "expected_response": "orphaned"}
	]`)

	examples, err := LoadJSON(path)
	require.NoError(t, err)
	require.Len(t, examples, 2)

	assert.Equal(t, "ex-1", examples[0].ID)
	assert.Equal(t, "How do I reset my password?", examples[0].Query)
	assert.Equal(t, "Use the reset link.", examples[0].ExpectedResponse)

	// question/answer column names map onto the same fields.
	assert.Equal(t, "Where are my invoices?", examples[1].Query)
	assert.Equal(t, "Under billing history.", examples[1].ExpectedResponse)
	assert.NotEmpty(t, examples[1].ID)
}

func TestLoadJSONErrors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		_, err := LoadJSON(filepath.Join(t.TempDir(), "missing.json"))
		assert.True(t, errors.HasCode(err, errors.InvalidInput))
	})

	t.Run("malformed JSON", func(t *testing.T) {
		path := writeDataset(t, "bad.json", `{"not": "an array"`)
		_, err := LoadJSON(path)
		assert.True(t, errors.HasCode(err, errors.InvalidInput))
	})

	t.Run("no usable examples", func(t *testing.T) {
		path := writeDataset(t, "empty.json", `[{"query": ""}]`)
		_, err := LoadJSON(path)
		assert.True(t, errors.HasCode(err, errors.InvalidInput))
	})
}

func TestLoadTrainingExamplesByExtension(t *testing.T) {
	path := writeDataset(t, "examples.json", `[{"query": "q", "expected_response": "a"}]`)

	examples, err := LoadTrainingExamples(context.Background(), path)
	require.NoError(t, err)
	assert.Len(t, examples, 1)

	_, err = LoadTrainingExamples(context.Background(), "examples.csv")
	assert.True(t, errors.HasCode(err, errors.InvalidInput))
}

func TestLoadParquetMissingFile(t *testing.T) {
	_, err := LoadParquet(context.Background(), filepath.Join(t.TempDir(), "missing.parquet"))
	assert.True(t, errors.HasCode(err, errors.InvalidInput))
}
