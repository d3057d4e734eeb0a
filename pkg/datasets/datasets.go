package datasets

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/apache/arrow/go/v13/arrow"
	"github.com/apache/arrow/go/v13/arrow/array"
	"github.com/apache/arrow/go/v13/arrow/memory"
	"github.com/apache/arrow/go/v13/parquet/file"
	"github.com/apache/arrow/go/v13/parquet/pqarrow"
	"github.com/google/uuid"

	"github.com/richpaul1/promptopt/pkg/core"
	"github.com/richpaul1/promptopt/pkg/errors"
	"github.com/richpaul1/promptopt/pkg/logging"
)

// Column name fallbacks: QA-style datasets commonly label their columns
// question/answer rather than query/expected_response.
var (
	queryColumns    = []string{"query", "question"}
	responseColumns = []string{"expected_response", "answer", "response"}
)

// jsonExample is the accepted on-disk JSON shape, with the same column
// fallbacks the parquet path supports.
type jsonExample struct {
	ID               string                 `json:"id"`
	Query            string                 `json:"query"`
	Question         string                 `json:"question"`
	ExpectedResponse string                 `json:"expected_response"`
	Answer           string                 `json:"answer"`
	Metadata         map[string]interface{} `json:"metadata"`
}

// LoadTrainingExamples loads examples from a JSON or parquet file, keyed by
// file extension.
func LoadTrainingExamples(ctx context.Context, path string) ([]core.TrainingExample, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return LoadJSON(path)
	case ".parquet":
		return LoadParquet(ctx, path)
	default:
		return nil, errors.WithFields(
			errors.New(errors.InvalidInput, "unsupported dataset format"),
			errors.Fields{"path": path},
		)
	}
}

// LoadJSON reads training examples from a JSON array file.
func LoadJSON(path string) ([]core.TrainingExample, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, errors.InvalidInput, "failed to read dataset file")
	}

	var raw []jsonExample
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, errors.Wrap(err, errors.InvalidInput, "failed to parse dataset JSON")
	}

	examples := make([]core.TrainingExample, 0, len(raw))
	for _, entry := range raw {
		query := entry.Query
		if query == "" {
			query = entry.Question
		}
		response := entry.ExpectedResponse
		if response == "" {
			response = entry.Answer
		}
		if query == "" {
			continue
		}

		id := entry.ID
		if id == "" {
			id = uuid.New().String()
		}
		examples = append(examples, core.TrainingExample{
			ID:               id,
			Query:            query,
			ExpectedResponse: response,
			Metadata:         entry.Metadata,
		})
	}

	if len(examples) == 0 {
		return nil, errors.New(errors.InvalidInput, "dataset contains no usable examples")
	}
	return examples, nil
}

// LoadParquet reads training examples from a parquet file with string
// query/response columns.
func LoadParquet(ctx context.Context, path string) ([]core.TrainingExample, error) {
	logger := logging.GetLogger()

	reader, err := file.OpenParquetFile(path, false)
	if err != nil {
		return nil, errors.Wrap(err, errors.InvalidInput, "failed to open parquet file")
	}
	defer reader.Close()

	arrowReader, err := pqarrow.NewFileReader(reader, pqarrow.ArrowReadProperties{}, memory.DefaultAllocator)
	if err != nil {
		return nil, errors.Wrap(err, errors.InvalidInput, "failed to create arrow reader")
	}

	schema, err := arrowReader.Schema()
	if err != nil {
		return nil, errors.Wrap(err, errors.InvalidInput, "failed to read parquet schema")
	}

	queryIndex, ok := findColumn(schema, queryColumns)
	if !ok {
		return nil, errors.New(errors.InvalidInput, "no query column found in parquet schema")
	}
	responseIndex, ok := findColumn(schema, responseColumns)
	if !ok {
		return nil, errors.New(errors.InvalidInput, "no response column found in parquet schema")
	}

	table, err := arrowReader.ReadTable(ctx)
	if err != nil {
		return nil, errors.Wrap(err, errors.InvalidInput, "failed to read parquet table")
	}
	defer table.Release()

	queries, err := stringColumn(table.Column(queryIndex))
	if err != nil {
		return nil, err
	}
	responses, err := stringColumn(table.Column(responseIndex))
	if err != nil {
		return nil, err
	}
	if len(queries) != len(responses) {
		return nil, errors.New(errors.InvalidInput, "query and response columns have mismatched lengths")
	}

	examples := make([]core.TrainingExample, len(queries))
	for i := range queries {
		examples[i] = core.TrainingExample{
			ID:               uuid.New().String(),
			Query:            queries[i],
			ExpectedResponse: responses[i],
		}
	}

	logger.Info(ctx, "loaded %d training examples from %s", len(examples), path)
	return examples, nil
}

func findColumn(schema *arrow.Schema, names []string) (int, bool) {
	for _, name := range names {
		if indices := schema.FieldIndices(name); len(indices) > 0 {
			return indices[0], true
		}
	}
	return 0, false
}

// stringColumn flattens a chunked string column into a plain slice.
func stringColumn(col *arrow.Column) ([]string, error) {
	var values []string
	for _, chunk := range col.Data().Chunks() {
		strs, ok := chunk.(*array.String)
		if !ok {
			return nil, errors.WithFields(
				errors.New(errors.InvalidInput, "column is not a string column"),
				errors.Fields{"column": col.Name()},
			)
		}
		for i := 0; i < strs.Len(); i++ {
			values = append(values, strs.Value(i))
		}
	}
	return values, nil
}
