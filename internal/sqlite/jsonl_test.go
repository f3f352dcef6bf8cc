package sqlite

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadJSONL(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    int
	}{
		{"empty file", "", 0},
		{"two records", "{\"a\":1}\n{\"a\":2}\n", 2},
		{"blank lines skipped", "{\"a\":1}\n\n\n{\"a\":2}", 2},
		{"malformed lines skipped", "{\"a\":1}\nnot json\n{\"a\":", 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "t.jsonl")
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0o644))
			records, err := readJSONL(path)
			require.NoError(t, err)
			assert.Len(t, records, tt.want)
		})
	}

	_, err := readJSONL(filepath.Join(t.TempDir(), "missing.jsonl"))
	assert.Error(t, err)
}

func TestWriteJSONL(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "t.jsonl")
	records := []json.RawMessage{
		json.RawMessage(`{"term_id":"t1"}`),
		json.RawMessage(`{"term_id":"t2"}`),
	}

	require.NoError(t, writeJSONL(path, records))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "{\"term_id\":\"t1\"}\n{\"term_id\":\"t2\"}\n", string(data))

	require.NoError(t, writeJSONL(path, nil))
	data, err = os.ReadFile(path)
	require.NoError(t, err)
	assert.Empty(t, data)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files left behind")
}
