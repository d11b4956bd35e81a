package ingest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func recordUIDs(t *testing.T, data string) []string {
	t.Helper()
	recs, err := DecodeRecords([]byte(data))
	require.NoError(t, err)
	uids := make([]string, 0, len(recs))
	for _, r := range recs {
		uids = append(uids, r.String("uid"))
	}
	return uids
}

func TestDecodeRecords_Shapes(t *testing.T) {
	tests := []struct {
		name string
		data string
		want []string
	}{
		{
			name: "array",
			data: `[{"uid": "a"}, {"uid": "b"}]`,
			want: []string{"a", "b"},
		},
		{
			name: "objects wrapper",
			data: `{"from": 1, "to": 2, "total": 2, "objects": [{"uid": "a"}, {"uid": "b"}]}`,
			want: []string{"a", "b"},
		},
		{
			name: "rulebase wrapper",
			data: `{"uid": "layer", "name": "Network", "rulebase": [{"uid": "s1", "type": "nat-section"}], "total": 1}`,
			want: []string{"s1"},
		},
		{
			name: "typed record with rulebase is a record",
			data: `{"uid": "s1", "type": "nat-section", "rulebase": []}`,
			want: []string{"s1"},
		},
		{
			name: "single record",
			data: `{"uid": "a", "type": "host"}`,
			want: []string{"a"},
		},
		{
			name: "comma joined",
			data: "{\"uid\": \"a\"},\n{\"uid\": \"b\"},\n{\"uid\": \"c\"}",
			want: []string{"a", "b", "c"},
		},
		{
			name: "back to back",
			data: "{\"uid\": \"a\"}\n{\"uid\": \"b\"}",
			want: []string{"a", "b"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, recordUIDs(t, tt.data))
		})
	}
}

func TestDecodeRecords_Empty(t *testing.T) {
	recs, err := DecodeRecords([]byte("  \n "))
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestDecodeRecords_Errors(t *testing.T) {
	_, err := DecodeRecords([]byte(`[1, 2]`))
	assert.Error(t, err)

	_, err = DecodeRecords([]byte(`{"objects": ["not-a-record"]}`))
	assert.Error(t, err)

	_, err = DecodeRecords([]byte(`{"uid": "a"} {"uid": `))
	assert.Error(t, err)

	_, err = DecodeRecords([]byte(`"just a string"`))
	assert.Error(t, err)
}

func TestLoadRecords(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "export.json")
	require.NoError(t, os.WriteFile(path, []byte(sampleExport), 0o644))

	recs, err := LoadRecords(path)
	require.NoError(t, err)
	assert.Len(t, recs, 8)
	assert.Equal(t, "web01", recs[0].String("name"))

	_, err = LoadRecords(filepath.Join(dir, "missing.json"))
	assert.Error(t, err)
}
