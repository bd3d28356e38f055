package applet

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg, err := DefaultConfig()
	require.NoError(t, err)

	assert.Equal(t, "forum", cfg.Name)
	assert.Len(t, cfg.Ranges, 2)
	assert.Len(t, cfg.Dimensions, 2)
	require.Len(t, cfg.ResourceDefs, 1)
	assert.Equal(t, []string{"post"}, cfg.ResourceDefs[0].BaseTypes)
	require.Len(t, cfg.Methods, 1)
	assert.Equal(t, "total_likeness", cfg.Methods[0].OutputDimension)
	require.Len(t, cfg.CulturalContexts, 1)
	assert.Equal(t, "desc", cfg.CulturalContexts[0].OrderBy[0].Direction)
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "applet.yaml")
	doc := `name: polls
ranges:
  - name: binary
    min: 0
    max: 1
dimensions:
  - name: vote
    range: binary
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "polls", cfg.Name)
	assert.Equal(t, int64(1), cfg.Ranges[0].Max)

	cfg, err = LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, "forum", cfg.Name)

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestParseConfigRejects(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want string
	}{
		{
			name: "missing name",
			doc:  "ranges: []\n",
			want: "no name",
		},
		{
			name: "unknown field",
			doc:  "name: x\ncolour: red\n",
			want: "colour",
		},
		{
			name: "unknown range",
			doc:  "name: x\ndimensions:\n  - name: d\n    range: nope\n",
			want: `unknown range "nope"`,
		},
		{
			name: "inverted range",
			doc:  "name: x\nranges:\n  - name: r\n    min: 5\n    max: 1\n",
			want: "above max",
		},
		{
			name: "method on unknown resource def",
			doc: `name: x
ranges: [{name: r, min: 0, max: 1}]
dimensions: [{name: d, range: r}]
methods:
  - name: m
    target_resource_def: ghost
    input_dimensions: [d]
    output_dimension: d
    program: sum
`,
			want: `unknown resource def "ghost"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseConfig([]byte(tt.doc))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
