package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const pointSchema = `id: point
externals:
  n: "count"
script: |
  ubyte tag;
  <short [$n] coords;
`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func runCLI(t *testing.T, stdin []byte, args ...string) (string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	err := run(context.Background(), append([]string{"bbp"}, args...), bytes.NewReader(stdin), &stdout, &stderr)
	return stdout.String(), err
}

func TestParseCommand(t *testing.T) {
	schema := writeFile(t, "point.yaml", pointSchema)
	input := writeFile(t, "point.bin", string([]byte{7, 1, 0, 0xFF, 0xFF}))

	out, err := runCLI(t, nil, "--schema", schema, "--var", "count=2", "parse", input)
	require.NoError(t, err)
	assert.JSONEq(t, `{"tag": 7, "coords": [1, -1]}`, out)

	out, err = runCLI(t, []byte{9, 5, 0}, "-s", schema, "--var", "count=1", "parse", "-")
	require.NoError(t, err)
	assert.JSONEq(t, `{"tag": 9, "coords": [5]}`, out)
}

func TestWriteCommand(t *testing.T) {
	schema := writeFile(t, "point.yaml", pointSchema)

	out, err := runCLI(t, []byte(`{"tag": 7, "coords": [1, -1]}`), "--schema", schema, "--var", "count=2", "write")
	require.NoError(t, err)
	assert.Equal(t, string([]byte{7, 1, 0, 0xFF, 0xFF}), out)

	target := filepath.Join(t.TempDir(), "out.bin")
	_, err = runCLI(t, []byte(`{"tag": 1, "coords": [2]}`), "--schema", schema, "--var", "count=1", "write", "--out", target)
	require.NoError(t, err)
	data, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 0}, data)
}

func TestCheckCommand(t *testing.T) {
	schema := writeFile(t, "point.yaml", pointSchema)
	out, err := runCLI(t, nil, "--schema", schema, "--var", "count=1", "check")
	require.NoError(t, err)
	assert.Contains(t, out, "tag")
	assert.Contains(t, out, "coords")
}

func TestCommandErrors(t *testing.T) {
	schema := writeFile(t, "point.yaml", pointSchema)
	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{name: "bad bit order", args: []string{"--schema", schema, "--bit-order", "middle", "check"}, wantErr: "unknown bit order"},
		{name: "bad flag", args: []string{"--schema", schema, "--flag", "fast", "check"}, wantErr: "unknown flag"},
		{name: "bad variable", args: []string{"--schema", schema, "--var", "count", "check"}, wantErr: "NAME=INT"},
		{name: "variable not a number", args: []string{"--schema", schema, "--var", "count=x", "check"}, wantErr: "count"},
		{name: "missing input", args: []string{"--schema", schema, "--var", "count=1", "parse", "/nonexistent/data.bin"}, wantErr: "no such file"},
		{name: "short data", args: []string{"--schema", schema, "--var", "count=4", "parse", "-"}, wantErr: "parsing data"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := runCLI(t, []byte{1, 2}, tt.args...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
