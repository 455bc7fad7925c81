package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/redpanda-data/benthos/v4/public/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Test Helpers ---

const packetSchemaContent = `id: packet
script: |
  ubyte len;
  ubyte [len] payload;
  <ushort crc;
`

func writeTempSchema(t *testing.T, content string) string {
	t.Helper()
	schemaFile := filepath.Join(t.TempDir(), "schema.yaml")
	require.NoError(t, os.WriteFile(schemaFile, []byte(content), 0644))
	return schemaFile
}

func newTestProcessor(t *testing.T, yamlConfig string) *BlockProcessor {
	t.Helper()
	pConf, err := blockProcessorConfig().ParseYAML(yamlConfig, nil)
	require.NoError(t, err)
	processor, err := newBlockProcessorFromConfig(pConf, service.MockResources())
	require.NoError(t, err)
	t.Cleanup(func() { _ = processor.Close(context.Background()) })
	return processor
}

func structured(t *testing.T, msg *service.Message) map[string]any {
	t.Helper()
	require.NoError(t, msg.GetError())
	v, err := msg.AsStructured()
	require.NoError(t, err)
	m, ok := v.(map[string]any)
	require.True(t, ok, "expected object, got %T", v)
	return m
}

func TestBlockProcessor_Parse(t *testing.T) {
	ctx := context.Background()

	t.Run("schema file", func(t *testing.T) {
		path := writeTempSchema(t, packetSchemaContent)
		processor := newTestProcessor(t, fmt.Sprintf("schema_path: %s", path))

		inputMsg := service.NewMessage([]byte{0x02, 0xAA, 0xBB, 0x34, 0x12})
		inputMsg.MetaSetMut("source", "sensor-1")
		batch, err := processor.Process(ctx, inputMsg)
		require.NoError(t, err)
		require.Len(t, batch, 1)

		result := structured(t, batch[0])
		assert.Equal(t, int64(2), result["len"])
		assert.Equal(t, []int64{0xAA, 0xBB}, result["payload"])
		assert.Equal(t, int64(0x1234), result["crc"])

		source, ok := batch[0].MetaGetMut("source")
		require.True(t, ok)
		assert.Equal(t, "sensor-1", source)
	})

	t.Run("inline script with extras", func(t *testing.T) {
		processor := newTestProcessor(t, `
script: "ubyte n; int24 [$count] v;"
custom_types: [int24]
externals:
  count: "field('n') + 1"
`)
		batch, err := processor.Process(ctx, service.NewMessage([]byte{0x00, 0xFF, 0xFF, 0xFF}))
		require.NoError(t, err)
		require.Len(t, batch, 1)
		assert.Equal(t, []int64{-1}, structured(t, batch[0])["v"])
	})

	t.Run("bit order override", func(t *testing.T) {
		processor := newTestProcessor(t, `
script: "bit:4 a; bit:4 b;"
bit_order: msb
`)
		batch, err := processor.Process(ctx, service.NewMessage([]byte{0x1F}))
		require.NoError(t, err)
		result := structured(t, batch[0])
		assert.Equal(t, int64(8), result["a"])
		assert.Equal(t, int64(0xF), result["b"])
	})

	t.Run("multiple blocks", func(t *testing.T) {
		processor := newTestProcessor(t, `
script: "ubyte len; ubyte [len] data;"
multi_block: true
`)
		batch, err := processor.Process(ctx, service.NewMessage([]byte{0x01, 0xAA, 0x02, 0xBB, 0xCC}))
		require.NoError(t, err)
		require.Len(t, batch, 2)

		assert.Equal(t, []int64{0xAA}, structured(t, batch[0])["data"])
		assert.Equal(t, []int64{0xBB, 0xCC}, structured(t, batch[1])["data"])
		idx, ok := batch[1].MetaGetMut(metaBlockIndex)
		require.True(t, ok)
		assert.Equal(t, "1", idx)
	})

	t.Run("lenient flag", func(t *testing.T) {
		processor := newTestProcessor(t, `
script: "ubyte a; int b;"
flags: [skip-remaining-fields-on-eof]
`)
		batch, err := processor.Process(ctx, service.NewMessage([]byte{0x07}))
		require.NoError(t, err)
		assert.Equal(t, map[string]any{"a": int64(7)}, structured(t, batch[0]))
	})
}

func TestBlockProcessor_ParseErrors(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name  string
		input []byte
	}{
		{name: "empty", input: []byte{}},
		{name: "truncated", input: []byte{0x05, 0x01}},
		{name: "truncated second block", input: []byte{0x01, 0xAA, 0x00, 0x00, 0x03}},
	}

	path := writeTempSchema(t, packetSchemaContent)
	processor := newTestProcessor(t, fmt.Sprintf("schema_path: %s\nmulti_block: true", path))
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			batch, err := processor.Process(ctx, service.NewMessage(tt.input))
			require.NoError(t, err, "errors are reported on the message")
			require.Len(t, batch, 1)
			assert.Error(t, batch[0].GetError())
		})
	}
}

func TestBlockProcessor_Serialize(t *testing.T) {
	ctx := context.Background()
	path := writeTempSchema(t, packetSchemaContent)
	processor := newTestProcessor(t, fmt.Sprintf("schema_path: %s\noperation: serialize", path))

	t.Run("structured message", func(t *testing.T) {
		inputMsg := service.NewMessage(nil)
		inputMsg.SetStructured(map[string]any{"len": 1, "payload": []any{0x7F}, "crc": 0x0201})
		batch, err := processor.Process(ctx, inputMsg)
		require.NoError(t, err)
		require.Len(t, batch, 1)
		require.NoError(t, batch[0].GetError())

		resBytes, err := batch[0].AsBytes()
		require.NoError(t, err)
		assert.Equal(t, []byte{0x01, 0x7F, 0x01, 0x02}, resBytes)
	})

	t.Run("json message", func(t *testing.T) {
		batch, err := processor.Process(ctx, service.NewMessage([]byte(`{"len":2,"payload":[1,2],"crc":3}`)))
		require.NoError(t, err)
		resBytes, err := batch[0].AsBytes()
		require.NoError(t, err)
		assert.Equal(t, []byte{0x02, 0x01, 0x02, 0x03, 0x00}, resBytes)
	})

	t.Run("missing field", func(t *testing.T) {
		inputMsg := service.NewMessage(nil)
		inputMsg.SetStructured(map[string]any{"wrong_field": 42})
		batch, err := processor.Process(ctx, inputMsg)
		require.NoError(t, err)
		require.Len(t, batch, 1)
		assert.Error(t, batch[0].GetError())
	})

	t.Run("not an object", func(t *testing.T) {
		batch, err := processor.Process(ctx, service.NewMessage([]byte(`[1,2]`)))
		require.NoError(t, err)
		assert.ErrorContains(t, batch[0].GetError(), "expected an object")
	})

	t.Run("count mismatch", func(t *testing.T) {
		inputMsg := service.NewMessage(nil)
		inputMsg.SetStructured(map[string]any{"len": 3, "payload": []any{1}, "crc": 0})
		batch, err := processor.Process(ctx, inputMsg)
		require.NoError(t, err)
		assert.Error(t, batch[0].GetError())
	})
}

func TestBlockProcessor_RoundTrip(t *testing.T) {
	ctx := context.Background()
	path := writeTempSchema(t, packetSchemaContent)
	parser := newTestProcessor(t, fmt.Sprintf("schema_path: %s", path))
	writer := newTestProcessor(t, fmt.Sprintf("schema_path: %s\noperation: serialize", path))

	input := []byte{0x03, 0x01, 0x02, 0x03, 0xCD, 0xAB}
	parsed, err := parser.Process(ctx, service.NewMessage(input))
	require.NoError(t, err)
	require.Len(t, parsed, 1)

	written, err := writer.Process(ctx, parsed[0])
	require.NoError(t, err)
	out, err := written[0].AsBytes()
	require.NoError(t, err)
	assert.Equal(t, input, out)
}

func TestBlockProcessor_SchemaCache(t *testing.T) {
	path := writeTempSchema(t, packetSchemaContent)
	processor := newTestProcessor(t, fmt.Sprintf("schema_path: %s", path))

	first, err := processor.loadSchema(path)
	require.NoError(t, err)

	// The cached document outlives the file.
	require.NoError(t, os.Remove(path))
	second, err := processor.loadSchema(path)
	require.NoError(t, err)
	assert.Same(t, first, second)

	require.NoError(t, processor.Close(context.Background()))
	_, err = processor.loadSchema(path)
	assert.Error(t, err)
}

func TestBlockProcessor_ConfigErrors(t *testing.T) {
	path := writeTempSchema(t, packetSchemaContent)
	tests := []struct {
		name    string
		config  string
		wantErr string
	}{
		{name: "no schema", config: `operation: parse`, wantErr: "exactly one"},
		{name: "both schema and script", config: fmt.Sprintf("schema_path: %s\nscript: \"ubyte a;\"", path), wantErr: "exactly one"},
		{name: "missing file", config: "schema_path: /nonexistent/schema.yaml", wantErr: "reading schema file"},
		{name: "bad script", config: `script: "mystery a;"`, wantErr: "compiling schema"},
		{name: "bad bit order", config: "script: \"ubyte a;\"\nbit_order: middle", wantErr: "unknown bit order"},
		{name: "bad flag", config: "script: \"ubyte a;\"\nflags: [fast]", wantErr: "unknown flag"},
		{name: "extras with schema file", config: fmt.Sprintf("schema_path: %s\ncustom_types: [int24]", path), wantErr: "inline scripts"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pConf, err := blockProcessorConfig().ParseYAML(tt.config, nil)
			require.NoError(t, err)
			_, err = newBlockProcessorFromConfig(pConf, service.MockResources())
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
