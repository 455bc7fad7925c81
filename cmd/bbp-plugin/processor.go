package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/redpanda-data/benthos/v4/public/service"

	"github.com/twinfer/bbp-plugin/pkg/bbp"
	"github.com/twinfer/bbp-plugin/pkg/bitio"
	"github.com/twinfer/bbp-plugin/pkg/blockparser"
	"github.com/twinfer/bbp-plugin/pkg/field"
)

const (
	operationParse     = "parse"
	operationSerialize = "serialize"

	metaBlockIndex = "bbp_block_index"
)

// BlockProcessor is a Benthos processor that parses binary messages with a
// block script and writes structured messages back to binary.
type BlockProcessor struct {
	config       BlockConfig
	parser       *bbp.Parser
	inline       *bbp.Compiled
	schemaMap    sync.Map // Cache for compiled schema documents
	logger       *service.Logger
	mParsed      *service.MetricCounter
	mSerialized  *service.MetricCounter
	mErrors      *service.MetricCounter
	mCacheHits   *service.MetricCounter
	mCacheMisses *service.MetricCounter
}

// BlockConfig contains configuration parameters for the binary_block processor.
type BlockConfig struct {
	SchemaPath  string            `json:"schema_path" yaml:"schema_path"`
	Script      string            `json:"script" yaml:"script"`
	Operation   string            `json:"operation" yaml:"operation"`
	MultiBlock  bool              `json:"multi_block" yaml:"multi_block"`
	BitOrder    string            `json:"bit_order" yaml:"bit_order"`
	Flags       []string          `json:"flags" yaml:"flags"`
	CustomTypes []string          `json:"custom_types" yaml:"custom_types"`
	Externals   map[string]string `json:"externals" yaml:"externals"`
}

func init() {
	err := service.RegisterProcessor(
		"binary_block",
		blockProcessorConfig(),
		func(conf *service.ParsedConfig, mgr *service.Resources) (service.Processor, error) {
			return newBlockProcessorFromConfig(conf, mgr)
		},
	)
	if err != nil {
		panic(err)
	}
}

// blockProcessorConfig returns a config spec for a binary_block processor.
func blockProcessorConfig() *service.ConfigSpec {
	return service.NewConfigSpec().
		Summary("Parses or serializes binary data described by a block script.").
		Description("This processor compiles a block script, either inline or from a YAML schema document, and uses it to parse binary messages into structured data or to write structured messages back to binary.").
		Field(service.NewStringField("schema_path").
			Description("Path to a YAML schema document. Mutually exclusive with `script`.").
			Example("./schemas/packet.yaml").
			Default("")).
		Field(service.NewStringField("script").
			Description("Inline block script. Mutually exclusive with `schema_path`.").
			Example("ubyte len; ubyte [len] payload; <ushort crc;").
			Default("")).
		Field(service.NewStringEnumField("operation", operationParse, operationSerialize).
			Description("Whether binary messages are parsed into structured data or structured messages are serialized to binary.").
			Default(operationParse)).
		Field(service.NewBoolField("multi_block").
			Description("When parsing, read consecutive blocks until the message is exhausted and emit one message per block.").
			Default(false)).
		Field(service.NewStringField("bit_order").
			Description("Bit order override: `lsb` or `msb`. Empty keeps the schema setting.").
			Default("")).
		Field(service.NewStringListField("flags").
			Description("Parser flags: `skip-remaining-fields-on-eof`, `negative-size-as-zero`.").
			Default([]string{})).
		Field(service.NewStringListField("custom_types").
			Description("Builtin custom types to enable for an inline script, such as `int24` or `latin1`.").
			Default([]string{})).
		Field(service.NewStringMapField("externals").
			Description("Expressions answering `$name` references of an inline script.").
			Default(map[string]any{})).
		Version("0.1.0")
}

// newBlockProcessorFromConfig creates a new BlockProcessor from a parsed config.
func newBlockProcessorFromConfig(conf *service.ParsedConfig, mgr *service.Resources) (*BlockProcessor, error) {
	var config BlockConfig
	var err error
	if config.SchemaPath, err = conf.FieldString("schema_path"); err != nil {
		return nil, err
	}
	if config.Script, err = conf.FieldString("script"); err != nil {
		return nil, err
	}
	if config.Operation, err = conf.FieldString("operation"); err != nil {
		return nil, err
	}
	if config.MultiBlock, err = conf.FieldBool("multi_block"); err != nil {
		return nil, err
	}
	if config.BitOrder, err = conf.FieldString("bit_order"); err != nil {
		return nil, err
	}
	if config.Flags, err = conf.FieldStringList("flags"); err != nil {
		return nil, err
	}
	if config.CustomTypes, err = conf.FieldStringList("custom_types"); err != nil {
		return nil, err
	}
	if config.Externals, err = conf.FieldStringMap("externals"); err != nil {
		return nil, err
	}
	return newBlockProcessor(config, mgr)
}

func newBlockProcessor(config BlockConfig, mgr *service.Resources) (*BlockProcessor, error) {
	if (config.SchemaPath == "") == (config.Script == "") {
		return nil, errors.New("exactly one of schema_path and script must be set")
	}
	if config.Operation != operationParse && config.Operation != operationSerialize {
		return nil, fmt.Errorf("unknown operation %q", config.Operation)
	}

	var opts []bbp.Option
	if config.BitOrder != "" {
		order, err := bitio.ParseBitOrder(config.BitOrder)
		if err != nil {
			return nil, err
		}
		opts = append(opts, bbp.WithBitOrder(order))
	}
	var flags blockparser.Flags
	for _, name := range config.Flags {
		f, ok := blockparser.ParseFlag(name)
		if !ok {
			return nil, fmt.Errorf("unknown flag %q", name)
		}
		flags |= f
	}
	opts = append(opts, bbp.WithFlags(flags))

	logger := mgr.Logger()
	metrics := mgr.Metrics()
	k := &BlockProcessor{
		config:       config,
		parser:       bbp.NewParser(append(opts, bbp.WithoutCaching())...),
		logger:       logger,
		mParsed:      metrics.NewCounter("bbp_parsed_messages"),
		mSerialized:  metrics.NewCounter("bbp_serialized_messages"),
		mErrors:      metrics.NewCounter("bbp_processing_errors"),
		mCacheHits:   metrics.NewCounter("bbp_schema_cache_hits"),
		mCacheMisses: metrics.NewCounter("bbp_schema_cache_misses"),
	}

	if config.Script != "" {
		compiled, err := k.parser.Compile(&bbp.Document{
			ID:          "inline",
			CustomTypes: config.CustomTypes,
			Externals:   config.Externals,
			Script:      config.Script,
		})
		if err != nil {
			return nil, err
		}
		k.inline = compiled
		return k, nil
	}

	if len(config.CustomTypes) > 0 || len(config.Externals) > 0 {
		return nil, errors.New("custom_types and externals apply to inline scripts, set them in the schema document instead")
	}
	// Fail early on a broken document.
	if _, err := k.loadSchema(config.SchemaPath); err != nil {
		return nil, err
	}
	return k, nil
}

// Process applies block parsing or serialization to a message.
func (k *BlockProcessor) Process(ctx context.Context, msg *service.Message) (service.MessageBatch, error) {
	if k.config.Operation == operationSerialize {
		return k.serializeToBinary(ctx, msg)
	}
	return k.parseBinary(ctx, msg)
}

func (k *BlockProcessor) fail(msg *service.Message, err error) (service.MessageBatch, error) {
	k.logger.Errorf("%v", err)
	k.mErrors.Incr(1)
	msg.SetError(err)
	return service.MessageBatch{msg}, nil
}

// parseBinary parses binary data into one structured message per block.
func (k *BlockProcessor) parseBinary(ctx context.Context, msg *service.Message) (service.MessageBatch, error) {
	k.logger.Debug("Parsing binary data with block schema")

	binData, err := msg.AsBytes()
	if err != nil {
		return k.fail(msg, fmt.Errorf("failed to get binary data from message: %w", err))
	}
	if len(binData) == 0 {
		k.logger.Warn("Empty binary data provided")
		k.mErrors.Incr(1)
		msg.SetError(errors.New("empty binary data provided"))
		return service.MessageBatch{msg}, nil
	}

	compiled, err := k.schema()
	if err != nil {
		return k.fail(msg, fmt.Errorf("failed to load schema: %w", err))
	}
	opts := compiled.ParseOptions(k.parser.RunOptions()...)

	r := bitio.NewReader(bytes.NewReader(binData), compiled.Schema.BitOrder())
	var batch service.MessageBatch
	for {
		r.ResetCounter()
		root, err := compiled.Schema.ParseStream(ctx, r, opts...)
		if err != nil {
			return k.fail(msg, fmt.Errorf("failed to parse block %d of %d bytes: %w", len(batch), len(binData), err))
		}

		newMsg := msg.Copy()
		newMsg.SetStructured(field.ToMap(root))
		if k.config.MultiBlock {
			newMsg.MetaSetMut(metaBlockIndex, strconv.Itoa(len(batch)))
		}
		batch = append(batch, newMsg)
		k.mParsed.Incr(1)

		if !k.config.MultiBlock {
			break
		}
		more, err := r.HasAvailableData()
		if err != nil {
			return k.fail(msg, fmt.Errorf("failed to read block %d: %w", len(batch), err))
		}
		if !more {
			break
		}
	}

	k.logger.Debugf("Successfully parsed %d blocks from %d bytes of binary data", len(batch), len(binData))
	return batch, nil
}

// serializeToBinary writes a structured message to binary.
func (k *BlockProcessor) serializeToBinary(ctx context.Context, msg *service.Message) (service.MessageBatch, error) {
	k.logger.Debug("Serializing structured data to binary with block schema")

	structData, err := msg.AsStructured()
	if err != nil {
		return k.fail(msg, fmt.Errorf("failed to get structured data from message: %w", err))
	}
	values, ok := structData.(map[string]any)
	if !ok {
		return k.fail(msg, fmt.Errorf("expected an object, got %T", structData))
	}

	compiled, err := k.schema()
	if err != nil {
		return k.fail(msg, fmt.Errorf("failed to load schema: %w", err))
	}
	binData, err := compiled.Serialize(ctx, values, k.parser.RunOptions()...)
	if err != nil {
		return k.fail(msg, fmt.Errorf("failed to serialize data: %w", err))
	}

	k.logger.Debugf("Successfully serialized data to %d bytes of binary data", len(binData))
	k.mSerialized.Incr(1)

	newMsg := msg.Copy()
	newMsg.SetBytes(binData)
	return service.MessageBatch{newMsg}, nil
}

func (k *BlockProcessor) schema() (*bbp.Compiled, error) {
	if k.inline != nil {
		return k.inline, nil
	}
	return k.loadSchema(k.config.SchemaPath)
}

// loadSchema loads and compiles a schema document.
func (k *BlockProcessor) loadSchema(path string) (*bbp.Compiled, error) {
	if cached, ok := k.schemaMap.Load(path); ok {
		k.logger.Tracef("Schema cache hit for path: %s", path)
		k.mCacheHits.Incr(1)
		return cached.(*bbp.Compiled), nil
	}

	k.logger.Debugf("Loading schema from path: %s", path)
	k.mCacheMisses.Incr(1)

	compiled, err := k.parser.Load(path)
	if err != nil {
		return nil, err
	}
	k.schemaMap.Store(path, compiled)
	k.logger.Debugf("Loaded and cached schema from: %s", path)
	return compiled, nil
}

// Close the processor resources
func (k *BlockProcessor) Close(ctx context.Context) error {
	k.logger.Debug("Closing binary_block processor and clearing schema cache")
	k.schemaMap.Clear()
	return nil
}
