package bbp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/twinfer/bbp-plugin/pkg/bitio"
	"github.com/twinfer/bbp-plugin/pkg/blockparser"
	"github.com/twinfer/bbp-plugin/pkg/field"
)

// Parser loads schema documents from disk, compiles them once and caches the result.
type Parser struct {
	schemaCache map[string]cacheEntry
	cacheMutex  sync.RWMutex
	logger      *slog.Logger
	options     options

	hits, misses atomic.Int64
}

type cacheEntry struct {
	compiled *Compiled
	loadedAt time.Time
}

// options holds configuration for the parser
type options struct {
	logger        *slog.Logger
	enableCaching bool
	cacheTimeout  time.Duration
	debugMode     bool

	// compile settings; a call that changes one of them bypasses the cache
	bitOrder      *bitio.BitOrder
	flags         blockparser.Flags
	customTypes   []blockparser.CustomFieldType
	variables     map[string]any
	compileChange bool

	varProcessor blockparser.VarFieldProcessor
}

// Option is a function that configures parser options
type Option func(*options)

// WithLogger sets a custom logger
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithCaching enables schema caching. Entries older than timeout are reloaded;
// a zero timeout keeps them until ClearCache.
func WithCaching(timeout time.Duration) Option {
	return func(o *options) {
		o.enableCaching = true
		o.cacheTimeout = timeout
	}
}

// WithoutCaching loads the schema file on every call.
func WithoutCaching() Option {
	return func(o *options) {
		o.enableCaching = false
	}
}

// WithDebugMode enables debug logging
func WithDebugMode(enabled bool) Option {
	return func(o *options) {
		o.debugMode = enabled
	}
}

// WithBitOrder overrides the bit order named by schema documents.
func WithBitOrder(order bitio.BitOrder) Option {
	return func(o *options) {
		o.bitOrder = &order
		o.compileChange = true
	}
}

// WithFlags adds parser flags to those named by schema documents.
func WithFlags(flags blockparser.Flags) Option {
	return func(o *options) {
		o.flags |= flags
		o.compileChange = true
	}
}

// WithCustomTypes registers custom field types in addition to the builtin ones
// a document names.
func WithCustomTypes(types ...blockparser.CustomFieldType) Option {
	return func(o *options) {
		o.customTypes = append(o.customTypes, types...)
		o.compileChange = true
	}
}

// WithVariables makes vars visible to the externals expressions of documents.
func WithVariables(vars map[string]any) Option {
	return func(o *options) {
		o.variables = vars
		o.compileChange = true
	}
}

// WithVarFieldProcessor sets the processor for var fields.
func WithVarFieldProcessor(p blockparser.VarFieldProcessor) Option {
	return func(o *options) {
		o.varProcessor = p
	}
}

// defaultOptions returns the default configuration
func defaultOptions() options {
	return options{
		logger:        slog.Default(),
		enableCaching: true,
		cacheTimeout:  5 * time.Minute,
	}
}

// Global parser instance for convenience functions
var globalParser *Parser
var globalParserOnce sync.Once

// getGlobalParser returns a singleton parser instance
func getGlobalParser() *Parser {
	globalParserOnce.Do(func() {
		globalParser = NewParser()
	})
	return globalParser
}

// NewParser creates a new parser instance with the given options
func NewParser(opts ...Option) *Parser {
	options := defaultOptions()
	for _, opt := range opts {
		opt(&options)
	}
	if options.logger == nil {
		options.logger = slog.Default()
	}
	if options.debugMode {
		options.logger = options.logger.With("debug", true)
	}
	options.compileChange = false

	return &Parser{
		schemaCache: make(map[string]cacheEntry),
		logger:      options.logger,
		options:     options,
	}
}

// ParseBinary parses binary data using the specified schema document
func ParseBinary(data []byte, schemaPath string, opts ...Option) (map[string]any, error) {
	return getGlobalParser().ParseBinary(context.Background(), data, schemaPath, opts...)
}

// ParseBinaryWithContext parses binary data using the specified schema document with a context
func ParseBinaryWithContext(ctx context.Context, data []byte, schemaPath string, opts ...Option) (map[string]any, error) {
	return getGlobalParser().ParseBinary(ctx, data, schemaPath, opts...)
}

// SerializeToJSON parses binary data and converts it to JSON
func SerializeToJSON(data []byte, schemaPath string, opts ...Option) ([]byte, error) {
	return getGlobalParser().SerializeToJSON(context.Background(), data, schemaPath, opts...)
}

// SerializeToJSONWithContext parses binary data and converts it to JSON with a context
func SerializeToJSONWithContext(ctx context.Context, data []byte, schemaPath string, opts ...Option) ([]byte, error) {
	return getGlobalParser().SerializeToJSON(ctx, data, schemaPath, opts...)
}

// SerializeFromJSON converts JSON data back to binary format
func SerializeFromJSON(jsonData []byte, schemaPath string, opts ...Option) ([]byte, error) {
	return getGlobalParser().SerializeFromJSON(context.Background(), jsonData, schemaPath, opts...)
}

// SerializeFromJSONWithContext converts JSON data back to binary format with a context
func SerializeFromJSONWithContext(ctx context.Context, jsonData []byte, schemaPath string, opts ...Option) ([]byte, error) {
	return getGlobalParser().SerializeFromJSON(ctx, jsonData, schemaPath, opts...)
}

// ValidateSchema loads and compiles a schema document without parsing any data
func ValidateSchema(schemaPath string) error {
	return getGlobalParser().ValidateSchema(schemaPath)
}

// CompileScript compiles a bare block script with the given options.
func CompileScript(script string, opts ...Option) (*blockparser.Schema, error) {
	c, err := getGlobalParser().Compile(&Document{Script: script}, opts...)
	if err != nil {
		return nil, err
	}
	return c.Schema, nil
}

func (p *Parser) callOptions(opts []Option) options {
	options := p.options
	for _, opt := range opts {
		opt(&options)
	}
	if options.logger == nil {
		options.logger = p.logger
	}
	return options
}

func (o *options) runOptions() []blockparser.ParseOption {
	extra := []blockparser.ParseOption{blockparser.WithLogger(o.logger)}
	if o.varProcessor != nil {
		extra = append(extra, blockparser.WithVarFieldProcessor(o.varProcessor))
	}
	return extra
}

// Compile compiles a document with the parser configuration and opts.
func (p *Parser) Compile(doc *Document, opts ...Option) (*Compiled, error) {
	options := p.callOptions(opts)
	c, err := compile(doc, &options)
	if err != nil {
		return nil, fmt.Errorf("compiling schema: %w", err)
	}
	return c, nil
}

// ParseBinary parses binary data using the specified schema document
func (p *Parser) ParseBinary(ctx context.Context, data []byte, schemaPath string, opts ...Option) (map[string]any, error) {
	root, err := p.ParseTree(ctx, data, schemaPath, opts...)
	if err != nil {
		return nil, err
	}
	return field.ToMap(root), nil
}

// ParseTree parses binary data and returns the field tree.
func (p *Parser) ParseTree(ctx context.Context, data []byte, schemaPath string, opts ...Option) (*field.Struct, error) {
	options := p.callOptions(opts)
	c, err := p.loadSchema(schemaPath, &options)
	if err != nil {
		return nil, fmt.Errorf("loading schema: %w", err)
	}
	root, err := c.Parse(ctx, data, options.runOptions()...)
	if err != nil {
		return nil, fmt.Errorf("parsing data: %w", err)
	}
	return root, nil
}

// SerializeToJSON parses binary data and converts it to JSON
func (p *Parser) SerializeToJSON(ctx context.Context, data []byte, schemaPath string, opts ...Option) ([]byte, error) {
	result, err := p.ParseBinary(ctx, data, schemaPath, opts...)
	if err != nil {
		return nil, err
	}
	jsonData, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshaling to JSON: %w", err)
	}
	return jsonData, nil
}

// SerializeFromJSON converts JSON data back to binary format
func (p *Parser) SerializeFromJSON(ctx context.Context, jsonData []byte, schemaPath string, opts ...Option) ([]byte, error) {
	dec := json.NewDecoder(bytes.NewReader(jsonData))
	dec.UseNumber()
	var data map[string]any
	if err := dec.Decode(&data); err != nil {
		return nil, fmt.Errorf("unmarshaling JSON: %w", err)
	}
	return p.Serialize(ctx, data, schemaPath, opts...)
}

// Serialize writes plain values, shaped like the result of ParseBinary, to binary.
func (p *Parser) Serialize(ctx context.Context, data map[string]any, schemaPath string, opts ...Option) ([]byte, error) {
	options := p.callOptions(opts)
	c, err := p.loadSchema(schemaPath, &options)
	if err != nil {
		return nil, fmt.Errorf("loading schema: %w", err)
	}
	out, err := c.Serialize(ctx, data, options.runOptions()...)
	if err != nil {
		return nil, fmt.Errorf("serializing data: %w", err)
	}
	return out, nil
}

// Load returns the compiled schema document at schemaPath.
func (p *Parser) Load(schemaPath string, opts ...Option) (*Compiled, error) {
	options := p.callOptions(opts)
	return p.loadSchema(schemaPath, &options)
}

// RunOptions returns the per-call parse options implied by opts, for use with a Compiled.
func (p *Parser) RunOptions(opts ...Option) []blockparser.ParseOption {
	options := p.callOptions(opts)
	return options.runOptions()
}

// ValidateSchema loads and compiles a schema document without parsing any data
func (p *Parser) ValidateSchema(schemaPath string) error {
	options := p.callOptions(nil)
	_, err := p.loadSchema(schemaPath, &options)
	return err
}

// loadSchema loads a schema document from disk with caching support
func (p *Parser) loadSchema(schemaPath string, o *options) (*Compiled, error) {
	useCache := o.enableCaching && !o.compileChange
	if useCache {
		p.cacheMutex.RLock()
		entry, exists := p.schemaCache[schemaPath]
		p.cacheMutex.RUnlock()
		if exists && (o.cacheTimeout <= 0 || time.Since(entry.loadedAt) < o.cacheTimeout) {
			p.hits.Add(1)
			return entry.compiled, nil
		}
		p.misses.Add(1)
	}

	data, err := os.ReadFile(schemaPath)
	if err != nil {
		return nil, fmt.Errorf("reading schema file: %w", err)
	}
	doc, err := ParseDocument(data)
	if err != nil {
		return nil, err
	}
	compiled, err := compile(doc, o)
	if err != nil {
		return nil, fmt.Errorf("compiling schema %s: %w", schemaPath, err)
	}

	if useCache {
		p.cacheMutex.Lock()
		p.schemaCache[schemaPath] = cacheEntry{compiled: compiled, loadedAt: time.Now()}
		p.cacheMutex.Unlock()
	}
	return compiled, nil
}

// CacheStats reports how many schema lookups were served from the cache.
func (p *Parser) CacheStats() (hits, misses int64) {
	return p.hits.Load(), p.misses.Load()
}

// ClearCache clears the schema cache
func (p *Parser) ClearCache() {
	p.cacheMutex.Lock()
	defer p.cacheMutex.Unlock()
	p.schemaCache = make(map[string]cacheEntry)
}
