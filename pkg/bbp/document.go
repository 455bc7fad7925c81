package bbp

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/twinfer/bbp-plugin/internal/cel"
	"github.com/twinfer/bbp-plugin/pkg/bitio"
	"github.com/twinfer/bbp-plugin/pkg/blockparser"
	"github.com/twinfer/bbp-plugin/pkg/customtypes"
	"github.com/twinfer/bbp-plugin/pkg/externals"
	"github.com/twinfer/bbp-plugin/pkg/field"
)

// Document is a schema file: a block script plus the settings it is compiled with.
//
//	id: png_chunk
//	bit-order: lsb
//	flags: [skip-remaining-fields-on-eof]
//	custom-types: [int24, latin1]
//	externals:
//	  body: "field('length') - 4"
//	size-policies:
//	  - pattern: "*"
//	    expr: "size <= 65536"
//	script: |
//	  int length; int type; byte [$body] data; int crc;
type Document struct {
	ID           string            `yaml:"id" json:"id"`
	BitOrder     string            `yaml:"bit-order" json:"bit_order"`
	Flags        []string          `yaml:"flags" json:"flags"`
	CustomTypes  []string          `yaml:"custom-types" json:"custom_types"`
	Externals    map[string]string `yaml:"externals" json:"externals"`
	SizePolicies []SizePolicy      `yaml:"size-policies" json:"size_policies"`
	Script       string            `yaml:"script" json:"script"`
}

// SizePolicy is a CEL rule applied to the array sizes of matching fields.
type SizePolicy struct {
	Pattern string `yaml:"pattern" json:"pattern"`
	Expr    string `yaml:"expr" json:"expr"`
}

// ParseDocument decodes a YAML schema document.
func ParseDocument(data []byte) (*Document, error) {
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decoding schema document: %w", err)
	}
	if strings.TrimSpace(doc.Script) == "" {
		return nil, fmt.Errorf("schema document %q has no script", doc.ID)
	}
	return &doc, nil
}

// Compiled is a Document ready to parse and write data.
type Compiled struct {
	Doc    *Document
	Schema *blockparser.Schema

	runOpts []blockparser.ParseOption
}

// ParseOptions returns the runtime options the document implies followed by extra.
func (c *Compiled) ParseOptions(extra ...blockparser.ParseOption) []blockparser.ParseOption {
	out := make([]blockparser.ParseOption, 0, len(c.runOpts)+len(extra))
	out = append(out, c.runOpts...)
	return append(out, extra...)
}

// Parse reads one block from data.
func (c *Compiled) Parse(ctx context.Context, data []byte, extra ...blockparser.ParseOption) (*field.Struct, error) {
	return c.Schema.ParseBytes(ctx, data, c.ParseOptions(extra...)...)
}

// Serialize writes plain values, shaped like the output of field.ToMap, as one block.
func (c *Compiled) Serialize(ctx context.Context, values map[string]any, extra ...blockparser.ParseOption) ([]byte, error) {
	tree, err := c.Schema.BuildTree(values)
	if err != nil {
		return nil, fmt.Errorf("building field tree: %w", err)
	}
	return c.Schema.WriteBytes(ctx, tree, c.ParseOptions(extra...)...)
}

// compile builds the schema and the externals and size policy helpers of doc.
func compile(doc *Document, o *options) (*Compiled, error) {
	order, err := bitio.ParseBitOrder(doc.BitOrder)
	if err != nil {
		return nil, err
	}
	if o.bitOrder != nil {
		order = *o.bitOrder
	}
	flags := o.flags
	for _, name := range doc.Flags {
		f, ok := blockparser.ParseFlag(name)
		if !ok {
			return nil, fmt.Errorf("unknown flag %q", name)
		}
		flags |= f
	}

	types := append([]blockparser.CustomFieldType(nil), o.customTypes...)
	if len(doc.CustomTypes) > 0 {
		agg, err := customtypes.Select(doc.CustomTypes...)
		if err != nil {
			return nil, err
		}
		types = append(types, agg)
	}

	schema, err := blockparser.Compile(doc.Script,
		blockparser.WithBitOrder(order),
		blockparser.WithFlags(flags),
		blockparser.WithCustomTypes(types...),
		blockparser.WithCompileLogger(o.logger),
	)
	if err != nil {
		return nil, err
	}

	c := &Compiled{Doc: doc, Schema: schema}
	if len(doc.Externals) > 0 {
		p, err := externals.New(doc.Externals, externals.WithVariables(o.variables), externals.WithLogger(o.logger))
		if err != nil {
			return nil, err
		}
		c.runOpts = append(c.runOpts, blockparser.WithExternalValueProvider(p))
	}
	if len(doc.SizePolicies) > 0 {
		rules := make([]cel.Rule, len(doc.SizePolicies))
		for i, sp := range doc.SizePolicies {
			rules[i] = cel.Rule{Pattern: sp.Pattern, Expr: sp.Expr}
		}
		policy, err := cel.NewSizePolicy(nil, o.logger, rules...)
		if err != nil {
			return nil, fmt.Errorf("size policies: %w", err)
		}
		c.runOpts = append(c.runOpts, blockparser.WithArraySizeController(policy))
	}
	o.logger.Debug("Compiled schema document", slog.String("id", doc.ID), slog.Int("instructions", len(schema.Instructions())))
	return c, nil
}
