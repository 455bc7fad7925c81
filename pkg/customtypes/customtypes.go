// Package customtypes provides ready-made custom field types for block scripts
// and an Aggregator that combines several of them into one processor.
package customtypes

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/twinfer/bbp-plugin/pkg/bitio"
	"github.com/twinfer/bbp-plugin/pkg/blockparser"
	"github.com/twinfer/bbp-plugin/pkg/field"
)

// Builtin returns one instance of every processor in this package.
func Builtin() []blockparser.CustomFieldType {
	return []blockparser.CustomFieldType{Int24{}, Charset{}}
}

// Names lists every type name the builtin processors handle.
func Names() []string {
	var names []string
	for _, t := range Builtin() {
		names = append(names, t.Types()...)
	}
	slices.Sort(names)
	return names
}

// Aggregator routes each type name to the processor that registered it.
type Aggregator struct {
	names  []string
	byName map[string]blockparser.CustomFieldType
}

var _ blockparser.CustomFieldType = (*Aggregator)(nil)

// NewAggregator combines processors. A type name claimed twice is an error.
func NewAggregator(types ...blockparser.CustomFieldType) (*Aggregator, error) {
	a := &Aggregator{byName: make(map[string]blockparser.CustomFieldType)}
	for _, t := range types {
		for _, name := range t.Types() {
			if err := a.add(name, t); err != nil {
				return nil, err
			}
		}
	}
	return a, nil
}

// Select builds an Aggregator holding only the named builtin types.
func Select(names ...string) (*Aggregator, error) {
	known := make(map[string]blockparser.CustomFieldType)
	for _, t := range Builtin() {
		for _, name := range t.Types() {
			known[name] = t
		}
	}
	a := &Aggregator{byName: make(map[string]blockparser.CustomFieldType)}
	for _, name := range names {
		name = strings.ToLower(strings.TrimSpace(name))
		t, ok := known[name]
		if !ok {
			return nil, fmt.Errorf("customtypes: unknown type %q", name)
		}
		if err := a.add(name, t); err != nil {
			return nil, err
		}
	}
	return a, nil
}

func (a *Aggregator) add(name string, t blockparser.CustomFieldType) error {
	name = strings.ToLower(name)
	if _, dup := a.byName[name]; dup {
		return fmt.Errorf("customtypes: type %q is registered twice", name)
	}
	a.byName[name] = t
	a.names = append(a.names, name)
	return nil
}

func (a *Aggregator) Types() []string { return slices.Clone(a.names) }

func (a *Aggregator) IsAllowed(decl blockparser.CustomTypeDecl) bool {
	t, ok := a.byName[decl.TypeName]
	return ok && t.IsAllowed(decl)
}

func (a *Aggregator) ReadCustomField(ctx context.Context, r *bitio.Reader, req blockparser.FieldRead) (field.Field, error) {
	t, ok := a.byName[req.TypeName]
	if !ok {
		return nil, fmt.Errorf("customtypes: no processor for %q", req.TypeName)
	}
	return t.ReadCustomField(ctx, r, req)
}

func (a *Aggregator) WriteCustomField(ctx context.Context, w *bitio.Writer, req blockparser.FieldWrite) error {
	t, ok := a.byName[req.TypeName]
	if !ok {
		return fmt.Errorf("customtypes: no processor for %q", req.TypeName)
	}
	return t.WriteCustomField(ctx, w, req)
}

// readElements reads one value for scalars, ArrayLength values for arrays and
// values until the stream is exhausted when ArrayLength is negative.
func readElements[T any](r *bitio.Reader, req blockparser.FieldRead, read func() (T, error)) (T, []T, error) {
	var zero T
	if !req.IsArray {
		v, err := read()
		return v, nil, err
	}
	out := make([]T, 0, min(max(req.ArrayLength, 0), 4096))
	for i := 0; req.ArrayLength < 0 || i < req.ArrayLength; i++ {
		if req.ArrayLength < 0 {
			ok, err := r.HasAvailableData()
			if err != nil {
				return zero, nil, err
			}
			if !ok {
				break
			}
		}
		v, err := read()
		if err != nil {
			return zero, nil, err
		}
		out = append(out, v)
	}
	return zero, out, nil
}

// valueOf unwraps the value carried by the node being written.
func valueOf(f field.Field) any {
	if c, ok := f.(*field.Custom); ok {
		return c.Value()
	}
	return field.Value(f)
}
