package blockparser

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"strings"

	"github.com/twinfer/bbp-plugin/pkg/field"
)

// BuildTree converts plain values, as produced by field.ToMap or decoded from
// JSON, into a field tree shaped by the schema. The result can be passed to Write.
//
// Keys are matched case-insensitively. Anonymous fields use the key "_N" where N
// is the position of the field inside its structure. A val field is taken only
// when present since Write recomputes it.
func (s *Schema) BuildTree(values map[string]any) (*field.Struct, error) {
	b := treeBuilder{schema: s}
	root := field.NewStruct("", "")
	if _, err := b.fill(root, 0, len(s.instrs), lowerKeys(values)); err != nil {
		return nil, err
	}
	return root, nil
}

type treeBuilder struct {
	schema *Schema
}

// fill appends the fields of instructions [from, to) to node and reports
// whether a missing value ended the tree early.
func (b *treeBuilder) fill(node *field.Struct, from, to int, src map[string]any) (bool, error) {
	for pc := from; pc < to; pc++ {
		in := &b.schema.instrs[pc]
		switch in.Op {
		case OpAlign, OpSkip, OpResetCounter, OpStructEnd:
			continue
		}

		key := strings.ToLower(in.Name)
		if key == "" {
			key = fmt.Sprintf("_%d", node.NumFields())
		}
		v, ok := src[key]
		if !ok {
			if in.Op == OpVal {
				continue
			}
			if b.schema.flags.Has(FlagSkipRemainingFieldsIfEOF) {
				return true, nil
			}
			return false, &ParsingError{Field: in.Path, Msg: "missing value"}
		}

		if in.Op == OpStructStart {
			stopped, err := b.structure(node, in, pc, v)
			if err != nil || stopped {
				return stopped, err
			}
			pc = in.Match
			continue
		}
		f, err := b.leaf(in, v)
		if err != nil {
			return false, err
		}
		node.Append(f)
	}
	return false, nil
}

func (b *treeBuilder) structure(parent *field.Struct, in *Instruction, pc int, v any) (bool, error) {
	if !in.IsArray() {
		m, ok := asMap(v)
		if !ok {
			return false, typeError(in, v)
		}
		node := field.NewStruct(in.Name, in.Path)
		stopped, err := b.fill(node, pc+1, in.Match, m)
		if err != nil {
			return false, err
		}
		if !stopped || node.NumFields() > 0 {
			parent.Append(node)
		}
		return stopped, nil
	}

	items, ok := asSlice(v)
	if !ok {
		return false, typeError(in, v)
	}
	elems := make([]*field.Struct, 0, len(items))
	for _, item := range items {
		m, ok := asMap(item)
		if !ok {
			return false, typeError(in, item)
		}
		node := field.NewStruct("", in.Path)
		stopped, err := b.fill(node, pc+1, in.Match, m)
		if err != nil {
			return false, err
		}
		if !stopped || node.NumFields() > 0 {
			elems = append(elems, node)
		}
		if stopped {
			parent.Append(field.NewStructArray(in.Name, in.Path, elems))
			return true, nil
		}
	}
	parent.Append(field.NewStructArray(in.Name, in.Path, elems))
	return false, nil
}

func (b *treeBuilder) leaf(in *Instruction, v any) (field.Field, error) {
	name, path, kind := in.Name, in.Path, in.Op.Kind()
	switch in.Op {
	case OpVal:
		n, ok := toInt64(v)
		if !ok {
			return nil, typeError(in, v)
		}
		return field.NewInt(name, path, field.KindVal, 0, n), nil
	case OpVar, OpCustom:
		typeName := in.TypeName
		if in.Op == OpVar {
			typeName = "var"
		}
		return field.NewCustom(name, path, typeName, normalize(v)), nil
	}

	if !in.IsArray() {
		return scalar(in, v)
	}
	items, ok := asSlice(v)
	if !ok {
		return nil, typeError(in, v)
	}
	switch in.Op {
	case OpBool:
		out := make([]bool, len(items))
		for i, item := range items {
			if out[i], ok = toBool(item); !ok {
				return nil, typeError(in, item)
			}
		}
		return field.NewBoolArray(name, path, out), nil
	case OpFloat, OpDouble:
		out := make([]float64, len(items))
		for i, item := range items {
			if out[i], ok = toFloat64(item); !ok {
				return nil, typeError(in, item)
			}
		}
		return field.NewFloatArray(name, path, kind, out), nil
	case OpString:
		out := make([]string, len(items))
		var nulls []bool
		for i, item := range items {
			if item == nil {
				if nulls == nil {
					nulls = make([]bool, len(items))
				}
				nulls[i] = true
				continue
			}
			if out[i], ok = item.(string); !ok {
				return nil, typeError(in, item)
			}
		}
		return field.NewStringArray(name, path, out, nulls), nil
	}
	out := make([]int64, len(items))
	for i, item := range items {
		if out[i], ok = toInt64(item); !ok {
			return nil, typeError(in, item)
		}
	}
	return field.NewIntArray(name, path, kind, constantBits(in), out), nil
}

func scalar(in *Instruction, v any) (field.Field, error) {
	name, path, kind := in.Name, in.Path, in.Op.Kind()
	switch in.Op {
	case OpBool:
		b, ok := toBool(v)
		if !ok {
			return nil, typeError(in, v)
		}
		return field.NewBool(name, path, b), nil
	case OpFloat, OpDouble:
		f, ok := toFloat64(v)
		if !ok {
			return nil, typeError(in, v)
		}
		return field.NewFloat(name, path, kind, f), nil
	case OpString:
		if v == nil {
			return field.NewString(name, path, "", true), nil
		}
		s, ok := v.(string)
		if !ok {
			return nil, typeError(in, v)
		}
		return field.NewString(name, path, s, false), nil
	}
	n, ok := toInt64(v)
	if !ok {
		return nil, typeError(in, v)
	}
	return field.NewInt(name, path, kind, constantBits(in), n), nil
}

func constantBits(in *Instruction) int {
	if in.Op == OpBit && in.Extra.Expr == nil {
		return int(in.Extra.Value)
	}
	return 0
}

func typeError(in *Instruction, v any) error {
	return &ParsingError{Field: in.Path, Msg: fmt.Sprintf("cannot use %T as %s", v, in.Op)}
}

func lowerKeys(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[strings.ToLower(k)] = v
	}
	return out
}

func asMap(v any) (map[string]any, bool) {
	m, ok := v.(map[string]any)
	if !ok {
		return nil, false
	}
	return lowerKeys(m), true
}

// asSlice accepts []any as well as typed slices such as []int64 or []map[string]any.
func asSlice(v any) ([]any, bool) {
	if s, ok := v.([]any); ok {
		return s, true
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}

func toBool(v any) (bool, bool) {
	if b, ok := v.(bool); ok {
		return b, true
	}
	n, ok := toInt64(v)
	return n != 0, ok
}

func toInt64(v any) (int64, bool) {
	switch v := v.(type) {
	case int:
		return int64(v), true
	case int8:
		return int64(v), true
	case int16:
		return int64(v), true
	case int32:
		return int64(v), true
	case int64:
		return v, true
	case uint:
		return int64(v), true
	case uint8:
		return int64(v), true
	case uint16:
		return int64(v), true
	case uint32:
		return int64(v), true
	case uint64:
		return int64(v), true
	case float64:
		if v != math.Trunc(v) {
			return 0, false
		}
		return int64(v), true
	case float32:
		return toInt64(float64(v))
	case bool:
		if v {
			return 1, true
		}
		return 0, true
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return n, true
		}
		f, err := v.Float64()
		if err != nil {
			return 0, false
		}
		return toInt64(f)
	}
	return 0, false
}

func toFloat64(v any) (float64, bool) {
	switch v := v.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	}
	n, ok := toInt64(v)
	return float64(n), ok
}

// normalize turns decoded JSON numbers into int64 where they are integral so
// custom type writers see the same shapes their readers produce.
func normalize(v any) any {
	switch v := v.(type) {
	case float64, json.Number:
		if n, ok := toInt64(v); ok {
			return n
		}
		return v
	case []any:
		ints := make([]int64, len(v))
		for i, item := range v {
			n, ok := toInt64(item)
			if !ok {
				return v
			}
			ints[i] = n
		}
		return ints
	}
	return v
}
