package field

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound is returned by lookups that match nothing.
	ErrNotFound = errors.New("field not found")
	// ErrAmbiguous is returned by lookups that match more than one sibling.
	ErrAmbiguous = errors.New("ambiguous field lookup")
)

// Struct is an ordered list of child fields. The root of a parsed tree is an anonymous Struct.
type Struct struct {
	meta
	fields []Field
}

func NewStruct(name, path string, fields ...Field) *Struct {
	return &Struct{meta: meta{name, path}, fields: fields}
}

func (s *Struct) Kind() Kind        { return KindStruct }
func (s *Struct) Fields() []Field   { return s.fields }
func (s *Struct) NumFields() int    { return len(s.fields) }
func (s *Struct) Field(i int) Field { return s.fields[i] }

// Append adds a child. It is meant for tree builders, a finished tree must not be changed.
func (s *Struct) Append(f Field) { s.fields = append(s.fields, f) }

// StructArray is a repeated structure.
type StructArray struct {
	meta
	elems []*Struct
}

func NewStructArray(name, path string, elems []*Struct) *StructArray {
	return &StructArray{meta: meta{name, path}, elems: elems}
}

func (a *StructArray) Kind() Kind            { return KindStruct }
func (a *StructArray) Len() int              { return len(a.elems) }
func (a *StructArray) Elements() []*Struct   { return a.elems }
func (a *StructArray) Element(i int) *Struct { return a.elems[i] }

func (s *Struct) find(desc string, match func(Field) bool) (Field, error) {
	var found Field
	for _, f := range s.fields {
		if !match(f) {
			continue
		}
		if found != nil {
			return nil, fmt.Errorf("%w: %s", ErrAmbiguous, desc)
		}
		found = f
	}
	if found == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, desc)
	}
	return found, nil
}

// FindByName returns the direct child with the given name, ignoring case.
func (s *Struct) FindByName(name string) (Field, error) {
	return s.find(fmt.Sprintf("name %q", name), func(f Field) bool {
		return f.Name() != "" && strings.EqualFold(f.Name(), name)
	})
}

// FindByKind returns the only direct child of the given kind.
func (s *Struct) FindByKind(kind Kind) (Field, error) {
	return s.find(fmt.Sprintf("kind %s", kind), func(f Field) bool {
		return f.Kind() == kind
	})
}

// FindByNameAndKind combines FindByName and FindByKind.
func (s *Struct) FindByNameAndKind(name string, kind Kind) (Field, error) {
	return s.find(fmt.Sprintf("name %q kind %s", name, kind), func(f Field) bool {
		return f.Kind() == kind && strings.EqualFold(f.Name(), name)
	})
}

// FindByPath walks a dot separated path relative to s.
func (s *Struct) FindByPath(path string) (Field, error) {
	cur := s
	parts := strings.Split(path, ".")
	for i, part := range parts {
		f, err := cur.FindByName(part)
		if err != nil {
			return nil, err
		}
		if i == len(parts)-1 {
			return f, nil
		}
		next, ok := f.(*Struct)
		if !ok {
			return nil, fmt.Errorf("%w: path %q: %q is not a structure", ErrNotFound, path, part)
		}
		cur = next
	}
	return nil, fmt.Errorf("%w: empty path", ErrNotFound)
}

// Find looks up path and asserts the result type.
func Find[T Field](s *Struct, path string) (T, error) {
	var zero T
	f, err := s.FindByPath(path)
	if err != nil {
		return zero, err
	}
	t, ok := f.(T)
	if !ok {
		return zero, fmt.Errorf("field %q is %T, not %T", path, f, zero)
	}
	return t, nil
}
