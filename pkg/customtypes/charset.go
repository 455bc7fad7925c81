package customtypes

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/encoding/unicode/utf32"

	"github.com/twinfer/bbp-plugin/pkg/bitio"
	"github.com/twinfer/bbp-plugin/pkg/blockparser"
	"github.com/twinfer/bbp-plugin/pkg/field"
)

var charsets = map[string]encoding.Encoding{
	"latin1":  charmap.ISO8859_1,
	"cp1251":  charmap.Windows1251,
	"cp437":   charmap.CodePage437,
	"sjis":    japanese.ShiftJIS,
	"utf16le": unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM),
	"utf16be": unicode.UTF16(unicode.BigEndian, unicode.IgnoreBOM),
	"utf32le": utf32.UTF32(utf32.LittleEndian, utf32.IgnoreBOM),
	"utf32be": utf32.UTF32(utf32.BigEndian, utf32.IgnoreBOM),
}

// Charset handles fixed size strings in a legacy or wide encoding. The ':'
// argument is the size in bytes, for example latin1:16 name. Short strings
// are padded with zero bytes on write and trailing NULs are dropped on read.
type Charset struct{}

func (Charset) Types() []string {
	names := make([]string, 0, len(charsets))
	for name := range charsets {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

func (Charset) IsAllowed(decl blockparser.CustomTypeDecl) bool {
	return decl.HasExtra && (decl.ExtraIsExpr || decl.ExtraValue >= 0)
}

func (Charset) ReadCustomField(_ context.Context, r *bitio.Reader, req blockparser.FieldRead) (field.Field, error) {
	if req.Extra < 0 {
		return nil, &blockparser.IllegalArgumentError{Field: req.Path, Msg: fmt.Sprintf("negative string size %d", req.Extra)}
	}
	dec := charsets[req.TypeName].NewDecoder()
	read := func() (string, error) {
		raw, err := r.ReadUByteArray(int(req.Extra))
		if err != nil {
			return "", err
		}
		s, err := dec.String(string(raw))
		if err != nil {
			return "", &blockparser.ParsingError{Field: req.Path, Msg: "cannot decode " + req.TypeName, Err: err}
		}
		return strings.TrimRight(s, "\x00"), nil
	}
	v, vs, err := readElements(r, req, read)
	if err != nil {
		return nil, err
	}
	if req.IsArray {
		return field.NewCustom(req.Name, req.Path, req.TypeName, vs), nil
	}
	return field.NewCustom(req.Name, req.Path, req.TypeName, v), nil
}

func (Charset) WriteCustomField(_ context.Context, w *bitio.Writer, req blockparser.FieldWrite) error {
	var values []string
	switch v := valueOf(req.Value).(type) {
	case string:
		values = []string{v}
	case []string:
		values = v
	case []any:
		for i, x := range v {
			s, ok := x.(string)
			if !ok {
				return fmt.Errorf("customtypes: %s: element %d is %T, want a string", req.Path, i, x)
			}
			values = append(values, s)
		}
	default:
		return fmt.Errorf("customtypes: %s: cannot write %T as %s", req.Path, v, req.TypeName)
	}

	enc := charsets[req.TypeName].NewEncoder()
	size := int(req.Extra)
	for _, s := range values {
		raw, err := enc.Bytes([]byte(s))
		if err != nil {
			return fmt.Errorf("customtypes: %s: encode %s: %w", req.Path, req.TypeName, err)
		}
		if len(raw) > size {
			return &blockparser.ParsingError{Field: req.Path, Msg: fmt.Sprintf("%d encoded bytes do not fit in %d", len(raw), size)}
		}
		for i := range size {
			var b uint8
			if i < len(raw) {
				b = raw[i]
			}
			if err := w.WriteUByte(b); err != nil {
				return err
			}
		}
	}
	return nil
}
