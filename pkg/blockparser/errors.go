package blockparser

import (
	"errors"
	"fmt"

	"github.com/twinfer/bbp-plugin/pkg/bitio"
)

var (
	// ErrCompilation matches every *CompilationError.
	ErrCompilation = errors.New("blockparser: compilation error")
	// ErrParsing matches every *ParsingError.
	ErrParsing = errors.New("blockparser: parsing error")
	// ErrIllegalArgument matches every *IllegalArgumentError.
	ErrIllegalArgument = errors.New("blockparser: illegal argument")
)

// CompilationError reports a script that cannot be compiled.
type CompilationError struct {
	Line   int
	Clause string
	Msg    string
	Err    error
}

func (e *CompilationError) Error() string {
	msg := e.Msg
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	if e.Clause == "" {
		return fmt.Sprintf("blockparser: line %d: %s", e.Line, msg)
	}
	return fmt.Sprintf("blockparser: line %d: %q: %s", e.Line, e.Clause, msg)
}

func (e *CompilationError) Is(target error) bool { return target == ErrCompilation }
func (e *CompilationError) Unwrap() error        { return e.Err }

// EndOfDataError is returned when the stream ends inside a field.
// Field is empty for anonymous fields.
type EndOfDataError struct {
	Field string
}

func (e *EndOfDataError) Error() string {
	if e.Field == "" {
		return "blockparser: end of data"
	}
	return fmt.Sprintf("blockparser: end of data while reading %q", e.Field)
}

func (e *EndOfDataError) Unwrap() error { return bitio.ErrEndOfData }

// ParsingError reports an illegal condition met while reading or writing.
type ParsingError struct {
	Field string
	Msg   string
	Err   error
}

func (e *ParsingError) Error() string {
	msg := e.Msg
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	if e.Field == "" {
		return "blockparser: " + msg
	}
	return fmt.Sprintf("blockparser: field %q: %s", e.Field, msg)
}

func (e *ParsingError) Is(target error) bool { return target == ErrParsing }
func (e *ParsingError) Unwrap() error        { return e.Err }

// IllegalArgumentError reports an out of range runtime parameter such as a bit width.
type IllegalArgumentError struct {
	Field string
	Msg   string
}

func (e *IllegalArgumentError) Error() string {
	if e.Field == "" {
		return "blockparser: " + e.Msg
	}
	return fmt.Sprintf("blockparser: field %q: %s", e.Field, e.Msg)
}

func (e *IllegalArgumentError) Is(target error) bool { return target == ErrIllegalArgument }

// streamError turns a codec failure into the error reported for the field at path.
func streamError(path string, err error) error {
	if errors.Is(err, bitio.ErrEndOfData) {
		return &EndOfDataError{Field: path}
	}
	var argErr *bitio.ArgumentError
	if errors.As(err, &argErr) {
		return &ParsingError{Field: path, Msg: "malformed data", Err: err}
	}
	return err
}
