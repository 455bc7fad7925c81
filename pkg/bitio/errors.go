package bitio

import (
	"errors"
	"fmt"
	"io"
)

var (
	// ErrEndOfData is returned whenever the underlying source cannot supply a required byte.
	// It is never returned for any other I/O failure.
	ErrEndOfData = errors.New("bitio: end of data")

	// ErrMarkUnsupported is returned by Mark and Reset when the source can't seek.
	ErrMarkUnsupported = errors.New("bitio: mark/reset needs an io.ReadSeeker source")

	// ErrNoMark is returned by Reset when no mark is pending.
	ErrNoMark = errors.New("bitio: reset without a pending mark")
)

// ArgumentError reports an out of range argument passed to a codec operation.
type ArgumentError struct {
	Op    string
	Value int
	Range string
}

func (e *ArgumentError) Error() string {
	return fmt.Sprintf("bitio: %s: value %d out of range %s", e.Op, e.Value, e.Range)
}

// mapEOF converts the end-of-file flavours used by io into ErrEndOfData.
func mapEOF(err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return ErrEndOfData
	}
	return err
}
