// Package bitio reads and writes bit fields and byte-order aware scalars.
//
// Readers buffer plain io.Reader sources internally, so bytes past the last
// field read may be consumed from them. Pass an io.ReadSeeker, a *bufio.Reader
// or an io.ByteScanner to keep the position under the caller's control.
package bitio

import (
	"io"
	"math"
	"math/bits"
)

// Reader reads arbitrary width bit fields and byte-order aware scalars from a byte source.
//
// A Reader is not safe for concurrent use.
type Reader struct {
	src   byteSource
	order BitOrder

	bitBuf   uint8
	bitCount int
	counter  int64

	marks []readerMark
}

type readerMark struct {
	pos      int64
	bitBuf   uint8
	bitCount int
	counter  int64
}

// NewReader returns a Reader over r. Sources implementing io.ReadSeeker support Mark and Reset.
func NewReader(r io.Reader, order BitOrder) *Reader {
	return &Reader{src: newByteSource(r), order: order}
}

// BitOrder returns the bit order fixed at construction.
func (r *Reader) BitOrder() BitOrder { return r.order }

// Counter returns the number of whole bytes consumed since creation or the last ResetCounter.
func (r *Reader) Counter() int64 { return r.counter }

// ResetCounter restarts the byte counter. Buffered bits survive the reset.
func (r *Reader) ResetCounter() { r.counter = 0 }

// BufferedBits returns the number of not yet consumed bits of the current byte.
func (r *Reader) BufferedBits() int { return r.bitCount }

func (r *Reader) nextByte() (uint8, error) {
	b, err := r.src.readByte()
	if err != nil {
		return 0, err
	}
	if r.order == MSBFirst {
		b = bits.Reverse8(b)
	}
	return b, nil
}

// HasAvailableData reports whether at least one more bit can be read.
func (r *Reader) HasAvailableData() (bool, error) {
	if r.bitCount > 0 {
		return true, nil
	}
	return r.src.available()
}

// ReadBits reads an n-bit field, 1 <= n <= 64. Bit i of the result is the i-th bit taken from the stream.
func (r *Reader) ReadBits(n int) (uint64, error) {
	if n < 1 || n > 64 {
		return 0, &ArgumentError{Op: "read bits", Value: n, Range: "1..64"}
	}
	var v uint64
	for i := 0; i < n; {
		if r.bitCount == 0 {
			b, err := r.nextByte()
			if err != nil {
				return 0, err
			}
			r.bitBuf = b
			r.bitCount = 8
		}
		take := min(n-i, r.bitCount)
		v |= uint64(r.bitBuf&uint8(1<<take-1)) << i
		r.bitBuf >>= take
		r.bitCount -= take
		i += take
		if r.bitCount == 0 {
			r.counter++
		}
	}
	return v, nil
}

func (r *Reader) readUint(size int, order ByteOrder) (uint64, error) {
	var v uint64
	for i := 0; i < size; i++ {
		b, err := r.ReadBits(8)
		if err != nil {
			return 0, err
		}
		if order == LittleEndian {
			v |= b << (8 * i)
		} else {
			v = v<<8 | b
		}
	}
	return v, nil
}

// ReadBool reads one byte, any non zero value is true.
func (r *Reader) ReadBool() (bool, error) {
	v, err := r.ReadBits(8)
	return v != 0, err
}

// ReadUByte reads one unsigned byte.
func (r *Reader) ReadUByte() (uint8, error) {
	v, err := r.ReadBits(8)
	return uint8(v), err
}

// ReadSByte reads one signed byte.
func (r *Reader) ReadSByte() (int8, error) {
	v, err := r.ReadBits(8)
	return int8(v), err
}

func (r *Reader) ReadShort(order ByteOrder) (int16, error) {
	v, err := r.readUint(2, order)
	return int16(v), err
}

func (r *Reader) ReadUShort(order ByteOrder) (uint16, error) {
	v, err := r.readUint(2, order)
	return uint16(v), err
}

func (r *Reader) ReadInt(order ByteOrder) (int32, error) {
	v, err := r.readUint(4, order)
	return int32(v), err
}

func (r *Reader) ReadUInt(order ByteOrder) (uint32, error) {
	v, err := r.readUint(4, order)
	return uint32(v), err
}

func (r *Reader) ReadLong(order ByteOrder) (int64, error) {
	v, err := r.readUint(8, order)
	return int64(v), err
}

func (r *Reader) ReadFloat(order ByteOrder) (float32, error) {
	v, err := r.readUint(4, order)
	return math.Float32frombits(uint32(v)), err
}

func (r *Reader) ReadDouble(order ByteOrder) (float64, error) {
	v, err := r.readUint(8, order)
	return math.Float64frombits(v), err
}

// ReadString reads a length prefixed UTF-8 string. null is true for the 0xFF prefix.
func (r *Reader) ReadString(order ByteOrder) (s string, null bool, err error) {
	prefix, err := r.ReadUByte()
	if err != nil {
		return "", false, err
	}
	var n uint64
	switch {
	case prefix == 0:
		return "", false, nil
	case prefix == 0xFF:
		return "", true, nil
	case prefix < 0x80:
		n = uint64(prefix)
	case prefix >= 0x81 && prefix <= 0x84:
		if n, err = r.readUint(int(prefix&0x0F), order); err != nil {
			return "", false, err
		}
	default:
		return "", false, &ArgumentError{Op: "string length prefix", Value: int(prefix), Range: "0x00..0x84|0xFF"}
	}
	if n > math.MaxInt32 {
		return "", false, &ArgumentError{Op: "string length", Value: int(n), Range: "0..2147483647"}
	}
	buf := make([]byte, 0, min(n, 4096))
	for i := uint64(0); i < n; i++ {
		b, err := r.ReadUByte()
		if err != nil {
			return "", false, err
		}
		buf = append(buf, b)
	}
	return string(buf), false, nil
}

// readArray reads count elements, or every remaining element when count is negative.
func readArray[T any](r *Reader, count int, read func() (T, error)) ([]T, error) {
	if count >= 0 {
		out := make([]T, 0, min(count, 4096))
		for i := 0; i < count; i++ {
			v, err := read()
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		}
		return out, nil
	}
	var out []T
	for {
		ok, err := r.HasAvailableData()
		if err != nil {
			return nil, err
		}
		if !ok {
			return out, nil
		}
		v, err := read()
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
}

// ReadBitsArray reads count n-bit fields; a negative count reads until the data is exhausted.
func (r *Reader) ReadBitsArray(n, count int) ([]uint64, error) {
	if n < 1 || n > 64 {
		return nil, &ArgumentError{Op: "read bits", Value: n, Range: "1..64"}
	}
	return readArray(r, count, func() (uint64, error) { return r.ReadBits(n) })
}

func (r *Reader) ReadBoolArray(count int) ([]bool, error) {
	return readArray(r, count, r.ReadBool)
}

func (r *Reader) ReadUByteArray(count int) ([]uint8, error) {
	return readArray(r, count, r.ReadUByte)
}

func (r *Reader) ReadSByteArray(count int) ([]int8, error) {
	return readArray(r, count, r.ReadSByte)
}

func (r *Reader) ReadShortArray(count int, order ByteOrder) ([]int16, error) {
	return readArray(r, count, func() (int16, error) { return r.ReadShort(order) })
}

func (r *Reader) ReadUShortArray(count int, order ByteOrder) ([]uint16, error) {
	return readArray(r, count, func() (uint16, error) { return r.ReadUShort(order) })
}

func (r *Reader) ReadIntArray(count int, order ByteOrder) ([]int32, error) {
	return readArray(r, count, func() (int32, error) { return r.ReadInt(order) })
}

func (r *Reader) ReadUIntArray(count int, order ByteOrder) ([]uint32, error) {
	return readArray(r, count, func() (uint32, error) { return r.ReadUInt(order) })
}

func (r *Reader) ReadLongArray(count int, order ByteOrder) ([]int64, error) {
	return readArray(r, count, func() (int64, error) { return r.ReadLong(order) })
}

func (r *Reader) ReadFloatArray(count int, order ByteOrder) ([]float32, error) {
	return readArray(r, count, func() (float32, error) { return r.ReadFloat(order) })
}

func (r *Reader) ReadDoubleArray(count int, order ByteOrder) ([]float64, error) {
	return readArray(r, count, func() (float64, error) { return r.ReadDouble(order) })
}

// Align drops buffered bits and then consumes bytes until Counter is a multiple of n.
func (r *Reader) Align(n int) error {
	if n < 1 {
		return &ArgumentError{Op: "align", Value: n, Range: ">= 1"}
	}
	if r.bitCount > 0 {
		r.bitBuf, r.bitCount = 0, 0
		r.counter++
	}
	for r.counter%int64(n) != 0 {
		if _, err := r.nextByte(); err != nil {
			return err
		}
		r.counter++
	}
	return nil
}

// Skip consumes n bytes starting at the current bit position.
func (r *Reader) Skip(n int) error {
	if n < 0 {
		return &ArgumentError{Op: "skip", Value: n, Range: ">= 0"}
	}
	for i := 0; i < n; i++ {
		if _, err := r.ReadBits(8); err != nil {
			return err
		}
	}
	return nil
}

// Mark snapshots the reader state so that a later Reset can rewind to it. Marks nest.
//
// Mark and Reset are for callers that need lookahead around a parse. The block
// runtime never backtracks and does not use them.
func (r *Reader) Mark() error {
	pos, err := r.src.pos()
	if err != nil {
		return err
	}
	r.marks = append(r.marks, readerMark{pos: pos, bitBuf: r.bitBuf, bitCount: r.bitCount, counter: r.counter})
	return nil
}

// Reset rewinds to the most recent Mark and discards it.
func (r *Reader) Reset() error {
	if len(r.marks) == 0 {
		return ErrNoMark
	}
	m := r.marks[len(r.marks)-1]
	r.marks = r.marks[:len(r.marks)-1]
	if err := r.src.seek(m.pos); err != nil {
		return err
	}
	r.bitBuf, r.bitCount, r.counter = m.bitBuf, m.bitCount, m.counter
	return nil
}
