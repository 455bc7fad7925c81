package bitio

import (
	"io"
	"math"
	"math/bits"

	"github.com/kaitai-io/kaitai_struct_go_runtime/kaitai"
)

// Writer is the output twin of Reader. Bits are accumulated until a byte is complete;
// Flush pads a partial byte with zero bits.
//
// A Writer is not safe for concurrent use.
type Writer struct {
	out   *kaitai.Writer
	order BitOrder

	bitBuf   uint8
	bitCount int
	counter  int64
}

// NewWriter returns a Writer emitting to w.
func NewWriter(w io.Writer, order BitOrder) *Writer {
	return &Writer{out: kaitai.NewWriter(w), order: order}
}

// BitOrder returns the bit order fixed at construction.
func (w *Writer) BitOrder() BitOrder { return w.order }

// Counter returns the number of whole bytes emitted since creation or the last ResetCounter.
func (w *Writer) Counter() int64 { return w.counter }

// ResetCounter restarts the byte counter without touching pending bits.
func (w *Writer) ResetCounter() { w.counter = 0 }

// BufferedBits returns the number of pending bits not yet emitted.
func (w *Writer) BufferedBits() int { return w.bitCount }

func (w *Writer) emit(b uint8) error {
	if w.order == MSBFirst {
		b = bits.Reverse8(b)
	}
	if err := w.out.WriteU1(b); err != nil {
		return err
	}
	w.counter++
	return nil
}

// WriteBits writes the low n bits of v, 1 <= n <= 64, least significant bit first.
func (w *Writer) WriteBits(n int, v uint64) error {
	if n < 1 || n > 64 {
		return &ArgumentError{Op: "write bits", Value: n, Range: "1..64"}
	}
	for i := 0; i < n; {
		take := min(n-i, 8-w.bitCount)
		w.bitBuf |= uint8((v>>i)&(1<<take-1)) << w.bitCount
		w.bitCount += take
		i += take
		if w.bitCount == 8 {
			b := w.bitBuf
			w.bitBuf, w.bitCount = 0, 0
			if err := w.emit(b); err != nil {
				return err
			}
		}
	}
	return nil
}

func (w *Writer) writeUint(v uint64, size int, order ByteOrder) error {
	for i := 0; i < size; i++ {
		shift := 8 * i
		if order == BigEndian {
			shift = 8 * (size - 1 - i)
		}
		if err := w.WriteBits(8, v>>shift); err != nil {
			return err
		}
	}
	return nil
}

func (w *Writer) WriteBool(v bool) error {
	if v {
		return w.WriteBits(8, 1)
	}
	return w.WriteBits(8, 0)
}

func (w *Writer) WriteUByte(v uint8) error { return w.WriteBits(8, uint64(v)) }

func (w *Writer) WriteSByte(v int8) error { return w.WriteBits(8, uint64(uint8(v))) }

func (w *Writer) WriteShort(v int16, order ByteOrder) error {
	return w.writeUint(uint64(uint16(v)), 2, order)
}

func (w *Writer) WriteUShort(v uint16, order ByteOrder) error {
	return w.writeUint(uint64(v), 2, order)
}

func (w *Writer) WriteInt(v int32, order ByteOrder) error {
	return w.writeUint(uint64(uint32(v)), 4, order)
}

func (w *Writer) WriteUInt(v uint32, order ByteOrder) error {
	return w.writeUint(uint64(v), 4, order)
}

func (w *Writer) WriteLong(v int64, order ByteOrder) error {
	return w.writeUint(uint64(v), 8, order)
}

func (w *Writer) WriteFloat(v float32, order ByteOrder) error {
	return w.writeUint(uint64(math.Float32bits(v)), 4, order)
}

func (w *Writer) WriteDouble(v float64, order ByteOrder) error {
	return w.writeUint(math.Float64bits(v), 8, order)
}

// WriteString writes s with the length prefix understood by Reader.ReadString.
func (w *Writer) WriteString(s string, null bool, order ByteOrder) error {
	if null {
		return w.WriteUByte(0xFF)
	}
	n := len(s)
	var err error
	switch {
	case n < 0x80:
		err = w.WriteUByte(uint8(n))
	case n <= 0xFF:
		if err = w.WriteUByte(0x81); err == nil {
			err = w.writeUint(uint64(n), 1, order)
		}
	case n <= 0xFFFF:
		if err = w.WriteUByte(0x82); err == nil {
			err = w.writeUint(uint64(n), 2, order)
		}
	case n <= 0xFFFFFF:
		if err = w.WriteUByte(0x83); err == nil {
			err = w.writeUint(uint64(n), 3, order)
		}
	default:
		if err = w.WriteUByte(0x84); err == nil {
			err = w.writeUint(uint64(n), 4, order)
		}
	}
	if err != nil {
		return err
	}
	for i := 0; i < n; i++ {
		if err := w.WriteUByte(s[i]); err != nil {
			return err
		}
	}
	return nil
}

// Flush emits a partially filled byte, padding its unused bits with zeros.
func (w *Writer) Flush() error {
	if w.bitCount == 0 {
		return nil
	}
	b := w.bitBuf
	w.bitBuf, w.bitCount = 0, 0
	return w.emit(b)
}

// Align flushes pending bits and emits zero bytes until Counter is a multiple of n.
func (w *Writer) Align(n int) error {
	if n < 1 {
		return &ArgumentError{Op: "align", Value: n, Range: ">= 1"}
	}
	if err := w.Flush(); err != nil {
		return err
	}
	for w.counter%int64(n) != 0 {
		if err := w.emit(0); err != nil {
			return err
		}
	}
	return nil
}

// Skip emits n zero bytes starting at the current bit position.
func (w *Writer) Skip(n int) error {
	if n < 0 {
		return &ArgumentError{Op: "skip", Value: n, Range: ">= 0"}
	}
	for i := 0; i < n; i++ {
		if err := w.WriteBits(8, 0); err != nil {
			return err
		}
	}
	return nil
}
