package bitio

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// plainReader hides the Seek method of a bytes.Reader.
type plainReader struct{ r io.Reader }

func (p plainReader) Read(b []byte) (int, error) { return p.r.Read(b) }

// scanOnly exposes a bufio.Reader as a bare io.ByteScanner.
type scanOnly struct{ b *bufio.Reader }

func (s scanOnly) Read(p []byte) (int, error) { return s.b.Read(p) }
func (s scanOnly) ReadByte() (byte, error)    { return s.b.ReadByte() }
func (s scanOnly) UnreadByte() error          { return s.b.UnreadByte() }

type failingReader struct{ err error }

func (f failingReader) Read([]byte) (int, error) { return 0, f.err }

func TestReader_SingleBitOrderSymmetry(t *testing.T) {
	tests := []struct {
		name  string
		order BitOrder
		want  uint64
	}{
		{"lsb", LSBFirst, 0},
		{"msb", MSBFirst, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewReader(bytes.NewReader([]byte{0x80}), tt.order)
			v, err := r.ReadBits(1)
			require.NoError(t, err)
			assert.Equal(t, tt.want, v)
		})
	}
}

func TestReader_Nibbles(t *testing.T) {
	lsb := NewReader(bytes.NewReader([]byte{0x1F}), LSBFirst)
	lo, err := lsb.ReadBits(4)
	require.NoError(t, err)
	hi, err := lsb.ReadBits(4)
	require.NoError(t, err)
	assert.Equal(t, uint64(0xF), lo)
	assert.Equal(t, uint64(0x1), hi)

	msb := NewReader(bytes.NewReader([]byte{0x1F}), MSBFirst)
	first, err := msb.ReadBits(4)
	require.NoError(t, err)
	second, err := msb.ReadBits(4)
	require.NoError(t, err)
	assert.Equal(t, uint64(0x8), first)
	assert.Equal(t, uint64(0xF), second)
}

func TestReader_MSBReversesWholeBytes(t *testing.T) {
	r := NewReader(bytes.NewReader([]byte{0x01, 0x80, 0x00, 0x00, 0x01}), MSBFirst)
	b, err := r.ReadUByte()
	require.NoError(t, err)
	assert.Equal(t, uint8(0x80), b)

	v, err := r.ReadInt(BigEndian)
	require.NoError(t, err)
	assert.Equal(t, int32(0x01000080), v)
}

func TestReader_ByteOrders(t *testing.T) {
	data := []byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08}

	r := NewReader(bytes.NewReader(data), LSBFirst)
	be, err := r.ReadLong(BigEndian)
	require.NoError(t, err)
	assert.Equal(t, int64(0x0102030405060708), be)

	r = NewReader(bytes.NewReader(data), LSBFirst)
	le, err := r.ReadLong(LittleEndian)
	require.NoError(t, err)
	assert.Equal(t, int64(0x0807060504030201), le)

	r = NewReader(bytes.NewReader(data), LSBFirst)
	s, err := r.ReadUShort(LittleEndian)
	require.NoError(t, err)
	assert.Equal(t, uint16(0x0201), s)
	i, err := r.ReadInt(BigEndian)
	require.NoError(t, err)
	assert.Equal(t, int32(0x03040506), i)
	assert.Equal(t, int64(6), r.Counter())
}

func TestReader_UnalignedMultiByte(t *testing.T) {
	// 4 bits, then a byte that straddles two source bytes.
	r := NewReader(bytes.NewReader([]byte{0x21, 0x43}), LSBFirst)
	low, err := r.ReadBits(4)
	require.NoError(t, err)
	assert.Equal(t, uint64(0x1), low)
	assert.Equal(t, int64(0), r.Counter())

	b, err := r.ReadUByte()
	require.NoError(t, err)
	assert.Equal(t, uint8(0x32), b)
	assert.Equal(t, int64(1), r.Counter())
	assert.Equal(t, 4, r.BufferedBits())
}

func TestReader_EndOfDataIsDistinct(t *testing.T) {
	r := NewReader(bytes.NewReader([]byte{1, 2}), LSBFirst)
	_, err := r.ReadInt(BigEndian)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrEndOfData)

	ioErr := errors.New("connection reset")
	r = NewReader(failingReader{err: ioErr}, LSBFirst)
	_, err = r.ReadUByte()
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrEndOfData)
	assert.ErrorIs(t, err, ioErr)
}

func TestReader_WholeStreamArrays(t *testing.T) {
	r := NewReader(plainReader{bytes.NewReader([]byte{1, 2, 3, 4, 5})}, LSBFirst)
	first, err := r.ReadUByte()
	require.NoError(t, err)
	assert.Equal(t, uint8(1), first)

	rest, err := r.ReadUByteArray(-1)
	require.NoError(t, err)
	assert.Equal(t, []uint8{2, 3, 4, 5}, rest)

	ok, err := r.HasAvailableData()
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestReader_WholeStreamArrayPartialElement(t *testing.T) {
	r := NewReader(bytes.NewReader([]byte{0, 1, 0, 2, 9}), LSBFirst)
	_, err := r.ReadShortArray(-1, BigEndian)
	assert.ErrorIs(t, err, ErrEndOfData)
}

func TestReader_Align(t *testing.T) {
	r := NewReader(bytes.NewReader([]byte{0xFF, 1, 2, 3, 4, 5}), LSBFirst)
	_, err := r.ReadBits(3)
	require.NoError(t, err)
	require.NoError(t, r.Align(4))
	assert.Equal(t, int64(4), r.Counter())

	b, err := r.ReadUByte()
	require.NoError(t, err)
	assert.Equal(t, uint8(4), b)

	// Already aligned to 1, nothing consumed.
	require.NoError(t, r.Align(1))
	assert.Equal(t, int64(5), r.Counter())

	assert.ErrorIs(t, r.Align(8), ErrEndOfData)

	var argErr *ArgumentError
	assert.ErrorAs(t, r.Align(0), &argErr)
}

func TestReader_ResetCounterKeepsBits(t *testing.T) {
	r := NewReader(bytes.NewReader([]byte{0xA5, 0x01, 0x02}), LSBFirst)
	_, err := r.ReadBits(4)
	require.NoError(t, err)
	r.ResetCounter()
	assert.Equal(t, 4, r.BufferedBits())

	hi, err := r.ReadBits(4)
	require.NoError(t, err)
	assert.Equal(t, uint64(0xA), hi)
	assert.Equal(t, int64(1), r.Counter())

	require.NoError(t, r.Align(2))
	assert.Equal(t, int64(2), r.Counter())
	b, err := r.ReadUByte()
	require.NoError(t, err)
	assert.Equal(t, uint8(0x02), b)
}

func TestReader_Skip(t *testing.T) {
	r := NewReader(bytes.NewReader([]byte{1, 2, 3, 4}), LSBFirst)
	require.NoError(t, r.Skip(3))
	assert.Equal(t, int64(3), r.Counter())
	b, err := r.ReadUByte()
	require.NoError(t, err)
	assert.Equal(t, uint8(4), b)
	assert.ErrorIs(t, r.Skip(1), ErrEndOfData)
}

func TestReader_MarkReset(t *testing.T) {
	r := NewReader(bytes.NewReader([]byte{0x0F, 0x10, 0x20}), LSBFirst)
	_, err := r.ReadBits(4)
	require.NoError(t, err)
	require.NoError(t, r.Mark())

	first, err := r.ReadUShort(BigEndian)
	require.NoError(t, err)
	require.NoError(t, r.Reset())
	again, err := r.ReadUShort(BigEndian)
	require.NoError(t, err)
	assert.Equal(t, first, again)

	assert.ErrorIs(t, r.Reset(), ErrNoMark)

	plain := NewReader(plainReader{bytes.NewReader([]byte{1})}, LSBFirst)
	assert.ErrorIs(t, plain.Mark(), ErrMarkUnsupported)
}

func TestReader_ByteScannerIsNotReadAhead(t *testing.T) {
	src := scanOnly{bufio.NewReader(bytes.NewReader([]byte{1, 2, 3}))}

	first := NewReader(src, LSBFirst)
	b, err := first.ReadUByte()
	require.NoError(t, err)
	assert.Equal(t, uint8(1), b)
	ok, err := first.HasAvailableData()
	require.NoError(t, err)
	assert.True(t, ok)

	second := NewReader(src, LSBFirst)
	rest, err := second.ReadUByteArray(-1)
	require.NoError(t, err)
	assert.Equal(t, []uint8{2, 3}, rest)
	assert.ErrorIs(t, second.Mark(), ErrMarkUnsupported)
}

func TestReader_InvalidWidth(t *testing.T) {
	r := NewReader(bytes.NewReader([]byte{1}), LSBFirst)
	for _, n := range []int{0, -1, 65} {
		_, err := r.ReadBits(n)
		var argErr *ArgumentError
		assert.ErrorAs(t, err, &argErr, "width %d", n)
	}
}

func TestReader_StringPrefixes(t *testing.T) {
	r := NewReader(bytes.NewReader([]byte{0x00, 0xFF, 0x02, 'h', 'i', 0x90}), LSBFirst)

	s, null, err := r.ReadString(BigEndian)
	require.NoError(t, err)
	assert.False(t, null)
	assert.Equal(t, "", s)

	_, null, err = r.ReadString(BigEndian)
	require.NoError(t, err)
	assert.True(t, null)

	s, _, err = r.ReadString(BigEndian)
	require.NoError(t, err)
	assert.Equal(t, "hi", s)

	_, _, err = r.ReadString(BigEndian)
	var argErr *ArgumentError
	assert.ErrorAs(t, err, &argErr)
}
