package bitio

import (
	"bufio"
	"errors"
	"io"

	"github.com/kaitai-io/kaitai_struct_go_runtime/kaitai"
)

// byteSource is the raw byte supply under a Reader.
type byteSource interface {
	readByte() (byte, error)
	available() (bool, error)
	pos() (int64, error)
	seek(pos int64) error
}

// streamSource reads through a kaitai stream, which gives us positioning for free.
type streamSource struct {
	s *kaitai.Stream
}

func (s *streamSource) readByte() (byte, error) {
	b, err := s.s.ReadU1()
	if err != nil {
		return 0, mapEOF(err)
	}
	return b, nil
}

func (s *streamSource) available() (bool, error) {
	eof, err := s.s.EOF()
	if err != nil {
		return false, err
	}
	return !eof, nil
}

func (s *streamSource) pos() (int64, error) {
	return s.s.Pos()
}

func (s *streamSource) seek(pos int64) error {
	_, err := s.s.Seek(pos, io.SeekStart)
	return err
}

// bufferedSource serves plain readers such as network connections.
type bufferedSource struct {
	r *bufio.Reader
}

func (s *bufferedSource) readByte() (byte, error) {
	b, err := s.r.ReadByte()
	if err != nil {
		return 0, mapEOF(err)
	}
	return b, nil
}

func (s *bufferedSource) available() (bool, error) {
	_, err := s.r.Peek(1)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, io.EOF) {
		return false, nil
	}
	return false, err
}

func (s *bufferedSource) pos() (int64, error) { return 0, ErrMarkUnsupported }

func (s *bufferedSource) seek(int64) error { return ErrMarkUnsupported }

// scannerSource reads straight from a caller owned io.ByteScanner and never
// consumes bytes past the last one it returns.
type scannerSource struct {
	s io.ByteScanner
}

func (s *scannerSource) readByte() (byte, error) {
	b, err := s.s.ReadByte()
	if err != nil {
		return 0, mapEOF(err)
	}
	return b, nil
}

func (s *scannerSource) available() (bool, error) {
	if _, err := s.s.ReadByte(); err != nil {
		if errors.Is(err, io.EOF) {
			return false, nil
		}
		return false, err
	}
	return true, s.s.UnreadByte()
}

func (s *scannerSource) pos() (int64, error) { return 0, ErrMarkUnsupported }

func (s *scannerSource) seek(int64) error { return ErrMarkUnsupported }

func newByteSource(r io.Reader) byteSource {
	switch src := r.(type) {
	case *kaitai.Stream:
		return &streamSource{s: src}
	case io.ReadSeeker:
		return &streamSource{s: kaitai.NewStream(src)}
	case *bufio.Reader:
		return &bufferedSource{r: src}
	case io.ByteScanner:
		return &scannerSource{s: src}
	default:
		return &bufferedSource{r: bufio.NewReader(r)}
	}
}
