package tabular

// streaming.go provides the input readers applied before CSV parsing.
//
// Uploaded files commonly carry a UTF-8 BOM (Excel on Windows) or stray
// non-UTF-8 bytes from legacy encodings. Both are handled on the fly without
// buffering the whole file:
//
//   - the BOM (0xEF 0xBB 0xBF) is dropped if it is the first thing in the input
//   - each invalid UTF-8 byte is replaced with U+FFFD
//
// CountingReader reports how many raw bytes were consumed.

import (
	"bufio"
	"bytes"
	"io"
	"unicode/utf8"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// inputReader strips a leading BOM and sanitizes invalid UTF-8.
type inputReader struct {
	br         *bufio.Reader
	bomChecked bool
	pending    []byte // encoded rune bytes that did not fit the caller's buffer
	err        error  // sticky read error
}

// NewInputReader wraps r with BOM stripping and UTF-8 sanitization.
func NewInputReader(r io.Reader) io.Reader {
	return &inputReader{br: bufio.NewReader(r)}
}

// Read implements io.Reader.
func (s *inputReader) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}

	if !s.bomChecked {
		s.bomChecked = true
		if head, _ := s.br.Peek(len(utf8BOM)); bytes.Equal(head, utf8BOM) {
			s.br.Discard(len(utf8BOM))
		}
	}

	n := 0
	for n < len(p) {
		if len(s.pending) > 0 {
			c := copy(p[n:], s.pending)
			s.pending = s.pending[c:]
			n += c
			continue
		}
		if s.err != nil {
			break
		}

		r, _, err := s.br.ReadRune()
		if err != nil {
			s.err = err
			break
		}

		var buf [utf8.UTFMax]byte
		w := utf8.EncodeRune(buf[:], r)
		c := copy(p[n:], buf[:w])
		n += c
		if c < w {
			s.pending = append(s.pending[:0], buf[c:w]...)
		}
	}

	if n > 0 {
		return n, nil
	}
	return 0, s.err
}

// CountingReader tracks the number of bytes read from the wrapped reader.
type CountingReader struct {
	reader    io.Reader
	BytesRead int64
}

// NewCountingReader wraps r.
func NewCountingReader(r io.Reader) *CountingReader {
	return &CountingReader{reader: r}
}

// Read implements io.Reader.
func (r *CountingReader) Read(p []byte) (int, error) {
	n, err := r.reader.Read(p)
	r.BytesRead += int64(n)
	return n, err
}
