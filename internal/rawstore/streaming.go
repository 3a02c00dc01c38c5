package rawstore

// streaming.go wraps the upload byte stream so ingestion runs in constant
// memory regardless of file size:
//
//   - bomReader strips a UTF-8 BOM (0xEF 0xBB 0xBF) from Windows exports
//   - utf8Sanitizer replaces invalid UTF-8 bytes on the fly
//   - countingReader tracks bytes read for audit payloads
//
// WrapReader applies the transforms in that order. Because the CSV reader
// pulls one record at a time through this chain, upstream reads pause while
// a batch flush is in flight and resume when it completes.

import (
	"io"
	"unicode/utf8"
)

// bomReader skips the UTF-8 byte order mark if present.
type bomReader struct {
	r       io.Reader
	checked bool
	buf     [3]byte
	pending []byte
}

func newBOMReader(r io.Reader) *bomReader {
	return &bomReader{r: r}
}

func (b *bomReader) Read(p []byte) (int, error) {
	if !b.checked {
		b.checked = true

		n, err := io.ReadFull(b.r, b.buf[:])
		if n > 0 {
			if n >= 3 && b.buf[0] == 0xEF && b.buf[1] == 0xBB && b.buf[2] == 0xBF {
				// BOM found, drop it.
			} else {
				b.pending = b.buf[:n]
			}
		}
		if err == io.ErrUnexpectedEOF {
			err = io.EOF
		}
		if err != nil && err != io.EOF {
			return 0, err
		}
	}

	if len(b.pending) > 0 {
		n := copy(p, b.pending)
		b.pending = b.pending[n:]
		return n, nil
	}

	return b.r.Read(p)
}

// utf8Sanitizer replaces invalid UTF-8 bytes with '?' as they stream past,
// buffering a possibly incomplete multi-byte sequence between reads.
type utf8Sanitizer struct {
	r       io.Reader
	pending []byte
}

func newUTF8Sanitizer(r io.Reader) *utf8Sanitizer {
	return &utf8Sanitizer{r: r, pending: make([]byte, 0, utf8.UTFMax)}
}

func (s *utf8Sanitizer) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}

	offset := 0
	if len(s.pending) > 0 {
		offset = copy(p, s.pending)
		s.pending = s.pending[:0]
	}

	n, err := s.r.Read(p[offset:])
	n += offset
	if n == 0 {
		return 0, err
	}

	if allASCII(p[:n]) {
		return n, err
	}

	return s.sanitize(p[:n], err == io.EOF), err
}

func allASCII(data []byte) bool {
	for _, b := range data {
		if b >= 0x80 {
			return false
		}
	}
	return true
}

// sanitize rewrites data in place and returns the number of valid bytes.
// When not at EOF, an incomplete trailing sequence is held back for the next
// read rather than being mangled.
func (s *utf8Sanitizer) sanitize(data []byte, atEOF bool) int {
	if utf8.Valid(data) {
		if !atEOF {
			if trailing := incompleteTrailing(data); trailing > 0 {
				s.pending = append(s.pending, data[len(data)-trailing:]...)
				return len(data) - trailing
			}
		}
		return len(data)
	}

	write := 0
	for read := 0; read < len(data); {
		r, size := utf8.DecodeRune(data[read:])

		if !atEOF && read+size >= len(data) && incompleteRune(data[read:]) {
			s.pending = append(s.pending, data[read:]...)
			return write
		}

		if r == utf8.RuneError && size == 1 {
			// Replacing with '?' keeps the output no longer than the
			// input, which in-place rewriting requires.
			data[write] = '?'
			write++
			read++
		} else {
			copy(data[write:], data[read:read+size])
			write += size
			read += size
		}
	}

	return write
}

func incompleteTrailing(data []byte) int {
	for i := 1; i <= 3 && i <= len(data); i++ {
		b := data[len(data)-i]
		if b >= 0xC0 {
			if i < seqLen(b) {
				return i
			}
			return 0
		}
		if b&0xC0 != 0x80 {
			return 0
		}
	}
	return 0
}

func seqLen(b byte) int {
	switch {
	case b < 0x80:
		return 1
	case b < 0xC0:
		return 0 // continuation byte
	case b < 0xE0:
		return 2
	case b < 0xF0:
		return 3
	default:
		return 4
	}
}

func incompleteRune(data []byte) bool {
	if len(data) == 0 {
		return false
	}
	return seqLen(data[0]) > len(data)
}

// countingReader tracks bytes read from the underlying reader.
type countingReader struct {
	r         io.Reader
	bytesRead int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.bytesRead += int64(n)
	return n, err
}

// WrapReader layers BOM skipping, UTF-8 sanitization, and byte counting
// around an upload stream. The returned counter reports bytes consumed.
func WrapReader(r io.Reader) (io.Reader, func() int64) {
	counter := &countingReader{r: newUTF8Sanitizer(newBOMReader(r))}
	return counter, func() int64 { return counter.bytesRead }
}
