package rawstore

import (
	"bytes"
	"io"
	"strings"
	"testing"
)

func TestWrapReaderSkipsBOM(t *testing.T) {
	input := append([]byte{0xEF, 0xBB, 0xBF}, []byte("Payer,Amount\n")...)
	r, _ := WrapReader(bytes.NewReader(input))

	got, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(got) != "Payer,Amount\n" {
		t.Errorf("got %q, want BOM stripped", got)
	}
}

func TestWrapReaderKeepsShortFiles(t *testing.T) {
	// Files shorter than the 3-byte BOM probe must survive intact.
	r, _ := WrapReader(strings.NewReader("ab"))
	got, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(got) != "ab" {
		t.Errorf("got %q, want %q", got, "ab")
	}
}

func TestWrapReaderSanitizesInvalidUTF8(t *testing.T) {
	tests := []struct {
		name  string
		input []byte
		want  string
	}{
		{
			name:  "valid passthrough",
			input: []byte("hello world"),
			want:  "hello world",
		},
		{
			name:  "invalid byte replaced",
			input: []byte("hello\x80world"),
			want:  "hello?world",
		},
		{
			name:  "latin-1 high byte replaced",
			input: []byte("caf\xe9"),
			want:  "caf?",
		},
		{
			name:  "multibyte rune preserved",
			input: []byte("caf\xc3\xa9"),
			want:  "café",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, _ := WrapReader(bytes.NewReader(tt.input))
			got, err := io.ReadAll(r)
			if err != nil {
				t.Fatalf("read: %v", err)
			}
			if string(got) != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestWrapReaderCountsBytes(t *testing.T) {
	r, bytesRead := WrapReader(strings.NewReader("abcdef"))
	if _, err := io.ReadAll(r); err != nil {
		t.Fatalf("read: %v", err)
	}
	if bytesRead() != 6 {
		t.Errorf("bytesRead() = %d, want 6", bytesRead())
	}
}

func TestWrapReaderSplitMultibyteAcrossReads(t *testing.T) {
	// A multi-byte rune split across Read calls must not be mangled.
	r, _ := WrapReader(&chunkedReader{data: []byte("caf\xc3\xa9 x"), chunk: 4})
	got, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(got) != "café x" {
		t.Errorf("got %q, want %q", got, "café x")
	}
}

// chunkedReader yields at most chunk bytes per Read to exercise boundary
// handling.
type chunkedReader struct {
	data  []byte
	chunk int
	off   int
}

func (c *chunkedReader) Read(p []byte) (int, error) {
	if c.off >= len(c.data) {
		return 0, io.EOF
	}
	n := c.chunk
	if n > len(p) {
		n = len(p)
	}
	if c.off+n > len(c.data) {
		n = len(c.data) - c.off
	}
	copy(p, c.data[c.off:c.off+n])
	c.off += n
	return n, nil
}
