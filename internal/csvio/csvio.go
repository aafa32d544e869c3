// Package csvio reads wave upload files into raw header and cell data.
//
// Uploads arrive from several export tools, so the decoder sniffs byte
// order marks and transparently converts UTF-16 input before parsing.
// Content that still is not valid UTF-8 after decoding is reported as
// ErrBadEncoding so the caller can fail the whole run instead of
// loading mojibake.
package csvio

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// ErrBadEncoding marks file content that could not be decoded to UTF-8.
var ErrBadEncoding = errors.New("csvio: file is not valid UTF-8")

// File is one fully read upload: the raw header row plus every data row,
// cells trimmed of edge whitespace. Header names are as found in the
// file; normalization happens downstream.
type File struct {
	Path   string
	Header []string
	// Rows holds data records in file order. Record i starts on
	// physical file line Lines[i] (1-based); a quoted field spanning
	// several lines keeps the record anchored to its first line.
	Rows  [][]string
	Lines []int
}

// Empty reports whether the file carried no data rows.
func (f *File) Empty() bool { return len(f.Rows) == 0 }

var (
	bomUTF8    = []byte{0xEF, 0xBB, 0xBF}
	bomUTF16LE = []byte{0xFF, 0xFE}
	bomUTF16BE = []byte{0xFE, 0xFF}
)

// decode converts raw upload bytes to UTF-8 text.
//
// Edge cases:
//   - UTF-16 with a BOM is converted via x/text.
//   - A UTF-8 BOM is stripped.
//   - Anything that is not valid UTF-8 after conversion yields
//     ErrBadEncoding.
func decode(raw []byte) ([]byte, error) {
	switch {
	case bytes.HasPrefix(raw, bomUTF16LE):
		dec := unicode.UTF16(unicode.LittleEndian, unicode.ExpectBOM).NewDecoder()
		out, _, err := transform.Bytes(dec, raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBadEncoding, err)
		}
		return out, nil
	case bytes.HasPrefix(raw, bomUTF16BE):
		dec := unicode.UTF16(unicode.BigEndian, unicode.ExpectBOM).NewDecoder()
		out, _, err := transform.Bytes(dec, raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBadEncoding, err)
		}
		return out, nil
	case bytes.HasPrefix(raw, bomUTF8):
		raw = raw[len(bomUTF8):]
	}
	if !utf8.Valid(raw) {
		return nil, ErrBadEncoding
	}
	return raw, nil
}

// ReadFile loads the CSV at path into memory.
//
// Errors: ErrBadEncoding (wrapped) for undecodable content, otherwise
// I/O and CSV parse errors with the path attached. Ragged records are
// tolerated; short records surface as absent cells downstream.
func ReadFile(ctx context.Context, path string) (*File, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	f, err := Read(ctx, bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	f.Path = path
	return f, nil
}

// Read parses CSV content from r. See ReadFile for semantics.
func Read(ctx context.Context, r io.Reader) (*File, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	text, err := decode(raw)
	if err != nil {
		return nil, err
	}

	cr := csv.NewReader(bytes.NewReader(text))
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	var f File
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			// csv.ParseError already carries the physical line
			return nil, err
		}
		// physical start line of the record, so multi-line quoted
		// fields do not skew downstream line anchors
		line, _ := cr.FieldPos(0)

		for i, v := range rec {
			if hasEdgeSpace(v) {
				rec[i] = strings.TrimSpace(v)
			}
		}

		if f.Header == nil {
			f.Header = rec
			continue
		}
		f.Rows = append(f.Rows, rec)
		f.Lines = append(f.Lines, line)
	}
	return &f, nil
}

func hasEdgeSpace(s string) bool {
	if s == "" {
		return false
	}
	return s != strings.TrimSpace(s)
}
