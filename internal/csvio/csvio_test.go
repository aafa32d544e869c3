package csvio

import (
	"context"
	"errors"
	"strings"
	"testing"
	"unicode/utf16"
)

func TestRead_PlainUTF8(t *testing.T) {
	t.Parallel()

	in := "Ad name,Amount spent (USD)\n banner_a ,12.5\nbanner_b,\n"
	f, err := Read(context.Background(), strings.NewReader(in))
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(f.Header) != 2 || f.Header[0] != "Ad name" {
		t.Fatalf("header = %v", f.Header)
	}
	if len(f.Rows) != 2 {
		t.Fatalf("rows = %d, want 2", len(f.Rows))
	}
	if f.Rows[0][0] != "banner_a" {
		t.Fatalf("cell not trimmed: %q", f.Rows[0][0])
	}
	if f.Lines[0] != 2 || f.Lines[1] != 3 {
		t.Fatalf("line numbers = %v", f.Lines)
	}
}

func TestRead_QuotedNewlineKeepsPhysicalLines(t *testing.T) {
	t.Parallel()

	in := "ad_name,notes\nbanner_a,\"first\nsecond\"\nbanner_b,plain\n"
	f, err := Read(context.Background(), strings.NewReader(in))
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(f.Rows) != 2 {
		t.Fatalf("rows = %d, want 2", len(f.Rows))
	}
	if f.Rows[0][1] != "first\nsecond" {
		t.Fatalf("quoted field mangled: %q", f.Rows[0][1])
	}
	// the quoted field spans lines 2-3, so banner_b starts on line 4
	if f.Lines[0] != 2 || f.Lines[1] != 4 {
		t.Fatalf("line numbers = %v, want [2 4]", f.Lines)
	}
}

func TestRead_UTF8BOMStripped(t *testing.T) {
	t.Parallel()

	in := "\uFEFFad_name,wave_number\nx,1\n"
	f, err := Read(context.Background(), strings.NewReader(in))
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if f.Header[0] != "ad_name" {
		t.Fatalf("BOM not stripped from header: %q", f.Header[0])
	}
}

func TestRead_UTF16LE(t *testing.T) {
	t.Parallel()

	text := "ad_name,clicks\nbanner,3\n"
	units := utf16.Encode([]rune(text))
	raw := []byte{0xFF, 0xFE}
	for _, u := range units {
		raw = append(raw, byte(u), byte(u>>8))
	}

	f, err := Read(context.Background(), strings.NewReader(string(raw)))
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if f.Header[1] != "clicks" || f.Rows[0][0] != "banner" {
		t.Fatalf("decoded wrong: header=%v rows=%v", f.Header, f.Rows)
	}
}

func TestRead_BadEncoding(t *testing.T) {
	t.Parallel()

	raw := string([]byte{'a', 0xFF, 0xFE, 0xFD, '\n'})
	_, err := Read(context.Background(), strings.NewReader(raw))
	if !errors.Is(err, ErrBadEncoding) {
		t.Fatalf("err = %v, want ErrBadEncoding", err)
	}
}

func TestRead_EmptyFile(t *testing.T) {
	t.Parallel()

	f, err := Read(context.Background(), strings.NewReader("ad_name,clicks\n"))
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if !f.Empty() {
		t.Fatal("expected header-only file to be empty")
	}
}
