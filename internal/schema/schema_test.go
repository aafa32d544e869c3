package schema

import (
	"reflect"
	"testing"
)

func TestDescriptor_DeltaAndAppend(t *testing.T) {
	t.Parallel()

	d, err := NewDescriptor("processed_campaign_data", []Column{
		{Name: "a", Type: TypeString},
		{Name: "b", Type: TypeInt},
	})
	if err != nil {
		t.Fatalf("NewDescriptor: %v", err)
	}

	incoming := []Column{
		{Name: "a", Type: TypeString},
		{Name: "b", Type: TypeInt},
		{Name: "c", Type: TypeFloat},
		{Name: "c", Type: TypeFloat}, // duplicate within one wave
	}

	delta := d.Delta(incoming)
	if len(delta) != 1 || delta[0].Name != "c" {
		t.Fatalf("Delta = %+v, want exactly column c", delta)
	}

	if err := d.Append(delta...); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if !reflect.DeepEqual(d.Names(), []string{"a", "b", "c"}) {
		t.Fatalf("Names = %v after append", d.Names())
	}

	// A later wave that stops sending "c" must not shrink the descriptor.
	if delta := d.Delta([]Column{{Name: "a", Type: TypeString}}); len(delta) != 0 {
		t.Fatalf("Delta after narrower wave = %+v, want empty", delta)
	}
	if !d.Has("c") {
		t.Fatal("column c disappeared from descriptor")
	}
}

func TestDescriptor_AppendIsIdempotentAndAdditiveOnly(t *testing.T) {
	t.Parallel()

	d, err := NewDescriptor("naming_keys", NamingColumns())
	if err != nil {
		t.Fatalf("NewDescriptor: %v", err)
	}
	n := len(d.Columns)

	// Re-appending a declared column with the same type is a no-op.
	if err := d.Append(Column{Name: "audience", Type: TypeString}); err != nil {
		t.Fatalf("idempotent append: %v", err)
	}
	if len(d.Columns) != n {
		t.Fatalf("column count changed on idempotent append: %d -> %d", n, len(d.Columns))
	}

	// Retyping is never allowed.
	if err := d.Append(Column{Name: "audience", Type: TypeInt}); err == nil {
		t.Fatal("expected retype to be rejected")
	}
}

func TestInferType(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		values []string
		want   ColumnType
	}{
		{"ints", []string{"1", "2", "", "30"}, TypeInt},
		{"floats", []string{"1.5", "2", "0.25"}, TypeFloat},
		{"timestamps", []string{"2024-03-01", "2024-03-02 10:00:00"}, TypeTimestamp},
		{"mixed below threshold", []string{"1", "x", "y", "z"}, TypeString},
		{"mostly numeric", []string{"1", "2", "3", "4", "oops"}, TypeInt},
		{"empty", nil, TypeString},
		{"all blank", []string{"", "  "}, TypeString},
	}

	for _, c := range cases {
		c := c
		t.Run(c.name, func(t *testing.T) {
			t.Parallel()
			if got := InferType(c.values); got != c.want {
				t.Fatalf("InferType(%v) = %s, want %s", c.values, got, c.want)
			}
		})
	}
}

func TestParseTimestamp_CanonicalUTC(t *testing.T) {
	t.Parallel()

	ts, ok := ParseTimestamp("2024-03-01 15:30:00")
	if !ok {
		t.Fatal("expected parse to succeed")
	}
	if ts.Location() != ts.UTC().Location() {
		t.Fatalf("timestamp not normalized to UTC: %v", ts)
	}
	if _, ok := ParseTimestamp("not a date"); ok {
		t.Fatal("expected parse to fail")
	}
}
