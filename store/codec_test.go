package store

import (
	"testing"

	"github.com/bitdancer/dinsd/rel"
)

func TestValueRoundTrip(t *testing.T) {
	tests := []rel.Value{
		rel.Int(87),
		rel.String("Anne"),
		rel.Bool(true),
		rel.NewDomain("CID", "C1"),
	}
	for _, v := range tests {
		buf, err := EncodeValue(v)
		if err != nil {
			t.Fatalf("encoding %v: %v", v, err)
		}
		got, err := DecodeValue(buf, v.Type())
		if err != nil {
			t.Fatalf("decoding %v: %v", v, err)
		}
		if got.String() != v.String() {
			t.Fatalf("round trip: want %v, got %v", v, got)
		}
	}
}

func TestRowRoundTrip(t *testing.T) {
	header := rel.Header{"student": rel.StringType, "course": rel.StringType, "mark": rel.IntType}
	row := rel.Row{"student": rel.String("S1"), "course": rel.String("C1"), "mark": rel.Int(87)}

	cols, err := EncodeRow(row)
	if err != nil {
		t.Fatal(err)
	}
	got, err := DecodeRow(cols, header)
	if err != nil {
		t.Fatal(err)
	}
	if !got.Equal(row) {
		t.Fatalf("want %v, got %v", row, got)
	}
}

func TestHeaderRoundTrip(t *testing.T) {
	ns := rel.NewNamespace()
	cidType := rel.NewScalarType("CID")
	ns.DefineType("CID", cidType)
	header := rel.Header{
		"course": cidType,
		"mark":   rel.IntType,
	}

	buf, err := EncodeHeader(header)
	if err != nil {
		t.Fatal(err)
	}
	got, err := DecodeHeader(buf, ns)
	if err != nil {
		t.Fatal(err)
	}
	if !got.Equal(header) {
		t.Fatalf("want %v, got %v", header, got)
	}
}

func TestKeyRoundTrip(t *testing.T) {
	buf, err := EncodeKey([]string{"student", "course"})
	if err != nil {
		t.Fatal(err)
	}
	got, err := DecodeKey(buf)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0] != "student" || got[1] != "course" {
		t.Fatalf("want [student course], got %v", got)
	}
}

func TestDecodeHeaderUnregisteredTypeFallsBackToScalar(t *testing.T) {
	ns := rel.NewNamespace()
	header := rel.Header{"course": rel.NewScalarType("CID")}
	buf, err := EncodeHeader(header)
	if err != nil {
		t.Fatal(err)
	}
	// ns has no CID registered: DecodeHeader must still resolve a usable
	// type rather than failing, so a relation loaded before its namespace
	// registers domain types doesn't become undecodable.
	got, err := DecodeHeader(buf, ns)
	if err != nil {
		t.Fatal(err)
	}
	if got["course"].Tag() != "CID" {
		t.Fatalf("want fallback scalar type tagged CID, got %v", got["course"])
	}
}
