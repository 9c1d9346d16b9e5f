package store

import (
	"encoding/json"
	"fmt"

	"github.com/bitdancer/dinsd/rel"
)

// Package-level value codec, spec.md §4.1: converts rel.Value scalars and
// rel.Row values to/from the backing store's column representation, and
// serializes opaque metadata blobs (headers, constraint sources, keys) as
// byte strings. Grounded on the teacher's storage layer, which is JSON
// native end to end (storage/inmem's Write() round-trips every value
// through util.Unmarshal); dinsd follows the same strategy rather than
// hand-rolling a binary format.

// column is the JSON-serializable form of one rel.Value.
type column struct {
	Tag string `json:"tag"`
	Val string `json:"val"`
}

// EncodeValue serializes a scalar value to its column representation.
func EncodeValue(v rel.Value) ([]byte, error) {
	return json.Marshal(column{Tag: v.Type().Tag(), Val: v.String()})
}

// DecodeValue parses a column value back into a rel.Value of the given
// type. Built-in types decode to their concrete Go representation;
// everything else decodes to a rel.Domain value tagged with typ.
func DecodeValue(buf []byte, typ rel.Type) (rel.Value, error) {
	var c column
	if err := json.Unmarshal(buf, &c); err != nil {
		return nil, fmt.Errorf("decoding column: %w", err)
	}
	switch typ {
	case rel.IntType:
		var i int64
		if _, err := fmt.Sscanf(c.Val, "%d", &i); err != nil {
			return nil, fmt.Errorf("decoding int column %q: %w", c.Val, err)
		}
		return rel.Int(i), nil
	case rel.StringType:
		return rel.String(c.Val), nil
	case rel.BoolType:
		return rel.Bool(c.Val == "true"), nil
	default:
		return rel.NewDomain(typ.Tag(), c.Val), nil
	}
}

// EncodeRow serializes a row's columns keyed by attribute name.
func EncodeRow(row rel.Row) (map[string][]byte, error) {
	out := make(map[string][]byte, len(row))
	for name, v := range row {
		buf, err := EncodeValue(v)
		if err != nil {
			return nil, err
		}
		out[name] = buf
	}
	return out, nil
}

// DecodeRow reconstructs a row from its stored columns against header.
func DecodeRow(cols map[string][]byte, header rel.Header) (rel.Row, error) {
	row := make(rel.Row, len(header))
	for name, typ := range header {
		buf, ok := cols[name]
		if !ok {
			return nil, fmt.Errorf("decoding row: missing column %q", name)
		}
		v, err := DecodeValue(buf, typ)
		if err != nil {
			return nil, fmt.Errorf("decoding row column %q: %w", name, err)
		}
		row[name] = v
	}
	return row, nil
}

// EncodeKey serializes a declared key's attribute-name tuple as a metadata
// blob, in the order given (SetKey stores keys already sorted by name),
// spec.md §4.1: "key declarations as sorted tuples of names."
func EncodeKey(attrs []string) ([]byte, error) {
	return json.Marshal(attrs)
}

// DecodeKey parses a key metadata blob back into its attribute-name tuple.
func DecodeKey(buf []byte) ([]string, error) {
	var attrs []string
	if err := json.Unmarshal(buf, &attrs); err != nil {
		return nil, fmt.Errorf("decoding key: %w", err)
	}
	return attrs, nil
}

// EncodeHeader serializes a header as a metadata blob: attribute name to
// type tag.
func EncodeHeader(h rel.Header) ([]byte, error) {
	tags := make(map[string]string, len(h))
	for name, typ := range h {
		tags[name] = typ.Tag()
	}
	return json.Marshal(tags)
}

// DecodeHeader parses a header metadata blob, resolving each type tag
// against ns (for user-defined domain types) and the built-in scalar
// types.
func DecodeHeader(buf []byte, ns *rel.Namespace) (rel.Header, error) {
	var tags map[string]string
	if err := json.Unmarshal(buf, &tags); err != nil {
		return nil, fmt.Errorf("decoding header: %w", err)
	}
	h := make(rel.Header, len(tags))
	for name, tag := range tags {
		h[name] = resolveType(tag, ns)
	}
	return h, nil
}

func resolveType(tag string, ns *rel.Namespace) rel.Type {
	switch tag {
	case rel.IntType.Tag():
		return rel.IntType
	case rel.StringType.Tag():
		return rel.StringType
	case rel.BoolType.Tag():
		return rel.BoolType
	}
	if t, ok := ns.LookupType(tag); ok {
		return t
	}
	return rel.NewScalarType(tag)
}

// encodeColumns/decodeColumns handle the wire format for one stored row's
// column map, used by the badger implementation directly (columns are
// already individually encoded by EncodeRow; this just wraps the map).
func encodeColumns(cols map[string][]byte) ([]byte, error) {
	return json.Marshal(cols)
}

func decodeColumns(buf []byte, out *map[string][]byte) error {
	return json.Unmarshal(buf, out)
}
