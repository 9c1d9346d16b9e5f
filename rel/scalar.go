package rel

import (
	"fmt"
	"strconv"
)

// scalarType is a Type implementation usable for both the built-in scalars
// (Int, String, Bool) and simple user-defined domain types registered
// through Namespace.DefineType (e.g. the CID/SID scenarios in spec.md).
type scalarType struct {
	tag string
}

func (t scalarType) Tag() string { return t.tag }

func (t scalarType) Equal(a, b Value) bool {
	return a.String() == b.String()
}

// NewScalarType returns a Type tagged with name whose values compare equal
// by their String() representation. User-defined domain types that are
// simple string/int wrappers (CID, SID, ...) are built on this.
func NewScalarType(tag string) Type {
	return scalarType{tag: tag}
}

// IntType is the built-in integer attribute type.
var IntType Type = scalarType{tag: "int"}

// StringType is the built-in text attribute type.
var StringType Type = scalarType{tag: "string"}

// BoolType is the built-in boolean attribute type.
var BoolType Type = scalarType{tag: "bool"}

// Int is a Value of IntType.
type Int int64

func (Int) Type() Type          { return IntType }
func (v Int) String() string    { return strconv.FormatInt(int64(v), 10) }
func (v Int) GoValue() int64    { return int64(v) }

// String is a Value of StringType, distinct from the stdlib string type it
// wraps so it can implement Value.
type String string

func (String) Type() Type       { return StringType }
func (v String) String() string { return string(v) }

// Bool is a Value of BoolType.
type Bool bool

func (Bool) Type() Type { return BoolType }
func (v Bool) String() string {
	if v {
		return "true"
	}
	return "false"
}

// Domain builds a simple user-defined scalar domain value (e.g. CID("C1"),
// SID("S1")) over a string representation, tagged with typ.
type Domain struct {
	typ Type
	val string
}

// NewDomain constructs a Domain value belonging to the named type.
func NewDomain(typeTag, val string) Domain {
	return Domain{typ: scalarType{tag: typeTag}, val: val}
}

func (d Domain) Type() Type     { return d.typ }
func (d Domain) String() string { return d.val }

func (d Domain) GoString() string {
	return fmt.Sprintf("%s(%q)", d.typ.Tag(), d.val)
}
