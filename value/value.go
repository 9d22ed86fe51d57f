// Package value implements the tagged JSON value used throughout the query
// engine. It distinguishes MISSING (an absent key or index) from JSON null.
package value

import (
	"math"
	"sort"
	"strconv"
	"strings"
)

// Kind identifies the variant held by a Value. Kinds are declared in
// collation order.
type Kind uint8

const (
	KindMissing Kind = iota
	KindNull
	KindBool
	KindNumber
	KindString
	KindArray
	KindObject
)

var kindNames = [...]string{"missing", "null", "boolean", "number", "string", "array", "object"}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "kind(" + strconv.Itoa(int(k)) + ")"
}

// Value is an immutable JSON value. The zero Value is MISSING.
type Value struct {
	kind Kind
	b    bool
	n    float64
	s    string
	a    []Value
	o    map[string]Value
}

var (
	missing = Value{}
	null    = Value{kind: KindNull}
	vTrue   = Value{kind: KindBool, b: true}
	vFalse  = Value{kind: KindBool}
)

// Missing returns the MISSING sentinel.
func Missing() Value { return missing }

// Null returns JSON null.
func Null() Value { return null }

// Bool returns a boolean value.
func Bool(b bool) Value {
	if b {
		return vTrue
	}
	return vFalse
}

// Number returns a numeric value. NaN and infinities have no JSON form and
// become null.
func Number(f float64) Value {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return null
	}
	if f == 0 {
		f = 0 // fold negative zero
	}
	return Value{kind: KindNumber, n: f}
}

// Int is shorthand for Number(float64(i)).
func Int(i int) Value { return Number(float64(i)) }

// String returns a string value.
func String(s string) Value { return Value{kind: KindString, s: s} }

// Array returns an array value holding items. The slice is not copied.
func Array(items ...Value) Value {
	if items == nil {
		items = []Value{}
	}
	return Value{kind: KindArray, a: items}
}

// Object returns an object value. MISSING members are dropped.
func Object(fields map[string]Value) Value {
	o := make(map[string]Value, len(fields))
	for k, v := range fields {
		if v.kind != KindMissing {
			o[k] = v
		}
	}
	return Value{kind: KindObject, o: o}
}

func (v Value) Kind() Kind        { return v.kind }
func (v Value) IsMissing() bool   { return v.kind == KindMissing }
func (v Value) IsNull() bool      { return v.kind == KindNull }
func (v Value) AsBool() bool      { return v.b }
func (v Value) AsNumber() float64 { return v.n }
func (v Value) AsString() string  { return v.s }

// Items returns the elements of an array, or nil for other kinds.
func (v Value) Items() []Value {
	if v.kind != KindArray {
		return nil
	}
	return v.a
}

// Fields returns the members of an object, or nil for other kinds.
func (v Value) Fields() map[string]Value {
	if v.kind != KindObject {
		return nil
	}
	return v.o
}

// Keys returns the object's member names in sorted order.
func (v Value) Keys() []string {
	if v.kind != KindObject {
		return nil
	}
	keys := make([]string, 0, len(v.o))
	for k := range v.o {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Len returns the element count of an array or object, the byte length of
// a string, and 0 otherwise.
func (v Value) Len() int {
	switch v.kind {
	case KindArray:
		return len(v.a)
	case KindObject:
		return len(v.o)
	case KindString:
		return len(v.s)
	}
	return 0
}

// Get returns the named member of an object. Absent members and non-object
// receivers yield MISSING.
func (v Value) Get(key string) Value {
	if v.kind != KindObject {
		return missing
	}
	if m, ok := v.o[key]; ok {
		return m
	}
	return missing
}

// Index returns the i'th array element. Negative indexes count from the
// end. Out-of-range indexes and non-array receivers yield MISSING.
func (v Value) Index(i int) Value {
	if v.kind != KindArray {
		return missing
	}
	if i < 0 {
		i += len(v.a)
	}
	if i < 0 || i >= len(v.a) {
		return missing
	}
	return v.a[i]
}

// Truthy reports whether v counts as true in a boolean context.
func (v Value) Truthy() bool {
	switch v.kind {
	case KindBool:
		return v.b
	case KindNumber:
		return v.n != 0
	case KindString:
		return v.s != ""
	case KindArray:
		return len(v.a) > 0
	case KindObject:
		return len(v.o) > 0
	}
	return false
}

// Interface converts v to the plain Go form produced by encoding/json.
// MISSING converts to nil, like null.
func (v Value) Interface() interface{} {
	switch v.kind {
	case KindBool:
		return v.b
	case KindNumber:
		return v.n
	case KindString:
		return v.s
	case KindArray:
		out := make([]interface{}, len(v.a))
		for i, item := range v.a {
			out[i] = item.Interface()
		}
		return out
	case KindObject:
		out := make(map[string]interface{}, len(v.o))
		for k, m := range v.o {
			out[k] = m.Interface()
		}
		return out
	}
	return nil
}

// String renders v as JSON. MISSING renders as the bare word MISSING.
func (v Value) String() string {
	var sb strings.Builder
	v.writeJSON(&sb, true)
	return sb.String()
}
