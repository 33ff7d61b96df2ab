package codec

import (
	"strconv"
)

// Kind is the JSON kind held by a Value
type Kind uint8

// The kinds a Value can hold. The zero Value is of KindNull.
const (
	KindNull Kind = iota
	KindBool
	KindInt
	KindFloat
	KindString
	KindArray
	KindObject
)

// String returns the name of the kind
func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindString:
		return "string"
	case KindArray:
		return "array"
	case KindObject:
		return "object"
	default:
		return "kind(" + strconv.Itoa(int(k)) + ")"
	}
}

// Value is decoded JSON data. Only the field selected by kind is set.
//
// Values are immutable: constructors and accessors copy arrays and objects, so a Value can
// be handed to any number of goroutines.
type Value struct {
	kind Kind
	b    bool
	i    int64
	f    float64
	s    string
	a    []Value
	o    map[string]Value
}

// Null returns the null value
func Null() Value { return Value{} }

// Bool returns a boolean value
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Int returns an integer value
func Int(i int64) Value { return Value{kind: KindInt, i: i} }

// Float returns a floating point value. NaN and infinities can be stored, but they cannot
// be encoded.
func Float(f float64) Value { return Value{kind: KindFloat, f: f} }

// String returns a text value
func String(s string) Value { return Value{kind: KindString, s: s} }

// Array returns an ordered sequence of values
func Array(items ...Value) Value {
	a := make([]Value, len(items))
	copy(a, items)
	return Value{kind: KindArray, a: a}
}

// Object returns a mapping from keys to values
func Object(fields map[string]Value) Value {
	o := make(map[string]Value, len(fields))
	for k, v := range fields {
		o[k] = v
	}
	return Value{kind: KindObject, o: o}
}

// Kind returns the kind of the value
func (v Value) Kind() Kind { return v.kind }

// IsNull returns true for the null value
func (v Value) IsNull() bool { return v.kind == KindNull }

// AsBool returns the boolean and true if v is a boolean
func (v Value) AsBool() (bool, bool) {
	return v.b, v.kind == KindBool
}

// AsInt returns the integer and true if v is an integer. Floats are not converted.
func (v Value) AsInt() (int64, bool) {
	return v.i, v.kind == KindInt
}

// AsFloat returns the number as float64. Integers are converted.
func (v Value) AsFloat() (float64, bool) {
	switch v.kind {
	case KindFloat:
		return v.f, true
	case KindInt:
		return float64(v.i), true
	}
	return 0, false
}

// AsString returns the text and true if v is a string
func (v Value) AsString() (string, bool) {
	return v.s, v.kind == KindString
}

// AsArray returns a copy of the items and true if v is an array
func (v Value) AsArray() ([]Value, bool) {
	if v.kind != KindArray {
		return nil, false
	}
	a := make([]Value, len(v.a))
	copy(a, v.a)
	return a, true
}

// AsObject returns a copy of the fields and true if v is an object
func (v Value) AsObject() (map[string]Value, bool) {
	if v.kind != KindObject {
		return nil, false
	}
	o := make(map[string]Value, len(v.o))
	for k, f := range v.o {
		o[k] = f
	}
	return o, true
}

// Get follows a path of object keys and array indices:
//
//	v.Get("network", "up")
//	v.Get("items", "0")
//
// It returns false if any step of the path does not exist.
func (v Value) Get(keys ...string) (Value, bool) {
	for _, key := range keys {
		switch v.kind {
		case KindObject:
			next, ok := v.o[key]
			if !ok {
				return Value{}, false
			}
			v = next
		case KindArray:
			idx, err := strconv.Atoi(key)
			if err != nil || idx < 0 || idx >= len(v.a) {
				return Value{}, false
			}
			v = v.a[idx]
		default:
			return Value{}, false
		}
	}
	return v, true
}

// Len returns the number of items of an array or fields of an object, 0 otherwise
func (v Value) Len() int {
	switch v.kind {
	case KindArray:
		return len(v.a)
	case KindObject:
		return len(v.o)
	}
	return 0
}

// Interface converts the value into plain Go data: nil, bool, int64, float64, string,
// []any or map[string]any.
func (v Value) Interface() any {
	switch v.kind {
	case KindBool:
		return v.b
	case KindInt:
		return v.i
	case KindFloat:
		return v.f
	case KindString:
		return v.s
	case KindArray:
		a := make([]any, len(v.a))
		for i, item := range v.a {
			a[i] = item.Interface()
		}
		return a
	case KindObject:
		o := make(map[string]any, len(v.o))
		for k, f := range v.o {
			o[k] = f.Interface()
		}
		return o
	}
	return nil
}

// Equal reports whether v and other hold the same data. Object key order never matters.
func (v Value) Equal(other Value) bool {
	if v.kind != other.kind {
		return false
	}
	switch v.kind {
	case KindNull:
		return true
	case KindBool:
		return v.b == other.b
	case KindInt:
		return v.i == other.i
	case KindFloat:
		return v.f == other.f
	case KindString:
		return v.s == other.s
	case KindArray:
		if len(v.a) != len(other.a) {
			return false
		}
		for i := range v.a {
			if !v.a[i].Equal(other.a[i]) {
				return false
			}
		}
		return true
	case KindObject:
		if len(v.o) != len(other.o) {
			return false
		}
		for k, f := range v.o {
			g, ok := other.o[k]
			if !ok || !f.Equal(g) {
				return false
			}
		}
		return true
	}
	return false
}

// String returns the JSON text of the value
func (v Value) String() string {
	b, err := v.MarshalJSON()
	if err != nil {
		return "!(" + err.Error() + ")"
	}
	return string(b)
}
