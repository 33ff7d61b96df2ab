package codec

import (
	"encoding"
	"math"
	"reflect"
	"strconv"
	"unicode/utf8"

	"github.com/goccy/go-json"
)

// MaxDepth is the deepest nesting ValueOf follows before it gives up. Cyclic maps, slices
// and pointers hit this limit.
const MaxDepth = 1000

var errInvalidUTF8 = &EncodeError{Reason: "invalid UTF-8 string"}

type jsonMarshaler interface {
	MarshalJSON() ([]byte, error)
}

// ValueOf converts application data into a Value.
//
// Maps with string keys, slices, arrays, pointers and scalars are converted directly. Types
// implementing json.Marshaler or encoding.TextMarshaler, structs, byte slices and maps
// with non-string keys go through go-json and are converted from its output, so struct
// tags are honored.
//
// Channels, functions, complex numbers, NaN, infinities, strings which are not valid UTF-8
// and cyclic data fail with an *EncodeError.
func ValueOf(data any) (Value, error) {
	return valueOf(data, 0)
}

func valueOf(data any, depth int) (Value, error) {
	if depth > MaxDepth {
		return Value{}, &EncodeError{Reason: "data nested deeper than " + strconv.Itoa(MaxDepth) + " levels (cyclic?)"}
	}
	switch d := data.(type) {
	case nil:
		return Null(), nil
	case Value:
		return d, checkFinite(d)
	case *Value:
		if d == nil {
			return Null(), nil
		}
		return *d, checkFinite(*d)
	case json.Number:
		v, err := numberValue(string(d))
		if err != nil {
			return Value{}, &EncodeError{Reason: "number " + string(d), Err: err}
		}
		return v, nil
	case jsonMarshaler, encoding.TextMarshaler:
		return viaJSON(data)
	}

	rv := reflect.ValueOf(data)
	switch rv.Kind() {
	case reflect.Bool:
		return Bool(rv.Bool()), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return Int(rv.Int()), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		u := rv.Uint()
		if u > math.MaxInt64 {
			return Float(float64(u)), nil
		}
		return Int(int64(u)), nil
	case reflect.Float32, reflect.Float64:
		f := rv.Float()
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return Value{}, &EncodeError{Reason: "float value " + strconv.FormatFloat(f, 'g', -1, 64)}
		}
		return Float(f), nil
	case reflect.String:
		if !utf8.ValidString(rv.String()) {
			return Value{}, errInvalidUTF8
		}
		return String(rv.String()), nil
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return Null(), nil
		}
		return valueOf(rv.Elem().Interface(), depth+1)
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return viaJSON(data)
		}
		if rv.IsNil() {
			return Null(), nil
		}
		o := make(map[string]Value, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			v, err := valueOf(iter.Value().Interface(), depth+1)
			if err != nil {
				return Value{}, err
			}
			k := iter.Key().String()
			if !utf8.ValidString(k) {
				return Value{}, errInvalidUTF8
			}
			o[k] = v
		}
		return Value{kind: KindObject, o: o}, nil
	case reflect.Slice, reflect.Array:
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			return viaJSON(data)
		}
		if rv.Kind() == reflect.Slice && rv.IsNil() {
			return Null(), nil
		}
		a := make([]Value, rv.Len())
		for i := range a {
			v, err := valueOf(rv.Index(i).Interface(), depth+1)
			if err != nil {
				return Value{}, err
			}
			a[i] = v
		}
		return Value{kind: KindArray, a: a}, nil
	case reflect.Struct:
		return viaJSON(data)
	}
	return Value{}, &EncodeError{Reason: "value of type " + rv.Type().String()}
}

// viaJSON serializes data with go-json and parses the result
func viaJSON(data any) (Value, error) {
	b, err := json.Marshal(data)
	if err != nil {
		return Value{}, &EncodeError{Reason: "value of type " + reflect.TypeOf(data).String(), Err: err}
	}
	v, err := parse(b)
	if err != nil {
		return Value{}, &EncodeError{Reason: "value of type " + reflect.TypeOf(data).String(), Err: err}
	}
	return v, nil
}

// checkFinite rejects values that hold NaN or infinities anywhere
func checkFinite(v Value) error {
	switch v.kind {
	case KindFloat:
		if math.IsNaN(v.f) || math.IsInf(v.f, 0) {
			return &EncodeError{Reason: "float value " + strconv.FormatFloat(v.f, 'g', -1, 64)}
		}
	case KindArray:
		for _, item := range v.a {
			if err := checkFinite(item); err != nil {
				return err
			}
		}
	case KindObject:
		for _, f := range v.o {
			if err := checkFinite(f); err != nil {
				return err
			}
		}
	}
	return nil
}
