package codec

import (
	"bytes"
	"math"
	"sort"
	"strconv"
	"unicode/utf8"

	"github.com/goccy/go-json"
)

// MarshalJSON implements json.Marshaler. Object keys are written in sorted order and floats
// always carry a fraction or an exponent.
func (v Value) MarshalJSON() ([]byte, error) {
	return appendValue(make([]byte, 0, 64), v)
}

func appendValue(dst []byte, v Value) ([]byte, error) {
	switch v.kind {
	case KindNull:
		return append(dst, "null"...), nil
	case KindBool:
		return strconv.AppendBool(dst, v.b), nil
	case KindInt:
		return strconv.AppendInt(dst, v.i, 10), nil
	case KindFloat:
		return appendFloat(dst, v.f)
	case KindString:
		return appendString(dst, v.s)
	case KindArray:
		dst = append(dst, '[')
		for i, item := range v.a {
			if i > 0 {
				dst = append(dst, ',')
			}
			var err error
			if dst, err = appendValue(dst, item); err != nil {
				return nil, err
			}
		}
		return append(dst, ']'), nil
	case KindObject:
		keys := make([]string, 0, len(v.o))
		for k := range v.o {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		dst = append(dst, '{')
		for i, k := range keys {
			if i > 0 {
				dst = append(dst, ',')
			}
			var err error
			if dst, err = appendString(dst, k); err != nil {
				return nil, err
			}
			dst = append(dst, ':')
			if dst, err = appendValue(dst, v.o[k]); err != nil {
				return nil, err
			}
		}
		return append(dst, '}'), nil
	}
	return nil, &EncodeError{Reason: "value of " + v.kind.String()}
}

func appendFloat(dst []byte, f float64) ([]byte, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, &EncodeError{Reason: "float value " + strconv.FormatFloat(f, 'g', -1, 64)}
	}
	start := len(dst)
	dst = strconv.AppendFloat(dst, f, 'g', -1, 64)
	// a float must not read back as an integer
	if !bytes.ContainsAny(dst[start:], ".eE") {
		dst = append(dst, ".0"...)
	}
	return dst, nil
}

func appendString(dst []byte, s string) ([]byte, error) {
	// go-json would replace invalid bytes with U+FFFD
	if !utf8.ValidString(s) {
		return nil, &EncodeError{Reason: "invalid UTF-8 string"}
	}
	b, err := json.Marshal(s)
	if err != nil {
		return nil, &EncodeError{Reason: "string", Err: err}
	}
	return append(dst, b...), nil
}
