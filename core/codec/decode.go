package codec

import (
	"bytes"
	stdjson "encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/goccy/go-json"
)

var (
	errNotUTF8       = errors.New("payload is not valid UTF-8")
	errNumberOfRange = errors.New("number out of range")
)

// UnmarshalJSON implements json.Unmarshaler
func (v *Value) UnmarshalJSON(data []byte) error {
	parsed, err := parse(data)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// parse decodes one JSON text into a Value
func parse(payload []byte) (Value, error) {
	if !utf8.Valid(payload) {
		return Value{}, errNotUTF8
	}
	// go-json accepts truncated literals, leading zeros and raw control characters,
	// encoding/json is the strict syntax check
	if !stdjson.Valid(payload) {
		var discard any
		return Value{}, stdjson.Unmarshal(payload, &discard)
	}

	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return Value{}, err
	}
	return fromDecoded(raw)
}

// fromDecoded converts the output of a decoder in UseNumber mode
func fromDecoded(raw any) (Value, error) {
	switch r := raw.(type) {
	case nil:
		return Null(), nil
	case bool:
		return Bool(r), nil
	case string:
		return String(r), nil
	case json.Number:
		return numberValue(string(r))
	case float64:
		return Float(r), nil
	case []any:
		a := make([]Value, len(r))
		for i, item := range r {
			v, err := fromDecoded(item)
			if err != nil {
				return Value{}, err
			}
			a[i] = v
		}
		return Value{kind: KindArray, a: a}, nil
	case map[string]any:
		o := make(map[string]Value, len(r))
		for k, item := range r {
			v, err := fromDecoded(item)
			if err != nil {
				return Value{}, err
			}
			o[k] = v
		}
		return Value{kind: KindObject, o: o}, nil
	}
	return Value{}, fmt.Errorf("unexpected decoded type %T", raw)
}

// numberValue classifies a JSON number literal. Literals without fraction and exponent
// that fit into an int64 are integers.
func numberValue(n string) (Value, error) {
	if !strings.ContainsAny(n, ".eE") {
		if i, err := strconv.ParseInt(n, 10, 64); err == nil {
			return Int(i), nil
		}
	}
	f, err := strconv.ParseFloat(n, 64)
	if err != nil {
		return Value{}, fmt.Errorf("%w: %s", errNumberOfRange, n)
	}
	return Float(f), nil
}
