package value

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// FromAny converts a decoded JSON tree (as produced by encoding/json into
// interface{}) to a Value. Go integer types are accepted as well.
func FromAny(x interface{}) (Value, error) {
	switch t := x.(type) {
	case nil:
		return null, nil
	case Value:
		return t, nil
	case bool:
		return Bool(t), nil
	case float64:
		return Number(t), nil
	case float32:
		return Number(float64(t)), nil
	case int:
		return Number(float64(t)), nil
	case int32:
		return Number(float64(t)), nil
	case int64:
		return Number(float64(t)), nil
	case uint64:
		return Number(float64(t)), nil
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return missing, fmt.Errorf("invalid number %q: %w", t, err)
		}
		return Number(f), nil
	case string:
		return String(t), nil
	case []interface{}:
		items := make([]Value, len(t))
		for i, e := range t {
			v, err := FromAny(e)
			if err != nil {
				return missing, err
			}
			items[i] = v
		}
		return Array(items...), nil
	case map[string]interface{}:
		fields := make(map[string]Value, len(t))
		for k, e := range t {
			v, err := FromAny(e)
			if err != nil {
				return missing, err
			}
			fields[k] = v
		}
		return Value{kind: KindObject, o: fields}, nil
	}
	return missing, fmt.Errorf("unsupported JSON type %T", x)
}

// MustFromAny is FromAny for literals known to be valid.
func MustFromAny(x interface{}) Value {
	v, err := FromAny(x)
	if err != nil {
		panic(err)
	}
	return v
}

// ParseJSON decodes a single JSON document.
func ParseJSON(data []byte) (Value, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	var x interface{}
	if err := dec.Decode(&x); err != nil {
		return missing, err
	}
	if dec.More() {
		return missing, fmt.Errorf("unexpected data after JSON value")
	}
	return FromAny(x)
}

// MarshalJSON encodes v. MISSING encodes as null since JSON has no
// representation for it.
func (v Value) MarshalJSON() ([]byte, error) {
	var sb strings.Builder
	v.writeJSON(&sb, false)
	return []byte(sb.String()), nil
}

// UnmarshalJSON decodes a JSON document into v.
func (v *Value) UnmarshalJSON(data []byte) error {
	parsed, err := ParseJSON(data)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

func (v Value) writeJSON(sb *strings.Builder, showMissing bool) {
	switch v.kind {
	case KindMissing:
		if showMissing {
			sb.WriteString("MISSING")
		} else {
			sb.WriteString("null")
		}
	case KindNull:
		sb.WriteString("null")
	case KindBool:
		sb.WriteString(strconv.FormatBool(v.b))
	case KindNumber:
		sb.WriteString(strconv.FormatFloat(v.n, 'g', -1, 64))
	case KindString:
		writeString(sb, v.s)
	case KindArray:
		sb.WriteByte('[')
		for i, item := range v.a {
			if i > 0 {
				sb.WriteByte(',')
			}
			item.writeJSON(sb, showMissing)
		}
		sb.WriteByte(']')
	case KindObject:
		sb.WriteByte('{')
		for i, k := range v.Keys() {
			if i > 0 {
				sb.WriteByte(',')
			}
			writeString(sb, k)
			sb.WriteByte(':')
			v.o[k].writeJSON(sb, showMissing)
		}
		sb.WriteByte('}')
	}
}

func writeString(sb *strings.Builder, s string) {
	b, _ := json.Marshal(s)
	sb.Write(b)
}
