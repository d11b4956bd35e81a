package objects

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// Attributes is an ordered bag of source fields. It is filled once while
// decoding a record and is read-only afterwards.
//
// Nested JSON objects decode to *Attributes, arrays to []any, numbers to
// json.Number.
type Attributes struct {
	keys   []string
	values map[string]any
}

// ParseAttributes decodes a single JSON object, keeping key order.
func ParseAttributes(data []byte) (*Attributes, error) {
	a := &Attributes{}
	if err := a.UnmarshalJSON(data); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *Attributes) set(key string, v any) {
	if a.values == nil {
		a.values = make(map[string]any)
	}
	if _, ok := a.values[key]; !ok {
		a.keys = append(a.keys, key)
	}
	a.values[key] = v
}

// Get returns the raw value stored under key.
func (a *Attributes) Get(key string) (any, bool) {
	if a == nil {
		return nil, false
	}
	v, ok := a.values[key]
	return v, ok
}

// Has reports whether key is present.
func (a *Attributes) Has(key string) bool {
	_, ok := a.Get(key)
	return ok
}

// String returns the scalar value under key as a string, or "" for
// missing keys and non-scalar values.
func (a *Attributes) String(key string) string {
	v, _ := a.Get(key)
	return scalarString(v)
}

// Bool returns the boolean under key. def is returned when the key is
// missing or not a boolean.
func (a *Attributes) Bool(key string, def bool) bool {
	v, ok := a.Get(key)
	if !ok {
		return def
	}
	b, ok := v.(bool)
	if !ok {
		return def
	}
	return b
}

// Object returns the nested object under key.
func (a *Attributes) Object(key string) *Attributes {
	v, _ := a.Get(key)
	o, _ := v.(*Attributes)
	return o
}

// List returns the array under key.
func (a *Attributes) List(key string) []any {
	v, _ := a.Get(key)
	l, _ := v.([]any)
	return l
}

// Strings returns the scalar elements of the array under key. A scalar
// value is returned as a one element slice.
func (a *Attributes) Strings(key string) []string {
	v, ok := a.Get(key)
	if !ok {
		return nil
	}
	if l, ok := v.([]any); ok {
		out := make([]string, 0, len(l))
		for _, item := range l {
			if s := scalarString(item); s != "" {
				out = append(out, s)
			}
		}
		return out
	}
	if s := scalarString(v); s != "" {
		return []string{s}
	}
	return nil
}

// References returns the identifiers held in the array under key. Elements
// may be bare strings or expanded objects; for objects the field named by
// field (usually "uid" or "name") is used.
func (a *Attributes) References(key, field string) []string {
	l := a.List(key)
	if l == nil {
		return a.Strings(key)
	}
	out := make([]string, 0, len(l))
	for _, item := range l {
		switch v := item.(type) {
		case *Attributes:
			if s := v.String(field); s != "" {
				out = append(out, s)
			}
		default:
			if s := scalarString(v); s != "" {
				out = append(out, s)
			}
		}
	}
	return out
}

// Keys returns the keys in source order.
func (a *Attributes) Keys() []string {
	if a == nil {
		return nil
	}
	out := make([]string, len(a.keys))
	copy(out, a.keys)
	return out
}

// Len returns the number of keys.
func (a *Attributes) Len() int {
	if a == nil {
		return 0
	}
	return len(a.keys)
}

// Without returns a copy with the given keys removed.
func (a *Attributes) Without(keys ...string) *Attributes {
	drop := make(map[string]bool, len(keys))
	for _, k := range keys {
		drop[k] = true
	}
	out := &Attributes{}
	if a == nil {
		return out
	}
	for _, k := range a.keys {
		if !drop[k] {
			out.set(k, a.values[k])
		}
	}
	return out
}

// UnmarshalJSON decodes a JSON object preserving key order.
func (a *Attributes) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("expected JSON object, got %v", tok)
	}
	a.keys = nil
	a.values = nil
	return decodeObject(dec, a)
}

// MarshalJSON encodes the attributes in source order.
func (a *Attributes) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	if a != nil {
		for i, k := range a.keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			kb, err := json.Marshal(k)
			if err != nil {
				return nil, err
			}
			buf.Write(kb)
			buf.WriteByte(':')
			vb, err := json.Marshal(a.values[k])
			if err != nil {
				return nil, err
			}
			buf.Write(vb)
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// decodeObject reads key/value pairs until the closing brace. The opening
// brace has already been consumed.
func decodeObject(dec *json.Decoder, a *Attributes) error {
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("expected object key, got %v", tok)
		}
		v, err := decodeValue(dec)
		if err != nil {
			return fmt.Errorf("field %q: %w", key, err)
		}
		a.set(key, v)
	}
	_, err := dec.Token()
	return err
}

func decodeValue(dec *json.Decoder) (any, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	switch v := tok.(type) {
	case json.Delim:
		switch v {
		case '{':
			nested := &Attributes{}
			if err := decodeObject(dec, nested); err != nil {
				return nil, err
			}
			return nested, nil
		case '[':
			list := []any{}
			for dec.More() {
				item, err := decodeValue(dec)
				if err != nil {
					return nil, err
				}
				list = append(list, item)
			}
			if _, err := dec.Token(); err != nil {
				return nil, err
			}
			return list, nil
		}
		return nil, fmt.Errorf("unexpected delimiter %v", v)
	default:
		return v, nil
	}
}

func scalarString(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case json.Number:
		return s.String()
	case bool:
		return strconv.FormatBool(s)
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	}
	return ""
}
