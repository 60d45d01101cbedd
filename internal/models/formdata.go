package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Field is one flattened formData entry. Value is a string, float64, bool or nil.
type Field struct {
	Name  string
	Value any
}

// FormData is an ordered mapping from field name to scalar value.
// It encodes as a JSON object whose key order matches the slice order.
type FormData []Field

// Get returns the value stored under name.
func (f FormData) Get(name string) (any, bool) {
	for _, field := range f {
		if field.Name == name {
			return field.Value, true
		}
	}
	return nil, false
}

// Set replaces the value of an existing field or appends a new one.
func (f *FormData) Set(name string, value any) {
	for i := range *f {
		if (*f)[i].Name == name {
			(*f)[i].Value = value
			return
		}
	}
	*f = append(*f, Field{Name: name, Value: value})
}

// Delete removes name and returns its value.
func (f *FormData) Delete(name string) (any, bool) {
	for i, field := range *f {
		if field.Name == name {
			*f = append((*f)[:i], (*f)[i+1:]...)
			return field.Value, true
		}
	}
	return nil, false
}

// Keys returns the field names in order.
func (f FormData) Keys() []string {
	keys := make([]string, len(f))
	for i, field := range f {
		keys[i] = field.Name
	}
	return keys
}

// MarshalJSON keeps the field order.
func (f FormData) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, field := range f {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(field.Name)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(field.Value)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", field.Name, err)
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes a JSON object, flattening nested structure so that every
// value is a scalar. See ParseFormData.
func (f *FormData) UnmarshalJSON(data []byte) error {
	parsed, err := ParseFormData(data)
	if err != nil {
		return err
	}
	*f = parsed
	return nil
}

// ParseFormData decodes a JSON object into flattened, ordered form data.
//   - nested objects become dotted keys ("eligibility.gender")
//   - arrays of scalars become one string joined with "; "
//   - arrays containing objects or arrays are kept as compact JSON strings
func ParseFormData(data []byte) (FormData, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, fmt.Errorf("form data must be a JSON object")
	}
	var out FormData
	if err := flattenObject(trimmed, "", &out); err != nil {
		return nil, err
	}
	return out, nil
}

func flattenObject(raw []byte, prefix string, out *FormData) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	if _, err := dec.Token(); err != nil { // opening brace
		return err
	}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("unexpected token %v", tok)
		}
		name := key
		if prefix != "" {
			name = prefix + "." + key
		}

		var value json.RawMessage
		if err := dec.Decode(&value); err != nil {
			return fmt.Errorf("field %q: %w", name, err)
		}
		if err := flattenValue(value, name, out); err != nil {
			return err
		}
	}
	_, err := dec.Token() // closing brace
	return err
}

func flattenValue(raw json.RawMessage, name string, out *FormData) error {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		out.Set(name, nil)
		return nil
	}
	switch raw[0] {
	case '{':
		return flattenObject(raw, name, out)
	case '[':
		var items []any
		if err := json.Unmarshal(raw, &items); err != nil {
			return fmt.Errorf("field %q: %w", name, err)
		}
		out.Set(name, flattenArray(raw, items))
		return nil
	default:
		var v any
		if err := json.Unmarshal(raw, &v); err != nil {
			return fmt.Errorf("field %q: %w", name, err)
		}
		out.Set(name, v)
		return nil
	}
}

func flattenArray(raw json.RawMessage, items []any) any {
	if len(items) == 0 {
		return nil
	}
	parts := make([]string, 0, len(items))
	for _, item := range items {
		switch v := item.(type) {
		case map[string]any, []any:
			var compact bytes.Buffer
			if err := json.Compact(&compact, raw); err != nil {
				return string(raw)
			}
			return compact.String()
		case nil:
			continue
		default:
			parts = append(parts, FormatScalar(v))
		}
	}
	if len(parts) == 0 {
		return nil
	}
	return strings.Join(parts, "; ")
}

// FormatScalar renders a scalar value the way it appears in CSV cells and prompts.
func FormatScalar(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		return fmt.Sprint(t)
	}
}
