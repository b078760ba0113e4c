// Package parse extracts normalized fields from the loosely shaped Congress.gov payloads.
//
// Every payload is first decoded into a generic JSON value and classified as an
// object, an array, or something else. Parsers walk explicit fallback branches over
// that classification and fail soft (absent fields become nil) except when the
// payload is not JSON or not an object/array at all, which yields a *ParseError.
package parse

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// ParseError reports a payload whose structure cannot be interpreted.
type ParseError struct {
	Kind string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s payload: %v", e.Kind, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

type shape int

const (
	shapeOther shape = iota
	shapeObject
	shapeArray
)

type value struct {
	shape  shape
	object map[string]any
	array  []any
}

// decode classifies raw JSON; non-container payloads are rejected.
func decode(kind string, raw []byte) (value, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return value{}, &ParseError{Kind: kind, Err: err}
	}
	out := classify(v)
	if out.shape == shapeOther {
		return value{}, &ParseError{Kind: kind, Err: fmt.Errorf("expected object or array, got %T", v)}
	}
	return out, nil
}

func classify(v any) value {
	switch t := v.(type) {
	case map[string]any:
		return value{shape: shapeObject, object: t}
	case []any:
		return value{shape: shapeArray, array: t}
	default:
		return value{shape: shapeOther}
	}
}

// objects keeps only the object elements of arr.
func objects(arr []any) []map[string]any {
	out := make([]map[string]any, 0, len(arr))
	for _, el := range arr {
		if m, ok := el.(map[string]any); ok {
			out = append(out, m)
		}
	}
	return out
}

// elements interprets v as a list of objects: an array keeps its object elements and a
// lone object counts as a one-element list.
func elements(v any) []map[string]any {
	c := classify(v)
	switch c.shape {
	case shapeArray:
		return objects(c.array)
	case shapeObject:
		return []map[string]any{c.object}
	default:
		return nil
	}
}

// text returns m[key] as a string pointer. Numbers are rendered in their JSON form;
// null, booleans, and containers are treated as absent.
func text(m map[string]any, key string) *string {
	if m == nil {
		return nil
	}
	switch t := m[key].(type) {
	case string:
		s := t
		return &s
	case json.Number:
		s := t.String()
		return &s
	default:
		return nil
	}
}

func object(m map[string]any, key string) map[string]any {
	if m == nil {
		return nil
	}
	inner, _ := m[key].(map[string]any)
	return inner
}
