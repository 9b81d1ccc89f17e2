package validation

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"github.com/santhosh-tekuri/jsonschema/v6/kind"
	"github.com/spf13/cast"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// maxCoercionPasses bounds the validate/coerce loop.
const maxCoercionPasses = 8

var printer = message.NewPrinter(language.English)

// JSONSchema validates values against a compiled JSON Schema document.
//
// Request parts that arrive as strings (params, query, headers, cookies)
// are coerced to integers, numbers or booleans where the schema asks for
// them, so "?page=2" satisfies {"type": "integer"}.
type JSONSchema struct {
	schema *jsonschema.Schema
	coerce bool
}

// NewJSONSchema compiles a JSON Schema. The document may be a JSON string,
// a byte slice, or an already decoded value such as map[string]any.
func NewJSONSchema(doc any) (*JSONSchema, error) {
	var parsed any
	switch d := doc.(type) {
	case string:
		if err := json.Unmarshal([]byte(d), &parsed); err != nil {
			return nil, fmt.Errorf("invalid schema JSON: %w", err)
		}
	case []byte:
		if err := json.Unmarshal(d, &parsed); err != nil {
			return nil, fmt.Errorf("invalid schema JSON: %w", err)
		}
	default:
		parsed = normalize(d)
	}

	compiler := jsonschema.NewCompiler()
	compiler.AssertFormat()
	if err := compiler.AddResource("schema.json", parsed); err != nil {
		return nil, fmt.Errorf("failed to add schema resource: %w", err)
	}
	schema, err := compiler.Compile("schema.json")
	if err != nil {
		return nil, fmt.Errorf("failed to compile schema: %w", err)
	}
	return &JSONSchema{schema: schema, coerce: true}, nil
}

// MustJSONSchema is like NewJSONSchema but panics on error.
func MustJSONSchema(doc any) *JSONSchema {
	s, err := NewJSONSchema(doc)
	if err != nil {
		panic(err)
	}
	return s
}

// Strict disables string coercion.
func (s *JSONSchema) Strict() *JSONSchema {
	return &JSONSchema{schema: s.schema, coerce: false}
}

func (s *JSONSchema) strict() Schema {
	if s == nil {
		return s
	}
	return s.Strict()
}

// Validate implements Schema. The returned value is the JSON form of the
// input after coercion.
func (s *JSONSchema) Validate(_ context.Context, value any) (any, error) {
	inst := normalize(value)
	err := s.schema.Validate(inst)

	copied := false
	for pass := 0; err != nil && s.coerce && pass < maxCoercionPasses; pass++ {
		verr, ok := err.(*jsonschema.ValidationError)
		if !ok {
			break
		}
		if !copied {
			inst = deepCopy(inst)
			copied = true
		}
		var changed bool
		inst, changed = coerceFromErrors(inst, verr)
		if !changed {
			break
		}
		err = s.schema.Validate(inst)
	}

	if err != nil {
		if verr, ok := err.(*jsonschema.ValidationError); ok {
			return nil, formatSchemaErrors(verr)
		}
		return nil, &Error{Issues: []Issue{{Message: err.Error()}}}
	}
	return inst, nil
}

// formatSchemaErrors flattens the ValidationError tree into issues.
func formatSchemaErrors(verr *jsonschema.ValidationError) *Error {
	var result Error
	collectSchemaErrors(verr, &result)
	if len(result.Issues) == 0 {
		result.Add("", verr.Error())
	}
	return &result
}

func collectSchemaErrors(verr *jsonschema.ValidationError, result *Error) {
	if verr == nil {
		return
	}
	if len(verr.Causes) == 0 {
		if req, ok := verr.ErrorKind.(*kind.Required); ok {
			for _, name := range req.Missing {
				path := append(append([]string(nil), verr.InstanceLocation...), name)
				result.Add(joinPath(path), "is required")
			}
			return
		}
		result.Add(joinPath(verr.InstanceLocation), verr.ErrorKind.LocalizedString(printer))
		return
	}
	for _, cause := range verr.Causes {
		collectSchemaErrors(cause, result)
	}
}

func joinPath(loc []string) string {
	return strings.Join(loc, ".")
}

// coerceFromErrors converts string leaves reported as type mismatches into
// the wanted scalar type.
func coerceFromErrors(inst any, verr *jsonschema.ValidationError) (any, bool) {
	changed := false
	var walk func(*jsonschema.ValidationError)
	walk = func(e *jsonschema.ValidationError) {
		if t, ok := e.ErrorKind.(*kind.Type); ok && t.Got == "string" {
			if s, ok := valueAt(inst, e.InstanceLocation).(string); ok {
				if v, ok := coerceString(s, t.Want); ok {
					inst = setAt(inst, e.InstanceLocation, v)
					changed = true
				}
			}
		}
		for _, c := range e.Causes {
			walk(c)
		}
	}
	walk(verr)
	return inst, changed
}

func coerceString(s string, want []string) (any, bool) {
	for _, w := range want {
		switch w {
		case "integer":
			if n, err := cast.ToInt64E(s); err == nil {
				return n, true
			}
		case "number":
			if n, err := cast.ToFloat64E(s); err == nil {
				return n, true
			}
		case "boolean":
			if b, err := cast.ToBoolE(s); err == nil {
				return b, true
			}
		case "null":
			if s == "" || s == "null" {
				return nil, true
			}
		}
	}
	return nil, false
}

func valueAt(root any, path []string) any {
	cur := root
	for _, p := range path {
		switch c := cur.(type) {
		case map[string]any:
			cur = c[p]
		case []any:
			i, err := strconv.Atoi(p)
			if err != nil || i < 0 || i >= len(c) {
				return nil
			}
			cur = c[i]
		default:
			return nil
		}
	}
	return cur
}

func setAt(root any, path []string, v any) any {
	if len(path) == 0 {
		return v
	}
	switch c := root.(type) {
	case map[string]any:
		c[path[0]] = setAt(c[path[0]], path[1:], v)
	case []any:
		if i, err := strconv.Atoi(path[0]); err == nil && i >= 0 && i < len(c) {
			c[i] = setAt(c[i], path[1:], v)
		}
	}
	return root
}

// normalize turns v into the generic JSON shape the schema library accepts.
func normalize(v any) any {
	switch t := v.(type) {
	case nil, bool, string, float64, json.Number:
		return t
	case map[string]any:
		return t
	case []any:
		return t
	case map[string]string:
		out := make(map[string]any, len(t))
		for k, s := range t {
			out[k] = s
		}
		return out
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return t
		}
		var out any
		if err := json.Unmarshal(b, &out); err != nil {
			return t
		}
		return out
	}
}

func deepCopy(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = deepCopy(e)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = deepCopy(e)
		}
		return out
	default:
		return t
	}
}
