package validation

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/go-viper/mapstructure/v2"
)

var (
	defaultValidatorOnce sync.Once
	defaultValidator     *validator.Validate
)

// sharedValidator returns a validator that reports json field names.
func sharedValidator() *validator.Validate {
	defaultValidatorOnce.Do(func() {
		v := validator.New(validator.WithRequiredStructEnabled())
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
		defaultValidator = v
	})
	return defaultValidator
}

// StructSchema decodes a value into T and validates it with `validate`
// struct tags. Decoding is weakly typed, so string maps such as path
// parameters decode into numeric and boolean fields.
type StructSchema[T any] struct {
	validate *validator.Validate
	exact    bool
}

// Struct returns a schema for T using the shared validator.
func Struct[T any]() *StructSchema[T] {
	return &StructSchema[T]{validate: sharedValidator()}
}

// StructWith returns a schema for T using a caller-provided validator,
// e.g. one with custom validations registered.
func StructWith[T any](v *validator.Validate) *StructSchema[T] {
	return &StructSchema[T]{validate: v}
}

func (s *StructSchema[T]) strict() Schema {
	if s == nil {
		return s
	}
	return &StructSchema[T]{validate: s.validate, exact: true}
}

// Validate implements Schema. The returned value has type T.
func (s *StructSchema[T]) Validate(ctx context.Context, value any) (any, error) {
	var out T
	switch v := value.(type) {
	case T:
		out = v
	case *T:
		if v != nil {
			out = *v
		}
	default:
		if err := decode(value, &out, !s.exact); err != nil {
			return nil, &Error{Issues: []Issue{{Message: err.Error()}}}
		}
	}

	if !isStruct(out) {
		return out, nil
	}

	if err := s.validate.StructCtx(ctx, out); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			return nil, formatTagErrors(verrs)
		}
		return nil, &Error{Issues: []Issue{{Message: err.Error()}}}
	}
	return out, nil
}

func decode(in any, out any, weak bool) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		WeaklyTypedInput: weak,
		Result:           out,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
			mapstructure.StringToTimeHookFunc(time.RFC3339),
		),
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(in); err != nil {
		return fmt.Errorf("cannot decode value: %w", err)
	}
	return nil
}

func isStruct(v any) bool {
	t := reflect.TypeOf(v)
	for t != nil && t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t != nil && t.Kind() == reflect.Struct
}

// formatTagErrors converts validator errors into issues keyed by json path.
func formatTagErrors(errs validator.ValidationErrors) *Error {
	var result Error
	for _, e := range errs {
		path := e.Namespace()
		// Strip the top-level struct name.
		if idx := strings.Index(path, "."); idx != -1 {
			path = path[idx+1:]
		}
		result.Add(path, tagMessage(e))
	}
	return &result
}

func tagMessage(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "url":
		return "must be a valid URL"
	case "min":
		if e.Kind() == reflect.String {
			return fmt.Sprintf("must be at least %s characters", e.Param())
		}
		return fmt.Sprintf("must be at least %s", e.Param())
	case "max":
		if e.Kind() == reflect.String {
			return fmt.Sprintf("must be at most %s characters", e.Param())
		}
		return fmt.Sprintf("must be at most %s", e.Param())
	case "gte":
		return fmt.Sprintf("must be greater than or equal to %s", e.Param())
	case "lte":
		return fmt.Sprintf("must be less than or equal to %s", e.Param())
	case "oneof":
		return fmt.Sprintf("must be one of [%s]", e.Param())
	default:
		return fmt.Sprintf("failed on the '%s' rule", e.Tag())
	}
}
