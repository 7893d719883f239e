// Package validation turns untyped JSON payloads into typed values or a list
// of field-level errors. Field constraints live as validate tags on the model
// and request types; this package owns the validator instance, the JSON
// decoding step and the human-readable messages.
package validation

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

// FieldError is one rejected field. Path uses JSON names joined by dots,
// with slice indexes in brackets (formData.documentUpload.documents[0].name).
type FieldError struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

// Errors is a non-empty list of field errors. A nil Errors means valid.
type Errors []FieldError

func (e Errors) Error() string {
	parts := make([]string, 0, len(e))
	for _, fe := range e {
		if fe.Path == "" {
			parts = append(parts, fe.Message)
			continue
		}
		parts = append(parts, fe.Path+": "+fe.Message)
	}
	return strings.Join(parts, "; ")
}

// Has reports whether any error was recorded for path.
func (e Errors) Has(path string) bool {
	for _, fe := range e {
		if fe.Path == path {
			return true
		}
	}
	return false
}

var (
	once     sync.Once
	instance *validator.Validate
)

func engine() *validator.Validate {
	once.Do(func() {
		v := validator.New(validator.WithRequiredStructEnabled())
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			if name == "" {
				return fld.Name
			}
			return name
		})
		instance = v
	})
	return instance
}

// Struct validates v against its validate tags.
func Struct(v any) Errors {
	err := engine().Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return Errors{{Message: err.Error()}}
	}
	out := make(Errors, 0, len(verrs))
	for _, fe := range verrs {
		out = append(out, FieldError{
			Path:    trimRoot(fe.Namespace()),
			Message: message(fe),
		})
	}
	return out
}

// Decode reads a JSON document into dst and validates it. Type mismatches on
// individual fields are reported on their path alongside tag violations.
func Decode(r io.Reader, dst any) Errors {
	var out Errors
	err := json.NewDecoder(r).Decode(dst)
	if err != nil {
		var typeErr *json.UnmarshalTypeError
		switch {
		case errors.As(err, &typeErr):
			out = append(out, FieldError{
				Path:    typeErr.Field,
				Message: fmt.Sprintf("expected %s, got %s", typeName(typeErr.Type), typeErr.Value),
			})
		case errors.Is(err, io.EOF):
			return Errors{{Message: "request body is empty"}}
		default:
			return Errors{{Message: "request body is not valid JSON"}}
		}
	}
	for _, fe := range Struct(dst) {
		if out.Has(fe.Path) {
			continue
		}
		out = append(out, fe)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// trimRoot drops the top-level type name validator puts in front of every
// namespace.
func trimRoot(ns string) string {
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

func typeName(t reflect.Type) string {
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	switch t.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return "integer"
	case reflect.Float32, reflect.Float64:
		return "number"
	case reflect.String:
		return "string"
	case reflect.Slice, reflect.Array:
		return "array"
	case reflect.Struct, reflect.Map:
		return "object"
	case reflect.Bool:
		return "boolean"
	}
	return t.String()
}
