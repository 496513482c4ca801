package notify

import (
	"errors"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

// ErrValidation is matched by every *ValidationError.
var ErrValidation = errors.New("validation failed")

// ValidationError reports a notify request the relay refuses to accept.
// It is the only synchronous failure a caller ever sees.
type ValidationError struct {
	Missing []string // required fields that were absent or empty
	Invalid []string // fields present with an unacceptable value
	Reason  string   // set for body-level problems (malformed JSON, ...)
}

func (e *ValidationError) Error() string {
	if e.Reason != "" {
		return e.Reason
	}
	parts := make([]string, 0, 2)
	if len(e.Missing) > 0 {
		parts = append(parts, "missing required fields: "+strings.Join(e.Missing, ", "))
	}
	if len(e.Invalid) > 0 {
		parts = append(parts, "invalid fields: "+strings.Join(e.Invalid, ", "))
	}
	if len(parts) == 0 {
		return ErrValidation.Error()
	}
	return strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func requestValidator() *validator.Validate {
	validateOnce.Do(func() {
		v := validator.New(validator.WithRequiredStructEnabled())
		// Report JSON names so messages match what the client sent.
		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
			if name == "-" {
				return ""
			}
			return name
		})
		_ = v.RegisterValidation("category", func(fl validator.FieldLevel) bool {
			return Category(fl.Field().String()).Valid()
		})
		validate = v
	})
	return validate
}

// Validate checks required fields and enumerations.
func Validate(req Request) error {
	err := requestValidator().Struct(req)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return &ValidationError{Reason: err.Error()}
	}
	out := &ValidationError{}
	for _, fe := range verrs {
		if fe.Tag() == "required" {
			out.Missing = append(out.Missing, fe.Field())
			continue
		}
		out.Invalid = append(out.Invalid, fe.Field())
	}
	return out
}
