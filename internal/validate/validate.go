// Package validate checks option and template values before any request is
// built or any file is touched.
package validate

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	oqerrors "github.com/nasriyasoftware/Orchestriq-sub001/internal/errors"
	"github.com/nasriyasoftware/Orchestriq-sub001/pkg/template"
)

var validate *validator.Validate

func init() {
	validate = validator.New(validator.WithRequiredStructEnabled())

	validate.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("yaml"), ",", 2)[0]
		if name == "" || name == "-" {
			return field.Name
		}
		return name
	})

	validate.RegisterStructValidation(volumeShape, template.Volume{})
}

// volumeShape enforces that a volume is exactly one of anonymous, named or
// bind.
func volumeShape(sl validator.StructLevel) {
	v := sl.Current().Interface().(template.Volume)
	if v.Name != "" && v.HostPath != "" {
		sl.ReportError(v.HostPath, "hostPath", "HostPath", "volume_shape", "")
	}
}

// Struct validates v and returns a categorised error naming op. Missing
// required values become ArgumentMissing, everything else ArgumentInvalid.
func Struct(op string, v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}

	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return oqerrors.NewArgumentInvalid(op, err.Error())
	}

	missing := true
	messages := make([]string, 0, len(validationErrors))
	for _, fe := range validationErrors {
		if !isMissing(fe) {
			missing = false
		}
		messages = append(messages, formatFieldError(fe))
	}

	cause := strings.Join(messages, "; ")
	if missing {
		return oqerrors.NewArgumentMissing(op, cause)
	}
	return oqerrors.NewArgumentInvalid(op, cause)
}

func isMissing(fe validator.FieldError) bool {
	switch fe.Tag() {
	case "required", "required_with", "required_without":
		return true
	}
	return false
}

// formatFieldError renders a single failure with the field's namespace so
// nested template fields are identifiable.
func formatFieldError(e validator.FieldError) string {
	field := e.Namespace()
	if i := strings.Index(field, "."); i >= 0 {
		field = field[i+1:]
	}

	switch e.Tag() {
	case "required":
		return fmt.Sprintf("field '%s' is required but missing", field)
	case "required_with":
		return fmt.Sprintf("field '%s' is required when %s is set", field, e.Param())
	case "required_without":
		return fmt.Sprintf("field '%s' is required when %s is not set", field, e.Param())
	case "excluded_with":
		return fmt.Sprintf("field '%s' cannot be combined with %s", field, e.Param())
	case "min":
		return fmt.Sprintf("field '%s' must be at least %s", field, e.Param())
	case "max":
		return fmt.Sprintf("field '%s' must be at most %s", field, e.Param())
	case "oneof":
		return fmt.Sprintf("field '%s' must be one of: %s", field, e.Param())
	case "excludesall":
		return fmt.Sprintf("field '%s' must not contain any of %q", field, e.Param())
	case "volume_shape":
		return fmt.Sprintf("volume '%s' sets both a name and a host path", field)
	default:
		return fmt.Sprintf("field '%s' failed validation (%s)", field, e.Tag())
	}
}
