package serrors

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// ProcessValidatorErrors converts validator failures into ValidationErrors
// keyed by struct field. getFieldLocaleKey may return "" for unknown fields.
func ProcessValidatorErrors(errs validator.ValidationErrors, getFieldLocaleKey func(field string) string) ValidationErrors {
	out := make(ValidationErrors, len(errs))
	for _, fe := range errs {
		localeKey := ""
		if getFieldLocaleKey != nil {
			localeKey = getFieldLocaleKey(fe.Field())
		}
		msg := fmt.Sprintf("%s failed on %q", fe.Field(), fe.Tag())
		if fe.Param() != "" {
			msg = fmt.Sprintf("%s failed on %q (%s)", fe.Field(), fe.Tag(), fe.Param())
		}
		out[fe.Field()] = NewError(
			"VALIDATION_"+strings.ToUpper(fe.Tag()),
			msg,
			localeKey,
		).WithTemplateData(map[string]string{
			"Field": fe.Field(),
			"Param": fe.Param(),
		})
	}
	return out
}

// First returns the message of the first failing field in the given order.
func (v ValidationErrors) First(fields ...string) string {
	for _, f := range fields {
		if e, ok := v[f]; ok && e != nil {
			return e.Message
		}
	}
	for _, e := range v {
		if e != nil {
			return e.Message
		}
	}
	return ""
}
