package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/iota-uz/workflow-console/pkg/serrors"
)

// ErrorEnvelope standardizes JSON error responses for API namespaces.
type ErrorEnvelope struct {
	Message string            `json:"message"`
	Code    string            `json:"code"`
	Meta    map[string]string `json:"meta,omitempty"`
}

func WriteJSON(w http.ResponseWriter, status int, payload any) error {
	if w == nil {
		return nil
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return nil
	}
	return json.NewEncoder(w).Encode(payload)
}

func WriteError(w http.ResponseWriter, status int, code, message string, meta map[string]string) error {
	return WriteJSON(w, status, &ErrorEnvelope{
		Code:    code,
		Message: message,
		Meta:    meta,
	})
}

// WriteServiceError renders err as an envelope. Coded errors keep their code,
// locale key and template data; anything else becomes INTERNAL_ERROR with a
// generic message so internals do not leak.
func WriteServiceError(w http.ResponseWriter, status int, err error) error {
	var base *serrors.BaseError
	if !errors.As(err, &base) {
		return WriteError(w, status, "INTERNAL_ERROR", http.StatusText(status), nil)
	}
	meta := make(map[string]string, len(base.TemplateData)+1)
	for k, v := range base.TemplateData {
		meta[k] = v
	}
	if base.LocaleKey != "" {
		meta["locale_key"] = base.LocaleKey
	}
	return WriteError(w, status, base.Code, err.Error(), meta)
}

// WriteValidationErrors renders field errors with 422 and the first failing
// field's code at the top level.
func WriteValidationErrors(w http.ResponseWriter, errs serrors.ValidationErrors) error {
	meta := make(map[string]string, len(errs))
	code := "VALIDATION_FAILED"
	for field, e := range errs {
		meta[field] = e.Message
	}
	if len(errs) == 1 {
		for _, e := range errs {
			code = e.Code
		}
	}
	return WriteError(w, http.StatusUnprocessableEntity, code, "validation failed", meta)
}
