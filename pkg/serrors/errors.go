package serrors

// BaseError is an error with a stable machine-readable code and a locale key
// the presentation layer can translate.
type BaseError struct {
	Code         string            `json:"code"`
	Message      string            `json:"message"`
	LocaleKey    string            `json:"locale_key,omitempty"`
	TemplateData map[string]string `json:"-"`
}

func NewError(code, message, localeKey string) *BaseError {
	return &BaseError{
		Code:      code,
		Message:   message,
		LocaleKey: localeKey,
	}
}

func (e *BaseError) Error() string {
	return e.Message
}

// Is matches any *BaseError carrying the same code, so wrapped copies created
// with WithTemplateData still satisfy errors.Is against the sentinel.
func (e *BaseError) Is(target error) bool {
	t, ok := target.(*BaseError)
	if !ok || t == nil {
		return false
	}
	return e.Code == t.Code
}

func (e *BaseError) WithTemplateData(data map[string]string) *BaseError {
	cp := *e
	cp.TemplateData = make(map[string]string, len(data))
	for k, v := range data {
		cp.TemplateData[k] = v
	}
	return &cp
}

// ValidationErrors maps a field name to its validation failure.
type ValidationErrors map[string]*BaseError

func NewFieldRequiredError(field, localeKey string) *BaseError {
	return NewError("FIELD_REQUIRED", field+" is required", localeKey).
		WithTemplateData(map[string]string{"Field": field})
}
