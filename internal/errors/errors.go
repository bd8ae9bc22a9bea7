package errors

import (
	stderrors "errors"
	"fmt"
)

// AmanError is the structured error used across amanrag. The CLI, the MCP
// server and the logs all render it from the same fields.
type AmanError struct {
	Code     string // e.g. "ERR_303_INDEX_UNAVAILABLE"
	Message  string
	Category Category
	Severity Severity
	Details  map[string]string
	Cause    error

	Retryable bool
	// Suggestion tells the user what to do next.
	Suggestion string
}

func (e *AmanError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AmanError) Unwrap() error {
	return e.Cause
}

// Is matches any AmanError with the same code, so package-level sentinels
// work with errors.Is.
func (e *AmanError) Is(target error) bool {
	t, ok := target.(*AmanError)
	return ok && e.Code == t.Code
}

// WithDetail records a key/value pair shown in debug output and logs.
func (e *AmanError) WithDetail(key, value string) *AmanError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// WithSuggestion sets the next step shown to the user.
func (e *AmanError) WithSuggestion(suggestion string) *AmanError {
	e.Suggestion = suggestion
	return e
}

// New builds an AmanError whose category, severity and retryability follow
// from code.
func New(code, message string, cause error) *AmanError {
	return &AmanError{
		Code:      code,
		Message:   message,
		Category:  categoryFromCode(code),
		Severity:  severityFromCode(code),
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

// Newf is New with a formatted message and no cause.
func Newf(code, format string, args ...any) *AmanError {
	return New(code, fmt.Sprintf(format, args...), nil)
}

// ConfigError reports an invalid configuration.
func ConfigError(message string, cause error) *AmanError {
	return New(ErrCodeConfigInvalid, message, cause)
}

// ValidationError reports invalid caller input.
func ValidationError(message string, cause error) *AmanError {
	return New(ErrCodeInvalidInput, message, cause)
}

// InternalError reports a bug or an unexpected state.
func InternalError(message string, cause error) *AmanError {
	return New(ErrCodeInternal, message, cause)
}

// As returns the first AmanError in err's chain.
func As(err error) (*AmanError, bool) {
	var ae *AmanError
	ok := stderrors.As(err, &ae)
	return ae, ok
}

// IsRetryable reports whether err carries a retryable AmanError.
func IsRetryable(err error) bool {
	ae, ok := As(err)
	return ok && ae.Retryable
}

// IsFatal reports whether err carries an AmanError of fatal severity.
func IsFatal(err error) bool {
	ae, ok := As(err)
	return ok && ae.Severity == SeverityFatal
}

// GetCode returns the code of the first AmanError in err's chain, or "".
func GetCode(err error) string {
	if ae, ok := As(err); ok {
		return ae.Code
	}
	return ""
}
