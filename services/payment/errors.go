package payment

import "fmt"

// Error codes for the payment orchestration layer.
const (
	CodePrecondition      = "precondition"
	CodeNotFound          = "notFound"
	CodeNotPending        = "notPending"
	CodeUnknownTransition = "unknownTransition"
	CodePluginSearch      = "pluginSearch"
)

type Error struct {
	Code    string
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func NewPreconditionError(format string, args ...interface{}) error {
	return &Error{Code: CodePrecondition, Message: fmt.Sprintf(format, args...)}
}

func NewNotFoundError(format string, args ...interface{}) error {
	return &Error{Code: CodeNotFound, Message: fmt.Sprintf(format, args...)}
}

func NewNotPendingError(format string, args ...interface{}) error {
	return &Error{Code: CodeNotPending, Message: fmt.Sprintf(format, args...)}
}

func NewUnknownTransitionError(format string, args ...interface{}) error {
	return &Error{Code: CodeUnknownTransition, Message: fmt.Sprintf(format, args...)}
}

func NewPluginSearchError(format string, args ...interface{}) error {
	return &Error{Code: CodePluginSearch, Message: fmt.Sprintf(format, args...)}
}

// HasCode reports whether err is a payment Error with the given code.
func HasCode(err error, code string) bool {
	pe, ok := err.(*Error)
	return ok && pe.Code == code
}
