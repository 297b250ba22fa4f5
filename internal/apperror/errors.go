package apperror

import (
	"errors"
	"fmt"
)

// Kind classifies a rejected operation.
type Kind string

const (
	// KindValidation is an invariant violation detected on write.
	KindValidation Kind = "validation_error"
	// KindUser is an operation precondition that was not met.
	KindUser Kind = "user_error"
)

// Error is a rejected operation. The aggregate it was raised against is left
// in its prior state.
type Error struct {
	Kind    Kind
	Code    string
	Message string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return e.Code
	}
	return e.Message
}

func Validation(code, message string) *Error {
	return &Error{Kind: KindValidation, Code: code, Message: message}
}

func User(code, message string) *Error {
	return &Error{Kind: KindUser, Code: code, Message: message}
}

// Wrapf wraps sentinel with a formatted detail while keeping errors.Is
// and KindOf working.
func Wrapf(sentinel *Error, format string, args ...any) error {
	return fmt.Errorf("%w: %s", sentinel, fmt.Sprintf(format, args...))
}

// KindOf reports the kind of the first *Error in err's chain.
func KindOf(err error) (Kind, bool) {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind, true
	}
	return "", false
}

// CodeOf reports the code of the first *Error in err's chain.
func CodeOf(err error) string {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}

func IsValidation(err error) bool {
	kind, ok := KindOf(err)
	return ok && kind == KindValidation
}

func IsUser(err error) bool {
	kind, ok := KindOf(err)
	return ok && kind == KindUser
}
