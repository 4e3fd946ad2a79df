package reconcile

import (
	"errors"
	"fmt"

	pkgerrors "github.com/pkg/errors"
)

// Code is a stable, user-facing error code. The HTTP layer decides the status.
type Code string

const (
	CodeNoLineItems        Code = "NO_LINE_ITEMS"
	CodeInvoiceNotFound    Code = "INVOICE_NOT_FOUND"
	CodeMatchNotFound      Code = "MATCH_NOT_FOUND"
	CodeLineItemNotFound   Code = "LINE_ITEM_NOT_FOUND"
	CodePOLineItemNotFound Code = "PO_LINE_ITEM_NOT_FOUND"
	CodeInvalidTransition  Code = "INVALID_TRANSITION"
	CodeMatchLocked        Code = "MATCH_LOCKED"
	CodeInvalidSettings    Code = "INVALID_SETTINGS"
	CodeInternal           Code = "INTERNAL"
)

// Error is returned by every engine operation that fails
type Error struct {
	Code    Code
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil && e.Cause.Error() != e.Message {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause
func (e *Error) Unwrap() error {
	return e.Cause
}

// StackTrace exposes where the error was raised, for %+v logging
func (e *Error) StackTrace() pkgerrors.StackTrace {
	var st interface{ StackTrace() pkgerrors.StackTrace }
	if errors.As(e.Cause, &st) {
		return st.StackTrace()
	}
	return nil
}

func newError(code Code, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Cause:   pkgerrors.New(message),
	}
}

func wrapError(err error, code Code, message string) *Error {
	if err == nil {
		return nil
	}
	var engineErr *Error
	if errors.As(err, &engineErr) {
		return engineErr
	}
	return &Error{
		Code:    code,
		Message: message,
		Cause:   pkgerrors.WithStack(err),
	}
}

// CodeOf extracts the engine code from err, or CodeInternal
func CodeOf(err error) Code {
	var engineErr *Error
	if errors.As(err, &engineErr) {
		return engineErr.Code
	}
	return CodeInternal
}
