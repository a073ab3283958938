package errs

import "fmt"

// Code is a stable machine-readable error code. Clients branch on the
// code; the message key is for human-readable rendering only.
type Code string

const (
	CodeUnauthenticated   Code = "UNAUTHENTICATED"
	CodePermissionDenied  Code = "PERMISSION_DENIED"
	CodeInvalidArgument   Code = "INVALID_ARGUMENT"
	CodeNotFound          Code = "NOT_FOUND"
	CodeInvalidTransition Code = "INVALID_STATUS_TRANSITION"
	CodeResourceExhausted Code = "RESOURCE_EXHAUSTED"
	CodeCaptureFailed     Code = "PAYMENT_CAPTURE_FAILED"
	CodeVoidFailed        Code = "PAYMENT_VOID_FAILED"
	CodeInternal          Code = "INTERNAL_ERROR"
)

// Error is the single error type surfaced by lifecycle operations.
// Structured fields replace the colon-delimited strings the old system
// packed into exception payloads.
type Error struct {
	Code       Code
	MessageKey string
	EntityID   string
	From       string
	To         string
	ProductID  string

	err error
}

func (e *Error) Error() string {
	switch e.Code {
	case CodeInvalidTransition:
		return fmt.Sprintf("%s: %s -> %s (entity %s)", e.Code, e.From, e.To, e.EntityID)
	case CodeResourceExhausted:
		return fmt.Sprintf("%s: product %s would go negative", e.Code, e.ProductID)
	default:
		if e.err != nil {
			return fmt.Sprintf("%s: %v", e.Code, e.err)
		}
		return string(e.Code)
	}
}

func (e *Error) Unwrap() error { return e.err }

// Is makes errors.Is match on the code, so callers can compare against
// sentinel constructors without caring about the structured fields.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

func Unauthenticated() *Error {
	return &Error{Code: CodeUnauthenticated, MessageKey: "error.unauthenticated"}
}

func PermissionDenied(actorID string) *Error {
	return &Error{Code: CodePermissionDenied, MessageKey: "error.permission_denied", EntityID: actorID}
}

func InvalidArgument(messageKey string) *Error {
	return &Error{Code: CodeInvalidArgument, MessageKey: messageKey}
}

func NotFound(kind, id string) *Error {
	return &Error{Code: CodeNotFound, MessageKey: "error." + kind + "_not_found", EntityID: id}
}

func InvalidTransition(entityID, from, to string) *Error {
	return &Error{
		Code:       CodeInvalidTransition,
		MessageKey: "error.invalid_status_transition",
		EntityID:   entityID,
		From:       from,
		To:         to,
	}
}

func ResourceExhausted(boxID, productID string) *Error {
	return &Error{
		Code:       CodeResourceExhausted,
		MessageKey: "error.insufficient_stock",
		EntityID:   boxID,
		ProductID:  productID,
	}
}

func CaptureFailed(entityID string, err error) *Error {
	return &Error{Code: CodeCaptureFailed, MessageKey: "error.payment_capture_failed", EntityID: entityID, err: err}
}

func VoidFailed(entityID string, err error) *Error {
	return &Error{Code: CodeVoidFailed, MessageKey: "error.payment_void_failed", EntityID: entityID, err: err}
}

func Internal(err error) *Error {
	return &Error{Code: CodeInternal, MessageKey: "error.internal", err: err}
}

// CodeOf extracts the stable code from any error, mapping non-taxonomy
// errors to INTERNAL_ERROR.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	if e, ok := err.(*Error); ok {
		return e.Code
	}
	return CodeInternal
}

// MessageKeyOf extracts the i18n message key from any error.
func MessageKeyOf(err error) string {
	if err == nil {
		return ""
	}
	if e, ok := err.(*Error); ok {
		return e.MessageKey
	}
	return "error.internal"
}
