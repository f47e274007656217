// Package errs is the single error taxonomy for the control plane.
// Every error the core emits is one of the Kind constants below,
// carrying a one-line human message and a set of actionable hints. Tools at
// the API boundary type-assert on Kind, never on message text.
package errs

import "fmt"

// Kind is one of the nine error categories the core distinguishes.
type Kind string

const (
	KindValidation      Kind = "ValidationError"
	KindAuthentication  Kind = "AuthenticationError"
	KindConflict        Kind = "ConflictError"
	KindSync            Kind = "SyncError"
	KindHookRejected    Kind = "HookRejected"
	KindRemotePush      Kind = "RemotePushError"
	KindCriticalRecover Kind = "CriticalRecovery"
	KindLockTimeout     Kind = "LockTimeout"
	KindAPI             Kind = "ApiError"
)

// Error is the structured error every core operation returns on failure.
type Error struct {
	Kind    Kind
	Message string
	Hints   map[string]string
	Detail  any // e.g. *types.ConflictReport, *types.SyncDiagnostic
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// Is allows errors.Is(err, &Error{Kind: KindConflict}) style matching on
// Kind alone.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// New builds an Error of the given kind with a message and optional hints.
func New(kind Kind, message string, hints map[string]string) *Error {
	return &Error{Kind: kind, Message: message, Hints: hints}
}

// Wrap builds an Error of the given kind that also carries an underlying
// cause, surfaced via Unwrap.
func Wrap(kind Kind, message string, cause error, hints map[string]string) *Error {
	return &Error{Kind: kind, Message: message, Hints: hints, cause: cause}
}

// WithDetail attaches a structured payload (ConflictReport, SyncDiagnostic,
// ...) to the error and returns it for chaining.
func (e *Error) WithDetail(d any) *Error {
	e.Detail = d
	return e
}

// KindOf extracts the Kind from err if it is (or wraps) an *Error.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if as(err, &e) {
		return e.Kind, true
	}
	return "", false
}

// as is a tiny local errors.As to avoid importing errors just for this.
func as(err error, target **Error) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			*target = e
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
