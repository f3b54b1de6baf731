package apperror

import (
	"errors"
	"fmt"
)

// Kind labels a failed call.
type Kind string

const (
	KindUnknown           Kind = "unknown"
	KindTimeout           Kind = "timeout"
	KindCredentialExpired Kind = "credential_expired"
	KindCredentialInvalid Kind = "credential_invalid"
	KindHTTPError         Kind = "http_error"
	KindNetworkError      Kind = "network_error"
	KindRefreshFailed     Kind = "refresh_failed"
)

// Sentinels for errors.Is matching against an *Error of the same kind.
var (
	ErrTimeout           = &Error{Kind: KindTimeout}
	ErrCredentialExpired = &Error{Kind: KindCredentialExpired}
	ErrCredentialInvalid = &Error{Kind: KindCredentialInvalid}
	ErrHTTP              = &Error{Kind: KindHTTPError}
	ErrNetwork           = &Error{Kind: KindNetworkError}
	ErrRefreshFailed     = &Error{Kind: KindRefreshFailed}
)

// Error is the uniform application error surfaced to callers.
type Error struct {
	Kind    Kind
	Message string
	// Status is the HTTP status of the response, zero when none arrived.
	Status int
	// Code is the backend message code on 401 responses.
	Code string
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Message != "" && e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	case e.Message != "":
		return e.Message
	case e.Err != nil:
		return e.Err.Error()
	default:
		return string(e.Kind)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches another *Error by kind, so the package sentinels work with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// Terminal reports whether the error ends the authenticated session.
func (e *Error) Terminal() bool {
	return e.Kind == KindCredentialInvalid || e.Kind == KindRefreshFailed
}

// KindOf returns the kind carried by err, or KindUnknown.
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindUnknown
}

// RefreshFailed wraps the cause of a failed token refresh.
func RefreshFailed(cause error) *Error {
	return &Error{Kind: KindRefreshFailed, Message: "session refresh failed", Err: cause}
}
