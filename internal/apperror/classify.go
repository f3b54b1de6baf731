package apperror

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
)

// Backend message codes sent with a 401.
const (
	CodeTokenExpired = "token.expired"
	CodeTokenInvalid = "token.invalid"
)

const (
	msgTimeout = "Request timed out. Check your connection."
	msgNetwork = "Connection error. Check your internet."
	msgHTTP    = "Error processing request"
	msgExpired = "Your session has expired."
	msgInvalid = "Your session is no longer valid. Sign in again."
)

// Response is the part of an HTTP response the classifier looks at.
type Response struct {
	Status int
	Body   []byte
}

// Failure is the metadata of a failed call.
type Failure struct {
	TimedOut bool
	// Response is set when the server answered with a non-success status.
	Response *Response
	// RequestSent is set when the request went out but no response came back.
	RequestSent bool
	Err         error
}

// FromTransport derives a Failure from the result of a transport call. resp
// must already be known to be unsuccessful when err is nil.
func FromTransport(resp *Response, err error) Failure {
	if err == nil {
		return Failure{Response: resp}
	}
	if isTimeout(err) {
		return Failure{TimedOut: true, RequestSent: true, Err: err}
	}
	if errors.Is(err, context.Canceled) {
		return Failure{Err: err}
	}
	return Failure{RequestSent: true, Err: err}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

type errorBody struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// Classify maps a failure to exactly one kind. It has no side effects.
func Classify(f Failure) *Error {
	switch {
	case f.TimedOut:
		return &Error{Kind: KindTimeout, Message: msgTimeout, Err: f.Err}
	case f.Response != nil:
		return classifyResponse(f.Response)
	case f.RequestSent:
		return &Error{Kind: KindNetworkError, Message: msgNetwork, Err: f.Err}
	default:
		var appErr *Error
		if errors.As(f.Err, &appErr) {
			return appErr
		}
		return &Error{Kind: KindUnknown, Err: f.Err}
	}
}

func classifyResponse(resp *Response) *Error {
	var body errorBody
	_ = json.Unmarshal(resp.Body, &body)

	if resp.Status == http.StatusUnauthorized {
		switch body.Message {
		case CodeTokenExpired:
			return &Error{Kind: KindCredentialExpired, Message: msgExpired, Status: resp.Status, Code: CodeTokenExpired}
		case CodeTokenInvalid, "":
			return &Error{Kind: KindCredentialInvalid, Message: msgInvalid, Status: resp.Status, Code: CodeTokenInvalid}
		default:
			// Any other code is treated as token.invalid; the backend text is shown.
			return &Error{Kind: KindCredentialInvalid, Message: body.Message, Status: resp.Status, Code: body.Message}
		}
	}

	msg := body.Message
	if msg == "" {
		msg = msgHTTP
	}
	return &Error{Kind: KindHTTPError, Message: msg, Status: resp.Status}
}
