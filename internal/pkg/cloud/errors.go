package cloud

import "fmt"

type Kind string

const (
	KindUnauthorized Kind = "unauthorized"
	KindForbidden    Kind = "forbidden"
	KindNotFound     Kind = "not_found"
	KindRateLimited  Kind = "rate_limited"
	KindDataParsing  Kind = "data_parsing" // server answered inside 202..500 with no defined meaning
	KindBadPayload   Kind = "bad_payload"  // response body failed to decode
	KindTimeout      Kind = "timeout"
	KindAPIFailure   Kind = "api_failure"
	KindUnknown      Kind = "unknown"
)

// Error classifies every failure of a cloud call. Sentinels below support
// errors.Is matching on the kind alone.
type Error struct {
	Kind       Kind
	StatusCode int
	cause      error
}

var (
	ErrUnauthorized = &Error{Kind: KindUnauthorized}
	ErrForbidden    = &Error{Kind: KindForbidden}
	ErrNotFound     = &Error{Kind: KindNotFound}
	ErrRateLimited  = &Error{Kind: KindRateLimited}
	ErrDataParsing  = &Error{Kind: KindDataParsing}
	ErrBadPayload   = &Error{Kind: KindBadPayload}
	ErrTimeout      = &Error{Kind: KindTimeout}
	ErrAPIFailure   = &Error{Kind: KindAPIFailure}
)

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("cloud: %s: %v", e.Kind, e.cause)
	}
	if e.StatusCode != 0 {
		return fmt.Sprintf("cloud: %s (http %d)", e.Kind, e.StatusCode)
	}
	return fmt.Sprintf("cloud: %s", e.Kind)
}

func (e *Error) Unwrap() error {
	return e.cause
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// Message is the user-visible wording surfaced on the feed's error channel.
func (e *Error) Message() string {
	switch e.Kind {
	case KindUnauthorized:
		return "Unauthorized. Check or update the API key or token."
	case KindForbidden:
		return "Forbidden. Contact support."
	case KindNotFound:
		return "Not found. Please try again."
	case KindRateLimited:
		return "API limit reached. Try again later."
	case KindDataParsing, KindBadPayload:
		return "Data parsing error. Please try again."
	case KindTimeout:
		return "The request timed out."
	case KindAPIFailure:
		return "API failed. Please try again."
	}
	if e.cause != nil {
		return e.cause.Error()
	}
	return "Unknown error. Please try again."
}
