package auth

import "errors"

// Kind classifies a flow failure the way the HTTP layer needs to report it.
type Kind int

const (
	KindUnknown Kind = iota
	KindNotFound
	KindForbidden
	KindUnauthorized
	KindBadRequest
)

// Error is the typed failure every flow surfaces. The message is safe to
// return verbatim to callers; secret material never goes in here.
type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string { return e.Message }

func NotFound(msg string) error     { return &Error{Kind: KindNotFound, Message: msg} }
func Forbidden(msg string) error    { return &Error{Kind: KindForbidden, Message: msg} }
func Unauthorized(msg string) error { return &Error{Kind: KindUnauthorized, Message: msg} }
func BadRequest(msg string) error   { return &Error{Kind: KindBadRequest, Message: msg} }

// KindOf extracts the kind from any error in the chain, KindUnknown otherwise.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}
