package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a conversion failure. The string value is what clients see.
type Kind string

const (
	InvalidRequest    Kind = "InvalidRequest"
	InvalidPageRange  Kind = "InvalidPageRange"
	UnsupportedFormat Kind = "UnsupportedFormat"
	InvalidScale      Kind = "InvalidScale"
	Unauthorized      Kind = "Unauthorized"
	BodyTooLarge      Kind = "BodyTooLarge"
	MalformedDocument Kind = "MalformedDocument"
	DecryptionFailure Kind = "DecryptionFailure"
	RenderFailure     Kind = "RenderFailure"
	EncodeFailure     Kind = "EncodeFailure"
	UploadFailure     Kind = "UploadFailure"
	Busy              Kind = "Busy"
	RateLimited       Kind = "RateLimited"
	Internal          Kind = "Internal"
)

var statusByKind = map[Kind]int{
	InvalidRequest:    http.StatusBadRequest,
	InvalidPageRange:  http.StatusBadRequest,
	UnsupportedFormat: http.StatusBadRequest,
	InvalidScale:      http.StatusBadRequest,
	Unauthorized:      http.StatusUnauthorized,
	DecryptionFailure: http.StatusForbidden,
	BodyTooLarge:      http.StatusRequestEntityTooLarge,
	MalformedDocument: http.StatusUnprocessableEntity,
	Busy:              http.StatusServiceUnavailable,
	RateLimited:       http.StatusTooManyRequests,
	RenderFailure:     http.StatusInternalServerError,
	EncodeFailure:     http.StatusInternalServerError,
	UploadFailure:     http.StatusBadGateway,
	Internal:          http.StatusInternalServerError,
}

// Status returns the HTTP status code for k.
func (k Kind) Status() int {
	if s, ok := statusByKind[k]; ok {
		return s
	}
	return http.StatusInternalServerError
}

// Client reports whether the failure was caused by the request itself.
func (k Kind) Client() bool { return k.Status() < 500 }

// NoPage marks an error that is not tied to a page.
const NoPage = -1

// Error is a classified failure. Page is the position within the page
// selection for page-scoped kinds, NoPage otherwise.
type Error struct {
	Kind Kind
	Page int
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Page >= 0 {
		msg = fmt.Sprintf("%s (page %d)", msg, e.Page)
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// New returns a request-scoped error of kind k.
func New(k Kind, msg string) *Error { return &Error{Kind: k, Page: NoPage, Msg: msg} }

// Wrap returns a request-scoped error of kind k wrapping err.
func Wrap(k Kind, msg string, err error) *Error {
	return &Error{Kind: k, Page: NoPage, Msg: msg, Err: err}
}

// Page returns a page-scoped error of kind k for selection position page.
func Page(k Kind, page int, err error) *Error {
	return &Error{Kind: k, Page: page, Msg: pageMessages[k], Err: err}
}

var pageMessages = map[Kind]string{
	RenderFailure: "failed to render page",
	EncodeFailure: "failed to encode page",
	UploadFailure: "failed to upload page",
}

// KindOf extracts the kind of err, Internal when err is unclassified.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

// As is a shorthand for errors.As into *Error.
func As(err error) (*Error, bool) {
	var e *Error
	ok := errors.As(err, &e)
	return e, ok
}
