// Package apperr defines the error taxonomy shared by the scrape and chat pipelines.
package apperr

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a failure.
type Kind string

const (
	KindFetch      Kind = "fetch"
	KindExtraction Kind = "extraction"
	KindIndex      Kind = "index"
	KindNotFound   Kind = "not_found"
	KindValidation Kind = "validation"
	KindAnswer     Kind = "answer"
	KindAuth       Kind = "auth"
	KindTimeout    Kind = "timeout"
)

// Sentinels for errors.Is checks, e.g. errors.Is(err, apperr.ErrNotFound).
var (
	ErrFetch      = &Error{Kind: KindFetch}
	ErrExtraction = &Error{Kind: KindExtraction}
	ErrIndex      = &Error{Kind: KindIndex}
	ErrNotFound   = &Error{Kind: KindNotFound}
	ErrValidation = &Error{Kind: KindValidation}
	ErrAnswer     = &Error{Kind: KindAnswer}
	ErrAuth       = &Error{Kind: KindAuth}
	ErrTimeout    = &Error{Kind: KindTimeout}
)

// Error is a classified failure. Op names the operation that failed.
type Error struct {
	Kind Kind
	Op   string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	var s string
	switch {
	case e.Op != "" && e.Msg != "":
		s = fmt.Sprintf("%s: %s", e.Op, e.Msg)
	case e.Op != "":
		s = e.Op
	case e.Msg != "":
		s = e.Msg
	default:
		s = string(e.Kind) + " error"
	}
	if e.Err != nil {
		return s + ": " + e.Err.Error()
	}
	return s
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind, so sentinels work with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Op == "" && t.Msg == "" && t.Err == nil
}

// New builds a classified error without a cause.
func New(kind Kind, op, msg string) error {
	return &Error{Kind: kind, Op: op, Msg: msg}
}

// Wrap classifies err. A deadline or a cause already classified as timeout or auth
// keeps that kind, so a timeout inside the fetcher is not reported as a fetch failure.
func Wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, ErrTimeout):
		kind = KindTimeout
	case errors.Is(err, ErrAuth):
		kind = KindAuth
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf returns the outermost kind found in err's chain, or "" if unclassified.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// HTTPStatus maps a kind to the status code the API returns for it. Auth failures
// concern the server's provider credential, not the caller, so they stay 500.
func HTTPStatus(kind Kind) int {
	switch kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
