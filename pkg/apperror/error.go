package apperror

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Kind classifies failures so callers can decide between surfacing, deferring or recording them.
type Kind string

const (
	KindConfig      Kind = "config"
	KindAuth        Kind = "auth"
	KindRateLimited Kind = "rate_limited"
	KindUpstream    Kind = "upstream"
	KindValidation  Kind = "validation"
	KindNotFound    Kind = "not_found"
	KindInternal    Kind = "internal"
)

type Metadata struct {
	HTTPStatus int
	Retryable  bool
}

var metadataByKind = map[Kind]Metadata{
	KindConfig:      {HTTPStatus: http.StatusInternalServerError, Retryable: false},
	KindAuth:        {HTTPStatus: http.StatusUnauthorized, Retryable: false},
	KindRateLimited: {HTTPStatus: http.StatusTooManyRequests, Retryable: true},
	KindUpstream:    {HTTPStatus: http.StatusBadGateway, Retryable: true},
	KindValidation:  {HTTPStatus: http.StatusBadRequest, Retryable: false},
	KindNotFound:    {HTTPStatus: http.StatusNotFound, Retryable: false},
	KindInternal:    {HTTPStatus: http.StatusInternalServerError, Retryable: false},
}

func MetadataFor(kind Kind) Metadata {
	if meta, ok := metadataByKind[kind]; ok {
		return meta
	}
	return metadataByKind[KindInternal]
}

// Error is the classified error carried across gateway and service boundaries.
// UpstreamStatus and RequestID describe the external call that failed, if any;
// RequestID is always stored in masked form.
type Error struct {
	Kind           Kind
	Message        string
	StatusCode     int
	UpstreamStatus int
	RequestID      string
	Missing        []string
	cause          error
}

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message, StatusCode: MetadataFor(kind).HTTPStatus}
}

func Wrap(kind Kind, err error, message string) *Error {
	e := New(kind, message)
	e.cause = err
	return e
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

func (e *Error) WithUpstream(status int, requestID string) *Error {
	e.UpstreamStatus = status
	e.RequestID = requestID
	return e
}

func (e *Error) Retryable() bool {
	return MetadataFor(e.Kind).Retryable
}

func Config(missing ...string) *Error {
	e := New(KindConfig, "missing required settings: "+strings.Join(missing, ", "))
	e.Missing = missing
	return e
}

func Validation(format string, args ...any) *Error {
	return New(KindValidation, fmt.Sprintf(format, args...))
}

func NotFound(format string, args ...any) *Error {
	return New(KindNotFound, fmt.Sprintf(format, args...))
}

func Auth(message string) *Error {
	return New(KindAuth, message)
}

func RateLimited(message string) *Error {
	return New(KindRateLimited, message)
}

func Upstream(message string) *Error {
	return New(KindUpstream, message)
}

// FromHTTPStatus maps an upstream response status onto a Kind.
func FromHTTPStatus(status int, message string) *Error {
	var kind Kind
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		kind = KindAuth
	case status == http.StatusTooManyRequests:
		kind = KindRateLimited
	case status == http.StatusNotFound:
		kind = KindNotFound
	case status >= 500:
		kind = KindUpstream
	case status >= 400:
		kind = KindValidation
	default:
		kind = KindUpstream
	}
	return New(kind, message).WithUpstream(status, "")
}

func As(err error) *Error {
	if err == nil {
		return nil
	}
	var typed *Error
	if errors.As(err, &typed) {
		return typed
	}
	return nil
}

// KindOf returns KindInternal for errors that were never classified.
func KindOf(err error) Kind {
	if typed := As(err); typed != nil {
		return typed.Kind
	}
	return KindInternal
}

func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

func IsRetryable(err error) bool {
	if typed := As(err); typed != nil {
		return typed.Retryable()
	}
	return false
}

func HTTPStatus(err error) int {
	if typed := As(err); typed != nil && typed.StatusCode != 0 {
		return typed.StatusCode
	}
	return http.StatusInternalServerError
}
