package directus

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Error codes reported by Directus in errors[].extensions.code, plus the
// client-side ones used when the server never answered.
const (
	ErrCodeUnavailable        = "SERVICE_UNAVAILABLE"
	ErrCodeInvalidCredentials = "INVALID_CREDENTIALS"
	ErrCodeTokenExpired       = "TOKEN_EXPIRED"
	ErrCodeForbidden          = "FORBIDDEN"
	ErrCodeNotFound           = "ROUTE_NOT_FOUND"
	ErrCodeRequestsExceeded   = "REQUESTS_EXCEEDED"
	ErrCodeInvalidPayload     = "INVALID_PAYLOAD"
	ErrCodeRecordNotUnique    = "RECORD_NOT_UNIQUE"
	ErrCodeInternal           = "INTERNAL_SERVER_ERROR"
)

var (
	ErrInvalidURL       = errors.New("invalid directus url")
	ErrUnavailable      = errors.New("directus unavailable")
	ErrUnauthorized     = errors.New("unauthorized")
	ErrForbidden        = errors.New("forbidden")
	ErrNotFound         = errors.New("not found")
	ErrRateLimited      = errors.New("rate limited")
	ErrServer           = errors.New("directus server error")
	ErrUnexpectedStatus = errors.New("unexpected status")
	ErrNotAuthenticated = errors.New("not authenticated")

	ErrNoItems         = errors.New("no items to delete")
	ErrNoPrimaryKey    = errors.New("collection has no primary key field")
	ErrInvalidRelation = errors.New("relation needs collection, field and related_collection")
	ErrInvalidField    = errors.New("field needs a name")
)

// ErrorDetail is one entry of the errors array Directus returns.
type ErrorDetail struct {
	Message    string `json:"message"`
	Extensions struct {
		Code string `json:"code,omitempty"`
	} `json:"extensions"`
}

// APIError is a Directus response that carried errors or an unexpected
// status. It unwraps to the sentinel matching its status.
type APIError struct {
	StatusCode int
	Method     string
	Path       string
	Errors     []ErrorDetail
}

func (e *APIError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s: HTTP %d", e.Method, e.Path, e.StatusCode)
	for i, d := range e.Errors {
		if i == 0 {
			b.WriteString(": ")
		} else {
			b.WriteString("; ")
		}
		b.WriteString(d.Message)
		if d.Extensions.Code != "" {
			fmt.Fprintf(&b, " (%s)", d.Extensions.Code)
		}
	}
	return b.String()
}

func (e *APIError) Unwrap() error {
	switch {
	case e.StatusCode == http.StatusUnauthorized:
		return ErrUnauthorized
	case e.StatusCode == http.StatusForbidden:
		return ErrForbidden
	case e.StatusCode == http.StatusNotFound:
		return ErrNotFound
	case e.StatusCode == http.StatusTooManyRequests:
		return ErrRateLimited
	case e.StatusCode >= 500:
		return ErrServer
	default:
		return ErrUnexpectedStatus
	}
}

// Code returns the first extensions.code, or "" when none was sent.
func (e *APIError) Code() string {
	for _, d := range e.Errors {
		if d.Extensions.Code != "" {
			return d.Extensions.Code
		}
	}
	return ""
}

// ErrorCode maps err to a Directus error code for logs and exit reports.
func ErrorCode(err error) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		if code := apiErr.Code(); code != "" {
			return code
		}
	}
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrUnavailable):
		return ErrCodeUnavailable
	case errors.Is(err, ErrUnauthorized):
		return ErrCodeInvalidCredentials
	case errors.Is(err, ErrForbidden):
		return ErrCodeForbidden
	case errors.Is(err, ErrNotFound):
		return ErrCodeNotFound
	case errors.Is(err, ErrRateLimited):
		return ErrCodeRequestsExceeded
	default:
		return ErrCodeInternal
	}
}

// transient reports whether a failed call is worth repeating.
func transient(err error) bool {
	return errors.Is(err, ErrUnavailable) || errors.Is(err, ErrServer) || errors.Is(err, ErrRateLimited)
}
