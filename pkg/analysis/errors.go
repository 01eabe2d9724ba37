package analysis

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/papercomputeco/weave/pkg/utils"
)

// Kind tags an analysis failure with its cause so callers can categorize
// it without inspecting message text.
type Kind string

const (
	KindAuth             Kind = "auth"
	KindTimeout          Kind = "timeout"
	KindQuota            Kind = "quota"
	KindNetwork          Kind = "network"
	KindModelUnavailable Kind = "model-unavailable"
	KindBadResponse      Kind = "bad-response"
	KindUnknown          Kind = "unknown"
)

// Error is a tagged failure from an AI provider call.
type Error struct {
	Kind       Kind
	StatusCode int
	Provider   string
	Err        error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s %s error", e.Provider, e.Kind)
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.StatusCode)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// FromStatus tags a non-2xx provider response.
func FromStatus(provider string, status int, body string) *Error {
	kind := KindUnknown
	switch {
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		kind = KindAuth
	case status == http.StatusTooManyRequests:
		kind = KindQuota
	case status == http.StatusRequestTimeout, status == http.StatusGatewayTimeout:
		kind = KindTimeout
	case status == http.StatusNotFound,
		status == http.StatusBadGateway,
		status == http.StatusServiceUnavailable,
		status == 529: // anthropic overloaded
		kind = KindModelUnavailable
	}

	var err error
	if body != "" {
		err = errors.New(utils.Truncate(body, 512))
	}

	return &Error{
		Kind:       kind,
		StatusCode: status,
		Provider:   provider,
		Err:        err,
	}
}

// FromTransport tags an error returned by the HTTP client.
func FromTransport(provider string, err error) *Error {
	kind := KindNetwork

	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		kind = KindTimeout
	case errors.As(err, &netErr) && netErr.Timeout():
		kind = KindTimeout
	case errors.Is(err, context.Canceled):
		kind = KindUnknown
	}

	return &Error{
		Kind:     kind,
		Provider: provider,
		Err:      err,
	}
}

func badResponse(provider string, err error) *Error {
	return &Error{
		Kind:     KindBadResponse,
		Provider: provider,
		Err:      err,
	}
}
