package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
)

type ErrorKind string

const (
	KindNetwork ErrorKind = "network"
	KindAuth    ErrorKind = "auth"
	KindQuota   ErrorKind = "quota"
	KindOther   ErrorKind = "other"
)

// ServiceError is the only error shape a Completer returns.
type ServiceError struct {
	Provider string
	Kind     ErrorKind
	Status   int // HTTP status when the provider answered, else 0
	Err      error
}

func (e *ServiceError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("llm %s %s error (status %d): %v", e.Provider, e.Kind, e.Status, e.Err)
	}
	return fmt.Sprintf("llm %s %s error: %v", e.Provider, e.Kind, e.Err)
}

func (e *ServiceError) Unwrap() error { return e.Err }

func kindForStatus(status int) ErrorKind {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return KindAuth
	case status == http.StatusTooManyRequests:
		return KindQuota
	case status == http.StatusRequestTimeout || status == http.StatusBadGateway ||
		status == http.StatusServiceUnavailable || status == http.StatusGatewayTimeout:
		return KindNetwork
	default:
		return KindOther
	}
}

// isNetworkError reports transport level failures: dial errors, timeouts and
// cancelled requests.
func isNetworkError(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var urlErr *url.Error
	return errors.As(err, &urlErr)
}

func newServiceError(provider string, status int, err error) *ServiceError {
	var existing *ServiceError
	if errors.As(err, &existing) {
		return existing
	}
	kind := KindOther
	switch {
	case status != 0:
		kind = kindForStatus(status)
	case isNetworkError(err):
		kind = KindNetwork
	}
	return &ServiceError{Provider: provider, Kind: kind, Status: status, Err: err}
}
