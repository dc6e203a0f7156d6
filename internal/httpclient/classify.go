package httpclient

import (
	"context"
	"net"
	"net/http"
	"strings"
	"syscall"

	"github.com/teranos/samplegen/errors"
)

// maxErrorBody bounds how much of a failed response body ends up in an error
const maxErrorBody = 512

// ClassifyTransport marks a failed round trip (or body read) as ErrTimeout
// when a deadline passed, ErrServiceUnavailable when nothing answered, and
// ErrInferenceFailed otherwise. The message is kept.
func ClassifyTransport(err error, msg string) error {
	if err == nil {
		return nil
	}
	wrapped := errors.Wrap(err, msg)
	switch {
	case IsTimeout(err):
		return errors.Mark(wrapped, errors.ErrTimeout)
	case IsConnectionFailure(err):
		return errors.Mark(wrapped, errors.ErrServiceUnavailable)
	default:
		return errors.Mark(wrapped, errors.ErrInferenceFailed)
	}
}

// ClassifyStatus turns a non-200 response into an error. 404 and 503 mean the
// model or runtime is not serving; 408 and 504 are timeouts.
func ClassifyStatus(status int, body []byte) error {
	text := strings.TrimSpace(string(body))
	if len(text) > maxErrorBody {
		text = text[:maxErrorBody] + "..."
	}
	err := errors.Newf("inference returned status %d: %s", status, text)
	switch status {
	case http.StatusNotFound, http.StatusServiceUnavailable, http.StatusBadGateway:
		return errors.Mark(err, errors.ErrServiceUnavailable)
	case http.StatusRequestTimeout, http.StatusGatewayTimeout:
		return errors.Mark(err, errors.ErrTimeout)
	default:
		return errors.Mark(err, errors.ErrInferenceFailed)
	}
}

// IsTimeout reports deadline and client-timeout failures
func IsTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "timeout")
}

// IsConnectionFailure reports refused, reset and unreachable connections
func IsConnectionFailure(err error) bool {
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ENETUNREACH) || errors.Is(err, syscall.EHOSTUNREACH) {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	errStr := strings.ToLower(err.Error())
	for _, s := range []string{"connection refused", "connection reset by peer", "network is unreachable", "no such host"} {
		if strings.Contains(errStr, s) {
			return true
		}
	}
	return false
}
