package resilience

import (
	"context"
	"errors"
	"net"
	"net/http"

	"github.com/kirillkom/decision-assistant/internal/core/domain"
)

var (
	// Transient failures are retried and count against the breaker.
	Transient = ErrorClassification{Retryable: true, RecordFailure: true}
	// Permanent failures fail fast but still count against the breaker.
	Permanent = ErrorClassification{RecordFailure: true}
	// Ignored failures neither retry nor trip the breaker.
	Ignored = ErrorClassification{}
)

// RetryableHTTPStatus reports whether a backend response code is worth another attempt.
func RetryableHTTPStatus(code int) bool {
	switch code {
	case http.StatusRequestTimeout,
		http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}

// ClassifyTransport covers the failure modes every backend shares: caller
// cancellation and network errors. ok is false when err is neither, leaving
// the decision to the backend-specific classifier.
func ClassifyTransport(err error) (ErrorClassification, bool) {
	switch {
	case err == nil:
		return Ignored, true
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return Ignored, true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return Transient, true
	}
	return ErrorClassification{}, false
}

// MarkTemporary wraps err as domain.ErrTemporary when the classifier deems it
// retryable or the breaker rejected the call. Other errors pass through.
func MarkTemporary(operation string, err error, classifier ErrorClassifier) error {
	if err == nil || domain.IsKind(err, domain.ErrTemporary) {
		return err
	}
	if IsCircuitOpen(err) || (classifier != nil && classifier(err).Retryable) {
		return domain.WrapError(domain.ErrTemporary, operation, err)
	}
	return err
}
