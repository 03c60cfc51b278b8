package modelgateway

import (
	"errors"
	"fmt"
	"net/http"

	"case-retriever/internal/infra/resilience"
)

// gatewayError carries the HTTP status of a failed gateway call so the retry
// classifier can distinguish transient failures from rejected requests.
type gatewayError struct {
	StatusCode int
	Body       string
}

func (e *gatewayError) Error() string {
	return fmt.Sprintf("gateway returned %d: %s", e.StatusCode, e.Body)
}

// transientClassifier retries server-side and network failures. Client-side
// rejections (4xx) are neither retried nor counted against the breaker,
// except 429 which signals pressure worth backing off from.
func transientClassifier(err error) resilience.ErrorClassification {
	var gwErr *gatewayError
	if errors.As(err, &gwErr) {
		transient := gwErr.StatusCode >= http.StatusInternalServerError ||
			gwErr.StatusCode == http.StatusTooManyRequests
		return resilience.ErrorClassification{Retryable: transient, RecordFailure: transient}
	}
	return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
}

func truncateString(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
