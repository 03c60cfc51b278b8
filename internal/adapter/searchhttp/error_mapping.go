package searchhttp

import (
	"net/http"

	"case-retriever/internal/domain"
)

// mapErrorStatus translates a domain error kind into its HTTP status. The
// timeout check runs before the backend kinds so a deadline that wraps a
// remote failure still maps to 504.
func mapErrorStatus(err error) int {
	switch {
	case domain.IsKind(err, domain.ErrInvalidArgument):
		return http.StatusBadRequest
	case domain.IsKind(err, domain.ErrNotFound):
		return http.StatusNotFound
	case domain.IsKind(err, domain.ErrBusy):
		return http.StatusTooManyRequests
	case domain.IsKind(err, domain.ErrTimeout):
		return http.StatusGatewayTimeout
	case domain.IsKind(err, domain.ErrEmbeddingFailure):
		return http.StatusBadGateway
	case domain.IsKind(err, domain.ErrSummarizerFailure):
		return http.StatusBadGateway
	case domain.IsKind(err, domain.ErrBackendUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
