package domain

import (
	"errors"
	"fmt"
)

// Error kinds surfaced by the retrieval pipeline. Handlers map each kind to
// an HTTP status; callers classify with IsKind through wrap chains.
var (
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrBackendUnavailable = errors.New("search backend unavailable")
	ErrEmbeddingFailure   = errors.New("embedding service failure")
	ErrSummarizerFailure  = errors.New("summarizer failure")
	ErrTimeout            = errors.New("deadline exceeded")
	ErrBusy               = errors.New("server busy")
	ErrNotFound           = errors.New("not found")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

// Invalid builds an InvalidArgument error for a rejected input.
func Invalid(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}
