package domain

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	// ErrInvalidRequest is returned when request parameters are invalid
	ErrInvalidRequest = errors.New("invalid request parameters")

	// ErrNotFound is returned when a product or match does not exist
	ErrNotFound = errors.New("not found")

	// ErrInvalidTransition is returned when a match status change is not permitted
	ErrInvalidTransition = errors.New("invalid match status transition")

	// ErrMalformedCandidate is returned for a catalog record that cannot be scored
	ErrMalformedCandidate = errors.New("malformed candidate")

	// ErrCatalogUnavailable is returned when an external catalog fails transiently
	ErrCatalogUnavailable = errors.New("catalog unavailable")

	// ErrRateLimitTimeout is returned when the rate budget could not be acquired in time
	ErrRateLimitTimeout = errors.New("rate limit wait timed out")

	// ErrInvalidCredentials is returned when a catalog rejects our credentials
	ErrInvalidCredentials = errors.New("invalid catalog credentials")

	// ErrProductReferenced is returned when deleting a product that matches still point at
	ErrProductReferenced = errors.New("product is referenced by matches")

	// ErrCacheMiss is returned when data is not found in cache
	ErrCacheMiss = errors.New("cache miss")

	// ErrCacheUnavailable is returned when cache service is unavailable
	ErrCacheUnavailable = errors.New("cache service unavailable")
)

// TransitionError describes a rejected state change
type TransitionError struct {
	MatchID uuid.UUID
	From    MatchStatus
	Event   MatchEvent
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s: cannot apply %s to match %s in status %s",
		ErrInvalidTransition, e.Event, e.MatchID, e.From)
}

// Is lets errors.Is(err, ErrInvalidTransition) match a *TransitionError
func (e *TransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}

// IsRetryable reports whether err is a transient catalog failure worth retrying
func IsRetryable(err error) bool {
	return errors.Is(err, ErrCatalogUnavailable) || errors.Is(err, ErrRateLimitTimeout)
}
