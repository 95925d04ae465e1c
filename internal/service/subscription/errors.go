package subscription

import "errors"

// Sentinel errors for the subscription storage layer. Both map to HTTP 500
// at the API boundary; callers that care (metrics, logs) can tell them apart.
var (
	ErrDuplicate   = errors.New("subscriber already exists")
	ErrUnavailable = errors.New("subscription storage unavailable")
)
