package transport

import "time"

// RetryPolicy is the enumerated retry configuration set from spec.md §4.4.
type RetryPolicy struct {
	MaxAttempts        int
	InitialBackoff     time.Duration
	MaxBackoff         time.Duration
	BackoffMultiplier  float64
	RetryableStatus    map[int]bool
	RetryOnPartialRead bool
}

// DefaultRetryPolicy matches spec.md §4.4's named default retryable status
// set (408, 429, 5xx) with a modest exponential backoff.
func DefaultRetryPolicy() RetryPolicy {
	statuses := map[int]bool{408: true, 429: true}
	for code := 500; code < 600; code++ {
		statuses[code] = true
	}
	return RetryPolicy{
		MaxAttempts:        3,
		InitialBackoff:     200 * time.Millisecond,
		MaxBackoff:         5 * time.Second,
		BackoffMultiplier:  2.0,
		RetryableStatus:    statuses,
		RetryOnPartialRead: true,
	}
}
