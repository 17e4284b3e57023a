package domain

import "time"

// DefaultBaseDelay is the backoff unit between attempts.
const DefaultBaseDelay = 2 * time.Second

// Policy decides whether a failed attempt is retried and how long to wait.
// Backoff grows linearly with the attempt number, which bounds the total
// wait for small MaxAttempts.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
}

// NewPolicy returns a policy with the given attempt cap and the default
// backoff unit.
func NewPolicy(maxAttempts int) Policy {
	return Policy{MaxAttempts: maxAttempts, BaseDelay: DefaultBaseDelay}
}

// Decision is the outcome of a retry evaluation.
type Decision struct {
	Retry bool
	// Delay before the next attempt, set only when Retry is true.
	Delay time.Duration
	// Reason is the classified failure category, set only on final failure.
	Reason Category
}

// Decide evaluates a failed attempt. attempt starts at 1. Non-transient
// categories fail immediately; transient ones retry with linear backoff
// until the attempt cap is reached.
func (p Policy) Decide(attempt int, c Category) Decision {
	if !c.Transient() || attempt >= p.MaxAttempts {
		return Decision{Reason: c}
	}
	base := p.BaseDelay
	if base <= 0 {
		base = DefaultBaseDelay
	}
	return Decision{Retry: true, Delay: time.Duration(attempt) * base}
}
