// Package backoff computes retry wait schedules.
package backoff

import "time"

// Strategy computes the wait before a given retry.
type Strategy interface {
	// Delay returns the wait before retry number retry (1-indexed) given
	// the base delay.
	Delay(retry int, base time.Duration) time.Duration
}

// Linear waits base*retry: D, 2D, 3D, ...
type Linear struct{}

func (Linear) Delay(retry int, base time.Duration) time.Duration {
	if retry < 1 {
		retry = 1
	}
	return time.Duration(retry) * base
}

// Exponential waits base*2^(retry-1): D, 2D, 4D, 8D, ...
type Exponential struct{}

func (Exponential) Delay(retry int, base time.Duration) time.Duration {
	if retry < 1 {
		retry = 1
	}
	// Past 2^31 the schedule is meaningless; clamp to avoid overflow.
	if retry > 32 {
		retry = 32
	}
	return base * time.Duration(uint64(1)<<uint(retry-1))
}
