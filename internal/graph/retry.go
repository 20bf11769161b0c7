package graph

import (
	"math/rand"
	"time"
)

// Policy is the bounded-retry contract shared by every write path. Only
// transient failures (locked document, throttling, network) are retried;
// anything else propagates on the first attempt.
type Policy struct {
	Attempts  int
	BaseDelay time.Duration
	MaxDelay  time.Duration
	Jitter    time.Duration

	// Sleep is swappable so tests don't wait for real backoff.
	Sleep func(time.Duration)
}

// backoffGrowth is the per-attempt delay multiplier the SharePoint lock
// contention was tuned against.
const backoffGrowth = 1.6

// DefaultPolicy: 5 attempts, 1.6^(n-1) seconds capped at 10s, plus up to
// 0.8s of jitter.
func DefaultPolicy() Policy {
	return Policy{
		Attempts:  5,
		BaseDelay: time.Second,
		MaxDelay:  10 * time.Second,
		Jitter:    800 * time.Millisecond,
		Sleep:     time.Sleep,
	}
}

// Delay returns the backoff before retrying the given 1-based attempt.
// Jitter is applied after the cap so concurrent writers still spread out at
// the ceiling.
func (p Policy) Delay(attempt int) time.Duration {
	f := float64(p.BaseDelay)
	for i := 1; i < attempt; i++ {
		f *= backoffGrowth
	}
	d := time.Duration(f)
	if p.MaxDelay > 0 && d > p.MaxDelay {
		d = p.MaxDelay
	}
	if p.Jitter > 0 {
		d += time.Duration(rand.Int63n(int64(p.Jitter)))
	}
	return d
}

// Run executes op under the policy. After the attempt budget is exhausted it
// returns a *SaveFailedError naming the operation.
func (p Policy) Run(name string, op func() error) error {
	_, err := RunValue(p, name, func() (struct{}, error) {
		return struct{}{}, op()
	})
	return err
}

// RunValue is Run for operations that produce a value.
func RunValue[T any](p Policy, name string, op func() (T, error)) (T, error) {
	var zero T
	attempts := p.Attempts
	if attempts <= 0 {
		attempts = 1
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = time.Sleep
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		v, err := op()
		if err == nil {
			return v, nil
		}
		if !IsTransient(err) {
			return zero, err
		}
		lastErr = err
		if attempt < attempts {
			sleep(p.Delay(attempt))
		}
	}
	return zero, &SaveFailedError{Op: name, Attempts: attempts, Err: lastErr}
}
