package core

// write_limiter.go bounds how many mutating entity operations run at once.
//
// Every backend rewrites or locks a whole table per mutation, so a burst of
// writes queues on the semaphore instead of piling onto storage. Requests
// that wait longer than maxWait fail with ErrTooManyWrites. WaitForDrain
// lets shutdown wait for in-flight writes.

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrTooManyWrites is returned when every write slot stays occupied for the
// whole wait timeout. Clients should retry after a short delay.
var ErrTooManyWrites = errors.New("too many concurrent writes, please try again later")

// DefaultMaxConcurrentWrites is the default limit for parallel mutations.
const DefaultMaxConcurrentWrites = 8

// DefaultMaxWriteWait is how long to wait for a slot before rejecting.
const DefaultMaxWriteWait = 10 * time.Second

// WriteLimiter is a counting semaphore over mutating operations.
type WriteLimiter struct {
	semaphore chan struct{}
	maxWait   time.Duration

	mu     sync.RWMutex
	active int
}

// NewWriteLimiter allows at most maxConcurrent simultaneous writes.
func NewWriteLimiter(maxConcurrent int, maxWait time.Duration) *WriteLimiter {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrentWrites
	}
	if maxWait <= 0 {
		maxWait = DefaultMaxWriteWait
	}

	return &WriteLimiter{
		semaphore: make(chan struct{}, maxConcurrent),
		maxWait:   maxWait,
	}
}

// Acquire takes a write slot. The caller must Release it.
func (l *WriteLimiter) Acquire(ctx context.Context) error {
	waitCtx, cancel := context.WithTimeout(ctx, l.maxWait)
	defer cancel()

	select {
	case l.semaphore <- struct{}{}:
		l.mu.Lock()
		l.active++
		l.mu.Unlock()
		return nil

	case <-waitCtx.Done():
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return ErrTooManyWrites
	}
}

// Release returns a slot taken by Acquire.
func (l *WriteLimiter) Release() {
	l.mu.Lock()
	l.active--
	l.mu.Unlock()

	<-l.semaphore
}

// ActiveCount returns the number of in-flight writes.
func (l *WriteLimiter) ActiveCount() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.active
}

// Available returns the number of free slots.
func (l *WriteLimiter) Available() int {
	return cap(l.semaphore) - len(l.semaphore)
}

// WaitForDrain blocks until no write is in flight or ctx is done.
func (l *WriteLimiter) WaitForDrain(ctx context.Context) error {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		if l.ActiveCount() == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// WriteLimiterStatus is a point-in-time view of the limiter.
type WriteLimiterStatus struct {
	Active        int `json:"active"`
	Available     int `json:"available"`
	MaxConcurrent int `json:"max_concurrent"`
}

// Status returns the current limiter state for the health endpoint.
func (l *WriteLimiter) Status() WriteLimiterStatus {
	l.mu.RLock()
	active := l.active
	l.mu.RUnlock()

	return WriteLimiterStatus{
		Active:        active,
		Available:     l.Available(),
		MaxConcurrent: cap(l.semaphore),
	}
}
