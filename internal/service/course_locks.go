package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	domain "course-enrollment/internal/domain/enrollment"

	"github.com/google/uuid"
)

// lockRegistry hands out keyed exclusive locks. Every capacity read, capacity
// write and waitlist mutation for a course happens under that course's lock;
// a second key scope serializes a single student's concurrent enroll requests
// within a semester. Locks are channel-based so acquisition can be bounded by
// a timeout instead of blocking indefinitely.
type lockRegistry struct {
	mu    sync.Mutex
	locks map[string]chan struct{}
}

func newLockRegistry() *lockRegistry {
	return &lockRegistry{locks: make(map[string]chan struct{})}
}

func (r *lockRegistry) get(key string) chan struct{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	ch, ok := r.locks[key]
	if !ok {
		ch = make(chan struct{}, 1)
		r.locks[key] = ch
	}
	return ch
}

// Acquire takes the lock for key, failing with ConcurrencyBusyError when it
// cannot be had within timeout. The returned function releases the lock.
func (r *lockRegistry) Acquire(ctx context.Context, key string, timeout time.Duration) (func(), error) {
	ch := r.get(key)

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case ch <- struct{}{}:
		return func() { <-ch }, nil
	case <-timer.C:
		return nil, &domain.ConcurrencyBusyError{Resource: key, Timeout: timeout}
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func courseLockKey(courseID uuid.UUID) string {
	return fmt.Sprintf("course:%s", courseID)
}

func studentLockKey(studentID, semesterID uuid.UUID) string {
	return fmt.Sprintf("student:%s:%s", studentID, semesterID)
}
