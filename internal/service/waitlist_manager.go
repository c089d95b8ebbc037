package service

import (
	"context"
	"fmt"
	"time"

	domain "course-enrollment/internal/domain/enrollment"
	interfaces "course-enrollment/internal/interfaces/infrastructure"

	"github.com/google/uuid"
)

// WaitlistManager keeps each course's waiting enrollments in a gap-free,
// 1-based FIFO order. The queue lives on the Enrollment rows themselves
// (status WAITLISTED plus WaitlistPosition), so queue and position field can
// only change together. Every method must be called with the course lock
// held; the manager never takes locks of its own.
type WaitlistManager struct {
	enrollments interfaces.EnrollmentRepository
}

func NewWaitlistManager(enrollments interfaces.EnrollmentRepository) *WaitlistManager {
	return &WaitlistManager{enrollments: enrollments}
}

// Enqueue appends the enrollment at the tail of its course's waitlist,
// setting status and position on the passed enrollment. Persisting the
// enrollment itself is left to the caller so create and demote paths share
// one code path.
func (m *WaitlistManager) Enqueue(ctx context.Context, e *domain.Enrollment) (int, error) {
	n, err := m.enrollments.CountByCourseAndStatus(ctx, e.CourseID, domain.StatusWaitlisted)
	if err != nil {
		return 0, fmt.Errorf("failed to count waitlist for course %s: %w", e.CourseID, err)
	}
	position := n + 1
	e.Status = domain.StatusWaitlisted
	e.WaitlistPosition = &position
	return position, nil
}

// DequeueHead removes the position-1 entry, renumbers the remainder down by
// one and returns the head. The head's own status change and persistence are
// the caller's: the manager only guarantees the rest of the queue is
// contiguous again. Returns nil when the waitlist is empty.
func (m *WaitlistManager) DequeueHead(ctx context.Context, courseID uuid.UUID, now time.Time) (*domain.Enrollment, error) {
	entries, err := m.enrollments.ListByCourseAndStatus(ctx, courseID, domain.StatusWaitlisted)
	if err != nil {
		return nil, fmt.Errorf("failed to list waitlist for course %s: %w", courseID, err)
	}
	if len(entries) == 0 {
		return nil, nil
	}
	head := entries[0]
	if err := m.renumber(ctx, entries[1:], now); err != nil {
		return nil, err
	}
	return head, nil
}

// Remove takes an arbitrary entry out of the queue (a waitlisted student
// dropping voluntarily) and renumbers every entry behind it down by one.
func (m *WaitlistManager) Remove(ctx context.Context, e *domain.Enrollment, now time.Time) error {
	entries, err := m.enrollments.ListByCourseAndStatus(ctx, e.CourseID, domain.StatusWaitlisted)
	if err != nil {
		return fmt.Errorf("failed to list waitlist for course %s: %w", e.CourseID, err)
	}
	idx := -1
	for i, entry := range entries {
		if entry.EnrollmentID == e.EnrollmentID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return fmt.Errorf("enrollment %s is not on the waitlist for course %s", e.EnrollmentID, e.CourseID)
	}
	return m.renumber(ctx, entries[idx+1:], now)
}

// List returns the course's waitlist in promotion order.
func (m *WaitlistManager) List(ctx context.Context, courseID uuid.UUID) ([]*domain.Enrollment, error) {
	return m.enrollments.ListByCourseAndStatus(ctx, courseID, domain.StatusWaitlisted)
}

func (m *WaitlistManager) renumber(ctx context.Context, tail []*domain.Enrollment, now time.Time) error {
	for _, entry := range tail {
		if entry.WaitlistPosition == nil {
			return fmt.Errorf("waitlisted enrollment %s has no position", entry.EnrollmentID)
		}
		position := *entry.WaitlistPosition - 1
		entry.WaitlistPosition = &position
		entry.Touch(now)
		if err := m.enrollments.Update(ctx, entry); err != nil {
			return fmt.Errorf("failed to renumber enrollment %s: %w", entry.EnrollmentID, err)
		}
	}
	return nil
}
