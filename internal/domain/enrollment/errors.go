package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Business errors raised by the admission engine and its validators. All of
// them are expected, caller-recoverable conditions; a guard failure aborts the
// whole operation with no partial mutation.

// CourseFullError is raised when a caller expected an immediate seat (for
// example an admin forcing activation) and capacity is exhausted.
type CourseFullError struct {
	CourseCode string
	Capacity   int
}

func (e *CourseFullError) Error() string {
	return fmt.Sprintf("course %s is full (capacity %d)", e.CourseCode, e.Capacity)
}

// AlreadyEnrolledError is raised on a duplicate non-dropped enrollment for the
// same (student, course) pair.
type AlreadyEnrolledError struct {
	StudentID uuid.UUID
	CourseID  uuid.UUID
	Status    EnrollmentStatus
}

func (e *AlreadyEnrolledError) Error() string {
	return fmt.Sprintf("student %s already has a %s enrollment in course %s", e.StudentID, e.Status, e.CourseID)
}

// PrerequisiteNotMetError lists the declared prerequisites the student has no
// passing grade for.
type PrerequisiteNotMetError struct {
	CourseCode string
	Missing    []string
}

func (e *PrerequisiteNotMetError) Error() string {
	return fmt.Sprintf("prerequisites not met for %s: missing %s", e.CourseCode, strings.Join(e.Missing, ", "))
}

// ScheduleConflictError is raised when the candidate course's weekly window
// overlaps one of the student's committed enrollments.
type ScheduleConflictError struct {
	CourseCode     string
	ConflictsWith  string
	OverlapDay     Weekday
	OverlapStartMi int
	OverlapEndMin  int
}

func (e *ScheduleConflictError) Error() string {
	return fmt.Sprintf("course %s conflicts with %s on %s (%s-%s)",
		e.CourseCode, e.ConflictsWith, e.OverlapDay,
		formatMinutes(e.OverlapStartMi), formatMinutes(e.OverlapEndMin))
}

// CreditLimitExceededError reports the committed credit load that would break
// the per-term ceiling.
type CreditLimitExceededError struct {
	Current   int
	Candidate int
	Max       int
}

func (e *CreditLimitExceededError) Error() string {
	return fmt.Sprintf("credit limit exceeded: %d committed + %d candidate > %d max", e.Current, e.Candidate, e.Max)
}

// EnrollmentPeriodClosedError is raised when a request falls outside the
// semester's enrollment window.
type EnrollmentPeriodClosedError struct {
	SemesterCode string
	Opens        time.Time
	Closes       time.Time
}

func (e *EnrollmentPeriodClosedError) Error() string {
	return fmt.Sprintf("enrollment for semester %s is closed (open %s to %s)",
		e.SemesterCode, e.Opens.Format(time.RFC3339), e.Closes.Format(time.RFC3339))
}

// DropDeadlinePassedError is raised when a non-admin actor drops after the
// semester's drop deadline.
type DropDeadlinePassedError struct {
	SemesterCode string
	Deadline     time.Time
}

func (e *DropDeadlinePassedError) Error() string {
	return fmt.Sprintf("drop deadline for semester %s passed at %s", e.SemesterCode, e.Deadline.Format(time.RFC3339))
}

// ConcurrencyBusyError is raised when a per-course or per-student lock could
// not be acquired within the configured timeout. Safe to retry.
type ConcurrencyBusyError struct {
	Resource string
	Timeout  time.Duration
}

func (e *ConcurrencyBusyError) Error() string {
	return fmt.Sprintf("could not acquire lock on %s within %s, retry later", e.Resource, e.Timeout)
}

// InvalidStateTransitionError is raised when an event is requested against an
// enrollment whose current status does not permit it.
type InvalidStateTransitionError struct {
	EnrollmentID uuid.UUID
	From         EnrollmentStatus
	To           EnrollmentStatus
}

func (e *InvalidStateTransitionError) Error() string {
	return fmt.Sprintf("enrollment %s cannot transition from %s to %s", e.EnrollmentID, e.From, e.To)
}

// InvalidScheduleError reports a malformed schedule window (end before start),
// which is a caller precondition violation.
type InvalidScheduleError struct {
	StartMin int
	EndMin   int
}

func (e *InvalidScheduleError) Error() string {
	return fmt.Sprintf("invalid schedule window: end %s not after start %s",
		formatMinutes(e.EndMin), formatMinutes(e.StartMin))
}

// PermissionDeniedError is raised when a non-admin actor attempts an
// admin-only operation.
type PermissionDeniedError struct {
	ActorID   uuid.UUID
	Operation string
}

func (e *PermissionDeniedError) Error() string {
	return fmt.Sprintf("actor %s is not permitted to %s", e.ActorID, e.Operation)
}

// NotFoundError is raised when a referenced entity does not exist or has been
// soft-deleted.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.ID)
}

func formatMinutes(min int) string {
	return fmt.Sprintf("%02d:%02d", min/60, min%60)
}
