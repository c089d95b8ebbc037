package domain

import (
	"time"

	"github.com/google/uuid"
)

// EventType names the fire-and-forget notifications the engine emits for the
// external notification subsystem.
type EventType string

const (
	EventEnrollmentActivated  EventType = "ENROLLMENT_ACTIVATED"
	EventEnrollmentWaitlisted EventType = "ENROLLMENT_WAITLISTED"
	EventEnrollmentPromoted   EventType = "ENROLLMENT_PROMOTED"
	EventEnrollmentDropped    EventType = "ENROLLMENT_DROPPED"
	EventPaymentApproved      EventType = "ENROLLMENT_PAYMENT_APPROVED"
)

// Event is a domain event describing an enrollment state change. Position is
// set only for waitlist events.
type Event struct {
	Type      EventType `json:"type"`
	StudentID uuid.UUID `json:"student_id"`
	CourseID  uuid.UUID `json:"course_id"`
	PaymentID uuid.UUID `json:"payment_id,omitempty"`
	Position  int       `json:"position,omitempty"`
	At        time.Time `json:"at"`
}
