package service

import (
	"context"

	domain "course-enrollment/internal/domain/enrollment"

	"github.com/google/uuid"
)

// EnrollRequest asks for admission of one student into one course.
type EnrollRequest struct {
	StudentID uuid.UUID `json:"student_id" validate:"required"`
	CourseID  uuid.UUID `json:"course_id" validate:"required"`
}

// EnrollResponse reports the admission decision.
type EnrollResponse struct {
	EnrollmentID uuid.UUID               `json:"enrollment_id"`
	Status       domain.EnrollmentStatus `json:"status"`
	Position     *int                    `json:"waitlist_position,omitempty"`
}

// DropRequest drops a live enrollment. The actor decides whether the drop
// deadline may be overridden.
type DropRequest struct {
	StudentID uuid.UUID `json:"student_id" validate:"required"`
	CourseID  uuid.UUID `json:"course_id" validate:"required"`
}

// EnrollmentService is the admission control surface consumed by the API
// layer. Every operation is synchronous; failures are the typed business
// errors of the domain package.
type EnrollmentService interface {
	RequestEnroll(ctx context.Context, req *EnrollRequest) (*EnrollResponse, error)
	Drop(ctx context.Context, req *DropRequest, actor domain.Actor) error
	ApprovePayment(ctx context.Context, paymentID uuid.UUID) error
	RejectPayment(ctx context.Context, paymentID uuid.UUID) error
	ForceActivate(ctx context.Context, enrollmentID uuid.UUID, actor domain.Actor) error
	FinalizeSemester(ctx context.Context, semesterID uuid.UUID) (int, error)

	ListStudentEnrollments(ctx context.Context, studentID uuid.UUID) ([]*domain.Enrollment, error)
	ListCourseWaitlist(ctx context.Context, courseID uuid.UUID) ([]*domain.Enrollment, error)
	ListAvailableCourses(ctx context.Context, semesterID uuid.UUID) ([]*domain.Course, error)
}
