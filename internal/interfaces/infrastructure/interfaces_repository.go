package interfaces

import (
	"context"

	domain "course-enrollment/internal/domain/enrollment"

	"github.com/google/uuid"
)

type CourseRepository interface {
	Create(ctx context.Context, course *domain.Course) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Course, error)
	GetByCode(ctx context.Context, courseCode string) (*domain.Course, error)
	ListBySemester(ctx context.Context, semesterID uuid.UUID) ([]*domain.Course, error)
	// GetPrerequisites returns the directly declared prerequisite courses.
	GetPrerequisites(ctx context.Context, courseID uuid.UUID) ([]*domain.Course, error)
	AddPrerequisite(ctx context.Context, courseID, requiresCourseID uuid.UUID) error
}

type SemesterRepository interface {
	Create(ctx context.Context, semester *domain.Semester) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Semester, error)
	GetCurrent(ctx context.Context) (*domain.Semester, error)
}

type EnrollmentRepository interface {
	Create(ctx context.Context, enrollment *domain.Enrollment) error
	Update(ctx context.Context, enrollment *domain.Enrollment) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Enrollment, error)
	// GetLiveByStudentAndCourse returns the single non-dropped, non-deleted
	// enrollment for the pair, or nil when none exists.
	GetLiveByStudentAndCourse(ctx context.Context, studentID, courseID uuid.UUID) (*domain.Enrollment, error)
	// GetLatestByStudentAndCourse also sees terminal enrollments, newest first.
	GetLatestByStudentAndCourse(ctx context.Context, studentID, courseID uuid.UUID) (*domain.Enrollment, error)
	ListLiveByStudentAndSemester(ctx context.Context, studentID, semesterID uuid.UUID) ([]*domain.Enrollment, error)
	ListByStudent(ctx context.Context, studentID uuid.UUID) ([]*domain.Enrollment, error)
	// ListByCourseAndStatus orders WAITLISTED rows by position and everything
	// else by enrollment time.
	ListByCourseAndStatus(ctx context.Context, courseID uuid.UUID, status domain.EnrollmentStatus) ([]*domain.Enrollment, error)
	CountByCourseAndStatus(ctx context.Context, courseID uuid.UUID, status domain.EnrollmentStatus) (int, error)
	// ListPendingByPayment returns PENDING_PAYMENT enrollments backed by the
	// payment, oldest enrollment first.
	ListPendingByPayment(ctx context.Context, paymentID uuid.UUID) ([]*domain.Enrollment, error)
	ListBySemesterAndStatus(ctx context.Context, semesterID uuid.UUID, status domain.EnrollmentStatus) ([]*domain.Enrollment, error)
}

type PaymentRepository interface {
	Create(ctx context.Context, payment *domain.Payment) error
	Update(ctx context.Context, payment *domain.Payment) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Payment, error)
	GetByStudentAndSemester(ctx context.Context, studentID, semesterID uuid.UUID) (*domain.Payment, error)
}

// GradeHistoryRepository reads passing-grade records owned by the external
// records system. Read-only by contract.
type GradeHistoryRepository interface {
	ListByStudent(ctx context.Context, studentID uuid.UUID) ([]*domain.GradeRecord, error)
	GetByStudentAndCourse(ctx context.Context, studentID, courseID uuid.UUID) (*domain.GradeRecord, error)
}

type IdempotencyRepository interface {
	Create(ctx context.Context, key *domain.IdempotencyKey) error
	GetByKey(ctx context.Context, key string) (*domain.IdempotencyKey, error)
	Delete(ctx context.Context, key string) error
}
