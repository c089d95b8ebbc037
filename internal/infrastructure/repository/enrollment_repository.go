package repository

import (
	"context"

	domain "course-enrollment/internal/domain/enrollment"
	interfaces "course-enrollment/internal/interfaces/infrastructure"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type EnrollmentRepository struct {
	db *gorm.DB
}

func NewEnrollmentRepository(db *gorm.DB) interfaces.EnrollmentRepository {
	return &EnrollmentRepository{
		db: db,
	}
}

func (r *EnrollmentRepository) Create(ctx context.Context, enrollment *domain.Enrollment) error {
	return r.db.WithContext(ctx).Create(enrollment).Error
}

func (r *EnrollmentRepository) Update(ctx context.Context, enrollment *domain.Enrollment) error {
	return r.db.WithContext(ctx).Save(enrollment).Error
}

func (r *EnrollmentRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Enrollment, error) {
	var enrollment domain.Enrollment
	err := r.db.WithContext(ctx).First(&enrollment, "enrollment_id = ?", id).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &enrollment, nil
}

func (r *EnrollmentRepository) GetLiveByStudentAndCourse(ctx context.Context, studentID, courseID uuid.UUID) (*domain.Enrollment, error) {
	var enrollment domain.Enrollment
	err := r.db.WithContext(ctx).
		Where("student_id = ? AND course_id = ? AND status IN ? AND active = ?",
			studentID, courseID, domain.LiveStatuses, true).
		First(&enrollment).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &enrollment, nil
}

func (r *EnrollmentRepository) GetLatestByStudentAndCourse(ctx context.Context, studentID, courseID uuid.UUID) (*domain.Enrollment, error) {
	var enrollment domain.Enrollment
	err := r.db.WithContext(ctx).
		Where("student_id = ? AND course_id = ?", studentID, courseID).
		Order("created_at DESC").
		First(&enrollment).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &enrollment, nil
}

func (r *EnrollmentRepository) ListLiveByStudentAndSemester(ctx context.Context, studentID, semesterID uuid.UUID) ([]*domain.Enrollment, error) {
	var enrollments []*domain.Enrollment
	err := r.db.WithContext(ctx).
		Where("student_id = ? AND semester_id = ? AND status IN ? AND active = ?",
			studentID, semesterID, domain.LiveStatuses, true).
		Order("enrolled_at ASC").
		Find(&enrollments).Error
	if err != nil {
		return nil, err
	}
	return enrollments, nil
}

func (r *EnrollmentRepository) ListByStudent(ctx context.Context, studentID uuid.UUID) ([]*domain.Enrollment, error) {
	var enrollments []*domain.Enrollment
	err := r.db.WithContext(ctx).
		Where("student_id = ?", studentID).
		Order("enrolled_at DESC").
		Find(&enrollments).Error
	if err != nil {
		return nil, err
	}
	return enrollments, nil
}

func (r *EnrollmentRepository) ListByCourseAndStatus(ctx context.Context, courseID uuid.UUID, status domain.EnrollmentStatus) ([]*domain.Enrollment, error) {
	query := r.db.WithContext(ctx).
		Where("course_id = ? AND status = ? AND active = ?", courseID, status, true)
	if status == domain.StatusWaitlisted {
		query = query.Order("waitlist_position ASC")
	} else {
		query = query.Order("enrolled_at ASC")
	}

	var enrollments []*domain.Enrollment
	if err := query.Find(&enrollments).Error; err != nil {
		return nil, err
	}
	return enrollments, nil
}

func (r *EnrollmentRepository) CountByCourseAndStatus(ctx context.Context, courseID uuid.UUID, status domain.EnrollmentStatus) (int, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&domain.Enrollment{}).
		Where("course_id = ? AND status = ? AND active = ?", courseID, status, true).
		Count(&count).Error
	if err != nil {
		return 0, err
	}
	return int(count), nil
}

func (r *EnrollmentRepository) ListPendingByPayment(ctx context.Context, paymentID uuid.UUID) ([]*domain.Enrollment, error) {
	var enrollments []*domain.Enrollment
	err := r.db.WithContext(ctx).
		Where("payment_id = ? AND status = ? AND active = ?", paymentID, domain.StatusPendingPayment, true).
		Order("enrolled_at ASC").
		Find(&enrollments).Error
	if err != nil {
		return nil, err
	}
	return enrollments, nil
}

func (r *EnrollmentRepository) ListBySemesterAndStatus(ctx context.Context, semesterID uuid.UUID, status domain.EnrollmentStatus) ([]*domain.Enrollment, error) {
	var enrollments []*domain.Enrollment
	err := r.db.WithContext(ctx).
		Where("semester_id = ? AND status = ? AND active = ?", semesterID, status, true).
		Order("enrolled_at ASC").
		Find(&enrollments).Error
	if err != nil {
		return nil, err
	}
	return enrollments, nil
}
