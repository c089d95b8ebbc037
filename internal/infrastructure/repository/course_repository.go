package repository

import (
	"context"

	domain "course-enrollment/internal/domain/enrollment"
	interfaces "course-enrollment/internal/interfaces/infrastructure"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type CourseRepository struct {
	db *gorm.DB
}

func NewCourseRepository(db *gorm.DB) interfaces.CourseRepository {
	return &CourseRepository{
		db: db,
	}
}

func (r *CourseRepository) Create(ctx context.Context, course *domain.Course) error {
	return r.db.WithContext(ctx).Create(course).Error
}

func (r *CourseRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Course, error) {
	var course domain.Course
	err := r.db.WithContext(ctx).First(&course, "course_id = ?", id).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &course, nil
}

func (r *CourseRepository) GetByCode(ctx context.Context, courseCode string) (*domain.Course, error) {
	var course domain.Course
	err := r.db.WithContext(ctx).First(&course, "course_code = ?", courseCode).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &course, nil
}

func (r *CourseRepository) ListBySemester(ctx context.Context, semesterID uuid.UUID) ([]*domain.Course, error) {
	var courses []*domain.Course
	err := r.db.WithContext(ctx).
		Where("semester_id = ? AND active = ?", semesterID, true).
		Order("course_code ASC").
		Find(&courses).Error
	if err != nil {
		return nil, err
	}
	return courses, nil
}

func (r *CourseRepository) GetPrerequisites(ctx context.Context, courseID uuid.UUID) ([]*domain.Course, error) {
	var courses []*domain.Course
	err := r.db.WithContext(ctx).
		Joins("JOIN course_prerequisites cp ON cp.requires_course_id = courses.course_id").
		Where("cp.course_id = ?", courseID).
		Find(&courses).Error
	if err != nil {
		return nil, err
	}
	return courses, nil
}

func (r *CourseRepository) AddPrerequisite(ctx context.Context, courseID, requiresCourseID uuid.UUID) error {
	return r.db.WithContext(ctx).Create(&domain.CoursePrerequisite{
		CourseID:         courseID,
		RequiresCourseID: requiresCourseID,
	}).Error
}
