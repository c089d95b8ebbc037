package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	domain "course-enrollment/internal/domain/enrollment"
	interfaces "course-enrollment/internal/interfaces/infrastructure"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// GradeHistoryRepository reads the grade_records table owned by the academic
// records system. Plain sqlx rather than the ORM: the table is external and
// read-only here, so the queries are written out.
type GradeHistoryRepository struct {
	db *sqlx.DB
}

func NewGradeHistoryRepository(db *sqlx.DB) interfaces.GradeHistoryRepository {
	return &GradeHistoryRepository{
		db: db,
	}
}

func (r *GradeHistoryRepository) ListByStudent(ctx context.Context, studentID uuid.UUID) ([]*domain.GradeRecord, error) {
	var records []*domain.GradeRecord
	err := r.db.SelectContext(ctx, &records,
		`SELECT student_id, course_id, points
		 FROM grade_records
		 WHERE student_id = $1`, studentID)
	if err != nil {
		return nil, fmt.Errorf("failed to query grade records for student %s: %w", studentID, err)
	}
	return records, nil
}

func (r *GradeHistoryRepository) GetByStudentAndCourse(ctx context.Context, studentID, courseID uuid.UUID) (*domain.GradeRecord, error) {
	var record domain.GradeRecord
	err := r.db.GetContext(ctx, &record,
		`SELECT student_id, course_id, points
		 FROM grade_records
		 WHERE student_id = $1 AND course_id = $2`, studentID, courseID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query grade record: %w", err)
	}
	return &record, nil
}
