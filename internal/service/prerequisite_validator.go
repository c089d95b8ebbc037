package service

import (
	"context"
	"fmt"
	"sort"

	domain "course-enrollment/internal/domain/enrollment"
	interfaces "course-enrollment/internal/interfaces/infrastructure"

	"github.com/google/uuid"
)

// PrerequisiteValidator checks that a student has a passing grade for every
// directly declared prerequisite of a candidate course. The check is not
// transitive: a prerequisite of a prerequisite is never considered.
type PrerequisiteValidator struct {
	courses interfaces.CourseRepository
	grades  interfaces.GradeHistoryRepository
}

func NewPrerequisiteValidator(courses interfaces.CourseRepository, grades interfaces.GradeHistoryRepository) *PrerequisiteValidator {
	return &PrerequisiteValidator{courses: courses, grades: grades}
}

// Validate returns PrerequisiteNotMetError listing every declared
// prerequisite the student has not passed. Missing history counts as not
// satisfied.
func (v *PrerequisiteValidator) Validate(ctx context.Context, studentID uuid.UUID, candidate *domain.Course) error {
	prereqs, err := v.courses.GetPrerequisites(ctx, candidate.CourseID)
	if err != nil {
		return fmt.Errorf("failed to load prerequisites for %s: %w", candidate.CourseCode, err)
	}
	if len(prereqs) == 0 {
		return nil
	}

	records, err := v.grades.ListByStudent(ctx, studentID)
	if err != nil {
		return fmt.Errorf("failed to load grade history for student %s: %w", studentID, err)
	}
	passed := make(map[uuid.UUID]bool, len(records))
	for _, rec := range records {
		if rec.Passed() {
			passed[rec.CourseID] = true
		}
	}

	var missing []string
	for _, prereq := range prereqs {
		if !passed[prereq.CourseID] {
			missing = append(missing, prereq.CourseCode)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return &domain.PrerequisiteNotMetError{CourseCode: candidate.CourseCode, Missing: missing}
	}
	return nil
}
