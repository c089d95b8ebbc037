package service

import (
	domain "course-enrollment/internal/domain/enrollment"
)

// ScheduleConflictDetector decides whether adding a candidate course to a
// student's committed set produces a weekday/time overlap. Pure: it touches
// no repositories and has no side effects.
type ScheduleConflictDetector struct{}

func NewScheduleConflictDetector() *ScheduleConflictDetector {
	return &ScheduleConflictDetector{}
}

// ValidateWindow rejects malformed windows. end <= start is a caller
// precondition violation, not a conflict.
func ValidateWindow(w *domain.ScheduleWindow) error {
	if w == nil {
		return nil
	}
	if w.EndMin <= w.StartMin {
		return &domain.InvalidScheduleError{StartMin: w.StartMin, EndMin: w.EndMin}
	}
	return nil
}

// WindowsOverlap reports whether two windows share a weekday and their
// half-open [start, end) intervals intersect. Windows of different semesters
// never overlap. The shared day and clipped interval are returned for error
// reporting.
func WindowsOverlap(a, b *domain.ScheduleWindow) (bool, domain.Weekday, int, int) {
	if a == nil || b == nil {
		return false, "", 0, 0
	}
	if a.SemesterID != b.SemesterID {
		return false, "", 0, 0
	}
	if a.StartMin >= b.EndMin || b.StartMin >= a.EndMin {
		return false, "", 0, 0
	}
	for _, da := range a.Days {
		for _, db := range b.Days {
			if da == db {
				return true, da, maxMin(a.StartMin, b.StartMin), minMin(a.EndMin, b.EndMin)
			}
		}
	}
	return false, "", 0, 0
}

// Check validates the candidate course's window against every committed
// course. Schedule-less courses never conflict in either direction.
func (d *ScheduleConflictDetector) Check(candidate *domain.Course, committed []*domain.Course) error {
	window := candidate.Schedule()
	if window == nil {
		return nil
	}
	if err := ValidateWindow(window); err != nil {
		return err
	}
	for _, other := range committed {
		overlaps, day, start, end := WindowsOverlap(window, other.Schedule())
		if overlaps {
			return &domain.ScheduleConflictError{
				CourseCode:     candidate.CourseCode,
				ConflictsWith:  other.CourseCode,
				OverlapDay:     day,
				OverlapStartMi: start,
				OverlapEndMin:  end,
			}
		}
	}
	return nil
}

func maxMin(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func minMin(a, b int) int {
	if a < b {
		return a
	}
	return b
}
