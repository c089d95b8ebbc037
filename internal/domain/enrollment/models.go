package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// EnrollmentStatus is the closed set of states an enrollment can be in.
type EnrollmentStatus string

const (
	StatusPendingPayment EnrollmentStatus = "PENDING_PAYMENT"
	StatusWaitlisted     EnrollmentStatus = "WAITLISTED"
	StatusActive         EnrollmentStatus = "ACTIVE"
	StatusCompleted      EnrollmentStatus = "COMPLETED"
	StatusDropped        EnrollmentStatus = "DROPPED"
)

// LiveStatuses are the statuses that count as a committed enrollment for the
// duplicate-enrollment, schedule-conflict and credit-limit checks.
var LiveStatuses = []EnrollmentStatus{StatusPendingPayment, StatusWaitlisted, StatusActive}

// IsLive reports whether the status occupies a live (non-terminal) slot.
func (s EnrollmentStatus) IsLive() bool {
	return s == StatusPendingPayment || s == StatusWaitlisted || s == StatusActive
}

// IsTerminal reports whether no further transitions are allowed from the status.
func (s EnrollmentStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusDropped
}

// PaymentStatus is the closed set of states a payment can be in. Only
// PaymentApproved unlocks enrollment activation.
type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "PENDING"
	PaymentPartial  PaymentStatus = "PARTIAL"
	PaymentPaid     PaymentStatus = "PAID"
	PaymentApproved PaymentStatus = "APPROVED"
	PaymentRejected PaymentStatus = "REJECTED"
)

// Weekday is a schedule weekday token.
type Weekday string

const (
	Monday    Weekday = "MON"
	Tuesday   Weekday = "TUE"
	Wednesday Weekday = "WED"
	Thursday  Weekday = "THU"
	Friday    Weekday = "FRI"
	Saturday  Weekday = "SAT"
	Sunday    Weekday = "SUN"
)

// ScheduleWindow is a weekly meeting pattern: a set of weekdays plus a
// half-open [StartMin, EndMin) time interval in minutes from midnight.
type ScheduleWindow struct {
	SemesterID uuid.UUID `json:"semester_id"`
	Days       []Weekday `json:"days"`
	StartMin   int       `json:"start_min"`
	EndMin     int       `json:"end_min"`
}

// Tombstone is the shared soft-delete value object. Deleted rows are retained
// for audit and history; they never participate in live queries.
type Tombstone struct {
	Active    bool       `json:"active" gorm:"not null;default:true"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
	DeletedBy *uuid.UUID `json:"deleted_by,omitempty" gorm:"type:uuid"`
}

// SoftDelete marks the tombstone as deleted by the given actor.
func (t *Tombstone) SoftDelete(by uuid.UUID, at time.Time) {
	t.Active = false
	t.DeletedAt = &at
	t.DeletedBy = &by
}

// Course is a catalog entry. Capacity bounds the number of ACTIVE enrollments;
// the schedule columns are empty when the course has no fixed meeting time.
type Course struct {
	CourseID         uuid.UUID `json:"course_id" gorm:"type:uuid;primary_key;default:uuid_generate_v4()"`
	CourseCode       string    `json:"course_code" gorm:"unique;not null"`
	CourseName       string    `json:"course_name" gorm:"not null"`
	Capacity         int       `json:"capacity" gorm:"not null;check:capacity >= 1"`
	Credits          int       `json:"credits" gorm:"not null;check:credits > 0"`
	Fee              int64     `json:"fee" gorm:"not null;default:0"`
	SemesterID       uuid.UUID `json:"semester_id" gorm:"type:uuid;not null"`
	ScheduleDays     string    `json:"schedule_days"`
	ScheduleStartMin int       `json:"schedule_start_min"`
	ScheduleEndMin   int       `json:"schedule_end_min"`
	Tombstone        Tombstone `json:"tombstone" gorm:"embedded"`
	CreatedAt        time.Time `json:"created_at" gorm:"not null"`
	UpdatedAt        time.Time `json:"updated_at" gorm:"not null"`
}

// Schedule returns the course's weekly window, or nil when the course has no
// fixed schedule (and therefore never conflicts).
func (c *Course) Schedule() *ScheduleWindow {
	if c.ScheduleDays == "" || c.ScheduleEndMin <= 0 {
		return nil
	}
	tokens := strings.Split(c.ScheduleDays, ",")
	days := make([]Weekday, 0, len(tokens))
	for _, t := range tokens {
		t = strings.TrimSpace(t)
		if t != "" {
			days = append(days, Weekday(t))
		}
	}
	if len(days) == 0 {
		return nil
	}
	return &ScheduleWindow{
		SemesterID: c.SemesterID,
		Days:       days,
		StartMin:   c.ScheduleStartMin,
		EndMin:     c.ScheduleEndMin,
	}
}

// CoursePrerequisite declares a direct prerequisite edge between two courses.
type CoursePrerequisite struct {
	CourseID         uuid.UUID `json:"course_id" gorm:"type:uuid;primaryKey"`
	RequiresCourseID uuid.UUID `json:"requires_course_id" gorm:"type:uuid;primaryKey"`
}

// Semester is an academic term with its enrollment window and deadlines.
type Semester struct {
	SemesterID        uuid.UUID `json:"semester_id" gorm:"type:uuid;primary_key;default:uuid_generate_v4()"`
	SemesterCode      string    `json:"semester_code" gorm:"unique;not null"`
	StartDate         time.Time `json:"start_date" gorm:"not null"`
	EndDate           time.Time `json:"end_date" gorm:"not null"`
	RegistrationStart time.Time `json:"registration_start" gorm:"not null"`
	RegistrationEnd   time.Time `json:"registration_end" gorm:"not null"`
	DropDeadline      time.Time `json:"drop_deadline" gorm:"not null"`
	GradeDeadline     time.Time `json:"grade_deadline" gorm:"not null"`
	Current           bool      `json:"current" gorm:"not null;default:false"`
	CreatedAt         time.Time `json:"created_at" gorm:"not null"`
	UpdatedAt         time.Time `json:"updated_at" gorm:"not null"`
}

// RegistrationOpenAt reports whether the enrollment window contains t.
func (s *Semester) RegistrationOpenAt(t time.Time) bool {
	return !t.Before(s.RegistrationStart) && !t.After(s.RegistrationEnd)
}

// Enrollment ties one student to one course. WaitlistPosition is set iff the
// status is WAITLISTED. Timestamps are maintained by NewEnrollment and Touch,
// never by persistence hooks.
type Enrollment struct {
	EnrollmentID     uuid.UUID        `json:"enrollment_id" gorm:"type:uuid;primary_key;default:uuid_generate_v4()"`
	StudentID        uuid.UUID        `json:"student_id" gorm:"type:uuid;not null;index"`
	CourseID         uuid.UUID        `json:"course_id" gorm:"type:uuid;not null;index"`
	SemesterID       uuid.UUID        `json:"semester_id" gorm:"type:uuid;not null"`
	Status           EnrollmentStatus `json:"status" gorm:"type:text;not null"`
	WaitlistPosition *int             `json:"waitlist_position,omitempty"`
	PaymentID        *uuid.UUID       `json:"payment_id,omitempty" gorm:"type:uuid"`
	EnrolledAt       time.Time        `json:"enrolled_at" gorm:"not null"`
	Tombstone        Tombstone        `json:"tombstone" gorm:"embedded"`
	CreatedAt        time.Time        `json:"created_at" gorm:"not null"`
	UpdatedAt        time.Time        `json:"updated_at" gorm:"not null"`
}

// NewEnrollment constructs an enrollment in its initial status with all
// timestamps set explicitly.
func NewEnrollment(studentID, courseID, semesterID uuid.UUID, status EnrollmentStatus, now time.Time) *Enrollment {
	return &Enrollment{
		EnrollmentID: uuid.New(),
		StudentID:    studentID,
		CourseID:     courseID,
		SemesterID:   semesterID,
		Status:       status,
		EnrolledAt:   now,
		Tombstone:    Tombstone{Active: true},
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// Touch bumps UpdatedAt as part of the same call that mutates the enrollment.
func (e *Enrollment) Touch(now time.Time) {
	e.UpdatedAt = now
}

// Payment carries the billing status for a student's semester. One payment may
// back several enrollments of that student and semester.
type Payment struct {
	PaymentID   uuid.UUID     `json:"payment_id" gorm:"type:uuid;primary_key;default:uuid_generate_v4()"`
	StudentID   uuid.UUID     `json:"student_id" gorm:"type:uuid;not null;index"`
	SemesterID  uuid.UUID     `json:"semester_id" gorm:"type:uuid;not null"`
	TotalAmount int64         `json:"total_amount" gorm:"not null"`
	PaidAmount  int64         `json:"paid_amount" gorm:"not null;default:0"`
	Status      PaymentStatus `json:"status" gorm:"type:text;not null"`
	CreatedAt   time.Time     `json:"created_at" gorm:"not null"`
	UpdatedAt   time.Time     `json:"updated_at" gorm:"not null"`
}

// GradeRecord is a passing-grade history entry consumed from the records
// system. Points above zero mean the course was passed.
type GradeRecord struct {
	StudentID uuid.UUID `json:"student_id" db:"student_id"`
	CourseID  uuid.UUID `json:"course_id" db:"course_id"`
	Points    float64   `json:"points" db:"points"`
}

// Passed reports whether the grade counts as a pass for prerequisite checks.
func (g *GradeRecord) Passed() bool {
	return g.Points > 0
}

// Actor identifies who triggered an operation, as authenticated by the
// surrounding gateway.
type Actor struct {
	ID   uuid.UUID `json:"id"`
	Role string    `json:"role"`
}

// IsAdmin reports whether the actor may override enrollment deadlines.
func (a Actor) IsAdmin() bool {
	return a.Role == "admin"
}
