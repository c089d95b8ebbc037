package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	domain "course-enrollment/internal/domain/enrollment"
	"course-enrollment/internal/infrastructure/repository"
	interfaces "course-enrollment/internal/interfaces/infrastructure"
	svc "course-enrollment/internal/interfaces/service"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

type engineFixture struct {
	engine      *EnrollmentEngine
	courses     *repository.MemoryCourseRepository
	semesters   *repository.MemorySemesterRepository
	enrollments *repository.MemoryEnrollmentRepository
	payments    *repository.MemoryPaymentRepository
	grades      *repository.MemoryGradeHistoryRepository
	semester    *domain.Semester
}

func newEngineFixture(t *testing.T) *engineFixture {
	t.Helper()
	now := time.Now()
	f := &engineFixture{
		courses:     repository.NewMemoryCourseRepository(),
		semesters:   repository.NewMemorySemesterRepository(),
		enrollments: repository.NewMemoryEnrollmentRepository(),
		payments:    repository.NewMemoryPaymentRepository(),
		grades:      repository.NewMemoryGradeHistoryRepository(),
	}
	f.semester = &domain.Semester{
		SemesterID:        uuid.New(),
		SemesterCode:      "2026-FALL",
		StartDate:         now.Add(-24 * time.Hour),
		EndDate:           now.Add(90 * 24 * time.Hour),
		RegistrationStart: now.Add(-24 * time.Hour),
		RegistrationEnd:   now.Add(24 * time.Hour),
		DropDeadline:      now.Add(48 * time.Hour),
		GradeDeadline:     now.Add(100 * 24 * time.Hour),
		Current:           true,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := f.semesters.Create(context.Background(), f.semester); err != nil {
		t.Fatalf("failed to seed semester: %v", err)
	}
	f.engine = NewEnrollmentEngine(Repositories{
		Courses:     f.courses,
		Semesters:   f.semesters,
		Enrollments: f.enrollments,
		Payments:    f.payments,
		Grades:      f.grades,
	}, nil, nil, nil, EngineConfig{
		MaxCreditsPerTerm: 21,
		LockTimeout:       2 * time.Second,
	})
	return f
}

func (f *engineFixture) newEngineWith(enrollments interfaces.EnrollmentRepository, cache interfaces.CacheService, metrics *MetricsService) *EnrollmentEngine {
	return NewEnrollmentEngine(Repositories{
		Courses:     f.courses,
		Semesters:   f.semesters,
		Enrollments: enrollments,
		Payments:    f.payments,
		Grades:      f.grades,
	}, nil, cache, metrics, EngineConfig{
		MaxCreditsPerTerm: 21,
		LockTimeout:       2 * time.Second,
	})
}

func (f *engineFixture) addCourse(t *testing.T, code string, capacity, credits int) *domain.Course {
	t.Helper()
	now := time.Now()
	course := &domain.Course{
		CourseID:   uuid.New(),
		CourseCode: code,
		CourseName: code,
		Capacity:   capacity,
		Credits:    credits,
		SemesterID: f.semester.SemesterID,
		Tombstone:  domain.Tombstone{Active: true},
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := f.courses.Create(context.Background(), course); err != nil {
		t.Fatalf("failed to seed course %s: %v", code, err)
	}
	return course
}

func (f *engineFixture) addScheduledCourse(t *testing.T, code string, capacity, credits int, days string, startMin, endMin int) *domain.Course {
	t.Helper()
	course := f.addCourse(t, code, capacity, credits)
	course.ScheduleDays = days
	course.ScheduleStartMin = startMin
	course.ScheduleEndMin = endMin
	if err := f.courses.Create(context.Background(), course); err != nil {
		t.Fatalf("failed to update course %s: %v", code, err)
	}
	return course
}

func (f *engineFixture) addPayment(t *testing.T, studentID uuid.UUID, status domain.PaymentStatus) *domain.Payment {
	t.Helper()
	now := time.Now()
	payment := &domain.Payment{
		PaymentID:   uuid.New(),
		StudentID:   studentID,
		SemesterID:  f.semester.SemesterID,
		TotalAmount: 1000,
		Status:      status,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := f.payments.Create(context.Background(), payment); err != nil {
		t.Fatalf("failed to seed payment: %v", err)
	}
	return payment
}

func (f *engineFixture) enroll(t *testing.T, studentID uuid.UUID, courseID uuid.UUID) *svc.EnrollResponse {
	t.Helper()
	resp, err := f.engine.RequestEnroll(context.Background(), &svc.EnrollRequest{StudentID: studentID, CourseID: courseID})
	if err != nil {
		t.Fatalf("RequestEnroll failed: %v", err)
	}
	return resp
}

func (f *engineFixture) mustGet(t *testing.T, id uuid.UUID) *domain.Enrollment {
	t.Helper()
	enrollment, err := f.enrollments.GetByID(context.Background(), id)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if enrollment == nil {
		t.Fatalf("enrollment %s not found", id)
	}
	return enrollment
}

func TestRequestEnrollHoldsSeatPendingPayment(t *testing.T) {
	f := newEngineFixture(t)
	course := f.addCourse(t, "CS101", 30, 3)

	resp := f.enroll(t, uuid.New(), course.CourseID)

	if resp.Status != domain.StatusPendingPayment {
		t.Fatalf("expected PENDING_PAYMENT, got %s", resp.Status)
	}
	if resp.Position != nil {
		t.Fatalf("expected no waitlist position, got %d", *resp.Position)
	}
}

func TestRequestEnrollActivatesWithApprovedPayment(t *testing.T) {
	f := newEngineFixture(t)
	course := f.addCourse(t, "CS101", 30, 3)
	student := uuid.New()
	f.addPayment(t, student, domain.PaymentApproved)

	resp := f.enroll(t, student, course.CourseID)

	if resp.Status != domain.StatusActive {
		t.Fatalf("expected ACTIVE, got %s", resp.Status)
	}
}

func TestRequestEnrollWaitlistsWhenFull(t *testing.T) {
	f := newEngineFixture(t)
	course := f.addCourse(t, "CS101", 1, 3)

	first := f.enroll(t, uuid.New(), course.CourseID)
	second := f.enroll(t, uuid.New(), course.CourseID)
	third := f.enroll(t, uuid.New(), course.CourseID)

	if first.Status != domain.StatusPendingPayment {
		t.Fatalf("first: expected PENDING_PAYMENT, got %s", first.Status)
	}
	if second.Status != domain.StatusWaitlisted || second.Position == nil || *second.Position != 1 {
		t.Fatalf("second: expected WAITLISTED at position 1, got %s %v", second.Status, second.Position)
	}
	if third.Status != domain.StatusWaitlisted || third.Position == nil || *third.Position != 2 {
		t.Fatalf("third: expected WAITLISTED at position 2, got %s %v", third.Status, third.Position)
	}
}

func TestRequestEnrollRejectsDuplicate(t *testing.T) {
	f := newEngineFixture(t)
	course := f.addCourse(t, "CS101", 30, 3)
	student := uuid.New()

	f.enroll(t, student, course.CourseID)
	_, err := f.engine.RequestEnroll(context.Background(), &svc.EnrollRequest{StudentID: student, CourseID: course.CourseID})

	var dup *domain.AlreadyEnrolledError
	if !errors.As(err, &dup) {
		t.Fatalf("expected AlreadyEnrolledError, got %v", err)
	}
}

func TestRequestEnrollRejectsMissingPrerequisite(t *testing.T) {
	f := newEngineFixture(t)
	intro := f.addCourse(t, "CS101", 30, 3)
	advanced := f.addCourse(t, "CS301", 30, 3)
	if err := f.courses.AddPrerequisite(context.Background(), advanced.CourseID, intro.CourseID); err != nil {
		t.Fatalf("AddPrerequisite failed: %v", err)
	}
	student := uuid.New()

	_, err := f.engine.RequestEnroll(context.Background(), &svc.EnrollRequest{StudentID: student, CourseID: advanced.CourseID})
	var missing *domain.PrerequisiteNotMetError
	if !errors.As(err, &missing) {
		t.Fatalf("expected PrerequisiteNotMetError, got %v", err)
	}
	if len(missing.Missing) != 1 || missing.Missing[0] != "CS101" {
		t.Fatalf("expected missing [CS101], got %v", missing.Missing)
	}

	// A passing grade satisfies the prerequisite.
	f.grades.Add(&domain.GradeRecord{StudentID: student, CourseID: intro.CourseID, Points: 3.0})
	if _, err := f.engine.RequestEnroll(context.Background(), &svc.EnrollRequest{StudentID: student, CourseID: advanced.CourseID}); err != nil {
		t.Fatalf("expected enrollment to succeed after passing grade, got %v", err)
	}
}

func TestRequestEnrollRejectsScheduleConflict(t *testing.T) {
	f := newEngineFixture(t)
	morningA := f.addScheduledCourse(t, "CS101", 30, 3, "MON,WED", 540, 630)
	morningB := f.addScheduledCourse(t, "MA201", 30, 3, "WED,FRI", 600, 690)
	student := uuid.New()

	f.enroll(t, student, morningA.CourseID)
	_, err := f.engine.RequestEnroll(context.Background(), &svc.EnrollRequest{StudentID: student, CourseID: morningB.CourseID})

	var conflict *domain.ScheduleConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("expected ScheduleConflictError, got %v", err)
	}
	if conflict.OverlapDay != domain.Wednesday {
		t.Fatalf("expected overlap on WED, got %s", conflict.OverlapDay)
	}
}

func TestRequestEnrollAllowsBackToBackSchedules(t *testing.T) {
	f := newEngineFixture(t)
	first := f.addScheduledCourse(t, "CS101", 30, 3, "MON", 540, 630)
	second := f.addScheduledCourse(t, "MA201", 30, 3, "MON", 630, 720)
	student := uuid.New()

	f.enroll(t, student, first.CourseID)
	if _, err := f.engine.RequestEnroll(context.Background(), &svc.EnrollRequest{StudentID: student, CourseID: second.CourseID}); err != nil {
		t.Fatalf("back-to-back courses should not conflict: %v", err)
	}
}

func TestRequestEnrollRejectsCreditOverload(t *testing.T) {
	f := newEngineFixture(t)
	heavy := f.addCourse(t, "CS101", 30, 12)
	heavier := f.addCourse(t, "MA201", 30, 10)
	student := uuid.New()

	f.enroll(t, student, heavy.CourseID)
	_, err := f.engine.RequestEnroll(context.Background(), &svc.EnrollRequest{StudentID: student, CourseID: heavier.CourseID})

	var overload *domain.CreditLimitExceededError
	if !errors.As(err, &overload) {
		t.Fatalf("expected CreditLimitExceededError, got %v", err)
	}
	if overload.Current != 12 || overload.Candidate != 10 {
		t.Fatalf("unexpected credit accounting: %+v", overload)
	}
}

func TestRequestEnrollRejectsClosedPeriod(t *testing.T) {
	f := newEngineFixture(t)
	f.semester.RegistrationEnd = time.Now().Add(-time.Hour)
	if err := f.semesters.Create(context.Background(), f.semester); err != nil {
		t.Fatalf("failed to update semester: %v", err)
	}
	course := f.addCourse(t, "CS101", 30, 3)

	_, err := f.engine.RequestEnroll(context.Background(), &svc.EnrollRequest{StudentID: uuid.New(), CourseID: course.CourseID})
	var closed *domain.EnrollmentPeriodClosedError
	if !errors.As(err, &closed) {
		t.Fatalf("expected EnrollmentPeriodClosedError, got %v", err)
	}
}

func TestRequestEnrollUnknownCourse(t *testing.T) {
	f := newEngineFixture(t)
	_, err := f.engine.RequestEnroll(context.Background(), &svc.EnrollRequest{StudentID: uuid.New(), CourseID: uuid.New()})
	var notFound *domain.NotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
}

func TestApprovePaymentActivatesPendingEnrollments(t *testing.T) {
	f := newEngineFixture(t)
	course := f.addCourse(t, "CS101", 30, 3)
	student := uuid.New()
	payment := f.addPayment(t, student, domain.PaymentPending)

	resp := f.enroll(t, student, course.CourseID)
	if resp.Status != domain.StatusPendingPayment {
		t.Fatalf("expected PENDING_PAYMENT, got %s", resp.Status)
	}

	if err := f.engine.ApprovePayment(context.Background(), payment.PaymentID); err != nil {
		t.Fatalf("ApprovePayment failed: %v", err)
	}

	enrollment := f.mustGet(t, resp.EnrollmentID)
	if enrollment.Status != domain.StatusActive {
		t.Fatalf("expected ACTIVE after approval, got %s", enrollment.Status)
	}
	updated, err := f.payments.GetByID(context.Background(), payment.PaymentID)
	if err != nil || updated == nil {
		t.Fatalf("failed to reload payment: %v", err)
	}
	if updated.Status != domain.PaymentApproved {
		t.Fatalf("expected payment APPROVED, got %s", updated.Status)
	}
}

func TestApprovePaymentDemotesWhenSeatTaken(t *testing.T) {
	f := newEngineFixture(t)
	course := f.addCourse(t, "CS101", 1, 3)
	admin := domain.Actor{ID: uuid.New(), Role: "admin"}

	holder := uuid.New()
	payment := f.addPayment(t, holder, domain.PaymentPending)
	pendingResp := f.enroll(t, holder, course.CourseID)

	// Another student jumps the queue via admin override while the first
	// student's payment is still pending.
	waitlisted := f.enroll(t, uuid.New(), course.CourseID)
	if err := f.engine.ForceActivate(context.Background(), waitlisted.EnrollmentID, admin); err != nil {
		t.Fatalf("ForceActivate failed: %v", err)
	}

	if err := f.engine.ApprovePayment(context.Background(), payment.PaymentID); err != nil {
		t.Fatalf("ApprovePayment failed: %v", err)
	}

	enrollment := f.mustGet(t, pendingResp.EnrollmentID)
	if enrollment.Status != domain.StatusWaitlisted {
		t.Fatalf("expected demotion to WAITLISTED, got %s", enrollment.Status)
	}
	if enrollment.WaitlistPosition == nil || *enrollment.WaitlistPosition != 1 {
		t.Fatalf("expected waitlist position 1, got %v", enrollment.WaitlistPosition)
	}
}

func TestDropActivePromotesWaitlistHead(t *testing.T) {
	f := newEngineFixture(t)
	course := f.addCourse(t, "CS101", 1, 3)

	holder := uuid.New()
	f.addPayment(t, holder, domain.PaymentApproved)
	f.enroll(t, holder, course.CourseID)

	headStudent := uuid.New()
	f.addPayment(t, headStudent, domain.PaymentApproved)
	head := f.enroll(t, headStudent, course.CourseID)
	tail := f.enroll(t, uuid.New(), course.CourseID)

	if err := f.engine.Drop(context.Background(), &svc.DropRequest{StudentID: holder, CourseID: course.CourseID}, domain.Actor{ID: holder}); err != nil {
		t.Fatalf("Drop failed: %v", err)
	}

	promoted := f.mustGet(t, head.EnrollmentID)
	if promoted.Status != domain.StatusActive {
		t.Fatalf("expected head promoted to ACTIVE, got %s", promoted.Status)
	}
	if promoted.WaitlistPosition != nil {
		t.Fatalf("expected cleared waitlist position, got %d", *promoted.WaitlistPosition)
	}
	moved := f.mustGet(t, tail.EnrollmentID)
	if moved.WaitlistPosition == nil || *moved.WaitlistPosition != 1 {
		t.Fatalf("expected tail renumbered to position 1, got %v", moved.WaitlistPosition)
	}
}

func TestDropPromotesToPendingWithoutApprovedPayment(t *testing.T) {
	f := newEngineFixture(t)
	course := f.addCourse(t, "CS101", 1, 3)

	holder := uuid.New()
	f.addPayment(t, holder, domain.PaymentApproved)
	f.enroll(t, holder, course.CourseID)
	head := f.enroll(t, uuid.New(), course.CourseID)

	if err := f.engine.Drop(context.Background(), &svc.DropRequest{StudentID: holder, CourseID: course.CourseID}, domain.Actor{ID: holder}); err != nil {
		t.Fatalf("Drop failed: %v", err)
	}

	promoted := f.mustGet(t, head.EnrollmentID)
	if promoted.Status != domain.StatusPendingPayment {
		t.Fatalf("expected head promoted to PENDING_PAYMENT, got %s", promoted.Status)
	}
}

func TestDropWaitlistedClosesGap(t *testing.T) {
	f := newEngineFixture(t)
	course := f.addCourse(t, "CS101", 1, 3)

	f.enroll(t, uuid.New(), course.CourseID)
	first := f.enroll(t, uuid.New(), course.CourseID)
	secondStudent := uuid.New()
	second := f.enroll(t, secondStudent, course.CourseID)
	third := f.enroll(t, uuid.New(), course.CourseID)

	if err := f.engine.Drop(context.Background(), &svc.DropRequest{StudentID: secondStudent, CourseID: course.CourseID}, domain.Actor{ID: secondStudent}); err != nil {
		t.Fatalf("Drop failed: %v", err)
	}

	if got := f.mustGet(t, first.EnrollmentID); got.WaitlistPosition == nil || *got.WaitlistPosition != 1 {
		t.Fatalf("expected first to keep position 1, got %v", got.WaitlistPosition)
	}
	if got := f.mustGet(t, third.EnrollmentID); got.WaitlistPosition == nil || *got.WaitlistPosition != 2 {
		t.Fatalf("expected third renumbered to 2, got %v", got.WaitlistPosition)
	}
	if got := f.mustGet(t, second.EnrollmentID); got.Status != domain.StatusDropped {
		t.Fatalf("expected DROPPED, got %s", got.Status)
	}
}

func TestDropIsNotIdempotent(t *testing.T) {
	f := newEngineFixture(t)
	course := f.addCourse(t, "CS101", 30, 3)
	student := uuid.New()
	f.enroll(t, student, course.CourseID)

	req := &svc.DropRequest{StudentID: student, CourseID: course.CourseID}
	actor := domain.Actor{ID: student}
	if err := f.engine.Drop(context.Background(), req, actor); err != nil {
		t.Fatalf("first drop failed: %v", err)
	}

	err := f.engine.Drop(context.Background(), req, actor)
	var invalid *domain.InvalidStateTransitionError
	if !errors.As(err, &invalid) {
		t.Fatalf("expected InvalidStateTransitionError on second drop, got %v", err)
	}
}

func TestDropUnknownEnrollment(t *testing.T) {
	f := newEngineFixture(t)
	course := f.addCourse(t, "CS101", 30, 3)

	err := f.engine.Drop(context.Background(), &svc.DropRequest{StudentID: uuid.New(), CourseID: course.CourseID}, domain.Actor{ID: uuid.New()})
	var notFound *domain.NotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
}

func TestDropAfterDeadline(t *testing.T) {
	f := newEngineFixture(t)
	course := f.addCourse(t, "CS101", 1, 3)
	activeStudent := uuid.New()
	f.addPayment(t, activeStudent, domain.PaymentApproved)
	f.enroll(t, activeStudent, course.CourseID)
	waitlistedStudent := uuid.New()
	f.enroll(t, waitlistedStudent, course.CourseID)

	f.semester.DropDeadline = time.Now().Add(-time.Hour)
	if err := f.semesters.Create(context.Background(), f.semester); err != nil {
		t.Fatalf("failed to update semester: %v", err)
	}

	err := f.engine.Drop(context.Background(), &svc.DropRequest{StudentID: activeStudent, CourseID: course.CourseID}, domain.Actor{ID: activeStudent})
	var passed *domain.DropDeadlinePassedError
	if !errors.As(err, &passed) {
		t.Fatalf("expected DropDeadlinePassedError for active student, got %v", err)
	}

	// Waitlisted students may leave the queue at any time.
	if err := f.engine.Drop(context.Background(), &svc.DropRequest{StudentID: waitlistedStudent, CourseID: course.CourseID}, domain.Actor{ID: waitlistedStudent}); err != nil {
		t.Fatalf("waitlisted drop after deadline failed: %v", err)
	}

	// Admins override the deadline.
	admin := domain.Actor{ID: uuid.New(), Role: "admin"}
	if err := f.engine.Drop(context.Background(), &svc.DropRequest{StudentID: activeStudent, CourseID: course.CourseID}, admin); err != nil {
		t.Fatalf("admin drop after deadline failed: %v", err)
	}
}

func TestForceActivateRequiresAdmin(t *testing.T) {
	f := newEngineFixture(t)
	course := f.addCourse(t, "CS101", 30, 3)
	resp := f.enroll(t, uuid.New(), course.CourseID)

	err := f.engine.ForceActivate(context.Background(), resp.EnrollmentID, domain.Actor{ID: uuid.New(), Role: "student"})
	var denied *domain.PermissionDeniedError
	if !errors.As(err, &denied) {
		t.Fatalf("expected PermissionDeniedError, got %v", err)
	}
}

func TestForceActivateFullCourse(t *testing.T) {
	f := newEngineFixture(t)
	course := f.addCourse(t, "CS101", 1, 3)
	holder := uuid.New()
	f.addPayment(t, holder, domain.PaymentApproved)
	f.enroll(t, holder, course.CourseID)
	waitlisted := f.enroll(t, uuid.New(), course.CourseID)

	err := f.engine.ForceActivate(context.Background(), waitlisted.EnrollmentID, domain.Actor{ID: uuid.New(), Role: "admin"})
	var full *domain.CourseFullError
	if !errors.As(err, &full) {
		t.Fatalf("expected CourseFullError, got %v", err)
	}
}

func TestFinalizeSemesterCompletesGradedEnrollments(t *testing.T) {
	f := newEngineFixture(t)
	now := time.Now()
	f.semester.EndDate = now.Add(-time.Hour)
	if err := f.semesters.Create(context.Background(), f.semester); err != nil {
		t.Fatalf("failed to update semester: %v", err)
	}
	course := f.addCourse(t, "CS101", 30, 3)

	graded := uuid.New()
	f.addPayment(t, graded, domain.PaymentApproved)
	gradedResp := f.enroll(t, graded, course.CourseID)
	f.grades.Add(&domain.GradeRecord{StudentID: graded, CourseID: course.CourseID, Points: 3.5})

	ungraded := uuid.New()
	f.addPayment(t, ungraded, domain.PaymentApproved)
	ungradedResp := f.enroll(t, ungraded, course.CourseID)

	completed, err := f.engine.FinalizeSemester(context.Background(), f.semester.SemesterID)
	if err != nil {
		t.Fatalf("FinalizeSemester failed: %v", err)
	}
	if completed != 1 {
		t.Fatalf("expected 1 completion, got %d", completed)
	}
	if got := f.mustGet(t, gradedResp.EnrollmentID); got.Status != domain.StatusCompleted {
		t.Fatalf("expected COMPLETED, got %s", got.Status)
	}
	if got := f.mustGet(t, ungradedResp.EnrollmentID); got.Status != domain.StatusActive {
		t.Fatalf("expected ungraded enrollment to stay ACTIVE, got %s", got.Status)
	}
}

func TestListAvailableCoursesExcludesFull(t *testing.T) {
	f := newEngineFixture(t)
	full := f.addCourse(t, "CS101", 1, 3)
	open := f.addCourse(t, "MA201", 2, 3)
	f.enroll(t, uuid.New(), full.CourseID)

	available, err := f.engine.ListAvailableCourses(context.Background(), f.semester.SemesterID)
	if err != nil {
		t.Fatalf("ListAvailableCourses failed: %v", err)
	}
	if len(available) != 1 || available[0].CourseID != open.CourseID {
		t.Fatalf("expected only %s available, got %d courses", open.CourseCode, len(available))
	}
}

func TestConcurrentEnrollmentsRespectCapacity(t *testing.T) {
	f := newEngineFixture(t)
	const capacity = 5
	const students = 40
	course := f.addCourse(t, "CS101", capacity, 3)

	var wg sync.WaitGroup
	for i := 0; i < students; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.engine.RequestEnroll(context.Background(), &svc.EnrollRequest{
				StudentID: uuid.New(),
				CourseID:  course.CourseID,
			})
			if err != nil {
				t.Errorf("RequestEnroll failed: %v", err)
			}
		}()
	}
	wg.Wait()

	pending, err := f.enrollments.CountByCourseAndStatus(context.Background(), course.CourseID, domain.StatusPendingPayment)
	if err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if pending != capacity {
		t.Fatalf("expected %d seat holders, got %d", capacity, pending)
	}

	waitlisted, err := f.enrollments.ListByCourseAndStatus(context.Background(), course.CourseID, domain.StatusWaitlisted)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(waitlisted) != students-capacity {
		t.Fatalf("expected %d waitlisted, got %d", students-capacity, len(waitlisted))
	}
	for i, entry := range waitlisted {
		if entry.WaitlistPosition == nil || *entry.WaitlistPosition != i+1 {
			t.Fatalf("expected contiguous positions, entry %d has %v", i, entry.WaitlistPosition)
		}
	}
}

// pendingListHookRepo fires a one-shot callback after ListPendingByPayment,
// opening the window between listing and locking for interleaved operations.
type pendingListHookRepo struct {
	interfaces.EnrollmentRepository
	hook func()
}

func (r *pendingListHookRepo) ListPendingByPayment(ctx context.Context, paymentID uuid.UUID) ([]*domain.Enrollment, error) {
	entries, err := r.EnrollmentRepository.ListPendingByPayment(ctx, paymentID)
	if h := r.hook; h != nil {
		r.hook = nil
		h()
	}
	return entries, err
}

type liveLookupHookRepo struct {
	interfaces.EnrollmentRepository
	hook func()
}

func (r *liveLookupHookRepo) GetLiveByStudentAndCourse(ctx context.Context, studentID, courseID uuid.UUID) (*domain.Enrollment, error) {
	enrollment, err := r.EnrollmentRepository.GetLiveByStudentAndCourse(ctx, studentID, courseID)
	if h := r.hook; h != nil {
		r.hook = nil
		h()
	}
	return enrollment, err
}

type idLookupHookRepo struct {
	interfaces.EnrollmentRepository
	hook func()
}

func (r *idLookupHookRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Enrollment, error) {
	enrollment, err := r.EnrollmentRepository.GetByID(ctx, id)
	if h := r.hook; h != nil {
		r.hook = nil
		h()
	}
	return enrollment, err
}

func TestApprovePaymentSkipsConcurrentlyDroppedEnrollment(t *testing.T) {
	f := newEngineFixture(t)
	course := f.addCourse(t, "CS501", 5, 3)
	student := uuid.New()
	payment := f.addPayment(t, student, domain.PaymentPending)
	resp := f.enroll(t, student, course.CourseID)

	hooked := &pendingListHookRepo{EnrollmentRepository: f.enrollments}
	engine := f.newEngineWith(hooked, nil, nil)
	hooked.hook = func() {
		err := engine.Drop(context.Background(), &svc.DropRequest{StudentID: student, CourseID: course.CourseID}, domain.Actor{ID: student})
		if err != nil {
			t.Fatalf("Drop failed: %v", err)
		}
	}

	if err := engine.ApprovePayment(context.Background(), payment.PaymentID); err != nil {
		t.Fatalf("ApprovePayment failed: %v", err)
	}

	enrollment := f.mustGet(t, resp.EnrollmentID)
	if enrollment.Status != domain.StatusDropped {
		t.Fatalf("dropped enrollment was resurrected: status=%s", enrollment.Status)
	}
	if enrollment.Tombstone.Active {
		t.Fatal("dropped enrollment was resurrected: tombstone is live")
	}

	engine.seatsMu.Lock()
	seats := engine.seats[course.CourseID]
	engine.seatsMu.Unlock()
	if seats.pending != 0 {
		t.Fatalf("expected pending counter 0, got %d", seats.pending)
	}
}

func TestDropAfterConcurrentActivationPromotesWaitlist(t *testing.T) {
	f := newEngineFixture(t)
	course := f.addCourse(t, "CS502", 1, 3)
	holder := uuid.New()
	payment := f.addPayment(t, holder, domain.PaymentPending)
	f.enroll(t, holder, course.CourseID)
	waitlisted := uuid.New()
	waitlistedResp := f.enroll(t, waitlisted, course.CourseID)

	hooked := &liveLookupHookRepo{EnrollmentRepository: f.enrollments}
	engine := f.newEngineWith(hooked, nil, nil)
	hooked.hook = func() {
		if err := engine.ApprovePayment(context.Background(), payment.PaymentID); err != nil {
			t.Fatalf("ApprovePayment failed: %v", err)
		}
	}

	err := engine.Drop(context.Background(), &svc.DropRequest{StudentID: holder, CourseID: course.CourseID}, domain.Actor{ID: holder})
	if err != nil {
		t.Fatalf("Drop failed: %v", err)
	}

	promoted := f.mustGet(t, waitlistedResp.EnrollmentID)
	if promoted.Status != domain.StatusPendingPayment {
		t.Fatalf("expected promoted head in PENDING_PAYMENT, got %s", promoted.Status)
	}
	if promoted.WaitlistPosition != nil {
		t.Fatalf("expected cleared waitlist position, got %d", *promoted.WaitlistPosition)
	}

	engine.seatsMu.Lock()
	seats := engine.seats[course.CourseID]
	engine.seatsMu.Unlock()
	if seats.active != 0 || seats.pending != 1 {
		t.Fatalf("expected active=0 pending=1, got active=%d pending=%d", seats.active, seats.pending)
	}
}

func TestForceActivateRejectsConcurrentlyDroppedEnrollment(t *testing.T) {
	f := newEngineFixture(t)
	course := f.addCourse(t, "CS503", 2, 3)
	student := uuid.New()
	resp := f.enroll(t, student, course.CourseID)

	hooked := &idLookupHookRepo{EnrollmentRepository: f.enrollments}
	engine := f.newEngineWith(hooked, nil, nil)
	hooked.hook = func() {
		err := engine.Drop(context.Background(), &svc.DropRequest{StudentID: student, CourseID: course.CourseID}, domain.Actor{ID: student})
		if err != nil {
			t.Fatalf("Drop failed: %v", err)
		}
	}

	err := engine.ForceActivate(context.Background(), resp.EnrollmentID, domain.Actor{ID: uuid.New(), Role: "admin"})
	var stateErr *domain.InvalidStateTransitionError
	if !errors.As(err, &stateErr) {
		t.Fatalf("expected InvalidStateTransitionError, got %v", err)
	}

	enrollment := f.mustGet(t, resp.EnrollmentID)
	if enrollment.Status != domain.StatusDropped || enrollment.Tombstone.Active {
		t.Fatalf("dropped enrollment was resurrected: status=%s tombstone.active=%v", enrollment.Status, enrollment.Tombstone.Active)
	}
}

func TestWaitlistDepthGaugeTracksQueue(t *testing.T) {
	f := newEngineFixture(t)
	metrics := NewMetricsService()
	engine := f.newEngineWith(f.enrollments, nil, metrics)
	course := f.addCourse(t, "CS301", 1, 3)

	first := uuid.New()
	for _, student := range []uuid.UUID{uuid.New(), first, uuid.New()} {
		if _, err := engine.RequestEnroll(context.Background(), &svc.EnrollRequest{StudentID: student, CourseID: course.CourseID}); err != nil {
			t.Fatalf("RequestEnroll failed: %v", err)
		}
	}

	gauge := metrics.waitlistDepth.WithLabelValues("CS301")
	if got := testutil.ToFloat64(gauge); got != 2 {
		t.Fatalf("expected waitlist depth 2, got %v", got)
	}

	err := engine.Drop(context.Background(), &svc.DropRequest{StudentID: first, CourseID: course.CourseID}, domain.Actor{ID: first})
	if err != nil {
		t.Fatalf("Drop failed: %v", err)
	}
	if got := testutil.ToFloat64(gauge); got != 1 {
		t.Fatalf("expected waitlist depth 1, got %v", got)
	}
}

type cacheStub struct {
	mu          sync.Mutex
	seats       map[uuid.UUID]int
	courseLists map[uuid.UUID][]byte
	waitlists   map[uuid.UUID][]byte
	invalidated int
}

var _ interfaces.CacheService = (*cacheStub)(nil)

func newCacheStub() *cacheStub {
	return &cacheStub{
		seats:       make(map[uuid.UUID]int),
		courseLists: make(map[uuid.UUID][]byte),
		waitlists:   make(map[uuid.UUID][]byte),
	}
}

func (c *cacheStub) GetAvailableSeats(_ context.Context, courseID uuid.UUID) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	free, ok := c.seats[courseID]
	if !ok {
		return -1, errors.New("course seats not cached")
	}
	return free, nil
}

func (c *cacheStub) SetAvailableSeats(_ context.Context, courseID uuid.UUID, seats int, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seats[courseID] = seats
	return nil
}

func (c *cacheStub) GetAvailableCourses(_ context.Context, semesterID uuid.UUID) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.courseLists[semesterID], nil
}

func (c *cacheStub) SetAvailableCourses(_ context.Context, semesterID uuid.UUID, data interface{}, _ time.Duration) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.courseLists[semesterID] = payload
	return nil
}

func (c *cacheStub) SetWaitlistSnapshot(_ context.Context, courseID uuid.UUID, entries interface{}, _ time.Duration) error {
	payload, err := json.Marshal(entries)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.waitlists[courseID] = payload
	return nil
}

func (c *cacheStub) GetWaitlistSnapshot(_ context.Context, courseID uuid.UUID) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.waitlists[courseID], nil
}

func (c *cacheStub) InvalidateAvailableCourses(_ context.Context, semesterID uuid.UUID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.courseLists, semesterID)
	c.invalidated++
	return nil
}

func (c *cacheStub) Health(context.Context) error { return nil }

func (c *cacheStub) Close() error { return nil }

func TestListCourseWaitlistServesCachedSnapshot(t *testing.T) {
	f := newEngineFixture(t)
	cache := newCacheStub()
	engine := f.newEngineWith(f.enrollments, cache, nil)
	course := f.addCourse(t, "CS601", 1, 3)

	for _, student := range []uuid.UUID{uuid.New(), uuid.New()} {
		if _, err := engine.RequestEnroll(context.Background(), &svc.EnrollRequest{StudentID: student, CourseID: course.CourseID}); err != nil {
			t.Fatalf("RequestEnroll failed: %v", err)
		}
	}

	entries, err := engine.ListCourseWaitlist(context.Background(), course.CourseID)
	if err != nil {
		t.Fatalf("ListCourseWaitlist failed: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 waitlisted entry, got %d", len(entries))
	}

	// The snapshot is warm now; a further enqueue shows up only after it
	// expires.
	if _, err := engine.RequestEnroll(context.Background(), &svc.EnrollRequest{StudentID: uuid.New(), CourseID: course.CourseID}); err != nil {
		t.Fatalf("RequestEnroll failed: %v", err)
	}
	cached, err := engine.ListCourseWaitlist(context.Background(), course.CourseID)
	if err != nil {
		t.Fatalf("ListCourseWaitlist failed: %v", err)
	}
	if len(cached) != 1 {
		t.Fatalf("expected cached snapshot with 1 entry, got %d", len(cached))
	}
}

func TestSeatMovementInvalidatesCourseListing(t *testing.T) {
	f := newEngineFixture(t)
	cache := newCacheStub()
	engine := f.newEngineWith(f.enrollments, cache, nil)
	course := f.addCourse(t, "CS602", 1, 3)

	available, err := engine.ListAvailableCourses(context.Background(), f.semester.SemesterID)
	if err != nil {
		t.Fatalf("ListAvailableCourses failed: %v", err)
	}
	if len(available) != 1 {
		t.Fatalf("expected 1 available course, got %d", len(available))
	}

	if _, err := engine.RequestEnroll(context.Background(), &svc.EnrollRequest{StudentID: uuid.New(), CourseID: course.CourseID}); err != nil {
		t.Fatalf("RequestEnroll failed: %v", err)
	}
	if cache.invalidated == 0 {
		t.Fatal("expected course listing invalidation after seat movement")
	}

	available, err = engine.ListAvailableCourses(context.Background(), f.semester.SemesterID)
	if err != nil {
		t.Fatalf("ListAvailableCourses failed: %v", err)
	}
	if len(available) != 0 {
		t.Fatalf("expected full course to be excluded, got %d", len(available))
	}
}
