package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	domain "course-enrollment/internal/domain/enrollment"
	interfaces "course-enrollment/internal/interfaces/infrastructure"
	svc "course-enrollment/internal/interfaces/service"
	"course-enrollment/pkg/logger"

	"github.com/google/uuid"
)

const (
	outcomePendingPayment = "pending_payment"
	outcomeActivated      = "activated"
	outcomeWaitlisted     = "waitlisted"
	outcomeRejected       = "rejected"
)

// Repositories bundles the persistence ports the engine depends on.
type Repositories struct {
	Courses     interfaces.CourseRepository
	Semesters   interfaces.SemesterRepository
	Enrollments interfaces.EnrollmentRepository
	Payments    interfaces.PaymentRepository
	Grades      interfaces.GradeHistoryRepository
}

// EngineConfig carries the tunables of the admission engine.
type EngineConfig struct {
	MaxCreditsPerTerm int
	LockTimeout       time.Duration
	SeatCacheTTL      time.Duration
}

// seatCounter is the authoritative per-course seat state. active counts
// ACTIVE enrollments, pending counts PENDING_PAYMENT holds. A request is
// admitted while active+pending < capacity; activation requires
// active < capacity. Mutated only under the course lock.
type seatCounter struct {
	active  int
	pending int
	loaded  bool
}

// EnrollmentEngine implements admission control: capacity accounting, the
// FIFO waitlist, eligibility validation and payment-gated activation. All
// seat decisions for a course are serialized by the course lock, so reads and
// writes of a seatCounter are always consistent.
type EnrollmentEngine struct {
	repos Repositories

	waitlist *WaitlistManager
	gate     *PaymentGate
	schedule *ScheduleConflictDetector
	prereqs  *PrerequisiteValidator
	credits  *CreditLimitValidator

	locks       *lockRegistry
	lockTimeout time.Duration

	seatsMu sync.Mutex
	seats   map[uuid.UUID]*seatCounter

	dispatcher interfaces.EventDispatcher
	cache      interfaces.CacheService
	metrics    *MetricsService
	cacheTTL   time.Duration
}

// NewEnrollmentEngine wires the engine from its repositories. dispatcher,
// cache and metrics may be nil; the engine degrades to synchronous-only
// operation without them.
func NewEnrollmentEngine(
	repos Repositories,
	dispatcher interfaces.EventDispatcher,
	cache interfaces.CacheService,
	metrics *MetricsService,
	cfg EngineConfig,
) *EnrollmentEngine {
	if cfg.LockTimeout <= 0 {
		cfg.LockTimeout = 5 * time.Second
	}
	if cfg.SeatCacheTTL <= 0 {
		cfg.SeatCacheTTL = 30 * time.Second
	}
	return &EnrollmentEngine{
		repos:       repos,
		waitlist:    NewWaitlistManager(repos.Enrollments),
		gate:        NewPaymentGate(repos.Payments),
		schedule:    NewScheduleConflictDetector(),
		prereqs:     NewPrerequisiteValidator(repos.Courses, repos.Grades),
		credits:     NewCreditLimitValidator(cfg.MaxCreditsPerTerm),
		locks:       newLockRegistry(),
		lockTimeout: cfg.LockTimeout,
		seats:       make(map[uuid.UUID]*seatCounter),
		dispatcher:  dispatcher,
		cache:       cache,
		metrics:     metrics,
		cacheTTL:    cfg.SeatCacheTTL,
	}
}

// RequestEnroll runs the full admission pipeline for one student and course.
// A free seat (counting PENDING_PAYMENT holds) yields PENDING_PAYMENT, or
// ACTIVE immediately when the student's semester payment is already approved;
// a full course yields a WAITLISTED enrollment at the tail position. Any
// validation failure leaves no trace.
func (s *EnrollmentEngine) RequestEnroll(ctx context.Context, req *svc.EnrollRequest) (*svc.EnrollResponse, error) {
	course, err := s.repos.Courses.GetByID(ctx, req.CourseID)
	if err != nil {
		return nil, fmt.Errorf("failed to load course %s: %w", req.CourseID, err)
	}
	if course == nil || !course.Tombstone.Active {
		return nil, &domain.NotFoundError{Kind: "course", ID: req.CourseID.String()}
	}

	semester, err := s.repos.Semesters.GetByID(ctx, course.SemesterID)
	if err != nil {
		return nil, fmt.Errorf("failed to load semester %s: %w", course.SemesterID, err)
	}
	if semester == nil {
		return nil, &domain.NotFoundError{Kind: "semester", ID: course.SemesterID.String()}
	}

	now := time.Now()
	if !semester.RegistrationOpenAt(now) {
		s.metrics.IncAdmission(outcomeRejected)
		return nil, &domain.EnrollmentPeriodClosedError{
			SemesterCode: semester.SemesterCode,
			Opens:        semester.RegistrationStart,
			Closes:       semester.RegistrationEnd,
		}
	}

	// The student lock serializes a student's own concurrent requests so the
	// duplicate, schedule and credit checks see a stable committed set.
	releaseStudent, err := s.acquire(ctx, studentLockKey(req.StudentID, semester.SemesterID), "student")
	if err != nil {
		return nil, err
	}
	defer releaseStudent()

	if err := s.validateEligibility(ctx, req.StudentID, course, semester); err != nil {
		s.metrics.IncAdmission(outcomeRejected)
		return nil, err
	}

	payment, err := s.repos.Payments.GetByStudentAndSemester(ctx, req.StudentID, semester.SemesterID)
	if err != nil {
		return nil, fmt.Errorf("failed to load payment for student %s: %w", req.StudentID, err)
	}

	releaseCourse, err := s.acquire(ctx, courseLockKey(course.CourseID), "course")
	if err != nil {
		return nil, err
	}
	defer releaseCourse()

	seats, err := s.loadSeats(ctx, course.CourseID)
	if err != nil {
		return nil, err
	}

	var enrollment *domain.Enrollment
	var outcome string
	if seats.active+seats.pending < course.Capacity {
		approved := payment != nil && payment.Status == domain.PaymentApproved
		if approved {
			enrollment = domain.NewEnrollment(req.StudentID, course.CourseID, semester.SemesterID, domain.StatusActive, now)
			seats.active++
			outcome = outcomeActivated
		} else {
			enrollment = domain.NewEnrollment(req.StudentID, course.CourseID, semester.SemesterID, domain.StatusPendingPayment, now)
			seats.pending++
			outcome = outcomePendingPayment
		}
	} else {
		enrollment = domain.NewEnrollment(req.StudentID, course.CourseID, semester.SemesterID, domain.StatusWaitlisted, now)
		if _, err := s.waitlist.Enqueue(ctx, enrollment); err != nil {
			return nil, err
		}
		outcome = outcomeWaitlisted
	}
	if payment != nil {
		enrollment.PaymentID = &payment.PaymentID
	}

	if err := s.repos.Enrollments.Create(ctx, enrollment); err != nil {
		s.rollbackSeat(course.CourseID, enrollment.Status)
		return nil, fmt.Errorf("failed to create enrollment: %w", err)
	}

	s.metrics.IncAdmission(outcome)
	s.publishForStatus(ctx, enrollment, now)
	if enrollment.Status == domain.StatusWaitlisted {
		s.recordWaitlistDepth(ctx, course)
	}
	s.refreshSeatCache(ctx, course, seats)

	return &svc.EnrollResponse{
		EnrollmentID: enrollment.EnrollmentID,
		Status:       enrollment.Status,
		Position:     enrollment.WaitlistPosition,
	}, nil
}

// Drop removes a live enrollment. Dropping an ACTIVE enrollment frees a seat
// and promotes the waitlist head in the same critical section; dropping a
// waitlisted one closes its gap. After the semester's drop deadline only
// admins and waitlisted students may drop.
func (s *EnrollmentEngine) Drop(ctx context.Context, req *svc.DropRequest, actor domain.Actor) error {
	enrollment, err := s.repos.Enrollments.GetLiveByStudentAndCourse(ctx, req.StudentID, req.CourseID)
	if err != nil {
		return fmt.Errorf("failed to load enrollment: %w", err)
	}
	if enrollment == nil {
		latest, err := s.repos.Enrollments.GetLatestByStudentAndCourse(ctx, req.StudentID, req.CourseID)
		if err != nil {
			return fmt.Errorf("failed to load enrollment: %w", err)
		}
		if latest != nil {
			return &domain.InvalidStateTransitionError{
				EnrollmentID: latest.EnrollmentID,
				From:         latest.Status,
				To:           domain.StatusDropped,
			}
		}
		return &domain.NotFoundError{Kind: "enrollment", ID: fmt.Sprintf("%s/%s", req.StudentID, req.CourseID)}
	}

	semester, err := s.repos.Semesters.GetByID(ctx, enrollment.SemesterID)
	if err != nil {
		return fmt.Errorf("failed to load semester %s: %w", enrollment.SemesterID, err)
	}
	if semester == nil {
		return &domain.NotFoundError{Kind: "semester", ID: enrollment.SemesterID.String()}
	}

	course, err := s.repos.Courses.GetByID(ctx, enrollment.CourseID)
	if err != nil {
		return fmt.Errorf("failed to load course %s: %w", enrollment.CourseID, err)
	}
	if course == nil {
		return &domain.NotFoundError{Kind: "course", ID: enrollment.CourseID.String()}
	}

	release, err := s.acquire(ctx, courseLockKey(course.CourseID), "course")
	if err != nil {
		return err
	}
	defer release()

	// The pre-lock load can go stale: an approval or force-activation landing
	// before the lock changes which seat the enrollment holds. Re-read under
	// the lock so the bookkeeping below matches the persisted state.
	enrollment, err = s.repos.Enrollments.GetByID(ctx, enrollment.EnrollmentID)
	if err != nil {
		return fmt.Errorf("failed to reload enrollment: %w", err)
	}
	if enrollment == nil {
		return &domain.NotFoundError{Kind: "enrollment", ID: fmt.Sprintf("%s/%s", req.StudentID, req.CourseID)}
	}
	if !enrollment.Tombstone.Active || !enrollment.Status.IsLive() {
		return &domain.InvalidStateTransitionError{
			EnrollmentID: enrollment.EnrollmentID,
			From:         enrollment.Status,
			To:           domain.StatusDropped,
		}
	}

	now := time.Now()
	if now.After(semester.DropDeadline) && !actor.IsAdmin() && enrollment.Status != domain.StatusWaitlisted {
		return &domain.DropDeadlinePassedError{SemesterCode: semester.SemesterCode, Deadline: semester.DropDeadline}
	}

	seats, err := s.loadSeats(ctx, course.CourseID)
	if err != nil {
		return err
	}

	dropped := enrollment.Status
	if dropped == domain.StatusWaitlisted {
		if err := s.waitlist.Remove(ctx, enrollment, now); err != nil {
			return err
		}
	}
	if err := enrollment.Transition(domain.StatusDropped); err != nil {
		return err
	}
	enrollment.Tombstone.SoftDelete(actor.ID, now)
	enrollment.Touch(now)
	if err := s.repos.Enrollments.Update(ctx, enrollment); err != nil {
		return fmt.Errorf("failed to update enrollment %s: %w", enrollment.EnrollmentID, err)
	}

	s.publish(ctx, domain.Event{
		Type:      domain.EventEnrollmentDropped,
		StudentID: enrollment.StudentID,
		CourseID:  enrollment.CourseID,
		At:        now,
	})

	switch dropped {
	case domain.StatusActive:
		seats.active--
		if err := s.promoteHead(ctx, course, seats, now); err != nil {
			return err
		}
	case domain.StatusPendingPayment:
		seats.pending--
	}

	s.recordWaitlistDepth(ctx, course)
	s.refreshSeatCache(ctx, course, seats)
	return nil
}

// promoteHead moves the waitlist head into the freed seat: ACTIVE when its
// payment is already approved, PENDING_PAYMENT otherwise. Called with the
// course lock held, after seats.active was decremented.
func (s *EnrollmentEngine) promoteHead(ctx context.Context, course *domain.Course, seats *seatCounter, now time.Time) error {
	head, err := s.waitlist.DequeueHead(ctx, course.CourseID, now)
	if err != nil {
		return err
	}
	if head == nil {
		return nil
	}

	approved, err := s.gate.IsApproved(ctx, head.PaymentID)
	if err != nil {
		return err
	}

	target := domain.StatusPendingPayment
	if approved && seats.active < course.Capacity {
		target = domain.StatusActive
	}
	if err := head.Transition(target); err != nil {
		return err
	}
	head.Touch(now)
	if err := s.repos.Enrollments.Update(ctx, head); err != nil {
		return fmt.Errorf("failed to promote enrollment %s: %w", head.EnrollmentID, err)
	}

	if target == domain.StatusActive {
		seats.active++
	} else {
		seats.pending++
	}

	s.publish(ctx, domain.Event{
		Type:      domain.EventEnrollmentPromoted,
		StudentID: head.StudentID,
		CourseID:  head.CourseID,
		At:        now,
	})
	if target == domain.StatusActive {
		s.publish(ctx, domain.Event{
			Type:      domain.EventEnrollmentActivated,
			StudentID: head.StudentID,
			CourseID:  head.CourseID,
			At:        now,
		})
	}
	return nil
}

// ApprovePayment marks the payment APPROVED and activates every
// PENDING_PAYMENT enrollment it backs, oldest first. Capacity is rechecked
// per enrollment at activation time: if the seat was taken in the meantime
// the enrollment is demoted to the waitlist tail instead.
func (s *EnrollmentEngine) ApprovePayment(ctx context.Context, paymentID uuid.UUID) error {
	payment, err := s.gate.Approve(ctx, paymentID)
	if err != nil {
		return err
	}

	pending, err := s.repos.Enrollments.ListPendingByPayment(ctx, paymentID)
	if err != nil {
		return fmt.Errorf("failed to list enrollments for payment %s: %w", paymentID, err)
	}

	now := time.Now()
	s.publish(ctx, domain.Event{
		Type:      domain.EventPaymentApproved,
		StudentID: payment.StudentID,
		PaymentID: payment.PaymentID,
		At:        now,
	})

	for _, enrollment := range pending {
		if err := s.activateOrDemote(ctx, enrollment, now); err != nil {
			return err
		}
	}
	return nil
}

func (s *EnrollmentEngine) activateOrDemote(ctx context.Context, enrollment *domain.Enrollment, now time.Time) error {
	course, err := s.repos.Courses.GetByID(ctx, enrollment.CourseID)
	if err != nil {
		return fmt.Errorf("failed to load course %s: %w", enrollment.CourseID, err)
	}
	if course == nil {
		return &domain.NotFoundError{Kind: "course", ID: enrollment.CourseID.String()}
	}

	release, err := s.acquire(ctx, courseLockKey(course.CourseID), "course")
	if err != nil {
		return err
	}
	defer release()

	// The pending listing ran before this lock was taken; a drop or
	// force-activation may have resolved the enrollment since. Only a
	// still-live PENDING_PAYMENT hold gets a seat decision.
	enrollment, err = s.repos.Enrollments.GetByID(ctx, enrollment.EnrollmentID)
	if err != nil {
		return fmt.Errorf("failed to reload enrollment: %w", err)
	}
	if enrollment == nil || !enrollment.Tombstone.Active || enrollment.Status != domain.StatusPendingPayment {
		return nil
	}

	seats, err := s.loadSeats(ctx, course.CourseID)
	if err != nil {
		return err
	}

	seats.pending--
	if seats.active < course.Capacity {
		if err := enrollment.Transition(domain.StatusActive); err != nil {
			return err
		}
		seats.active++
		s.publish(ctx, domain.Event{
			Type:      domain.EventEnrollmentActivated,
			StudentID: enrollment.StudentID,
			CourseID:  enrollment.CourseID,
			At:        now,
		})
	} else {
		position, err := s.waitlist.Enqueue(ctx, enrollment)
		if err != nil {
			seats.pending++
			return err
		}
		s.publish(ctx, domain.Event{
			Type:      domain.EventEnrollmentWaitlisted,
			StudentID: enrollment.StudentID,
			CourseID:  enrollment.CourseID,
			Position:  position,
			At:        now,
		})
	}

	enrollment.Touch(now)
	if err := s.repos.Enrollments.Update(ctx, enrollment); err != nil {
		return fmt.Errorf("failed to update enrollment %s: %w", enrollment.EnrollmentID, err)
	}
	if enrollment.Status == domain.StatusWaitlisted {
		s.recordWaitlistDepth(ctx, course)
	}
	s.refreshSeatCache(ctx, course, seats)
	return nil
}

// RejectPayment marks the payment REJECTED. Enrollments it backs stay in
// PENDING_PAYMENT holding their seats; students resolve the payment out of
// band or drop.
func (s *EnrollmentEngine) RejectPayment(ctx context.Context, paymentID uuid.UUID) error {
	_, err := s.gate.Reject(ctx, paymentID)
	return err
}

// ForceActivate moves an enrollment to ACTIVE regardless of payment status.
// Admin only; fails with CourseFullError when no ACTIVE seat is free.
func (s *EnrollmentEngine) ForceActivate(ctx context.Context, enrollmentID uuid.UUID, actor domain.Actor) error {
	if !actor.IsAdmin() {
		return &domain.PermissionDeniedError{ActorID: actor.ID, Operation: "force-activate enrollments"}
	}

	enrollment, err := s.repos.Enrollments.GetByID(ctx, enrollmentID)
	if err != nil {
		return fmt.Errorf("failed to load enrollment %s: %w", enrollmentID, err)
	}
	if enrollment == nil {
		return &domain.NotFoundError{Kind: "enrollment", ID: enrollmentID.String()}
	}
	if enrollment.Status == domain.StatusActive {
		return nil
	}

	course, err := s.repos.Courses.GetByID(ctx, enrollment.CourseID)
	if err != nil {
		return fmt.Errorf("failed to load course %s: %w", enrollment.CourseID, err)
	}
	if course == nil {
		return &domain.NotFoundError{Kind: "course", ID: enrollment.CourseID.String()}
	}

	release, err := s.acquire(ctx, courseLockKey(course.CourseID), "course")
	if err != nil {
		return err
	}
	defer release()

	// Re-read under the lock; a concurrent drop or approval may have moved
	// the enrollment since the pre-lock load.
	enrollment, err = s.repos.Enrollments.GetByID(ctx, enrollmentID)
	if err != nil {
		return fmt.Errorf("failed to load enrollment %s: %w", enrollmentID, err)
	}
	if enrollment == nil {
		return &domain.NotFoundError{Kind: "enrollment", ID: enrollmentID.String()}
	}
	if !enrollment.Tombstone.Active {
		return &domain.InvalidStateTransitionError{
			EnrollmentID: enrollment.EnrollmentID,
			From:         enrollment.Status,
			To:           domain.StatusActive,
		}
	}
	if enrollment.Status == domain.StatusActive {
		return nil
	}

	seats, err := s.loadSeats(ctx, course.CourseID)
	if err != nil {
		return err
	}
	if seats.active >= course.Capacity {
		return &domain.CourseFullError{CourseCode: course.CourseCode, Capacity: course.Capacity}
	}

	now := time.Now()
	previous := enrollment.Status
	if previous == domain.StatusWaitlisted {
		if err := s.waitlist.Remove(ctx, enrollment, now); err != nil {
			return err
		}
	}
	if err := enrollment.Transition(domain.StatusActive); err != nil {
		return err
	}
	enrollment.Touch(now)
	if err := s.repos.Enrollments.Update(ctx, enrollment); err != nil {
		return fmt.Errorf("failed to update enrollment %s: %w", enrollment.EnrollmentID, err)
	}

	seats.active++
	if previous == domain.StatusPendingPayment {
		seats.pending--
	}

	s.publish(ctx, domain.Event{
		Type:      domain.EventEnrollmentActivated,
		StudentID: enrollment.StudentID,
		CourseID:  enrollment.CourseID,
		At:        now,
	})
	if previous == domain.StatusWaitlisted {
		s.recordWaitlistDepth(ctx, course)
	}
	s.refreshSeatCache(ctx, course, seats)
	return nil
}

// FinalizeSemester completes every ACTIVE enrollment that has a recorded
// grade once the semester has ended. Returns the number of enrollments
// completed.
func (s *EnrollmentEngine) FinalizeSemester(ctx context.Context, semesterID uuid.UUID) (int, error) {
	semester, err := s.repos.Semesters.GetByID(ctx, semesterID)
	if err != nil {
		return 0, fmt.Errorf("failed to load semester %s: %w", semesterID, err)
	}
	if semester == nil {
		return 0, &domain.NotFoundError{Kind: "semester", ID: semesterID.String()}
	}
	now := time.Now()
	if now.Before(semester.EndDate) {
		return 0, &domain.InvalidStateTransitionError{
			EnrollmentID: uuid.Nil,
			From:         domain.StatusActive,
			To:           domain.StatusCompleted,
		}
	}

	actives, err := s.repos.Enrollments.ListBySemesterAndStatus(ctx, semesterID, domain.StatusActive)
	if err != nil {
		return 0, fmt.Errorf("failed to list active enrollments: %w", err)
	}

	completed := 0
	touched := make(map[uuid.UUID]bool)
	for _, enrollment := range actives {
		record, err := s.repos.Grades.GetByStudentAndCourse(ctx, enrollment.StudentID, enrollment.CourseID)
		if err != nil {
			return completed, fmt.Errorf("failed to load grade for enrollment %s: %w", enrollment.EnrollmentID, err)
		}
		if record == nil {
			continue
		}
		if err := enrollment.Transition(domain.StatusCompleted); err != nil {
			return completed, err
		}
		enrollment.Touch(now)
		if err := s.repos.Enrollments.Update(ctx, enrollment); err != nil {
			return completed, fmt.Errorf("failed to update enrollment %s: %w", enrollment.EnrollmentID, err)
		}
		touched[enrollment.CourseID] = true
		completed++
	}

	// Completed enrollments no longer hold seats; drop the stale counters so
	// the next operation recounts from storage.
	s.seatsMu.Lock()
	for courseID := range touched {
		delete(s.seats, courseID)
	}
	s.seatsMu.Unlock()

	return completed, nil
}

// ListStudentEnrollments returns the student's full enrollment history,
// newest first.
func (s *EnrollmentEngine) ListStudentEnrollments(ctx context.Context, studentID uuid.UUID) ([]*domain.Enrollment, error) {
	return s.repos.Enrollments.ListByStudent(ctx, studentID)
}

// ListCourseWaitlist returns the course's waitlist in promotion order,
// serving the cached snapshot when one is warm and refreshing it otherwise.
func (s *EnrollmentEngine) ListCourseWaitlist(ctx context.Context, courseID uuid.UUID) ([]*domain.Enrollment, error) {
	if s.cache != nil {
		if data, err := s.cache.GetWaitlistSnapshot(ctx, courseID); err == nil && len(data) > 0 {
			var cached []*domain.Enrollment
			if err := json.Unmarshal(data, &cached); err == nil {
				return cached, nil
			}
		}
	}

	entries, err := s.waitlist.List(ctx, courseID)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		if err := s.cache.SetWaitlistSnapshot(ctx, courseID, entries, s.cacheTTL); err != nil {
			logger.Warn("failed to cache waitlist snapshot for course %s: %v", courseID, err)
		}
	}
	return entries, nil
}

// ListAvailableCourses returns the semester's courses with at least one free
// seat, serving from the cache when it is warm.
func (s *EnrollmentEngine) ListAvailableCourses(ctx context.Context, semesterID uuid.UUID) ([]*domain.Course, error) {
	if s.cache != nil {
		if data, err := s.cache.GetAvailableCourses(ctx, semesterID); err == nil && len(data) > 0 {
			var cached []*domain.Course
			if err := json.Unmarshal(data, &cached); err == nil {
				return cached, nil
			}
		}
	}

	courses, err := s.repos.Courses.ListBySemester(ctx, semesterID)
	if err != nil {
		return nil, fmt.Errorf("failed to list courses for semester %s: %w", semesterID, err)
	}

	available := make([]*domain.Course, 0, len(courses))
	for _, course := range courses {
		if s.cache != nil {
			if free, err := s.cache.GetAvailableSeats(ctx, course.CourseID); err == nil {
				if free > 0 {
					available = append(available, course)
				}
				continue
			}
		}
		seats, err := s.countSeats(ctx, course.CourseID)
		if err != nil {
			return nil, err
		}
		if seats.active+seats.pending < course.Capacity {
			available = append(available, course)
		}
	}

	if s.cache != nil {
		if err := s.cache.SetAvailableCourses(ctx, semesterID, available, s.cacheTTL); err != nil {
			logger.Warn("failed to cache available courses for semester %s: %v", semesterID, err)
		}
	}
	return available, nil
}

// validateEligibility runs the duplicate, prerequisite, schedule and credit
// checks against the student's committed set. Called with the student lock
// held.
func (s *EnrollmentEngine) validateEligibility(ctx context.Context, studentID uuid.UUID, course *domain.Course, semester *domain.Semester) error {
	existing, err := s.repos.Enrollments.GetLiveByStudentAndCourse(ctx, studentID, course.CourseID)
	if err != nil {
		return fmt.Errorf("failed to check existing enrollment: %w", err)
	}
	if existing != nil {
		return &domain.AlreadyEnrolledError{StudentID: studentID, CourseID: course.CourseID, Status: existing.Status}
	}

	if err := s.prereqs.Validate(ctx, studentID, course); err != nil {
		return err
	}

	live, err := s.repos.Enrollments.ListLiveByStudentAndSemester(ctx, studentID, semester.SemesterID)
	if err != nil {
		return fmt.Errorf("failed to list live enrollments: %w", err)
	}

	committed := make([]*domain.Course, 0, len(live))
	currentCredits := 0
	for _, enrollment := range live {
		other, err := s.repos.Courses.GetByID(ctx, enrollment.CourseID)
		if err != nil {
			return fmt.Errorf("failed to load course %s: %w", enrollment.CourseID, err)
		}
		if other == nil {
			continue
		}
		committed = append(committed, other)
		currentCredits += other.Credits
	}

	if err := s.schedule.Check(course, committed); err != nil {
		return err
	}
	return s.credits.Validate(currentCredits, course.Credits)
}

// loadSeats returns the course's seat counter, counting from storage on
// first touch. Called with the course lock held.
func (s *EnrollmentEngine) loadSeats(ctx context.Context, courseID uuid.UUID) (*seatCounter, error) {
	s.seatsMu.Lock()
	seats, ok := s.seats[courseID]
	if !ok {
		seats = &seatCounter{}
		s.seats[courseID] = seats
	}
	s.seatsMu.Unlock()

	if seats.loaded {
		return seats, nil
	}
	counted, err := s.countSeats(ctx, courseID)
	if err != nil {
		return nil, err
	}
	seats.active = counted.active
	seats.pending = counted.pending
	seats.loaded = true
	return seats, nil
}

func (s *EnrollmentEngine) countSeats(ctx context.Context, courseID uuid.UUID) (seatCounter, error) {
	active, err := s.repos.Enrollments.CountByCourseAndStatus(ctx, courseID, domain.StatusActive)
	if err != nil {
		return seatCounter{}, fmt.Errorf("failed to count active enrollments for course %s: %w", courseID, err)
	}
	pending, err := s.repos.Enrollments.CountByCourseAndStatus(ctx, courseID, domain.StatusPendingPayment)
	if err != nil {
		return seatCounter{}, fmt.Errorf("failed to count pending enrollments for course %s: %w", courseID, err)
	}
	return seatCounter{active: active, pending: pending}, nil
}

// rollbackSeat undoes the optimistic counter bump when persisting a new
// enrollment failed. Called with the course lock held.
func (s *EnrollmentEngine) rollbackSeat(courseID uuid.UUID, status domain.EnrollmentStatus) {
	s.seatsMu.Lock()
	seats, ok := s.seats[courseID]
	s.seatsMu.Unlock()
	if !ok {
		return
	}
	switch status {
	case domain.StatusActive:
		seats.active--
	case domain.StatusPendingPayment:
		seats.pending--
	}
}

func (s *EnrollmentEngine) acquire(ctx context.Context, key, scope string) (func(), error) {
	started := time.Now()
	release, err := s.locks.Acquire(ctx, key, s.lockTimeout)
	s.metrics.ObserveLockWait(scope, time.Since(started))
	return release, err
}

func (s *EnrollmentEngine) publish(ctx context.Context, event domain.Event) {
	if s.dispatcher == nil {
		return
	}
	s.dispatcher.Publish(ctx, event)
}

func (s *EnrollmentEngine) publishForStatus(ctx context.Context, enrollment *domain.Enrollment, now time.Time) {
	switch enrollment.Status {
	case domain.StatusActive:
		s.publish(ctx, domain.Event{
			Type:      domain.EventEnrollmentActivated,
			StudentID: enrollment.StudentID,
			CourseID:  enrollment.CourseID,
			At:        now,
		})
	case domain.StatusWaitlisted:
		position := 0
		if enrollment.WaitlistPosition != nil {
			position = *enrollment.WaitlistPosition
		}
		s.publish(ctx, domain.Event{
			Type:      domain.EventEnrollmentWaitlisted,
			StudentID: enrollment.StudentID,
			CourseID:  enrollment.CourseID,
			Position:  position,
			At:        now,
		})
	}
}

func (s *EnrollmentEngine) refreshSeatCache(ctx context.Context, course *domain.Course, seats *seatCounter) {
	if s.cache == nil {
		return
	}
	free := course.Capacity - seats.active - seats.pending
	if free < 0 {
		free = 0
	}
	if err := s.cache.SetAvailableSeats(ctx, course.CourseID, free, s.cacheTTL); err != nil {
		logger.Warn("failed to refresh seat cache for course %s: %v", course.CourseID, err)
	}
	// Seat movement changes which courses are listable; drop the semester's
	// cached listing so the next availability query recomputes it.
	if err := s.cache.InvalidateAvailableCourses(ctx, course.SemesterID); err != nil {
		logger.Warn("failed to invalidate course listing for semester %s: %v", course.SemesterID, err)
	}
}

// recordWaitlistDepth refreshes the per-course waitlist gauge after a queue
// mutation. Called with the course lock held.
func (s *EnrollmentEngine) recordWaitlistDepth(ctx context.Context, course *domain.Course) {
	if s.metrics == nil {
		return
	}
	depth, err := s.repos.Enrollments.CountByCourseAndStatus(ctx, course.CourseID, domain.StatusWaitlisted)
	if err != nil {
		logger.Warn("failed to count waitlist for course %s: %v", course.CourseID, err)
		return
	}
	s.metrics.SetWaitlistDepth(course.CourseCode, depth)
}
