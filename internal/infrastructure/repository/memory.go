package repository

import (
	"context"
	"sort"
	"sync"

	domain "course-enrollment/internal/domain/enrollment"

	"github.com/google/uuid"
)

// In-memory repository implementations backing tests and the simulate
// command. Each one copies on write and on read, so callers only observe
// state that went through Create or Update.

type MemoryCourseRepository struct {
	mu            sync.RWMutex
	courses       map[uuid.UUID]*domain.Course
	prerequisites map[uuid.UUID][]uuid.UUID
}

func NewMemoryCourseRepository() *MemoryCourseRepository {
	return &MemoryCourseRepository{
		courses:       make(map[uuid.UUID]*domain.Course),
		prerequisites: make(map[uuid.UUID][]uuid.UUID),
	}
}

func (r *MemoryCourseRepository) Create(_ context.Context, course *domain.Course) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored := *course
	r.courses[course.CourseID] = &stored
	return nil
}

func (r *MemoryCourseRepository) GetByID(_ context.Context, id uuid.UUID) (*domain.Course, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	course, ok := r.courses[id]
	if !ok {
		return nil, nil
	}
	out := *course
	return &out, nil
}

func (r *MemoryCourseRepository) GetByCode(_ context.Context, courseCode string) (*domain.Course, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, course := range r.courses {
		if course.CourseCode == courseCode {
			out := *course
			return &out, nil
		}
	}
	return nil, nil
}

func (r *MemoryCourseRepository) ListBySemester(_ context.Context, semesterID uuid.UUID) ([]*domain.Course, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*domain.Course
	for _, course := range r.courses {
		if course.SemesterID == semesterID && course.Tombstone.Active {
			c := *course
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CourseCode < out[j].CourseCode })
	return out, nil
}

func (r *MemoryCourseRepository) GetPrerequisites(_ context.Context, courseID uuid.UUID) ([]*domain.Course, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*domain.Course
	for _, requiredID := range r.prerequisites[courseID] {
		if required, ok := r.courses[requiredID]; ok {
			c := *required
			out = append(out, &c)
		}
	}
	return out, nil
}

func (r *MemoryCourseRepository) AddPrerequisite(_ context.Context, courseID, requiresCourseID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.prerequisites[courseID] = append(r.prerequisites[courseID], requiresCourseID)
	return nil
}

type MemorySemesterRepository struct {
	mu        sync.RWMutex
	semesters map[uuid.UUID]*domain.Semester
}

func NewMemorySemesterRepository() *MemorySemesterRepository {
	return &MemorySemesterRepository{semesters: make(map[uuid.UUID]*domain.Semester)}
}

func (r *MemorySemesterRepository) Create(_ context.Context, semester *domain.Semester) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored := *semester
	r.semesters[semester.SemesterID] = &stored
	return nil
}

func (r *MemorySemesterRepository) GetByID(_ context.Context, id uuid.UUID) (*domain.Semester, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	semester, ok := r.semesters[id]
	if !ok {
		return nil, nil
	}
	out := *semester
	return &out, nil
}

func (r *MemorySemesterRepository) GetCurrent(_ context.Context) (*domain.Semester, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, semester := range r.semesters {
		if semester.Current {
			out := *semester
			return &out, nil
		}
	}
	return nil, nil
}

type MemoryEnrollmentRepository struct {
	mu          sync.RWMutex
	enrollments map[uuid.UUID]*domain.Enrollment
}

func NewMemoryEnrollmentRepository() *MemoryEnrollmentRepository {
	return &MemoryEnrollmentRepository{enrollments: make(map[uuid.UUID]*domain.Enrollment)}
}

func (r *MemoryEnrollmentRepository) Create(_ context.Context, enrollment *domain.Enrollment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored := *enrollment
	r.enrollments[enrollment.EnrollmentID] = &stored
	return nil
}

func (r *MemoryEnrollmentRepository) Update(_ context.Context, enrollment *domain.Enrollment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored := *enrollment
	r.enrollments[enrollment.EnrollmentID] = &stored
	return nil
}

func (r *MemoryEnrollmentRepository) GetByID(_ context.Context, id uuid.UUID) (*domain.Enrollment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	enrollment, ok := r.enrollments[id]
	if !ok {
		return nil, nil
	}
	out := *enrollment
	return &out, nil
}

func (r *MemoryEnrollmentRepository) GetLiveByStudentAndCourse(_ context.Context, studentID, courseID uuid.UUID) (*domain.Enrollment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, enrollment := range r.enrollments {
		if enrollment.StudentID == studentID && enrollment.CourseID == courseID &&
			enrollment.Status.IsLive() && enrollment.Tombstone.Active {
			out := *enrollment
			return &out, nil
		}
	}
	return nil, nil
}

func (r *MemoryEnrollmentRepository) GetLatestByStudentAndCourse(_ context.Context, studentID, courseID uuid.UUID) (*domain.Enrollment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var latest *domain.Enrollment
	for _, enrollment := range r.enrollments {
		if enrollment.StudentID != studentID || enrollment.CourseID != courseID {
			continue
		}
		if latest == nil || enrollment.CreatedAt.After(latest.CreatedAt) {
			latest = enrollment
		}
	}
	if latest == nil {
		return nil, nil
	}
	out := *latest
	return &out, nil
}

func (r *MemoryEnrollmentRepository) ListLiveByStudentAndSemester(_ context.Context, studentID, semesterID uuid.UUID) ([]*domain.Enrollment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*domain.Enrollment
	for _, enrollment := range r.enrollments {
		if enrollment.StudentID == studentID && enrollment.SemesterID == semesterID &&
			enrollment.Status.IsLive() && enrollment.Tombstone.Active {
			e := *enrollment
			out = append(out, &e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EnrolledAt.Before(out[j].EnrolledAt) })
	return out, nil
}

func (r *MemoryEnrollmentRepository) ListByStudent(_ context.Context, studentID uuid.UUID) ([]*domain.Enrollment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*domain.Enrollment
	for _, enrollment := range r.enrollments {
		if enrollment.StudentID == studentID {
			e := *enrollment
			out = append(out, &e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EnrolledAt.After(out[j].EnrolledAt) })
	return out, nil
}

func (r *MemoryEnrollmentRepository) ListByCourseAndStatus(_ context.Context, courseID uuid.UUID, status domain.EnrollmentStatus) ([]*domain.Enrollment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*domain.Enrollment
	for _, enrollment := range r.enrollments {
		if enrollment.CourseID == courseID && enrollment.Status == status && enrollment.Tombstone.Active {
			e := *enrollment
			out = append(out, &e)
		}
	}
	if status == domain.StatusWaitlisted {
		sort.Slice(out, func(i, j int) bool {
			pi, pj := 0, 0
			if out[i].WaitlistPosition != nil {
				pi = *out[i].WaitlistPosition
			}
			if out[j].WaitlistPosition != nil {
				pj = *out[j].WaitlistPosition
			}
			return pi < pj
		})
	} else {
		sort.Slice(out, func(i, j int) bool { return out[i].EnrolledAt.Before(out[j].EnrolledAt) })
	}
	return out, nil
}

func (r *MemoryEnrollmentRepository) CountByCourseAndStatus(ctx context.Context, courseID uuid.UUID, status domain.EnrollmentStatus) (int, error) {
	entries, err := r.ListByCourseAndStatus(ctx, courseID, status)
	if err != nil {
		return 0, err
	}
	return len(entries), nil
}

func (r *MemoryEnrollmentRepository) ListPendingByPayment(_ context.Context, paymentID uuid.UUID) ([]*domain.Enrollment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*domain.Enrollment
	for _, enrollment := range r.enrollments {
		if enrollment.Status == domain.StatusPendingPayment && enrollment.Tombstone.Active &&
			enrollment.PaymentID != nil && *enrollment.PaymentID == paymentID {
			e := *enrollment
			out = append(out, &e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EnrolledAt.Before(out[j].EnrolledAt) })
	return out, nil
}

func (r *MemoryEnrollmentRepository) ListBySemesterAndStatus(_ context.Context, semesterID uuid.UUID, status domain.EnrollmentStatus) ([]*domain.Enrollment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*domain.Enrollment
	for _, enrollment := range r.enrollments {
		if enrollment.SemesterID == semesterID && enrollment.Status == status && enrollment.Tombstone.Active {
			e := *enrollment
			out = append(out, &e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EnrolledAt.Before(out[j].EnrolledAt) })
	return out, nil
}

type MemoryPaymentRepository struct {
	mu       sync.RWMutex
	payments map[uuid.UUID]*domain.Payment
}

func NewMemoryPaymentRepository() *MemoryPaymentRepository {
	return &MemoryPaymentRepository{payments: make(map[uuid.UUID]*domain.Payment)}
}

func (r *MemoryPaymentRepository) Create(_ context.Context, payment *domain.Payment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored := *payment
	r.payments[payment.PaymentID] = &stored
	return nil
}

func (r *MemoryPaymentRepository) Update(_ context.Context, payment *domain.Payment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored := *payment
	r.payments[payment.PaymentID] = &stored
	return nil
}

func (r *MemoryPaymentRepository) GetByID(_ context.Context, id uuid.UUID) (*domain.Payment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	payment, ok := r.payments[id]
	if !ok {
		return nil, nil
	}
	out := *payment
	return &out, nil
}

func (r *MemoryPaymentRepository) GetByStudentAndSemester(_ context.Context, studentID, semesterID uuid.UUID) (*domain.Payment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, payment := range r.payments {
		if payment.StudentID == studentID && payment.SemesterID == semesterID {
			out := *payment
			return &out, nil
		}
	}
	return nil, nil
}

type MemoryGradeHistoryRepository struct {
	mu      sync.RWMutex
	records []*domain.GradeRecord
}

func NewMemoryGradeHistoryRepository() *MemoryGradeHistoryRepository {
	return &MemoryGradeHistoryRepository{}
}

// Add seeds a grade record. Not part of the repository interface; the records
// system owns writes in production.
func (r *MemoryGradeHistoryRepository) Add(record *domain.GradeRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored := *record
	r.records = append(r.records, &stored)
}

func (r *MemoryGradeHistoryRepository) ListByStudent(_ context.Context, studentID uuid.UUID) ([]*domain.GradeRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*domain.GradeRecord
	for _, record := range r.records {
		if record.StudentID == studentID {
			rec := *record
			out = append(out, &rec)
		}
	}
	return out, nil
}

func (r *MemoryGradeHistoryRepository) GetByStudentAndCourse(_ context.Context, studentID, courseID uuid.UUID) (*domain.GradeRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, record := range r.records {
		if record.StudentID == studentID && record.CourseID == courseID {
			out := *record
			return &out, nil
		}
	}
	return nil, nil
}

type MemoryIdempotencyRepository struct {
	mu   sync.RWMutex
	keys map[string]*domain.IdempotencyKey
}

func NewMemoryIdempotencyRepository() *MemoryIdempotencyRepository {
	return &MemoryIdempotencyRepository{keys: make(map[string]*domain.IdempotencyKey)}
}

func (r *MemoryIdempotencyRepository) Create(_ context.Context, key *domain.IdempotencyKey) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored := *key
	r.keys[key.Key] = &stored
	return nil
}

func (r *MemoryIdempotencyRepository) GetByKey(_ context.Context, key string) (*domain.IdempotencyKey, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	stored, ok := r.keys[key]
	if !ok {
		return nil, nil
	}
	out := *stored
	return &out, nil
}

func (r *MemoryIdempotencyRepository) Delete(_ context.Context, key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.keys, key)
	return nil
}
