package handlers

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"course-enrollment/internal/api/middleware"
	domain "course-enrollment/internal/domain/enrollment"
	interfaces "course-enrollment/internal/interfaces/infrastructure"
	svc "course-enrollment/internal/interfaces/service"
	"course-enrollment/pkg/logger"
	"course-enrollment/pkg/validator"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// APIResponse represents a standard API response
type APIResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
	Errors  interface{} `json:"errors,omitempty"`
}

// EnrollmentHandler handles enrollment-related HTTP requests
type EnrollmentHandler struct {
	enrollments    svc.EnrollmentService
	idempotency    interfaces.IdempotencyRepository
	idempotencyTTL time.Duration
}

func NewEnrollmentHandler(enrollments svc.EnrollmentService, idempotency interfaces.IdempotencyRepository, idempotencyTTL time.Duration) *EnrollmentHandler {
	if idempotencyTTL <= 0 {
		idempotencyTTL = 24 * time.Hour
	}
	return &EnrollmentHandler{
		enrollments:    enrollments,
		idempotency:    idempotency,
		idempotencyTTL: idempotencyTTL,
	}
}

// Enroll handles POST /api/v1/enrollments. Requests carrying an
// Idempotency-Key header replay their original response on retry.
func (h *EnrollmentHandler) Enroll(c *gin.Context) {
	var req svc.EnrollRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, APIResponse{
			Success: false,
			Message: "Invalid request format",
			Errors:  err.Error(),
		})
		return
	}

	if err := validator.ValidateStruct(&req); err != nil {
		c.JSON(http.StatusBadRequest, APIResponse{
			Success: false,
			Message: "Validation failed",
			Errors:  validator.FormatValidationError(err),
		})
		return
	}

	idemKey := c.GetString(middleware.IdempotencyKeyContext)
	requestHash := enrollRequestHash(&req)
	if idemKey != "" && h.idempotency != nil {
		stored, err := h.idempotency.GetByKey(c.Request.Context(), idemKey)
		if err != nil {
			logger.Warn("idempotency lookup failed for key %s: %v", idemKey, err)
		} else if stored != nil && !stored.IsExpired() {
			if stored.RequestHash != requestHash {
				c.JSON(http.StatusConflict, APIResponse{
					Success: false,
					Message: "Idempotency key reused with a different request",
				})
				return
			}
			c.Data(stored.StatusCode, "application/json", []byte(stored.ResponseData))
			return
		}
	}

	response, err := h.enrollments.RequestEnroll(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err)
		return
	}

	body := APIResponse{
		Success: true,
		Message: enrollMessage(response.Status),
		Data:    response,
	}
	if idemKey != "" && h.idempotency != nil {
		if payload, err := json.Marshal(body); err == nil {
			now := time.Now()
			record := &domain.IdempotencyKey{
				Key:          idemKey,
				StudentID:    req.StudentID,
				RequestHash:  requestHash,
				ResponseData: string(payload),
				StatusCode:   http.StatusCreated,
				ProcessedAt:  now,
				ExpiresAt:    now.Add(h.idempotencyTTL),
			}
			if err := h.idempotency.Create(c.Request.Context(), record); err != nil {
				logger.Warn("failed to store idempotency key %s: %v", idemKey, err)
			}
		}
	}

	c.JSON(http.StatusCreated, body)
}

// Drop handles POST /api/v1/enrollments/drop
func (h *EnrollmentHandler) Drop(c *gin.Context) {
	var req svc.DropRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, APIResponse{
			Success: false,
			Message: "Invalid request format",
			Errors:  err.Error(),
		})
		return
	}

	if err := validator.ValidateStruct(&req); err != nil {
		c.JSON(http.StatusBadRequest, APIResponse{
			Success: false,
			Message: "Validation failed",
			Errors:  validator.FormatValidationError(err),
		})
		return
	}

	if err := h.enrollments.Drop(c.Request.Context(), &req, middleware.ActorFrom(c)); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, APIResponse{
		Success: true,
		Message: "Enrollment dropped",
	})
}

// ListStudentEnrollments handles GET /api/v1/students/:student_id/enrollments
func (h *EnrollmentHandler) ListStudentEnrollments(c *gin.Context) {
	studentID, ok := parseUUIDParam(c, "student_id")
	if !ok {
		return
	}

	enrollments, err := h.enrollments.ListStudentEnrollments(c.Request.Context(), studentID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, APIResponse{
		Success: true,
		Data:    enrollments,
	})
}

// ListCourseWaitlist handles GET /api/v1/courses/:course_id/waitlist
func (h *EnrollmentHandler) ListCourseWaitlist(c *gin.Context) {
	courseID, ok := parseUUIDParam(c, "course_id")
	if !ok {
		return
	}

	entries, err := h.enrollments.ListCourseWaitlist(c.Request.Context(), courseID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, APIResponse{
		Success: true,
		Data:    entries,
	})
}

// ListAvailableCourses handles GET /api/v1/courses/available
func (h *EnrollmentHandler) ListAvailableCourses(c *gin.Context) {
	semesterIDStr := c.Query("semester_id")
	if semesterIDStr == "" {
		c.JSON(http.StatusBadRequest, APIResponse{
			Success: false,
			Message: "semester_id is required",
		})
		return
	}
	semesterID, err := uuid.Parse(semesterIDStr)
	if err != nil {
		c.JSON(http.StatusBadRequest, APIResponse{
			Success: false,
			Message: "Invalid semester_id format",
		})
		return
	}

	courses, err := h.enrollments.ListAvailableCourses(c.Request.Context(), semesterID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, APIResponse{
		Success: true,
		Data:    courses,
	})
}

// ForceActivate handles POST /api/v1/enrollments/:enrollment_id/activate
func (h *EnrollmentHandler) ForceActivate(c *gin.Context) {
	enrollmentID, ok := parseUUIDParam(c, "enrollment_id")
	if !ok {
		return
	}

	if err := h.enrollments.ForceActivate(c.Request.Context(), enrollmentID, middleware.ActorFrom(c)); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, APIResponse{
		Success: true,
		Message: "Enrollment activated",
	})
}

// FinalizeSemester handles POST /api/v1/semesters/:semester_id/finalize
func (h *EnrollmentHandler) FinalizeSemester(c *gin.Context) {
	semesterID, ok := parseUUIDParam(c, "semester_id")
	if !ok {
		return
	}

	actor := middleware.ActorFrom(c)
	if !actor.IsAdmin() {
		respondError(c, &domain.PermissionDeniedError{ActorID: actor.ID, Operation: "finalize semesters"})
		return
	}

	completed, err := h.enrollments.FinalizeSemester(c.Request.Context(), semesterID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, APIResponse{
		Success: true,
		Message: "Semester finalized",
		Data:    gin.H{"completed": completed},
	})
}

func parseUUIDParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		c.JSON(http.StatusBadRequest, APIResponse{
			Success: false,
			Message: fmt.Sprintf("Invalid %s format", name),
		})
		return uuid.Nil, false
	}
	return id, true
}

func enrollRequestHash(req *svc.EnrollRequest) string {
	sum := sha256.Sum256([]byte(req.StudentID.String() + ":" + req.CourseID.String()))
	return hex.EncodeToString(sum[:])
}

func enrollMessage(status domain.EnrollmentStatus) string {
	switch status {
	case domain.StatusActive:
		return "Enrollment activated"
	case domain.StatusWaitlisted:
		return "Course full, added to waitlist"
	default:
		return "Seat held pending payment"
	}
}

// respondError maps domain errors to HTTP status codes. Unknown errors are
// logged and reported as 500 without leaking details.
func respondError(c *gin.Context, err error) {
	var (
		notFound    *domain.NotFoundError
		duplicate   *domain.AlreadyEnrolledError
		transition  *domain.InvalidStateTransitionError
		prereq      *domain.PrerequisiteNotMetError
		conflict    *domain.ScheduleConflictError
		credits     *domain.CreditLimitExceededError
		closed      *domain.EnrollmentPeriodClosedError
		deadline    *domain.DropDeadlinePassedError
		full        *domain.CourseFullError
		busy        *domain.ConcurrencyBusyError
		denied      *domain.PermissionDeniedError
		badSchedule *domain.InvalidScheduleError
	)

	switch {
	case errors.As(err, &notFound):
		c.JSON(http.StatusNotFound, APIResponse{Success: false, Message: err.Error()})
	case errors.As(err, &duplicate), errors.As(err, &transition):
		c.JSON(http.StatusConflict, APIResponse{Success: false, Message: err.Error()})
	case errors.As(err, &prereq), errors.As(err, &conflict), errors.As(err, &credits),
		errors.As(err, &closed), errors.As(err, &deadline), errors.As(err, &full):
		c.JSON(http.StatusUnprocessableEntity, APIResponse{Success: false, Message: err.Error()})
	case errors.As(err, &denied):
		c.JSON(http.StatusForbidden, APIResponse{Success: false, Message: err.Error()})
	case errors.As(err, &badSchedule):
		c.JSON(http.StatusBadRequest, APIResponse{Success: false, Message: err.Error()})
	case errors.As(err, &busy):
		c.Header("Retry-After", "1")
		c.JSON(http.StatusServiceUnavailable, APIResponse{Success: false, Message: err.Error()})
	default:
		logger.Error("unhandled error: %v", err)
		c.JSON(http.StatusInternalServerError, APIResponse{Success: false, Message: "Internal server error"})
	}
}
