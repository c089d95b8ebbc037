package router

import (
	"context"
	"time"

	"course-enrollment/internal/api/handlers"
	"course-enrollment/internal/api/middleware"
	"course-enrollment/internal/config"
	domain "course-enrollment/internal/domain/enrollment"
	"course-enrollment/internal/infrastructure/cache"
	"course-enrollment/internal/infrastructure/database"
	"course-enrollment/internal/infrastructure/events"
	"course-enrollment/internal/infrastructure/repository"
	interfaces "course-enrollment/internal/interfaces/infrastructure"
	"course-enrollment/internal/service"
	"course-enrollment/pkg/logger"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// RouterComponents bundles the router with the long-lived services the
// serve command must shut down.
type RouterComponents struct {
	Router     *gin.Engine
	Dispatcher interfaces.EventDispatcher
	Cache      interfaces.CacheService
}

func NewEnrollmentRouter(db *gorm.DB) (*gin.Engine, error) {
	components, err := NewEnrollmentRouterWithComponents(db)
	if err != nil {
		return nil, err
	}
	return components.Router, nil
}

func NewEnrollmentRouterWithComponents(db *gorm.DB) (*RouterComponents, error) {
	gin.SetMode(gin.ReleaseMode)
	cfg := config.Get()

	r := gin.New()
	r.Use(middleware.Logger())
	r.Use(cors.Default())
	r.Use(gin.Recovery())

	courseRepo := repository.NewCourseRepository(db)
	semesterRepo := repository.NewSemesterRepository(db)
	enrollmentRepo := repository.NewEnrollmentRepository(db)
	paymentRepo := repository.NewPaymentRepository(db)

	sqlxDB, err := database.NewSQLXFromGorm(db)
	if err != nil {
		return nil, err
	}
	gradeRepo := repository.NewGradeHistoryRepository(sqlxDB)

	var cacheService interfaces.CacheService
	var idempotencyRepo interfaces.IdempotencyRepository
	dispatcher := events.NewDispatcher(cfg.Events.BufferSize, cfg.Events.Workers)
	dispatcher.Register(events.NewLogSink())

	if cfg.Cache.Enabled {
		redisCache := cache.NewRedisCacheWithConfig(&cfg.Cache)
		cacheService = redisCache
		idempotencyRepo = repository.NewRedisIdempotencyRepository(
			redisCache.GetClient(),
			time.Duration(cfg.Enrollment.IdempotencyTTLHours)*time.Hour,
		)
		if cfg.Events.RedisPubSub {
			dispatcher.Register(events.NewRedisPublisher(redisCache.GetClient()))
		}
	} else {
		idempotencyRepo = repository.NewMemoryIdempotencyRepository()
	}

	metrics := service.NewMetricsService()
	r.Use(middleware.Metrics(metrics))

	engine := service.NewEnrollmentEngine(service.Repositories{
		Courses:     courseRepo,
		Semesters:   semesterRepo,
		Enrollments: enrollmentRepo,
		Payments:    paymentRepo,
		Grades:      gradeRepo,
	}, dispatcher, cacheService, metrics, service.EngineConfig{
		MaxCreditsPerTerm: cfg.Enrollment.MaxCreditsPerTerm,
		LockTimeout:       time.Duration(cfg.Enrollment.LockTimeoutMs) * time.Millisecond,
		SeatCacheTTL:      time.Duration(cfg.Cache.TTL) * time.Second,
	})

	dispatcher.Start()

	if cacheService != nil {
		if err := warmSeatCache(cacheService, courseRepo, enrollmentRepo, semesterRepo, time.Duration(cfg.Cache.TTL)*time.Second); err != nil {
			logger.Warn("Failed to warm seat cache: %v", err)
		}
	}

	enrollmentHandler := handlers.NewEnrollmentHandler(
		engine,
		idempotencyRepo,
		time.Duration(cfg.Enrollment.IdempotencyTTLHours)*time.Hour,
	)
	paymentHandler := handlers.NewPaymentHandler(engine)
	healthHandler := handlers.NewHealthHandler(cacheService)

	r.GET("/health", healthHandler.HealthCheck)
	r.GET("/ready", healthHandler.ReadinessCheck)
	r.GET("/live", healthHandler.LivenessCheck)
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	v1 := r.Group("/api/v1")
	v1.Use(middleware.Idempotency())
	v1.Use(middleware.Actor())
	{
		enrollments := v1.Group("/enrollments")
		{
			enrollments.POST("", enrollmentHandler.Enroll)
			enrollments.POST("/drop", enrollmentHandler.Drop)
			enrollments.POST("/:enrollment_id/activate", enrollmentHandler.ForceActivate)
		}

		payments := v1.Group("/payments")
		{
			payments.POST("/:payment_id/approve", paymentHandler.Approve)
			payments.POST("/:payment_id/reject", paymentHandler.Reject)
		}

		students := v1.Group("/students")
		{
			students.GET("/:student_id/enrollments", enrollmentHandler.ListStudentEnrollments)
		}

		courses := v1.Group("/courses")
		{
			courses.GET("/available", enrollmentHandler.ListAvailableCourses)
			courses.GET("/:course_id/waitlist", enrollmentHandler.ListCourseWaitlist)
		}

		semesters := v1.Group("/semesters")
		{
			semesters.POST("/:semester_id/finalize", enrollmentHandler.FinalizeSemester)
		}
	}

	return &RouterComponents{
		Router:     r,
		Dispatcher: dispatcher,
		Cache:      cacheService,
	}, nil
}

// warmSeatCache pre-populates seat availability for the current semester so
// the first wave of requests reads warm values.
func warmSeatCache(
	cacheService interfaces.CacheService,
	courses interfaces.CourseRepository,
	enrollments interfaces.EnrollmentRepository,
	semesters interfaces.SemesterRepository,
	ttl time.Duration,
) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	semester, err := semesters.GetCurrent(ctx)
	if err != nil {
		return err
	}
	if semester == nil {
		return nil
	}

	list, err := courses.ListBySemester(ctx, semester.SemesterID)
	if err != nil {
		return err
	}

	for _, course := range list {
		active, err := enrollments.CountByCourseAndStatus(ctx, course.CourseID, domain.StatusActive)
		if err != nil {
			return err
		}
		pending, err := enrollments.CountByCourseAndStatus(ctx, course.CourseID, domain.StatusPendingPayment)
		if err != nil {
			return err
		}
		free := course.Capacity - active - pending
		if free < 0 {
			free = 0
		}
		if err := cacheService.SetAvailableSeats(ctx, course.CourseID, free, ttl); err != nil {
			return err
		}
	}

	logger.Info("Warmed seat cache for %d courses in semester %s", len(list), semester.SemesterCode)
	return nil
}
