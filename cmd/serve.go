package cmd

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"course-enrollment/internal/api/router"
	"course-enrollment/internal/config"
	"course-enrollment/internal/infrastructure/database"
	"course-enrollment/pkg/logger"

	"github.com/spf13/cobra"
)

var servePort string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the Course Enrollment HTTP server",
	Long: `Start the Course Enrollment HTTP server.
This includes:
- Enrollment request and drop endpoints
- Payment approval callbacks with waitlist promotion
- Waitlist and availability queries
- Event workers for enrollment notifications
- Prometheus metrics on /metrics`,
	Run: func(cmd *cobra.Command, args []string) {
		startServer()
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVarP(&servePort, "port", "p", "8080", "Port for the server to listen on")
}

func startServer() {
	cfg := config.Get()
	if servePort != "8080" {
		cfg.Server.Port = servePort
	}

	dbConfig := database.Config{
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		User:     cfg.Database.Username,
		Password: cfg.Database.Password,
		DBName:   cfg.Database.Name,
		SSLMode:  cfg.Database.SSLMode,
	}

	db, err := database.NewConnection(dbConfig)
	if err != nil {
		logger.Error("Failed to connect to database: %v", err)
		os.Exit(1)
	}

	if err := database.RunMigrations(db, cfg.Database.MigrationsDir); err != nil {
		logger.Error("Failed to run database migrations: %v", err)
		os.Exit(1)
	}

	if err := database.HealthCheck(db); err != nil {
		logger.Error("Database health check failed: %v", err)
		os.Exit(1)
	}

	components, err := router.NewEnrollmentRouterWithComponents(db)
	if err != nil {
		logger.Error("Failed to build router: %v", err)
		os.Exit(1)
	}

	srv := &http.Server{
		Addr:           ":" + cfg.Server.Port,
		Handler:        components.Router,
		ReadTimeout:    time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout:   time.Duration(cfg.Server.WriteTimeout) * time.Second,
		MaxHeaderBytes: cfg.Server.MaxHeaderBytes,
	}

	go func() {
		logger.Info("Starting Course Enrollment Server on port %s", cfg.Server.Port)
		logger.Info("Available endpoints:")
		logger.Info("  POST /api/v1/enrollments - Request enrollment")
		logger.Info("  POST /api/v1/enrollments/drop - Drop an enrollment")
		logger.Info("  POST /api/v1/enrollments/{id}/activate - Force-activate (admin)")
		logger.Info("  POST /api/v1/payments/{id}/approve - Approve payment")
		logger.Info("  POST /api/v1/payments/{id}/reject - Reject payment")
		logger.Info("  GET  /api/v1/students/{id}/enrollments - Student enrollments")
		logger.Info("  GET  /api/v1/courses/{id}/waitlist - Course waitlist")
		logger.Info("  GET  /api/v1/courses/available - Available courses")
		logger.Info("  POST /api/v1/semesters/{id}/finalize - Finalize semester (admin)")
		logger.Info("  GET  /health - Health check")
		logger.Info("  GET  /metrics - Prometheus metrics")

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down Course Enrollment Server...")
	components.Dispatcher.Stop()
	if components.Cache != nil {
		if err := components.Cache.Close(); err != nil {
			logger.Warn("Failed to close cache: %v", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatal("Server forced to shutdown: %v", err)
	}

	logger.Info("Course Enrollment Server exited")
}
