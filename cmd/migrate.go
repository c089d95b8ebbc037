package cmd

import (
	"fmt"
	"os"

	"course-enrollment/internal/config"
	"course-enrollment/internal/infrastructure/database"
	"course-enrollment/pkg/logger"

	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Database migration management",
	Long:  "Manage database migrations for the course enrollment system",
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Run pending migrations",
	Long:  "Execute all pending database migrations",
	Run:   runMigrateUp,
}

var migrateStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show migration status",
	Long:  "Display the applied migrations",
	Run:   runMigrateStatus,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
	migrateCmd.AddCommand(migrateUpCmd)
	migrateCmd.AddCommand(migrateStatusCmd)
}

func connectDatabase() *database.Config {
	cfg := config.Get()
	return &database.Config{
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		User:     cfg.Database.Username,
		Password: cfg.Database.Password,
		DBName:   cfg.Database.Name,
		SSLMode:  cfg.Database.SSLMode,
	}
}

func runMigrateUp(cmd *cobra.Command, args []string) {
	db, err := database.NewConnection(*connectDatabase())
	if err != nil {
		logger.Error("Failed to connect to database: %v", err)
		os.Exit(1)
	}

	if err := database.RunMigrations(db, config.Get().Database.MigrationsDir); err != nil {
		logger.Error("Failed to run migrations: %v", err)
		os.Exit(1)
	}

	logger.Info("Migrations applied successfully")
}

func runMigrateStatus(cmd *cobra.Command, args []string) {
	db, err := database.NewConnection(*connectDatabase())
	if err != nil {
		logger.Error("Failed to connect to database: %v", err)
		os.Exit(1)
	}

	var applied []database.Migration
	err = db.Raw("SELECT id, description, applied_at FROM schema_migrations ORDER BY id").Scan(&applied).Error
	if err != nil {
		logger.Error("Failed to read migration status: %v", err)
		os.Exit(1)
	}

	if len(applied) == 0 {
		fmt.Println("No migrations applied")
		return
	}
	for _, m := range applied {
		fmt.Printf("%s  %s  (applied %s)\n", m.ID, m.Description, m.AppliedAt)
	}
}
