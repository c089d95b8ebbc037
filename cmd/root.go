package cmd

import (
	"fmt"
	"os"

	"course-enrollment/internal/config"
	"course-enrollment/pkg/logger"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "course-enrollment",
	Short: "University Course Enrollment Admission Engine",
	Long: `The course enrollment admission engine controls who gets a seat in a course.
It provides:
- Capacity-checked enrollment requests with payment-gated activation
- FIFO waitlists with automatic promotion on drops
- Prerequisite, schedule-conflict and credit-limit validation
- Redis-backed seat availability read model
- Enrollment event publishing for notifications

Example usage:
  course-enrollment serve --port 8080      # Start the enrollment API server
  course-enrollment migrate up             # Apply database migrations
  course-enrollment simulate --students 50 # Generate enrollment traffic`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if verbose {
			logger.Init(true)
			return
		}
		logger.InitWithLevel(config.Get().Log.Level)
	},
}

func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.course-enrollment.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)

		viper.AddConfigPath(home)
		viper.AddConfigPath(".")
		viper.AddConfigPath("./configs")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".course-enrollment")
	}

	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}

	config.Init()
}
