package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

// SimulationConfig holds configuration for enrollment traffic simulation
type SimulationConfig struct {
	BaseURL         string
	SemesterID      string
	NumStudents     int
	ConcurrentUsers int
	DropRatePercent int
}

// SimulationResult holds the aggregated outcome of a simulation run
type SimulationResult struct {
	TotalRequests     int
	SeatsHeld         int
	Rejected          int
	Dropped           int
	Failed            int
	AvgResponseTimeMs float64
	MaxResponseTimeMs int64
	ThroughputRPS     float64
	ErrorsByStatus    map[int]int
}

// Simulator drives concurrent enrollment and drop traffic against a running
// server to exercise the admission pipeline under contention.
type Simulator struct {
	config    SimulationConfig
	client    *http.Client
	students  []uuid.UUID
	courses   []uuid.UUID
	results   SimulationResult
	mutex     sync.Mutex
	startTime time.Time
}

func NewSimulator(config SimulationConfig) *Simulator {
	return &Simulator{
		config: config,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
		students: make([]uuid.UUID, config.NumStudents),
		results: SimulationResult{
			ErrorsByStatus: make(map[int]int),
		},
	}
}

var simConfig SimulationConfig

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Generate concurrent enrollment traffic",
	Long: `Generate concurrent enrollment and drop traffic against a running server.
Useful for verifying capacity accounting and waitlist ordering under load.
Course IDs are discovered from the available-courses endpoint, so seed data
must exist before running a simulation.`,
	Run: func(cmd *cobra.Command, args []string) {
		runSimulation()
	},
}

func init() {
	rootCmd.AddCommand(simulateCmd)
	simulateCmd.Flags().StringVar(&simConfig.BaseURL, "url", "http://localhost:8080", "Base URL of the enrollment server")
	simulateCmd.Flags().StringVar(&simConfig.SemesterID, "semester", "", "Semester ID used to discover available courses")
	simulateCmd.Flags().IntVar(&simConfig.NumStudents, "students", 100, "Number of simulated students")
	simulateCmd.Flags().IntVar(&simConfig.ConcurrentUsers, "concurrent", 20, "Number of concurrent workers")
	simulateCmd.Flags().IntVar(&simConfig.DropRatePercent, "drop-rate", 10, "Percentage of successful enrollments to drop afterwards")
}

func runSimulation() {
	sim := NewSimulator(simConfig)
	if err := sim.Run(); err != nil {
		fmt.Printf("Simulation failed: %v\n", err)
		return
	}
	sim.PrintResults()
}

type enrollPayload struct {
	StudentID uuid.UUID `json:"student_id"`
	CourseID  uuid.UUID `json:"course_id"`
}

type availableCoursesResponse struct {
	Data []struct {
		CourseID   uuid.UUID `json:"course_id"`
		SemesterID uuid.UUID `json:"semester_id"`
	} `json:"data"`
}

func (s *Simulator) Run() error {
	if s.config.SemesterID == "" {
		return fmt.Errorf("--semester is required")
	}
	for i := range s.students {
		s.students[i] = uuid.New()
	}
	if err := s.discoverCourses(); err != nil {
		return err
	}
	if len(s.courses) == 0 {
		return fmt.Errorf("no available courses found at %s", s.config.BaseURL)
	}

	fmt.Printf("Simulating %d students across %d courses with %d workers\n",
		len(s.students), len(s.courses), s.config.ConcurrentUsers)

	s.startTime = time.Now()
	sem := make(chan struct{}, s.config.ConcurrentUsers)
	var wg sync.WaitGroup
	for i, student := range s.students {
		wg.Add(1)
		sem <- struct{}{}
		go func(idx int, studentID uuid.UUID) {
			defer wg.Done()
			defer func() { <-sem }()
			s.enrollAndMaybeDrop(studentID, s.courses[idx%len(s.courses)], idx)
		}(i, student)
	}
	wg.Wait()

	elapsed := time.Since(s.startTime).Seconds()
	if elapsed > 0 {
		s.results.ThroughputRPS = float64(s.results.TotalRequests) / elapsed
	}
	return nil
}

func (s *Simulator) discoverCourses() error {
	resp, err := s.client.Get(s.config.BaseURL + "/api/v1/courses/available?semester_id=" + s.config.SemesterID)
	if err != nil {
		return fmt.Errorf("failed to query available courses: %w", err)
	}
	defer resp.Body.Close()

	var parsed availableCoursesResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return fmt.Errorf("failed to decode available courses: %w", err)
	}
	for _, course := range parsed.Data {
		s.courses = append(s.courses, course.CourseID)
	}
	return nil
}

func (s *Simulator) enrollAndMaybeDrop(studentID, courseID uuid.UUID, idx int) {
	status := s.post("/api/v1/enrollments", enrollPayload{StudentID: studentID, CourseID: courseID})

	s.mutex.Lock()
	switch {
	case status == http.StatusCreated:
		s.results.SeatsHeld++
	case status == http.StatusUnprocessableEntity:
		s.results.Rejected++
	case status >= 500 || status == 0:
		s.results.Failed++
		s.results.ErrorsByStatus[status]++
	default:
		s.results.ErrorsByStatus[status]++
	}
	s.mutex.Unlock()

	if status == http.StatusCreated && s.config.DropRatePercent > 0 && idx%(100/s.config.DropRatePercent) == 0 {
		dropStatus := s.post("/api/v1/enrollments/drop", enrollPayload{StudentID: studentID, CourseID: courseID})
		s.mutex.Lock()
		if dropStatus == http.StatusOK {
			s.results.Dropped++
		}
		s.mutex.Unlock()
	}
}

func (s *Simulator) post(path string, payload interface{}) int {
	body, err := json.Marshal(payload)
	if err != nil {
		return 0
	}

	start := time.Now()
	resp, err := s.client.Post(s.config.BaseURL+path, "application/json", bytes.NewReader(body))
	elapsed := time.Since(start).Milliseconds()

	s.mutex.Lock()
	s.results.TotalRequests++
	n := float64(s.results.TotalRequests)
	s.results.AvgResponseTimeMs = (s.results.AvgResponseTimeMs*(n-1) + float64(elapsed)) / n
	if elapsed > s.results.MaxResponseTimeMs {
		s.results.MaxResponseTimeMs = elapsed
	}
	s.mutex.Unlock()

	if err != nil {
		return 0
	}
	defer resp.Body.Close()
	return resp.StatusCode
}

func (s *Simulator) PrintResults() {
	fmt.Println("\n=== Simulation Results ===")
	fmt.Printf("Total requests:    %d\n", s.results.TotalRequests)
	fmt.Printf("Seats held:        %d\n", s.results.SeatsHeld)
	fmt.Printf("Rejected:          %d\n", s.results.Rejected)
	fmt.Printf("Dropped:           %d\n", s.results.Dropped)
	fmt.Printf("Failed:            %d\n", s.results.Failed)
	fmt.Printf("Avg response time: %.1fms\n", s.results.AvgResponseTimeMs)
	fmt.Printf("Max response time: %dms\n", s.results.MaxResponseTimeMs)
	fmt.Printf("Throughput:        %.1f req/s\n", s.results.ThroughputRPS)
	if len(s.results.ErrorsByStatus) > 0 {
		fmt.Println("Other statuses:")
		for status, count := range s.results.ErrorsByStatus {
			fmt.Printf("  %d: %d\n", status, count)
		}
	}
}
