package interfaces

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// CacheService is the read-model mirror of seat availability and waitlists.
// The engine's lock-protected counters stay authoritative; everything here is
// best-effort and may lag by one operation.
type CacheService interface {
	GetAvailableSeats(ctx context.Context, courseID uuid.UUID) (int, error)
	SetAvailableSeats(ctx context.Context, courseID uuid.UUID, seats int, ttl time.Duration) error

	GetAvailableCourses(ctx context.Context, semesterID uuid.UUID) ([]byte, error)
	SetAvailableCourses(ctx context.Context, semesterID uuid.UUID, data interface{}, ttl time.Duration) error

	SetWaitlistSnapshot(ctx context.Context, courseID uuid.UUID, entries interface{}, ttl time.Duration) error
	GetWaitlistSnapshot(ctx context.Context, courseID uuid.UUID) ([]byte, error)

	// InvalidateAvailableCourses drops the semester's cached course listing
	// after seat movement so the next availability query recomputes it.
	InvalidateAvailableCourses(ctx context.Context, semesterID uuid.UUID) error
	Health(ctx context.Context) error
	Close() error
}
