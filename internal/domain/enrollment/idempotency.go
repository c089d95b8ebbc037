package domain

import (
	"time"

	"github.com/google/uuid"
)

// IdempotencyKey stores the outcome of a processed enroll request so that
// retries with the same key replay the original response.
type IdempotencyKey struct {
	Key          string    `json:"key"`
	StudentID    uuid.UUID `json:"student_id"`
	RequestHash  string    `json:"request_hash"`
	ResponseData string    `json:"response_data"`
	StatusCode   int       `json:"status_code"`
	ProcessedAt  time.Time `json:"processed_at"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// IsExpired reports whether the stored result is past its retention window.
func (k *IdempotencyKey) IsExpired() bool {
	return time.Now().After(k.ExpiresAt)
}
