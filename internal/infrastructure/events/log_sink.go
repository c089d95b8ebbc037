package events

import (
	"context"

	domain "course-enrollment/internal/domain/enrollment"
	interfaces "course-enrollment/internal/interfaces/infrastructure"
	"course-enrollment/pkg/logger"

	"github.com/sirupsen/logrus"
)

var _ interfaces.EventSink = (*LogSink)(nil)

// LogSink writes every event to the structured log. Always registered, so
// state changes are observable even without Redis.
type LogSink struct{}

func NewLogSink() *LogSink {
	return &LogSink{}
}

func (s *LogSink) Deliver(_ context.Context, event domain.Event) error {
	logger.WithFields(logrus.Fields{
		"type":       event.Type,
		"student_id": event.StudentID,
		"course_id":  event.CourseID,
		"position":   event.Position,
	}).Info("enrollment event")
	return nil
}

func (s *LogSink) Name() string {
	return "log"
}
