package service

import (
	"context"
	"testing"
	"time"

	domain "course-enrollment/internal/domain/enrollment"
	"course-enrollment/internal/infrastructure/repository"

	"github.com/google/uuid"
)

func seedWaitlist(t *testing.T, repo *repository.MemoryEnrollmentRepository, manager *WaitlistManager, courseID uuid.UUID, n int) []*domain.Enrollment {
	t.Helper()
	now := time.Now()
	entries := make([]*domain.Enrollment, 0, n)
	for i := 0; i < n; i++ {
		e := domain.NewEnrollment(uuid.New(), courseID, uuid.New(), domain.StatusWaitlisted, now.Add(time.Duration(i)*time.Second))
		if _, err := manager.Enqueue(context.Background(), e); err != nil {
			t.Fatalf("Enqueue failed: %v", err)
		}
		if err := repo.Create(context.Background(), e); err != nil {
			t.Fatalf("Create failed: %v", err)
		}
		entries = append(entries, e)
	}
	return entries
}

func TestEnqueueAssignsTailPositions(t *testing.T) {
	repo := repository.NewMemoryEnrollmentRepository()
	manager := NewWaitlistManager(repo)
	courseID := uuid.New()

	entries := seedWaitlist(t, repo, manager, courseID, 3)
	for i, e := range entries {
		if e.WaitlistPosition == nil || *e.WaitlistPosition != i+1 {
			t.Fatalf("entry %d: expected position %d, got %v", i, i+1, e.WaitlistPosition)
		}
	}
}

func TestDequeueHeadRenumbersRemainder(t *testing.T) {
	repo := repository.NewMemoryEnrollmentRepository()
	manager := NewWaitlistManager(repo)
	courseID := uuid.New()
	entries := seedWaitlist(t, repo, manager, courseID, 3)

	head, err := manager.DequeueHead(context.Background(), courseID, time.Now())
	if err != nil {
		t.Fatalf("DequeueHead failed: %v", err)
	}
	if head == nil || head.EnrollmentID != entries[0].EnrollmentID {
		t.Fatalf("expected first entry as head")
	}

	remaining, err := manager.List(context.Background(), courseID)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	// The head row is untouched until the caller persists its new status, so
	// it still lists first; the others must have shifted down.
	for _, e := range remaining {
		switch e.EnrollmentID {
		case entries[1].EnrollmentID:
			if *e.WaitlistPosition != 1 {
				t.Fatalf("expected second entry at position 1, got %d", *e.WaitlistPosition)
			}
		case entries[2].EnrollmentID:
			if *e.WaitlistPosition != 2 {
				t.Fatalf("expected third entry at position 2, got %d", *e.WaitlistPosition)
			}
		}
	}
}

func TestDequeueHeadEmpty(t *testing.T) {
	manager := NewWaitlistManager(repository.NewMemoryEnrollmentRepository())
	head, err := manager.DequeueHead(context.Background(), uuid.New(), time.Now())
	if err != nil {
		t.Fatalf("DequeueHead failed: %v", err)
	}
	if head != nil {
		t.Fatalf("expected nil head for empty waitlist, got %v", head.EnrollmentID)
	}
}

func TestRemoveMiddleEntry(t *testing.T) {
	repo := repository.NewMemoryEnrollmentRepository()
	manager := NewWaitlistManager(repo)
	courseID := uuid.New()
	entries := seedWaitlist(t, repo, manager, courseID, 4)

	if err := manager.Remove(context.Background(), entries[1], time.Now()); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}

	want := map[uuid.UUID]int{
		entries[0].EnrollmentID: 1,
		entries[2].EnrollmentID: 2,
		entries[3].EnrollmentID: 3,
	}
	for id, position := range want {
		got, err := repo.GetByID(context.Background(), id)
		if err != nil || got == nil {
			t.Fatalf("failed to reload %s: %v", id, err)
		}
		if got.WaitlistPosition == nil || *got.WaitlistPosition != position {
			t.Fatalf("entry %s: expected position %d, got %v", id, position, got.WaitlistPosition)
		}
	}
}

func TestRemoveUnknownEntry(t *testing.T) {
	repo := repository.NewMemoryEnrollmentRepository()
	manager := NewWaitlistManager(repo)
	courseID := uuid.New()
	seedWaitlist(t, repo, manager, courseID, 1)

	stranger := domain.NewEnrollment(uuid.New(), courseID, uuid.New(), domain.StatusWaitlisted, time.Now())
	if err := manager.Remove(context.Background(), stranger, time.Now()); err == nil {
		t.Fatal("expected error removing entry that is not queued")
	}
}
