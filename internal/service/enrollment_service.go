package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/openexam/openexam-backend/internal/model"
	"github.com/openexam/openexam-backend/internal/repository"
)

// EnrollmentService handles enrollment and the student lobby view.
type EnrollmentService struct {
	enrollRepo  *repository.EnrollmentRepository
	examRepo    *repository.ExamRepository
	attemptRepo *repository.AttemptRepository
}

// NewEnrollmentService creates a new EnrollmentService.
func NewEnrollmentService(
	enrollRepo *repository.EnrollmentRepository,
	examRepo *repository.ExamRepository,
	attemptRepo *repository.AttemptRepository,
) *EnrollmentService {
	return &EnrollmentService{
		enrollRepo:  enrollRepo,
		examRepo:    examRepo,
		attemptRepo: attemptRepo,
	}
}

// Enroll registers a user for a published exam.
func (s *EnrollmentService) Enroll(ctx context.Context, userID int, examID uuid.UUID) (*model.Enrollment, error) {
	exam, err := s.examRepo.GetByID(ctx, examID)
	if err != nil {
		return nil, fmt.Errorf("get exam: %w", err)
	}
	if exam.Status != model.ExamStatusPublished {
		return nil, ErrExamNotPublished
	}
	return s.enrollRepo.Create(ctx, userID, examID)
}

// LobbyExam is a published exam overlaid with the caller's enrollment and
// attempt progress.
type LobbyExam struct {
	model.Exam
	Enrollment *model.Enrollment `json:"enrollment,omitempty"`
	// ActiveAttemptID lets a reconnecting client resume its running attempt.
	ActiveAttemptID *uuid.UUID `json:"active_attempt_id,omitempty"`
	LastScore       *int       `json:"last_score,omitempty"`
	LastTotalMarks  *int       `json:"last_total_marks,omitempty"`
}

// GetLobby returns published exams with the user's status overlay.
func (s *EnrollmentService) GetLobby(ctx context.Context, userID int) ([]LobbyExam, error) {
	published := model.ExamStatusPublished
	exams, err := s.examRepo.List(ctx, &published)
	if err != nil {
		return nil, fmt.Errorf("list exams: %w", err)
	}

	enrollments, err := s.enrollRepo.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list enrollments: %w", err)
	}
	enrollMap := make(map[uuid.UUID]*model.Enrollment, len(enrollments))
	for i := range enrollments {
		enrollMap[enrollments[i].ExamID] = &enrollments[i]
	}

	attempts, err := s.attemptRepo.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}
	// Attempts come newest-first, so the first hit per exam is the latest.
	latest := make(map[uuid.UUID]*model.Attempt, len(attempts))
	for i := range attempts {
		if _, seen := latest[attempts[i].ExamID]; !seen {
			latest[attempts[i].ExamID] = &attempts[i]
		}
	}

	lobby := make([]LobbyExam, 0, len(exams))
	for _, exam := range exams {
		entry := LobbyExam{Exam: exam}
		entry.Enrollment = enrollMap[exam.ID]
		if a := latest[exam.ID]; a != nil {
			if a.IsCompleted {
				entry.LastScore = a.Score
				entry.LastTotalMarks = a.TotalMarks
			} else {
				id := a.ID
				entry.ActiveAttemptID = &id
			}
		}
		lobby = append(lobby, entry)
	}
	return lobby, nil
}
