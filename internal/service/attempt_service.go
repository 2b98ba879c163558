package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/openexam/openexam-backend/internal/model"
	"github.com/openexam/openexam-backend/internal/repository"
	"github.com/openexam/openexam-backend/internal/scoring"
	"github.com/rs/zerolog"
)

// Attempt lifecycle errors.
var (
	ErrExamNotPublished    = errors.New("exam is not published")
	ErrNotEnrolled         = errors.New("user is not enrolled in this exam")
	ErrAttemptNotCompleted = errors.New("attempt is not completed yet")
	// ErrAlreadyAttempted wraps the store conflict so callers can still
	// match on repository.ErrConflict.
	ErrAlreadyAttempted = fmt.Errorf("exam already attempted: %w", repository.ErrConflict)
)

// AttemptStore is the persistence contract for attempts. Implemented by
// repository.AttemptRepository; tests substitute an in-memory fake.
type AttemptStore interface {
	Create(ctx context.Context, userID int, examID uuid.UUID) (*model.Attempt, error)
	Get(ctx context.Context, attemptID uuid.UUID, callerID int) (*model.Attempt, error)
	GetActive(ctx context.Context, userID int, examID uuid.UUID) (*model.Attempt, error)
	HasCompleted(ctx context.Context, userID int, examID uuid.UUID) (bool, error)
	MergeAnswers(ctx context.Context, attemptID uuid.UUID, callerID int, partialAnswers map[string]string, elapsedSeconds *int) (*model.Attempt, error)
	Complete(ctx context.Context, attemptID uuid.UUID, callerID int, score, totalMarks int) (*model.Attempt, error)
}

// QuestionStore provides read-only question lookup.
type QuestionStore interface {
	ListActiveByExam(ctx context.Context, examID uuid.UUID) ([]model.Question, error)
}

// ExamStore provides read-only exam metadata lookup.
type ExamStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.Exam, error)
}

// EnrollmentStore is the enrollment collaborator notified on completion.
type EnrollmentStore interface {
	Get(ctx context.Context, userID int, examID uuid.UUID) (*model.Enrollment, error)
	SetStatus(ctx context.Context, userID int, examID uuid.UUID, status model.EnrollmentStatus) error
}

// AttemptService sequences the attempt lifecycle:
// start → repeated saves under a wall-clock deadline → exactly one submit.
type AttemptService struct {
	attempts    AttemptStore
	questions   QuestionStore
	exams       ExamStore
	enrollments EnrollmentStore
	log         zerolog.Logger
	now         func() time.Time
}

// NewAttemptService creates a new AttemptService.
func NewAttemptService(
	attempts AttemptStore,
	questions QuestionStore,
	exams ExamStore,
	enrollments EnrollmentStore,
	log zerolog.Logger,
) *AttemptService {
	return &AttemptService{
		attempts:    attempts,
		questions:   questions,
		exams:       exams,
		enrollments: enrollments,
		log:         log.With().Str("component", "attempt_service").Logger(),
		now:         time.Now,
	}
}

// Start creates an in-progress attempt for an enrolled user on a published
// exam. Only one attempt may be active per user+exam; a retake of an already
// completed exam requires the explicit newAttempt flag so an accidental
// double-click cannot silently open a second graded run.
func (s *AttemptService) Start(ctx context.Context, userID int, examID uuid.UUID, newAttempt bool) (*model.Attempt, error) {
	exam, err := s.exams.GetByID(ctx, examID)
	if err != nil {
		return nil, fmt.Errorf("get exam: %w", err)
	}
	if exam.Status != model.ExamStatusPublished {
		return nil, ErrExamNotPublished
	}

	if _, err := s.enrollments.Get(ctx, userID, examID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotEnrolled
		}
		return nil, fmt.Errorf("check enrollment: %w", err)
	}

	if !newAttempt {
		done, err := s.attempts.HasCompleted(ctx, userID, examID)
		if err != nil {
			return nil, fmt.Errorf("check history: %w", err)
		}
		if done {
			return nil, ErrAlreadyAttempted
		}
	}

	// The active-attempt exclusivity itself is enforced by the store's
	// partial unique index, so a concurrent double-start loses cleanly.
	attempt, err := s.attempts.Create(ctx, userID, examID)
	if err != nil {
		return nil, err
	}

	if err := s.enrollments.SetStatus(ctx, userID, examID, model.EnrollmentStatusInProgress); err != nil {
		// Attempt creation is authoritative; enrollment lag is reconciled later.
		s.log.Error().Err(err).
			Int("user_id", userID).
			Str("exam_id", examID.String()).
			Msg("Failed to mark enrollment in progress")
	}

	return attempt, nil
}

// ActiveAttempt returns the caller's in-progress attempt for an exam.
func (s *AttemptService) ActiveAttempt(ctx context.Context, userID int, examID uuid.UUID) (*model.Attempt, error) {
	return s.attempts.GetActive(ctx, userID, examID)
}

// Save merges partial answers into the attempt. The merge is key-wise and the
// elapsed time monotonic, so racing autosave ticks converge to the union and
// a stale tick can never erase answers or rewind the clock.
func (s *AttemptService) Save(ctx context.Context, attemptID uuid.UUID, callerID int, answers map[string]string, elapsedSeconds *int) (*model.Attempt, error) {
	return s.attempts.MergeAnswers(ctx, attemptID, callerID, answers, elapsedSeconds)
}

// GetState returns the reload-safe attempt view. Remaining time is always
// recomputed from the persisted start timestamp and accumulated elapsed time,
// never trusted from the client.
func (s *AttemptService) GetState(ctx context.Context, attemptID uuid.UUID, callerID int) (*model.AttemptState, error) {
	attempt, err := s.attempts.Get(ctx, attemptID, callerID)
	if err != nil {
		return nil, err
	}

	state := &model.AttemptState{Attempt: *attempt}
	if !attempt.IsCompleted {
		exam, err := s.exams.GetByID(ctx, attempt.ExamID)
		if err != nil {
			return nil, fmt.Errorf("get exam: %w", err)
		}
		state.RemainingSeconds = model.RemainingSeconds(exam.DurationMinutes, attempt.StartedAt, attempt.TimeTaken, s.now())
	}
	return state, nil
}

// Submit seals an attempt exactly once and grades it. Steps: reject if
// completed, fetch questions, score, persist score+flag atomically, notify
// the enrollment collaborator. A submission past the server-computed deadline
// is coerced to forced mode regardless of what the client claims. Any failure
// before the completion flip leaves the attempt in progress, so a retried
// submit is always safe.
func (s *AttemptService) Submit(ctx context.Context, attemptID uuid.UUID, callerID int, forced bool) (*model.SubmitResult, error) {
	attempt, err := s.attempts.Get(ctx, attemptID, callerID)
	if err != nil {
		return nil, err
	}
	if attempt.IsCompleted {
		return nil, fmt.Errorf("attempt %s already completed: %w", attemptID, repository.ErrConflict)
	}

	exam, err := s.exams.GetByID(ctx, attempt.ExamID)
	if err != nil {
		return nil, fmt.Errorf("get exam: %w", err)
	}
	if model.RemainingSeconds(exam.DurationMinutes, attempt.StartedAt, attempt.TimeTaken, s.now()) == 0 {
		forced = true
	}

	questions, err := s.questions.ListActiveByExam(ctx, attempt.ExamID)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}

	result := scoring.Score(attempt.Answers, questions)

	// The completed-flag gate inside Complete resolves a double-submit race:
	// exactly one caller wins, the other sees Conflict.
	if _, err := s.attempts.Complete(ctx, attemptID, callerID, result.Score, result.TotalMarks); err != nil {
		return nil, err
	}

	if err := s.enrollments.SetStatus(ctx, attempt.UserID, attempt.ExamID, model.EnrollmentStatusCompleted); err != nil {
		// The grading above is authoritative. Enrollment sync failure is
		// surfaced for reconciliation, never rolled back.
		s.log.Error().Err(err).
			Int("user_id", attempt.UserID).
			Str("exam_id", attempt.ExamID.String()).
			Str("attempt_id", attemptID.String()).
			Msg("Failed to mark enrollment completed")
	}

	s.log.Info().
		Str("attempt_id", attemptID.String()).
		Int("score", result.Score).
		Int("total_marks", result.TotalMarks).
		Bool("forced", forced).
		Msg("Attempt submitted")

	return &model.SubmitResult{
		AttemptID:     attemptID,
		Score:         result.Score,
		TotalMarks:    result.TotalMarks,
		AutoSubmitted: forced,
	}, nil
}

// Review returns per-question outcomes for a completed attempt, recomputed
// by the same scoring tiers used at submission time.
func (s *AttemptService) Review(ctx context.Context, attemptID uuid.UUID, callerID int) (*model.Attempt, []scoring.QuestionOutcome, error) {
	attempt, err := s.attempts.Get(ctx, attemptID, callerID)
	if err != nil {
		return nil, nil, err
	}
	if !attempt.IsCompleted {
		return nil, nil, ErrAttemptNotCompleted
	}

	questions, err := s.questions.ListActiveByExam(ctx, attempt.ExamID)
	if err != nil {
		return nil, nil, fmt.Errorf("list questions: %w", err)
	}

	return attempt, scoring.Review(attempt.Answers, questions), nil
}
