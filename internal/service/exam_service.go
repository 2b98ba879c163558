package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/openexam/openexam-backend/internal/config"
	"github.com/openexam/openexam-backend/internal/model"
	"github.com/openexam/openexam-backend/internal/repository"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// ErrNoQuestions is returned when publishing an exam without active questions.
var ErrNoQuestions = errors.New("exam has no active questions")

// ExamService handles exam metadata, authoring and the student payload cache.
type ExamService struct {
	examRepo     *repository.ExamRepository
	questionRepo *repository.QuestionRepository
	cfg          *config.Config
	rdb          *redis.Client
	log          zerolog.Logger
}

// NewExamService creates a new ExamService.
func NewExamService(
	examRepo *repository.ExamRepository,
	questionRepo *repository.QuestionRepository,
	cfg *config.Config,
	rdb *redis.Client,
	log zerolog.Logger,
) *ExamService {
	return &ExamService{
		examRepo:     examRepo,
		questionRepo: questionRepo,
		cfg:          cfg,
		rdb:          rdb,
		log:          log.With().Str("component", "exam_service").Logger(),
	}
}

// GetExam retrieves exam metadata.
func (s *ExamService) GetExam(ctx context.Context, id uuid.UUID) (*model.Exam, error) {
	return s.examRepo.GetByID(ctx, id)
}

// ListExams lists exams, optionally filtered by status.
func (s *ExamService) ListExams(ctx context.Context, status *model.ExamStatus) ([]model.Exam, error) {
	return s.examRepo.List(ctx, status)
}

// CreateExam creates a draft exam.
func (s *ExamService) CreateExam(ctx context.Context, authorID int, req *model.CreateExamRequest) (*model.Exam, error) {
	exam := &model.Exam{
		Title:           req.Title,
		Description:     req.Description,
		AuthorID:        authorID,
		DurationMinutes: req.DurationMinutes,
	}
	if err := s.examRepo.Create(ctx, exam); err != nil {
		return nil, fmt.Errorf("create exam: %w", err)
	}
	return exam, nil
}

// UpdateExam applies an update and invalidates the cached payload.
func (s *ExamService) UpdateExam(ctx context.Context, id uuid.UUID, req *model.UpdateExamRequest) (*model.Exam, error) {
	exam, err := s.examRepo.Update(ctx, id, req)
	if err != nil {
		return nil, err
	}
	s.invalidateCache(ctx, id)
	return exam, nil
}

// DeleteExam removes an exam and its questions.
func (s *ExamService) DeleteExam(ctx context.Context, id uuid.UUID) error {
	if err := s.examRepo.Delete(ctx, id); err != nil {
		return err
	}
	s.invalidateCache(ctx, id)
	return nil
}

// PublishExam makes a draft exam available and warms its payload cache.
// An exam with no active questions cannot be published.
func (s *ExamService) PublishExam(ctx context.Context, id uuid.UUID) error {
	exam, err := s.examRepo.GetByID(ctx, id)
	if err != nil {
		return err
	}

	questions, err := s.questionRepo.ListActiveByExam(ctx, id)
	if err != nil {
		return fmt.Errorf("list questions: %w", err)
	}
	if len(questions) == 0 {
		return ErrNoQuestions
	}

	if err := s.examRepo.SetStatus(ctx, id, model.ExamStatusPublished); err != nil {
		return err
	}
	exam.Status = model.ExamStatusPublished

	if err := s.cachePayload(ctx, exam, questions); err != nil {
		s.log.Warn().Err(err).Str("exam_id", id.String()).Msg("Payload cache warm failed")
	}
	return nil
}

// ListQuestions returns the full question set including correct answers.
// Admin authoring/review surface only.
func (s *ExamService) ListQuestions(ctx context.Context, examID uuid.UUID) ([]model.Question, error) {
	return s.questionRepo.ListActiveByExam(ctx, examID)
}

// ReplaceQuestions swaps an exam's question set and invalidates the cache.
func (s *ExamService) ReplaceQuestions(ctx context.Context, examID uuid.UUID, req *model.ReplaceQuestionsRequest) error {
	if _, err := s.examRepo.GetByID(ctx, examID); err != nil {
		return err
	}

	questions := make([]model.Question, 0, len(req.Questions))
	for _, q := range req.Questions {
		marks := q.Marks
		if marks <= 0 {
			marks = 1
		}
		questions = append(questions, model.Question{
			ExamID:        examID,
			Prompt:        q.Prompt,
			Type:          model.QuestionType(q.Type),
			Options:       q.Options,
			CorrectAnswer: q.CorrectAnswer,
			Marks:         marks,
			Active:        true,
			OrderNum:      q.OrderNum,
		})
	}

	if err := s.questionRepo.ReplaceForExam(ctx, examID, questions); err != nil {
		return fmt.Errorf("replace questions: %w", err)
	}
	s.invalidateCache(ctx, examID)
	return nil
}

// GetExamPayload returns the student-facing exam payload, preferring the
// Redis cache and rebuilding from PostgreSQL on a miss (self-heal).
func (s *ExamService) GetExamPayload(ctx context.Context, examID uuid.UUID) (*model.ExamPayload, error) {
	raw, err := s.rdb.Get(ctx, config.CacheKey.ExamPayloadKey(examID.String())).Result()
	if err == nil {
		payload := &model.ExamPayload{}
		if jsonErr := json.Unmarshal([]byte(raw), payload); jsonErr == nil {
			return payload, nil
		}
		// Corrupt cache entry: fall through and rebuild.
	} else if !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("get payload cache: %w", err)
	}

	exam, err := s.examRepo.GetByID(ctx, examID)
	if err != nil {
		return nil, err
	}
	if exam.Status != model.ExamStatusPublished {
		return nil, ErrExamNotPublished
	}

	questions, err := s.questionRepo.ListActiveByExam(ctx, examID)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}

	if err := s.cachePayload(ctx, exam, questions); err != nil {
		s.log.Warn().Err(err).Str("exam_id", examID.String()).Msg("Payload cache set failed")
	}

	return s.buildPayload(exam, questions), nil
}

// PrewarmAllCaches loads every published exam's payload into Redis. Called
// before the server accepts traffic so lazy loads cannot stampede.
func (s *ExamService) PrewarmAllCaches(ctx context.Context) error {
	published := model.ExamStatusPublished
	exams, err := s.examRepo.List(ctx, &published)
	if err != nil {
		return fmt.Errorf("list published exams: %w", err)
	}

	for i := range exams {
		questions, err := s.questionRepo.ListActiveByExam(ctx, exams[i].ID)
		if err != nil {
			s.log.Warn().Err(err).Str("exam_id", exams[i].ID.String()).Msg("Prewarm skipped")
			continue
		}
		if err := s.cachePayload(ctx, &exams[i], questions); err != nil {
			s.log.Warn().Err(err).Str("exam_id", exams[i].ID.String()).Msg("Prewarm cache set failed")
		}
	}

	s.log.Info().Int("count", len(exams)).Msg("Exam caches prewarmed")
	return nil
}

func (s *ExamService) buildPayload(exam *model.Exam, questions []model.Question) *model.ExamPayload {
	sanitized := make([]model.QuestionForStudent, 0, len(questions))
	for i := range questions {
		sanitized = append(sanitized, questions[i].ForStudent())
	}
	return &model.ExamPayload{
		ExamID:           exam.ID,
		Title:            exam.Title,
		Duration:         exam.DurationMinutes,
		AutosaveInterval: int(s.cfg.AutosaveInterval.Seconds()),
		Questions:        sanitized,
	}
}

func (s *ExamService) cachePayload(ctx context.Context, exam *model.Exam, questions []model.Question) error {
	payload := s.buildPayload(exam, questions)
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	return s.rdb.Set(ctx, config.CacheKey.ExamPayloadKey(exam.ID.String()), raw, 0).Err()
}

func (s *ExamService) invalidateCache(ctx context.Context, examID uuid.UUID) {
	if err := s.rdb.Del(ctx, config.CacheKey.ExamPayloadKey(examID.String())).Err(); err != nil {
		s.log.Warn().Err(err).Str("exam_id", examID.String()).Msg("Cache invalidation failed")
	}
}
