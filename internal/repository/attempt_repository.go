package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/openexam/openexam-backend/internal/model"
)

const attemptColumns = `id, user_id, exam_id, answers, time_taken, started_at, completed_at, is_completed, score, total_marks`

// AttemptRepository owns the persisted attempt state. All writes are gated on
// the is_completed flag inside the same statement, so a racing autosave can
// never overwrite a concurrent completion.
type AttemptRepository struct {
	pool *pgxpool.Pool
}

// NewAttemptRepository creates a new AttemptRepository.
func NewAttemptRepository(pool *pgxpool.Pool) *AttemptRepository {
	return &AttemptRepository{pool: pool}
}

// Create inserts a new in-progress attempt. A partial unique index on
// (user_id, exam_id) WHERE NOT is_completed makes a second active attempt a
// unique violation, surfaced as ErrConflict. Completed historical attempts do
// not block a new one.
func (r *AttemptRepository) Create(ctx context.Context, userID int, examID uuid.UUID) (*model.Attempt, error) {
	a := &model.Attempt{UserID: userID, ExamID: examID, Answers: map[string]string{}}
	err := r.pool.QueryRow(ctx,
		`INSERT INTO attempts (user_id, exam_id)
		 VALUES ($1, $2)
		 RETURNING id, started_at`,
		userID, examID,
	).Scan(&a.ID, &a.StartedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, fmt.Errorf("active attempt exists: %w", ErrConflict)
		}
		return nil, fmt.Errorf("insert attempt: %w", err)
	}
	return a, nil
}

// Get retrieves an attempt with an ownership check. An attempt belongs
// exclusively to the user who started it.
func (r *AttemptRepository) Get(ctx context.Context, attemptID uuid.UUID, callerID int) (*model.Attempt, error) {
	a, err := r.getByID(ctx, attemptID)
	if err != nil {
		return nil, err
	}
	if a.UserID != callerID {
		return nil, fmt.Errorf("attempt %s not owned by user %d: %w", attemptID, callerID, ErrForbidden)
	}
	return a, nil
}

// GetActive returns the user's in-progress attempt for an exam, or ErrNotFound.
func (r *AttemptRepository) GetActive(ctx context.Context, userID int, examID uuid.UUID) (*model.Attempt, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+attemptColumns+`
		 FROM attempts
		 WHERE user_id = $1 AND exam_id = $2 AND NOT is_completed`,
		userID, examID,
	)
	return scanAttempt(row)
}

// MergeAnswers performs a key-wise merge of partialAnswers into the stored
// answers map: new keys overwrite, absent keys are preserved. elapsedSeconds,
// when non-nil, only ever increases the stored time_taken, so stale
// out-of-order autosave ticks cannot wind the clock back. The completed gate
// is part of the same atomic UPDATE.
func (r *AttemptRepository) MergeAnswers(ctx context.Context, attemptID uuid.UUID, callerID int, partialAnswers map[string]string, elapsedSeconds *int) (*model.Attempt, error) {
	patch, err := json.Marshal(partialAnswers)
	if err != nil {
		return nil, fmt.Errorf("marshal answers patch: %w", err)
	}

	row := r.pool.QueryRow(ctx,
		`UPDATE attempts
		 SET answers = answers || $3::jsonb,
		     time_taken = GREATEST(time_taken, COALESCE($4, time_taken))
		 WHERE id = $1 AND user_id = $2 AND NOT is_completed
		 RETURNING `+attemptColumns,
		attemptID, callerID, patch, elapsedSeconds,
	)

	a, err := scanAttempt(row)
	if errors.Is(err, ErrNotFound) {
		return nil, r.classifyWriteMiss(ctx, attemptID, callerID)
	}
	if err != nil {
		return nil, err
	}
	return a, nil
}

// Complete seals an attempt exactly once: flag flip, score, total and
// completed_at are persisted in a single statement gated on NOT is_completed.
// A second call, even a concurrent one, matches zero rows and returns
// ErrConflict so the caller can detect a double-submit race.
func (r *AttemptRepository) Complete(ctx context.Context, attemptID uuid.UUID, callerID int, score, totalMarks int) (*model.Attempt, error) {
	row := r.pool.QueryRow(ctx,
		`UPDATE attempts
		 SET is_completed = TRUE,
		     score = $3,
		     total_marks = $4,
		     completed_at = NOW()
		 WHERE id = $1 AND user_id = $2 AND NOT is_completed
		 RETURNING `+attemptColumns,
		attemptID, callerID, score, totalMarks,
	)

	a, err := scanAttempt(row)
	if errors.Is(err, ErrNotFound) {
		return nil, r.classifyWriteMiss(ctx, attemptID, callerID)
	}
	if err != nil {
		return nil, err
	}
	return a, nil
}

// HasCompleted reports whether the user has any completed attempt for an exam.
func (r *AttemptRepository) HasCompleted(ctx context.Context, userID int, examID uuid.UUID) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (
		   SELECT 1 FROM attempts
		   WHERE user_id = $1 AND exam_id = $2 AND is_completed
		 )`, userID, examID,
	).Scan(&exists)
	return exists, err
}

// ListByUser retrieves all attempts for a user, newest first.
func (r *AttemptRepository) ListByUser(ctx context.Context, userID int) ([]model.Attempt, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+attemptColumns+`
		 FROM attempts
		 WHERE user_id = $1
		 ORDER BY started_at DESC`, userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var attempts []model.Attempt
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, err
		}
		attempts = append(attempts, *a)
	}
	return attempts, rows.Err()
}

// AttemptResult combines user data with attempt outcome for admin listings.
type AttemptResult struct {
	AttemptID   uuid.UUID  `json:"attempt_id"`
	UserID      int        `json:"user_id"`
	Name        string     `json:"name"`
	Email       string     `json:"email"`
	Score       *int       `json:"score"`
	TotalMarks  *int       `json:"total_marks"`
	IsCompleted bool       `json:"is_completed"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at"`
}

// ListByExam retrieves paginated attempt results for an exam.
func (r *AttemptRepository) ListByExam(ctx context.Context, examID uuid.UUID, page, perPage int) ([]AttemptResult, int64, error) {
	offset := (page - 1) * perPage

	var total int64
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM attempts WHERE exam_id = $1`, examID,
	).Scan(&total)
	if err != nil {
		return nil, 0, err
	}

	rows, err := r.pool.Query(ctx,
		`SELECT a.id, a.user_id, u.name, u.email,
		        a.score, a.total_marks, a.is_completed, a.started_at, a.completed_at
		 FROM attempts a
		 JOIN users u ON a.user_id = u.id
		 WHERE a.exam_id = $1
		 ORDER BY a.started_at DESC
		 LIMIT $2 OFFSET $3`,
		examID, perPage, offset,
	)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var results []AttemptResult
	for rows.Next() {
		var res AttemptResult
		if err := rows.Scan(
			&res.AttemptID, &res.UserID, &res.Name, &res.Email,
			&res.Score, &res.TotalMarks, &res.IsCompleted, &res.StartedAt, &res.CompletedAt,
		); err != nil {
			return nil, 0, err
		}
		results = append(results, res)
	}
	return results, total, rows.Err()
}

// classifyWriteMiss explains why a gated UPDATE matched zero rows:
// missing row, foreign owner, or an already-completed attempt.
func (r *AttemptRepository) classifyWriteMiss(ctx context.Context, attemptID uuid.UUID, callerID int) error {
	a, err := r.getByID(ctx, attemptID)
	if err != nil {
		return err
	}
	if a.UserID != callerID {
		return fmt.Errorf("attempt %s not owned by user %d: %w", attemptID, callerID, ErrForbidden)
	}
	return fmt.Errorf("attempt %s already completed: %w", attemptID, ErrConflict)
}

func (r *AttemptRepository) getByID(ctx context.Context, attemptID uuid.UUID) (*model.Attempt, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+attemptColumns+` FROM attempts WHERE id = $1`, attemptID,
	)
	return scanAttempt(row)
}

func scanAttempt(row pgx.Row) (*model.Attempt, error) {
	a := &model.Attempt{}
	var answers []byte
	err := row.Scan(
		&a.ID, &a.UserID, &a.ExamID, &answers, &a.TimeTaken,
		&a.StartedAt, &a.CompletedAt, &a.IsCompleted, &a.Score, &a.TotalMarks,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("attempt: %w", ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	a.Answers = map[string]string{}
	if len(answers) > 0 {
		if err := json.Unmarshal(answers, &a.Answers); err != nil {
			return nil, fmt.Errorf("unmarshal answers: %w", err)
		}
	}
	return a, nil
}
