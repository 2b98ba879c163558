package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/openexam/openexam-backend/internal/model"
)

// EnrollmentRepository handles enrollment data access.
type EnrollmentRepository struct {
	pool *pgxpool.Pool
}

// NewEnrollmentRepository creates a new EnrollmentRepository.
func NewEnrollmentRepository(pool *pgxpool.Pool) *EnrollmentRepository {
	return &EnrollmentRepository{pool: pool}
}

// Create enrolls a user into an exam. Duplicate enrollment is ErrConflict.
func (r *EnrollmentRepository) Create(ctx context.Context, userID int, examID uuid.UUID) (*model.Enrollment, error) {
	e := &model.Enrollment{UserID: userID, ExamID: examID, Status: model.EnrollmentStatusEnrolled}
	err := r.pool.QueryRow(ctx,
		`INSERT INTO enrollments (user_id, exam_id, status)
		 VALUES ($1, $2, $3)
		 RETURNING id, created_at`,
		userID, examID, e.Status,
	).Scan(&e.ID, &e.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, fmt.Errorf("already enrolled: %w", ErrConflict)
		}
		return nil, fmt.Errorf("insert enrollment: %w", err)
	}
	return e, nil
}

// Get retrieves a user's enrollment for an exam.
func (r *EnrollmentRepository) Get(ctx context.Context, userID int, examID uuid.UUID) (*model.Enrollment, error) {
	e := &model.Enrollment{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, user_id, exam_id, status, completed_at, created_at
		 FROM enrollments
		 WHERE user_id = $1 AND exam_id = $2`, userID, examID,
	).Scan(&e.ID, &e.UserID, &e.ExamID, &e.Status, &e.CompletedAt, &e.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("enrollment: %w", ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return e, nil
}

// SetStatus moves an enrollment to a new status. Completion stamps
// completed_at; other transitions clear it.
func (r *EnrollmentRepository) SetStatus(ctx context.Context, userID int, examID uuid.UUID, status model.EnrollmentStatus) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE enrollments
		 SET status = $3,
		     completed_at = CASE WHEN $3 = 'COMPLETED' THEN NOW() ELSE NULL END
		 WHERE user_id = $1 AND exam_id = $2`,
		userID, examID, status,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("enrollment: %w", ErrNotFound)
	}
	return nil
}

// ListByUser retrieves all enrollments for a user.
func (r *EnrollmentRepository) ListByUser(ctx context.Context, userID int) ([]model.Enrollment, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, user_id, exam_id, status, completed_at, created_at
		 FROM enrollments
		 WHERE user_id = $1
		 ORDER BY created_at DESC`, userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var enrollments []model.Enrollment
	for rows.Next() {
		var e model.Enrollment
		if err := rows.Scan(&e.ID, &e.UserID, &e.ExamID, &e.Status, &e.CompletedAt, &e.CreatedAt); err != nil {
			return nil, err
		}
		enrollments = append(enrollments, e)
	}
	return enrollments, rows.Err()
}
