package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/openexam/openexam-backend/internal/model"
)

// QuestionRepository handles question data access. Questions are read-only
// from the attempt lifecycle's point of view; mutation happens only through
// admin authoring endpoints.
type QuestionRepository struct {
	pool *pgxpool.Pool
}

// NewQuestionRepository creates a new QuestionRepository.
func NewQuestionRepository(pool *pgxpool.Pool) *QuestionRepository {
	return &QuestionRepository{pool: pool}
}

// ListActiveByExam returns the exam's active questions in authored order.
func (r *QuestionRepository) ListActiveByExam(ctx context.Context, examID uuid.UUID) ([]model.Question, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, exam_id, prompt, qtype, options, correct_answer, marks, active, order_num
		 FROM questions
		 WHERE exam_id = $1 AND active
		 ORDER BY order_num ASC, id ASC`, examID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var questions []model.Question
	for rows.Next() {
		q, err := scanQuestion(rows)
		if err != nil {
			return nil, err
		}
		questions = append(questions, *q)
	}
	return questions, rows.Err()
}

// ReplaceForExam atomically swaps an exam's question set in one transaction.
func (r *QuestionRepository) ReplaceForExam(ctx context.Context, examID uuid.UUID, questions []model.Question) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM questions WHERE exam_id = $1`, examID); err != nil {
		return fmt.Errorf("delete questions: %w", err)
	}

	for _, q := range questions {
		options, err := json.Marshal(q.Options)
		if err != nil {
			return fmt.Errorf("marshal options: %w", err)
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO questions (exam_id, prompt, qtype, options, correct_answer, marks, active, order_num)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			examID, q.Prompt, q.Type, options, q.CorrectAnswer, q.Marks, q.Active, q.OrderNum,
		); err != nil {
			return fmt.Errorf("insert question: %w", err)
		}
	}

	return tx.Commit(ctx)
}

func scanQuestion(row pgx.Row) (*model.Question, error) {
	q := &model.Question{}
	var options []byte
	err := row.Scan(&q.ID, &q.ExamID, &q.Prompt, &q.Type, &options, &q.CorrectAnswer, &q.Marks, &q.Active, &q.OrderNum)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("question: %w", ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	if len(options) > 0 {
		if err := json.Unmarshal(options, &q.Options); err != nil {
			return nil, fmt.Errorf("unmarshal options: %w", err)
		}
	}
	return q, nil
}
