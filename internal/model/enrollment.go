package model

import (
	"time"

	"github.com/google/uuid"
)

// EnrollmentStatus tracks a user's registration state for an exam.
type EnrollmentStatus string

const (
	EnrollmentStatusEnrolled   EnrollmentStatus = "ENROLLED"
	EnrollmentStatusInProgress EnrollmentStatus = "IN_PROGRESS"
	EnrollmentStatusCompleted  EnrollmentStatus = "COMPLETED"
)

// Enrollment links a user to an exam. It is mutated as a side effect of
// attempt lifecycle transitions.
type Enrollment struct {
	ID          int              `json:"id"`
	UserID      int              `json:"user_id"`
	ExamID      uuid.UUID        `json:"exam_id"`
	Status      EnrollmentStatus `json:"status"`
	CompletedAt *time.Time       `json:"completed_at,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
}
