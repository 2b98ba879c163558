package model

import (
	"time"

	"github.com/google/uuid"
)

// Attempt is one timed instance of a user taking an exam. Once IsCompleted
// is set, answers, timing and score are immutable history; every write path
// must reject completed attempts rather than silently succeed.
type Attempt struct {
	ID     uuid.UUID `json:"id"`
	UserID int       `json:"user_id"`
	ExamID uuid.UUID `json:"exam_id"`
	// Answers maps question id to the submitted value. A value may be an
	// option index ("1"), literal option text, or free text, depending on
	// the client path that produced it.
	Answers map[string]string `json:"answers"`
	// TimeTaken is accumulated elapsed seconds, updated monotonically by
	// autosave ticks.
	TimeTaken   int        `json:"time_taken"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	IsCompleted bool       `json:"is_completed"`
	Score       *int       `json:"score,omitempty"`
	TotalMarks  *int       `json:"total_marks,omitempty"`
}

// RemainingSeconds computes the authoritative remaining time for an attempt:
// exam duration minus wall-clock elapsed since start minus previously
// accumulated time, floored at zero. Always derived from persisted fields so
// a reloaded or manipulated client can never extend its budget.
func RemainingSeconds(durationMinutes int, startedAt time.Time, timeTaken int, now time.Time) int {
	total := durationMinutes * 60
	elapsed := int(now.Sub(startedAt).Seconds())
	if elapsed < 0 {
		elapsed = 0
	}
	remaining := total - elapsed - timeTaken
	if remaining < 0 {
		return 0
	}
	return remaining
}

// StartAttemptRequest is the payload for starting an attempt.
type StartAttemptRequest struct {
	// NewAttempt allows starting a fresh attempt record when no active one
	// exists; historical completed attempts are kept.
	NewAttempt bool `json:"new_attempt"`
}

// SaveAttemptRequest is the autosave/manual-save payload.
type SaveAttemptRequest struct {
	Answers   map[string]string `json:"answers" binding:"required"`
	TimeTaken *int              `json:"time_taken" binding:"omitempty,min=0"`
}

// SubmitAttemptRequest is the submission payload.
type SubmitAttemptRequest struct {
	// Forced marks a deadline-triggered submission; it skips the client-side
	// confirmation path and is echoed back so the results view can show an
	// auto-submitted notice.
	Forced bool `json:"forced"`
}

// SubmitResult is returned once an attempt is sealed and graded.
type SubmitResult struct {
	AttemptID     uuid.UUID `json:"attempt_id"`
	Score         int       `json:"score"`
	TotalMarks    int       `json:"total_marks"`
	AutoSubmitted bool      `json:"auto_submitted"`
}

// AttemptState is the reload-safe view of an in-progress attempt.
type AttemptState struct {
	Attempt
	RemainingSeconds int `json:"remaining_seconds"`
}
