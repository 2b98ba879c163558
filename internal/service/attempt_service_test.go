package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/openexam/openexam-backend/internal/model"
	"github.com/openexam/openexam-backend/internal/repository"
	"github.com/rs/zerolog"
)

// ─── In-memory fakes ───────────────────────────────────────────────────

// fakeAttemptStore mirrors the repository's write semantics: key-wise answer
// merge, monotonic time_taken, completed-flag gates and the single-active
// constraint.
type fakeAttemptStore struct {
	attempts map[uuid.UUID]*model.Attempt
	now      func() time.Time
}

func newFakeAttemptStore(now func() time.Time) *fakeAttemptStore {
	return &fakeAttemptStore{
		attempts: make(map[uuid.UUID]*model.Attempt),
		now:      now,
	}
}

func (f *fakeAttemptStore) Create(_ context.Context, userID int, examID uuid.UUID) (*model.Attempt, error) {
	for _, a := range f.attempts {
		if a.UserID == userID && a.ExamID == examID && !a.IsCompleted {
			return nil, repository.ErrConflict
		}
	}
	a := &model.Attempt{
		ID:        uuid.New(),
		UserID:    userID,
		ExamID:    examID,
		Answers:   map[string]string{},
		StartedAt: f.now(),
	}
	f.attempts[a.ID] = a
	return a, nil
}

func (f *fakeAttemptStore) Get(_ context.Context, attemptID uuid.UUID, callerID int) (*model.Attempt, error) {
	a, ok := f.attempts[attemptID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if a.UserID != callerID {
		return nil, repository.ErrForbidden
	}
	cp := *a
	return &cp, nil
}

func (f *fakeAttemptStore) GetActive(_ context.Context, userID int, examID uuid.UUID) (*model.Attempt, error) {
	for _, a := range f.attempts {
		if a.UserID == userID && a.ExamID == examID && !a.IsCompleted {
			cp := *a
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (f *fakeAttemptStore) HasCompleted(_ context.Context, userID int, examID uuid.UUID) (bool, error) {
	for _, a := range f.attempts {
		if a.UserID == userID && a.ExamID == examID && a.IsCompleted {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeAttemptStore) MergeAnswers(_ context.Context, attemptID uuid.UUID, callerID int, partial map[string]string, elapsed *int) (*model.Attempt, error) {
	a, ok := f.attempts[attemptID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if a.UserID != callerID {
		return nil, repository.ErrForbidden
	}
	if a.IsCompleted {
		return nil, repository.ErrConflict
	}
	for k, v := range partial {
		a.Answers[k] = v
	}
	if elapsed != nil && *elapsed > a.TimeTaken {
		a.TimeTaken = *elapsed
	}
	cp := *a
	return &cp, nil
}

func (f *fakeAttemptStore) Complete(_ context.Context, attemptID uuid.UUID, callerID int, score, totalMarks int) (*model.Attempt, error) {
	a, ok := f.attempts[attemptID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if a.UserID != callerID {
		return nil, repository.ErrForbidden
	}
	if a.IsCompleted {
		return nil, repository.ErrConflict
	}
	now := f.now()
	a.IsCompleted = true
	a.Score = &score
	a.TotalMarks = &totalMarks
	a.CompletedAt = &now
	cp := *a
	return &cp, nil
}

type fakeQuestionStore struct {
	questions []model.Question
}

func (f *fakeQuestionStore) ListActiveByExam(context.Context, uuid.UUID) ([]model.Question, error) {
	return f.questions, nil
}

type fakeExamStore struct {
	exam *model.Exam
}

func (f *fakeExamStore) GetByID(_ context.Context, id uuid.UUID) (*model.Exam, error) {
	if f.exam == nil || f.exam.ID != id {
		return nil, repository.ErrNotFound
	}
	cp := *f.exam
	return &cp, nil
}

type fakeEnrollmentStore struct {
	enrolled     map[int]bool
	statuses     map[int]model.EnrollmentStatus
	setStatusErr error
}

func newFakeEnrollmentStore(userIDs ...int) *fakeEnrollmentStore {
	f := &fakeEnrollmentStore{
		enrolled: make(map[int]bool),
		statuses: make(map[int]model.EnrollmentStatus),
	}
	for _, id := range userIDs {
		f.enrolled[id] = true
		f.statuses[id] = model.EnrollmentStatusEnrolled
	}
	return f
}

func (f *fakeEnrollmentStore) Get(_ context.Context, userID int, examID uuid.UUID) (*model.Enrollment, error) {
	if !f.enrolled[userID] {
		return nil, repository.ErrNotFound
	}
	return &model.Enrollment{UserID: userID, ExamID: examID, Status: f.statuses[userID]}, nil
}

func (f *fakeEnrollmentStore) SetStatus(_ context.Context, userID int, _ uuid.UUID, status model.EnrollmentStatus) error {
	if f.setStatusErr != nil {
		return f.setStatusErr
	}
	f.statuses[userID] = status
	return nil
}

// ─── Fixture ───────────────────────────────────────────────────────────

type fixture struct {
	svc      *AttemptService
	attempts *fakeAttemptStore
	enroll   *fakeEnrollmentStore
	exam     *model.Exam
	clock    *time.Time
}

func newFixture(t *testing.T, questions []model.Question) *fixture {
	t.Helper()

	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	clock := &start
	now := func() time.Time { return *clock }

	exam := &model.Exam{
		ID:              uuid.New(),
		Title:           "Algebra Midterm",
		DurationMinutes: 60,
		Status:          model.ExamStatusPublished,
	}

	attempts := newFakeAttemptStore(now)
	enroll := newFakeEnrollmentStore(1)

	svc := NewAttemptService(attempts, &fakeQuestionStore{questions: questions}, &fakeExamStore{exam: exam}, enroll, zerolog.Nop())
	svc.now = now

	return &fixture{svc: svc, attempts: attempts, enroll: enroll, exam: exam, clock: clock}
}

func (fx *fixture) advance(d time.Duration) {
	*fx.clock = fx.clock.Add(d)
}

func twoQuestions() []model.Question {
	return []model.Question{
		{ID: uuid.New(), Type: model.QuestionTypeSingleSelect, Options: []string{"2", "4", "6"}, CorrectAnswer: "1", Marks: 2, Active: true},
		{ID: uuid.New(), Type: model.QuestionTypeTrueFalse, Options: []string{"True", "False"}, CorrectAnswer: "True", Marks: 1, Active: true},
	}
}

// ─── Start ─────────────────────────────────────────────────────────────

func TestStart(t *testing.T) {
	fx := newFixture(t, twoQuestions())
	ctx := context.Background()

	attempt, err := fx.svc.Start(ctx, 1, fx.exam.ID, false)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if attempt.IsCompleted {
		t.Error("new attempt must not be completed")
	}
	if fx.enroll.statuses[1] != model.EnrollmentStatusInProgress {
		t.Errorf("enrollment status = %s, want IN_PROGRESS", fx.enroll.statuses[1])
	}
}

func TestStart_Rejections(t *testing.T) {
	ctx := context.Background()

	t.Run("unpublished exam", func(t *testing.T) {
		fx := newFixture(t, nil)
		fx.exam.Status = model.ExamStatusDraft
		if _, err := fx.svc.Start(ctx, 1, fx.exam.ID, false); !errors.Is(err, ErrExamNotPublished) {
			t.Errorf("got %v, want ErrExamNotPublished", err)
		}
	})

	t.Run("not enrolled", func(t *testing.T) {
		fx := newFixture(t, nil)
		if _, err := fx.svc.Start(ctx, 2, fx.exam.ID, false); !errors.Is(err, ErrNotEnrolled) {
			t.Errorf("got %v, want ErrNotEnrolled", err)
		}
	})

	t.Run("second active attempt", func(t *testing.T) {
		fx := newFixture(t, nil)
		if _, err := fx.svc.Start(ctx, 1, fx.exam.ID, false); err != nil {
			t.Fatalf("first Start: %v", err)
		}
		if _, err := fx.svc.Start(ctx, 1, fx.exam.ID, false); !errors.Is(err, repository.ErrConflict) {
			t.Errorf("got %v, want ErrConflict", err)
		}
	})
}

func TestStart_RetakeRequiresExplicitFlag(t *testing.T) {
	fx := newFixture(t, twoQuestions())
	ctx := context.Background()

	attempt, err := fx.svc.Start(ctx, 1, fx.exam.ID, false)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if _, err := fx.svc.Submit(ctx, attempt.ID, 1, false); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	if _, err := fx.svc.Start(ctx, 1, fx.exam.ID, false); !errors.Is(err, ErrAlreadyAttempted) {
		t.Errorf("got %v, want ErrAlreadyAttempted", err)
	}

	if _, err := fx.svc.Start(ctx, 1, fx.exam.ID, true); err != nil {
		t.Errorf("retake with explicit flag: %v", err)
	}
}

// ─── Save ──────────────────────────────────────────────────────────────

func TestSave_MergesAndKeepsClockMonotonic(t *testing.T) {
	questions := twoQuestions()
	fx := newFixture(t, questions)
	ctx := context.Background()

	attempt, err := fx.svc.Start(ctx, 1, fx.exam.ID, false)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	q0 := questions[0].ID.String()
	q1 := questions[1].ID.String()

	thirty := 30
	if _, err := fx.svc.Save(ctx, attempt.ID, 1, map[string]string{q0: "1"}, &thirty); err != nil {
		t.Fatalf("first Save: %v", err)
	}

	// A stale tick carries a smaller elapsed value and a different key.
	ten := 10
	got, err := fx.svc.Save(ctx, attempt.ID, 1, map[string]string{q1: "True"}, &ten)
	if err != nil {
		t.Fatalf("second Save: %v", err)
	}

	if got.Answers[q0] != "1" || got.Answers[q1] != "True" {
		t.Errorf("answers = %v, want union of both saves", got.Answers)
	}
	if got.TimeTaken != 30 {
		t.Errorf("TimeTaken = %d, want 30 (must not rewind)", got.TimeTaken)
	}

	// Replaying the same patch changes nothing.
	again, err := fx.svc.Save(ctx, attempt.ID, 1, map[string]string{q1: "True"}, &ten)
	if err != nil {
		t.Fatalf("replayed Save: %v", err)
	}
	if again.Answers[q0] != "1" || again.Answers[q1] != "True" || again.TimeTaken != 30 {
		t.Errorf("replay changed state: %+v", again)
	}
}

func TestSave_AfterSubmitConflicts(t *testing.T) {
	fx := newFixture(t, twoQuestions())
	ctx := context.Background()

	attempt, _ := fx.svc.Start(ctx, 1, fx.exam.ID, false)
	if _, err := fx.svc.Submit(ctx, attempt.ID, 1, false); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	if _, err := fx.svc.Save(ctx, attempt.ID, 1, map[string]string{"x": "y"}, nil); !errors.Is(err, repository.ErrConflict) {
		t.Errorf("got %v, want ErrConflict", err)
	}
}

func TestSave_OwnershipIsolation(t *testing.T) {
	fx := newFixture(t, nil)
	ctx := context.Background()

	attempt, _ := fx.svc.Start(ctx, 1, fx.exam.ID, false)

	if _, err := fx.svc.Save(ctx, attempt.ID, 2, map[string]string{"x": "y"}, nil); !errors.Is(err, repository.ErrForbidden) {
		t.Errorf("got %v, want ErrForbidden", err)
	}
	if _, err := fx.svc.GetState(ctx, attempt.ID, 2); !errors.Is(err, repository.ErrForbidden) {
		t.Errorf("GetState: got %v, want ErrForbidden", err)
	}
}

// ─── GetState ──────────────────────────────────────────────────────────

func TestGetState_RemainingTime(t *testing.T) {
	fx := newFixture(t, nil)
	ctx := context.Background()

	attempt, _ := fx.svc.Start(ctx, 1, fx.exam.ID, false)

	state, err := fx.svc.GetState(ctx, attempt.ID, 1)
	if err != nil {
		t.Fatalf("GetState: %v", err)
	}
	if state.RemainingSeconds != 3600 {
		t.Errorf("RemainingSeconds = %d, want 3600", state.RemainingSeconds)
	}

	fx.advance(20 * time.Minute)
	elapsed := 300
	if _, err := fx.svc.Save(ctx, attempt.ID, 1, map[string]string{}, &elapsed); err != nil {
		t.Fatalf("Save: %v", err)
	}

	state, err = fx.svc.GetState(ctx, attempt.ID, 1)
	if err != nil {
		t.Fatalf("GetState: %v", err)
	}
	// 3600 - 1200 wallclock - 300 accumulated
	if state.RemainingSeconds != 2100 {
		t.Errorf("RemainingSeconds = %d, want 2100", state.RemainingSeconds)
	}
}

// ─── Submit ────────────────────────────────────────────────────────────

func TestSubmit_GradesAndNotifiesEnrollment(t *testing.T) {
	questions := twoQuestions()
	fx := newFixture(t, questions)
	ctx := context.Background()

	attempt, _ := fx.svc.Start(ctx, 1, fx.exam.ID, false)
	answers := map[string]string{
		questions[0].ID.String(): "4",     // text matching index marker "1", 2 marks
		questions[1].ID.String(): "False", // wrong
	}
	if _, err := fx.svc.Save(ctx, attempt.ID, 1, answers, nil); err != nil {
		t.Fatalf("Save: %v", err)
	}

	result, err := fx.svc.Submit(ctx, attempt.ID, 1, false)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if result.Score != 2 || result.TotalMarks != 3 {
		t.Errorf("got score %d/%d, want 2/3", result.Score, result.TotalMarks)
	}
	if result.AutoSubmitted {
		t.Error("in-time submit reported as auto-submitted")
	}
	if fx.enroll.statuses[1] != model.EnrollmentStatusCompleted {
		t.Errorf("enrollment status = %s, want COMPLETED", fx.enroll.statuses[1])
	}
}

func TestSubmit_ExactlyOnce(t *testing.T) {
	fx := newFixture(t, twoQuestions())
	ctx := context.Background()

	attempt, _ := fx.svc.Start(ctx, 1, fx.exam.ID, false)

	if _, err := fx.svc.Submit(ctx, attempt.ID, 1, false); err != nil {
		t.Fatalf("first Submit: %v", err)
	}
	if _, err := fx.svc.Submit(ctx, attempt.ID, 1, false); !errors.Is(err, repository.ErrConflict) {
		t.Errorf("second Submit: got %v, want ErrConflict", err)
	}
}

func TestSubmit_PastDeadlineIsForced(t *testing.T) {
	fx := newFixture(t, twoQuestions())
	ctx := context.Background()

	attempt, _ := fx.svc.Start(ctx, 1, fx.exam.ID, false)
	fx.advance(61 * time.Minute)

	result, err := fx.svc.Submit(ctx, attempt.ID, 1, false)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if !result.AutoSubmitted {
		t.Error("expired submit must be reported as auto-submitted")
	}
}

func TestSubmit_EnrollmentFailureDoesNotRollBack(t *testing.T) {
	fx := newFixture(t, twoQuestions())
	ctx := context.Background()

	attempt, _ := fx.svc.Start(ctx, 1, fx.exam.ID, false)
	fx.enroll.setStatusErr = errors.New("enrollment system down")

	result, err := fx.svc.Submit(ctx, attempt.ID, 1, false)
	if err != nil {
		t.Fatalf("Submit must succeed despite enrollment failure: %v", err)
	}
	if result.TotalMarks != 3 {
		t.Errorf("TotalMarks = %d, want 3", result.TotalMarks)
	}

	stored, _ := fx.attempts.Get(ctx, attempt.ID, 1)
	if !stored.IsCompleted {
		t.Error("attempt completion was rolled back")
	}
}

// ─── Review ────────────────────────────────────────────────────────────

func TestReview(t *testing.T) {
	questions := twoQuestions()
	fx := newFixture(t, questions)
	ctx := context.Background()

	attempt, _ := fx.svc.Start(ctx, 1, fx.exam.ID, false)

	if _, _, err := fx.svc.Review(ctx, attempt.ID, 1); !errors.Is(err, ErrAttemptNotCompleted) {
		t.Errorf("review before submit: got %v, want ErrAttemptNotCompleted", err)
	}

	answers := map[string]string{questions[0].ID.String(): "1"}
	if _, err := fx.svc.Save(ctx, attempt.ID, 1, answers, nil); err != nil {
		t.Fatalf("Save: %v", err)
	}
	result, err := fx.svc.Submit(ctx, attempt.ID, 1, false)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	graded, outcomes, err := fx.svc.Review(ctx, attempt.ID, 1)
	if err != nil {
		t.Fatalf("Review: %v", err)
	}
	if len(outcomes) != 2 {
		t.Fatalf("got %d outcomes, want 2", len(outcomes))
	}

	var earned int
	for _, out := range outcomes {
		earned += out.Earned
	}
	if earned != result.Score {
		t.Errorf("review earned %d, submit scored %d; they must agree", earned, result.Score)
	}
	if graded.Score == nil || *graded.Score != result.Score {
		t.Errorf("stored score %v does not match submit result %d", graded.Score, result.Score)
	}
}
