package model

import (
	"github.com/google/uuid"
)

// QuestionType is the closed set of supported question kinds.
type QuestionType string

const (
	QuestionTypeSingleSelect QuestionType = "SINGLE_SELECT"
	QuestionTypeTrueFalse    QuestionType = "TRUE_FALSE"
	QuestionTypeShortAnswer  QuestionType = "SHORT_ANSWER"
	QuestionTypeEssay        QuestionType = "ESSAY"
	QuestionTypeFillBlank    QuestionType = "FILL_BLANK"
)

// Valid reports whether t is a known question type.
func (t QuestionType) Valid() bool {
	switch t {
	case QuestionTypeSingleSelect, QuestionTypeTrueFalse,
		QuestionTypeShortAnswer, QuestionTypeEssay, QuestionTypeFillBlank:
		return true
	}
	return false
}

// IsAutoGradable reports whether the scoring engine may grade this type
// automatically. Essays always require manual review, so they are excluded
// here rather than special-cased at each call site.
func (t QuestionType) IsAutoGradable() bool {
	return t.Valid() && t != QuestionTypeEssay
}

// Question represents a single exam question. Questions are owned by their
// exam and never mutated while an attempt is running.
type Question struct {
	ID     uuid.UUID    `json:"id"`
	ExamID uuid.UUID    `json:"exam_id"`
	Prompt string       `json:"question"`
	Type   QuestionType `json:"type"`
	// Options is the ordered option list. Empty for free-text types.
	Options []string `json:"options,omitempty"`
	// CorrectAnswer may be authored as an option index ("1") or as the
	// literal option text. The scoring engine reconciles both encodings.
	CorrectAnswer string `json:"correct_answer,omitempty"`
	Marks         int    `json:"marks"`
	Active        bool   `json:"active"`
	OrderNum      int    `json:"order_num"`
}

// QuestionForStudent is a question with the correct answer withheld,
// sent to exam takers.
type QuestionForStudent struct {
	ID       uuid.UUID    `json:"id"`
	Prompt   string       `json:"question"`
	Type     QuestionType `json:"type"`
	Options  []string     `json:"options,omitempty"`
	Marks    int          `json:"marks"`
	OrderNum int          `json:"order_num"`
}

// ForStudent strips the correct-answer marker from a question.
func (q *Question) ForStudent() QuestionForStudent {
	return QuestionForStudent{
		ID:       q.ID,
		Prompt:   q.Prompt,
		Type:     q.Type,
		Options:  q.Options,
		Marks:    q.Marks,
		OrderNum: q.OrderNum,
	}
}

// AddQuestionRequest is the payload for adding a question to an exam.
type AddQuestionRequest struct {
	Prompt        string   `json:"question" binding:"required,min=1,max=2000"`
	Type          string   `json:"type" binding:"required,oneof=SINGLE_SELECT TRUE_FALSE SHORT_ANSWER ESSAY FILL_BLANK"`
	Options       []string `json:"options" binding:"omitempty,max=10,dive,max=500"`
	CorrectAnswer string   `json:"correct_answer" binding:"omitempty,max=500"`
	Marks         int      `json:"marks" binding:"omitempty,min=1,max=100"`
	OrderNum      int      `json:"order_num" binding:"min=0"`
}

// ReplaceQuestionsRequest is the payload for bulk replacing an exam's questions.
type ReplaceQuestionsRequest struct {
	Questions []AddQuestionRequest `json:"questions" binding:"dive"`
}
