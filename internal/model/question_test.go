package model

import "testing"

func TestQuestionType_Valid(t *testing.T) {
	valid := []QuestionType{
		QuestionTypeSingleSelect, QuestionTypeTrueFalse,
		QuestionTypeShortAnswer, QuestionTypeEssay, QuestionTypeFillBlank,
	}
	for _, qt := range valid {
		if !qt.Valid() {
			t.Errorf("%s should be valid", qt)
		}
	}

	for _, qt := range []QuestionType{"", "MULTI_SELECT", "essay"} {
		if qt.Valid() {
			t.Errorf("%q should be invalid", qt)
		}
	}
}

func TestQuestionType_IsAutoGradable(t *testing.T) {
	tests := []struct {
		qtype QuestionType
		want  bool
	}{
		{QuestionTypeSingleSelect, true},
		{QuestionTypeTrueFalse, true},
		{QuestionTypeShortAnswer, true},
		{QuestionTypeFillBlank, true},
		{QuestionTypeEssay, false},
		{QuestionType("UNKNOWN"), false},
	}
	for _, tc := range tests {
		if got := tc.qtype.IsAutoGradable(); got != tc.want {
			t.Errorf("IsAutoGradable(%s) = %v, want %v", tc.qtype, got, tc.want)
		}
	}
}

func TestQuestion_ForStudent(t *testing.T) {
	q := Question{
		Prompt:        "Capital of France?",
		Type:          QuestionTypeSingleSelect,
		Options:       []string{"Paris", "London"},
		CorrectAnswer: "0",
		Marks:         2,
		Active:        true,
		OrderNum:      3,
	}

	s := q.ForStudent()
	if s.Prompt != q.Prompt || s.Marks != q.Marks || s.OrderNum != q.OrderNum {
		t.Error("student view lost question fields")
	}
	if len(s.Options) != 2 {
		t.Errorf("got %d options, want 2", len(s.Options))
	}
}
