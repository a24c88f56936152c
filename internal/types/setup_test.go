package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validSetup() SetupState {
	return SetupState{
		InterviewType:   InterviewTypeTechnical,
		JobTitle:        "Backend Engineer",
		Difficulty:      DifficultyMedium,
		DurationMinutes: 30,
		QuestionCount:   5,
	}
}

func TestSetupStateValidate_Success(t *testing.T) {
	s := validSetup()
	require.NoError(t, s.Validate())
}

func TestSetupStateValidate_MissingFields(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*SetupState)
	}{
		{"no interview type", func(s *SetupState) { s.InterviewType = "" }},
		{"bad interview type", func(s *SetupState) { s.InterviewType = "casual" }},
		{"no job title", func(s *SetupState) { s.JobTitle = "" }},
		{"no difficulty", func(s *SetupState) { s.Difficulty = "" }},
		{"zero questions", func(s *SetupState) { s.QuestionCount = 0 }},
		{"too many questions", func(s *SetupState) { s.QuestionCount = 21 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := validSetup()
			tt.mutate(&s)
			assert.Error(t, s.Validate())
		})
	}
}

func TestSetupStateValidate_Duration(t *testing.T) {
	s := validSetup()
	s.DurationMinutes = 25
	err := s.Validate()
	require.Error(t, err)
	var dErr *ErrInvalidDuration
	require.ErrorAs(t, err, &dErr)
	assert.Equal(t, 25, dErr.Minutes)

	for _, minutes := range AllowedDurations {
		s.DurationMinutes = minutes
		assert.NoError(t, s.Validate())
	}
}

func TestInterviewTypeValid(t *testing.T) {
	assert.True(t, InterviewTypeMixed.Valid())
	assert.False(t, InterviewType("panel").Valid())
}

func TestEntitled(t *testing.T) {
	assert.False(t, (*SubscriptionState)(nil).Entitled())
	assert.False(t, (&SubscriptionState{Status: SubscriptionCanceled}).Entitled())
	assert.True(t, (&SubscriptionState{Status: SubscriptionActive}).Entitled())
	assert.True(t, (&SubscriptionState{Status: SubscriptionTrialing}).Entitled())
}
