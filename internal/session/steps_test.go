package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/interview-pilot/internal/types"
)

func TestStepsAreOrderedResumeFirst(t *testing.T) {
	assert.Equal(t, []string{
		StepResume,
		StepInterviewType,
		StepJobDetails,
		StepDifficulty,
		StepSettings,
	}, StepNames())

	assert.True(t, Steps[0].Optional, "resume upload never blocks the wizard")
	for _, def := range Steps[1:] {
		assert.False(t, def.Optional, "step %s", def.Name)
	}
}

func TestStepIndexLookup(t *testing.T) {
	assert.Equal(t, 3, StepIndex(StepDifficulty))
	assert.Equal(t, 0, StepIndex(StepResume))
	assert.Equal(t, -1, StepIndex("unknown"))
}

func TestStepValidatorsRejectBadInput(t *testing.T) {
	cases := []struct {
		name      string
		step      string
		mutate    func(*types.SetupState)
		wantField string
	}{
		{
			name:      "missing interview type",
			step:      StepInterviewType,
			mutate:    func(s *types.SetupState) { s.InterviewType = "" },
			wantField: "interview_type",
		},
		{
			name:      "unknown interview type",
			step:      StepInterviewType,
			mutate:    func(s *types.SetupState) { s.InterviewType = "trivia" },
			wantField: "interview_type",
		},
		{
			name:      "missing job title",
			step:      StepJobDetails,
			mutate:    func(s *types.SetupState) { s.JobTitle = "" },
			wantField: "job_title",
		},
		{
			name:      "unknown difficulty",
			step:      StepDifficulty,
			mutate:    func(s *types.SetupState) { s.Difficulty = "impossible" },
			wantField: "difficulty",
		},
		{
			name:      "duration outside the selectable set",
			step:      StepSettings,
			mutate:    func(s *types.SetupState) { s.DurationMinutes = 25 },
			wantField: "duration_minutes",
		},
		{
			name:      "too many questions",
			step:      StepSettings,
			mutate:    func(s *types.SetupState) { s.QuestionCount = 21 },
			wantField: "question_count",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			setup := validSetup()
			tc.mutate(&setup)

			def := Steps[StepIndex(tc.step)]
			require.NotNil(t, def.Validate)
			err := def.Validate(&setup, nil)

			var stepErr *StepError
			require.ErrorAs(t, err, &stepErr)
			assert.Equal(t, tc.step, stepErr.Step)
			assert.Equal(t, tc.wantField, stepErr.Field)
		})
	}
}

func TestStepValidatorsAcceptCompleteSetup(t *testing.T) {
	setup := validSetup()
	for _, def := range Steps {
		if def.Validate == nil {
			continue
		}
		assert.NoError(t, def.Validate(&setup, nil), "step %s", def.Name)
	}
}
