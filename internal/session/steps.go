package session

import (
	"fmt"

	"github.com/jonathan/interview-pilot/internal/types"
)

// Wizard step names, in order.
const (
	StepResume        = "resume"
	StepInterviewType = "interview_type"
	StepJobDetails    = "job_details"
	StepDifficulty    = "difficulty"
	StepSettings      = "settings"
)

// StepDefinition describes one wizard step. Validate gates the forward
// transition out of the step; moving backward never validates. Optional
// steps have no gate at all.
type StepDefinition struct {
	Name     string
	Optional bool
	Validate func(setup *types.SetupState, resume *types.ParsedResume) error
}

// Steps is the ordered wizard registry. The resume step is always optional;
// every later step must pass its validator before the wizard advances.
var Steps = []StepDefinition{
	{Name: StepResume, Optional: true},
	{Name: StepInterviewType, Validate: validateInterviewType},
	{Name: StepJobDetails, Validate: validateJobDetails},
	{Name: StepDifficulty, Validate: validateDifficulty},
	{Name: StepSettings, Validate: validateSettings},
}

// StepError reports why a wizard step refused to advance.
type StepError struct {
	Step    string
	Field   string
	Message string
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %s: %s: %s", e.Step, e.Field, e.Message)
}

// StepIndex returns the position of a named step, or -1 when unknown.
func StepIndex(name string) int {
	for i, def := range Steps {
		if def.Name == name {
			return i
		}
	}
	return -1
}

// StepNames lists the wizard steps in order.
func StepNames() []string {
	names := make([]string, len(Steps))
	for i, def := range Steps {
		names[i] = def.Name
	}
	return names
}

func validateInterviewType(setup *types.SetupState, _ *types.ParsedResume) error {
	if setup.InterviewType == "" {
		return &StepError{Step: StepInterviewType, Field: "interview_type", Message: "select an interview type"}
	}
	if !setup.InterviewType.Valid() {
		return &StepError{Step: StepInterviewType, Field: "interview_type", Message: "unknown interview type"}
	}
	return nil
}

func validateJobDetails(setup *types.SetupState, _ *types.ParsedResume) error {
	if setup.JobTitle == "" {
		return &StepError{Step: StepJobDetails, Field: "job_title", Message: "job title is required"}
	}
	return nil
}

func validateDifficulty(setup *types.SetupState, _ *types.ParsedResume) error {
	if setup.Difficulty == "" {
		return &StepError{Step: StepDifficulty, Field: "difficulty", Message: "choose a difficulty"}
	}
	if !setup.Difficulty.Valid() {
		return &StepError{Step: StepDifficulty, Field: "difficulty", Message: "unknown difficulty"}
	}
	return nil
}

func validateSettings(setup *types.SetupState, _ *types.ParsedResume) error {
	if !types.DurationAllowed(setup.DurationMinutes) {
		return &StepError{Step: StepSettings, Field: "duration_minutes", Message: "duration must be one of the selectable lengths"}
	}
	if setup.QuestionCount < 1 || setup.QuestionCount > 20 {
		return &StepError{Step: StepSettings, Field: "question_count", Message: "question count must be between 1 and 20"}
	}
	return nil
}
