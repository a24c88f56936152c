package types

import (
	"github.com/go-playground/validator/v10"
)

// InterviewType identifies the kind of questions a session is built from.
type InterviewType string

// Supported interview types.
const (
	InterviewTypeTechnical  InterviewType = "technical"
	InterviewTypeBehavioral InterviewType = "behavioral"
	InterviewTypeBoth       InterviewType = "both"
	InterviewTypeMixed      InterviewType = "mixed"
)

// Valid reports whether t is one of the supported interview types.
func (t InterviewType) Valid() bool {
	switch t {
	case InterviewTypeTechnical, InterviewTypeBehavioral, InterviewTypeBoth, InterviewTypeMixed:
		return true
	}
	return false
}

// Difficulty is the requested question difficulty.
type Difficulty string

// Supported difficulty levels.
const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// Valid reports whether d is one of the supported difficulty levels.
func (d Difficulty) Valid() bool {
	switch d {
	case DifficultyEasy, DifficultyMedium, DifficultyHard:
		return true
	}
	return false
}

// AllowedDurations lists the selectable interview lengths in minutes.
var AllowedDurations = []int{15, 30, 45, 60}

// DurationAllowed reports whether minutes is one of the selectable lengths.
func DurationAllowed(minutes int) bool {
	for _, d := range AllowedDurations {
		if d == minutes {
			return true
		}
	}
	return false
}

// SetupState collects the wizard answers. Fields are filled step by step and
// the whole record is frozen once question generation is requested.
type SetupState struct {
	InterviewType   InterviewType `json:"interview_type" validate:"required,oneof=technical behavioral both mixed"`
	JobTitle        string        `json:"job_title" validate:"required,min=1"`
	Company         string        `json:"company,omitempty"`
	Industry        string        `json:"industry,omitempty"`
	ExperienceLevel string        `json:"experience_level,omitempty"`
	Difficulty      Difficulty    `json:"difficulty" validate:"required,oneof=easy medium hard"`
	DurationMinutes int           `json:"duration_minutes" validate:"required"`
	QuestionCount   int           `json:"question_count" validate:"required,min=1,max=20"`
	FocusAreas      []string      `json:"focus_areas,omitempty"`
}

// Validate checks the completed setup record. It is only meaningful at
// generation time; a partially filled wizard does not pass it.
func (s *SetupState) Validate() error {
	validate := validator.New()
	if err := validate.Struct(s); err != nil {
		return err
	}
	if !DurationAllowed(s.DurationMinutes) {
		return &ErrInvalidDuration{Minutes: s.DurationMinutes}
	}
	return nil
}

// ErrInvalidDuration indicates a duration outside the selectable set.
type ErrInvalidDuration struct {
	Minutes int
}

func (e *ErrInvalidDuration) Error() string {
	return "duration must be one of the selectable lengths"
}
