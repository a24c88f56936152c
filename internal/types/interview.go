package types

// InterviewQuestion is one generated question. Questions are immutable once
// generated; the ordered slice is the contract between generation and the
// live session.
type InterviewQuestion struct {
	ID         string        `json:"id"`
	Type       InterviewType `json:"type"`
	Text       string        `json:"text"`
	Difficulty Difficulty    `json:"difficulty,omitempty"`
	FocusArea  string        `json:"focus_area,omitempty"`
}

// QuestionAnswer pairs a question with the transcript captured for it during
// the live session. Skipped answers carry an empty transcript.
type QuestionAnswer struct {
	Question   InterviewQuestion `json:"question"`
	Transcript string            `json:"transcript"`
	Skipped    bool              `json:"skipped"`
}

// QuestionScore is the per-question portion of an evaluation report.
type QuestionScore struct {
	QuestionID string  `json:"question_id"`
	Score      float64 `json:"score"`
	Feedback   string  `json:"feedback,omitempty"`
}

// EvaluationReport is the scored outcome of a completed session. Produced
// exactly once per logical submission and immutable after creation.
type EvaluationReport struct {
	OverallScore    float64         `json:"overall_score"`
	TechnicalScore  *float64        `json:"technical_score,omitempty"`
	BehavioralScore *float64        `json:"behavioral_score,omitempty"`
	QuestionScores  []QuestionScore `json:"question_scores,omitempty"`
	Strengths       []string        `json:"strengths,omitempty"`
	Weaknesses      []string        `json:"weaknesses,omitempty"`
	Feedback        string          `json:"feedback,omitempty"`
	Recommendations []string        `json:"recommendations,omitempty"`
}
