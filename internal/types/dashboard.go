package types

import "time"

// DashboardStats aggregates lifetime interview activity. The zero value is
// the documented fallback when the stats read fails.
type DashboardStats struct {
	TotalInterviews int     `json:"total_interviews"`
	AverageScore    float64 `json:"average_score"`
	BestScore       float64 `json:"best_score"`
	HoursSpent      float64 `json:"hours_spent"`
}

// InterviewHistoryEntry is one row of the completed-interview list. Fetched
// independently from DashboardStats; no invariant ties their freshness.
type InterviewHistoryEntry struct {
	ID              string        `json:"id"`
	InterviewType   InterviewType `json:"interview_type"`
	JobTitle        string        `json:"job_title,omitempty"`
	OverallScore    float64       `json:"overall_score"`
	QuestionCount   int           `json:"question_count"`
	DurationMinutes int           `json:"duration_minutes"`
	CompletedAt     time.Time     `json:"completed_at"`
}
