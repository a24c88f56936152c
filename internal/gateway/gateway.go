// Package gateway is the single point of contact with the remote interview
// service. It normalizes every response into either a typed payload or a
// *RemoteError built from the service's {success:false, error, detail?}
// envelope; callers never interpret transport-level status codes.
package gateway

import (
	"context"
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/jonathan/interview-pilot/internal/types"
)

// GenerateQuestionsRequest asks the service for an ordered question set.
type GenerateQuestionsRequest struct {
	Resume          *types.ParsedResume `json:"resume,omitempty"`
	InterviewType   types.InterviewType `json:"interview_type"`
	QuestionCount   int                 `json:"question_count"`
	JobTitle        string              `json:"job_title,omitempty"`
	Company         string              `json:"company,omitempty"`
	Industry        string              `json:"industry,omitempty"`
	ExperienceLevel string              `json:"experience_level,omitempty"`
	Difficulty      types.Difficulty    `json:"difficulty,omitempty"`
	FocusAreas      []string            `json:"focus_areas,omitempty"`
}

// SubmitEvaluationRequest carries a completed session's transcripts for
// scoring. SessionID correlates resubmissions: submitting the same session
// twice must yield the same report, never a duplicate.
type SubmitEvaluationRequest struct {
	SessionID     uuid.UUID              `json:"session_id"`
	InterviewType types.InterviewType    `json:"interview_type"`
	Answers       []types.QuestionAnswer `json:"answers"`
}

// CheckoutRedirect is the hosted-checkout handoff returned by the billing side.
type CheckoutRedirect struct {
	CheckoutURL string `json:"checkout_url"`
	SessionID   string `json:"session_id"`
}

// CancelConfirmation is the backend's authoritative word on a cancellation.
// cancel_at scheduling is never computed locally.
type CancelConfirmation struct {
	Message  string     `json:"message"`
	CancelAt *time.Time `json:"cancel_at,omitempty"`
}

// Service is the logical operation surface of the remote interview service.
// Consumers accept this interface so tests can substitute stubs.
type Service interface {
	ParseResume(ctx context.Context, file io.Reader, filename string) (*types.ParsedResume, error)
	GenerateQuestions(ctx context.Context, req GenerateQuestionsRequest) ([]types.InterviewQuestion, error)
	SubmitEvaluation(ctx context.Context, req SubmitEvaluationRequest) (*types.EvaluationReport, error)
	GetDashboardStats(ctx context.Context) (*types.DashboardStats, error)
	GetInterviewHistory(ctx context.Context) ([]types.InterviewHistoryEntry, error)
	CreateCheckoutSession(ctx context.Context, plan string) (*CheckoutRedirect, error)
	GetSubscription(ctx context.Context) (*types.SubscriptionState, error)
	GetCheckoutSession(ctx context.Context, sessionID string) (*types.CheckoutSessionStatus, error)
	CancelSubscription(ctx context.Context) (*CancelConfirmation, error)
}
