package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/jonathan/interview-pilot/internal/logger"
	"github.com/jonathan/interview-pilot/internal/types"
)

// DefaultTimeout bounds every remote request. The interview duration is the
// only longer-lived clock in the system; requests must not hang past this.
const DefaultTimeout = 30 * time.Second

// Config configures the remote service client.
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// Client is the HTTP implementation of Service.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	logger  *zap.Logger
}

var _ Service = (*Client)(nil)

// New creates a client for the remote interview service.
func New(cfg Config, log *zap.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		http:    &http.Client{Timeout: timeout},
		logger:  log,
	}
}

// envelope is the failure shape the service guarantees. Success payloads are
// plain JSON; only failures carry success=false.
type envelope struct {
	Success *bool  `json:"success,omitempty"`
	Error   string `json:"error,omitempty"`
	Detail  string `json:"detail,omitempty"`
}

// failureFrom inspects a response body and status for the normalized failure
// envelope. A success=false body wins over the status code; a non-2xx status
// without a parseable envelope becomes a generic remote error.
func failureFrom(op string, status int, raw []byte) *RemoteError {
	var env envelope
	if err := json.Unmarshal(raw, &env); err == nil && env.Success != nil && !*env.Success {
		msg := env.Error
		if msg == "" {
			msg = "service reported a failure"
		}
		return &RemoteError{Op: op, Message: msg, Detail: env.Detail}
	}

	if status < 200 || status > 299 {
		return &RemoteError{Op: op, Message: "service returned an unexpected response"}
	}

	return nil
}

// request performs one JSON round trip and returns the raw success payload.
func (c *Client) request(ctx context.Context, op, method, path string, body any, headers map[string]string) ([]byte, error) {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("%s: marshaling request: %w", op, err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return nil, &RemoteError{Op: op, Message: "failed to build request", Cause: err}
	}
	c.setHeaders(req)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &RemoteError{Op: op, Message: "service is unreachable", Cause: err}
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &RemoteError{Op: op, Message: "failed to read response", Cause: err}
	}

	if remoteErr := failureFrom(op, resp.StatusCode, raw); remoteErr != nil {
		c.logger.Warn("remote operation failed",
			zap.String("op", op),
			zap.Int("status", resp.StatusCode),
			zap.String("body", logger.TruncateForLog(string(raw), 200)),
		)
		return nil, remoteErr
	}

	c.logger.Debug("remote operation completed",
		zap.String("op", op),
		zap.Duration("took", time.Since(start)),
	)

	return raw, nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}

// decode unmarshals a success payload, normalizing decode failures too.
func decode(op string, raw []byte, out any) error {
	if err := json.Unmarshal(raw, out); err != nil {
		return &RemoteError{Op: op, Message: "service returned a malformed payload", Cause: err}
	}
	return nil
}

// ParseResume uploads a resume file and returns the structured profile.
func (c *Client) ParseResume(ctx context.Context, file io.Reader, filename string) (*types.ParsedResume, error) {
	const op = "parseResume"

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("resume", filename)
	if err != nil {
		return nil, fmt.Errorf("%s: creating form file: %w", op, err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return nil, fmt.Errorf("%s: reading resume file: %w", op, err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("%s: finalizing upload: %w", op, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/resumes/parse", &buf)
	if err != nil {
		return nil, &RemoteError{Op: op, Message: "failed to build request", Cause: err}
	}
	c.setHeaders(req)
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &RemoteError{Op: op, Message: "service is unreachable", Cause: err}
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &RemoteError{Op: op, Message: "failed to read response", Cause: err}
	}
	if remoteErr := failureFrom(op, resp.StatusCode, raw); remoteErr != nil {
		return nil, remoteErr
	}

	var parsed types.ParsedResume
	if err := decode(op, raw, &parsed); err != nil {
		return nil, err
	}
	return &parsed, nil
}

// GenerateQuestions requests an ordered question set. Generation is
// all-or-nothing: a payload that fails the question-set schema is rejected
// whole, never partially accepted.
func (c *Client) GenerateQuestions(ctx context.Context, genReq GenerateQuestionsRequest) ([]types.InterviewQuestion, error) {
	const op = "generateQuestions"

	raw, err := c.request(ctx, op, http.MethodPost, "/interviews/questions", genReq, nil)
	if err != nil {
		return nil, err
	}

	if err := validatePayload(questionSetSchema, raw); err != nil {
		return nil, &RemoteError{Op: op, Message: "service returned an invalid question set", Cause: err}
	}

	var payload struct {
		Questions []types.InterviewQuestion `json:"questions"`
	}
	if err := decode(op, raw, &payload); err != nil {
		return nil, err
	}
	return payload.Questions, nil
}

// SubmitEvaluation sends the completed transcript set for scoring. The
// session ID rides as an Idempotency-Key so retries after a failure yield
// the same report rather than a duplicate.
func (c *Client) SubmitEvaluation(ctx context.Context, subReq SubmitEvaluationRequest) (*types.EvaluationReport, error) {
	const op = "submitEvaluation"

	headers := map[string]string{"Idempotency-Key": subReq.SessionID.String()}
	raw, err := c.request(ctx, op, http.MethodPost, "/interviews/evaluation", subReq, headers)
	if err != nil {
		return nil, err
	}

	if err := validatePayload(evaluationReportSchema, raw); err != nil {
		return nil, &RemoteError{Op: op, Message: "service returned an invalid report", Cause: err}
	}

	var report types.EvaluationReport
	if err := decode(op, raw, &report); err != nil {
		return nil, err
	}
	return &report, nil
}

// GetDashboardStats fetches the aggregate statistics read model.
func (c *Client) GetDashboardStats(ctx context.Context) (*types.DashboardStats, error) {
	const op = "getDashboardStats"

	raw, err := c.request(ctx, op, http.MethodGet, "/dashboard/stats", nil, nil)
	if err != nil {
		return nil, err
	}

	var stats types.DashboardStats
	if err := decode(op, raw, &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

// GetInterviewHistory fetches the completed-interview list.
func (c *Client) GetInterviewHistory(ctx context.Context) ([]types.InterviewHistoryEntry, error) {
	const op = "getInterviewHistory"

	raw, err := c.request(ctx, op, http.MethodGet, "/dashboard/history", nil, nil)
	if err != nil {
		return nil, err
	}

	var payload struct {
		Interviews []types.InterviewHistoryEntry `json:"interviews"`
	}
	if err := decode(op, raw, &payload); err != nil {
		return nil, err
	}
	return payload.Interviews, nil
}

// CreateCheckoutSession starts a hosted checkout flow for the plan.
func (c *Client) CreateCheckoutSession(ctx context.Context, plan string) (*CheckoutRedirect, error) {
	const op = "createCheckoutSession"

	body := map[string]string{"plan": plan}
	raw, err := c.request(ctx, op, http.MethodPost, "/billing/checkout-sessions", body, nil)
	if err != nil {
		return nil, err
	}

	var redirect CheckoutRedirect
	if err := decode(op, raw, &redirect); err != nil {
		return nil, err
	}
	return &redirect, nil
}

// GetSubscription reads the current subscription state.
func (c *Client) GetSubscription(ctx context.Context) (*types.SubscriptionState, error) {
	const op = "getSubscription"

	raw, err := c.request(ctx, op, http.MethodGet, "/billing/subscription", nil, nil)
	if err != nil {
		return nil, err
	}

	var sub types.SubscriptionState
	if err := decode(op, raw, &sub); err != nil {
		return nil, err
	}
	return &sub, nil
}

// GetCheckoutSession reads one checkout session's status snapshot. Callers
// treat this as best-effort display data.
func (c *Client) GetCheckoutSession(ctx context.Context, sessionID string) (*types.CheckoutSessionStatus, error) {
	const op = "getCheckoutSession"

	raw, err := c.request(ctx, op, http.MethodGet, "/billing/checkout-sessions/"+sessionID, nil, nil)
	if err != nil {
		return nil, err
	}

	var status types.CheckoutSessionStatus
	if err := decode(op, raw, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// CancelSubscription requests cancellation. The call is idempotent on the
// remote side; the returned message and cancel_at are authoritative.
func (c *Client) CancelSubscription(ctx context.Context) (*CancelConfirmation, error) {
	const op = "cancelSubscription"

	raw, err := c.request(ctx, op, http.MethodPost, "/billing/subscription/cancel", nil, nil)
	if err != nil {
		return nil, err
	}

	var confirmation CancelConfirmation
	if err := decode(op, raw, &confirmation); err != nil {
		return nil, err
	}
	return &confirmation, nil
}
