package session

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jonathan/interview-pilot/internal/gateway"
	"github.com/jonathan/interview-pilot/internal/types"
)

// checkpointEverySeconds spaces out countdown checkpoints so a live session
// does not write a snapshot on every tick.
const checkpointEverySeconds = 30

// Evaluator resolves a frozen submission into a report. The evaluation
// package provides the production implementation with its progress ramp; the
// machine only cares about the terminal result.
type Evaluator interface {
	Run(ctx context.Context, req gateway.SubmitEvaluationRequest) (*types.EvaluationReport, error)
}

// directEvaluator submits straight through the gateway, with no progress
// reporting in between.
type directEvaluator struct {
	gw gateway.Service
}

func (d directEvaluator) Run(ctx context.Context, req gateway.SubmitEvaluationRequest) (*types.EvaluationReport, error) {
	return d.gw.SubmitEvaluation(ctx, req)
}

// Status is a read-only snapshot of a machine for handlers and the CLI.
// Slices are copies; mutating them does not touch the session.
type Status struct {
	ID               uuid.UUID                 `json:"id"`
	UserID           uuid.UUID                 `json:"user_id"`
	State            State                     `json:"state"`
	FailedFrom       State                     `json:"failed_from,omitempty"`
	ErrorMessage     string                    `json:"error_message,omitempty"`
	StepIndex        int                       `json:"step_index"`
	StepName         string                    `json:"step_name"`
	Setup            types.SetupState          `json:"setup"`
	Resume           *types.ParsedResume       `json:"resume,omitempty"`
	Questions        []types.InterviewQuestion `json:"questions,omitempty"`
	Answers          []types.QuestionAnswer    `json:"answers,omitempty"`
	CurrentIndex     int                       `json:"current_index"`
	RemainingSeconds int                       `json:"remaining_seconds"`
	Recording        bool                      `json:"recording"`
	LastQuestion     bool                      `json:"last_question"`
	Report           *types.EvaluationReport   `json:"report,omitempty"`
	UpdatedAt        time.Time                 `json:"updated_at"`
	Closed           bool                      `json:"closed,omitempty"`
}

// Option configures a Machine.
type Option func(*Machine)

// WithListener registers a callback invoked after every observable change.
// Listeners run outside the state lock but in update order; they must not
// call mutating machine methods.
func WithListener(fn func(Status)) Option {
	return func(m *Machine) {
		m.listeners = append(m.listeners, fn)
	}
}

// WithNow overrides the clock used for idle tracking.
func WithNow(now func() time.Time) Option {
	return func(m *Machine) {
		m.nowFn = now
	}
}

// WithManualTimer disables the background countdown goroutine so the owner
// can drive ticks directly. Tests use this to make expiry deterministic.
func WithManualTimer() Option {
	return func(m *Machine) {
		m.manualTimer = true
	}
}

// Machine drives one interview session. All mutating entry points take the
// lock, check the state tag, and notify observers after releasing it.
type Machine struct {
	id        uuid.UUID
	userID    uuid.UUID
	gw        gateway.Service
	evaluator Evaluator
	logger    *zap.Logger

	mu         sync.Mutex
	state      State
	failedFrom State
	errMsg     string

	stepIdx int
	setup   types.SetupState
	resume  *types.ParsedResume

	questions        []types.InterviewQuestion
	answers          []types.QuestionAnswer
	currentIdx       int
	remainingSeconds int
	recording        bool

	frozen  *gateway.SubmitEvaluationRequest
	report  *types.EvaluationReport
	attempt uint64
	closed  bool

	timerCancel context.CancelFunc
	manualTimer bool

	// notifyMu is acquired before mu is released, so deliveries happen in
	// mutation order.
	notifyMu  sync.Mutex
	listeners []func(Status)

	subMu        sync.Mutex
	subscribers  map[int]chan Status
	nextListener int

	updatedAt time.Time
	nowFn     func() time.Time
}

// New creates a machine in SETUP at the first wizard step. A nil evaluator
// falls back to submitting directly through the gateway.
func New(id, userID uuid.UUID, gw gateway.Service, evaluator Evaluator, log *zap.Logger, opts ...Option) *Machine {
	if log == nil {
		log = zap.NewNop()
	}
	m := &Machine{
		id:          id,
		userID:      userID,
		gw:          gw,
		evaluator:   evaluator,
		logger:      log,
		state:       StateSetup,
		subscribers: make(map[int]chan Status),
		nowFn:       time.Now,
	}
	if m.evaluator == nil {
		m.evaluator = directEvaluator{gw: gw}
	}
	for _, opt := range opts {
		opt(m)
	}
	m.updatedAt = m.nowFn()
	return m
}

// Restore rebuilds a machine from a persisted checkpoint. Work that was in
// flight when the checkpoint was taken did not survive the reload, so
// GENERATING, SUBMITTING and EVALUATING come back as ERROR with the matching
// retry target. A live session resumes its countdown with the away time
// subtracted, submitting immediately if the clock ran out meanwhile.
func Restore(cp Checkpoint, gw gateway.Service, evaluator Evaluator, log *zap.Logger, opts ...Option) *Machine {
	m := New(cp.ID, cp.UserID, gw, evaluator, log, opts...)

	m.mu.Lock()
	m.state = cp.State
	m.failedFrom = cp.FailedFrom
	m.errMsg = cp.ErrorMessage
	m.stepIdx = cp.StepIndex
	m.setup = cp.Setup
	m.resume = cp.Resume
	m.questions = cp.Questions
	m.answers = cp.Answers
	m.currentIdx = cp.CurrentIndex
	m.remainingSeconds = cp.RemainingSeconds

	switch cp.State {
	case StateGenerating:
		m.state = StateError
		m.failedFrom = StateGenerating
		m.errMsg = "question generation was interrupted"
	case StateSubmitting, StateEvaluating:
		m.state = StateError
		m.failedFrom = cp.State
		m.errMsg = "evaluation was interrupted"
	case StateLive:
		elapsed := int(m.nowFn().Sub(cp.UpdatedAt).Seconds())
		if elapsed > 0 {
			m.remainingSeconds -= elapsed
		}
		if m.remainingSeconds <= 0 {
			m.remainingSeconds = 0
			m.forceSubmitLocked()
			m.unlockAndNotify()
			return m
		}
		m.startTimerLocked()
	}

	m.touchLocked()
	m.unlockAndNotify()
	return m
}

// ID returns the session identifier.
func (m *Machine) ID() uuid.UUID { return m.id }

// Owner returns the user the session belongs to.
func (m *Machine) Owner() uuid.UUID { return m.userID }

// SetSetup replaces the wizard answers. Only legal in SETUP; the record is
// frozen once generation is requested.
func (m *Machine) SetSetup(setup types.SetupState) error {
	m.mu.Lock()
	if m.state != StateSetup {
		m.mu.Unlock()
		return &TransitionError{From: m.state, Event: "update setup"}
	}
	m.setup = setup
	m.touchLocked()
	m.unlockAndNotify()
	return nil
}

// AttachResume stores the parsed resume for question generation. The resume
// step never blocks the wizard; a nil resume is fine.
func (m *Machine) AttachResume(resume *types.ParsedResume) error {
	m.mu.Lock()
	if m.state != StateSetup {
		m.mu.Unlock()
		return &TransitionError{From: m.state, Event: "attach resume"}
	}
	m.resume = resume
	m.touchLocked()
	m.unlockAndNotify()
	return nil
}

// Next validates the current wizard step and advances past it. On the final
// step it validates and reports done=true without advancing; Generate
// performs the actual transition out of SETUP.
func (m *Machine) Next() (done bool, err error) {
	m.mu.Lock()
	if m.state != StateSetup {
		m.mu.Unlock()
		return false, &TransitionError{From: m.state, Event: "advance the wizard"}
	}
	def := Steps[m.stepIdx]
	if def.Validate != nil {
		if err := def.Validate(&m.setup, m.resume); err != nil {
			m.mu.Unlock()
			return false, err
		}
	}
	if m.stepIdx == len(Steps)-1 {
		m.mu.Unlock()
		return true, nil
	}
	m.stepIdx++
	m.touchLocked()
	m.unlockAndNotify()
	return false, nil
}

// Back moves to the previous wizard step. Backward movement never validates.
func (m *Machine) Back() error {
	m.mu.Lock()
	if m.state != StateSetup {
		m.mu.Unlock()
		return &TransitionError{From: m.state, Event: "go back"}
	}
	if m.stepIdx > 0 {
		m.stepIdx--
	}
	m.touchLocked()
	m.unlockAndNotify()
	return nil
}

// Generate freezes the wizard answers and requests the question set. The
// SETUP to GENERATING transition happens exactly once per wizard completion;
// the remote call resolves asynchronously, moving the session to LIVE or
// ERROR. Generation is all-or-nothing.
func (m *Machine) Generate() error {
	m.mu.Lock()
	if m.state != StateSetup {
		m.mu.Unlock()
		return &TransitionError{From: m.state, Event: "generate questions"}
	}
	if err := m.validateSetupLocked(); err != nil {
		m.mu.Unlock()
		return err
	}
	m.state = StateGenerating
	m.attempt++
	attempt := m.attempt
	req := m.generateRequestLocked()
	m.touchLocked()
	go m.generate(attempt, req)
	m.unlockAndNotify()
	return nil
}

// ToggleRecording flips the recording flag. Consecutive toggles form
// start/stop pairs; a repeated toggle can never produce two starts.
func (m *Machine) ToggleRecording() (bool, error) {
	m.mu.Lock()
	if m.state != StateLive {
		m.mu.Unlock()
		return false, &TransitionError{From: m.state, Event: "toggle recording"}
	}
	m.recording = !m.recording
	recording := m.recording
	m.touchLocked()
	m.unlockAndNotify()
	return recording, nil
}

// Advance commits the transcript for the current question and moves to the
// next one. An empty transcript marks the question skipped. Advancing past
// the final question triggers the submission transition, so the same call
// serves both "Next" and "Finish".
func (m *Machine) Advance(transcript string) error {
	m.mu.Lock()
	if m.state != StateLive {
		m.mu.Unlock()
		return &TransitionError{From: m.state, Event: "advance"}
	}
	trimmed := strings.TrimSpace(transcript)
	m.answers = append(m.answers, types.QuestionAnswer{
		Question:   m.questions[m.currentIdx],
		Transcript: trimmed,
		Skipped:    trimmed == "",
	})
	m.currentIdx++
	m.recording = false
	if m.currentIdx >= len(m.questions) {
		m.submitLocked()
	} else {
		m.touchLocked()
	}
	m.unlockAndNotify()
	return nil
}

// Retry re-enters the state the failure came from without discarding the
// collected input: generation keeps the wizard answers, evaluation re-issues
// the identical frozen submission.
func (m *Machine) Retry() error {
	m.mu.Lock()
	if m.state != StateError {
		m.mu.Unlock()
		return &TransitionError{From: m.state, Event: "retry"}
	}

	target := m.failedFrom
	switch target {
	case StateGenerating, StateSubmitting, StateEvaluating:
	default:
		m.mu.Unlock()
		return &TransitionError{From: StateError, Event: "retry"}
	}

	m.failedFrom = ""
	m.errMsg = ""
	m.attempt++
	attempt := m.attempt

	if target == StateGenerating {
		m.state = StateGenerating
		req := m.generateRequestLocked()
		m.touchLocked()
		go m.generate(attempt, req)
		m.unlockAndNotify()
		return nil
	}

	m.state = StateSubmitting
	m.ensureFrozenLocked()
	req := *m.frozen
	m.touchLocked()
	go m.evaluate(attempt, req)
	m.unlockAndNotify()
	return nil
}

// Abandon discards the session: the countdown stops and any in-flight remote
// result is ignored when it lands. Outstanding requests are not actively
// canceled.
func (m *Machine) Abandon() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	m.stopTimerLocked()
	m.touchLocked()
	m.unlockAndNotify()
}

// Snapshot returns the current status.
func (m *Machine) Snapshot() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.statusLocked()
}

// Subscribe returns a channel of status updates. Sends never block; slow
// consumers miss intermediate updates and should reconcile via Snapshot.
func (m *Machine) Subscribe() (<-chan Status, func()) {
	ch := make(chan Status, 16)
	m.subMu.Lock()
	id := m.nextListener
	m.nextListener++
	m.subscribers[id] = ch
	m.subMu.Unlock()

	return ch, func() {
		m.subMu.Lock()
		delete(m.subscribers, id)
		m.subMu.Unlock()
	}
}

// WaitFor blocks until the session reaches one of the given states or the
// context ends, returning the status that satisfied the wait.
func (m *Machine) WaitFor(ctx context.Context, states ...State) (Status, error) {
	match := func(st Status) bool {
		for _, s := range states {
			if st.State == s {
				return true
			}
		}
		return false
	}

	ch, cancel := m.Subscribe()
	defer cancel()

	if st := m.Snapshot(); match(st) {
		return st, nil
	}
	for {
		select {
		case <-ctx.Done():
			return m.Snapshot(), ctx.Err()
		case st := <-ch:
			if match(st) {
				return st, nil
			}
		case <-time.After(500 * time.Millisecond):
			if st := m.Snapshot(); match(st) {
				return st, nil
			}
		}
	}
}

// tick advances the countdown by one second. It reports true when the timer
// should stop, either because the session left LIVE or because time ran out
// and the submission transition fired.
func (m *Machine) tick() bool {
	m.mu.Lock()
	if m.closed || m.state != StateLive {
		m.mu.Unlock()
		return true
	}
	m.remainingSeconds--
	if m.remainingSeconds <= 0 {
		m.remainingSeconds = 0
		m.forceSubmitLocked()
		m.unlockAndNotify()
		return true
	}
	if m.remainingSeconds%checkpointEverySeconds == 0 {
		m.unlockAndNotify()
	} else {
		m.mu.Unlock()
	}
	return false
}

func (m *Machine) startTimerLocked() {
	if m.manualTimer {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	m.timerCancel = cancel
	go m.runTimer(ctx)
}

func (m *Machine) runTimer(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if m.tick() {
				return
			}
		}
	}
}

func (m *Machine) stopTimerLocked() {
	if m.timerCancel != nil {
		m.timerCancel()
		m.timerCancel = nil
	}
}

// forceSubmitLocked ends the live phase regardless of position. Unanswered
// questions are committed as skipped with empty transcripts, exactly as if
// Finish had been pressed early.
func (m *Machine) forceSubmitLocked() {
	for i := m.currentIdx; i < len(m.questions); i++ {
		m.answers = append(m.answers, types.QuestionAnswer{Question: m.questions[i], Skipped: true})
	}
	m.currentIdx = len(m.questions)
	m.submitLocked()
}

// submitLocked moves into SUBMITTING. Stopping the timer and changing state
// happen under one lock hold, so the countdown and a manual Finish can never
// race two submissions.
func (m *Machine) submitLocked() {
	m.stopTimerLocked()
	m.recording = false
	m.state = StateSubmitting
	m.ensureFrozenLocked()
	m.attempt++
	go m.evaluate(m.attempt, *m.frozen)
	m.touchLocked()
}

func (m *Machine) ensureFrozenLocked() {
	if m.frozen != nil {
		return
	}
	m.frozen = &gateway.SubmitEvaluationRequest{
		SessionID:     m.id,
		InterviewType: m.setup.InterviewType,
		Answers:       append([]types.QuestionAnswer(nil), m.answers...),
	}
}

func (m *Machine) validateSetupLocked() error {
	for _, def := range Steps {
		if def.Validate == nil {
			continue
		}
		if err := def.Validate(&m.setup, m.resume); err != nil {
			return err
		}
	}
	return nil
}

func (m *Machine) generateRequestLocked() gateway.GenerateQuestionsRequest {
	return gateway.GenerateQuestionsRequest{
		Resume:          m.resume,
		InterviewType:   m.setup.InterviewType,
		QuestionCount:   m.setup.QuestionCount,
		JobTitle:        m.setup.JobTitle,
		Company:         m.setup.Company,
		Industry:        m.setup.Industry,
		ExperienceLevel: m.setup.ExperienceLevel,
		Difficulty:      m.setup.Difficulty,
		FocusAreas:      m.setup.FocusAreas,
	}
}

// generate runs outside the lock. It uses a background context because
// navigating away abandons rather than cancels in-flight work; the attempt
// counter makes a late result land harmlessly.
func (m *Machine) generate(attempt uint64, req gateway.GenerateQuestionsRequest) {
	questions, err := m.gw.GenerateQuestions(context.Background(), req)
	m.finishGeneration(attempt, questions, err)
}

func (m *Machine) finishGeneration(attempt uint64, questions []types.InterviewQuestion, err error) {
	m.mu.Lock()
	if m.closed || m.attempt != attempt || m.state != StateGenerating {
		m.mu.Unlock()
		return
	}
	if err != nil {
		m.state = StateError
		m.failedFrom = StateGenerating
		m.errMsg = gateway.UserMessage(err)
		m.logger.Warn("question generation failed",
			zap.String("session_id", m.id.String()),
			zap.Error(err),
		)
	} else {
		m.state = StateLive
		m.questions = questions
		m.answers = nil
		m.currentIdx = 0
		m.remainingSeconds = m.setup.DurationMinutes * 60
		m.recording = false
		m.startTimerLocked()
	}
	m.touchLocked()
	m.unlockAndNotify()
}

// evaluate runs outside the lock. The attempt counter captured at dispatch
// guards against a late result landing on a machine that has moved on.
func (m *Machine) evaluate(attempt uint64, req gateway.SubmitEvaluationRequest) {
	if !m.enterEvaluating(attempt) {
		return
	}
	report, err := m.evaluator.Run(context.Background(), req)
	m.finishEvaluation(attempt, report, err)
}

func (m *Machine) enterEvaluating(attempt uint64) bool {
	m.mu.Lock()
	if m.closed || m.attempt != attempt || m.state != StateSubmitting {
		m.mu.Unlock()
		return false
	}
	m.state = StateEvaluating
	m.touchLocked()
	m.unlockAndNotify()
	return true
}

func (m *Machine) finishEvaluation(attempt uint64, report *types.EvaluationReport, err error) {
	m.mu.Lock()
	if m.closed || m.attempt != attempt || m.state != StateEvaluating {
		m.mu.Unlock()
		return
	}
	if err != nil {
		m.state = StateError
		m.failedFrom = StateEvaluating
		m.errMsg = gateway.UserMessage(err)
		m.logger.Warn("evaluation failed",
			zap.String("session_id", m.id.String()),
			zap.Error(err),
		)
	} else {
		m.state = StateDone
		m.report = report
		// Session data is cleared once the report lands; only the report
		// survives for the results view.
		m.questions = nil
		m.answers = nil
		m.frozen = nil
		m.recording = false
	}
	m.touchLocked()
	m.unlockAndNotify()
}

func (m *Machine) touchLocked() {
	m.updatedAt = m.nowFn()
}

func (m *Machine) statusLocked() Status {
	return Status{
		ID:               m.id,
		UserID:           m.userID,
		State:            m.state,
		FailedFrom:       m.failedFrom,
		ErrorMessage:     m.errMsg,
		StepIndex:        m.stepIdx,
		StepName:         Steps[m.stepIdx].Name,
		Setup:            m.setup,
		Resume:           m.resume,
		Questions:        append([]types.InterviewQuestion(nil), m.questions...),
		Answers:          append([]types.QuestionAnswer(nil), m.answers...),
		CurrentIndex:     m.currentIdx,
		RemainingSeconds: m.remainingSeconds,
		Recording:        m.recording,
		LastQuestion:     len(m.questions) > 0 && m.currentIdx == len(m.questions)-1,
		Report:           m.report,
		UpdatedAt:        m.updatedAt,
		Closed:           m.closed,
	}
}

// unlockAndNotify publishes the current status to listeners and subscribers.
// The notify mutex is acquired before the state lock is released, so
// deliveries happen in mutation order even when goroutines race.
func (m *Machine) unlockAndNotify() {
	st := m.statusLocked()
	m.notifyMu.Lock()
	m.mu.Unlock()

	for _, fn := range m.listeners {
		fn(st)
	}

	m.subMu.Lock()
	for _, ch := range m.subscribers {
		select {
		case ch <- st:
		default:
		}
	}
	m.subMu.Unlock()
	m.notifyMu.Unlock()
}
