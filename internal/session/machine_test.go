package session

import (
	"context"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jonathan/interview-pilot/internal/gateway"
	"github.com/jonathan/interview-pilot/internal/types"
)

// stubService is an in-memory gateway.Service. Generation and submission are
// scriptable; the rest of the surface is inert.
type stubService struct {
	mu          sync.Mutex
	questions   []types.InterviewQuestion
	genErr      error
	genCalls    int
	genGate     chan struct{}
	report      *types.EvaluationReport
	submitErrs  []error
	submissions []gateway.SubmitEvaluationRequest
}

func (s *stubService) GenerateQuestions(_ context.Context, _ gateway.GenerateQuestionsRequest) ([]types.InterviewQuestion, error) {
	if s.genGate != nil {
		<-s.genGate
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.genCalls++
	if s.genErr != nil {
		return nil, s.genErr
	}
	return append([]types.InterviewQuestion(nil), s.questions...), nil
}

func (s *stubService) SubmitEvaluation(_ context.Context, req gateway.SubmitEvaluationRequest) (*types.EvaluationReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.submissions = append(s.submissions, req)
	if len(s.submitErrs) > 0 {
		err := s.submitErrs[0]
		s.submitErrs = s.submitErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	return s.report, nil
}

func (s *stubService) ParseResume(context.Context, io.Reader, string) (*types.ParsedResume, error) {
	return nil, nil
}

func (s *stubService) GetDashboardStats(context.Context) (*types.DashboardStats, error) {
	return nil, nil
}

func (s *stubService) GetInterviewHistory(context.Context) ([]types.InterviewHistoryEntry, error) {
	return nil, nil
}

func (s *stubService) CreateCheckoutSession(context.Context, string) (*gateway.CheckoutRedirect, error) {
	return nil, nil
}

func (s *stubService) GetSubscription(context.Context) (*types.SubscriptionState, error) {
	return nil, nil
}

func (s *stubService) GetCheckoutSession(context.Context, string) (*types.CheckoutSessionStatus, error) {
	return nil, nil
}

func (s *stubService) CancelSubscription(context.Context) (*gateway.CancelConfirmation, error) {
	return nil, nil
}

func (s *stubService) generateCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.genCalls
}

func (s *stubService) setGenErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.genErr = err
}

func (s *stubService) submissionList() []gateway.SubmitEvaluationRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]gateway.SubmitEvaluationRequest(nil), s.submissions...)
}

func testQuestions(n int) []types.InterviewQuestion {
	qs := make([]types.InterviewQuestion, n)
	for i := range qs {
		qs[i] = types.InterviewQuestion{
			ID:         fmt.Sprintf("q-%d", i+1),
			Type:       types.InterviewTypeTechnical,
			Text:       fmt.Sprintf("Question %d", i+1),
			Difficulty: types.DifficultyMedium,
		}
	}
	return qs
}

func validSetup() types.SetupState {
	return types.SetupState{
		InterviewType:   types.InterviewTypeTechnical,
		JobTitle:        "Backend Engineer",
		Company:         "Acme",
		Difficulty:      types.DifficultyMedium,
		DurationMinutes: 30,
		QuestionCount:   5,
	}
}

func newTestMachine(t *testing.T, stub *stubService) *Machine {
	t.Helper()
	return New(uuid.New(), uuid.New(), stub, nil, zap.NewNop(), WithManualTimer())
}

func startLive(t *testing.T, stub *stubService) *Machine {
	t.Helper()
	m := newTestMachine(t, stub)
	require.NoError(t, m.SetSetup(validSetup()))
	require.NoError(t, m.Generate())
	awaitState(t, m, StateLive)
	return m
}

func awaitState(t *testing.T, m *Machine, states ...State) Status {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	st, err := m.WaitFor(ctx, states...)
	require.NoError(t, err, "waiting for %v, stuck in %s", states, st.State)
	return st
}

func TestWizardValidatesEachStepBeforeAdvancing(t *testing.T) {
	m := newTestMachine(t, &stubService{})

	// Resume upload is optional, so the first step always passes.
	done, err := m.Next()
	require.NoError(t, err)
	assert.False(t, done)
	assert.Equal(t, StepInterviewType, m.Snapshot().StepName)

	_, err = m.Next()
	var stepErr *StepError
	require.ErrorAs(t, err, &stepErr)
	assert.Equal(t, StepInterviewType, stepErr.Step)
	assert.Equal(t, StepInterviewType, m.Snapshot().StepName, "failed validation must not advance")

	setup := types.SetupState{InterviewType: types.InterviewTypeBehavioral}
	require.NoError(t, m.SetSetup(setup))
	done, err = m.Next()
	require.NoError(t, err)
	assert.False(t, done)

	_, err = m.Next()
	require.ErrorAs(t, err, &stepErr)
	assert.Equal(t, StepJobDetails, stepErr.Step)

	setup.JobTitle = "Staff Engineer"
	require.NoError(t, m.SetSetup(setup))
	_, err = m.Next()
	require.NoError(t, err)

	setup.Difficulty = types.DifficultyHard
	require.NoError(t, m.SetSetup(setup))
	_, err = m.Next()
	require.NoError(t, err)

	setup.DurationMinutes = 45
	setup.QuestionCount = 8
	require.NoError(t, m.SetSetup(setup))
	done, err = m.Next()
	require.NoError(t, err)
	assert.True(t, done, "final step reports the wizard complete")
	assert.Equal(t, StateSetup, m.Snapshot().State)
}

func TestWizardBackNeverValidates(t *testing.T) {
	m := newTestMachine(t, &stubService{})

	done, err := m.Next()
	require.NoError(t, err)
	require.False(t, done)

	require.NoError(t, m.Back())
	assert.Equal(t, StepResume, m.Snapshot().StepName)

	// Back at the first step stays put.
	require.NoError(t, m.Back())
	assert.Equal(t, 0, m.Snapshot().StepIndex)
}

func TestGenerateRejectsIncompleteSetup(t *testing.T) {
	m := newTestMachine(t, &stubService{})
	setup := validSetup()
	setup.DurationMinutes = 20
	require.NoError(t, m.SetSetup(setup))

	err := m.Generate()
	var stepErr *StepError
	require.ErrorAs(t, err, &stepErr)
	assert.Equal(t, StepSettings, stepErr.Step)
	assert.Equal(t, "duration_minutes", stepErr.Field)
	assert.Equal(t, StateSetup, m.Snapshot().State)
}

func TestGenerateRunsExactlyOncePerWizardCompletion(t *testing.T) {
	stub := &stubService{questions: testQuestions(5)}
	m := startLive(t, stub)

	assert.Equal(t, 1, stub.generateCalls())

	err := m.Generate()
	var terr *TransitionError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, StateLive, terr.From)
	assert.Equal(t, 1, stub.generateCalls(), "re-entry must not issue a second request")
}

func TestThirtyMinuteSessionStartsAt1800Seconds(t *testing.T) {
	stub := &stubService{questions: testQuestions(3)}
	m := startLive(t, stub)

	st := m.Snapshot()
	assert.Equal(t, 1800, st.RemainingSeconds)
	assert.Equal(t, 0, st.CurrentIndex)
	assert.Len(t, st.Questions, 3)
}

func TestGenerationFailureLandsInErrorAndRetryKeepsSetup(t *testing.T) {
	stub := &stubService{
		questions: testQuestions(4),
		genErr:    &gateway.RemoteError{Op: "generate questions", Message: "Model capacity exceeded."},
	}
	m := newTestMachine(t, stub)
	require.NoError(t, m.SetSetup(validSetup()))
	require.NoError(t, m.Generate())

	st := awaitState(t, m, StateError)
	assert.Equal(t, StateGenerating, st.FailedFrom)
	assert.Equal(t, "Model capacity exceeded.", st.ErrorMessage)
	assert.Empty(t, st.Questions, "all-or-nothing: no partial question set")

	stub.setGenErr(nil)
	require.NoError(t, m.Retry())
	st = awaitState(t, m, StateLive)
	assert.Len(t, st.Questions, 4)
	assert.Equal(t, "Backend Engineer", st.Setup.JobTitle, "wizard answers survive the retry")
	assert.Equal(t, 2, stub.generateCalls())
}

func TestAdvanceCommitsTranscriptsInOrder(t *testing.T) {
	stub := &stubService{questions: testQuestions(3), report: &types.EvaluationReport{OverallScore: 70}}
	m := startLive(t, stub)

	require.NoError(t, m.Advance("first answer"))
	st := m.Snapshot()
	assert.Equal(t, 1, st.CurrentIndex)

	require.NoError(t, m.Advance("   "))
	st = m.Snapshot()
	assert.Equal(t, 2, st.CurrentIndex)
	assert.True(t, st.LastQuestion)

	require.Len(t, st.Answers, 2)
	assert.Equal(t, "first answer", st.Answers[0].Transcript)
	assert.False(t, st.Answers[0].Skipped)
	assert.Empty(t, st.Answers[1].Transcript, "whitespace-only transcript is a skip")
	assert.True(t, st.Answers[1].Skipped)
	assert.Equal(t, "q-2", st.Answers[1].Question.ID)
}

func TestFinishingLastQuestionSubmitsOnce(t *testing.T) {
	stub := &stubService{questions: testQuestions(2), report: &types.EvaluationReport{OverallScore: 88}}
	m := startLive(t, stub)

	require.NoError(t, m.Advance("one"))
	require.NoError(t, m.Advance("two"))

	st := awaitState(t, m, StateDone)
	require.NotNil(t, st.Report)
	assert.InDelta(t, 88, st.Report.OverallScore, 0.001)
	assert.Empty(t, st.Questions, "session data is cleared after the report lands")
	assert.Empty(t, st.Answers)

	subs := stub.submissionList()
	require.Len(t, subs, 1)
	assert.Equal(t, m.ID(), subs[0].SessionID)
	require.Len(t, subs[0].Answers, 2)
	assert.Equal(t, "one", subs[0].Answers[0].Transcript)
}

func TestTimerExpiryMarksRemainingQuestionsSkipped(t *testing.T) {
	stub := &stubService{questions: testQuestions(5), report: &types.EvaluationReport{OverallScore: 55}}
	m := startLive(t, stub)

	require.NoError(t, m.Advance("alpha"))
	require.NoError(t, m.Advance("beta"))
	require.NoError(t, m.Advance("gamma"))

	m.mu.Lock()
	m.remainingSeconds = 2
	m.mu.Unlock()

	assert.False(t, m.tick(), "one second left, still live")
	assert.True(t, m.tick(), "expiry fires the submission transition")

	awaitState(t, m, StateDone)

	subs := stub.submissionList()
	require.Len(t, subs, 1)
	ans := subs[0].Answers
	require.Len(t, ans, 5)
	for i := 0; i < 3; i++ {
		assert.False(t, ans[i].Skipped, "answered question %d", i)
	}
	for i := 3; i < 5; i++ {
		assert.True(t, ans[i].Skipped, "unreached question %d", i)
		assert.Empty(t, ans[i].Transcript)
		assert.Equal(t, fmt.Sprintf("q-%d", i+1), ans[i].Question.ID, "original order is kept")
	}
}

func TestTickAfterLiveIsInert(t *testing.T) {
	stub := &stubService{questions: testQuestions(1), report: &types.EvaluationReport{OverallScore: 40}}
	m := startLive(t, stub)

	require.NoError(t, m.Advance("only answer"))
	awaitState(t, m, StateDone)

	assert.True(t, m.tick())
	assert.Len(t, stub.submissionList(), 1, "a stray tick never submits twice")
}

func TestResubmissionReusesIdenticalPayload(t *testing.T) {
	stub := &stubService{
		questions:  testQuestions(2),
		report:     &types.EvaluationReport{OverallScore: 82},
		submitErrs: []error{&gateway.RemoteError{Op: "submit evaluation", Message: "Scoring backend unavailable."}},
	}
	m := startLive(t, stub)

	require.NoError(t, m.Advance("a"))
	require.NoError(t, m.Advance("b"))

	st := awaitState(t, m, StateError)
	assert.Equal(t, StateEvaluating, st.FailedFrom)
	assert.Equal(t, "Scoring backend unavailable.", st.ErrorMessage)

	require.NoError(t, m.Retry())
	st = awaitState(t, m, StateDone)
	require.NotNil(t, st.Report)
	assert.InDelta(t, 82, st.Report.OverallScore, 0.001)

	subs := stub.submissionList()
	require.Len(t, subs, 2)
	assert.Equal(t, subs[0], subs[1], "retry re-issues the frozen submission byte for byte")
	assert.Equal(t, m.ID(), subs[1].SessionID)
}

func TestLateResultIgnoredAfterAbandon(t *testing.T) {
	gate := make(chan struct{})
	stub := &stubService{questions: testQuestions(2), genGate: gate}
	m := newTestMachine(t, stub)
	require.NoError(t, m.SetSetup(validSetup()))
	require.NoError(t, m.Generate())

	m.Abandon()
	close(gate)

	require.Eventually(t, func() bool { return stub.generateCalls() == 1 }, time.Second, 10*time.Millisecond)
	time.Sleep(20 * time.Millisecond)

	st := m.Snapshot()
	assert.True(t, st.Closed)
	assert.NotEqual(t, StateLive, st.State, "a result for an abandoned session must not land")
	assert.Empty(t, st.Questions)
}

func TestToggleRecordingAlternates(t *testing.T) {
	stub := &stubService{questions: testQuestions(2), report: &types.EvaluationReport{}}
	m := startLive(t, stub)

	on, err := m.ToggleRecording()
	require.NoError(t, err)
	assert.True(t, on)

	off, err := m.ToggleRecording()
	require.NoError(t, err)
	assert.False(t, off)

	_, err = m.ToggleRecording()
	require.NoError(t, err)
	require.NoError(t, m.Advance("spoken answer"))
	assert.False(t, m.Snapshot().Recording, "advancing stops the recorder")
}

func TestMutationsOutsideTheirStateAreRejected(t *testing.T) {
	m := newTestMachine(t, &stubService{})

	var terr *TransitionError
	err := m.Advance("too early")
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, StateSetup, terr.From)
	assert.EqualError(t, err, "cannot advance while session is SETUP")

	_, err = m.ToggleRecording()
	require.ErrorAs(t, err, &terr)

	err = m.Retry()
	require.ErrorAs(t, err, &terr)

	stub := &stubService{questions: testQuestions(2)}
	live := startLive(t, stub)
	err = live.SetSetup(validSetup())
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, StateLive, terr.From)
}

func TestSnapshotCopiesAreIsolated(t *testing.T) {
	stub := &stubService{questions: testQuestions(2), report: &types.EvaluationReport{}}
	m := startLive(t, stub)

	st := m.Snapshot()
	st.Questions[0].Text = "mutated"

	assert.Equal(t, "Question 1", m.Snapshot().Questions[0].Text)
}
