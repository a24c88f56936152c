package dashboard

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jonathan/interview-pilot/internal/gateway"
	"github.com/jonathan/interview-pilot/internal/types"
)

type dashStub struct {
	gateway.Service
	mu           sync.Mutex
	stats        *types.DashboardStats
	statsErr     error
	statsCalls   int
	history      []types.InterviewHistoryEntry
	historyErr   error
	historyCalls int
}

func (s *dashStub) GetDashboardStats(context.Context) (*types.DashboardStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statsCalls++
	return s.stats, s.statsErr
}

func (s *dashStub) GetInterviewHistory(context.Context) ([]types.InterviewHistoryEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.historyCalls++
	return s.history, s.historyErr
}

func (s *dashStub) calls() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.statsCalls, s.historyCalls
}

func sampleStats() *types.DashboardStats {
	return &types.DashboardStats{TotalInterviews: 12, AverageScore: 71.5, BestScore: 94, HoursSpent: 6.5}
}

func sampleHistory() []types.InterviewHistoryEntry {
	return []types.InterviewHistoryEntry{
		{ID: "hist-1", InterviewType: types.InterviewTypeTechnical, OverallScore: 88},
		{ID: "hist-2", InterviewType: types.InterviewTypeBehavioral, OverallScore: 73},
	}
}

func TestReduceCoversEveryFailureCombination(t *testing.T) {
	statsErr := &gateway.RemoteError{Op: "get dashboard stats", Message: "Stats are temporarily unavailable."}
	historyErr := &gateway.RemoteError{Op: "get interview history", Message: "History is temporarily unavailable."}

	cases := []struct {
		name        string
		statsErr    error
		historyErr  error
		wantStats   bool
		wantHistory bool
		wantWarning bool
		wantFailed  bool
	}{
		{name: "both succeed", wantStats: true, wantHistory: true},
		{name: "stats fail", statsErr: statsErr, wantHistory: true, wantWarning: true},
		{name: "history fails", historyErr: historyErr, wantStats: true, wantWarning: true},
		{name: "both fail", statsErr: statsErr, historyErr: historyErr, wantFailed: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var stats *types.DashboardStats
			var history []types.InterviewHistoryEntry
			if tc.statsErr == nil {
				stats = sampleStats()
			}
			if tc.historyErr == nil {
				history = sampleHistory()
			}

			view := Reduce(stats, tc.statsErr, history, tc.historyErr)

			assert.True(t, view.CanStartInterview, "dashboard health never blocks starting an interview")
			assert.Equal(t, tc.wantFailed, view.Failed)

			// A failed half is substituted, never omitted: renderers see
			// zeroed stats and an empty list rather than nils.
			require.NotNil(t, view.Stats)
			require.NotNil(t, view.History)
			if tc.wantStats {
				assert.Equal(t, 12, view.Stats.TotalInterviews)
			} else {
				assert.Equal(t, types.DashboardStats{}, *view.Stats)
			}
			if tc.wantHistory {
				assert.Len(t, view.History, 2)
			} else {
				assert.Empty(t, view.History)
			}

			if tc.wantWarning {
				assert.Equal(t, WarningMessage, view.Warning)
			} else {
				assert.Empty(t, view.Warning, "a full or fully failed load carries no partial-data warning")
			}

			if tc.wantFailed {
				assert.Equal(t, "Stats are temporarily unavailable. History is temporarily unavailable.", view.ErrorMessage)
				assert.Empty(t, view.Warning)
			}
		})
	}
}

func TestLoadRunsBothFetchesEvenWhenOneFails(t *testing.T) {
	stub := &dashStub{
		statsErr: &gateway.RemoteError{Op: "get dashboard stats", Message: "Stats are temporarily unavailable."},
		history:  sampleHistory(),
	}

	view := Load(context.Background(), stub, zap.NewNop())

	statsCalls, historyCalls := stub.calls()
	assert.Equal(t, 1, statsCalls)
	assert.Equal(t, 1, historyCalls, "the history fetch is not skipped or canceled by the stats failure")

	require.NotNil(t, view.Stats)
	assert.Equal(t, types.DashboardStats{}, *view.Stats, "a failed stats fetch yields zeroed stats, not an absent block")
	assert.Len(t, view.History, 2)
	assert.Equal(t, WarningMessage, view.Warning)
	assert.False(t, view.Failed)
}

func TestLoadFullSuccessHasNoWarning(t *testing.T) {
	stub := &dashStub{stats: sampleStats(), history: sampleHistory()}

	view := Load(context.Background(), stub, zap.NewNop())

	require.NotNil(t, view.Stats)
	assert.Len(t, view.History, 2)
	assert.Empty(t, view.Warning)
	assert.True(t, view.CanStartInterview)
}
