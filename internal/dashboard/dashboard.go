// Package dashboard assembles the dashboard view from two independent
// fetches. Stats and history fail independently; whatever arrived is still
// rendered, and a single warning covers any missing half. Only when both
// fetches fail does the view degrade to an error state. Starting a new
// interview is never blocked by dashboard health.
package dashboard

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/jonathan/interview-pilot/internal/gateway"
	"github.com/jonathan/interview-pilot/internal/types"
)

// WarningMessage is shown when part of the dashboard could not be loaded.
const WarningMessage = "Some data may be unavailable."

// View is the reduced dashboard state handed to renderers.
type View struct {
	Stats             *types.DashboardStats         `json:"stats"`
	History           []types.InterviewHistoryEntry `json:"history"`
	Warning           string                        `json:"warning,omitempty"`
	Failed            bool                          `json:"failed,omitempty"`
	ErrorMessage      string                        `json:"error_message,omitempty"`
	CanStartInterview bool                          `json:"can_start_interview"`
}

// Load fetches stats and history concurrently and reduces the outcome. A
// failure on one branch never cancels the other.
func Load(ctx context.Context, gw gateway.Service, log *zap.Logger) View {
	if log == nil {
		log = zap.NewNop()
	}

	var (
		stats      *types.DashboardStats
		statsErr   error
		history    []types.InterviewHistoryEntry
		historyErr error
	)

	var g errgroup.Group
	g.Go(func() error {
		stats, statsErr = gw.GetDashboardStats(ctx)
		return nil
	})
	g.Go(func() error {
		history, historyErr = gw.GetInterviewHistory(ctx)
		return nil
	})
	_ = g.Wait()

	if statsErr != nil {
		log.Warn("dashboard stats fetch failed", zap.Error(statsErr))
	}
	if historyErr != nil {
		log.Warn("interview history fetch failed", zap.Error(historyErr))
	}
	return Reduce(stats, statsErr, history, historyErr)
}

// Reduce folds the two fetch outcomes into a view. It is a pure function of
// its arguments. A failed half is substituted with zeroed stats or an empty
// history list, so renderers always have something to draw.
func Reduce(stats *types.DashboardStats, statsErr error, history []types.InterviewHistoryEntry, historyErr error) View {
	view := View{
		CanStartInterview: true,
		Stats:             &types.DashboardStats{},
		History:           []types.InterviewHistoryEntry{},
	}

	if statsErr != nil && historyErr != nil {
		view.Failed = true
		view.ErrorMessage = gateway.UserMessage(statsErr)
		if historyMsg := gateway.UserMessage(historyErr); historyMsg != view.ErrorMessage {
			view.ErrorMessage += " " + historyMsg
		}
		return view
	}

	if statsErr == nil && stats != nil {
		view.Stats = stats
	}
	if historyErr == nil && history != nil {
		view.History = history
	}
	if statsErr != nil || historyErr != nil {
		view.Warning = WarningMessage
	}
	return view
}
