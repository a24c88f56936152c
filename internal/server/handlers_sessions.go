package server

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jonathan/interview-pilot/internal/server/middleware"
	"github.com/jonathan/interview-pilot/internal/session"
	"github.com/jonathan/interview-pilot/internal/types"
)

// maxResumeUploadBytes bounds resume uploads before multipart parsing.
const maxResumeUploadBytes = 10 << 20

// AdvanceRequest carries the transcript committed for the current question.
// A blank transcript marks the question skipped.
type AdvanceRequest struct {
	Transcript string `json:"transcript"`
}

// NextResponse reports whether the wizard finished alongside the new status.
type NextResponse struct {
	Done    bool           `json:"done"`
	Session session.Status `json:"session"`
}

// SessionListResponse wraps the authenticated user's sessions.
type SessionListResponse struct {
	Sessions []session.Status `json:"sessions"`
}

// ownedSession resolves the {id} path value to a machine owned by the
// requesting user. It writes the error response itself and returns nil when
// the request cannot proceed. Foreign sessions read as not found so session
// IDs leak nothing.
func (s *Server) ownedSession(w http.ResponseWriter, r *http.Request) *session.Machine {
	userID, err := middleware.GetUserID(r)
	if err != nil {
		s.errorResponse(w, http.StatusUnauthorized, "Unauthorized")
		return nil
	}

	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		s.errorResponse(w, http.StatusBadRequest, "Invalid session ID")
		return nil
	}

	m, err := s.registry.Get(r.Context(), id)
	if err != nil {
		s.domainError(w, err)
		return nil
	}
	if m.Owner() != userID {
		s.errorResponse(w, http.StatusNotFound, "Session not found")
		return nil
	}
	return m
}

// handleCreateSession starts a fresh interview session for the user
func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.GetUserID(r)
	if err != nil {
		s.errorResponse(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	m := s.registry.Create(userID)
	s.jsonResponse(w, http.StatusCreated, m.Snapshot())
}

// handleListSessions returns the user's sessions: live ones first, then
// checkpointed ones from earlier processes.
func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.GetUserID(r)
	if err != nil {
		s.errorResponse(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	statuses := s.registry.ForUser(userID)
	seen := make(map[uuid.UUID]bool, len(statuses))
	for _, st := range statuses {
		seen[st.ID] = true
	}

	if s.store != nil {
		cps, err := s.store.ListUserCheckpoints(r.Context(), userID)
		if err != nil {
			s.logger.Warn("listing checkpoints failed",
				zap.String("user_id", userID.String()),
				zap.Error(err),
			)
		}
		for _, cp := range cps {
			if seen[cp.ID] {
				continue
			}
			statuses = append(statuses, session.StatusFromCheckpoint(cp))
		}
	}

	s.jsonResponse(w, http.StatusOK, SessionListResponse{Sessions: statuses})
}

// handleGetSession returns the current session snapshot
func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	m := s.ownedSession(w, r)
	if m == nil {
		return
	}
	s.jsonResponse(w, http.StatusOK, m.Snapshot())
}

// handleAbandonSession abandons the session and deletes its checkpoint
func (s *Server) handleAbandonSession(w http.ResponseWriter, r *http.Request) {
	m := s.ownedSession(w, r)
	if m == nil {
		return
	}

	if err := s.registry.Remove(r.Context(), m.ID()); err != nil {
		s.domainError(w, err)
		return
	}
	if s.hub != nil {
		s.hub.Release(m.ID())
	}
	s.jsonResponse(w, http.StatusOK, map[string]string{"message": "Session abandoned"})
}

// handleUpdateSetup replaces the wizard's setup record
func (s *Server) handleUpdateSetup(w http.ResponseWriter, r *http.Request) {
	m := s.ownedSession(w, r)
	if m == nil {
		return
	}

	var setup types.SetupState
	if err := json.NewDecoder(r.Body).Decode(&setup); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := m.SetSetup(setup); err != nil {
		s.domainError(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, m.Snapshot())
}

// handleUploadResume parses an uploaded resume through the remote service
// and attaches the result to the session.
func (s *Server) handleUploadResume(w http.ResponseWriter, r *http.Request) {
	m := s.ownedSession(w, r)
	if m == nil {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxResumeUploadBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		s.errorResponse(w, http.StatusBadRequest, "A resume file upload is required")
		return
	}
	defer file.Close()

	parsed, err := s.gw.ParseResume(r.Context(), file, header.Filename)
	if err != nil {
		s.domainError(w, err)
		return
	}

	if err := m.AttachResume(parsed); err != nil {
		s.domainError(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, m.Snapshot())
}

// handleRemoveResume detaches the resume from the session
func (s *Server) handleRemoveResume(w http.ResponseWriter, r *http.Request) {
	m := s.ownedSession(w, r)
	if m == nil {
		return
	}

	if err := m.AttachResume(nil); err != nil {
		s.domainError(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, m.Snapshot())
}

// handleNextStep validates the current wizard step and advances past it
func (s *Server) handleNextStep(w http.ResponseWriter, r *http.Request) {
	m := s.ownedSession(w, r)
	if m == nil {
		return
	}

	done, err := m.Next()
	if err != nil {
		s.domainError(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, NextResponse{Done: done, Session: m.Snapshot()})
}

// handleBackStep moves the wizard one step back without validating
func (s *Server) handleBackStep(w http.ResponseWriter, r *http.Request) {
	m := s.ownedSession(w, r)
	if m == nil {
		return
	}

	if err := m.Back(); err != nil {
		s.domainError(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, m.Snapshot())
}

// handleGenerate validates the full setup and starts question generation
func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	m := s.ownedSession(w, r)
	if m == nil {
		return
	}

	if err := m.Generate(); err != nil {
		s.domainError(w, err)
		return
	}
	s.jsonResponse(w, http.StatusAccepted, m.Snapshot())
}

// handleToggleRecording flips the recording flag for the live session
func (s *Server) handleToggleRecording(w http.ResponseWriter, r *http.Request) {
	m := s.ownedSession(w, r)
	if m == nil {
		return
	}

	recording, err := m.ToggleRecording()
	if err != nil {
		s.domainError(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, map[string]bool{"recording": recording})
}

// handleAdvance commits the current question's transcript and moves on.
// Finishing the last question submits the session for evaluation.
func (s *Server) handleAdvance(w http.ResponseWriter, r *http.Request) {
	m := s.ownedSession(w, r)
	if m == nil {
		return
	}

	var req AdvanceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := m.Advance(req.Transcript); err != nil {
		s.domainError(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, m.Snapshot())
}

// handleRetry re-runs the step a failed session came from
func (s *Server) handleRetry(w http.ResponseWriter, r *http.Request) {
	m := s.ownedSession(w, r)
	if m == nil {
		return
	}

	if err := m.Retry(); err != nil {
		s.domainError(w, err)
		return
	}
	s.jsonResponse(w, http.StatusAccepted, m.Snapshot())
}

// handleSessionEvents streams session status snapshots over SSE until the
// session completes or the client disconnects.
func (s *Server) handleSessionEvents(w http.ResponseWriter, r *http.Request) {
	m := s.ownedSession(w, r)
	if m == nil {
		return
	}

	sse, err := NewSSEWriter(w)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, err.Error())
		return
	}

	updates, cancel := m.Subscribe()
	defer cancel()

	initial := m.Snapshot()
	if err := sse.WriteEvent("status", initial); err != nil {
		return
	}
	if initial.State == session.StateDone || initial.Closed {
		return
	}

	for {
		select {
		case <-r.Context().Done():
			return
		case st := <-updates:
			if err := sse.WriteEvent("status", st); err != nil {
				return
			}
			if st.State == session.StateDone || st.Closed {
				return
			}
		}
	}
}

// handleEvaluationProgress streams the synthetic evaluation progress for the
// session over SSE. The stream stays open across a failure so a retry's
// progress arrives on the same connection.
func (s *Server) handleEvaluationProgress(w http.ResponseWriter, r *http.Request) {
	m := s.ownedSession(w, r)
	if m == nil {
		return
	}
	if s.hub == nil {
		s.errorResponse(w, http.StatusNotFound, "Evaluation progress is not enabled")
		return
	}

	tracker := s.hub.Tracker(m.ID())
	sse, err := NewSSEWriter(w)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, err.Error())
		return
	}

	updates, cancel := tracker.Subscribe()
	defer cancel()

	if err := sse.WriteEvent("progress", tracker.Progress()); err != nil {
		return
	}

	for {
		select {
		case <-r.Context().Done():
			return
		case upd := <-updates:
			if err := sse.WriteEvent("progress", upd); err != nil {
				return
			}
			if upd.Done {
				return
			}
		}
	}
}
