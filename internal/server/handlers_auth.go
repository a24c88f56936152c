package server

import (
	"net/http"

	"github.com/jonathan/interview-pilot/internal/server/middleware"
)

// requireAccounts guards the account endpoints when the server runs without
// a database.
func (s *Server) requireAccounts(w http.ResponseWriter) bool {
	if s.authHandler == nil {
		s.errorResponse(w, http.StatusServiceUnavailable, "User accounts require a database")
		return false
	}
	return true
}

// handleRegister handles user registration requests.
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	if !s.requireAccounts(w) {
		return
	}
	s.authHandler.Register(w, r)
}

// handleLogin handles user login requests.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if !s.requireAccounts(w) {
		return
	}
	s.authHandler.Login(w, r)
}

// handleMe returns the authenticated user's profile.
func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	if !s.requireAccounts(w) {
		return
	}
	userID, err := middleware.GetUserID(r)
	if err != nil {
		s.errorResponse(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	s.authHandler.Me(w, r, userID)
}

// handleUpdatePassword handles password update requests.
func (s *Server) handleUpdatePassword(w http.ResponseWriter, r *http.Request) {
	if !s.requireAccounts(w) {
		return
	}
	userID, err := middleware.GetUserID(r)
	if err != nil {
		s.errorResponse(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	s.authHandler.UpdatePasswordWithUserID(w, r, userID)
}
