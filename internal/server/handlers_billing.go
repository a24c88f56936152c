package server

import (
	"encoding/json"
	"net/http"

	"github.com/jonathan/interview-pilot/internal/billing"
	"github.com/jonathan/interview-pilot/internal/server/middleware"
	"github.com/jonathan/interview-pilot/internal/types"
)

// CheckoutRequest starts a purchase for a plan. ReturnTo preserves where the
// user should land after authenticating or paying.
type CheckoutRequest struct {
	PlanID   string `json:"plan_id"`
	ReturnTo string `json:"return_to,omitempty"`
}

// SubscriptionResponse pairs the subscription record with the derived
// entitlement so clients do not re-implement the status check.
type SubscriptionResponse struct {
	Subscription *types.SubscriptionState `json:"subscription"`
	Entitled     bool                     `json:"entitled"`
}

// CheckoutConfirmResponse carries the display-only checkout session read.
// The session is null when the backend read failed; entitlement is never
// decided here.
type CheckoutConfirmResponse struct {
	CheckoutSession *types.CheckoutSessionStatus `json:"checkout_session"`
}

func (s *Server) requireBilling(w http.ResponseWriter) bool {
	if s.billing == nil {
		s.errorResponse(w, http.StatusServiceUnavailable, "Billing is not configured")
		return false
	}
	return true
}

// handleListPlans returns the plan catalog in display order
func (s *Server) handleListPlans(w http.ResponseWriter, _ *http.Request) {
	catalog := s.plans
	if catalog == nil && s.billing != nil {
		catalog = s.billing.Plans()
	}
	if catalog == nil {
		catalog = billing.DefaultCatalog()
	}
	s.jsonResponse(w, http.StatusOK, catalog)
}

// handleCheckout starts the purchase flow. Anonymous callers get a 401 with
// the login redirect and their intended destination preserved; enterprise
// plans route to sales.
func (s *Server) handleCheckout(w http.ResponseWriter, r *http.Request) {
	if !s.requireBilling(w) {
		return
	}

	var req CheckoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.PlanID == "" {
		s.errorResponse(w, http.StatusBadRequest, "plan_id is required")
		return
	}

	_, authErr := middleware.GetUserID(r)
	outcome, err := s.billing.InitiateCheckout(r.Context(), authErr == nil, req.ReturnTo, req.PlanID)
	if err != nil {
		s.domainError(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, outcome)
}

// handleCheckoutConfirm reads the checkout session named by the return URL.
// The read is best effort: a failure yields a null session, not an error,
// since the subscription record is the source of truth.
func (s *Server) handleCheckoutConfirm(w http.ResponseWriter, r *http.Request) {
	if !s.requireBilling(w) {
		return
	}

	sessionID := r.URL.Query().Get("session_id")
	status := s.billing.ConfirmReturn(r.Context(), sessionID)
	s.jsonResponse(w, http.StatusOK, CheckoutConfirmResponse{CheckoutSession: status})
}

// handleSubscription returns the cached subscription state. ?refresh=true
// bypasses the cache after flows that change entitlement.
func (s *Server) handleSubscription(w http.ResponseWriter, r *http.Request) {
	if !s.requireBilling(w) {
		return
	}

	force := r.URL.Query().Get("refresh") == "true"
	sub, err := s.billing.Subscription(r.Context(), force)
	if err != nil {
		s.domainError(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, SubscriptionResponse{
		Subscription: sub,
		Entitled:     sub.Entitled(),
	})
}

// handleCancelSubscription requests cancellation and relays the backend's
// confirmation verbatim
func (s *Server) handleCancelSubscription(w http.ResponseWriter, r *http.Request) {
	if !s.requireBilling(w) {
		return
	}

	confirmation, err := s.billing.Cancel(r.Context())
	if err != nil {
		s.domainError(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, confirmation)
}
