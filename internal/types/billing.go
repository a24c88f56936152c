package types

import "time"

// SubscriptionStatus mirrors the payment processor's subscription lifecycle.
type SubscriptionStatus string

// Subscription statuses the client distinguishes.
const (
	SubscriptionActive   SubscriptionStatus = "active"
	SubscriptionTrialing SubscriptionStatus = "trialing"
	SubscriptionCanceled SubscriptionStatus = "canceled"
	SubscriptionNone     SubscriptionStatus = "none"
)

// SubscriptionState is the read model of the remote subscription record. The
// payment processor is the single source of truth; the client only caches it.
type SubscriptionState struct {
	Plan               string             `json:"plan"`
	Status             SubscriptionStatus `json:"status"`
	CurrentPeriodStart time.Time          `json:"current_period_start,omitempty"`
	CurrentPeriodEnd   time.Time          `json:"current_period_end,omitempty"`
	CancelAt           *time.Time         `json:"cancel_at,omitempty"`
}

// Entitled reports whether the subscription currently grants access.
func (s *SubscriptionState) Entitled() bool {
	if s == nil {
		return false
	}
	return s.Status == SubscriptionActive || s.Status == SubscriptionTrialing
}

// CheckoutSessionStatus is a display-only snapshot of a hosted checkout
// session, read best-effort after returning from the payment processor.
type CheckoutSessionStatus struct {
	ID            string `json:"id"`
	Status        string `json:"status"`
	PlanName      string `json:"plan_name,omitempty"`
	CustomerEmail string `json:"customer_email,omitempty"`
	BillingDate   string `json:"billing_date,omitempty"`
}
