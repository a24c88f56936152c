// Package billing runs the subscription and checkout flows. The payment
// backend owns every billing fact; this package routes users to the right
// flow, caches the subscription read briefly and treats post-checkout
// confirmation as display-only.
package billing

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/jonathan/interview-pilot/internal/gateway"
	"github.com/jonathan/interview-pilot/internal/types"
)

// DefaultCacheTTL bounds how long a subscription read is served from cache.
const DefaultCacheTTL = 30 * time.Second

// Catalog-level flow errors.
var (
	ErrUnknownPlan        = errors.New("unknown plan")
	ErrPlanNotPurchasable = errors.New("plan has no checkout")
)

// AuthRequiredError is returned when a flow needs a signed-in user. It
// carries the login location and the destination to come back to, so the
// caller can resume the purchase after authentication.
type AuthRequiredError struct {
	LoginURL string
	ReturnTo string
}

func (e *AuthRequiredError) Error() string {
	return "authentication required"
}

// AsAuthRequired unwraps err into an AuthRequiredError when it is one.
func AsAuthRequired(err error) (*AuthRequiredError, bool) {
	var authErr *AuthRequiredError
	if errors.As(err, &authErr) {
		return authErr, true
	}
	return nil, false
}

// CheckoutOutcome is the result of starting a purchase: either a hosted
// checkout redirect or a hand-off to sales.
type CheckoutOutcome struct {
	CheckoutURL  string `json:"checkout_url,omitempty"`
	ContactSales bool   `json:"contact_sales,omitempty"`
	ContactURL   string `json:"contact_url,omitempty"`
}

// Config carries the coordinator's fixed settings.
type Config struct {
	LoginURL   string
	ContactURL string
	CacheTTL   time.Duration
}

// Coordinator drives the billing flows against the remote operations.
type Coordinator struct {
	gw     gateway.Service
	plans  *Catalog
	cfg    Config
	logger *zap.Logger

	mu        sync.Mutex
	cached    *types.SubscriptionState
	fetchedAt time.Time
}

// NewCoordinator creates a coordinator. A nil catalog uses the default one.
func NewCoordinator(gw gateway.Service, plans *Catalog, cfg Config, log *zap.Logger) *Coordinator {
	if plans == nil {
		plans = DefaultCatalog()
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = DefaultCacheTTL
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Coordinator{gw: gw, plans: plans, cfg: cfg, logger: log}
}

// Plans returns the offered catalog in display order.
func (c *Coordinator) Plans() *Catalog { return c.plans }

// InitiateCheckout starts the purchase flow for a plan. Unauthenticated
// users get an AuthRequiredError pointing at login with the intended
// destination preserved. Contact-sales plans route to sales and never touch
// the checkout operation.
func (c *Coordinator) InitiateCheckout(ctx context.Context, authenticated bool, returnTo, planID string) (*CheckoutOutcome, error) {
	if !authenticated {
		return nil, &AuthRequiredError{LoginURL: c.cfg.LoginURL, ReturnTo: returnTo}
	}

	plan, ok := c.plans.Lookup(planID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPlan, planID)
	}
	if plan.ContactSales {
		return &CheckoutOutcome{ContactSales: true, ContactURL: c.cfg.ContactURL}, nil
	}
	if !plan.Checkout {
		return nil, fmt.Errorf("%w: %s", ErrPlanNotPurchasable, planID)
	}

	redirect, err := c.gw.CreateCheckoutSession(ctx, planID)
	if err != nil {
		return nil, err
	}
	c.logger.Info("checkout session created",
		zap.String("plan", planID),
		zap.String("checkout_session_id", redirect.SessionID),
	)
	return &CheckoutOutcome{CheckoutURL: redirect.CheckoutURL}, nil
}

// ConfirmReturn handles the arrival back from hosted checkout. The session
// read is display-only and best-effort: on failure the success page renders
// without details. The cached subscription is dropped either way so the next
// read reflects the purchase.
func (c *Coordinator) ConfirmReturn(ctx context.Context, checkoutSessionID string) *types.CheckoutSessionStatus {
	c.invalidate()
	if checkoutSessionID == "" {
		return nil
	}

	status, err := c.gw.GetCheckoutSession(ctx, checkoutSessionID)
	if err != nil {
		c.logger.Warn("checkout session read failed",
			zap.String("checkout_session_id", checkoutSessionID),
			zap.Error(err),
		)
		return nil
	}
	return status
}

// Subscription returns the current subscription, served from a short-lived
// cache. force bypasses the cache.
func (c *Coordinator) Subscription(ctx context.Context, force bool) (*types.SubscriptionState, error) {
	c.mu.Lock()
	if !force && c.cached != nil && time.Since(c.fetchedAt) < c.cfg.CacheTTL {
		sub := c.cached
		c.mu.Unlock()
		return sub, nil
	}
	c.mu.Unlock()

	sub, err := c.gw.GetSubscription(ctx)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.cached = sub
	c.fetchedAt = time.Now()
	c.mu.Unlock()
	return sub, nil
}

// Entitled reports whether the user currently has paid access. Errors read
// as not entitled; surfaces that need the distinction call Subscription.
func (c *Coordinator) Entitled(ctx context.Context) bool {
	sub, err := c.Subscription(ctx, false)
	if err != nil {
		return false
	}
	return sub.Entitled()
}

// Cancel asks the backend to cancel at period end and returns its
// confirmation verbatim. The backend owns the schedule; canceling an
// already-canceled subscription yields the same confirmation again.
func (c *Coordinator) Cancel(ctx context.Context) (*gateway.CancelConfirmation, error) {
	conf, err := c.gw.CancelSubscription(ctx)
	if err != nil {
		return nil, err
	}
	c.invalidate()
	return conf, nil
}

func (c *Coordinator) invalidate() {
	c.mu.Lock()
	c.cached = nil
	c.fetchedAt = time.Time{}
	c.mu.Unlock()
}
