package billing

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jonathan/interview-pilot/internal/gateway"
	"github.com/jonathan/interview-pilot/internal/types"
)

type billStub struct {
	gateway.Service
	mu            sync.Mutex
	checkoutCalls int
	checkoutPlan  string
	checkoutErr   error
	subscription  *types.SubscriptionState
	subCalls      int
	subErr        error
	sessionStatus *types.CheckoutSessionStatus
	sessionErr    error
	cancelResult  *gateway.CancelConfirmation
	cancelCalls   int
	cancelErr     error
}

func (s *billStub) CreateCheckoutSession(_ context.Context, plan string) (*gateway.CheckoutRedirect, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checkoutCalls++
	s.checkoutPlan = plan
	if s.checkoutErr != nil {
		return nil, s.checkoutErr
	}
	return &gateway.CheckoutRedirect{CheckoutURL: "https://pay.example.com/cs_123", SessionID: "cs_123"}, nil
}

func (s *billStub) GetSubscription(context.Context) (*types.SubscriptionState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subCalls++
	if s.subErr != nil {
		return nil, s.subErr
	}
	return s.subscription, nil
}

func (s *billStub) GetCheckoutSession(_ context.Context, id string) (*types.CheckoutSessionStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sessionErr != nil {
		return nil, s.sessionErr
	}
	return s.sessionStatus, nil
}

func (s *billStub) CancelSubscription(context.Context) (*gateway.CancelConfirmation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelCalls++
	if s.cancelErr != nil {
		return nil, s.cancelErr
	}
	return s.cancelResult, nil
}

func (s *billStub) checkouts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.checkoutCalls
}

func (s *billStub) subscriptionCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.subCalls
}

func newTestCoordinator(stub *billStub) *Coordinator {
	cfg := Config{LoginURL: "/login", ContactURL: "mailto:sales@interviewpilot.app"}
	return NewCoordinator(stub, DefaultCatalog(), cfg, zap.NewNop())
}

func TestInitiateCheckoutRequiresAuthentication(t *testing.T) {
	stub := &billStub{}
	coord := newTestCoordinator(stub)

	_, err := coord.InitiateCheckout(context.Background(), false, "/pricing", "pro")

	var authErr *AuthRequiredError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, "/login", authErr.LoginURL)
	assert.Equal(t, "/pricing", authErr.ReturnTo, "the intended destination survives the login round trip")
	assert.Equal(t, 0, stub.checkouts(), "no checkout session exists for an anonymous user")
}

func TestEnterpriseRoutesToSalesAndNeverCallsCheckout(t *testing.T) {
	stub := &billStub{}
	coord := newTestCoordinator(stub)

	outcome, err := coord.InitiateCheckout(context.Background(), true, "/pricing", "enterprise")
	require.NoError(t, err)
	require.NotNil(t, outcome)
	assert.True(t, outcome.ContactSales)
	assert.Equal(t, "mailto:sales@interviewpilot.app", outcome.ContactURL)
	assert.Empty(t, outcome.CheckoutURL)
	assert.Equal(t, 0, stub.checkouts())
}

func TestFreePlanIsNotPurchasable(t *testing.T) {
	stub := &billStub{}
	coord := newTestCoordinator(stub)

	_, err := coord.InitiateCheckout(context.Background(), true, "/pricing", "free")
	assert.ErrorIs(t, err, ErrPlanNotPurchasable)
	assert.Equal(t, 0, stub.checkouts())
}

func TestUnknownPlanIsRejected(t *testing.T) {
	stub := &billStub{}
	coord := newTestCoordinator(stub)

	_, err := coord.InitiateCheckout(context.Background(), true, "/pricing", "platinum")
	assert.ErrorIs(t, err, ErrUnknownPlan)
	assert.Equal(t, 0, stub.checkouts())
}

func TestProPlanRedirectsToHostedCheckout(t *testing.T) {
	stub := &billStub{}
	coord := newTestCoordinator(stub)

	outcome, err := coord.InitiateCheckout(context.Background(), true, "/pricing", "pro")
	require.NoError(t, err)
	assert.Equal(t, "https://pay.example.com/cs_123", outcome.CheckoutURL)
	assert.False(t, outcome.ContactSales)
	assert.Equal(t, "pro", stub.checkoutPlan)
}

func TestCheckoutFailureSurfacesTheServiceMessage(t *testing.T) {
	stub := &billStub{checkoutErr: &gateway.RemoteError{Op: "create checkout session", Message: "Billing is temporarily unavailable."}}
	coord := newTestCoordinator(stub)

	_, err := coord.InitiateCheckout(context.Background(), true, "/pricing", "pro")
	require.Error(t, err)
	assert.Equal(t, "Billing is temporarily unavailable.", gateway.UserMessage(err))
}

func TestSubscriptionIsCachedWithinTTL(t *testing.T) {
	stub := &billStub{subscription: &types.SubscriptionState{Plan: "pro", Status: types.SubscriptionActive}}
	coord := newTestCoordinator(stub)

	first, err := coord.Subscription(context.Background(), false)
	require.NoError(t, err)
	second, err := coord.Subscription(context.Background(), false)
	require.NoError(t, err)
	assert.Same(t, first, second)
	assert.Equal(t, 1, stub.subscriptionCalls())

	_, err = coord.Subscription(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, 2, stub.subscriptionCalls(), "force bypasses the cache")

	assert.True(t, coord.Entitled(context.Background()))
	assert.Equal(t, 2, stub.subscriptionCalls(), "Entitled rides the cache")
}

func TestSubscriptionErrorsAreNotCached(t *testing.T) {
	stub := &billStub{subErr: &gateway.RemoteError{Op: "get subscription", Message: "Subscription lookup failed."}}
	coord := newTestCoordinator(stub)

	_, err := coord.Subscription(context.Background(), false)
	require.Error(t, err)
	assert.False(t, coord.Entitled(context.Background()))

	stub.mu.Lock()
	stub.subErr = nil
	stub.subscription = &types.SubscriptionState{Plan: "pro", Status: types.SubscriptionTrialing}
	stub.mu.Unlock()

	sub, err := coord.Subscription(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, types.SubscriptionTrialing, sub.Status)
}

func TestConfirmReturnIsBestEffort(t *testing.T) {
	stub := &billStub{
		subscription: &types.SubscriptionState{Plan: "free", Status: types.SubscriptionNone},
		sessionErr:   &gateway.RemoteError{Op: "get checkout session", Message: "Session not found."},
	}
	coord := newTestCoordinator(stub)

	// Warm the cache, then confirm: the read fails but nothing errors out,
	// and the stale subscription is dropped.
	_, err := coord.Subscription(context.Background(), false)
	require.NoError(t, err)

	status := coord.ConfirmReturn(context.Background(), "cs_123")
	assert.Nil(t, status)

	stub.mu.Lock()
	stub.subscription = &types.SubscriptionState{Plan: "pro", Status: types.SubscriptionActive}
	stub.mu.Unlock()

	sub, err := coord.Subscription(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, types.SubscriptionActive, sub.Status, "the purchase shows up on the next read")
}

func TestConfirmReturnPassesStatusThrough(t *testing.T) {
	stub := &billStub{sessionStatus: &types.CheckoutSessionStatus{ID: "cs_123", Status: "complete", PlanName: "Pro"}}
	coord := newTestCoordinator(stub)

	status := coord.ConfirmReturn(context.Background(), "cs_123")
	require.NotNil(t, status)
	assert.Equal(t, "complete", status.Status)

	assert.Nil(t, coord.ConfirmReturn(context.Background(), ""), "no session id means nothing to read")
}

func TestCancelIsIdempotentAndInvalidatesTheCache(t *testing.T) {
	cancelAt := time.Date(2026, time.September, 30, 0, 0, 0, 0, time.UTC)
	stub := &billStub{
		subscription: &types.SubscriptionState{Plan: "pro", Status: types.SubscriptionActive},
		cancelResult: &gateway.CancelConfirmation{Message: "Subscription will cancel at period end.", CancelAt: &cancelAt},
	}
	coord := newTestCoordinator(stub)

	_, err := coord.Subscription(context.Background(), false)
	require.NoError(t, err)
	require.Equal(t, 1, stub.subscriptionCalls())

	first, err := coord.Cancel(context.Background())
	require.NoError(t, err)
	second, err := coord.Cancel(context.Background())
	require.NoError(t, err)
	assert.Equal(t, first, second, "a second cancel returns the same confirmation")
	assert.Equal(t, 2, stub.cancelCalls)

	_, err = coord.Subscription(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, 2, stub.subscriptionCalls(), "cancel drops the cached subscription")
}
