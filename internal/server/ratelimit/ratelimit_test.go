package ratelimit

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestTokenBucket_Allow(t *testing.T) {
	bucket := newTokenBucket(10, 1.0) // 10 tokens, 1 token per second

	// Should allow 10 requests immediately (burst)
	for i := 0; i < 10; i++ {
		if !bucket.allow() {
			t.Errorf("Expected request %d to be allowed", i+1)
		}
	}

	// 11th request should be denied (no tokens left)
	if bucket.allow() {
		t.Error("Expected 11th request to be denied")
	}
}

func TestTokenBucket_Refill(t *testing.T) {
	bucket := newTokenBucket(10, 1.0) // 1 token per second

	for i := 0; i < 10; i++ {
		bucket.allow()
	}

	// Wait for 1 token to refill
	time.Sleep(1100 * time.Millisecond)

	if !bucket.allow() {
		t.Error("Expected request to be allowed after refill")
	}
	if bucket.allow() {
		t.Error("Expected request to be denied after consuming refilled token")
	}
}

func TestTokenBucket_Status(t *testing.T) {
	bucket := newTokenBucket(10, 1.0)

	for i := 0; i < 5; i++ {
		bucket.allow()
	}

	remaining, resetTime := bucket.status()
	if remaining != 5 {
		t.Errorf("Expected 5 remaining tokens, got %d", remaining)
	}
	if !resetTime.After(time.Now()) {
		t.Error("Expected reset time in the future for a partially drained bucket")
	}
}

func TestMatchEndpoint_HealthIsUnlimited(t *testing.T) {
	config := MatchEndpoint("/health", "GET", DefaultEndpointConfigs())
	if config == nil {
		t.Fatal("Expected health check to match the unlimited special case")
	}
	if config.Limit != 0 {
		t.Errorf("Expected unlimited health endpoint, got limit %d", config.Limit)
	}
}

func TestMatchEndpoint_ExactMatch(t *testing.T) {
	configs := DefaultEndpointConfigs()

	config := MatchEndpoint("/auth/login", "POST", configs)
	if config == nil {
		t.Fatal("Expected /auth/login POST to match")
	}
	if config.Limit != 10 {
		t.Errorf("Expected login limit 10, got %d", config.Limit)
	}
}

func TestMatchEndpoint_SuffixMatchesSessionSubroutes(t *testing.T) {
	configs := DefaultEndpointConfigs()

	config := MatchEndpoint("/sessions/3f2b9a1c/generate", "POST", configs)
	if config == nil {
		t.Fatal("Expected generate subroute to match the suffix pattern")
	}
	if config.Window != time.Hour {
		t.Errorf("Expected hourly window for generate, got %v", config.Window)
	}

	// The same path with a different method falls through to the default.
	if MatchEndpoint("/sessions/3f2b9a1c/generate", "GET", configs) != nil {
		t.Error("Expected GET on a generate path to have no endpoint config")
	}
}

func TestMatchEndpoint_NoMatch(t *testing.T) {
	configs := DefaultEndpointConfigs()

	if MatchEndpoint("/dashboard", "GET", configs) != nil {
		t.Error("Expected dashboard read to fall through to the default limit")
	}
}

func TestLimiter_Disabled(t *testing.T) {
	limiter := NewLimiter(&Config{Enabled: false})
	defer limiter.Stop()

	for i := 0; i < 100; i++ {
		allowed, _ := limiter.Allow("client-1", "/auth/login", "POST")
		if !allowed {
			t.Fatal("Expected all requests to be allowed when disabled")
		}
	}
}

func TestLimiter_EnforcesBurst(t *testing.T) {
	limiter := NewLimiter(&Config{
		Enabled:       true,
		DefaultLimit:  1000,
		DefaultWindow: time.Minute,
		EndpointConfigs: []EndpointConfig{
			{Path: "/auth/login", Method: "POST", Limit: 10, Window: time.Minute, Burst: 3},
		},
	})
	defer limiter.Stop()

	for i := 0; i < 3; i++ {
		allowed, _ := limiter.Allow("client-1", "/auth/login", "POST")
		if !allowed {
			t.Errorf("Expected burst request %d to be allowed", i+1)
		}
	}

	allowed, info := limiter.Allow("client-1", "/auth/login", "POST")
	if allowed {
		t.Error("Expected request beyond burst to be denied")
	}
	if info.Limit != 10 {
		t.Errorf("Expected limit 10 in info, got %d", info.Limit)
	}
	if info.RetryAfter <= 0 {
		t.Error("Expected positive retry-after when denied")
	}
}

func TestLimiter_ClientsAreIndependent(t *testing.T) {
	limiter := NewLimiter(&Config{
		Enabled:       true,
		DefaultLimit:  1000,
		DefaultWindow: time.Minute,
		EndpointConfigs: []EndpointConfig{
			{Path: "/auth/login", Method: "POST", Limit: 5, Window: time.Minute, Burst: 1},
		},
	})
	defer limiter.Stop()

	if allowed, _ := limiter.Allow("client-a", "/auth/login", "POST"); !allowed {
		t.Fatal("Expected client-a first request to be allowed")
	}
	if allowed, _ := limiter.Allow("client-a", "/auth/login", "POST"); allowed {
		t.Fatal("Expected client-a second request to be denied")
	}

	// A different client has its own bucket.
	if allowed, _ := limiter.Allow("client-b", "/auth/login", "POST"); !allowed {
		t.Error("Expected client-b to be unaffected by client-a's bucket")
	}
}

func TestLimiter_WhitelistAndBlacklist(t *testing.T) {
	limiter := NewLimiter(&Config{
		Enabled:       true,
		DefaultLimit:  1,
		DefaultWindow: time.Minute,
		Whitelist:     map[string]bool{"10.0.0.1": true},
		Blacklist:     map[string]bool{"10.0.0.2": true},
	})
	defer limiter.Stop()

	for i := 0; i < 10; i++ {
		if allowed, _ := limiter.Allow("10.0.0.1", "/sessions", "GET"); !allowed {
			t.Fatal("Expected whitelisted client to always be allowed")
		}
	}

	if allowed, _ := limiter.Allow("10.0.0.2", "/sessions", "GET"); allowed {
		t.Error("Expected blacklisted client to be denied")
	}
}

func TestLimiter_ConcurrentAccess(t *testing.T) {
	limiter := NewLimiter(&Config{
		Enabled:       true,
		DefaultLimit:  1000,
		DefaultWindow: time.Minute,
		EndpointConfigs: []EndpointConfig{
			{Path: "/sessions", Method: "POST", Limit: 100, Window: time.Minute, Burst: 50},
		},
	})
	defer limiter.Stop()

	var wg sync.WaitGroup
	var mu sync.Mutex
	allowedCount := 0

	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			clientID := fmt.Sprintf("client-%d", n%4)
			allowed, _ := limiter.Allow(clientID, "/sessions", "POST")
			if allowed {
				mu.Lock()
				allowedCount++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	// 4 clients with burst 50 each; 25 requests per client all fit.
	if allowedCount != 100 {
		t.Errorf("Expected all 100 requests within per-client bursts to pass, got %d", allowedCount)
	}
}
