package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestRateLimiter_Allow(t *testing.T) {
	limiter := NewRateLimiter(3, 1*time.Second)

	for i := 0; i < 3; i++ {
		if !limiter.Allow("192.168.1.1") {
			t.Errorf("Request %d should be allowed", i+1)
		}
	}

	if limiter.Allow("192.168.1.1") {
		t.Error("4th request should be blocked")
	}

	if !limiter.Allow("192.168.1.2") {
		t.Error("Request from different IP should be allowed")
	}
}

func TestRateLimiter_WindowExpiration(t *testing.T) {
	limiter := NewRateLimiter(2, 500*time.Millisecond)

	limiter.Allow("192.168.1.1")
	limiter.Allow("192.168.1.1")

	if limiter.Allow("192.168.1.1") {
		t.Error("Request should be blocked before window expires")
	}

	time.Sleep(600 * time.Millisecond)

	if !limiter.Allow("192.168.1.1") {
		t.Error("Request should be allowed after window expires")
	}
}

func TestRateLimiter_Cleanup(t *testing.T) {
	limiter := NewRateLimiter(5, 100*time.Millisecond)

	limiter.Allow("192.168.1.1")
	limiter.Allow("192.168.1.2")

	time.Sleep(150 * time.Millisecond)
	limiter.cleanup()

	limiter.mu.Lock()
	remaining := len(limiter.requests)
	limiter.mu.Unlock()

	if remaining != 0 {
		t.Errorf("Expected 0 IPs after cleanup, got %d", remaining)
	}
}

func TestRateLimitMiddleware_KeysByHost(t *testing.T) {
	limiter := NewRateLimiter(1, 1*time.Second)
	handler := RateLimitMiddleware(limiter)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	// Same host on different ephemeral ports shares one budget.
	first := httptest.NewRequest(http.MethodGet, "/", nil)
	first.RemoteAddr = "10.0.0.1:50001"
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, first)
	if rec.Code != http.StatusOK {
		t.Fatalf("first request should pass, got %d", rec.Code)
	}

	second := httptest.NewRequest(http.MethodGet, "/", nil)
	second.RemoteAddr = "10.0.0.1:50002"
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, second)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second request should be limited, got %d", rec.Code)
	}
}

func TestRateLimiter_MultipleIPs(t *testing.T) {
	limiter := NewRateLimiter(2, 1*time.Second)

	limiter.Allow("192.168.1.1")
	limiter.Allow("192.168.1.1")

	if limiter.Allow("192.168.1.1") {
		t.Error("IP 1 should be blocked")
	}

	if !limiter.Allow("192.168.1.2") {
		t.Error("IP 2 should be allowed")
	}
}
