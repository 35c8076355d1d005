package httpx

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestRateLimiter(t *testing.T) {
	limiter := NewRateLimiter(2, time.Minute)
	handler := Chain(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}), limiter.Middleware())

	do := func(ip string) int {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = ip + ":12345"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	if do("10.0.0.1") != http.StatusOK || do("10.0.0.1") != http.StatusOK {
		t.Fatal("first two requests should pass")
	}
	if do("10.0.0.1") != http.StatusTooManyRequests {
		t.Fatal("third request should be limited")
	}
	// Other clients keep their own window.
	if do("10.0.0.2") != http.StatusOK {
		t.Fatal("different client should pass")
	}
}

func TestRateLimiter_WindowReset(t *testing.T) {
	limiter := NewRateLimiter(1, 10*time.Millisecond)

	if !limiter.allow("k") {
		t.Fatal("first request should pass")
	}
	if limiter.allow("k") {
		t.Fatal("second request should be limited")
	}
	time.Sleep(20 * time.Millisecond)
	if !limiter.allow("k") {
		t.Fatal("request after window reset should pass")
	}
}
