package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/lysyi3m/season-rank/app/season"
)

func TestRateLimiterThrottlesSeasonEndpoints(t *testing.T) {
	store := season.NewStore(t.TempDir())
	handler := NewHandler(store, &mockSeasonLister{}, &mockScheduler{})
	engine := NewServer(handler, "", NewRateLimiter(0.001, 2))

	request := func(target, remoteAddr string) int {
		req := httptest.NewRequest(http.MethodGet, target, nil)
		req.RemoteAddr = remoteAddr
		w := httptest.NewRecorder()
		engine.ServeHTTP(w, req)
		return w.Code
	}

	for i := 0; i < 2; i++ {
		if code := request("/api/v0/season/available", "10.0.0.1:1000"); code != http.StatusOK {
			t.Fatalf("Request %d: expected status 200, got %d", i+1, code)
		}
	}
	if code := request("/api/v0/season/available", "10.0.0.1:1000"); code != http.StatusTooManyRequests {
		t.Errorf("Expected status 429, got %d", code)
	}
	if code := request("/api/v0/season/available", "10.0.0.2:1000"); code != http.StatusOK {
		t.Errorf("Expected other client to pass, got %d", code)
	}
	if code := request("/health", "10.0.0.1:1000"); code != http.StatusOK {
		t.Errorf("Expected health to be unthrottled, got %d", code)
	}
}

func TestRateLimiterDropsIdleClients(t *testing.T) {
	rl := NewRateLimiter(1, 1)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }
	rl.lastSweep = now

	rl.allow("a")
	rl.allow("b")
	if len(rl.limiters) != 2 {
		t.Fatalf("Expected 2 tracked clients, got %d", len(rl.limiters))
	}

	now = now.Add(limiterIdleTimeout + time.Second)
	rl.allow("b")

	if _, ok := rl.limiters["a"]; ok {
		t.Error("Expected idle client to be dropped")
	}
	if _, ok := rl.limiters["b"]; !ok {
		t.Error("Expected active client to be kept")
	}
}
