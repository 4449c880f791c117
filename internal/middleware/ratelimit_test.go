package middleware

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shimantoislam/flash-auth/internal/config"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func newTestLimiter(t *testing.T, cfg config.VerifyConfig) *VerifyRateLimiter {
	t.Helper()
	rl := NewVerifyRateLimiter(cfg, slog.Default())
	t.Cleanup(rl.Close)
	return rl
}

func hit(t *testing.T, h http.Handler, remoteAddr string) int {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/verify", nil)
	req.RemoteAddr = remoteAddr
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec.Code
}

func TestVerifyRateLimiterPerMinuteBudget(t *testing.T) {
	rl := newTestLimiter(t, config.VerifyConfig{
		RateLimitEnabled: true,
		PerMinute:        5,
		PerHour:          50,
		PerDay:           200,
	})
	h := rl.Handler(okHandler())

	for i := 0; i < 5; i++ {
		assert.Equal(t, http.StatusOK, hit(t, h, "1.2.3.4:5000"), "request %d", i)
	}
	assert.Equal(t, http.StatusTooManyRequests, hit(t, h, "1.2.3.4:5000"))
}

func TestVerifyRateLimiterIsPerAddress(t *testing.T) {
	rl := newTestLimiter(t, config.VerifyConfig{
		RateLimitEnabled: true,
		PerMinute:        1,
		PerHour:          50,
		PerDay:           200,
	})
	h := rl.Handler(okHandler())

	assert.Equal(t, http.StatusOK, hit(t, h, "1.1.1.1:50000"))
	assert.Equal(t, http.StatusTooManyRequests, hit(t, h, "1.1.1.1:50001"),
		"same address, different port still counts")
	assert.Equal(t, http.StatusOK, hit(t, h, "2.2.2.2:50000"),
		"other addresses keep their own budget")
}

func TestVerifyRateLimiterHourCeiling(t *testing.T) {
	// A minute budget larger than the hour ceiling: the hour window must
	// still cap the burst.
	rl := newTestLimiter(t, config.VerifyConfig{
		RateLimitEnabled: true,
		PerMinute:        10,
		PerHour:          3,
		PerDay:           200,
	})
	h := rl.Handler(okHandler())

	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusOK, hit(t, h, "9.9.9.9:1"), "request %d", i)
	}
	assert.Equal(t, http.StatusTooManyRequests, hit(t, h, "9.9.9.9:1"))
}

func TestVerifyRateLimiterDisabled(t *testing.T) {
	rl := newTestLimiter(t, config.VerifyConfig{RateLimitEnabled: false})
	h := rl.Handler(okHandler())

	for i := 0; i < 20; i++ {
		assert.Equal(t, http.StatusOK, hit(t, h, "1.2.3.4:5000"))
	}
}

func TestVerifyRateLimiterRejectionBody(t *testing.T) {
	rl := newTestLimiter(t, config.VerifyConfig{
		RateLimitEnabled: true,
		PerMinute:        1,
		PerHour:          50,
		PerDay:           200,
	})
	h := rl.Handler(okHandler())

	assert.Equal(t, http.StatusOK, hit(t, h, "3.3.3.3:1"))

	req := httptest.NewRequest(http.MethodPost, "/api/verify", nil)
	req.RemoteAddr = "3.3.3.3:2"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))

	var body struct {
		Status  string `json:"status"`
		Message string `json:"message"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "error", body.Status)
	assert.Equal(t, "Rate limit exceeded", body.Message)
}

func TestVerifyRateLimiterPrune(t *testing.T) {
	rl := newTestLimiter(t, config.VerifyConfig{
		RateLimitEnabled: true,
		PerMinute:        5,
		PerHour:          50,
		PerDay:           200,
	})
	h := rl.Handler(okHandler())

	hit(t, h, "1.1.1.1:1")
	hit(t, h, "2.2.2.2:1")

	// Age one entry past the cutoff; only that one is dropped.
	rl.mu.Lock()
	rl.clients["1.1.1.1"].lastSeen = time.Now().Add(-48 * time.Hour)
	rl.mu.Unlock()

	rl.prune(time.Now().Add(-24 * time.Hour))

	rl.mu.Lock()
	defer rl.mu.Unlock()
	assert.NotContains(t, rl.clients, "1.1.1.1")
	assert.Contains(t, rl.clients, "2.2.2.2")
}

func TestVerifyRateLimiterCloseIsIdempotent(t *testing.T) {
	rl := NewVerifyRateLimiter(config.VerifyConfig{RateLimitEnabled: true, PerMinute: 1, PerHour: 1, PerDay: 1}, slog.Default())
	rl.Close()
	rl.Close()
}
