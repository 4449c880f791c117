package middleware

import (
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/render"
	"golang.org/x/time/rate"

	"github.com/shimantoislam/flash-auth/internal/config"
	apierrors "github.com/shimantoislam/flash-auth/internal/errors"
)

// clientWindows holds the stacked limiters for one caller address. A request
// passes only when every window allows it, so the minute budget cannot be
// replayed past the hourly or daily ceiling.
type clientWindows struct {
	minute   *rate.Limiter
	hour     *rate.Limiter
	day      *rate.Limiter
	lastSeen time.Time
}

func (c *clientWindows) allow() bool {
	// Reserve from all windows before deciding, then cancel on refusal so
	// a rejected request does not consume budget.
	reservations := []*rate.Reservation{
		c.minute.Reserve(),
		c.hour.Reserve(),
		c.day.Reserve(),
	}
	allowed := true
	for _, res := range reservations {
		if !res.OK() || res.Delay() > 0 {
			allowed = false
		}
	}
	if !allowed {
		for _, res := range reservations {
			res.Cancel()
		}
	}
	return allowed
}

// VerifyRateLimiter rate-limits the verification endpoint per caller
// address. Brute-force key guessing is the threat: keys are bare strings
// with no signature, so the budget stays small (the defaults are 5/minute,
// 50/hour, 200/day).
type VerifyRateLimiter struct {
	cfg    config.VerifyConfig
	logger *slog.Logger

	stop     chan struct{}
	stopOnce sync.Once

	mu      sync.Mutex
	clients map[string]*clientWindows
}

// NewVerifyRateLimiter creates the limiter and starts its pruning loop. The
// caller owns the limiter's lifecycle and must Close it on shutdown.
func NewVerifyRateLimiter(cfg config.VerifyConfig, logger *slog.Logger) *VerifyRateLimiter {
	rl := &VerifyRateLimiter{
		cfg:     cfg,
		logger:  logger.With(slog.String("component", "verify_rate_limiter")),
		stop:    make(chan struct{}),
		clients: make(map[string]*clientWindows),
	}
	go rl.pruneLoop()
	return rl
}

// Close stops the pruning loop. Safe to call more than once.
func (rl *VerifyRateLimiter) Close() {
	rl.stopOnce.Do(func() { close(rl.stop) })
}

// Handler enforces the limit. It keys on the caller's network address, so it
// must come after chi's RealIP middleware.
func (rl *VerifyRateLimiter) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.cfg.RateLimitEnabled {
			next.ServeHTTP(w, r)
			return
		}

		addr := clientAddr(r)
		if !rl.allow(addr) {
			rl.logger.WarnContext(r.Context(), "rate limit exceeded",
				slog.String("remote_addr", addr),
				slog.String("path", r.URL.Path),
			)
			w.Header().Set("Retry-After", "60")
			render.Render(w, r, apierrors.ErrRateLimited)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (rl *VerifyRateLimiter) allow(addr string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	client, ok := rl.clients[addr]
	if !ok {
		client = &clientWindows{
			minute: rate.NewLimiter(rate.Every(time.Minute/time.Duration(rl.cfg.PerMinute)), rl.cfg.PerMinute),
			hour:   rate.NewLimiter(rate.Every(time.Hour/time.Duration(rl.cfg.PerHour)), rl.cfg.PerHour),
			day:    rate.NewLimiter(rate.Every(24*time.Hour/time.Duration(rl.cfg.PerDay)), rl.cfg.PerDay),
		}
		rl.clients[addr] = client
	}
	client.lastSeen = time.Now()
	return client.allow()
}

// pruneLoop drops per-address state idle longer than a day, bounding memory
// against address churn. Runs until Close.
func (rl *VerifyRateLimiter) pruneLoop() {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-rl.stop:
			return
		case <-ticker.C:
			rl.prune(time.Now().Add(-24 * time.Hour))
		}
	}
}

func (rl *VerifyRateLimiter) prune(cutoff time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	for addr, client := range rl.clients {
		if client.lastSeen.Before(cutoff) {
			delete(rl.clients, addr)
		}
	}
}

func clientAddr(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
