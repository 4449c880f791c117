package middleware

import (
	"crypto/rand"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/render"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/shimantoislam/flash-auth/internal/config"
	apierrors "github.com/shimantoislam/flash-auth/internal/errors"
)

// AdminAuth gates the administrative API behind the single operator
// password. A successful login yields a signed session token whose expiry
// plays the role of the original session timeout; the license operations
// themselves never see a session.
type AdminAuth struct {
	passwordHash []byte
	secret       []byte
	ttl          time.Duration
	logger       *slog.Logger
}

// NewAdminAuth builds the gate from configuration. When no token secret is
// configured a random one is generated, which invalidates outstanding
// sessions across restarts.
func NewAdminAuth(cfg config.AdminConfig, logger *slog.Logger) (*AdminAuth, error) {
	secret := []byte(cfg.TokenSecret)
	if len(secret) == 0 {
		secret = make([]byte, 32)
		if _, err := rand.Read(secret); err != nil {
			return nil, fmt.Errorf("generate token secret: %w", err)
		}
	}
	return &AdminAuth{
		passwordHash: []byte(cfg.PasswordHash),
		secret:       secret,
		ttl:          cfg.SessionTTL,
		logger:       logger.With(slog.String("component", "admin_auth")),
	}, nil
}

// Enabled reports whether an operator password is configured at all.
func (a *AdminAuth) Enabled() bool {
	return len(a.passwordHash) > 0
}

// Login checks the operator password and issues a session token.
func (a *AdminAuth) Login(password string) (string, error) {
	if !a.Enabled() {
		return "", fmt.Errorf("admin API disabled: no password configured")
	}
	if err := bcrypt.CompareHashAndPassword(a.passwordHash, []byte(password)); err != nil {
		return "", fmt.Errorf("password mismatch: %w", err)
	}

	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   "admin",
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(a.ttl)),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return "", fmt.Errorf("sign session token: %w", err)
	}
	return token, nil
}

// verify parses and validates a session token.
func (a *AdminAuth) verify(token string) error {
	parsed, err := jwt.ParseWithClaims(token, &jwt.RegisteredClaims{},
		func(t *jwt.Token) (any, error) {
			if t.Method != jwt.SigningMethodHS256 {
				return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
			}
			return a.secret, nil
		})
	if err != nil {
		return err
	}
	if !parsed.Valid {
		return fmt.Errorf("invalid session token")
	}
	return nil
}

// Middleware rejects requests without a valid bearer session token.
func (a *AdminAuth) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !a.Enabled() {
			render.Render(w, r, apierrors.ErrAdminDisabled)
			return
		}

		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			render.Render(w, r, apierrors.ErrUnauthorized)
			return
		}
		if err := a.verify(token); err != nil {
			a.logger.WarnContext(r.Context(), "admin token rejected",
				slog.String("remote_addr", r.RemoteAddr),
				slog.String("error", err.Error()),
			)
			render.Render(w, r, apierrors.ErrSessionInvalid)
			return
		}
		next.ServeHTTP(w, r)
	})
}
