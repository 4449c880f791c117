package license

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/google/uuid"
)

// Engine implements the device-authorization decision procedure and the
// administrative operations, expressed purely in terms of the Store. It
// holds no state of its own.
type Engine struct {
	store  *Store
	clock  Clock
	logger *slog.Logger
}

// NewEngine wires an engine to its store. A nil clock defaults to the system
// clock, a nil logger to slog.Default.
func NewEngine(store *Store, clock Clock, logger *slog.Logger) *Engine {
	if clock == nil {
		clock = SystemClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		store:  store,
		clock:  clock,
		logger: logger.With(slog.String("component", "license_engine")),
	}
}

// Summary is a Record augmented with the days remaining until expiry,
// derived at call time and clamped to zero once expired.
type Summary struct {
	*Record
	RemainingDays int `json:"remaining_days"`
}

// Create validates the arguments, generates a fresh random key and inserts
// the new record with an empty device list. Returns an InvalidInputError
// for malformed arguments; no record is created in that case.
func (e *Engine) Create(ctx context.Context, username, expiry string, deviceLimit int) (string, error) {
	if strings.TrimSpace(username) == "" {
		return "", &InvalidInputError{Field: "username", Reason: "must not be empty"}
	}
	if deviceLimit < 1 {
		return "", &InvalidInputError{Field: "device_limit", Reason: "must be a positive integer"}
	}
	expiryDate, err := ParseDate(expiry)
	if err != nil {
		return "", &InvalidInputError{Field: "expiry", Reason: "must be a date in YYYY-MM-DD form"}
	}

	key := uuid.New().String()
	rec := &Record{
		Username:    username,
		Expiry:      expiryDate,
		DeviceLimit: deviceLimit,
		Devices:     []DeviceBinding{},
		CreatedAt:   e.clock.Now(),
	}
	if err := e.store.Insert(key, rec); err != nil {
		return "", err
	}

	e.logger.InfoContext(ctx, "license created",
		slog.String("key", key),
		slog.String("username", username),
		slog.String("expiry", expiryDate.String()),
		slog.Int("device_limit", deviceLimit),
	)
	return key, nil
}

// Revoke hard-deletes the record for key. Idempotent: revoking an absent
// key is not an error.
func (e *Engine) Revoke(ctx context.Context, key string) error {
	if err := e.store.Delete(key); err != nil {
		return err
	}
	e.logger.InfoContext(ctx, "license revoked", slog.String("key", key))
	return nil
}

// List returns every record with its derived remaining days.
func (e *Engine) List(ctx context.Context) []Summary {
	today := DateOf(e.clock.Now())
	records := e.store.List()
	out := make([]Summary, 0, len(records))
	for _, rec := range records {
		remaining := today.DaysUntil(rec.Expiry)
		if remaining < 0 {
			remaining = 0
		}
		out = append(out, Summary{Record: rec, RemainingDays: remaining})
	}
	return out
}

// Get returns a single record with its derived remaining days.
func (e *Engine) Get(ctx context.Context, key string) (*Summary, bool) {
	rec, ok := e.store.Get(key)
	if !ok {
		return nil, false
	}
	remaining := DateOf(e.clock.Now()).DaysUntil(rec.Expiry)
	if remaining < 0 {
		remaining = 0
	}
	return &Summary{Record: rec, RemainingDays: remaining}, true
}

// Verify runs the decision procedure for one device presenting a key. The
// whole sequence executes as a single atomic mutation, so two racing
// verifications for the last free slot can never both append. The returned
// error is non-nil only when the decision could not be made durable; the
// Decision is meaningless in that case.
func (e *Engine) Verify(ctx context.Context, key, hwid, address string) (Decision, error) {
	now := e.clock.Now()
	today := DateOf(now)

	decision := DecisionInvalidKey
	err := e.store.Mutate(key, func(rec *Record) (bool, error) {
		if rec.Expiry.Before(today) {
			decision = DecisionExpired
			return false, nil
		}
		for i := range rec.Devices {
			b := &rec.Devices[i]
			if !b.Matches(hwid, address) {
				continue
			}
			b.LastSeen = now
			// The hardware id is the identity signal; when it
			// matched, the address is treated as transient and
			// refreshed so a later device reusing the old address
			// is not falsely recognized. An address-only match
			// leaves the stored hwid untouched.
			if b.HWID == hwid {
				b.Address = address
			}
			decision = DecisionAlreadyRegistered
			return true, nil
		}
		if len(rec.Devices) >= rec.DeviceLimit {
			decision = DecisionDeviceLimitReached
			return false, nil
		}
		rec.Devices = append(rec.Devices, DeviceBinding{
			HWID:      hwid,
			Address:   address,
			FirstSeen: now,
			LastSeen:  now,
		})
		rec.Active = true
		decision = DecisionRegistered
		return true, nil
	})
	if errors.Is(err, ErrNotFound) {
		err = nil
	}
	if err != nil {
		e.logger.ErrorContext(ctx, "verification not durable",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
		return decision, err
	}

	e.logger.DebugContext(ctx, "device verified",
		slog.String("key", key),
		slog.String("hwid", hwid),
		slog.String("decision", decision.String()),
	)
	return decision, nil
}
