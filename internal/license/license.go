package license

import "time"

// DeviceBinding records that a specific hardware/address pair has been
// accepted under a license. Bindings are append-only: they are created by a
// successful first-time verification and removed only when the owning record
// is revoked.
type DeviceBinding struct {
	HWID      string    `json:"hwid"`
	Address   string    `json:"ip"`
	FirstSeen time.Time `json:"first_seen"`
	LastSeen  time.Time `json:"last_seen"`
}

// Matches reports whether the given fingerprint is recognized by this
// binding. Either signal alone counts: equal hardware id or equal address.
func (b *DeviceBinding) Matches(hwid, address string) bool {
	return b.HWID == hwid || b.Address == address
}

// Record is one issued license key and everything bound to it. The key
// itself is the snapshot map key; it is filled in on reads for convenience
// and excluded from the serialized record body.
type Record struct {
	Key         string          `json:"-"`
	Username    string          `json:"username"`
	Expiry      Date            `json:"expiry"`
	DeviceLimit int             `json:"device_limit"`
	Devices     []DeviceBinding `json:"devices"`
	CreatedAt   time.Time       `json:"created_at"`
	Active      bool            `json:"active"`
}

// Clone returns a deep copy so callers outside the store lock can never
// alias the live device slice.
func (r *Record) Clone() *Record {
	cp := *r
	cp.Devices = make([]DeviceBinding, len(r.Devices))
	copy(cp.Devices, r.Devices)
	return &cp
}

// Decision is the outcome category of a verification attempt. These are
// ordinary values, not errors: every well-formed request gets exactly one.
type Decision int

const (
	// DecisionInvalidKey means no record exists for the presented key.
	DecisionInvalidKey Decision = iota
	// DecisionExpired means the license's expiry date is strictly in the
	// past. Already-bound devices get this too once the license is over.
	DecisionExpired
	// DecisionDeviceLimitReached means the device was not recognized and
	// the record is at capacity.
	DecisionDeviceLimitReached
	// DecisionRegistered means a new device binding was created.
	DecisionRegistered
	// DecisionAlreadyRegistered means an existing binding matched and its
	// last-seen timestamp was refreshed.
	DecisionAlreadyRegistered
)

// Granted reports whether the decision authorizes the device.
func (d Decision) Granted() bool {
	return d == DecisionRegistered || d == DecisionAlreadyRegistered
}

func (d Decision) String() string {
	switch d {
	case DecisionInvalidKey:
		return "invalid_key"
	case DecisionExpired:
		return "expired"
	case DecisionDeviceLimitReached:
		return "device_limit_reached"
	case DecisionRegistered:
		return "registered"
	case DecisionAlreadyRegistered:
		return "already_registered"
	default:
		return "unknown"
	}
}
