// Package license implements the device-authorization core of the flash-auth
// service: issued license keys, the devices bound to them, and the decision
// procedure that accepts or rejects a device presenting a key.
//
// # Components
//
//   - Store: durable key -> Record mapping backed by a JSON snapshot file,
//     with all mutations serialized and persisted atomically
//   - Engine: the verify/create/list/revoke operations, expressed purely
//     in terms of the Store
//   - Clock: injectable time source so expiry checks and device timestamps
//     are deterministic under test
//
// # Verification Flow
//
// A verification request carries a license key plus a device fingerprint
// (hardware id and network address). The decision procedure, executed as a
// single atomic mutation:
//
//  1. Unknown key                                  -> DecisionInvalidKey
//  2. Expiry date strictly in the past             -> DecisionExpired
//  3. Fingerprint matches an existing binding
//     (hwid OR address equality)                   -> DecisionAlreadyRegistered
//  4. Device list already at the record's limit    -> DecisionDeviceLimitReached
//  5. Otherwise a new binding is appended          -> DecisionRegistered
//
// Steps 3 and 5 persist before returning; a decision that could not be made
// durable is reported as an error, never as success.
//
// # Persistence
//
// The whole mapping is serialized to a single JSON document after every
// mutation, written to a temporary file and renamed into place so that a
// crash mid-write can never leave a truncated store. A missing or corrupt
// snapshot at startup is replaced with an empty one rather than treated as
// fatal.
package license
