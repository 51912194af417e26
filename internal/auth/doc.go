// Package auth authenticates the two principal kinds dishpatch serves.
//
// # Credential Schemes
//
// Credentials arrive as "<scheme> <payload>" (in the Authorization header for
// request-style calls, or in an authenticate message on a live connection):
//
//   - customer-signed: a TTL-bounded blob issued by the chat platform's
//     mini-app runtime. Verification recomputes HMAC-SHA256 over the
//     canonicalized payload using a secret derived from the bot token, then
//     enforces a 3600-second replay window. Pure; no I/O.
//
//   - staff-bearer: a backend-issued HS256 token carrying staff identity,
//     restaurant and role. After the signature and expiry check, exactly one
//     staff-directory read confirms the record still exists and is active —
//     tokens do not self-certify current employment.
//
// Any other scheme fails with ErrInvalidScheme.
//
// # Principals
//
// Resolution produces a Principal, a closed union of Customer and Staff.
// A Principal is immutable once resolved for a connection; it changes only
// through explicit re-authentication.
package auth
