// Package rate provides the per-user request limiter used by the HTTP
// middleware.
//
// # Window semantics
//
// Both backends count fixed windows: the first hit creates the counter with
// the window as its lifetime, later hits increment it, and a request is
// rejected once the count exceeds Limit. The Redis backend uses INCR plus
// EXPIRE on the first hit under the key prefix "rl:" and is shared by every
// instance; the go-cache backend is per process.
//
// # What this package must NOT do
//
//   - Decide what a key means; callers pass user ids or client IPs.
//   - Be imported outside the clinicauth module.
package rate
