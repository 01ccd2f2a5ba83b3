// Package middleware exposes the net/http middleware chain that guards the
// clinic API. Every stage is a func(http.Handler) http.Handler, so it plugs
// into chi or any other router.
//
// # Chain
//
//   - [RequestInfo]: client IP and request id into the context for audit.
//   - [Authenticate]: bearer token to [clinicauth.Principal] via
//     Engine.Authenticate. 401 on a bad token or inactive user, 423 when
//     locked.
//   - [RequireRoles], [RequirePermission]: 403 unless the principal holds
//     one of the roles or the permission.
//   - [RequireClinicScope], [RequireBranchScope]: 403 unless the principal
//     may reach the clinic or branch named by the request.
//   - [RequireOwnership]: 403 unless the resource owner is the principal
//     or the principal is admin tier.
//   - [RateLimit]: 429 once the per-user budget is spent.
//
// Each stage short-circuits. Denials go through the shared JSON error
// writer and never name the rule that failed.
//
// # What this package must NOT do
//
//   - Parse or create JWTs directly (delegates to Engine).
//   - Touch user or role storage.
//   - Implement tenant or delegation rules; those live in authz.
package middleware
