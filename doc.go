// Package clinicauth is the authentication and authorization core of a
// multi-tenant clinic-management backend: JWT issuance and rotation, account
// lockout, password-reset and email-verification tokens, and a tenant-scoped
// RBAC engine with five system roles plus clinic-defined custom roles.
//
// [Engine] methods are safe to call from multiple goroutines after
// initialization through [Builder.Build].
//
// # Architecture boundaries
//
// clinicauth is the public surface. It exposes [Engine], [Builder], [Config],
// the record types, and the [UserStore] / [RoleStore] boundary that
// persistence backends (store/memory, store/postgres) implement. Pure rules
// live in the permission and authz packages; token signing lives in jwt.
//
// # Token contract
//
// Access tokens are stateless and stay valid until they expire, logout
// included. Only the refresh token is revocable: the user record holds the
// SHA-256 digest of the single live refresh token, and every login, refresh,
// and logout replaces or clears it.
//
// # What this package must NOT do
//
//   - Return raw store or driver errors to callers; everything is mapped onto
//     the sentinels in errors.go.
//   - Log or audit raw passwords, refresh tokens, or reset/verify tokens.
//   - Import httpapi, middleware, or any store implementation.
package clinicauth
