// Package permission holds the fixed permission vocabulary, the five system
// roles, and the default role-to-permission table used by clinicauth
// authorization checks.
//
// # Representation
//
// Every [Permission] in the vocabulary owns one bit in a frozen 64-bit
// [Registry]. A [Set] is a [Mask64] drawn from that registry. The highest bit
// is reserved as a root bit: a set carrying it answers true for every
// permission and is only ever produced for SUPER_ADMIN.
//
// # Roles
//
// [Role] is a single tagged value, never a set. Its [Role.Level] orders the
// hierarchy used for delegation (SUPER_ADMIN 5 down to STAFF 1).
// Clinic-defined custom roles are plain permission sets stored by the engine;
// they never change a user's [Role].
//
// # What this package must NOT do
//
//   - Access Redis, databases, or the network.
//   - Import clinicauth, jwt, or middleware.
//   - Grow the vocabulary at runtime.
package permission
