// Package password hashes credentials with argon2id in PHC format and checks
// candidate passwords against a strength [Policy].
//
// Verification is constant time. Hashes carry their own parameters, so a
// cost increase only affects new hashes; [Argon2.NeedsUpgrade] reports the
// stale ones.
package password
