// Package internal contains helpers private to clinicauth: secret token
// generation and digest comparison.
//
// # Sub-packages
//
//   - httpx: JSON envelope writing and request decoding
//   - rate: fixed-window limiters (go-cache and Redis backends)
//   - server: YAML/env config, zap logger, SMTP notifier, and process wiring
//   - security: effective security posture report
//
// # What this package must NOT do
//
//   - Export types that appear in the public clinicauth API.
//   - Log or persist raw tokens.
package internal
