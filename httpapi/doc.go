// Package httpapi is the REST surface of clinicauth: a chi router that maps
// JSON requests onto Engine operations and renders results through the
// shared envelope.
//
// Route guards come from the middleware package. Handlers decode, call one
// Engine method and write the result; business rules stay in the engine.
//
// What this package must NOT do:
//   - Serialize password, refresh, reset or verify hashes.
//   - Return raw secret tokens unless Options.ExposeTokens is set.
//   - Reveal whether an email exists on forgot-password or resend-verification.
package httpapi
