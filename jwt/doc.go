// Package jwt issues and verifies the HS256 access and refresh tokens used by
// clinicauth. Access and refresh tokens are signed with different secrets and
// carry different claim sets.
package jwt
