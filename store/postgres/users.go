package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/MrEthical07/clinicauth"
	"github.com/MrEthical07/clinicauth/permission"
)

const userColumns = `id, email, username, password_hash, first_name, last_name, phone,
	role, status, clinic_id, branch_id, email_verified, permissions, custom_role_id,
	refresh_token_hash, reset_token_hash, reset_token_expires, verify_token_hash, verify_token_expires,
	login_attempts, lock_until, last_login, created_by, created_at, updated_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanUser(row scanner) (*clinicauth.UserRecord, error) {
	var (
		u      clinicauth.UserRecord
		role   string
		status string
		perms  []string
	)
	err := row.Scan(
		&u.ID, &u.Email, &u.Username, &u.PasswordHash, &u.FirstName, &u.LastName, &u.Phone,
		&role, &status, &u.ClinicID, &u.BranchID, &u.EmailVerified, &perms, &u.CustomRoleID,
		&u.RefreshTokenHash, &u.ResetTokenHash, &u.ResetTokenExpires, &u.VerifyTokenHash, &u.VerifyTokenExpires,
		&u.LoginAttempts, &u.LockUntil, &u.LastLogin, &u.CreatedBy, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	u.Role = permission.Role(role)
	u.Status = clinicauth.UserStatus(status)
	u.Permissions = toPermissions(perms)
	return &u, nil
}

func (s *Store) CreateUser(ctx context.Context, u *clinicauth.UserRecord) error {
	const q = `INSERT INTO users (` + userColumns + `)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24,$25)`

	_, err := s.pool.Exec(ctx, q,
		u.ID, u.Email, u.Username, u.PasswordHash, u.FirstName, u.LastName, u.Phone,
		string(u.Role), string(u.Status), u.ClinicID, u.BranchID, u.EmailVerified, fromPermissions(u.Permissions), u.CustomRoleID,
		u.RefreshTokenHash, u.ResetTokenHash, u.ResetTokenExpires, u.VerifyTokenHash, u.VerifyTokenExpires,
		u.LoginAttempts, u.LockUntil, u.LastLogin, u.CreatedBy, u.CreatedAt, u.UpdatedAt,
	)
	return mapError(err, clinicauth.ErrUserNotFound)
}

func (s *Store) getUserBy(ctx context.Context, column, value string) (*clinicauth.UserRecord, error) {
	q := `SELECT ` + userColumns + ` FROM users WHERE ` + column + ` = $1`
	u, err := scanUser(s.pool.QueryRow(ctx, q, value))
	if err != nil {
		return nil, mapError(err, clinicauth.ErrUserNotFound)
	}
	return u, nil
}

func (s *Store) GetUserByID(ctx context.Context, id string) (*clinicauth.UserRecord, error) {
	return s.getUserBy(ctx, "id", id)
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*clinicauth.UserRecord, error) {
	return s.getUserBy(ctx, "email", email)
}

func (s *Store) GetUserByUsername(ctx context.Context, username string) (*clinicauth.UserRecord, error) {
	return s.getUserBy(ctx, "username", username)
}

// updateReturning runs an UPDATE on one user and scans the new row.
func (s *Store) updateReturning(ctx context.Context, set string, args ...any) (*clinicauth.UserRecord, error) {
	q := `UPDATE users SET ` + set + ` WHERE id = $1 RETURNING ` + userColumns
	u, err := scanUser(s.pool.QueryRow(ctx, q, args...))
	if err != nil {
		return nil, mapError(err, clinicauth.ErrUserNotFound)
	}
	return u, nil
}

func (s *Store) UpdateProfile(ctx context.Context, id string, p clinicauth.ProfileUpdate, now time.Time) (*clinicauth.UserRecord, error) {
	return s.updateReturning(ctx, `
	first_name = COALESCE($2, first_name),
	last_name  = COALESCE($3, last_name),
	phone      = COALESCE($4, phone),
	username   = COALESCE($5, username),
	updated_at = $6`,
		id, p.FirstName, p.LastName, p.Phone, p.Username, now)
}

func (s *Store) UpdatePasswordHash(ctx context.Context, id, hash string, now time.Time) error {
	_, err := s.updateReturning(ctx, `password_hash = $2, updated_at = $3`, id, hash, now)
	return err
}

func (s *Store) UpdatePlacement(ctx context.Context, id string, p clinicauth.Placement, now time.Time) (*clinicauth.UserRecord, error) {
	return s.updateReturning(ctx, `
	custom_role_id = CASE
		WHEN clinic_id <> $3 OR $2 = '`+string(permission.SuperAdmin)+`' THEN ''
		ELSE custom_role_id
	END,
	role = $2, clinic_id = $3, branch_id = $4, updated_at = $5`,
		id, string(p.Role), p.ClinicID, p.BranchID, now)
}

func (s *Store) UpdateStatus(ctx context.Context, id string, status clinicauth.UserStatus, now time.Time) (*clinicauth.UserRecord, error) {
	return s.updateReturning(ctx, `
	refresh_token_hash = CASE WHEN $2 = '`+string(clinicauth.StatusActive)+`' THEN refresh_token_hash ELSE '' END,
	status = $2, updated_at = $3`, id, string(status), now)
}

func (s *Store) SetCustomRole(ctx context.Context, id, roleID string, now time.Time) (*clinicauth.UserRecord, error) {
	return s.updateReturning(ctx, `custom_role_id = $2, updated_at = $3`, id, roleID, now)
}

/*
====================================
SECURITY STATE
====================================
*/

// RecordFailedLogin is one statement. The right-hand sides see the row as
// it was before the update, so an expired lock restarts the count at 1 and
// an active lock is carried over unchanged.
func (s *Store) RecordFailedLogin(ctx context.Context, id string, now time.Time, policy clinicauth.LockoutPolicy) (clinicauth.LockoutState, error) {
	const q = `
UPDATE users SET
	login_attempts = CASE
		WHEN lock_until IS NOT NULL AND lock_until <= $2 THEN 1
		ELSE login_attempts + 1
	END,
	lock_until = CASE
		WHEN lock_until IS NOT NULL AND lock_until > $2 THEN lock_until
		WHEN (CASE WHEN lock_until IS NOT NULL AND lock_until <= $2 THEN 1 ELSE login_attempts + 1 END) >= $3 THEN $4
		ELSE NULL
	END
WHERE id = $1
RETURNING login_attempts, lock_until`

	var state clinicauth.LockoutState
	until := now.Add(policy.Duration).UTC()
	err := s.pool.QueryRow(ctx, q, id, now, policy.Threshold, until).Scan(&state.Attempts, &state.LockUntil)
	if err != nil {
		return clinicauth.LockoutState{}, mapError(err, clinicauth.ErrUserNotFound)
	}
	return state, nil
}

func (s *Store) ResetLoginAttempts(ctx context.Context, id string, lastLogin *time.Time) error {
	_, err := s.updateReturning(ctx,
		`login_attempts = 0, lock_until = NULL, last_login = COALESCE($2, last_login)`, id, lastLogin)
	return err
}

func (s *Store) SetRefreshTokenHash(ctx context.Context, id, hash string) error {
	_, err := s.updateReturning(ctx, `refresh_token_hash = $2`, id, hash)
	return err
}

// SwapRefreshTokenHash reports false, without error, when the stored hash
// no longer equals expected.
func (s *Store) SwapRefreshTokenHash(ctx context.Context, id, expected, next string) (bool, error) {
	if expected == "" {
		return false, nil
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE users SET refresh_token_hash = $3 WHERE id = $1 AND refresh_token_hash = $2`,
		id, expected, next)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// secretColumns returns the hash and expiry columns of kind.
func secretColumns(kind clinicauth.SecretTokenKind) (hash, expires string, err error) {
	switch kind {
	case clinicauth.TokenReset:
		return "reset_token_hash", "reset_token_expires", nil
	case clinicauth.TokenVerify:
		return "verify_token_hash", "verify_token_expires", nil
	}
	return "", "", fmt.Errorf("postgres: unknown secret token kind %d", kind)
}

func (s *Store) SetSecretToken(ctx context.Context, id string, kind clinicauth.SecretTokenKind, hash string, expires time.Time) error {
	hcol, ecol, err := secretColumns(kind)
	if err != nil {
		return err
	}
	_, err = s.updateReturning(ctx, hcol+` = $2, `+ecol+` = $3`, id, hash, expires)
	return err
}

// ConsumeSecretToken clears the slot and applies effect in the same
// statement that matches it.
func (s *Store) ConsumeSecretToken(ctx context.Context, kind clinicauth.SecretTokenKind, hash string, now time.Time, effect clinicauth.TokenEffect) (*clinicauth.UserRecord, error) {
	if hash == "" {
		return nil, clinicauth.ErrTokenInvalidOrExpired
	}
	hcol, ecol, err := secretColumns(kind)
	if err != nil {
		return nil, err
	}

	q := `
UPDATE users SET
	` + hcol + ` = '',
	` + ecol + ` = NULL,
	password_hash = CASE WHEN $3::text <> '' THEN $3::text ELSE password_hash END,
	email_verified = email_verified OR $4::boolean,
	refresh_token_hash = CASE WHEN $5::boolean THEN '' ELSE refresh_token_hash END,
	login_attempts = CASE WHEN $5::boolean THEN 0 ELSE login_attempts END,
	lock_until = CASE WHEN $5::boolean THEN NULL ELSE lock_until END,
	updated_at = $2
WHERE ` + hcol + ` = $1 AND ` + ecol + ` > $2
RETURNING ` + userColumns

	u, err := scanUser(s.pool.QueryRow(ctx, q,
		hash, now, effect.PasswordHash, effect.MarkEmailVerified, effect.ClearSecurityState))
	if err != nil {
		return nil, mapError(err, clinicauth.ErrTokenInvalidOrExpired)
	}
	return u, nil
}

func (s *Store) CountUsersWithCustomRole(ctx context.Context, roleID string) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `SELECT count(*) FROM users WHERE custom_role_id = $1`, roleID).Scan(&n)
	return n, err
}

func toPermissions(raw []string) []permission.Permission {
	if len(raw) == 0 {
		return nil
	}
	out := make([]permission.Permission, len(raw))
	for i, p := range raw {
		out[i] = permission.Permission(p)
	}
	return out
}

// fromPermissions never returns nil; the column is NOT NULL.
func fromPermissions(perms []permission.Permission) []string {
	out := make([]string, len(perms))
	for i, p := range perms {
		out[i] = string(p)
	}
	return out
}
