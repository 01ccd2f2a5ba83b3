package postgres

import (
	"context"
	"errors"

	"github.com/MrEthical07/clinicauth"
	"github.com/jackc/pgx/v5"
)

const roleColumns = `id, name, display_name, permissions, is_system, clinic_id, description, created_by, created_at, updated_at`

func scanRole(row scanner) (*clinicauth.RoleRecord, error) {
	var (
		r     clinicauth.RoleRecord
		perms []string
	)
	err := row.Scan(&r.ID, &r.Name, &r.DisplayName, &perms, &r.IsSystem, &r.ClinicID,
		&r.Description, &r.CreatedBy, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, err
	}
	r.Permissions = toPermissions(perms)
	return &r, nil
}

func (s *Store) CountSystemRoles(ctx context.Context) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `SELECT count(*) FROM roles WHERE is_system`).Scan(&n)
	return n, err
}

// CreateRole checks the name against system roles and the roles of the same
// clinic inside one transaction. The unique constraint backs the check for
// concurrent inserts into one clinic.
func (s *Store) CreateRole(ctx context.Context, r *clinicauth.RoleRecord) error {
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		var taken bool
		err := tx.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM roles WHERE name = $2 AND (is_system OR clinic_id = $1))`,
			r.ClinicID, r.Name,
		).Scan(&taken)
		if err != nil {
			return err
		}
		if taken {
			return clinicauth.ErrRoleNameTaken
		}

		_, err = tx.Exec(ctx, `INSERT INTO roles (`+roleColumns+`) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
			r.ID, r.Name, r.DisplayName, fromPermissions(r.Permissions), r.IsSystem, r.ClinicID,
			r.Description, r.CreatedBy, r.CreatedAt, r.UpdatedAt)
		return err
	})
	if errors.Is(err, clinicauth.ErrRoleNameTaken) {
		return err
	}
	return mapError(err, clinicauth.ErrRoleNotFound)
}

func (s *Store) GetRole(ctx context.Context, id string) (*clinicauth.RoleRecord, error) {
	r, err := scanRole(s.pool.QueryRow(ctx, `SELECT `+roleColumns+` FROM roles WHERE id = $1`, id))
	if err != nil {
		return nil, mapError(err, clinicauth.ErrRoleNotFound)
	}
	return r, nil
}

// FindRoleByName prefers a system role over a clinic role of the same name.
func (s *Store) FindRoleByName(ctx context.Context, clinicID, name string) (*clinicauth.RoleRecord, error) {
	const q = `SELECT ` + roleColumns + ` FROM roles
WHERE name = $2 AND (is_system OR clinic_id = $1)
ORDER BY is_system DESC
LIMIT 1`
	r, err := scanRole(s.pool.QueryRow(ctx, q, clinicID, name))
	if err != nil {
		return nil, mapError(err, clinicauth.ErrRoleNotFound)
	}
	return r, nil
}

// ListRoles returns system roles in seeding order, then the roles of
// clinicID by name. An empty clinicID lists system roles only.
func (s *Store) ListRoles(ctx context.Context, clinicID string) ([]clinicauth.RoleRecord, error) {
	const q = `SELECT ` + roleColumns + ` FROM roles
WHERE is_system OR ($1 <> '' AND clinic_id = $1)
ORDER BY is_system DESC, CASE WHEN is_system THEN seq END, name`

	rows, err := s.pool.Query(ctx, q, clinicID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []clinicauth.RoleRecord
	for rows.Next() {
		r, err := scanRole(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

// UpdateRole writes the editable columns only; name, placement, and
// creation metadata never change.
func (s *Store) UpdateRole(ctx context.Context, r *clinicauth.RoleRecord) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE roles SET display_name = $2, permissions = $3, description = $4, updated_at = $5 WHERE id = $1`,
		r.ID, r.DisplayName, fromPermissions(r.Permissions), r.Description, r.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return clinicauth.ErrRoleNotFound
	}
	return nil
}

// DeleteRole deletes only while no user references the role. The outer
// SELECT reads the pre-delete snapshot, so exists tells a missing role apart
// from one that is still assigned.
func (s *Store) DeleteRole(ctx context.Context, id string) error {
	const q = `
WITH del AS (
	DELETE FROM roles
	WHERE id = $1 AND NOT EXISTS (SELECT 1 FROM users WHERE custom_role_id = $1)
	RETURNING id
)
SELECT EXISTS (SELECT 1 FROM del), EXISTS (SELECT 1 FROM roles WHERE id = $1)`

	var deleted, exists bool
	if err := s.pool.QueryRow(ctx, q, id).Scan(&deleted, &exists); err != nil {
		return err
	}
	switch {
	case deleted:
		return nil
	case exists:
		return clinicauth.ErrRoleInUse
	default:
		return clinicauth.ErrRoleNotFound
	}
}
