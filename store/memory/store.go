// Package memory is a mutex-guarded, process-local implementation of
// clinicauth.UserStore and clinicauth.RoleStore. It backs tests, the load
// test command, and single-instance development servers.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/MrEthical07/clinicauth"
	"github.com/MrEthical07/clinicauth/permission"
)

// Store holds users and roles in maps. Every method copies records in and
// out, so callers never share memory with the store.
type Store struct {
	mu sync.RWMutex

	users      map[string]*clinicauth.UserRecord
	byEmail    map[string]string
	byUsername map[string]string

	roles     map[string]*clinicauth.RoleRecord
	roleOrder []string
}

var (
	_ clinicauth.UserStore = (*Store)(nil)
	_ clinicauth.RoleStore = (*Store)(nil)
)

// New returns an empty store.
func New() *Store {
	return &Store{
		users:      make(map[string]*clinicauth.UserRecord),
		byEmail:    make(map[string]string),
		byUsername: make(map[string]string),
		roles:      make(map[string]*clinicauth.RoleRecord),
	}
}

/*
====================================
USERS
====================================
*/

func (s *Store) CreateUser(_ context.Context, u *clinicauth.UserRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byEmail[u.Email]; ok {
		return clinicauth.ErrDuplicateEmail
	}
	if _, ok := s.byUsername[u.Username]; ok {
		return clinicauth.ErrDuplicateUsername
	}

	s.users[u.ID] = u.Clone()
	s.byEmail[u.Email] = u.ID
	s.byUsername[u.Username] = u.ID
	return nil
}

func (s *Store) GetUserByID(_ context.Context, id string) (*clinicauth.UserRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return nil, clinicauth.ErrUserNotFound
	}
	return u.Clone(), nil
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*clinicauth.UserRecord, error) {
	s.mu.RLock()
	id, ok := s.byEmail[email]
	s.mu.RUnlock()
	if !ok {
		return nil, clinicauth.ErrUserNotFound
	}
	return s.GetUserByID(ctx, id)
}

func (s *Store) GetUserByUsername(ctx context.Context, username string) (*clinicauth.UserRecord, error) {
	s.mu.RLock()
	id, ok := s.byUsername[username]
	s.mu.RUnlock()
	if !ok {
		return nil, clinicauth.ErrUserNotFound
	}
	return s.GetUserByID(ctx, id)
}

func (s *Store) UpdateProfile(_ context.Context, id string, p clinicauth.ProfileUpdate, now time.Time) (*clinicauth.UserRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return nil, clinicauth.ErrUserNotFound
	}

	if p.Username != nil && *p.Username != u.Username {
		if _, taken := s.byUsername[*p.Username]; taken {
			return nil, clinicauth.ErrDuplicateUsername
		}
		delete(s.byUsername, u.Username)
		s.byUsername[*p.Username] = id
		u.Username = *p.Username
	}
	if p.FirstName != nil {
		u.FirstName = *p.FirstName
	}
	if p.LastName != nil {
		u.LastName = *p.LastName
	}
	if p.Phone != nil {
		u.Phone = *p.Phone
	}
	u.UpdatedAt = now
	return u.Clone(), nil
}

func (s *Store) UpdatePasswordHash(_ context.Context, id, hash string, now time.Time) error {
	return s.mutate(id, func(u *clinicauth.UserRecord) {
		u.PasswordHash = hash
		u.UpdatedAt = now
	})
}

func (s *Store) UpdatePlacement(_ context.Context, id string, p clinicauth.Placement, now time.Time) (*clinicauth.UserRecord, error) {
	return s.mutateAndGet(id, func(u *clinicauth.UserRecord) {
		if u.ClinicID != p.ClinicID || p.Role == permission.SuperAdmin {
			u.CustomRoleID = ""
		}
		u.Role = p.Role
		u.ClinicID = p.ClinicID
		u.BranchID = p.BranchID
		u.UpdatedAt = now
	})
}

func (s *Store) UpdateStatus(_ context.Context, id string, status clinicauth.UserStatus, now time.Time) (*clinicauth.UserRecord, error) {
	return s.mutateAndGet(id, func(u *clinicauth.UserRecord) {
		u.Status = status
		if status != clinicauth.StatusActive {
			u.RefreshTokenHash = ""
		}
		u.UpdatedAt = now
	})
}

func (s *Store) SetCustomRole(_ context.Context, id, roleID string, now time.Time) (*clinicauth.UserRecord, error) {
	return s.mutateAndGet(id, func(u *clinicauth.UserRecord) {
		u.CustomRoleID = roleID
		u.UpdatedAt = now
	})
}

/*
====================================
SECURITY STATE
====================================
*/

// RecordFailedLogin applies one failed attempt under the write lock.
func (s *Store) RecordFailedLogin(_ context.Context, id string, now time.Time, policy clinicauth.LockoutPolicy) (clinicauth.LockoutState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return clinicauth.LockoutState{}, clinicauth.ErrUserNotFound
	}

	if u.LockUntil != nil && !u.LockUntil.After(now) {
		u.LoginAttempts = 0
		u.LockUntil = nil
	}
	locked := u.IsLocked(now)
	u.LoginAttempts++
	if !locked && u.LoginAttempts >= policy.Threshold {
		until := now.Add(policy.Duration).UTC()
		u.LockUntil = &until
	}

	state := clinicauth.LockoutState{Attempts: u.LoginAttempts}
	if u.LockUntil != nil {
		until := *u.LockUntil
		state.LockUntil = &until
	}
	return state, nil
}

func (s *Store) ResetLoginAttempts(_ context.Context, id string, lastLogin *time.Time) error {
	return s.mutate(id, func(u *clinicauth.UserRecord) {
		u.LoginAttempts = 0
		u.LockUntil = nil
		if lastLogin != nil {
			t := *lastLogin
			u.LastLogin = &t
		}
	})
}

func (s *Store) SetRefreshTokenHash(_ context.Context, id, hash string) error {
	return s.mutate(id, func(u *clinicauth.UserRecord) {
		u.RefreshTokenHash = hash
	})
}

func (s *Store) SwapRefreshTokenHash(_ context.Context, id, expected, next string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return false, clinicauth.ErrUserNotFound
	}
	if expected == "" || u.RefreshTokenHash != expected {
		return false, nil
	}
	u.RefreshTokenHash = next
	return true, nil
}

func (s *Store) SetSecretToken(_ context.Context, id string, kind clinicauth.SecretTokenKind, hash string, expires time.Time) error {
	return s.mutate(id, func(u *clinicauth.UserRecord) {
		exp := expires
		switch kind {
		case clinicauth.TokenReset:
			u.ResetTokenHash, u.ResetTokenExpires = hash, &exp
		case clinicauth.TokenVerify:
			u.VerifyTokenHash, u.VerifyTokenExpires = hash, &exp
		}
	})
}

func (s *Store) ConsumeSecretToken(_ context.Context, kind clinicauth.SecretTokenKind, hash string, now time.Time, effect clinicauth.TokenEffect) (*clinicauth.UserRecord, error) {
	if hash == "" {
		return nil, clinicauth.ErrTokenInvalidOrExpired
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range s.users {
		slot, expires := secretSlot(u, kind)
		if slot == nil || *slot != hash || *expires == nil || !(*expires).After(now) {
			continue
		}

		*slot, *expires = "", nil
		if effect.PasswordHash != "" {
			u.PasswordHash = effect.PasswordHash
		}
		if effect.MarkEmailVerified {
			u.EmailVerified = true
		}
		if effect.ClearSecurityState {
			u.RefreshTokenHash = ""
			u.LoginAttempts = 0
			u.LockUntil = nil
		}
		u.UpdatedAt = now
		return u.Clone(), nil
	}
	return nil, clinicauth.ErrTokenInvalidOrExpired
}

func secretSlot(u *clinicauth.UserRecord, kind clinicauth.SecretTokenKind) (*string, **time.Time) {
	switch kind {
	case clinicauth.TokenReset:
		return &u.ResetTokenHash, &u.ResetTokenExpires
	case clinicauth.TokenVerify:
		return &u.VerifyTokenHash, &u.VerifyTokenExpires
	}
	return nil, nil
}

func (s *Store) CountUsersWithCustomRole(_ context.Context, roleID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, u := range s.users {
		if u.CustomRoleID == roleID {
			n++
		}
	}
	return n, nil
}

func (s *Store) mutate(id string, fn func(u *clinicauth.UserRecord)) error {
	_, err := s.mutateAndGet(id, fn)
	return err
}

func (s *Store) mutateAndGet(id string, fn func(u *clinicauth.UserRecord)) (*clinicauth.UserRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return nil, clinicauth.ErrUserNotFound
	}
	fn(u)
	return u.Clone(), nil
}

/*
====================================
ROLES
====================================
*/

func (s *Store) CountSystemRoles(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, r := range s.roles {
		if r.IsSystem {
			n++
		}
	}
	return n, nil
}

func (s *Store) CreateRole(_ context.Context, r *clinicauth.RoleRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.findByNameLocked(r.ClinicID, r.Name) != nil {
		return clinicauth.ErrRoleNameTaken
	}
	s.roles[r.ID] = r.Clone()
	s.roleOrder = append(s.roleOrder, r.ID)
	return nil
}

func (s *Store) GetRole(_ context.Context, id string) (*clinicauth.RoleRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.roles[id]
	if !ok {
		return nil, clinicauth.ErrRoleNotFound
	}
	return r.Clone(), nil
}

func (s *Store) FindRoleByName(_ context.Context, clinicID, name string) (*clinicauth.RoleRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if r := s.findByNameLocked(clinicID, name); r != nil {
		return r.Clone(), nil
	}
	return nil, clinicauth.ErrRoleNotFound
}

// findByNameLocked searches system roles and the roles of clinicID.
func (s *Store) findByNameLocked(clinicID, name string) *clinicauth.RoleRecord {
	for _, r := range s.roles {
		if r.Name != name {
			continue
		}
		if r.IsSystem || (clinicID != "" && r.ClinicID == clinicID) {
			return r
		}
	}
	return nil
}

func (s *Store) ListRoles(_ context.Context, clinicID string) ([]clinicauth.RoleRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var system, custom []clinicauth.RoleRecord
	for _, id := range s.roleOrder {
		r, ok := s.roles[id]
		if !ok {
			continue
		}
		switch {
		case r.IsSystem:
			system = append(system, *r.Clone())
		case clinicID != "" && r.ClinicID == clinicID:
			custom = append(custom, *r.Clone())
		}
	}
	sort.SliceStable(custom, func(i, j int) bool { return custom[i].Name < custom[j].Name })
	return append(system, custom...), nil
}

func (s *Store) UpdateRole(_ context.Context, r *clinicauth.RoleRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.roles[r.ID]
	if !ok {
		return clinicauth.ErrRoleNotFound
	}
	next := r.Clone()
	next.Name = cur.Name
	next.IsSystem = cur.IsSystem
	next.ClinicID = cur.ClinicID
	next.CreatedAt = cur.CreatedAt
	next.CreatedBy = cur.CreatedBy
	s.roles[r.ID] = next
	return nil
}

func (s *Store) DeleteRole(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.roles[id]; !ok {
		return clinicauth.ErrRoleNotFound
	}
	for _, u := range s.users {
		if u.CustomRoleID == id {
			return clinicauth.ErrRoleInUse
		}
	}
	delete(s.roles, id)
	for i, rid := range s.roleOrder {
		if rid == id {
			s.roleOrder = append(s.roleOrder[:i], s.roleOrder[i+1:]...)
			break
		}
	}
	return nil
}
