package permission

import (
	"errors"
	"sync"
)

// RoleManager binds roles to permission sets. It is configured during
// initialization, frozen, and then only read.
type RoleManager struct {
	registry *Registry

	mu     sync.RWMutex
	roles  map[Role]Set
	frozen bool
}

// NewRoleManager creates an empty manager validating names against registry.
func NewRoleManager(registry *Registry) *RoleManager {
	return &RoleManager{
		registry: registry,
		roles:    make(map[Role]Set),
	}
}

// RegisterRole binds role to the given permissions. Every name must already be
// registered. Fails once the manager is frozen or the role is already bound.
func (rm *RoleManager) RegisterRole(role Role, perms []Permission) error {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	if rm.frozen {
		return errors.New("role manager frozen")
	}

	if role == "" {
		return errors.New("role name empty")
	}

	if _, exists := rm.roles[role]; exists {
		return errors.New("role already registered")
	}

	var set Set
	for _, perm := range perms {
		bit, ok := rm.registry.Bit(string(perm))
		if !ok {
			return errors.New("permission not registered: " + string(perm))
		}
		set.mask.Set(bit)
	}

	rm.roles[role] = set
	return nil
}

// RegisterRoot binds role to the root set.
func (rm *RoleManager) RegisterRoot(role Role) error {
	if err := rm.RegisterRole(role, nil); err != nil {
		return err
	}
	rm.mu.Lock()
	rm.roles[role] = RootSet()
	rm.mu.Unlock()
	return nil
}

/*
====================================
GET SET FOR ROLE
====================================
*/

// Get returns the set bound to role.
func (rm *RoleManager) Get(role Role) (Set, bool) {
	rm.mu.RLock()
	defer rm.mu.RUnlock()

	set, ok := rm.roles[role]
	return set, ok
}

/*
====================================
FREEZE
====================================
*/

// Freeze prevents further registrations.
func (rm *RoleManager) Freeze() {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	rm.frozen = true
}

// Count returns the number of bound roles.
func (rm *RoleManager) Count() int {
	rm.mu.RLock()
	defer rm.mu.RUnlock()
	return len(rm.roles)
}
